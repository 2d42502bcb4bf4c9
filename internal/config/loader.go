package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies TAILBOT_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known TAILBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "PRIVATE_KEY") // compatibility alias
	setStr(&cfg.Wallet.PrivateKey, "TAILBOT_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.KeystorePath, "TAILBOT_WALLET_KEYSTORE_PATH")
	setStr(&cfg.Wallet.KeystorePassword, "TAILBOT_WALLET_KEYSTORE_PASSWORD")
	setInt(&cfg.Wallet.SignatureType, "TAILBOT_WALLET_SIGNATURE_TYPE")
	setStr(&cfg.Wallet.FunderAddress, "TAILBOT_WALLET_FUNDER_ADDRESS")

	// ── Polymarket ──
	setStr(&cfg.Polymarket.ClobHost, "TAILBOT_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.GammaHost, "TAILBOT_POLYMARKET_GAMMA_HOST")
	setInt64(&cfg.Polymarket.ChainID, "TAILBOT_POLYMARKET_CHAIN_ID")
	setBool(&cfg.Polymarket.NegRisk, "TAILBOT_POLYMARKET_NEG_RISK")
	setInt(&cfg.Polymarket.EventLimit, "TAILBOT_POLYMARKET_EVENT_LIMIT")

	// ── Trading ──
	setFloat64(&cfg.Trading.EntryPrice, "TAILBOT_TRADING_ENTRY_PRICE")
	setFloat64(&cfg.Trading.StopLossPrice, "TAILBOT_TRADING_STOP_LOSS_PRICE")
	setFloat64(&cfg.Trading.OrderAmount, "TAILBOT_TRADING_ORDER_AMOUNT")
	setFloat64(&cfg.Trading.MaxPositionAmount, "TAILBOT_TRADING_MAX_POSITION_AMOUNT")
	setFloat64(&cfg.Trading.TimeFilterHours, "TAILBOT_TRADING_TIME_FILTER_HOURS")
	setDuration(&cfg.Trading.GraceWindow, "TAILBOT_TRADING_GRACE_WINDOW")
	setDuration(&cfg.Trading.ScanInterval, "TAILBOT_TRADING_SCAN_INTERVAL")
	setDuration(&cfg.Trading.PriceCheckInterval, "TAILBOT_TRADING_PRICE_CHECK_INTERVAL")
	setFloat64(&cfg.Trading.MaxDailyLoss, "TAILBOT_TRADING_MAX_DAILY_LOSS")
	setInt(&cfg.Trading.MaxOpenPositions, "TAILBOT_TRADING_MAX_OPEN_POSITIONS")
	setBool(&cfg.Trading.AutoTradingEnabled, "TAILBOT_TRADING_AUTO_TRADING_ENABLED")
	setBool(&cfg.Trading.PersistProcessed, "TAILBOT_TRADING_PERSIST_PROCESSED")
	setDuration(&cfg.Trading.OrderTimeout, "TAILBOT_TRADING_ORDER_TIMEOUT")

	// ── Store ──
	setStr(&cfg.Store.Driver, "TAILBOT_STORE_DRIVER")
	setStr(&cfg.Store.SQLitePath, "TAILBOT_STORE_SQLITE_PATH")

	// ── Supabase ──
	setStr(&cfg.Supabase.DSN, "TAILBOT_DATABASE_URL") // compatibility alias
	setStr(&cfg.Supabase.DSN, "TAILBOT_SUPABASE_DSN")
	setStr(&cfg.Supabase.Host, "TAILBOT_SUPABASE_HOST")
	setInt(&cfg.Supabase.Port, "TAILBOT_SUPABASE_PORT")
	setStr(&cfg.Supabase.Database, "TAILBOT_SUPABASE_DATABASE")
	setStr(&cfg.Supabase.User, "TAILBOT_SUPABASE_USER")
	setStr(&cfg.Supabase.Password, "TAILBOT_SUPABASE_PASSWORD")
	setStr(&cfg.Supabase.SSLMode, "TAILBOT_SUPABASE_SSL_MODE")
	setInt(&cfg.Supabase.PoolMaxConns, "TAILBOT_SUPABASE_POOL_MAX_CONNS")
	setInt(&cfg.Supabase.PoolMinConns, "TAILBOT_SUPABASE_POOL_MIN_CONNS")
	setBool(&cfg.Supabase.RunMigrations, "TAILBOT_SUPABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "TAILBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "TAILBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TAILBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TAILBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "TAILBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "TAILBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "TAILBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "TAILBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "TAILBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "TAILBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "TAILBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "TAILBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "TAILBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "TAILBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "TAILBOT_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.ArchiveCron, "TAILBOT_S3_ARCHIVE_CRON")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "TAILBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "TAILBOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "TAILBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "TAILBOT_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "TAILBOT_SERVER_RATE_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "TAILBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "TAILBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "TAILBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setBool(&cfg.Notify.Console, "TAILBOT_NOTIFY_CONSOLE")
	setStringSlice(&cfg.Notify.Events, "TAILBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "TAILBOT_MODE")
	setStr(&cfg.LogLevel, "TAILBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
