// Package config defines the top-level configuration for tailbot and provides
// validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/tailbot/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by TAILBOT_* environment variables.
type Config struct {
	Wallet     WalletConfig     `toml:"wallet"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Trading    TradingConfig    `toml:"trading"`
	Store      StoreConfig      `toml:"store"`
	Supabase   SupabaseConfig   `toml:"supabase"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// WalletConfig holds the signing key source. Either a raw key or an encrypted
// keystore file may be given.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	KeystorePath     string `toml:"keystore_path"`
	KeystorePassword string `toml:"keystore_password"`
	SignatureType    int    `toml:"signature_type"`
	FunderAddress    string `toml:"funder_address"`
}

// PolymarketConfig holds Polymarket API endpoints, chain parameters and
// outbound rate limits.
type PolymarketConfig struct {
	ClobHost        string   `toml:"clob_host"`
	GammaHost       string   `toml:"gamma_host"`
	ChainID         int64    `toml:"chain_id"`
	NegRisk         bool     `toml:"neg_risk"`
	FeeRateBps      int      `toml:"fee_rate_bps"`
	EventLimit      int      `toml:"event_limit"`
	ClobRatePerSec  float64  `toml:"clob_rate_per_sec"`
	ClobBurst       int      `toml:"clob_burst"`
	GammaRatePerSec float64  `toml:"gamma_rate_per_sec"`
	GammaBurst      int      `toml:"gamma_burst"`
	RetryWait       duration `toml:"retry_wait"`
}

// TradingConfig holds the strategy parameters. Prices are on the 0-100 scale
// and amounts are USDC.
type TradingConfig struct {
	EntryPrice         float64  `toml:"entry_price"`
	StopLossPrice      float64  `toml:"stop_loss_price"`
	OrderAmount        float64  `toml:"order_amount"`
	MaxPositionAmount  float64  `toml:"max_position_amount"`
	TimeFilterHours    float64  `toml:"time_filter_hours"`
	GraceWindow        duration `toml:"grace_window"`
	ScanInterval       duration `toml:"scan_interval"`
	PriceCheckInterval duration `toml:"price_check_interval"`
	MaxDailyLoss       float64  `toml:"max_daily_loss"`
	MaxOpenPositions   int      `toml:"max_open_positions"`
	AutoTradingEnabled bool     `toml:"auto_trading_enabled"`
	PersistProcessed   bool     `toml:"persist_processed"`
	OrderTimeout       duration `toml:"order_timeout"`
}

// Settings converts the section to the domain representation.
func (t TradingConfig) Settings() domain.TradingSettings {
	return domain.TradingSettings{
		EntryPrice:         t.EntryPrice,
		StopLossPrice:      t.StopLossPrice,
		OrderAmount:        t.OrderAmount,
		MaxPositionAmount:  t.MaxPositionAmount,
		TimeFilterHours:    t.TimeFilterHours,
		GraceWindow:        t.GraceWindow.Duration,
		ScanInterval:       t.ScanInterval.Duration,
		PriceCheckInterval: t.PriceCheckInterval.Duration,
		MaxDailyLoss:       t.MaxDailyLoss,
		MaxOpenPositions:   t.MaxOpenPositions,
		AutoTradingEnabled: t.AutoTradingEnabled,
	}
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver     string `toml:"driver"` // "sqlite" or "postgres"
	SQLitePath string `toml:"sqlite_path"`
}

// SupabaseConfig holds PostgreSQL / Supabase connection parameters, used when
// store.driver is "postgres".
type SupabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. Redis is optional; without
// it the bot uses in-process caches and locks.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the trade
// archive.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	// ArchiveCron schedules the trade export, five fields in UTC.
	ArchiveCron string `toml:"archive_cron"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey, when set, is required as X-API-Key on every /api route except
	// health.
	APIKey string `toml:"api_key"`
	// RateLimit is requests per client per minute; 0 disables it. Needs Redis.
	RateLimit int `toml:"rate_limit"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Console           bool     `toml:"console"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	ts := domain.DefaultTradingSettings()
	return Config{
		Polymarket: PolymarketConfig{
			ClobHost:        "https://clob.polymarket.com",
			GammaHost:       "https://gamma-api.polymarket.com",
			ChainID:         137,
			EventLimit:      100,
			ClobRatePerSec:  10,
			ClobBurst:       5,
			GammaRatePerSec: 5,
			GammaBurst:      5,
			RetryWait:       duration{500 * time.Millisecond},
		},
		Trading: TradingConfig{
			EntryPrice:         ts.EntryPrice,
			StopLossPrice:      ts.StopLossPrice,
			OrderAmount:        ts.OrderAmount,
			MaxPositionAmount:  ts.MaxPositionAmount,
			TimeFilterHours:    ts.TimeFilterHours,
			GraceWindow:        duration{ts.GraceWindow},
			ScanInterval:       duration{ts.ScanInterval},
			PriceCheckInterval: duration{ts.PriceCheckInterval},
			MaxDailyLoss:       ts.MaxDailyLoss,
			MaxOpenPositions:   ts.MaxOpenPositions,
			AutoTradingEnabled: ts.AutoTradingEnabled,
			OrderTimeout:       duration{30 * time.Second},
		},
		Store: StoreConfig{
			Driver:     "sqlite",
			SQLitePath: "data/tailbot.db",
		},
		Supabase: SupabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "tailbot-archive",
			ForcePathStyle: true,
			ArchiveCron:    "5 0 * * *",
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Notify: NotifyConfig{
			Events: []string{"buy", "sell", "stop_loss", "price_alert", "error", "system", "daily_summary"},
		},
		Mode:     "server",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"trade":  true,
	"server": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
//
// A missing wallet key is not an error: the bot then runs with trading
// disabled.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, server)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Wallet
	if c.Wallet.KeystorePath != "" && c.Wallet.KeystorePassword == "" {
		errs = append(errs, "wallet: keystore_password is required when keystore_path is set")
	}
	if c.Wallet.SignatureType < 0 || c.Wallet.SignatureType > 2 {
		errs = append(errs, fmt.Sprintf("wallet: signature_type must be 0 (EOA), 1 (proxy) or 2 (Safe), got %d", c.Wallet.SignatureType))
	}
	if c.Wallet.FunderAddress != "" && !common.IsHexAddress(c.Wallet.FunderAddress) {
		errs = append(errs, "wallet: funder_address is not a valid address")
	}

	// Polymarket endpoints
	if c.Polymarket.ClobHost == "" {
		errs = append(errs, "polymarket: clob_host must not be empty")
	}
	if c.Polymarket.GammaHost == "" {
		errs = append(errs, "polymarket: gamma_host must not be empty")
	}
	if c.Polymarket.ChainID <= 0 {
		errs = append(errs, "polymarket: chain_id must be positive")
	}

	// Trading
	if err := c.Trading.Settings().Validate(); err != nil {
		for _, line := range strings.Split(err.Error(), "\n") {
			errs = append(errs, "trading: "+line)
		}
	}

	// Store
	switch c.Store.Driver {
	case "sqlite":
		if c.Store.SQLitePath == "" {
			errs = append(errs, "store: sqlite_path must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(c.Supabase.DSN) == "" {
			if c.Supabase.Host == "" {
				errs = append(errs, "supabase: host must not be empty (or set supabase.dsn)")
			}
			if c.Supabase.Port <= 0 || c.Supabase.Port > 65535 {
				errs = append(errs, fmt.Sprintf("supabase: port must be 1-65535, got %d", c.Supabase.Port))
			}
			if c.Supabase.Database == "" {
				errs = append(errs, "supabase: database must not be empty")
			}
		}
		if c.Supabase.PoolMaxConns < 1 {
			errs = append(errs, "supabase: pool_max_conns must be >= 1")
		}
		if c.Supabase.PoolMinConns < 0 || c.Supabase.PoolMinConns > c.Supabase.PoolMaxConns {
			errs = append(errs, "supabase: pool_min_conns must be between 0 and pool_max_conns")
		}
	default:
		errs = append(errs, fmt.Sprintf("store: unknown driver %q (valid: sqlite, postgres)", c.Store.Driver))
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}
	if c.Trading.PersistProcessed && !c.Redis.Enabled {
		errs = append(errs, "trading: persist_processed requires redis.enabled")
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if len(strings.Fields(c.S3.ArchiveCron)) != 5 {
			errs = append(errs, fmt.Sprintf("s3: archive_cron must have 5 fields, got %q", c.S3.ArchiveCron))
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must not be negative")
		}
		if c.Server.RateLimit > 0 && !c.Redis.Enabled {
			errs = append(errs, "server: rate_limit requires redis.enabled")
		}
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
