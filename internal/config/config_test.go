package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())

	s := cfg.Trading.Settings()
	assert.Equal(t, 90.0, s.EntryPrice)
	assert.Equal(t, 85.0, s.StopLossPrice)
	assert.Equal(t, 10.0, s.OrderAmount)
	assert.Equal(t, 100.0, s.MaxPositionAmount)
	assert.Equal(t, time.Hour, s.Lookahead())
	assert.Equal(t, 2*time.Hour, s.GraceWindow)
	assert.Equal(t, 30*time.Second, s.ScanInterval)
	assert.Equal(t, 5*time.Second, s.PriceCheckInterval)
	assert.Equal(t, 50.0, s.MaxDailyLoss)
	assert.Equal(t, 5, s.MaxOpenPositions)
	assert.False(t, s.AutoTradingEnabled)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tailbot.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "trade"

[trading]
entry_price = 92
stop_loss_price = 80
scan_interval = "1m"
auto_trading_enabled = true

[redis]
enabled = true
`), 0o600))

	t.Setenv("TAILBOT_TRADING_ORDER_AMOUNT", "25")
	t.Setenv("TAILBOT_TRADING_PRICE_CHECK_INTERVAL", "2s")
	t.Setenv("TAILBOT_SERVER_CORS_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("TAILBOT_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "trade", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 92.0, cfg.Trading.EntryPrice)
	assert.Equal(t, 80.0, cfg.Trading.StopLossPrice)
	assert.Equal(t, 25.0, cfg.Trading.OrderAmount)
	assert.Equal(t, time.Minute, cfg.Trading.ScanInterval.Duration)
	assert.Equal(t, 2*time.Second, cfg.Trading.PriceCheckInterval.Duration)
	assert.True(t, cfg.Trading.AutoTradingEnabled)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)

	// Untouched sections keep their defaults.
	assert.Equal(t, "https://clob.polymarket.com", cfg.Polymarket.ClobHost)
	assert.Equal(t, 5, cfg.Trading.MaxOpenPositions)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestMalformedEnvIgnored(t *testing.T) {
	t.Setenv("TAILBOT_TRADING_MAX_OPEN_POSITIONS", "many")
	t.Setenv("TAILBOT_TRADING_SCAN_INTERVAL", "soon")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Trading.MaxOpenPositions)
	assert.Equal(t, 30*time.Second, cfg.Trading.ScanInterval.Duration)
}

func TestValidateAggregatesErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "arbitrage"
	cfg.LogLevel = "loud"
	cfg.Trading.StopLossPrice = 95
	cfg.Store.Driver = "mysql"
	cfg.Wallet.KeystorePath = "/keys/wallet.json"
	cfg.Notify.TelegramToken = "t"

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, `unknown mode "arbitrage"`)
	assert.Contains(t, msg, `unknown log_level "loud"`)
	assert.Contains(t, msg, "trading: stop_loss_price")
	assert.Contains(t, msg, `store: unknown driver "mysql"`)
	assert.Contains(t, msg, "keystore_password is required")
	assert.Contains(t, msg, "telegram_token and telegram_chat_id")
}

func TestValidateFeatureDependencies(t *testing.T) {
	cfg := Defaults()
	cfg.Trading.PersistProcessed = true
	cfg.Server.RateLimit = 60

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persist_processed requires redis.enabled")
	assert.Contains(t, err.Error(), "rate_limit requires redis.enabled")

	cfg.Redis.Enabled = true
	assert.NoError(t, cfg.Validate())
}

func TestValidateMissingKeyIsAllowed(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	assert.NoError(t, cfg.Validate())
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "0xdeadbeef"
	cfg.Supabase.Password = "pw"
	cfg.S3.SecretKey = "s3"
	cfg.Server.APIKey = "api"
	cfg.Notify.TelegramToken = "tg"

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Wallet.PrivateKey)
	assert.Equal(t, "***", out.Supabase.Password)
	assert.Equal(t, "***", out.S3.SecretKey)
	assert.Equal(t, "***", out.Server.APIKey)
	assert.Equal(t, "***", out.Notify.TelegramToken)
	assert.Empty(t, out.Notify.DiscordWebhookURL, "empty secrets stay empty")

	assert.Equal(t, "0xdeadbeef", cfg.Wallet.PrivateKey, "original untouched")
	out.Server.CORSOrigins[0] = "changed"
	assert.NotEqual(t, "changed", cfg.Server.CORSOrigins[0])
}
