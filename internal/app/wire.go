package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/alanyoungcy/tailbot/internal/blob/s3"
	"github.com/alanyoungcy/tailbot/internal/cache/memory"
	"github.com/alanyoungcy/tailbot/internal/cache/redis"
	"github.com/alanyoungcy/tailbot/internal/config"
	"github.com/alanyoungcy/tailbot/internal/crypto"
	"github.com/alanyoungcy/tailbot/internal/domain"
	"github.com/alanyoungcy/tailbot/internal/notify"
	"github.com/alanyoungcy/tailbot/internal/pipeline"
	"github.com/alanyoungcy/tailbot/internal/platform/polymarket"
	"github.com/alanyoungcy/tailbot/internal/server/handler"
	"github.com/alanyoungcy/tailbot/internal/store/postgres"
	"github.com/alanyoungcy/tailbot/internal/store/sqlite"
	"github.com/alanyoungcy/tailbot/internal/trader"
)

// archiveLookback is how far back the first trade export reaches.
const archiveLookback = 24 * time.Hour

// Dependencies bundles everything the run modes need. It is built once by
// Wire and released by the returned cleanup function.
type Dependencies struct {
	Store      domain.Store
	PriceCache domain.PriceCache
	Locks      domain.LockManager
	Processed  domain.ProcessedSet
	Bus        domain.SignalBus
	Limiter    domain.RateLimiter // nil without Redis

	Archiver   domain.Archiver // nil without S3
	ArchiveJob *pipeline.ArchiveJob

	Notifier  *notify.Notifier
	Clob      *polymarket.ClobClient
	Feed      *polymarket.MarketFeed
	Scheduler *trader.Scheduler

	// Checks back the health endpoint.
	Checks map[string]handler.Check
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Wire constructs the concrete implementations selected by cfg. A missing
// wallet key or a failed credential derivation is not an error: the
// scheduler is then built without an order gateway and trading stays off.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{Checks: make(map[string]handler.Check)}

	// --- Store ---
	switch cfg.Store.Driver {
	case "postgres":
		st, err := postgres.Open(ctx, postgres.ClientConfig{
			DSN:      cfg.Supabase.DSN,
			Host:     cfg.Supabase.Host,
			Port:     cfg.Supabase.Port,
			Database: cfg.Supabase.Database,
			User:     cfg.Supabase.User,
			Password: cfg.Supabase.Password,
			SSLMode:  cfg.Supabase.SSLMode,
			MaxConns: cfg.Supabase.PoolMaxConns,
			MinConns: cfg.Supabase.PoolMinConns,
		}, cfg.Supabase.RunMigrations)
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, st.Close)
		deps.Store = st
	default:
		if dir := filepath.Dir(cfg.Store.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fail(fmt.Errorf("wire: sqlite dir: %w", err))
			}
		}
		st, err := sqlite.Open(cfg.Store.SQLitePath)
		if err != nil {
			return fail(fmt.Errorf("wire: sqlite: %w", err))
		}
		closers = append(closers, st.Close)
		deps.Store = st
	}
	if p, ok := deps.Store.(pinger); ok {
		deps.Checks["store"] = p.Ping
	}

	// --- Caches, locks and the event bus ---
	if cfg.Redis.Enabled {
		rc, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = rc.Close() })
		deps.PriceCache = redis.NewPriceCache(rc, 0)
		deps.Locks = redis.NewLockManager(rc)
		deps.Bus = redis.NewSignalBus(rc)
		deps.Limiter = redis.NewRateLimiter(rc)
		if cfg.Trading.PersistProcessed {
			deps.Processed = redis.NewProcessedSet(rc, redis.DefaultProcessedTTL)
		}
		deps.Checks["redis"] = rc.Ping
	} else {
		deps.PriceCache = memory.NewPriceCache()
		deps.Locks = memory.NewLockManager()
		deps.Bus = memory.NewSignalBus()
	}
	if deps.Processed == nil {
		deps.Processed = memory.NewProcessedSet(0)
	}

	// --- Cold storage ---
	if cfg.S3.Enabled {
		client, err := s3blob.New(ctx, cfg.S3)
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(client), deps.Store.Trades(), deps.Store.Audit())
		job, err := pipeline.NewArchiveJob(deps.Archiver, cfg.S3.ArchiveCron, archiveLookback, logger)
		if err != nil {
			return fail(fmt.Errorf("wire: archive job: %w", err))
		}
		deps.ArchiveJob = job
		deps.Checks["s3"] = client.Health
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if cfg.Notify.Console {
		senders = append(senders, notify.NewConsoleSender())
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Polymarket ---
	signer := loadSigner(ctx, cfg, logger)

	builder := polymarket.BuilderConfig{
		SignatureType: cfg.Wallet.SignatureType,
		NegRisk:       cfg.Polymarket.NegRisk,
		FeeRateBps:    cfg.Polymarket.FeeRateBps,
	}
	if cfg.Wallet.FunderAddress != "" {
		builder.Funder = common.HexToAddress(cfg.Wallet.FunderAddress)
	}
	deps.Clob = polymarket.NewClobClient(polymarket.ClobConfig{
		BaseURL:    cfg.Polymarket.ClobHost,
		RatePerSec: cfg.Polymarket.ClobRatePerSec,
		Burst:      cfg.Polymarket.ClobBurst,
		RetryWait:  cfg.Polymarket.RetryWait.Duration,
		Builder:    builder,
	}, signer, crypto.RandomSalt{}, logger.With(slog.String("client", "clob")))

	gamma := polymarket.NewGammaClient(polymarket.GammaConfig{
		BaseURL:    cfg.Polymarket.GammaHost,
		RatePerSec: cfg.Polymarket.GammaRatePerSec,
		Burst:      cfg.Polymarket.GammaBurst,
	}, logger.With(slog.String("client", "gamma")))
	deps.Feed = polymarket.NewMarketFeed(gamma, cfg.Polymarket.EventLimit, logger.With(slog.String("component", "feed")))

	var gateway trader.OrderGateway
	if signer != nil {
		if _, err := deps.Clob.DeriveCredentials(ctx); err != nil {
			logger.WarnContext(ctx, "wire: api credential derivation failed, trading disabled",
				slog.String("address", signer.Address().Hex()),
				slog.String("error", err.Error()),
			)
		} else {
			gateway = deps.Clob
		}
	}

	deps.Scheduler = trader.New(cfg.Trading.Settings(), trader.Deps{
		Feed:         deps.Feed,
		Prices:       deps.Clob,
		Gateway:      gateway,
		Store:        deps.Store,
		Processed:    deps.Processed,
		Locks:        deps.Locks,
		PriceCache:   deps.PriceCache,
		Bus:          deps.Bus,
		Archiver:     deps.Archiver,
		Notifier:     deps.Notifier,
		Logger:       logger,
		OrderTimeout: cfg.Trading.OrderTimeout.Duration,
	})

	return deps, cleanup, nil
}

// loadSigner returns the wallet signer, or nil when the key is missing or
// unusable. Without a signer the bot runs with trading disabled.
func loadSigner(ctx context.Context, cfg *config.Config, logger *slog.Logger) *crypto.Signer {
	signer, err := crypto.LoadSigner(crypto.KeySource{
		RawPrivateKey: cfg.Wallet.PrivateKey,
		KeystorePath:  cfg.Wallet.KeystorePath,
		Password:      cfg.Wallet.KeystorePassword,
	}, cfg.Polymarket.ChainID)
	switch {
	case errors.Is(err, crypto.ErrNoKey):
		logger.WarnContext(ctx, "wire: no wallet key configured, trading disabled")
		return nil
	case err != nil:
		logger.WarnContext(ctx, "wire: wallet key unusable, trading disabled",
			slog.String("error", err.Error()),
		)
		return nil
	}
	return signer
}
