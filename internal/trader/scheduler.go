// Package trader runs the tail-end trading strategy: it scans sports markets
// close to settlement, enters "Yes" positions above the entry threshold and
// exits them when the price falls to the stop-loss.
package trader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/tailbot/internal/cache/memory"
	"github.com/alanyoungcy/tailbot/internal/domain"
	"github.com/alanyoungcy/tailbot/internal/platform/polymarket"
)

const (
	defaultOrderTimeout = 30 * time.Second
	marketLockTTL       = time.Minute
)

// MarketSource lists the markets settling inside a window. It never fails.
type MarketSource interface {
	Fetch(ctx context.Context, w polymarket.FeedWindow) []domain.Market
}

// PriceSource reads the live book price of a token on the 0-100 scale.
type PriceSource interface {
	GetPrice(ctx context.Context, tokenID string) (domain.BookPrice, error)
}

// OrderGateway places orders and reports the spendable balance.
type OrderGateway interface {
	PlaceOrder(ctx context.Context, intent domain.OrderIntent) (domain.Order, error)
	GetBalance(ctx context.Context) (domain.Balance, error)
}

// Notifier receives trading notifications. Implementations must not block
// for long and must swallow their own failures.
type Notifier interface {
	NotifyBuy(ctx context.Context, question string, price, amount, size float64)
	NotifySell(ctx context.Context, question string, price, size, pnl float64)
	NotifyStopLoss(ctx context.Context, question string, entry, exit, loss float64)
	NotifyPriceAlert(ctx context.Context, question string, price float64, kind string)
	NotifyError(ctx context.Context, where string, err error)
	NotifySystemStart(ctx context.Context, s domain.TradingSettings)
	NotifySystemStop(ctx context.Context)
	NotifyDailySummary(ctx context.Context, st domain.DailyStats)
}

// Deps are the scheduler's collaborators. Feed, Prices, Store and Notifier
// are required. A nil Gateway disables trading; the other fields fall back to
// in-memory implementations or are skipped.
type Deps struct {
	Feed       MarketSource
	Prices     PriceSource
	Gateway    OrderGateway
	Store      domain.Store
	Processed  domain.ProcessedSet
	Locks      domain.LockManager
	PriceCache domain.PriceCache
	Bus        domain.SignalBus
	Archiver   domain.Archiver
	Notifier   Notifier
	Logger     *slog.Logger

	OrderTimeout time.Duration
	Now          func() time.Time
}

// Scheduler drives the scan and monitor loops.
type Scheduler struct {
	feed       MarketSource
	prices     PriceSource
	gateway    OrderGateway
	store      domain.Store
	processed  domain.ProcessedSet
	locks      domain.LockManager
	priceCache domain.PriceCache
	bus        domain.SignalBus
	archiver   domain.Archiver
	notifier   Notifier
	logger     *slog.Logger

	registry     *Registry
	orderTimeout time.Duration
	now          func() time.Time

	mu        sync.Mutex
	settings  domain.TradingSettings
	running   bool
	cancel    context.CancelFunc
	group     *errgroup.Group
	startedAt time.Time
	lastScan  time.Time
	dailyPnL  float64
	pnlDay    time.Time
	alerted   map[string]bool
}

// New builds a Scheduler with the given starting settings.
func New(settings domain.TradingSettings, d Deps) *Scheduler {
	s := &Scheduler{
		feed:         d.Feed,
		prices:       d.Prices,
		gateway:      d.Gateway,
		store:        d.Store,
		processed:    d.Processed,
		locks:        d.Locks,
		priceCache:   d.PriceCache,
		bus:          d.Bus,
		archiver:     d.Archiver,
		notifier:     d.Notifier,
		logger:       d.Logger,
		registry:     NewRegistry(),
		orderTimeout: d.OrderTimeout,
		now:          d.Now,
		settings:     settings,
		alerted:      make(map[string]bool),
	}
	if s.processed == nil {
		s.processed = memory.NewProcessedSet(0)
	}
	if s.locks == nil {
		s.locks = memory.NewLockManager()
	}
	if s.orderTimeout <= 0 {
		s.orderTimeout = defaultOrderTimeout
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With(slog.String("component", "trader"))
	return s
}

// Registry exposes the monitored-market registry.
func (s *Scheduler) Registry() *Registry { return s.registry }

// TradingEnabled reports whether an order gateway is wired.
func (s *Scheduler) TradingEnabled() bool { return s.gateway != nil }

// Settings returns the current strategy parameters.
func (s *Scheduler) Settings() domain.TradingSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// UpdateSettings validates and installs next. Running loops pick up new
// intervals on their next tick; thresholds of already registered markets are
// kept.
func (s *Scheduler) UpdateSettings(next domain.TradingSettings) error {
	if err := next.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.settings = next
	s.mu.Unlock()
	s.logger.Info("trader: settings updated",
		slog.Float64("entry_price", next.EntryPrice),
		slog.Float64("stop_loss_price", next.StopLossPrice),
		slog.Float64("order_amount", next.OrderAmount),
		slog.Bool("auto_trading", next.AutoTradingEnabled),
	)
	return nil
}

// Running reports whether the loops are active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Start launches the scan and monitor loops in the background. The loops
// outlive ctx's cancellation and run until Stop. Calling Start on a running
// scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.gateway == nil {
		return domain.ErrTradingDisabled
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	g, gctx := errgroup.WithContext(runCtx)
	s.running = true
	s.cancel = cancel
	s.group = g
	s.startedAt = s.now().UTC()
	settings := s.settings
	s.mu.Unlock()

	if err := s.RefreshDailyPnL(ctx); err != nil {
		s.logger.WarnContext(ctx, "trader: load daily pnl failed", slog.String("error", err.Error()))
	}
	if n, err := s.RestorePositions(ctx); err != nil {
		s.logger.WarnContext(ctx, "trader: restore open positions failed", slog.String("error", err.Error()))
	} else if n > 0 {
		s.logger.InfoContext(ctx, "trader: restored open positions", slog.Int("count", n))
	}

	g.Go(func() error {
		return s.loop(gctx, "scan", func(st domain.TradingSettings) time.Duration { return st.ScanInterval }, s.scan)
	})
	g.Go(func() error {
		return s.loop(gctx, "monitor", func(st domain.TradingSettings) time.Duration { return st.PriceCheckInterval }, s.monitor)
	})

	s.logger.InfoContext(ctx, "trader: scheduler started",
		slog.Float64("entry_price", settings.EntryPrice),
		slog.Float64("stop_loss_price", settings.StopLossPrice),
		slog.Bool("auto_trading", settings.AutoTradingEnabled),
	)
	s.notifier.NotifySystemStart(ctx, settings)
	s.publish(ctx, domain.ChannelTrading, domain.Event{Kind: domain.EventSchedulerStarted})
	return nil
}

// Stop cancels the loops and waits for them to return. Orders already being
// submitted finish on their own detached context. Calling Stop on an idle
// scheduler is a no-op.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	cancel, g := s.cancel, s.group
	s.running = false
	s.cancel = nil
	s.group = nil
	s.mu.Unlock()

	cancel()
	done := make(chan error, 1)
	go func() { done <- g.Wait() }()
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.ErrorContext(ctx, "trader: loop exited with error", slog.String("error", err.Error()))
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "trader: scheduler stopped")
	s.notifier.NotifySystemStop(ctx)
	s.publish(ctx, domain.ChannelTrading, domain.Event{Kind: domain.EventSchedulerStopped})
	return nil
}

// loop runs tick immediately and then on every interval until ctx is done.
// The interval is re-read from the settings after every tick.
func (s *Scheduler) loop(ctx context.Context, name string, interval func(domain.TradingSettings) time.Duration, tick func(context.Context)) error {
	tick(ctx)

	every := interval(s.Settings())
	if every <= 0 {
		every = interval(domain.DefaultTradingSettings())
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("trader: loop stopped", slog.String("loop", name))
			return nil
		case <-ticker.C:
			tick(ctx)
			if next := interval(s.Settings()); next != every && next > 0 {
				every = next
				ticker.Reset(every)
			}
		}
	}
}

// RestorePositions puts every stored open position back under stop-loss
// monitoring and marks its market processed. Markets already held in the
// registry are left alone. It returns the number of positions added.
func (s *Scheduler) RestorePositions(ctx context.Context) (int, error) {
	open, err := s.store.Positions().ListOpen(ctx)
	if err != nil {
		return 0, fmt.Errorf("trader: list open positions: %w", err)
	}
	restored := 0
	for _, pos := range open {
		if cur, ok := s.registry.Get(pos.MarketID); ok && cur.HasPosition {
			continue
		}
		if pos.Size <= 0 {
			s.logger.WarnContext(ctx, "trader: skip empty open position",
				slog.String("market_id", pos.MarketID),
				slog.String("position_id", pos.ID),
			)
			continue
		}
		s.registry.Register(domain.MonitoredMarket{
			MarketID:      pos.MarketID,
			TokenID:       pos.TokenID,
			Question:      pos.MarketQuestion,
			EntryPrice:    pos.AvgPrice,
			StopLossPrice: pos.StopLossPrice,
			CurrentPrice:  pos.CurrentPrice,
			CreatedAt:     pos.OpenedAt,
		})
		if _, err := s.registry.MarkPositioned(pos.MarketID, pos.Size); err != nil {
			return restored, fmt.Errorf("trader: restore %s: %w", pos.MarketID, err)
		}
		s.markProcessed(ctx, pos.MarketID)
		restored++
	}
	return restored, nil
}

// publish sends ev on the bus, if one is configured. Failures are logged.
func (s *Scheduler) publish(ctx context.Context, channel string, ev domain.Event) {
	if s.bus == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = s.now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, channel, payload); err != nil {
		s.logger.DebugContext(ctx, "trader: publish event failed",
			slog.String("kind", string(ev.Kind)),
			slog.String("error", err.Error()),
		)
	}
}

// detached returns a context for order submission and its bookkeeping: it
// survives loop cancellation and is bounded by the order timeout.
func (s *Scheduler) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.orderTimeout)
}

// alertOnce reports whether key has not been alerted yet and records it.
func (s *Scheduler) alertOnce(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.alerted[key] {
		return false
	}
	s.alerted[key] = true
	return true
}
