package trader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tailbot/internal/cache/memory"
	"github.com/alanyoungcy/tailbot/internal/domain"
	"github.com/alanyoungcy/tailbot/internal/platform/polymarket"
	"github.com/alanyoungcy/tailbot/internal/store/sqlite"
)

var testNow = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type fakeFeed struct {
	mu      sync.Mutex
	markets []domain.Market
	windows []polymarket.FeedWindow
}

func (f *fakeFeed) Fetch(_ context.Context, w polymarket.FeedWindow) []domain.Market {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.windows = append(f.windows, w)
	return append([]domain.Market(nil), f.markets...)
}

// fakeGateway fills every order at the requested price using the real
// fixed-point amount rules.
type fakeGateway struct {
	mu      sync.Mutex
	balance domain.Balance
	prices  map[string]float64
	intents []domain.OrderIntent
	reject  error
	seq     int

	// when set, PlaceOrder signals entered and waits for release
	entered chan struct{}
	release chan struct{}
}

func newGateway(available float64) *fakeGateway {
	return &fakeGateway{
		balance: domain.Balance{Available: available, Total: available},
		prices:  map[string]float64{},
	}
}

func (g *fakeGateway) PlaceOrder(ctx context.Context, in domain.OrderIntent) (domain.Order, error) {
	if g.entered != nil {
		g.entered <- struct{}{}
		select {
		case <-g.release:
		case <-ctx.Done():
			return domain.Order{}, ctx.Err()
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.intents = append(g.intents, in)

	amounts, err := polymarket.ComputeAmounts(in)
	if err != nil {
		return domain.Order{}, err
	}
	order := domain.Order{
		MarketID:    in.MarketID,
		TokenID:     in.TokenID,
		Side:        in.Side,
		Type:        domain.OrderTypeFOK,
		Price:       in.Price,
		Size:        amounts.Size,
		Amount:      amounts.Amount,
		Status:      domain.OrderStatusFilled,
		FilledSize:  amounts.Size,
		TriggerType: in.Trigger,
		CreatedAt:   testNow,
		UpdatedAt:   testNow,
	}
	if g.reject != nil {
		order.Status = domain.OrderStatusFailed
		order.ErrorMessage = g.reject.Error()
		return order, g.reject
	}
	g.seq++
	order.ID = fmt.Sprintf("0xorder%d", g.seq)
	return order, nil
}

func (g *fakeGateway) GetBalance(context.Context) (domain.Balance, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.balance, nil
}

func (g *fakeGateway) GetPrice(_ context.Context, tokenID string) (domain.BookPrice, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.prices[tokenID]
	if !ok {
		return domain.BookPrice{}, domain.ErrNotFound
	}
	return domain.BookPrice{TokenID: tokenID, Price: p, Bid: p - 1, Ask: p + 1, Spread: 2}, nil
}

func (g *fakeGateway) setPrice(tokenID string, p float64) {
	g.mu.Lock()
	g.prices[tokenID] = p
	g.mu.Unlock()
}

func (g *fakeGateway) placed() []domain.OrderIntent {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]domain.OrderIntent(nil), g.intents...)
}

type call struct {
	method   string
	question string
	price    float64
	value    float64
	kind     string
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []call
	stats []domain.DailyStats
}

func (n *fakeNotifier) add(c call) {
	n.mu.Lock()
	n.calls = append(n.calls, c)
	n.mu.Unlock()
}

func (n *fakeNotifier) NotifyBuy(_ context.Context, q string, price, amount, _ float64) {
	n.add(call{method: "buy", question: q, price: price, value: amount})
}

func (n *fakeNotifier) NotifySell(_ context.Context, q string, price, _, pnl float64) {
	n.add(call{method: "sell", question: q, price: price, value: pnl})
}

func (n *fakeNotifier) NotifyStopLoss(_ context.Context, q string, _, exit, loss float64) {
	n.add(call{method: "stop_loss", question: q, price: exit, value: loss})
}

func (n *fakeNotifier) NotifyPriceAlert(_ context.Context, q string, price float64, kind string) {
	n.add(call{method: "alert", question: q, price: price, kind: kind})
}

func (n *fakeNotifier) NotifyError(_ context.Context, where string, _ error) {
	n.add(call{method: "error", kind: where})
}

func (n *fakeNotifier) NotifySystemStart(context.Context, domain.TradingSettings) {
	n.add(call{method: "start"})
}

func (n *fakeNotifier) NotifySystemStop(context.Context) {
	n.add(call{method: "stop"})
}

func (n *fakeNotifier) NotifyDailySummary(_ context.Context, st domain.DailyStats) {
	n.mu.Lock()
	n.stats = append(n.stats, st)
	n.mu.Unlock()
	n.add(call{method: "daily_summary"})
}

func (n *fakeNotifier) byMethod(method string) []call {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []call
	for _, c := range n.calls {
		if c.method == method {
			out = append(out, c)
		}
	}
	return out
}

type fakeArchiver struct {
	mu        sync.Mutex
	positions []domain.Position
}

func (a *fakeArchiver) ArchivePosition(_ context.Context, pos domain.Position) error {
	a.mu.Lock()
	a.positions = append(a.positions, pos)
	a.mu.Unlock()
	return nil
}

func (a *fakeArchiver) ArchiveTrades(context.Context, time.Time) (int64, error) { return 0, nil }

type harness struct {
	s        *Scheduler
	feed     *fakeFeed
	gw       *fakeGateway
	store    *sqlite.Store
	notes    *fakeNotifier
	archive  *fakeArchiver
	bus      *memory.SignalBus
	cache    *memory.PriceCache
	clock    *fakeClock
	settings domain.TradingSettings
}

func market(id string, yes float64) domain.Market {
	return domain.Market{
		ID:       id,
		Question: "Will " + id + " win?",
		Category: "NBA",
		EndDate:  testNow.Add(30 * time.Minute),
		YesPrice: yes,
		NoPrice:  1 - yes,
		TokenID:  "tok-" + id,
		Outcomes: []string{"Yes", "No"},
	}
}

func newHarness(t *testing.T, mutate func(*domain.TradingSettings), markets ...domain.Market) *harness {
	t.Helper()
	st, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(st.Close)

	settings := domain.DefaultTradingSettings()
	settings.AutoTradingEnabled = true
	if mutate != nil {
		mutate(&settings)
	}

	h := &harness{
		feed:     &fakeFeed{markets: markets},
		gw:       newGateway(1000),
		store:    st,
		notes:    &fakeNotifier{},
		archive:  &fakeArchiver{},
		bus:      memory.NewSignalBus(),
		cache:    memory.NewPriceCache(),
		clock:    &fakeClock{t: testNow},
		settings: settings,
	}
	h.rebuild(st)
	require.NoError(t, h.s.RefreshDailyPnL(context.Background()))
	return h
}

// rebuild replaces the scheduler with a fresh one over store, as after a
// process restart. The fakes are shared.
func (h *harness) rebuild(store domain.Store) {
	h.s = New(h.settings, Deps{
		Feed:       h.feed,
		Prices:     h.gw,
		Gateway:    h.gw,
		Store:      store,
		PriceCache: h.cache,
		Bus:        h.bus,
		Archiver:   h.archive,
		Notifier:   h.notes,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:        h.clock.Now,
	})
}

// flakyStore fails the next positionFails position saves.
type flakyStore struct {
	*sqlite.Store
	positionFails atomic.Int32
}

func (f *flakyStore) Positions() domain.PositionStore {
	return &flakyPositions{PositionStore: f.Store.Positions(), fails: &f.positionFails}
}

type flakyPositions struct {
	domain.PositionStore
	fails *atomic.Int32
}

func (p *flakyPositions) Save(ctx context.Context, pos domain.Position) error {
	if p.fails.Add(-1) >= 0 {
		return errors.New("disk full")
	}
	return p.PositionStore.Save(ctx, pos)
}

func (f *fakeFeed) windowsSnapshot() []polymarket.FeedWindow {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]polymarket.FeedWindow(nil), f.windows...)
}
