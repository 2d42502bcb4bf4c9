package polymarket

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/tailbot/internal/domain"
)

const defaultEventLimit = 100

// EventSource lists sports events. GammaClient implements it.
type EventSource interface {
	GetSportsEvents(ctx context.Context, q EventQuery) ([]APIEvent, error)
}

// FeedWindow bounds admitted settlement times to
// [now-Grace, now+Lookahead].
type FeedWindow struct {
	Lookahead time.Duration
	Grace     time.Duration
}

// MarketFeed turns Gamma events into tradable sports markets settling inside
// a window. Upstream failures are logged and produce an empty result.
type MarketFeed struct {
	source EventSource
	limit  int
	now    func() time.Time
	logger *slog.Logger
}

// NewMarketFeed creates a MarketFeed. limit <= 0 uses 100 events per scan.
func NewMarketFeed(source EventSource, limit int, logger *slog.Logger) *MarketFeed {
	if limit <= 0 {
		limit = defaultEventLimit
	}
	return &MarketFeed{source: source, limit: limit, now: time.Now, logger: logger}
}

// SetClock overrides the clock used for window checks.
func (f *MarketFeed) SetClock(now func() time.Time) {
	f.now = now
}

// filterStats counts why markets were dropped during a scan.
type filterStats struct {
	total, closed, noEndDate, expired, tooFar, noToken, passed int
}

// Fetch returns markets whose end date lies inside w. It never fails: errors
// are logged and yield an empty slice.
func (f *MarketFeed) Fetch(ctx context.Context, w FeedWindow) []domain.Market {
	now := f.now().UTC()
	earliest := now.Add(-w.Grace)
	latest := now.Add(w.Lookahead)

	events, err := f.source.GetSportsEvents(ctx, EventQuery{
		Limit:      f.limit,
		EndDateMin: earliest,
		EndDateMax: latest,
	})
	if err != nil {
		f.logger.ErrorContext(ctx, "polymarket/feed: fetch sports events failed",
			slog.String("error", err.Error()),
		)
		return []domain.Market{}
	}

	var stats filterStats
	markets := make([]domain.Market, 0)
	for i := range events {
		ev := &events[i]
		for j := range ev.Markets {
			if m, ok := admit(ev, &ev.Markets[j], earliest, latest, &stats); ok {
				markets = append(markets, m)
			}
		}
	}

	f.logger.DebugContext(ctx, "polymarket/feed: scan filtered",
		slog.Int("events", len(events)),
		slog.Int("markets", stats.total),
		slog.Int("closed", stats.closed),
		slog.Int("no_end_date", stats.noEndDate),
		slog.Int("expired", stats.expired),
		slog.Int("too_far", stats.tooFar),
		slog.Int("no_token", stats.noToken),
		slog.Int("passed", stats.passed),
	)
	return markets
}

// admit applies the closed, end-date, window and token checks to one market.
func admit(ev *APIEvent, m *APIMarket, earliest, latest time.Time, stats *filterStats) (domain.Market, bool) {
	stats.total++
	if bool(m.Closed) {
		stats.closed++
		return domain.Market{}, false
	}
	end, ok := m.endTime()
	if !ok {
		stats.noEndDate++
		return domain.Market{}, false
	}
	if end.Before(earliest) {
		stats.expired++
		return domain.Market{}, false
	}
	if end.After(latest) {
		stats.tooFar++
		return domain.Market{}, false
	}
	if len(m.ClobTokenIDs) < 2 || m.ClobTokenIDs[0] == "" {
		stats.noToken++
		return domain.Market{}, false
	}
	stats.passed++
	return m.ToDomainMarket(ev, end), true
}
