package polymarket_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tailbot/internal/platform/polymarket"
)

var feedNow = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func gammaMarket(id string, end time.Time, extra map[string]any) map[string]any {
	m := map[string]any{
		"id":            id,
		"conditionId":   "0xcond-" + id,
		"question":      "Will team " + id + " win?",
		"closed":        false,
		"endDate":       end.Format(time.RFC3339),
		"clobTokenIds":  `["tok-` + id + `-yes","tok-` + id + `-no"]`,
		"outcomes":      `["Yes","No"]`,
		"outcomePrices": `["0.92","0.08"]`,
		"volume":        "1520.5",
		"liquidity":     300,
	}
	for k, v := range extra {
		m[k] = v
	}
	return m
}

func newFeed(t *testing.T, handler http.HandlerFunc) *polymarket.MarketFeed {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	gamma := polymarket.NewGammaClient(polymarket.GammaConfig{BaseURL: srv.URL, RatePerSec: 100, Burst: 10}, discardLogger())
	feed := polymarket.NewMarketFeed(gamma, 50, discardLogger())
	feed.SetClock(func() time.Time { return feedNow })
	return feed
}

func serveEvents(events ...map[string]any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(events)
	}
}

func TestMarketFeed_QueryParameters(t *testing.T) {
	var got *http.Request
	feed := newFeed(t, func(w http.ResponseWriter, r *http.Request) {
		got = r
		_, _ = w.Write([]byte(`[]`))
	})

	markets := feed.Fetch(context.Background(), polymarket.FeedWindow{Lookahead: time.Hour, Grace: 2 * time.Hour})
	assert.Empty(t, markets)

	require.NotNil(t, got)
	assert.Equal(t, "/events", got.URL.Path)
	q := got.URL.Query()
	assert.Equal(t, "false", q.Get("closed"))
	assert.Equal(t, "true", q.Get("active"))
	assert.Equal(t, "sports", q.Get("tag_slug"))
	assert.Equal(t, "50", q.Get("limit"))
	assert.Equal(t, "endDate", q.Get("order"))
	assert.Equal(t, "2026-03-14T16:00:00Z", q.Get("end_date_min"))
	assert.Equal(t, "2026-03-14T19:00:00Z", q.Get("end_date_max"))
}

func TestMarketFeed_AdmitsAndConverts(t *testing.T) {
	feed := newFeed(t, serveEvents(map[string]any{
		"id":    "ev1",
		"title": "Lakers vs Celtics",
		"tags":  []map[string]any{{"label": "NBA"}, {"label": "Basketball"}},
		"markets": []any{
			gammaMarket("a", feedNow.Add(30*time.Minute), nil),
		},
	}))

	markets := feed.Fetch(context.Background(), polymarket.FeedWindow{Lookahead: time.Hour})
	require.Len(t, markets, 1)

	m := markets[0]
	assert.Equal(t, "0xcond-a", m.ID)
	assert.Equal(t, "tok-a-yes", m.TokenID)
	assert.Equal(t, "NBA, Basketball", m.Category)
	assert.InDelta(t, 0.92, m.YesPrice, 1e-9)
	assert.InDelta(t, 0.08, m.NoPrice, 1e-9)
	assert.InDelta(t, 1520.5, m.Volume, 1e-9)
	assert.InDelta(t, 300, m.Liquidity, 1e-9)
	assert.Equal(t, []string{"Yes", "No"}, m.Outcomes)
	assert.True(t, m.EndDate.Equal(feedNow.Add(30*time.Minute)))
}

func TestMarketFeed_ClosedNeverAdmitted(t *testing.T) {
	feed := newFeed(t, serveEvents(map[string]any{
		"id": "ev1",
		"markets": []any{
			gammaMarket("bool", feedNow.Add(10*time.Minute), map[string]any{"closed": true}),
			gammaMarket("str", feedNow.Add(10*time.Minute), map[string]any{"closed": "true"}),
		},
	}))

	assert.Empty(t, feed.Fetch(context.Background(), polymarket.FeedWindow{Lookahead: time.Hour}))
}

func TestMarketFeed_LookaheadBoundary(t *testing.T) {
	const eps = time.Second
	feed := newFeed(t, serveEvents(map[string]any{
		"id": "ev1",
		"markets": []any{
			gammaMarket("inside", feedNow.Add(time.Hour-eps), nil),
			gammaMarket("outside", feedNow.Add(time.Hour+eps), nil),
			gammaMarket("far", feedNow.Add(48*time.Hour), nil),
		},
	}))

	markets := feed.Fetch(context.Background(), polymarket.FeedWindow{Lookahead: time.Hour})
	require.Len(t, markets, 1)
	assert.Equal(t, "0xcond-inside", markets[0].ID)
}

func TestMarketFeed_GraceWindow(t *testing.T) {
	feed := newFeed(t, serveEvents(map[string]any{
		"id": "ev1",
		"markets": []any{
			gammaMarket("live", feedNow.Add(-30*time.Minute), nil),
			gammaMarket("stale", feedNow.Add(-3*time.Hour), nil),
		},
	}))

	markets := feed.Fetch(context.Background(), polymarket.FeedWindow{Lookahead: time.Hour, Grace: 2 * time.Hour})
	require.Len(t, markets, 1)
	assert.Equal(t, "0xcond-live", markets[0].ID)

	none := feed.Fetch(context.Background(), polymarket.FeedWindow{Lookahead: time.Hour})
	assert.Empty(t, none, "without grace a past end date is excluded")
}

func TestMarketFeed_TolerantDecoding(t *testing.T) {
	end := feedNow.Add(20 * time.Minute)
	feed := newFeed(t, serveEvents(map[string]any{
		"id": "ev1",
		"markets": []any{
			// Native arrays instead of JSON strings.
			gammaMarket("native", end, map[string]any{
				"clobTokenIds":  []string{"n1", "n2"},
				"outcomePrices": []float64{0.95, 0.05},
				"outcomes":      nil,
			}),
			// Malformed tokens are treated as empty and the market is skipped.
			gammaMarket("broken", end, map[string]any{"clobTokenIds": "[not json"}),
			// Single token is not tradable.
			gammaMarket("single", end, map[string]any{"clobTokenIds": `["only"]`}),
			// Missing end date.
			gammaMarket("noend", end, map[string]any{"endDate": ""}),
		},
	}))

	markets := feed.Fetch(context.Background(), polymarket.FeedWindow{Lookahead: time.Hour})
	require.Len(t, markets, 1)
	assert.Equal(t, "n1", markets[0].TokenID)
	assert.InDelta(t, 0.95, markets[0].YesPrice, 1e-9)
	assert.Equal(t, []string{"Yes", "No"}, markets[0].Outcomes)
	assert.Equal(t, "Sports", markets[0].Category)
}

func TestMarketFeed_PriceFallback(t *testing.T) {
	end := feedNow.Add(20 * time.Minute)
	feed := newFeed(t, serveEvents(map[string]any{
		"id": "ev1",
		"markets": []any{
			gammaMarket("ask", end, map[string]any{"outcomePrices": nil, "bestAsk": 0.91}),
			gammaMarket("last", end, map[string]any{"outcomePrices": `["0","1"]`, "lastTradePrice": "0.9"}),
			gammaMarket("noid", end, map[string]any{"conditionId": ""}),
		},
	}))

	markets := feed.Fetch(context.Background(), polymarket.FeedWindow{Lookahead: time.Hour})
	require.Len(t, markets, 3)

	assert.InDelta(t, 0.91, markets[0].YesPrice, 1e-9)
	assert.InDelta(t, 0.09, markets[0].NoPrice, 1e-9)
	assert.InDelta(t, 0.9, markets[1].YesPrice, 1e-9)
	assert.Equal(t, "noid", markets[2].ID, "falls back to the gamma id")
}

func TestMarketFeed_UpstreamFailureIsEmpty(t *testing.T) {
	feed := newFeed(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	markets := feed.Fetch(context.Background(), polymarket.FeedWindow{Lookahead: time.Hour})
	assert.NotNil(t, markets)
	assert.Empty(t, markets)

	garbage := newFeed(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"not":"a list"}`))
	})
	assert.Empty(t, garbage.Fetch(context.Background(), polymarket.FeedWindow{Lookahead: time.Hour}))
}
