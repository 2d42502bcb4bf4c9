package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/tailbot/internal/domain"
	"github.com/alanyoungcy/tailbot/internal/platform/polymarket"
)

// MarketSource lists sports markets settling inside a window.
type MarketSource interface {
	Fetch(ctx context.Context, w polymarket.FeedWindow) []domain.Market
}

// MarketHandler serves the sports market feed.
type MarketHandler struct {
	feed     MarketSource
	settings func() domain.TradingSettings
}

// NewMarketHandler uses settings for the default lookahead and grace window.
func NewMarketHandler(feed MarketSource, settings func() domain.TradingSettings) *MarketHandler {
	return &MarketHandler{feed: feed, settings: settings}
}

// ListSports returns markets settling within ?hours= (default: the trading
// time filter), including live ones inside the grace window.
// GET /api/markets/sports?hours=2
func (h *MarketHandler) ListSports(w http.ResponseWriter, r *http.Request) {
	s := h.settings()
	lookahead := s.Lookahead()
	if v := r.URL.Query().Get("hours"); v != "" {
		hours, err := strconv.ParseFloat(v, 64)
		if err != nil || hours <= 0 || hours > 168 {
			writeError(w, http.StatusBadRequest, "hours must be a number in (0, 168]")
			return
		}
		lookahead = time.Duration(hours * float64(time.Hour))
	}

	markets := h.feed.Fetch(r.Context(), polymarket.FeedWindow{Lookahead: lookahead, Grace: s.GraceWindow})
	views := mapSlice(markets, newMarketView)
	writeJSON(w, http.StatusOK, map[string]any{
		"markets": views,
		"count":   len(views),
		"hours":   lookahead.Hours(),
	})
}
