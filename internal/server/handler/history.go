package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/tailbot/internal/domain"
)

// HistoryHandler serves stored orders, closed positions and daily stats.
type HistoryHandler struct {
	store  domain.Store
	now    func() time.Time
	logger *slog.Logger
}

func NewHistoryHandler(store domain.Store, logger *slog.Logger) *HistoryHandler {
	return &HistoryHandler{store: store, now: time.Now, logger: logger.With(slog.String("handler", "history"))}
}

// RecentOrders lists the newest orders.
// GET /api/orders/recent?limit=50
func (h *HistoryHandler) RecentOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.store.Orders().ListRecent(r.Context(), parseListOpts(r))
	if err != nil {
		h.fail(w, r, "list orders", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": mapSlice(orders, newOrderView)})
}

// ClosedPositions lists positions by close time, newest first.
// GET /api/positions/history?limit=50
func (h *HistoryHandler) ClosedPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.store.Positions().ListClosed(r.Context(), parseListOpts(r))
	if err != nil {
		h.fail(w, r, "list closed positions", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"positions": mapSlice(positions, newPositionView)})
}

type dailyStatsView struct {
	Date        string  `json:"date"`
	TotalTrades int     `json:"total_trades"`
	TotalVolume float64 `json:"total_volume"`
	RealizedPnL float64 `json:"realized_pnl"`
	WinTrades   int     `json:"win_trades"`
	LossTrades  int     `json:"loss_trades"`
	WinRate     float64 `json:"win_rate"`
}

// DailyStats aggregates the trades of one UTC day (default today).
// GET /api/stats/daily?date=2026-03-14
func (h *HistoryHandler) DailyStats(w http.ResponseWriter, r *http.Request) {
	day := h.now().UTC()
	if v := r.URL.Query().Get("date"); v != "" {
		d, err := time.Parse(time.DateOnly, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		day = d
	}
	st, err := h.store.Trades().DailyStats(r.Context(), day)
	if err != nil {
		h.fail(w, r, "daily stats", err)
		return
	}

	view := dailyStatsView{
		Date:        day.Format(time.DateOnly),
		TotalTrades: st.TotalTrades,
		TotalVolume: st.TotalVolume,
		RealizedPnL: st.RealizedPnL,
		WinTrades:   st.WinTrades,
		LossTrades:  st.LossTrades,
	}
	if closed := st.WinTrades + st.LossTrades; closed > 0 {
		view.WinRate = float64(st.WinTrades) / float64(closed)
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *HistoryHandler) fail(w http.ResponseWriter, r *http.Request, action string, err error) {
	h.logger.ErrorContext(r.Context(), "handler: "+action+" failed", slog.String("error", err.Error()))
	writeError(w, http.StatusInternalServerError, "failed to "+action)
}
