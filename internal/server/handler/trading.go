package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/tailbot/internal/domain"
	"github.com/alanyoungcy/tailbot/internal/trader"
)

// Scheduler is the part of trader.Scheduler the trading routes drive.
type Scheduler interface {
	Status() trader.Status
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Settings() domain.TradingSettings
	UpdateSettings(next domain.TradingSettings) error
	Monitored() []domain.MonitoredMarket
	ManualBuy(ctx context.Context, req trader.ManualBuyRequest) (domain.Order, error)
	ManualSell(ctx context.Context, marketID string) (domain.Position, error)
}

// TradingHandler serves scheduler control, settings and manual trades.
type TradingHandler struct {
	sched  Scheduler
	mode   string
	logger *slog.Logger
}

func NewTradingHandler(sched Scheduler, mode string, logger *slog.Logger) *TradingHandler {
	return &TradingHandler{sched: sched, mode: mode, logger: logger.With(slog.String("handler", "trading"))}
}

type statusResponse struct {
	Mode string `json:"mode"`
	trader.Status
}

// GetStatus reports the scheduler state.
// GET /api/status
func (h *TradingHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{Mode: h.mode, Status: h.sched.Status()})
}

// Start starts the scan and monitor loops.
// POST /api/trading/start
func (h *TradingHandler) Start(w http.ResponseWriter, r *http.Request) {
	if err := h.sched.Start(r.Context()); err != nil {
		h.fail(w, r, "start trading", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"running": true})
}

// Stop stops the loops, waiting for in-flight orders.
// POST /api/trading/stop
func (h *TradingHandler) Stop(w http.ResponseWriter, r *http.Request) {
	if err := h.sched.Stop(r.Context()); err != nil {
		h.fail(w, r, "stop trading", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"running": false})
}

type settingsView struct {
	EntryPrice         float64 `json:"entry_price"`
	StopLossPrice      float64 `json:"stop_loss_price"`
	OrderAmount        float64 `json:"order_amount"`
	MaxPositionAmount  float64 `json:"max_position_amount"`
	TimeFilterHours    float64 `json:"time_filter_hours"`
	GraceWindow        string  `json:"grace_window"`
	ScanInterval       string  `json:"scan_interval"`
	PriceCheckInterval string  `json:"price_check_interval"`
	MaxDailyLoss       float64 `json:"max_daily_loss"`
	MaxOpenPositions   int     `json:"max_open_positions"`
	AutoTradingEnabled bool    `json:"auto_trading_enabled"`
}

func newSettingsView(s domain.TradingSettings) settingsView {
	return settingsView{
		EntryPrice:         s.EntryPrice,
		StopLossPrice:      s.StopLossPrice,
		OrderAmount:        s.OrderAmount,
		MaxPositionAmount:  s.MaxPositionAmount,
		TimeFilterHours:    s.TimeFilterHours,
		GraceWindow:        s.GraceWindow.String(),
		ScanInterval:       s.ScanInterval.String(),
		PriceCheckInterval: s.PriceCheckInterval.String(),
		MaxDailyLoss:       s.MaxDailyLoss,
		MaxOpenPositions:   s.MaxOpenPositions,
		AutoTradingEnabled: s.AutoTradingEnabled,
	}
}

// settingsPatch is a partial update; absent fields keep their value.
type settingsPatch struct {
	EntryPrice         *float64 `json:"entry_price"`
	StopLossPrice      *float64 `json:"stop_loss_price"`
	OrderAmount        *float64 `json:"order_amount"`
	MaxPositionAmount  *float64 `json:"max_position_amount"`
	TimeFilterHours    *float64 `json:"time_filter_hours"`
	GraceWindow        *string  `json:"grace_window"`
	ScanInterval       *string  `json:"scan_interval"`
	PriceCheckInterval *string  `json:"price_check_interval"`
	MaxDailyLoss       *float64 `json:"max_daily_loss"`
	MaxOpenPositions   *int     `json:"max_open_positions"`
	AutoTradingEnabled *bool    `json:"auto_trading_enabled"`
}

func (p settingsPatch) apply(s domain.TradingSettings) (domain.TradingSettings, error) {
	setF := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}
	setF(&s.EntryPrice, p.EntryPrice)
	setF(&s.StopLossPrice, p.StopLossPrice)
	setF(&s.OrderAmount, p.OrderAmount)
	setF(&s.MaxPositionAmount, p.MaxPositionAmount)
	setF(&s.TimeFilterHours, p.TimeFilterHours)
	setF(&s.MaxDailyLoss, p.MaxDailyLoss)
	if p.MaxOpenPositions != nil {
		s.MaxOpenPositions = *p.MaxOpenPositions
	}
	if p.AutoTradingEnabled != nil {
		s.AutoTradingEnabled = *p.AutoTradingEnabled
	}

	durations := []struct {
		name string
		src  *string
		dst  *time.Duration
	}{
		{"grace_window", p.GraceWindow, &s.GraceWindow},
		{"scan_interval", p.ScanInterval, &s.ScanInterval},
		{"price_check_interval", p.PriceCheckInterval, &s.PriceCheckInterval},
	}
	for _, d := range durations {
		if d.src == nil {
			continue
		}
		v, err := time.ParseDuration(*d.src)
		if err != nil {
			return s, &domain.ValidationError{Field: d.name, Reason: err.Error()}
		}
		*d.dst = v
	}
	return s, nil
}

// GetConfig returns the live trading settings.
// GET /api/config/trading
func (h *TradingHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newSettingsView(h.sched.Settings()))
}

// UpdateConfig applies a partial settings update after validation.
// PUT /api/config/trading
func (h *TradingHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var patch settingsPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	next, err := patch.apply(h.sched.Settings())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.sched.UpdateSettings(next); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, newSettingsView(h.sched.Settings()))
}

// ListMonitored returns every market the scheduler has registered.
// GET /api/markets/monitored
func (h *TradingHandler) ListMonitored(w http.ResponseWriter, r *http.Request) {
	markets := mapSlice(h.sched.Monitored(), newMonitoredView)
	writeJSON(w, http.StatusOK, map[string]any{"markets": markets, "count": len(markets)})
}

// Buy places a manual entry.
// POST /api/trade/buy
func (h *TradingHandler) Buy(w http.ResponseWriter, r *http.Request) {
	var req trader.ManualBuyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	order, err := h.sched.ManualBuy(r.Context(), req)
	if err != nil {
		h.fail(w, r, "manual buy", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": newOrderView(order)})
}

// Sell closes the open position in a market.
// POST /api/trade/sell/{market_id}
func (h *TradingHandler) Sell(w http.ResponseWriter, r *http.Request) {
	marketID := r.PathValue("market_id")
	pos, err := h.sched.ManualSell(r.Context(), marketID)
	if err != nil {
		h.fail(w, r, "manual sell", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"position": newPositionView(pos)})
}

func (h *TradingHandler) fail(w http.ResponseWriter, r *http.Request, action string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError && !errors.Is(err, domain.ErrTradingDisabled) {
		h.logger.ErrorContext(r.Context(), "handler: "+action+" failed", slog.String("error", err.Error()))
	}
	writeError(w, status, err.Error())
}
