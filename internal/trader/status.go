package trader

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/tailbot/internal/domain"
)

// Status is a point-in-time view of the scheduler.
type Status struct {
	Running          bool       `json:"running"`
	TradingEnabled   bool       `json:"trading_enabled"`
	AutoTrading      bool       `json:"auto_trading"`
	MonitoredMarkets int        `json:"monitored_markets"`
	OpenPositions    int        `json:"open_positions"`
	DailyPnL         float64    `json:"daily_pnl"`
	LastScan         *time.Time `json:"last_scan,omitempty"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
}

func (s *Scheduler) Status() Status {
	monitored := 0
	for _, m := range s.registry.Snapshot() {
		if m.IsMonitoring {
			monitored++
		}
	}
	st := Status{
		TradingEnabled:   s.gateway != nil,
		MonitoredMarkets: monitored,
		OpenPositions:    len(s.registry.Positioned()),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	st.Running = s.running
	st.AutoTrading = s.settings.AutoTradingEnabled
	st.DailyPnL = s.dailyPnL
	if !s.lastScan.IsZero() {
		t := s.lastScan
		st.LastScan = &t
	}
	if s.running {
		t := s.startedAt
		st.StartedAt = &t
	}
	return st
}

// Monitored returns a snapshot of the registry.
func (s *Scheduler) Monitored() []domain.MonitoredMarket {
	return s.registry.Snapshot()
}

// DailyPnL returns the realized pnl of the current UTC day.
func (s *Scheduler) DailyPnL() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dailyPnL
}

// RefreshDailyPnL reloads today's realized pnl from the trade store.
func (s *Scheduler) RefreshDailyPnL(ctx context.Context) error {
	day := utcDay(s.now())
	pnl, err := s.store.Trades().DailyPnL(ctx, day)
	if err != nil {
		return fmt.Errorf("trader: daily pnl: %w", err)
	}
	s.mu.Lock()
	s.dailyPnL = pnl
	s.pnlDay = day
	s.mu.Unlock()
	return nil
}

func (s *Scheduler) addDailyPnL(pnl float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dailyPnL += pnl
}

func (s *Scheduler) dailyLossHit(settings domain.TradingSettings) bool {
	return settings.MaxDailyLoss > 0 && s.DailyPnL() <= -settings.MaxDailyLoss
}

// rollDay sends the previous day's summary once the UTC date changes and
// resets the daily pnl.
func (s *Scheduler) rollDay(ctx context.Context) {
	today := utcDay(s.now())
	s.mu.Lock()
	prev := s.pnlDay
	s.mu.Unlock()
	if prev.IsZero() || !today.After(prev) {
		return
	}

	stats, err := s.store.Trades().DailyStats(ctx, prev)
	if err != nil {
		s.logger.WarnContext(ctx, "trader: daily stats failed", slog.String("error", err.Error()))
	} else {
		stats.Date = prev
		s.notifier.NotifyDailySummary(ctx, stats)
	}
	if err := s.RefreshDailyPnL(ctx); err != nil {
		s.logger.WarnContext(ctx, "trader: refresh daily pnl failed", slog.String("error", err.Error()))
		s.mu.Lock()
		s.dailyPnL = 0
		s.pnlDay = today
		s.mu.Unlock()
	}
}

func utcDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
