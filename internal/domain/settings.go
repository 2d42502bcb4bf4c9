package domain

import (
	"errors"
	"fmt"
	"time"
)

// TradingSettings are the operator-tunable strategy parameters.
type TradingSettings struct {
	EntryPrice         float64       `json:"entry_price"`
	StopLossPrice      float64       `json:"stop_loss_price"`
	OrderAmount        float64       `json:"order_amount"`
	MaxPositionAmount  float64       `json:"max_position_amount"`
	TimeFilterHours    float64       `json:"time_filter_hours"`
	GraceWindow        time.Duration `json:"grace_window"`
	ScanInterval       time.Duration `json:"scan_interval"`
	PriceCheckInterval time.Duration `json:"price_check_interval"`
	MaxDailyLoss       float64       `json:"max_daily_loss"`
	MaxOpenPositions   int           `json:"max_open_positions"`
	AutoTradingEnabled bool          `json:"auto_trading_enabled"`
}

// DefaultTradingSettings returns the stock strategy parameters.
func DefaultTradingSettings() TradingSettings {
	return TradingSettings{
		EntryPrice:         90,
		StopLossPrice:      85,
		OrderAmount:        10,
		MaxPositionAmount:  100,
		TimeFilterHours:    1,
		GraceWindow:        2 * time.Hour,
		ScanInterval:       30 * time.Second,
		PriceCheckInterval: 5 * time.Second,
		MaxDailyLoss:       50,
		MaxOpenPositions:   5,
	}
}

// Lookahead returns TimeFilterHours as a duration.
func (s TradingSettings) Lookahead() time.Duration {
	return time.Duration(s.TimeFilterHours * float64(time.Hour))
}

// Validate checks that thresholds and limits are coherent.
func (s TradingSettings) Validate() error {
	var errs []error
	if s.EntryPrice <= 0 || s.EntryPrice >= 100 {
		errs = append(errs, fmt.Errorf("entry_price must be in (0,100), got %v", s.EntryPrice))
	}
	if s.StopLossPrice <= 0 || s.StopLossPrice >= s.EntryPrice {
		errs = append(errs, fmt.Errorf("stop_loss_price must be in (0,entry_price), got %v", s.StopLossPrice))
	}
	if s.OrderAmount <= 0 {
		errs = append(errs, errors.New("order_amount must be positive"))
	}
	if s.MaxPositionAmount < s.OrderAmount {
		errs = append(errs, errors.New("max_position_amount must be at least order_amount"))
	}
	if s.TimeFilterHours <= 0 {
		errs = append(errs, errors.New("time_filter_hours must be positive"))
	}
	if s.GraceWindow < 0 {
		errs = append(errs, errors.New("grace_window must not be negative"))
	}
	if s.ScanInterval <= 0 || s.PriceCheckInterval <= 0 {
		errs = append(errs, errors.New("scan_interval and price_check_interval must be positive"))
	}
	if s.MaxDailyLoss < 0 {
		errs = append(errs, errors.New("max_daily_loss must not be negative"))
	}
	if s.MaxOpenPositions <= 0 {
		errs = append(errs, errors.New("max_open_positions must be positive"))
	}
	return errors.Join(errs...)
}
