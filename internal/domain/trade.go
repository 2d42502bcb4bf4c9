package domain

import "time"

// Trade is an executed fill recorded for PnL accounting.
type Trade struct {
	ID        int64
	OrderID   string
	MarketID  string
	Side      OrderSide
	Price     float64
	Size      float64
	Amount    float64
	PnL       float64
	CreatedAt time.Time
}

// DailyStats aggregates the trades of one UTC day.
type DailyStats struct {
	Date        time.Time
	TotalTrades int
	TotalVolume float64
	RealizedPnL float64
	WinTrades   int
	LossTrades  int
}
