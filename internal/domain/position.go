package domain

import "time"

// PositionStatus tracks whether a position is open or closed.
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "OPEN"
	PositionStatusClosed PositionStatus = "CLOSED"
)

// Position is a held "Yes" position in one market. Prices are on the 0-100 scale.
type Position struct {
	ID                string
	MarketID          string
	TokenID           string
	MarketQuestion    string
	Size              float64
	AvgPrice          float64
	CurrentPrice      float64
	Cost              float64
	Value             float64
	UnrealizedPnL     float64
	RealizedPnL       float64
	Status            PositionStatus
	StopLossPrice     float64
	StopLossTriggered bool
	OpenedAt          time.Time
	ClosedAt          *time.Time
}

// Refresh marks the position to the given price.
func (p *Position) Refresh(price float64) {
	p.CurrentPrice = price
	p.Value = p.Size * price / 100
	p.UnrealizedPnL = p.Value - p.Cost
}

// Close finalizes the position at the given exit value.
func (p *Position) Close(price, proceeds float64, stopLoss bool, at time.Time) {
	p.CurrentPrice = price
	p.Value = proceeds
	p.RealizedPnL = proceeds - p.Cost
	p.UnrealizedPnL = 0
	p.Status = PositionStatusClosed
	p.StopLossTriggered = stopLoss
	p.ClosedAt = &at
}
