package domain

import (
	"math"
	"time"
)

// Market is a sports market snapshot produced by a single feed scan.
// Prices are on the 0-1 scale.
type Market struct {
	ID          string
	ConditionID string
	Question    string
	Category    string
	EndDate     time.Time
	YesPrice    float64
	NoPrice     float64
	Volume      float64
	Liquidity   float64
	TokenID     string // "Yes" outcome token
	Outcomes    []string
}

// YesPricePct returns the "Yes" price on the 0-100 scale, rounded to four
// decimals to drop float noise from the conversion.
func (m Market) YesPricePct() float64 {
	return math.Round(m.YesPrice*1e6) / 1e4
}

// MonitoredStage is the lifecycle stage of a monitored market.
type MonitoredStage string

const (
	StageDiscovered   MonitoredStage = "discovered"
	StagePendingEntry MonitoredStage = "pending_entry"
	StagePositioned   MonitoredStage = "positioned"
	StageClosed       MonitoredStage = "closed"
)

// MonitoredMarket tracks a market that crossed the entry threshold.
// Thresholds and CurrentPrice are on the 0-100 scale.
type MonitoredMarket struct {
	MarketID      string
	TokenID       string
	Question      string
	EntryPrice    float64
	StopLossPrice float64
	CurrentPrice  float64
	IsMonitoring  bool
	HasPosition   bool
	PositionSize  float64
	EntryPending  bool
	LastCheck     time.Time
	CreatedAt     time.Time
}

// Stage derives the lifecycle stage from the monitoring flags.
func (m MonitoredMarket) Stage() MonitoredStage {
	switch {
	case m.HasPosition:
		return StagePositioned
	case !m.IsMonitoring:
		return StageClosed
	case m.EntryPending:
		return StagePendingEntry
	default:
		return StageDiscovered
	}
}

// ShouldStopOut reports whether the last observed price is at or below the stop.
func (m MonitoredMarket) ShouldStopOut() bool {
	return m.HasPosition && m.CurrentPrice > 0 && m.CurrentPrice <= m.StopLossPrice
}
