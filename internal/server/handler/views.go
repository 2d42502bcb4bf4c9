package handler

import (
	"time"

	"github.com/alanyoungcy/tailbot/internal/domain"
)

type orderView struct {
	ID           string    `json:"id"`
	MarketID     string    `json:"market_id"`
	TokenID      string    `json:"token_id"`
	Side         string    `json:"side"`
	Type         string    `json:"order_type"`
	Price        float64   `json:"price"`
	Size         float64   `json:"size"`
	Amount       float64   `json:"amount"`
	Status       string    `json:"status"`
	FilledSize   float64   `json:"filled_size"`
	TriggerType  string    `json:"trigger_type,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func newOrderView(o domain.Order) orderView {
	return orderView{
		ID:           o.ID,
		MarketID:     o.MarketID,
		TokenID:      o.TokenID,
		Side:         string(o.Side),
		Type:         string(o.Type),
		Price:        o.Price,
		Size:         o.Size,
		Amount:       o.Amount,
		Status:       string(o.Status),
		FilledSize:   o.FilledSize,
		TriggerType:  string(o.TriggerType),
		ErrorMessage: o.ErrorMessage,
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
	}
}

type positionView struct {
	ID                string     `json:"id"`
	MarketID          string     `json:"market_id"`
	TokenID           string     `json:"token_id"`
	MarketQuestion    string     `json:"market_question"`
	Size              float64    `json:"size"`
	AvgPrice          float64    `json:"avg_price"`
	CurrentPrice      float64    `json:"current_price"`
	Cost              float64    `json:"cost"`
	Value             float64    `json:"value"`
	UnrealizedPnL     float64    `json:"unrealized_pnl"`
	RealizedPnL       float64    `json:"realized_pnl"`
	Status            string     `json:"status"`
	StopLossPrice     float64    `json:"stop_loss_price"`
	StopLossTriggered bool       `json:"stop_loss_triggered"`
	OpenedAt          time.Time  `json:"opened_at"`
	ClosedAt          *time.Time `json:"closed_at,omitempty"`
}

func newPositionView(p domain.Position) positionView {
	return positionView{
		ID:                p.ID,
		MarketID:          p.MarketID,
		TokenID:           p.TokenID,
		MarketQuestion:    p.MarketQuestion,
		Size:              p.Size,
		AvgPrice:          p.AvgPrice,
		CurrentPrice:      p.CurrentPrice,
		Cost:              p.Cost,
		Value:             p.Value,
		UnrealizedPnL:     p.UnrealizedPnL,
		RealizedPnL:       p.RealizedPnL,
		Status:            string(p.Status),
		StopLossPrice:     p.StopLossPrice,
		StopLossTriggered: p.StopLossTriggered,
		OpenedAt:          p.OpenedAt,
		ClosedAt:          p.ClosedAt,
	}
}

type monitoredView struct {
	MarketID      string    `json:"market_id"`
	TokenID       string    `json:"token_id"`
	Question      string    `json:"question"`
	Stage         string    `json:"stage"`
	EntryPrice    float64   `json:"entry_price"`
	StopLossPrice float64   `json:"stop_loss_price"`
	CurrentPrice  float64   `json:"current_price"`
	IsMonitoring  bool      `json:"is_monitoring"`
	HasPosition   bool      `json:"has_position"`
	PositionSize  float64   `json:"position_size"`
	LastCheck     time.Time `json:"last_check"`
	CreatedAt     time.Time `json:"created_at"`
}

func newMonitoredView(m domain.MonitoredMarket) monitoredView {
	return monitoredView{
		MarketID:      m.MarketID,
		TokenID:       m.TokenID,
		Question:      m.Question,
		Stage:         string(m.Stage()),
		EntryPrice:    m.EntryPrice,
		StopLossPrice: m.StopLossPrice,
		CurrentPrice:  m.CurrentPrice,
		IsMonitoring:  m.IsMonitoring,
		HasPosition:   m.HasPosition,
		PositionSize:  m.PositionSize,
		LastCheck:     m.LastCheck,
		CreatedAt:     m.CreatedAt,
	}
}

type marketView struct {
	ID          string    `json:"id"`
	ConditionID string    `json:"condition_id"`
	Question    string    `json:"question"`
	Category    string    `json:"category"`
	EndDate     time.Time `json:"end_date"`
	YesPrice    float64   `json:"yes_price"`
	NoPrice     float64   `json:"no_price"`
	Volume      float64   `json:"volume"`
	Liquidity   float64   `json:"liquidity"`
	TokenID     string    `json:"token_id"`
	Outcomes    []string  `json:"outcomes"`
}

func newMarketView(m domain.Market) marketView {
	return marketView{
		ID:          m.ID,
		ConditionID: m.ConditionID,
		Question:    m.Question,
		Category:    m.Category,
		EndDate:     m.EndDate,
		YesPrice:    m.YesPrice,
		NoPrice:     m.NoPrice,
		Volume:      m.Volume,
		Liquidity:   m.Liquidity,
		TokenID:     m.TokenID,
		Outcomes:    m.Outcomes,
	}
}

// mapSlice converts each element of in with f, never returning nil.
func mapSlice[T, V any](in []T, f func(T) V) []V {
	out := make([]V, 0, len(in))
	for _, v := range in {
		out = append(out, f(v))
	}
	return out
}
