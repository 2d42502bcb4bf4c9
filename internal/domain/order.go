package domain

import "time"

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// Code returns the on-chain side encoding (0 = BUY, 1 = SELL).
func (s OrderSide) Code() int {
	if s == OrderSideSell {
		return 1
	}
	return 0
}

// OrderType indicates the time-in-force policy.
type OrderType string

const (
	OrderTypeGTC OrderType = "GTC" // Good-Till-Cancelled
	OrderTypeFOK OrderType = "FOK" // Fill-Or-Kill
)

// OrderStatus tracks the order lifecycle.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusOpen      OrderStatus = "OPEN"
	OrderStatusFilled    OrderStatus = "FILLED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusFailed    OrderStatus = "FAILED"
)

var orderStatusRank = map[OrderStatus]int{
	OrderStatusPending: 0,
	OrderStatusOpen:    1,
	OrderStatusFilled:  2,
}

// Terminal reports whether no further transition is allowed.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusFailed || s == OrderStatusCancelled || s == OrderStatusFilled
}

// CanTransition reports whether moving from s to next is legal. Statuses only
// move forward; FAILED and CANCELLED end the lifecycle.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	if s.Terminal() {
		return false
	}
	switch next {
	case OrderStatusFailed, OrderStatusCancelled:
		return true
	}
	return orderStatusRank[next] > orderStatusRank[s]
}

// TriggerType records what caused an order.
type TriggerType string

const (
	TriggerEntry    TriggerType = "ENTRY"
	TriggerStopLoss TriggerType = "STOP_LOSS"
	TriggerManual   TriggerType = "MANUAL"
)

// Order is an order as submitted to the exchange. Price is on the 0-100 scale,
// Size is in outcome tokens and Amount in USDC.
type Order struct {
	ID           string
	MarketID     string
	TokenID      string
	Side         OrderSide
	Type         OrderType
	Price        float64
	Size         float64
	Amount       float64
	Status       OrderStatus
	FilledSize   float64
	TriggerType  TriggerType
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// OrderIntent is a human-facing trading request handed to the order gateway.
// BUY intents carry Amount (USDC); SELL intents carry Size (tokens).
type OrderIntent struct {
	MarketID    string
	TokenID     string
	Side        OrderSide
	Price       float64
	Amount      float64
	Size        float64
	MarketOrder bool
	Trigger     TriggerType
}
