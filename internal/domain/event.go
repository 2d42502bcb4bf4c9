package domain

import "time"

// Event channels published on the SignalBus.
const (
	ChannelTrading = "tailbot:events:trading"
	ChannelMarkets = "tailbot:events:markets"
)

// EventKind names a scheduler event.
type EventKind string

const (
	EventMarketDiscovered EventKind = "market.discovered"
	EventPriceUpdate      EventKind = "market.price"
	EventEntry            EventKind = "trade.entry"
	EventExit             EventKind = "trade.exit"
	EventSchedulerStarted EventKind = "scheduler.started"
	EventSchedulerStopped EventKind = "scheduler.stopped"
)

// Event is the JSON envelope streamed to dashboards.
type Event struct {
	Kind     EventKind      `json:"kind"`
	MarketID string         `json:"market_id,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
	At       time.Time      `json:"at"`
}
