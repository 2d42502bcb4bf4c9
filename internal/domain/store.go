package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// OrderStore persists trading orders.
type OrderStore interface {
	Save(ctx context.Context, order Order) error
	GetByID(ctx context.Context, id string) (Order, error)
	ListByStatus(ctx context.Context, status OrderStatus) ([]Order, error)
	ListRecent(ctx context.Context, opts ListOpts) ([]Order, error)
}

// PositionStore persists positions.
type PositionStore interface {
	Save(ctx context.Context, pos Position) error
	GetOpenByMarket(ctx context.Context, marketID string) (Position, error)
	ListOpen(ctx context.Context) ([]Position, error)
	ListClosed(ctx context.Context, opts ListOpts) ([]Position, error)
	CountOpen(ctx context.Context) (int, error)
}

// TradeStore persists executed trades and derives PnL from them.
type TradeStore interface {
	Record(ctx context.Context, trade Trade) error
	DailyPnL(ctx context.Context, day time.Time) (float64, error)
	DailyStats(ctx context.Context, day time.Time) (DailyStats, error)
	ListSince(ctx context.Context, since time.Time) ([]Trade, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// Store bundles the persistence collaborators the trader depends on.
type Store interface {
	Orders() OrderStore
	Positions() PositionStore
	Trades() TradeStore
	Audit() AuditStore
	Close()
}
