package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/alanyoungcy/tailbot/internal/domain"
)

// OrderStore implements domain.OrderStore.
type OrderStore struct {
	db *sql.DB
}

// Save inserts the order or updates the mutable fields of an existing one.
func (s *OrderStore) Save(ctx context.Context, o domain.Order) error {
	if o.ID == "" {
		return &domain.ValidationError{Field: "id", Reason: "order id must be set before saving"}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orders (
			id, market_id, token_id, side, order_type, price, size, amount,
			status, filled_size, trigger_type, error_message, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status        = excluded.status,
			filled_size   = excluded.filled_size,
			error_message = excluded.error_message,
			updated_at    = excluded.updated_at`,
		o.ID, o.MarketID, o.TokenID, string(o.Side), string(o.Type), o.Price, o.Size, o.Amount,
		string(o.Status), o.FilledSize, string(o.TriggerType), o.ErrorMessage,
		toMillis(o.CreatedAt), toMillis(o.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save order %s: %w", o.ID, err)
	}
	return nil
}

const orderCols = `id, market_id, token_id, side, order_type, price, size, amount,
	status, filled_size, trigger_type, error_message, created_at, updated_at`

func scanOrder(sc interface{ Scan(...any) error }) (domain.Order, error) {
	var o domain.Order
	var side, typ, status, trigger string
	var created, updated int64
	if err := sc.Scan(
		&o.ID, &o.MarketID, &o.TokenID, &side, &typ, &o.Price, &o.Size, &o.Amount,
		&status, &o.FilledSize, &trigger, &o.ErrorMessage, &created, &updated,
	); err != nil {
		return domain.Order{}, err
	}
	o.Side = domain.OrderSide(side)
	o.Type = domain.OrderType(typ)
	o.Status = domain.OrderStatus(status)
	o.TriggerType = domain.TriggerType(trigger)
	o.CreatedAt = fromMillis(created)
	o.UpdatedAt = fromMillis(updated)
	return o, nil
}

func (s *OrderStore) query(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// GetByID returns the order or domain.ErrNotFound.
func (s *OrderStore) GetByID(ctx context.Context, id string) (domain.Order, error) {
	o, err := scanOrder(s.db.QueryRowContext(ctx, `SELECT `+orderCols+` FROM orders WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("sqlite: get order %s: %w", id, err)
	}
	return o, nil
}

// ListByStatus returns orders in status, newest first.
func (s *OrderStore) ListByStatus(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error) {
	out, err := s.query(ctx, `SELECT `+orderCols+` FROM orders WHERE status = ? ORDER BY created_at DESC`, string(status))
	if err != nil {
		return nil, fmt.Errorf("sqlite: list orders by status: %w", err)
	}
	return out, nil
}

// ListRecent returns orders newest first.
func (s *OrderStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.Order, error) {
	q, args := withListOpts(`SELECT `+orderCols+` FROM orders WHERE 1=1`, nil, "created_at", opts)
	out, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list recent orders: %w", err)
	}
	return out, nil
}
