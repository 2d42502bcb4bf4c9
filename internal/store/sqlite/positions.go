package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/alanyoungcy/tailbot/internal/domain"
)

// PositionStore implements domain.PositionStore.
type PositionStore struct {
	db *sql.DB
}

// Save upserts the position by ID.
func (s *PositionStore) Save(ctx context.Context, p domain.Position) error {
	var closed sql.NullInt64
	if p.ClosedAt != nil {
		closed = sql.NullInt64{Int64: p.ClosedAt.UnixMilli(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO positions (
			id, market_id, token_id, market_question, size, avg_price, current_price,
			cost, value, unrealized_pnl, realized_pnl, status, stop_loss_price,
			stop_loss_triggered, opened_at, closed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			size                = excluded.size,
			avg_price           = excluded.avg_price,
			current_price       = excluded.current_price,
			cost                = excluded.cost,
			value               = excluded.value,
			unrealized_pnl      = excluded.unrealized_pnl,
			realized_pnl        = excluded.realized_pnl,
			status              = excluded.status,
			stop_loss_price     = excluded.stop_loss_price,
			stop_loss_triggered = excluded.stop_loss_triggered,
			closed_at           = excluded.closed_at`,
		p.ID, p.MarketID, p.TokenID, p.MarketQuestion, p.Size, p.AvgPrice, p.CurrentPrice,
		p.Cost, p.Value, p.UnrealizedPnL, p.RealizedPnL, string(p.Status), p.StopLossPrice,
		p.StopLossTriggered, toMillis(p.OpenedAt), closed,
	)
	if err != nil {
		return fmt.Errorf("sqlite: save position %s: %w", p.ID, err)
	}
	return nil
}

const positionCols = `id, market_id, token_id, market_question, size, avg_price, current_price,
	cost, value, unrealized_pnl, realized_pnl, status, stop_loss_price,
	stop_loss_triggered, opened_at, closed_at`

func scanPosition(sc interface{ Scan(...any) error }) (domain.Position, error) {
	var p domain.Position
	var status string
	var opened int64
	var closed sql.NullInt64
	if err := sc.Scan(
		&p.ID, &p.MarketID, &p.TokenID, &p.MarketQuestion, &p.Size, &p.AvgPrice, &p.CurrentPrice,
		&p.Cost, &p.Value, &p.UnrealizedPnL, &p.RealizedPnL, &status, &p.StopLossPrice,
		&p.StopLossTriggered, &opened, &closed,
	); err != nil {
		return domain.Position{}, err
	}
	p.Status = domain.PositionStatus(status)
	p.OpenedAt = fromMillis(opened)
	if closed.Valid {
		t := fromMillis(closed.Int64)
		p.ClosedAt = &t
	}
	return p, nil
}

func (s *PositionStore) query(ctx context.Context, query string, args ...any) ([]domain.Position, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Position, 0)
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetOpenByMarket returns the open position in marketID or domain.ErrNotFound.
func (s *PositionStore) GetOpenByMarket(ctx context.Context, marketID string) (domain.Position, error) {
	p, err := scanPosition(s.db.QueryRowContext(ctx,
		`SELECT `+positionCols+` FROM positions WHERE market_id = ? AND status = ? ORDER BY opened_at DESC LIMIT 1`,
		marketID, string(domain.PositionStatusOpen)))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Position{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Position{}, fmt.Errorf("sqlite: get open position %s: %w", marketID, err)
	}
	return p, nil
}

// ListOpen returns open positions, oldest first.
func (s *PositionStore) ListOpen(ctx context.Context) ([]domain.Position, error) {
	out, err := s.query(ctx, `SELECT `+positionCols+` FROM positions WHERE status = ? ORDER BY opened_at`,
		string(domain.PositionStatusOpen))
	if err != nil {
		return nil, fmt.Errorf("sqlite: list open positions: %w", err)
	}
	return out, nil
}

// ListClosed returns closed positions, most recently closed first.
func (s *PositionStore) ListClosed(ctx context.Context, opts domain.ListOpts) ([]domain.Position, error) {
	q, args := withListOpts(`SELECT `+positionCols+` FROM positions WHERE status = ?`,
		[]any{string(domain.PositionStatusClosed)}, "closed_at", opts)
	out, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list closed positions: %w", err)
	}
	return out, nil
}

// CountOpen returns the number of open positions.
func (s *PositionStore) CountOpen(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM positions WHERE status = ?`,
		string(domain.PositionStatusOpen)).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: count open positions: %w", err)
	}
	return n, nil
}
