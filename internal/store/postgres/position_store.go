package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/tailbot/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

// Save upserts the position by ID.
func (s *PositionStore) Save(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (
			id, market_id, token_id, market_question, size, avg_price,
			current_price, cost, value, unrealized_pnl, realized_pnl,
			status, stop_loss_price, stop_loss_triggered, opened_at, closed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16
		)
		ON CONFLICT (id) DO UPDATE SET
			size                = EXCLUDED.size,
			avg_price           = EXCLUDED.avg_price,
			current_price       = EXCLUDED.current_price,
			cost                = EXCLUDED.cost,
			value               = EXCLUDED.value,
			unrealized_pnl      = EXCLUDED.unrealized_pnl,
			realized_pnl        = EXCLUDED.realized_pnl,
			status              = EXCLUDED.status,
			stop_loss_price     = EXCLUDED.stop_loss_price,
			stop_loss_triggered = EXCLUDED.stop_loss_triggered,
			closed_at           = EXCLUDED.closed_at`

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.MarketID, p.TokenID, p.MarketQuestion, p.Size, p.AvgPrice,
		p.CurrentPrice, p.Cost, p.Value, p.UnrealizedPnL, p.RealizedPnL,
		string(p.Status), p.StopLossPrice, p.StopLossTriggered, p.OpenedAt, p.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save position %s: %w", p.ID, err)
	}
	return nil
}

const positionSelectCols = `id, market_id, token_id, market_question, size, avg_price,
	current_price, cost, value, unrealized_pnl, realized_pnl,
	status, stop_loss_price, stop_loss_triggered, opened_at, closed_at`

func scanPosition(scanner interface{ Scan(dest ...any) error }) (domain.Position, error) {
	var p domain.Position
	var status string
	err := scanner.Scan(
		&p.ID, &p.MarketID, &p.TokenID, &p.MarketQuestion, &p.Size, &p.AvgPrice,
		&p.CurrentPrice, &p.Cost, &p.Value, &p.UnrealizedPnL, &p.RealizedPnL,
		&status, &p.StopLossPrice, &p.StopLossTriggered, &p.OpenedAt, &p.ClosedAt,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.Status = domain.PositionStatus(status)
	return p, nil
}

func scanPositionRows(rows pgx.Rows) ([]domain.Position, error) {
	positions := make([]domain.Position, 0)
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// GetOpenByMarket returns the open position in a market, or
// domain.ErrNotFound.
func (s *PositionStore) GetOpenByMarket(ctx context.Context, marketID string) (domain.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE market_id = $1 AND status = $2
		 ORDER BY opened_at DESC LIMIT 1`,
		marketID, string(domain.PositionStatusOpen))

	p, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get open position %s: %w", marketID, err)
	}
	return p, nil
}

// ListOpen returns all open positions, oldest first.
func (s *PositionStore) ListOpen(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions WHERE status = $1 ORDER BY opened_at`,
		string(domain.PositionStatusOpen))
	if err != nil {
		return nil, fmt.Errorf("postgres: list open positions: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan open positions: %w", err)
	}
	return positions, nil
}

// ListClosed returns closed positions, most recently closed first.
func (s *PositionStore) ListClosed(ctx context.Context, opts domain.ListOpts) ([]domain.Position, error) {
	query, args := withListOpts(
		`SELECT `+positionSelectCols+` FROM positions WHERE status = $1`,
		[]any{string(domain.PositionStatusClosed)}, "closed_at", opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list closed positions: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan closed positions: %w", err)
	}
	return positions, nil
}

// CountOpen returns the number of open positions.
func (s *PositionStore) CountOpen(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM positions WHERE status = $1`,
		string(domain.PositionStatusOpen)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: count open positions: %w", err)
	}
	return n, nil
}
