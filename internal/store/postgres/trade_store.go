package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/tailbot/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a new TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// Record appends a trade. The ID is assigned by the database.
func (s *TradeStore) Record(ctx context.Context, t domain.Trade) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	const query = `
		INSERT INTO trades (order_id, market_id, side, price, size, amount, pnl, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.pool.Exec(ctx, query,
		t.OrderID, t.MarketID, string(t.Side), t.Price, t.Size, t.Amount, t.PnL, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: record trade for order %s: %w", t.OrderID, err)
	}
	return nil
}

// dayBounds returns the UTC day containing t as [start, end).
func dayBounds(t time.Time) (time.Time, time.Time) {
	u := t.UTC()
	start := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.Add(24 * time.Hour)
}

// DailyPnL sums realized PnL over the SELL trades of the UTC day containing
// day.
func (s *TradeStore) DailyPnL(ctx context.Context, day time.Time) (float64, error) {
	start, end := dayBounds(day)
	var pnl float64
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(pnl), 0) FROM trades
		WHERE side = $1 AND created_at >= $2 AND created_at < $3`,
		string(domain.OrderSideSell), start, end,
	).Scan(&pnl)
	if err != nil {
		return 0, fmt.Errorf("postgres: daily pnl: %w", err)
	}
	return pnl, nil
}

// DailyStats aggregates the trades of the UTC day containing day.
func (s *TradeStore) DailyStats(ctx context.Context, day time.Time) (domain.DailyStats, error) {
	start, end := dayBounds(day)
	stats := domain.DailyStats{Date: start}
	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(amount), 0),
			COALESCE(SUM(pnl) FILTER (WHERE side = $1), 0),
			COUNT(*) FILTER (WHERE pnl > 0),
			COUNT(*) FILTER (WHERE pnl < 0)
		FROM trades
		WHERE created_at >= $2 AND created_at < $3`,
		string(domain.OrderSideSell), start, end,
	).Scan(&stats.TotalTrades, &stats.TotalVolume, &stats.RealizedPnL, &stats.WinTrades, &stats.LossTrades)
	if err != nil {
		return domain.DailyStats{}, fmt.Errorf("postgres: daily stats: %w", err)
	}
	return stats, nil
}

// ListSince returns trades created at or after since, oldest first.
func (s *TradeStore) ListSince(ctx context.Context, since time.Time) ([]domain.Trade, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, order_id, market_id, side, price, size, amount, pnl, created_at
		FROM trades WHERE created_at >= $1 ORDER BY created_at, id`, since)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades: %w", err)
	}
	defer rows.Close()

	trades := make([]domain.Trade, 0)
	for rows.Next() {
		var t domain.Trade
		var side string
		if err := rows.Scan(&t.ID, &t.OrderID, &t.MarketID, &side, &t.Price, &t.Size, &t.Amount, &t.PnL, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan trade: %w", err)
		}
		t.Side = domain.OrderSide(side)
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list trades rows: %w", err)
	}
	return trades, nil
}
