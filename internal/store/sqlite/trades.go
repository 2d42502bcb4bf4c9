package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/tailbot/internal/domain"
)

// TradeStore implements domain.TradeStore.
type TradeStore struct {
	db *sql.DB
}

// Record appends a trade; the ID is assigned by the database.
func (s *TradeStore) Record(ctx context.Context, t domain.Trade) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trades (order_id, market_id, side, price, size, amount, pnl, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.OrderID, t.MarketID, string(t.Side), t.Price, t.Size, t.Amount, t.PnL, t.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: record trade for order %s: %w", t.OrderID, err)
	}
	return nil
}

// DailyPnL sums the realized PnL of SELL trades on the UTC day of day.
func (s *TradeStore) DailyPnL(ctx context.Context, day time.Time) (float64, error) {
	start, end := dayBounds(day)
	var pnl float64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(pnl), 0) FROM trades
		WHERE side = ? AND created_at >= ? AND created_at < ?`,
		string(domain.OrderSideSell), start.UnixMilli(), end.UnixMilli(),
	).Scan(&pnl)
	if err != nil {
		return 0, fmt.Errorf("sqlite: daily pnl: %w", err)
	}
	return pnl, nil
}

// DailyStats aggregates the trades of the UTC day of day.
func (s *TradeStore) DailyStats(ctx context.Context, day time.Time) (domain.DailyStats, error) {
	start, end := dayBounds(day)
	stats := domain.DailyStats{Date: start}
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(amount), 0),
			COALESCE(SUM(CASE WHEN side = ? THEN pnl ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN pnl > 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN pnl < 0 THEN 1 ELSE 0 END), 0)
		FROM trades WHERE created_at >= ? AND created_at < ?`,
		string(domain.OrderSideSell), start.UnixMilli(), end.UnixMilli(),
	).Scan(&stats.TotalTrades, &stats.TotalVolume, &stats.RealizedPnL, &stats.WinTrades, &stats.LossTrades)
	if err != nil {
		return domain.DailyStats{}, fmt.Errorf("sqlite: daily stats: %w", err)
	}
	return stats, nil
}

// ListSince returns trades created at or after since, oldest first.
func (s *TradeStore) ListSince(ctx context.Context, since time.Time) ([]domain.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, market_id, side, price, size, amount, pnl, created_at
		FROM trades WHERE created_at >= ? ORDER BY created_at, id`, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("sqlite: list trades: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Trade, 0)
	for rows.Next() {
		var t domain.Trade
		var side string
		var created int64
		if err := rows.Scan(&t.ID, &t.OrderID, &t.MarketID, &side, &t.Price, &t.Size, &t.Amount, &t.PnL, &created); err != nil {
			return nil, fmt.Errorf("sqlite: scan trade: %w", err)
		}
		t.Side = domain.OrderSide(side)
		t.CreatedAt = fromMillis(created)
		out = append(out, t)
	}
	return out, rows.Err()
}

// AuditStore implements domain.AuditStore. Details are stored as JSON text.
type AuditStore struct {
	db *sql.DB
}

// Log appends an audit entry.
func (s *AuditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	raw, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("sqlite: marshal audit detail: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (event, detail, created_at) VALUES (?, ?, ?)`,
		event, string(raw), time.Now().UnixMilli(),
	); err != nil {
		return fmt.Errorf("sqlite: log audit event %s: %w", event, err)
	}
	return nil
}

// List returns audit entries, newest first.
func (s *AuditStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	q, args := withListOpts(`SELECT id, event, detail, created_at FROM audit_log WHERE 1=1`, nil, "created_at", opts)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list audit entries: %w", err)
	}
	defer rows.Close()

	out := make([]domain.AuditEntry, 0)
	for rows.Next() {
		var e domain.AuditEntry
		var detail sql.NullString
		var created int64
		if err := rows.Scan(&e.ID, &e.Event, &detail, &created); err != nil {
			return nil, fmt.Errorf("sqlite: scan audit entry: %w", err)
		}
		if detail.Valid && detail.String != "" && detail.String != "null" {
			if err := json.Unmarshal([]byte(detail.String), &e.Detail); err != nil {
				return nil, fmt.Errorf("sqlite: unmarshal audit detail: %w", err)
			}
		}
		e.CreatedAt = fromMillis(created)
		out = append(out, e)
	}
	return out, rows.Err()
}
