// Package sqlite implements the domain store interfaces on an embedded SQLite
// database (modernc.org/sqlite, no cgo). It is the default store for a
// single-instance deployment.
//
// Timestamps are stored as Unix milliseconds so day ranges compare as
// integers.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/alanyoungcy/tailbot/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS orders (
    id            TEXT PRIMARY KEY,
    market_id     TEXT    NOT NULL,
    token_id      TEXT    NOT NULL,
    side          TEXT    NOT NULL,
    order_type    TEXT    NOT NULL DEFAULT '',
    price         REAL    NOT NULL,
    size          REAL    NOT NULL DEFAULT 0,
    amount        REAL    NOT NULL DEFAULT 0,
    status        TEXT    NOT NULL,
    filled_size   REAL    NOT NULL DEFAULT 0,
    trigger_type  TEXT    NOT NULL DEFAULT '',
    error_message TEXT    NOT NULL DEFAULT '',
    created_at    INTEGER NOT NULL,
    updated_at    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
    id                  TEXT PRIMARY KEY,
    market_id           TEXT    NOT NULL,
    token_id            TEXT    NOT NULL,
    market_question     TEXT    NOT NULL DEFAULT '',
    size                REAL    NOT NULL,
    avg_price           REAL    NOT NULL,
    current_price       REAL    NOT NULL DEFAULT 0,
    cost                REAL    NOT NULL,
    value               REAL    NOT NULL DEFAULT 0,
    unrealized_pnl      REAL    NOT NULL DEFAULT 0,
    realized_pnl        REAL    NOT NULL DEFAULT 0,
    status              TEXT    NOT NULL,
    stop_loss_price     REAL    NOT NULL DEFAULT 0,
    stop_loss_triggered INTEGER NOT NULL DEFAULT 0,
    opened_at           INTEGER NOT NULL,
    closed_at           INTEGER
);

CREATE TABLE IF NOT EXISTS trades (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    order_id   TEXT    NOT NULL,
    market_id  TEXT    NOT NULL,
    side       TEXT    NOT NULL,
    price      REAL    NOT NULL,
    size       REAL    NOT NULL,
    amount     REAL    NOT NULL,
    pnl        REAL    NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_log (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    event      TEXT    NOT NULL,
    detail     TEXT,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_orders_status     ON orders(status);
CREATE INDEX IF NOT EXISTS idx_orders_created    ON orders(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_positions_market  ON positions(market_id, status);
CREATE INDEX IF NOT EXISTS idx_trades_created    ON trades(created_at);
CREATE INDEX IF NOT EXISTS idx_audit_created     ON audit_log(created_at DESC);
`

// Store bundles the SQLite-backed stores over one connection.
type Store struct {
	db        *sql.DB
	orders    *OrderStore
	positions *PositionStore
	trades    *TradeStore
	audit     *AuditStore
}

var _ domain.Store = (*Store)(nil)

// Open opens (or creates) the database at path and applies the schema.
// ":memory:" gives a private in-memory database.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("sqlite: create dir %q: %w", dir, err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}
	// single writer; also keeps one :memory: database alive
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}

	return &Store{
		db:        db,
		orders:    &OrderStore{db: db},
		positions: &PositionStore{db: db},
		trades:    &TradeStore{db: db},
		audit:     &AuditStore{db: db},
	}, nil
}

func (s *Store) Orders() domain.OrderStore       { return s.orders }
func (s *Store) Positions() domain.PositionStore { return s.positions }
func (s *Store) Trades() domain.TradeStore       { return s.trades }
func (s *Store) Audit() domain.AuditStore        { return s.audit }

// Close closes the database.
func (s *Store) Close() { _ = s.db.Close() }

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// dayBounds returns the UTC day containing t as [start, end).
func dayBounds(t time.Time) (time.Time, time.Time) {
	u := t.UTC()
	start := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.Add(24 * time.Hour)
}

// withListOpts appends time filters on column, a descending sort and
// pagination to a query whose WHERE clause is already open.
func withListOpts(query string, args []any, column string, opts domain.ListOpts) (string, []any) {
	if opts.Since != nil {
		query += " AND " + column + " >= ?"
		args = append(args, opts.Since.UnixMilli())
	}
	if opts.Until != nil {
		query += " AND " + column + " <= ?"
		args = append(args, opts.Until.UnixMilli())
	}
	query += " ORDER BY " + column + " DESC"
	if opts.Limit > 0 || opts.Offset > 0 {
		limit := opts.Limit
		if limit <= 0 {
			limit = -1
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, opts.Offset)
	}
	return query, args
}
