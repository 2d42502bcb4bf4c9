package postgres

import (
	"context"

	"github.com/alanyoungcy/tailbot/internal/domain"
)

// Store bundles the PostgreSQL-backed stores over one pool.
type Store struct {
	client    *Client
	orders    *OrderStore
	positions *PositionStore
	trades    *TradeStore
	audit     *AuditStore
}

var _ domain.Store = (*Store)(nil)

// Open connects, optionally applies migrations, and returns the store bundle.
func Open(ctx context.Context, cfg ClientConfig, migrate bool) (*Store, error) {
	client, err := New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if migrate {
		if err := client.RunMigrations(ctx); err != nil {
			client.Close()
			return nil, err
		}
	}
	pool := client.Pool()
	return &Store{
		client:    client,
		orders:    NewOrderStore(pool),
		positions: NewPositionStore(pool),
		trades:    NewTradeStore(pool),
		audit:     NewAuditStore(pool),
	}, nil
}

func (s *Store) Orders() domain.OrderStore       { return s.orders }
func (s *Store) Positions() domain.PositionStore { return s.positions }
func (s *Store) Trades() domain.TradeStore       { return s.trades }
func (s *Store) Audit() domain.AuditStore        { return s.audit }

// Close releases the pool.
func (s *Store) Close() { s.client.Close() }

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error { return s.client.Pool().Ping(ctx) }
