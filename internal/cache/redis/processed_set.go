package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/tailbot/internal/domain"
)

// DefaultProcessedTTL is how long the processed set survives without writes.
const DefaultProcessedTTL = 7 * 24 * time.Hour

// ProcessedSet implements domain.ProcessedSet as a Redis set so processed
// markets survive restarts. The whole set expires ttl after the last Add.
type ProcessedSet struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

// NewProcessedSet creates a ProcessedSet at "tailbot:processed".
func NewProcessedSet(c *Client, ttl time.Duration) *ProcessedSet {
	if ttl <= 0 {
		ttl = DefaultProcessedTTL
	}
	return &ProcessedSet{rdb: c.Underlying(), key: keyPrefix + "processed", ttl: ttl}
}

// Contains reports whether marketID has been processed.
func (p *ProcessedSet) Contains(ctx context.Context, marketID string) (bool, error) {
	ok, err := p.rdb.SIsMember(ctx, p.key, marketID).Result()
	if err != nil {
		return false, fmt.Errorf("redis: processed contains %s: %w", marketID, err)
	}
	return ok, nil
}

// Add marks marketID processed and refreshes the set's TTL.
func (p *ProcessedSet) Add(ctx context.Context, marketID string) error {
	pipe := p.rdb.TxPipeline()
	pipe.SAdd(ctx, p.key, marketID)
	pipe.Expire(ctx, p.key, p.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: processed add %s: %w", marketID, err)
	}
	return nil
}

// Len returns the number of processed markets.
func (p *ProcessedSet) Len(ctx context.Context) (int, error) {
	n, err := p.rdb.SCard(ctx, p.key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: processed len: %w", err)
	}
	return int(n), nil
}

var _ domain.ProcessedSet = (*ProcessedSet)(nil)
