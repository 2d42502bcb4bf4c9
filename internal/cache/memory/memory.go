// Package memory provides in-process implementations of the domain cache
// interfaces, used when Redis is not configured. All types are safe for
// concurrent use.
package memory

import (
	"context"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/alanyoungcy/tailbot/internal/domain"
)

// PriceCache implements domain.PriceCache with a map.
type PriceCache struct {
	mu     sync.RWMutex
	prices map[string]pricePoint
}

type pricePoint struct {
	price float64
	ts    time.Time
}

// NewPriceCache creates an empty PriceCache.
func NewPriceCache() *PriceCache {
	return &PriceCache{prices: make(map[string]pricePoint)}
}

func (c *PriceCache) SetPrice(_ context.Context, tokenID string, price float64, ts time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[tokenID] = pricePoint{price: price, ts: ts}
	return nil
}

func (c *PriceCache) GetPrice(_ context.Context, tokenID string) (float64, time.Time, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.prices[tokenID]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	return p.price, p.ts, nil
}

func (c *PriceCache) GetPrices(_ context.Context, tokenIDs []string) (map[string]float64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]float64, len(tokenIDs))
	for _, id := range tokenIDs {
		if p, ok := c.prices[id]; ok {
			out[id] = p.price
		}
	}
	return out, nil
}

// LockManager implements domain.LockManager with expiring in-process locks.
type LockManager struct {
	mu    sync.Mutex
	held  map[string]lease
	now   func() time.Time
	token uint64
}

type lease struct {
	token   uint64
	expires time.Time
}

// NewLockManager creates a LockManager.
func NewLockManager() *LockManager {
	return &LockManager{held: make(map[string]lease), now: time.Now}
}

// Acquire takes key for ttl. An expired lease may be taken over.
func (l *LockManager) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if cur, ok := l.held[key]; ok && now.Before(cur.expires) {
		return nil, fmt.Errorf("memory: lock %s: %w", key, domain.ErrLockHeld)
	}
	l.token++
	mine := l.token
	l.held[key] = lease{token: mine, expires: now.Add(ttl)}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if cur, ok := l.held[key]; ok && cur.token == mine {
				delete(l.held, key)
			}
		})
	}, nil
}

// ProcessedSet implements domain.ProcessedSet. Entries older than ttl are
// forgotten; a zero ttl keeps them for the life of the process.
type ProcessedSet struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

// NewProcessedSet creates a ProcessedSet.
func NewProcessedSet(ttl time.Duration) *ProcessedSet {
	return &ProcessedSet{seen: make(map[string]time.Time), ttl: ttl, now: time.Now}
}

func (p *ProcessedSet) Contains(_ context.Context, marketID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	at, ok := p.seen[marketID]
	if !ok {
		return false, nil
	}
	if p.ttl > 0 && p.now().Sub(at) >= p.ttl {
		delete(p.seen, marketID)
		return false, nil
	}
	return true, nil
}

func (p *ProcessedSet) Add(_ context.Context, marketID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen[marketID] = p.now()
	return nil
}

// Len returns the number of live entries, dropping expired ones.
func (p *ProcessedSet) Len(_ context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ttl > 0 {
		now := p.now()
		for id, at := range p.seen {
			if now.Sub(at) >= p.ttl {
				delete(p.seen, id)
			}
		}
	}
	return len(p.seen), nil
}

// SignalBus implements domain.SignalBus by fanning payloads out to local
// subscribers. Slow subscribers drop messages rather than block publishers.
type SignalBus struct {
	mu   sync.RWMutex
	subs map[int]subscription
	next int
}

type subscription struct {
	pattern string
	ch      chan []byte
}

// NewSignalBus creates a SignalBus.
func NewSignalBus() *SignalBus {
	return &SignalBus{subs: make(map[int]subscription)}
}

// Publish delivers payload to every subscriber whose pattern matches channel.
func (b *SignalBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if ok, _ := path.Match(s.pattern, channel); !ok {
			continue
		}
		msg := append([]byte(nil), payload...)
		select {
		case s.ch <- msg:
		default:
		}
	}
	return nil
}

// Subscribe registers for channel (glob patterns allowed) until ctx ends.
func (b *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	if _, err := path.Match(channel, ""); err != nil {
		return nil, fmt.Errorf("memory: subscribe %q: %w", channel, err)
	}
	ch := make(chan []byte, 128)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = subscription{pattern: channel, ch: ch}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}

var (
	_ domain.PriceCache   = (*PriceCache)(nil)
	_ domain.LockManager  = (*LockManager)(nil)
	_ domain.ProcessedSet = (*ProcessedSet)(nil)
	_ domain.SignalBus    = (*SignalBus)(nil)
)
