package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tailbot/internal/domain"
)

func TestPriceCache(t *testing.T) {
	ctx := context.Background()
	c := NewPriceCache()

	_, _, err := c.GetPrice(ctx, "t1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	at := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	require.NoError(t, c.SetPrice(ctx, "t1", 91.5, at))
	require.NoError(t, c.SetPrice(ctx, "t2", 88, at))

	p, ts, err := c.GetPrice(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 91.5, p)
	assert.True(t, ts.Equal(at))

	all, err := c.GetPrices(ctx, []string{"t1", "t2", "t3"})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"t1": 91.5, "t2": 88}, all)
}

func TestLockManager(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	l := NewLockManager()
	l.now = func() time.Time { return now }

	unlock, err := l.Acquire(ctx, "m1", time.Minute)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "m1", time.Minute)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	_, err = l.Acquire(ctx, "m2", time.Minute)
	assert.NoError(t, err, "keys are independent")

	unlock()
	unlock()
	again, err := l.Acquire(ctx, "m1", time.Minute)
	require.NoError(t, err)

	// A stale unlock must not release the new holder.
	unlock()
	_, err = l.Acquire(ctx, "m1", time.Minute)
	assert.ErrorIs(t, err, domain.ErrLockHeld)
	again()

	// Expired leases can be taken over.
	_, err = l.Acquire(ctx, "m3", time.Second)
	require.NoError(t, err)
	now = now.Add(2 * time.Second)
	_, err = l.Acquire(ctx, "m3", time.Second)
	assert.NoError(t, err)
}

func TestProcessedSet(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	p := NewProcessedSet(time.Hour)
	p.now = func() time.Time { return now }

	ok, err := p.Contains(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, p.Add(ctx, "m1"))
	require.NoError(t, p.Add(ctx, "m1"))
	ok, _ = p.Contains(ctx, "m1")
	assert.True(t, ok)
	n, _ := p.Len(ctx)
	assert.Equal(t, 1, n)

	now = now.Add(time.Hour)
	ok, _ = p.Contains(ctx, "m1")
	assert.False(t, ok, "expired")
	n, _ = p.Len(ctx)
	assert.Zero(t, n)
}

func TestProcessedSet_ConcurrentAdds(t *testing.T) {
	ctx := context.Background()
	p := NewProcessedSet(0)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = p.Add(ctx, fmt.Sprintf("m%d", i%10))
		}(i)
	}
	wg.Wait()

	n, err := p.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
}

func TestSignalBus(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := NewSignalBus()

	exact, err := b.Subscribe(ctx, "tailbot:events:trading")
	require.NoError(t, err)
	all, err := b.Subscribe(ctx, "tailbot:events:*")
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "tailbot:events:trading", []byte("a")))
	require.NoError(t, b.Publish(ctx, "tailbot:events:markets", []byte("b")))

	assert.Equal(t, []byte("a"), <-exact)
	assert.Equal(t, []byte("a"), <-all)
	assert.Equal(t, []byte("b"), <-all)

	select {
	case msg := <-exact:
		t.Fatalf("unexpected message %q", msg)
	default:
	}

	cancel()
	require.Eventually(t, func() bool {
		_, open := <-exact
		return !open
	}, time.Second, 5*time.Millisecond)
}
