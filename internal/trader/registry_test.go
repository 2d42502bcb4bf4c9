package trader

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tailbot/internal/domain"
)

func registered(r *Registry, id string) domain.MonitoredMarket {
	m, _ := r.Register(domain.MonitoredMarket{
		MarketID:      id,
		TokenID:       "tok-" + id,
		EntryPrice:    90,
		StopLossPrice: 85,
		CurrentPrice:  91,
		CreatedAt:     testNow,
	})
	return m
}

func TestRegistry_RegisterRefreshesUnpositioned(t *testing.T) {
	r := NewRegistry()
	m, created := r.Register(domain.MonitoredMarket{MarketID: "a", CurrentPrice: 90, CreatedAt: testNow})
	require.True(t, created)
	assert.True(t, m.IsMonitoring)

	m, created = r.Register(domain.MonitoredMarket{MarketID: "a", CurrentPrice: 93, CreatedAt: testNow.Add(time.Hour)})
	assert.False(t, created)
	assert.Equal(t, 93.0, m.CurrentPrice)
	assert.Equal(t, testNow, m.CreatedAt, "creation time is kept")
}

func TestRegistry_PositionedEntryNotOverwritten(t *testing.T) {
	r := NewRegistry()
	registered(r, "a")
	_, err := r.MarkPositioned("a", 10.8)
	require.NoError(t, err)

	m, _ := r.Register(domain.MonitoredMarket{MarketID: "a", CurrentPrice: 99, StopLossPrice: 1})
	assert.True(t, m.HasPosition)
	assert.Equal(t, 85.0, m.StopLossPrice)
	assert.Equal(t, 91.0, m.CurrentPrice)
}

func TestRegistry_Invariant(t *testing.T) {
	r := NewRegistry()
	registered(r, "a")

	_, err := r.MarkPositioned("a", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)
	m, _ := r.Get("a")
	assert.False(t, m.HasPosition, "rejected update is not committed")

	_, err = r.Update("a", func(m *domain.MonitoredMarket) { m.HasPosition = true })
	assert.Error(t, err)

	_, err = r.Update("missing", func(*domain.MonitoredMarket) {})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRegistry_DeactivateKeepsEntry(t *testing.T) {
	r := NewRegistry()
	registered(r, "a")
	_, err := r.MarkPositioned("a", 5)
	require.NoError(t, err)

	m, err := r.Deactivate("a")
	require.NoError(t, err)
	assert.False(t, m.IsMonitoring)
	assert.False(t, m.HasPosition)
	assert.Zero(t, m.PositionSize)
	assert.Equal(t, 1, r.Len())
	assert.Empty(t, r.Positioned())
}

func TestRegistry_ReturnsCopies(t *testing.T) {
	r := NewRegistry()
	registered(r, "a")

	m, _ := r.Get("a")
	m.CurrentPrice = 1
	snap := r.Snapshot()
	snap[0].CurrentPrice = 2

	got, _ := r.Get("a")
	assert.Equal(t, 91.0, got.CurrentPrice)
}

func TestRegistry_Exposure(t *testing.T) {
	r := NewRegistry()
	registered(r, "a")
	registered(r, "b")
	registered(r, "c")
	_, _ = r.MarkPositioned("a", 10)
	_, _ = r.MarkPositioned("b", 20)

	assert.InDelta(t, 10*0.91+20*0.91, r.Exposure(), 1e-9)
}

func TestRegistry_ConcurrentUpdates(t *testing.T) {
	r := NewRegistry()
	registered(r, "a")
	_, err := r.MarkPositioned("a", 1)
	require.NoError(t, err)

	const writers = 16
	const perWriter = 200
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_, _ = r.Update("a", func(m *domain.MonitoredMarket) { m.PositionSize++ })
				if i%50 == 0 {
					registered(r, fmt.Sprintf("w%d-%d", w, i))
					_ = r.Snapshot()
				}
			}
		}(w)
	}
	wg.Wait()

	m, _ := r.Get("a")
	assert.Equal(t, float64(1+writers*perWriter), m.PositionSize, "no lost updates")
	assert.Equal(t, 1+writers*(perWriter/50), r.Len())
}
