package trader

import (
	"fmt"
	"sort"
	"sync"

	"github.com/alanyoungcy/tailbot/internal/domain"
)

// Registry holds the markets the scheduler is watching, keyed by market id.
// Every accessor returns copies; mutations happen under the lock so the scan
// and monitor loops never lose each other's writes. Entries are deactivated,
// never removed.
type Registry struct {
	mu      sync.Mutex
	markets map[string]*domain.MonitoredMarket
}

func NewRegistry() *Registry {
	return &Registry{markets: make(map[string]*domain.MonitoredMarket)}
}

// Register adds m, or refreshes an existing entry that holds no position.
// Positioned entries are left untouched. It reports whether m was new.
func (r *Registry) Register(m domain.MonitoredMarket) (domain.MonitoredMarket, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.markets[m.MarketID]
	if !ok {
		m.IsMonitoring = true
		m.HasPosition = false
		m.PositionSize = 0
		r.markets[m.MarketID] = &m
		return m, true
	}
	if cur.HasPosition {
		return *cur, false
	}
	cur.TokenID = m.TokenID
	cur.Question = m.Question
	cur.EntryPrice = m.EntryPrice
	cur.StopLossPrice = m.StopLossPrice
	cur.CurrentPrice = m.CurrentPrice
	cur.LastCheck = m.LastCheck
	cur.IsMonitoring = true
	return *cur, false
}

// Get returns a copy of the entry for id.
func (r *Registry) Get(id string) (domain.MonitoredMarket, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.markets[id]
	if !ok {
		return domain.MonitoredMarket{}, false
	}
	return *m, true
}

// Update applies fn to a copy of the entry and commits it if the result still
// satisfies HasPosition => PositionSize > 0.
func (r *Registry) Update(id string, fn func(*domain.MonitoredMarket)) (domain.MonitoredMarket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.markets[id]
	if !ok {
		return domain.MonitoredMarket{}, fmt.Errorf("trader: market %s: %w", id, domain.ErrNotFound)
	}
	next := *cur
	fn(&next)
	next.MarketID = cur.MarketID
	if next.HasPosition && next.PositionSize <= 0 {
		return *cur, &domain.ValidationError{Field: "position_size", Reason: "must be positive while a position is held"}
	}
	*cur = next
	return next, nil
}

// MarkPositioned records an open position of the given size.
func (r *Registry) MarkPositioned(id string, size float64) (domain.MonitoredMarket, error) {
	return r.Update(id, func(m *domain.MonitoredMarket) {
		m.IsMonitoring = true
		m.HasPosition = true
		m.PositionSize = size
		m.EntryPending = false
	})
}

// Deactivate stops monitoring id and clears its position.
func (r *Registry) Deactivate(id string) (domain.MonitoredMarket, error) {
	return r.Update(id, func(m *domain.MonitoredMarket) {
		m.IsMonitoring = false
		m.HasPosition = false
		m.PositionSize = 0
		m.EntryPending = false
	})
}

// Snapshot returns every entry ordered by registration time.
func (r *Registry) Snapshot() []domain.MonitoredMarket {
	return r.collect(func(domain.MonitoredMarket) bool { return true })
}

// Positioned returns the active entries that hold a position.
func (r *Registry) Positioned() []domain.MonitoredMarket {
	return r.collect(func(m domain.MonitoredMarket) bool { return m.IsMonitoring && m.HasPosition })
}

// Exposure is the marked value of all held positions:
// sum of size * current price / 100.
func (r *Registry) Exposure() float64 {
	var total float64
	for _, m := range r.Positioned() {
		total += m.PositionSize * m.CurrentPrice / 100
	}
	return total
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.markets)
}

func (r *Registry) collect(keep func(domain.MonitoredMarket) bool) []domain.MonitoredMarket {
	r.mu.Lock()
	out := make([]domain.MonitoredMarket, 0, len(r.markets))
	for _, m := range r.markets {
		if keep(*m) {
			out = append(out, *m)
		}
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].MarketID < out[j].MarketID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
