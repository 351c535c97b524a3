// Package cache holds the in-memory account snapshot shared between the
// poller, the broadcaster, and the HTTP read path. Writers commit one
// category at a time; readers always get a consistent copy.
package cache

import (
	"sync"
	"time"

	"github.com/quantfell/perpcaster/internal/domain"
)

// SnapshotCache is the single authoritative copy of the account state.
// Apply* methods mark the category as fetched, detect changes against the
// cached value, and bump the category's LastUpdate only when the value
// actually changed. Initialization depends on fetches, not on changes: a
// first poll that decodes to nil still counts.
type SnapshotCache struct {
	mu   sync.RWMutex
	snap domain.Snapshot

	now func() time.Time // injectable for tests
}

func NewSnapshotCache() *SnapshotCache {
	return &SnapshotCache{
		snap: domain.Snapshot{
			Fetched:    make(map[domain.Category]bool),
			LastUpdate: make(map[domain.Category]time.Time),
		},
		now:  time.Now,
	}
}

// ApplyPositions commits a freshly polled positions list and reports
// whether it differed from the cached one.
func (c *SnapshotCache) ApplyPositions(positions []domain.Position) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap.Fetched[domain.CategoryPositions] = true
	if !positionsChanged(c.snap.Positions, positions) {
		return false
	}
	c.snap.Positions = cloneSlice(positions)
	c.snap.LastUpdate[domain.CategoryPositions] = c.now()
	return true
}

// ApplyBalance commits a freshly polled balance.
func (c *SnapshotCache) ApplyBalance(balance *domain.Balance) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap.Fetched[domain.CategoryBalance] = true
	if !balanceChanged(c.snap.Balance, balance) {
		return false
	}
	c.snap.Balance = cloneBalance(balance)
	c.snap.LastUpdate[domain.CategoryBalance] = c.now()
	return true
}

// ApplyTrades commits a freshly polled trade list.
func (c *SnapshotCache) ApplyTrades(trades []domain.Trade) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap.Fetched[domain.CategoryTrades] = true
	if !tradesChanged(c.snap.Trades, trades) {
		return false
	}
	c.snap.Trades = cloneSlice(trades)
	c.snap.LastUpdate[domain.CategoryTrades] = c.now()
	return true
}

// ApplyOrders commits a freshly polled open-orders list.
func (c *SnapshotCache) ApplyOrders(orders []domain.OpenOrder) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap.Fetched[domain.CategoryOrders] = true
	if !ordersChanged(c.snap.Orders, orders) {
		return false
	}
	c.snap.Orders = cloneSlice(orders)
	c.snap.LastUpdate[domain.CategoryOrders] = c.now()
	return true
}

// Read returns a copy of the full snapshot. The copy shares nothing mutable
// with the cache, so callers may serialize it without holding any lock.
func (c *SnapshotCache) Read() domain.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := domain.Snapshot{
		Positions:  cloneSlice(c.snap.Positions),
		Balance:    cloneBalance(c.snap.Balance),
		Trades:     cloneSlice(c.snap.Trades),
		Orders:     cloneSlice(c.snap.Orders),
		Fetched:    make(map[domain.Category]bool, len(c.snap.Fetched)),
		LastUpdate: make(map[domain.Category]time.Time, len(c.snap.LastUpdate)),
	}
	for k, v := range c.snap.Fetched {
		out.Fetched[k] = v
	}
	for k, v := range c.snap.LastUpdate {
		out.LastUpdate[k] = v
	}
	return out
}

// Initialized reports whether every category has been committed at least
// once. On-demand reads before that return domain.ErrNotInitialized.
func (c *SnapshotCache) Initialized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap.Initialized()
}

// Age returns the staleness of one category.
func (c *SnapshotCache) Age(cat domain.Category) (time.Duration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap.Age(cat, c.now())
}

// cloneSlice copies a slice while preserving the nil/empty distinction the
// change detector depends on.
func cloneSlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}

func cloneBalance(in *domain.Balance) *domain.Balance {
	if in == nil {
		return nil
	}
	out := *in
	if in.MarkPrices != nil {
		out.MarkPrices = make(map[string]float64, len(in.MarkPrices))
		for k, v := range in.MarkPrices {
			out.MarkPrices[k] = v
		}
	}
	return &out
}
