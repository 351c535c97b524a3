package cache

import (
	"context"
	"sync"
	"time"

	"github.com/quantfell/perpcaster/internal/domain"
)

type pricePoint struct {
	price float64
	ts    time.Time
}

// MemoryMarkPriceCache is the in-process domain.MarkPriceCache used when no
// Redis instance is configured. Prices do not survive a restart.
type MemoryMarkPriceCache struct {
	mu     sync.RWMutex
	prices map[string]pricePoint
}

func NewMemoryMarkPriceCache() *MemoryMarkPriceCache {
	return &MemoryMarkPriceCache{prices: make(map[string]pricePoint)}
}

func (mc *MemoryMarkPriceCache) SetPrice(_ context.Context, symbol string, price float64, ts time.Time) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.prices[symbol] = pricePoint{price: price, ts: ts}
	return nil
}

func (mc *MemoryMarkPriceCache) GetPrice(_ context.Context, symbol string) (float64, time.Time, error) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	p, ok := mc.prices[symbol]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	return p.price, p.ts, nil
}

func (mc *MemoryMarkPriceCache) AllPrices(_ context.Context) (map[string]float64, error) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	out := make(map[string]float64, len(mc.prices))
	for sym, p := range mc.prices {
		out[sym] = p.price
	}
	return out, nil
}

var _ domain.MarkPriceCache = (*MemoryMarkPriceCache)(nil)
