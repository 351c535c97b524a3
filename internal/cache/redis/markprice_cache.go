package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quantfell/perpcaster/internal/domain"
)

// MarkPriceCache implements domain.MarkPriceCache on Redis hashes. Each
// symbol lives at "markprice:{symbol}" with fields "price" and "ts" (Unix
// milliseconds), and entries expire if the feed stops refreshing them.
type MarkPriceCache struct {
	rdb *redis.Client
	ttl time.Duration
}

const markPriceTTL = 5 * time.Minute

func NewMarkPriceCache(c *Client) *MarkPriceCache {
	return &MarkPriceCache{rdb: c.rdb, ttl: markPriceTTL}
}

func markPriceKey(symbol string) string {
	return "markprice:" + symbol
}

// SetPrice stores the latest externally observed mark price for a symbol.
func (mc *MarkPriceCache) SetPrice(ctx context.Context, symbol string, price float64, ts time.Time) error {
	key := markPriceKey(symbol)
	pipe := mc.rdb.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"price": strconv.FormatFloat(price, 'f', -1, 64),
		"ts":    strconv.FormatInt(ts.UnixMilli(), 10),
	})
	pipe.Expire(ctx, key, mc.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set mark price %s: %w", symbol, err)
	}
	return nil
}

// GetPrice returns the latest mark price and its observation time, or
// domain.ErrNotFound when the symbol is unknown or expired.
func (mc *MarkPriceCache) GetPrice(ctx context.Context, symbol string) (float64, time.Time, error) {
	vals, err := mc.rdb.HGetAll(ctx, markPriceKey(symbol)).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get mark price %s: %w", symbol, err)
	}
	priceStr, okP := vals["price"]
	tsStr, okT := vals["ts"]
	if !okP || !okT {
		return 0, time.Time{}, domain.ErrNotFound
	}
	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse mark price %s: %w", symbol, err)
	}
	tsMilli, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse mark price ts %s: %w", symbol, err)
	}
	return price, time.UnixMilli(tsMilli), nil
}

// AllPrices scans every cached symbol. Entries that vanish mid-scan are
// omitted rather than failing the whole read.
func (mc *MarkPriceCache) AllPrices(ctx context.Context) (map[string]float64, error) {
	out := make(map[string]float64)
	iter := mc.rdb.Scan(ctx, 0, markPriceKey("*"), 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		priceStr, err := mc.rdb.HGet(ctx, key, "price").Result()
		if err != nil {
			continue
		}
		price, err := strconv.ParseFloat(priceStr, 64)
		if err != nil {
			continue
		}
		out[key[len("markprice:"):]] = price
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis: scan mark prices: %w", err)
	}
	return out, nil
}

var _ domain.MarkPriceCache = (*MarkPriceCache)(nil)
