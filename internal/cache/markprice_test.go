package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quantfell/perpcaster/internal/domain"
)

func TestMemoryMarkPriceCache(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryMarkPriceCache()

	if _, _, err := mc.GetPrice(ctx, "BTC-USD"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown symbol: err = %v, want ErrNotFound", err)
	}

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := mc.SetPrice(ctx, "BTC-USD", 60000, ts); err != nil {
		t.Fatal(err)
	}
	if err := mc.SetPrice(ctx, "ETH-USD", 3000, ts); err != nil {
		t.Fatal(err)
	}

	price, got, err := mc.GetPrice(ctx, "BTC-USD")
	if err != nil || price != 60000 || !got.Equal(ts) {
		t.Errorf("GetPrice = %v %v %v", price, got, err)
	}

	all, err := mc.AllPrices(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all["ETH-USD"] != 3000 {
		t.Errorf("AllPrices = %v", all)
	}
}
