package domain

import (
	"context"
	"time"
)

// SnapshotMirror persists category payloads outside the process. It is an
// optional external mirror: write failures never affect the in-memory
// cache or the broadcast path.
type SnapshotMirror interface {
	SaveCategory(ctx context.Context, category Category, payload []byte, ts time.Time) error
}

// MarkPriceCache mirrors externally fed mark prices. Implementations must
// be safe for concurrent use. GetPrice returns ErrNotFound for unknown
// symbols.
type MarkPriceCache interface {
	SetPrice(ctx context.Context, symbol string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, symbol string) (float64, time.Time, error)
	AllPrices(ctx context.Context) (map[string]float64, error)
}
