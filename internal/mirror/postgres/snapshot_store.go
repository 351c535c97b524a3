package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantfell/perpcaster/internal/domain"
)

// SnapshotStore implements domain.SnapshotMirror: one row per category
// holding the latest changed payload as JSONB.
type SnapshotStore struct {
	pool *pgxpool.Pool
}

func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// SaveCategory upserts the category's latest payload. Callers treat
// failures as advisory: the in-memory cache stays authoritative.
func (s *SnapshotStore) SaveCategory(ctx context.Context, category domain.Category, payload []byte, ts time.Time) error {
	const query = `
		INSERT INTO snapshot_categories (category, payload, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (category) DO UPDATE
		SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`
	if _, err := s.pool.Exec(ctx, query, string(category), payload, ts); err != nil {
		return fmt.Errorf("postgres: save category %s: %w", category, err)
	}
	return nil
}

var _ domain.SnapshotMirror = (*SnapshotStore)(nil)
