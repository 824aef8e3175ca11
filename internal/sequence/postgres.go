package sequence

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists counters in the control_numbers table. The upsert
// increments under row-level locking, so concurrent builds for the same
// sender serialize on the row and never receive the same value.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store backed by the given pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Increment atomically bumps and returns the counter for a sender identity.
func (s *PostgresStore) Increment(ctx context.Context, senderID string, counter Counter) (int64, error) {
	query := `
		INSERT INTO control_numbers (sender_id, counter, last_value)
		VALUES ($1, $2, 1)
		ON CONFLICT (sender_id, counter) DO UPDATE
		SET last_value = control_numbers.last_value + 1, updated_at = NOW()
		RETURNING last_value
	`

	var value int64
	if err := s.pool.QueryRow(ctx, query, senderID, counter).Scan(&value); err != nil {
		return 0, fmt.Errorf("control number upsert failed: %w", err)
	}
	return value, nil
}
