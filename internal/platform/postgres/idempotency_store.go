package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/taskpulse/taskpulse/internal/platform/logger"
	"github.com/taskpulse/taskpulse/internal/store"
)

// IdempotencyStore implements store.IdempotencyStore using PostgreSQL.
// Entries are upserted so replays refresh the TTL rather than erroring; the
// consumer decides whether a seen key means skip.
type IdempotencyStore struct {
	db store.DBTX
}

// NewIdempotencyStore creates a new IdempotencyStore.
func NewIdempotencyStore(db store.DBTX) *IdempotencyStore {
	return &IdempotencyStore{db: db}
}

// Seen reports whether the key exists and has not expired.
func (s *IdempotencyStore) Seen(ctx context.Context, key string) (bool, error) {
	query := `
		SELECT 1
		FROM idempotency_keys
		WHERE key = $1 AND expires_at > $2
	`

	var one int
	err := s.db.QueryRowContext(ctx, query, key, time.Now().UTC()).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up idempotency key: %w", MapError(err))
	}
	return true, nil
}

// Record marks the key as processed, refreshing outcome and expiry on
// conflict.
func (s *IdempotencyStore) Record(ctx context.Context, key, outcome string, ttl time.Duration) error {
	query := `
		INSERT INTO idempotency_keys (key, outcome, expires_at, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key)
		DO UPDATE SET outcome = EXCLUDED.outcome, expires_at = EXCLUDED.expires_at
	`

	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx, query, key, outcome, now.Add(ttl), now); err != nil {
		return fmt.Errorf("failed to record idempotency key: %w", MapError(err))
	}
	return nil
}

// PurgeExpired deletes lapsed entries and returns the count removed.
func (s *IdempotencyStore) PurgeExpired(ctx context.Context) (int64, error) {
	log := logger.FromContext(ctx)

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM idempotency_keys WHERE expires_at <= $1`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge idempotency keys: %w", MapError(err))
	}

	purged, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if purged > 0 {
		log.Debug("purged expired idempotency keys", "count", purged)
	}
	return purged, nil
}

// WithTx returns a store instance that executes against the provided
// transaction.
func (s *IdempotencyStore) WithTx(tx *sql.Tx) store.IdempotencyStore {
	return &IdempotencyStore{db: tx}
}

var _ store.IdempotencyStore = (*IdempotencyStore)(nil)
