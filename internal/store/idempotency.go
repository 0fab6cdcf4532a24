package store

import (
	"context"
	"database/sql"
	"time"
)

// IdempotencyStore maps an idempotency key (the producer-generated event ID)
// to already-processed state with a TTL. It backs every consumer: a key that
// is present and unexpired short-circuits reprocessing with no side effects
// beyond logging.
type IdempotencyStore interface {
	// Seen reports whether the key has been recorded and has not expired.
	Seen(ctx context.Context, key string) (bool, error)

	// Record marks the key as processed with the given outcome, expiring
	// after ttl. Recording an existing key refreshes its outcome and
	// expiry; the consumer owns this lifecycle exclusively.
	Record(ctx context.Context, key, outcome string, ttl time.Duration) error

	// PurgeExpired deletes entries whose TTL has lapsed and returns how
	// many were removed. Invoked by the maintenance sweep.
	PurgeExpired(ctx context.Context) (int64, error)

	// WithTx returns a store instance that uses the provided transaction.
	WithTx(tx *sql.Tx) IdempotencyStore
}
