package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/taskpulse/taskpulse/internal/domain"
)

// ReminderStore persists reminder records. The storage layer enforces a
// uniqueness constraint on (task ID, reminder instant); that constraint is
// the final arbiter for duplicate suppression, standing in for a
// distributed lock across concurrent workers.
type ReminderStore interface {
	// Insert stores the record. It returns ErrReminderExists when another
	// process already claimed the same (task, instant) pair.
	Insert(ctx context.Context, rec *domain.ReminderRecord) error

	// ExistsWithin reports whether any record exists for the task with a
	// reminder instant inside at±tolerance. This covers scheduler jitter
	// that would slip past the exact-match constraint.
	ExistsWithin(ctx context.Context, taskID int64, at time.Time, tolerance time.Duration) (bool, error)

	// Delete removes the record for the exact (task, instant) pair,
	// releasing the claim. Used when delivery fails after a successful
	// claim so a later retry can redeliver. Absent records are a no-op.
	Delete(ctx context.Context, taskID int64, at time.Time) error

	// DeleteForTask removes all reminder records for a task. Invoked when
	// the owning task is deleted.
	DeleteForTask(ctx context.Context, taskID int64) (int64, error)
}

// RecurringStateStore persists per-lineage occurrence generation state.
// Exactly one row exists per recurring task lineage; workers always read
// then write through this store inside a transaction, never caching state
// in memory.
type RecurringStateStore interface {
	// Get returns the state for a lineage, or ErrStateNotFound.
	Get(ctx context.Context, taskID int64) (*domain.RecurringTaskState, error)

	// Upsert creates or advances the lineage state. Updates that would
	// move LastGeneratedAt backwards fail with ErrStaleState.
	Upsert(ctx context.Context, state *domain.RecurringTaskState) error

	// MarkTerminal flags the lineage as ended; no further occurrences
	// will be generated for it.
	MarkTerminal(ctx context.Context, taskID int64) error

	// Delete removes the lineage state. Invoked when the recurring task
	// is deleted.
	Delete(ctx context.Context, taskID int64) error

	// WithTx returns a store instance that uses the provided transaction,
	// so state advancement and idempotency recording commit atomically.
	WithTx(tx *sql.Tx) RecurringStateStore
}
