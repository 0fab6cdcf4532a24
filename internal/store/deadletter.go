package store

import (
	"context"

	"github.com/taskpulse/taskpulse/internal/events"
)

// DeadLetterStore is the durable sink for events that exhausted retries or
// failed non-transiently. This core only writes and lists; inspection and
// replay are out-of-band concerns.
type DeadLetterStore interface {
	// Save persists the dead letter.
	Save(ctx context.Context, ev *events.DeadLetterEvent) error

	// List returns the most recent dead letters, newest first.
	List(ctx context.Context, limit int) ([]*events.DeadLetterEvent, error)

	// Count returns the current dead letter backlog size. Reported by the
	// maintenance sweep for observability.
	Count(ctx context.Context) (int64, error)
}
