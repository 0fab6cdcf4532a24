package postgres

import (
	"context"
	"fmt"

	"github.com/taskpulse/taskpulse/internal/store"
)

// IDAllocator implements store.IDAllocator over the task_occurrence_ids
// sequence. The sequence starts in a high band reserved for generated
// occurrences.
type IDAllocator struct {
	db store.DBTX
}

// NewIDAllocator creates a new IDAllocator.
func NewIDAllocator(db store.DBTX) *IDAllocator {
	return &IDAllocator{db: db}
}

// NextTaskID returns the next occurrence task ID.
func (a *IDAllocator) NextTaskID(ctx context.Context) (int64, error) {
	var id int64
	err := a.db.QueryRowContext(ctx, `SELECT nextval('task_occurrence_ids')`).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate occurrence task ID: %w", MapError(err))
	}
	return id, nil
}

var _ store.IDAllocator = (*IDAllocator)(nil)
