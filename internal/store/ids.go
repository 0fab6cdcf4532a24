package store

import "context"

// IDAllocator hands out task IDs for generated occurrences. Occurrence IDs
// come from a band reserved for this core so they never collide with IDs
// assigned by the owning CRUD layer.
type IDAllocator interface {
	// NextTaskID returns a fresh task ID for a generated occurrence.
	NextTaskID(ctx context.Context) (int64, error)
}
