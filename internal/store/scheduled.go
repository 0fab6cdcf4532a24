package store

import (
	"context"
	"time"

	"github.com/taskpulse/taskpulse/internal/events"
)

// ScheduledReminderStore durably mirrors the in-memory reminder timers, one
// pending trigger per task. It exists so pending reminders survive process
// restarts: timers are re-armed from it at startup, and the maintenance
// sweep re-fires entries whose trigger instant passed while no timer was
// armed.
type ScheduledReminderStore interface {
	// Upsert stores or replaces the pending trigger for ev.TaskID. The
	// trigger instant is taken from ev.ReminderTime.
	Upsert(ctx context.Context, ev *events.ReminderEvent) error

	// Delete removes the pending trigger for a task. Absent entries are
	// a no-op.
	Delete(ctx context.Context, taskID int64) error

	// Due returns the trigger payloads whose instant is at or before
	// cutoff, oldest first.
	Due(ctx context.Context, cutoff time.Time) ([]*events.ReminderEvent, error)

	// All returns every pending trigger payload, oldest first.
	All(ctx context.Context) ([]*events.ReminderEvent, error)
}
