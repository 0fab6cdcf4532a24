package domain

import (
	"errors"
	"time"
)

// Reminder-specific validation errors
var (
	// ErrReminderTaskIDEmpty is returned when a reminder record has no task ID.
	ErrReminderTaskIDEmpty = errors.New("reminder task ID cannot be empty")

	// ErrReminderInstantZero is returned when a reminder record has no instant.
	ErrReminderInstantZero = errors.New("reminder instant cannot be zero")
)

// ReminderRecord is the durable claim that a reminder for a given task and
// instant has been (or is being) sent. The (TaskID, ReminderAt) pair is
// unique at the storage layer; that constraint, not application logic, is
// what makes reminder delivery effectively exactly-once.
type ReminderRecord struct {
	TaskID     int64     `json:"task_id"`
	ReminderAt time.Time `json:"reminder_at"`
	SentAt     time.Time `json:"sent_at"`
}

// NewReminderRecord creates a reminder record for the given task and
// reminder instant, stamped with the current time. Instants are normalized
// to UTC.
func NewReminderRecord(taskID int64, reminderAt time.Time) (*ReminderRecord, error) {
	rec := &ReminderRecord{
		TaskID:     taskID,
		ReminderAt: reminderAt.UTC(),
		SentAt:     time.Now().UTC(),
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

// Validate checks if the ReminderRecord has valid data.
func (r *ReminderRecord) Validate() error {
	if r.TaskID <= 0 {
		return ErrReminderTaskIDEmpty
	}
	if r.ReminderAt.IsZero() {
		return ErrReminderInstantZero
	}
	return nil
}

// RecurringTaskState tracks occurrence generation for one recurring task
// lineage. Exactly one row exists per lineage, keyed by the original
// recurring task's ID. LastGeneratedAt is monotonically non-decreasing;
// Terminal marks a lineage whose rule's end date has been reached.
type RecurringTaskState struct {
	TaskID            int64      `json:"task_id"`
	LastGeneratedAt   time.Time  `json:"last_generated_at"`
	NextOccurrenceDue *time.Time `json:"next_occurrence_due,omitempty"`
	Terminal          bool       `json:"terminal"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// IdempotencyEntry marks an event as already processed. A key observed once
// and not yet expired short-circuits reprocessing with no side effects
// beyond logging.
type IdempotencyEntry struct {
	Key       string    `json:"key"`
	Outcome   string    `json:"outcome"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IdempotencyTTL is how long processed-event markers are retained.
const IdempotencyTTL = 7 * 24 * time.Hour

// Expired reports whether the entry's TTL has lapsed at the given instant.
func (e *IdempotencyEntry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}
