package domain

import (
	"fmt"
	"time"
)

// TaskStatus represents the lifecycle state of a task as reported by the
// owning CRUD layer. This core only reacts to status transitions; it never
// creates or mutates tasks itself.
type TaskStatus string

// Possible task status values
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
)

// Task is the projection of a task that this core needs in order to generate
// recurring occurrences and schedule reminders. Title and description are
// opaque here; they only flow through to reminder content.
type Task struct {
	ID             int64           `json:"task_id"`
	UserID         int64           `json:"user_id"`
	Title          string          `json:"title"`
	Description    string          `json:"description,omitempty"`
	Status         TaskStatus      `json:"status"`
	Priority       string          `json:"priority,omitempty"`
	Tags           []string        `json:"tags,omitempty"`
	DueDate        *time.Time      `json:"due_date,omitempty"`
	ReminderOffset time.Duration   `json:"-"`
	Recurrence     *RecurrenceRule `json:"recurrence_rule,omitempty"`
	ParentTaskID   *int64          `json:"parent_task_id,omitempty"`
}

// Validate checks the task projection for the fields this core depends on.
func (t *Task) Validate() error {
	if t.ID <= 0 {
		return ErrInvalidID
	}
	if t.UserID <= 0 {
		return ErrInvalidID
	}
	switch t.Status {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted:
	default:
		return ErrInvalidTaskStatus
	}
	if t.Recurrence != nil {
		if err := t.Recurrence.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrValidation, err)
		}
	}
	return nil
}

// IsRecurring reports whether the task carries a recurrence rule.
func (t *Task) IsRecurring() bool {
	return t.Recurrence != nil
}

// LineageID returns the identity of the recurring task lineage this task
// belongs to. Generated occurrences point back at the original recurring
// task, so the lineage head is the parent if one is set, otherwise the task
// itself.
func (t *Task) LineageID() int64 {
	if t.ParentTaskID != nil {
		return *t.ParentTaskID
	}
	return t.ID
}

// ReminderTriggerAt computes the instant a reminder for this task should
// fire, or false if the task has no due date or no reminder offset.
func (t *Task) ReminderTriggerAt() (time.Time, bool) {
	if t.DueDate == nil || t.ReminderOffset <= 0 {
		return time.Time{}, false
	}
	return t.DueDate.Add(-t.ReminderOffset).UTC(), true
}
