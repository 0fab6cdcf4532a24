package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/taskpulse/taskpulse/internal/domain"
)

// SchemaVersion is the wire schema version stamped on every published event.
const SchemaVersion = "1.0"

// Task lifecycle event types
const (
	TypeTaskCreated   = "task.created"
	TypeTaskUpdated   = "task.updated"
	TypeTaskDeleted   = "task.deleted"
	TypeTaskCompleted = "task.completed"
	TypeReminderDue   = "reminder.due"
	TypeDeadLetter    = "task.dead_letter"
)

// Topics this core publishes to and consumes from.
const (
	TopicTaskEvents  = "task-events"
	TopicReminders   = "reminders"
	TopicDeadLetters = "dead-letters"
)

// TaskData is the task payload carried inside a TaskEvent. ReminderOffset is
// an ISO-8601 duration string on the wire.
type TaskData struct {
	Title          string                 `json:"title"`
	Description    string                 `json:"description,omitempty"`
	Status         string                 `json:"status"`
	Priority       string                 `json:"priority,omitempty"`
	Tags           []string               `json:"tags,omitempty"`
	DueDate        *time.Time             `json:"due_date,omitempty"`
	ReminderOffset string                 `json:"reminder_offset,omitempty"`
	RecurrenceRule *domain.RecurrenceRule `json:"recurrence_rule,omitempty"`
	ParentTaskID   *int64                 `json:"parent_task_id,omitempty"`
	CompletedAt    *time.Time             `json:"completed_at,omitempty"`
}

// TaskEvent is published when a task is created, updated, deleted, or
// completed. EventID is producer-generated, globally unique, and serves as
// the idempotency key for all consumers.
type TaskEvent struct {
	EventID       uuid.UUID `json:"event_id"`
	SchemaVersion string    `json:"schema_version"`
	EventType     string    `json:"event_type"`
	Timestamp     time.Time `json:"timestamp"`
	TaskID        int64     `json:"task_id"`
	UserID        int64     `json:"user_id"`
	TaskData      TaskData  `json:"task_data"`
}

// NewTaskEvent creates a task lifecycle event with a fresh event ID and the
// current UTC timestamp.
func NewTaskEvent(eventType string, taskID, userID int64, data TaskData) *TaskEvent {
	return &TaskEvent{
		EventID:       uuid.New(),
		SchemaVersion: SchemaVersion,
		EventType:     eventType,
		Timestamp:     time.Now().UTC(),
		TaskID:        taskID,
		UserID:        userID,
		TaskData:      data,
	}
}

// Task converts the event payload into the domain task projection,
// parsing the ISO-8601 reminder offset. A malformed offset is a payload
// error, not a transient one.
func (e *TaskEvent) Task() (*domain.Task, error) {
	var offset time.Duration
	if e.TaskData.ReminderOffset != "" {
		d, err := ParseISODuration(e.TaskData.ReminderOffset)
		if err != nil {
			return nil, fmt.Errorf("%w: reminder_offset: %w", domain.ErrInvalidFormat, err)
		}
		offset = d
	}

	task := &domain.Task{
		ID:             e.TaskID,
		UserID:         e.UserID,
		Title:          e.TaskData.Title,
		Description:    e.TaskData.Description,
		Status:         domain.TaskStatus(e.TaskData.Status),
		Priority:       e.TaskData.Priority,
		Tags:           e.TaskData.Tags,
		DueDate:        e.TaskData.DueDate,
		ReminderOffset: offset,
		Recurrence:     e.TaskData.RecurrenceRule,
		ParentTaskID:   e.TaskData.ParentTaskID,
	}
	if err := task.Validate(); err != nil {
		return nil, err
	}
	return task, nil
}

// ReminderEvent is the trigger payload carried by a scheduled reminder job
// and published when that reminder comes due.
type ReminderEvent struct {
	EventID         uuid.UUID `json:"event_id"`
	SchemaVersion   string    `json:"schema_version"`
	EventType       string    `json:"event_type"`
	Timestamp       time.Time `json:"timestamp"`
	TaskID          int64     `json:"task_id"`
	UserID          int64     `json:"user_id"`
	DueDate         time.Time `json:"due_date"`
	TaskTitle       string    `json:"task_title"`
	TaskDescription string    `json:"task_description,omitempty"`
	ReminderTime    time.Time `json:"reminder_time"`
}

// NewReminderEvent builds the trigger payload for a task reminder.
func NewReminderEvent(task *domain.Task, reminderTime time.Time) *ReminderEvent {
	ev := &ReminderEvent{
		EventID:         uuid.New(),
		SchemaVersion:   SchemaVersion,
		EventType:       TypeReminderDue,
		Timestamp:       time.Now().UTC(),
		TaskID:          task.ID,
		UserID:          task.UserID,
		TaskTitle:       task.Title,
		TaskDescription: task.Description,
		ReminderTime:    reminderTime.UTC(),
	}
	if task.DueDate != nil {
		ev.DueDate = task.DueDate.UTC()
	}
	return ev
}

// DeadLetterEvent wraps an event that exhausted retries or failed
// non-transiently. The original payload is carried verbatim so out-of-band
// consumers can inspect or replay it.
type DeadLetterEvent struct {
	EventID        uuid.UUID       `json:"event_id"`
	SchemaVersion  string          `json:"schema_version"`
	EventType      string          `json:"event_type"`
	Timestamp      time.Time       `json:"timestamp"`
	OriginalEvent  json.RawMessage `json:"original_event"`
	ErrorMessage   string          `json:"error_message"`
	RetryCount     int             `json:"retry_count"`
	FirstAttemptAt time.Time       `json:"first_attempt_at"`
	LastAttemptAt  time.Time       `json:"last_attempt_at"`
}

// NewDeadLetterEvent wraps the original event bytes with failure context.
func NewDeadLetterEvent(original json.RawMessage, errMsg string, retries int, first, last time.Time) *DeadLetterEvent {
	return &DeadLetterEvent{
		EventID:        uuid.New(),
		SchemaVersion:  SchemaVersion,
		EventType:      TypeDeadLetter,
		Timestamp:      time.Now().UTC(),
		OriginalEvent:  original,
		ErrorMessage:   errMsg,
		RetryCount:     retries,
		FirstAttemptAt: first.UTC(),
		LastAttemptAt:  last.UTC(),
	}
}
