package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/taskpulse/taskpulse/internal/events"
	"github.com/taskpulse/taskpulse/internal/store"
)

// ScheduledReminderStore implements store.ScheduledReminderStore using
// PostgreSQL. One row per task mirrors the currently armed in-memory timer.
type ScheduledReminderStore struct {
	db store.DBTX
}

// NewScheduledReminderStore creates a new ScheduledReminderStore.
func NewScheduledReminderStore(db store.DBTX) *ScheduledReminderStore {
	return &ScheduledReminderStore{db: db}
}

// Upsert stores or replaces the pending trigger for ev.TaskID.
func (s *ScheduledReminderStore) Upsert(ctx context.Context, ev *events.ReminderEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal reminder payload: %w", err)
	}

	query := `
		INSERT INTO scheduled_reminders (task_id, trigger_at, payload, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (task_id)
		DO UPDATE SET trigger_at = EXCLUDED.trigger_at,
		              payload    = EXCLUDED.payload,
		              updated_at = now()
	`

	if _, err := s.db.ExecContext(ctx, query, ev.TaskID, ev.ReminderTime.UTC(), payload); err != nil {
		return fmt.Errorf("failed to upsert scheduled reminder: %w", MapError(err))
	}
	return nil
}

// Delete removes the pending trigger for a task.
func (s *ScheduledReminderStore) Delete(ctx context.Context, taskID int64) error {
	query := `DELETE FROM scheduled_reminders WHERE task_id = $1`

	if _, err := s.db.ExecContext(ctx, query, taskID); err != nil {
		return fmt.Errorf("failed to delete scheduled reminder: %w", MapError(err))
	}
	return nil
}

// Due returns the trigger payloads at or before cutoff, oldest first.
func (s *ScheduledReminderStore) Due(ctx context.Context, cutoff time.Time) ([]*events.ReminderEvent, error) {
	query := `
		SELECT payload
		FROM scheduled_reminders
		WHERE trigger_at <= $1
		ORDER BY trigger_at
	`
	return s.queryPayloads(ctx, query, cutoff.UTC())
}

// All returns every pending trigger payload, oldest first.
func (s *ScheduledReminderStore) All(ctx context.Context) ([]*events.ReminderEvent, error) {
	query := `
		SELECT payload
		FROM scheduled_reminders
		ORDER BY trigger_at
	`
	return s.queryPayloads(ctx, query)
}

func (s *ScheduledReminderStore) queryPayloads(ctx context.Context, query string, args ...any) ([]*events.ReminderEvent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query scheduled reminders: %w", MapError(err))
	}
	defer rows.Close()

	var triggers []*events.ReminderEvent
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan scheduled reminder row: %w", err)
		}
		var ev events.ReminderEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("failed to unmarshal reminder payload: %w", err)
		}
		triggers = append(triggers, &ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scheduled reminder rows: %w", err)
	}
	return triggers, nil
}

var _ store.ScheduledReminderStore = (*ScheduledReminderStore)(nil)
