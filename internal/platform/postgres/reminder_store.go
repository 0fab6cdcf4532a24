package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/taskpulse/taskpulse/internal/domain"
	"github.com/taskpulse/taskpulse/internal/platform/logger"
	"github.com/taskpulse/taskpulse/internal/store"
)

// ReminderStore implements store.ReminderStore using PostgreSQL. The
// reminder_log table carries UNIQUE(task_id, reminder_at); losing that race
// surfaces as store.ErrReminderExists, which the duplicate guard treats as
// "already claimed", not as a failure.
type ReminderStore struct {
	db store.DBTX
}

// NewReminderStore creates a new ReminderStore.
func NewReminderStore(db store.DBTX) *ReminderStore {
	return &ReminderStore{db: db}
}

// Insert stores the reminder record, mapping a unique violation to
// store.ErrReminderExists.
func (s *ReminderStore) Insert(ctx context.Context, rec *domain.ReminderRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO reminder_log (task_id, reminder_at, sent_at)
		VALUES ($1, $2, $3)
	`

	_, err := s.db.ExecContext(ctx, query, rec.TaskID, rec.ReminderAt.UTC(), rec.SentAt.UTC())
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("%w: task %d at %s", store.ErrReminderExists,
				rec.TaskID, rec.ReminderAt.UTC().Format(time.RFC3339))
		}
		return fmt.Errorf("failed to insert reminder record: %w", MapError(err))
	}
	return nil
}

// ExistsWithin reports whether any reminder exists for the task inside
// at±tolerance.
func (s *ReminderStore) ExistsWithin(ctx context.Context, taskID int64, at time.Time, tolerance time.Duration) (bool, error) {
	query := `
		SELECT 1
		FROM reminder_log
		WHERE task_id = $1 AND reminder_at BETWEEN $2 AND $3
		LIMIT 1
	`

	from := at.UTC().Add(-tolerance)
	to := at.UTC().Add(tolerance)

	var one int
	err := s.db.QueryRowContext(ctx, query, taskID, from, to).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query reminder window: %w", MapError(err))
	}
	return true, nil
}

// Delete removes the record for the exact (task, instant) pair. Deleting an
// absent record is a no-op.
func (s *ReminderStore) Delete(ctx context.Context, taskID int64, at time.Time) error {
	query := `DELETE FROM reminder_log WHERE task_id = $1 AND reminder_at = $2`

	if _, err := s.db.ExecContext(ctx, query, taskID, at.UTC()); err != nil {
		return fmt.Errorf("failed to delete reminder record: %w", MapError(err))
	}
	return nil
}

// DeleteForTask removes all reminder records for the task.
func (s *ReminderStore) DeleteForTask(ctx context.Context, taskID int64) (int64, error) {
	log := logger.FromContext(ctx)

	result, err := s.db.ExecContext(ctx, `DELETE FROM reminder_log WHERE task_id = $1`, taskID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete reminder records: %w", MapError(err))
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if deleted > 0 {
		log.Debug("deleted reminder records for task", "task_id", taskID, "count", deleted)
	}
	return deleted, nil
}

var _ store.ReminderStore = (*ReminderStore)(nil)
