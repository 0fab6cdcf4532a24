package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/taskpulse/taskpulse/internal/domain"
	"github.com/taskpulse/taskpulse/internal/store"
)

// RecurringStateStore implements store.RecurringStateStore using PostgreSQL.
// The monotonic last_generated_at invariant is enforced in the UPDATE's
// WHERE clause so it holds under concurrent writers, not just under
// application logic.
type RecurringStateStore struct {
	db store.DBTX
}

// NewRecurringStateStore creates a new RecurringStateStore.
func NewRecurringStateStore(db store.DBTX) *RecurringStateStore {
	return &RecurringStateStore{db: db}
}

// Get returns the state row for a lineage.
func (s *RecurringStateStore) Get(ctx context.Context, taskID int64) (*domain.RecurringTaskState, error) {
	query := `
		SELECT task_id, last_generated_at, next_occurrence_due, terminal, updated_at
		FROM recurring_task_state
		WHERE task_id = $1
	`

	var state domain.RecurringTaskState
	var nextDue sql.NullTime
	err := s.db.QueryRowContext(ctx, query, taskID).Scan(
		&state.TaskID,
		&state.LastGeneratedAt,
		&nextDue,
		&state.Terminal,
		&state.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: task %d", store.ErrStateNotFound, taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recurring task state: %w", MapError(err))
	}

	if nextDue.Valid {
		t := nextDue.Time.UTC()
		state.NextOccurrenceDue = &t
	}
	state.LastGeneratedAt = state.LastGeneratedAt.UTC()
	return &state, nil
}

// Upsert creates the lineage state or advances it. The guarded UPDATE
// refuses to move last_generated_at backwards; a conflicting stale write
// returns store.ErrStaleState.
func (s *RecurringStateStore) Upsert(ctx context.Context, state *domain.RecurringTaskState) error {
	if state.TaskID <= 0 {
		return fmt.Errorf("%w: task ID must be positive", store.ErrInvalidEntity)
	}

	query := `
		INSERT INTO recurring_task_state (task_id, last_generated_at, next_occurrence_due, terminal, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (task_id)
		DO UPDATE SET
			last_generated_at   = EXCLUDED.last_generated_at,
			next_occurrence_due = EXCLUDED.next_occurrence_due,
			terminal            = EXCLUDED.terminal,
			updated_at          = EXCLUDED.updated_at
		WHERE recurring_task_state.last_generated_at <= EXCLUDED.last_generated_at
	`

	var nextDue any
	if state.NextOccurrenceDue != nil {
		nextDue = state.NextOccurrenceDue.UTC()
	}

	result, err := s.db.ExecContext(ctx, query,
		state.TaskID,
		state.LastGeneratedAt.UTC(),
		nextDue,
		state.Terminal,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert recurring task state: %w", MapError(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: task %d", store.ErrStaleState, state.TaskID)
	}
	return nil
}

// MarkTerminal flags the lineage as ended.
func (s *RecurringStateStore) MarkTerminal(ctx context.Context, taskID int64) error {
	query := `
		UPDATE recurring_task_state
		SET terminal = TRUE, updated_at = $1
		WHERE task_id = $2
	`

	result, err := s.db.ExecContext(ctx, query, time.Now().UTC(), taskID)
	if err != nil {
		return fmt.Errorf("failed to mark recurring task state terminal: %w", MapError(err))
	}
	return CheckRowsAffected(result, "recurring task state")
}

// Delete removes the lineage state.
func (s *RecurringStateStore) Delete(ctx context.Context, taskID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM recurring_task_state WHERE task_id = $1`, taskID)
	if err != nil {
		return fmt.Errorf("failed to delete recurring task state: %w", MapError(err))
	}
	// Deleting an absent row is a no-op: task deletion races with
	// occurrence generation are expected.
	return nil
}

// WithTx returns a store instance that executes against the provided
// transaction.
func (s *RecurringStateStore) WithTx(tx *sql.Tx) store.RecurringStateStore {
	return &RecurringStateStore{db: tx}
}

var _ store.RecurringStateStore = (*RecurringStateStore)(nil)
