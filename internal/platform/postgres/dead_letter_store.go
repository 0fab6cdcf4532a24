package postgres

import (
	"context"
	"fmt"

	"github.com/taskpulse/taskpulse/internal/events"
	"github.com/taskpulse/taskpulse/internal/store"
)

// DeadLetterStore implements store.DeadLetterStore using PostgreSQL. Dead
// letters are append-only; inspection and replay happen out-of-band.
type DeadLetterStore struct {
	db store.DBTX
}

// NewDeadLetterStore creates a new DeadLetterStore.
func NewDeadLetterStore(db store.DBTX) *DeadLetterStore {
	return &DeadLetterStore{db: db}
}

// Save persists the dead letter.
func (s *DeadLetterStore) Save(ctx context.Context, ev *events.DeadLetterEvent) error {
	query := `
		INSERT INTO dead_letters
			(event_id, original_event, error_message, retry_count, first_attempt_at, last_attempt_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.db.ExecContext(ctx, query,
		ev.EventID,
		[]byte(ev.OriginalEvent),
		ev.ErrorMessage,
		ev.RetryCount,
		ev.FirstAttemptAt.UTC(),
		ev.LastAttemptAt.UTC(),
		ev.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save dead letter: %w", MapError(err))
	}
	return nil
}

// List returns the most recent dead letters, newest first.
func (s *DeadLetterStore) List(ctx context.Context, limit int) ([]*events.DeadLetterEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT event_id, original_event, error_message, retry_count, first_attempt_at, last_attempt_at, created_at
		FROM dead_letters
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query dead letters: %w", MapError(err))
	}
	defer rows.Close()

	var letters []*events.DeadLetterEvent
	for rows.Next() {
		var ev events.DeadLetterEvent
		var original []byte
		if err := rows.Scan(
			&ev.EventID,
			&original,
			&ev.ErrorMessage,
			&ev.RetryCount,
			&ev.FirstAttemptAt,
			&ev.LastAttemptAt,
			&ev.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan dead letter row: %w", err)
		}
		ev.SchemaVersion = events.SchemaVersion
		ev.EventType = events.TypeDeadLetter
		ev.OriginalEvent = original
		letters = append(letters, &ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dead letter rows: %w", err)
	}
	return letters, nil
}

// Count returns the dead letter backlog size.
func (s *DeadLetterStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dead_letters`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count dead letters: %w", MapError(err))
	}
	return count, nil
}

var _ store.DeadLetterStore = (*DeadLetterStore)(nil)
