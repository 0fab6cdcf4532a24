package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/taskpulse/taskpulse/internal/domain"
	"github.com/taskpulse/taskpulse/internal/events"
	"github.com/taskpulse/taskpulse/internal/recurrence"
	"github.com/taskpulse/taskpulse/internal/store"
)

// Idempotency outcomes recorded for completion events.
const (
	OutcomeOccurrenceGenerated = "occurrence_generated"
	OutcomeRecurrenceEnded     = "recurrence_ended"
	OutcomeSkipped             = "skipped"
)

// TimezoneResolver maps a user to their IANA timezone name. An empty return
// means unknown; occurrence math then runs in UTC.
type TimezoneResolver func(userID int64) string

// RecurrenceService reacts to completion events for recurring tasks: it
// computes the next occurrence, advances the lineage state, and emits a
// task.created event for the new occurrence. State advancement and
// idempotency recording commit in one transaction, so a crash between them
// cannot generate the same occurrence twice.
type RecurrenceService struct {
	db          *sql.DB
	runTx       func(ctx context.Context, fn store.TxFn) error
	states      store.RecurringStateStore
	idempotency store.IdempotencyStore
	ids         store.IDAllocator
	publisher   events.Publisher
	resolveTZ   TimezoneResolver
	logger      *slog.Logger
}

// NewRecurrenceService creates a RecurrenceService. resolveTZ may be nil,
// in which case all occurrence math runs in UTC.
func NewRecurrenceService(
	db *sql.DB,
	states store.RecurringStateStore,
	idempotency store.IdempotencyStore,
	ids store.IDAllocator,
	publisher events.Publisher,
	resolveTZ TimezoneResolver,
	logger *slog.Logger,
) (*RecurrenceService, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	if states == nil {
		return nil, errors.New("recurring state store cannot be nil")
	}
	if idempotency == nil {
		return nil, errors.New("idempotency store cannot be nil")
	}
	if ids == nil {
		return nil, errors.New("ID allocator cannot be nil")
	}
	if publisher == nil {
		return nil, errors.New("publisher cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &RecurrenceService{
		db: db,
		runTx: func(ctx context.Context, fn store.TxFn) error {
			return store.RunInTransaction(ctx, db, fn)
		},
		states:      states,
		idempotency: idempotency,
		ids:         ids,
		publisher:   publisher,
		resolveTZ:   resolveTZ,
		logger:      logger.With("component", "recurrence_service"),
	}, nil
}

// HandleCompletion processes a task.completed event. Non-recurring tasks
// are skipped. For recurring tasks it computes the next occurrence in the
// owner's timezone, advances RecurringTaskState, publishes the new
// occurrence, and records the idempotency key, all in one transaction. A
// rule whose end date has passed marks the lineage terminal and emits
// nothing.
func (s *RecurrenceService) HandleCompletion(ctx context.Context, ev *events.TaskEvent) error {
	task, err := ev.Task()
	if err != nil {
		return err
	}
	if !task.IsRecurring() {
		s.logger.DebugContext(ctx, "completion of non-recurring task, nothing to generate",
			"task_id", task.ID)
		return nil
	}

	lineage := task.LineageID()
	loc := s.location(ctx, task.UserID)
	reference := s.reference(ev)

	var (
		next       time.Time
		occurrence *events.TaskEvent
	)

	err = s.runTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		states := s.states.WithTx(tx)

		state, err := states.Get(ctx, lineage)
		if err != nil && !errors.Is(err, store.ErrStateNotFound) {
			return err
		}
		if state != nil {
			if state.Terminal {
				s.logger.InfoContext(ctx, "lineage already terminal, skipping",
					"lineage_id", lineage)
				return s.record(ctx, tx, ev, OutcomeSkipped)
			}
			// A replayed or out-of-order completion must not move
			// the lineage backwards.
			if reference.Before(state.LastGeneratedAt) {
				reference = state.LastGeneratedAt
			}
		}

		// The completion decides which date occurrence math starts
		// from; the original due instant decides the time of day.
		if task.DueDate != nil {
			reference = recurrence.OnDueClock(reference, *task.DueDate, loc)
		}

		next, err = recurrence.NextOccurrence(task.Recurrence, reference, loc)
		if errors.Is(err, recurrence.ErrRecurrenceEnded) {
			if state != nil {
				if err := states.MarkTerminal(ctx, lineage); err != nil {
					return err
				}
			} else {
				terminal := &domain.RecurringTaskState{
					TaskID:          lineage,
					LastGeneratedAt: reference,
					Terminal:        true,
				}
				if err := states.Upsert(ctx, terminal); err != nil {
					return err
				}
			}
			return s.record(ctx, tx, ev, OutcomeRecurrenceEnded)
		}
		if err != nil {
			return err
		}

		newState := &domain.RecurringTaskState{
			TaskID:            lineage,
			LastGeneratedAt:   time.Now().UTC(),
			NextOccurrenceDue: &next,
		}
		if err := states.Upsert(ctx, newState); err != nil {
			if errors.Is(err, store.ErrStaleState) {
				// A concurrent worker already advanced the
				// lineage; this completion has nothing to add.
				s.logger.InfoContext(ctx, "lineage state already advanced, skipping",
					"lineage_id", lineage)
				return s.record(ctx, tx, ev, OutcomeSkipped)
			}
			return err
		}

		// The occurrence is emitted before the idempotency entry is
		// recorded. A failed publish rolls everything back, so the
		// redelivered completion regenerates instead of being skipped
		// as already seen.
		occurrence, err = s.buildOccurrence(ctx, task, lineage, next)
		if err != nil {
			return err
		}
		if err := s.publisher.Publish(ctx, events.TopicTaskEvents, occurrence); err != nil {
			occurrence = nil
			return fmt.Errorf("failed to publish occurrence event: %w", err)
		}

		return s.record(ctx, tx, ev, OutcomeOccurrenceGenerated)
	})
	if err != nil {
		return err
	}
	if occurrence == nil {
		return nil
	}

	s.logger.InfoContext(ctx, "generated next occurrence",
		"lineage_id", lineage,
		"occurrence_task_id", occurrence.TaskID,
		"next_due", next,
		"event_id", occurrence.EventID)
	return nil
}

// HandleDeletion drops recurrence tracking for a deleted task lineage.
func (s *RecurrenceService) HandleDeletion(ctx context.Context, ev *events.TaskEvent) error {
	parent := ev.TaskData.ParentTaskID
	lineage := ev.TaskID
	if parent != nil {
		lineage = *parent
	}
	if err := s.states.Delete(ctx, lineage); err != nil {
		return err
	}
	s.logger.DebugContext(ctx, "dropped recurrence state", "lineage_id", lineage)
	return nil
}

// buildOccurrence creates the task.created event for the next occurrence.
// The new task keeps the recurring task's content and rule, points its
// parent at the lineage head, and carries the computed due date.
func (s *RecurrenceService) buildOccurrence(
	ctx context.Context,
	task *domain.Task,
	lineage int64,
	next time.Time,
) (*events.TaskEvent, error) {
	occurrenceID, err := s.ids.NextTaskID(ctx)
	if err != nil {
		return nil, err
	}

	due := next.UTC()
	data := events.TaskData{
		Title:          task.Title,
		Description:    task.Description,
		Status:         string(domain.TaskStatusPending),
		Priority:       task.Priority,
		Tags:           task.Tags,
		DueDate:        &due,
		RecurrenceRule: task.Recurrence,
		ParentTaskID:   &lineage,
	}
	if task.ReminderOffset > 0 {
		data.ReminderOffset = events.FormatISODuration(task.ReminderOffset)
	}
	return events.NewTaskEvent(events.TypeTaskCreated, occurrenceID, task.UserID, data), nil
}

// record writes the idempotency key inside the surrounding transaction.
func (s *RecurrenceService) record(ctx context.Context, tx *sql.Tx, ev *events.TaskEvent, outcome string) error {
	return s.idempotency.WithTx(tx).Record(ctx, ev.EventID.String(), outcome, domain.IdempotencyTTL)
}

// location resolves the task owner's timezone, falling back to UTC for
// unknown or invalid names.
func (s *RecurrenceService) location(ctx context.Context, userID int64) *time.Location {
	name := ""
	if s.resolveTZ != nil {
		name = s.resolveTZ(userID)
	}
	loc, fellBack := recurrence.LocationOrUTC(name)
	if fellBack {
		s.logger.WarnContext(ctx, "invalid timezone, falling back to UTC",
			"user_id", userID,
			"timezone", name)
	}
	return loc
}

// reference picks the instant occurrence math starts from: the completion
// time when the producer supplied one, otherwise the event timestamp.
func (s *RecurrenceService) reference(ev *events.TaskEvent) time.Time {
	if ev.TaskData.CompletedAt != nil {
		return ev.TaskData.CompletedAt.UTC()
	}
	return ev.Timestamp.UTC()
}
