package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/taskpulse/taskpulse/internal/delivery"
	"github.com/taskpulse/taskpulse/internal/domain"
	"github.com/taskpulse/taskpulse/internal/events"
	"github.com/taskpulse/taskpulse/internal/generation"
	"github.com/taskpulse/taskpulse/internal/recurrence"
)

// ReminderService turns a due reminder trigger into a delivered message.
// The duplicate guard runs before any content is generated; generation
// itself never fails (the cascade guarantees content); delivery failures
// release the claim so a retried trigger can send again.
type ReminderService struct {
	guard     *DuplicateGuard
	cascade   *generation.Cascade
	deliverer delivery.Deliverer
	users     delivery.UserDirectory
	logger    *slog.Logger
}

// NewReminderService creates a ReminderService.
func NewReminderService(
	guard *DuplicateGuard,
	cascade *generation.Cascade,
	deliverer delivery.Deliverer,
	users delivery.UserDirectory,
	logger *slog.Logger,
) (*ReminderService, error) {
	if guard == nil {
		return nil, errors.New("duplicate guard cannot be nil")
	}
	if cascade == nil {
		return nil, errors.New("generation cascade cannot be nil")
	}
	if deliverer == nil {
		return nil, errors.New("deliverer cannot be nil")
	}
	if users == nil {
		return nil, errors.New("user directory cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &ReminderService{
		guard:     guard,
		cascade:   cascade,
		deliverer: deliverer,
		users:     users,
		logger:    logger.With("component", "reminder_service"),
	}, nil
}

// HandleTrigger processes a due reminder. A claim that cannot be taken is a
// logged skip; errors after a successful claim release it before returning
// so the reminder is not lost.
func (s *ReminderService) HandleTrigger(ctx context.Context, ev *events.ReminderEvent) error {
	claimed, err := s.guard.TryClaim(ctx, ev.TaskID, ev.ReminderTime)
	if err != nil {
		return err
	}
	if !claimed {
		s.logger.InfoContext(ctx, "reminder already claimed, skipping",
			"task_id", ev.TaskID,
			"reminder_at", ev.ReminderTime,
			"event_id", ev.EventID)
		return nil
	}

	user := s.recipient(ctx, ev.UserID)
	loc, fellBack := recurrence.LocationOrUTC(user.Timezone)
	if fellBack {
		s.logger.WarnContext(ctx, "invalid recipient timezone, formatting in UTC",
			"user_id", ev.UserID,
			"timezone", user.Timezone)
	}

	due := ev.DueDate
	task := &domain.Task{
		ID:          ev.TaskID,
		UserID:      ev.UserID,
		Title:       ev.TaskTitle,
		Description: ev.TaskDescription,
		Status:      domain.TaskStatusPending,
		DueDate:     &due,
	}

	content, path := s.cascade.Generate(ctx, generation.Request{
		Task:     task,
		UserName: user.Name,
		Location: loc,
	})

	if err := s.deliverer.Deliver(ctx, user, content); err != nil {
		if relErr := s.guard.Release(ctx, ev.TaskID, ev.ReminderTime); relErr != nil {
			s.logger.ErrorContext(ctx, "failed to release reminder claim after delivery failure",
				"task_id", ev.TaskID,
				"error", relErr)
		}
		return fmt.Errorf("reminder delivery failed: %w", err)
	}

	s.logger.InfoContext(ctx, "reminder delivered",
		"task_id", ev.TaskID,
		"user_id", ev.UserID,
		"reminder_at", ev.ReminderTime,
		"generation_path", path,
		"event_id", ev.EventID)
	return nil
}

// recipient resolves the task owner, degrading to a minimal projection when
// the directory is unavailable: a reminder with a generic greeting beats no
// reminder.
func (s *ReminderService) recipient(ctx context.Context, userID int64) *domain.User {
	user, err := s.users.Lookup(ctx, userID)
	if err != nil || user == nil {
		s.logger.WarnContext(ctx, "user lookup failed, using minimal recipient",
			"user_id", userID,
			"error", err)
		return &domain.User{ID: userID, Email: "unknown"}
	}
	return user
}
