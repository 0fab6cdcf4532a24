package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/taskpulse/taskpulse/internal/domain"
	"github.com/taskpulse/taskpulse/internal/store"
)

// DuplicateGuard decides whether a reminder for a (task, instant) pair may
// be sent. It first checks a tolerance window around the instant to absorb
// scheduler jitter, then claims the pair by inserting a reminder record.
// The storage-level unique constraint is the final arbiter: when two
// workers race, exactly one insert succeeds.
type DuplicateGuard struct {
	reminders store.ReminderStore
	tolerance time.Duration
	logger    *slog.Logger
}

// NewDuplicateGuard creates a DuplicateGuard with the given tolerance
// window. Two reminder instants for the same task closer than the tolerance
// are treated as the same logical reminder.
func NewDuplicateGuard(reminders store.ReminderStore, tolerance time.Duration, logger *slog.Logger) (*DuplicateGuard, error) {
	if reminders == nil {
		return nil, errors.New("reminder store cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if tolerance <= 0 {
		tolerance = time.Minute
	}
	return &DuplicateGuard{
		reminders: reminders,
		tolerance: tolerance,
		logger:    logger.With("component", "duplicate_guard"),
	}, nil
}

// TryClaim attempts to claim the (task, instant) pair. It returns true when
// this caller owns the reminder and must send it, false when another send
// already happened or is in flight. A false return is a normal skip, not an
// error.
func (g *DuplicateGuard) TryClaim(ctx context.Context, taskID int64, at time.Time) (bool, error) {
	exists, err := g.reminders.ExistsWithin(ctx, taskID, at, g.tolerance)
	if err != nil {
		return false, fmt.Errorf("duplicate window check failed: %w", err)
	}
	if exists {
		g.logger.InfoContext(ctx, "reminder already sent within tolerance window",
			"task_id", taskID,
			"reminder_at", at,
			"tolerance", g.tolerance)
		return false, nil
	}

	rec, err := domain.NewReminderRecord(taskID, at)
	if err != nil {
		return false, err
	}

	if err := g.reminders.Insert(ctx, rec); err != nil {
		if errors.Is(err, store.ErrReminderExists) {
			// Lost the insert race; the winner sends.
			g.logger.InfoContext(ctx, "lost reminder claim race",
				"task_id", taskID,
				"reminder_at", at)
			return false, nil
		}
		return false, fmt.Errorf("reminder claim failed: %w", err)
	}
	return true, nil
}

// Release gives up a claim after delivery failed, so a retried trigger can
// claim and send again.
func (g *DuplicateGuard) Release(ctx context.Context, taskID int64, at time.Time) error {
	return g.reminders.Delete(ctx, taskID, at)
}
