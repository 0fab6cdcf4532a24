package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/taskpulse/taskpulse/internal/events"
	"github.com/taskpulse/taskpulse/internal/store"
)

// sweepTimeout bounds one maintenance sweep.
const sweepTimeout = 30 * time.Second

// RequeueFunc re-fires a reminder trigger whose timer was lost, typically
// across a restart. Implementations carry their own retry and dead-letter
// policy; a nil error means the trigger was fully handled.
type RequeueFunc func(ctx context.Context, ev *events.ReminderEvent) error

// Maintenance runs periodic housekeeping on a cron schedule: purging expired
// idempotency keys, re-firing reminders that came due with no armed timer,
// and reporting the dead letter backlog.
type Maintenance struct {
	cron        *cron.Cron
	idempotency store.IdempotencyStore
	deadLetters store.DeadLetterStore
	scheduled   store.ScheduledReminderStore
	requeue     RequeueFunc
	logger      *slog.Logger
}

// NewMaintenance creates the maintenance sweeper on the given cron schedule
// (standard five-field cron syntax).
func NewMaintenance(
	schedule string,
	idempotency store.IdempotencyStore,
	deadLetters store.DeadLetterStore,
	scheduled store.ScheduledReminderStore,
	requeue RequeueFunc,
	logger *slog.Logger,
) (*Maintenance, error) {
	if idempotency == nil {
		return nil, errors.New("idempotency store cannot be nil")
	}
	if deadLetters == nil {
		return nil, errors.New("dead letter store cannot be nil")
	}
	if scheduled == nil {
		return nil, errors.New("scheduled reminder store cannot be nil")
	}
	if requeue == nil {
		return nil, errors.New("requeue func cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	m := &Maintenance{
		cron:        cron.New(),
		idempotency: idempotency,
		deadLetters: deadLetters,
		scheduled:   scheduled,
		requeue:     requeue,
		logger:      logger.With("component", "maintenance"),
	}

	if _, err := m.cron.AddFunc(schedule, m.sweep); err != nil {
		return nil, errors.New("invalid sweep schedule: " + err.Error())
	}
	return m, nil
}

// Start begins running sweeps on schedule.
func (m *Maintenance) Start() {
	m.cron.Start()
	m.logger.Info("maintenance sweeps started")
}

// Stop halts the schedule and waits for a running sweep to finish.
func (m *Maintenance) Stop() {
	<-m.cron.Stop().Done()
	m.logger.Info("maintenance sweeps stopped")
}

// sweep runs one housekeeping pass. Failures are logged, never fatal; the
// next scheduled sweep retries naturally.
func (m *Maintenance) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	purged, err := m.idempotency.PurgeExpired(ctx)
	if err != nil {
		m.logger.Error("failed to purge expired idempotency keys", "error", err)
	} else if purged > 0 {
		m.logger.Info("purged expired idempotency keys", "count", purged)
	}

	m.requeueMissed(ctx)

	backlog, err := m.deadLetters.Count(ctx)
	if err != nil {
		m.logger.Error("failed to count dead letter backlog", "error", err)
	} else if backlog > 0 {
		m.logger.Warn("dead letter backlog is non-empty", "count", backlog)
	}
}

// requeueMissed re-fires scheduled reminders whose trigger instant passed
// while no in-memory timer was armed for them (a timer fired without
// clearing its mirror row, or the process was down). The requeue handler
// dead-letters what it cannot process, so rows are cleared either way; the
// duplicate guard makes re-fired triggers that already sent harmless.
func (m *Maintenance) requeueMissed(ctx context.Context) {
	missed, err := m.scheduled.Due(ctx, time.Now().UTC())
	if err != nil {
		m.logger.Error("failed to load missed reminders", "error", err)
		return
	}

	for _, ev := range missed {
		if err := m.requeue(ctx, ev); err != nil {
			m.logger.Error("failed to requeue missed reminder",
				"task_id", ev.TaskID,
				"error", err)
			continue
		}
		if err := m.scheduled.Delete(ctx, ev.TaskID); err != nil {
			m.logger.Error("failed to clear requeued reminder",
				"task_id", ev.TaskID,
				"error", err)
		}
	}

	if len(missed) > 0 {
		m.logger.Info("requeued missed reminders", "count", len(missed))
	}
}
