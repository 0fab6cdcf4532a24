// Package scheduler maintains the in-process timer set that fires reminder
// triggers at their due instants, plus the cron-driven maintenance sweeps.
// Timers are cheap in-memory state; the durable duplicate suppression that
// makes lost or doubled timers harmless lives in the service layer.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskpulse/taskpulse/internal/events"
)

// TriggerFunc is invoked when a scheduled reminder comes due. Implementations
// own their error handling; the scheduler only dispatches.
type TriggerFunc func(ctx context.Context, ev *events.ReminderEvent)

// job is one pending reminder timer.
type job struct {
	id    uuid.UUID
	at    time.Time
	timer *time.Timer
}

// ReminderScheduler keeps at most one pending reminder timer per task.
// Scheduling a task that already has a pending timer atomically replaces it,
// so an updated due date can never leave the old trigger armed.
type ReminderScheduler struct {
	mu   sync.Mutex
	jobs map[int64]*job

	trigger     TriggerFunc
	firePastDue bool
	logger      *slog.Logger

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// now is a test seam; production uses time.Now.
	now func() time.Time
}

// New creates a ReminderScheduler dispatching due reminders to trigger.
// firePastDue selects what happens when a trigger instant has already
// passed at scheduling time: fire immediately (true) or drop (false).
func New(trigger TriggerFunc, firePastDue bool, logger *slog.Logger) (*ReminderScheduler, error) {
	if trigger == nil {
		return nil, errors.New("trigger cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &ReminderScheduler{
		jobs:        make(map[int64]*job),
		trigger:     trigger,
		firePastDue: firePastDue,
		logger:      logger.With("component", "reminder_scheduler"),
		baseCtx:     ctx,
		cancel:      cancel,
		now:         time.Now,
	}, nil
}

// Schedule arms a reminder for the task to fire at the given UTC instant,
// replacing any pending reminder for the same task. It returns the job ID,
// or uuid.Nil when a past-due trigger was dropped by policy.
func (s *ReminderScheduler) Schedule(taskID int64, at time.Time, payload *events.ReminderEvent) (uuid.UUID, error) {
	if payload == nil {
		return uuid.Nil, errors.New("payload cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.baseCtx.Err() != nil {
		return uuid.Nil, errors.New("scheduler is stopped")
	}

	s.cancelLocked(taskID)

	jobID := uuid.New()
	delay := at.Sub(s.now())

	if delay <= 0 {
		if !s.firePastDue {
			s.logger.Info("dropping past-due reminder",
				"task_id", taskID,
				"trigger_at", at)
			return uuid.Nil, nil
		}
		s.logger.Info("firing past-due reminder immediately",
			"task_id", taskID,
			"trigger_at", at)
		s.dispatch(payload)
		return jobID, nil
	}

	s.jobs[taskID] = &job{
		id: jobID,
		at: at,
		timer: time.AfterFunc(delay, func() {
			s.fire(taskID, jobID, payload)
		}),
	}

	s.logger.Debug("scheduled reminder",
		"task_id", taskID,
		"job_id", jobID,
		"trigger_at", at,
		"delay", delay)
	return jobID, nil
}

// Reschedule atomically replaces the pending reminder for the task. It is
// Schedule under a name that states the intent at call sites.
func (s *ReminderScheduler) Reschedule(taskID int64, at time.Time, payload *events.ReminderEvent) (uuid.UUID, error) {
	return s.Schedule(taskID, at, payload)
}

// Cancel removes the pending reminder for the task, reporting whether one
// existed. Cancelling a task with no pending reminder is a no-op.
func (s *ReminderScheduler) Cancel(taskID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelLocked(taskID)
}

func (s *ReminderScheduler) cancelLocked(taskID int64) bool {
	j, ok := s.jobs[taskID]
	if !ok {
		return false
	}
	j.timer.Stop()
	delete(s.jobs, taskID)
	s.logger.Debug("cancelled reminder", "task_id", taskID, "job_id", j.id)
	return true
}

// Pending returns the number of armed reminder timers.
func (s *ReminderScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Stop cancels all pending timers and waits for in-flight triggers to
// finish. The scheduler cannot be reused after Stop.
func (s *ReminderScheduler) Stop() {
	s.cancel()

	s.mu.Lock()
	for taskID, j := range s.jobs {
		j.timer.Stop()
		delete(s.jobs, taskID)
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Debug("scheduler stopped")
}

// fire runs on the timer goroutine. A job that was cancelled or replaced
// between the timer firing and the lock being taken is ignored; the
// replacement owns the task now.
func (s *ReminderScheduler) fire(taskID int64, jobID uuid.UUID, payload *events.ReminderEvent) {
	s.mu.Lock()
	current, ok := s.jobs[taskID]
	if !ok || current.id != jobID {
		s.mu.Unlock()
		return
	}
	delete(s.jobs, taskID)

	if s.baseCtx.Err() != nil {
		s.mu.Unlock()
		return
	}
	s.dispatch(payload)
	s.mu.Unlock()
}

// dispatch hands the payload to the trigger on its own goroutine so a slow
// trigger never delays other timers. Callers hold s.mu.
func (s *ReminderScheduler) dispatch(payload *events.ReminderEvent) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.trigger(s.baseCtx, payload)
	}()
}
