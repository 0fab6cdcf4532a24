// Package consumer implements the event dispatcher of the reminder
// pipeline. It consumes task lifecycle events, applies idempotency, routes
// to occurrence generation or reminder scheduling, retries transient
// failures with exponential backoff, and dead-letters what cannot be
// processed.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskpulse/taskpulse/internal/config"
	"github.com/taskpulse/taskpulse/internal/domain"
	"github.com/taskpulse/taskpulse/internal/events"
	"github.com/taskpulse/taskpulse/internal/scheduler"
	"github.com/taskpulse/taskpulse/internal/service"
	"github.com/taskpulse/taskpulse/internal/store"
)

// outcomeCommitted is recorded for events fully processed by the consumer
// itself; the recurrence service records its own, more specific outcomes.
const outcomeCommitted = "committed"

// envelope carries one event through a worker partition.
type envelope struct {
	payload json.RawMessage
	event   *events.TaskEvent
}

// RecurrenceHandler is the slice of the recurrence service the dispatcher
// needs. Implementations report whether they recorded the idempotency key
// themselves through their return contract (see route).
type RecurrenceHandler interface {
	HandleCompletion(ctx context.Context, ev *events.TaskEvent) error
	HandleDeletion(ctx context.Context, ev *events.TaskEvent) error
}

// TriggerHandler processes due reminder triggers.
type TriggerHandler interface {
	HandleTrigger(ctx context.Context, ev *events.ReminderEvent) error
}

// JobScheduler is the slice of the reminder scheduler the dispatcher needs.
type JobScheduler interface {
	Schedule(taskID int64, at time.Time, payload *events.ReminderEvent) (uuid.UUID, error)
	Reschedule(taskID int64, at time.Time, payload *events.ReminderEvent) (uuid.UUID, error)
	Cancel(taskID int64) bool
}

// Deps bundles the collaborators the consumer dispatches to.
type Deps struct {
	Idempotency store.IdempotencyStore
	DeadLetters store.DeadLetterStore
	Reminders   store.ReminderStore
	Scheduled   store.ScheduledReminderStore
	Recurrence  RecurrenceHandler
	Reminder    TriggerHandler
	Scheduler   JobScheduler
	Publisher   events.Publisher
}

var _ JobScheduler = (*scheduler.ReminderScheduler)(nil)
var _ RecurrenceHandler = (*service.RecurrenceService)(nil)
var _ TriggerHandler = (*service.ReminderService)(nil)

// partitionBuffer bounds each worker's queue. Arrivals beyond it are
// dead-lettered rather than blocked on.
const partitionBuffer = 64

// Consumer is the partitioned dispatcher. Events are hashed onto workers by
// task ID, so events for the same task always process in order while
// unrelated tasks proceed in parallel.
type Consumer struct {
	cfg    config.ConsumerConfig
	deps   Deps
	logger *slog.Logger

	partitions []chan envelope
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// New creates a Consumer. All Deps fields are required.
func New(cfg config.ConsumerConfig, deps Deps, logger *slog.Logger) (*Consumer, error) {
	if deps.Idempotency == nil || deps.DeadLetters == nil || deps.Reminders == nil || deps.Scheduled == nil {
		return nil, errors.New("consumer stores cannot be nil")
	}
	if deps.Recurrence == nil || deps.Reminder == nil || deps.Scheduler == nil {
		return nil, errors.New("consumer services cannot be nil")
	}
	if deps.Publisher == nil {
		return nil, errors.New("publisher cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Consumer{
		cfg:        cfg,
		deps:       deps,
		logger:     logger.With("component", "event_consumer"),
		partitions: make([]chan envelope, workers),
		ctx:        ctx,
		cancel:     cancel,
	}
	for i := range c.partitions {
		c.partitions[i] = make(chan envelope, partitionBuffer)
	}
	return c, nil
}

// Start launches the worker partitions and subscribes to the task event
// topic.
func (c *Consumer) Start(bus events.Subscriber) {
	for i := range c.partitions {
		c.wg.Add(1)
		go c.worker(i)
	}
	bus.Subscribe(events.TopicTaskEvents, c.HandleEnvelope)
	c.logger.Info("event consumer started", "workers", len(c.partitions))
}

// RestoreScheduled re-arms reminder timers from the durable mirror. Called
// once at startup, after Start: timers do not survive a restart, the mirror
// rows do. Past-due entries follow the scheduler's past-due policy.
func (c *Consumer) RestoreScheduled(ctx context.Context) error {
	pending, err := c.deps.Scheduled.All(ctx)
	if err != nil {
		return fmt.Errorf("failed to load scheduled reminders: %w", err)
	}

	for _, ev := range pending {
		jobID, err := c.deps.Scheduler.Schedule(ev.TaskID, ev.ReminderTime, ev)
		if err != nil {
			return fmt.Errorf("failed to re-arm reminder for task %d: %w", ev.TaskID, err)
		}
		if jobID == uuid.Nil {
			if err := c.deps.Scheduled.Delete(ctx, ev.TaskID); err != nil {
				return err
			}
		}
	}

	if len(pending) > 0 {
		c.logger.Info("re-armed scheduled reminders", "count", len(pending))
	}
	return nil
}

// Stop halts the consumer: no new events are accepted and workers finish
// their current event. Queued events are dropped from memory; the
// at-least-once producer redelivers them.
func (c *Consumer) Stop() {
	c.cancel()
	c.wg.Wait()
	c.logger.Info("event consumer stopped")
}

// HandleEnvelope is the bus entry point. Schema violations dead-letter
// immediately; well-formed events are enqueued onto the partition owning
// their task ID. The error return acknowledges to the bus: nil means the
// event was accepted (possibly as a dead letter).
func (c *Consumer) HandleEnvelope(ctx context.Context, payload json.RawMessage) error {
	if err := events.ValidateTaskEventPayload(payload); err != nil {
		c.logger.Warn("event failed schema validation, dead-lettering",
			"error", err)
		c.deadLetter(ctx, payload, err, 0, time.Now().UTC())
		return nil
	}

	var ev events.TaskEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		wrapped := fmt.Errorf("%w: %v", domain.ErrInvalidFormat, err)
		c.deadLetter(ctx, payload, wrapped, 0, time.Now().UTC())
		return nil
	}

	idx := int(ev.TaskID % int64(len(c.partitions)))
	if idx < 0 {
		idx = -idx
	}

	select {
	case c.partitions[idx] <- envelope{payload: payload, event: &ev}:
		return nil
	case <-c.ctx.Done():
		return errors.New("consumer is stopped")
	default:
		// The enqueue must never block: occurrence events are published
		// from inside a worker, and a blocking send onto that worker's
		// own full partition would deadlock it. The dead letter keeps
		// the event replayable.
		c.logger.Error("partition queue full, dead-lettering",
			"partition", idx,
			"task_id", ev.TaskID)
		c.deadLetter(ctx, payload, ErrQueueFull, 0, time.Now().UTC())
		return nil
	}
}

// HandleReminderTrigger processes a due reminder from the scheduler with
// the same retry and dead-letter policy as bus events. It is installed as
// the scheduler's trigger function.
func (c *Consumer) HandleReminderTrigger(ctx context.Context, ev *events.ReminderEvent) {
	firstAttempt := time.Now().UTC()

	for attempt := 0; ; attempt++ {
		err := c.deps.Reminder.HandleTrigger(ctx, ev)
		if err == nil {
			if delErr := c.deps.Scheduled.Delete(ctx, ev.TaskID); delErr != nil {
				// The maintenance sweep will re-fire the stale
				// mirror row; the duplicate guard absorbs it.
				c.logger.Warn("failed to clear scheduled reminder mirror",
					"task_id", ev.TaskID,
					"error", delErr)
			}
			if pubErr := c.deps.Publisher.Publish(ctx, events.TopicReminders, ev); pubErr != nil {
				c.logger.Warn("failed to publish reminder event",
					"task_id", ev.TaskID,
					"error", pubErr)
			}
			return
		}

		if done := c.handleFailure(ctx, err, attempt, firstAttempt, func() json.RawMessage {
			payload, _ := json.Marshal(ev)
			return payload
		}); done {
			return
		}
	}
}

func (c *Consumer) worker(idx int) {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		case env := <-c.partitions[idx]:
			c.process(c.ctx, env)
		}
	}
}

// process drives one event through the retry state machine.
func (c *Consumer) process(ctx context.Context, env envelope) {
	firstAttempt := time.Now().UTC()

	for attempt := 0; ; attempt++ {
		err := c.processOnce(ctx, env.event)
		if err == nil {
			return
		}

		if done := c.handleFailure(ctx, err, attempt, firstAttempt, func() json.RawMessage {
			return env.payload
		}); done {
			return
		}
	}
}

// handleFailure classifies a processing error and either dead-letters
// (returning true) or sleeps before the next retry (returning false).
func (c *Consumer) handleFailure(
	ctx context.Context,
	err error,
	attempt int,
	firstAttempt time.Time,
	payload func() json.RawMessage,
) bool {
	if IsPermanent(err) {
		c.logger.Warn("permanent failure, dead-lettering",
			"error", err,
			"attempt", attempt+1)
		c.deadLetter(ctx, payload(), err, attempt, firstAttempt)
		return true
	}

	if attempt >= c.cfg.MaxRetries {
		c.logger.Error("retries exhausted, dead-lettering",
			"error", err,
			"attempts", attempt+1)
		c.deadLetter(ctx, payload(), err, attempt, firstAttempt)
		return true
	}

	delay := c.backoff(attempt)
	c.logger.Warn("transient failure, retrying",
		"error", err,
		"attempt", attempt+1,
		"delay", delay)

	select {
	case <-time.After(delay):
		return false
	case <-c.ctx.Done():
		// Shutdown mid-retry: the event is lost from memory, but the
		// at-least-once producer will redeliver it.
		return true
	}
}

// processOnce runs the idempotency check and routes the event. Returning
// nil commits the event; any error goes through retry classification.
func (c *Consumer) processOnce(ctx context.Context, ev *events.TaskEvent) error {
	key := ev.EventID.String()

	seen, err := c.deps.Idempotency.Seen(ctx, key)
	if err != nil {
		return fmt.Errorf("idempotency check failed: %w", err)
	}
	if seen {
		c.logger.Info("duplicate event, skipping",
			"event_id", key,
			"event_type", ev.EventType)
		return nil
	}

	recorded, err := c.route(ctx, ev)
	if err != nil {
		return err
	}
	if recorded {
		return nil
	}

	if err := c.deps.Idempotency.Record(ctx, key, outcomeCommitted, domain.IdempotencyTTL); err != nil {
		return fmt.Errorf("failed to record idempotency key: %w", err)
	}
	return nil
}

// route dispatches by event type. The bool reports whether the route
// already recorded the idempotency key itself (the recurrence service does,
// inside its transaction).
func (c *Consumer) route(ctx context.Context, ev *events.TaskEvent) (bool, error) {
	switch ev.EventType {
	case events.TypeTaskCompleted:
		// A completed task can have no pending reminder.
		c.deps.Scheduler.Cancel(ev.TaskID)
		if ev.TaskData.RecurrenceRule == nil {
			return false, nil
		}
		if err := c.deps.Recurrence.HandleCompletion(ctx, ev); err != nil {
			return false, err
		}
		return true, nil

	case events.TypeTaskCreated, events.TypeTaskUpdated:
		return false, c.scheduleReminder(ctx, ev)

	case events.TypeTaskDeleted:
		return false, c.handleDeletion(ctx, ev)

	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownEventType, ev.EventType)
	}
}

// scheduleReminder arms (or re-arms) the reminder trigger for a created or
// updated task. Tasks without a due date and offset get no reminder; on
// update that also cancels any previously armed trigger.
func (c *Consumer) scheduleReminder(ctx context.Context, ev *events.TaskEvent) error {
	task, err := ev.Task()
	if err != nil {
		return err
	}

	trigger, ok := task.ReminderTriggerAt()
	if !ok {
		if ev.EventType == events.TypeTaskUpdated {
			c.deps.Scheduler.Cancel(task.ID)
			if err := c.deps.Scheduled.Delete(ctx, task.ID); err != nil {
				return err
			}
		}
		c.logger.Debug("task has no reminder trigger",
			"task_id", task.ID,
			"event_type", ev.EventType)
		return nil
	}

	payload := events.NewReminderEvent(task, trigger)

	// The durable mirror is written before the timer arms: a crash between
	// the two leaves a row the startup restore re-arms, never a timer
	// without a row.
	if err := c.deps.Scheduled.Upsert(ctx, payload); err != nil {
		return fmt.Errorf("failed to persist scheduled reminder: %w", err)
	}

	var jobID uuid.UUID
	if ev.EventType == events.TypeTaskUpdated {
		jobID, err = c.deps.Scheduler.Reschedule(task.ID, trigger, payload)
	} else {
		jobID, err = c.deps.Scheduler.Schedule(task.ID, trigger, payload)
	}
	if err != nil {
		return fmt.Errorf("failed to schedule reminder: %w", err)
	}
	if jobID == uuid.Nil {
		// Past-due trigger dropped by policy; the mirror row must not
		// outlive the decision.
		return c.deps.Scheduled.Delete(ctx, task.ID)
	}

	c.logger.Info("reminder scheduled",
		"task_id", task.ID,
		"trigger_at", trigger,
		"job_id", jobID,
		"event_id", ev.EventID)
	return nil
}

// handleDeletion tears down everything tied to a deleted task: the armed
// trigger, its reminder claims, and recurrence tracking for its lineage.
func (c *Consumer) handleDeletion(ctx context.Context, ev *events.TaskEvent) error {
	c.deps.Scheduler.Cancel(ev.TaskID)

	if err := c.deps.Scheduled.Delete(ctx, ev.TaskID); err != nil {
		return err
	}
	if _, err := c.deps.Reminders.DeleteForTask(ctx, ev.TaskID); err != nil {
		return err
	}
	if err := c.deps.Recurrence.HandleDeletion(ctx, ev); err != nil {
		return err
	}

	c.logger.Info("task deleted, reminders and recurrence state dropped",
		"task_id", ev.TaskID,
		"event_id", ev.EventID)
	return nil
}

// backoff computes the delay before retry attempt+1: base doubled per
// attempt, capped.
func (c *Consumer) backoff(attempt int) time.Duration {
	delay := c.cfg.RetryBaseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= c.cfg.RetryMaxDelay {
			return c.cfg.RetryMaxDelay
		}
	}
	if delay > c.cfg.RetryMaxDelay {
		return c.cfg.RetryMaxDelay
	}
	return delay
}

// deadLetter persists the failed event and announces it on the dead letter
// topic. Sink failures are logged, never propagated: dead-lettering is the
// end of the line.
func (c *Consumer) deadLetter(ctx context.Context, payload json.RawMessage, cause error, retries int, firstAttempt time.Time) {
	dl := events.NewDeadLetterEvent(payload, cause.Error(), retries, firstAttempt, time.Now().UTC())

	if err := c.deps.DeadLetters.Save(ctx, dl); err != nil {
		c.logger.Error("failed to persist dead letter",
			"error", err,
			"cause", cause)
	}
	if err := c.deps.Publisher.Publish(ctx, events.TopicDeadLetters, dl); err != nil {
		c.logger.Error("failed to publish dead letter",
			"error", err,
			"cause", cause)
	}
}
