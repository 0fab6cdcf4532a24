package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskpulse/taskpulse/internal/domain"
	"github.com/taskpulse/taskpulse/internal/events"
	"github.com/taskpulse/taskpulse/internal/store"
)

// fakeStateStore keeps lineage state in memory and enforces the monotonic
// LastGeneratedAt guard the SQL upsert provides.
type fakeStateStore struct {
	mu     sync.Mutex
	states map[int64]*domain.RecurringTaskState

	upsertErr error
}

func newFakeStateStore() *fakeStateStore {
	return &fakeStateStore{states: make(map[int64]*domain.RecurringTaskState)}
}

func (f *fakeStateStore) Get(_ context.Context, taskID int64) (*domain.RecurringTaskState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.states[taskID]
	if !ok {
		return nil, store.ErrStateNotFound
	}
	cp := *state
	return &cp, nil
}

func (f *fakeStateStore) Upsert(_ context.Context, state *domain.RecurringTaskState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	if existing, ok := f.states[state.TaskID]; ok && state.LastGeneratedAt.Before(existing.LastGeneratedAt) {
		return store.ErrStaleState
	}
	cp := *state
	f.states[state.TaskID] = &cp
	return nil
}

func (f *fakeStateStore) MarkTerminal(_ context.Context, taskID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.states[taskID]
	if !ok {
		return store.ErrStateNotFound
	}
	state.Terminal = true
	return nil
}

func (f *fakeStateStore) Delete(_ context.Context, taskID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.states, taskID)
	return nil
}

func (f *fakeStateStore) WithTx(*sql.Tx) store.RecurringStateStore { return f }

func (f *fakeStateStore) get(taskID int64) *domain.RecurringTaskState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.states[taskID]
}

// fakeIdemStore records idempotency outcomes in memory.
type fakeIdemStore struct {
	mu       sync.Mutex
	outcomes map[string]string
}

func newFakeIdemStore() *fakeIdemStore {
	return &fakeIdemStore{outcomes: make(map[string]string)}
}

func (f *fakeIdemStore) Seen(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.outcomes[key]
	return ok, nil
}

func (f *fakeIdemStore) Record(_ context.Context, key, outcome string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes[key] = outcome
	return nil
}

func (f *fakeIdemStore) PurgeExpired(context.Context) (int64, error) { return 0, nil }

func (f *fakeIdemStore) WithTx(*sql.Tx) store.IdempotencyStore { return f }

func (f *fakeIdemStore) outcome(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.outcomes[key]
}

// fakeIDAllocator hands out IDs from the occurrence band.
type fakeIDAllocator struct {
	mu   sync.Mutex
	next int64
}

func (f *fakeIDAllocator) NextTaskID(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.next == 0 {
		f.next = 1000000000
	}
	id := f.next
	f.next++
	return id, nil
}

// capturingPublisher records published events.
type capturingPublisher struct {
	mu        sync.Mutex
	published []publishedEvent
	err       error
}

type publishedEvent struct {
	topic string
	event any
}

func (p *capturingPublisher) Publish(_ context.Context, topic string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, publishedEvent{topic: topic, event: event})
	return nil
}

func (p *capturingPublisher) taskEvents() []*events.TaskEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*events.TaskEvent
	for _, pub := range p.published {
		if ev, ok := pub.event.(*events.TaskEvent); ok && pub.topic == events.TopicTaskEvents {
			out = append(out, ev)
		}
	}
	return out
}

type recurrenceFixture struct {
	svc       *RecurrenceService
	states    *fakeStateStore
	idem      *fakeIdemStore
	publisher *capturingPublisher
}

func newRecurrenceFixture(t *testing.T, resolveTZ TimezoneResolver) *recurrenceFixture {
	t.Helper()

	states := newFakeStateStore()
	idem := newFakeIdemStore()
	publisher := &capturingPublisher{}

	svc, err := NewRecurrenceService(
		&sql.DB{},
		states,
		idem,
		&fakeIDAllocator{},
		publisher,
		resolveTZ,
		slog.Default(),
	)
	require.NoError(t, err)

	// Unit tests run the transactional body directly; the fakes ignore
	// the nil transaction handle.
	svc.runTx = func(ctx context.Context, fn store.TxFn) error {
		return fn(ctx, nil)
	}

	return &recurrenceFixture{svc: svc, states: states, idem: idem, publisher: publisher}
}

func completionEvent(taskID, userID int64, completedAt time.Time, rule *domain.RecurrenceRule) *events.TaskEvent {
	done := completedAt
	return events.NewTaskEvent(events.TypeTaskCompleted, taskID, userID, events.TaskData{
		Title:          "Water the plants",
		Description:    "Front porch and kitchen",
		Status:         string(domain.TaskStatusCompleted),
		Priority:       "medium",
		Tags:           []string{"home"},
		ReminderOffset: "PT1H",
		RecurrenceRule: rule,
		CompletedAt:    &done,
	})
}

func TestRecurrenceService_HandleCompletion(t *testing.T) {
	t.Parallel()

	t.Run("non-recurring task generates nothing", func(t *testing.T) {
		t.Parallel()

		fix := newRecurrenceFixture(t, nil)
		ev := completionEvent(1, 10, time.Now().UTC(), nil)

		require.NoError(t, fix.svc.HandleCompletion(context.Background(), ev))

		assert.Empty(t, fix.publisher.taskEvents())
		assert.Nil(t, fix.states.get(1))
		assert.Empty(t, fix.idem.outcome(ev.EventID.String()))
	})

	t.Run("daily rule emits next occurrence", func(t *testing.T) {
		t.Parallel()

		fix := newRecurrenceFixture(t, nil)
		completed := time.Date(2026, 9, 14, 10, 0, 0, 0, time.UTC)
		rule := &domain.RecurrenceRule{Frequency: domain.FrequencyDaily, Interval: 1}
		ev := completionEvent(42, 10, completed, rule)

		require.NoError(t, fix.svc.HandleCompletion(context.Background(), ev))

		published := fix.publisher.taskEvents()
		require.Len(t, published, 1)
		occ := published[0]

		assert.Equal(t, events.TypeTaskCreated, occ.EventType)
		assert.GreaterOrEqual(t, occ.TaskID, int64(1000000000), "occurrence IDs come from the reserved band")
		assert.Equal(t, int64(10), occ.UserID)
		assert.Equal(t, "Water the plants", occ.TaskData.Title)
		assert.Equal(t, string(domain.TaskStatusPending), occ.TaskData.Status)
		assert.Equal(t, "PT1H", occ.TaskData.ReminderOffset)
		require.NotNil(t, occ.TaskData.ParentTaskID)
		assert.Equal(t, int64(42), *occ.TaskData.ParentTaskID)
		require.NotNil(t, occ.TaskData.DueDate)
		assert.Equal(t, time.Date(2026, 9, 15, 10, 0, 0, 0, time.UTC), occ.TaskData.DueDate.UTC())

		state := fix.states.get(42)
		require.NotNil(t, state)
		require.NotNil(t, state.NextOccurrenceDue)
		assert.Equal(t, time.Date(2026, 9, 15, 10, 0, 0, 0, time.UTC), state.NextOccurrenceDue.UTC())
		assert.False(t, state.Terminal)

		assert.Equal(t, OutcomeOccurrenceGenerated, fix.idem.outcome(ev.EventID.String()))
	})

	t.Run("weekly rule wraps to next week", func(t *testing.T) {
		t.Parallel()

		fix := newRecurrenceFixture(t, nil)
		// 2026-09-14 is a Monday; a Monday-only rule completed on
		// Monday lands on the following Monday.
		completed := time.Date(2026, 9, 14, 9, 0, 0, 0, time.UTC)
		rule := &domain.RecurrenceRule{
			Frequency:  domain.FrequencyWeekly,
			Interval:   1,
			DaysOfWeek: []int{1},
		}
		ev := completionEvent(7, 10, completed, rule)

		require.NoError(t, fix.svc.HandleCompletion(context.Background(), ev))

		published := fix.publisher.taskEvents()
		require.Len(t, published, 1)
		require.NotNil(t, published[0].TaskData.DueDate)
		assert.Equal(t, time.Date(2026, 9, 21, 9, 0, 0, 0, time.UTC), published[0].TaskData.DueDate.UTC())
	})

	t.Run("occurrence keeps the original due time of day", func(t *testing.T) {
		t.Parallel()

		fix := newRecurrenceFixture(t, nil)
		// Due Monday 10:00 but completed mid-afternoon; the next
		// occurrence lands the following Monday at the due time, not
		// at the completion time.
		due := time.Date(2026, 9, 14, 10, 0, 0, 0, time.UTC)
		completed := time.Date(2026, 9, 14, 14, 37, 0, 0, time.UTC)
		rule := &domain.RecurrenceRule{
			Frequency:  domain.FrequencyWeekly,
			Interval:   1,
			DaysOfWeek: []int{1},
		}
		ev := completionEvent(7, 10, completed, rule)
		ev.TaskData.DueDate = &due

		require.NoError(t, fix.svc.HandleCompletion(context.Background(), ev))

		published := fix.publisher.taskEvents()
		require.Len(t, published, 1)
		require.NotNil(t, published[0].TaskData.DueDate)
		assert.Equal(t, time.Date(2026, 9, 21, 10, 0, 0, 0, time.UTC), published[0].TaskData.DueDate.UTC())
	})

	t.Run("occurrence math runs in the owner's timezone", func(t *testing.T) {
		t.Parallel()

		fix := newRecurrenceFixture(t, func(int64) string { return "America/New_York" })
		// 18:00 EST on the eve of the 2026 spring-forward transition.
		// Preserving local 18:00 across the transition shifts the UTC
		// instant back an hour.
		completed := time.Date(2026, 3, 7, 23, 0, 0, 0, time.UTC)
		rule := &domain.RecurrenceRule{Frequency: domain.FrequencyDaily, Interval: 1}
		ev := completionEvent(5, 10, completed, rule)

		require.NoError(t, fix.svc.HandleCompletion(context.Background(), ev))

		published := fix.publisher.taskEvents()
		require.Len(t, published, 1)
		require.NotNil(t, published[0].TaskData.DueDate)
		assert.Equal(t, time.Date(2026, 3, 8, 22, 0, 0, 0, time.UTC), published[0].TaskData.DueDate.UTC())
	})

	t.Run("invalid timezone falls back to UTC", func(t *testing.T) {
		t.Parallel()

		fix := newRecurrenceFixture(t, func(int64) string { return "Not/AZone" })
		completed := time.Date(2026, 9, 14, 10, 0, 0, 0, time.UTC)
		rule := &domain.RecurrenceRule{Frequency: domain.FrequencyDaily, Interval: 1}
		ev := completionEvent(6, 10, completed, rule)

		require.NoError(t, fix.svc.HandleCompletion(context.Background(), ev))

		published := fix.publisher.taskEvents()
		require.Len(t, published, 1)
		require.NotNil(t, published[0].TaskData.DueDate)
		assert.Equal(t, time.Date(2026, 9, 15, 10, 0, 0, 0, time.UTC), published[0].TaskData.DueDate.UTC())
	})

	t.Run("child completion advances the lineage head", func(t *testing.T) {
		t.Parallel()

		fix := newRecurrenceFixture(t, nil)
		completed := time.Date(2026, 9, 14, 10, 0, 0, 0, time.UTC)
		rule := &domain.RecurrenceRule{Frequency: domain.FrequencyDaily, Interval: 1}
		ev := completionEvent(1000000001, 10, completed, rule)
		parent := int64(42)
		ev.TaskData.ParentTaskID = &parent

		require.NoError(t, fix.svc.HandleCompletion(context.Background(), ev))

		assert.NotNil(t, fix.states.get(42), "state is keyed by the lineage head, not the child")
		assert.Nil(t, fix.states.get(1000000001))

		published := fix.publisher.taskEvents()
		require.Len(t, published, 1)
		require.NotNil(t, published[0].TaskData.ParentTaskID)
		assert.Equal(t, parent, *published[0].TaskData.ParentTaskID)
	})

	t.Run("end date reached marks lineage terminal", func(t *testing.T) {
		t.Parallel()

		fix := newRecurrenceFixture(t, nil)
		completed := time.Date(2026, 9, 14, 10, 0, 0, 0, time.UTC)
		end := time.Date(2026, 9, 14, 23, 0, 0, 0, time.UTC)
		rule := &domain.RecurrenceRule{Frequency: domain.FrequencyDaily, Interval: 1, EndDate: &end}
		ev := completionEvent(42, 10, completed, rule)

		require.NoError(t, fix.svc.HandleCompletion(context.Background(), ev))

		assert.Empty(t, fix.publisher.taskEvents())
		state := fix.states.get(42)
		require.NotNil(t, state)
		assert.True(t, state.Terminal)
		assert.Equal(t, OutcomeRecurrenceEnded, fix.idem.outcome(ev.EventID.String()))
	})

	t.Run("terminal lineage skips generation", func(t *testing.T) {
		t.Parallel()

		fix := newRecurrenceFixture(t, nil)
		fix.states.states[42] = &domain.RecurringTaskState{TaskID: 42, Terminal: true}
		rule := &domain.RecurrenceRule{Frequency: domain.FrequencyDaily, Interval: 1}
		ev := completionEvent(42, 10, time.Now().UTC(), rule)

		require.NoError(t, fix.svc.HandleCompletion(context.Background(), ev))

		assert.Empty(t, fix.publisher.taskEvents())
		assert.Equal(t, OutcomeSkipped, fix.idem.outcome(ev.EventID.String()))
	})

	t.Run("stale state advance skips without failing", func(t *testing.T) {
		t.Parallel()

		fix := newRecurrenceFixture(t, nil)
		// A concurrent worker already advanced the lineage past now.
		fix.states.states[42] = &domain.RecurringTaskState{
			TaskID:          42,
			LastGeneratedAt: time.Now().Add(time.Hour).UTC(),
		}
		rule := &domain.RecurrenceRule{Frequency: domain.FrequencyDaily, Interval: 1}
		ev := completionEvent(42, 10, time.Now().UTC(), rule)

		require.NoError(t, fix.svc.HandleCompletion(context.Background(), ev))

		assert.Empty(t, fix.publisher.taskEvents())
		assert.Equal(t, OutcomeSkipped, fix.idem.outcome(ev.EventID.String()))
	})

	t.Run("replayed completion cannot move the lineage backwards", func(t *testing.T) {
		t.Parallel()

		fix := newRecurrenceFixture(t, nil)
		// The lineage has already been advanced from a later completion;
		// a replayed earlier completion must compute from the recorded
		// watermark, not its own stale timestamp.
		watermark := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
		fix.states.states[42] = &domain.RecurringTaskState{TaskID: 42, LastGeneratedAt: watermark}

		rule := &domain.RecurrenceRule{Frequency: domain.FrequencyDaily, Interval: 1}
		ev := completionEvent(42, 10, time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC), rule)

		require.NoError(t, fix.svc.HandleCompletion(context.Background(), ev))

		published := fix.publisher.taskEvents()
		require.Len(t, published, 1)
		require.NotNil(t, published[0].TaskData.DueDate)
		assert.Equal(t, time.Date(2026, 1, 6, 10, 0, 0, 0, time.UTC), published[0].TaskData.DueDate.UTC())
	})

	t.Run("publish failure leaves the completion retriable", func(t *testing.T) {
		t.Parallel()

		fix := newRecurrenceFixture(t, nil)
		fix.publisher.err = errors.New("bus unavailable")
		rule := &domain.RecurrenceRule{Frequency: domain.FrequencyDaily, Interval: 1}
		ev := completionEvent(42, 10, time.Now().UTC(), rule)

		err := fix.svc.HandleCompletion(context.Background(), ev)
		require.Error(t, err)
		// The idempotency key is recorded after the publish, so the
		// redelivered completion regenerates instead of being skipped
		// as already seen.
		assert.Empty(t, fix.idem.outcome(ev.EventID.String()))

		fix.publisher.mu.Lock()
		fix.publisher.err = nil
		fix.publisher.mu.Unlock()

		require.NoError(t, fix.svc.HandleCompletion(context.Background(), ev))
		assert.Len(t, fix.publisher.taskEvents(), 1)
		assert.Equal(t, OutcomeOccurrenceGenerated, fix.idem.outcome(ev.EventID.String()))
	})

	t.Run("state store failure aborts the transaction", func(t *testing.T) {
		t.Parallel()

		fix := newRecurrenceFixture(t, nil)
		fix.states.upsertErr = errors.New("disk full")
		rule := &domain.RecurrenceRule{Frequency: domain.FrequencyDaily, Interval: 1}
		ev := completionEvent(42, 10, time.Now().UTC(), rule)

		err := fix.svc.HandleCompletion(context.Background(), ev)
		assert.Error(t, err)
		assert.Empty(t, fix.publisher.taskEvents())
	})
}

func TestRecurrenceService_HandleDeletion(t *testing.T) {
	t.Parallel()

	t.Run("drops state for the lineage head", func(t *testing.T) {
		t.Parallel()

		fix := newRecurrenceFixture(t, nil)
		fix.states.states[42] = &domain.RecurringTaskState{TaskID: 42}

		ev := events.NewTaskEvent(events.TypeTaskDeleted, 42, 10, events.TaskData{
			Title:  "Water the plants",
			Status: string(domain.TaskStatusPending),
		})
		require.NoError(t, fix.svc.HandleDeletion(context.Background(), ev))
		assert.Nil(t, fix.states.get(42))
	})

	t.Run("child deletion resolves the parent lineage", func(t *testing.T) {
		t.Parallel()

		fix := newRecurrenceFixture(t, nil)
		fix.states.states[42] = &domain.RecurringTaskState{TaskID: 42}

		parent := int64(42)
		ev := events.NewTaskEvent(events.TypeTaskDeleted, 1000000001, 10, events.TaskData{
			Title:        "Water the plants",
			Status:       string(domain.TaskStatusPending),
			ParentTaskID: &parent,
		})
		require.NoError(t, fix.svc.HandleDeletion(context.Background(), ev))
		assert.Nil(t, fix.states.get(42))
	})
}
