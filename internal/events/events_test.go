package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskpulse/taskpulse/internal/domain"
)

func TestNewTaskEvent(t *testing.T) {
	data := TaskData{Title: "water plants", Status: "pending"}
	ev := NewTaskEvent(TypeTaskCreated, 42, 7, data)

	assert.NotEqual(t, uuid.Nil, ev.EventID)
	assert.Equal(t, SchemaVersion, ev.SchemaVersion)
	assert.Equal(t, TypeTaskCreated, ev.EventType)
	assert.Equal(t, int64(42), ev.TaskID)
	assert.Equal(t, int64(7), ev.UserID)
	assert.False(t, ev.Timestamp.IsZero())
	assert.Equal(t, data, ev.TaskData)
}

func TestTaskEvent_Task(t *testing.T) {
	due := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	t.Run("converts payload including reminder offset", func(t *testing.T) {
		ev := NewTaskEvent(TypeTaskCreated, 42, 7, TaskData{
			Title:          "water plants",
			Status:         "pending",
			DueDate:        &due,
			ReminderOffset: "PT1H",
		})

		task, err := ev.Task()
		require.NoError(t, err)
		assert.Equal(t, int64(42), task.ID)
		assert.Equal(t, int64(7), task.UserID)
		assert.Equal(t, domain.TaskStatusPending, task.Status)
		assert.Equal(t, time.Hour, task.ReminderOffset)

		trigger, ok := task.ReminderTriggerAt()
		require.True(t, ok)
		assert.Equal(t, due.Add(-time.Hour), trigger)
	})

	t.Run("malformed offset is a format error", func(t *testing.T) {
		ev := NewTaskEvent(TypeTaskCreated, 42, 7, TaskData{
			Title:          "water plants",
			Status:         "pending",
			ReminderOffset: "1 day",
		})

		_, err := ev.Task()
		assert.ErrorIs(t, err, domain.ErrInvalidFormat)
	})

	t.Run("invalid status is rejected", func(t *testing.T) {
		ev := NewTaskEvent(TypeTaskCompleted, 42, 7, TaskData{
			Title:  "water plants",
			Status: "done",
		})

		_, err := ev.Task()
		assert.ErrorIs(t, err, domain.ErrInvalidTaskStatus)
	})
}

func TestParseISODuration(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Duration
		wantErr bool
	}{
		{input: "PT1H", want: time.Hour},
		{input: "PT30M", want: 30 * time.Minute},
		{input: "PT90S", want: 90 * time.Second},
		{input: "P1D", want: 24 * time.Hour},
		{input: "P1DT2H30M", want: 26*time.Hour + 30*time.Minute},
		{input: "P2W", want: 14 * 24 * time.Hour},
		{input: "PT1.5H", want: 90 * time.Minute},
		{input: "", wantErr: true},
		{input: "P", wantErr: true},
		{input: "1h", wantErr: true},
		{input: "P1M", wantErr: true}, // calendar months rejected
		{input: "PT1D", wantErr: true},
		{input: "P1DT", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseISODuration(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidDuration)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatISODuration(t *testing.T) {
	assert.Equal(t, "PT1H", FormatISODuration(time.Hour))
	assert.Equal(t, "P1DT2H30M", FormatISODuration(26*time.Hour+30*time.Minute))
	assert.Equal(t, "PT0S", FormatISODuration(0))
	assert.Equal(t, "P7D", FormatISODuration(7*24*time.Hour))

	// Round trip
	d, err := ParseISODuration(FormatISODuration(90 * time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, d)
}

func validTaskEventJSON(t *testing.T) json.RawMessage {
	t.Helper()
	ev := NewTaskEvent(TypeTaskCompleted, 123, 456, TaskData{
		Title:  "Complete project proposal",
		Status: "completed",
		RecurrenceRule: &domain.RecurrenceRule{
			Frequency:  domain.FrequencyWeekly,
			Interval:   1,
			DaysOfWeek: []int{1},
		},
	})
	raw, err := json.Marshal(ev)
	require.NoError(t, err)
	return raw
}

func TestValidateTaskEventPayload(t *testing.T) {
	t.Run("valid event passes", func(t *testing.T) {
		assert.NoError(t, ValidateTaskEventPayload(validTaskEventJSON(t)))
	})

	t.Run("not JSON", func(t *testing.T) {
		err := ValidateTaskEventPayload([]byte("not json"))
		assert.ErrorIs(t, err, ErrSchemaViolation)
	})

	t.Run("missing required field", func(t *testing.T) {
		var doc map[string]any
		require.NoError(t, json.Unmarshal(validTaskEventJSON(t), &doc))
		delete(doc, "task_id")
		raw, err := json.Marshal(doc)
		require.NoError(t, err)

		assert.ErrorIs(t, ValidateTaskEventPayload(raw), ErrSchemaViolation)
	})

	t.Run("unknown event type", func(t *testing.T) {
		var doc map[string]any
		require.NoError(t, json.Unmarshal(validTaskEventJSON(t), &doc))
		doc["event_type"] = "task.exploded"
		raw, err := json.Marshal(doc)
		require.NoError(t, err)

		assert.ErrorIs(t, ValidateTaskEventPayload(raw), ErrSchemaViolation)
	})

	t.Run("bad recurrence frequency", func(t *testing.T) {
		var doc map[string]any
		require.NoError(t, json.Unmarshal(validTaskEventJSON(t), &doc))
		taskData := doc["task_data"].(map[string]any)
		taskData["recurrence_rule"].(map[string]any)["frequency"] = "hourly"
		raw, err := json.Marshal(doc)
		require.NoError(t, err)

		assert.ErrorIs(t, ValidateTaskEventPayload(raw), ErrSchemaViolation)
	})

	t.Run("extra fields are tolerated", func(t *testing.T) {
		var doc map[string]any
		require.NoError(t, json.Unmarshal(validTaskEventJSON(t), &doc))
		doc["producer"] = "api-service"
		raw, err := json.Marshal(doc)
		require.NoError(t, err)

		assert.NoError(t, ValidateTaskEventPayload(raw))
	})
}
