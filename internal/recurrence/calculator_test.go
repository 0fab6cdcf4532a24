package recurrence

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskpulse/taskpulse/internal/domain"
)

func mustLoc(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	require.NoError(t, err)
	return loc
}

func TestNextOccurrence_Daily(t *testing.T) {
	t.Run("advances by interval days preserving time of day", func(t *testing.T) {
		rule := &domain.RecurrenceRule{Frequency: domain.FrequencyDaily, Interval: 2}
		ref := time.Date(2026, 1, 5, 9, 30, 0, 0, time.UTC)

		next, err := NextOccurrence(rule, ref, time.UTC)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 1, 7, 9, 30, 0, 0, time.UTC), next)
	})

	t.Run("crosses month boundary", func(t *testing.T) {
		rule := &domain.RecurrenceRule{Frequency: domain.FrequencyDaily, Interval: 1}
		ref := time.Date(2026, 1, 31, 18, 0, 0, 0, time.UTC)

		next, err := NextOccurrence(rule, ref, time.UTC)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 2, 1, 18, 0, 0, 0, time.UTC), next)
	})

	t.Run("spring forward gap shifts to a valid local time", func(t *testing.T) {
		ny := mustLoc(t, "America/New_York")
		rule := &domain.RecurrenceRule{Frequency: domain.FrequencyDaily, Interval: 1}
		// 2026-03-08 02:30 does not exist in New York (clocks jump
		// 02:00 -> 03:00), so the occurrence lands forward of the gap.
		ref := time.Date(2026, 3, 7, 2, 30, 0, 0, ny)

		next, err := NextOccurrence(rule, ref, ny)
		require.NoError(t, err)

		local := next.In(ny)
		assert.Equal(t, 8, local.Day())
		assert.Equal(t, 3, local.Hour())
		assert.Equal(t, 30, local.Minute())
	})

	t.Run("preserves wall clock across fall back", func(t *testing.T) {
		ny := mustLoc(t, "America/New_York")
		rule := &domain.RecurrenceRule{Frequency: domain.FrequencyDaily, Interval: 1}
		// 2026-11-01 is the fall-back day in New York.
		ref := time.Date(2026, 10, 31, 9, 0, 0, 0, ny)

		next, err := NextOccurrence(rule, ref, ny)
		require.NoError(t, err)

		local := next.In(ny)
		assert.Equal(t, 1, local.Day())
		assert.Equal(t, time.November, local.Month())
		assert.Equal(t, 9, local.Hour())
		// The UTC gap is 25 hours because of the repeated hour.
		assert.Equal(t, 25*time.Hour, next.Sub(ref.UTC()))
	})
}

func TestNextOccurrence_Weekly(t *testing.T) {
	// 2026-01-05 is a Monday.
	monday := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	t.Run("single day wraps to next week", func(t *testing.T) {
		rule := &domain.RecurrenceRule{
			Frequency:  domain.FrequencyWeekly,
			Interval:   1,
			DaysOfWeek: []int{1}, // Monday
		}

		next, err := NextOccurrence(rule, monday, time.UTC)
		require.NoError(t, err)
		assert.Equal(t, monday.AddDate(0, 0, 7), next)
		assert.Equal(t, time.Monday, next.Weekday())
	})

	t.Run("picks earliest later day in the same week", func(t *testing.T) {
		rule := &domain.RecurrenceRule{
			Frequency:  domain.FrequencyWeekly,
			Interval:   1,
			DaysOfWeek: []int{1, 3, 5}, // Mon, Wed, Fri
		}

		next, err := NextOccurrence(rule, monday, time.UTC)
		require.NoError(t, err)
		assert.Equal(t, time.Wednesday, next.Weekday())
		assert.Equal(t, monday.AddDate(0, 0, 2), next)
	})

	t.Run("interval weeks apply when wrapping", func(t *testing.T) {
		rule := &domain.RecurrenceRule{
			Frequency:  domain.FrequencyWeekly,
			Interval:   2,
			DaysOfWeek: []int{1},
		}

		next, err := NextOccurrence(rule, monday, time.UTC)
		require.NoError(t, err)
		assert.Equal(t, monday.AddDate(0, 0, 14), next)
	})

	t.Run("unsorted day set is handled", func(t *testing.T) {
		rule := &domain.RecurrenceRule{
			Frequency:  domain.FrequencyWeekly,
			Interval:   1,
			DaysOfWeek: []int{5, 3, 1},
		}

		next, err := NextOccurrence(rule, monday, time.UTC)
		require.NoError(t, err)
		assert.Equal(t, time.Wednesday, next.Weekday())
	})

	t.Run("never yields a day outside the rule set", func(t *testing.T) {
		rule := &domain.RecurrenceRule{
			Frequency:  domain.FrequencyWeekly,
			Interval:   1,
			DaysOfWeek: []int{1, 3, 5},
		}
		allowed := map[time.Weekday]bool{
			time.Monday:    true,
			time.Wednesday: true,
			time.Friday:    true,
		}

		// Walk the chain for a year of occurrences.
		ref := monday
		for i := 0; i < 150; i++ {
			next, err := NextOccurrence(rule, ref, time.UTC)
			require.NoError(t, err)
			assert.True(t, allowed[next.Weekday()],
				"occurrence %d fell on %s", i, next.Weekday())
			assert.True(t, next.After(ref), "occurrences must advance")
			ref = next
		}
	})
}

func TestNextOccurrence_Monthly(t *testing.T) {
	t.Run("day 31 clamps in February", func(t *testing.T) {
		rule := &domain.RecurrenceRule{
			Frequency:  domain.FrequencyMonthly,
			Interval:   1,
			DayOfMonth: 31,
		}
		ref := time.Date(2026, 1, 31, 8, 0, 0, 0, time.UTC)

		next, err := NextOccurrence(rule, ref, time.UTC)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 2, 28, 8, 0, 0, 0, time.UTC), next)
	})

	t.Run("day 31 clamps to leap day in a leap year", func(t *testing.T) {
		rule := &domain.RecurrenceRule{
			Frequency:  domain.FrequencyMonthly,
			Interval:   1,
			DayOfMonth: 31,
		}
		ref := time.Date(2028, 1, 31, 8, 0, 0, 0, time.UTC)

		next, err := NextOccurrence(rule, ref, time.UTC)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2028, 2, 29, 8, 0, 0, 0, time.UTC), next)
	})

	t.Run("mid-month day with multi-month interval", func(t *testing.T) {
		rule := &domain.RecurrenceRule{
			Frequency:  domain.FrequencyMonthly,
			Interval:   3,
			DayOfMonth: 15,
		}
		ref := time.Date(2026, 1, 20, 12, 0, 0, 0, time.UTC)

		next, err := NextOccurrence(rule, ref, time.UTC)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 4, 15, 12, 0, 0, 0, time.UTC), next)
	})

	t.Run("year rollover", func(t *testing.T) {
		rule := &domain.RecurrenceRule{
			Frequency:  domain.FrequencyMonthly,
			Interval:   1,
			DayOfMonth: 5,
		}
		ref := time.Date(2026, 12, 5, 7, 0, 0, 0, time.UTC)

		next, err := NextOccurrence(rule, ref, time.UTC)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2027, 1, 5, 7, 0, 0, 0, time.UTC), next)
	})
}

func TestNextOccurrence_EndDate(t *testing.T) {
	t.Run("recurrence ended is signalled not errored", func(t *testing.T) {
		end := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
		rule := &domain.RecurrenceRule{
			Frequency: domain.FrequencyDaily,
			Interval:  7,
			EndDate:   &end,
		}
		ref := time.Date(2026, 1, 8, 9, 0, 0, 0, time.UTC)

		_, err := NextOccurrence(rule, ref, time.UTC)
		assert.ErrorIs(t, err, ErrRecurrenceEnded)
	})

	t.Run("occurrence exactly at end date still generates", func(t *testing.T) {
		end := time.Date(2026, 1, 9, 9, 0, 0, 0, time.UTC)
		rule := &domain.RecurrenceRule{
			Frequency: domain.FrequencyDaily,
			Interval:  1,
			EndDate:   &end,
		}
		ref := time.Date(2026, 1, 8, 9, 0, 0, 0, time.UTC)

		next, err := NextOccurrence(rule, ref, time.UTC)
		require.NoError(t, err)
		assert.Equal(t, end, next)
	})
}

func TestNextOccurrence_Validation(t *testing.T) {
	ref := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		rule    *domain.RecurrenceRule
		wantErr error
	}{
		{
			name:    "nil rule",
			rule:    nil,
			wantErr: domain.ErrValidation,
		},
		{
			name:    "unknown frequency",
			rule:    &domain.RecurrenceRule{Frequency: "hourly", Interval: 1},
			wantErr: domain.ErrUnknownFrequency,
		},
		{
			name:    "zero interval",
			rule:    &domain.RecurrenceRule{Frequency: domain.FrequencyDaily, Interval: 0},
			wantErr: domain.ErrInvalidInterval,
		},
		{
			name:    "weekly without days",
			rule:    &domain.RecurrenceRule{Frequency: domain.FrequencyWeekly, Interval: 1},
			wantErr: domain.ErrMissingDaysOfWeek,
		},
		{
			name: "weekly with out of range day",
			rule: &domain.RecurrenceRule{
				Frequency:  domain.FrequencyWeekly,
				Interval:   1,
				DaysOfWeek: []int{7},
			},
			wantErr: domain.ErrInvalidDayOfWeek,
		},
		{
			name:    "monthly without day of month",
			rule:    &domain.RecurrenceRule{Frequency: domain.FrequencyMonthly, Interval: 1},
			wantErr: domain.ErrMissingDayOfMonth,
		},
		{
			name: "monthly with day out of range",
			rule: &domain.RecurrenceRule{
				Frequency:  domain.FrequencyMonthly,
				Interval:   1,
				DayOfMonth: 32,
			},
			wantErr: domain.ErrInvalidDayOfMonth,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NextOccurrence(tt.rule, ref, time.UTC)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNextOccurrence_NilLocationDefaultsToUTC(t *testing.T) {
	rule := &domain.RecurrenceRule{Frequency: domain.FrequencyDaily, Interval: 1}
	ref := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	next, err := NextOccurrence(rule, ref, nil)
	require.NoError(t, err)
	assert.Equal(t, ref.AddDate(0, 0, 1), next)
}

func TestLocationOrUTC(t *testing.T) {
	t.Run("empty name", func(t *testing.T) {
		loc, fellBack := LocationOrUTC("")
		assert.Equal(t, time.UTC, loc)
		assert.False(t, fellBack)
	})

	t.Run("unknown name falls back", func(t *testing.T) {
		loc, fellBack := LocationOrUTC("Not/AZone")
		assert.Equal(t, time.UTC, loc)
		assert.True(t, fellBack)
	})

	t.Run("valid name resolves", func(t *testing.T) {
		loc, fellBack := LocationOrUTC("Europe/Berlin")
		require.NotNil(t, loc)
		assert.False(t, fellBack)
		assert.Equal(t, "Europe/Berlin", loc.String())
	})
}

func TestOnDueClock(t *testing.T) {
	t.Run("keeps the reference date and the due clock", func(t *testing.T) {
		ref := time.Date(2026, 9, 14, 14, 37, 12, 0, time.UTC)
		due := time.Date(2026, 9, 7, 10, 0, 0, 0, time.UTC)

		got := OnDueClock(ref, due, time.UTC)
		assert.Equal(t, time.Date(2026, 9, 14, 10, 0, 0, 0, time.UTC), got)
	})

	t.Run("overlays the clock in the given location", func(t *testing.T) {
		ny := mustLoc(t, "America/New_York")

		// Due 10:00 local, completed 18:22 local on a later date.
		due := time.Date(2026, 9, 7, 10, 0, 0, 0, ny)
		ref := time.Date(2026, 9, 14, 18, 22, 0, 0, ny)

		got := OnDueClock(ref.UTC(), due.UTC(), ny)
		assert.Equal(t, time.Date(2026, 9, 14, 10, 0, 0, 0, ny), got)
	})

	t.Run("nil location defaults to UTC", func(t *testing.T) {
		ref := time.Date(2026, 9, 14, 23, 59, 0, 0, time.UTC)
		due := time.Date(2026, 9, 1, 8, 30, 0, 0, time.UTC)

		got := OnDueClock(ref, due, nil)
		assert.Equal(t, time.Date(2026, 9, 14, 8, 30, 0, 0, time.UTC), got)
	})
}
