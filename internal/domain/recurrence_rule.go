package domain

import (
	"errors"
	"fmt"
	"time"
)

// Frequency is how often a recurring task repeats.
type Frequency string

// Supported recurrence frequencies
const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// RecurrenceRule-specific validation errors
var (
	// ErrUnknownFrequency is returned when a rule names a frequency other
	// than daily, weekly or monthly.
	ErrUnknownFrequency = errors.New("unknown recurrence frequency")

	// ErrInvalidInterval is returned when a rule's interval is below 1.
	ErrInvalidInterval = errors.New("recurrence interval must be at least 1")

	// ErrMissingDaysOfWeek is returned when a weekly rule has no days of week.
	ErrMissingDaysOfWeek = errors.New("weekly recurrence requires at least one day of week")

	// ErrInvalidDayOfWeek is returned when a day of week is outside 0-6.
	ErrInvalidDayOfWeek = errors.New("day of week must be between 0 and 6")

	// ErrMissingDayOfMonth is returned when a monthly rule has no day of month.
	ErrMissingDayOfMonth = errors.New("monthly recurrence requires a day of month")

	// ErrInvalidDayOfMonth is returned when a day of month is outside 1-31.
	ErrInvalidDayOfMonth = errors.New("day of month must be between 1 and 31")
)

// RecurrenceRule describes how often and on what calendar pattern a task
// repeats. DaysOfWeek is meaningful only for weekly rules (0=Sunday through
// 6=Saturday, matching time.Weekday); DayOfMonth only for monthly rules.
// EndDate, when set, stops occurrence generation once the computed next due
// instant passes it.
type RecurrenceRule struct {
	Frequency  Frequency  `json:"frequency"`
	Interval   int        `json:"interval"`
	DaysOfWeek []int      `json:"days_of_week,omitempty"`
	DayOfMonth int        `json:"day_of_month,omitempty"`
	EndDate    *time.Time `json:"end_date,omitempty"`
}

// Validate checks that the rule is internally consistent: weekly rules must
// supply at least one day of week, monthly rules a day of month, and daily
// rules use neither.
func (r *RecurrenceRule) Validate() error {
	if r.Interval < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidInterval, r.Interval)
	}

	switch r.Frequency {
	case FrequencyDaily:
		// Daily rules use neither day set.
		return nil

	case FrequencyWeekly:
		if len(r.DaysOfWeek) == 0 {
			return ErrMissingDaysOfWeek
		}
		for _, d := range r.DaysOfWeek {
			if d < 0 || d > 6 {
				return fmt.Errorf("%w: got %d", ErrInvalidDayOfWeek, d)
			}
		}
		return nil

	case FrequencyMonthly:
		if r.DayOfMonth == 0 {
			return ErrMissingDayOfMonth
		}
		if r.DayOfMonth < 1 || r.DayOfMonth > 31 {
			return fmt.Errorf("%w: got %d", ErrInvalidDayOfMonth, r.DayOfMonth)
		}
		return nil

	default:
		return fmt.Errorf("%w: %q", ErrUnknownFrequency, r.Frequency)
	}
}

// Ended reports whether the rule's end date has passed relative to the given
// candidate next occurrence.
func (r *RecurrenceRule) Ended(nextDue time.Time) bool {
	return r.EndDate != nil && nextDue.After(*r.EndDate)
}
