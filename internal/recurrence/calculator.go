// Package recurrence implements the pure next-occurrence math for recurring
// tasks. It performs no I/O and is fully deterministic given its inputs, so
// every calendar and DST edge case can be pinned down in tests.
package recurrence

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/taskpulse/taskpulse/internal/domain"
)

// ErrRecurrenceEnded signals that the rule's end date has been reached and
// no further occurrences exist. It is a terminal signal, not a failure: the
// caller marks the lineage terminal and stops generating.
var ErrRecurrenceEnded = errors.New("recurrence ended")

// NextOccurrence computes the next due instant after reference for the given
// rule. The calculation happens in loc so that wall-clock time-of-day is
// preserved across DST transitions, and the result is returned in UTC.
//
// DST policy: if the preserved wall-clock time does not exist on the target
// day (spring forward), the instant shifts forward to the next valid local
// time; if it occurs twice (fall back), the first occurrence is taken.
//
// If the rule carries an end date and the computed next due instant exceeds
// it, ErrRecurrenceEnded is returned.
func NextOccurrence(rule *domain.RecurrenceRule, reference time.Time, loc *time.Location) (time.Time, error) {
	if rule == nil {
		return time.Time{}, fmt.Errorf("%w: recurrence rule is nil", domain.ErrValidation)
	}
	if err := rule.Validate(); err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	if loc == nil {
		loc = time.UTC
	}

	local := reference.In(loc)

	var next time.Time
	switch rule.Frequency {
	case domain.FrequencyDaily:
		next = nextDaily(local, rule.Interval, loc)
	case domain.FrequencyWeekly:
		next = nextWeekly(local, rule.Interval, rule.DaysOfWeek, loc)
	case domain.FrequencyMonthly:
		next = nextMonthly(local, rule.Interval, rule.DayOfMonth, loc)
	default:
		// Unreachable after Validate, kept for exhaustiveness.
		return time.Time{}, fmt.Errorf("%w: %q", domain.ErrUnknownFrequency, rule.Frequency)
	}

	nextUTC := next.UTC()
	if rule.Ended(nextUTC) {
		return time.Time{}, ErrRecurrenceEnded
	}
	return nextUTC, nil
}

// nextDaily advances by interval calendar days, preserving wall-clock
// time-of-day.
func nextDaily(local time.Time, interval int, loc *time.Location) time.Time {
	return onDay(local.AddDate(0, 0, interval), local, loc)
}

// nextWeekly finds the earliest weekday in days strictly after local's
// weekday, wrapping to the first listed day interval weeks ahead when the
// current week is exhausted.
func nextWeekly(local time.Time, interval int, days []int, loc *time.Location) time.Time {
	sorted := append([]int(nil), days...)
	sort.Ints(sorted)

	weekday := int(local.Weekday())

	daysAhead := -1
	for _, d := range sorted {
		if d > weekday {
			daysAhead = d - weekday
			break
		}
	}
	if daysAhead < 0 {
		// No later day this week: wrap to the first day of the next
		// interval week.
		daysAhead = (7 - weekday) + sorted[0] + (interval-1)*7
	}

	return onDay(local.AddDate(0, 0, daysAhead), local, loc)
}

// nextMonthly targets dayOfMonth in the month interval months ahead,
// clamping to the last valid day when the target month is shorter
// (Jan 31 + 1 month lands on Feb 28, or Feb 29 in a leap year).
func nextMonthly(local time.Time, interval, dayOfMonth int, loc *time.Location) time.Time {
	year, month, _ := local.Date()

	// Normalize month arithmetic by anchoring on the 1st; AddDate on the
	// 31st would spill into the following month.
	anchor := time.Date(year, month, 1, 0, 0, 0, 0, loc).AddDate(0, interval, 0)

	day := dayOfMonth
	if last := daysIn(anchor.Year(), anchor.Month()); day > last {
		day = last
	}

	target := time.Date(anchor.Year(), anchor.Month(), day, 0, 0, 0, 0, loc)
	return onDay(target, local, loc)
}

// onDay places local's wall-clock time-of-day onto day's calendar date.
// time.Date normalizes nonexistent local times forward past a DST gap and
// resolves ambiguous times to their first occurrence, which is exactly the
// documented policy.
func onDay(day, local time.Time, loc *time.Location) time.Time {
	y, m, d := day.Date()
	h, min, sec := local.Clock()
	return time.Date(y, m, d, h, min, sec, local.Nanosecond(), loc)
}

// daysIn returns the number of days in the given month.
func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// OnDueClock returns reference with the due instant's wall-clock time-of-day
// overlaid in loc. A completion decides which date occurrence math starts
// from, but the occurrence keeps the original due time of day: a task due
// Monday 10:00 and completed at 14:37 regenerates due the next cycle at
// 10:00, not 14:37.
func OnDueClock(reference, due time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	r := reference.In(loc)
	d := due.In(loc)
	h, min, sec := d.Clock()
	return time.Date(r.Year(), r.Month(), r.Day(), h, min, sec, d.Nanosecond(), loc)
}

// LocationOrUTC resolves an IANA timezone name, falling back to UTC when the
// name is empty or unknown. The second return reports whether an invalid
// name forced the fallback, so callers can log it without treating it as a
// failure; an empty name is a normal default, not a fallback.
func LocationOrUTC(name string) (*time.Location, bool) {
	if name == "" {
		return time.UTC, false
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC, true
	}
	return loc, false
}
