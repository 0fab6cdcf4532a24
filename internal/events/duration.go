package events

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidDuration is returned when a reminder offset is not a valid
// ISO-8601 duration.
var ErrInvalidDuration = errors.New("invalid ISO-8601 duration")

// ParseISODuration parses the subset of ISO-8601 durations used for
// reminder offsets: PnW, or PnD optionally followed by TnHnMnS. Calendar
// units wider than weeks (months, years) are rejected because a reminder
// offset is an exact span of time, not a calendar delta.
func ParseISODuration(s string) (time.Duration, error) {
	if len(s) < 2 || s[0] != 'P' {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}

	rest := s[1:]
	var total time.Duration
	inTime := false
	sawComponent := false
	sawTimeComponent := false

	for len(rest) > 0 {
		if rest[0] == 'T' {
			if inTime {
				return 0, fmt.Errorf("%w: %q: repeated time designator", ErrInvalidDuration, s)
			}
			inTime = true
			rest = rest[1:]
			continue
		}

		i := 0
		for i < len(rest) && (rest[i] >= '0' && rest[i] <= '9' || rest[i] == '.') {
			i++
		}
		if i == 0 || i == len(rest) {
			return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
		}

		value, err := strconv.ParseFloat(rest[:i], 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q: %v", ErrInvalidDuration, s, err)
		}
		unit := rest[i]
		rest = rest[i+1:]
		sawComponent = true
		if inTime {
			sawTimeComponent = true
		}

		switch {
		case !inTime && unit == 'W':
			total += time.Duration(value * float64(7*24*time.Hour))
		case !inTime && unit == 'D':
			total += time.Duration(value * float64(24*time.Hour))
		case inTime && unit == 'H':
			total += time.Duration(value * float64(time.Hour))
		case inTime && unit == 'M':
			total += time.Duration(value * float64(time.Minute))
		case inTime && unit == 'S':
			total += time.Duration(value * float64(time.Second))
		case !inTime && (unit == 'Y' || unit == 'M'):
			return 0, fmt.Errorf("%w: %q: calendar unit %c not supported for offsets", ErrInvalidDuration, s, unit)
		default:
			return 0, fmt.Errorf("%w: %q: unexpected unit %c", ErrInvalidDuration, s, unit)
		}
	}

	if !sawComponent || (inTime && !sawTimeComponent) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}
	return total, nil
}

// FormatISODuration renders a duration as an ISO-8601 string, splitting
// into days, hours, minutes and seconds. Sub-second precision is dropped;
// offsets that fine have no meaning for reminders.
func FormatISODuration(d time.Duration) string {
	if d <= 0 {
		return "PT0S"
	}

	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute
	seconds := d / time.Second

	var b strings.Builder
	b.WriteByte('P')
	if days > 0 {
		fmt.Fprintf(&b, "%dD", days)
	}
	if hours > 0 || minutes > 0 || seconds > 0 {
		b.WriteByte('T')
		if hours > 0 {
			fmt.Fprintf(&b, "%dH", hours)
		}
		if minutes > 0 {
			fmt.Fprintf(&b, "%dM", minutes)
		}
		if seconds > 0 {
			fmt.Fprintf(&b, "%dS", seconds)
		}
	}
	if b.Len() == 1 {
		return "PT0S"
	}
	return b.String()
}
