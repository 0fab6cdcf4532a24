package consumer

import (
	"errors"

	"github.com/taskpulse/taskpulse/internal/domain"
	"github.com/taskpulse/taskpulse/internal/events"
	"github.com/taskpulse/taskpulse/internal/store"
)

// ErrUnknownEventType is returned for event types the dispatcher has no
// route for.
var ErrUnknownEventType = errors.New("unknown event type")

// ErrQueueFull marks events dead-lettered because their partition queue
// was at capacity when they arrived.
var ErrQueueFull = errors.New("partition queue is full")

// permanentErrors are failures that no amount of retrying can fix: the
// payload itself is wrong. They go straight to the dead letter sink.
var permanentErrors = []error{
	domain.ErrValidation,
	domain.ErrInvalidFormat,
	domain.ErrInvalidID,
	domain.ErrInvalidTaskStatus,
	domain.ErrUnknownFrequency,
	domain.ErrInvalidInterval,
	domain.ErrMissingDaysOfWeek,
	domain.ErrInvalidDayOfWeek,
	domain.ErrMissingDayOfMonth,
	domain.ErrInvalidDayOfMonth,
	events.ErrSchemaViolation,
	store.ErrInvalidEntity,
	ErrUnknownEventType,
}

// IsPermanent reports whether the error is a payload defect rather than an
// infrastructure failure. Anything not recognizably permanent is treated as
// transient and retried.
func IsPermanent(err error) bool {
	for _, sentinel := range permanentErrors {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
