// Package domain defines the core business entities and errors.
package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidFormat is returned when data is not in the expected format.
	ErrInvalidFormat = errors.New("invalid format")

	// ErrInvalidID is returned when an ID is malformed or invalid.
	ErrInvalidID = errors.New("invalid ID")

	// ErrInvalidTaskStatus is returned when a task status is not one of the
	// known lifecycle states.
	ErrInvalidTaskStatus = errors.New("invalid task status")

	// ErrInvalidTimezone is returned when a timezone name cannot be resolved.
	// Callers are expected to fall back to UTC rather than fail the pipeline.
	ErrInvalidTimezone = errors.New("invalid timezone")
)
