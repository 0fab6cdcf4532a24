package store

import (
	"errors"
	"fmt"
)

// Common store errors used across all store implementations.
var (
	// ErrNotFound is returned when a requested entity does not exist in the store.
	// This is a generic version of the entity-specific not found errors.
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when an operation would create a duplicate
	// of a unique entity (e.g., a second reminder record for the same
	// task and instant).
	ErrDuplicate = errors.New("entity already exists")

	// ErrInvalidEntity is returned when an entity fails validation before
	// being stored. Check the wrapped error for specific validation details.
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrTransactionFailed is returned when a database transaction fails
	// to commit or when an operation within a transaction fails.
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrStaleState is returned when an update would move a recurring task
	// state backwards in time. Last-generated instants are monotonically
	// non-decreasing.
	ErrStaleState = errors.New("stale recurring task state")

	// Entity-specific "not found" errors

	// ErrStateNotFound indicates that no recurring task state exists for
	// the given lineage.
	ErrStateNotFound = fmt.Errorf("%w: recurring task state", ErrNotFound)

	// Entity-specific "duplicate" errors

	// ErrReminderExists indicates that a reminder record for the same
	// (task, instant) pair already exists.
	ErrReminderExists = fmt.Errorf("%w: reminder record", ErrDuplicate)
)

// IsNotFoundError checks if the error is any kind of "not found" error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDuplicateError checks if the error is any kind of "duplicate" error.
func IsDuplicateError(err error) bool {
	return errors.Is(err, ErrDuplicate)
}
