// Package delivery defines the outbound boundary of the reminder pipeline.
// Actually sending email or push notifications is owned by an external
// collaborator; this core hands over finished content and records the
// outcome.
package delivery

import (
	"context"

	"github.com/taskpulse/taskpulse/internal/domain"
	"github.com/taskpulse/taskpulse/internal/generation"
)

// Deliverer sends finished reminder content to a recipient. Implementations
// must be safe for concurrent use.
type Deliverer interface {
	// Deliver sends the content to the recipient. An error means the
	// reminder did not reach the provider and may be retried.
	Deliver(ctx context.Context, recipient *domain.User, content *generation.Content) error
}

// UserDirectory resolves task owners to the recipient projection delivery
// needs. The identity service backing it is the source of truth for names,
// addresses and timezones.
type UserDirectory interface {
	// Lookup returns the user projection for the given ID.
	Lookup(ctx context.Context, userID int64) (*domain.User, error)
}
