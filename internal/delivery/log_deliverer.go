package delivery

import (
	"context"
	"errors"
	"log/slog"

	"github.com/taskpulse/taskpulse/internal/domain"
	"github.com/taskpulse/taskpulse/internal/generation"
)

// LogDeliverer writes reminders to the structured log instead of sending
// them. It serves development and deployments where the real provider is
// not yet wired.
type LogDeliverer struct {
	logger *slog.Logger
}

// NewLogDeliverer creates a LogDeliverer.
func NewLogDeliverer(logger *slog.Logger) (*LogDeliverer, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &LogDeliverer{logger: logger.With("component", "log_deliverer")}, nil
}

var _ Deliverer = (*LogDeliverer)(nil)

// Deliver logs the reminder at info level. It never fails.
func (d *LogDeliverer) Deliver(ctx context.Context, recipient *domain.User, content *generation.Content) error {
	recipientEmail := ""
	if recipient != nil {
		recipientEmail = recipient.Email
	}
	d.logger.InfoContext(ctx, "delivering reminder",
		"recipient", recipientEmail,
		"subject", content.Subject,
		"body_length", len(content.Body))
	return nil
}

// StaticUserDirectory resolves every lookup to a minimal projection built
// from the user ID. It stands in when no identity service is configured;
// reminder content then falls back to neutral greetings and UTC dates.
type StaticUserDirectory struct{}

var _ UserDirectory = (*StaticUserDirectory)(nil)

// Lookup returns a projection carrying only the user ID.
func (StaticUserDirectory) Lookup(_ context.Context, userID int64) (*domain.User, error) {
	if userID <= 0 {
		return nil, domain.ErrInvalidID
	}
	return &domain.User{ID: userID, Email: "unknown"}, nil
}
