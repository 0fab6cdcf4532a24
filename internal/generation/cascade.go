package generation

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// DefaultGenerationTimeout bounds a single primary-generator attempt. The
// fallback template takes over once the budget is spent.
const DefaultGenerationTimeout = 10 * time.Second

// Cascade composes reminder content through a primary Generator and falls
// back to the deterministic template when the primary is unavailable, slow,
// or returns unusable content. Generate never fails: a reminder always goes
// out with some content.
type Cascade struct {
	primary  Generator
	fallback *TemplateGenerator
	timeout  time.Duration
	logger   *slog.Logger
}

// NewCascade creates a Cascade. The primary generator may be nil, in which
// case every request renders through the fallback template. The fallback
// generator and logger are required.
func NewCascade(
	primary Generator,
	fallback *TemplateGenerator,
	timeout time.Duration,
	logger *slog.Logger,
) (*Cascade, error) {
	if fallback == nil {
		return nil, errors.New("fallback generator cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if timeout <= 0 {
		timeout = DefaultGenerationTimeout
	}
	return &Cascade{
		primary:  primary,
		fallback: fallback,
		timeout:  timeout,
		logger:   logger.With("component", "generation_cascade"),
	}, nil
}

// Generate composes content for req, recording which path produced it. The
// returned content is never nil.
func (c *Cascade) Generate(ctx context.Context, req Request) (*Content, Path) {
	if req.Task == nil {
		c.logger.ErrorContext(ctx, "generation request carries no task")
		return &Content{Subject: "Task reminder", Body: "You have a task due soon."}, PathFallback
	}

	if c.primary != nil {
		genCtx, cancel := context.WithTimeout(ctx, c.timeout)
		content, err := c.primary.Generate(genCtx, req)
		cancel()

		if usable(content, err) {
			c.logger.DebugContext(ctx, "composed reminder content",
				"path", PathPrimary,
				"task_id", req.Task.ID)
			return content, PathPrimary
		}

		c.logger.WarnContext(ctx, "primary generation failed, using template fallback",
			"task_id", req.Task.ID,
			"error", err)
	}

	content, err := c.fallback.Generate(ctx, req)
	if err != nil {
		// Template rendering over plain strings cannot realistically
		// fail; keep the no-fail guarantee anyway.
		c.logger.ErrorContext(ctx, "fallback template rendering failed",
			"error", err)
		return &Content{Subject: "Task reminder", Body: "You have a task due soon."}, PathFallback
	}

	c.logger.DebugContext(ctx, "composed reminder content",
		"path", PathFallback,
		"task_id", req.Task.ID)
	return content, PathFallback
}

// usable reports whether a primary generation attempt produced content the
// cascade can send as-is.
func usable(content *Content, err error) bool {
	if err != nil || content == nil {
		return false
	}
	return content.Subject != "" && content.Body != ""
}
