package generation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/taskpulse/taskpulse/internal/domain"
)

// Content is the finished reminder message for a single task: a subject line
// and a plain-text body. It carries no delivery metadata; the delivery layer
// decides how to render it.
type Content struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Request bundles everything a generator needs to compose reminder content
// for one task.
type Request struct {
	Task     *domain.Task
	UserName string
	// Location is the recipient's timezone, used only to format the due
	// date for display. A nil Location formats in UTC.
	Location *time.Location
}

// Generator defines the interface for composing reminder content. This
// interface serves as a boundary between the scheduling core and external
// AI/LLM services; the cascade in this package selects between a primary
// Generator and the deterministic template fallback.
type Generator interface {
	// Generate composes reminder content for the task in req. It returns
	// an error if composition fails for any reason (see errors.go for
	// specific types); callers that must never fail should go through
	// Cascade instead.
	Generate(ctx context.Context, req Request) (*Content, error)
}

// Path identifies which generator produced a piece of reminder content.
type Path string

// Generation paths recorded alongside every composed reminder.
const (
	PathPrimary  Path = "ai"
	PathFallback Path = "template"
)

// Subject builds the subject line for a task reminder. Recurring tasks get a
// frequency tag and high-urgency tasks a priority marker, so the subject is
// meaningful even when the body came from the template fallback.
func Subject(task *domain.Task) string {
	var b strings.Builder
	switch strings.ToLower(task.Priority) {
	case "urgent":
		b.WriteString("[Urgent] ")
	case "high":
		b.WriteString("[High] ")
	}
	b.WriteString("Reminder")
	if task.IsRecurring() {
		fmt.Fprintf(&b, " [%s]", titleCase(string(task.Recurrence.Frequency)))
	}
	b.WriteString(": ")
	b.WriteString(task.Title)
	return b.String()
}

// FormatDueDate renders a task due date for the recipient, in their timezone
// when one is known. Tasks without a due date render as a fixed phrase rather
// than an empty string.
func FormatDueDate(due *time.Time, loc *time.Location) string {
	if due == nil {
		return "No due date set"
	}
	if loc == nil {
		loc = time.UTC
	}
	return due.In(loc).Format("Monday, January 2, 2006 at 3:04 PM MST")
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
