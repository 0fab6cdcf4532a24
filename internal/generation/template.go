package generation

import (
	"bytes"
	"context"
	"fmt"
	"text/template"
)

// fallbackBody is the deterministic reminder body used when the primary
// generator is unavailable. It depends only on task fields that are always
// present, so rendering it cannot fail at request time.
const fallbackBody = `Hi {{.Recipient}},

This is a friendly reminder about your task: "{{.Title}}".

Due: {{.DueDate}}
Priority: {{.Priority}}
{{- if .Description}}

Description: {{.Description}}
{{- end}}

Stay organized and keep up the great work!

Best regards,
{{.SenderName}}`

// DefaultSenderName signs fallback reminder bodies when no sender name is
// configured.
const DefaultSenderName = "TaskPulse"

type fallbackData struct {
	Recipient   string
	Title       string
	DueDate     string
	Priority    string
	Description string
	SenderName  string
}

// TemplateGenerator composes reminder content from a fixed template. It is
// the terminal step of the generation cascade and never returns an error
// from Generate.
type TemplateGenerator struct {
	tmpl       *template.Template
	senderName string
}

// NewTemplateGenerator creates a TemplateGenerator signing bodies with the
// given sender name, or DefaultSenderName when empty.
func NewTemplateGenerator(senderName string) *TemplateGenerator {
	if senderName == "" {
		senderName = DefaultSenderName
	}
	return &TemplateGenerator{
		tmpl:       template.Must(template.New("reminder").Parse(fallbackBody)),
		senderName: senderName,
	}
}

var _ Generator = (*TemplateGenerator)(nil)

// Generate renders the fallback template for the task in req. The error
// return exists only to satisfy the Generator interface; it is always nil
// for a well-formed request.
func (g *TemplateGenerator) Generate(_ context.Context, req Request) (*Content, error) {
	if req.Task == nil {
		return nil, fmt.Errorf("%w: request task cannot be nil", ErrGenerationFailed)
	}

	recipient := req.UserName
	if recipient == "" {
		recipient = "there"
	}
	priority := req.Task.Priority
	if priority == "" {
		priority = "normal"
	}

	data := fallbackData{
		Recipient:   recipient,
		Title:       req.Task.Title,
		DueDate:     FormatDueDate(req.Task.DueDate, req.Location),
		Priority:    priority,
		Description: req.Task.Description,
		SenderName:  g.senderName,
	}

	var body bytes.Buffer
	if err := g.tmpl.Execute(&body, data); err != nil {
		return nil, fmt.Errorf("%w: failed to execute fallback template: %v", ErrGenerationFailed, err)
	}

	return &Content{
		Subject: Subject(req.Task),
		Body:    body.String(),
	}, nil
}
