//go:build !test_without_external_deps
// +build !test_without_external_deps

package gemini

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"text/template"
	"time"

	"google.golang.org/genai"

	"github.com/taskpulse/taskpulse/internal/config"
	"github.com/taskpulse/taskpulse/internal/generation"
)

// retryDelayBase is the delay before the single retry of a transient API
// failure. The cascade's overall timeout bounds the total attempt budget.
const retryDelayBase = time.Second

// GeminiGenerator implements the generation.Generator interface using
// Google's Gemini API to compose reminder email bodies. Subject lines are
// composed deterministically; only the body goes through the model.
type GeminiGenerator struct {
	// logger is used for structured logging
	logger *slog.Logger

	// config contains LLM-specific configuration
	config config.LLMConfig

	// promptTemplate is the parsed template for creating prompts
	promptTemplate *template.Template

	// client is the Gemini API client for making requests
	client *genai.Client

	// model is the name of the Gemini model to use
	model string
}

var _ generation.Generator = (*GeminiGenerator)(nil)

// NewGeminiGenerator creates a new instance of GeminiGenerator with the
// provided dependencies. It returns generation.ErrInvalidConfig when the
// API key or model name is missing.
func NewGeminiGenerator(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*GeminiGenerator, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}

	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}

	promptTemplate, err := template.New("reminder").Parse(reminderPrompt)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse prompt template: %v",
			generation.ErrInvalidConfig, err)
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v",
			generation.ErrInvalidConfig, err)
	}

	return &GeminiGenerator{
		logger:         logger.With("component", "gemini_generator"),
		config:         cfg,
		promptTemplate: promptTemplate,
		client:         client,
		model:          cfg.ModelName,
	}, nil
}

// Generate composes a reminder email body for the task in req through the
// Gemini API. Transient API failures are retried once; permanent failures
// (blocked content, unusable responses) are returned immediately so the
// caller can fall back.
func (g *GeminiGenerator) Generate(ctx context.Context, req generation.Request) (*generation.Content, error) {
	if req.Task == nil {
		return nil, fmt.Errorf("%w: request task cannot be nil", generation.ErrGenerationFailed)
	}

	prompt, err := g.createPrompt(ctx, req)
	if err != nil {
		return nil, err
	}

	body, err := g.callGeminiWithRetry(ctx, prompt)
	if err != nil {
		return nil, err
	}

	g.logger.InfoContext(ctx, "generated AI reminder content",
		"task_id", req.Task.ID,
		"body_length", len(body))

	return &generation.Content{
		Subject: generation.Subject(req.Task),
		Body:    body,
	}, nil
}

// createPrompt renders the prompt template with the task and recipient
// details from req.
func (g *GeminiGenerator) createPrompt(ctx context.Context, req generation.Request) (string, error) {
	task := req.Task

	recipient := req.UserName
	if recipient == "" {
		recipient = "there"
	}
	description := task.Description
	if description == "" {
		description = "No description provided"
	}
	tags := "None"
	if len(task.Tags) > 0 {
		tags = strings.Join(task.Tags, ", ")
	}
	priority := task.Priority
	if priority == "" {
		priority = "normal"
	}
	recurrence := "none"
	if task.IsRecurring() {
		recurrence = string(task.Recurrence.Frequency)
	}

	data := promptData{
		Recipient:   recipient,
		Title:       task.Title,
		Description: description,
		Tags:        tags,
		DueDate:     generation.FormatDueDate(task.DueDate, req.Location),
		Priority:    priority,
		Recurrence:  recurrence,
	}

	var promptBuffer bytes.Buffer
	if err := g.promptTemplate.Execute(&promptBuffer, data); err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}

	prompt := promptBuffer.String()
	g.logger.DebugContext(ctx, "prompt generated",
		"task_id", task.ID,
		"prompt_length", len(prompt))

	return prompt, nil
}

// callGeminiWithRetry makes a call to the Gemini API, retrying a transient
// failure exactly once with a jittered delay. Permanent errors (blocked
// content, malformed responses) are returned immediately without retrying.
func (g *GeminiGenerator) callGeminiWithRetry(ctx context.Context, prompt string) (string, error) {
	if prompt == "" {
		return "", ErrEmptyPrompt
	}

	const maxRetries = 1
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for attempt := 0; ; attempt++ {
		attemptNum := attempt + 1
		g.logger.DebugContext(ctx, "making Gemini API call",
			"attempt", attemptNum,
			"max_attempts", maxRetries+1)

		resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)

		var body string
		var transient bool
		if err != nil {
			// API transport errors are assumed transient.
			transient = true
		} else {
			body, err = textFromResponse(resp)
		}

		if err == nil {
			return body, nil
		}

		g.logger.WarnContext(ctx, "Gemini API call failed",
			"attempt", attemptNum,
			"error", err)

		if !transient {
			return "", err
		}
		if attempt >= maxRetries {
			return "", fmt.Errorf("%w: exceeded maximum retry attempts (%d): %v",
				generation.ErrTransientFailure, maxRetries, err)
		}

		// Jittered delay: base * (0.5 + rand(0, 0.5))
		delay := time.Duration(float64(retryDelayBase) * (0.5 + rng.Float64()*0.5))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %v", generation.ErrTransientFailure, ctx.Err())
		}
	}
}

// textFromResponse extracts the plain-text body from a Gemini response,
// classifying unusable responses as permanent errors.
func textFromResponse(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", fmt.Errorf("%w: nil response", generation.ErrInvalidResponse)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no content generated", generation.ErrInvalidResponse)
	}
	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return "", fmt.Errorf("%w: content blocked by safety filters", generation.ErrContentBlocked)
	}
	if candidate.Content == nil {
		return "", fmt.Errorf("%w: empty content in response", generation.ErrInvalidResponse)
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil {
			text.WriteString(part.Text)
		}
	}

	body := strings.TrimSpace(text.String())
	if body == "" {
		return "", fmt.Errorf("%w: response carries no text", generation.ErrInvalidResponse)
	}
	return body, nil
}
