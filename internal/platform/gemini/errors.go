package gemini

import "errors"

// Error definitions for the gemini package.
var (
	// ErrEmptyPrompt is returned when a rendered prompt is empty.
	ErrEmptyPrompt = errors.New("prompt cannot be empty")
)
