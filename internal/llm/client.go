// Package llm talks to the language model used for OCR, categorization and
// reconciliation hints. Callers depend on the Oracle function type, so tests
// can substitute a plain closure.
package llm

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable means the model could not be reached or refused the request.
	ErrUnavailable = errors.New("AI service unavailable")
	// ErrMalformedResponse means the model replied but not in the requested format.
	ErrMalformedResponse = errors.New("malformed AI response")
)

// Image is one page image sent alongside a prompt.
type Image struct {
	MediaType string // image/png, image/jpeg, image/webp
	Data      []byte
}

// Request is a single prompt exchange.
type Request struct {
	System    string
	Prompt    string
	Images    []Image
	MaxTokens int
}

// Oracle answers a Request with the model's raw text.
type Oracle func(ctx context.Context, req Request) (string, error)
