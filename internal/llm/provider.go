package llm

import (
	"context"
	"errors"
	"fmt"
)

// Fixed generation parameters used for every request.
const (
	DefaultTemperature     = 0.1
	DefaultTopK            = 1
	DefaultTopP            = 1.0
	DefaultMaxOutputTokens = 8192
)

// Request is one generation call. APIKey is never serialised or logged.
type Request struct {
	APIKey          string `json:"-"`
	Prompt          string
	Temperature     float32
	TopK            int
	TopP            float32
	MaxOutputTokens int
}

// NewRequest fills in the fixed generation parameters.
func NewRequest(apiKey, prompt string) Request {
	return Request{
		APIKey:          apiKey,
		Prompt:          prompt,
		Temperature:     DefaultTemperature,
		TopK:            DefaultTopK,
		TopP:            DefaultTopP,
		MaxOutputTokens: DefaultMaxOutputTokens,
	}
}

// Client is the minimal interface the orchestrator needs from a model
// backend. One call is one HTTP round trip; retrying is the caller's job.
type Client interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// ErrMalformedResponse means the backend answered 2xx without usable text.
var ErrMalformedResponse = errors.New("malformed model response")

// ErrNotConfigured means the backend is missing required settings. It is
// never worth retrying.
var ErrNotConfigured = errors.New("model backend not configured")

// APIError is a non-2xx answer from the backend.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("model API error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("model API error: status %d: %s", e.StatusCode, e.Message)
}

// StatusCode extracts the HTTP status from err, or 0 when err is not an APIError.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
