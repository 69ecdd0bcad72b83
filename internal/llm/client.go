// Package llm talks to the text-generation services used to write outlines,
// sections and validation reports.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Request is a single generation call.
type Request struct {
	Prompt       string
	SystemPrompt string
	Model        string // empty = client default
	Temperature  float64
	MaxTokens    int
	JSONMode     bool
}

// Response carries the generated text and usage metadata.
type Response struct {
	Content    string
	TokensUsed int
	Model      string
	Duration   time.Duration
}

// Client generates text for a prompt.
type Client interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

var (
	ErrTimeout   = errors.New("llm request timed out")
	ErrRateLimit = errors.New("llm rate limit exceeded")
)

// APIError is any non-timeout, non-rate-limit failure reported by a provider.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s api error: %s", e.Provider, e.Body)
	}
	return fmt.Sprintf("%s api error (%d): %s", e.Provider, e.StatusCode, e.Body)
}

// IsServiceError reports whether err came from the generation service.
func IsServiceError(err error) bool {
	var apiErr *APIError
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrRateLimit) || errors.As(err, &apiErr)
}

// classify maps a transport or status failure onto the error taxonomy.
func classify(provider string, status int, body string, err error) error {
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || strings.Contains(strings.ToLower(err.Error()), "timeout") {
			return fmt.Errorf("%s: %w", provider, ErrTimeout)
		}
		if strings.Contains(strings.ToLower(err.Error()), "rate limit") {
			return fmt.Errorf("%s: %w", provider, ErrRateLimit)
		}
		return &APIError{Provider: provider, Body: err.Error()}
	}
	switch {
	case status == 429:
		return fmt.Errorf("%s: %w: %s", provider, ErrRateLimit, body)
	case status == 408 || status == 504:
		return fmt.Errorf("%s: %w", provider, ErrTimeout)
	default:
		return &APIError{Provider: provider, StatusCode: status, Body: body}
	}
}

// pickModel returns requested unless it is empty or names a model family
// served by another provider, in which case fallback is used.
func pickModel(requested, fallback string, foreign ...string) string {
	m := strings.ToLower(strings.TrimSpace(requested))
	if m == "" {
		return fallback
	}
	for _, prefix := range foreign {
		if strings.HasPrefix(m, prefix) {
			return fallback
		}
	}
	return requested
}
