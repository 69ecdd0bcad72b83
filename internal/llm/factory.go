package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type Options struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string
	Timeout  time.Duration
}

// NewClient returns the client for opts.Provider.
func NewClient(ctx context.Context, opts Options) (Client, error) {
	provider := strings.ToLower(strings.TrimSpace(opts.Provider))
	if provider == "" {
		provider = "anthropic"
	}

	switch provider {
	case "anthropic":
		return NewAnthropicClient(opts.APIKey, opts.Model, opts.BaseURL, opts.Timeout), nil
	case "openai":
		return NewOpenAIClient(opts.APIKey, opts.Model, opts.BaseURL, opts.Timeout), nil
	case "gemini":
		return NewGeminiClient(ctx, opts.APIKey, opts.Model)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", opts.Provider)
	}
}
