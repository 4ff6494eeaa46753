// Package llm wraps the generative text services used by every pipeline
// stage behind a single completion interface.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/abdulachik/recast/internal/content"
)

// Provider names accepted by New.
const (
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// Client completes a prompt pair into a free-text answer.
type Client interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// CompleteFunc adapts a function to the Client interface.
type CompleteFunc func(ctx context.Context, system, user string) (string, error)

// Complete calls f.
func (f CompleteFunc) Complete(ctx context.Context, system, user string) (string, error) {
	return f(ctx, system, user)
}

// Config selects and configures a backend.
type Config struct {
	Provider string

	AnthropicAPIKey string
	AnthropicModel  string

	GeminiAPIKey string
	GeminiModel  string
}

// New builds the backend named by cfg.Provider.
func New(ctx context.Context, cfg Config) (Client, error) {
	switch cfg.Provider {
	case ProviderAnthropic, "":
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("%w: ANTHROPIC_API_KEY is required", content.ErrConfiguration)
		}
		return NewClaudeClient(ClaudeConfig{APIKey: cfg.AnthropicAPIKey, Model: cfg.AnthropicModel}), nil
	case ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("%w: GEMINI_API_KEY is required", content.ErrConfiguration)
		}
		return NewGeminiClient(ctx, GeminiConfig{APIKey: cfg.GeminiAPIKey, Model: cfg.GeminiModel})
	default:
		return nil, fmt.Errorf("%w: unknown LLM_PROVIDER %q", content.ErrConfiguration, cfg.Provider)
	}
}

// WithTimeout bounds every call made through c.
func WithTimeout(c Client, d time.Duration) Client {
	if d <= 0 {
		return c
	}
	return CompleteFunc(func(ctx context.Context, system, user string) (string, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return c.Complete(ctx, system, user)
	})
}
