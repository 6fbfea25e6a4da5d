// ABOUTME: LLM collaborator contract and provider selection
// ABOUTME: Text in, best-effort JSON-shaped text out; callers validate the shape
package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// Provider constants for LLM provider selection.
const (
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// systemPrompt is shared by every provider; prompts themselves describe the schema.
const systemPrompt = "You turn sales conversation notes into structured CRM data. Respond with a single JSON object and nothing else."

// Completer is the opaque LLM call used by the intent classifier and the extractor.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Model() string
}

// Config holds LLM client configuration.
type Config struct {
	Provider  string
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int

	// RateLimitRPS caps calls per second across the process. <=0 disables.
	RateLimitRPS float64
	// Timeout bounds a single completion. <=0 disables.
	Timeout time.Duration
}

// New creates a Completer for cfg.Provider (default anthropic), wrapped with
// rate limiting and a per-call timeout when configured.
func New(ctx context.Context, cfg Config) (Completer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("API key is required")
	}

	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = ProviderAnthropic
	}

	var (
		c   Completer
		err error
	)
	switch provider {
	case ProviderAnthropic:
		c, err = NewAnthropic(cfg)
	case ProviderGemini:
		c, err = NewGemini(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.RateLimitRPS > 0 || cfg.Timeout > 0 {
		c = NewThrottled(c, cfg.RateLimitRPS, cfg.Timeout)
	}
	return c, nil
}

// TransientError marks a collaborator failure that a caller may retry.
// Nothing in this module retries; the orchestrator's caller owns that policy.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	if e == nil || e.Err == nil {
		return "transient error"
	}
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsTransient reports whether err is marked retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

func classifyStatus(err error, status int) error {
	if status == 429 || status/100 == 5 {
		return &TransientError{Err: err}
	}
	return err
}

func classifyNet(err error) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &TransientError{Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TransientError{Err: err}
	}
	return err
}
