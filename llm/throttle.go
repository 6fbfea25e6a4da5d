// ABOUTME: Rate-limited Completer wrapper
// ABOUTME: Shares one limiter across calls and bounds each call with a timeout
package llm

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Throttled applies a process-wide rate limit and a per-call timeout to a Completer.
type Throttled struct {
	next    Completer
	limiter *rate.Limiter
	timeout time.Duration
}

func NewThrottled(next Completer, rps float64, timeout time.Duration) *Throttled {
	t := &Throttled{next: next, timeout: timeout}
	if rps > 0 {
		t.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return t
}

func (t *Throttled) Complete(ctx context.Context, prompt string) (string, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	return t.next.Complete(ctx, prompt)
}

func (t *Throttled) Model() string {
	return t.next.Model()
}
