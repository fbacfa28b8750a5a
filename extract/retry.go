package extract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smallnest/researchchat/agent"
)

// ErrExhausted is wrapped by the error Retry returns after its last attempt.
var ErrExhausted = errors.New("retries exhausted")

// Attempt records one failed try.
type Attempt struct {
	Number int
	Err    error
}

// Policy bounds a retry loop.
type Policy struct {
	// MaxAttempts is the total number of calls, at least one.
	MaxAttempts int
	// Delay is the fixed pause between attempts.
	Delay time.Duration
	// Retryable reports whether a failure may be retried. Nil retries everything.
	Retryable func(error) bool
	// OnFailure observes every failed attempt.
	OnFailure func(Attempt)
}

// Retry calls fn until it succeeds or the policy is spent. fn receives the
// 1-based attempt number. It never performs more than MaxAttempts calls.
func Retry[T any](ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	maxAttempts := max(p.MaxAttempts, 1)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		v, err := fn(ctx, attempt)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if p.OnFailure != nil {
			p.OnFailure(Attempt{Number: attempt, Err: err})
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return zero, err
		}
		if attempt == maxAttempts {
			break
		}

		if p.Delay > 0 {
			select {
			case <-time.After(p.Delay):
			case <-ctx.Done():
				return zero, ctx.Err()
			}
		}
	}

	kind := agent.KindOf(lastErr)
	if kind == agent.KindUnknown {
		kind = agent.KindMalformedOutput
	}
	return zero, agent.E(kind, "retry", fmt.Errorf("%w after %d attempts: %w", ErrExhausted, maxAttempts, lastErr))
}
