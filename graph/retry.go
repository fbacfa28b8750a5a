package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNodeTimeout is returned when a node attempt exceeds its timeout.
var ErrNodeTimeout = errors.New("node timed out")

func (r *StateRunnable[S]) executeNodeWithRetry(ctx context.Context, node TypedNode[S], state S) (S, error) {
	var lastErr error
	var zero S

	maxAttempts := 1
	policy := node.RetryPolicy
	if policy != nil {
		maxAttempts = policy.MaxRetries + 1
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		result, err := runAttempt(ctx, node, state)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if policy == nil || attempt == maxAttempts-1 || ctx.Err() != nil || !policy.retryable(err) {
			break
		}
		if delay := policy.delay(attempt); delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return zero, ctx.Err()
			}
		}
	}

	return zero, lastErr
}

// runAttempt runs one attempt, bounded by the node timeout when set. The
// timeout is cooperative: the node sees a context deadline and the attempt
// ends when the node returns. A node that handles the deadline itself and
// returns no error keeps its result.
func runAttempt[S any](ctx context.Context, node TypedNode[S], state S) (S, error) {
	if node.Timeout <= 0 {
		return node.Function(ctx, state)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, node.Timeout)
	defer cancel()

	res, err := node.Function(attemptCtx, state)
	if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return res, fmt.Errorf("%w after %s: %w", ErrNodeTimeout, node.Timeout, err)
	}
	return res, err
}

func (p *RetryPolicy) retryable(err error) bool {
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	if len(p.RetryableErrors) == 0 {
		return true
	}
	msg := err.Error()
	for _, pattern := range p.RetryableErrors {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

func (p *RetryPolicy) delay(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	switch p.BackoffStrategy {
	case ExponentialBackoff:
		return base * time.Duration(1<<attempt)
	case LinearBackoff:
		return base * time.Duration(attempt+1)
	case NoBackoff:
		return 0
	default:
		return base
	}
}
