package agent

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/smallnest/researchchat/log"
	"golang.org/x/sync/semaphore"
)

const (
	// DefaultPoolSize is the number of jobs that may run at once.
	DefaultPoolSize = 4
	// DefaultJobTimeout bounds one job attempt.
	DefaultJobTimeout = 6 * time.Minute
)

// ErrJobTimeout is wrapped by the error returned when a job exceeds its timeout.
var ErrJobTimeout = errors.New("job timed out")

// Pool runs blocking LLM work on a bounded number of goroutines shared by
// every session. Jobs carry no session affinity.
type Pool struct {
	sem      *semaphore.Weighted
	size     int
	timeout  time.Duration
	retries  int
	logger   log.Logger
	inflight atomic.Int64
	timeouts atomic.Int64
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithJobTimeout sets the per-attempt timeout.
func WithJobTimeout(d time.Duration) PoolOption {
	return func(p *Pool) { p.timeout = d }
}

// WithTimeoutRetries sets how often DoWithRetry resubmits a timed-out job.
func WithTimeoutRetries(n int) PoolOption {
	return func(p *Pool) { p.retries = n }
}

// WithPoolLogger sets the pool's logger.
func WithPoolLogger(l log.Logger) PoolOption {
	return func(p *Pool) { p.logger = l }
}

// NewPool creates a pool running at most size jobs concurrently.
func NewPool(size int, opts ...PoolOption) *Pool {
	if size <= 0 {
		size = DefaultPoolSize
	}
	p := &Pool{
		sem:     semaphore.NewWeighted(int64(size)),
		size:    size,
		timeout: DefaultJobTimeout,
		retries: 1,
		logger:  log.GetDefaultLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Size returns the pool capacity.
func (p *Pool) Size() int { return p.size }

// InFlight returns the number of jobs currently holding a slot.
func (p *Pool) InFlight() int64 { return p.inflight.Load() }

// Timeouts returns the number of attempts that ran out of time.
func (p *Pool) Timeouts() int64 { return p.timeouts.Load() }

// Do runs job on the pool and waits for its result or the job timeout.
// A timed-out job is not killed: its context is cancelled and it keeps its
// slot until it returns, but its result is discarded.
func (p *Pool) Do(ctx context.Context, job func(ctx context.Context) (string, error)) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}

	jobCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	type outcome struct {
		out string
		err error
	}
	done := make(chan outcome, 1)
	p.inflight.Add(1)
	go func() {
		defer func() {
			p.inflight.Add(-1)
			p.sem.Release(1)
		}()
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: E(KindUpstream, "pool", fmt.Errorf("panic: %v", r))}
			}
		}()
		out, err := job(jobCtx)
		done <- outcome{out, err}
	}()

	select {
	case res := <-done:
		if res.err != nil && ctx.Err() == nil && errors.Is(jobCtx.Err(), context.DeadlineExceeded) {
			return "", p.timedOut()
		}
		return res.out, res.err
	case <-jobCtx.Done():
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", p.timedOut()
	}
}

func (p *Pool) timedOut() error {
	p.timeouts.Add(1)
	return E(KindTimeout, "pool", fmt.Errorf("%w after %s", ErrJobTimeout, p.timeout))
}

// DoWithRetry runs job with scale 1 and, each time it times out, resubmits it
// with half the previous scale, up to the configured number of retries.
// Jobs use scale to shrink their input. Other errors are returned at once.
func (p *Pool) DoWithRetry(ctx context.Context, job func(ctx context.Context, scale float64) (string, error)) (string, error) {
	scale := 1.0
	var lastErr error
	for attempt := 0; attempt <= p.retries; attempt++ {
		out, err := p.Do(ctx, func(ctx context.Context) (string, error) {
			return job(ctx, scale)
		})
		if err == nil {
			return out, nil
		}
		lastErr = err
		if KindOf(err) != KindTimeout || ctx.Err() != nil {
			return "", err
		}
		p.logger.Warn("job timed out (attempt %d/%d), retrying with input scale %.2f",
			attempt+1, p.retries+1, scale/2)
		scale /= 2
	}
	return "", lastErr
}
