// Package retry implements the exponential-backoff wrapper used around flaky upstream calls.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Default policy parameters.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
)

// SleepFunc blocks for d or until ctx finishes.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy retries a call with delay baseDelay * 2^attempt between attempts.
type Policy struct {
	maxAttempts int
	baseDelay   time.Duration
	sleep       SleepFunc
	onRetry     func(attempt int, err error)
}

// Option customizes a Policy.
type Option func(*Policy)

// WithMaxAttempts sets the total number of attempts, including the first.
func WithMaxAttempts(n int) Option {
	return func(p *Policy) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// WithBaseDelay sets the unit the exponential backoff is multiplied by.
func WithBaseDelay(d time.Duration) Option {
	return func(p *Policy) {
		if d >= 0 {
			p.baseDelay = d
		}
	}
}

// WithSleep replaces the context-aware sleeper (tests).
func WithSleep(fn SleepFunc) Option {
	return func(p *Policy) {
		if fn != nil {
			p.sleep = fn
		}
	}
}

// WithOnRetry registers a hook invoked before each backoff sleep.
func WithOnRetry(fn func(attempt int, err error)) Option {
	return func(p *Policy) {
		p.onRetry = fn
	}
}

// New builds a policy with three attempts and a one second base delay.
func New(opts ...Option) *Policy {
	p := &Policy{
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   DefaultBaseDelay,
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// MaxAttempts reports the configured attempt budget.
func (p *Policy) MaxAttempts() int {
	return p.maxAttempts
}

// Backoff returns the wait after the given 1-based failed attempt.
func (p *Policy) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	return p.baseDelay * time.Duration(1<<uint(attempt))
}

// ShouldRetry decides whether another attempt is worthwhile.
func (p *Policy) ShouldRetry(err error, attempt int) bool {
	if err == nil || attempt >= p.maxAttempts {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// Do runs fn until it succeeds or the policy gives up, returning the last error.
func Do[T any](ctx context.Context, p *Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var (
		zero    T
		lastErr error
	)
	if p == nil {
		p = New()
	}
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !p.ShouldRetry(err, attempt) {
			return zero, fmt.Errorf("after %d attempts: %w", attempt, lastErr)
		}
		if p.onRetry != nil {
			p.onRetry(attempt, err)
		}
		if sleepErr := p.sleep(ctx, p.Backoff(attempt)); sleepErr != nil {
			return zero, fmt.Errorf("retry backoff interrupted: %w", errors.Join(lastErr, sleepErr))
		}
	}
	return zero, fmt.Errorf("after %d attempts: %w", p.maxAttempts, lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("sleep canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
