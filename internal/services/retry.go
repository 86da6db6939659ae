package services

import (
	"context"
	"fmt"
	"time"

	"github.com/clientcomm/core/internal/transport"
)

// RetryPolicy bounds how often and how fast a failing call is repeated
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Retryable  func(error) bool
}

// DefaultRetryPolicy retries transient provider errors 4 times: 1s, 2s, 4s, 8s
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 4,
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
		Retryable:  transport.IsTransient,
	}
}

// Backoff returns the wait before retry number attempt (1-based)
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 || p.BaseDelay <= 0 {
		return 0
	}
	delay := p.BaseDelay << uint(attempt-1)
	if p.MaxDelay > 0 && (delay > p.MaxDelay || delay <= 0) {
		delay = p.MaxDelay
	}
	return delay
}

// Do calls fn until it succeeds, returns a non-retryable error, or the
// retry budget runs out. Exhaustion wraps the last error in ErrRetriesExhausted.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(p.Backoff(attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		if p.Retryable == nil || !p.Retryable(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("%w after %d retries: %w", ErrRetriesExhausted, p.MaxRetries, lastErr)
}
