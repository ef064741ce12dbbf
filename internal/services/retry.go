package services

import (
	"context"
	"time"
)

// RetryPolicy implements a try/backoff/retry loop shared by every caller
// that talks to the analysis provider. Delay doubles each attempt:
// BaseDelay, 2*BaseDelay, 4*BaseDelay, ...
type RetryPolicy struct {
	MaxRetries  int
	BaseDelay   time.Duration
	IsRetryable func(error) bool

	// overridable in tests
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetryPolicy creates a RetryPolicy. A nil isRetryable retries every
// error; transient network and server failures are indistinguishable from
// here, so retrying broadly is the default.
func NewRetryPolicy(maxRetries int, baseDelay time.Duration, isRetryable func(error) bool) RetryPolicy {
	return RetryPolicy{
		MaxRetries:  maxRetries,
		BaseDelay:   baseDelay,
		IsRetryable: isRetryable,
		sleep:       sleepContext,
	}
}

// Do runs op, retrying up to MaxRetries times with exponential backoff.
// Returns the last error once attempts are exhausted or op reports a
// non-retryable error.
func (p RetryPolicy) Do(ctx context.Context, op func(attempt int) error) error {
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(attempt)
		if lastErr == nil {
			return nil
		}
		if p.IsRetryable != nil && !p.IsRetryable(lastErr) {
			return lastErr
		}
		if attempt >= p.MaxRetries {
			return lastErr
		}

		delay := p.BaseDelay << uint(attempt)
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
}
