package resilience

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/staylink/tenantcache/internal/config"
)

// RetryPolicy retries transient failures with exponential backoff.
type RetryPolicy struct {
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	multiplier     float64

	totalRetries atomic.Int64
	totalSuccess atomic.Int64
	totalFailure atomic.Int64
}

// NewRetryPolicy creates a new retry policy with the given configuration.
func NewRetryPolicy(cfg config.RetryConfig) *RetryPolicy {
	rp := &RetryPolicy{
		maxAttempts:    cfg.MaxAttempts,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		multiplier:     cfg.Multiplier,
	}

	if rp.maxAttempts <= 0 {
		rp.maxAttempts = 3
	}
	if rp.initialBackoff <= 0 {
		rp.initialBackoff = 100 * time.Millisecond
	}
	if rp.maxBackoff <= 0 {
		rp.maxBackoff = 2 * time.Second
	}
	if rp.multiplier <= 0 {
		rp.multiplier = 2.0
	}

	return rp
}

// ExecuteCtx runs an operation with retry logic and context.
// Non-retryable errors are returned immediately.
func (rp *RetryPolicy) ExecuteCtx(ctx context.Context, fn func(context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = rp.initialBackoff
	b.MaxInterval = rp.maxBackoff
	b.Multiplier = rp.multiplier

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		opErr := fn(ctx)
		if opErr == nil {
			return nil
		}
		if !IsRetryable(opErr) {
			return backoff.Permanent(opErr)
		}
		return opErr
	}, backoff.WithContext(backoff.WithMaxRetries(b, uint64(rp.maxAttempts-1)), ctx))

	if attempts > 1 {
		rp.totalRetries.Add(int64(attempts - 1))
	}
	if err == nil {
		rp.totalSuccess.Add(1)
	} else {
		rp.totalFailure.Add(1)
	}

	return err
}

// Stats returns cumulative retry counters.
func (rp *RetryPolicy) Stats() (retries, successes, failures int64) {
	return rp.totalRetries.Load(), rp.totalSuccess.Load(), rp.totalFailure.Load()
}
