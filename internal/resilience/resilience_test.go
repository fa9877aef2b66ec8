package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staylink/tenantcache/internal/config"
	"github.com/staylink/tenantcache/internal/types"
)

var errTransient = errors.New("connection reset")

func testBreakerConfig() config.CircuitBreakerConfig {
	return config.CircuitBreakerConfig{
		Enabled:             true,
		FailureThreshold:    3,
		SuccessThreshold:    2,
		OpenDuration:        50 * time.Millisecond,
		HalfOpenMaxRequests: 2,
	}
}

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(testBreakerConfig())
	fail := func() error { return errTransient }

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(fail), errTransient)
	}
	assert.Equal(t, StateOpen, cb.State())
	assert.True(t, cb.IsOpen())

	// While open, calls fast-fail without running the operation.
	ran := false
	err := cb.Execute(func() error { ran = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, ran)
}

func TestCircuitBreakerSuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(testBreakerConfig())

	require.Error(t, cb.Execute(func() error { return errTransient }))
	require.Error(t, cb.Execute(func() error { return errTransient }))
	require.NoError(t, cb.Execute(func() error { return nil }))
	require.Error(t, cb.Execute(func() error { return errTransient }))
	require.Error(t, cb.Execute(func() error { return errTransient }))

	assert.Equal(t, StateClosed, cb.State(), "interleaved successes keep the circuit closed")
}

func TestCircuitBreakerHalfOpenRecovery(t *testing.T) {
	cb := NewCircuitBreaker(testBreakerConfig())

	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return errTransient })
	}
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(60 * time.Millisecond)

	// First probe after the open window moves the circuit to half-open.
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateHalfOpen, cb.State())

	// The second consecutive success closes it.
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(testBreakerConfig())

	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return errTransient })
	}
	time.Sleep(60 * time.Millisecond)

	require.Error(t, cb.Execute(func() error { return errTransient }))
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreakerStateChangeCallback(t *testing.T) {
	cb := NewCircuitBreaker(testBreakerConfig())

	var transitions []string
	cb.SetOnStateChange(func(from, to State) {
		transitions = append(transitions, from.String()+"->"+to.String())
	})

	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return errTransient })
	}
	assert.Equal(t, []string{"closed->open"}, transitions)

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
}

func TestRetryPolicy(t *testing.T) {
	cfg := config.RetryConfig{
		Enabled:        true,
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}

	t.Run("transient failures are retried", func(t *testing.T) {
		rp := NewRetryPolicy(cfg)
		attempts := 0

		err := rp.ExecuteCtx(context.Background(), func(context.Context) error {
			attempts++
			if attempts < 3 {
				return errTransient
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, attempts)

		retries, successes, failures := rp.Stats()
		assert.EqualValues(t, 2, retries)
		assert.EqualValues(t, 1, successes)
		assert.EqualValues(t, 0, failures)
	})

	t.Run("terminal errors short-circuit", func(t *testing.T) {
		rp := NewRetryPolicy(cfg)
		attempts := 0

		err := rp.ExecuteCtx(context.Background(), func(context.Context) error {
			attempts++
			return types.ErrCacheMiss
		})
		assert.ErrorIs(t, err, types.ErrCacheMiss)
		assert.Equal(t, 1, attempts, "a miss is not worth retrying")
	})

	t.Run("attempts are bounded", func(t *testing.T) {
		rp := NewRetryPolicy(cfg)
		attempts := 0

		err := rp.ExecuteCtx(context.Background(), func(context.Context) error {
			attempts++
			return errTransient
		})
		assert.ErrorIs(t, err, errTransient)
		assert.Equal(t, 3, attempts)

		_, _, failures := rp.Stats()
		assert.EqualValues(t, 1, failures)
	})

	t.Run("cancelled context stops retrying", func(t *testing.T) {
		rp := NewRetryPolicy(cfg)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := rp.ExecuteCtx(ctx, func(context.Context) error {
			return errTransient
		})
		assert.Error(t, err)
	})
}

func TestPolicyComposition(t *testing.T) {
	t.Run("disabled policy passes through", func(t *testing.T) {
		p := NewDisabledPolicy()
		attempts := 0

		err := p.Execute(context.Background(), func(context.Context) error {
			attempts++
			return errTransient
		})
		assert.ErrorIs(t, err, errTransient)
		assert.Equal(t, 1, attempts)
		assert.False(t, p.IsCircuitOpen())
		assert.Equal(t, StateClosed, p.CircuitState())
	})

	t.Run("retries count toward the circuit", func(t *testing.T) {
		p := NewPolicy(testBreakerConfig(), config.RetryConfig{
			Enabled:        true,
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     5 * time.Millisecond,
			Multiplier:     2.0,
		})

		err := p.Execute(context.Background(), func(context.Context) error {
			return errTransient
		})
		assert.Error(t, err)
		assert.True(t, p.IsCircuitOpen(), "three failed attempts reach the threshold")
	})

	t.Run("open circuit is not retried", func(t *testing.T) {
		p := NewPolicy(testBreakerConfig(), config.RetryConfig{
			Enabled:        true,
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     5 * time.Millisecond,
			Multiplier:     2.0,
		})

		_ = p.Execute(context.Background(), func(context.Context) error { return errTransient })
		require.True(t, p.IsCircuitOpen())

		attempts := 0
		err := p.Execute(context.Background(), func(context.Context) error {
			attempts++
			return nil
		})
		assert.ErrorIs(t, err, types.ErrCircuitOpen)
		assert.Zero(t, attempts)
	})
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(types.ErrCacheMiss))
	assert.False(t, IsRetryable(types.ErrQuotaExceeded))
	assert.False(t, IsRetryable(types.ErrCircuitOpen))
	assert.True(t, IsRetryable(errTransient))
}
