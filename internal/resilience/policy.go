package resilience

import (
	"context"

	"github.com/staylink/tenantcache/internal/config"
)

// Policy composes the retry and circuit breaker patterns around
// backing-store operations.
//
// Execution order: Retry -> Circuit Breaker -> Operation. Each retry attempt
// goes through the circuit breaker independently, so a failing store counts
// every attempt toward the circuit state and fast-fails once open.
type Policy struct {
	circuit CircuitExecutor
	retry   RetryExecutor
}

// CircuitExecutor defines the circuit breaker surface the policy needs.
type CircuitExecutor interface {
	Execute(fn func() error) error
	State() State
	IsOpen() bool
	SetOnStateChange(fn func(from, to State))
}

// RetryExecutor defines the retry surface the policy needs.
type RetryExecutor interface {
	ExecuteCtx(ctx context.Context, fn func(context.Context) error) error
}

// NewPolicy creates a resilience policy from the given configuration.
func NewPolicy(cb config.CircuitBreakerConfig, retry config.RetryConfig) *Policy {
	p := &Policy{}

	if cb.Enabled {
		p.circuit = NewCircuitBreaker(cb)
	} else {
		p.circuit = disabledCircuit{}
	}

	if retry.Enabled {
		p.retry = NewRetryPolicy(retry)
	} else {
		p.retry = disabledRetry{}
	}

	return p
}

// NewDisabledPolicy creates a policy that bypasses all resilience patterns.
func NewDisabledPolicy() *Policy {
	return &Policy{circuit: disabledCircuit{}, retry: disabledRetry{}}
}

// Execute runs an operation through retry and circuit breaker.
func (p *Policy) Execute(ctx context.Context, fn func(context.Context) error) error {
	return p.retry.ExecuteCtx(ctx, func(ctx context.Context) error {
		return p.circuit.Execute(func() error {
			return fn(ctx)
		})
	})
}

// IsCircuitOpen returns true if the circuit breaker is open.
func (p *Policy) IsCircuitOpen() bool {
	return p.circuit.IsOpen()
}

// CircuitState returns the current circuit breaker state.
func (p *Policy) CircuitState() State {
	return p.circuit.State()
}

// SetOnCircuitStateChange sets a callback for circuit state changes.
func (p *Policy) SetOnCircuitStateChange(fn func(from, to State)) {
	p.circuit.SetOnStateChange(fn)
}

type disabledCircuit struct{}

func (disabledCircuit) Execute(fn func() error) error         { return fn() }
func (disabledCircuit) State() State                          { return StateClosed }
func (disabledCircuit) IsOpen() bool                          { return false }
func (disabledCircuit) SetOnStateChange(func(from, to State)) {}

type disabledRetry struct{}

func (disabledRetry) ExecuteCtx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}
