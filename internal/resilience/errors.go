// Package resilience provides fault tolerance patterns for backing-store operations.
package resilience

import (
	"errors"
	"net"
	"os"
	"syscall"

	"github.com/staylink/tenantcache/internal/types"
)

// ErrCircuitOpen is returned when the circuit breaker rejects an operation.
var ErrCircuitOpen = types.ErrCircuitOpen

// IsCircuitOpen returns true if the error is a circuit open error.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, types.ErrCircuitOpen)
}

// IsRetryable determines if an error is transient and worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, types.ErrCircuitOpen) {
		return false
	}

	// Misses and policy rejections are terminal.
	if !types.IsRetryable(err) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}

	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}

	// By default, assume errors are retryable for resilience
	return true
}
