package types

import (
	"errors"
	"fmt"
)

var (
	ErrCacheMiss           = errors.New("tenantcache: key not found")
	ErrStoreUnavailable    = errors.New("tenantcache: backing store unavailable")
	ErrCircuitOpen         = errors.New("tenantcache: circuit breaker open")
	ErrClosed              = errors.New("tenantcache: engine closed")
	ErrQuotaExceeded       = errors.New("tenantcache: tenant quota exceeded")
	ErrEntryTooLarge       = errors.New("tenantcache: entry exceeds tenant size limit")
	ErrEventQueueFull      = errors.New("tenantcache: event queue full, event dropped")
	ErrInvalidRule         = errors.New("tenantcache: invalid invalidation rule")
	ErrRuleNotFound        = errors.New("tenantcache: invalidation rule not found")
	ErrInvalidWarmingTask  = errors.New("tenantcache: invalid warming task")
	ErrUnknownWarmingFunc  = errors.New("tenantcache: warming function not registered")
	ErrInvalidNamespace    = errors.New("tenantcache: invalid namespace")
	ErrTenantRequired      = errors.New("tenantcache: tenant id is required")
	ErrShutdownTimeout     = errors.New("tenantcache: shutdown timeout waiting for background operations")
	ErrSerializationFailed = errors.New("tenantcache: serialization failed")
)

// CacheError wraps a failure with its operation, key and layer for context.
type CacheError struct {
	Op    string
	Key   string
	Layer string
	Err   error
}

func (e *CacheError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("tenantcache %s on %s [%s]: %v", e.Op, e.Layer, e.Key, e.Err)
	}
	return fmt.Sprintf("tenantcache %s on %s: %v", e.Op, e.Layer, e.Err)
}

func (e *CacheError) Unwrap() error {
	return e.Err
}

func NewCacheError(op, key, layer string, err error) *CacheError {
	return &CacheError{
		Op:    op,
		Key:   key,
		Layer: layer,
		Err:   err,
	}
}

func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

func IsQuotaExceeded(err error) bool {
	return errors.Is(err, ErrQuotaExceeded)
}

func IsStoreUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}

// IsRetryable reports whether an operation that failed with err is worth
// retrying. Misses, quota rejections and configuration errors are terminal;
// network and timeout style failures are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	switch {
	case IsCacheMiss(err),
		IsQuotaExceeded(err),
		IsCircuitOpen(err),
		errors.Is(err, ErrClosed),
		errors.Is(err, ErrEntryTooLarge),
		errors.Is(err, ErrInvalidRule),
		errors.Is(err, ErrInvalidWarmingTask),
		errors.Is(err, ErrUnknownWarmingFunc),
		errors.Is(err, ErrInvalidNamespace),
		errors.Is(err, ErrTenantRequired):
		return false
	}

	return true
}
