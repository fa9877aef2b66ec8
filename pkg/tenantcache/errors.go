package tenantcache

import (
	"github.com/staylink/tenantcache/internal/types"
)

// CacheError represents a cache operation error.
type CacheError = types.CacheError

var (
	// ErrCacheMiss indicates that a requested key was not found in the cache.
	ErrCacheMiss = types.ErrCacheMiss
	// ErrStoreUnavailable indicates that the backing store is not available.
	ErrStoreUnavailable = types.ErrStoreUnavailable
	// ErrCircuitOpen indicates that the circuit breaker is open.
	ErrCircuitOpen = types.ErrCircuitOpen
	// ErrClosed indicates that the engine has been closed.
	ErrClosed = types.ErrClosed
	// ErrQuotaExceeded indicates that a write was rejected for exceeding the
	// tenant's entry or memory quota.
	ErrQuotaExceeded = types.ErrQuotaExceeded
	// ErrEntryTooLarge indicates that a value exceeds the tenant's per-entry
	// size limit.
	ErrEntryTooLarge = types.ErrEntryTooLarge
	// ErrEventQueueFull indicates that an emitted event was dropped because
	// the queue is at capacity.
	ErrEventQueueFull = types.ErrEventQueueFull
	// ErrInvalidRule indicates that an invalidation rule failed validation.
	ErrInvalidRule = types.ErrInvalidRule
	// ErrRuleNotFound indicates that no rule is installed under the name.
	ErrRuleNotFound = types.ErrRuleNotFound
	// ErrInvalidWarmingTask indicates that a warming task failed validation.
	ErrInvalidWarmingTask = types.ErrInvalidWarmingTask
	// ErrUnknownWarmingFunc indicates that a task references an unregistered
	// warming function.
	ErrUnknownWarmingFunc = types.ErrUnknownWarmingFunc
	// ErrInvalidNamespace indicates an unknown namespace.
	ErrInvalidNamespace = types.ErrInvalidNamespace
	// ErrTenantRequired indicates a cache operation without a tenant ID.
	ErrTenantRequired = types.ErrTenantRequired
	// ErrShutdownTimeout indicates that background work did not drain in time.
	ErrShutdownTimeout = types.ErrShutdownTimeout
	// ErrSerializationFailed indicates that value serialization failed.
	ErrSerializationFailed = types.ErrSerializationFailed
)

// NewCacheError creates a new cache error with operation, key, layer, and
// underlying error.
func NewCacheError(op, key, layer string, err error) *CacheError {
	return types.NewCacheError(op, key, layer, err)
}

// IsCacheMiss returns true if the error is a cache miss.
func IsCacheMiss(err error) bool {
	return types.IsCacheMiss(err)
}

// IsQuotaExceeded returns true if the error is a quota or entry-size rejection.
func IsQuotaExceeded(err error) bool {
	return types.IsQuotaExceeded(err)
}

// IsStoreUnavailable returns true if the error indicates the backing store is
// unavailable.
func IsStoreUnavailable(err error) bool {
	return types.IsStoreUnavailable(err)
}

// IsCircuitOpen returns true if the error indicates the circuit breaker is open.
func IsCircuitOpen(err error) bool {
	return types.IsCircuitOpen(err)
}

// IsRetryable returns true if the error can be retried.
func IsRetryable(err error) bool {
	return types.IsRetryable(err)
}
