package types

import (
	"context"
	"time"
)

// Store is the minimal contract the engine consumes from a distributed
// key-value backing store. Implementations must return ErrCacheMiss from Get
// when the key is absent.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) (int64, error)
	DeleteMany(ctx context.Context, keys []string) (int64, error)
	Exists(ctx context.Context, key string) (bool, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Scan streams keys matching a glob pattern to fn in batches. A non-nil
	// error from fn aborts the scan.
	Scan(ctx context.Context, pattern string, fn func(keys []string) error) error

	Ping(ctx context.Context) error
	IsAvailable() bool
	Close() error
}

// StoreStats is optionally implemented by stores that track resilience state.
type StoreStats interface {
	CircuitState() string
	ErrorCount() int64
}

// MetricsRecorder receives engine-level measurements. Implementations must
// be safe for concurrent use and must never block the caller.
type MetricsRecorder interface {
	RecordHit(layer string, latency time.Duration)
	RecordMiss(layer string, latency time.Duration)
	RecordSet(tenantID string, size int, latency time.Duration)
	RecordDelete(tenantID string, latency time.Duration)
	RecordEviction(tenantID string, count int)
	RecordQuotaRejection(tenantID string, reason string)
	RecordEventProcessed(eventType string, latency time.Duration)
	RecordEventDropped(eventType string)
	RecordInvalidation(scope string, keys int64)
	RecordWarming(function string, success bool, latency time.Duration)
	RecordError(component, op string, err error)
	RecordCircuitBreakerStateChange(from, to string)
}

// Logger is the minimal structured logging interface hosts can inject.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// WarmingFunc re-populates cache data for a key. Implementations recompute
// the value from the source of truth and write it back through the cache
// API. Failures are logged and counted by the scheduler, never propagated.
type WarmingFunc func(ctx context.Context, key string) error
