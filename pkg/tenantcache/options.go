package tenantcache

import (
	"time"

	"github.com/staylink/tenantcache/internal/types"
)

type (
	// CacheOptions holds per-operation settings for the tenant cache API.
	CacheOptions = types.CacheOptions

	// Option is a functional option for configuring a cache operation.
	Option = types.Option
)

// WithTTL sets the lifetime for the entry being written. Zero or negative
// falls back to the tenant's default TTL; the tenant's max TTL always caps it.
func WithTTL(ttl time.Duration) Option {
	return func(o *CacheOptions) {
		o.TTL = ttl
	}
}

// WithNamespace scopes the operation to a data category within the tenant.
func WithNamespace(ns Namespace) Option {
	return func(o *CacheOptions) {
		o.Namespace = ns
	}
}

// WithTags attaches tags to the entry for tag-scoped reads and invalidation.
func WithTags(tags ...string) Option {
	return func(o *CacheOptions) {
		o.Tags = tags
	}
}

// WithSkipLocalCache bypasses the process-local read layer for this operation.
func WithSkipLocalCache() Option {
	return func(o *CacheOptions) {
		o.SkipLocalCache = true
	}
}

// WithoutCascade disables dependency cascading for this delete.
func WithoutCascade() Option {
	return func(o *CacheOptions) {
		o.Cascade = false
	}
}

// EngineOption configures engine construction.
type EngineOption func(*types.EngineOptions)

// WithLogger sets the structured logger the engine logs through.
func WithLogger(logger Logger) EngineOption {
	return func(o *types.EngineOptions) {
		o.Logger = logger
	}
}

// WithMetrics sets an external metrics recorder. When set, the built-in
// tracker and metrics publishing loop are not started.
func WithMetrics(metrics MetricsRecorder) EngineOption {
	return func(o *types.EngineOptions) {
		o.Metrics = metrics
	}
}

// WithStore overrides the Redis-backed store, mainly for tests.
func WithStore(store Store) EngineOption {
	return func(o *types.EngineOptions) {
		o.Store = store
	}
}

// WithRedisAddress overrides the Redis address from config.
func WithRedisAddress(addr string) EngineOption {
	return func(o *types.EngineOptions) {
		o.RedisAddress = addr
	}
}

// WithRedisPassword overrides the Redis password from config.
func WithRedisPassword(password string) EngineOption {
	return func(o *types.EngineOptions) {
		o.RedisPassword = types.NewSecretString(password)
	}
}

// WithRedisDB overrides the Redis database from config.
func WithRedisDB(db int) EngineOption {
	return func(o *types.EngineOptions) {
		o.RedisDB = db
	}
}

// WithoutLocalCache disables the process-local read cache entirely.
func WithoutLocalCache() EngineOption {
	return func(o *types.EngineOptions) {
		o.DisableLocalCache = true
	}
}

// WithoutResilience disables the circuit breaker and retries around the
// backing store. Intended for tests.
func WithoutResilience() EngineOption {
	return func(o *types.EngineOptions) {
		o.DisableResilience = true
	}
}

// WithTierResolver sets the function that maps a tenant to its caching tier.
func WithTierResolver(fn func(tenantID string) CacheStrategy) EngineOption {
	return func(o *types.EngineOptions) {
		o.TierResolver = fn
	}
}

// WithWarmingFunc registers a named warming function at construction.
func WithWarmingFunc(name string, fn WarmingFunc) EngineOption {
	return func(o *types.EngineOptions) {
		if o.WarmingFuncs == nil {
			o.WarmingFuncs = make(map[string]types.WarmingFunc)
		}
		o.WarmingFuncs[name] = fn
	}
}
