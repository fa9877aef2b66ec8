package types

import "time"

// CacheOptions holds per-operation settings for the tenant cache API.
type CacheOptions struct {
	Namespace      Namespace
	TTL            time.Duration
	Tags           []string
	SkipLocalCache bool
	Cascade        bool
}

// DefaultOptions returns the per-operation defaults: temp namespace,
// tenant-config TTL, cascading deletes.
func DefaultOptions() *CacheOptions {
	return &CacheOptions{
		Namespace: NamespaceTemp,
		Cascade:   true,
	}
}

// Option is a functional option for configuring cache operations.
type Option func(*CacheOptions)

// ApplyOptions applies functional options on top of the defaults.
func ApplyOptions(opts ...Option) *CacheOptions {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// EngineOptions holds construction-time dependencies for the engine.
type EngineOptions struct {
	// Logger is the structured logger to use.
	Logger Logger

	// Metrics is the metrics recorder.
	Metrics MetricsRecorder

	// Store overrides the Redis-backed store, mainly for tests.
	Store Store

	// RedisAddress overrides the Redis address from config.
	RedisAddress string

	// RedisPassword overrides the Redis password from config.
	RedisPassword SecretString

	// RedisDB overrides the Redis database from config.
	RedisDB int

	// DisableLocalCache disables the process-local read cache entirely.
	DisableLocalCache bool

	// DisableResilience disables circuit breaker and retry around the store.
	DisableResilience bool

	// TierResolver maps a tenant to its caching tier. Defaults to basic.
	TierResolver func(tenantID string) CacheStrategy

	// WarmingFuncs seeds the warming-function registry.
	WarmingFuncs map[string]WarmingFunc
}
