// Package config provides configuration management for the tenantcache engine.
package config

import (
	"time"

	"github.com/staylink/tenantcache/internal/types"
)

// SecretString is a string type that redacts its value when marshaled to JSON.
type SecretString = types.SecretString

// NewSecretString creates a new SecretString with the provided value.
func NewSecretString(value string) SecretString {
	return types.NewSecretString(value)
}

// Config contains all configuration for the tenantcache engine.
//
//nolint:govet // Configuration struct - logical grouping prioritized over alignment
type Config struct {
	Redis          RedisConfig          `json:"redis"`
	LocalCache     LocalCacheConfig     `json:"localCache"`
	Tenancy        TenancyConfig        `json:"tenancy"`
	Events         EventsConfig         `json:"events"`
	Warming        WarmingConfig        `json:"warming"`
	Dependencies   DependencyConfig     `json:"dependencies"`
	CircuitBreaker CircuitBreakerConfig `json:"circuitBreaker"`
	Retry          RetryConfig          `json:"retry"`
	Metrics        MetricsConfig        `json:"metrics"`
}

// RedisConfig contains configuration for the Redis backing store.
//
//nolint:govet // Configuration struct - logical grouping prioritized over alignment
type RedisConfig struct {
	DialTimeout         time.Duration `json:"dialTimeout"`
	ReadTimeout         time.Duration `json:"readTimeout"`
	WriteTimeout        time.Duration `json:"writeTimeout"`
	PoolTimeout         time.Duration `json:"poolTimeout"`
	HealthCheckInterval time.Duration `json:"healthCheckInterval"`
	Password            SecretString  `json:"password"`
	Address             string        `json:"address"`
	DB                  int           `json:"db"`
	PoolSize            int           `json:"poolSize"`
	MinIdleConns        int           `json:"minIdleConns"`
	ScanBatchSize       int64         `json:"scanBatchSize"`
	EnableTLS           bool          `json:"enableTLS"`
	TLSSkipVerify       bool          `json:"tlsSkipVerify"`
}

// LocalCacheConfig contains configuration for the short-TTL process-local
// read cache in front of the backing store.
type LocalCacheConfig struct {
	TTL             time.Duration `json:"ttl"`
	CleanupInterval time.Duration `json:"cleanupInterval"`
	MaxSizeMB       int           `json:"maxSizeMB"`
	Shards          int           `json:"shards"`
	MaxEntrySize    int           `json:"maxEntrySize"`
	Enabled         bool          `json:"enabled"`
}

// TenancyConfig contains tenant-scoping settings.
type TenancyConfig struct {
	// GlobalPrefix is the leading segment of every backing-store key.
	GlobalPrefix string `json:"globalPrefix"`
	// ConfigTTL is how long resolved tenant configs live in the backing store.
	ConfigTTL time.Duration `json:"configTTL"`
	// DefaultStrategy is the tier used when no resolver is configured.
	DefaultStrategy string `json:"defaultStrategy"`
}

// EventsConfig contains configuration for the event processing loop.
type EventsConfig struct {
	QueueSize                  int           `json:"queueSize"`
	Workers                    int           `json:"workers"`
	PollInterval               time.Duration `json:"pollInterval"`
	MaxConcurrentInvalidations int64         `json:"maxConcurrentInvalidations"`
	InvalidationBatchSize      int           `json:"invalidationBatchSize"`
}

// WarmingConfig contains configuration for the warming scheduler.
type WarmingConfig struct {
	Enabled           bool          `json:"enabled"`
	MaxConcurrent     int64         `json:"maxConcurrent"`
	ProactiveInterval time.Duration `json:"proactiveInterval"`
}

// DependencyConfig contains configuration for the dependency tracker.
type DependencyConfig struct {
	CleanupInterval time.Duration `json:"cleanupInterval"`
}

// CircuitBreakerConfig contains configuration for the circuit breaker
// guarding the backing store.
type CircuitBreakerConfig struct {
	Enabled             bool          `json:"enabled"`
	FailureThreshold    int           `json:"failureThreshold"`
	SuccessThreshold    int           `json:"successThreshold"`
	OpenDuration        time.Duration `json:"openDuration"`
	HalfOpenMaxRequests int           `json:"halfOpenMaxRequests"`
}

// RetryConfig contains configuration for retries around store operations.
type RetryConfig struct {
	InitialBackoff time.Duration `json:"initialBackoff"`
	MaxBackoff     time.Duration `json:"maxBackoff"`
	Multiplier     float64       `json:"multiplier"`
	MaxAttempts    int           `json:"maxAttempts"`
	Enabled        bool          `json:"enabled"`
}

// MetricsConfig contains configuration for metrics publishing.
//
//nolint:govet // Small config struct - minimal alignment benefit
type MetricsConfig struct {
	PublishInterval time.Duration `json:"publishInterval"`
	DataDog         DataDogConfig `json:"datadog"`
	Enabled         bool          `json:"enabled"`
}

// DataDogConfig contains configuration for DataDog metrics publishing.
//
//nolint:govet // Small config struct - minimal alignment benefit
type DataDogConfig struct {
	Tags      []string `json:"tags"`
	AgentHost string   `json:"agentHost"`
	Prefix    string   `json:"prefix"`
	Port      int      `json:"port"`
	Enabled   bool     `json:"enabled"`
}
