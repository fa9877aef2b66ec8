package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Load loads configuration from a JSON file.
// If the file doesn't exist, returns default configuration.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// File doesn't exist, use defaults
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadWithEnv loads configuration from a JSON file and applies environment overrides.
func LoadWithEnv(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

//nolint:gocyclo // Environment variable parsing requires many conditional checks
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TENANTCACHE_REDIS_ADDRESS"); v != "" {
		cfg.Redis.Address = v
	}
	if v := os.Getenv("TENANTCACHE_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = NewSecretString(v)
	}
	if v := os.Getenv("TENANTCACHE_REDIS_DB"); v != "" {
		cfg.Redis.DB = parseInt(v, cfg.Redis.DB)
	}
	if v := os.Getenv("TENANTCACHE_REDIS_POOL_SIZE"); v != "" {
		cfg.Redis.PoolSize = parseInt(v, cfg.Redis.PoolSize)
	}
	if v := os.Getenv("TENANTCACHE_REDIS_ENABLE_TLS"); v != "" {
		cfg.Redis.EnableTLS = parseBool(v)
	}
	if v := os.Getenv("TENANTCACHE_REDIS_TLS_SKIP_VERIFY"); v != "" {
		cfg.Redis.TLSSkipVerify = parseBool(v)
	}

	if v := os.Getenv("TENANTCACHE_LOCAL_CACHE_ENABLED"); v != "" {
		cfg.LocalCache.Enabled = parseBool(v)
	}
	if v := os.Getenv("TENANTCACHE_LOCAL_CACHE_TTL"); v != "" {
		cfg.LocalCache.TTL = parseDuration(v, cfg.LocalCache.TTL)
	}
	if v := os.Getenv("TENANTCACHE_LOCAL_CACHE_MAX_SIZE_MB"); v != "" {
		cfg.LocalCache.MaxSizeMB = parseInt(v, cfg.LocalCache.MaxSizeMB)
	}

	if v := os.Getenv("TENANTCACHE_GLOBAL_PREFIX"); v != "" {
		cfg.Tenancy.GlobalPrefix = v
	}
	if v := os.Getenv("TENANTCACHE_DEFAULT_STRATEGY"); v != "" {
		cfg.Tenancy.DefaultStrategy = v
	}

	if v := os.Getenv("TENANTCACHE_EVENT_QUEUE_SIZE"); v != "" {
		cfg.Events.QueueSize = parseInt(v, cfg.Events.QueueSize)
	}
	if v := os.Getenv("TENANTCACHE_EVENT_WORKERS"); v != "" {
		cfg.Events.Workers = parseInt(v, cfg.Events.Workers)
	}
	if v := os.Getenv("TENANTCACHE_MAX_CONCURRENT_INVALIDATIONS"); v != "" {
		cfg.Events.MaxConcurrentInvalidations = int64(parseInt(v, int(cfg.Events.MaxConcurrentInvalidations)))
	}

	if v := os.Getenv("TENANTCACHE_WARMING_ENABLED"); v != "" {
		cfg.Warming.Enabled = parseBool(v)
	}
	if v := os.Getenv("TENANTCACHE_MAX_CONCURRENT_WARMING"); v != "" {
		cfg.Warming.MaxConcurrent = int64(parseInt(v, int(cfg.Warming.MaxConcurrent)))
	}

	if v := os.Getenv("TENANTCACHE_CIRCUIT_BREAKER_ENABLED"); v != "" {
		cfg.CircuitBreaker.Enabled = parseBool(v)
	}
	if v := os.Getenv("TENANTCACHE_RETRY_ENABLED"); v != "" {
		cfg.Retry.Enabled = parseBool(v)
	}
	if v := os.Getenv("TENANTCACHE_RETRY_MAX_ATTEMPTS"); v != "" {
		cfg.Retry.MaxAttempts = parseInt(v, cfg.Retry.MaxAttempts)
	}

	if v := os.Getenv("TENANTCACHE_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}

	if v := os.Getenv("DD_AGENT_HOST"); v != "" {
		cfg.Metrics.DataDog.AgentHost = v
		cfg.Metrics.DataDog.Enabled = true
	}
	if v := os.Getenv("DD_DOGSTATSD_PORT"); v != "" {
		cfg.Metrics.DataDog.Port = parseInt(v, cfg.Metrics.DataDog.Port)
	}
	if v := os.Getenv("DD_SERVICE"); v != "" {
		cfg.Metrics.DataDog.Prefix = v
	}
	if v := os.Getenv("DD_ENV"); v != "" {
		cfg.Metrics.DataDog.Tags = append(cfg.Metrics.DataDog.Tags, "env:"+v)
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Redis.Address == "" {
		return fmt.Errorf("redis.address is required")
	}
	if c.Redis.PoolSize <= 0 {
		return fmt.Errorf("redis.poolSize must be positive")
	}

	if c.LocalCache.Enabled {
		if c.LocalCache.MaxSizeMB <= 0 {
			return fmt.Errorf("localCache.maxSizeMB must be positive")
		}
		if c.LocalCache.Shards <= 0 || (c.LocalCache.Shards&(c.LocalCache.Shards-1)) != 0 {
			return fmt.Errorf("localCache.shards must be a positive power of 2")
		}
		if c.LocalCache.TTL <= 0 {
			return fmt.Errorf("localCache.ttl must be positive")
		}
	}

	if c.Tenancy.GlobalPrefix == "" {
		return fmt.Errorf("tenancy.globalPrefix is required")
	}

	if c.Events.QueueSize <= 0 {
		return fmt.Errorf("events.queueSize must be positive")
	}
	if c.Events.Workers <= 0 {
		return fmt.Errorf("events.workers must be positive")
	}
	if c.Events.MaxConcurrentInvalidations <= 0 {
		return fmt.Errorf("events.maxConcurrentInvalidations must be positive")
	}

	if c.Warming.Enabled && c.Warming.MaxConcurrent <= 0 {
		return fmt.Errorf("warming.maxConcurrent must be positive")
	}

	if c.CircuitBreaker.Enabled {
		if c.CircuitBreaker.FailureThreshold <= 0 {
			return fmt.Errorf("circuitBreaker.failureThreshold must be positive")
		}
		if c.CircuitBreaker.OpenDuration <= 0 {
			return fmt.Errorf("circuitBreaker.openDuration must be positive")
		}
	}

	if c.Retry.Enabled && c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.maxAttempts must be positive")
	}

	return nil
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

func parseInt(s string, defaultVal int) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return defaultVal
	}
	return v
}

func parseDuration(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)

	if d, err := time.ParseDuration(s); err == nil {
		return d
	}

	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(secs) * time.Second
	}

	return defaultVal
}
