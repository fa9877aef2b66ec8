package config

import "time"

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Redis: RedisConfig{
			Address:             "localhost:6379",
			Password:            SecretString{},
			DB:                  0,
			PoolSize:            100,
			MinIdleConns:        10,
			DialTimeout:         5 * time.Second,
			ReadTimeout:         3 * time.Second,
			WriteTimeout:        3 * time.Second,
			PoolTimeout:         4 * time.Second,
			ScanBatchSize:       100,
			EnableTLS:           false,
			TLSSkipVerify:       false,
			HealthCheckInterval: 5 * time.Second,
		},
		LocalCache: LocalCacheConfig{
			Enabled:         true,
			TTL:             60 * time.Second,
			CleanupInterval: 10 * time.Second,
			MaxSizeMB:       128,
			Shards:          1024,
			MaxEntrySize:    1024 * 1024, // 1MB
		},
		Tenancy: TenancyConfig{
			GlobalPrefix:    "staylink",
			ConfigTTL:       24 * time.Hour,
			DefaultStrategy: "basic",
		},
		Events: EventsConfig{
			QueueSize:                  1000,
			Workers:                    3,
			PollInterval:               100 * time.Millisecond,
			MaxConcurrentInvalidations: 10,
			InvalidationBatchSize:      100,
		},
		Warming: WarmingConfig{
			Enabled:           true,
			MaxConcurrent:     5,
			ProactiveInterval: 60 * time.Second,
		},
		Dependencies: DependencyConfig{
			CleanupInterval: time.Hour,
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:             true,
			FailureThreshold:    5,
			SuccessThreshold:    2,
			OpenDuration:        30 * time.Second,
			HalfOpenMaxRequests: 3,
		},
		Retry: RetryConfig{
			Enabled:        true,
			MaxAttempts:    3,
			InitialBackoff: 100 * time.Millisecond,
			MaxBackoff:     2 * time.Second,
			Multiplier:     2.0,
		},
		Metrics: MetricsConfig{
			Enabled:         true,
			PublishInterval: 10 * time.Second,
			DataDog: DataDogConfig{
				Enabled:   false,
				AgentHost: "127.0.0.1",
				Port:      8125,
				Prefix:    "tenantcache",
				Tags:      []string{},
			},
		},
	}
}

// ForTesting returns a minimal configuration suitable for unit tests.
// The local cache is disabled so reads observe the backing store directly.
func ForTesting() *Config {
	return &Config{
		Redis: RedisConfig{
			Address:             "localhost:6379",
			DB:                  0,
			PoolSize:            10,
			MinIdleConns:        1,
			DialTimeout:         1 * time.Second,
			ReadTimeout:         1 * time.Second,
			WriteTimeout:        1 * time.Second,
			PoolTimeout:         1 * time.Second,
			ScanBatchSize:       10,
			HealthCheckInterval: 0, // no background health checks in tests
		},
		LocalCache: LocalCacheConfig{
			Enabled:         false,
			TTL:             60 * time.Second,
			CleanupInterval: 1 * time.Second,
			MaxSizeMB:       16,
			Shards:          64,
			MaxEntrySize:    1024 * 1024,
		},
		Tenancy: TenancyConfig{
			GlobalPrefix:    "test",
			ConfigTTL:       time.Hour,
			DefaultStrategy: "basic",
		},
		Events: EventsConfig{
			QueueSize:                  16,
			Workers:                    2,
			PollInterval:               10 * time.Millisecond,
			MaxConcurrentInvalidations: 4,
			InvalidationBatchSize:      10,
		},
		Warming: WarmingConfig{
			Enabled:           true,
			MaxConcurrent:     2,
			ProactiveInterval: time.Minute,
		},
		Dependencies: DependencyConfig{
			CleanupInterval: time.Minute,
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:             true,
			FailureThreshold:    3,
			SuccessThreshold:    1,
			OpenDuration:        100 * time.Millisecond,
			HalfOpenMaxRequests: 1,
		},
		Retry: RetryConfig{
			Enabled:        false,
			MaxAttempts:    2,
			InitialBackoff: 10 * time.Millisecond,
			MaxBackoff:     50 * time.Millisecond,
			Multiplier:     2.0,
		},
		Metrics: MetricsConfig{
			Enabled:         false,
			PublishInterval: time.Second,
		},
	}
}
