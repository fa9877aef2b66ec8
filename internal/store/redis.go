// Package store provides the Redis-backed key-value adapter the engine
// consumes as its distributed backing store.
package store

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/staylink/tenantcache/internal/config"
	"github.com/staylink/tenantcache/internal/resilience"
	"github.com/staylink/tenantcache/internal/types"
)

const disconnectErrorThreshold = 5

// RedisStore implements types.Store on top of a Redis-compatible server.
//
// Connectivity is tracked with a consecutive-error threshold: after enough
// failures the store reports unavailable and a periodic health check probes
// for recovery. Callers degrade (reads to miss, writes to failure) rather
// than block while disconnected.
type RedisStore struct {
	client *redis.Client
	config config.RedisConfig
	policy *resilience.Policy
	logger *slog.Logger

	mu            sync.RWMutex
	connected     atomic.Bool
	lastError     error
	lastErrorTime time.Time
	errorCount    atomic.Int64

	healthCheckStopCh chan struct{}
	healthCheckWg     sync.WaitGroup
	closed            atomic.Bool
}

// NewRedisStore creates a Redis store and starts its health-check loop.
// An unreachable server is not an error: the store starts disconnected and
// recovers through the health check.
func NewRedisStore(cfg config.RedisConfig, policy *resilience.Policy, logger *slog.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if policy == nil {
		policy = resilience.NewDisabledPolicy()
	}

	opts := &redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password.Value(),
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolTimeout:  cfg.PoolTimeout,
	}

	if cfg.EnableTLS {
		opts.TLSConfig = &tls.Config{
			InsecureSkipVerify: cfg.TLSSkipVerify,
		}
		if cfg.TLSSkipVerify {
			logger.Warn("TLS certificate verification is disabled - this is insecure for production use")
		}
	}

	s := &RedisStore{
		client:            redis.NewClient(opts),
		config:            cfg,
		policy:            policy,
		logger:            logger.With("component", "redis-store"),
		healthCheckStopCh: make(chan struct{}),
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := s.client.Ping(ctx).Err(); err != nil {
		s.logger.Warn("Redis initial connection failed", "error", err)
		s.setError(err)
		// Don't return error - allow graceful degradation
	} else {
		s.connected.Store(true)
		s.logger.Info("Redis connected", "address", cfg.Address)
	}

	if cfg.HealthCheckInterval > 0 {
		s.healthCheckWg.Add(1)
		go s.healthCheckWorker()
	}

	return s, nil
}

// IsAvailable reports whether the store believes it is connected.
func (s *RedisStore) IsAvailable() bool {
	return s.connected.Load() && !s.policy.IsCircuitOpen()
}

// Get retrieves the raw bytes stored at key. Returns types.ErrCacheMiss when
// the key is absent.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	if !s.connected.Load() {
		return nil, types.ErrStoreUnavailable
	}

	// An absent key is a successful round trip, not a failure: it must not
	// count toward the circuit breaker, so the miss is translated after the
	// policy returns.
	var data []byte
	var missing bool
	err := s.policy.Execute(ctx, func(ctx context.Context) error {
		b, err := s.client.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				missing = true
				return nil
			}
			s.handleError(err)
			return types.NewCacheError("Get", key, "redis", err)
		}
		data = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.clearError()
	if missing {
		return nil, types.ErrCacheMiss
	}
	return data, nil
}

// SetWithTTL stores value at key. A zero or negative ttl stores without expiry.
func (s *RedisStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if !s.connected.Load() {
		return types.ErrStoreUnavailable
	}

	if ttl < 0 {
		ttl = 0
	}

	err := s.policy.Execute(ctx, func(ctx context.Context) error {
		if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
			s.handleError(err)
			return types.NewCacheError("SetWithTTL", key, "redis", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.clearError()
	return nil
}

// Delete removes a single key, returning the number of keys removed (0 or 1).
func (s *RedisStore) Delete(ctx context.Context, key string) (int64, error) {
	if !s.connected.Load() {
		return 0, types.ErrStoreUnavailable
	}

	var deleted int64
	err := s.policy.Execute(ctx, func(ctx context.Context) error {
		n, err := s.client.Del(ctx, key).Result()
		if err != nil {
			s.handleError(err)
			return types.NewCacheError("Delete", key, "redis", err)
		}
		deleted = n
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.clearError()
	return deleted, nil
}

// DeleteMany removes a batch of keys, returning the number removed.
func (s *RedisStore) DeleteMany(ctx context.Context, keys []string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	if !s.connected.Load() {
		return 0, types.ErrStoreUnavailable
	}

	var deleted int64
	err := s.policy.Execute(ctx, func(ctx context.Context) error {
		n, err := s.client.Del(ctx, keys...).Result()
		if err != nil {
			s.handleError(err)
			return types.NewCacheError("DeleteMany", "", "redis", err)
		}
		deleted = n
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.clearError()
	return deleted, nil
}

// Exists reports whether the key is present.
func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	if !s.connected.Load() {
		return false, types.ErrStoreUnavailable
	}

	var exists bool
	err := s.policy.Execute(ctx, func(ctx context.Context) error {
		n, err := s.client.Exists(ctx, key).Result()
		if err != nil {
			s.handleError(err)
			return types.NewCacheError("Exists", key, "redis", err)
		}
		exists = n > 0
		return nil
	})
	if err != nil {
		return false, err
	}

	s.clearError()
	return exists, nil
}

// Expire resets the native TTL on a key. A zero ttl removes the expiry.
func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if !s.connected.Load() {
		return types.ErrStoreUnavailable
	}

	err := s.policy.Execute(ctx, func(ctx context.Context) error {
		var err error
		if ttl <= 0 {
			err = s.client.Persist(ctx, key).Err()
		} else {
			err = s.client.Expire(ctx, key, ttl).Err()
		}
		if err != nil {
			s.handleError(err)
			return types.NewCacheError("Expire", key, "redis", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.clearError()
	return nil
}

// Scan streams keys matching a glob pattern to fn in cursor-sized batches.
func (s *RedisStore) Scan(ctx context.Context, pattern string, fn func(keys []string) error) error {
	if !s.connected.Load() {
		return types.ErrStoreUnavailable
	}

	batch := s.config.ScanBatchSize
	if batch <= 0 {
		batch = 100
	}

	var cursor uint64
	for {
		keys, nextCursor, err := s.client.Scan(ctx, cursor, pattern, batch).Result()
		if err != nil {
			s.handleError(err)
			return types.NewCacheError("Scan", pattern, "redis", err)
		}

		if len(keys) > 0 {
			if err := fn(keys); err != nil {
				return err
			}
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	s.clearError()
	return nil
}

// Ping checks connectivity to the server directly, bypassing the policy.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// CircuitState returns the state of the circuit breaker guarding this store.
func (s *RedisStore) CircuitState() string {
	return s.policy.CircuitState().String()
}

// ErrorCount returns the current consecutive-error count.
func (s *RedisStore) ErrorCount() int64 {
	return s.errorCount.Load()
}

// LastError returns the most recent error and when it occurred.
func (s *RedisStore) LastError() (error, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError, s.lastErrorTime
}

// Close stops the health-check loop and releases the client.
func (s *RedisStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}

	s.connected.Store(false)

	close(s.healthCheckStopCh)
	s.healthCheckWg.Wait()

	return s.client.Close()
}

func (s *RedisStore) healthCheckWorker() {
	defer s.healthCheckWg.Done()

	ticker := time.NewTicker(s.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.healthCheckStopCh:
			return
		case <-ticker.C:
			s.performHealthCheck()
		}
	}
}

func (s *RedisStore) performHealthCheck() {
	wasConnected := s.connected.Load()

	ctx, cancel := context.WithTimeout(context.Background(), s.config.DialTimeout)
	defer cancel()

	err := s.client.Ping(ctx).Err()
	if err != nil {
		if wasConnected {
			s.logger.Warn("Redis health check failed", "error", err)
			s.setError(err)
		}
		return
	}

	if !wasConnected {
		s.connected.Store(true)
		s.errorCount.Store(0)
		s.logger.Info("Redis connection restored via health check")
	}
}

func (s *RedisStore) handleError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastError = err
	s.lastErrorTime = time.Now()
	count := s.errorCount.Add(1)

	if count >= disconnectErrorThreshold {
		if s.connected.CompareAndSwap(true, false) {
			s.logger.Warn("Redis marked as disconnected after errors",
				"error_count", count,
				"last_error", err,
			)
		}
	}
}

func (s *RedisStore) clearError() {
	if s.errorCount.Swap(0) > 0 {
		if s.connected.CompareAndSwap(false, true) {
			s.logger.Info("Redis connection restored")
		}
	}
}

func (s *RedisStore) setError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = err
	s.lastErrorTime = time.Now()
	s.connected.Store(false)
}

var (
	_ types.Store      = (*RedisStore)(nil)
	_ types.StoreStats = (*RedisStore)(nil)
)
