package tenantcache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/staylink/tenantcache/internal/cache"
	"github.com/staylink/tenantcache/internal/config"
	"github.com/staylink/tenantcache/internal/invalidation"
	"github.com/staylink/tenantcache/internal/metrics"
	"github.com/staylink/tenantcache/internal/metrics/datadog"
	"github.com/staylink/tenantcache/internal/resilience"
	"github.com/staylink/tenantcache/internal/store"
	"github.com/staylink/tenantcache/internal/types"
	"github.com/staylink/tenantcache/internal/warming"
)

// DefaultCloseTimeout bounds how long Close waits for background work.
const DefaultCloseTimeout = 10 * time.Second

// LocalCacheStats is a snapshot of the process-local read layer's counters.
type LocalCacheStats = cache.LocalCacheStats

// EngineStats aggregates the engine's component snapshots.
type EngineStats struct {
	Metrics      MetricsSnapshot   `json:"metrics"`
	Invalidation InvalidationStats `json:"invalidation"`
	Warming      WarmingStats      `json:"warming"`
	LocalCache   LocalCacheStats   `json:"local_cache"`
}

// Engine is the tenant-aware cache invalidation and warming engine. It owns
// the tenant cache service, the invalidation rule engine with its event
// loop, the warming scheduler and the dependency tracker, all sharing one
// backing store.
type Engine struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   types.Store
	service *cache.Service
	manager *invalidation.Manager
	warmer  *warming.Scheduler

	// tracker is the built-in recorder; nil when the host injects its own.
	tracker   *metrics.Tracker
	publisher metrics.Publisher
	flusher   *metrics.BackgroundPublisher

	ownsStore bool
	closed    atomic.Bool
}

// New creates an engine with default configuration.
func New(opts ...EngineOption) (*Engine, error) {
	return NewFromConfig(config.DefaultConfig(), opts...)
}

// NewFromConfig creates an engine from configuration.
func NewFromConfig(cfg *config.Config, opts ...EngineOption) (*Engine, error) {
	engineOpts := &types.EngineOptions{}
	for _, opt := range opts {
		opt(engineOpts)
	}
	return newEngine(cfg, engineOpts)
}

// NewFromFile creates an engine from a JSON config file with environment
// variable overrides applied.
func NewFromFile(path string, opts ...EngineOption) (*Engine, error) {
	cfg, err := config.LoadWithEnv(path)
	if err != nil {
		return nil, err
	}
	return NewFromConfig(cfg, opts...)
}

// Config returns a default configuration that can be modified before
// creating an engine.
func Config() *config.Config {
	return config.DefaultConfig()
}

// TestConfig returns a configuration suitable for unit tests.
func TestConfig() *config.Config {
	return config.ForTesting()
}

func newEngine(cfg *config.Config, opts *types.EngineOptions) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := cache.NewSlogLogger(opts.Logger).With("component", "tenantcache")

	var tracker *metrics.Tracker
	recorder := opts.Metrics
	if recorder == nil {
		tracker = metrics.NewTracker()
		recorder = tracker
	}

	st := opts.Store
	ownsStore := false
	if st == nil {
		redisCfg := cfg.Redis
		if opts.RedisAddress != "" {
			redisCfg.Address = opts.RedisAddress
		}
		if opts.RedisPassword.Value() != "" {
			redisCfg.Password = opts.RedisPassword
		}
		if opts.RedisDB != 0 {
			redisCfg.DB = opts.RedisDB
		}

		var policy *resilience.Policy
		if opts.DisableResilience {
			policy = resilience.NewDisabledPolicy()
		} else {
			policy = resilience.NewPolicy(cfg.CircuitBreaker, cfg.Retry)
			policy.SetOnCircuitStateChange(func(from, to resilience.State) {
				recorder.RecordCircuitBreakerStateChange(from.String(), to.String())
			})
		}

		redisStore, err := store.NewRedisStore(redisCfg, policy, logger)
		if err != nil {
			return nil, err
		}
		st = redisStore
		ownsStore = true
	}

	service, err := cache.NewService(cfg, st, &types.EngineOptions{
		Logger:            opts.Logger,
		Metrics:           recorder,
		DisableLocalCache: opts.DisableLocalCache,
		TierResolver:      opts.TierResolver,
	})
	if err != nil {
		if ownsStore {
			_ = st.Close()
		}
		return nil, err
	}

	depTracker := invalidation.NewDependencyTracker()
	manager := invalidation.NewManager(cfg, st, depTracker, logger, recorder)
	manager.SetOnInvalidate(service.DropLocal)

	warmer := warming.NewScheduler(&cfg.Warming, logger, recorder, opts.WarmingFuncs)
	manager.SetObserver(warmer)

	e := &Engine{
		cfg:       cfg,
		logger:    logger,
		store:     st,
		service:   service,
		manager:   manager,
		warmer:    warmer,
		tracker:   tracker,
		ownsStore: ownsStore,
	}

	if cfg.Metrics.Enabled && tracker != nil {
		publisher, err := datadog.NewPublisher(&cfg.Metrics.DataDog, logger)
		if err != nil {
			logger.Warn("Metrics publisher unavailable, falling back to logging", "error", err)
			publisher = metrics.NewLoggingPublisher(logger)
		}
		e.publisher = publisher
		e.flusher = metrics.NewBackgroundPublisher(publisher, cfg.Metrics.PublishInterval, tracker.Snapshot, logger)
		e.flusher.Start(context.Background())
	}

	manager.Start()
	warmer.Start()

	logger.Info("Engine started",
		"prefix", cfg.Tenancy.GlobalPrefix,
		"local_cache", !opts.DisableLocalCache && cfg.LocalCache.Enabled,
		"warming", cfg.Warming.Enabled,
	)
	return e, nil
}

// Get reads a tenant-scoped value into dest. Absent, expired and malformed
// entries all surface as ErrCacheMiss; backing-store trouble degrades to a
// miss rather than an error.
func (e *Engine) Get(ctx context.Context, tenantID, key string, dest any, opts ...Option) error {
	return e.service.Get(ctx, tenantID, key, dest, opts...)
}

// Set writes a tenant-scoped value. The write is rejected with
// ErrQuotaExceeded or ErrEntryTooLarge before reaching the store when the
// tenant is over quota.
func (e *Engine) Set(ctx context.Context, tenantID, key string, value any, opts ...Option) error {
	return e.service.Set(ctx, tenantID, key, value, opts...)
}

// Delete removes a tenant-scoped key from the backing store and the local
// read layer. Registered dependents of the key are deleted too unless
// WithoutCascade is given.
func (e *Engine) Delete(ctx context.Context, tenantID, key string, opts ...Option) error {
	options := types.ApplyOptions(opts...)
	if err := e.service.Delete(ctx, tenantID, key, opts...); err != nil {
		return err
	}
	if !options.Cascade {
		return nil
	}
	bk := e.service.Keys().Build(tenantID, options.Namespace, key)
	_, err := e.manager.CascadeDependents(ctx, bk)
	return err
}

// Exists reports whether a live (non-expired) entry exists for the key.
func (e *Engine) Exists(ctx context.Context, tenantID, key string, opts ...Option) (bool, error) {
	return e.service.Exists(ctx, tenantID, key, opts...)
}

// Expire updates the entry's expiry to now+ttl, clamped to tenant limits.
func (e *Engine) Expire(ctx context.Context, tenantID, key string, ttl time.Duration, opts ...Option) error {
	return e.service.Expire(ctx, tenantID, key, ttl, opts...)
}

// GetMany reads multiple keys, returning raw payloads for the ones found.
func (e *Engine) GetMany(ctx context.Context, tenantID string, keys []string, opts ...Option) (map[string]json.RawMessage, error) {
	return e.service.GetMany(ctx, tenantID, keys, opts...)
}

// SetMany writes multiple values. A quota rejection aborts the batch.
func (e *Engine) SetMany(ctx context.Context, tenantID string, items map[string]any, opts ...Option) error {
	return e.service.SetMany(ctx, tenantID, items, opts...)
}

// GetOrSet reads the key and, on a miss, runs factory exactly once per
// in-flight key to compute and store the value.
func (e *Engine) GetOrSet(ctx context.Context, tenantID, key string, dest any, factory func() (any, error), opts ...Option) error {
	return e.service.GetOrSet(ctx, tenantID, key, dest, factory, opts...)
}

// GetByTags returns the payloads of live entries in the namespace carrying
// any of the tags.
func (e *Engine) GetByTags(ctx context.Context, tenantID string, tags []string, opts ...Option) (map[string]json.RawMessage, error) {
	return e.service.GetByTags(ctx, tenantID, tags, opts...)
}

// InvalidateByTags deletes every live entry in the namespace carrying any of
// the tags and returns the number deleted.
func (e *Engine) InvalidateByTags(ctx context.Context, tenantID string, tags []string, opts ...Option) (int64, error) {
	return e.service.InvalidateByTags(ctx, tenantID, tags, opts...)
}

// ConfigureTenantCache installs an explicit per-tenant caching policy,
// overriding tier defaults. Store errors propagate to the caller.
func (e *Engine) ConfigureTenantCache(ctx context.Context, cfg *TenantCacheConfig) error {
	return e.service.ConfigureTenant(ctx, cfg)
}

// TenantCacheConfig returns the tenant's resolved caching policy.
func (e *Engine) TenantCacheConfig(ctx context.Context, tenantID string) *TenantCacheConfig {
	return e.service.TenantConfig(ctx, tenantID)
}

// ClearTenantCache deletes every entry under the tenant's prefix and resets
// the tenant's usage counters.
func (e *Engine) ClearTenantCache(ctx context.Context, tenantID string) (int64, error) {
	return e.service.ClearTenant(ctx, tenantID)
}

// TenantCacheMetrics returns the tenant's usage snapshot.
func (e *Engine) TenantCacheMetrics(tenantID string) *TenantUsage {
	return e.service.TenantMetrics(tenantID)
}

// EmitEvent enqueues a cache event for asynchronous processing. It never
// blocks: when the queue is full the event is dropped and ErrEventQueueFull
// is returned.
func (e *Engine) EmitEvent(event *CacheEvent) error {
	return e.manager.EmitEvent(event)
}

// AddInvalidationRule validates and installs a rule.
func (e *Engine) AddInvalidationRule(rule *InvalidationRule) error {
	return e.manager.AddRule(rule)
}

// RemoveInvalidationRule uninstalls a rule by name.
func (e *Engine) RemoveInvalidationRule(name string) error {
	return e.manager.RemoveRule(name)
}

// InvalidationRules returns a snapshot of the installed rules.
func (e *Engine) InvalidationRules() []*InvalidationRule {
	return e.manager.Rules()
}

// InvalidateKey deletes a backing-store key, cascading to registered
// dependents when cascade is true.
func (e *Engine) InvalidateKey(ctx context.Context, key string, cascade bool) (int64, error) {
	return e.manager.InvalidateKey(ctx, key, cascade)
}

// InvalidatePattern deletes every backing-store key matching a glob pattern.
func (e *Engine) InvalidatePattern(ctx context.Context, pattern string) (int64, error) {
	return e.manager.InvalidatePattern(ctx, pattern)
}

// InvalidateTaggedKeys deletes every backing-store key registered under any
// of the tags via AddTagDependency.
func (e *Engine) InvalidateTaggedKeys(ctx context.Context, tags []string) (int64, error) {
	return e.manager.InvalidateByTags(ctx, tags)
}

// AddKeyDependency records that dependent is invalidated with parent.
func (e *Engine) AddKeyDependency(parent, dependent string) {
	e.manager.Tracker().AddKeyDependency(parent, dependent)
}

// AddTagDependency registers key under tag for tag-scoped invalidation.
func (e *Engine) AddTagDependency(tag, key string) {
	e.manager.Tracker().AddTagDependency(tag, key)
}

// RegisterWarmingFunction binds a name to a warming function.
func (e *Engine) RegisterWarmingFunction(name string, fn WarmingFunc) error {
	return e.warmer.RegisterFunction(name, fn)
}

// AddWarmingTask validates and installs a warming task. The bound function
// must already be registered.
func (e *Engine) AddWarmingTask(task *WarmingTask) error {
	return e.warmer.AddTask(task)
}

// WarmKey runs the warming task registered under keyPattern against key.
func (e *Engine) WarmKey(ctx context.Context, keyPattern, key string) error {
	return e.warmer.WarmKey(ctx, keyPattern, key)
}

// Stats returns the engine's aggregated counters. The metrics snapshot is
// zero when an external recorder was injected.
func (e *Engine) Stats() EngineStats {
	stats := EngineStats{
		Invalidation: e.manager.Stats(),
		Warming:      e.warmer.Stats(),
		LocalCache:   e.service.LocalStats(),
	}
	if e.tracker != nil {
		stats.Metrics = e.tracker.Snapshot()
	}
	return stats
}

// Close shuts the engine down with the default timeout.
func (e *Engine) Close() error {
	return e.CloseWithTimeout(DefaultCloseTimeout)
}

// CloseWithTimeout stops background work, waiting up to timeout for it to
// drain, then releases the store. Safe to call more than once.
func (e *Engine) CloseWithTimeout(timeout time.Duration) error {
	if e.closed.Swap(true) {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error

	if e.flusher != nil {
		e.flusher.Stop()
	}
	if err := e.warmer.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := e.manager.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := e.service.CloseWithTimeout(timeout); err != nil {
		errs = append(errs, err)
	}
	if e.publisher != nil {
		if err := e.publisher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.ownsStore {
		if err := e.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	e.logger.Info("Engine stopped")
	return errors.Join(errs...)
}
