package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/staylink/tenantcache/internal/config"
	"github.com/staylink/tenantcache/internal/types"
)

// DefaultShutdownTimeout is the default timeout for shutting down the service.
const DefaultShutdownTimeout = 30 * time.Second

// DefaultBackgroundOpTimeout is the default timeout for background operations.
const DefaultBackgroundOpTimeout = 5 * time.Second

const tagDeleteChunkSize = 100

// Service is the tenant cache service: tenant-isolated get/set/delete plus
// batch and tag-based operations, each accounted against a per-tenant quota.
type Service struct {
	store        types.Store
	local        localCache
	keys         KeyBuilder
	cfg          *config.Config
	logger       *slog.Logger
	metrics      types.MetricsRecorder
	tierResolver func(tenantID string) types.CacheStrategy
	sf           singleflight.Group

	mu            sync.RWMutex
	tenantConfigs map[string]*types.TenantCacheConfig
	usage         map[string]*usageCounters

	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
	bgWg           sync.WaitGroup
	bgMu           sync.Mutex
	closed         atomic.Bool
}

// usageCounters tracks a tenant's instance-local cache footprint.
type usageCounters struct {
	entries   atomic.Int64
	bytes     atomic.Int64
	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
	rejected  atomic.Int64
}

// NewService creates the tenant cache service on top of a backing store.
func NewService(cfg *config.Config, store types.Store, opts *types.EngineOptions) (*Service, error) {
	logger := slog.Default()
	var metrics types.MetricsRecorder
	var tierResolver func(string) types.CacheStrategy

	localCfg := cfg.LocalCache
	if opts != nil {
		if opts.Logger != nil {
			logger = slog.New(slogAdapter{logger: opts.Logger})
		}
		metrics = opts.Metrics
		tierResolver = opts.TierResolver
		if opts.DisableLocalCache {
			localCfg.Enabled = false
		}
	}
	logger = logger.With("component", "tenant-cache")

	local, err := NewLocalCache(localCfg, logger)
	if err != nil {
		return nil, err
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())

	return &Service{
		store:          store,
		local:          local,
		keys:           NewKeyBuilder(cfg.Tenancy.GlobalPrefix),
		cfg:            cfg,
		logger:         logger,
		metrics:        metrics,
		tierResolver:   tierResolver,
		tenantConfigs:  make(map[string]*types.TenantCacheConfig),
		usage:          make(map[string]*usageCounters),
		shutdownCtx:    shutdownCtx,
		shutdownCancel: shutdownCancel,
	}, nil
}

// Keys exposes the service's key builder for collaborating components.
func (s *Service) Keys() KeyBuilder {
	return s.keys
}

// Get retrieves a value and unmarshals it into dest. Misses and backing
// store failures both surface as ErrCacheMiss: the cache is never a point of
// failure for correctness, only performance.
func (s *Service) Get(ctx context.Context, tenantID, key string, dest any, opts ...types.Option) error {
	if s.closed.Load() {
		return types.ErrClosed
	}
	if tenantID == "" {
		return types.ErrTenantRequired
	}

	start := time.Now()
	options := types.ApplyOptions(opts...)
	bk := s.keys.Build(tenantID, options.Namespace, key)

	if !options.SkipLocalCache {
		if payload, ok := s.local.Get(bk); ok {
			if err := json.Unmarshal(payload, dest); err != nil {
				return fmt.Errorf("%w: %v", types.ErrSerializationFailed, err)
			}
			s.recordHit(tenantID, "local", time.Since(start))
			return nil
		}
	}

	payload, err := s.fetch(ctx, tenantID, bk)
	if err != nil {
		s.recordMiss(tenantID, "redis", time.Since(start))
		return err
	}

	if err := json.Unmarshal(payload, dest); err != nil {
		return fmt.Errorf("%w: %v", types.ErrSerializationFailed, err)
	}

	if !options.SkipLocalCache {
		s.local.Set(bk, payload)
	}
	s.recordHit(tenantID, "redis", time.Since(start))
	return nil
}

// fetch reads a backing-store entry, applies lazy expiry, updates access
// metadata in the background and returns the decompressed payload.
func (s *Service) fetch(ctx context.Context, tenantID, backingKey string) ([]byte, error) {
	data, err := s.store.Get(ctx, backingKey)
	if err != nil {
		if !types.IsCacheMiss(err) {
			// Degrade to miss; a broken store must look like a cold cache.
			s.logger.Debug("Backing store read failed", "key", backingKey, "error", err)
		}
		return nil, types.ErrCacheMiss
	}

	entry, err := DecodeEntry(data)
	if err != nil {
		s.logger.Warn("Malformed cache entry treated as miss", "key", backingKey, "error", err)
		return nil, types.ErrCacheMiss
	}

	if entry.IsExpired() {
		// Lazy expiry: the native TTL is only a backstop for the wrapper.
		if _, delErr := s.store.Delete(ctx, backingKey); delErr == nil {
			s.adjustUsage(tenantID, -1, -int64(entry.SizeBytes))
		}
		return nil, types.ErrCacheMiss
	}

	payload, err := Payload(entry)
	if err != nil {
		s.logger.Warn("Undecodable cache payload treated as miss", "key", backingKey, "error", err)
		return nil, types.ErrCacheMiss
	}

	touched := *entry
	s.runBackground(func(ctx context.Context) {
		touched.Touch()
		data, err := EncodeEntry(&touched)
		if err != nil {
			return
		}
		if err := s.store.SetWithTTL(ctx, backingKey, data, touched.RemainingTTL()); err != nil {
			s.logger.Debug("Access metadata update failed", "key", backingKey, "error", err)
		}
	})

	return payload, nil
}

// Set stores a value for a tenant, enforcing quota and entry-size limits
// before the write.
func (s *Service) Set(ctx context.Context, tenantID, key string, value any, opts ...types.Option) error {
	if s.closed.Load() {
		return types.ErrClosed
	}
	if tenantID == "" {
		return types.ErrTenantRequired
	}

	start := time.Now()
	options := types.ApplyOptions(opts...)
	tenantCfg := s.resolveTenantConfig(ctx, tenantID)
	usage := s.tenantUsage(tenantID)

	if usage.entries.Load() >= int64(tenantCfg.MaxEntries) ||
		usage.bytes.Load() >= tenantCfg.MaxMemoryBytes() {
		usage.rejected.Add(1)
		if s.metrics != nil {
			s.metrics.RecordQuotaRejection(tenantID, "quota")
		}
		return types.ErrQuotaExceeded
	}

	ttl := clampTTL(options.TTL, tenantCfg)

	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrSerializationFailed, err)
	}

	if len(payload) > tenantCfg.MaxEntryBytes() {
		usage.rejected.Add(1)
		if s.metrics != nil {
			s.metrics.RecordQuotaRejection(tenantID, "entry_size")
		}
		return types.ErrEntryTooLarge
	}

	stored := string(payload)
	compressed := false
	if tenantCfg.CompressionEnabled && len(payload) > tenantCfg.CompressionThreshold {
		stored, err = Compress(payload)
		if err != nil {
			return fmt.Errorf("%w: %v", types.ErrSerializationFailed, err)
		}
		compressed = true
	}

	now := time.Now()
	expiresAt := now.Add(ttl)
	entry := &types.CacheEntry{
		Key:          key,
		Value:        stored,
		TenantID:     tenantID,
		Namespace:    options.Namespace,
		CreatedAt:    now,
		ExpiresAt:    &expiresAt,
		LastAccessed: now,
		SizeBytes:    len(payload),
		Compressed:   compressed,
		Tags:         options.Tags,
	}

	data, err := EncodeEntry(entry)
	if err != nil {
		return err
	}

	bk := s.keys.Build(tenantID, options.Namespace, key)

	// Read the previous entry so overwrites keep accounting honest.
	var prevSize int64 = -1
	if old, err := s.store.Get(ctx, bk); err == nil {
		if oldEntry, decErr := DecodeEntry(old); decErr == nil {
			prevSize = int64(oldEntry.SizeBytes)
		} else {
			prevSize = 0
		}
	}

	if err := s.store.SetWithTTL(ctx, bk, data, ttl); err != nil {
		return err
	}

	if prevSize >= 0 {
		s.adjustUsage(tenantID, 0, int64(entry.SizeBytes)-prevSize)
	} else {
		s.adjustUsage(tenantID, 1, int64(entry.SizeBytes))
	}

	if !options.SkipLocalCache {
		s.local.Set(bk, payload)
	}

	if s.metrics != nil {
		s.metrics.RecordSet(tenantID, len(payload), time.Since(start))
	}

	s.evictIfNeeded(ctx, tenantID, tenantCfg)
	return nil
}

// Delete removes a tenant's key from the backing store and the local layer.
// Deleting an absent key is not an error.
func (s *Service) Delete(ctx context.Context, tenantID, key string, opts ...types.Option) error {
	if s.closed.Load() {
		return types.ErrClosed
	}
	if tenantID == "" {
		return types.ErrTenantRequired
	}

	start := time.Now()
	options := types.ApplyOptions(opts...)
	bk := s.keys.Build(tenantID, options.Namespace, key)

	var size int64
	if data, err := s.store.Get(ctx, bk); err == nil {
		if entry, decErr := DecodeEntry(data); decErr == nil {
			size = int64(entry.SizeBytes)
		}
	}

	s.local.Delete(bk)

	deleted, err := s.store.Delete(ctx, bk)
	if err != nil {
		// Reads degrade; deletes report failure so callers can retry.
		return err
	}
	if deleted > 0 {
		s.adjustUsage(tenantID, -deleted, -size)
	}

	if s.metrics != nil {
		s.metrics.RecordDelete(tenantID, time.Since(start))
	}
	return nil
}

// Exists reports whether a live (non-expired) entry is stored for the key.
func (s *Service) Exists(ctx context.Context, tenantID, key string, opts ...types.Option) (bool, error) {
	if s.closed.Load() {
		return false, types.ErrClosed
	}

	options := types.ApplyOptions(opts...)
	bk := s.keys.Build(tenantID, options.Namespace, key)

	data, err := s.store.Get(ctx, bk)
	if err != nil {
		if types.IsCacheMiss(err) {
			return false, nil
		}
		return false, err
	}

	entry, err := DecodeEntry(data)
	if err != nil {
		return false, nil
	}
	return !entry.IsExpired(), nil
}

// Expire resets the TTL on an existing entry, clamped to the tenant policy.
func (s *Service) Expire(ctx context.Context, tenantID, key string, ttl time.Duration, opts ...types.Option) error {
	if s.closed.Load() {
		return types.ErrClosed
	}

	options := types.ApplyOptions(opts...)
	tenantCfg := s.resolveTenantConfig(ctx, tenantID)
	bk := s.keys.Build(tenantID, options.Namespace, key)

	data, err := s.store.Get(ctx, bk)
	if err != nil {
		return err
	}
	entry, err := DecodeEntry(data)
	if err != nil {
		return err
	}

	clamped := clampTTL(ttl, tenantCfg)
	expiresAt := time.Now().Add(clamped)
	entry.ExpiresAt = &expiresAt

	encoded, err := EncodeEntry(entry)
	if err != nil {
		return err
	}
	return s.store.SetWithTTL(ctx, bk, encoded, clamped)
}

// GetMany retrieves multiple keys, returning raw payloads keyed by the
// original key. Missing keys are simply absent from the result.
func (s *Service) GetMany(ctx context.Context, tenantID string, keys []string, opts ...types.Option) (map[string]json.RawMessage, error) {
	if s.closed.Load() {
		return nil, types.ErrClosed
	}

	results := make(map[string]json.RawMessage, len(keys))
	options := types.ApplyOptions(opts...)

	for _, key := range keys {
		bk := s.keys.Build(tenantID, options.Namespace, key)

		if !options.SkipLocalCache {
			if payload, ok := s.local.Get(bk); ok {
				results[key] = payload
				continue
			}
		}

		payload, err := s.fetch(ctx, tenantID, bk)
		if err != nil {
			continue
		}
		if !options.SkipLocalCache {
			s.local.Set(bk, payload)
		}
		results[key] = payload
	}

	return results, nil
}

// SetMany stores multiple values, returning the combined error for any
// failed writes. Quota rejections abort the remainder of the batch.
func (s *Service) SetMany(ctx context.Context, tenantID string, items map[string]any, opts ...types.Option) error {
	if s.closed.Load() {
		return types.ErrClosed
	}

	var errs []error
	for key, value := range items {
		if err := s.Set(ctx, tenantID, key, value, opts...); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			if types.IsQuotaExceeded(err) {
				break
			}
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// GetOrSet retrieves a value or creates it with factory on miss, using
// singleflight so concurrent misses for one key share a single factory call.
func (s *Service) GetOrSet(ctx context.Context, tenantID, key string, dest any, factory func() (any, error), opts ...types.Option) error {
	if s.closed.Load() {
		return types.ErrClosed
	}

	err := s.Get(ctx, tenantID, key, dest, opts...)
	if err == nil {
		return nil
	}
	if !types.IsCacheMiss(err) {
		return err
	}

	options := types.ApplyOptions(opts...)
	sfKey := s.keys.Build(tenantID, options.Namespace, key)

	result, err, _ := s.sf.Do(sfKey, func() (any, error) {
		var check json.RawMessage
		if checkErr := s.Get(ctx, tenantID, key, &check, opts...); checkErr == nil {
			return []byte(check), nil
		}

		value, factoryErr := factory()
		if factoryErr != nil {
			return nil, factoryErr
		}

		data, marshalErr := json.Marshal(value)
		if marshalErr != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrSerializationFailed, marshalErr)
		}

		if setErr := s.Set(ctx, tenantID, key, value, opts...); setErr != nil {
			s.logger.Debug("Failed to cache factory result", "key", key, "error", setErr)
		}

		return data, nil
	})
	if err != nil {
		return err
	}

	data, ok := result.([]byte)
	if !ok {
		return fmt.Errorf("unexpected result type: %T", result)
	}
	return json.Unmarshal(data, dest)
}

// GetByTags returns all live entries in a tenant namespace carrying at least
// one of the given tags (OR semantics), keyed by original key.
func (s *Service) GetByTags(ctx context.Context, tenantID string, tags []string, opts ...types.Option) (map[string]json.RawMessage, error) {
	if s.closed.Load() {
		return nil, types.ErrClosed
	}
	if len(tags) == 0 {
		return map[string]json.RawMessage{}, nil
	}

	options := types.ApplyOptions(opts...)
	pattern := s.keys.NamespacePattern(tenantID, options.Namespace)
	results := make(map[string]json.RawMessage)

	err := s.store.Scan(ctx, pattern, func(keys []string) error {
		for _, bk := range keys {
			entry, ok := s.readEntry(ctx, bk)
			if !ok || entry.IsExpired() || !entry.HasAnyTag(tags) {
				continue
			}
			payload, err := Payload(entry)
			if err != nil {
				s.logger.Warn("Skipping undecodable tagged entry", "key", bk, "error", err)
				continue
			}
			results[entry.Key] = payload
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return results, nil
}

// InvalidateByTags deletes all entries in a tenant namespace carrying at
// least one of the given tags, in chunks. Returns the number deleted.
func (s *Service) InvalidateByTags(ctx context.Context, tenantID string, tags []string, opts ...types.Option) (int64, error) {
	if s.closed.Load() {
		return 0, types.ErrClosed
	}
	if len(tags) == 0 {
		return 0, nil
	}

	options := types.ApplyOptions(opts...)
	pattern := s.keys.NamespacePattern(tenantID, options.Namespace)

	var matched []string
	var matchedBytes int64

	err := s.store.Scan(ctx, pattern, func(keys []string) error {
		for _, bk := range keys {
			entry, ok := s.readEntry(ctx, bk)
			if !ok || !entry.HasAnyTag(tags) {
				continue
			}
			matched = append(matched, bk)
			matchedBytes += int64(entry.SizeBytes)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	var deleted int64
	for start := 0; start < len(matched); start += tagDeleteChunkSize {
		end := min(start+tagDeleteChunkSize, len(matched))
		chunk := matched[start:end]

		n, err := s.store.DeleteMany(ctx, chunk)
		if err != nil {
			return deleted, err
		}
		deleted += n
		for _, bk := range chunk {
			s.local.Delete(bk)
		}
	}

	if deleted > 0 {
		s.adjustUsage(tenantID, -deleted, -matchedBytes)
		if s.metrics != nil {
			s.metrics.RecordInvalidation(string(types.ScopeTagBased), deleted)
		}
	}

	return deleted, nil
}

// ClearTenant removes every key owned by a tenant and resets its usage
// accounting. The process-local cache cannot be pattern-cleared, so the
// whole local layer is reset.
func (s *Service) ClearTenant(ctx context.Context, tenantID string) (int64, error) {
	if s.closed.Load() {
		return 0, types.ErrClosed
	}
	if tenantID == "" {
		return 0, types.ErrTenantRequired
	}

	pattern := s.keys.TenantPattern(tenantID)

	var deleted int64
	err := s.store.Scan(ctx, pattern, func(keys []string) error {
		n, err := s.store.DeleteMany(ctx, keys)
		if err != nil {
			return err
		}
		deleted += n
		return nil
	})
	if err != nil {
		return deleted, err
	}

	usage := s.tenantUsage(tenantID)
	usage.entries.Store(0)
	usage.bytes.Store(0)

	s.local.Reset()
	s.logger.Info("Tenant cache cleared", "tenant_id", tenantID, "deleted", deleted)
	return deleted, nil
}

// TenantMetrics returns a snapshot of a tenant's cache footprint.
func (s *Service) TenantMetrics(tenantID string) *types.TenantUsage {
	usage := s.tenantUsage(tenantID)
	return &types.TenantUsage{
		TenantID:  tenantID,
		Entries:   usage.entries.Load(),
		SizeBytes: usage.bytes.Load(),
		Hits:      usage.hits.Load(),
		Misses:    usage.misses.Load(),
		Evictions: usage.evictions.Load(),
		Rejected:  usage.rejected.Load(),
	}
}

// LocalStats returns a snapshot of the process-local layer's counters.
func (s *Service) LocalStats() LocalCacheStats {
	return s.local.Stats()
}

// DropLocal removes a backing key from the process-local layer. Used by the
// invalidation path so explicit invalidations are visible immediately.
func (s *Service) DropLocal(backingKey string) {
	s.local.Delete(backingKey)
}

// Close releases resources after waiting for in-flight background
// operations, bounded by the default shutdown timeout.
func (s *Service) Close() error {
	return s.CloseWithTimeout(DefaultShutdownTimeout)
}

// CloseWithTimeout releases resources with a configurable timeout. If
// background operations don't complete in time it returns
// ErrShutdownTimeout but still closes the local layer.
func (s *Service) CloseWithTimeout(timeout time.Duration) error {
	s.bgMu.Lock()
	if s.closed.Swap(true) {
		s.bgMu.Unlock()
		return nil
	}
	s.shutdownCancel()
	s.bgMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.bgWg.Wait()
		close(done)
	}()

	var errs []error
	select {
	case <-done:
	case <-time.After(timeout):
		s.logger.Warn("Shutdown timeout exceeded, proceeding with close", "timeout", timeout)
		errs = append(errs, types.ErrShutdownTimeout)
	}

	if err := s.local.Close(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// readEntry fetches and decodes an entry by backing key, skipping malformed
// data. Used by scan-based operations which are best-effort per key.
func (s *Service) readEntry(ctx context.Context, backingKey string) (*types.CacheEntry, bool) {
	data, err := s.store.Get(ctx, backingKey)
	if err != nil {
		return nil, false
	}
	entry, err := DecodeEntry(data)
	if err != nil {
		s.logger.Warn("Skipping malformed entry during scan", "key", backingKey, "error", err)
		return nil, false
	}
	return entry, true
}

func (s *Service) tenantUsage(tenantID string) *usageCounters {
	s.mu.RLock()
	u, ok := s.usage[tenantID]
	s.mu.RUnlock()
	if ok {
		return u
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok = s.usage[tenantID]; ok {
		return u
	}
	u = &usageCounters{}
	s.usage[tenantID] = u
	return u
}

func (s *Service) adjustUsage(tenantID string, entries, bytes int64) {
	u := s.tenantUsage(tenantID)
	if n := u.entries.Add(entries); n < 0 {
		u.entries.Store(0)
	}
	if n := u.bytes.Add(bytes); n < 0 {
		u.bytes.Store(0)
	}
}

func (s *Service) recordHit(tenantID, layer string, latency time.Duration) {
	s.tenantUsage(tenantID).hits.Add(1)
	if s.metrics != nil {
		s.metrics.RecordHit(layer, latency)
	}
}

func (s *Service) recordMiss(tenantID, layer string, latency time.Duration) {
	s.tenantUsage(tenantID).misses.Add(1)
	if s.metrics != nil {
		s.metrics.RecordMiss(layer, latency)
	}
}

// runBackground executes fn in a goroutine tracked for graceful shutdown.
// The function receives a context derived from the shutdown context with a
// timeout. Nothing is started once the service is closed.
func (s *Service) runBackground(fn func(ctx context.Context)) {
	s.bgMu.Lock()
	if s.closed.Load() {
		s.bgMu.Unlock()
		return
	}
	s.bgWg.Add(1)
	s.bgMu.Unlock()

	go func() {
		defer s.bgWg.Done()
		ctx, cancel := context.WithTimeout(s.shutdownCtx, DefaultBackgroundOpTimeout)
		defer cancel()
		fn(ctx)
	}()
}
