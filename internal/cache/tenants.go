package cache

import (
	"context"
	"time"

	"github.com/staylink/tenantcache/internal/types"
)

// StrategyDefaults returns the quota policy for a caching tier. Unknown
// tiers fall back to basic.
func StrategyDefaults(tenantID string, strategy types.CacheStrategy) *types.TenantCacheConfig {
	cfg := &types.TenantCacheConfig{
		TenantID:             tenantID,
		Strategy:             strategy,
		MaxMemoryMB:          64,
		MaxEntries:           10_000,
		MaxEntrySizeKB:       256,
		DefaultTTL:           time.Hour,
		MaxTTL:               24 * time.Hour,
		CompressionEnabled:   true,
		CompressionThreshold: 1024,
		EvictionPolicy:       types.EvictLRU,
		EvictionBatchSize:    50,
	}

	switch strategy {
	case types.StrategyAdvanced:
		cfg.MaxMemoryMB = 256
		cfg.MaxEntries = 50_000
		cfg.MaxEntrySizeKB = 512
		cfg.MaxTTL = 72 * time.Hour
		cfg.EvictionBatchSize = 100

	case types.StrategyPremium:
		cfg.MaxMemoryMB = 1024
		cfg.MaxEntries = 200_000
		cfg.MaxEntrySizeKB = 1024
		cfg.DefaultTTL = 4 * time.Hour
		cfg.MaxTTL = 7 * 24 * time.Hour
		cfg.EvictionBatchSize = 200

	case types.StrategyBasic, types.StrategyCustom:
		// Basic quotas; custom tenants are expected to override explicitly.

	default:
		cfg.Strategy = types.StrategyBasic
	}

	return cfg
}

// resolveTenantConfig returns the tenant's cache policy, checking the
// in-memory cache, then the backing store, then deriving from the tenant's
// tier. Derived configs are written back to both caches; concurrent
// resolutions for the same tenant share one execution.
func (s *Service) resolveTenantConfig(ctx context.Context, tenantID string) *types.TenantCacheConfig {
	s.mu.RLock()
	cfg, ok := s.tenantConfigs[tenantID]
	s.mu.RUnlock()
	if ok {
		return cfg
	}

	v, _, _ := s.sf.Do("tenant-config:"+tenantID, func() (any, error) {
		// Re-check under singleflight: a concurrent caller may have resolved.
		s.mu.RLock()
		cfg, ok := s.tenantConfigs[tenantID]
		s.mu.RUnlock()
		if ok {
			return cfg, nil
		}

		cfg = s.loadStoredConfig(ctx, tenantID)
		if cfg == nil {
			strategy := types.CacheStrategy(s.cfg.Tenancy.DefaultStrategy)
			if s.tierResolver != nil {
				strategy = s.tierResolver(tenantID)
			}
			cfg = StrategyDefaults(tenantID, strategy)
			s.persistConfig(ctx, cfg)
		}

		s.mu.Lock()
		s.tenantConfigs[tenantID] = cfg
		s.mu.Unlock()

		return cfg, nil
	})

	return v.(*types.TenantCacheConfig)
}

// loadStoredConfig reads a persisted tenant config from the backing store.
// Any failure degrades to nil so the tier fallback takes over.
func (s *Service) loadStoredConfig(ctx context.Context, tenantID string) *types.TenantCacheConfig {
	data, err := s.store.Get(ctx, s.keys.ConfigKey(tenantID))
	if err != nil {
		if !types.IsCacheMiss(err) {
			s.logger.Debug("Tenant config read failed", "tenant_id", tenantID, "error", err)
		}
		return nil
	}

	cfg, err := decodeTenantConfig(data)
	if err != nil {
		s.logger.Warn("Discarding malformed tenant config", "tenant_id", tenantID, "error", err)
		return nil
	}
	return cfg
}

func (s *Service) persistConfig(ctx context.Context, cfg *types.TenantCacheConfig) {
	data, err := encodeTenantConfig(cfg)
	if err != nil {
		s.logger.Warn("Tenant config encode failed", "tenant_id", cfg.TenantID, "error", err)
		return
	}
	if err := s.store.SetWithTTL(ctx, s.keys.ConfigKey(cfg.TenantID), data, s.cfg.Tenancy.ConfigTTL); err != nil {
		s.logger.Debug("Tenant config persist failed", "tenant_id", cfg.TenantID, "error", err)
	}
}

// ConfigureTenant installs an explicit per-tenant policy, overriding any
// derived configuration in memory and in the backing store.
func (s *Service) ConfigureTenant(ctx context.Context, cfg *types.TenantCacheConfig) error {
	if s.closed.Load() {
		return types.ErrClosed
	}
	if cfg == nil || cfg.TenantID == "" {
		return types.ErrTenantRequired
	}

	applyConfigDefaults(cfg)

	s.mu.Lock()
	s.tenantConfigs[cfg.TenantID] = cfg
	s.mu.Unlock()

	data, err := encodeTenantConfig(cfg)
	if err != nil {
		return err
	}
	// Admin operations propagate store failures to the caller.
	return s.store.SetWithTTL(ctx, s.keys.ConfigKey(cfg.TenantID), data, s.cfg.Tenancy.ConfigTTL)
}

// TenantConfig returns the resolved policy for a tenant.
func (s *Service) TenantConfig(ctx context.Context, tenantID string) *types.TenantCacheConfig {
	return s.resolveTenantConfig(ctx, tenantID)
}

// applyConfigDefaults fills zero-valued fields of an explicit override from
// the tenant's tier defaults so partial configs behave sanely.
func applyConfigDefaults(cfg *types.TenantCacheConfig) {
	if cfg.Strategy == "" {
		cfg.Strategy = types.StrategyCustom
	}
	base := StrategyDefaults(cfg.TenantID, cfg.Strategy)

	if cfg.MaxMemoryMB <= 0 {
		cfg.MaxMemoryMB = base.MaxMemoryMB
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = base.MaxEntries
	}
	if cfg.MaxEntrySizeKB <= 0 {
		cfg.MaxEntrySizeKB = base.MaxEntrySizeKB
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = base.DefaultTTL
	}
	if cfg.MaxTTL <= 0 {
		cfg.MaxTTL = base.MaxTTL
	}
	if cfg.CompressionThreshold <= 0 {
		cfg.CompressionThreshold = base.CompressionThreshold
	}
	if cfg.EvictionPolicy == "" {
		cfg.EvictionPolicy = base.EvictionPolicy
	}
	if cfg.EvictionBatchSize <= 0 {
		cfg.EvictionBatchSize = base.EvictionBatchSize
	}
}

// clampTTL bounds a requested TTL to [1s, maxTTL], defaulting when unset.
func clampTTL(requested time.Duration, cfg *types.TenantCacheConfig) time.Duration {
	ttl := requested
	if ttl == 0 {
		ttl = cfg.DefaultTTL
	}
	if cfg.MaxTTL > 0 && ttl > cfg.MaxTTL {
		ttl = cfg.MaxTTL
	}
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}
