package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staylink/tenantcache/internal/types"
)

func TestStrategyDefaults(t *testing.T) {
	t.Run("basic", func(t *testing.T) {
		cfg := StrategyDefaults("t", types.StrategyBasic)
		assert.Equal(t, 64, cfg.MaxMemoryMB)
		assert.Equal(t, 10_000, cfg.MaxEntries)
		assert.Equal(t, time.Hour, cfg.DefaultTTL)
		assert.Equal(t, 24*time.Hour, cfg.MaxTTL)
		assert.Equal(t, types.EvictLRU, cfg.EvictionPolicy)
	})

	t.Run("advanced", func(t *testing.T) {
		cfg := StrategyDefaults("t", types.StrategyAdvanced)
		assert.Equal(t, 256, cfg.MaxMemoryMB)
		assert.Equal(t, 50_000, cfg.MaxEntries)
		assert.Equal(t, 72*time.Hour, cfg.MaxTTL)
		assert.Equal(t, 100, cfg.EvictionBatchSize)
	})

	t.Run("premium", func(t *testing.T) {
		cfg := StrategyDefaults("t", types.StrategyPremium)
		assert.Equal(t, 1024, cfg.MaxMemoryMB)
		assert.Equal(t, 200_000, cfg.MaxEntries)
		assert.Equal(t, 4*time.Hour, cfg.DefaultTTL)
		assert.Equal(t, 7*24*time.Hour, cfg.MaxTTL)
	})

	t.Run("unknown tier falls back to basic", func(t *testing.T) {
		cfg := StrategyDefaults("t", types.CacheStrategy("platinum"))
		assert.Equal(t, types.StrategyBasic, cfg.Strategy)
		assert.Equal(t, 64, cfg.MaxMemoryMB)
	})
}

func TestTenantConfigResolution(t *testing.T) {
	t.Run("tier resolver drives the derived config", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		svc.tierResolver = func(string) types.CacheStrategy { return types.StrategyPremium }

		cfg := svc.TenantConfig(context.Background(), "hotel-42")
		assert.Equal(t, types.StrategyPremium, cfg.Strategy)
		assert.Equal(t, 200_000, cfg.MaxEntries)
	})

	t.Run("derived config is persisted to the store", func(t *testing.T) {
		svc, st, _ := newTestService(t)
		ctx := context.Background()

		svc.TenantConfig(ctx, "hotel-42")

		data, err := st.Get(ctx, svc.Keys().ConfigKey("hotel-42"))
		require.NoError(t, err)

		stored, err := decodeTenantConfig(data)
		require.NoError(t, err)
		assert.Equal(t, "hotel-42", stored.TenantID)
	})

	t.Run("persisted config survives a fresh service", func(t *testing.T) {
		svc, st, _ := newTestService(t)
		ctx := context.Background()

		require.NoError(t, svc.ConfigureTenant(ctx, &types.TenantCacheConfig{
			TenantID:   "hotel-42",
			MaxEntries: 7,
		}))

		fresh, err := NewService(svc.cfg, st, nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = fresh.Close() })

		cfg := fresh.TenantConfig(ctx, "hotel-42")
		assert.Equal(t, 7, cfg.MaxEntries)
	})

	t.Run("explicit override wins over the derived config", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		ctx := context.Background()

		svc.TenantConfig(ctx, "hotel-42")
		require.NoError(t, svc.ConfigureTenant(ctx, &types.TenantCacheConfig{
			TenantID:   "hotel-42",
			MaxEntries: 3,
		}))

		assert.Equal(t, 3, svc.TenantConfig(ctx, "hotel-42").MaxEntries)
	})

	t.Run("nil or anonymous config is rejected", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		ctx := context.Background()

		assert.ErrorIs(t, svc.ConfigureTenant(ctx, nil), types.ErrTenantRequired)
		assert.ErrorIs(t, svc.ConfigureTenant(ctx, &types.TenantCacheConfig{}), types.ErrTenantRequired)
	})
}

func TestApplyConfigDefaults(t *testing.T) {
	cfg := &types.TenantCacheConfig{
		TenantID:   "hotel-42",
		MaxEntries: 5,
	}
	applyConfigDefaults(cfg)

	assert.Equal(t, types.StrategyCustom, cfg.Strategy)
	assert.Equal(t, 5, cfg.MaxEntries, "explicit values are kept")
	assert.Equal(t, 64, cfg.MaxMemoryMB, "zero values take tier defaults")
	assert.Equal(t, time.Hour, cfg.DefaultTTL)
	assert.Equal(t, types.EvictLRU, cfg.EvictionPolicy)
	assert.Equal(t, 50, cfg.EvictionBatchSize)
}

func TestClampTTL(t *testing.T) {
	cfg := &types.TenantCacheConfig{DefaultTTL: time.Hour, MaxTTL: 24 * time.Hour}

	assert.Equal(t, time.Hour, clampTTL(0, cfg))
	assert.Equal(t, 10*time.Minute, clampTTL(10*time.Minute, cfg))
	assert.Equal(t, 24*time.Hour, clampTTL(48*time.Hour, cfg))
	assert.Equal(t, time.Second, clampTTL(time.Millisecond, cfg))
	assert.Equal(t, time.Second, clampTTL(-time.Minute, cfg))

	unbounded := &types.TenantCacheConfig{DefaultTTL: time.Hour}
	assert.Equal(t, 100*time.Hour, clampTTL(100*time.Hour, unbounded))
}
