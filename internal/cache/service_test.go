package cache

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staylink/tenantcache/internal/config"
	"github.com/staylink/tenantcache/internal/resilience"
	"github.com/staylink/tenantcache/internal/store"
	"github.com/staylink/tenantcache/internal/types"
)

func newTestService(t *testing.T) (*Service, *store.RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := config.ForTesting()
	cfg.Redis.Address = mr.Addr()

	st, err := store.NewRedisStore(cfg.Redis, resilience.NewDisabledPolicy(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	svc, err := NewService(cfg, st, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	return svc, st, mr
}

func withNS(ns types.Namespace) types.Option {
	return func(o *types.CacheOptions) { o.Namespace = ns }
}

func withTTL(ttl time.Duration) types.Option {
	return func(o *types.CacheOptions) { o.TTL = ttl }
}

func withTags(tags ...string) types.Option {
	return func(o *types.CacheOptions) { o.Tags = tags }
}

func TestServiceSetGet(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	type hotelConfig struct {
		Name  string `json:"name"`
		Rooms int    `json:"rooms"`
	}

	t.Run("round trip", func(t *testing.T) {
		in := hotelConfig{Name: "Grand Plaza", Rooms: 120}
		require.NoError(t, svc.Set(ctx, "hotel-42", "config", in, withNS(types.NamespaceHotelConfig)))

		var out hotelConfig
		require.NoError(t, svc.Get(ctx, "hotel-42", "config", &out, withNS(types.NamespaceHotelConfig)))
		assert.Equal(t, in, out)
	})

	t.Run("namespaces are isolated", func(t *testing.T) {
		require.NoError(t, svc.Set(ctx, "hotel-42", "shared", "sessions-value", withNS(types.NamespaceSessions)))

		var out string
		err := svc.Get(ctx, "hotel-42", "shared", &out, withNS(types.NamespaceHotelConfig))
		assert.ErrorIs(t, err, types.ErrCacheMiss)
	})

	t.Run("tenants are isolated", func(t *testing.T) {
		require.NoError(t, svc.Set(ctx, "hotel-42", "secret", "v"))

		var out string
		err := svc.Get(ctx, "hotel-7", "secret", &out)
		assert.ErrorIs(t, err, types.ErrCacheMiss)
	})

	t.Run("absent key is a miss", func(t *testing.T) {
		var out string
		err := svc.Get(ctx, "hotel-42", "never-written", &out)
		assert.ErrorIs(t, err, types.ErrCacheMiss)
	})

	t.Run("tenant id is required", func(t *testing.T) {
		var out string
		assert.ErrorIs(t, svc.Get(ctx, "", "k", &out), types.ErrTenantRequired)
		assert.ErrorIs(t, svc.Set(ctx, "", "k", "v"), types.ErrTenantRequired)
		assert.ErrorIs(t, svc.Delete(ctx, "", "k"), types.ErrTenantRequired)
	})
}

func TestServiceTTLClamping(t *testing.T) {
	svc, _, mr := newTestService(t)
	ctx := context.Background()

	t.Run("zero ttl uses tier default", func(t *testing.T) {
		require.NoError(t, svc.Set(ctx, "hotel-1", "k1", "v"))

		bk := svc.Keys().Build("hotel-1", types.NamespaceTemp, "k1")
		assert.Equal(t, time.Hour, mr.TTL(bk))
	})

	t.Run("ttl above tier maximum is capped", func(t *testing.T) {
		require.NoError(t, svc.Set(ctx, "hotel-1", "k2", "v", withTTL(100*time.Hour)))

		bk := svc.Keys().Build("hotel-1", types.NamespaceTemp, "k2")
		assert.Equal(t, 24*time.Hour, mr.TTL(bk))
	})

	t.Run("sub-second ttl is floored", func(t *testing.T) {
		require.NoError(t, svc.Set(ctx, "hotel-1", "k3", "v", withTTL(5*time.Millisecond)))

		bk := svc.Keys().Build("hotel-1", types.NamespaceTemp, "k3")
		assert.Equal(t, time.Second, mr.TTL(bk))
	})
}

func TestServiceQuotaEnforcement(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.ConfigureTenant(ctx, &types.TenantCacheConfig{
		TenantID:   "hotel-9",
		MaxEntries: 2,
	}))

	require.NoError(t, svc.Set(ctx, "hotel-9", "a", "v1"))
	require.NoError(t, svc.Set(ctx, "hotel-9", "b", "v2"))

	err := svc.Set(ctx, "hotel-9", "c", "v3")
	assert.ErrorIs(t, err, types.ErrQuotaExceeded)

	usage := svc.TenantMetrics("hotel-9")
	assert.EqualValues(t, 2, usage.Entries)
	assert.EqualValues(t, 1, usage.Rejected)

	// Freeing capacity lets the rejected write through.
	require.NoError(t, svc.Delete(ctx, "hotel-9", "a"))
	assert.NoError(t, svc.Set(ctx, "hotel-9", "c", "v3"))
}

func TestServiceEntrySizeLimit(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.ConfigureTenant(ctx, &types.TenantCacheConfig{
		TenantID:       "hotel-9",
		MaxEntrySizeKB: 1,
	}))

	err := svc.Set(ctx, "hotel-9", "big", strings.Repeat("x", 2048))
	assert.ErrorIs(t, err, types.ErrEntryTooLarge)
	assert.EqualValues(t, 1, svc.TenantMetrics("hotel-9").Rejected)
}

func TestServiceCompression(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.ConfigureTenant(ctx, &types.TenantCacheConfig{
		TenantID:             "hotel-9",
		CompressionEnabled:   true,
		CompressionThreshold: 16,
	}))

	value := strings.Repeat("room-availability ", 50)
	require.NoError(t, svc.Set(ctx, "hotel-9", "avail", value))

	bk := svc.Keys().Build("hotel-9", types.NamespaceTemp, "avail")
	raw, err := st.Get(ctx, bk)
	require.NoError(t, err)

	entry, err := DecodeEntry(raw)
	require.NoError(t, err)
	assert.True(t, entry.Compressed)

	payload, err := Decompress(entry.Value)
	require.NoError(t, err)
	expected, _ := json.Marshal(value)
	assert.Equal(t, expected, payload)

	var out string
	require.NoError(t, svc.Get(ctx, "hotel-9", "avail", &out))
	assert.Equal(t, value, out)
}

func TestServiceLazyExpiry(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()

	// Plant an entry whose wrapper expiry has passed but whose native TTL
	// has not, the window lazy expiry exists to cover.
	expired := time.Now().Add(-time.Minute)
	entry := &types.CacheEntry{
		Key:       "stale",
		Value:     `"v"`,
		TenantID:  "hotel-9",
		Namespace: types.NamespaceTemp,
		CreatedAt: time.Now().Add(-time.Hour),
		ExpiresAt: &expired,
		SizeBytes: 3,
	}
	data, err := EncodeEntry(entry)
	require.NoError(t, err)

	bk := svc.Keys().Build("hotel-9", types.NamespaceTemp, "stale")
	require.NoError(t, st.SetWithTTL(ctx, bk, data, 0))

	var out string
	assert.ErrorIs(t, svc.Get(ctx, "hotel-9", "stale", &out), types.ErrCacheMiss)

	// The expired entry was deleted from the backing store on access.
	_, err = st.Get(ctx, bk)
	assert.ErrorIs(t, err, types.ErrCacheMiss)

	ok, err := svc.Exists(ctx, "hotel-9", "stale")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestServiceTags(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Set(ctx, "hotel-9", "rates", "r", withTags("pricing")))
	require.NoError(t, svc.Set(ctx, "hotel-9", "packages", "p", withTags("pricing", "rooms")))
	require.NoError(t, svc.Set(ctx, "hotel-9", "floorplan", "f", withTags("rooms")))
	require.NoError(t, svc.Set(ctx, "hotel-9", "untagged", "u"))

	t.Run("get by tags matches any tag", func(t *testing.T) {
		got, err := svc.GetByTags(ctx, "hotel-9", []string{"pricing"})
		require.NoError(t, err)
		assert.Len(t, got, 2)
		assert.Contains(t, got, "rates")
		assert.Contains(t, got, "packages")
	})

	t.Run("empty tag list matches nothing", func(t *testing.T) {
		got, err := svc.GetByTags(ctx, "hotel-9", nil)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("invalidate by tags deletes only tagged entries", func(t *testing.T) {
		deleted, err := svc.InvalidateByTags(ctx, "hotel-9", []string{"rooms"})
		require.NoError(t, err)
		assert.EqualValues(t, 2, deleted)

		got, err := svc.GetByTags(ctx, "hotel-9", []string{"pricing"})
		require.NoError(t, err)
		assert.Len(t, got, 1)
		assert.Contains(t, got, "rates")

		var out string
		assert.NoError(t, svc.Get(ctx, "hotel-9", "untagged", &out))
	})
}

func TestServiceExpire(t *testing.T) {
	svc, _, mr := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Set(ctx, "hotel-9", "k", "v"))
	require.NoError(t, svc.Expire(ctx, "hotel-9", "k", 30*time.Minute))

	bk := svc.Keys().Build("hotel-9", types.NamespaceTemp, "k")
	assert.Equal(t, 30*time.Minute, mr.TTL(bk))

	var out string
	assert.NoError(t, svc.Get(ctx, "hotel-9", "k", &out))

	err := svc.Expire(ctx, "hotel-9", "missing", time.Minute)
	assert.ErrorIs(t, err, types.ErrCacheMiss)
}

func TestServiceGetOrSet(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	calls := 0
	factory := func() (any, error) {
		calls++
		return "computed", nil
	}

	var out string
	require.NoError(t, svc.GetOrSet(ctx, "hotel-9", "derived", &out, factory))
	assert.Equal(t, "computed", out)
	assert.Equal(t, 1, calls)

	out = ""
	require.NoError(t, svc.GetOrSet(ctx, "hotel-9", "derived", &out, factory))
	assert.Equal(t, "computed", out)
	assert.Equal(t, 1, calls, "hit must not invoke the factory")
}

func TestServiceBatchOperations(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	items := map[string]any{
		"a": "v1",
		"b": "v2",
		"c": "v3",
	}
	require.NoError(t, svc.SetMany(ctx, "hotel-9", items))

	got, err := svc.GetMany(ctx, "hotel-9", []string{"a", "c", "missing"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.JSONEq(t, `"v1"`, string(got["a"]))
	assert.JSONEq(t, `"v3"`, string(got["c"]))
	assert.NotContains(t, got, "missing")

	t.Run("quota rejection aborts the batch", func(t *testing.T) {
		require.NoError(t, svc.ConfigureTenant(ctx, &types.TenantCacheConfig{
			TenantID:   "hotel-7",
			MaxEntries: 1,
		}))

		err := svc.SetMany(ctx, "hotel-7", map[string]any{"a": 1, "b": 2, "c": 3})
		require.Error(t, err)
		assert.ErrorIs(t, err, types.ErrQuotaExceeded)
		assert.EqualValues(t, 1, svc.TenantMetrics("hotel-7").Entries)
	})
}

func TestServiceClearTenant(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Set(ctx, "hotel-1", "a", "v1"))
	require.NoError(t, svc.Set(ctx, "hotel-1", "b", "v2", withNS(types.NamespaceSessions)))
	require.NoError(t, svc.Set(ctx, "hotel-2", "a", "other"))

	deleted, err := svc.ClearTenant(ctx, "hotel-1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)

	var out string
	assert.ErrorIs(t, svc.Get(ctx, "hotel-1", "a", &out), types.ErrCacheMiss)
	assert.ErrorIs(t, svc.Get(ctx, "hotel-1", "b", &out, withNS(types.NamespaceSessions)), types.ErrCacheMiss)

	assert.EqualValues(t, 0, svc.TenantMetrics("hotel-1").Entries)

	// Other tenants are untouched.
	require.NoError(t, svc.Get(ctx, "hotel-2", "a", &out))
	assert.Equal(t, "other", out)
}

func TestServiceClosed(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Close())

	var out string
	assert.ErrorIs(t, svc.Get(ctx, "hotel-9", "k", &out), types.ErrClosed)
	assert.ErrorIs(t, svc.Set(ctx, "hotel-9", "k", "v"), types.ErrClosed)
	assert.ErrorIs(t, svc.ConfigureTenant(ctx, &types.TenantCacheConfig{TenantID: "hotel-9"}), types.ErrClosed)
}
