package cache

import (
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staylink/tenantcache/internal/types"
)

func TestEntryCodec(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		expires := time.Now().Add(time.Hour).Truncate(time.Millisecond)
		entry := &types.CacheEntry{
			Key:       "hotel:42:config",
			Value:     `{"name":"Grand Plaza"}`,
			TenantID:  "hotel-42",
			Namespace: types.NamespaceHotelConfig,
			CreatedAt: time.Now().Truncate(time.Millisecond),
			ExpiresAt: &expires,
			SizeBytes: 22,
			Tags:      []string{"config"},
		}

		data, err := EncodeEntry(entry)
		require.NoError(t, err)

		decoded, err := DecodeEntry(data)
		require.NoError(t, err)
		assert.Equal(t, entry.Key, decoded.Key)
		assert.Equal(t, entry.Value, decoded.Value)
		assert.Equal(t, entry.Tags, decoded.Tags)
		assert.True(t, expires.Equal(*decoded.ExpiresAt))
	})

	t.Run("rejects malformed data", func(t *testing.T) {
		_, err := DecodeEntry([]byte("not json"))
		assert.ErrorIs(t, err, types.ErrSerializationFailed)
	})

	t.Run("rejects entry without key", func(t *testing.T) {
		_, err := DecodeEntry([]byte(`{"value":"v"}`))
		assert.ErrorIs(t, err, types.ErrSerializationFailed)
	})
}

func TestCompression(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		payload := []byte(strings.Repeat(`{"room":"suite"},`, 100))

		compressed, err := Compress(payload)
		require.NoError(t, err)
		assert.Less(t, len(compressed), len(payload)*2, "repetitive data should shrink")

		// The stored form is hex-encoded zlib.
		_, err = hex.DecodeString(compressed)
		require.NoError(t, err)

		restored, err := Decompress(compressed)
		require.NoError(t, err)
		assert.Equal(t, payload, restored)
	})

	t.Run("rejects non-hex input", func(t *testing.T) {
		_, err := Decompress("zzzz")
		assert.ErrorIs(t, err, types.ErrSerializationFailed)
	})

	t.Run("rejects hex that is not zlib", func(t *testing.T) {
		_, err := Decompress(hex.EncodeToString([]byte("plain")))
		assert.ErrorIs(t, err, types.ErrSerializationFailed)
	})
}

func TestPayload(t *testing.T) {
	t.Run("plain entry", func(t *testing.T) {
		got, err := Payload(&types.CacheEntry{Key: "k", Value: `"v"`})
		require.NoError(t, err)
		assert.Equal(t, []byte(`"v"`), got)
	})

	t.Run("compressed entry", func(t *testing.T) {
		compressed, err := Compress([]byte(`"v"`))
		require.NoError(t, err)

		got, err := Payload(&types.CacheEntry{Key: "k", Value: compressed, Compressed: true})
		require.NoError(t, err)
		assert.Equal(t, []byte(`"v"`), got)
	})
}

func TestTenantConfigCodec(t *testing.T) {
	cfg := StrategyDefaults("hotel-42", types.StrategyPremium)

	data, err := encodeTenantConfig(cfg)
	require.NoError(t, err)

	decoded, err := decodeTenantConfig(data)
	require.NoError(t, err)
	assert.Equal(t, cfg.TenantID, decoded.TenantID)
	assert.Equal(t, cfg.MaxEntries, decoded.MaxEntries)

	_, err = decodeTenantConfig([]byte(`{}`))
	assert.ErrorIs(t, err, types.ErrSerializationFailed)
}
