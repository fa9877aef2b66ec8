package cache

import (
	"bytes"
	"compress/zlib"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"github.com/staylink/tenantcache/internal/types"
)

// EncodeEntry serializes a cache entry wrapper for the backing store.
func EncodeEntry(e *types.CacheEntry) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrSerializationFailed, err)
	}
	return data, nil
}

// DecodeEntry deserializes a cache entry wrapper. Malformed data is an
// error; callers on the read path treat it as a miss.
func DecodeEntry(data []byte) (*types.CacheEntry, error) {
	var e types.CacheEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrSerializationFailed, err)
	}
	if e.Key == "" {
		return nil, fmt.Errorf("%w: entry missing key", types.ErrSerializationFailed)
	}
	return &e, nil
}

// Compress zlib-compresses the payload and hex-encodes the result. The
// exact format is load-bearing for cross-implementation compatibility.
func Compress(payload []byte) (string, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(payload); err != nil {
		return "", err
	}
	if err := zw.Close(); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf.Bytes()), nil
}

// Decompress reverses Compress.
func Decompress(value string) ([]byte, error) {
	compressed, err := hex.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: bad hex payload: %v", types.ErrSerializationFailed, err)
	}

	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("%w: bad zlib payload: %v", types.ErrSerializationFailed, err)
	}
	defer zr.Close()

	payload, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("%w: bad zlib payload: %v", types.ErrSerializationFailed, err)
	}
	return payload, nil
}

// Payload returns the entry's application payload, decompressing when needed.
func Payload(e *types.CacheEntry) ([]byte, error) {
	if e.Compressed {
		return Decompress(e.Value)
	}
	return []byte(e.Value), nil
}

func encodeTenantConfig(cfg *types.TenantCacheConfig) ([]byte, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrSerializationFailed, err)
	}
	return data, nil
}

func decodeTenantConfig(data []byte) (*types.TenantCacheConfig, error) {
	var cfg types.TenantCacheConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrSerializationFailed, err)
	}
	if cfg.TenantID == "" {
		return nil, fmt.Errorf("%w: tenant config missing tenant id", types.ErrSerializationFailed)
	}
	return &cfg, nil
}
