package cache

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/allegro/bigcache/v3"

	"github.com/staylink/tenantcache/internal/config"
)

// localCache is the short-TTL process-local layer in front of the backing
// store. Entries live for the configured window regardless of the backing
// entry's TTL; explicit deletes are the only proactive invalidation path.
type localCache interface {
	Get(key string) ([]byte, bool)
	Set(key string, payload []byte)
	Delete(key string)
	Reset()
	Stats() LocalCacheStats
	Close() error
}

// LocalCacheStats is a snapshot of the local layer's counters.
type LocalCacheStats struct {
	Hits      int64
	Misses    int64
	Sets      int64
	Evictions int64
	Entries   int
}

// bigcacheLocal implements localCache on BigCache.
type bigcacheLocal struct {
	cache  *bigcache.BigCache
	logger *slog.Logger

	hits      atomic.Int64
	misses    atomic.Int64
	sets      atomic.Int64
	evictions atomic.Int64
}

// NewLocalCache creates the process-local read cache. When disabled in
// config a no-op layer is returned so callers never branch.
func NewLocalCache(cfg config.LocalCacheConfig, logger *slog.Logger) (localCache, error) {
	if !cfg.Enabled {
		return disabledLocal{}, nil
	}

	if logger == nil {
		logger = slog.Default()
	}

	lc := &bigcacheLocal{
		logger: logger.With("component", "local-cache"),
	}

	bcConfig := bigcache.Config{
		Shards:             cfg.Shards,
		LifeWindow:         cfg.TTL,
		CleanWindow:        cfg.CleanupInterval,
		MaxEntriesInWindow: 1000 * 10 * 60,
		MaxEntrySize:       cfg.MaxEntrySize,
		HardMaxCacheSize:   cfg.MaxSizeMB,
		Verbose:            false,
		Logger:             &bigcacheLogger{logger: lc.logger},
		OnRemoveWithReason: func(key string, entry []byte, reason bigcache.RemoveReason) {
			if reason == bigcache.NoSpace || reason == bigcache.Expired {
				lc.evictions.Add(1)
			}
		},
	}

	bc, err := bigcache.New(context.Background(), bcConfig)
	if err != nil {
		return nil, err
	}

	lc.cache = bc
	return lc, nil
}

func (c *bigcacheLocal) Get(key string) ([]byte, bool) {
	data, err := c.cache.Get(key)
	if err != nil {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return data, true
}

func (c *bigcacheLocal) Set(key string, payload []byte) {
	if err := c.cache.Set(key, payload); err != nil {
		c.logger.Debug("Local cache set failed", "key", key, "error", err)
		return
	}
	c.sets.Add(1)
}

func (c *bigcacheLocal) Delete(key string) {
	// Absent keys are fine here.
	_ = c.cache.Delete(key)
}

func (c *bigcacheLocal) Reset() {
	if err := c.cache.Reset(); err != nil {
		c.logger.Debug("Local cache reset failed", "error", err)
	}
}

func (c *bigcacheLocal) Stats() LocalCacheStats {
	return LocalCacheStats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Sets:      c.sets.Load(),
		Evictions: c.evictions.Load(),
		Entries:   c.cache.Len(),
	}
}

func (c *bigcacheLocal) Close() error {
	return c.cache.Close()
}

// disabledLocal is a no-op local layer used when the local cache is off.
type disabledLocal struct{}

func (disabledLocal) Get(string) ([]byte, bool) { return nil, false }
func (disabledLocal) Set(string, []byte)        {}
func (disabledLocal) Delete(string)             {}
func (disabledLocal) Reset()                    {}
func (disabledLocal) Stats() LocalCacheStats    { return LocalCacheStats{} }
func (disabledLocal) Close() error              { return nil }

// bigcacheLogger adapts slog to bigcache's logger interface.
type bigcacheLogger struct {
	logger *slog.Logger
}

func (l *bigcacheLogger) Printf(format string, v ...interface{}) {
	l.logger.Debug("bigcache", "message", format, "args", v)
}
