package cache

import (
	"context"
	"math/rand"
	"sort"
	"time"

	"github.com/staylink/tenantcache/internal/types"
)

// evictionCandidate pairs a backing key with the metadata the policies
// order by.
type evictionCandidate struct {
	backingKey   string
	lastAccessed time.Time
	accessCount  int64
	expiresAt    *time.Time
	sizeBytes    int64
}

// evictIfNeeded runs an eviction pass when a tenant is over quota. The pass
// scans the tenant's key space, orders candidates by the configured policy
// and deletes one batch. O(n) over the tenant's keys, acceptable because
// evictions are rare relative to reads.
func (s *Service) evictIfNeeded(ctx context.Context, tenantID string, cfg *types.TenantCacheConfig) {
	usage := s.tenantUsage(tenantID)
	if usage.entries.Load() <= int64(cfg.MaxEntries) &&
		usage.bytes.Load() <= cfg.MaxMemoryBytes() {
		return
	}

	evicted, freed, err := s.evictBatch(ctx, tenantID, cfg)
	if err != nil {
		s.logger.Warn("Eviction pass failed", "tenant_id", tenantID, "error", err)
		return
	}
	if evicted == 0 {
		return
	}

	s.adjustUsage(tenantID, -evicted, -freed)
	usage.evictions.Add(evicted)
	if s.metrics != nil {
		s.metrics.RecordEviction(tenantID, int(evicted))
	}
	s.logger.Info("Evicted cache entries",
		"tenant_id", tenantID,
		"policy", cfg.EvictionPolicy,
		"evicted", evicted,
		"freed_bytes", freed,
	)
}

// evictBatch collects the tenant's entries, sorts them by the eviction
// policy and deletes the first batch. Oldest last-accessed first is the
// tie-break for the LRU policy.
func (s *Service) evictBatch(ctx context.Context, tenantID string, cfg *types.TenantCacheConfig) (int64, int64, error) {
	pattern := s.keys.TenantPattern(tenantID)

	var candidates []evictionCandidate
	err := s.store.Scan(ctx, pattern, func(keys []string) error {
		for _, bk := range keys {
			entry, ok := s.readEntry(ctx, bk)
			if !ok {
				continue
			}
			candidates = append(candidates, evictionCandidate{
				backingKey:   bk,
				lastAccessed: entry.LastAccessed,
				accessCount:  entry.AccessCount,
				expiresAt:    entry.ExpiresAt,
				sizeBytes:    int64(entry.SizeBytes),
			})
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	if len(candidates) == 0 {
		return 0, 0, nil
	}

	orderCandidates(candidates, cfg.EvictionPolicy)

	batch := cfg.EvictionBatchSize
	if batch <= 0 {
		batch = 50
	}
	if batch > len(candidates) {
		batch = len(candidates)
	}

	victims := make([]string, 0, batch)
	var freed int64
	for _, c := range candidates[:batch] {
		victims = append(victims, c.backingKey)
		freed += c.sizeBytes
	}

	deleted, err := s.store.DeleteMany(ctx, victims)
	if err != nil {
		return 0, 0, err
	}
	for _, bk := range victims {
		s.local.Delete(bk)
	}

	return deleted, freed, nil
}

func orderCandidates(candidates []evictionCandidate, policy types.EvictionPolicy) {
	switch policy {
	case types.EvictLFU:
		sort.Slice(candidates, func(i, j int) bool {
			if candidates[i].accessCount != candidates[j].accessCount {
				return candidates[i].accessCount < candidates[j].accessCount
			}
			return candidates[i].lastAccessed.Before(candidates[j].lastAccessed)
		})

	case types.EvictTTL:
		// Soonest-to-expire first; entries without expiry go last.
		sort.Slice(candidates, func(i, j int) bool {
			ei, ej := candidates[i].expiresAt, candidates[j].expiresAt
			switch {
			case ei == nil:
				return false
			case ej == nil:
				return true
			default:
				return ei.Before(*ej)
			}
		})

	case types.EvictRandom:
		rand.Shuffle(len(candidates), func(i, j int) {
			candidates[i], candidates[j] = candidates[j], candidates[i]
		})

	default: // lru
		sort.Slice(candidates, func(i, j int) bool {
			return candidates[i].lastAccessed.Before(candidates[j].lastAccessed)
		})
	}
}
