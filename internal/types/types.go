// Package types provides shared types for the tenantcache engine.
// This package breaks import cycles between pkg/tenantcache and the
// internal cache, invalidation and warming packages.
package types

import (
	"time"

	"github.com/google/uuid"
)

// Namespace is a logical category of cached data within a tenant.
type Namespace string

const (
	NamespaceSessions     Namespace = "sessions"
	NamespacePMSData      Namespace = "pms_data"
	NamespaceAIResponses  Namespace = "ai_responses"
	NamespaceCallContext  Namespace = "call_context"
	NamespaceHotelConfig  Namespace = "hotel_config"
	NamespaceRateLimits   Namespace = "rate_limits"
	NamespaceAnalytics    Namespace = "analytics"
	NamespaceWebhooks     Namespace = "webhooks"
	NamespaceTranslations Namespace = "translations"
	NamespaceTemp         Namespace = "temp"
)

// Namespaces lists every known namespace.
func Namespaces() []Namespace {
	return []Namespace{
		NamespaceSessions,
		NamespacePMSData,
		NamespaceAIResponses,
		NamespaceCallContext,
		NamespaceHotelConfig,
		NamespaceRateLimits,
		NamespaceAnalytics,
		NamespaceWebhooks,
		NamespaceTranslations,
		NamespaceTemp,
	}
}

// Valid reports whether the namespace is one of the known namespaces.
func (n Namespace) Valid() bool {
	switch n {
	case NamespaceSessions, NamespacePMSData, NamespaceAIResponses,
		NamespaceCallContext, NamespaceHotelConfig, NamespaceRateLimits,
		NamespaceAnalytics, NamespaceWebhooks, NamespaceTranslations,
		NamespaceTemp:
		return true
	default:
		return false
	}
}

// CacheStrategy is a tenant's caching tier, used to derive quota defaults.
type CacheStrategy string

const (
	StrategyBasic    CacheStrategy = "basic"
	StrategyAdvanced CacheStrategy = "advanced"
	StrategyPremium  CacheStrategy = "premium"
	StrategyCustom   CacheStrategy = "custom"
)

// EvictionPolicy selects which entries are removed when a tenant exceeds quota.
type EvictionPolicy string

const (
	EvictLRU    EvictionPolicy = "lru"
	EvictLFU    EvictionPolicy = "lfu"
	EvictTTL    EvictionPolicy = "ttl"
	EvictRandom EvictionPolicy = "random"
)

// CacheEntry is a stored value plus its metadata. It is what actually lives
// in the backing store: the application payload is carried in Value, either
// as raw serialized JSON or hex-encoded zlib when Compressed is set.
type CacheEntry struct {
	Key          string     `json:"key"`
	Value        string     `json:"value"`
	TenantID     string     `json:"tenant_id"`
	Namespace    Namespace  `json:"namespace"`
	CreatedAt    time.Time  `json:"created_at"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	AccessCount  int64      `json:"access_count"`
	LastAccessed time.Time  `json:"last_accessed"`
	SizeBytes    int        `json:"size_bytes"`
	Compressed   bool       `json:"compressed"`
	Tags         []string   `json:"tags,omitempty"`
}

// IsExpired reports whether the entry's wrapper-level expiry has passed.
// The backing store's native TTL is a backstop, not the sole mechanism.
func (e *CacheEntry) IsExpired() bool {
	if e.ExpiresAt == nil {
		return false
	}
	return time.Now().After(*e.ExpiresAt)
}

// HasAnyTag reports whether the entry carries at least one of the given tags.
func (e *CacheEntry) HasAnyTag(tags []string) bool {
	for _, want := range tags {
		for _, have := range e.Tags {
			if want == have {
				return true
			}
		}
	}
	return false
}

// Touch updates the access metadata for a cache hit.
func (e *CacheEntry) Touch() {
	e.AccessCount++
	e.LastAccessed = time.Now()
}

// RemainingTTL returns the time until the wrapper expiry, or zero when the
// entry does not expire.
func (e *CacheEntry) RemainingTTL() time.Duration {
	if e.ExpiresAt == nil {
		return 0
	}
	remaining := time.Until(*e.ExpiresAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// CacheEvent is an ephemeral message emitted on external state changes and
// consumed by the event processing loop. Events are not persisted.
type CacheEvent struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Key       string         `json:"key,omitempty"`
	Pattern   string         `json:"pattern,omitempty"`
	Tags      []string       `json:"tags,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Priority  int            `json:"priority"`
	Timestamp time.Time      `json:"timestamp"`
	Attempts  int            `json:"attempts"`
}

// NewCacheEvent creates an event with a fresh ID and timestamp.
func NewCacheEvent(eventType, key string) *CacheEvent {
	return &CacheEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Key:       key,
		Timestamp: time.Now(),
	}
}

// TenantCacheConfig is the per-tenant caching policy. It is derived from the
// tenant's tier on first access, cached in memory and in the backing store
// with a 24h TTL, and explicitly overridable through the configuration API.
type TenantCacheConfig struct {
	TenantID             string         `json:"tenant_id"`
	Strategy             CacheStrategy  `json:"strategy"`
	MaxMemoryMB          int            `json:"max_memory_mb"`
	MaxEntries           int            `json:"max_entries"`
	MaxEntrySizeKB       int            `json:"max_entry_size_kb"`
	DefaultTTL           time.Duration  `json:"default_ttl"`
	MaxTTL               time.Duration  `json:"max_ttl"`
	CompressionEnabled   bool           `json:"compression_enabled"`
	CompressionThreshold int            `json:"compression_threshold"`
	EvictionPolicy       EvictionPolicy `json:"eviction_policy"`
	EvictionBatchSize    int            `json:"eviction_batch_size"`
}

// MaxMemoryBytes returns the tenant's memory quota in bytes.
func (c *TenantCacheConfig) MaxMemoryBytes() int64 {
	return int64(c.MaxMemoryMB) << 20
}

// MaxEntryBytes returns the per-entry size limit in bytes.
func (c *TenantCacheConfig) MaxEntryBytes() int {
	return c.MaxEntrySizeKB * 1024
}

// TenantUsage is a point-in-time snapshot of a tenant's cache footprint.
// Counters are instance-local and best-effort, like the dependency maps.
type TenantUsage struct {
	TenantID  string `json:"tenant_id"`
	Entries   int64  `json:"entries"`
	SizeBytes int64  `json:"size_bytes"`
	Hits      int64  `json:"hits"`
	Misses    int64  `json:"misses"`
	Evictions int64  `json:"evictions"`
	Rejected  int64  `json:"rejected"`
}
