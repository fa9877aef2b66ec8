package tenantcache

import (
	"github.com/staylink/tenantcache/internal/invalidation"
	"github.com/staylink/tenantcache/internal/metrics"
	"github.com/staylink/tenantcache/internal/types"
	"github.com/staylink/tenantcache/internal/warming"
)

// Re-export core types from internal/types.
type (
	// Namespace partitions a tenant's key space by data category.
	Namespace = types.Namespace

	// CacheStrategy is a tenant's caching tier.
	CacheStrategy = types.CacheStrategy

	// EvictionPolicy selects which entries go first when a tenant is over quota.
	EvictionPolicy = types.EvictionPolicy

	// CacheEntry is the stored wrapper around a cached value.
	CacheEntry = types.CacheEntry

	// CacheEvent is an ephemeral message consumed by the event loop.
	CacheEvent = types.CacheEvent

	// TenantCacheConfig is the per-tenant caching policy.
	TenantCacheConfig = types.TenantCacheConfig

	// TenantUsage is a snapshot of a tenant's cache footprint.
	TenantUsage = types.TenantUsage

	// InvalidationRule decides which keys to purge in response to an event.
	InvalidationRule = types.InvalidationRule

	// InvalidationTrigger describes what causes a rule to fire.
	InvalidationTrigger = types.InvalidationTrigger

	// InvalidationScope describes what a matched rule invalidates.
	InvalidationScope = types.InvalidationScope

	// WarmingTask binds a key pattern to a named warming function.
	WarmingTask = types.WarmingTask

	// WarmingPriority orders warming work.
	WarmingPriority = types.WarmingPriority

	// WarmingFunc re-populates cache data for a key.
	WarmingFunc = types.WarmingFunc

	// Logger is the minimal structured logging interface hosts can inject.
	Logger = types.Logger

	// MetricsRecorder receives engine-level measurements.
	MetricsRecorder = types.MetricsRecorder

	// Store is the backing-store contract the engine consumes.
	Store = types.Store

	// SecretString redacts its value when marshaled to JSON.
	SecretString = types.SecretString

	// MetricsSnapshot is a point-in-time view of the engine's counters.
	MetricsSnapshot = metrics.Snapshot

	// InvalidationStats is a snapshot of the event processing loop.
	InvalidationStats = invalidation.Stats

	// WarmingStats is a snapshot of warming scheduler activity.
	WarmingStats = warming.Stats
)

// Re-export namespace constants.
const (
	NamespaceSessions     = types.NamespaceSessions
	NamespacePMSData      = types.NamespacePMSData
	NamespaceAIResponses  = types.NamespaceAIResponses
	NamespaceCallContext  = types.NamespaceCallContext
	NamespaceHotelConfig  = types.NamespaceHotelConfig
	NamespaceRateLimits   = types.NamespaceRateLimits
	NamespaceAnalytics    = types.NamespaceAnalytics
	NamespaceWebhooks     = types.NamespaceWebhooks
	NamespaceTranslations = types.NamespaceTranslations
	NamespaceTemp         = types.NamespaceTemp
)

// Re-export caching tier constants.
const (
	StrategyBasic    = types.StrategyBasic
	StrategyAdvanced = types.StrategyAdvanced
	StrategyPremium  = types.StrategyPremium
	StrategyCustom   = types.StrategyCustom
)

// Re-export eviction policy constants.
const (
	EvictLRU    = types.EvictLRU
	EvictLFU    = types.EvictLFU
	EvictTTL    = types.EvictTTL
	EvictRandom = types.EvictRandom
)

// Re-export invalidation trigger constants.
const (
	TriggerDataChange    = types.TriggerDataChange
	TriggerTimeBased     = types.TriggerTimeBased
	TriggerManual        = types.TriggerManual
	TriggerDependency    = types.TriggerDependency
	TriggerPatternMatch  = types.TriggerPatternMatch
	TriggerEventDriven   = types.TriggerEventDriven
	TriggerCapacityLimit = types.TriggerCapacityLimit
)

// Re-export invalidation scope constants.
const (
	ScopeSingleKey      = types.ScopeSingleKey
	ScopeKeyPattern     = types.ScopeKeyPattern
	ScopeTagBased       = types.ScopeTagBased
	ScopeDependencyTree = types.ScopeDependencyTree
	ScopeNamespace      = types.ScopeNamespace
	ScopeGlobal         = types.ScopeGlobal
)

// Re-export warming priority constants.
const (
	WarmCritical   = types.WarmCritical
	WarmHigh       = types.WarmHigh
	WarmMedium     = types.WarmMedium
	WarmLow        = types.WarmLow
	WarmBackground = types.WarmBackground
)

// NewCacheEvent creates an event with a fresh ID and timestamp.
func NewCacheEvent(eventType, key string) *CacheEvent {
	return types.NewCacheEvent(eventType, key)
}

// DefaultRules returns the invalidation rule set installed at startup.
func DefaultRules() []*InvalidationRule {
	return invalidation.DefaultRules()
}
