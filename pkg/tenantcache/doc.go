// Package tenantcache provides a tenant-aware cache invalidation and
// warming engine on top of Redis with a process-local read layer.
//
// Every cached value is scoped to a tenant and a namespace, with per-tenant
// quotas, TTL limits and eviction policies derived from the tenant's tier.
// State changes are propagated by emitting cache events, which a declarative
// rule engine matches against installed invalidation rules; matched rules
// purge keys, cascade through registered dependencies and trigger cache
// warming.
//
// # Quick Start
//
// Create an engine with default configuration:
//
//	engine, err := tenantcache.New(
//	    tenantcache.WithRedisAddress("localhost:6379"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Close()
//
// # Cache Operations
//
// All operations are tenant-scoped:
//
//	ctx := context.Background()
//
//	err := engine.Set(ctx, "hotel-42", "wifi-password", "s3cret",
//	    tenantcache.WithNamespace(tenantcache.NamespaceHotelConfig),
//	    tenantcache.WithTTL(time.Hour),
//	    tenantcache.WithTags("config", "network"),
//	)
//
//	var password string
//	err = engine.Get(ctx, "hotel-42", "wifi-password", &password,
//	    tenantcache.WithNamespace(tenantcache.NamespaceHotelConfig),
//	)
//
// # Invalidation
//
// Emit events when external state changes; the installed rules decide which
// keys are purged:
//
//	event := tenantcache.NewCacheEvent("data_change", "hotel:42:config:name")
//	_ = engine.EmitEvent(event)
//
// EmitEvent never blocks: when the event queue is saturated the event is
// dropped and ErrEventQueueFull is returned.
//
// # Warming
//
// Register warming functions and bind them to key patterns:
//
//	_ = engine.RegisterWarmingFunction("load_hotel_config", loadHotelConfig)
//	_ = engine.AddWarmingTask(&tenantcache.WarmingTask{
//	    KeyPattern: `hotel:\d+:config`,
//	    Function:   "load_hotel_config",
//	    Priority:   tenantcache.WarmCritical,
//	    Enabled:    true,
//	})
//
// After an invalidation event is processed, matching tasks re-populate the
// affected data in the background.
//
// # Consistency
//
// The local read layer serves entries for up to its configured TTL (60s by
// default) after an invalidation executed against the backing store by
// another process. Explicit deletes and event-driven invalidations issued
// through this instance clear the local layer immediately.
package tenantcache
