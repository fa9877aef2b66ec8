package metrics

import "fmt"

// Tag creates a formatted DataDog tag string in "key:value" format.
func Tag(key, value string) string {
	return fmt.Sprintf("%s:%s", key, value)
}

// LayerTag creates a cache layer tag (local/redis).
func LayerTag(layer string) string {
	return Tag("layer", layer)
}

// TenantTag creates a tenant tag.
func TenantTag(tenantID string) string {
	return Tag("tenant", tenantID)
}

// ScopeTag creates an invalidation scope tag.
func ScopeTag(scope string) string {
	return Tag("scope", scope)
}

// EventTypeTag creates an event type tag.
func EventTypeTag(eventType string) string {
	return Tag("event_type", eventType)
}

// FunctionTag creates a warming function tag.
func FunctionTag(fn string) string {
	return Tag("function", fn)
}

// CircuitStateTag creates a circuit breaker state tag.
func CircuitStateTag(state string) string {
	return Tag("circuit_state", state)
}
