package invalidation

import "github.com/staylink/tenantcache/internal/types"

// DefaultRules returns the rule set installed at startup. Callers may remove
// or replace any of them through the rule administration API.
func DefaultRules() []*types.InvalidationRule {
	return []*types.InvalidationRule{
		{
			Name:      "hotel_config_changes",
			Trigger:   types.TriggerEventDriven,
			Scope:     types.ScopeKeyPattern,
			Pattern:   `hotel:\d+:config.*`,
			BatchSize: 100,
			Enabled:   true,
		},
		{
			Name:      "user_profile_changes",
			Trigger:   types.TriggerEventDriven,
			Scope:     types.ScopeKeyPattern,
			Pattern:   `user:\d+:profile.*`,
			BatchSize: 100,
			Enabled:   true,
		},
		{
			Name:      "pms_credentials_rotation",
			Trigger:   types.TriggerEventDriven,
			Scope:     types.ScopeTagBased,
			Tags:      []string{"pms_credentials"},
			BatchSize: 100,
			Enabled:   true,
		},
		{
			Name:      "session_cleanup",
			Trigger:   types.TriggerEventDriven,
			Scope:     types.ScopeTagBased,
			Tags:      []string{"session"},
			BatchSize: 100,
			Enabled:   true,
		},
	}
}
