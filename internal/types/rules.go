package types

import (
	"fmt"
	"regexp"
	"time"
)

// InvalidationTrigger describes what causes a rule to fire.
//
// Only event_driven rules are live-matched by the event processing loop.
// The other triggers are registered extension points reachable through the
// explicit admin invalidation calls.
type InvalidationTrigger string

const (
	TriggerDataChange    InvalidationTrigger = "data_change"
	TriggerTimeBased     InvalidationTrigger = "time_based"
	TriggerManual        InvalidationTrigger = "manual"
	TriggerDependency    InvalidationTrigger = "dependency"
	TriggerPatternMatch  InvalidationTrigger = "pattern_match"
	TriggerEventDriven   InvalidationTrigger = "event_driven"
	TriggerCapacityLimit InvalidationTrigger = "capacity_limit"
)

// InvalidationScope describes what a matched rule invalidates.
type InvalidationScope string

const (
	ScopeSingleKey      InvalidationScope = "single_key"
	ScopeKeyPattern     InvalidationScope = "key_pattern"
	ScopeTagBased       InvalidationScope = "tag_based"
	ScopeDependencyTree InvalidationScope = "dependency_tree"
	ScopeNamespace      InvalidationScope = "namespace"
	ScopeGlobal         InvalidationScope = "global"
)

// InvalidationRule is a declarative trigger x scope x pattern/tags mapping
// that decides which keys to purge in response to an event.
type InvalidationRule struct {
	Name         string              `json:"name"`
	Trigger      InvalidationTrigger `json:"trigger"`
	Scope        InvalidationScope   `json:"scope"`
	Pattern      string              `json:"pattern,omitempty"`
	Tags         []string            `json:"tags,omitempty"`
	Dependencies []string            `json:"dependencies,omitempty"`
	Delay        time.Duration       `json:"delay"`
	BatchSize    int                 `json:"batch_size"`
	Enabled      bool                `json:"enabled"`

	re *regexp.Regexp
}

// Validate checks rule invariants and compiles the pattern. It must be
// called before a rule is installed; MatchesKey on an unvalidated
// key_pattern rule never matches.
func (r *InvalidationRule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("%w: rule name is required", ErrInvalidRule)
	}

	switch r.Scope {
	case ScopeSingleKey, ScopeKeyPattern:
		if r.Pattern == "" {
			return fmt.Errorf("%w: rule %q with scope %s requires a pattern", ErrInvalidRule, r.Name, r.Scope)
		}
	case ScopeTagBased:
		if len(r.Tags) == 0 {
			return fmt.Errorf("%w: rule %q with scope tag_based requires tags", ErrInvalidRule, r.Name)
		}
	case ScopeDependencyTree, ScopeNamespace, ScopeGlobal:
		// No pattern or tag requirements.
	default:
		return fmt.Errorf("%w: rule %q has unknown scope %q", ErrInvalidRule, r.Name, r.Scope)
	}

	if r.Delay < 0 {
		return fmt.Errorf("%w: rule %q has negative delay", ErrInvalidRule, r.Name)
	}

	if r.Scope == ScopeKeyPattern {
		// Anchor at the start only: prefix-match semantics, not full-match.
		re, err := regexp.Compile(`\A(?:` + r.Pattern + `)`)
		if err != nil {
			return fmt.Errorf("%w: rule %q pattern: %v", ErrInvalidRule, r.Name, err)
		}
		r.re = re
	}

	return nil
}

// MatchesKey reports whether this rule applies to the given key and tags.
//
// single_key matches on exact key equality with the pattern; key_pattern
// matches when the compiled regex matches a prefix of the key; tag_based
// matches when any tag intersects the rule's tags. The remaining scopes are
// resolved by their trigger mechanism, not by this per-key check.
func (r *InvalidationRule) MatchesKey(key string, tags []string) bool {
	switch r.Scope {
	case ScopeSingleKey:
		return key != "" && key == r.Pattern

	case ScopeKeyPattern:
		return key != "" && r.re != nil && r.re.MatchString(key)

	case ScopeTagBased:
		for _, want := range r.Tags {
			for _, have := range tags {
				if want == have {
					return true
				}
			}
		}
		return false

	default:
		return false
	}
}

// MatchesTags reports whether any of the given tags intersects the rule's tags.
func (r *InvalidationRule) MatchesTags(tags []string) bool {
	if r.Scope != ScopeTagBased {
		return false
	}
	return r.MatchesKey("", tags)
}
