// Package invalidation contains the rule engine, the event processing loop
// and the dependency tracker that together decide which cache keys to purge
// when external state changes.
package invalidation

import (
	"context"
	"sync"
)

// DependencyTracker maintains in-memory key and tag dependency multimaps.
// Both maps are process-local: in a multi-instance deployment each instance
// tracks only the dependencies registered with it, and only the backing
// store is shared cluster-wide.
type DependencyTracker struct {
	mu sync.RWMutex

	// dependents maps a parent key to the keys invalidated with it.
	dependents map[string]map[string]struct{}

	// tagKeys maps a tag to the keys registered under it.
	tagKeys map[string]map[string]struct{}
}

// NewDependencyTracker creates an empty tracker.
func NewDependencyTracker() *DependencyTracker {
	return &DependencyTracker{
		dependents: make(map[string]map[string]struct{}),
		tagKeys:    make(map[string]map[string]struct{}),
	}
}

// AddKeyDependency records that dependent must be invalidated whenever
// parent is invalidated with cascade enabled.
func (t *DependencyTracker) AddKeyDependency(parent, dependent string) {
	if parent == "" || dependent == "" || parent == dependent {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	set, ok := t.dependents[parent]
	if !ok {
		set = make(map[string]struct{})
		t.dependents[parent] = set
	}
	set[dependent] = struct{}{}
}

// AddTagDependency registers key under tag for tag-scoped invalidation.
func (t *DependencyTracker) AddTagDependency(tag, key string) {
	if tag == "" || key == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	set, ok := t.tagKeys[tag]
	if !ok {
		set = make(map[string]struct{})
		t.tagKeys[tag] = set
	}
	set[key] = struct{}{}
}

// Dependents returns the keys registered as depending on parent.
func (t *DependencyTracker) Dependents(parent string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	set := t.dependents[parent]
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	return keys
}

// KeysForTags returns the union of keys registered under any of the tags.
func (t *DependencyTracker) KeysForTags(tags []string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, tag := range tags {
		for k := range t.tagKeys[tag] {
			seen[k] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	return keys
}

// RemoveKey drops the key from both maps, as a parent, a dependent and a
// tag member.
func (t *DependencyTracker) RemoveKey(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.dependents, key)
	for _, set := range t.dependents {
		delete(set, key)
	}
	for tag, set := range t.tagKeys {
		delete(set, key)
		if len(set) == 0 {
			delete(t.tagKeys, tag)
		}
	}
}

// parents returns a snapshot of the tracked parent keys.
func (t *DependencyTracker) parents() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	keys := make([]string, 0, len(t.dependents))
	for k := range t.dependents {
		keys = append(keys, k)
	}
	return keys
}

// Cleanup removes tracked parents whose keys no longer exist according to
// exists. This garbage-collects the in-memory maps, not the backing store.
// It returns the number of parents dropped.
func (t *DependencyTracker) Cleanup(ctx context.Context, exists func(ctx context.Context, key string) (bool, error)) int {
	var removed int
	for _, parent := range t.parents() {
		if ctx.Err() != nil {
			return removed
		}
		ok, err := exists(ctx, parent)
		if err != nil {
			// Store trouble; leave the entry for the next pass.
			continue
		}
		if !ok {
			t.mu.Lock()
			delete(t.dependents, parent)
			t.mu.Unlock()
			removed++
		}
	}
	return removed
}

// Size returns the current number of tracked parents and tags.
func (t *DependencyTracker) Size() (parents, tags int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.dependents), len(t.tagKeys)
}
