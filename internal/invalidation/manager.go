package invalidation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/staylink/tenantcache/internal/config"
	"github.com/staylink/tenantcache/internal/types"
)

// EventObserver is notified after an event has been processed so that other
// components (the warming scheduler) can react to it. Implementations are
// best-effort and must not return errors.
type EventObserver interface {
	CheckEvent(ctx context.Context, event *types.CacheEvent)
}

// Stats is a point-in-time snapshot of the event processing loop.
type Stats struct {
	EventsProcessed int64 `json:"events_processed"`
	EventsDropped   int64 `json:"events_dropped"`
	Errors          int64 `json:"errors"`
	InvalidatedKeys int64 `json:"invalidated_keys"`
	QueueDepth      int   `json:"queue_depth"`
	QueueCapacity   int   `json:"queue_capacity"`
	Rules           int   `json:"rules"`
	TrackedParents  int   `json:"tracked_parents"`
	TrackedTags     int   `json:"tracked_tags"`
}

// Manager owns the invalidation rule registry, the bounded event queue and
// its worker pool, and the explicit invalidation entry points. It operates
// on backing-store keys as provided by event emitters.
type Manager struct {
	cfg     *config.Config
	store   types.Store
	tracker *DependencyTracker
	logger  *slog.Logger
	metrics types.MetricsRecorder

	mu    sync.RWMutex
	rules map[string]*types.InvalidationRule

	events chan *types.CacheEvent

	// sem bounds simultaneous explicit invalidations system-wide.
	sem *semaphore.Weighted

	// onInvalidate runs after each deleted key, used to drop local-cache
	// copies held by the owning engine.
	onInvalidate func(key string)
	observer     EventObserver

	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
	wg             sync.WaitGroup
	started        atomic.Bool
	closed         atomic.Bool

	processed       atomic.Int64
	dropped         atomic.Int64
	errors          atomic.Int64
	invalidatedKeys atomic.Int64
}

// NewManager creates a manager with the default rule set installed.
// Start must be called before events are consumed.
func NewManager(cfg *config.Config, store types.Store, tracker *DependencyTracker, logger *slog.Logger, metrics types.MetricsRecorder) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if tracker == nil {
		tracker = NewDependencyTracker()
	}
	maxConcurrent := cfg.Events.MaxConcurrentInvalidations
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:            cfg,
		store:          store,
		tracker:        tracker,
		logger:         logger.With("component", "invalidation-manager"),
		metrics:        metrics,
		rules:          make(map[string]*types.InvalidationRule),
		events:         make(chan *types.CacheEvent, cfg.Events.QueueSize),
		sem:            semaphore.NewWeighted(int64(maxConcurrent)),
		shutdownCtx:    shutdownCtx,
		shutdownCancel: shutdownCancel,
	}

	for _, rule := range DefaultRules() {
		if err := m.AddRule(rule); err != nil {
			// Default rules are static and validated by tests.
			m.logger.Error("Failed to install default rule", "rule", rule.Name, "error", err)
		}
	}
	return m
}

// SetOnInvalidate installs the per-key hook run after each deletion.
// Must be called before Start.
func (m *Manager) SetOnInvalidate(fn func(key string)) {
	m.onInvalidate = fn
}

// SetObserver installs the post-processing event observer.
// Must be called before Start.
func (m *Manager) SetObserver(obs EventObserver) {
	m.observer = obs
}

// Tracker returns the dependency tracker the manager consults for cascades.
func (m *Manager) Tracker() *DependencyTracker {
	return m.tracker
}

// Start launches the event workers and the dependency cleanup loop.
func (m *Manager) Start() {
	if m.started.Swap(true) || m.closed.Load() {
		return
	}

	workers := m.cfg.Events.Workers
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		m.wg.Add(1)
		go m.eventWorker(i)
	}

	if m.cfg.Dependencies.CleanupInterval > 0 {
		m.wg.Add(1)
		go m.cleanupWorker()
	}

	m.logger.Info("Invalidation manager started",
		"workers", workers,
		"queue_size", cap(m.events),
		"rules", len(m.Rules()),
	)
}

// Stop cancels the workers and waits for them to drain, bounded by ctx.
func (m *Manager) Stop(ctx context.Context) error {
	if m.closed.Swap(true) {
		return nil
	}
	m.shutdownCancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("Invalidation manager stopped",
			"events_processed", m.processed.Load(),
			"events_dropped", m.dropped.Load(),
		)
		return nil
	case <-ctx.Done():
		return types.ErrShutdownTimeout
	}
}

// AddRule validates and installs a rule, replacing any rule with the same name.
func (m *Manager) AddRule(rule *types.InvalidationRule) error {
	if rule == nil {
		return types.ErrInvalidRule
	}
	if err := rule.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.rules[rule.Name] = rule
	m.mu.Unlock()
	m.logger.Info("Invalidation rule installed",
		"rule", rule.Name, "trigger", rule.Trigger, "scope", rule.Scope)
	return nil
}

// RemoveRule uninstalls a rule by name.
func (m *Manager) RemoveRule(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rules[name]; !ok {
		return fmt.Errorf("%w: %s", types.ErrRuleNotFound, name)
	}
	delete(m.rules, name)
	return nil
}

// Rule returns the installed rule with the given name, or nil.
func (m *Manager) Rule(name string) *types.InvalidationRule {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rules[name]
}

// Rules returns a snapshot of the installed rules.
func (m *Manager) Rules() []*types.InvalidationRule {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rules := make([]*types.InvalidationRule, 0, len(m.rules))
	for _, r := range m.rules {
		rules = append(rules, r)
	}
	return rules
}

// EmitEvent enqueues an event without blocking. When the queue is full the
// event is dropped, a warning is logged and ErrEventQueueFull is returned;
// emitters must never be slowed by a saturated invalidation pipeline.
func (m *Manager) EmitEvent(event *types.CacheEvent) error {
	if event == nil {
		return nil
	}
	if m.closed.Load() {
		return types.ErrClosed
	}

	select {
	case m.events <- event:
		return nil
	default:
		m.dropped.Add(1)
		if m.metrics != nil {
			m.metrics.RecordEventDropped(event.Type)
		}
		m.logger.Warn("Event queue full, dropping event",
			"event_id", event.ID,
			"event_type", event.Type,
			"key", event.Key,
		)
		return types.ErrEventQueueFull
	}
}

// QueueDepth returns the number of events waiting to be processed.
func (m *Manager) QueueDepth() int {
	return len(m.events)
}

// Stats returns a snapshot of the processing counters.
func (m *Manager) Stats() Stats {
	parents, tags := m.tracker.Size()
	return Stats{
		EventsProcessed: m.processed.Load(),
		EventsDropped:   m.dropped.Load(),
		Errors:          m.errors.Load(),
		InvalidatedKeys: m.invalidatedKeys.Load(),
		QueueDepth:      len(m.events),
		QueueCapacity:   cap(m.events),
		Rules:           len(m.Rules()),
		TrackedParents:  parents,
		TrackedTags:     tags,
	}
}

// eventWorker pulls events until shutdown, then drains whatever is queued
// with a short poll timeout so Stop stays responsive.
func (m *Manager) eventWorker(id int) {
	defer m.wg.Done()

	logger := m.logger.With("worker", id)
	logger.Debug("Event worker started")

	poll := m.cfg.Events.PollInterval
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}

	for {
		select {
		case event := <-m.events:
			m.processEvent(m.shutdownCtx, event)

		case <-m.shutdownCtx.Done():
			for {
				select {
				case event := <-m.events:
					m.processEvent(context.Background(), event)
				case <-time.After(poll):
					logger.Debug("Event worker stopped")
					return
				}
			}
		}
	}
}

// processEvent runs one event through rule matching and invalidation. A
// failure is counted and logged, never propagated; the loop must survive any
// single event.
func (m *Manager) processEvent(ctx context.Context, event *types.CacheEvent) {
	if event == nil {
		return
	}
	start := time.Now()
	event.Attempts++

	matched := m.findMatchingRules(event)
	for _, rule := range matched {
		if rule.Delay > 0 {
			select {
			case <-time.After(rule.Delay):
			case <-ctx.Done():
				return
			}
		}
		if err := m.executeRule(ctx, rule, event); err != nil {
			m.errors.Add(1)
			if m.metrics != nil {
				m.metrics.RecordError("invalidation", "execute_rule", err)
			}
			m.logger.Error("Rule execution failed",
				"rule", rule.Name,
				"event_id", event.ID,
				"event_type", event.Type,
				"error", err,
			)
		}
	}

	if m.observer != nil {
		m.observer.CheckEvent(ctx, event)
	}

	m.processed.Add(1)
	if m.metrics != nil {
		m.metrics.RecordEventProcessed(event.Type, time.Since(start))
	}
}

// findMatchingRules returns the enabled event_driven rules that apply to the
// event, either by key match or by tag intersection.
func (m *Manager) findMatchingRules(event *types.CacheEvent) []*types.InvalidationRule {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*types.InvalidationRule
	for _, rule := range m.rules {
		if !rule.Enabled || rule.Trigger != types.TriggerEventDriven {
			continue
		}
		if event.Key != "" && rule.MatchesKey(event.Key, event.Tags) {
			matched = append(matched, rule)
			continue
		}
		if rule.MatchesTags(event.Tags) {
			matched = append(matched, rule)
		}
	}
	return matched
}

// executeRule performs the invalidation a matched rule calls for.
func (m *Manager) executeRule(ctx context.Context, rule *types.InvalidationRule, event *types.CacheEvent) error {
	switch rule.Scope {
	case types.ScopeSingleKey:
		if event.Key == "" {
			return nil
		}
		deleted, err := m.deleteKey(ctx, event.Key, true)
		m.recordInvalidation(string(rule.Scope), deleted)
		return err

	case types.ScopeKeyPattern:
		// Events may name only the changed key; the deletion still has to
		// sweep the key's whole family (hotel:42:config, hotel:42:config:*).
		pattern := event.Pattern
		if pattern == "" && event.Key != "" {
			pattern = event.Key + "*"
		}
		if pattern == "" {
			return nil
		}
		deleted, err := m.deletePattern(ctx, pattern, rule.BatchSize)
		m.recordInvalidation(string(rule.Scope), deleted)
		return err

	case types.ScopeTagBased:
		tags := intersectTags(rule.Tags, event.Tags)
		if len(tags) == 0 {
			tags = rule.Tags
		}
		deleted, err := m.deleteTagged(ctx, tags, rule.BatchSize)
		m.recordInvalidation(string(rule.Scope), deleted)
		return err

	case types.ScopeDependencyTree:
		if event.Key == "" {
			return nil
		}
		deleted, err := m.deleteKey(ctx, event.Key, true)
		m.recordInvalidation(string(rule.Scope), deleted)
		return err

	case types.ScopeNamespace, types.ScopeGlobal:
		pattern := event.Pattern
		if pattern == "" {
			pattern = rule.Pattern
		}
		if pattern == "" {
			m.logger.Warn("Rule without a pattern matched, skipping",
				"rule", rule.Name, "scope", rule.Scope)
			return nil
		}
		deleted, err := m.deletePattern(ctx, pattern, rule.BatchSize)
		m.recordInvalidation(string(rule.Scope), deleted)
		return err

	default:
		return fmt.Errorf("%w: rule %q has unknown scope %q", types.ErrInvalidRule, rule.Name, rule.Scope)
	}
}

// InvalidateKey deletes a single backing-store key, cascading to registered
// dependents when cascade is true. Bounded by the invalidation semaphore.
func (m *Manager) InvalidateKey(ctx context.Context, key string, cascade bool) (int64, error) {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return 0, err
	}
	defer m.sem.Release(1)

	deleted, err := m.deleteKey(ctx, key, cascade)
	m.recordInvalidation("single_key", deleted)
	return deleted, err
}

// CascadeDependents deletes every transitive dependent of a key that the
// caller has already removed, then clears the key's tracker state. Bounded
// by the invalidation semaphore.
func (m *Manager) CascadeDependents(ctx context.Context, key string) (int64, error) {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return 0, err
	}
	defer m.sem.Release(1)

	visited := map[string]struct{}{key: {}}
	deleted := m.cascade(ctx, key, visited)
	m.dropKey(key)
	m.recordInvalidation("cascade", deleted)
	return deleted, nil
}

// InvalidatePattern deletes every key matching a glob pattern. Bounded by
// the invalidation semaphore.
func (m *Manager) InvalidatePattern(ctx context.Context, pattern string) (int64, error) {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return 0, err
	}
	defer m.sem.Release(1)

	deleted, err := m.deletePattern(ctx, pattern, m.cfg.Events.InvalidationBatchSize)
	m.recordInvalidation("key_pattern", deleted)
	return deleted, err
}

// InvalidateByTags deletes every key registered under any of the tags in the
// dependency tracker. Bounded by the invalidation semaphore.
func (m *Manager) InvalidateByTags(ctx context.Context, tags []string) (int64, error) {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return 0, err
	}
	defer m.sem.Release(1)

	deleted, err := m.deleteTagged(ctx, tags, m.cfg.Events.InvalidationBatchSize)
	m.recordInvalidation("tag_based", deleted)
	return deleted, err
}

// deleteKey removes one key and, when cascade is set, every transitive
// dependent. Per-dependent failures are logged and do not abort the cascade.
// Tracker state for a key is cleared only after its dependents have been
// walked, since dropping it discards the dependent set.
func (m *Manager) deleteKey(ctx context.Context, key string, cascade bool) (int64, error) {
	deleted, err := m.store.Delete(ctx, key)
	if err != nil {
		return 0, err
	}
	if cascade {
		visited := map[string]struct{}{key: {}}
		deleted += m.cascade(ctx, key, visited)
	}
	m.dropKey(key)
	return deleted, nil
}

// cascade deletes the dependents of key depth-first. The visited set guards
// against dependency cycles.
func (m *Manager) cascade(ctx context.Context, key string, visited map[string]struct{}) int64 {
	var deleted int64
	for _, dep := range m.tracker.Dependents(key) {
		if _, seen := visited[dep]; seen {
			continue
		}
		visited[dep] = struct{}{}

		n, err := m.store.Delete(ctx, dep)
		if err != nil {
			m.logger.Warn("Cascade delete failed",
				"parent", key, "dependent", dep, "error", err)
			continue
		}
		deleted += n
		deleted += m.cascade(ctx, dep, visited)
		m.dropKey(dep)
	}
	return deleted
}

// deletePattern scans the store for matching keys and deletes them in batches.
func (m *Manager) deletePattern(ctx context.Context, pattern string, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 100
	}

	var deleted int64
	err := m.store.Scan(ctx, pattern, func(keys []string) error {
		for start := 0; start < len(keys); start += batchSize {
			end := start + batchSize
			if end > len(keys) {
				end = len(keys)
			}
			n, err := m.store.DeleteMany(ctx, keys[start:end])
			if err != nil {
				return err
			}
			deleted += n
			for _, k := range keys[start:end] {
				m.dropKey(k)
			}
		}
		return nil
	})
	return deleted, err
}

// deleteTagged deletes the keys the tracker has registered under the tags.
func (m *Manager) deleteTagged(ctx context.Context, tags []string, batchSize int) (int64, error) {
	keys := m.tracker.KeysForTags(tags)
	if len(keys) == 0 {
		return 0, nil
	}
	if batchSize <= 0 {
		batchSize = 100
	}

	var deleted int64
	for start := 0; start < len(keys); start += batchSize {
		end := start + batchSize
		if end > len(keys) {
			end = len(keys)
		}
		n, err := m.store.DeleteMany(ctx, keys[start:end])
		if err != nil {
			return deleted, err
		}
		deleted += n
		for _, k := range keys[start:end] {
			m.dropKey(k)
		}
	}
	return deleted, nil
}

// dropKey clears per-instance state for a deleted key.
func (m *Manager) dropKey(key string) {
	m.tracker.RemoveKey(key)
	if m.onInvalidate != nil {
		m.onInvalidate(key)
	}
}

func (m *Manager) recordInvalidation(scope string, keys int64) {
	if keys > 0 {
		m.invalidatedKeys.Add(keys)
	}
	if m.metrics != nil {
		m.metrics.RecordInvalidation(scope, keys)
	}
}

// cleanupWorker periodically drops tracked parents whose keys no longer
// exist in the backing store.
func (m *Manager) cleanupWorker() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.Dependencies.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.shutdownCtx.Done():
			return
		case <-ticker.C:
			removed := m.tracker.Cleanup(m.shutdownCtx, m.store.Exists)
			if removed > 0 {
				m.logger.Debug("Dependency cleanup pass complete", "removed", removed)
			}
		}
	}
}

func intersectTags(a, b []string) []string {
	var out []string
	for _, x := range a {
		for _, y := range b {
			if x == y {
				out = append(out, x)
				break
			}
		}
	}
	return out
}
