// Package warming schedules cache re-population. Warming is always
// best-effort: failures are logged and counted, never propagated to the
// invalidation path it piggy-backs on. Reactive warms that arrive while the
// concurrency budget is exhausted are skipped and counted, not queued, so a
// burst of invalidations can never stall the event loop behind warming work;
// only the explicit WarmKey call waits for a slot.
package warming

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/semaphore"

	"github.com/staylink/tenantcache/internal/config"
	"github.com/staylink/tenantcache/internal/types"
)

// Stats is a point-in-time snapshot of scheduler activity.
type Stats struct {
	Scheduled int64 `json:"scheduled"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
	Skipped   int64 `json:"skipped"`
	Tasks     int   `json:"tasks"`
	Functions int   `json:"functions"`
}

// Scheduler matches event keys against registered warming tasks and runs
// their bound warming functions under a concurrency budget. Functions are
// resolved from an instance-local name registry, never module-level state.
type Scheduler struct {
	cfg     *config.WarmingConfig
	logger  *slog.Logger
	metrics types.MetricsRecorder

	mu        sync.RWMutex
	functions map[string]types.WarmingFunc
	tasks     map[string]*types.WarmingTask // keyed by KeyPattern

	sem *semaphore.Weighted

	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
	wg             sync.WaitGroup
	started        atomic.Bool
	closed         atomic.Bool

	scheduled atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	skipped   atomic.Int64
}

// NewScheduler creates a scheduler seeded with the given warming functions.
func NewScheduler(cfg *config.WarmingConfig, logger *slog.Logger, metrics types.MetricsRecorder, funcs map[string]types.WarmingFunc) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cfg:            cfg,
		logger:         logger.With("component", "warming-scheduler"),
		metrics:        metrics,
		functions:      make(map[string]types.WarmingFunc, len(funcs)),
		tasks:          make(map[string]*types.WarmingTask),
		sem:            semaphore.NewWeighted(int64(maxConcurrent)),
		shutdownCtx:    shutdownCtx,
		shutdownCancel: shutdownCancel,
	}
	for name, fn := range funcs {
		s.functions[name] = fn
	}
	return s
}

// Start launches the proactive warming loop when warming is enabled.
func (s *Scheduler) Start() {
	if s.started.Swap(true) || s.closed.Load() {
		return
	}
	if !s.cfg.Enabled || s.cfg.ProactiveInterval <= 0 {
		return
	}
	s.wg.Add(1)
	go s.proactiveLoop()
}

// Stop cancels background work and waits for in-flight warms, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.closed.Swap(true) {
		return nil
	}
	s.shutdownCancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return types.ErrShutdownTimeout
	}
}

// RegisterFunction binds a name to a warming function, replacing any
// previous binding.
func (s *Scheduler) RegisterFunction(name string, fn types.WarmingFunc) error {
	if name == "" || fn == nil {
		return fmt.Errorf("%w: name and function are required", types.ErrInvalidWarmingTask)
	}
	s.mu.Lock()
	s.functions[name] = fn
	s.mu.Unlock()
	s.logger.Info("Warming function registered", "function", name)
	return nil
}

// AddTask validates and installs a task, replacing any task with the same
// key pattern. The bound function must already be registered.
func (s *Scheduler) AddTask(task *types.WarmingTask) error {
	if task == nil {
		return types.ErrInvalidWarmingTask
	}
	if err := task.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.functions[task.Function]; !ok {
		return fmt.Errorf("%w: %s", types.ErrUnknownWarmingFunc, task.Function)
	}
	s.tasks[task.KeyPattern] = task
	s.logger.Info("Warming task installed",
		"pattern", task.KeyPattern,
		"function", task.Function,
		"priority", task.Priority,
	)
	return nil
}

// RemoveTask uninstalls the task registered under the key pattern.
func (s *Scheduler) RemoveTask(keyPattern string) {
	s.mu.Lock()
	delete(s.tasks, keyPattern)
	s.mu.Unlock()
}

// Tasks returns a snapshot of the installed tasks.
func (s *Scheduler) Tasks() []*types.WarmingTask {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tasks := make([]*types.WarmingTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	return tasks
}

// Stats returns a snapshot of the warming counters.
func (s *Scheduler) Stats() Stats {
	s.mu.RLock()
	tasks, functions := len(s.tasks), len(s.functions)
	s.mu.RUnlock()
	return Stats{
		Scheduled: s.scheduled.Load(),
		Succeeded: s.succeeded.Load(),
		Failed:    s.failed.Load(),
		Skipped:   s.skipped.Load(),
		Tasks:     tasks,
		Functions: functions,
	}
}

// CheckEvent is the reactive trigger: the event key is matched against every
// enabled task and matching tasks are warmed in the background.
func (s *Scheduler) CheckEvent(ctx context.Context, event *types.CacheEvent) {
	if !s.cfg.Enabled || event == nil || event.Key == "" || s.closed.Load() {
		return
	}

	s.mu.RLock()
	var matched []*types.WarmingTask
	for _, task := range s.tasks {
		if task.Enabled && task.Matches(event.Key) {
			matched = append(matched, task)
		}
	}
	s.mu.RUnlock()

	for _, task := range matched {
		s.schedule(task, event.Key)
	}
}

// WarmKey runs the task registered under keyPattern against key, waiting for
// completion. Used by the explicit warming entry points.
func (s *Scheduler) WarmKey(ctx context.Context, keyPattern, key string) error {
	s.mu.RLock()
	task := s.tasks[keyPattern]
	s.mu.RUnlock()
	if task == nil {
		return fmt.Errorf("%w: no warming task for pattern %q", types.ErrInvalidWarmingTask, keyPattern)
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.sem.Release(1)

	return s.warm(ctx, task, key)
}

// schedule runs a warm in the background under the concurrency budget.
// When the budget is exhausted the warm is skipped rather than queued.
func (s *Scheduler) schedule(task *types.WarmingTask, key string) {
	if !s.sem.TryAcquire(1) {
		s.skipped.Add(1)
		s.logger.Debug("Warming budget exhausted, skipping",
			"pattern", task.KeyPattern, "key", key)
		return
	}

	s.scheduled.Add(1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.sem.Release(1)
		if err := s.warm(s.shutdownCtx, task, key); err != nil {
			s.logger.Warn("Warming failed",
				"pattern", task.KeyPattern,
				"function", task.Function,
				"key", key,
				"error", err,
			)
		}
	}()
}

// warm resolves and runs the task's function with constant-interval retries.
// An unregistered function is counted as a failure and skipped.
func (s *Scheduler) warm(ctx context.Context, task *types.WarmingTask, key string) error {
	s.mu.RLock()
	fn := s.functions[task.Function]
	s.mu.RUnlock()

	s.mu.Lock()
	task.Attempts++
	task.LastAttempt = time.Now()
	s.mu.Unlock()

	if fn == nil {
		s.failed.Add(1)
		s.logger.Warn("Warming function not registered",
			"function", task.Function, "pattern", task.KeyPattern)
		return fmt.Errorf("%w: %s", types.ErrUnknownWarmingFunc, task.Function)
	}

	start := time.Now()

	var b backoff.BackOff
	if task.RetryCount > 0 && task.RetryDelay > 0 {
		b = backoff.WithMaxRetries(backoff.NewConstantBackOff(task.RetryDelay), uint64(task.RetryCount))
	} else {
		b = &backoff.StopBackOff{}
	}

	err := backoff.Retry(func() error {
		return fn(ctx, key)
	}, backoff.WithContext(b, ctx))

	latency := time.Since(start)
	if s.metrics != nil {
		s.metrics.RecordWarming(task.Function, err == nil, latency)
	}

	if err != nil {
		s.failed.Add(1)
		return err
	}

	s.succeeded.Add(1)
	s.mu.Lock()
	task.LastSuccess = time.Now()
	s.mu.Unlock()

	s.logger.Debug("Warming complete",
		"function", task.Function, "key", key, "latency", latency)
	return nil
}

// proactiveLoop periodically looks for re-warming work. Enumerating keys
// nearing expiry requires a key index the backing store does not provide, so
// the pass currently only reports task health.
// TODO: drive this from the per-tenant usage counters once they track expiry
// horizons.
func (s *Scheduler) proactiveLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.ProactiveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.shutdownCtx.Done():
			return
		case <-ticker.C:
			s.mu.RLock()
			enabled := 0
			for _, t := range s.tasks {
				if t.Enabled {
					enabled++
				}
			}
			s.mu.RUnlock()
			s.logger.Debug("Proactive warming pass", "enabled_tasks", enabled)
		}
	}
}
