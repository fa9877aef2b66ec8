package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// BackgroundPublisher ships tracker snapshots to a publisher at regular
// intervals with context-based cancellation.
type BackgroundPublisher struct {
	publisher   Publisher
	logger      *slog.Logger
	getSnapshot func() Snapshot
	cancel      context.CancelFunc
	ctx         context.Context
	wg          sync.WaitGroup
	interval    time.Duration
}

// NewBackgroundPublisher creates a background publisher. snapshotFn is
// called on each interval to read the current counters.
func NewBackgroundPublisher(
	publisher Publisher,
	interval time.Duration,
	snapshotFn func() Snapshot,
	logger *slog.Logger,
) *BackgroundPublisher {
	if logger == nil {
		logger = slog.Default()
	}

	return &BackgroundPublisher{
		publisher:   publisher,
		interval:    interval,
		logger:      logger.With("component", "metrics-background"),
		getSnapshot: snapshotFn,
	}
}

// Start begins the background publishing loop. The provided context controls
// the lifecycle of the goroutine.
func (b *BackgroundPublisher) Start(ctx context.Context) {
	b.ctx, b.cancel = context.WithCancel(ctx)
	b.wg.Add(1)
	go b.run()
	b.logger.Info("Background metrics publisher started", "interval", b.interval)
}

// Stop cancels the background context and waits for shutdown.
func (b *BackgroundPublisher) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()
	b.logger.Info("Background metrics publisher stopped")
}

func (b *BackgroundPublisher) run() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.ctx.Done():
			// Final publish before stopping
			b.publish()
			return
		case <-ticker.C:
			b.publish()
		}
	}
}

func (b *BackgroundPublisher) publish() {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Recovered from panic in metrics publisher", "panic", r)
		}
	}()

	if b.getSnapshot == nil {
		return
	}
	s := b.getSnapshot()

	b.publisher.Gauge("cache.hits.local", float64(s.LocalHits))
	b.publisher.Gauge("cache.hits.redis", float64(s.RedisHits))
	b.publisher.Gauge("cache.misses.local", float64(s.LocalMisses))
	b.publisher.Gauge("cache.misses.redis", float64(s.RedisMisses))
	b.publisher.Gauge("cache.hit_ratio", s.HitRatio())
	b.publisher.Gauge("cache.sets", float64(s.Sets))
	b.publisher.Gauge("cache.deletes", float64(s.Deletes))
	b.publisher.Gauge("cache.evictions", float64(s.Evictions))
	b.publisher.Gauge("cache.quota_rejections", float64(s.QuotaRejections))
	b.publisher.Gauge("cache.bytes_written", float64(s.BytesWritten))
	b.publisher.Gauge("events.processed", float64(s.EventsProcessed))
	b.publisher.Gauge("events.dropped", float64(s.EventsDropped))
	b.publisher.Gauge("invalidation.runs", float64(s.Invalidations))
	b.publisher.Gauge("invalidation.keys", float64(s.InvalidatedKeys))
	b.publisher.Gauge("warming.successes", float64(s.WarmingSuccesses))
	b.publisher.Gauge("warming.failures", float64(s.WarmingFailures))
	b.publisher.Gauge("errors.total", float64(s.Errors))
	b.publisher.Gauge("circuit.state_changes", float64(s.CircuitStateChanges))
	b.publisher.Gauge("latency.avg_ms", s.AvgLatencyMs)
	b.publisher.Gauge("latency.p95_ms", s.P95LatencyMs)
	b.publisher.Gauge("latency.p99_ms", s.P99LatencyMs)
}

// PublishNow triggers an immediate metrics publish.
func (b *BackgroundPublisher) PublishNow() {
	b.publish()
}
