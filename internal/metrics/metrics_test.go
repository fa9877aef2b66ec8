package metrics

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerCounters(t *testing.T) {
	tr := NewTracker()

	tr.RecordHit("local", time.Millisecond)
	tr.RecordHit("local", time.Millisecond)
	tr.RecordHit("redis", 2*time.Millisecond)
	tr.RecordMiss("redis", 3*time.Millisecond)
	tr.RecordMiss("local", time.Millisecond)
	tr.RecordSet("hotel-1", 512, time.Millisecond)
	tr.RecordSet("hotel-1", 256, time.Millisecond)
	tr.RecordDelete("hotel-1", time.Millisecond)
	tr.RecordEviction("hotel-1", 5)
	tr.RecordQuotaRejection("hotel-1", "quota")
	tr.RecordEventProcessed("data_change", time.Millisecond)
	tr.RecordEventDropped("data_change")
	tr.RecordInvalidation("key_pattern", 3)
	tr.RecordWarming("warm_config", true, time.Millisecond)
	tr.RecordWarming("warm_config", false, time.Millisecond)
	tr.RecordError("store", "get", errors.New("boom"))
	tr.RecordCircuitBreakerStateChange("closed", "open")

	s := tr.Snapshot()
	assert.EqualValues(t, 2, s.LocalHits)
	assert.EqualValues(t, 1, s.RedisHits)
	assert.EqualValues(t, 1, s.RedisMisses)
	assert.EqualValues(t, 1, s.LocalMisses)
	assert.EqualValues(t, 2, s.Sets)
	assert.EqualValues(t, 768, s.BytesWritten)
	assert.EqualValues(t, 1, s.Deletes)
	assert.EqualValues(t, 5, s.Evictions)
	assert.EqualValues(t, 1, s.QuotaRejections)
	assert.EqualValues(t, 1, s.EventsProcessed)
	assert.EqualValues(t, 1, s.EventsDropped)
	assert.EqualValues(t, 1, s.Invalidations)
	assert.EqualValues(t, 3, s.InvalidatedKeys)
	assert.EqualValues(t, 1, s.WarmingSuccesses)
	assert.EqualValues(t, 1, s.WarmingFailures)
	assert.EqualValues(t, 1, s.Errors)
	assert.EqualValues(t, 1, s.CircuitStateChanges)
	assert.False(t, s.Timestamp.IsZero())
}

func TestTrackerHitRatio(t *testing.T) {
	tr := NewTracker()
	assert.Zero(t, tr.Snapshot().HitRatio(), "no traffic means ratio 0")

	// 3 hits, 1 redis miss.
	tr.RecordHit("local", time.Millisecond)
	tr.RecordHit("local", time.Millisecond)
	tr.RecordHit("redis", time.Millisecond)
	tr.RecordMiss("redis", time.Millisecond)

	assert.InDelta(t, 0.75, tr.Snapshot().HitRatio(), 0.001)
}

func TestTrackerLatencyPercentiles(t *testing.T) {
	tr := NewTracker()

	for i := 1; i <= 100; i++ {
		tr.RecordHit("redis", time.Duration(i)*time.Millisecond)
	}

	s := tr.Snapshot()
	assert.InDelta(t, 50.5, s.AvgLatencyMs, 1.0)
	assert.InDelta(t, 50, s.P50LatencyMs, 2.0)
	assert.InDelta(t, 95, s.P95LatencyMs, 2.0)
	assert.InDelta(t, 99, s.P99LatencyMs, 2.0)

	t.Run("buffer wraps without losing bounds", func(t *testing.T) {
		wrap := NewTracker()
		for i := 0; i < defaultLatencyBufferSize+500; i++ {
			wrap.RecordHit("redis", time.Millisecond)
		}
		assert.InDelta(t, 1.0, wrap.Snapshot().P99LatencyMs, 0.001)
	})
}

func TestTrackerReset(t *testing.T) {
	tr := NewTracker()
	tr.RecordHit("redis", time.Millisecond)
	tr.RecordSet("hotel-1", 100, time.Millisecond)

	tr.Reset()

	s := tr.Snapshot()
	assert.Zero(t, s.RedisHits)
	assert.Zero(t, s.Sets)
	assert.Zero(t, s.BytesWritten)
	assert.Zero(t, s.AvgLatencyMs)
}

func TestTrackerConcurrentRecording(t *testing.T) {
	tr := NewTracker()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				tr.RecordHit("redis", time.Millisecond)
				tr.RecordMiss("redis", time.Millisecond)
			}
		}()
	}
	wg.Wait()

	s := tr.Snapshot()
	assert.EqualValues(t, 8000, s.RedisHits)
	assert.EqualValues(t, 8000, s.RedisMisses)
}

func TestTags(t *testing.T) {
	assert.Equal(t, "layer:redis", LayerTag("redis"))
	assert.Equal(t, "tenant:hotel-42", TenantTag("hotel-42"))
	assert.Equal(t, "scope:key_pattern", ScopeTag("key_pattern"))
	assert.Equal(t, "event_type:data_change", EventTypeTag("data_change"))
	assert.Equal(t, "function:warm_config", FunctionTag("warm_config"))
	assert.Equal(t, "circuit_state:open", CircuitStateTag("open"))
}

func TestLoggingPublisher(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	p := NewLoggingPublisher(logger, "env:test")
	p.Gauge("cache.hit_ratio", 0.9, "tenant:hotel-42")
	p.Incr("events.dropped")
	p.Count("invalidation.keys", 3)
	p.Timing("latency", 5*time.Millisecond)
	p.Event("degraded", "backing store unreachable", "warning")
	require.NoError(t, p.Close())

	out := buf.String()
	assert.Contains(t, out, "cache.hit_ratio")
	assert.Contains(t, out, "env:test")
	assert.Contains(t, out, "tenant:hotel-42")
	assert.Contains(t, out, "events.dropped")
	assert.Contains(t, out, "degraded")
}

// capturingPublisher records every gauge it receives.
type capturingPublisher struct {
	NoOpPublisher
	mu     sync.Mutex
	gauges map[string]float64
}

func (p *capturingPublisher) Gauge(name string, value float64, tags ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gauges == nil {
		p.gauges = make(map[string]float64)
	}
	p.gauges[name] = value
}

func TestBackgroundPublisher(t *testing.T) {
	tr := NewTracker()
	tr.RecordHit("local", time.Millisecond)
	tr.RecordSet("hotel-1", 100, time.Millisecond)
	tr.RecordEventDropped("data_change")

	capture := &capturingPublisher{}
	bp := NewBackgroundPublisher(capture, time.Hour, tr.Snapshot, nil)
	bp.PublishNow()

	capture.mu.Lock()
	defer capture.mu.Unlock()
	assert.Equal(t, 1.0, capture.gauges["cache.hits.local"])
	assert.Equal(t, 1.0, capture.gauges["cache.sets"])
	assert.Equal(t, 100.0, capture.gauges["cache.bytes_written"])
	assert.Equal(t, 1.0, capture.gauges["events.dropped"])
	assert.Contains(t, capture.gauges, "cache.hit_ratio")
	assert.Contains(t, capture.gauges, "latency.p95_ms")
}

func TestBackgroundPublisherLifecycle(t *testing.T) {
	capture := &capturingPublisher{}
	bp := NewBackgroundPublisher(capture, 5*time.Millisecond, NewNoOpTracker().Snapshot, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bp.Start(ctx)
	assert.Eventually(t, func() bool {
		capture.mu.Lock()
		defer capture.mu.Unlock()
		return len(capture.gauges) > 0
	}, 2*time.Second, 5*time.Millisecond)
	bp.Stop()
}
