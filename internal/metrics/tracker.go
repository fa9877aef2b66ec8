// Package metrics provides engine measurement collection and publishing.
package metrics

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/staylink/tenantcache/internal/types"
)

const defaultLatencyBufferSize = 10000

// Snapshot is a point-in-time view of the engine's counters with latency
// percentiles computed over a bounded window of recent operations.
type Snapshot struct {
	Timestamp time.Time `json:"timestamp"`

	LocalHits   int64 `json:"local_hits"`
	LocalMisses int64 `json:"local_misses"`
	RedisHits   int64 `json:"redis_hits"`
	RedisMisses int64 `json:"redis_misses"`

	Sets            int64 `json:"sets"`
	Deletes         int64 `json:"deletes"`
	Evictions       int64 `json:"evictions"`
	QuotaRejections int64 `json:"quota_rejections"`
	BytesWritten    int64 `json:"bytes_written"`

	EventsProcessed int64 `json:"events_processed"`
	EventsDropped   int64 `json:"events_dropped"`
	Invalidations   int64 `json:"invalidations"`
	InvalidatedKeys int64 `json:"invalidated_keys"`

	WarmingSuccesses int64 `json:"warming_successes"`
	WarmingFailures  int64 `json:"warming_failures"`

	Errors              int64 `json:"errors"`
	CircuitStateChanges int64 `json:"circuit_state_changes"`

	AvgLatencyMs float64 `json:"avg_latency_ms"`
	P50LatencyMs float64 `json:"p50_latency_ms"`
	P95LatencyMs float64 `json:"p95_latency_ms"`
	P99LatencyMs float64 `json:"p99_latency_ms"`
}

// HitRatio returns the combined hit ratio across both cache layers.
func (s Snapshot) HitRatio() float64 {
	hits := s.LocalHits + s.RedisHits
	total := hits + s.RedisMisses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// Tracker accumulates engine counters with atomics and recent operation
// latencies in a circular buffer. Safe for concurrent use; recording never
// blocks beyond a short buffer lock.
type Tracker struct {
	localHits   atomic.Int64
	localMisses atomic.Int64
	redisHits   atomic.Int64
	redisMisses atomic.Int64

	sets            atomic.Int64
	deletes         atomic.Int64
	evictions       atomic.Int64
	quotaRejections atomic.Int64
	bytesWritten    atomic.Int64

	eventsProcessed atomic.Int64
	eventsDropped   atomic.Int64
	invalidations   atomic.Int64
	invalidatedKeys atomic.Int64

	warmingSuccesses atomic.Int64
	warmingFailures  atomic.Int64

	errors         atomic.Int64
	cbStateChanges atomic.Int64

	latencyMu     sync.RWMutex
	latencyBuffer []time.Duration
	latencyIndex  int
	latencyCount  int
}

// NewTracker creates a tracker with the default latency window.
func NewTracker() *Tracker {
	return &Tracker{
		latencyBuffer: make([]time.Duration, defaultLatencyBufferSize),
	}
}

func (t *Tracker) RecordHit(layer string, latency time.Duration) {
	switch layer {
	case "local":
		t.localHits.Add(1)
	case "redis":
		t.redisHits.Add(1)
	}
	t.recordLatency(latency)
}

func (t *Tracker) RecordMiss(layer string, latency time.Duration) {
	switch layer {
	case "local":
		t.localMisses.Add(1)
	case "redis":
		t.redisMisses.Add(1)
	}
	t.recordLatency(latency)
}

func (t *Tracker) RecordSet(tenantID string, size int, latency time.Duration) {
	t.sets.Add(1)
	t.bytesWritten.Add(int64(size))
	t.recordLatency(latency)
}

func (t *Tracker) RecordDelete(tenantID string, latency time.Duration) {
	t.deletes.Add(1)
	t.recordLatency(latency)
}

func (t *Tracker) RecordEviction(tenantID string, count int) {
	t.evictions.Add(int64(count))
}

func (t *Tracker) RecordQuotaRejection(tenantID string, reason string) {
	t.quotaRejections.Add(1)
}

func (t *Tracker) RecordEventProcessed(eventType string, latency time.Duration) {
	t.eventsProcessed.Add(1)
}

func (t *Tracker) RecordEventDropped(eventType string) {
	t.eventsDropped.Add(1)
}

func (t *Tracker) RecordInvalidation(scope string, keys int64) {
	t.invalidations.Add(1)
	t.invalidatedKeys.Add(keys)
}

func (t *Tracker) RecordWarming(function string, success bool, latency time.Duration) {
	if success {
		t.warmingSuccesses.Add(1)
	} else {
		t.warmingFailures.Add(1)
	}
}

func (t *Tracker) RecordError(component, op string, err error) {
	t.errors.Add(1)
}

func (t *Tracker) RecordCircuitBreakerStateChange(from, to string) {
	t.cbStateChanges.Add(1)
}

// recordLatency adds a measurement to the circular buffer. O(1), no
// allocations.
func (t *Tracker) recordLatency(latency time.Duration) {
	t.latencyMu.Lock()
	t.latencyBuffer[t.latencyIndex] = latency
	t.latencyIndex = (t.latencyIndex + 1) % len(t.latencyBuffer)
	if t.latencyCount < len(t.latencyBuffer) {
		t.latencyCount++
	}
	t.latencyMu.Unlock()
}

// Snapshot returns the current counters and latency percentiles.
func (t *Tracker) Snapshot() Snapshot {
	t.latencyMu.RLock()
	count := t.latencyCount
	latencyCopy := make([]time.Duration, count)
	if count > 0 {
		if count < len(t.latencyBuffer) {
			copy(latencyCopy, t.latencyBuffer[:count])
		} else {
			// Buffer is full; oldest data starts at latencyIndex.
			firstPart := len(t.latencyBuffer) - t.latencyIndex
			copy(latencyCopy[:firstPart], t.latencyBuffer[t.latencyIndex:])
			copy(latencyCopy[firstPart:], t.latencyBuffer[:t.latencyIndex])
		}
	}
	t.latencyMu.RUnlock()

	snapshot := Snapshot{
		Timestamp:           time.Now(),
		LocalHits:           t.localHits.Load(),
		LocalMisses:         t.localMisses.Load(),
		RedisHits:           t.redisHits.Load(),
		RedisMisses:         t.redisMisses.Load(),
		Sets:                t.sets.Load(),
		Deletes:             t.deletes.Load(),
		Evictions:           t.evictions.Load(),
		QuotaRejections:     t.quotaRejections.Load(),
		BytesWritten:        t.bytesWritten.Load(),
		EventsProcessed:     t.eventsProcessed.Load(),
		EventsDropped:       t.eventsDropped.Load(),
		Invalidations:       t.invalidations.Load(),
		InvalidatedKeys:     t.invalidatedKeys.Load(),
		WarmingSuccesses:    t.warmingSuccesses.Load(),
		WarmingFailures:     t.warmingFailures.Load(),
		Errors:              t.errors.Load(),
		CircuitStateChanges: t.cbStateChanges.Load(),
	}

	if len(latencyCopy) > 0 {
		snapshot.AvgLatencyMs = durationMs(avgDuration(latencyCopy))
		snapshot.P50LatencyMs = durationMs(percentile(latencyCopy, 50))
		snapshot.P95LatencyMs = durationMs(percentile(latencyCopy, 95))
		snapshot.P99LatencyMs = durationMs(percentile(latencyCopy, 99))
	}

	return snapshot
}

// Reset clears all counters and the latency window.
func (t *Tracker) Reset() {
	t.localHits.Store(0)
	t.localMisses.Store(0)
	t.redisHits.Store(0)
	t.redisMisses.Store(0)
	t.sets.Store(0)
	t.deletes.Store(0)
	t.evictions.Store(0)
	t.quotaRejections.Store(0)
	t.bytesWritten.Store(0)
	t.eventsProcessed.Store(0)
	t.eventsDropped.Store(0)
	t.invalidations.Store(0)
	t.invalidatedKeys.Store(0)
	t.warmingSuccesses.Store(0)
	t.warmingFailures.Store(0)
	t.errors.Store(0)
	t.cbStateChanges.Store(0)

	t.latencyMu.Lock()
	t.latencyIndex = 0
	t.latencyCount = 0
	t.latencyMu.Unlock()
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func avgDuration(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range durations {
		total += d
	}
	return total / time.Duration(len(durations))
}

func percentile(durations []time.Duration, p int) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	slices.Sort(sorted)

	idx := (len(sorted) - 1) * p / 100
	return sorted[idx]
}

var _ types.MetricsRecorder = (*Tracker)(nil)
