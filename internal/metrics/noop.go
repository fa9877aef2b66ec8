package metrics

import (
	"time"

	"github.com/staylink/tenantcache/internal/types"
)

// NoOpTracker is a no-operation metrics recorder for testing or when
// metrics are disabled.
type NoOpTracker struct{}

// NewNoOpTracker creates a new no-op tracker.
func NewNoOpTracker() *NoOpTracker {
	return &NoOpTracker{}
}

func (t *NoOpTracker) RecordHit(layer string, latency time.Duration)                {}
func (t *NoOpTracker) RecordMiss(layer string, latency time.Duration)               {}
func (t *NoOpTracker) RecordSet(tenantID string, size int, latency time.Duration)   {}
func (t *NoOpTracker) RecordDelete(tenantID string, latency time.Duration)          {}
func (t *NoOpTracker) RecordEviction(tenantID string, count int)                    {}
func (t *NoOpTracker) RecordQuotaRejection(tenantID string, reason string)          {}
func (t *NoOpTracker) RecordEventProcessed(eventType string, latency time.Duration) {}
func (t *NoOpTracker) RecordEventDropped(eventType string)                          {}
func (t *NoOpTracker) RecordInvalidation(scope string, keys int64)                  {}
func (t *NoOpTracker) RecordWarming(function string, success bool, d time.Duration) {}
func (t *NoOpTracker) RecordError(component, op string, err error)                  {}
func (t *NoOpTracker) RecordCircuitBreakerStateChange(from, to string)              {}

// Snapshot returns an empty snapshot.
func (t *NoOpTracker) Snapshot() Snapshot { return Snapshot{} }

// Reset does nothing.
func (t *NoOpTracker) Reset() {}

// NoOpPublisher is a no-operation publisher for testing or when disabled.
type NoOpPublisher struct{}

// NewNoOpPublisher creates a new no-op publisher.
func NewNoOpPublisher() *NoOpPublisher {
	return &NoOpPublisher{}
}

func (p *NoOpPublisher) Gauge(name string, value float64, tags ...string)           {}
func (p *NoOpPublisher) Incr(name string, tags ...string)                           {}
func (p *NoOpPublisher) Count(name string, value int64, tags ...string)             {}
func (p *NoOpPublisher) Histogram(name string, value float64, tags ...string)       {}
func (p *NoOpPublisher) Timing(name string, duration time.Duration, tags ...string) {}
func (p *NoOpPublisher) Event(title, text, alertType string, tags ...string)        {}
func (p *NoOpPublisher) Close() error                                               { return nil }

var _ types.MetricsRecorder = (*NoOpTracker)(nil)
var _ Publisher = (*NoOpPublisher)(nil)
