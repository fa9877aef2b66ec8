package tenantcache

import (
	"context"
	"time"

	"github.com/staylink/tenantcache/internal/types"
)

// HealthStatus represents the overall health state.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthMetrics describes the engine's health at a point in time.
type HealthMetrics struct {
	Status         HealthStatus `json:"status"`
	StoreConnected bool         `json:"store_connected"`
	CircuitState   string       `json:"circuit_state,omitempty"`
	StoreErrors    int64        `json:"store_errors"`
	QueueDepth     int          `json:"queue_depth"`
	QueueCapacity  int          `json:"queue_capacity"`
	Timestamp      time.Time    `json:"timestamp"`
}

// Health probes the backing store and reports overall engine health. The
// engine is degraded, not unhealthy, when only the store is unreachable:
// reads still serve from the local layer and writes fail fast.
func (e *Engine) Health(ctx context.Context) HealthMetrics {
	h := HealthMetrics{
		Timestamp:     time.Now(),
		QueueDepth:    e.manager.QueueDepth(),
		QueueCapacity: e.cfg.Events.QueueSize,
	}

	if e.closed.Load() {
		h.Status = HealthStatusUnhealthy
		return h
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	h.StoreConnected = e.store.Ping(pingCtx) == nil && e.store.IsAvailable()

	if stats, ok := e.store.(types.StoreStats); ok {
		h.CircuitState = stats.CircuitState()
		h.StoreErrors = stats.ErrorCount()
	}

	if h.StoreConnected {
		h.Status = HealthStatusHealthy
	} else {
		h.Status = HealthStatusDegraded
	}
	return h
}
