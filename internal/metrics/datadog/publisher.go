// Package datadog provides a DataDog StatsD metrics publisher.
package datadog

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"

	"github.com/staylink/tenantcache/internal/config"
	"github.com/staylink/tenantcache/internal/metrics"
)

// Publisher ships metrics to a DataDog agent over StatsD.
//
//nolint:govet // Small struct - minimal alignment benefit
type Publisher struct {
	baseTags []string
	client   *statsd.Client
	logger   *slog.Logger
	config   *config.DataDogConfig
}

// NewPublisher creates a DataDog publisher from config. When DataDog is not
// enabled a NoOpPublisher is returned instead.
func NewPublisher(cfg *config.DataDogConfig, logger *slog.Logger) (metrics.Publisher, error) {
	if !cfg.Enabled {
		return metrics.NewNoOpPublisher(), nil
	}

	if logger == nil {
		logger = slog.Default()
	}

	addr := fmt.Sprintf("%s:%d", cfg.AgentHost, cfg.Port)

	client, err := statsd.New(addr,
		statsd.WithNamespace(cfg.Prefix+"."),
		statsd.WithTags(cfg.Tags),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create statsd client: %w", err)
	}

	logger.Info("DataDog publisher initialized",
		"address", addr,
		"prefix", cfg.Prefix,
		"tags", cfg.Tags,
	)

	return &Publisher{
		client:   client,
		config:   cfg,
		baseTags: cfg.Tags,
		logger:   logger.With("component", "datadog"),
	}, nil
}

// Gauge records a gauge metric (value at a point in time).
func (p *Publisher) Gauge(name string, value float64, tags ...string) {
	if err := p.client.Gauge(name, value, p.mergeTags(tags), 1); err != nil {
		p.logger.Debug("Failed to send gauge metric", "name", name, "error", err)
	}
}

// Incr increments a counter by 1.
func (p *Publisher) Incr(name string, tags ...string) {
	if err := p.client.Incr(name, p.mergeTags(tags), 1); err != nil {
		p.logger.Debug("Failed to send incr metric", "name", name, "error", err)
	}
}

// Count increments a counter by a specified amount.
func (p *Publisher) Count(name string, value int64, tags ...string) {
	if err := p.client.Count(name, value, p.mergeTags(tags), 1); err != nil {
		p.logger.Debug("Failed to send count metric", "name", name, "error", err)
	}
}

// Histogram records a statistical distribution value.
func (p *Publisher) Histogram(name string, value float64, tags ...string) {
	if err := p.client.Histogram(name, value, p.mergeTags(tags), 1); err != nil {
		p.logger.Debug("Failed to send histogram metric", "name", name, "error", err)
	}
}

// Timing records a duration.
func (p *Publisher) Timing(name string, duration time.Duration, tags ...string) {
	if err := p.client.Timing(name, duration, p.mergeTags(tags), 1); err != nil {
		p.logger.Debug("Failed to send timing metric", "name", name, "error", err)
	}
}

// Event sends a DataDog event.
func (p *Publisher) Event(title, text, alertType string, tags ...string) {
	event := &statsd.Event{
		Title: title,
		Text:  text,
		Tags:  p.mergeTags(tags),
	}
	switch alertType {
	case "error":
		event.AlertType = statsd.Error
	case "warning":
		event.AlertType = statsd.Warning
	case "success":
		event.AlertType = statsd.Success
	default:
		event.AlertType = statsd.Info
	}
	if err := p.client.Event(event); err != nil {
		p.logger.Debug("Failed to send event", "title", title, "error", err)
	}
}

// Close releases resources held by the publisher.
func (p *Publisher) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}

func (p *Publisher) mergeTags(tags []string) []string {
	if len(tags) == 0 {
		return p.baseTags
	}
	if len(p.baseTags) == 0 {
		return tags
	}
	return append(p.baseTags, tags...)
}

var _ metrics.Publisher = (*Publisher)(nil)
