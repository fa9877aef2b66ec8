package metrics

import "time"

// Publisher ships metrics to an external backend. Implementations must be
// safe for concurrent use and must never block callers on backend trouble.
type Publisher interface {
	Gauge(name string, value float64, tags ...string)
	Incr(name string, tags ...string)
	Count(name string, value int64, tags ...string)
	Histogram(name string, value float64, tags ...string)
	Timing(name string, duration time.Duration, tags ...string)
	Event(title, text, alertType string, tags ...string)
	Close() error
}
