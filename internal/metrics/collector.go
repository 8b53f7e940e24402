// Package metrics provides the prometheus collector for store operations.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records per-operation counters and latencies on a private
// prometheus registry. A nil Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	operationCounter  *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	retryCounter      *prometheus.CounterVec
	inflightGauge     prometheus.Gauge
}

// NewCollector creates a collector under the given namespace.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		operationCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total object store operations by operation and status.",
			},
			[]string{"operation", "status"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Object store operation latency.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		retryCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retries_total",
				Help:      "Retry attempts by operation.",
			},
			[]string{"operation"},
		),
		inflightGauge: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "inflight_requests",
				Help:      "Requests currently holding a concurrency slot.",
			},
		),
	}

	registry.MustRegister(
		c.operationCounter,
		c.operationDuration,
		c.retryCounter,
		c.inflightGauge,
	)
	return c
}

// RecordOperation records one completed logical operation.
func (c *Collector) RecordOperation(operation string, duration time.Duration, err error) {
	if c == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.operationCounter.WithLabelValues(operation, status).Inc()
	c.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordRetry records one retry attempt for an operation.
func (c *Collector) RecordRetry(operation string) {
	if c == nil {
		return
	}
	c.retryCounter.WithLabelValues(operation).Inc()
}

// InflightInc marks a request entering the concurrency limiter.
func (c *Collector) InflightInc() {
	if c == nil {
		return
	}
	c.inflightGauge.Inc()
}

// InflightDec marks a request leaving the concurrency limiter.
func (c *Collector) InflightDec() {
	if c == nil {
		return
	}
	c.inflightGauge.Dec()
}

// Handler exposes the registry for scraping.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
