// Package metrics collects Prometheus metrics for the processing pipeline.
// Each Collector owns its own registry; nothing registers globally, so tests
// and embedded daemons can run several collectors side by side.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector aggregates pipeline metrics and serves them over /metrics.
type Collector struct {
	registry *prometheus.Registry

	itemsEnqueued   prometheus.Counter
	itemsDispatched prometheus.Counter
	itemsCompleted  prometheus.Counter
	itemsFailed     prometheus.Counter
	itemsCancelled  prometheus.Counter
	itemsRetried    prometheus.Counter

	processingLatency prometheus.Histogram

	itemsPending  prometheus.Gauge
	itemsInFlight prometheus.Gauge

	reviewOutcomes *prometheus.CounterVec
	breakerState   *prometheus.GaugeVec
}

// NewCollector creates a collector with all metrics registered on a private
// registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		itemsEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vitae_items_enqueued_total",
			Help: "Total number of work items enqueued",
		}),
		itemsDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vitae_items_dispatched_total",
			Help: "Total number of work items dispatched to workers",
		}),
		itemsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vitae_items_completed_total",
			Help: "Total number of work items completed successfully",
		}),
		itemsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vitae_items_failed_total",
			Help: "Total number of work items that failed terminally",
		}),
		itemsCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vitae_items_cancelled_total",
			Help: "Total number of work items cancelled",
		}),
		itemsRetried: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vitae_items_retried_total",
			Help: "Total number of retry re-entries into the queue",
		}),
		processingLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vitae_item_processing_seconds",
			Help:    "Work item processing latency in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		itemsPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vitae_items_pending",
			Help: "Current number of pending work items",
		}),
		itemsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vitae_items_in_flight",
			Help: "Current number of work items being processed",
		}),
		reviewOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vitae_review_outcomes_total",
			Help: "Review decisions grouped by outcome",
		}, []string{"outcome"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vitae_breaker_state",
			Help: "Circuit breaker state per operation (0 closed, 1 half-open, 2 open)",
		}, []string{"operation"}),
	}

	c.registry.MustRegister(
		c.itemsEnqueued,
		c.itemsDispatched,
		c.itemsCompleted,
		c.itemsFailed,
		c.itemsCancelled,
		c.itemsRetried,
		c.processingLatency,
		c.itemsPending,
		c.itemsInFlight,
		c.reviewOutcomes,
		c.breakerState,
	)
	return c
}

// Handler exposes the collector's registry in Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordEnqueue counts one enqueued item. All record methods are safe on a
// nil collector.
func (c *Collector) RecordEnqueue() {
	if c == nil {
		return
	}
	c.itemsEnqueued.Inc()
}

// RecordDispatch counts one item handed to a worker.
func (c *Collector) RecordDispatch() {
	if c == nil {
		return
	}
	c.itemsDispatched.Inc()
}

// RecordCompleted counts one successful item and observes its latency.
func (c *Collector) RecordCompleted(latencySeconds float64) {
	if c == nil {
		return
	}
	c.itemsCompleted.Inc()
	c.processingLatency.Observe(latencySeconds)
}

// RecordFailed counts one terminally failed item.
func (c *Collector) RecordFailed() {
	if c == nil {
		return
	}
	c.itemsFailed.Inc()
}

// RecordCancelled counts one cancelled item.
func (c *Collector) RecordCancelled() {
	if c == nil {
		return
	}
	c.itemsCancelled.Inc()
}

// RecordRetry counts one retry re-entry.
func (c *Collector) RecordRetry() {
	if c == nil {
		return
	}
	c.itemsRetried.Inc()
}

// RecordReviewOutcome counts one review decision by outcome name.
func (c *Collector) RecordReviewOutcome(outcome string) {
	if c == nil {
		return
	}
	c.reviewOutcomes.WithLabelValues(outcome).Inc()
}

// SetBreakerState publishes a breaker's state for one operation.
func (c *Collector) SetBreakerState(operation string, state float64) {
	if c == nil {
		return
	}
	c.breakerState.WithLabelValues(operation).Set(state)
}

// UpdateQueueStats publishes the current queue depth gauges.
func (c *Collector) UpdateQueueStats(pending, inFlight int) {
	if c == nil {
		return
	}
	c.itemsPending.Set(float64(pending))
	c.itemsInFlight.Set(float64(inFlight))
}
