// internal/metrics/collector.go
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricType identifies one registered metric.
type MetricType string

const (
	TickCounterType      MetricType = "tick_counter"
	QueueUtilizationType MetricType = "queue_utilization"
	QueueLatencyType     MetricType = "queue_latency"
	OpenPositionsType    MetricType = "open_positions"
	ExitCounterType      MetricType = "exit_counter"
	EvalDurationType     MetricType = "eval_duration"
	PriceUpdateType      MetricType = "price_update_duration"
)

// Collector owns the trading-core Prometheus metrics. Construct one per
// process; a custom registry keeps tests from fighting over the default one.
type Collector struct {
	registry *prometheus.Registry

	tickCounter      *prometheus.CounterVec
	queueUtilization *prometheus.GaugeVec
	queueLatency     *prometheus.GaugeVec
	openPositions    prometheus.Gauge
	exitCounter      *prometheus.CounterVec
	evalDuration     prometheus.Histogram
	priceUpdate      prometheus.Histogram
}

// NewCollector registers all trading-core metrics on a fresh registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),

		tickCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "trading_core",
				Name:      "ticks_total",
				Help:      "Market-data ticks by outcome",
			},
			[]string{"outcome"}, // "enqueued", "dropped", "invalid"
		),
		queueUtilization: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "trading_core",
				Name:      "queue_utilization_percent",
				Help:      "Queue fill level in percent",
			},
			[]string{"queue"},
		),
		queueLatency: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "trading_core",
				Name:      "queue_latency_seconds",
				Help:      "Average enqueue-to-dequeue latency",
			},
			[]string{"queue"},
		),
		openPositions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "trading_core",
				Name:      "open_positions",
				Help:      "Number of live positions",
			},
		),
		exitCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "trading_core",
				Name:      "exit_requests_total",
				Help:      "Exit requests by urgency",
			},
			[]string{"urgency"},
		),
		evalDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "trading_core",
				Name:      "exit_scan_duration_seconds",
				Help:      "Duration of one full exit-condition scan",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
			},
		),
		priceUpdate: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "trading_core",
				Name:      "price_batch_duration_seconds",
				Help:      "Duration of one price propagation batch",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
			},
		),
	}

	c.registry.MustRegister(
		c.tickCounter,
		c.queueUtilization,
		c.queueLatency,
		c.openPositions,
		c.exitCounter,
		c.evalDuration,
		c.priceUpdate,
	)
	return c
}

// Registry exposes the underlying registry for the HTTP handler.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RecordTick counts one tick by outcome.
func (c *Collector) RecordTick(outcome string) {
	c.tickCounter.WithLabelValues(outcome).Inc()
}

// UpdateQueueStats records one queue's utilization and average latency.
func (c *Collector) UpdateQueueStats(queue string, utilizationPercent float64, avgLatency time.Duration) {
	c.queueUtilization.WithLabelValues(queue).Set(utilizationPercent)
	c.queueLatency.WithLabelValues(queue).Set(avgLatency.Seconds())
}

// SetOpenPositions records the live position count.
func (c *Collector) SetOpenPositions(n int) {
	c.openPositions.Set(float64(n))
}

// RecordExit counts one exit request by urgency.
func (c *Collector) RecordExit(urgency string) {
	c.exitCounter.WithLabelValues(urgency).Inc()
}

// ObserveEvalDuration records the duration of one exit scan.
func (c *Collector) ObserveEvalDuration(d time.Duration) {
	c.evalDuration.Observe(d.Seconds())
}

// ObservePriceBatch records the duration of one price batch.
func (c *Collector) ObservePriceBatch(d time.Duration) {
	c.priceUpdate.Observe(d.Seconds())
}
