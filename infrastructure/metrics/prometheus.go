// Package metrics records per-generation outcomes twice over: a
// Prometheus exporter for live monitoring and a Tracker that keeps a
// bounded per-model history plus a durable JSONL log for aggregation
// and manual quality ratings.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/crosscheck-ai/crosscheck/internal/domain"
	"github.com/crosscheck-ai/crosscheck/internal/ports"
)

var _ ports.MetricsCollector = (*PrometheusCollector)(nil)

// PrometheusCollector exports generation outcomes as Prometheus series.
type PrometheusCollector struct {
	generations    *prometheus.CounterVec
	latencySeconds *prometheus.HistogramVec
	costUSD        *prometheus.CounterVec
	inFlight       prometheus.Gauge
}

// NewPrometheusCollector registers the metric families against the
// given registerer. Tests pass a fresh registry to avoid collisions.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	factory := promauto.With(reg)
	return &PrometheusCollector{
		generations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crosscheck",
			Name:      "generations_total",
			Help:      "Generation attempts by model, task, and outcome.",
		}, []string{"model", "task", "status"}),
		latencySeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "crosscheck",
			Name:      "generation_duration_seconds",
			Help:      "Generation latency by model and task.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 45, 60, 90, 120},
		}, []string{"model", "task"}),
		costUSD: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crosscheck",
			Name:      "generation_cost_usd_total",
			Help:      "Estimated spend in USD by model.",
		}, []string{"model"}),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "crosscheck",
			Name:      "generations_in_flight",
			Help:      "Generations currently executing.",
		}),
	}
}

// ObserveGeneration records one finished generation.
func (c *PrometheusCollector) ObserveGeneration(modelID, task string, status domain.GenerationStatus, elapsed time.Duration, costUSD float64) {
	c.generations.WithLabelValues(modelID, task, string(status)).Inc()
	c.latencySeconds.WithLabelValues(modelID, task).Observe(elapsed.Seconds())
	if costUSD > 0 {
		c.costUSD.WithLabelValues(modelID).Add(costUSD)
	}
}

// IncInFlight marks a generation as started.
func (c *PrometheusCollector) IncInFlight() { c.inFlight.Inc() }

// DecInFlight marks a generation as finished.
func (c *PrometheusCollector) DecInFlight() { c.inFlight.Dec() }
