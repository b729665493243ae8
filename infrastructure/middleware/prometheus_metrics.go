// Package middleware provides cross-cutting concerns for the review
// pipeline: Prometheus metrics collection and stage observation.
package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ahrav/go-quorum/internal/ports"
)

// Compile-time verification that PrometheusMetrics implements MetricsCollector.
var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)

const unknownLabel = "unknown"

// PrometheusMetrics implements ports.MetricsCollector using Prometheus. It
// routes the well-known metric names in ports to dedicated vectors and
// everything else to generic operation vectors.
type PrometheusMetrics struct {
	runnerLatency      *prometheus.HistogramVec
	runnerInvocations  *prometheus.CounterVec
	stageLatency       *prometheus.HistogramVec
	findingTransitions *prometheus.CounterVec
	dimensionScores    *prometheus.GaugeVec
	operationCounter   *prometheus.CounterVec
	observedValues     *prometheus.HistogramVec
	systemGauges       *prometheus.GaugeVec
}

// NewPrometheusMetrics creates the collector and registers its metrics
// with reg. A nil reg uses the default registerer.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		runnerLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quorum_runner_duration_seconds",
				Help:    "Wall-clock time of reviewer invocations.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
			},
			[]string{"runner", "exit_code"},
		),
		runnerInvocations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quorum_runner_invocations_total",
				Help: "Reviewer invocations by runner and exit code.",
			},
			[]string{"runner", "exit_code"},
		),
		stageLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quorum_stage_duration_seconds",
				Help:    "Execution time of post-dispatch pipeline stages.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "stage"},
		),
		findingTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quorum_finding_transitions_total",
				Help: "Finding lifecycle changes applied by reconciliation.",
			},
			[]string{"event"},
		),
		dimensionScores: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "quorum_dimension_score",
				Help: "Committed consensus score per dimension.",
			},
			[]string{"dimension"},
		),
		operationCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quorum_operations_total",
				Help: "Other counted operations by status.",
			},
			[]string{"operation", "status"},
		),
		observedValues: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quorum_observed_values",
				Help:    "Other observed values.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"metric"},
		),
		systemGauges: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "quorum_state",
				Help: "Current values of review state gauges.",
			},
			[]string{"metric"},
		),
	}
}

// RecordLatency implements ports.MetricsCollector.
func (pm *PrometheusMetrics) RecordLatency(operation string, duration time.Duration, labels map[string]string) {
	pm.stageLatency.WithLabelValues(operation, label(labels, "stage")).Observe(duration.Seconds())
}

// RecordCounter implements ports.MetricsCollector.
func (pm *PrometheusMetrics) RecordCounter(metric string, value float64, labels map[string]string) {
	switch metric {
	case ports.MetricRunnerInvocations:
		pm.runnerInvocations.WithLabelValues(label(labels, "runner"), label(labels, "exit_code")).Add(value)
	case ports.MetricFindingTransitions:
		pm.findingTransitions.WithLabelValues(label(labels, "event")).Add(value)
	default:
		status := labels["status"]
		if status == "" {
			status = "ok"
		}
		pm.operationCounter.WithLabelValues(metric, status).Add(value)
	}
}

// RecordGauge implements ports.MetricsCollector.
func (pm *PrometheusMetrics) RecordGauge(metric string, value float64, labels map[string]string) {
	switch metric {
	case ports.MetricDimensionScore:
		pm.dimensionScores.WithLabelValues(label(labels, "dimension")).Set(value)
	default:
		pm.systemGauges.WithLabelValues(metric).Set(value)
	}
}

// RecordHistogram implements ports.MetricsCollector.
func (pm *PrometheusMetrics) RecordHistogram(metric string, value float64, labels map[string]string) {
	switch metric {
	case ports.MetricRunnerLatency:
		pm.runnerLatency.WithLabelValues(label(labels, "runner"), label(labels, "exit_code")).Observe(value)
	default:
		pm.observedValues.WithLabelValues(metric).Observe(value)
	}
}

func label(labels map[string]string, key string) string {
	if v := labels[key]; v != "" {
		return v
	}
	return unknownLabel
}
