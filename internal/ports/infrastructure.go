package ports

import (
	"time"
)

// Metric names shared by the instrumented components and the collectors
// that route them.
const (
	// MetricRunnerLatency is a histogram of reviewer invocation seconds,
	// labelled by runner and exit_code.
	MetricRunnerLatency = "review_runner_latency_seconds"

	// MetricRunnerInvocations counts reviewer invocations, labelled by
	// runner and exit_code.
	MetricRunnerInvocations = "review_runner_invocations_total"

	// MetricStageLatency is the latency operation name for pipeline
	// stages, labelled by stage.
	MetricStageLatency = "pipeline_stage"

	// MetricFindingTransitions counts lifecycle changes, labelled by event
	// (new, auto_resolved, reopened, ignored).
	MetricFindingTransitions = "finding_transitions_total"

	// MetricDimensionScore is a gauge of the committed score per dimension.
	MetricDimensionScore = "dimension_score"

	// MetricOpenFindings is a gauge of open findings after reconciliation.
	MetricOpenFindings = "open_findings"
)

// MetricsCollector defines the interface for collecting operational metrics.
// Implementations integrate with observability platforms like Prometheus.
type MetricsCollector interface {
	// RecordLatency records the execution time of an operation.
	// The labels map provides additional context for the metric.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter increments a counter metric, e.g. batch failures by
	// exit code or findings reopened.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordGauge sets the current value of a gauge metric, e.g. the
	// number of in-flight batches.
	RecordGauge(metric string, value float64, labels map[string]string)

	// RecordHistogram records a value in a histogram, e.g. merged
	// dimension scores.
	RecordHistogram(metric string, value float64, labels map[string]string)
}
