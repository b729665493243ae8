package middleware

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/ahrav/go-quorum/internal/ports"
)

func newTestMetrics(t *testing.T) (*PrometheusMetrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewPrometheusMetrics(reg), reg
}

func TestPrometheusMetrics_RunnerMetrics(t *testing.T) {
	pm, _ := newTestMetrics(t)
	labels := map[string]string{"runner": "process:codex", "exit_code": "0"}

	pm.RecordCounter(ports.MetricRunnerInvocations, 1, labels)
	pm.RecordCounter(ports.MetricRunnerInvocations, 1, labels)
	pm.RecordHistogram(ports.MetricRunnerLatency, 12.5, labels)

	assert.Equal(t, 2.0, testutil.ToFloat64(pm.runnerInvocations.WithLabelValues("process:codex", "0")))
	assert.Equal(t, 1, testutil.CollectAndCount(pm.runnerLatency))
}

func TestPrometheusMetrics_LifecycleAndScores(t *testing.T) {
	pm, _ := newTestMetrics(t)

	pm.RecordCounter(ports.MetricFindingTransitions, 3, map[string]string{"event": "new"})
	pm.RecordCounter(ports.MetricFindingTransitions, 1, map[string]string{"event": "reopened"})
	pm.RecordGauge(ports.MetricDimensionScore, 75.7, map[string]string{"dimension": "naming"})
	pm.RecordGauge(ports.MetricOpenFindings, 9, nil)

	assert.Equal(t, 3.0, testutil.ToFloat64(pm.findingTransitions.WithLabelValues("new")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.findingTransitions.WithLabelValues("reopened")))
	assert.Equal(t, 75.7, testutil.ToFloat64(pm.dimensionScores.WithLabelValues("naming")))
	assert.Equal(t, 9.0, testutil.ToFloat64(pm.systemGauges.WithLabelValues(ports.MetricOpenFindings)))
}

func TestPrometheusMetrics_FallbackRouting(t *testing.T) {
	pm, _ := newTestMetrics(t)

	tests := []struct {
		name   string
		record func()
		value  func() float64
		want   float64
	}{
		{
			name:   "unknown counter defaults status",
			record: func() { pm.RecordCounter("batches_failed", 2, nil) },
			value:  func() float64 { return testutil.ToFloat64(pm.operationCounter.WithLabelValues("batches_failed", "ok")) },
			want:   2,
		},
		{
			name:   "unknown counter keeps status",
			record: func() { pm.RecordCounter("store_save", 1, map[string]string{"status": "error"}) },
			value:  func() float64 { return testutil.ToFloat64(pm.operationCounter.WithLabelValues("store_save", "error")) },
			want:   1,
		},
		{
			name:   "missing runner labels become unknown",
			record: func() { pm.RecordCounter(ports.MetricRunnerInvocations, 1, map[string]string{}) },
			value: func() float64 {
				return testutil.ToFloat64(pm.runnerInvocations.WithLabelValues(unknownLabel, unknownLabel))
			},
			want: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.record()
			assert.Equal(t, tt.want, tt.value())
		})
	}
}

func TestPrometheusMetrics_LatencyAndHistograms(t *testing.T) {
	pm, reg := newTestMetrics(t)

	pm.RecordLatency(ports.MetricStageLatency, 150*time.Millisecond, map[string]string{"stage": "merge"})
	pm.RecordLatency(ports.MetricStageLatency, 20*time.Millisecond, nil)
	pm.RecordHistogram("finding_pressure", 4.08, nil)

	assert.Equal(t, 2, testutil.CollectAndCount(pm.stageLatency))
	assert.Equal(t, 1, testutil.CollectAndCount(pm.observedValues))

	families, err := reg.Gather()
	assert.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "quorum_stage_duration_seconds")
	assert.Contains(t, names, "quorum_observed_values")
}

func TestNewPrometheusMetrics_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewPrometheusMetrics(prometheus.NewRegistry())
		NewPrometheusMetrics(prometheus.NewRegistry())
	})
}
