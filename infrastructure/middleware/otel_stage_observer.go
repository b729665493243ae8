package middleware

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-quorum/internal/domain"
	"github.com/ahrav/go-quorum/internal/ports"
)

var _ StageObserver = (*OTelStageObserver)(nil)

const stageTracerName = "quorum-pipeline"

// OTelStageObserver traces each stage in its own span and reports what the
// stage produced: consensus scores, integrity outcome and lifecycle diff.
type OTelStageObserver struct {
	metrics ports.MetricsCollector
	tracer  trace.Tracer
}

// NewOTelStageObserver returns an observer using the global tracer
// provider. metrics may be nil.
func NewOTelStageObserver(metrics ports.MetricsCollector) *OTelStageObserver {
	return &OTelStageObserver{
		metrics: metrics,
		tracer:  otel.Tracer(stageTracerName),
	}
}

// Before starts the stage span.
func (o *OTelStageObserver) Before(ctx context.Context, stage string, state domain.State) context.Context {
	ctx, span := o.tracer.Start(ctx, "stage."+stage)
	span.SetAttributes(
		attribute.String("stage.name", stage),
		attribute.Int("state.keys", len(state.Keys())),
	)
	if runID, ok := domain.Get(state, domain.KeyRunID); ok {
		span.SetAttributes(attribute.String("run.id", runID))
	}
	return ctx
}

// After annotates and ends the stage span and records metrics.
func (o *OTelStageObserver) After(ctx context.Context, stage string, state domain.State, elapsed time.Duration, err error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	if o.metrics != nil {
		o.metrics.RecordLatency(ports.MetricStageLatency, elapsed, map[string]string{"stage": stage})
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if o.metrics != nil {
			o.metrics.RecordCounter("stage_errors_total", 1, map[string]string{"status": stage})
		}
		return
	}

	if mc, ok := domain.Get(state, domain.KeyConsensus); ok && mc != nil {
		o.observeConsensus(span, mc)
	}
	if rec, ok := domain.Get(state, domain.KeyIntegrity); ok && rec != nil {
		o.observeIntegrity(span, rec)
	}
	if diff, ok := domain.Get(state, domain.KeyScanDiff); ok && diff != nil {
		o.observeDiff(span, diff)
	}
	if rs, ok := domain.Get(state, domain.KeyReviewState); ok && rs != nil && o.metrics != nil {
		o.metrics.RecordGauge(ports.MetricOpenFindings, float64(rs.StatusCounts()[domain.StatusOpen]), nil)
	}
	span.SetStatus(codes.Ok, "")
}

func (o *OTelStageObserver) observeConsensus(span trace.Span, mc *domain.MergedConsensus) {
	span.SetAttributes(
		attribute.Int("consensus.dimensions", len(mc.Assessments)),
		attribute.Int("consensus.findings", len(mc.Findings)),
		attribute.Float64("consensus.finding_pressure", mc.ReviewQuality.FindingPressure),
	)
	if o.metrics == nil {
		return
	}
	for dim, a := range mc.Assessments {
		o.metrics.RecordGauge(ports.MetricDimensionScore, a.Score, map[string]string{"dimension": dim})
	}
	o.metrics.RecordHistogram("finding_pressure", mc.ReviewQuality.FindingPressure, nil)
}

func (o *OTelStageObserver) observeIntegrity(span trace.Span, rec *domain.IntegrityRecord) {
	span.SetAttributes(
		attribute.String("integrity.status", string(rec.Status)),
		attribute.Int("integrity.matched", rec.MatchedCount),
	)
	switch rec.Status {
	case domain.IntegrityPenalized:
		span.AddEvent("integrity.penalized", trace.WithAttributes(
			attribute.StringSlice("dimensions", rec.ResetDimensions),
		))
	case domain.IntegrityWarn:
		span.AddEvent("integrity.warn", trace.WithAttributes(
			attribute.StringSlice("dimensions", rec.MatchedDimensions),
		))
	}
}

func (o *OTelStageObserver) observeDiff(span trace.Span, diff *domain.ScanDiff) {
	span.SetAttributes(
		attribute.Int("lifecycle.new", diff.New),
		attribute.Int("lifecycle.auto_resolved", diff.AutoResolved),
		attribute.Int("lifecycle.reopened", diff.Reopened),
		attribute.Int("lifecycle.ignored", diff.Ignored),
		attribute.Float64("lifecycle.suppressed_pct", diff.SuppressedPct),
	)
	if n := len(diff.ChronicReopeners); n > 0 {
		span.AddEvent("lifecycle.chronic_reopeners", trace.WithAttributes(
			attribute.Int("count", n),
		))
	}
	if o.metrics == nil {
		return
	}
	for event, n := range map[string]int{
		"new":           diff.New,
		"auto_resolved": diff.AutoResolved,
		"reopened":      diff.Reopened,
		"ignored":       diff.Ignored,
	} {
		if n > 0 {
			o.metrics.RecordCounter(ports.MetricFindingTransitions, float64(n), map[string]string{"event": event})
		}
	}
}

// LogStageObserver logs stage completion with slog.
type LogStageObserver struct {
	Logger *slog.Logger
}

// Before implements StageObserver.
func (l LogStageObserver) Before(ctx context.Context, stage string, _ domain.State) context.Context {
	l.logger().Debug("stage starting", "stage", stage)
	return ctx
}

// After implements StageObserver.
func (l LogStageObserver) After(_ context.Context, stage string, _ domain.State, elapsed time.Duration, err error) {
	if err != nil {
		l.logger().Error("stage failed", "stage", stage, "elapsed", elapsed, "error", err)
		return
	}
	l.logger().Info("stage completed", "stage", stage, "elapsed_ms", strconv.FormatInt(elapsed.Milliseconds(), 10))
}

func (l LogStageObserver) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}
