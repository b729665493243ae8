package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/ahrav/go-quorum/internal/domain"
	"github.com/ahrav/go-quorum/internal/ports"
)

// Middleware wraps a ReviewRunner with a cross-cutting concern.
type Middleware func(ports.ReviewRunner) ports.ReviewRunner

// Chain applies middlewares so the first one listed is the outermost.
func Chain(runner ports.ReviewRunner, middlewares ...Middleware) ports.ReviewRunner {
	for i := len(middlewares) - 1; i >= 0; i-- {
		runner = middlewares[i](runner)
	}
	return runner
}

// rateLimitedRunner spaces out reviewer spawns with a token bucket.
type rateLimitedRunner struct {
	next    ports.ReviewRunner
	limiter *rate.Limiter
}

// RateLimitMiddleware limits how often reviewers are started. The limit is
// in starts per second; burst allows that many to start at once.
func RateLimitMiddleware(limit rate.Limit, burst int) Middleware {
	limiter := rate.NewLimiter(limit, burst)
	return func(next ports.ReviewRunner) ports.ReviewRunner {
		return &rateLimitedRunner{next: next, limiter: limiter}
	}
}

func (r *rateLimitedRunner) Run(ctx context.Context, prompt string, timeout time.Duration) (ports.RunResult, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		err = fmt.Errorf("rate limit: %w", err)
		return ports.RunResult{ExitCode: domain.ExitFault, Stderr: err.Error(), Command: r.next.Describe()}, err
	}
	return r.next.Run(ctx, prompt, timeout)
}

func (r *rateLimitedRunner) Describe() string { return r.next.Describe() }

// metricsRunner records invocation latency and outcomes.
type metricsRunner struct {
	next      ports.ReviewRunner
	collector ports.MetricsCollector
}

// MetricsMiddleware reports each invocation to collector.
func MetricsMiddleware(collector ports.MetricsCollector) Middleware {
	return func(next ports.ReviewRunner) ports.ReviewRunner {
		return &metricsRunner{next: next, collector: collector}
	}
}

func (m *metricsRunner) Run(ctx context.Context, prompt string, timeout time.Duration) (ports.RunResult, error) {
	res, err := m.next.Run(ctx, prompt, timeout)
	if m.collector == nil {
		return res, err
	}
	labels := map[string]string{
		"runner":    m.next.Describe(),
		"exit_code": strconv.Itoa(res.ExitCode),
	}
	m.collector.RecordHistogram(ports.MetricRunnerLatency, res.Duration.Seconds(), labels)
	m.collector.RecordCounter(ports.MetricRunnerInvocations, 1, labels)
	return res, err
}

func (m *metricsRunner) Describe() string { return m.next.Describe() }

// tracedRunner wraps each invocation in an OpenTelemetry span.
type tracedRunner struct {
	next   ports.ReviewRunner
	tracer trace.Tracer
}

// TracingMiddleware starts a span per invocation using the named tracer.
func TracingMiddleware(tracerName string) Middleware {
	tracer := otel.Tracer(tracerName)
	return func(next ports.ReviewRunner) ports.ReviewRunner {
		return &tracedRunner{next: next, tracer: tracer}
	}
}

func (t *tracedRunner) Run(ctx context.Context, prompt string, timeout time.Duration) (ports.RunResult, error) {
	ctx, span := t.tracer.Start(ctx, "review.run",
		trace.WithAttributes(
			attribute.String("review.runner", t.next.Describe()),
			attribute.Int("review.prompt.length", len(prompt)),
			attribute.String("review.timeout", timeout.String()),
		),
	)
	defer span.End()

	res, err := t.next.Run(ctx, prompt, timeout)
	span.SetAttributes(
		attribute.Int("review.exit_code", res.ExitCode),
		attribute.Int64("review.duration_ms", res.Duration.Milliseconds()),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return res, err
}

func (t *tracedRunner) Describe() string { return t.next.Describe() }

// loggedRunner logs each invocation.
type loggedRunner struct {
	next   ports.ReviewRunner
	logger *slog.Logger
}

// LoggingMiddleware logs invocation outcomes to logger, or slog.Default()
// when nil.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next ports.ReviewRunner) ports.ReviewRunner {
		return &loggedRunner{next: next, logger: logger}
	}
}

func (l *loggedRunner) Run(ctx context.Context, prompt string, timeout time.Duration) (ports.RunResult, error) {
	res, err := l.next.Run(ctx, prompt, timeout)
	attrs := []any{
		"runner", l.next.Describe(),
		"exit_code", res.ExitCode,
		"duration", res.Duration,
		"stdout_bytes", len(res.Stdout),
	}
	if err != nil {
		l.logger.WarnContext(ctx, "reviewer failed", append(attrs, "error", err)...)
	} else {
		l.logger.DebugContext(ctx, "reviewer finished", attrs...)
	}
	return res, err
}

func (l *loggedRunner) Describe() string { return l.next.Describe() }
