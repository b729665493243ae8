package application

import (
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/ahrav/go-quorum/infrastructure/dispatch"
	"github.com/ahrav/go-quorum/infrastructure/reviewer"
	"github.com/ahrav/go-quorum/internal/ports"
)

// tracerName scopes reviewer spans.
const tracerName = "github.com/ahrav/go-quorum/reviewer"

// NewRunner builds the configured reviewer and wraps it in the runner
// middleware chain: logging outermost, then tracing, metrics and rate
// limiting. A nil metrics collector skips the metrics middleware.
func NewRunner(cfg RunnerConfig, metrics ports.MetricsCollector, logger *slog.Logger) (ports.ReviewRunner, error) {
	var base ports.ReviewRunner
	switch cfg.Kind {
	case RunnerProcess:
		p := dispatch.NewProcessRunner(cfg.Command, cfg.Args...)
		p.PromptAsArg = cfg.PromptAsArg
		base = p
	case RunnerAnthropic, RunnerOpenAI, RunnerGoogle:
		backend, err := reviewer.NewBackend(cfg.ReviewerConfig())
		if err != nil {
			return nil, err
		}
		base = reviewer.NewAPIRunner(backend, cfg.Retry)
	default:
		return nil, fmt.Errorf("unknown runner kind: %q", cfg.Kind)
	}

	middlewares := []dispatch.Middleware{
		dispatch.LoggingMiddleware(logger),
		dispatch.TracingMiddleware(tracerName),
	}
	if metrics != nil {
		middlewares = append(middlewares, dispatch.MetricsMiddleware(metrics))
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		middlewares = append(middlewares, dispatch.RateLimitMiddleware(rate.Limit(cfg.RateLimit), burst))
	}
	return dispatch.Chain(base, middlewares...), nil
}
