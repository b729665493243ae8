package reviewer

import (
	"context"
	"errors"
	"time"

	"github.com/felixgeelhaar/fortify/retry"

	"github.com/ahrav/go-quorum/internal/domain"
	"github.com/ahrav/go-quorum/internal/ports"
)

var _ ports.ReviewRunner = (*APIRunner)(nil)

// RetryConfig controls how transient provider failures are retried.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts" json:"max_attempts" validate:"gte=0,lte=10"`
	InitialDelay time.Duration `yaml:"initial_delay" json:"initial_delay" validate:"gte=0"`
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = time.Second
	}
	return c
}

// APIRunner runs review prompts through a Backend.
type APIRunner struct {
	backend Backend
	retry   RetryConfig
}

// NewAPIRunner returns a runner for backend. Zero RetryConfig fields take
// defaults of three attempts starting at one second.
func NewAPIRunner(backend Backend, cfg RetryConfig) *APIRunner {
	return &APIRunner{backend: backend, retry: cfg.withDefaults()}
}

// Describe implements ports.ReviewRunner.
func (a *APIRunner) Describe() string {
	return a.backend.Provider() + ":" + a.backend.Model()
}

// Run implements ports.ReviewRunner. Rate limits, 5xx responses and
// provider-side timeouts are retried with exponential backoff inside the
// timeout. Authentication failures and a missing key map to 127, the
// overall deadline maps to 124, and anything else maps to 1.
func (a *APIRunner) Run(ctx context.Context, prompt string, timeout time.Duration) (ports.RunResult, error) {
	start := time.Now()
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	retryer := retry.New[string](retry.Config{
		MaxAttempts:   a.retry.MaxAttempts,
		InitialDelay:  a.retry.InitialDelay,
		BackoffPolicy: retry.BackoffExponential,
		IsRetryable:   isRetryable,
	})
	text, err := retryer.Do(callCtx, func(ctx context.Context) (string, error) {
		return a.backend.Complete(ctx, prompt)
	})

	res := ports.RunResult{
		Stdout:   text,
		Duration: time.Since(start),
		Command:  a.Describe(),
	}
	if err == nil {
		return res, nil
	}

	res.Stderr = err.Error()
	switch {
	case timeout > 0 && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		res.ExitCode = domain.ExitTimeout
		return res, domain.NewTimeoutError(a.Describe(), timeout)
	case errors.Is(err, ports.ErrAuthenticationFailed), errors.Is(err, ErrMissingAPIKey):
		res.ExitCode = domain.ExitNotFound
		return res, domain.NewRunnerError(a.Describe(), err)
	default:
		res.ExitCode = domain.ExitFault
		return res, err
	}
}
