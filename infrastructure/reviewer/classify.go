package reviewer

import (
	"context"
	"errors"
	"fmt"

	"github.com/ahrav/go-quorum/internal/ports"
)

// classifyStatus maps an HTTP status from a provider API onto the shared
// sentinel errors so callers can decide on retries without knowing which
// SDK produced the failure.
func classifyStatus(provider, model string, status int, err error) *ports.ProviderError {
	var kind error
	switch {
	case status == 401 || status == 403:
		kind = ports.ErrAuthenticationFailed
	case status == 408:
		kind = ports.ErrTimeout
	case status == 429:
		kind = ports.ErrRateLimited
	case status >= 500:
		kind = ports.ErrServiceUnavailable
	default:
		kind = ports.ErrInvalidResponse
	}
	return ports.NewProviderError(provider, model, status, fmt.Errorf("%w: %w", kind, err))
}

// classifyContext handles cancellation and deadline errors, which every SDK
// surfaces the same way. It returns nil for other errors.
func classifyContext(provider, model string, err error) *ports.ProviderError {
	if errors.Is(err, context.DeadlineExceeded) {
		return ports.NewProviderError(provider, model, 0, fmt.Errorf("%w: %w", ports.ErrTimeout, err))
	}
	if errors.Is(err, context.Canceled) {
		return ports.NewProviderError(provider, model, 0, err)
	}
	return nil
}

// isRetryable reports whether err is a transient provider failure.
func isRetryable(err error) bool {
	var perr *ports.ProviderError
	return errors.As(err, &perr) && perr.IsRetryable()
}
