package ports

import (
	"errors"
	"fmt"
	"time"
)

// Common infrastructure errors that can occur while talking to reviewers
// and stores.
var (
	// ErrRateLimited indicates that the reviewer service has rate limited
	// the request.
	ErrRateLimited = errors.New("rate limited")

	// ErrServiceUnavailable indicates that the reviewer service is
	// unavailable.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = errors.New("operation timed out")

	// ErrInvalidResponse indicates that the reviewer returned an unusable
	// response.
	ErrInvalidResponse = errors.New("invalid response")

	// ErrAuthenticationFailed indicates that authentication with the
	// reviewer service failed.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrStateCorrupted indicates that persisted state could not be decoded.
	ErrStateCorrupted = errors.New("state corrupted")

	// ErrConfigNotFound indicates that required configuration is missing.
	ErrConfigNotFound = errors.New("configuration not found")
)

// ProviderError represents an error from an API-backed reviewer.
// It includes details about the provider, model, and any rate limit
// information.
type ProviderError struct {
	// Provider is the reviewer backend, e.g. "anthropic".
	Provider string

	// Model is the identifier of the model that generated the error.
	Model string

	// StatusCode is the HTTP status reported by the provider, if any.
	StatusCode int

	// Err is the underlying error that occurred.
	Err error

	// RetryAfter indicates how long to wait before retrying, if applicable.
	RetryAfter *time.Duration
}

// Error implements the error interface for ProviderError.
func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("provider error: provider=%s, model=%s, err=%v", e.Provider, e.Model, e.Err)
	if e.StatusCode > 0 {
		msg += fmt.Sprintf(", status=%d", e.StatusCode)
	}
	if e.RetryAfter != nil {
		msg += fmt.Sprintf(", retry_after=%v", *e.RetryAfter)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error { return e.Err }

// IsRetryable returns true if the error is temporary and the request
// can be retried.
func (e *ProviderError) IsRetryable() bool {
	return errors.Is(e.Err, ErrRateLimited) ||
		errors.Is(e.Err, ErrServiceUnavailable) ||
		errors.Is(e.Err, ErrTimeout)
}

// NewProviderError creates a new ProviderError with the given details.
func NewProviderError(provider, model string, status int, err error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Model:      model,
		StatusCode: status,
		Err:        err,
	}
}

// StoreError represents an error from state persistence.
type StoreError struct {
	// Path is the state file involved in the failed operation.
	Path string

	// Operation is the name of the store operation that failed.
	Operation string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface for StoreError.
func (e *StoreError) Error() string {
	return fmt.Sprintf("store error: operation=%s, path=%s, err=%v", e.Operation, e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error { return e.Err }

// NewStoreError creates a new StoreError with the given details.
func NewStoreError(path, operation string, err error) *StoreError {
	return &StoreError{Path: path, Operation: operation, Err: err}
}

// ConfigError represents an error from configuration operations.
type ConfigError struct {
	// ConfigKey is the configuration key that was involved in the failed
	// operation.
	ConfigKey string

	// Err is the underlying error that caused the configuration operation
	// to fail.
	Err error
}

// Error implements the error interface for ConfigError.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: key=%s, err=%v", e.ConfigKey, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error { return e.Err }

// NewConfigError creates a new ConfigError with the given details.
func NewConfigError(key string, err error) *ConfigError {
	return &ConfigError{
		ConfigKey: key,
		Err:       err,
	}
}
