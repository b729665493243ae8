package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Stable exit codes for batch runner outcomes.
const (
	ExitOK       = 0
	ExitFault    = 1
	ExitTimeout  = 124
	ExitNotFound = 127
)

// Common domain errors.
var (
	// ErrInvalidState indicates that a State operation received invalid input.
	ErrInvalidState = errors.New("invalid state")

	// ErrKeyNotFound indicates that a requested State key does not exist.
	ErrKeyNotFound = errors.New("key not found")

	// ErrNoValidPayload indicates that raw batch output contained no JSON
	// object with the expected envelope.
	ErrNoValidPayload = errors.New("no valid review payload found")

	// ErrMissingNote indicates an assessed dimension without a usable note.
	ErrMissingNote = errors.New("assessed dimension lacks a valid dimension note")

	// ErrNoBatches indicates that nothing was selected or produced.
	ErrNoBatches = errors.New("no batches")

	// ErrUnknownFinding indicates a lifecycle operation on an absent ID.
	ErrUnknownFinding = errors.New("unknown finding")

	// ErrInvalidTransition indicates a lifecycle event not allowed from the
	// finding's current status.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")
)

// ExitCoder is implemented by errors that map to a process exit code.
type ExitCoder interface {
	ExitCode() int
}

// StateError represents an error that occurred during State operations.
type StateError struct {
	Key       string
	Operation string
	Err       error
}

// Error implements the error interface for StateError.
func (e *StateError) Error() string {
	return fmt.Sprintf("state error: operation=%s, key=%s, err=%v", e.Operation, e.Key, e.Err)
}

// Unwrap returns the underlying error.
func (e *StateError) Unwrap() error { return e.Err }

// NewStateError creates a new StateError with the given details.
func NewStateError(key, operation string, err error) *StateError {
	return &StateError{Key: key, Operation: operation, Err: err}
}

// ValidationError represents a rejected payload or configuration. It can
// contain multiple validation failures; a batch with any of them is dropped
// from consensus as a whole.
type ValidationError struct {
	// Entity is the name of the entity that failed validation.
	Entity string

	// Errors contains the list of validation error messages.
	Errors []string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: %v", e.Entity, e.Errors)
}

// AddError adds a new error message to the validation error.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// HasErrors returns true if there are any validation errors.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// NewValidationError creates a new ValidationError for the given entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{
		Entity: entity,
		Errors: make([]string, 0),
	}
}

// RunnerError reports that the external reviewer could not be started or
// failed at the OS level.
type RunnerError struct {
	Command string
	Err     error
}

// Error implements the error interface for RunnerError.
func (e *RunnerError) Error() string {
	return fmt.Sprintf("runner error: command=%q, err=%v", e.Command, e.Err)
}

// Unwrap returns the underlying error.
func (e *RunnerError) Unwrap() error { return e.Err }

// ExitCode maps runner failures to 127.
func (e *RunnerError) ExitCode() int { return ExitNotFound }

// NewRunnerError creates a new RunnerError.
func NewRunnerError(command string, err error) *RunnerError {
	return &RunnerError{Command: command, Err: err}
}

// TimeoutError reports that a unit exceeded its wall-clock budget.
type TimeoutError struct {
	Command string
	Timeout time.Duration
}

// Error implements the error interface for TimeoutError.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout after %s: command=%q", e.Timeout, e.Command)
}

// ExitCode maps timeouts to 124.
func (e *TimeoutError) ExitCode() int { return ExitTimeout }

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(command string, timeout time.Duration) *TimeoutError {
	return &TimeoutError{Command: command, Timeout: timeout}
}

// IntegrityViolation describes a subjective score set clustered on the
// target. It is informational: the guard remediates it in place.
type IntegrityViolation struct {
	Target     float64
	Dimensions []string
	Penalized  bool
}

// Error implements the error interface for IntegrityViolation.
func (e *IntegrityViolation) Error() string {
	action := "warning"
	if e.Penalized {
		action = "reset to 0.0"
	}
	return fmt.Sprintf("integrity violation: %d subjective score(s) match target %.1f (%s): %s",
		len(e.Dimensions), e.Target, action, strings.Join(e.Dimensions, ", "))
}

// FailureReport is the operator-facing remediation for failed batches.
type FailureReport struct {
	FailedIndices []int    `json:"failed_batches"`
	RetryCommand  string   `json:"retry_command"`
	LogPaths      []string `json:"log_paths"`
	Hints         []string `json:"hints,omitempty"`
}

// PartialFailure halts a run when any selected batch failed. No subset is
// merged or committed.
type PartialFailure struct {
	Selected int
	Report   FailureReport
}

// Error implements the error interface for PartialFailure.
func (e *PartialFailure) Error() string {
	return fmt.Sprintf("%d of %d batch(es) failed: %s; retry with: %s",
		len(e.Report.FailedIndices), e.Selected, FormatBatchSelection(e.Report.FailedIndices), e.Report.RetryCommand)
}

// ExitCode is always non-zero for a halted run.
func (e *PartialFailure) ExitCode() int { return ExitFault }
