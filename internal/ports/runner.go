package ports

import (
	"context"
	"time"
)

// RunResult is the outcome of one reviewer invocation.
type RunResult struct {
	// ExitCode follows the runner contract: 0 on success, 124 on timeout,
	// 127 when the reviewer could not be started, 1 on an unexpected fault,
	// and the reviewer's own code otherwise.
	ExitCode int

	// Stdout carries the raw batch output that embeds the JSON payload.
	Stdout string

	// Stderr carries diagnostics, or the failure reason for synthesized
	// exit codes.
	Stderr string

	// Duration is the wall-clock time of the invocation.
	Duration time.Duration

	// Command is a printable rendering of what was invoked.
	Command string
}

// ReviewRunner executes one review prompt against an external judgment
// producer. Implementations block until the reviewer finishes or the
// timeout elapses and must never panic on reviewer failure: every outcome
// is reported through RunResult.ExitCode. The returned error is non-nil
// only alongside a non-zero exit code and describes the cause.
type ReviewRunner interface {
	Run(ctx context.Context, prompt string, timeout time.Duration) (RunResult, error)

	// Describe returns a short label for provenance and logs,
	// e.g. "process:codex" or "anthropic:claude-sonnet-4".
	Describe() string
}
