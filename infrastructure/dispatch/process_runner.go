package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/ahrav/go-quorum/internal/domain"
	"github.com/ahrav/go-quorum/internal/ports"
)

var _ ports.ReviewRunner = (*ProcessRunner)(nil)

// waitDelay bounds how long Wait blocks on inherited pipes after the
// reviewer process is killed.
const waitDelay = 2 * time.Second

// ProcessRunner runs the reviewer as an external command.
type ProcessRunner struct {
	// Command is the executable to run, resolved through PATH.
	Command string

	// Args are passed before the prompt.
	Args []string

	// PromptAsArg appends the prompt as the final argument instead of
	// writing it to stdin.
	PromptAsArg bool

	// Dir is the working directory. Empty uses the current one.
	Dir string

	// Env is appended to the inherited environment.
	Env []string
}

// NewProcessRunner returns a runner for command with args.
func NewProcessRunner(command string, args ...string) *ProcessRunner {
	return &ProcessRunner{Command: command, Args: args}
}

// Describe implements ports.ReviewRunner.
func (p *ProcessRunner) Describe() string {
	return "process:" + filepath.Base(p.Command)
}

// commandLine renders the invocation for logs, eliding the prompt.
func (p *ProcessRunner) commandLine() string {
	parts := append([]string{p.Command}, p.Args...)
	if p.PromptAsArg {
		parts = append(parts, "<prompt>")
	}
	return strings.Join(parts, " ")
}

// Run implements ports.ReviewRunner. Timeouts map to 124, a reviewer that
// cannot be started to 127, and a non-zero reviewer exit is passed through.
func (p *ProcessRunner) Run(ctx context.Context, prompt string, timeout time.Duration) (ports.RunResult, error) {
	res := ports.RunResult{Command: p.commandLine()}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	args := append([]string(nil), p.Args...)
	if p.PromptAsArg {
		args = append(args, prompt)
	}
	cmd := exec.CommandContext(ctx, p.Command, args...)
	cmd.Dir = p.Dir
	cmd.WaitDelay = waitDelay
	if len(p.Env) > 0 {
		cmd.Env = append(cmd.Environ(), p.Env...)
	}
	if !p.PromptAsArg {
		cmd.Stdin = strings.NewReader(prompt)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res.Duration = time.Since(start)
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()

	if err == nil {
		res.ExitCode = domain.ExitOK
		return res, nil
	}

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.ExitCode = domain.ExitTimeout
		return res, domain.NewTimeoutError(res.Command, timeout)
	case errors.Is(err, exec.ErrNotFound), cmd.ProcessState == nil:
		// The process never started: missing executable, bad working
		// directory, or permission failure.
		res.ExitCode = domain.ExitNotFound
		return res, domain.NewRunnerError(res.Command, err)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() > 0 {
		res.ExitCode = exitErr.ExitCode()
		return res, fmt.Errorf("reviewer exited with code %d: %w", res.ExitCode, err)
	}
	res.ExitCode = domain.ExitFault
	return res, fmt.Errorf("reviewer fault: %w", err)
}
