package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ahrav/go-quorum/internal/domain"
	"github.com/ahrav/go-quorum/internal/ports"
)

// DefaultBatchTimeout is the wall-clock budget of one batch.
const DefaultBatchTimeout = 20 * time.Minute

// BatchOutcome is what the executor observed for one batch.
type BatchOutcome struct {
	Index    int           `json:"index"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration_ns"`
	Output   string        `json:"output_path"`
	Log      string        `json:"log_path"`
	Error    string        `json:"error,omitempty"`
}

// BatchExecutor runs prepared batches through a ReviewRunner and persists
// their artifacts. It is safe for concurrent use by the dispatcher.
type BatchExecutor struct {
	runner  ports.ReviewRunner
	timeout time.Duration
	logger  *slog.Logger

	mu       sync.Mutex
	outcomes map[int]BatchOutcome
}

// NewBatchExecutor creates an executor. A zero timeout selects
// DefaultBatchTimeout; a nil logger uses slog.Default().
func NewBatchExecutor(runner ports.ReviewRunner, timeout time.Duration, logger *slog.Logger) *BatchExecutor {
	if timeout <= 0 {
		timeout = DefaultBatchTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchExecutor{
		runner:   runner,
		timeout:  timeout,
		logger:   logger,
		outcomes: make(map[int]BatchOutcome),
	}
}

// Run executes one batch and always writes its raw output and log before
// returning the exit code.
func (e *BatchExecutor) Run(ctx context.Context, batch domain.Batch) int {
	res, err := e.invoke(ctx, batch.Prompt)
	if err != nil && res.ExitCode == domain.ExitOK {
		res.ExitCode = domain.ExitFault
	}

	outcome := BatchOutcome{
		Index:    batch.Index,
		ExitCode: res.ExitCode,
		Duration: res.Duration,
		Output:   batch.OutputPath,
		Log:      batch.LogPath,
	}
	if err != nil {
		outcome.Error = err.Error()
	}

	if werr := os.WriteFile(batch.OutputPath, []byte(res.Stdout), 0o644); werr != nil {
		e.logger.Error("write batch output", "batch", batch.Index, "path", batch.OutputPath, "error", werr)
		outcome.ExitCode = domain.ExitFault
		outcome.Error = joinErr(outcome.Error, werr)
	}
	if werr := os.WriteFile(batch.LogPath, []byte(renderLog(res, outcome.Error)), 0o644); werr != nil {
		e.logger.Error("write batch log", "batch", batch.Index, "path", batch.LogPath, "error", werr)
		outcome.ExitCode = domain.ExitFault
		outcome.Error = joinErr(outcome.Error, werr)
	}

	e.mu.Lock()
	e.outcomes[batch.Index] = outcome
	e.mu.Unlock()
	return outcome.ExitCode
}

// invoke calls the runner, converting a panic into an ExitFault result so
// the batch still leaves a log behind.
func (e *BatchExecutor) invoke(ctx context.Context, prompt string) (res ports.RunResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = ports.RunResult{Command: e.runner.Describe(), ExitCode: domain.ExitFault}
			err = fmt.Errorf("reviewer panicked: %v", r)
		}
	}()
	return e.runner.Run(ctx, prompt, e.timeout)
}

// BatchFunc adapts the executor to ExecuteBatches for the given prepared
// batches. The prompt argument overrides the batch's stored prompt.
func (e *BatchExecutor) BatchFunc(batches []domain.Batch) BatchFunc {
	byIndex := make(map[int]domain.Batch, len(batches))
	for _, b := range batches {
		byIndex[b.Index] = b
	}
	return func(ctx context.Context, idx int, prompt string) int {
		b, ok := byIndex[idx]
		if !ok {
			e.logger.Error("unknown batch index", "batch", idx)
			return domain.ExitFault
		}
		b.Prompt = prompt
		return e.Run(ctx, b)
	}
}

// Outcomes returns a snapshot of every batch run so far.
func (e *BatchExecutor) Outcomes() map[int]BatchOutcome {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[int]BatchOutcome, len(e.outcomes))
	for k, v := range e.outcomes {
		out[k] = v
	}
	return out
}

func renderLog(res ports.RunResult, failure string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "command: %s\n", res.Command)
	fmt.Fprintf(&b, "exit_code: %d\n", res.ExitCode)
	fmt.Fprintf(&b, "duration: %s\n", res.Duration.Round(time.Millisecond))
	if failure != "" {
		fmt.Fprintf(&b, "error: %s\n", failure)
	}
	b.WriteString("\n--- stdout ---\n")
	b.WriteString(res.Stdout)
	b.WriteString("\n--- stderr ---\n")
	b.WriteString(res.Stderr)
	b.WriteString("\n")
	return b.String()
}

func joinErr(prev string, err error) string {
	if prev == "" {
		return err.Error()
	}
	return prev + "; " + err.Error()
}
