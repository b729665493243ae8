// Package dispatch executes review batches against an external reviewer with
// per-batch fault isolation, durable artifacts and operator-facing failure
// reports.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-quorum/internal/domain"
)

// DefaultMaxWorkers bounds the parallel worker pool.
const DefaultMaxWorkers = 8

// BatchFunc runs one batch and returns its exit code. Implementations must
// write the batch's raw output and log before returning.
type BatchFunc func(ctx context.Context, index int, prompt string) int

// ExecuteOptions selects how ExecuteBatches schedules work.
type ExecuteOptions struct {
	// Parallel runs batches on a bounded worker pool. When false, batches
	// run one at a time in the given order.
	Parallel bool

	// MaxWorkers caps the pool size. Zero selects DefaultMaxWorkers.
	MaxWorkers int

	// Logger receives per-batch progress. Nil uses slog.Default().
	Logger *slog.Logger
}

// ExecuteBatches runs every selected 1-based batch index and returns the
// sorted indices that failed. A failing or panicking batch never stops its
// siblings; the only shared effect is the failure set.
func ExecuteBatches(ctx context.Context, indices []int, promptFor func(int) string, runBatch BatchFunc, opts ExecuteOptions) []int {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var (
		mu     sync.Mutex
		failed []int
	)
	record := func(idx, code int) {
		if code == domain.ExitOK {
			logger.Info("batch finished", "batch", idx)
			return
		}
		logger.Warn("batch failed", "batch", idx, "exit_code", code)
		mu.Lock()
		failed = append(failed, idx)
		mu.Unlock()
	}

	run := func(idx int) {
		logger.Info("batch started", "batch", idx)
		record(idx, safeRun(ctx, idx, promptFor, runBatch, logger))
	}

	if !opts.Parallel || len(indices) <= 1 {
		for _, idx := range indices {
			run(idx)
		}
	} else {
		workers := opts.MaxWorkers
		if workers <= 0 {
			workers = DefaultMaxWorkers
		}
		workers = min(workers, len(indices))

		// A plain Group: one batch's failure must not cancel the others.
		var g errgroup.Group
		g.SetLimit(workers)
		for _, idx := range indices {
			g.Go(func() error {
				run(idx)
				return nil
			})
		}
		_ = g.Wait()
	}

	sort.Ints(failed)
	return failed
}

// safeRun converts a panic in prompt rendering or the batch itself into
// ExitFault.
func safeRun(ctx context.Context, idx int, promptFor func(int) string, runBatch BatchFunc, logger *slog.Logger) (code int) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("batch panicked", "batch", idx, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			code = domain.ExitFault
		}
	}()
	return runBatch(ctx, idx, promptFor(idx))
}
