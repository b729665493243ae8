package dispatch

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-quorum/internal/domain"
	"github.com/ahrav/go-quorum/internal/testutils"
)

func prepareRun(t *testing.T, n int) (RunLayout, []domain.Batch) {
	t.Helper()
	layout := NewRunLayout(t.TempDir(), time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, layout.Create())

	batches := make([]domain.Batch, n)
	for i := range batches {
		batches[i] = domain.Batch{Index: i + 1, Dimensions: []string{"naming"}, FilesToRead: []string{fmt.Sprintf("f%d.go", i+1)}}
	}
	prepared, err := layout.PrepareBatches(batches, func(b domain.Batch) (string, error) {
		return fmt.Sprintf("review batch-%d", b.Index), nil
	})
	require.NoError(t, err)
	return layout, prepared
}

func promptsOf(batches []domain.Batch) func(int) string {
	return func(idx int) string { return batches[idx-1].Prompt }
}

// TestExecuteBatches_TimeoutIsolated runs three batches where the second
// exceeds its timeout.
func TestExecuteBatches_TimeoutIsolated(t *testing.T) {
	layout, batches := prepareRun(t, 3)
	runner := testutils.NewMockRunner(testutils.MockResponse{
		Stdout: testutils.BatchOutput(map[string]float64{"naming": 80}),
	}).AddResponse(testutils.MockResponse{Pattern: "batch-2", Delay: 5 * time.Second})

	exec := NewBatchExecutor(runner, 50*time.Millisecond, nil)
	failed := ExecuteBatches(context.Background(), []int{1, 2, 3}, promptsOf(batches), exec.BatchFunc(batches),
		ExecuteOptions{Parallel: true})

	assert.Equal(t, []int{2}, failed)
	for _, idx := range []int{1, 2, 3} {
		assert.FileExists(t, layout.OutputPath(idx))
		assert.FileExists(t, layout.LogPath(idx))
	}

	out, err := os.ReadFile(layout.OutputPath(1))
	require.NoError(t, err)
	assert.Contains(t, string(out), `"assessments"`)

	log2, err := os.ReadFile(layout.LogPath(2))
	require.NoError(t, err)
	assert.Contains(t, string(log2), "exit_code: 124")
	assert.Contains(t, string(log2), "timeout after")

	outcomes := exec.Outcomes()
	assert.Equal(t, domain.ExitTimeout, outcomes[2].ExitCode)
	assert.Equal(t, domain.ExitOK, outcomes[3].ExitCode)
}

func TestExecuteBatches_PanicIsIsolated(t *testing.T) {
	layout, batches := prepareRun(t, 3)
	runner := testutils.NewMockRunner(testutils.MockResponse{Stdout: "{}"}).
		AddResponse(testutils.MockResponse{Pattern: "batch-1", Panic: true})
	exec := NewBatchExecutor(runner, time.Second, nil)

	for _, parallel := range []bool{false, true} {
		t.Run(fmt.Sprintf("parallel=%v", parallel), func(t *testing.T) {
			failed := ExecuteBatches(context.Background(), []int{1, 2, 3}, promptsOf(batches), exec.BatchFunc(batches),
				ExecuteOptions{Parallel: parallel})
			assert.Equal(t, []int{1}, failed)
			assert.FileExists(t, layout.OutputPath(3))

			log1, err := os.ReadFile(layout.LogPath(1))
			require.NoError(t, err)
			assert.Contains(t, string(log1), "reviewer panicked")
		})
	}
}

func TestExecuteBatches_NonZeroExitPassesThrough(t *testing.T) {
	_, batches := prepareRun(t, 2)
	runner := testutils.NewMockRunner(testutils.MockResponse{Stdout: "ok"}).
		AddResponse(testutils.MockResponse{Pattern: "batch-2", ExitCode: 3})
	exec := NewBatchExecutor(runner, time.Second, nil)

	failed := ExecuteBatches(context.Background(), []int{2, 1}, promptsOf(batches), exec.BatchFunc(batches), ExecuteOptions{})
	assert.Equal(t, []int{2}, failed)
	assert.Equal(t, 3, exec.Outcomes()[2].ExitCode)
}

func TestExecuteBatches_SequentialOrder(t *testing.T) {
	var (
		mu    sync.Mutex
		order []int
	)
	run := func(_ context.Context, idx int, _ string) int {
		mu.Lock()
		order = append(order, idx)
		mu.Unlock()
		return domain.ExitOK
	}
	failed := ExecuteBatches(context.Background(), []int{3, 1, 2}, func(int) string { return "" }, run, ExecuteOptions{})
	assert.Empty(t, failed)
	assert.Equal(t, []int{3, 1, 2}, order)
}

func TestExecuteBatches_PoolIsBounded(t *testing.T) {
	var inFlight, peak atomic.Int32
	run := func(_ context.Context, idx int, _ string) int {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		if idx%5 == 0 {
			return domain.ExitFault
		}
		return domain.ExitOK
	}

	indices := make([]int, 20)
	for i := range indices {
		indices[i] = i + 1
	}
	failed := ExecuteBatches(context.Background(), indices, func(int) string { return "" }, run,
		ExecuteOptions{Parallel: true, MaxWorkers: 3})

	assert.Equal(t, []int{5, 10, 15, 20}, failed)
	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Greater(t, peak.Load(), int32(1))
}

func TestExecuteBatches_PromptPanicIsIsolated(t *testing.T) {
	promptFor := func(idx int) string {
		if idx == 2 {
			panic("template exploded")
		}
		return ""
	}
	run := func(context.Context, int, string) int { return domain.ExitOK }
	failed := ExecuteBatches(context.Background(), []int{1, 2, 3}, promptFor, run, ExecuteOptions{Parallel: true})
	assert.Equal(t, []int{2}, failed)
}

func TestBatchFunc_UnknownIndex(t *testing.T) {
	exec := NewBatchExecutor(testutils.NewMockRunner(testutils.MockResponse{}), time.Second, nil)
	assert.Equal(t, domain.ExitFault, exec.BatchFunc(nil)(context.Background(), 9, "x"))
}
