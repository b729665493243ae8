package testutils

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ahrav/go-quorum/internal/domain"
	"github.com/ahrav/go-quorum/internal/ports"
)

var _ ports.ReviewRunner = (*MockRunner)(nil)

// MockResponse is a scripted reviewer outcome selected by prompt substring.
type MockResponse struct {
	// Pattern is matched against the prompt (substring matching).
	Pattern string
	// Stdout is the raw batch output returned on success.
	Stdout string
	// Stderr is returned alongside Stdout.
	Stderr string
	// ExitCode is the reviewer exit code to report.
	ExitCode int
	// Delay simulates reviewer latency. A delay longer than the timeout
	// yields a 124 timeout.
	Delay time.Duration
	// Panic makes the runner panic, for fault-isolation tests.
	Panic bool
}

// MockRunner implements ports.ReviewRunner with deterministic scripted
// responses. It is safe for concurrent use.
type MockRunner struct {
	mu        sync.Mutex
	responses []MockResponse
	fallback  MockResponse
	calls     []string
}

// NewMockRunner creates a runner whose unmatched prompts get fallback.
func NewMockRunner(fallback MockResponse) *MockRunner {
	return &MockRunner{fallback: fallback}
}

// AddResponse registers a scripted response. Earlier patterns win.
func (m *MockRunner) AddResponse(r MockResponse) *MockRunner {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, r)
	return m
}

// Calls returns the prompts received so far.
func (m *MockRunner) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// Describe implements ports.ReviewRunner.
func (m *MockRunner) Describe() string { return "mock" }

// Run implements ports.ReviewRunner.
func (m *MockRunner) Run(ctx context.Context, prompt string, timeout time.Duration) (ports.RunResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, prompt)
	resp := m.fallback
	for _, r := range m.responses {
		if strings.Contains(prompt, r.Pattern) {
			resp = r
			break
		}
	}
	m.mu.Unlock()

	if resp.Panic {
		panic("mock runner: scripted panic")
	}

	res := ports.RunResult{Command: "mock", Stdout: resp.Stdout, Stderr: resp.Stderr, ExitCode: resp.ExitCode}
	start := time.Now()
	if resp.Delay > 0 {
		wait := resp.Delay
		timedOut := timeout > 0 && timeout < wait
		if timedOut {
			wait = timeout
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			res.Duration = time.Since(start)
			res.ExitCode = domain.ExitFault
			return res, ctx.Err()
		}
		if timedOut {
			res.Duration = time.Since(start)
			res.Stdout = ""
			res.ExitCode = domain.ExitTimeout
			return res, domain.NewTimeoutError("mock", timeout)
		}
	}
	res.Duration = time.Since(start)
	if res.ExitCode != domain.ExitOK {
		return res, fmt.Errorf("mock reviewer exited with code %d", res.ExitCode)
	}
	return res, nil
}
