package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/ahrav/go-quorum/internal/domain"
	"github.com/ahrav/go-quorum/internal/ports"
)

var _ ports.Stage = (*StageMonitor)(nil)

// StageObserver provides observability hooks around a pipeline stage.
// Implementations can add tracing, metrics and logging without coupling
// those concerns to stage logic.
type StageObserver interface {
	// Before is called ahead of the stage and may return a derived context,
	// e.g. one carrying a span.
	Before(ctx context.Context, stage string, state domain.State) context.Context

	// After is called with the stage's output state, its duration and any
	// error it returned.
	After(ctx context.Context, stage string, state domain.State, elapsed time.Duration, err error)
}

// StageMonitor wraps a stage and reports every execution to its observers.
// It holds no mutable state and is safe for concurrent use.
type StageMonitor struct {
	next      ports.Stage
	observers []StageObserver
}

// NewStageMonitor wraps next. Nil observers are skipped.
func NewStageMonitor(next ports.Stage, observers ...StageObserver) *StageMonitor {
	kept := make([]StageObserver, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			kept = append(kept, o)
		}
	}
	return &StageMonitor{next: next, observers: kept}
}

// Name returns the wrapped stage's name so metrics and logs stay keyed by
// the real stage.
func (m *StageMonitor) Name() string {
	if m.next == nil {
		return "StageMonitor"
	}
	return m.next.Name()
}

// Execute runs the wrapped stage between the observer hooks.
func (m *StageMonitor) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	if m.next == nil {
		return state, errors.New("stage monitor: next stage is required")
	}
	name := m.next.Name()
	for _, o := range m.observers {
		ctx = o.Before(ctx, name, state)
	}

	start := time.Now()
	out, err := m.next.Execute(ctx, state)
	elapsed := time.Since(start)

	for i := len(m.observers) - 1; i >= 0; i-- {
		m.observers[i].After(ctx, name, out, elapsed, err)
	}
	return out, err
}

// Validate delegates to the wrapped stage.
func (m *StageMonitor) Validate() error {
	if m.next == nil {
		return errors.New("stage monitor: next stage is required")
	}
	return m.next.Validate()
}
