package application

import (
	"context"
	"fmt"
	"sync"

	"github.com/ahrav/go-quorum/internal/domain"
	"github.com/ahrav/go-quorum/internal/ports"
)

// Pipeline is a sequential container of post-dispatch stages. Each stage's
// output State becomes the input of the next one.
type Pipeline struct {
	id     string
	stages []ports.Stage
	names  map[string]struct{}
	mu     sync.RWMutex
}

// NewPipeline creates an empty pipeline.
func NewPipeline(id string) *Pipeline {
	return &Pipeline{
		id:     id,
		stages: make([]ports.Stage, 0),
		names:  make(map[string]struct{}),
	}
}

// ID returns the pipeline identifier.
func (p *Pipeline) ID() string { return p.id }

// Add appends a stage. It returns an error if the stage is nil or its name
// is already taken.
func (p *Pipeline) Add(stage ports.Stage) error {
	if stage == nil {
		return fmt.Errorf("cannot add nil stage to pipeline")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	name := stage.Name()
	if _, exists := p.names[name]; exists {
		return fmt.Errorf("stage with name %s already exists in pipeline", name)
	}
	p.stages = append(p.stages, stage)
	p.names[name] = struct{}{}
	return nil
}

// Stages returns a copy of the ordered stage list.
func (p *Pipeline) Stages() []ports.Stage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]ports.Stage, len(p.stages))
	copy(out, p.stages)
	return out
}

// Validate checks every stage in order.
func (p *Pipeline) Validate() error {
	for _, s := range p.Stages() {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("pipeline %s: stage %s: %w", p.id, s.Name(), err)
		}
	}
	return nil
}

// Execute runs the stages in order. Cancellation is checked between stages;
// a failing stage stops the run and the last good State is returned with
// the error.
func (p *Pipeline) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	current := state
	for _, stage := range p.Stages() {
		select {
		case <-ctx.Done():
			return current, ctx.Err()
		default:
		}
		next, err := stage.Execute(ctx, current)
		if err != nil {
			return current, fmt.Errorf("pipeline %s: execution failed at %s: %w", p.id, stage.Name(), err)
		}
		current = next
	}
	return current, nil
}
