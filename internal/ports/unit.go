// Package ports defines the core interfaces that form the contract between
// the domain/application layers and the infrastructure layer.
// These interfaces enable dependency inversion and make the system testable.
package ports

import (
	"context"

	"github.com/ahrav/go-quorum/internal/domain"
)

// Stage is one step of the post-dispatch pipeline. Each Stage performs a
// single transformation on the pipeline State (merge, integrity guard,
// reconcile) and returns a new State.
// Stages must be stateless apart from their configuration.
type Stage interface {
	// Name returns a unique identifier for this stage.
	// The name is used for logging, tracing, and metrics labels.
	Name() string

	// Execute performs the stage's transformation on the provided State.
	// It returns a new State containing the results of the transformation.
	// The original State must not be modified.
	//
	// Example:
	//
	//	next, err := stage.Execute(ctx, state)
	//	if err != nil {
	//	    return state, fmt.Errorf("stage %s failed: %w", stage.Name(), err)
	//	}
	Execute(ctx context.Context, state domain.State) (domain.State, error)

	// Validate checks that the stage is configured and ready to run.
	Validate() error
}
