package units

import (
	"context"
	"fmt"

	"github.com/ahrav/go-quorum/infrastructure/consensus"
	"github.com/ahrav/go-quorum/internal/domain"
	"github.com/ahrav/go-quorum/internal/ports"
)

var _ ports.Stage = (*MergeUnit)(nil)

// MergeUnit folds every normalized batch result into one consensus.
//
// State requirements:
//   - domain.KeyBatchResults: at least one normalized batch
//   - domain.KeyReviewedFiles: optional, copied onto the consensus
//
// Produces domain.KeyConsensus. The merge is order-independent, so the
// output does not depend on which batch finished first.
type MergeUnit struct {
	name   string
	policy consensus.ScoringPolicy
}

// NewMergeUnit validates policy and returns the stage.
func NewMergeUnit(name string, policy consensus.ScoringPolicy) (*MergeUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("scoring policy validation failed: %w", err)
	}
	return &MergeUnit{name: name, policy: policy}, nil
}

// Name returns the stage name.
func (u *MergeUnit) Name() string { return u.name }

// Execute merges the batch results.
func (u *MergeUnit) Execute(_ context.Context, state domain.State) (domain.State, error) {
	results, ok := domain.Get(state, domain.KeyBatchResults)
	if !ok || len(results) == 0 {
		return state, fmt.Errorf("merge: %w", domain.ErrNoBatches)
	}

	mc := consensus.Merge(results, u.policy)
	if files, ok := domain.Get(state, domain.KeyReviewedFiles); ok {
		mc.ReviewedFiles = files
	}
	return domain.With(state, domain.KeyConsensus, &mc), nil
}

// Validate checks the configured policy.
func (u *MergeUnit) Validate() error {
	return u.policy.Validate()
}
