package application

import (
	"context"
	"fmt"
	"os"

	"github.com/ahrav/go-quorum/infrastructure/lifecycle"
	"github.com/ahrav/go-quorum/infrastructure/payload"
	"github.com/ahrav/go-quorum/internal/domain"
)

// MergeOptions configures MergeOutputs.
type MergeOptions struct {
	// AllowedDimensions bounds accepted assessment keys. Empty admits all.
	AllowedDimensions []string
	// Target enables the integrity guard on the merged scores.
	Target *float64
}

// MergeOutputs normalizes raw batch outputs read from paths and merges them
// into one consensus without touching the store. The consensus keeps the
// merged scores; the record reports target collisions among them. The i-th
// path is treated as batch i+1. Any invalid output fails the whole merge.
func (s *ReviewService) MergeOutputs(ctx context.Context, paths []string, opts MergeOptions) (*domain.MergedConsensus, *domain.IntegrityRecord, error) {
	if len(paths) == 0 {
		return nil, nil, fmt.Errorf("merge: %w", domain.ErrNoBatches)
	}
	packet := &domain.Packet{AllowedDimensions: opts.AllowedDimensions}
	results := make([]domain.NormalizedBatchResult, 0, len(paths))
	for i, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("read batch output: %w", err)
		}
		res, err := payload.Normalize(string(raw), s.normalizeOptions(i+1, packet))
		if err != nil {
			return nil, nil, fmt.Errorf("batch %d (%s): %w", i+1, path, err)
		}
		results = append(results, res)
	}

	pipeline, err := s.buildPipeline(opts.Target, StageMerge, StageIntegrity)
	if err != nil {
		return nil, nil, err
	}
	out, err := pipeline.Execute(ctx, domain.With(domain.NewState(), domain.KeyBatchResults, results))
	if err != nil {
		return nil, nil, err
	}
	mc, err := domain.MustGet(out, domain.KeyConsensus)
	if err != nil {
		return nil, nil, err
	}
	rec, err := domain.MustGet(out, domain.KeyIntegrity)
	if err != nil {
		return nil, nil, err
	}
	return mc, rec, nil
}

// ImportConsensus guards and reconciles an already merged consensus into
// the store, for consensus files produced by an earlier merge. target
// overrides the configured integrity target when set.
func (s *ReviewService) ImportConsensus(ctx context.Context, mc *domain.MergedConsensus, target *float64) (*domain.ScanDiff, error) {
	if mc == nil {
		return nil, fmt.Errorf("import: %w", domain.ErrNoValidPayload)
	}
	state, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load review state: %w", err)
	}

	pipeline, err := s.buildPipeline(target, StageIntegrity, StageReconcile)
	if err != nil {
		return nil, err
	}
	initial := domain.With(domain.NewState(), domain.KeyConsensus, mc)
	initial = domain.With(initial, domain.KeyReviewState, state)
	if len(mc.ReviewedFiles) > 0 {
		initial = domain.With(initial, domain.KeyReviewedFiles, mc.ReviewedFiles)
	}
	if mc.Provenance != nil {
		initial = domain.With(initial, domain.KeyRunID, mc.Provenance.RunID)
	}

	out, err := pipeline.Execute(ctx, initial)
	if err != nil {
		return nil, err
	}
	next, err := domain.MustGet(out, domain.KeyReviewState)
	if err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, next); err != nil {
		return nil, err
	}
	return domain.MustGet(out, domain.KeyScanDiff)
}

// Resolve records a manual resolution of one finding and saves the state.
func (s *ReviewService) Resolve(ctx context.Context, id string, status domain.FindingStatus, note string) (*domain.PersistedFinding, error) {
	return s.mutateFinding(ctx, id, func(state *domain.ReviewState) error {
		return lifecycle.Resolve(state, id, status, note, s.now())
	})
}

// Reopen manually reopens one finding and saves the state.
func (s *ReviewService) Reopen(ctx context.Context, id string) (*domain.PersistedFinding, error) {
	return s.mutateFinding(ctx, id, func(state *domain.ReviewState) error {
		return lifecycle.Reopen(state, id, s.now())
	})
}

func (s *ReviewService) mutateFinding(ctx context.Context, id string, apply func(*domain.ReviewState) error) (*domain.PersistedFinding, error) {
	state, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load review state: %w", err)
	}
	if err := apply(state); err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, state); err != nil {
		return nil, err
	}
	f := state.Findings[id]
	s.logger.Info("finding updated", "finding", id, "status", f.Status, "reopen_count", f.ReopenCount)
	return &f, nil
}
