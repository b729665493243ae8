package units

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-quorum/infrastructure/consensus"
	"github.com/ahrav/go-quorum/infrastructure/integrity"
	"github.com/ahrav/go-quorum/internal/domain"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func note(evidence string) domain.Note {
	return domain.Note{
		Evidence:    []string{evidence},
		ImpactScope: "module",
		FixScope:    "single_edit",
		Confidence:  domain.ConfidenceMedium,
	}
}

func batch(idx int, scores map[string]float64, findings ...domain.Finding) domain.NormalizedBatchResult {
	notes := make(map[string]domain.Note, len(scores))
	for dim := range scores {
		notes[dim] = note("evidence for " + dim)
	}
	return domain.NormalizedBatchResult{
		BatchIndex:     idx,
		Assessments:    scores,
		DimensionNotes: notes,
		Findings:       findings,
	}
}

func finding(dim, ident string) domain.Finding {
	return domain.Finding{
		Dimension:   dim,
		Identifier:  ident,
		Summary:     "summary for " + ident,
		Confidence:  domain.ConfidenceMedium,
		ImpactScope: "module",
		FixScope:    "single_edit",
	}
}

func TestConstructors_RejectEmptyName(t *testing.T) {
	_, err := NewMergeUnit("", consensus.DefaultScoringPolicy())
	assert.ErrorIs(t, err, ErrEmptyUnitName)
	_, err = NewIntegrityUnit("", IntegrityConfig{}, nil)
	assert.ErrorIs(t, err, ErrEmptyUnitName)
	_, err = NewReconcileUnit("", ReconcileConfig{}, nil, nil)
	assert.ErrorIs(t, err, ErrEmptyUnitName)
}

func TestConstructors_ValidateConfig(t *testing.T) {
	bad := 140.0
	_, err := NewIntegrityUnit("integrity", IntegrityConfig{Target: &bad}, nil)
	assert.Error(t, err)

	_, err = NewReconcileUnit("reconcile", ReconcileConfig{HistoryLimit: -1}, nil, nil)
	assert.Error(t, err)

	policy := consensus.DefaultScoringPolicy()
	policy.MaxPenalty = 500
	_, err = NewMergeUnit("merge", policy)
	assert.Error(t, err)
}

func TestMergeUnit_RequiresBatches(t *testing.T) {
	u, err := NewMergeUnit("merge", consensus.DefaultScoringPolicy())
	require.NoError(t, err)

	_, err = u.Execute(context.Background(), domain.NewState())
	assert.ErrorIs(t, err, domain.ErrNoBatches)

	state := domain.With(domain.NewState(), domain.KeyBatchResults, []domain.NormalizedBatchResult{})
	_, err = u.Execute(context.Background(), state)
	assert.ErrorIs(t, err, domain.ErrNoBatches)
}

func TestMergeUnit_WritesConsensus(t *testing.T) {
	u, err := NewMergeUnit("merge", consensus.DefaultScoringPolicy())
	require.NoError(t, err)
	assert.Equal(t, "merge", u.Name())

	state := domain.With(domain.NewState(), domain.KeyBatchResults, []domain.NormalizedBatchResult{
		batch(1, map[string]float64{"naming_quality": 80}),
		batch(2, map[string]float64{"naming_quality": 70}),
	})
	state = domain.With(state, domain.KeyReviewedFiles, []string{"a.go", "b.go"})

	next, err := u.Execute(context.Background(), state)
	require.NoError(t, err)

	mc, ok := domain.Get(next, domain.KeyConsensus)
	require.True(t, ok)
	assert.InDelta(t, 75.0, mc.Assessments["naming_quality"].Score, 0.01)
	assert.Equal(t, []string{"a.go", "b.go"}, mc.ReviewedFiles)

	_, ok = domain.Get(state, domain.KeyConsensus)
	assert.False(t, ok, "input state must not change")
}

func TestIntegrityUnit(t *testing.T) {
	target := 80.0
	tests := []struct {
		name       string
		stored     map[string]float64
		scores     map[string]float64
		subjective []string
		target     *float64
		wantStatus domain.IntegrityStatus
		wantScore  map[string]float64
		wantReset  []string
	}{
		{
			name:       "disabled without target",
			scores:     map[string]float64{"naming_quality": 80, "logic_clarity": 80},
			wantStatus: domain.IntegrityDisabled,
			wantScore:  map[string]float64{"naming_quality": 80, "logic_clarity": 80},
		},
		{
			name:       "two matches reset",
			scores:     map[string]float64{"naming_quality": 80, "logic_clarity": 80, "type_safety": 60},
			target:     &target,
			wantStatus: domain.IntegrityPenalized,
			wantScore:  map[string]float64{"naming_quality": 0, "logic_clarity": 0, "type_safety": 60},
			wantReset:  []string{"logic_clarity", "naming_quality"},
		},
		{
			name:       "single match warns",
			scores:     map[string]float64{"naming_quality": 80, "logic_clarity": 65},
			target:     &target,
			wantStatus: domain.IntegrityWarn,
			wantScore:  map[string]float64{"naming_quality": 80, "logic_clarity": 65},
		},
		{
			name:       "stored score counts toward reset",
			stored:     map[string]float64{"logic_clarity": 80},
			scores:     map[string]float64{"naming_quality": 80},
			target:     &target,
			wantStatus: domain.IntegrityPenalized,
			wantScore:  map[string]float64{"naming_quality": 0, "logic_clarity": 0},
			wantReset:  []string{"logic_clarity", "naming_quality"},
		},
		{
			name:       "consensus replaces stored score",
			stored:     map[string]float64{"naming_quality": 80, "logic_clarity": 80},
			scores:     map[string]float64{"naming_quality": 70},
			target:     &target,
			wantStatus: domain.IntegrityWarn,
			wantScore:  map[string]float64{"naming_quality": 70, "logic_clarity": 80},
		},
		{
			name:       "stored objective dimension is ignored",
			stored:     map[string]float64{"test_coverage": 80},
			scores:     map[string]float64{"naming_quality": 80},
			subjective: []string{"naming_quality"},
			target:     &target,
			wantStatus: domain.IntegrityWarn,
			wantScore:  map[string]float64{"naming_quality": 80, "test_coverage": 80},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mc := &domain.MergedConsensus{Assessments: map[string]domain.AssessmentScore{}}
			for dim, s := range tt.scores {
				mc.Assessments[dim] = domain.AssessmentScore{Score: s}
			}

			state := domain.With(domain.NewState(), domain.KeyConsensus, mc)
			if tt.stored != nil {
				rs := domain.NewReviewState()
				for dim, s := range tt.stored {
					rs.Assessments[dim] = domain.StoredAssessment{Score: s, Source: AssessmentSource, AssessedAt: fixedNow}
				}
				state = domain.With(state, domain.KeyReviewState, rs)
			}

			u, err := NewIntegrityUnit("integrity", IntegrityConfig{Target: tt.target, SubjectiveDimensions: tt.subjective}, nil)
			require.NoError(t, err)

			next, err := u.Execute(context.Background(), state)
			require.NoError(t, err)

			rec, ok := domain.Get(next, domain.KeyIntegrity)
			require.True(t, ok)
			assert.Equal(t, tt.wantStatus, rec.Status)
			if tt.wantReset != nil {
				assert.Equal(t, tt.wantReset, rec.ResetDimensions)
			}

			guarded, ok := domain.Get(next, domain.KeyGuardedAssessments)
			require.True(t, ok)
			for dim, want := range tt.wantScore {
				assert.InDelta(t, want, guarded[dim].Score, 0.001, dim)
			}
			for _, dim := range tt.wantReset {
				assert.Equal(t, integrity.PenaltyTargetMatchReset, guarded[dim].IntegrityPenalty, dim)
			}

			merged, _ := domain.Get(next, domain.KeyConsensus)
			for dim, s := range tt.scores {
				assert.InDelta(t, s, merged.Assessments[dim].Score, 0.001, "consensus keeps merged score for %s", dim)
			}
		})
	}
}

func TestIntegrityUnit_RequiresConsensus(t *testing.T) {
	u, err := NewIntegrityUnit("integrity", IntegrityConfig{}, nil)
	require.NoError(t, err)
	_, err = u.Execute(context.Background(), domain.NewState())
	assert.ErrorIs(t, err, ErrMissingConsensus)
}

func TestReconcileUnit_CommitsConsensus(t *testing.T) {
	u, err := NewReconcileUnit("reconcile", ReconcileConfig{Lang: "go"}, clock, nil)
	require.NoError(t, err)

	mc := &domain.MergedConsensus{
		Assessments: map[string]domain.AssessmentScore{"naming_quality": {Score: 72}},
		Findings:    []domain.Finding{finding("naming_quality", "vague_names")},
	}
	state := domain.With(domain.NewState(), domain.KeyConsensus, mc)
	state = domain.With(state, domain.KeyReviewedFiles, []string{"a.go"})

	next, err := u.Execute(context.Background(), state)
	require.NoError(t, err)

	diff, ok := domain.Get(next, domain.KeyScanDiff)
	require.True(t, ok)
	assert.Equal(t, 1, diff.New)

	rs, ok := domain.Get(next, domain.KeyReviewState)
	require.True(t, ok)
	require.Len(t, rs.Findings, 1)
	assert.Equal(t, 1, rs.ScanCount)
	assert.InDelta(t, 72.0, rs.Assessments["naming_quality"].Score, 0.001)
	for _, f := range rs.Findings {
		assert.Equal(t, domain.StatusOpen, f.Status)
		assert.Equal(t, "go", f.Lang)
	}
}

func TestReconcileUnit_LeavesOtherDetectorsAlone(t *testing.T) {
	rs := domain.NewReviewState()
	rs.Findings["smells::a.go::long_func"] = domain.PersistedFinding{
		ID:        "smells::a.go::long_func",
		Detector:  "smells",
		File:      "a.go",
		Status:    domain.StatusOpen,
		FirstSeen: fixedNow.Add(-time.Hour),
		LastSeen:  fixedNow.Add(-time.Hour),
	}

	u, err := NewReconcileUnit("reconcile", ReconcileConfig{}, clock, nil)
	require.NoError(t, err)

	state := domain.With(domain.NewState(), domain.KeyConsensus, &domain.MergedConsensus{})
	state = domain.With(state, domain.KeyReviewState, rs)

	next, err := u.Execute(context.Background(), state)
	require.NoError(t, err)

	got, _ := domain.Get(next, domain.KeyReviewState)
	assert.Equal(t, domain.StatusOpen, got.Findings["smells::a.go::long_func"].Status)
	diff, _ := domain.Get(next, domain.KeyScanDiff)
	assert.Zero(t, diff.AutoResolved)
}

func TestReconcileUnit_HonorsCancellation(t *testing.T) {
	u, err := NewReconcileUnit("reconcile", ReconcileConfig{}, clock, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = u.Execute(ctx, domain.With(domain.NewState(), domain.KeyConsensus, &domain.MergedConsensus{}))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStages_EndToEnd(t *testing.T) {
	target := 90.0
	merge, err := NewMergeUnit("merge", consensus.DefaultScoringPolicy())
	require.NoError(t, err)
	guard, err := NewIntegrityUnit("integrity", IntegrityConfig{Target: &target}, nil)
	require.NoError(t, err)
	rec, err := NewReconcileUnit("reconcile", ReconcileConfig{}, clock, nil)
	require.NoError(t, err)

	state := domain.With(domain.NewState(), domain.KeyBatchResults, []domain.NormalizedBatchResult{
		batch(1, map[string]float64{"naming_quality": 90, "logic_clarity": 90}),
		batch(2, map[string]float64{"naming_quality": 90, "logic_clarity": 90}),
	})
	for _, stage := range []interface {
		Execute(context.Context, domain.State) (domain.State, error)
	}{merge, guard, rec} {
		state, err = stage.Execute(context.Background(), state)
		require.NoError(t, err)
	}

	rs, _ := domain.Get(state, domain.KeyReviewState)
	require.NotNil(t, rs.SubjectiveIntegrity)
	assert.Equal(t, domain.IntegrityPenalized, rs.SubjectiveIntegrity.Status)
	assert.Zero(t, rs.Assessments["naming_quality"].Score)
}

func TestStages_SplitRunsShareTheGuard(t *testing.T) {
	target := 95.0
	merge, err := NewMergeUnit("merge", consensus.DefaultScoringPolicy())
	require.NoError(t, err)
	guard, err := NewIntegrityUnit("integrity", IntegrityConfig{Target: &target}, nil)
	require.NoError(t, err)
	commit, err := NewReconcileUnit("reconcile", ReconcileConfig{}, clock, nil)
	require.NoError(t, err)

	earlier := fixedNow.Add(-24 * time.Hour)
	rs := domain.NewReviewState()
	rs.Assessments["logic_clarity"] = domain.StoredAssessment{Score: 95, Source: AssessmentSource, AssessedAt: earlier}

	state := domain.With(domain.NewState(), domain.KeyBatchResults, []domain.NormalizedBatchResult{
		batch(1, map[string]float64{"naming_quality": 95}),
	})
	state = domain.With(state, domain.KeyReviewState, rs)
	for _, stage := range []interface {
		Execute(context.Context, domain.State) (domain.State, error)
	}{merge, guard, commit} {
		state, err = stage.Execute(context.Background(), state)
		require.NoError(t, err)
	}

	got, _ := domain.Get(state, domain.KeyReviewState)
	require.NotNil(t, got.SubjectiveIntegrity)
	assert.Equal(t, domain.IntegrityPenalized, got.SubjectiveIntegrity.Status)
	assert.Equal(t, 2, got.SubjectiveIntegrity.MatchedCount)
	for _, dim := range []string{"naming_quality", "logic_clarity"} {
		assert.Zero(t, got.Assessments[dim].Score, dim)
		assert.Equal(t, integrity.PenaltyTargetMatchReset, got.Assessments[dim].IntegrityPenalty, dim)
	}
	assert.Equal(t, earlier, got.Assessments["logic_clarity"].AssessedAt, "reset keeps the original assessment time")
	assert.Equal(t, fixedNow, got.Assessments["naming_quality"].AssessedAt)

	mc, _ := domain.Get(state, domain.KeyConsensus)
	assert.InDelta(t, 95.0, mc.Assessments["naming_quality"].Score, 0.001, "merged consensus is not rewritten by the guard")
}
