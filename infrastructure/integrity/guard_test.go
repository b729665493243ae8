package integrity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-quorum/internal/domain"
)

func ptr(f float64) *float64 { return &f }

func TestApplyTargetGuard(t *testing.T) {
	tests := []struct {
		name       string
		scores     map[string]domain.AssessmentScore
		target     *float64
		opts       GuardOptions
		wantStatus domain.IntegrityStatus
		wantScores map[string]float64
		wantReset  []string
	}{
		{
			name:       "two matches reset both",
			scores:     map[string]domain.AssessmentScore{"naming": {Score: 95}, "typing": {Score: 95}, "logic": {Score: 80}},
			target:     ptr(95),
			wantStatus: domain.IntegrityPenalized,
			wantScores: map[string]float64{"naming": 0, "typing": 0, "logic": 80},
			wantReset:  []string{"naming", "typing"},
		},
		{
			name:       "one match warns",
			scores:     map[string]domain.AssessmentScore{"naming": {Score: 95}, "typing": {Score: 94.9}},
			target:     ptr(95),
			wantStatus: domain.IntegrityWarn,
			wantScores: map[string]float64{"naming": 95, "typing": 94.9},
			wantReset:  []string{},
		},
		{
			name:       "tolerance widens the band",
			scores:     map[string]domain.AssessmentScore{"naming": {Score: 95}, "typing": {Score: 94.9}},
			target:     ptr(95),
			opts:       GuardOptions{Tolerance: 0.1 + 1e-9},
			wantStatus: domain.IntegrityPenalized,
			wantScores: map[string]float64{"naming": 0, "typing": 0},
			wantReset:  []string{"naming", "typing"},
		},
		{
			name:       "objective dimensions are ignored",
			scores:     map[string]domain.AssessmentScore{"naming": {Score: 95}, "test_coverage": {Score: 95}},
			target:     ptr(95),
			opts:       GuardOptions{SubjectiveDimensions: []string{"naming"}},
			wantStatus: domain.IntegrityWarn,
			wantScores: map[string]float64{"naming": 95, "test_coverage": 95},
			wantReset:  []string{},
		},
		{
			name:       "no match passes",
			scores:     map[string]domain.AssessmentScore{"naming": {Score: 60}},
			target:     ptr(95),
			wantStatus: domain.IntegrityPass,
			wantScores: map[string]float64{"naming": 60},
			wantReset:  []string{},
		},
		{
			name:       "nil target disables",
			scores:     map[string]domain.AssessmentScore{"naming": {Score: 95}, "typing": {Score: 95}},
			wantStatus: domain.IntegrityDisabled,
			wantScores: map[string]float64{"naming": 95, "typing": 95},
			wantReset:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, rec := ApplyTargetGuard(tt.scores, tt.target, tt.opts)

			assert.Equal(t, tt.wantStatus, rec.Status)
			assert.Equal(t, tt.wantReset, rec.ResetDimensions)
			for dim, want := range tt.wantScores {
				assert.Equal(t, want, got[dim].Score, dim)
			}
			for _, dim := range tt.wantReset {
				assert.Equal(t, PenaltyTargetMatchReset, got[dim].IntegrityPenalty)
				assert.NotZero(t, tt.scores[dim].Score, "input must not be mutated")
			}
		})
	}
}

func TestApplyTargetGuard_CompositeKeepsComponents(t *testing.T) {
	scores := map[string]domain.AssessmentScore{
		domain.CompositeDimension: {Score: 90, Components: []string{"Indirection cost"}, ComponentScores: map[string]float64{"Indirection cost": 88}},
		"naming":                  {Score: 90},
	}
	got, rec := ApplyTargetGuard(scores, ptr(90), GuardOptions{})
	require.Equal(t, domain.IntegrityPenalized, rec.Status)

	composite := got[domain.CompositeDimension]
	assert.Equal(t, 0.0, composite.Score)
	assert.Equal(t, []string{"Indirection cost"}, composite.Components)
	assert.True(t, got["naming"].IsComposite(), "penalty marker forces object encoding")
}

func TestBaselineAndViolation(t *testing.T) {
	rec := Baseline(ptr(95.456))
	require.NotNil(t, rec.TargetScore)
	assert.Equal(t, 95.46, *rec.TargetScore)
	assert.Equal(t, domain.IntegrityPass, rec.Status)
	assert.Nil(t, Violation(rec))

	assert.Equal(t, domain.IntegrityDisabled, Baseline(nil).Status)

	_, penalized := ApplyTargetGuard(map[string]domain.AssessmentScore{"a": {Score: 95}, "b": {Score: 95}}, ptr(95), GuardOptions{})
	v := Violation(penalized)
	require.NotNil(t, v)
	assert.True(t, v.Penalized)
	assert.Equal(t, 95.0, v.Target)
	assert.Equal(t, []string{"a", "b"}, v.Dimensions)
}

func TestCommittedAssessments(t *testing.T) {
	stored := map[string]domain.StoredAssessment{
		"logic":  {Score: 90, Source: "earlier", IntegrityPenalty: PenaltyTargetMatchReset},
		"naming": {Score: 40, ComponentScores: map[string]float64{"a": 40}},
	}
	current := map[string]domain.AssessmentScore{
		"naming": {Score: 75},
		"typing": {Score: 60, ComponentScores: map[string]float64{"b": 60}},
	}

	got := CommittedAssessments(stored, current)
	require.Len(t, got, 3)
	assert.Equal(t, 90.0, got["logic"].Score)
	assert.Equal(t, PenaltyTargetMatchReset, got["logic"].IntegrityPenalty)
	assert.Equal(t, domain.AssessmentScore{Score: 75}, got["naming"], "current replaces stored")
	assert.Equal(t, 60.0, got["typing"].ComponentScores["b"])

	got["typing"].ComponentScores["b"] = 1
	assert.Equal(t, 60.0, current["typing"].ComponentScores["b"], "inputs are copied")
	assert.Equal(t, 40.0, stored["naming"].ComponentScores["a"])

	assert.Empty(t, CommittedAssessments(nil, nil))
}
