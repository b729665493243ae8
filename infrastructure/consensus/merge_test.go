package consensus

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-quorum/internal/domain"
)

func testNote(conf domain.Confidence, impact, fix string, evidence ...string) domain.Note {
	return domain.Note{Evidence: evidence, ImpactScope: impact, FixScope: fix, Confidence: conf}
}

func moduleFinding(dim, ident string) domain.Finding {
	return domain.Finding{
		Dimension:   dim,
		Identifier:  ident,
		Summary:     "summary for " + ident,
		Confidence:  domain.ConfidenceMedium,
		ImpactScope: "module",
		FixScope:    "single_edit",
	}
}

func TestMerge_SevereFindingPenalizesHighScore(t *testing.T) {
	const dim = "high_level_elegance"
	results := []domain.NormalizedBatchResult{{
		BatchIndex:  1,
		Assessments: map[string]float64{dim: 92},
		DimensionNotes: map[string]domain.Note{
			dim: testNote(domain.ConfidenceHigh, "codebase", "architectural_change", "layering is inconsistent around shared core"),
		},
		Findings: []domain.Finding{{
			Dimension:   dim,
			Identifier:  "core_boundary_drift",
			Summary:     "boundary drift across critical modules",
			Confidence:  domain.ConfidenceHigh,
			ImpactScope: "codebase",
			FixScope:    "architectural_change",
		}},
	}}

	got := Merge(results, DefaultScoringPolicy())

	assert.Equal(t, 75.7, got.Assessments[dim].Score)
	assert.Equal(t, 4.08, got.ReviewQuality.FindingPressure)
	assert.Equal(t, 1, got.ReviewQuality.DimensionsWithFindings)
}

func TestMerge_NoFindingsKeepsWeightedMean(t *testing.T) {
	const dim = "mid_level_elegance"
	got := Merge([]domain.NormalizedBatchResult{{
		BatchIndex:     1,
		Assessments:    map[string]float64{dim: 88},
		DimensionNotes: map[string]domain.Note{dim: testNote(domain.ConfidenceMedium, "module", "single_edit", "seams are coherent")},
	}}, DefaultScoringPolicy())

	assert.Equal(t, 88.0, got.Assessments[dim].Score)
	assert.False(t, got.Assessments[dim].IsComposite())
}

// TestMerge_PressureAdjustedBelowAverage merges a 70 with one finding and a
// 90 with two findings on the same dimension.
func TestMerge_PressureAdjustedBelowAverage(t *testing.T) {
	const dim = "logic_clarity"
	results := []domain.NormalizedBatchResult{
		{
			BatchIndex:     1,
			Assessments:    map[string]float64{dim: 70},
			DimensionNotes: map[string]domain.Note{dim: testNote(domain.ConfidenceMedium, "module", "single_edit", "e1")},
			Findings:       []domain.Finding{moduleFinding(dim, "a")},
		},
		{
			BatchIndex:     2,
			Assessments:    map[string]float64{dim: 90},
			DimensionNotes: map[string]domain.Note{dim: testNote(domain.ConfidenceMedium, "module", "single_edit", "e2")},
			Findings:       []domain.Finding{moduleFinding(dim, "b"), moduleFinding(dim, "c")},
		},
	}

	got := Merge(results, DefaultScoringPolicy())

	score := got.Assessments[dim].Score
	assert.Less(t, score, 80.0)
	// weighted mean (70*3 + 90*4)/7 = 81.43, minus 4*3.6 + 1.5*2.
	assert.Equal(t, 64.0, score)
	assert.Len(t, got.Findings, 3)
	assert.Equal(t, 2, got.ReviewQuality.BatchCount)
}

func TestMerge_DeterministicUnderPermutation(t *testing.T) {
	results := []domain.NormalizedBatchResult{
		{
			BatchIndex:  1,
			Assessments: map[string]float64{"naming": 71.3, domain.CompositeDimension: 64},
			DimensionNotes: map[string]domain.Note{
				"naming": testNote(domain.ConfidenceHigh, "module", "single_edit", "n1", "n2"),
				domain.CompositeDimension: {
					Evidence: []string{"x"}, ImpactScope: "subsystem", FixScope: "multi_file_refactor", Confidence: domain.ConfidenceLow,
					SubAxes: map[string]float64{domain.AxisAbstractionLeverage: 60, domain.AxisInterfaceHonesty: 70},
				},
			},
			Findings: []domain.Finding{
				{Dimension: "naming", Summary: "Vague handler names in routing", RelatedFiles: []string{"a.go"}, ImpactScope: "module", FixScope: "single_edit", Confidence: domain.ConfidenceHigh},
				moduleFinding(domain.CompositeDimension, "wrapper_layers"),
			},
			Quality: domain.BatchQuality{DimensionCoverage: 0.5, EvidenceDensity: 1.5, HighScoreWithoutRisk: 0},
		},
		{
			BatchIndex:  2,
			Assessments: map[string]float64{"naming": 83.9},
			DimensionNotes: map[string]domain.Note{
				"naming": testNote(domain.ConfidenceMedium, "module", "single_edit", "m1"),
			},
			Findings: []domain.Finding{
				{Dimension: "naming", Summary: "routing handler names: vague", RelatedFiles: []string{"b.go"}, ImpactScope: "module", FixScope: "single_edit", Confidence: domain.ConfidenceLow},
			},
			Quality: domain.BatchQuality{DimensionCoverage: 0.25, EvidenceDensity: 1, HighScoreWithoutRisk: 0},
		},
		{
			BatchIndex:  3,
			Assessments: map[string]float64{domain.CompositeDimension: 91, "typing": 99},
			DimensionNotes: map[string]domain.Note{
				domain.CompositeDimension: {
					Evidence: []string{"y", "z"}, ImpactScope: "module", FixScope: "single_edit", Confidence: domain.ConfidenceHigh,
					SubAxes: map[string]float64{domain.AxisAbstractionLeverage: 90, domain.AxisIndirectionCost: 80},
				},
				"typing": testNote(domain.ConfidenceHigh, "local", "single_edit", "t"),
			},
			Quality: domain.BatchQuality{DimensionCoverage: 0.5, EvidenceDensity: 3, HighScoreWithoutRisk: 2},
		},
	}

	policy := DefaultScoringPolicy()
	want := Merge(results, policy)

	for _, perm := range permutations(len(results)) {
		t.Run(fmt.Sprint(perm), func(t *testing.T) {
			shuffled := make([]domain.NormalizedBatchResult, len(perm))
			for i, idx := range perm {
				shuffled[i] = results[idx]
			}
			got := Merge(shuffled, policy)
			assert.Equal(t, want.Assessments, got.Assessments)
			assert.Equal(t, want.ReviewQuality, got.ReviewQuality)
			assert.ElementsMatch(t, want.Findings, got.Findings)
			assert.Equal(t, want.DimensionNotes, got.DimensionNotes)
		})
	}

	composite := want.Assessments[domain.CompositeDimension]
	require.True(t, composite.IsComposite())
	assert.Equal(t, []string{"Abstraction leverage", "Indirection cost", "Interface honesty"}, composite.Components)
	assert.Equal(t, 2, want.ReviewQuality.HighScoreWithoutRisk)
	assert.Equal(t, 3, want.ReviewQuality.BatchCount)
	assert.Len(t, want.Findings, 2, "summary token dedup collapses the two naming findings")
}

func permutations(n int) [][]int {
	if n == 1 {
		return [][]int{{0}}
	}
	var out [][]int
	for _, p := range permutations(n - 1) {
		for i := 0; i <= len(p); i++ {
			next := make([]int, 0, n)
			next = append(next, p[:i]...)
			next = append(next, n-1)
			next = append(next, p[i:]...)
			out = append(out, next)
		}
	}
	return out
}

func TestMerge_DedupUnionsAndKeepsRicherText(t *testing.T) {
	const dim = "logic_clarity"
	a := domain.Finding{
		Dimension: dim, Identifier: "predicate_mismatch", Summary: "Mismatch in predicates",
		RelatedFiles: []string{"a", "b"}, Evidence: []string{"branch A uses OR"}, Suggestion: "align predicates",
		Confidence: domain.ConfidenceMedium, ImpactScope: "module", FixScope: "single_edit",
	}
	b := domain.Finding{
		Dimension: dim, Identifier: "predicate_mismatch", Summary: "Processing predicate mismatch across hooks",
		RelatedFiles: []string{"b", "c"}, Evidence: []string{"branch B uses AND"}, Suggestion: "create shared predicate helper",
		Confidence: domain.ConfidenceHigh, ImpactScope: "module", FixScope: "single_edit",
	}
	note := testNote(domain.ConfidenceMedium, "module", "single_edit", "e")
	results := []domain.NormalizedBatchResult{
		{BatchIndex: 1, Assessments: map[string]float64{dim: 70}, DimensionNotes: map[string]domain.Note{dim: note}, Findings: []domain.Finding{a}},
		{BatchIndex: 2, Assessments: map[string]float64{dim: 65}, DimensionNotes: map[string]domain.Note{dim: note}, Findings: []domain.Finding{b}},
	}

	got := Merge(results, DefaultScoringPolicy())

	require.Len(t, got.Findings, 1)
	f := got.Findings[0]
	assert.Equal(t, []string{"a", "b", "c"}, f.RelatedFiles)
	assert.Equal(t, []string{"branch A uses OR", "branch B uses AND"}, f.Evidence)
	assert.Equal(t, b.Summary, f.Summary)
	assert.Equal(t, b.Suggestion, f.Suggestion)
	assert.Equal(t, domain.ConfidenceHigh, f.Confidence)
	assert.Empty(t, f.MergedFrom)

	// The input findings are not aliased by the merge.
	assert.Equal(t, []string{"a", "b"}, results[0].Findings[0].RelatedFiles)
}

func TestMerge_MergedFromRecordsOtherIdentifiers(t *testing.T) {
	set := newFindingSet()
	set.add(domain.Finding{Dimension: "naming", Summary: "vague handler names"})
	set.add(domain.Finding{Dimension: "naming", Summary: "handler names vague", Identifier: ""})
	list := set.list()
	require.Len(t, list, 1)

	existing := list[0]
	mergeFinding(&existing, domain.Finding{Dimension: "naming", Identifier: "vague_names"})
	mergeFinding(&existing, domain.Finding{Dimension: "naming", Identifier: "vague_names"})
	assert.Equal(t, []string{"vague_names"}, existing.MergedFrom)
}

func TestMerge_RepresentativeNote(t *testing.T) {
	const dim = "naming"
	results := []domain.NormalizedBatchResult{
		{BatchIndex: 1, Assessments: map[string]float64{dim: 70}, DimensionNotes: map[string]domain.Note{dim: testNote(domain.ConfidenceLow, "m", "f", "b-line", "c-line")}},
		{BatchIndex: 2, Assessments: map[string]float64{dim: 70}, DimensionNotes: map[string]domain.Note{dim: testNote(domain.ConfidenceHigh, "m", "f", "z-line", "y-line")}},
		{BatchIndex: 3, Assessments: map[string]float64{dim: 70}, DimensionNotes: map[string]domain.Note{dim: testNote(domain.ConfidenceHigh, "m", "f", "a-line", "y-line")}},
	}
	got := Merge(results, DefaultScoringPolicy())
	assert.Equal(t, []string{"a-line", "y-line"}, got.DimensionNotes[dim].Evidence)
}

func TestMerge_ScoreBounds(t *testing.T) {
	policy := DefaultScoringPolicy()
	for _, raw := range []float64{0, 0.1, 33.3, 50, 85.5, 99.9, 100} {
		for findings := 0; findings <= 12; findings += 3 {
			t.Run(fmt.Sprintf("%v/%d", raw, findings), func(t *testing.T) {
				r := domain.NormalizedBatchResult{
					BatchIndex:     1,
					Assessments:    map[string]float64{"naming": raw},
					DimensionNotes: map[string]domain.Note{"naming": testNote(domain.ConfidenceHigh, "codebase", "architectural_change", "e")},
				}
				for i := 0; i < findings; i++ {
					f := moduleFinding("naming", fmt.Sprintf("f%d", i))
					f.Confidence, f.ImpactScope, f.FixScope = domain.ConfidenceHigh, "codebase", "architectural_change"
					r.Findings = append(r.Findings, f)
				}
				score := Merge([]domain.NormalizedBatchResult{r}, policy).Assessments["naming"].Score
				assert.GreaterOrEqual(t, score, 0.0)
				assert.LessOrEqual(t, score, 100.0)
				assert.Equal(t, math.Round(score*10)/10, score)
			})
		}
	}
}

func TestMerge_Empty(t *testing.T) {
	got := Merge(nil, DefaultScoringPolicy())
	assert.Empty(t, got.Assessments)
	assert.Empty(t, got.Findings)
	assert.Equal(t, domain.ReviewQuality{}, got.ReviewQuality)
}
