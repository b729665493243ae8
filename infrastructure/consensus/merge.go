// Package consensus merges validated batch results into a single
// deterministic MergedConsensus.
//
// Merge is a pure function of the input multiset: results are put into a
// canonical order before any floating point accumulation, so the output is
// identical under every permutation of its input.
package consensus

import (
	"encoding/json"
	"sort"

	"github.com/ahrav/go-quorum/internal/domain"
)

// weighted is one (score, weight) observation for a dimension or sub-axis.
type weighted struct {
	score  float64
	weight float64
}

type bucket []weighted

func (b bucket) mean() (float64, bool) {
	var num, den float64
	for _, w := range b {
		num += w.score * w.weight
		den += w.weight
	}
	if den <= 0 {
		return 0, false
	}
	return num / den, true
}

func (b bucket) floor() float64 {
	low := domain.MaxScore
	for _, w := range b {
		if w.score < low {
			low = w.score
		}
	}
	return low
}

// Merge combines every batch's validated output into one consensus.
func Merge(results []domain.NormalizedBatchResult, policy ScoringPolicy) domain.MergedConsensus {
	ordered := canonicalOrder(results)

	scores := make(map[string]bucket)
	axes := make(map[string]map[string]bucket)
	notes := make(map[string]domain.Note)
	findings := newFindingSet()
	var coverage, density float64
	highNoRisk := 0

	for _, r := range ordered {
		perDim := make(map[string]int)
		for _, f := range r.Findings {
			perDim[f.Dimension]++
		}

		for _, dim := range sortedKeys(r.Assessments) {
			note := r.DimensionNotes[dim]
			w := AssessmentWeight(note, perDim[dim])
			scores[dim] = append(scores[dim], weighted{score: r.Assessments[dim], weight: w})

			if existing, ok := notes[dim]; !ok || betterNote(note, existing) {
				notes[dim] = cloneNote(note)
			}
			for axis, v := range note.SubAxes {
				if axes[dim] == nil {
					axes[dim] = make(map[string]bucket)
				}
				axes[dim][axis] = append(axes[dim][axis], weighted{score: v, weight: w})
			}
		}

		for _, f := range r.Findings {
			findings.add(f)
		}
		coverage += r.Quality.DimensionCoverage
		density += r.Quality.EvidenceDensity
		highNoRisk += r.Quality.HighScoreWithoutRisk
	}

	merged := findings.list()
	pressure := make(map[string]float64)
	counts := make(map[string]int)
	for _, f := range merged {
		pressure[f.Dimension] += policy.FindingPressure(f)
		counts[f.Dimension]++
	}

	assessments := make(map[string]domain.AssessmentScore, len(scores))
	for _, dim := range sortedKeys(scores) {
		mean, ok := scores[dim].mean()
		if !ok {
			continue
		}
		score := domain.AssessmentScore{Score: policy.Score(ScoreInputs{
			WeightedMean:    mean,
			Floor:           scores[dim].floor(),
			FindingPressure: pressure[dim],
			FindingCount:    counts[dim],
		})}
		score.Components, score.ComponentScores = rollupAxes(axes[dim])
		assessments[dim] = score
	}

	totalPressure := 0.0
	for _, dim := range sortedKeys(pressure) {
		totalPressure += pressure[dim]
	}
	n := float64(max(len(ordered), 1))

	return domain.MergedConsensus{
		Assessments:    assessments,
		DimensionNotes: notes,
		Findings:       merged,
		ReviewQuality: domain.ReviewQuality{
			BatchCount:             len(ordered),
			DimensionCoverage:      domain.RoundTo(coverage/n, 3),
			EvidenceDensity:        domain.RoundTo(density/n, 3),
			HighScoreWithoutRisk:   highNoRisk,
			FindingPressure:        domain.RoundTo(totalPressure, 3),
			DimensionsWithFindings: len(counts),
		},
	}
}

// AssessmentWeight is the evidence-derived weight of one batch's score for a
// dimension. It never depends on the score itself.
func AssessmentWeight(note domain.Note, findingsOnDimension int) float64 {
	return float64(1 + len(note.Evidence) + findingsOnDimension)
}

// rollupAxes weight-averages each sub-axis and labels it for display.
// Declared axes come first in their declared order.
func rollupAxes(axes map[string]bucket) ([]string, map[string]float64) {
	if len(axes) == 0 {
		return nil, nil
	}
	order := make([]string, 0, len(axes))
	declared := make(map[string]struct{}, len(domain.CompositeSubAxes))
	for _, axis := range domain.CompositeSubAxes {
		declared[axis] = struct{}{}
		if _, ok := axes[axis]; ok {
			order = append(order, axis)
		}
	}
	for _, axis := range sortedKeys(axes) {
		if _, ok := declared[axis]; !ok {
			order = append(order, axis)
		}
	}

	var components []string
	componentScores := make(map[string]float64)
	for _, axis := range order {
		mean, ok := axes[axis].mean()
		if !ok {
			continue
		}
		label := axis
		if l, ok := domain.SubAxisLabels[axis]; ok {
			label = l
		}
		components = append(components, label)
		componentScores[label] = domain.ClampScore(mean)
	}
	if len(components) == 0 {
		return nil, nil
	}
	return components, componentScores
}

// betterNote reports whether candidate should replace current as the
// representative note: most evidence, then highest confidence, then the
// lexicographically smallest first evidence line.
func betterNote(candidate, current domain.Note) bool {
	if len(candidate.Evidence) != len(current.Evidence) {
		return len(candidate.Evidence) > len(current.Evidence)
	}
	if candidate.Confidence.Rank() != current.Confidence.Rank() {
		return candidate.Confidence.Rank() > current.Confidence.Rank()
	}
	return firstOrEmpty(candidate.Evidence) < firstOrEmpty(current.Evidence)
}

func firstOrEmpty(s []string) string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}

func cloneNote(n domain.Note) domain.Note {
	n.Evidence = append([]string(nil), n.Evidence...)
	if n.SubAxes != nil {
		axes := make(map[string]float64, len(n.SubAxes))
		for k, v := range n.SubAxes {
			axes[k] = v
		}
		n.SubAxes = axes
	}
	return n
}

// canonicalOrder sorts results by batch index, breaking ties on their JSON
// encoding so duplicate indices still order deterministically.
func canonicalOrder(results []domain.NormalizedBatchResult) []domain.NormalizedBatchResult {
	type keyed struct {
		r   domain.NormalizedBatchResult
		enc string
	}
	items := make([]keyed, len(results))
	for i, r := range results {
		// Maps encode with sorted keys, so the encoding is canonical.
		raw, _ := json.Marshal(r)
		items[i] = keyed{r: r, enc: string(raw)}
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].r.BatchIndex != items[j].r.BatchIndex {
			return items[i].r.BatchIndex < items[j].r.BatchIndex
		}
		return items[i].enc < items[j].enc
	})
	out := make([]domain.NormalizedBatchResult, len(items))
	for i, it := range items {
		out[i] = it.r
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
