package integrity

import (
	"math"
	"sort"

	"github.com/ahrav/go-quorum/internal/domain"
)

// DefaultResetThreshold is the number of on-target subjective scores that
// triggers a reset.
const DefaultResetThreshold = 2

// PenaltyTargetMatchReset marks an assessment zeroed by the target guard.
const PenaltyTargetMatchReset = "target_match_reset"

// GuardOptions configures ApplyTargetGuard.
type GuardOptions struct {
	// SubjectiveDimensions restricts the check to reviewer-judged
	// dimensions. Empty treats every assessed dimension as subjective.
	SubjectiveDimensions []string

	// Tolerance is the absolute distance from the target that still counts
	// as a match. Zero requires exact equality.
	Tolerance float64

	// ResetThreshold is the match count at which scores are reset. Zero
	// selects DefaultResetThreshold.
	ResetThreshold int
}

// Baseline returns the integrity record for a score set that has not been
// checked yet.
func Baseline(target *float64) domain.IntegrityRecord {
	rec := domain.IntegrityRecord{
		Status:            domain.IntegrityDisabled,
		MatchedDimensions: []string{},
		ResetDimensions:   []string{},
	}
	if target != nil {
		t := domain.RoundTo(clampTarget(*target), 2)
		rec.Status = domain.IntegrityPass
		rec.TargetScore = &t
	}
	return rec
}

// CommittedAssessments overlays current onto stored, giving the score set a
// commit leaves in the review state. Neither input is modified.
func CommittedAssessments(stored map[string]domain.StoredAssessment, current map[string]domain.AssessmentScore) map[string]domain.AssessmentScore {
	out := make(map[string]domain.AssessmentScore, len(stored)+len(current))
	for dim, sa := range stored {
		out[dim] = cloneScore(domain.AssessmentScore{
			Score:            sa.Score,
			Components:       sa.Components,
			ComponentScores:  sa.ComponentScores,
			IntegrityPenalty: sa.IntegrityPenalty,
		})
	}
	for dim, a := range current {
		out[dim] = cloneScore(a)
	}
	return out
}

// ApplyTargetGuard resets subjective scores that sit on the target when
// enough of them do. It returns a new map; the input is not modified.
func ApplyTargetGuard(assessments map[string]domain.AssessmentScore, target *float64, opts GuardOptions) (map[string]domain.AssessmentScore, domain.IntegrityRecord) {
	out := make(map[string]domain.AssessmentScore, len(assessments))
	for dim, a := range assessments {
		out[dim] = cloneScore(a)
	}

	rec := Baseline(target)
	if target == nil || len(assessments) == 0 {
		return out, rec
	}
	if opts.ResetThreshold <= 0 {
		opts.ResetThreshold = DefaultResetThreshold
	}

	t := clampTarget(*target)
	subjective := subjectiveSet(opts.SubjectiveDimensions)
	matched := make([]string, 0)
	for dim, a := range assessments {
		if subjective != nil {
			if _, ok := subjective[dim]; !ok {
				continue
			}
		}
		if math.Abs(domain.ClampScore(a.Score)-t) <= opts.Tolerance {
			matched = append(matched, dim)
		}
	}
	sort.Strings(matched)

	rec.MatchedCount = len(matched)
	rec.MatchedDimensions = matched
	switch {
	case len(matched) >= opts.ResetThreshold:
		for _, dim := range matched {
			a := out[dim]
			a.Score = 0
			a.IntegrityPenalty = PenaltyTargetMatchReset
			out[dim] = a
		}
		rec.Status = domain.IntegrityPenalized
		rec.ResetDimensions = append([]string(nil), matched...)
	case len(matched) > 0:
		rec.Status = domain.IntegrityWarn
	}
	return out, rec
}

// Violation describes a non-passing record as an error value for logging.
// It returns nil when the record passed or the check was disabled.
func Violation(rec domain.IntegrityRecord) *domain.IntegrityViolation {
	if rec.Status != domain.IntegrityWarn && rec.Status != domain.IntegrityPenalized {
		return nil
	}
	v := &domain.IntegrityViolation{
		Dimensions: rec.MatchedDimensions,
		Penalized:  rec.Status == domain.IntegrityPenalized,
	}
	if rec.TargetScore != nil {
		v.Target = *rec.TargetScore
	}
	return v
}

func subjectiveSet(dims []string) map[string]struct{} {
	if len(dims) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(dims))
	for _, d := range dims {
		set[d] = struct{}{}
	}
	return set
}

func clampTarget(t float64) float64 {
	return math.Max(domain.MinScore, math.Min(domain.MaxScore, t))
}

func cloneScore(a domain.AssessmentScore) domain.AssessmentScore {
	a.Components = append([]string(nil), a.Components...)
	if a.ComponentScores != nil {
		cs := make(map[string]float64, len(a.ComponentScores))
		for k, v := range a.ComponentScores {
			cs[k] = v
		}
		a.ComponentScores = cs
	}
	return a
}
