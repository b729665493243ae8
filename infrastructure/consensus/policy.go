package consensus

import (
	"math"

	"github.com/go-playground/validator/v10"

	"github.com/ahrav/go-quorum/internal/domain"
)

// Package-level validator instance for policy validation.
var validate = validator.New()

// ScoringPolicy is the tunable curve that turns a dimension's weighted mean
// and finding pressure into its final score. Any policy passing Validate is
// monotonic: more pressure or more findings never raise a score.
type ScoringPolicy struct {
	// ConfidenceWeights scale a finding's pressure by reviewer certainty.
	ConfidenceWeights map[domain.Confidence]float64 `yaml:"confidence_weights" json:"confidence_weights" validate:"dive,gt=0"`

	// ImpactWeights scale pressure by impact_scope. Unlisted scopes weigh 1.
	ImpactWeights map[string]float64 `yaml:"impact_weights" json:"impact_weights" validate:"dive,gt=0"`

	// FixWeights scale pressure by fix_scope. Unlisted scopes weigh 1.
	FixWeights map[string]float64 `yaml:"fix_weights" json:"fix_weights" validate:"dive,gt=0"`

	// PressureScale converts summed pressure into score points.
	PressureScale float64 `yaml:"pressure_scale" json:"pressure_scale" validate:"gte=0"`

	// CountScale is the extra penalty per finding beyond the first.
	CountScale float64 `yaml:"count_scale" json:"count_scale" validate:"gte=0"`

	// MaxPenalty caps the total deduction.
	MaxPenalty float64 `yaml:"max_penalty" json:"max_penalty" validate:"gte=0,lte=100"`

	// FloorSlack is how far below the lowest raw batch score a penalized
	// dimension may fall.
	FloorSlack float64 `yaml:"floor_slack" json:"floor_slack" validate:"gte=0,lte=100"`
}

// DefaultScoringPolicy returns the policy used when none is configured.
func DefaultScoringPolicy() ScoringPolicy {
	return ScoringPolicy{
		ConfidenceWeights: map[domain.Confidence]float64{
			domain.ConfidenceHigh:   1.2,
			domain.ConfidenceMedium: 1.0,
			domain.ConfidenceLow:    0.75,
		},
		ImpactWeights: map[string]float64{
			"codebase":  1.7,
			"subsystem": 1.4,
			"module":    1.2,
			"local":     1.0,
		},
		FixWeights: map[string]float64{
			"architectural_change": 2.0,
			"multi_file_refactor":  1.5,
			"moderate_refactor":    1.3,
			"single_edit":          1.0,
		},
		PressureScale: 4.0,
		CountScale:    1.5,
		MaxPenalty:    40.0,
		FloorSlack:    25.0,
	}
}

// Validate checks the policy's struct constraints.
func (p ScoringPolicy) Validate() error {
	return validate.Struct(p)
}

// ScoreInputs are the per-dimension aggregates a policy scores.
type ScoreInputs struct {
	WeightedMean    float64
	Floor           float64
	FindingPressure float64
	FindingCount    int
}

// FindingPressure returns how strongly one finding pulls its dimension down.
func (p ScoringPolicy) FindingPressure(f domain.Finding) float64 {
	conf, ok := p.ConfidenceWeights[f.Confidence]
	if !ok {
		conf = p.ConfidenceWeights[domain.ConfidenceMedium]
		if conf == 0 {
			conf = 1
		}
	}
	return conf * weightOr(p.ImpactWeights, f.ImpactScope) * weightOr(p.FixWeights, f.FixScope)
}

func weightOr(weights map[string]float64, key string) float64 {
	if w, ok := weights[key]; ok {
		return w
	}
	return 1
}

// Score applies the penalty curve. Dimensions without findings keep their
// weighted mean; otherwise the deduction grows with pressure and count and is
// bounded below by Floor - FloorSlack.
func (p ScoringPolicy) Score(in ScoreInputs) float64 {
	if in.FindingCount <= 0 && in.FindingPressure <= 0 {
		return domain.ClampScore(in.WeightedMean)
	}
	extra := math.Max(0, float64(in.FindingCount-1))
	penalty := math.Min(p.MaxPenalty, p.PressureScale*math.Max(0, in.FindingPressure)+p.CountScale*extra)
	lower := math.Max(domain.MinScore, in.Floor-p.FloorSlack)
	final := math.Max(lower, in.WeightedMean-penalty)
	// The floor never lifts a score above its own weighted mean.
	final = math.Min(final, in.WeightedMean)
	return domain.ClampScore(final)
}
