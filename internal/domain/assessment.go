package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Confidence is a reviewer's self-reported certainty for a note or finding.
type Confidence string

// Supported confidence levels.
const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Valid reports whether c is one of the known confidence levels.
func (c Confidence) Valid() bool {
	switch c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return true
	}
	return false
}

// Rank orders confidence levels so that higher certainty compares greater.
func (c Confidence) Rank() int {
	switch c {
	case ConfidenceHigh:
		return 3
	case ConfidenceMedium:
		return 2
	case ConfidenceLow:
		return 1
	}
	return 0
}

// CompositeDimension is the dimension that carries a sub-axis breakdown.
const CompositeDimension = "abstraction_fitness"

// Sub-axes of the composite dimension.
const (
	AxisAbstractionLeverage = "abstraction_leverage"
	AxisIndirectionCost     = "indirection_cost"
	AxisInterfaceHonesty    = "interface_honesty"
)

// CompositeSubAxes lists the declared sub-axes in presentation order.
var CompositeSubAxes = []string{AxisAbstractionLeverage, AxisIndirectionCost, AxisInterfaceHonesty}

// SubAxisLabels maps each sub-axis to its component display name.
var SubAxisLabels = map[string]string{
	AxisAbstractionLeverage: "Abstraction leverage",
	AxisIndirectionCost:     "Indirection cost",
	AxisInterfaceHonesty:    "Interface honesty",
}

// Note is the justification a reviewer attaches to an assessed dimension.
type Note struct {
	Evidence       []string           `json:"evidence" validate:"required,min=1,dive,required"`
	ImpactScope    string             `json:"impact_scope" validate:"required"`
	FixScope       string             `json:"fix_scope" validate:"required"`
	Confidence     Confidence         `json:"confidence" validate:"required,oneof=high medium low"`
	UnreportedRisk string             `json:"unreported_risk"`
	SubAxes        map[string]float64 `json:"sub_axes,omitempty"`
}

// Finding is a batch-scoped defect report.
type Finding struct {
	Dimension    string     `json:"dimension"`
	Identifier   string     `json:"identifier,omitempty"`
	Summary      string     `json:"summary"`
	RelatedFiles []string   `json:"related_files,omitempty"`
	Evidence     []string   `json:"evidence,omitempty"`
	Suggestion   string     `json:"suggestion,omitempty"`
	Confidence   Confidence `json:"confidence,omitempty"`
	ImpactScope  string     `json:"impact_scope"`
	FixScope     string     `json:"fix_scope"`
	MergedFrom   []string   `json:"merged_from,omitempty"`
}

// BatchQuality holds the per-batch quality telemetry derived at
// normalization time.
type BatchQuality struct {
	DimensionCoverage    float64 `json:"dimension_coverage"`
	EvidenceDensity      float64 `json:"evidence_density"`
	HighScoreWithoutRisk int     `json:"high_score_without_risk"`
}

// NormalizedBatchResult is one batch's validated and canonicalized output.
type NormalizedBatchResult struct {
	BatchIndex     int                `json:"batch_index"`
	Assessments    map[string]float64 `json:"assessments"`
	DimensionNotes map[string]Note    `json:"dimension_notes"`
	Findings       []Finding          `json:"findings"`
	Quality        BatchQuality       `json:"quality"`
}

// AssessmentScore is a merged dimension score. Composite dimensions carry a
// component breakdown next to the scalar score.
type AssessmentScore struct {
	Score            float64            `json:"score"`
	Components       []string           `json:"components,omitempty"`
	ComponentScores  map[string]float64 `json:"component_scores,omitempty"`
	IntegrityPenalty string             `json:"integrity_penalty,omitempty"`
}

// IsComposite reports whether the score carries a component breakdown or a
// penalty marker and must therefore be encoded as an object.
func (a AssessmentScore) IsComposite() bool {
	return len(a.Components) > 0 || len(a.ComponentScores) > 0 || a.IntegrityPenalty != ""
}

// MarshalJSON encodes plain scores as a bare number and composite scores as
// an object.
func (a AssessmentScore) MarshalJSON() ([]byte, error) {
	if !a.IsComposite() {
		return json.Marshal(a.Score)
	}
	type alias AssessmentScore
	return json.Marshal(alias(a))
}

// UnmarshalJSON accepts either encoding produced by MarshalJSON.
func (a *AssessmentScore) UnmarshalJSON(data []byte) error {
	var scalar float64
	if err := json.Unmarshal(data, &scalar); err == nil {
		*a = AssessmentScore{Score: scalar}
		return nil
	}
	type alias AssessmentScore
	var obj alias
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("assessment score: %w", err)
	}
	*a = AssessmentScore(obj)
	return nil
}

// ReviewQuality is the rollup telemetry attached to a consensus. It is
// display and nudge data, never a score gate.
type ReviewQuality struct {
	BatchCount             int     `json:"batch_count"`
	DimensionCoverage      float64 `json:"dimension_coverage"`
	EvidenceDensity        float64 `json:"evidence_density"`
	HighScoreWithoutRisk   int     `json:"high_score_without_risk"`
	FindingPressure        float64 `json:"finding_pressure"`
	DimensionsWithFindings int     `json:"dimensions_with_findings"`
}

// Provenance records where a consensus came from.
type Provenance struct {
	RunID           string    `json:"run_id"`
	Runner          string    `json:"runner"`
	Model           string    `json:"model,omitempty"`
	BlindPacketPath string    `json:"blind_packet_path,omitempty"`
	BlindPacketHash string    `json:"blind_packet_sha256,omitempty"`
	BatchCount      int       `json:"batch_count"`
	CreatedAt       time.Time `json:"created_at"`
}

// MergedConsensus is the single deterministic merge of every batch's
// validated output.
type MergedConsensus struct {
	Assessments    map[string]AssessmentScore `json:"assessments"`
	DimensionNotes map[string]Note            `json:"dimension_notes"`
	Findings       []Finding                  `json:"findings"`
	ReviewQuality  ReviewQuality              `json:"review_quality"`
	ReviewedFiles  []string                   `json:"reviewed_files,omitempty"`
	Provenance     *Provenance                `json:"provenance,omitempty"`
}

// Scores flattens the consensus assessments into dimension -> scalar score.
func (m MergedConsensus) Scores() map[string]float64 {
	out := make(map[string]float64, len(m.Assessments))
	for dim, a := range m.Assessments {
		out[dim] = a.Score
	}
	return out
}
