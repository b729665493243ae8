package units

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ahrav/go-quorum/infrastructure/integrity"
	"github.com/ahrav/go-quorum/infrastructure/lifecycle"
	"github.com/ahrav/go-quorum/internal/domain"
	"github.com/ahrav/go-quorum/internal/ports"
)

var _ ports.Stage = (*ReconcileUnit)(nil)

// AssessmentSource labels scores committed from a review consensus.
const AssessmentSource = "holistic"

// ReconcileConfig configures lifecycle reconciliation.
type ReconcileConfig struct {
	IgnorePatterns []string `yaml:"ignore_patterns" json:"ignore_patterns"`
	ScanPath       string   `yaml:"scan_path" json:"scan_path"`
	Lang           string   `yaml:"lang" json:"lang"`
	HistoryLimit   int      `yaml:"history_limit" json:"history_limit" validate:"gte=0,lte=1000"`
}

// ReconcileUnit commits a consensus into the persisted review state.
//
// State requirements:
//   - domain.KeyConsensus
//   - domain.KeyReviewState: optional, an empty state is used when absent
//   - domain.KeyIntegrity, domain.KeyGuardedAssessments,
//     domain.KeyReviewedFiles: optional
//
// It stores the guarded assessments of the consensus dimensions, applies
// integrity resets to previously stored dimensions, stamps reviewed files,
// imports the consensus findings and reconciles them against the history.
// Only findings from the review detector are auto-resolved. Produces the
// updated domain.KeyReviewState and domain.KeyScanDiff; persisting the
// state is left to the caller.
type ReconcileUnit struct {
	name   string
	config ReconcileConfig
	now    func() time.Time
	logger *slog.Logger
}

// NewReconcileUnit validates config and returns the stage. A nil now uses
// the wall clock in UTC.
func NewReconcileUnit(name string, config ReconcileConfig, now func() time.Time, logger *slog.Logger) (*ReconcileUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReconcileUnit{name: name, config: config, now: now, logger: logger}, nil
}

// Name returns the stage name.
func (u *ReconcileUnit) Name() string { return u.name }

// Execute reconciles the consensus into the review state.
func (u *ReconcileUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	if err := ctx.Err(); err != nil {
		return state, err
	}
	mc, ok := domain.Get(state, domain.KeyConsensus)
	if !ok || mc == nil {
		return state, fmt.Errorf("reconcile: %w", ErrMissingConsensus)
	}
	rs, ok := domain.Get(state, domain.KeyReviewState)
	if !ok || rs == nil {
		rs = domain.NewReviewState()
	}
	integrityRec, ok := domain.Get(state, domain.KeyIntegrity)
	if !ok || integrityRec == nil {
		baseline := integrity.Baseline(nil)
		integrityRec = &baseline
	}

	scores := mc.Assessments
	if guarded, ok := domain.Get(state, domain.KeyGuardedAssessments); ok {
		scores = make(map[string]domain.AssessmentScore, len(mc.Assessments))
		for dim := range mc.Assessments {
			scores[dim] = guarded[dim]
		}
	}

	now := u.now()
	lifecycle.StoreAssessments(rs, scores, *integrityRec, AssessmentSource, now)
	lifecycle.ApplyIntegrityResets(rs, *integrityRec)
	if files, ok := domain.Get(state, domain.KeyReviewedFiles); ok {
		lifecycle.RecordReviewedFiles(rs, files, now)
	}

	current := lifecycle.ImportReviewFindings(*mc, u.config.Lang)
	diff := lifecycle.Reconcile(rs, current, lifecycle.ReconcileOptions{
		IgnorePatterns:  u.config.IgnorePatterns,
		ScanPath:        u.config.ScanPath,
		Detectors:       []string{lifecycle.ReviewDetector},
		Lang:            u.config.Lang,
		Now:             now,
		Integrity:       integrityRec,
		DimensionScores: dimensionScores(scores),
		HistoryLimit:    u.config.HistoryLimit,
		Logger:          u.logger,
	})

	next := domain.With(state, domain.KeyReviewState, rs)
	return domain.With(next, domain.KeyScanDiff, &diff), nil
}

func dimensionScores(assessments map[string]domain.AssessmentScore) map[string]float64 {
	out := make(map[string]float64, len(assessments))
	for dim, a := range assessments {
		out[dim] = a.Score
	}
	return out
}

// Validate checks the configuration.
func (u *ReconcileUnit) Validate() error {
	return validate.Struct(u.config)
}
