package units

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ahrav/go-quorum/infrastructure/integrity"
	"github.com/ahrav/go-quorum/internal/domain"
	"github.com/ahrav/go-quorum/internal/ports"
)

var _ ports.Stage = (*IntegrityUnit)(nil)

// IntegrityConfig configures the target-collision guard.
type IntegrityConfig struct {
	// Target is the strict score target. Nil disables the guard.
	Target *float64 `yaml:"target" json:"target" validate:"omitempty,gte=0,lte=100"`

	// Tolerance is the distance from the target that still counts as a
	// match.
	Tolerance float64 `yaml:"tolerance" json:"tolerance" validate:"gte=0,lte=100"`

	// ResetThreshold is the number of matches that triggers a reset.
	ResetThreshold int `yaml:"reset_threshold" json:"reset_threshold" validate:"gte=0"`

	// SubjectiveDimensions limits the check; empty means all dimensions.
	SubjectiveDimensions []string `yaml:"subjective_dimensions" json:"subjective_dimensions"`
}

// IntegrityUnit resets subjective scores that cluster on the target and
// records the outcome. The check covers the committed set, so scores stored
// by earlier partial runs count alongside the consensus.
//
// State requirements:
//   - domain.KeyConsensus
//   - domain.KeyReviewState: optional, supplies the stored assessments
//
// Produces domain.KeyGuardedAssessments and domain.KeyIntegrity. The
// consensus itself is left as merged. A collision is logged, never returned
// as an error.
type IntegrityUnit struct {
	name   string
	config IntegrityConfig
	logger *slog.Logger
}

// NewIntegrityUnit validates config and returns the stage.
func NewIntegrityUnit(name string, config IntegrityConfig, logger *slog.Logger) (*IntegrityUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IntegrityUnit{name: name, config: config, logger: logger}, nil
}

// Name returns the stage name.
func (u *IntegrityUnit) Name() string { return u.name }

// Execute applies the guard to the stored assessments overlaid with the
// consensus.
func (u *IntegrityUnit) Execute(_ context.Context, state domain.State) (domain.State, error) {
	mc, ok := domain.Get(state, domain.KeyConsensus)
	if !ok || mc == nil {
		return state, fmt.Errorf("integrity: %w", ErrMissingConsensus)
	}

	var stored map[string]domain.StoredAssessment
	if rs, ok := domain.Get(state, domain.KeyReviewState); ok && rs != nil {
		stored = rs.Assessments
	}
	committed := integrity.CommittedAssessments(stored, mc.Assessments)

	guarded, rec := integrity.ApplyTargetGuard(committed, u.config.Target, integrity.GuardOptions{
		SubjectiveDimensions: u.config.SubjectiveDimensions,
		Tolerance:            u.config.Tolerance,
		ResetThreshold:       u.config.ResetThreshold,
	})
	if v := integrity.Violation(rec); v != nil {
		u.logger.Warn("subjective scores clustered on target", "status", rec.Status, "error", v)
	}

	next := domain.With(state, domain.KeyGuardedAssessments, guarded)
	return domain.With(next, domain.KeyIntegrity, &rec), nil
}

// Validate checks the configuration.
func (u *IntegrityUnit) Validate() error {
	return validate.Struct(u.config)
}
