// Package units provides the post-dispatch pipeline stages that implement
// ports.Stage: consensus merge, integrity guard and lifecycle
// reconciliation.
package units

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

// Common errors returned by the stages.
var (
	// ErrEmptyUnitName is returned when attempting to create a stage with an
	// empty name.
	ErrEmptyUnitName = errors.New("unit name cannot be empty")

	// ErrMissingConsensus is returned when a stage that consumes the merged
	// consensus runs before the merge stage.
	ErrMissingConsensus = errors.New("consensus not found in state")
)

// Package-level validator instance for configuration validation.
var validate = validator.New()
