// Package payload extracts and validates the JSON object a reviewer embeds in
// its free-text output, turning it into a domain.NormalizedBatchResult.
//
// A batch either validates completely or is rejected: a missing or malformed
// note for any assessed dimension fails the whole payload.
package payload

import (
	"github.com/go-playground/validator/v10"

	"github.com/ahrav/go-quorum/internal/domain"
)

// Package-level validator instance for note validation.
var validate = validator.New()

// DefaultMaxFindings caps findings kept from a single batch when the caller
// does not configure a limit.
const DefaultMaxFindings = 10

// highScoreThreshold is the score above which a note is expected to disclose
// an unreported risk.
const highScoreThreshold = 85.0

// positivePrefixes mark summaries that praise rather than report a defect.
var positivePrefixes = []string{"good ", "well ", "strong ", "clean ", "excellent ", "nice ", "solid "}

// NormalizeOptions configures Normalize.
type NormalizeOptions struct {
	// BatchIndex is the 1-based index recorded on the result.
	BatchIndex int

	// AllowedDimensions bounds assessment and finding dimensions. An empty
	// list admits every dimension.
	AllowedDimensions []string

	// MaxFindings truncates the finding list, keeping the earliest entries.
	// Zero selects DefaultMaxFindings.
	MaxFindings int

	// CompositeDimension names the dimension whose note may carry sub-axes.
	// Empty selects domain.CompositeDimension.
	CompositeDimension string

	// SubAxes lists the accepted sub-axes. Empty selects
	// domain.CompositeSubAxes.
	SubAxes []string
}

func (o NormalizeOptions) withDefaults() NormalizeOptions {
	if o.MaxFindings <= 0 {
		o.MaxFindings = DefaultMaxFindings
	}
	if o.CompositeDimension == "" {
		o.CompositeDimension = domain.CompositeDimension
	}
	if len(o.SubAxes) == 0 {
		o.SubAxes = domain.CompositeSubAxes
	}
	return o
}

func (o NormalizeOptions) allows(dim string) bool {
	if len(o.AllowedDimensions) == 0 {
		return true
	}
	for _, d := range o.AllowedDimensions {
		if d == dim {
			return true
		}
	}
	return false
}
