package application

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// RegisterReviewValidators registers the custom struct-tag validators used
// by ReviewConfig:
//   - dimname: a lowercase snake_case dimension identifier
//   - ignorepattern: a non-empty ignore rule without whitespace or empty
//     ID segments
//
// RegisterReviewValidators returns an error if any registration fails.
func RegisterReviewValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("dimname", validateDimensionName); err != nil {
		return fmt.Errorf("failed to register dimname validator: %w", err)
	}
	if err := v.RegisterValidation("ignorepattern", validateIgnorePattern); err != nil {
		return fmt.Errorf("failed to register ignorepattern validator: %w", err)
	}
	return nil
}

// validateDimensionName accepts identifiers such as "naming_quality": a
// lowercase letter followed by lowercase letters, digits or underscores.
func validateDimensionName(fl validator.FieldLevel) bool {
	name := fl.Field().String()
	if name == "" {
		return false
	}
	for i, ch := range name {
		switch {
		case ch >= 'a' && ch <= 'z':
		case i > 0 && (ch >= '0' && ch <= '9' || ch == '_'):
		default:
			return false
		}
	}
	return !strings.HasSuffix(name, "_")
}

// validateIgnorePattern rejects empty patterns, patterns containing
// whitespace, and ID patterns with an empty segment such as "review::::x".
func validateIgnorePattern(fl validator.FieldLevel) bool {
	pattern := fl.Field().String()
	if strings.TrimSpace(pattern) == "" || strings.ContainsAny(pattern, " \t\r\n") {
		return false
	}
	if !strings.Contains(pattern, "::") {
		return true
	}
	parts := strings.Split(pattern, "::")
	for i, part := range parts {
		// A trailing "::" is a valid prefix form.
		if part == "" && i != len(parts)-1 {
			return false
		}
	}
	return true
}
