package payload

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ahrav/go-quorum/internal/domain"
)

func init() {
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// Normalize extracts the payload from raw reviewer output and validates it
// into a NormalizedBatchResult. Unknown dimensions and non-numeric scores are
// dropped silently; any assessed dimension without a valid note rejects the
// whole batch with a *domain.ValidationError.
func Normalize(raw string, opts NormalizeOptions) (domain.NormalizedBatchResult, error) {
	obj, err := ExtractPayload(raw)
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			verr.Entity = batchEntity(opts.BatchIndex)
		}
		return domain.NormalizedBatchResult{}, err
	}
	return NormalizePayload(obj, opts)
}

// NormalizePayload validates an already extracted payload object.
func NormalizePayload(obj map[string]any, opts NormalizeOptions) (domain.NormalizedBatchResult, error) {
	opts = opts.withDefaults()
	verr := domain.NewValidationError(batchEntity(opts.BatchIndex))

	rawAssessments, ok := obj["assessments"].(map[string]any)
	if !ok {
		verr.AddError("assessments must be an object")
		return domain.NormalizedBatchResult{}, verr
	}
	rawNotes := map[string]any{}
	if v, present := obj["dimension_notes"]; present && v != nil {
		m, ok := v.(map[string]any)
		if !ok {
			verr.AddError("dimension_notes must be an object")
			return domain.NormalizedBatchResult{}, verr
		}
		rawNotes = m
	}

	// Sorted keys keep error messages stable.
	dims := make([]string, 0, len(rawAssessments))
	for dim := range rawAssessments {
		dims = append(dims, dim)
	}
	sort.Strings(dims)

	assessments := make(map[string]float64)
	notes := make(map[string]domain.Note)
	for _, dim := range dims {
		if dim == "" || !opts.allows(dim) {
			continue
		}
		value, ok := rawAssessments[dim].(float64)
		if !ok {
			continue
		}
		score := domain.ClampScore(value)

		note, noteErrs := parseNote(dim, rawNotes[dim], opts)
		if len(noteErrs) > 0 {
			for _, msg := range noteErrs {
				verr.AddError(msg)
			}
			continue
		}
		assessments[dim] = score
		notes[dim] = note
	}
	if verr.HasErrors() {
		return domain.NormalizedBatchResult{}, verr
	}

	rawFindings, ok := obj["findings"].([]any)
	if !ok {
		verr.AddError("findings must be an array")
		return domain.NormalizedBatchResult{}, verr
	}
	findings := normalizeFindings(rawFindings, notes, opts)

	return domain.NormalizedBatchResult{
		BatchIndex:     opts.BatchIndex,
		Assessments:    assessments,
		DimensionNotes: notes,
		Findings:       findings,
		Quality:        batchQuality(assessments, notes, findings, opts),
	}, nil
}

func batchEntity(idx int) string {
	return fmt.Sprintf("batch %d", idx)
}

// parseNote decodes one dimension note and checks it against Note's
// contract. It returns human-readable problems rather than an error so the
// caller can report every bad note at once.
func parseNote(dim string, raw any, opts NormalizeOptions) (domain.Note, []string) {
	m, ok := raw.(map[string]any)
	if !ok {
		return domain.Note{}, []string{fmt.Sprintf("%v: %s", domain.ErrMissingNote, dim)}
	}

	var problems []string
	note := domain.Note{
		ImpactScope:    stringField(m, "impact_scope"),
		FixScope:       stringField(m, "fix_scope"),
		Confidence:     coerceConfidence(m["confidence"], domain.ConfidenceMedium),
		UnreportedRisk: stringField(m, "unreported_risk"),
	}
	if list, ok := m["evidence"].([]any); ok {
		note.Evidence = stringList(list)
	}

	if err := validate.Struct(note); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				problems = append(problems, fmt.Sprintf("dimension_notes.%s.%s failed %q", dim, fe.Field(), fe.Tag()))
			}
		} else {
			problems = append(problems, fmt.Sprintf("dimension_notes.%s: %v", dim, err))
		}
	}

	if dim == opts.CompositeDimension {
		axes, axisProblems := parseSubAxes(dim, m["sub_axes"], opts.SubAxes)
		problems = append(problems, axisProblems...)
		if len(axes) > 0 {
			note.SubAxes = axes
		}
	}
	return note, problems
}

func parseSubAxes(dim string, raw any, declared []string) (map[string]float64, []string) {
	if raw == nil {
		return nil, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, []string{fmt.Sprintf("dimension_notes.%s.sub_axes must be an object", dim)}
	}
	var problems []string
	out := make(map[string]float64)
	for _, axis := range declared {
		v, present := m[axis]
		if !present || v == nil {
			continue
		}
		f, ok := v.(float64)
		if !ok {
			problems = append(problems, fmt.Sprintf("dimension_notes.%s.sub_axes.%s must be numeric", dim, axis))
			continue
		}
		out[axis] = domain.ClampScore(f)
	}
	return out, problems
}

func normalizeFindings(raw []any, notes map[string]domain.Note, opts NormalizeOptions) []domain.Finding {
	findings := make([]domain.Finding, 0, min(len(raw), opts.MaxFindings))
	for _, item := range raw {
		if len(findings) >= opts.MaxFindings {
			break
		}
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		dim := stringField(m, "dimension")
		if dim == "" || !opts.allows(dim) {
			continue
		}
		summary := stringField(m, "summary")
		if summary == "" || IsPositiveObservation(summary) {
			continue
		}

		note, hasNote := notes[dim]
		impact := stringField(m, "impact_scope")
		fix := stringField(m, "fix_scope")
		if impact == "" && hasNote {
			impact = note.ImpactScope
		}
		if fix == "" && hasNote {
			fix = note.FixScope
		}
		if impact == "" || fix == "" {
			continue
		}

		fallback := domain.ConfidenceMedium
		if hasNote {
			fallback = note.Confidence
		}
		f := domain.Finding{
			Dimension:   dim,
			Identifier:  stringField(m, "identifier"),
			Summary:     summary,
			Suggestion:  stringField(m, "suggestion"),
			Confidence:  coerceConfidence(m["confidence"], fallback),
			ImpactScope: impact,
			FixScope:    fix,
		}
		if list, ok := m["related_files"].([]any); ok {
			f.RelatedFiles = stringList(list)
		}
		if list, ok := m["evidence"].([]any); ok {
			f.Evidence = stringList(list)
		}
		findings = append(findings, f)
	}
	return findings
}

func batchQuality(assessments map[string]float64, notes map[string]domain.Note, findings []domain.Finding, opts NormalizeOptions) domain.BatchQuality {
	denom := len(opts.AllowedDimensions)
	if denom == 0 {
		denom = len(assessments)
	}
	evidence := 0
	for _, n := range notes {
		evidence += len(n.Evidence)
	}
	highNoRisk := 0
	for dim, score := range assessments {
		if score > highScoreThreshold && notes[dim].UnreportedRisk == "" {
			highNoRisk++
		}
	}
	return domain.BatchQuality{
		DimensionCoverage:    domain.RoundTo(float64(len(assessments))/float64(max(denom, 1)), 3),
		EvidenceDensity:      domain.RoundTo(float64(evidence)/float64(max(len(findings), 1)), 3),
		HighScoreWithoutRisk: highNoRisk,
	}
}

// IsPositiveObservation reports whether summary praises the code instead of
// describing a defect.
func IsPositiveObservation(summary string) bool {
	lower := strings.ToLower(strings.TrimSpace(summary))
	for _, p := range positivePrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

// coerceConfidence maps a missing value to fallback and an unrecognized one
// to low.
func coerceConfidence(raw any, fallback domain.Confidence) domain.Confidence {
	if raw == nil {
		return fallback
	}
	s, ok := raw.(string)
	if !ok {
		return domain.ConfidenceLow
	}
	c := domain.Confidence(strings.ToLower(strings.TrimSpace(s)))
	if c == "" {
		return fallback
	}
	if !c.Valid() {
		return domain.ConfidenceLow
	}
	return c
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}

// stringList keeps non-blank string items, trimmed.
func stringList(items []any) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
