// Package testutils provides shared fakes and fixtures for tests.
package testutils

import (
	"encoding/json"
	"fmt"
	"sort"
)

// FindingFixture is a finding as a reviewer would emit it.
type FindingFixture struct {
	Dimension    string   `json:"dimension"`
	Identifier   string   `json:"identifier,omitempty"`
	Summary      string   `json:"summary"`
	RelatedFiles []string `json:"related_files,omitempty"`
	Confidence   string   `json:"confidence,omitempty"`
	ImpactScope  string   `json:"impact_scope,omitempty"`
	FixScope     string   `json:"fix_scope,omitempty"`
}

// BatchOutput renders reviewer output embedding a valid payload: every
// assessed dimension gets a one-line module/single_edit note, and the JSON
// is wrapped in prose the way real reviewers reply.
func BatchOutput(assessments map[string]float64, findings ...FindingFixture) string {
	dims := make([]string, 0, len(assessments))
	for dim := range assessments {
		dims = append(dims, dim)
	}
	sort.Strings(dims)

	notes := make(map[string]any, len(dims))
	for _, dim := range dims {
		notes[dim] = map[string]any{
			"evidence":        []string{fmt.Sprintf("%s evidence", dim)},
			"impact_scope":    "module",
			"fix_scope":       "single_edit",
			"confidence":      "medium",
			"unreported_risk": "none observed",
		}
	}
	if findings == nil {
		findings = []FindingFixture{}
	}
	payload := map[string]any{
		"assessments":     assessments,
		"dimension_notes": notes,
		"findings":        findings,
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		panic(err)
	}
	return "Review complete. Payload follows.\n```json\n" + string(data) + "\n```\n"
}
