package payload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-quorum/internal/domain"
)

func TestExtractPayload(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
		check   func(t *testing.T, got map[string]any)
	}{
		{
			name: "bare object",
			raw:  `{"assessments":{"naming":80},"findings":[]}`,
			check: func(t *testing.T, got map[string]any) {
				assert.Contains(t, got, "assessments")
			},
		},
		{
			name: "object wrapped in prose and fences",
			raw:  "Here is my review.\n```json\n{\"assessments\":{\"naming\":71},\"findings\":[{\"dimension\":\"naming\"}]}\n```\nThanks!",
			check: func(t *testing.T, got map[string]any) {
				assessments := got["assessments"].(map[string]any)
				assert.Equal(t, 71.0, assessments["naming"])
			},
		},
		{
			name: "skips objects that do not match the envelope",
			raw:  `{"note":"draft"} [1,2] {"assessments":{"typing":60},"findings":[]}`,
			check: func(t *testing.T, got map[string]any) {
				assert.NotContains(t, got, "note")
				assert.Contains(t, got["assessments"], "typing")
			},
		},
		{
			name: "skips broken prefix and finds the nested payload",
			raw:  `{"assessments": {oops {"assessments":{"typing":60},"findings":[]}`,
			check: func(t *testing.T, got map[string]any) {
				assert.Contains(t, got["assessments"], "typing")
			},
		},
		{name: "findings must be a list", raw: `{"assessments":{},"findings":{}}`, wantErr: true},
		{name: "assessments must be an object", raw: `{"assessments":[],"findings":[]}`, wantErr: true},
		{name: "no json", raw: "I could not complete the review.", wantErr: true},
		{name: "empty", raw: "   ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractPayload(tt.raw)
			if tt.wantErr {
				var verr *domain.ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			tt.check(t, got)
		})
	}
}
