package application

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/ahrav/go-quorum/internal/domain"
)

// ResolveDimensionPrompt returns the prompt text for dim: the holistic
// prompt when one exists, otherwise the per-file prompt. The bool is false
// when neither table has an entry.
func ResolveDimensionPrompt(dim string, holistic, perFile map[string]string) (string, bool) {
	if p, ok := holistic[dim]; ok && strings.TrimSpace(p) != "" {
		return p, true
	}
	if p, ok := perFile[dim]; ok && strings.TrimSpace(p) != "" {
		return p, true
	}
	return "", false
}

const batchPromptTemplate = `You are reviewing batch {{.Batch.Index}}{{with .Batch.Name}} ({{.}}){{end}} of a holistic code-quality review.

Blind packet: {{.PacketPath}}
{{with .Batch.Why}}
Why these files: {{.}}
{{end}}
Files to read:
{{range .Batch.FilesToRead}}- {{.}}
{{else}}- (none assigned; use the packet)
{{end}}
Dimensions to score:
{{range .Dimensions}}
## {{.Name}}
{{.Prompt}}
{{end}}
Scoring rules:
- Score each listed dimension from 0 to 100. Do not score any other dimension.
- Every scored dimension needs a dimension_notes entry with evidence (at least one item), impact_scope, fix_scope, confidence (high, medium or low) and unreported_risk.
{{- if .Composite}}
- {{.Composite}} may add sub_axes with {{join .SubAxes ", "}}, each 0 to 100.
{{- end}}
- Report at most {{.MaxFindings}} findings. Each finding needs dimension, identifier, summary, related_files, evidence, suggestion, confidence, impact_scope and fix_scope.
- Report defects only. Do not list strengths as findings.

Reply with one JSON object:
{"assessments": {"<dimension>": <score>}, "dimension_notes": {"<dimension>": {...}}, "findings": [{...}]}
`

var batchPrompt = template.Must(template.New("batch").Funcs(template.FuncMap{
	"join": strings.Join,
}).Parse(batchPromptTemplate))

type promptDimension struct {
	Name   string
	Prompt string
}

type promptData struct {
	Batch       domain.Batch
	PacketPath  string
	Dimensions  []promptDimension
	Composite   string
	SubAxes     []string
	MaxFindings int
}

// PromptRenderer renders batch prompts against one packet. Prompts point
// reviewers at the blind packet only.
type PromptRenderer struct {
	Packet          *domain.Packet
	BlindPacketPath string
	MaxFindings     int
}

// Render returns the reviewer prompt for batch.
func (r PromptRenderer) Render(batch domain.Batch) (string, error) {
	data := promptData{
		Batch:       batch,
		PacketPath:  r.BlindPacketPath,
		MaxFindings: r.MaxFindings,
	}
	for _, dim := range batch.Dimensions {
		text, ok := ResolveDimensionPrompt(dim, r.Packet.DimensionPrompts, r.Packet.SharedPrompts)
		if !ok {
			text = fmt.Sprintf("Assess %s across the assigned files.", strings.ReplaceAll(dim, "_", " "))
		}
		data.Dimensions = append(data.Dimensions, promptDimension{Name: dim, Prompt: strings.TrimSpace(text)})
		if dim == domain.CompositeDimension {
			data.Composite = dim
			data.SubAxes = domain.CompositeSubAxes
		}
	}

	var b strings.Builder
	if err := batchPrompt.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render batch %d prompt: %w", batch.Index, err)
	}
	return b.String(), nil
}
