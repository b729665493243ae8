package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Batch is an independently dispatchable unit of review scoped to a subset
// of dimensions and files. Batches are built when the packet is prepared and
// are never mutated after dispatch.
type Batch struct {
	// Index is the 1-based position of the batch within the packet.
	Index int `json:"index"`

	// Name is a short human label, e.g. "naming & contracts".
	Name string `json:"name,omitempty"`

	// Dimensions lists the quality axes this batch is asked to score.
	Dimensions []string `json:"dimensions"`

	// FilesToRead is the file assignment for this batch.
	FilesToRead []string `json:"files_to_read"`

	// Why carries the packet's rationale for grouping these files.
	Why string `json:"why,omitempty"`

	// Prompt is the rendered reviewer prompt.
	Prompt string `json:"-"`

	// PromptPath, OutputPath and LogPath are the per-batch run artifacts.
	PromptPath string `json:"-"`
	OutputPath string `json:"-"`
	LogPath    string `json:"-"`
}

// Packet is the review input handed to batch preparation. It carries the
// file-to-batch assignment together with the settings the validator and
// integrity guard need.
type Packet struct {
	// Path is the packet file the run was started from. It is referenced by
	// the retry command.
	Path string `json:"-"`

	// Batches is the ordered file-to-batch assignment.
	Batches []Batch `json:"investigation_batches"`

	// AllowedDimensions bounds the assessment keys any batch may report.
	AllowedDimensions []string `json:"dimensions"`

	// DimensionPrompts holds holistic-specific prompt text per dimension.
	DimensionPrompts map[string]string `json:"dimension_prompts,omitempty"`

	// SharedPrompts holds the per-file prompt text used when no holistic
	// prompt exists for a dimension.
	SharedPrompts map[string]string `json:"shared_prompts,omitempty"`

	// TargetScore is the configured strict target threshold. It is never sent
	// to reviewers.
	TargetScore *float64 `json:"-"`

	// MaxFindingsPerBatch caps findings kept from a single batch.
	MaxFindingsPerBatch int `json:"-"`

	// Raw is the decoded packet document, used to build the blind variant.
	Raw map[string]any `json:"-"`
}

// BatchCount returns the number of batches in the packet.
func (p *Packet) BatchCount() int { return len(p.Batches) }

// ParseBatchSelection turns a comma-separated list of 1-based batch indices
// into a deduplicated, order-preserving slice. An empty selection selects all
// batches.
func ParseBatchSelection(raw string, batchCount int) ([]int, error) {
	if strings.TrimSpace(raw) == "" {
		all := make([]int, batchCount)
		for i := range all {
			all[i] = i + 1
		}
		return all, nil
	}

	verr := NewValidationError("batch selection")
	seen := make(map[int]struct{})
	selected := make([]int, 0)
	for _, token := range strings.Split(raw, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		idx, err := strconv.Atoi(token)
		if err != nil {
			verr.AddError(fmt.Sprintf("invalid batch index %q", token))
			continue
		}
		if idx < 1 || idx > batchCount {
			verr.AddError(fmt.Sprintf("batch index %d out of range 1..%d", idx, batchCount))
			continue
		}
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}
		selected = append(selected, idx)
	}

	if verr.HasErrors() {
		return nil, verr
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("batch selection %q: %w", raw, ErrNoBatches)
	}
	return selected, nil
}

// FormatBatchSelection renders 1-based indices as the CSV accepted by
// ParseBatchSelection.
func FormatBatchSelection(indices []int) string {
	parts := make([]string, len(indices))
	for i, idx := range indices {
		parts[i] = strconv.Itoa(idx)
	}
	return strings.Join(parts, ",")
}
