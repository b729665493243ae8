package dispatch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ahrav/go-quorum/internal/domain"
)

// Run directory layout.
const (
	PromptsDir = "prompts"
	ResultsDir = "results"
	LogsDir    = "logs"

	PacketFile  = "packet.json"
	BlindFile   = "packet.blind.json"
	MergedFile  = "holistic_findings_merged.json"
	SummaryFile = "run_summary.json"

	runStampLayout = "20060102T150405Z"
)

// RunLayout locates the artifacts of one run. Every per-batch file is keyed
// by its 1-based index, so concurrent batches never share a file.
type RunLayout struct {
	Root string
}

// NewRunLayout returns the layout for a run started at now under runsDir.
func NewRunLayout(runsDir string, now time.Time) RunLayout {
	return RunLayout{Root: filepath.Join(runsDir, now.UTC().Format(runStampLayout))}
}

// Stamp returns the run directory name.
func (l RunLayout) Stamp() string { return filepath.Base(l.Root) }

func (l RunLayout) PromptPath(idx int) string {
	return filepath.Join(l.Root, PromptsDir, fmt.Sprintf("batch-%d.md", idx))
}

func (l RunLayout) OutputPath(idx int) string {
	return filepath.Join(l.Root, ResultsDir, fmt.Sprintf("batch-%d.raw.txt", idx))
}

func (l RunLayout) LogPath(idx int) string {
	return filepath.Join(l.Root, LogsDir, fmt.Sprintf("batch-%d.log", idx))
}

func (l RunLayout) LogDir() string          { return filepath.Join(l.Root, LogsDir) }
func (l RunLayout) PacketPath() string      { return filepath.Join(l.Root, PacketFile) }
func (l RunLayout) BlindPacketPath() string { return filepath.Join(l.Root, BlindFile) }
func (l RunLayout) MergedPath() string      { return filepath.Join(l.Root, MergedFile) }
func (l RunLayout) SummaryPath() string     { return filepath.Join(l.Root, SummaryFile) }

// Create makes the run directory tree.
func (l RunLayout) Create() error {
	for _, dir := range []string{PromptsDir, ResultsDir, LogsDir} {
		if err := os.MkdirAll(filepath.Join(l.Root, dir), 0o755); err != nil {
			return fmt.Errorf("create run dir %s: %w", dir, err)
		}
	}
	return nil
}

// PrepareBatches renders and writes each batch prompt and fills in the
// batch's artifact paths. The returned slice is a copy.
func (l RunLayout) PrepareBatches(batches []domain.Batch, render func(domain.Batch) (string, error)) ([]domain.Batch, error) {
	out := make([]domain.Batch, len(batches))
	for i, b := range batches {
		prompt, err := render(b)
		if err != nil {
			return nil, fmt.Errorf("render batch %d prompt: %w", b.Index, err)
		}
		b.Prompt = prompt
		b.PromptPath = l.PromptPath(b.Index)
		b.OutputPath = l.OutputPath(b.Index)
		b.LogPath = l.LogPath(b.Index)
		if err := os.WriteFile(b.PromptPath, []byte(prompt), 0o644); err != nil {
			return nil, fmt.Errorf("write batch %d prompt: %w", b.Index, err)
		}
		out[i] = b
	}
	return out, nil
}

// WriteJSON writes v as indented JSON with a trailing newline.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
