package application

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-quorum/internal/domain"
	"github.com/ahrav/go-quorum/internal/ports"
)

var _ ports.PacketProvider = (*FilePacketProvider)(nil)

// targetKeys are the packet config keys that may carry the strict target,
// in lookup order.
var targetKeys = []string{"target_strict_score", "strict_target_score"}

// FilePacketProvider loads a review packet from a JSON or YAML file.
type FilePacketProvider struct {
	// Path is the packet file. Files ending in .yaml or .yml are decoded
	// as YAML, everything else as JSON.
	Path string

	// DefaultTarget applies when the packet config sets no strict target.
	DefaultTarget *float64

	// DefaultMaxFindings applies when the packet sets no per-batch cap.
	DefaultMaxFindings int
}

// Packet implements ports.PacketProvider.
func (p *FilePacketProvider) Packet(ctx context.Context) (*domain.Packet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return nil, fmt.Errorf("read packet: %w", err)
	}

	raw, err := decodePacketDocument(p.Path, data)
	if err != nil {
		return nil, err
	}
	packet, err := PacketFromDocument(raw)
	if err != nil {
		return nil, fmt.Errorf("packet %s: %w", p.Path, err)
	}
	packet.Path = p.Path
	if packet.TargetScore == nil {
		packet.TargetScore = p.DefaultTarget
	}
	if packet.MaxFindingsPerBatch <= 0 {
		packet.MaxFindingsPerBatch = p.DefaultMaxFindings
	}
	return packet, nil
}

func decodePacketDocument(path string, data []byte) (map[string]any, error) {
	var raw map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("decode packet yaml: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("decode packet json: %w", err)
		}
	}
	if raw == nil {
		return nil, fmt.Errorf("packet %s is empty", path)
	}
	return raw, nil
}

// PacketFromDocument builds a Packet from a decoded packet document. Batch
// indices are assigned 1-based in document order; the document itself is
// kept as Packet.Raw for blind-packet construction.
func PacketFromDocument(raw map[string]any) (*domain.Packet, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("re-encode packet: %w", err)
	}
	var packet domain.Packet
	if err := json.Unmarshal(data, &packet); err != nil {
		return nil, fmt.Errorf("decode packet: %w", err)
	}
	if len(packet.Batches) == 0 {
		return nil, fmt.Errorf("investigation_batches: %w", domain.ErrNoBatches)
	}

	verr := domain.NewValidationError("packet")
	for i := range packet.Batches {
		packet.Batches[i].Index = i + 1
		if len(packet.Batches[i].Dimensions) == 0 {
			packet.Batches[i].Dimensions = append([]string(nil), packet.AllowedDimensions...)
		}
		if len(packet.Batches[i].Dimensions) == 0 {
			verr.AddError(fmt.Sprintf("batch %d has no dimensions", i+1))
		}
	}
	if verr.HasErrors() {
		return nil, verr
	}

	if cfg, ok := raw["config"].(map[string]any); ok {
		for _, key := range targetKeys {
			if t, ok := toFloat(cfg[key]); ok {
				packet.TargetScore = &t
				break
			}
		}
	}
	if n, ok := toFloat(raw["max_findings_per_batch"]); ok && n > 0 {
		packet.MaxFindingsPerBatch = int(n)
	}
	packet.Raw = raw
	return &packet, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
