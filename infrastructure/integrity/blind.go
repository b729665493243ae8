// Package integrity implements the anti-gaming safeguards around a review:
// redacting score context from the packet reviewers see, and resetting
// subjective scores that cluster on the configured target.
package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/agnivade/levenshtein"
)

// DefaultDropKeys are top-level packet fields that reveal current or target
// scores.
var DefaultDropKeys = []string{
	"narrative",
	"next_command",
	"score_snapshot",
	"strict_target",
	"strict_target_progress",
	"subjective_at_target",
}

// DefaultConfigHintKeys are config keys known to carry score targets.
var DefaultConfigHintKeys = []string{
	"target_strict_score",
	"strict_target_score",
	"target_score",
	"strict_score",
	"objective_score",
	"overall_score",
	"verified_strict_score",
}

// typoStems are fragments a misspelled score key still carries. A near match
// without one, such as strict_scope, names a different setting.
var typoStems = []string{"scor", "core", "targ", "arget"}

// BlindOptions configures BuildBlindPacket. Nil slices select the defaults.
type BlindOptions struct {
	DropKeys       []string
	ConfigHintKeys []string

	// MaxTypoDistance is the edit distance within which a config key is
	// treated as a misspelling of a hint key, provided it still contains a
	// score or target stem. Zero disables typo matching; use
	// DefaultBlindOptions for the standard value of 1.
	MaxTypoDistance int
}

// DefaultBlindOptions returns the standard redaction settings.
func DefaultBlindOptions() BlindOptions {
	return BlindOptions{
		DropKeys:        DefaultDropKeys,
		ConfigHintKeys:  DefaultConfigHintKeys,
		MaxTypoDistance: 1,
	}
}

// BuildBlindPacket returns a deep copy of packet with score-revealing
// fields removed. The input is never modified.
func BuildBlindPacket(packet map[string]any, opts BlindOptions) map[string]any {
	if opts.DropKeys == nil {
		opts.DropKeys = DefaultDropKeys
	}
	if opts.ConfigHintKeys == nil {
		opts.ConfigHintKeys = DefaultConfigHintKeys
	}

	blind, _ := deepCopy(packet).(map[string]any)
	if blind == nil {
		return map[string]any{}
	}
	for _, key := range opts.DropKeys {
		delete(blind, key)
	}

	if cfg, ok := blind["config"].(map[string]any); ok {
		sanitized := sanitizeConfig(cfg, opts)
		if len(sanitized) == 0 {
			delete(blind, "config")
		} else {
			blind["config"] = sanitized
		}
	}
	return blind
}

func sanitizeConfig(cfg map[string]any, opts BlindOptions) map[string]any {
	out := make(map[string]any, len(cfg))
	for key, value := range cfg {
		lowered := strings.ToLower(strings.TrimSpace(key))
		if lowered == "" || isScoreHint(lowered, opts) {
			continue
		}
		out[key] = value
	}
	return out
}

// isScoreHint reports whether a lowercased config key names a score or
// target.
func isScoreHint(key string, opts BlindOptions) bool {
	if strings.Contains(key, "target") || strings.HasSuffix(key, "_score") {
		return true
	}
	for _, hint := range opts.ConfigHintKeys {
		if key == hint {
			return true
		}
		if opts.MaxTypoDistance > 0 && hasTypoStem(key) &&
			levenshtein.ComputeDistance(key, hint) <= opts.MaxTypoDistance {
			return true
		}
	}
	return false
}

func hasTypoStem(key string) bool {
	for _, stem := range typoStems {
		if strings.Contains(key, stem) {
			return true
		}
	}
	return false
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = deepCopy(val)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, val := range t {
			s[i] = deepCopy(val)
		}
		return s
	default:
		return v
	}
}

// WriteBlindPacket writes packet as indented JSON to path and returns the
// SHA-256 of the written bytes, which provenance records.
func WriteBlindPacket(path string, packet map[string]any) (string, error) {
	data, err := json.MarshalIndent(packet, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode blind packet: %w", err)
	}
	data = append(data, '\n')
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create blind packet dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write blind packet: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
