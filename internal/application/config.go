package application

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-quorum/infrastructure/consensus"
	"github.com/ahrav/go-quorum/infrastructure/reviewer"
	"github.com/ahrav/go-quorum/infrastructure/units"
	"github.com/ahrav/go-quorum/internal/ports"
)

// Runner kinds accepted by RunnerConfig.Kind.
const (
	RunnerProcess   = "process"
	RunnerAnthropic = "anthropic"
	RunnerOpenAI    = "openai"
	RunnerGoogle    = "google"
)

// ReviewConfig is the complete configuration of a review run. It is an
// explicit value handed to ReviewService; nothing is cached process-wide.
// Use DefaultReviewConfig as the base and LoadConfig to overlay a YAML file.
type ReviewConfig struct {
	// Runner selects and configures the external judgment producer.
	Runner RunnerConfig `yaml:"runner"`
	// Dispatch controls batch scheduling.
	Dispatch DispatchConfig `yaml:"dispatch"`
	// Payload bounds what the validator accepts from a batch.
	Payload PayloadConfig `yaml:"payload"`
	// Scoring is the pressure curve applied during merge.
	Scoring consensus.ScoringPolicy `yaml:"scoring"`
	// Integrity configures the target-collision guard. A target set on the
	// packet takes precedence over Integrity.Target.
	Integrity units.IntegrityConfig `yaml:"integrity"`
	// Lifecycle configures reconciliation against the finding history.
	Lifecycle LifecycleConfig `yaml:"lifecycle"`
	// Store locates the persisted review state.
	Store StoreConfig `yaml:"store"`
	// RunsDir is the parent directory of per-run artifact trees.
	RunsDir string `yaml:"runs_dir" validate:"required"`
	// Logging configures the process logger.
	Logging LoggingConfig `yaml:"logging"`
}

// RunnerConfig describes how batches reach a reviewer.
type RunnerConfig struct {
	// Kind is process for a local CLI reviewer, or an API provider.
	Kind string `yaml:"kind" validate:"required,oneof=process anthropic openai google"`
	// Command and Args start a process reviewer.
	Command string   `yaml:"command" validate:"required_if=Kind process"`
	Args    []string `yaml:"args"`
	// PromptAsArg passes the prompt as the last argument instead of stdin.
	PromptAsArg bool `yaml:"prompt_as_arg"`
	// Model overrides the provider default for API reviewers.
	Model string `yaml:"model"`
	// APIKeyEnv names the environment variable holding the API key. Empty
	// uses the provider's conventional variable.
	APIKeyEnv string `yaml:"api_key_env"`
	// BaseURL points an API reviewer at a compatible endpoint.
	BaseURL   string `yaml:"base_url" validate:"omitempty,url"`
	MaxTokens int    `yaml:"max_tokens" validate:"gte=0"`
	// Timeout is the per-batch wall-clock budget.
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`
	// RateLimit is the number of reviewer starts allowed per second. Zero
	// disables limiting.
	RateLimit float64 `yaml:"rate_limit" validate:"gte=0"`
	Burst     int     `yaml:"burst" validate:"gte=0"`
	// Retry applies to transient API failures only.
	Retry reviewer.RetryConfig `yaml:"retry"`
}

// DispatchConfig controls how selected batches are scheduled.
type DispatchConfig struct {
	Parallel   bool `yaml:"parallel"`
	MaxWorkers int  `yaml:"max_workers" validate:"gte=0,lte=64"`
}

// PayloadConfig bounds the validator.
type PayloadConfig struct {
	// MaxFindings caps findings kept per batch when the packet sets none.
	MaxFindings        int    `yaml:"max_findings" validate:"gte=0,lte=1000"`
	CompositeDimension string `yaml:"composite_dimension" validate:"omitempty,dimname"`
}

// LifecycleConfig configures reconciliation.
type LifecycleConfig struct {
	IgnorePatterns []string `yaml:"ignore_patterns" validate:"dive,ignorepattern"`
	ScanPath       string   `yaml:"scan_path"`
	Lang           string   `yaml:"lang"`
	HistoryLimit   int      `yaml:"history_limit" validate:"gte=0,lte=1000"`
}

// StoreConfig locates the persisted state file.
type StoreConfig struct {
	Path          string `yaml:"path" validate:"required"`
	RetryAttempts int    `yaml:"retry_attempts" validate:"gte=0,lte=10"`
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
}

// DefaultReviewConfig returns the configuration used when no file is given.
func DefaultReviewConfig() ReviewConfig {
	return ReviewConfig{
		Runner: RunnerConfig{
			Kind:    RunnerProcess,
			Command: "codex",
			Args:    []string{"exec", "--ephemeral", "-"},
			Timeout: 20 * time.Minute,
		},
		Dispatch: DispatchConfig{MaxWorkers: 8},
		Payload:  PayloadConfig{MaxFindings: 10},
		Scoring:  consensus.DefaultScoringPolicy(),
		Integrity: units.IntegrityConfig{
			ResetThreshold: 2,
		},
		Lifecycle: LifecycleConfig{HistoryLimit: 20},
		Store:     StoreConfig{Path: ".quorum/state.json", RetryAttempts: 3},
		RunsDir:   ".quorum/runs",
		Logging:   LoggingConfig{Level: "info", Format: "text"},
	}
}

// newConfigValidator returns a validator with the review validators
// registered.
func newConfigValidator() (*validator.Validate, error) {
	v := validator.New()
	if err := RegisterReviewValidators(v); err != nil {
		return nil, err
	}
	return v, nil
}

// Validate checks every section of the configuration.
func (c ReviewConfig) Validate() error {
	v, err := newConfigValidator()
	if err != nil {
		return err
	}
	if err := v.Struct(c); err != nil {
		return ports.NewConfigError("review", err)
	}
	if err := c.Scoring.Validate(); err != nil {
		return ports.NewConfigError("scoring", err)
	}
	return nil
}

// LoadConfig overlays the YAML file at path onto DefaultReviewConfig and
// validates the result. An empty path returns the defaults.
func LoadConfig(path string) (ReviewConfig, error) {
	if path == "" {
		cfg := DefaultReviewConfig()
		return cfg, cfg.Validate()
	}
	f, err := os.Open(path)
	if err != nil {
		return ReviewConfig{}, ports.NewConfigError(path, err)
	}
	defer f.Close()
	return LoadConfigFromReader(f)
}

// LoadConfigFromReader is LoadConfig for an already opened document.
// Unknown keys are rejected.
func LoadConfigFromReader(r io.Reader) (ReviewConfig, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return ReviewConfig{}, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := DefaultReviewConfig()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return ReviewConfig{}, ports.NewConfigError("yaml", err)
	}
	if err := cfg.Validate(); err != nil {
		return ReviewConfig{}, err
	}
	return cfg, nil
}

// ReviewerConfig converts an API runner section into the backend config,
// resolving APIKeyEnv.
func (r RunnerConfig) ReviewerConfig() reviewer.Config {
	cfg := reviewer.Config{
		Provider:  r.Kind,
		Model:     r.Model,
		BaseURL:   r.BaseURL,
		MaxTokens: r.MaxTokens,
	}
	if r.APIKeyEnv != "" {
		cfg.APIKey = os.Getenv(r.APIKeyEnv)
	}
	return cfg
}

// NewLogger builds the process logger described by the logging section.
func (l LoggingConfig) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	switch l.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
