// Package reviewer runs review prompts against hosted model APIs.
//
// A Backend wraps one provider SDK and classifies its failures into
// ports.ProviderError. APIRunner adapts a Backend to ports.ReviewRunner so
// the batch dispatcher can treat an API call exactly like a reviewer
// process: same timeout contract, same exit codes, same artifacts.
//
//	backend, err := reviewer.NewBackend(reviewer.Config{Provider: "anthropic"})
//	runner := reviewer.NewAPIRunner(backend, reviewer.RetryConfig{})
//	res, err := runner.Run(ctx, prompt, 20*time.Minute)
package reviewer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
)

// DefaultMaxTokens bounds the length of a single batch response.
const DefaultMaxTokens = 8192

// ErrMissingAPIKey is returned when no key is configured and the
// provider's environment variable is empty.
var ErrMissingAPIKey = errors.New("api key is required")

// Backend sends a prompt to a hosted model and returns the text reply.
type Backend interface {
	Complete(ctx context.Context, prompt string) (string, error)

	// Provider returns the backend name, e.g. "openai".
	Provider() string

	// Model returns the configured model identifier.
	Model() string
}

// Config selects and configures a Backend.
type Config struct {
	Provider  string `yaml:"provider" json:"provider" validate:"required,oneof=anthropic openai google"`
	Model     string `yaml:"model" json:"model"`
	APIKey    string `yaml:"api_key" json:"-"`
	BaseURL   string `yaml:"base_url" json:"base_url" validate:"omitempty,url"`
	MaxTokens int    `yaml:"max_tokens" json:"max_tokens" validate:"gte=0"`
}

// ProviderDefaults describes where a provider finds its credentials and
// which model it uses when none is configured.
type ProviderDefaults struct {
	EnvVar       string
	DefaultModel string
}

// Providers lists the built-in backends.
var Providers = map[string]ProviderDefaults{
	"anthropic": {EnvVar: "ANTHROPIC_API_KEY", DefaultModel: "claude-sonnet-4-5"},
	"openai":    {EnvVar: "OPENAI_API_KEY", DefaultModel: "gpt-4.1"},
	"google":    {EnvVar: "GOOGLE_API_KEY", DefaultModel: "gemini-2.5-pro"},
}

// BackendFactory builds a Backend from a resolved Config.
type BackendFactory func(Config) (Backend, error)

var backendFactories = map[string]BackendFactory{}

// RegisterBackend makes a backend available to NewBackend.
func RegisterBackend(provider string, factory BackendFactory) {
	backendFactories[provider] = factory
}

// RegisteredBackends returns the sorted names of all registered backends.
func RegisteredBackends() []string {
	names := make([]string, 0, len(backendFactories))
	for name := range backendFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewBackend resolves defaults for cfg and builds the named backend.
// An empty APIKey is read from the provider's environment variable.
func NewBackend(cfg Config) (Backend, error) {
	factory, ok := backendFactories[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %q", cfg.Provider)
	}

	defaults := Providers[cfg.Provider]
	if cfg.Model == "" {
		cfg.Model = defaults.DefaultModel
	}
	if cfg.APIKey == "" && defaults.EnvVar != "" {
		cfg.APIKey = os.Getenv(defaults.EnvVar)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: %w (set %s)", cfg.Provider, ErrMissingAPIKey, defaults.EnvVar)
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}

	backend, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s backend: %w", cfg.Provider, err)
	}
	return backend, nil
}
