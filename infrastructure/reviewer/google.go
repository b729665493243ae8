package reviewer

import (
	"context"
	"errors"
	"fmt"
	"math"

	"google.golang.org/api/googleapi"
	"google.golang.org/genai"

	"github.com/ahrav/go-quorum/internal/ports"
)

func init() {
	RegisterBackend("google", newGoogleBackend)
}

type googleBackend struct {
	client    *genai.Client
	model     string
	maxTokens int32
}

func newGoogleBackend(cfg Config) (Backend, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(context.Background(), clientCfg)
	if err != nil {
		return nil, err
	}
	maxTokens := int32(math.MaxInt32)
	if cfg.MaxTokens < math.MaxInt32 {
		maxTokens = int32(cfg.MaxTokens)
	}
	return &googleBackend{client: client, model: cfg.Model, maxTokens: maxTokens}, nil
}

func (b *googleBackend) Provider() string { return "google" }
func (b *googleBackend) Model() string    { return b.model }

func (b *googleBackend) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := b.client.Models.GenerateContent(ctx, b.model,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)},
		&genai.GenerateContentConfig{MaxOutputTokens: b.maxTokens},
	)
	if err != nil {
		return "", b.wrapError(err)
	}
	text := resp.Text()
	if text == "" {
		return "", ports.NewProviderError(b.Provider(), b.model, 0,
			fmt.Errorf("%w: empty candidate text", ports.ErrInvalidResponse))
	}
	return text, nil
}

func (b *googleBackend) wrapError(err error) error {
	if perr := classifyContext(b.Provider(), b.model, err); perr != nil {
		return perr
	}
	// genai reports HTTP failures as APIError values; googleapi.Error covers
	// transports built on the generated API clients.
	var genaiErr genai.APIError
	if errors.As(err, &genaiErr) {
		return classifyStatus(b.Provider(), b.model, genaiErr.Code, err)
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return classifyStatus(b.Provider(), b.model, apiErr.Code, err)
	}
	return ports.NewProviderError(b.Provider(), b.model, 0, err)
}
