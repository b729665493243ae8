package reviewer

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ahrav/go-quorum/internal/ports"
)

func init() {
	RegisterBackend("openai", newOpenAIBackend)
}

type openAIBackend struct {
	client    *openai.Client
	model     string
	maxTokens int
}

func newOpenAIBackend(cfg Config) (Backend, error) {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &openAIBackend{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}, nil
}

func (b *openAIBackend) Provider() string { return "openai" }
func (b *openAIBackend) Model() string    { return b.model }

func (b *openAIBackend) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:               b.model,
		MaxCompletionTokens: b.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", b.wrapError(err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ports.NewProviderError(b.Provider(), b.model, 0,
			fmt.Errorf("%w: no choices", ports.ErrInvalidResponse))
	}
	return resp.Choices[0].Message.Content, nil
}

func (b *openAIBackend) wrapError(err error) error {
	if perr := classifyContext(b.Provider(), b.model, err); perr != nil {
		return perr
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(b.Provider(), b.model, apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classifyStatus(b.Provider(), b.model, reqErr.HTTPStatusCode, err)
	}
	return ports.NewProviderError(b.Provider(), b.model, 0, err)
}
