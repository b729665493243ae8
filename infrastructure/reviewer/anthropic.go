package reviewer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ahrav/go-quorum/internal/ports"
)

func init() {
	RegisterBackend("anthropic", newAnthropicBackend)
}

type anthropicBackend struct {
	client    anthropic.Client
	model     string
	maxTokens int
}

func newAnthropicBackend(cfg Config) (Backend, error) {
	// Retries are owned by APIRunner so attempts are counted in one place.
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &anthropicBackend{
		client:    anthropic.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}, nil
}

func (b *anthropicBackend) Provider() string { return "anthropic" }
func (b *anthropicBackend) Model() string    { return b.model }

func (b *anthropicBackend) Complete(ctx context.Context, prompt string) (string, error) {
	message, err := b.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(b.model),
		MaxTokens: int64(b.maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", b.wrapError(err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(tb.Text)
		}
	}
	if text.Len() == 0 {
		return "", ports.NewProviderError(b.Provider(), b.model, 0,
			fmt.Errorf("%w: no text content", ports.ErrInvalidResponse))
	}
	return text.String(), nil
}

func (b *anthropicBackend) wrapError(err error) error {
	if perr := classifyContext(b.Provider(), b.model, err); perr != nil {
		return perr
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return classifyStatus(b.Provider(), b.model, apiErr.StatusCode, err)
	}
	return ports.NewProviderError(b.Provider(), b.model, 0, err)
}
