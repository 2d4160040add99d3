package aigateway

import (
	"context"
	"errors"
	"os"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	DefaultAnthropicModel = "claude-sonnet-4-5-20250929"
	DefaultMaxTokens      = 4096
)

type AnthropicMessager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

type AnthropicProvider struct {
	messages AnthropicMessager
	model    string
}

type AnthropicClientCreator func(apiKey string) AnthropicMessager

func defaultAnthropicCreator(apiKey string) AnthropicMessager {
	c := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &c.Messages
}

var newAnthropicClient AnthropicClientCreator = defaultAnthropicCreator

// NewAnthropicProvider returns nil (not an error) when the key is absent so
// the caller can decide whether a missing primary is fatal.
func NewAnthropicProvider(apiKey, model string) *AnthropicProvider {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil
	}
	if strings.TrimSpace(model) == "" {
		model = DefaultAnthropicModel
	}
	return &AnthropicProvider{messages: newAnthropicClient(apiKey), model: model}
}

func NewAnthropicProviderFromEnv() (*AnthropicProvider, error) {
	p := NewAnthropicProvider(os.Getenv("ANTHROPIC_API_KEY"), os.Getenv("NOVELTY_CHECK_ANTHROPIC_MODEL"))
	if p == nil {
		return nil, errors.New("ANTHROPIC_API_KEY not configured")
	}
	return p, nil
}

func (p *AnthropicProvider) Name() string  { return "anthropic" }
func (p *AnthropicProvider) Model() string { return p.model }

func (p *AnthropicProvider) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	model := p.model
	if strings.TrimSpace(opts.Model) != "" {
		model = opts.Model
	}
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   int64(opts.MaxTokens),
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
		Temperature: anthropic.Float(opts.Temperature),
	}
	if strings.TrimSpace(opts.System) != "" {
		params.System = []anthropic.TextBlockParam{{Text: opts.System}}
	}
	resp, err := p.messages.New(ctx, params)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return sb.String(), nil
}
