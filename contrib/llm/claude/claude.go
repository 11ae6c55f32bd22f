// Package claude implements llm.Client for Anthropic Claude models.
package claude

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"

	"github.com/construdocs/construdocs/llm"
	"github.com/construdocs/construdocs/pkg/errors"
)

const defaultMaxTokens = 2048

// Config holds Claude provider configuration.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Provider implements llm.Client for Claude.
type Provider struct {
	config Config
	client anthropic.Client
}

// New creates a Provider using the official SDK.
func New(config Config) *Provider {
	opts := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}
	return &Provider{
		config: config,
		client: anthropic.NewClient(opts...),
	}
}

// Generate implements llm.Client. System messages are lifted into the
// dedicated system field; the Messages API rejects them inline.
func (p *Provider) Generate(ctx context.Context, messages []*llm.Message, opts llm.Options) (*llm.Message, error) {
	var systemPrompts []string
	conversation := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case llm.RoleSystem:
			systemPrompts = append(systemPrompts, msg.Content)
		case llm.RoleAssistant:
			conversation = append(conversation,
				anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			conversation = append(conversation,
				anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.config.Model),
		Messages:  conversation,
		MaxTokens: maxTokens,
	}
	if len(systemPrompts) > 0 {
		params.System = []anthropic.TextBlockParam{
			{Text: strings.Join(systemPrompts, "\n")},
		}
	}
	if opts.Temperature > 0 {
		params.Temperature = param.NewOpt(opts.Temperature)
	}
	if opts.TopP > 0 {
		params.TopP = param.NewOpt(opts.TopP)
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, wrapError(err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return llm.NewMessage(llm.RoleAssistant, text.String()), nil
}

func wrapError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
		return &errors.RateLimitError{Err: err}
	}
	return fmt.Errorf("claude completion: %w: %v", errors.ErrLLMUnavailable, err)
}
