// Package openai implements llm.Client over any OpenAI-compatible chat
// completions API. Pointing BaseURL at api.groq.com/openai/v1 serves Groq
// models through the same client.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"

	"github.com/construdocs/construdocs/llm"
	"github.com/construdocs/construdocs/pkg/errors"
)

// Config holds provider configuration.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Provider implements llm.Client for OpenAI-compatible backends.
type Provider struct {
	config Config
	client openaisdk.Client
}

// New creates a Provider using the official SDK.
func New(config Config) *Provider {
	opts := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if strings.TrimSpace(config.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}
	return &Provider{
		config: config,
		client: openaisdk.NewClient(opts...),
	}
}

// Generate implements llm.Client.
func (p *Provider) Generate(ctx context.Context, messages []*llm.Message, opts llm.Options) (*llm.Message, error) {
	converted := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case llm.RoleSystem:
			converted = append(converted, openaisdk.SystemMessage(msg.Content))
		case llm.RoleAssistant:
			converted = append(converted, openaisdk.AssistantMessage(msg.Content))
		default:
			converted = append(converted, openaisdk.UserMessage(msg.Content))
		}
	}

	params := openaisdk.ChatCompletionNewParams{
		Messages: converted,
		Model:    openaisdk.ChatModel(p.config.Model),
	}
	if opts.Temperature > 0 {
		params.Temperature = param.NewOpt(opts.Temperature)
	}
	if opts.MaxTokens > 0 {
		params.MaxTokens = param.NewOpt(opts.MaxTokens)
	}
	if opts.TopP > 0 {
		params.TopP = param.NewOpt(opts.TopP)
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, wrapError(err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned: %w", errors.ErrLLMUnavailable)
	}
	return llm.NewMessage(llm.RoleAssistant, completion.Choices[0].Message.Content), nil
}

// wrapError maps API failures onto the service error taxonomy, keeping the
// retry-after hint on 429 responses.
func wrapError(err error) error {
	var apiErr *openaisdk.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests {
			return &errors.RateLimitError{RetryAfter: retryAfter(apiErr.Response), Err: err}
		}
	}
	return fmt.Errorf("chat completion: %w: %v", errors.ErrLLMUnavailable, err)
}

func retryAfter(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	return 0
}
