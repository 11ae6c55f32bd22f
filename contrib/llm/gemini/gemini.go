// Package gemini implements llm.Client for Google Gemini models via the
// official generative-ai-go SDK.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/construdocs/construdocs/llm"
	"github.com/construdocs/construdocs/pkg/errors"
)

// Config holds Gemini provider configuration.
type Config struct {
	APIKey string
	Model  string
}

// Provider implements llm.Client for Gemini.
type Provider struct {
	config Config
	client *genai.Client
}

// New dials the Gemini API. The client holds a connection pool; call Close
// when done.
func New(ctx context.Context, config Config) (*Provider, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(config.APIKey))
	if err != nil {
		return nil, fmt.Errorf("dial gemini: %w", err)
	}
	return &Provider{config: config, client: client}, nil
}

// Close releases the underlying connection.
func (p *Provider) Close() error { return p.client.Close() }

// Generate implements llm.Client. Gemini has no assistant-inline system role,
// so system messages become the model's system instruction, and the history
// is replayed through a chat session with the last user message as the prompt.
func (p *Provider) Generate(ctx context.Context, messages []*llm.Message, opts llm.Options) (*llm.Message, error) {
	model := p.client.GenerativeModel(p.config.Model)
	if opts.Temperature > 0 {
		model.SetTemperature(float32(opts.Temperature))
	}
	if opts.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(opts.MaxTokens))
	}
	if opts.TopP > 0 {
		model.SetTopP(float32(opts.TopP))
	}

	var system []string
	var history []*genai.Content
	var prompt string
	for i, msg := range messages {
		switch msg.Role {
		case llm.RoleSystem:
			system = append(system, msg.Content)
		case llm.RoleAssistant:
			history = append(history, &genai.Content{
				Role:  "model",
				Parts: []genai.Part{genai.Text(msg.Content)},
			})
		default:
			if i == len(messages)-1 {
				prompt = msg.Content
				continue
			}
			history = append(history, &genai.Content{
				Role:  "user",
				Parts: []genai.Part{genai.Text(msg.Content)},
			})
		}
	}
	if len(system) > 0 {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(strings.Join(system, "\n"))},
		}
	}
	if prompt == "" {
		return nil, fmt.Errorf("no user prompt: %w", errors.ErrInvalidInput)
	}

	session := model.StartChat()
	session.History = history
	resp, err := session.SendMessage(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("gemini completion: %w: %v", errors.ErrLLMUnavailable, err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("no candidates returned: %w", errors.ErrLLMUnavailable)
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	return llm.NewMessage(llm.RoleAssistant, text.String()), nil
}
