package llm

import (
	"context"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

type anthropicProvider struct {
	client anthropic.Client
	model  string
}

func newAnthropicProvider(model, apiKey string) (Provider, error) {
	if apiKey == "" {
		return nil, missingKey("anthropic", "ANTHROPIC_API_KEY")
	}
	return &anthropicProvider{client: anthropic.NewClient(option.WithAPIKey(apiKey)), model: model}, nil
}

// Complete sends one message and concatenates the text blocks of the reply.
func (p *anthropicProvider) Complete(ctx context.Context, system, user string, maxTokens int, temperature float64) (string, error) {
	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(p.model),
		System:      []anthropic.TextBlockParam{{Text: system}},
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(user))},
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(temperature),
	})
	if err != nil {
		return "", fmt.Errorf("llm: anthropic %s: %w", p.model, err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return completion(sb.String(), msg.StopReason == "max_tokens")
}
