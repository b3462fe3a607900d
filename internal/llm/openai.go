package llm

import (
	"context"
	"fmt"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

type openaiProvider struct {
	client openai.Client
	model  string
}

func newOpenAIProvider(model, apiKey string) (Provider, error) {
	if apiKey == "" {
		return nil, missingKey("openai", "OPENAI_API_KEY")
	}
	return &openaiProvider{client: openai.NewClient(option.WithAPIKey(apiKey)), model: model}, nil
}

// Complete sends one chat completion. TopP is pinned to 1 so that only the
// temperature varies sampling between passes.
func (p *openaiProvider) Complete(ctx context.Context, system, user string, maxTokens int, temperature float64) (string, error) {
	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		MaxTokens:   openai.Int(int64(maxTokens)),
		Temperature: openai.Float(temperature),
		TopP:        openai.Float(1),
	})
	if err != nil {
		return "", fmt.Errorf("llm: openai %s: %w", p.model, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm: openai %s: no choices returned", p.model)
	}
	choice := resp.Choices[0]
	return completion(choice.Message.Content, choice.FinishReason == "length")
}
