package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	googleoption "google.golang.org/api/option"
)

// googleProvider opens a genai client per call so the caller's context
// bounds the connection.
type googleProvider struct {
	apiKey string
	model  string
}

func newGoogleProvider(model, apiKey string) (Provider, error) {
	if apiKey == "" {
		return nil, missingKey("google", "GOOGLE_API_KEY")
	}
	return &googleProvider{apiKey: apiKey, model: model}, nil
}

func (p *googleProvider) Complete(ctx context.Context, system, user string, maxTokens int, temperature float64) (string, error) {
	client, err := genai.NewClient(ctx, googleoption.WithAPIKey(p.apiKey))
	if err != nil {
		return "", fmt.Errorf("llm: google: new client: %w", err)
	}
	defer client.Close()

	m := client.GenerativeModel(p.model)
	m.SystemInstruction = genai.NewUserContent(genai.Text(system))
	m.SetMaxOutputTokens(int32(maxTokens))
	m.SetTemperature(float32(temperature))

	resp, err := m.GenerateContent(ctx, genai.Text(user))
	if err != nil {
		return "", fmt.Errorf("llm: google %s: %w", p.model, err)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("llm: google %s: no candidates returned", p.model)
	}

	cand := resp.Candidates[0]
	var sb strings.Builder
	if cand.Content != nil {
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				sb.WriteString(string(t))
			}
		}
	}
	return completion(sb.String(), cand.FinishReason == genai.FinishReasonMaxTokens)
}
