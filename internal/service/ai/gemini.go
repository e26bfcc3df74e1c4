package ai

import (
	"context"
	"fmt"
	"strings"

	genai "google.golang.org/genai"
)

// GeminiCompleter calls GenerateContent on the Gemini API backend.
type GeminiCompleter struct {
	cli         *genai.Client
	model       string
	temperature *float64
	maxTokens   *int
}

func NewGeminiCompleter(ctx context.Context, apiKey, model string, temperature *float64, maxTokens *int) (*GeminiCompleter, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiCompleter{cli: cli, model: model, temperature: temperature, maxTokens: maxTokens}, nil
}

func (g *GeminiCompleter) Complete(ctx context.Context, messages []Message) (string, error) {
	if err := validate(messages); err != nil {
		return "", err
	}

	system, rest := splitSystem(messages)
	if len(rest) == 0 {
		rest = []Message{Human(system)}
		system = ""
	}

	parts := make([]*genai.Part, 0, len(rest))
	for _, m := range rest {
		parts = append(parts, &genai.Part{Text: m.Text})
	}

	cfg := &genai.GenerateContentConfig{}
	if system != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	if g.temperature != nil {
		t := float32(*g.temperature)
		cfg.Temperature = &t
	}
	if g.maxTokens != nil {
		cfg.MaxOutputTokens = int32(*g.maxTokens)
	}

	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Role: string(genai.RoleUser), Parts: parts}},
		cfg,
	)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", ErrEmptyResponse
	}

	var out strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		out.WriteString(p.Text)
	}
	if out.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return out.String(), nil
}
