package ai

import (
	"context"
	"fmt"
	"strings"

	openaigo "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAICompleter calls the chat completions endpoint.
type OpenAICompleter struct {
	client      openaigo.Client
	model       string
	temperature *float64
	maxTokens   *int
}

// NewOpenAICompleter builds a client for apiKey. The SDK's own retries are
// disabled; Retry middleware owns that concern.
func NewOpenAICompleter(apiKey, baseURL, model string, temperature *float64, maxTokens *int) (*OpenAICompleter, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/"); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAICompleter{
		client:      openaigo.NewClient(opts...),
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
	}, nil
}

func (c *OpenAICompleter) Complete(ctx context.Context, messages []Message) (string, error) {
	if err := validate(messages); err != nil {
		return "", err
	}

	params := openaigo.ChatCompletionNewParams{
		Model:    openaigo.ChatModel(c.model),
		Messages: toOpenAIMessages(messages),
	}
	if c.temperature != nil {
		params.Temperature = openaigo.Float(*c.temperature)
	}
	if c.maxTokens != nil {
		params.MaxCompletionTokens = openaigo.Int(int64(*c.maxTokens))
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

func toOpenAIMessages(messages []Message) []openaigo.ChatCompletionMessageParamUnion {
	out := make([]openaigo.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openaigo.SystemMessage(m.Text))
		default:
			out = append(out, openaigo.UserMessage(m.Text))
		}
	}
	return out
}
