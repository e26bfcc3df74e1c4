package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicMaxTokens = 4096

// AnthropicCompleter calls the Messages API. System messages are folded into
// the request's System blocks.
type AnthropicCompleter struct {
	client      anthropic.Client
	model       string
	temperature *float64
	maxTokens   int64
}

func NewAnthropicCompleter(apiKey, model string, temperature *float64, maxTokens *int) (*AnthropicCompleter, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	limit := int64(defaultAnthropicMaxTokens)
	if maxTokens != nil && *maxTokens > 0 {
		limit = int64(*maxTokens)
	}
	return &AnthropicCompleter{
		client:      anthropic.NewClient(option.WithAPIKey(apiKey), option.WithMaxRetries(0)),
		model:       model,
		temperature: temperature,
		maxTokens:   limit,
	}, nil
}

func (c *AnthropicCompleter) Complete(ctx context.Context, messages []Message) (string, error) {
	if err := validate(messages); err != nil {
		return "", err
	}

	system, rest := splitSystem(messages)
	if len(rest) == 0 {
		// the API needs at least one user turn
		rest = []Message{Human(system)}
		system = ""
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages:  toAnthropicMessages(rest),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if c.temperature != nil {
		params.Temperature = anthropic.Float(*c.temperature)
	}

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", err)
	}

	text := extractAnthropicText(message)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// toAnthropicMessages merges consecutive human messages into one user turn.
func toAnthropicMessages(messages []Message) []anthropic.MessageParam {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(messages))
	for _, m := range messages {
		blocks = append(blocks, anthropic.NewTextBlock(m.Text))
	}
	return []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)}
}

func extractAnthropicText(msg *anthropic.Message) string {
	var parts []string
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			parts = append(parts, tb.Text)
		}
	}
	return strings.Join(parts, "")
}
