package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
)

// ChatModelCompleter runs requests through an eino chain ending in any
// eino ChatModel (ark, or anything else implementing model.ChatModel).
type ChatModelCompleter struct {
	chatModel model.ChatModel
	chain     compose.Runnable[map[string]any, *schema.Message]
}

// NewChatModelCompleter compiles the prompt-to-model chain for chatModel.
func NewChatModelCompleter(ctx context.Context, chatModel model.ChatModel) (*ChatModelCompleter, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.MessagesPlaceholder("messages", false),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &ChatModelCompleter{chatModel: chatModel, chain: runnable}, nil
}

// Complete invokes the chain with the converted message list.
func (c *ChatModelCompleter) Complete(ctx context.Context, messages []Message) (string, error) {
	if err := validate(messages); err != nil {
		return "", err
	}

	response, err := c.chain.Invoke(ctx, map[string]any{
		"messages": toSchemaMessages(messages),
	})
	if err != nil {
		return "", fmt.Errorf("failed to run chat chain: %w", err)
	}
	if response == nil || response.Content == "" {
		return "", ErrEmptyResponse
	}
	return response.Content, nil
}

// ChatModel returns the underlying model.
func (c *ChatModelCompleter) ChatModel() model.ChatModel {
	return c.chatModel
}

func toSchemaMessages(messages []Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, schema.SystemMessage(m.Text))
		default:
			out = append(out, schema.UserMessage(m.Text))
		}
	}
	return out
}
