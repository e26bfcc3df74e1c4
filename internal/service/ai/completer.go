// Package ai adapts remote completion services to the one-shot Completer
// contract used by interviews and discovery.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMissingAPIKey = errors.New("api key is required")
	ErrEmptyResponse = errors.New("empty completion response")
)

// Role marks who a message is attributed to.
type Role string

const (
	RoleSystem Role = "system"
	RoleHuman  Role = "human"
)

// Message is one entry of a completion request.
type Message struct {
	Role Role
	Text string
}

// System builds a system message.
func System(text string) Message { return Message{Role: RoleSystem, Text: text} }

// Human builds a human message.
func Human(text string) Message { return Message{Role: RoleHuman, Text: text} }

// Completer returns the model's reply to the whole message list.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, messages []Message) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, messages []Message) (string, error) {
	return f(ctx, messages)
}

// Factory builds a completer bound to apiKey. purpose labels metrics and
// traces ("persona", "interviewer", "roster", ...).
type Factory func(ctx context.Context, apiKey, purpose string) (Completer, error)

// PermanentError marks failures that must not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return "permanent: " + e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so Retry gives up immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// splitSystem separates system text from the conversational messages for
// providers that take the system prompt out of band.
func splitSystem(messages []Message) (string, []Message) {
	var system []string
	rest := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem {
			system = append(system, m.Text)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(system, "\n\n"), rest
}

func validate(messages []Message) error {
	if len(messages) == 0 {
		return Permanent(errors.New("no messages to complete"))
	}
	for i, m := range messages {
		if m.Role != RoleSystem && m.Role != RoleHuman {
			return Permanent(fmt.Errorf("message %d has unknown role %q", i, m.Role))
		}
	}
	return nil
}
