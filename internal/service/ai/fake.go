package ai

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Fake is a deterministic in-process completer. Queued replies are served
// first; after that Respond (or the built-in demo responder) answers.
type Fake struct {
	Respond func(messages []Message) (string, error)

	mu      sync.Mutex
	queue   []string
	calls   [][]Message
	failErr error
}

// NewFake returns a Fake that serves replies in order.
func NewFake(replies ...string) *Fake {
	return &Fake{queue: append([]string(nil), replies...)}
}

// Enqueue appends replies to the queue.
func (f *Fake) Enqueue(replies ...string) {
	f.mu.Lock()
	f.queue = append(f.queue, replies...)
	f.mu.Unlock()
}

// FailWith makes every following call return err.
func (f *Fake) FailWith(err error) {
	f.mu.Lock()
	f.failErr = err
	f.mu.Unlock()
}

func (f *Fake) Complete(ctx context.Context, messages []Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := validate(messages); err != nil {
		return "", err
	}

	f.mu.Lock()
	f.calls = append(f.calls, append([]Message(nil), messages...))
	if f.failErr != nil {
		err := f.failErr
		f.mu.Unlock()
		return "", err
	}
	if len(f.queue) > 0 {
		reply := f.queue[0]
		f.queue = f.queue[1:]
		f.mu.Unlock()
		return reply, nil
	}
	respond := f.Respond
	f.mu.Unlock()

	if respond != nil {
		return respond(messages)
	}
	return demoReply(messages), nil
}

// Calls returns a copy of every request seen so far.
func (f *Fake) Calls() [][]Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]Message, len(f.calls))
	for i, c := range f.calls {
		out[i] = append([]Message(nil), c...)
	}
	return out
}

// CallCount returns the number of requests seen so far.
func (f *Fake) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// FakeFactory hands the same Fake to every caller.
func FakeFactory(f *Fake) Factory {
	return func(context.Context, string, string) (Completer, error) {
		return f, nil
	}
}

// demoReply produces plausible canned text so the service runs offline.
func demoReply(messages []Message) string {
	last := ""
	if len(messages) > 0 {
		last = messages[len(messages)-1].Text
	}
	switch {
	case strings.Contains(last, "give a list of five people"):
		return strings.Join([]string{
			"Talkative Tom: a frontend designer who shares every new demo with his peers",
			"Quiet Quinn: a skeptical backend engineer who only trusts benchmarks",
			"Budget Betty: an operations lead who signs off on every tool purchase",
			"Early Eddie: a founder who tries every new product the day it launches",
			"Careful Carla: a compliance officer who reads every terms of service",
		}, "\n")
	case anyContains(messages, "What should we ask them next?"):
		return "Can you walk me through the last time that happened?"
	case strings.Contains(last, "top 3 questions"):
		return "1. What would make you switch today?\n2. Who else is involved in the decision?\n3. What would you pay for this?"
	default:
		for _, m := range messages {
			if m.Role == RoleSystem && strings.Contains(m.Text, "Summarize") {
				return "Summary: the interviewee described recurring pain, current workarounds and interest in a better tool."
			}
		}
		return fmt.Sprintf("Speaking from experience: %s", truncateRunes(last, 80))
	}
}

func anyContains(messages []Message, text string) bool {
	for _, m := range messages {
		if strings.Contains(m.Text, text) {
			return true
		}
	}
	return false
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
