package ai

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/zhouzirui/epiphany/backend/internal/config"
)

func TestFactoryFakeProvider(t *testing.T) {
	factory := NewFactory(config.AIConfig{Provider: config.ProviderFake, MaxRetries: 1})
	c, err := factory(context.Background(), "", "roster")
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	out, err := c.Complete(context.Background(), RosterPrompt("p", "c"))
	if err != nil || out == "" {
		t.Fatalf("unexpected completion %q, %v", out, err)
	}
}

func TestFactoryOpenAIMissingKey(t *testing.T) {
	factory := NewFactory(config.AIConfig{Provider: config.ProviderOpenAI})
	if _, err := factory(context.Background(), "", "persona"); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestFactoryFallsBackToServerKey(t *testing.T) {
	factory := NewFactory(config.AIConfig{Provider: config.ProviderOpenAI, OpenAIKey: "sk-server", OpenAIModel: "gpt-4o-mini"})
	if _, err := factory(context.Background(), "", "persona"); err != nil {
		t.Fatalf("expected server key fallback, got %v", err)
	}
}

func TestFactoryArkWithoutModel(t *testing.T) {
	factory := NewFactory(config.AIConfig{Provider: config.ProviderArk})
	if _, err := factory(context.Background(), "key", "persona"); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestFactoryUnknownProvider(t *testing.T) {
	factory := NewFactory(config.AIConfig{Provider: "cohere"})
	if _, err := factory(context.Background(), "key", "persona"); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestEveryRetryAttemptWaitsOnLimiter(t *testing.T) {
	var calls int32
	fake := NewFake()
	fake.Respond = func([]Message) (string, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return "", errors.New("overloaded")
		}
		return "ok", nil
	}
	limiter := rate.NewLimiter(rate.Every(time.Hour), 3)
	cfg := config.AIConfig{Provider: config.ProviderFake, MaxRetries: 3, RetryBaseDelay: time.Millisecond, Timeout: time.Second}

	out, err := Wrap(fake, middlewares(cfg, "persona", limiter)...).Complete(context.Background(), []Message{Human("q")})
	if err != nil || out != "ok" {
		t.Fatalf("unexpected completion %q, %v", out, err)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	if tokens := limiter.Tokens(); tokens >= 1 {
		t.Fatalf("expected every attempt to take a token, %.2f left", tokens)
	}
}
