package ai

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/time/rate"

	"github.com/zhouzirui/epiphany/backend/internal/config"
)

// NewFactory returns a Factory for the configured provider. Every completer
// it builds shares one rate limiter and carries the middlewares stack. An
// empty apiKey falls back to the server-configured key.
func NewFactory(cfg config.AIConfig) Factory {
	limiter := NewLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	var fake *Fake
	if cfg.Provider == config.ProviderFake {
		fake = NewFake()
	}

	return func(ctx context.Context, apiKey, purpose string) (Completer, error) {
		key := strings.TrimSpace(apiKey)
		if key == "" {
			key = cfg.ServerKey()
		}

		var (
			base Completer
			err  error
		)
		switch cfg.Provider {
		case config.ProviderFake:
			base = fake
		case config.ProviderArk:
			chatModel, cmErr := cfg.NewChatModel(ctx, key)
			if cmErr != nil {
				return nil, fmt.Errorf("%w: %v", ErrMissingAPIKey, cmErr)
			}
			base, err = NewChatModelCompleter(ctx, chatModel)
		case config.ProviderAnthropic:
			base, err = NewAnthropicCompleter(key, cfg.AnthropicModel, cfg.Temperature, cfg.MaxTokens)
		case config.ProviderGemini:
			base, err = NewGeminiCompleter(ctx, key, cfg.GeminiModel, cfg.Temperature, cfg.MaxTokens)
		case config.ProviderOpenAI, "":
			base, err = NewOpenAICompleter(key, cfg.OpenAIBaseURL, cfg.OpenAIModel, cfg.Temperature, cfg.MaxTokens)
		default:
			return nil, fmt.Errorf("unsupported ai provider %q", cfg.Provider)
		}
		if err != nil {
			return nil, err
		}

		return Wrap(base, middlewares(cfg, purpose, limiter)...), nil
	}
}

// middlewares lists Instrument, Retry, RateLimit and Timeout from the outside
// in. Every retry attempt waits on the limiter and gets its own timeout.
func middlewares(cfg config.AIConfig, purpose string, limiter *rate.Limiter) []Middleware {
	provider := cfg.Provider
	if provider == "" {
		provider = config.ProviderOpenAI
	}
	return []Middleware{
		Instrument(provider, purpose),
		Retry(cfg.MaxRetries, cfg.RetryBaseDelay),
		RateLimit(limiter),
		Timeout(cfg.Timeout),
	}
}
