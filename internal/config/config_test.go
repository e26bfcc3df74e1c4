package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "AI_PROVIDER", "STORE_DRIVER", "INTERVIEW_ROUNDS", "PERSIST_API_KEY", "AI_MAX_RETRIES"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("expected :8080, got %q", cfg.Server.Addr)
	}
	if cfg.AI.Provider != ProviderOpenAI {
		t.Fatalf("expected openai provider, got %q", cfg.AI.Provider)
	}
	if cfg.Store.Driver != "pebble" {
		t.Fatalf("expected pebble driver, got %q", cfg.Store.Driver)
	}
	if cfg.Discovery.InterviewRounds != 3 || cfg.Discovery.SummaryTranscriptLimit != 2000 {
		t.Fatalf("unexpected discovery defaults: %+v", cfg.Discovery)
	}
	if cfg.Discovery.PersistAPIKey {
		t.Fatal("api key must not be persisted by default")
	}
	if cfg.AI.MaxRetries != 3 || cfg.AI.Timeout != 120*time.Second {
		t.Fatalf("unexpected ai defaults: retries=%d timeout=%s", cfg.AI.MaxRetries, cfg.AI.Timeout)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "127.0.0.1:9000")
	t.Setenv("AI_PROVIDER", "Anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("INTERVIEW_ROUNDS", "2")
	t.Setenv("PERSIST_API_KEY", "true")
	t.Setenv("AI_RATE_LIMIT_RPS", "2.5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:9000" {
		t.Fatalf("unexpected addr %q", cfg.Server.Addr)
	}
	if cfg.AI.Provider != ProviderAnthropic || cfg.AI.ServerKey() != "sk-ant" {
		t.Fatalf("unexpected provider config: %q key=%q", cfg.AI.Provider, cfg.AI.ServerKey())
	}
	if cfg.Discovery.InterviewRounds != 2 {
		t.Fatalf("unexpected rounds %d", cfg.Discovery.InterviewRounds)
	}
	if !cfg.Discovery.PersistAPIKey {
		t.Fatal("expected PERSIST_API_KEY=true to be honoured")
	}
	if cfg.AI.RateLimitRPS != 2.5 {
		t.Fatalf("unexpected rps %v", cfg.AI.RateLimitRPS)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"PORT":            "80 80",
		"AI_PROVIDER":     "cohere",
		"PERSIST_API_KEY": "maybe",
		"AI_MAX_TOKENS":   "many",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q", key, value)
			}
		})
	}
}

func TestLoadRejectsRoundsOutsideCap(t *testing.T) {
	for _, value := range []string{"0", "-2", "4", "7"} {
		t.Run(value, func(t *testing.T) {
			t.Setenv("INTERVIEW_ROUNDS", value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for INTERVIEW_ROUNDS=%q", value)
			}
		})
	}
}

func TestPostgresRequiresDSN(t *testing.T) {
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error when DATABASE_URL is missing")
	}
}

func TestArkEnabled(t *testing.T) {
	cfg := AIConfig{ArkModel: "ep-1"}
	if cfg.ArkEnabled("") {
		t.Fatal("ark without credentials should be disabled")
	}
	if !cfg.ArkEnabled("key") {
		t.Fatal("ark with api key should be enabled")
	}
	cfg.ArkAccessKey, cfg.ArkSecretKey = "ak", "sk"
	if !cfg.ArkEnabled("") {
		t.Fatal("ark with AK/SK should be enabled")
	}
}
