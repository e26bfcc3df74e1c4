package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	AI        AIConfig
	Store     StoreConfig
	Discovery DiscoveryConfig
	Telemetry TelemetryConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	store, err := loadStoreConfig()
	if err != nil {
		return nil, err
	}

	discovery, err := loadDiscoveryConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:    server,
		AI:        ai,
		Store:     store,
		Discovery: discovery,
		Telemetry: TelemetryConfig{
			OTLPEndpoint: strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
			ServiceName:  getEnvOrDefault("OTEL_SERVICE_NAME", "epiphany-backend"),
		},
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// 支持的大模型提供方。
const (
	ProviderOpenAI    = "openai"
	ProviderArk       = "ark"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderFake      = "fake"
)

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	Provider string

	OpenAIKey     string
	OpenAIBaseURL string
	OpenAIModel   string

	ArkAPIKey    string
	ArkAccessKey string
	ArkSecretKey string
	ArkModel     string
	ArkBaseURL   string
	ArkRegion    string

	AnthropicKey   string
	AnthropicModel string

	GeminiKey   string
	GeminiModel string

	Temperature *float64
	MaxTokens   *int

	Timeout        time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
	RateLimitRPS   float64
	RateLimitBurst int
}

// ServerKey 返回服务端配置的默认密钥，会话未提供密钥时使用。
func (c AIConfig) ServerKey() string {
	switch c.Provider {
	case ProviderArk:
		return c.ArkAPIKey
	case ProviderAnthropic:
		return c.AnthropicKey
	case ProviderGemini:
		return c.GeminiKey
	default:
		return c.OpenAIKey
	}
}

// ArkEnabled 表示是否提供了 Ark 必需的模型与凭证。
func (c AIConfig) ArkEnabled(apiKey string) bool {
	return c.ArkModel != "" && (apiKey != "" || (c.ArkAccessKey != "" && c.ArkSecretKey != ""))
}

// NewChatModel 使用配置创建一个 Ark 模型实例，apiKey 为空时使用 AK/SK。
func (c AIConfig) NewChatModel(ctx context.Context, apiKey string) (model.ChatModel, error) {
	if !c.ArkEnabled(apiKey) {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + ARK_MODEL 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.ArkBaseURL,
		Region:      c.ArkRegion,
		APIKey:      apiKey,
		AccessKey:   c.ArkAccessKey,
		SecretKey:   c.ArkSecretKey,
		Model:       c.ArkModel,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	provider := strings.ToLower(getEnvOrDefault("AI_PROVIDER", ProviderOpenAI))
	switch provider {
	case ProviderOpenAI, ProviderArk, ProviderAnthropic, ProviderGemini, ProviderFake:
	default:
		return AIConfig{}, fmt.Errorf("invalid AI_PROVIDER value: %q", provider)
	}

	temperature, err := parseOptionalFloatEnv("AI_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("AI_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	timeoutSeconds, err := parseIntEnvOrDefault("AI_TIMEOUT_SECONDS", 120)
	if err != nil {
		return AIConfig{}, err
	}

	maxRetries, err := parseIntEnvOrDefault("AI_MAX_RETRIES", 3)
	if err != nil {
		return AIConfig{}, err
	}
	if maxRetries < 1 {
		maxRetries = 1
	}

	retryBaseMS, err := parseIntEnvOrDefault("AI_RETRY_BASE_MS", 500)
	if err != nil {
		return AIConfig{}, err
	}

	rps := 0.0
	if override, err := parseOptionalFloatEnv("AI_RATE_LIMIT_RPS"); err != nil {
		return AIConfig{}, err
	} else if override != nil {
		rps = *override
	}

	burst, err := parseIntEnvOrDefault("AI_RATE_LIMIT_BURST", 5)
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		Provider:       provider,
		OpenAIKey:      strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIBaseURL:  getEnvOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:    getEnvOrDefault("OPENAI_MODEL", "gpt-3.5-turbo"),
		ArkAPIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		ArkAccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		ArkSecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		ArkModel:       strings.TrimSpace(os.Getenv("ARK_MODEL")),
		ArkBaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		ArkRegion:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		AnthropicKey:   strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")),
		AnthropicModel: getEnvOrDefault("ANTHROPIC_MODEL", "claude-haiku-4-5-20251001"),
		GeminiKey:      strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		GeminiModel:    getEnvOrDefault("GEMINI_MODEL", "gemini-2.0-flash"),
		Temperature:    temperature,
		MaxTokens:      maxTokens,
		Timeout:        time.Duration(timeoutSeconds) * time.Second,
		MaxRetries:     maxRetries,
		RetryBaseDelay: time.Duration(retryBaseMS) * time.Millisecond,
		RateLimitRPS:   rps,
		RateLimitBurst: burst,
	}, nil
}

// StoreConfig 描述文档存储配置。
type StoreConfig struct {
	Driver    string
	Path      string
	DSN       string
	CacheSize int
	CacheTTL  time.Duration
}

func loadStoreConfig() (StoreConfig, error) {
	driver := strings.ToLower(getEnvOrDefault("STORE_DRIVER", "pebble"))
	dsn := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if driver == "postgres" && dsn == "" {
		return StoreConfig{}, fmt.Errorf("STORE_DRIVER=postgres 需要设置 DATABASE_URL")
	}

	cacheSize, err := parseIntEnvOrDefault("STORE_CACHE_SIZE", 256)
	if err != nil {
		return StoreConfig{}, err
	}

	ttlSeconds, err := parseIntEnvOrDefault("STORE_CACHE_TTL_SECONDS", 300)
	if err != nil {
		return StoreConfig{}, err
	}

	return StoreConfig{
		Driver:    driver,
		Path:      getEnvOrDefault("STORE_PATH", "data/epiphany"),
		DSN:       dsn,
		CacheSize: cacheSize,
		CacheTTL:  time.Duration(ttlSeconds) * time.Second,
	}, nil
}

// DiscoveryConfig 描述访谈流程相关配置。
type DiscoveryConfig struct {
	InterviewRounds        int
	SummaryTranscriptLimit int
	PersistAPIKey          bool
}

func loadDiscoveryConfig() (DiscoveryConfig, error) {
	rounds, err := parseIntEnvOrDefault("INTERVIEW_ROUNDS", 3)
	if err != nil {
		return DiscoveryConfig{}, err
	}
	// 每个问题至少一轮，最多三轮
	if rounds < 1 || rounds > 3 {
		return DiscoveryConfig{}, fmt.Errorf("invalid INTERVIEW_ROUNDS value: %d (want 1-3)", rounds)
	}

	limit, err := parseIntEnvOrDefault("SUMMARY_TRANSCRIPT_LIMIT", 2000)
	if err != nil {
		return DiscoveryConfig{}, err
	}

	persistKey, err := parseBoolEnv("PERSIST_API_KEY", false)
	if err != nil {
		return DiscoveryConfig{}, err
	}

	return DiscoveryConfig{
		InterviewRounds:        rounds,
		SummaryTranscriptLimit: limit,
		PersistAPIKey:          persistKey,
	}, nil
}

// TelemetryConfig 描述链路追踪配置，未设置端点时不启用导出。
type TelemetryConfig struct {
	OTLPEndpoint string
	ServiceName  string
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseIntEnvOrDefault(key string, defaultValue int) (int, error) {
	val, err := parseOptionalIntEnv(key)
	if err != nil {
		return 0, err
	}
	if val == nil {
		return defaultValue, nil
	}
	return *val, nil
}
