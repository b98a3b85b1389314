package llm

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/easyops/contextengine-go/pkg/core/config"
	"github.com/easyops/contextengine-go/pkg/core/errors"
)

// 各提供商的默认端点
const (
	DeepSeekBaseURL = "https://api.deepseek.com/v1"
	QwenBaseURL     = "https://dashscope.aliyuncs.com/compatible-mode/v1"
	DoubaoBaseURL   = "https://ark.cn-beijing.volces.com/api/v3"
	OllamaBaseURL   = "http://localhost:11434/v1"
	VLLMBaseURL     = "http://localhost:8000/v1"
)

// selfHostedKeys 自托管端点不校验密钥，但请求头仍需要一个非空值
var selfHostedKeys = map[config.Provider]string{
	config.ProviderOllama: "ollama",
	config.ProviderVLLM:   "EMPTY",
}

// modelAliases 常见展示名到 API 模型名的映射
var modelAliases = map[string]string{
	"claude haiku 3.5":  "claude-3-haiku-20240307",
	"claude 3 haiku":    "claude-3-haiku-20240307",
	"claude 3.5 sonnet": "claude-3-5-sonnet-20240620",
	"claude 3 opus":     "claude-3-opus-20240229",
	"claude 3 sonnet":   "claude-3-sonnet-20240229",
	"gpt-4 turbo":       "gpt-4-turbo",
	"gpt-3.5 turbo":     "gpt-3.5-turbo",
	"gpt-4o":            "gpt-4o",
	"gpt-4o mini":       "gpt-4o-mini",
}

var spaceRun = regexp.MustCompile(`\s+`)

// NormalizeModelName 将展示名规范化为 API 模型名，未知名称原样返回（去除首尾空白）
func NormalizeModelName(name string) string {
	trimmed := strings.TrimSpace(name)
	key := strings.ToLower(spaceRun.ReplaceAllString(trimmed, " "))
	if mapped, ok := modelAliases[key]; ok {
		return mapped
	}
	return trimmed
}

// SanitizeAPIKey 去除密钥两侧的空白、反引号和 Bearer 前缀
func SanitizeAPIKey(key string) string {
	key = strings.Trim(strings.TrimSpace(key), "`")
	key = strings.TrimSpace(key)
	if len(key) > 7 && strings.EqualFold(key[:7], "bearer ") {
		key = strings.TrimSpace(key[7:])
	}
	return key
}

// sanitizeBaseURL 去除端点两侧的空白和反引号
func sanitizeBaseURL(url string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(url), "`"))
}

// FromConfig 从配置创建对话模型
//
// 未配置凭证时返回 StubProvider，ollama 与 vllm 除外；配置了 Fallback 时返回 FallbackProvider。
func FromConfig(cfg config.LLMConfig) (Provider, error) {
	cfg = cfg.WithDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	primary, err := createProviderFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Fallback != nil {
		fallback, err := FromConfig(*cfg.Fallback)
		if err != nil {
			return nil, fmt.Errorf("failed to create fallback provider: %w", err)
		}
		return NewFallbackProvider(primary, []Provider{fallback}), nil
	}

	return primary, nil
}

// createProviderFromConfig 根据配置创建特定提供商
func createProviderFromConfig(cfg config.LLMConfig) (Provider, error) {
	apiKey := SanitizeAPIKey(cfg.APIKey)
	if apiKey == "" && cfg.Provider.SelfHosted() {
		apiKey = selfHostedKeys[cfg.Provider]
	}
	if cfg.Provider == config.ProviderStub || apiKey == "" {
		if cfg.Provider != config.ProviderStub {
			slog.Warn("no api key configured, using stub provider", "provider", cfg.Provider)
		}
		return NewStubProvider(""), nil
	}

	opts := []Option{
		WithName(string(cfg.Provider)),
		WithAPIKey(apiKey),
		WithModel(NormalizeModelName(cfg.Model)),
		WithTimeout(cfg.Timeout),
		WithMaxRetries(cfg.MaxRetries),
		WithRetryDelay(cfg.RetryDelay),
		WithTemperature(cfg.Temperature),
		WithMaxTokens(cfg.MaxTokens),
	}
	baseURL := sanitizeBaseURL(cfg.BaseURL)

	switch cfg.Provider {
	case config.ProviderAnthropic:
		if baseURL != "" {
			opts = append(opts, WithBaseURL(baseURL))
		}
		return NewAnthropic(opts...)
	case config.ProviderOpenAI, config.ProviderOpenAICompatible:
	case config.ProviderDeepSeek:
		baseURL = orDefault(baseURL, DeepSeekBaseURL)
	case config.ProviderQwen:
		baseURL = orDefault(baseURL, QwenBaseURL)
	case config.ProviderDoubao:
		baseURL = orDefault(baseURL, DoubaoBaseURL)
	case config.ProviderOllama:
		baseURL = orDefault(baseURL, OllamaBaseURL)
	case config.ProviderVLLM:
		baseURL = orDefault(baseURL, VLLMBaseURL)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
	if baseURL != "" {
		opts = append(opts, WithBaseURL(baseURL))
	}
	return NewOpenAI(opts...)
}

// EmbedderFromConfig 从配置创建嵌入服务
//
// 未配置凭证时返回 errors.ErrNoCredentials，调用方据此关闭知识库检索。
func EmbedderFromConfig(ctx context.Context, cfg config.EmbeddingConfig) (Embedder, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid embedding config: %w", err)
	}
	apiKey := SanitizeAPIKey(cfg.APIKey)
	if cfg.Provider == config.EmbeddingNone || apiKey == "" {
		return nil, errors.ErrNoCredentials
	}

	opts := []Option{
		WithAPIKey(apiKey),
		WithEmbeddingModel(cfg.Model),
		WithBatchSize(cfg.BatchSize),
		WithTimeout(cfg.Timeout),
		WithMaxRetries(cfg.MaxRetries),
		WithTaskType(cfg.TaskType),
	}
	if baseURL := sanitizeBaseURL(cfg.BaseURL); baseURL != "" {
		opts = append(opts, WithBaseURL(baseURL))
	}

	switch cfg.Provider {
	case config.EmbeddingOpenAI:
		return NewOpenAI(append(opts, WithName("openai-embedding"))...)
	case config.EmbeddingMultimodal:
		return NewMultimodalEmbedder(opts...)
	case config.EmbeddingGemini:
		return NewGeminiEmbedder(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}

// BreakerSettingsFromConfig 转换熔断配置
func BreakerSettingsFromConfig(cfg config.BreakerConfig) BreakerSettings {
	cfg = cfg.WithDefaults()
	return BreakerSettings{
		MaxFailures:      cfg.MaxFailures,
		OpenTimeout:      cfg.OpenTimeout,
		Interval:         cfg.Interval,
		HalfOpenRequests: cfg.HalfOpenRequests,
	}
}

// MustFromConfig 从配置创建 Provider，失败时 panic
func MustFromConfig(cfg config.LLMConfig) Provider {
	provider, err := FromConfig(cfg)
	if err != nil {
		panic(fmt.Sprintf("failed to create provider from config: %v", err))
	}
	return provider
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
