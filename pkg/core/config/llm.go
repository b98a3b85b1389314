package config

import (
	"strings"
	"time"
)

// Provider 模型提供商类型
type Provider string

const (
	// ProviderOpenAI OpenAI 提供商
	ProviderOpenAI Provider = "openai"
	// ProviderOpenAICompatible 任意 OpenAI 兼容端点
	ProviderOpenAICompatible Provider = "openai_compatible"
	// ProviderDeepSeek DeepSeek 提供商
	ProviderDeepSeek Provider = "deepseek"
	// ProviderQwen 通义千问提供商（兼容模式）
	ProviderQwen Provider = "qwen"
	// ProviderDoubao 豆包（火山方舟）提供商
	ProviderDoubao Provider = "doubao"
	// ProviderAnthropic Anthropic 提供商
	ProviderAnthropic Provider = "anthropic"
	// ProviderOllama 本地 Ollama 的 OpenAI 兼容接口
	ProviderOllama Provider = "ollama"
	// ProviderVLLM 自托管 vLLM 的 OpenAI 兼容接口
	ProviderVLLM Provider = "vllm"
	// ProviderStub 未配置模型时的占位提供商
	ProviderStub Provider = "stub"
)

// IsValid 检查提供商是否有效
func (p Provider) IsValid() bool {
	switch p {
	case ProviderOpenAI, ProviderOpenAICompatible, ProviderDeepSeek, ProviderQwen,
		ProviderDoubao, ProviderAnthropic, ProviderOllama, ProviderVLLM, ProviderStub:
		return true
	default:
		return false
	}
}

// SelfHosted 自托管的提供商不要求 API 密钥
func (p Provider) SelfHosted() bool {
	return p == ProviderOllama || p == ProviderVLLM
}

// NormalizeProvider 规范化提供商名称，volcengine/ark 视为 doubao
func NormalizeProvider(s string) Provider {
	switch p := strings.ToLower(strings.TrimSpace(s)); p {
	case "volcengine", "ark", "volc":
		return ProviderDoubao
	case "claude":
		return ProviderAnthropic
	case "dashscope", "tongyi":
		return ProviderQwen
	case "", "mock", "none":
		return ProviderStub
	default:
		return Provider(p)
	}
}

// LLMConfig 对话模型配置
type LLMConfig struct {
	// Provider 提供商
	Provider Provider `koanf:"provider"`
	// Model 模型名称
	Model string `koanf:"model"`
	// APIKey API 密钥
	APIKey string `koanf:"api_key"`
	// BaseURL 自定义 API 端点
	BaseURL string `koanf:"base_url"`
	// Timeout 请求超时时间
	// 默认: 60s, 最大: 5m
	Timeout time.Duration `koanf:"timeout"`
	// MaxRetries 最大重试次数
	// 默认: 3, 最大: 10
	MaxRetries int `koanf:"max_retries"`
	// RetryDelay 重试间隔基数
	// 默认: 1s
	RetryDelay time.Duration `koanf:"retry_delay"`
	// Temperature 默认温度
	// 默认: 0.7, 范围: [0, 2]
	Temperature float64 `koanf:"temperature"`
	// MaxTokens 默认最大输出 token
	// 默认: 4096
	MaxTokens int `koanf:"max_tokens"`
	// Fallback 备用提供商配置
	Fallback *LLMConfig `koanf:"fallback"`
}

// Validate 验证模型配置
func (c *LLMConfig) Validate() error {
	if !c.Provider.IsValid() {
		return ErrUnknownProvider
	}
	if c.Provider != ProviderStub && c.Model == "" {
		return ErrModelRequired
	}
	if c.Timeout < 0 {
		return ErrInvalidTimeout
	}
	if c.Timeout > 5*time.Minute {
		c.Timeout = 5 * time.Minute
	}
	if c.MaxRetries < 0 {
		return ErrInvalidMaxRetries
	}
	if c.MaxRetries > 10 {
		c.MaxRetries = 10
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return ErrInvalidTemperature
	}
	if c.Fallback != nil {
		return c.Fallback.Validate()
	}
	return nil
}

// WithDefaults 返回带默认值的配置
func (c LLMConfig) WithDefaults() LLMConfig {
	c.Provider = NormalizeProvider(string(c.Provider))
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = time.Second
	}
	if c.Temperature == 0 {
		c.Temperature = 0.7
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 4096
	}
	if c.Fallback != nil {
		fb := c.Fallback.WithDefaults()
		c.Fallback = &fb
	}
	return c
}

// EmbeddingProvider 嵌入服务类型
type EmbeddingProvider string

const (
	// EmbeddingOpenAI OpenAI 兼容的批量嵌入接口
	EmbeddingOpenAI EmbeddingProvider = "openai"
	// EmbeddingMultimodal 多模态嵌入接口（输入为类型化条目）
	EmbeddingMultimodal EmbeddingProvider = "multimodal"
	// EmbeddingGemini Gemini 嵌入接口
	EmbeddingGemini EmbeddingProvider = "gemini"
	// EmbeddingNone 不启用嵌入
	EmbeddingNone EmbeddingProvider = "none"
)

// EmbeddingConfig 嵌入服务配置
type EmbeddingConfig struct {
	// Provider 嵌入服务类型
	Provider EmbeddingProvider `koanf:"provider"`
	// Model 嵌入模型名称
	Model string `koanf:"model"`
	// APIKey API 密钥，为空时知识库检索返回空结果
	APIKey string `koanf:"api_key"`
	// BaseURL 自定义端点
	BaseURL string `koanf:"base_url"`
	// BatchSize 单次请求的文本数
	// 默认: 16
	BatchSize int `koanf:"batch_size"`
	// RatePerSecond 每秒请求数上限，0 表示不限制
	RatePerSecond float64 `koanf:"rate_per_second"`
	// Timeout 请求超时
	// 默认: 30s
	Timeout time.Duration `koanf:"timeout"`
	// MaxRetries 最大重试次数
	// 默认: 2
	MaxRetries int `koanf:"max_retries"`
	// TaskType 任务类型（Gemini 使用）
	TaskType string `koanf:"task_type"`
}

// HasCredentials 是否配置了凭证
func (c EmbeddingConfig) HasCredentials() bool {
	return c.Provider != EmbeddingNone && strings.TrimSpace(c.APIKey) != ""
}

// Validate 验证嵌入配置
func (c *EmbeddingConfig) Validate() error {
	switch c.Provider {
	case EmbeddingOpenAI, EmbeddingMultimodal, EmbeddingGemini, EmbeddingNone:
	default:
		return ErrUnknownProvider
	}
	if c.BatchSize < 0 || c.RatePerSecond < 0 {
		return ErrInvalidValue
	}
	return nil
}

// WithDefaults 返回带默认值的配置
func (c EmbeddingConfig) WithDefaults() EmbeddingConfig {
	if c.Provider == "" {
		c.Provider = EmbeddingOpenAI
	}
	if c.Model == "" {
		switch c.Provider {
		case EmbeddingGemini:
			c.Model = "text-embedding-004"
		case EmbeddingMultimodal:
			c.Model = "doubao-embedding-vision-250615"
		default:
			c.Model = "text-embedding-3-small"
		}
	}
	if c.BatchSize == 0 {
		c.BatchSize = 16
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
	if c.TaskType == "" {
		c.TaskType = "RETRIEVAL_DOCUMENT"
	}
	return c
}
