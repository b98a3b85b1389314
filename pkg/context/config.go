package context

import "github.com/easyops/contextengine-go/pkg/core/config"

// Config 保存上下文组装的配置。
type Config struct {
	// RecentLogLimit 最近对话流水条数。
	RecentLogLimit int

	// KnowledgeTopK 知识库命中条数。
	KnowledgeTopK int

	// ScriptTopK 话术库命中条数。
	ScriptTopK int

	// KeepLast 对话历史原样保留的轮数，0 表示使用压缩器默认值。
	KeepLast int

	// MaxPromptTokens 提示词 token 预警阈值，0 表示不检查。
	MaxPromptTokens int

	// StreamBuffer 流式输出通道容量。
	StreamBuffer int

	// Persona 系统人设，为空时使用内置人设。
	Persona string

	// TokenCounter 用于估算提示词 token。
	TokenCounter TokenCounter
}

// ConfigOption 配置 Config。
type ConfigOption func(*Config)

// WithRecentLogLimit 设置最近对话流水条数。
func WithRecentLogLimit(n int) ConfigOption {
	return func(c *Config) {
		c.RecentLogLimit = n
	}
}

// WithKnowledgeTopK 设置知识库命中条数。
func WithKnowledgeTopK(k int) ConfigOption {
	return func(c *Config) {
		c.KnowledgeTopK = k
	}
}

// WithScriptTopK 设置话术库命中条数。
func WithScriptTopK(k int) ConfigOption {
	return func(c *Config) {
		c.ScriptTopK = k
	}
}

// WithKeepLast 设置对话历史保留轮数。
func WithKeepLast(n int) ConfigOption {
	return func(c *Config) {
		c.KeepLast = n
	}
}

// WithMaxPromptTokens 设置提示词 token 预警阈值。
func WithMaxPromptTokens(n int) ConfigOption {
	return func(c *Config) {
		c.MaxPromptTokens = n
	}
}

// WithPersona 设置系统人设。
func WithPersona(persona string) ConfigOption {
	return func(c *Config) {
		c.Persona = persona
	}
}

// WithTokenCounter 设置 Token 计数器。
func WithTokenCounter(counter TokenCounter) ConfigOption {
	return func(c *Config) {
		c.TokenCounter = counter
	}
}

// DefaultConfig 返回具有合理默认值的 Config。
func DefaultConfig() *Config {
	return &Config{
		RecentLogLimit:  10,
		KnowledgeTopK:   3,
		ScriptTopK:      2,
		MaxPromptTokens: 100000,
		StreamBuffer:    16,
	}
}

// NewConfig 使用给定的选项创建新的 Config。
func NewConfig(opts ...ConfigOption) *Config {
	c := DefaultConfig()
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ConfigFrom 从配置文件的 assembly、knowledge、history 段创建 Config。
func ConfigFrom(a config.AssemblyConfig, k config.KnowledgeConfig, h config.HistoryConfig) *Config {
	a = a.WithDefaults()
	k = k.WithDefaults()
	return &Config{
		RecentLogLimit:  a.RecentLogLimit,
		KnowledgeTopK:   k.TopK,
		ScriptTopK:      a.ScriptTopK,
		KeepLast:        h.KeepLast,
		MaxPromptTokens: a.MaxPromptTokens,
		StreamBuffer:    a.StreamBuffer,
		Persona:         a.Persona,
	}
}

// GetPersona 返回配置的人设或内置人设。
func (c *Config) GetPersona() string {
	if c.Persona != "" {
		return c.Persona
	}
	return DefaultPersona
}

// GetTokenCounter 返回配置的 Token 计数器或默认计数器。
func (c *Config) GetTokenCounter() TokenCounter {
	if c.TokenCounter != nil {
		return c.TokenCounter
	}
	return DefaultTokenCounter()
}
