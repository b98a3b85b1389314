package config

import "time"

// StorageConfig 存储配置
type StorageConfig struct {
	// Driver 存储驱动 (memory, sqlite)
	// 默认: memory
	Driver string `koanf:"driver"`
	// DSN 数据源，sqlite 时为数据库文件路径
	DSN string `koanf:"dsn"`
}

// WithDefaults 返回带默认值的配置
func (c StorageConfig) WithDefaults() StorageConfig {
	if c.Driver == "" {
		c.Driver = "memory"
	}
	return c
}

// RetrievalConfig 检索选择器配置
type RetrievalConfig struct {
	// MaxCandidates 参与选择的候选条目上限
	// 默认: 30
	MaxCandidates int `koanf:"max_candidates"`
	// SnippetChars 模型选择时每条候选的摘要长度
	// 默认: 50
	SnippetChars int `koanf:"snippet_chars"`
	// ContentCap 单条内容渲染上限（字符）
	// 默认: 50000
	ContentCap int `koanf:"content_cap"`
	// FallbackLimit 无命中时兜底返回的文件数
	// 默认: 3
	FallbackLimit int `koanf:"fallback_limit"`
	// MinStemLength 文件名主干参与匹配的最短长度（不含）
	// 默认: 5
	MinStemLength int `koanf:"min_stem_length"`
	// DisableModelPass 关闭模型选择阶段
	DisableModelPass bool `koanf:"disable_model_pass"`
}

// WithDefaults 返回带默认值的配置
func (c RetrievalConfig) WithDefaults() RetrievalConfig {
	if c.MaxCandidates == 0 {
		c.MaxCandidates = 30
	}
	if c.SnippetChars == 0 {
		c.SnippetChars = 50
	}
	if c.ContentCap == 0 {
		c.ContentCap = 50000
	}
	if c.FallbackLimit == 0 {
		c.FallbackLimit = 3
	}
	if c.MinStemLength == 0 {
		c.MinStemLength = 5
	}
	return c
}

// Validate 验证配置
func (c *RetrievalConfig) Validate() error {
	if c.MaxCandidates < 0 || c.SnippetChars < 0 || c.ContentCap < 0 ||
		c.FallbackLimit < 0 || c.MinStemLength < 0 {
		return ErrInvalidValue
	}
	return nil
}

// HistoryConfig 历史压缩配置
type HistoryConfig struct {
	// KeepLast 原样保留的最近轮次
	// 默认: 30
	KeepLast int `koanf:"keep_last"`
	// TurnCap 单轮内容上限（字符）
	// 默认: 12000
	TurnCap int `koanf:"turn_cap"`
	// SummaryCap 摘要上限（字符）
	// 默认: 4000
	SummaryCap int `koanf:"summary_cap"`
	// SummaryMaxTokens 摘要调用的最大输出 token
	// 默认: 1024
	SummaryMaxTokens int `koanf:"summary_max_tokens"`
}

// WithDefaults 返回带默认值的配置
func (c HistoryConfig) WithDefaults() HistoryConfig {
	if c.KeepLast == 0 {
		c.KeepLast = 30
	}
	if c.TurnCap == 0 {
		c.TurnCap = 12000
	}
	if c.SummaryCap == 0 {
		c.SummaryCap = 4000
	}
	if c.SummaryMaxTokens == 0 {
		c.SummaryMaxTokens = 1024
	}
	return c
}

// Validate 验证配置
func (c *HistoryConfig) Validate() error {
	if c.KeepLast < 0 || c.TurnCap < 0 || c.SummaryCap < 0 {
		return ErrInvalidValue
	}
	return nil
}

// KnowledgeConfig 知识库索引配置
type KnowledgeConfig struct {
	// ChunkSize 分块大小（字符）
	// 默认: 800
	ChunkSize int `koanf:"chunk_size"`
	// ChunkOverlap 分块重叠（字符）
	// 默认: 100
	ChunkOverlap int `koanf:"chunk_overlap"`
	// TopK 默认返回条数
	// 默认: 3
	TopK int `koanf:"top_k"`
}

// WithDefaults 返回带默认值的配置
func (c KnowledgeConfig) WithDefaults() KnowledgeConfig {
	if c.ChunkSize == 0 {
		c.ChunkSize = 800
	}
	if c.ChunkOverlap == 0 {
		c.ChunkOverlap = 100
	}
	if c.TopK == 0 {
		c.TopK = 3
	}
	return c
}

// Validate 验证配置
func (c *KnowledgeConfig) Validate() error {
	if c.ChunkSize <= 0 || c.ChunkOverlap < 0 || c.TopK < 0 {
		return ErrInvalidValue
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return ErrInvalidChunking
	}
	return nil
}

// AssemblyConfig 上下文组装配置
type AssemblyConfig struct {
	// RecentLogLimit 最近对话流水条数
	// 默认: 10
	RecentLogLimit int `koanf:"recent_log_limit"`
	// MaxPromptTokens 提示词 token 预警阈值，0 表示不检查
	// 默认: 100000
	MaxPromptTokens int `koanf:"max_prompt_tokens"`
	// StreamBuffer 流式输出通道容量
	// 默认: 16
	StreamBuffer int `koanf:"stream_buffer"`
	// ScriptTopK 话术库命中条数
	// 默认: 2
	ScriptTopK int `koanf:"script_top_k"`
	// Persona 自定义系统人设，为空时使用内置人设
	Persona string `koanf:"persona"`
}

// WithDefaults 返回带默认值的配置
func (c AssemblyConfig) WithDefaults() AssemblyConfig {
	if c.RecentLogLimit == 0 {
		c.RecentLogLimit = 10
	}
	if c.MaxPromptTokens == 0 {
		c.MaxPromptTokens = 100000
	}
	if c.StreamBuffer == 0 {
		c.StreamBuffer = 16
	}
	if c.ScriptTopK == 0 {
		c.ScriptTopK = 2
	}
	return c
}

// Validate 验证配置
func (c *AssemblyConfig) Validate() error {
	if c.RecentLogLimit < 0 || c.MaxPromptTokens < 0 || c.StreamBuffer < 0 || c.ScriptTopK < 0 {
		return ErrInvalidValue
	}
	return nil
}

// BreakerConfig 熔断器配置
type BreakerConfig struct {
	// Disabled 关闭熔断
	Disabled bool `koanf:"disabled"`
	// MaxFailures 连续失败多少次后熔断
	// 默认: 5
	MaxFailures uint32 `koanf:"max_failures"`
	// OpenTimeout 熔断打开后多久进入半开
	// 默认: 30s
	OpenTimeout time.Duration `koanf:"open_timeout"`
	// Interval 闭合状态下计数清零周期
	// 默认: 60s
	Interval time.Duration `koanf:"interval"`
	// HalfOpenRequests 半开状态允许的探测请求数
	// 默认: 1
	HalfOpenRequests uint32 `koanf:"half_open_requests"`
}

// WithDefaults 返回带默认值的配置
func (c BreakerConfig) WithDefaults() BreakerConfig {
	if c.MaxFailures == 0 {
		c.MaxFailures = 5
	}
	if c.OpenTimeout == 0 {
		c.OpenTimeout = 30 * time.Second
	}
	if c.Interval == 0 {
		c.Interval = 60 * time.Second
	}
	if c.HalfOpenRequests == 0 {
		c.HalfOpenRequests = 1
	}
	return c
}

// Validate 验证配置
func (c *BreakerConfig) Validate() error {
	if c.OpenTimeout < 0 || c.Interval < 0 {
		return ErrInvalidValue
	}
	return nil
}
