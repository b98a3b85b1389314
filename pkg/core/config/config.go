// Package config 提供配置加载和管理功能
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix 环境变量前缀
const EnvPrefix = "CTXENGINE_"

// Config 全局配置结构
type Config struct {
	// LLM 对话模型配置
	LLM LLMConfig `koanf:"llm"`
	// Embedding 嵌入服务配置
	Embedding EmbeddingConfig `koanf:"embedding"`
	// Storage 存储配置
	Storage StorageConfig `koanf:"storage"`
	// Retrieval 检索选择器配置
	Retrieval RetrievalConfig `koanf:"retrieval"`
	// History 历史压缩配置
	History HistoryConfig `koanf:"history"`
	// Knowledge 知识库索引配置
	Knowledge KnowledgeConfig `koanf:"knowledge"`
	// Assembly 上下文组装配置
	Assembly AssemblyConfig `koanf:"assembly"`
	// Breaker 熔断器配置
	Breaker BreakerConfig `koanf:"breaker"`
	// AliasesFile 表格别名 YAML 文件路径
	AliasesFile string `koanf:"aliases_file"`
	// Observability 可观测性配置
	Observability ObservabilityConfig `koanf:"observability"`
}

// ObservabilityConfig 可观测性配置
type ObservabilityConfig struct {
	// Enabled 是否启用
	Enabled bool `koanf:"enabled"`
	// ServiceName 服务名称
	ServiceName string `koanf:"service_name"`
	// Environment 部署环境
	Environment string `koanf:"environment"`
	// Exporter 导出器类型 (otlp-grpc, otlp-http, stdout, none)
	Exporter string `koanf:"exporter"`
	// Endpoint 导出端点
	Endpoint string `koanf:"endpoint"`
	// Insecure 是否使用不安全连接
	Insecure bool `koanf:"insecure"`
	// SampleRate 采样率 [0, 1]
	SampleRate float64 `koanf:"sample_rate"`
	// MetricsInterval 指标导出间隔
	MetricsInterval time.Duration `koanf:"metrics_interval"`
	// LogLevel 日志级别 (debug, info, warn, error)
	LogLevel string `koanf:"log_level"`
	// LogFormat 日志格式 (text, json)
	LogFormat string `koanf:"log_format"`
}

// Loader 配置加载器
type Loader struct {
	k *koanf.Koanf
}

// NewLoader 创建配置加载器
func NewLoader() *Loader {
	return &Loader{
		k: koanf.New("."),
	}
}

// LoadFile 从文件加载配置
//
// 根据扩展名选择 YAML、TOML 或 JSON 解析器。文件不存在时不报错。
func (l *Loader) LoadFile(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	parser, err := parserFor(path)
	if err != nil {
		return err
	}
	if err := l.k.Load(fileProvider(path), parser); err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}
	return nil
}

// LoadEnv 从环境变量加载配置
//
// 双下划线表示层级: CTXENGINE_LLM__API_KEY -> llm.api_key
func (l *Loader) LoadEnv(prefix string) error {
	return l.k.Load(env.Provider(prefix, ".", func(s string) string {
		return envKey(prefix, s)
	}), nil)
}

func envKey(prefix, s string) string {
	s = strings.TrimPrefix(s, prefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "__", ".")
}

// Unmarshal 解析配置到结构体
func (l *Loader) Unmarshal(cfg *Config) error {
	return l.k.Unmarshal("", cfg)
}

// Get 获取配置值
func (l *Loader) Get(key string) interface{} {
	return l.k.Get(key)
}

// GetString 获取字符串配置值
func (l *Loader) GetString(key string) string {
	return l.k.String(key)
}

// GetInt 获取整数配置值
func (l *Loader) GetInt(key string) int {
	return l.k.Int(key)
}

// GetBool 获取布尔配置值
func (l *Loader) GetBool(key string) bool {
	return l.k.Bool(key)
}

// GetDuration 获取时间间隔配置值
func (l *Loader) GetDuration(key string) time.Duration {
	return l.k.Duration(key)
}

// Load 加载完整配置（文件 + 环境变量 + 默认值）
func Load(configPath string) (*Config, error) {
	loader := NewLoader()

	if configPath != "" {
		if err := loader.LoadFile(configPath); err != nil {
			return nil, err
		}
	}

	// 环境变量优先级更高
	if err := loader.LoadEnv(EnvPrefix); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := loader.Unmarshal(cfg); err != nil {
		return nil, err
	}

	*cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.AliasesFile != "" && !filepath.IsAbs(cfg.AliasesFile) && configPath != "" {
		cfg.AliasesFile = filepath.Join(filepath.Dir(configPath), cfg.AliasesFile)
	}
	return cfg, nil
}

// Default 返回全部使用默认值的配置
func Default() Config {
	return Config{}.WithDefaults()
}

// WithDefaults 返回带默认值的配置
func (c Config) WithDefaults() Config {
	c.LLM = c.LLM.WithDefaults()
	c.Embedding = c.Embedding.WithDefaults()
	c.Storage = c.Storage.WithDefaults()
	c.Retrieval = c.Retrieval.WithDefaults()
	c.History = c.History.WithDefaults()
	c.Knowledge = c.Knowledge.WithDefaults()
	c.Assembly = c.Assembly.WithDefaults()
	c.Breaker = c.Breaker.WithDefaults()

	if c.Observability.ServiceName == "" {
		c.Observability.ServiceName = "contextengine"
	}
	if c.Observability.Exporter == "" {
		c.Observability.Exporter = "none"
	}
	if c.Observability.SampleRate == 0 {
		c.Observability.SampleRate = 1.0
	}
	if c.Observability.MetricsInterval == 0 {
		c.Observability.MetricsInterval = 60 * time.Second
	}
	if c.Observability.LogLevel == "" {
		c.Observability.LogLevel = "info"
	}
	if c.Observability.LogFormat == "" {
		c.Observability.LogFormat = "text"
	}
	return c
}

// Validate 验证全部配置
func (c *Config) Validate() error {
	checks := []struct {
		section string
		fn      func() error
	}{
		{"llm", c.LLM.Validate},
		{"embedding", c.Embedding.Validate},
		{"retrieval", c.Retrieval.Validate},
		{"history", c.History.Validate},
		{"knowledge", c.Knowledge.Validate},
		{"assembly", c.Assembly.Validate},
		{"breaker", c.Breaker.Validate},
	}
	for _, check := range checks {
		if err := check.fn(); err != nil {
			return fmt.Errorf("%s: %w", check.section, err)
		}
	}
	if c.Observability.SampleRate < 0 || c.Observability.SampleRate > 1 {
		return fmt.Errorf("observability: %w", ErrInvalidValue)
	}
	return nil
}
