package otel

import (
	"time"

	"github.com/easyops/contextengine-go/pkg/core/config"
)

// Config 可观测性配置
type Config struct {
	// Enabled 是否启用可观测性
	Enabled bool `koanf:"enabled"`

	// ServiceName 服务名称
	ServiceName string `koanf:"service_name"`
	// ServiceVersion 服务版本
	ServiceVersion string `koanf:"service_version"`
	// Environment 环境（dev, staging, prod）
	Environment string `koanf:"environment"`

	// Tracing 追踪配置
	Tracing TracingConfig `koanf:"tracing"`
	// Metrics 指标配置
	Metrics MetricsConfig `koanf:"metrics"`
	// Logging 日志配置
	Logging LoggingConfig `koanf:"logging"`
}

// TracingConfig 追踪配置
type TracingConfig struct {
	// Enabled 是否启用追踪
	Enabled bool `koanf:"enabled"`
	// Exporter 导出器配置
	Exporter ExporterConfig `koanf:"exporter"`
	// SampleRate 采样率 (0.0-1.0)
	SampleRate float64 `koanf:"sample_rate"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	// Enabled 是否启用指标
	Enabled bool `koanf:"enabled"`
	// Exporter 导出器配置
	Exporter ExporterConfig `koanf:"exporter"`
	// Interval 导出间隔
	Interval time.Duration `koanf:"interval"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	// Level 日志级别 (debug, info, warn, error)
	Level string `koanf:"level"`
	// Format 日志格式 (text, json)
	Format string `koanf:"format"`
	// IncludeTraceID 是否包含 Trace ID
	IncludeTraceID bool `koanf:"include_trace_id"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Enabled:        false,
		ServiceName:    "contextengine",
		ServiceVersion: "0.1.0",
		Environment:    "development",
		Tracing: TracingConfig{
			Enabled:    false,
			Exporter:   DefaultExporterConfig(),
			SampleRate: 1.0,
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Exporter: DefaultExporterConfig(),
			Interval: 60 * time.Second,
		},
		Logging: LoggingConfig{
			Level:          "info",
			Format:         "text",
			IncludeTraceID: true,
		},
	}
}

// FromAppConfig 从应用配置转换
//
// 应用配置中的导出器同时用于追踪和指标。
func FromAppConfig(c config.ObservabilityConfig) Config {
	cfg := DefaultConfig()
	cfg.Enabled = c.Enabled
	if c.ServiceName != "" {
		cfg.ServiceName = c.ServiceName
	}
	if c.Environment != "" {
		cfg.Environment = c.Environment
	}

	exp := cfg.Tracing.Exporter
	if c.Exporter != "" {
		exp.Type = ExporterType(c.Exporter)
	}
	if c.Endpoint != "" {
		exp.Endpoint = c.Endpoint
	}
	exp.Insecure = c.Insecure || c.Endpoint == ""

	enabled := c.Enabled && exp.Type != ExporterNone
	cfg.Tracing.Enabled = enabled
	cfg.Tracing.Exporter = exp
	if c.SampleRate > 0 {
		cfg.Tracing.SampleRate = c.SampleRate
	}
	cfg.Metrics.Enabled = enabled
	cfg.Metrics.Exporter = exp
	if c.MetricsInterval > 0 {
		cfg.Metrics.Interval = c.MetricsInterval
	}
	if c.LogLevel != "" {
		cfg.Logging.Level = c.LogLevel
	}
	if c.LogFormat != "" {
		cfg.Logging.Format = c.LogFormat
	}
	return cfg
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return ErrInvalidSampleRate
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return ErrInvalidLogFormat
	}
	return nil
}

// WithDefaults 返回带默认值的配置
func (c Config) WithDefaults() Config {
	defaults := DefaultConfig()

	if c.ServiceName == "" {
		c.ServiceName = defaults.ServiceName
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = defaults.ServiceVersion
	}
	if c.Environment == "" {
		c.Environment = defaults.Environment
	}
	if c.Tracing.Exporter.Type == "" {
		c.Tracing.Exporter = defaults.Tracing.Exporter
	}
	if c.Tracing.SampleRate == 0 {
		c.Tracing.SampleRate = defaults.Tracing.SampleRate
	}
	if c.Metrics.Exporter.Type == "" {
		c.Metrics.Exporter = defaults.Metrics.Exporter
	}
	if c.Metrics.Interval == 0 {
		c.Metrics.Interval = defaults.Metrics.Interval
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaults.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaults.Logging.Format
	}

	return c
}
