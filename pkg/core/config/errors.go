package config

import "errors"

// 配置验证相关错误
var (
	// ErrModelRequired 模型名称必填
	ErrModelRequired = errors.New("model name is required")
	// ErrUnknownProvider 未知的提供商
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrInvalidTimeout 超时时间无效
	ErrInvalidTimeout = errors.New("invalid timeout value")
	// ErrInvalidMaxRetries 重试次数无效
	ErrInvalidMaxRetries = errors.New("invalid max retries value")
	// ErrInvalidTemperature 温度值无效
	ErrInvalidTemperature = errors.New("temperature must be between 0 and 2")
	// ErrInvalidValue 数值配置无效
	ErrInvalidValue = errors.New("invalid numeric configuration value")
	// ErrInvalidChunking 分块配置无效
	ErrInvalidChunking = errors.New("chunk overlap must be smaller than chunk size")
	// ErrUnsupportedFormat 不支持的配置文件格式
	ErrUnsupportedFormat = errors.New("unsupported config file format")
)
