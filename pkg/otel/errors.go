package otel

import "errors"

var (
	// ErrInvalidSampleRate 采样率不在 [0, 1]
	ErrInvalidSampleRate = errors.New("sample rate must be between 0 and 1")
	// ErrInvalidLogFormat 日志格式不是 text 或 json
	ErrInvalidLogFormat = errors.New("log format must be text or json")
	// ErrUnsupportedExporter 未知的导出器类型
	ErrUnsupportedExporter = errors.New("unsupported exporter type")
	// ErrExportFailed 创建导出器失败
	ErrExportFailed = errors.New("failed to export telemetry data")
)
