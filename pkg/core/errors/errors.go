// Package errors 定义引擎的通用错误类型
package errors

import (
	"errors"
	"fmt"
)

// 通用错误
var (
	// ErrNotImplemented 功能未实现
	ErrNotImplemented = errors.New("not implemented")
	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrContextCanceled 上下文被取消
	ErrContextCanceled = errors.New("context canceled")
)

// 模型调用相关错误
var (
	// ErrRateLimited 请求被限速
	ErrRateLimited = errors.New("rate limited")
	// ErrTimeout 请求超时
	ErrTimeout = errors.New("request timeout")
	// ErrInvalidAPIKey API 密钥无效
	ErrInvalidAPIKey = errors.New("invalid API key")
	// ErrModelNotFound 模型未找到
	ErrModelNotFound = errors.New("model not found")
	// ErrProviderUnavailable 提供商不可用
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrInvalidResponse 模型响应无效
	ErrInvalidResponse = errors.New("invalid LLM response")
	// ErrCircuitOpen 熔断器打开，调用被拒绝
	ErrCircuitOpen = errors.New("circuit breaker open")
)

// 数据相关错误
var (
	// ErrEntityNotFound 实体不存在
	ErrEntityNotFound = errors.New("entity not found")
	// ErrDocumentNotFound 文档未找到
	ErrDocumentNotFound = errors.New("document not found")
	// ErrInvalidRole 对话角色无效
	ErrInvalidRole = errors.New("invalid conversation role")
	// ErrInvalidInput 输入数据无效
	ErrInvalidInput = errors.New("invalid input")
)

// 知识索引相关错误
var (
	// ErrEmbeddingFailed 嵌入失败
	ErrEmbeddingFailed = errors.New("embedding failed")
	// ErrNoCredentials 未配置嵌入服务凭证
	ErrNoCredentials = errors.New("embedding credentials not configured")
	// ErrVectorStoreFailed 向量存储失败
	ErrVectorStoreFailed = errors.New("vector store operation failed")
)

// WrapError 包装错误并添加上下文信息
func WrapError(err error, context string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", context, err)
}

// IsRetryable 判断错误是否可重试
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrProviderUnavailable)
}

// IsFatal 判断错误是否为致命错误（不可恢复）
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrInvalidAPIKey) ||
		errors.Is(err, ErrModelNotFound) ||
		errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrNoCredentials)
}

// IsNotFound 判断错误是否表示实体或文档不存在
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEntityNotFound) || errors.Is(err, ErrDocumentNotFound)
}
