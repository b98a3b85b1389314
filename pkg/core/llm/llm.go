// Package llm 提供对话模型与嵌入服务的统一接口
package llm

import (
	"context"

	"github.com/easyops/contextengine-go/pkg/core/message"
)

// Provider 定义对话模型提供商接口
//
// 统一不同模型服务的调用方式，支持 OpenAI 兼容端点（OpenAI、DeepSeek、通义千问、豆包）与 Anthropic。
type Provider interface {
	// Generate 生成响应（非流式）
	//
	// 参数:
	//   - ctx: 上下文
	//   - req: 请求参数
	//
	// 返回:
	//   - Response: 响应结果
	//   - error: 调用错误
	Generate(ctx context.Context, req Request) (Response, error)

	// GenerateStream 生成响应（流式）
	//
	// 返回两个 channel：
	//   - <-chan StreamChunk: 流式响应块
	//   - <-chan error: 错误通道（最多一个错误）
	//
	// ctx 取消后生产方停止写入并关闭两个 channel。
	GenerateStream(ctx context.Context, req Request) (<-chan StreamChunk, <-chan error)

	// Name 返回提供商名称
	Name() string

	// Model 返回当前模型名称
	Model() string

	// Close 关闭客户端连接
	Close() error
}

// Embedder 文本嵌入接口
type Embedder interface {
	// Embed 生成文本嵌入向量，返回顺序与输入一致
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Request 模型请求
type Request struct {
	// Messages 消息列表
	Messages []message.Message
	// Temperature 温度参数（可选）
	Temperature *float64
	// MaxTokens 最大输出 token（可选）
	MaxTokens *int
	// TopP 核采样参数（可选）
	TopP *float64
	// Stop 停止序列（可选）
	Stop []string
}

// NewRequest 创建请求
func NewRequest(msgs []message.Message, opts ...RequestOption) Request {
	req := Request{Messages: msgs}
	for _, opt := range opts {
		opt(&req)
	}
	return req
}

// Response 模型响应
type Response struct {
	// ID 响应标识
	ID string `json:"id"`
	// Content 响应文本内容
	Content string `json:"content"`
	// TokenUsage Token 使用统计
	TokenUsage message.TokenUsage `json:"token_usage"`
	// FinishReason 结束原因
	// 值: "stop", "length", "content_filter"
	FinishReason string `json:"finish_reason"`
}

// StreamChunk 流式响应块
type StreamChunk struct {
	// Content 内容片段
	Content string `json:"content"`
	// Done 是否完成
	Done bool `json:"done"`
	// FinishReason 结束原因（当 Done=true 时）
	FinishReason string `json:"finish_reason,omitempty"`
	// TokenUsage Token 使用统计（当 Done=true 时）
	TokenUsage *message.TokenUsage `json:"token_usage,omitempty"`
}

// errStream 返回一个立即以 err 结束的流
func errStream(err error) (<-chan StreamChunk, <-chan error) {
	chunkCh := make(chan StreamChunk)
	errCh := make(chan error, 1)
	close(chunkCh)
	errCh <- err
	close(errCh)
	return chunkCh, errCh
}
