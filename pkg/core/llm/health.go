package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/easyops/contextengine-go/pkg/core/message"
)

// DefaultHealthTimeout 连通性检查的默认超时
const DefaultHealthTimeout = 10 * time.Second

// HealthStatus 一次连通性检查的结果
type HealthStatus struct {
	Provider string        `json:"provider"`
	Model    string        `json:"model"`
	Healthy  bool          `json:"healthy"`
	Latency  time.Duration `json:"latency"`
	Error    string        `json:"error,omitempty"`
}

// CheckHealth 发送一条极短的请求，确认模型端点可用
//
// 常用于自托管端点（ollama、vllm）启动后的自检。timeout <= 0 时使用 DefaultHealthTimeout。
func CheckHealth(ctx context.Context, p Provider, timeout time.Duration) HealthStatus {
	if timeout <= 0 {
		timeout = DefaultHealthTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	status := HealthStatus{Provider: p.Name(), Model: p.Model()}
	start := time.Now()
	_, err := p.Generate(ctx, NewRequest(
		[]message.Message{message.NewUserMessage("ping")},
		WithRequestMaxTokens(1),
	))
	status.Latency = time.Since(start)

	if err != nil {
		status.Error = err.Error()
		slog.Warn("health check failed", "provider", status.Provider, "model", status.Model, "error", err, "latency", status.Latency)
		return status
	}
	status.Healthy = true
	slog.Debug("health check passed", "provider", status.Provider, "model", status.Model, "latency", status.Latency)
	return status
}
