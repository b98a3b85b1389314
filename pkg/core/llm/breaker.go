package llm

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/easyops/contextengine-go/pkg/core/errors"
)

// BreakerSettings 熔断器设置
type BreakerSettings struct {
	// MaxFailures 连续失败多少次后熔断
	MaxFailures uint32
	// OpenTimeout 熔断打开后多久进入半开
	OpenTimeout time.Duration
	// Interval 闭合状态下计数清零周期
	Interval time.Duration
	// HalfOpenRequests 半开状态允许的探测请求数
	HalfOpenRequests uint32
}

// DefaultBreakerSettings 返回默认熔断设置
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MaxFailures:      5,
		OpenTimeout:      30 * time.Second,
		Interval:         60 * time.Second,
		HalfOpenRequests: 1,
	}
}

func newCircuitBreaker(name string, s BreakerSettings) *gobreaker.CircuitBreaker {
	if s.MaxFailures == 0 {
		s.MaxFailures = 5
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: s.HalfOpenRequests,
		Interval:    s.Interval,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		// 调用方取消不计入失败
		IsSuccessful: func(err error) bool {
			return err == nil || stderrors.Is(err, context.Canceled) || stderrors.Is(err, errors.ErrContextCanceled)
		},
	})
}

// mapBreakerError 将 gobreaker 的拒绝错误映射为 ErrCircuitOpen
func mapBreakerError(name string, err error) error {
	if stderrors.Is(err, gobreaker.ErrOpenState) || stderrors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s: %w", name, errors.ErrCircuitOpen)
	}
	return err
}

// BreakerProvider 带熔断的对话模型
type BreakerProvider struct {
	Provider
	cb *gobreaker.CircuitBreaker
}

// NewBreakerProvider 用熔断器包装对话模型
func NewBreakerProvider(p Provider, s BreakerSettings) *BreakerProvider {
	return &BreakerProvider{
		Provider: p,
		cb:       newCircuitBreaker("llm."+p.Name(), s),
	}
}

// Generate 生成响应（非流式）
func (b *BreakerProvider) Generate(ctx context.Context, req Request) (Response, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.Provider.Generate(ctx, req)
	})
	if err != nil {
		return Response{}, mapBreakerError(b.cb.Name(), err)
	}
	return out.(Response), nil
}

// GenerateStream 生成响应（流式）
//
// 熔断打开时立即返回错误；流的最终结果计入熔断统计。
func (b *BreakerProvider) GenerateStream(ctx context.Context, req Request) (<-chan StreamChunk, <-chan error) {
	if b.cb.State() == gobreaker.StateOpen {
		return errStream(fmt.Errorf("%s: %w", b.cb.Name(), errors.ErrCircuitOpen))
	}

	chunkCh, errCh := b.Provider.GenerateStream(ctx, req)
	outErr := make(chan error, 1)
	outChunk := make(chan StreamChunk, cap(chunkCh))

	go func() {
		defer close(outChunk)
		defer close(outErr)

		for chunk := range chunkCh {
			select {
			case outChunk <- chunk:
			case <-ctx.Done():
			}
		}
		streamErr := <-errCh
		_, _ = b.cb.Execute(func() (interface{}, error) { return nil, streamErr })
		if streamErr != nil {
			outErr <- streamErr
		}
	}()

	return outChunk, outErr
}

// State 返回熔断器状态
func (b *BreakerProvider) State() gobreaker.State {
	return b.cb.State()
}

// BreakerEmbedder 带熔断的嵌入服务
type BreakerEmbedder struct {
	embedder Embedder
	cb       *gobreaker.CircuitBreaker
}

// NewBreakerEmbedder 用熔断器包装嵌入服务
func NewBreakerEmbedder(name string, e Embedder, s BreakerSettings) *BreakerEmbedder {
	return &BreakerEmbedder{
		embedder: e,
		cb:       newCircuitBreaker("embedding."+name, s),
	}
}

// Embed 生成文本嵌入向量
func (b *BreakerEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.embedder.Embed(ctx, texts)
	})
	if err != nil {
		return nil, mapBreakerError(b.cb.Name(), err)
	}
	return out.([][]float32), nil
}

// State 返回熔断器状态
func (b *BreakerEmbedder) State() gobreaker.State {
	return b.cb.State()
}

// compile-time interface check
var (
	_ Provider = (*BreakerProvider)(nil)
	_ Embedder = (*BreakerEmbedder)(nil)
)
