package context

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/easyops/contextengine-go/pkg/core/llm"
	"github.com/easyops/contextengine-go/pkg/core/message"
)

// DefaultStreamBuffer 流式输出通道的默认容量
const DefaultStreamBuffer = 16

// Stream 模型的流式输出
//
// 生产者 goroutine 把 token 写入有界通道；消费者读完 Tokens 或调用 Close 之后，
// Err 返回终止错误。Close 取消生产者并等待它退出，可以重复调用。
type Stream struct {
	tokens chan string
	done   chan struct{}
	cancel context.CancelFunc

	closeOnce sync.Once
	closed    atomic.Bool

	err   error
	usage *message.TokenUsage
}

// NewStream 启动流式生成
func NewStream(ctx context.Context, provider llm.Provider, msgs []message.Message, buffer int, opts ...llm.RequestOption) *Stream {
	if buffer <= 0 {
		buffer = DefaultStreamBuffer
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &Stream{
		tokens: make(chan string, buffer),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go s.produce(ctx, provider, llm.NewRequest(msgs, opts...))
	return s
}

func (s *Stream) produce(ctx context.Context, provider llm.Provider, req llm.Request) {
	defer close(s.done)
	defer close(s.tokens)

	chunkCh, errCh := provider.GenerateStream(ctx, req)

	forwarding := true
	for chunk := range chunkCh {
		if chunk.TokenUsage != nil {
			s.usage = chunk.TokenUsage
		}
		if !forwarding || chunk.Content == "" {
			continue
		}
		select {
		case s.tokens <- chunk.Content:
		case <-ctx.Done():
			// 继续读空 chunkCh，让提供方正常退出
			forwarding = false
		}
	}

	if err, ok := <-errCh; ok && err != nil {
		s.err = err
	}
	if s.err == nil && !forwarding {
		s.err = ctx.Err()
	}
}

// Tokens 返回 token 通道，生产者结束后通道被关闭
func (s *Stream) Tokens() <-chan string {
	return s.tokens
}

// Close 取消生产者并等待其退出
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.cancel()
		for range s.tokens {
		}
		<-s.done
	})
}

// Err 等待生产者结束并返回终止错误
//
// 由 Close 引起的取消不视为错误。
func (s *Stream) Err() error {
	<-s.done
	if s.closed.Load() && errors.Is(s.err, context.Canceled) {
		return nil
	}
	return s.err
}

// Usage 返回提供方报告的 token 用量，需在生产者结束后调用
func (s *Stream) Usage() *message.TokenUsage {
	<-s.done
	return s.usage
}

// Collect 读完全部 token 并返回拼接结果与终止错误
func (s *Stream) Collect() (string, error) {
	var out []byte
	for t := range s.tokens {
		out = append(out, t...)
	}
	return string(out), s.Err()
}
