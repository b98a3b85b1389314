package llm

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/easyops/contextengine-go/pkg/core/message"
)

// DefaultStubReply 未配置模型时的固定回复
const DefaultStubReply = "[Mock LLM Response] 这是一个模拟的回复，因为没有配置有效的 LLM API Key。"

// StubProvider 占位模型
//
// 未配置任何模型凭证时使用，保证上层流程可以完整跑通。
type StubProvider struct {
	reply string
}

// NewStubProvider 创建占位模型，reply 为空时使用默认回复
func NewStubProvider(reply string) *StubProvider {
	if reply == "" {
		reply = DefaultStubReply
	}
	return &StubProvider{reply: reply}
}

// Name 返回提供商名称
func (s *StubProvider) Name() string {
	return "stub"
}

// Model 返回当前模型名称
func (s *StubProvider) Model() string {
	return "mock"
}

// Close 关闭客户端连接
func (s *StubProvider) Close() error {
	return nil
}

// Generate 返回固定回复
func (s *StubProvider) Generate(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	return Response{
		Content:      s.reply,
		FinishReason: "stop",
		TokenUsage:   message.NewTokenUsage(promptChars(req.Messages), utf8.RuneCountInString(s.reply)),
	}, nil
}

// GenerateStream 按字符逐个输出固定回复
func (s *StubProvider) GenerateStream(ctx context.Context, req Request) (<-chan StreamChunk, <-chan error) {
	chunkCh := make(chan StreamChunk, 10)
	errCh := make(chan error, 1)

	go func() {
		defer close(chunkCh)
		defer close(errCh)

		for _, r := range s.reply {
			select {
			case chunkCh <- StreamChunk{Content: string(r)}:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
		select {
		case chunkCh <- StreamChunk{Done: true, FinishReason: "stop"}:
		case <-ctx.Done():
			errCh <- ctx.Err()
		}
	}()

	return chunkCh, errCh
}

func promptChars(msgs []message.Message) int {
	var sb strings.Builder
	for _, m := range msgs {
		sb.WriteString(m.Content)
	}
	return utf8.RuneCountInString(sb.String())
}

// compile-time interface check
var _ Provider = (*StubProvider)(nil)
