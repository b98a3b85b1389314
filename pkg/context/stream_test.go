package context_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/goleak"

	agentctx "github.com/easyops/contextengine-go/pkg/context"
	"github.com/easyops/contextengine-go/pkg/core/llm"
	"github.com/easyops/contextengine-go/pkg/core/message"
)

// failingStream 输出部分内容后报错
type failingStream struct {
	*llm.StubProvider
	err error
}

func (p failingStream) GenerateStream(ctx context.Context, _ llm.Request) (<-chan llm.StreamChunk, <-chan error) {
	chunkCh := make(chan llm.StreamChunk, 1)
	errCh := make(chan error, 1)
	go func() {
		defer close(chunkCh)
		defer close(errCh)
		select {
		case chunkCh <- llm.StreamChunk{Content: "部分"}:
		case <-ctx.Done():
		}
		errCh <- p.err
	}()
	return chunkCh, errCh
}

func prompt() []message.Message {
	return []message.Message{message.NewUserMessage("你好")}
}

func TestStream_Collect(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := agentctx.NewStream(context.Background(), llm.NewStubProvider("好的，马上安排"), prompt(), 2)
	got, err := s.Collect()
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if got != "好的，马上安排" {
		t.Errorf("unexpected output %q", got)
	}
}

func TestStream_CloseStopsProducer(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	reply := strings.Repeat("很长的回复", 200)
	s := agentctx.NewStream(context.Background(), llm.NewStubProvider(reply), prompt(), 1)

	first, ok := <-s.Tokens()
	if !ok || first == "" {
		t.Fatalf("expected a first token")
	}
	s.Close()
	s.Close()

	if err := s.Err(); err != nil {
		t.Errorf("cancellation by Close should not be an error, got %v", err)
	}
	if _, ok := <-s.Tokens(); ok {
		t.Errorf("tokens channel should be closed after Close")
	}
}

func TestStream_ContextCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx, cancel := context.WithCancel(context.Background())
	s := agentctx.NewStream(ctx, llm.NewStubProvider(strings.Repeat("字", 500)), prompt(), 1)
	<-s.Tokens()
	cancel()

	for range s.Tokens() {
	}
	if err := s.Err(); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestStream_ProviderError(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	boom := errors.New("upstream reset")
	s := agentctx.NewStream(context.Background(), failingStream{StubProvider: llm.NewStubProvider(""), err: boom}, prompt(), 0)
	got, err := s.Collect()
	if got != "部分" {
		t.Errorf("expected partial output, got %q", got)
	}
	if !errors.Is(err, boom) {
		t.Errorf("expected provider error, got %v", err)
	}
}
