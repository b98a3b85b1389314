package llm_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"

	"github.com/easyops/contextengine-go/pkg/core/config"
	coreerrors "github.com/easyops/contextengine-go/pkg/core/errors"
	"github.com/easyops/contextengine-go/pkg/core/llm"
	"github.com/easyops/contextengine-go/pkg/core/message"
)

// fakeProvider 可控的测试模型
type fakeProvider struct {
	name   string
	reply  string
	err    error
	calls  atomic.Int32
	chunks []string
}

func (f *fakeProvider) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	f.calls.Add(1)
	if f.err != nil {
		return llm.Response{}, f.err
	}
	return llm.Response{Content: f.reply}, nil
}

func (f *fakeProvider) GenerateStream(ctx context.Context, req llm.Request) (<-chan llm.StreamChunk, <-chan error) {
	f.calls.Add(1)
	chunkCh := make(chan llm.StreamChunk, len(f.chunks)+1)
	errCh := make(chan error, 1)
	for _, c := range f.chunks {
		chunkCh <- llm.StreamChunk{Content: c}
	}
	if f.err != nil {
		errCh <- f.err
	} else {
		chunkCh <- llm.StreamChunk{Done: true}
	}
	close(chunkCh)
	close(errCh)
	return chunkCh, errCh
}

func (f *fakeProvider) Name() string  { return f.name }
func (f *fakeProvider) Model() string { return "fake" }
func (f *fakeProvider) Close() error  { return nil }

func userRequest() llm.Request {
	return llm.NewRequest([]message.Message{message.NewUserMessage("hi")})
}

func collect(chunks <-chan llm.StreamChunk, errs <-chan error) (string, error) {
	var text string
	for c := range chunks {
		text += c.Content
	}
	return text, <-errs
}

func TestBreakerProvider_OpensAfterFailures(t *testing.T) {
	inner := &fakeProvider{name: "p", err: coreerrors.ErrProviderUnavailable}
	bp := llm.NewBreakerProvider(inner, llm.BreakerSettings{MaxFailures: 2, OpenTimeout: time.Minute})

	for i := 0; i < 2; i++ {
		if _, err := bp.Generate(context.Background(), userRequest()); !errors.Is(err, coreerrors.ErrProviderUnavailable) {
			t.Fatalf("call %d: expected provider error, got %v", i, err)
		}
	}
	if bp.State() != gobreaker.StateOpen {
		t.Fatalf("state = %v, want open", bp.State())
	}

	_, err := bp.Generate(context.Background(), userRequest())
	if !errors.Is(err, coreerrors.ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if got := inner.calls.Load(); got != 2 {
		t.Errorf("inner calls = %d, want 2", got)
	}

	_, streamErr := collect(bp.GenerateStream(context.Background(), userRequest()))
	if !errors.Is(streamErr, coreerrors.ErrCircuitOpen) {
		t.Errorf("stream: expected ErrCircuitOpen, got %v", streamErr)
	}
}

func TestBreakerEmbedder_PassThrough(t *testing.T) {
	be := llm.NewBreakerEmbedder("fake", embedFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
		return [][]float32{{1}}, nil
	}), llm.DefaultBreakerSettings())

	v, err := be.Embed(context.Background(), []string{"a"})
	if err != nil || len(v) != 1 {
		t.Fatalf("Embed() = %v, %v", v, err)
	}
}

type embedFunc func(ctx context.Context, texts []string) ([][]float32, error)

func (f embedFunc) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return f(ctx, texts)
}

func TestFallbackProvider_Generate(t *testing.T) {
	primary := &fakeProvider{name: "primary", err: coreerrors.ErrProviderUnavailable}
	backup := &fakeProvider{name: "backup", reply: "ok"}

	fp := llm.NewFallbackProvider(primary, []llm.Provider{backup})
	resp, err := fp.Generate(context.Background(), userRequest())
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("Content = %q, want ok", resp.Content)
	}
	if fp.Name() != "fallback(primary)" {
		t.Errorf("Name() = %q", fp.Name())
	}
}

func TestFallbackProvider_StreamFallsBackBeforeFirstChunk(t *testing.T) {
	primary := &fakeProvider{name: "primary", err: coreerrors.ErrProviderUnavailable}
	backup := &fakeProvider{name: "backup", chunks: []string{"a", "b"}}

	fp := llm.NewFallbackProvider(primary, []llm.Provider{backup})
	text, err := collect(fp.GenerateStream(context.Background(), userRequest()))
	if err != nil {
		t.Fatalf("stream error = %v", err)
	}
	if text != "ab" {
		t.Errorf("text = %q, want ab", text)
	}
}

func TestFallbackProvider_StreamKeepsErrorAfterOutput(t *testing.T) {
	primary := &fakeProvider{name: "primary", chunks: []string{"partial"}, err: coreerrors.ErrTimeout}
	backup := &fakeProvider{name: "backup", chunks: []string{"x"}}

	fp := llm.NewFallbackProvider(primary, []llm.Provider{backup})
	text, err := collect(fp.GenerateStream(context.Background(), userRequest()))
	if !errors.Is(err, coreerrors.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if text != "partial" {
		t.Errorf("text = %q, want partial", text)
	}
	if backup.calls.Load() != 0 {
		t.Error("backup should not be called after partial output")
	}
}

func TestStubProvider(t *testing.T) {
	p := llm.NewStubProvider("")
	resp, err := p.Generate(context.Background(), userRequest())
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if resp.Content != llm.DefaultStubReply {
		t.Errorf("Content = %q", resp.Content)
	}

	text, err := collect(p.GenerateStream(context.Background(), userRequest()))
	if err != nil || text != llm.DefaultStubReply {
		t.Errorf("stream = %q, %v", text, err)
	}
}

func TestFromConfig(t *testing.T) {
	p, err := llm.FromConfig(config.LLMConfig{})
	if err != nil {
		t.Fatalf("FromConfig() error = %v", err)
	}
	if p.Name() != "stub" {
		t.Errorf("empty config: Name() = %q, want stub", p.Name())
	}

	p, err = llm.FromConfig(config.LLMConfig{Provider: "volcengine", Model: "doubao-pro", APIKey: "Bearer abc"})
	if err != nil {
		t.Fatalf("FromConfig() error = %v", err)
	}
	if p.Name() != "doubao" || p.Model() != "doubao-pro" {
		t.Errorf("doubao: Name() = %q Model() = %q", p.Name(), p.Model())
	}

	p, err = llm.FromConfig(config.LLMConfig{Provider: "anthropic", Model: "Claude 3.5 Sonnet", APIKey: "k"})
	if err != nil {
		t.Fatalf("FromConfig() error = %v", err)
	}
	if p.Model() != "claude-3-5-sonnet-20240620" {
		t.Errorf("anthropic: Model() = %q", p.Model())
	}
}

func TestFromConfig_SelfHosted(t *testing.T) {
	var auth, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		path = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","choices":[{"index":0,"message":{"role":"assistant","content":"pong"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	for provider, wantKey := range map[config.Provider]string{config.ProviderOllama: "ollama", config.ProviderVLLM: "EMPTY"} {
		p, err := llm.FromConfig(config.LLMConfig{Provider: provider, Model: "qwen2.5:7b", BaseURL: srv.URL, MaxRetries: 1})
		if err != nil {
			t.Fatalf("%s: FromConfig() error = %v", provider, err)
		}
		if p.Name() != string(provider) {
			t.Fatalf("%s: expected a real client without api key, got %q", provider, p.Name())
		}

		status := llm.CheckHealth(context.Background(), p, time.Second)
		if !status.Healthy || status.Model != "qwen2.5:7b" {
			t.Errorf("%s: unexpected status %+v", provider, status)
		}
		if auth != "Bearer "+wantKey || path != "/chat/completions" {
			t.Errorf("%s: auth = %q path = %q", provider, auth, path)
		}
	}

	if p, _ := llm.FromConfig(config.LLMConfig{Provider: config.ProviderDeepSeek, Model: "deepseek-chat"}); p.Name() != "stub" {
		t.Errorf("hosted providers still need a key, got %q", p.Name())
	}
}

func TestCheckHealth_Failure(t *testing.T) {
	status := llm.CheckHealth(context.Background(), &fakeProvider{name: "down", err: errors.New("connection refused")}, 0)
	if status.Healthy || status.Error != "connection refused" || status.Provider != "down" {
		t.Errorf("unexpected status %+v", status)
	}
}

func TestEmbedderFromConfig_NoCredentials(t *testing.T) {
	_, err := llm.EmbedderFromConfig(context.Background(), config.EmbeddingConfig{Provider: config.EmbeddingMultimodal})
	if !errors.Is(err, coreerrors.ErrNoCredentials) {
		t.Fatalf("expected ErrNoCredentials, got %v", err)
	}
}

func TestNormalizeModelName(t *testing.T) {
	cases := map[string]string{
		"GPT-4o":             "gpt-4o",
		"  Claude 3  Opus ":  "claude-3-opus-20240229",
		"deepseek-chat":      "deepseek-chat",
		" custom-model-x ":   "custom-model-x",
	}
	for in, want := range cases {
		if got := llm.NormalizeModelName(in); got != want {
			t.Errorf("NormalizeModelName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSanitizeAPIKey(t *testing.T) {
	cases := map[string]string{
		"Bearer sk-1":  "sk-1",
		"`sk-2`":       "sk-2",
		"  sk-3 \n":    "sk-3",
		"bearer  sk-4": "sk-4",
	}
	for in, want := range cases {
		if got := llm.SanitizeAPIKey(in); got != want {
			t.Errorf("SanitizeAPIKey(%q) = %q, want %q", in, got, want)
		}
	}
}
