package otel_test

import (
	"context"
	"errors"
	"testing"

	coreerrors "github.com/easyops/contextengine-go/pkg/core/errors"
	"github.com/easyops/contextengine-go/pkg/core/llm"
	"github.com/easyops/contextengine-go/pkg/core/message"
	"github.com/easyops/contextengine-go/pkg/otel"
	"go.opentelemetry.io/otel/codes"
)

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i)}
	}
	return out, nil
}

func TestTracedProvider_Generate(t *testing.T) {
	tracer, rec := newRecordingTracer(t)
	metrics := otel.NewInMemoryMetrics()
	p := otel.NewTracedProvider(llm.NewStubProvider("你好"), otel.WithTracer(tracer), otel.WithMetrics(metrics))

	resp, err := p.Generate(context.Background(), llm.NewRequest([]message.Message{message.NewUserMessage("hi")}))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Content != "你好" {
		t.Fatalf("unexpected content %q", resp.Content)
	}
	if got := metrics.GetCounterValue(otel.MetricLLMRequests); got != 1 {
		t.Fatalf("expected 1 request, got %d", got)
	}
	spans := rec.Ended()
	if len(spans) != 1 || spans[0].Name() != "llm.generate" || spans[0].Status().Code != codes.Ok {
		t.Fatalf("unexpected spans %v", spans)
	}
	if p.Name() != "stub" {
		t.Fatalf("expected stub name, got %s", p.Name())
	}
}

func TestTracedProvider_Stream(t *testing.T) {
	tracer, rec := newRecordingTracer(t)
	p := otel.NewTracedProvider(llm.NewStubProvider("abc"), otel.WithTracer(tracer))

	chunks, errs := p.GenerateStream(context.Background(), llm.NewRequest([]message.Message{message.NewUserMessage("hi")}))
	var text string
	for c := range chunks {
		text += c.Content
	}
	if err := <-errs; err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if text != "abc" {
		t.Fatalf("expected abc, got %q", text)
	}
	if len(rec.Ended()) != 1 {
		t.Fatalf("expected span ended after stream, got %d", len(rec.Ended()))
	}
}

func TestTracedEmbedder(t *testing.T) {
	tracer, rec := newRecordingTracer(t)
	metrics := otel.NewInMemoryMetrics()

	e := otel.NewTracedEmbedder("fake", &fakeEmbedder{}, otel.WithTracer(tracer), otel.WithMetrics(metrics))
	vecs, err := e.Embed(context.Background(), []string{"a", "b"})
	if err != nil || len(vecs) != 2 {
		t.Fatalf("Embed = %v, %v", vecs, err)
	}
	if got := metrics.GetCounterValue(otel.MetricEmbeddingTexts); got != 2 {
		t.Fatalf("expected 2 texts, got %d", got)
	}

	failing := otel.NewTracedEmbedder("fake", &fakeEmbedder{err: coreerrors.ErrEmbeddingFailed}, otel.WithTracer(tracer), otel.WithMetrics(metrics))
	if _, err := failing.Embed(context.Background(), []string{"a"}); !errors.Is(err, coreerrors.ErrEmbeddingFailed) {
		t.Fatalf("expected ErrEmbeddingFailed, got %v", err)
	}
	if got := metrics.GetCounterValue(otel.MetricEmbeddingErrors); got != 1 {
		t.Fatalf("expected 1 error, got %d", got)
	}
	spans := rec.Ended()
	if spans[len(spans)-1].Status().Code != codes.Error {
		t.Fatal("expected failing span to carry error status")
	}
}
