package otel

import (
	"context"
	"errors"
	"time"

	coreerrors "github.com/easyops/contextengine-go/pkg/core/errors"
	"github.com/easyops/contextengine-go/pkg/core/llm"
	"github.com/easyops/contextengine-go/pkg/core/message"
	"go.opentelemetry.io/otel/attribute"
)

// TracedProvider 为 LLM 提供商添加追踪与指标
type TracedProvider struct {
	provider llm.Provider
	tracer   Tracer
	metrics  Metrics
}

// TracedOption 配置追踪包装器
type TracedOption func(*tracedOptions)

type tracedOptions struct {
	tracer  Tracer
	metrics Metrics
}

// WithTracer 设置追踪器
func WithTracer(tracer Tracer) TracedOption {
	return func(o *tracedOptions) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithMetrics 设置指标收集器
func WithMetrics(metrics Metrics) TracedOption {
	return func(o *tracedOptions) {
		if metrics != nil {
			o.metrics = metrics
		}
	}
}

func buildTracedOptions(opts []TracedOption) tracedOptions {
	o := tracedOptions{tracer: NewNoopTracer(), metrics: NewNoopMetrics()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewTracedProvider 创建带追踪的 LLM 提供商
func NewTracedProvider(provider llm.Provider, opts ...TracedOption) *TracedProvider {
	o := buildTracedOptions(opts)
	return &TracedProvider{provider: provider, tracer: o.tracer, metrics: o.metrics}
}

// Generate 生成响应并记录 span
func (p *TracedProvider) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	ctx, span := p.tracer.Start(ctx, "llm.generate",
		WithSpanKind(SpanKindClient),
		WithAttributes(
			LLMProvider(p.provider.Name()),
			LLMModel(p.provider.Model()),
			attribute.Int(AttrMessageCount, len(req.Messages)),
		),
	)
	defer span.End()

	start := time.Now()
	resp, err := p.provider.Generate(ctx, req)
	p.record(ctx, &resp.TokenUsage, err, time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(StatusError, err.Error())
		return resp, err
	}

	u := resp.TokenUsage
	span.SetAttributes(LLMTokens(u.PromptTokens, u.CompletionTokens, u.TotalTokens)...)
	span.AddEvent("llm.response", attribute.String("finish_reason", resp.FinishReason))
	span.SetStatus(StatusOK, "")
	return resp, nil
}

// GenerateStream 流式生成并在流结束时关闭 span
func (p *TracedProvider) GenerateStream(ctx context.Context, req llm.Request) (<-chan llm.StreamChunk, <-chan error) {
	ctx, span := p.tracer.Start(ctx, "llm.generate_stream",
		WithSpanKind(SpanKindClient),
		WithAttributes(
			LLMProvider(p.provider.Name()),
			LLMModel(p.provider.Model()),
			attribute.Int(AttrMessageCount, len(req.Messages)),
		),
	)

	chunkCh, errCh := p.provider.GenerateStream(ctx, req)

	outCh := make(chan llm.StreamChunk)
	outErr := make(chan error, 1)

	go func() {
		defer close(outErr)
		defer close(outCh)
		defer span.End()

		start := time.Now()
		var usage *message.TokenUsage
		forwarding := true
		for chunk := range chunkCh {
			if chunk.TokenUsage != nil {
				usage = chunk.TokenUsage
			}
			if !forwarding {
				continue
			}
			select {
			case outCh <- chunk:
			case <-ctx.Done():
				forwarding = false
			}
		}

		err := <-errCh
		if err == nil && !forwarding {
			err = ctx.Err()
		}
		p.record(ctx, usage, err, time.Since(start))

		if err != nil {
			span.RecordError(err)
			span.SetStatus(StatusError, err.Error())
			outErr <- err
			return
		}
		if usage != nil {
			span.SetAttributes(LLMTokens(usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens)...)
		}
		span.SetStatus(StatusOK, "")
	}()

	return outCh, outErr
}

// record 记录请求指标
func (p *TracedProvider) record(ctx context.Context, usage *message.TokenUsage, err error, d time.Duration) {
	provider := NewAttr("provider", p.provider.Name())
	model := NewAttr("model", p.provider.Model())

	p.metrics.Histogram(MetricLLMRequestDuration).Record(ctx, float64(d.Milliseconds()), provider, model)
	if err != nil {
		p.metrics.Counter(MetricLLMRequests).Add(ctx, 1, provider, model, NewAttr("status", "error"))
		p.metrics.Counter(MetricLLMErrors).Add(ctx, 1, provider, model, NewAttr("error_type", errorType(err)))
		return
	}
	p.metrics.Counter(MetricLLMRequests).Add(ctx, 1, provider, model, NewAttr("status", "success"))
	if usage != nil {
		p.metrics.Counter(MetricLLMTokensPrompt).Add(ctx, int64(usage.PromptTokens), provider, model)
		p.metrics.Counter(MetricLLMTokensCompletion).Add(ctx, int64(usage.CompletionTokens), provider, model)
		p.metrics.Counter(MetricLLMTokensTotal).Add(ctx, int64(usage.TotalTokens), provider, model)
	}
}

// Name 返回提供商名称
func (p *TracedProvider) Name() string { return p.provider.Name() }

// Model 返回模型名称
func (p *TracedProvider) Model() string { return p.provider.Model() }

// Close 关闭底层提供商
func (p *TracedProvider) Close() error { return p.provider.Close() }

// Unwrap 返回被包装的提供商
func (p *TracedProvider) Unwrap() llm.Provider { return p.provider }

// TracedEmbedder 为向量化服务添加追踪与指标
type TracedEmbedder struct {
	embedder llm.Embedder
	name     string
	tracer   Tracer
	metrics  Metrics
}

// NewTracedEmbedder 创建带追踪的向量化服务
func NewTracedEmbedder(name string, embedder llm.Embedder, opts ...TracedOption) *TracedEmbedder {
	o := buildTracedOptions(opts)
	return &TracedEmbedder{embedder: embedder, name: name, tracer: o.tracer, metrics: o.metrics}
}

// Embed 向量化并记录 span
func (e *TracedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, span := e.tracer.Start(ctx, "embedding.embed",
		WithSpanKind(SpanKindClient),
		WithAttributes(
			LLMProvider(e.name),
			attribute.Int(AttrEmbeddingTexts, len(texts)),
		),
	)
	defer span.End()

	provider := NewAttr("provider", e.name)
	e.metrics.Counter(MetricEmbeddingRequests).Add(ctx, 1, provider)
	e.metrics.Counter(MetricEmbeddingTexts).Add(ctx, int64(len(texts)), provider)

	vecs, err := e.embedder.Embed(ctx, texts)
	if err != nil {
		e.metrics.Counter(MetricEmbeddingErrors).Add(ctx, 1, provider, NewAttr("error_type", errorType(err)))
		span.RecordError(err)
		span.SetStatus(StatusError, err.Error())
		return nil, err
	}
	span.SetStatus(StatusOK, "")
	return vecs, nil
}

// errorType 归类错误用于指标标签
func errorType(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, coreerrors.ErrContextCanceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, coreerrors.ErrTimeout):
		return "timeout"
	case errors.Is(err, coreerrors.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, coreerrors.ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, coreerrors.ErrInvalidAPIKey):
		return "auth"
	case errors.Is(err, coreerrors.ErrProviderUnavailable):
		return "unavailable"
	case errors.Is(err, coreerrors.ErrInvalidResponse):
		return "invalid_response"
	case errors.Is(err, coreerrors.ErrEmbeddingFailed):
		return "embedding"
	default:
		return "other"
	}
}

var (
	_ llm.Provider = (*TracedProvider)(nil)
	_ llm.Embedder = (*TracedEmbedder)(nil)
)
