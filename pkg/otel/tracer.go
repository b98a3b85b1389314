// Package otel 是引擎的可观测性层
//
// 追踪与指标基于 OpenTelemetry，日志基于 slog 并自动带上 trace_id。
// 各组件只依赖本包的 Tracer、Metrics 接口，测试中使用内存或空实现。
package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer 追踪器
type Tracer interface {
	// Start 开始一个子 Span，返回的 ctx 携带该 Span
	Start(ctx context.Context, name string, opts ...SpanOption) (context.Context, Span)
	// SpanFromContext 取得 ctx 中的当前 Span，没有时返回空 Span
	SpanFromContext(ctx context.Context) Span
}

// Span 一次被追踪的操作
type Span interface {
	End()
	SetAttributes(attrs ...attribute.KeyValue)
	AddEvent(name string, attrs ...attribute.KeyValue)
	RecordError(err error)
	SetStatus(code StatusCode, description string)
	SpanContext() SpanContext
}

// SpanContext 日志关联用的标识，空 Span 为零值
type SpanContext struct {
	TraceID string
	SpanID  string
}

// StatusCode Span 状态
type StatusCode int

const (
	StatusUnset StatusCode = iota
	StatusOK
	StatusError
)

var statusCodes = [...]codes.Code{
	StatusUnset: codes.Unset,
	StatusOK:    codes.Ok,
	StatusError: codes.Error,
}

// SpanKind Span 类型，模型与嵌入调用为 Client，其余为 Internal
type SpanKind = trace.SpanKind

const (
	SpanKindInternal = trace.SpanKindInternal
	SpanKindClient   = trace.SpanKindClient
)

// SpanOption Span 选项
type SpanOption func(*SpanConfig)

// SpanConfig Span 选项的取值
type SpanConfig struct {
	Kind       SpanKind
	Attributes []attribute.KeyValue
}

// WithSpanKind 设置 Span 类型
func WithSpanKind(kind SpanKind) SpanOption {
	return func(cfg *SpanConfig) { cfg.Kind = kind }
}

// WithAttributes 设置开始时的属性
func WithAttributes(attrs ...attribute.KeyValue) SpanOption {
	return func(cfg *SpanConfig) { cfg.Attributes = append(cfg.Attributes, attrs...) }
}

// OTelTracer 基于 OpenTelemetry SDK 的追踪器
type OTelTracer struct {
	tracer trace.Tracer
}

// NewTracer 包装 OpenTelemetry Tracer
func NewTracer(tracer trace.Tracer) *OTelTracer {
	return &OTelTracer{tracer: tracer}
}

func (t *OTelTracer) Start(ctx context.Context, name string, opts ...SpanOption) (context.Context, Span) {
	cfg := SpanConfig{Kind: SpanKindInternal}
	for _, opt := range opts {
		opt(&cfg)
	}
	ctx, span := t.tracer.Start(ctx, name, trace.WithSpanKind(cfg.Kind), trace.WithAttributes(cfg.Attributes...))
	return ctx, otelSpan{span}
}

func (t *OTelTracer) SpanFromContext(ctx context.Context) Span {
	return otelSpan{trace.SpanFromContext(ctx)}
}

type otelSpan struct {
	trace.Span
}

func (s otelSpan) AddEvent(name string, attrs ...attribute.KeyValue) {
	s.Span.AddEvent(name, trace.WithAttributes(attrs...))
}

func (s otelSpan) End() { s.Span.End() }

func (s otelSpan) RecordError(err error) { s.Span.RecordError(err) }

func (s otelSpan) SetStatus(code StatusCode, description string) {
	c := codes.Unset
	if code >= 0 && int(code) < len(statusCodes) {
		c = statusCodes[code]
	}
	s.Span.SetStatus(c, description)
}

func (s otelSpan) SpanContext() SpanContext {
	sc := s.Span.SpanContext()
	if !sc.IsValid() {
		return SpanContext{}
	}
	return SpanContext{TraceID: sc.TraceID().String(), SpanID: sc.SpanID().String()}
}

// NoopTracer 不记录任何内容的追踪器
type NoopTracer struct{}

// NewNoopTracer 创建空追踪器
func NewNoopTracer() *NoopTracer {
	return &NoopTracer{}
}

func (*NoopTracer) Start(ctx context.Context, _ string, _ ...SpanOption) (context.Context, Span) {
	return ctx, noopSpan{}
}

func (*NoopTracer) SpanFromContext(context.Context) Span { return noopSpan{} }

type noopSpan struct{}

func (noopSpan) End()                                   {}
func (noopSpan) SetAttributes(...attribute.KeyValue)    {}
func (noopSpan) AddEvent(string, ...attribute.KeyValue) {}
func (noopSpan) RecordError(error)                      {}
func (noopSpan) SetStatus(StatusCode, string)           {}
func (noopSpan) SpanContext() SpanContext               { return SpanContext{} }

var (
	_ Tracer = (*OTelTracer)(nil)
	_ Tracer = (*NoopTracer)(nil)
)
