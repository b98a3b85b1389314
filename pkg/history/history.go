// Package history 把多轮对话历史压缩到有界长度
//
// 不超过 keepLast 轮时原样返回；超过时较早的轮次由模型汇总成一段摘要，
// 摘要作为首条 system 消息，后面跟着最近 keepLast 轮原文。
package history

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/easyops/contextengine-go/pkg/core/errors"
	"github.com/easyops/contextengine-go/pkg/core/llm"
	"github.com/easyops/contextengine-go/pkg/core/message"
	"github.com/easyops/contextengine-go/pkg/domain"
	"github.com/easyops/contextengine-go/pkg/otel"
	"go.opentelemetry.io/otel/attribute"
)

// 默认参数
const (
	DefaultKeepLast         = 30
	DefaultTurnCap          = 12000
	DefaultSummaryCap       = 4000
	DefaultSummaryMaxTokens = 1024
)

// summaryInstruction 摘要指令
const summaryInstruction = `你是对话记录整理助手。请把下面较早的对话压缩成一段摘要，要求：
1. 使用中文（若对话主要使用其他语言，则使用该语言）；
2. 保留具体的人名、客户名、日期、金额、数量、产品名称和已达成的结论；
3. 只依据对话内容，不要编造或推测；
4. 纯文本输出，不使用表格或标题，长度控制在 300 到 800 字。`

// summaryPrefix 摘要消息的开头
const summaryPrefix = "以下是较早对话的摘要：\n"

// Placeholder 摘要失败时的占位文本
func Placeholder(omitted int) string {
	return fmt.Sprintf("（较早的 %d 条对话已省略，摘要暂不可用）", omitted)
}

// Record 原始对话记录
//
// 来自外部输入，角色可能不合法，内容可能为空。
type Record struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Compressor 对话历史压缩器
type Compressor struct {
	provider         llm.Provider
	keepLast         int
	turnCap          int
	summaryCap       int
	summaryMaxTokens int

	logger  *slog.Logger
	metrics otel.Metrics
	tracer  otel.Tracer
}

// Option 压缩器配置选项
type Option func(*Compressor)

// WithKeepLast 设置默认保留轮数
func WithKeepLast(n int) Option {
	return func(c *Compressor) {
		if n > 0 {
			c.keepLast = n
		}
	}
}

// WithTurnCap 设置单轮字符上限
func WithTurnCap(n int) Option {
	return func(c *Compressor) {
		if n > 0 {
			c.turnCap = n
		}
	}
}

// WithSummaryCap 设置摘要字符上限
func WithSummaryCap(n int) Option {
	return func(c *Compressor) {
		if n > 0 {
			c.summaryCap = n
		}
	}
}

// WithSummaryMaxTokens 设置摘要请求的最大输出 token
func WithSummaryMaxTokens(n int) Option {
	return func(c *Compressor) {
		if n > 0 {
			c.summaryMaxTokens = n
		}
	}
}

// WithLogger 设置日志器
func WithLogger(l *slog.Logger) Option {
	return func(c *Compressor) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics 设置指标收集器
func WithMetrics(m otel.Metrics) Option {
	return func(c *Compressor) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithTracer 设置追踪器
func WithTracer(t otel.Tracer) Option {
	return func(c *Compressor) {
		if t != nil {
			c.tracer = t
		}
	}
}

// NewCompressor 创建对话历史压缩器
//
// provider 为 nil 时超长历史直接使用占位摘要。
func NewCompressor(provider llm.Provider, opts ...Option) *Compressor {
	c := &Compressor{
		provider:         provider,
		keepLast:         DefaultKeepLast,
		turnCap:          DefaultTurnCap,
		summaryCap:       DefaultSummaryCap,
		summaryMaxTokens: DefaultSummaryMaxTokens,
		logger:           slog.Default(),
		metrics:          otel.NewNoopMetrics(),
		tracer:           otel.NewNoopTracer(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// KeepLast 返回默认保留轮数
func (c *Compressor) KeepLast() int {
	return c.keepLast
}

// CompressRecords 压缩原始对话记录
//
// 角色不是 user/assistant（或 ai）的记录以及空内容记录会被丢弃。
func (c *Compressor) CompressRecords(ctx context.Context, records []Record, keepLast int) []message.Message {
	return c.Compress(ctx, TurnsFromRecords(records), keepLast)
}

// TurnsFromRecords 过滤并转换原始记录
func TurnsFromRecords(records []Record) []domain.Turn {
	turns := make([]domain.Turn, 0, len(records))
	for _, r := range records {
		role, err := domain.ParseTurnRole(r.Role)
		if err != nil {
			continue
		}
		if strings.TrimSpace(r.Content) == "" {
			continue
		}
		turns = append(turns, domain.Turn{Role: role, Content: r.Content})
	}
	return turns
}

// Compress 压缩对话轮次
//
// keepLast <= 0 时使用默认值。结果不超过 keepLast+1 条消息，从不返回错误。
func (c *Compressor) Compress(ctx context.Context, turns []domain.Turn, keepLast int) []message.Message {
	if keepLast <= 0 {
		keepLast = c.keepLast
	}

	valid := make([]domain.Turn, 0, len(turns))
	for _, t := range turns {
		if t.Role.Valid() && strings.TrimSpace(t.Content) != "" {
			valid = append(valid, t)
		}
	}

	if len(valid) <= keepLast {
		return c.verbatim(valid)
	}

	ctx, span := c.tracer.Start(ctx, "history.compress",
		otel.WithAttributes(attribute.Int(otel.AttrHistoryTurns, len(valid))))
	defer span.End()

	older := valid[:len(valid)-keepLast]
	recent := valid[len(valid)-keepLast:]

	c.metrics.Counter(otel.MetricHistoryCompressions).Add(ctx, 1)
	c.metrics.Counter(otel.MetricHistoryDropped).Add(ctx, int64(len(older)))

	summary, err := c.summarize(ctx, older)
	if err != nil {
		c.logger.Warn("history summary failed", "omitted", len(older), "error", err)
		c.metrics.Counter(otel.MetricHistorySummaryFailures).Add(ctx, 1)
		span.RecordError(err)
		summary = Placeholder(len(older))
	} else {
		summary = summaryPrefix + message.Truncate(summary, c.summaryCap)
	}
	span.SetAttributes(attribute.Bool(otel.AttrHistoryCompressed, true))

	out := make([]message.Message, 0, len(recent)+1)
	out = append(out, message.NewSystemMessage(summary).WithMetadata("history_summary", len(older)))
	return append(out, c.verbatim(recent)...)
}

// verbatim 原样转换为消息，单轮超长时截断
func (c *Compressor) verbatim(turns []domain.Turn) []message.Message {
	out := make([]message.Message, 0, len(turns))
	for _, t := range turns {
		out = append(out, ToMessage(t, c.turnCap))
	}
	return out
}

// ToMessage 把对话轮次转换为消息，limit > 0 时按字符截断
func ToMessage(t domain.Turn, limit int) message.Message {
	content := message.Truncate(t.Content, limit)
	if t.Role == domain.TurnAssistant {
		return message.NewAssistantMessage(content)
	}
	return message.NewUserMessage(content)
}

// summarize 调用模型汇总较早的对话
func (c *Compressor) summarize(ctx context.Context, older []domain.Turn) (string, error) {
	if c.provider == nil {
		return "", errors.WrapError(errors.ErrProviderUnavailable, "no model configured")
	}

	var b strings.Builder
	for _, t := range older {
		label := "用户"
		if t.Role == domain.TurnAssistant {
			label = "助手"
		}
		fmt.Fprintf(&b, "%s: %s\n", label, message.Truncate(t.Content, c.turnCap))
	}

	req := llm.NewRequest([]message.Message{
		message.NewSystemMessage(summaryInstruction),
		message.NewUserMessage(b.String()),
	}, llm.WithRequestMaxTokens(c.summaryMaxTokens))

	resp, err := c.provider.Generate(ctx, req)
	if err != nil {
		return "", err
	}
	summary := strings.TrimSpace(resp.Content)
	if summary == "" {
		return "", errors.WrapError(errors.ErrInvalidResponse, "empty summary")
	}
	return summary, nil
}
