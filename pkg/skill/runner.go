package skill

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
	"github.com/easyops/contextengine-go/pkg/storage"
)

// 默认参数
const (
	// DefaultEntryCap 单条数据进入提示词的字符上限
	DefaultEntryCap = 4000
	// DefaultRecentEntries 回复建议使用的最近条目数
	DefaultRecentEntries = 10
)

// EntityStore 技能需要的实体读写能力
type EntityStore interface {
	storage.EntityReader
	PutEntity(ctx context.Context, entity *domain.Entity) error
}

// Runner 技能执行器
type Runner struct {
	provider llm.Provider
	entities EntityStore
	entryCap int
	reqOpts  []llm.RequestOption

	logger  *slog.Logger
	metrics otel.Metrics
	tracer  otel.Tracer
}

// Option 执行器配置选项
type Option func(*Runner)

// WithEntryCap 设置单条数据的字符上限
func WithEntryCap(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.entryCap = n
		}
	}
}

// WithRequestOptions 设置每次模型调用附带的请求选项
func WithRequestOptions(opts ...llm.RequestOption) Option {
	return func(r *Runner) {
		r.reqOpts = append(r.reqOpts, opts...)
	}
}

// WithLogger 设置日志器
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics 设置指标收集器
func WithMetrics(m otel.Metrics) Option {
	return func(r *Runner) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithTracer 设置追踪器
func WithTracer(t otel.Tracer) Option {
	return func(r *Runner) {
		if t != nil {
			r.tracer = t
		}
	}
}

// NewRunner 创建技能执行器
func NewRunner(provider llm.Provider, entities EntityStore, opts ...Option) *Runner {
	if provider == nil {
		provider = llm.NewStubProvider("")
	}
	r := &Runner{
		provider: provider,
		entities: entities,
		entryCap: DefaultEntryCap,
		logger:   slog.Default(),
		metrics:  otel.NewNoopMetrics(),
		tracer:   otel.NewNoopTracer(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Messages 返回技能的提示词消息，input 为组装好的客户上下文
func (r *Runner) Messages(name Name, input string) []message.Message {
	prompt := riskPrompt
	if name == DealEvaluation {
		prompt = dealPrompt
	}
	return []message.Message{
		message.NewSystemMessage(prompt),
		message.NewUserMessage("客户背景信息：\n" + input),
	}
}

// RequestOptions 返回技能调用使用的请求选项
func (r *Runner) RequestOptions() []llm.RequestOption {
	return r.reqOpts
}

// Run 执行文本类技能
func (r *Runner) Run(ctx context.Context, name Name, input string) (string, error) {
	if !name.IsValid() {
		return "", errors.WrapError(errors.ErrInvalidInput, fmt.Sprintf("unknown skill %q", name))
	}
	return r.generate(ctx, name, r.Messages(name, input))
}

// generate 调用模型并记录指标
func (r *Runner) generate(ctx context.Context, name Name, msgs []message.Message) (string, error) {
	ctx, span := r.tracer.Start(ctx, "skill.run", otel.WithAttributes(otel.SkillName(string(name))))
	defer span.End()

	r.metrics.Counter(otel.MetricSkillRuns).Add(ctx, 1)
	resp, err := r.provider.Generate(ctx, llm.NewRequest(msgs, r.reqOpts...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otel.StatusError, err.Error())
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}

// parseFailed 记录结构化结果解析失败
func (r *Runner) parseFailed(ctx context.Context, name Name, err error) {
	r.metrics.Counter(otel.MetricSkillParseFailures).Add(ctx, 1)
	r.logger.Warn("skill result not parsable", "skill", name, "error", err)
}

// loadEntity 读取实体及其按时间正序的数据
func (r *Runner) loadEntity(ctx context.Context, entityID int64) (*domain.Entity, []domain.DataEntry, error) {
	ent, err := r.entities.GetEntity(ctx, entityID)
	if err != nil {
		return nil, nil, err
	}
	entries, err := r.entities.ListDataEntries(ctx, entityID)
	if err != nil {
		return nil, nil, err
	}
	return ent, domain.Chronological(entries), nil
}

// fullContext 渲染实体全部数据
func (r *Runner) fullContext(entries []domain.DataEntry) string {
	var b strings.Builder
	for _, e := range entries {
		text := strings.TrimSpace(e.Text())
		if text == "" {
			continue
		}
		fmt.Fprintf(&b, "【来源: %s】\n%s\n----------------\n", e.Kind, message.Truncate(text, r.entryCap))
	}
	return b.String()
}
