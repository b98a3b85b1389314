package context

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"

	coreerrors "github.com/easyops/contextengine-go/pkg/core/errors"
	"github.com/easyops/contextengine-go/pkg/core/message"
	"github.com/easyops/contextengine-go/pkg/domain"
	"github.com/easyops/contextengine-go/pkg/history"
	"github.com/easyops/contextengine-go/pkg/otel"
	"github.com/easyops/contextengine-go/pkg/storage"
)

// HistoryCompressor 对话历史压缩接口。
type HistoryCompressor interface {
	// Compress 把对话轮次压缩为消息，从不返回错误。
	Compress(ctx context.Context, turns []domain.Turn, keepLast int) []message.Message
}

// Input 包含一次组装的输入数据。
type Input struct {
	// EntityID 实体标识。
	EntityID int64

	// Query 当前查询。
	Query string

	// History 本次会话之前的对话轮次。
	History []domain.Turn

	// ExtraKnowledge 调用方附加的知识片段。
	ExtraKnowledge []string
}

// Assembler 组装发送给模型的消息列表。
//
// 组装器本身无状态，可以被多个 goroutine 并发使用。
type Assembler struct {
	entities   storage.EntityReader
	config     *Config
	knowledge  KnowledgeSearcher
	scripts    KnowledgeSearcher
	selector   EntrySelector
	history    HistoryCompressor
	structurer Structurer
	gatherers  []Gatherer

	logger  *slog.Logger
	metrics otel.Metrics
	tracer  otel.Tracer
}

// AssemblerOption 配置 Assembler。
type AssemblerOption func(*Assembler)

// WithConfig 设置配置。
func WithConfig(config *Config) AssemblerOption {
	return func(a *Assembler) {
		if config != nil {
			a.config = config
		}
	}
}

// WithKnowledge 设置知识库检索。
func WithKnowledge(k KnowledgeSearcher) AssemblerOption {
	return func(a *Assembler) {
		a.knowledge = k
	}
}

// WithScripts 设置话术库检索。
func WithScripts(s KnowledgeSearcher) AssemblerOption {
	return func(a *Assembler) {
		a.scripts = s
	}
}

// WithSelector 设置检索选择器。
func WithSelector(s EntrySelector) AssemblerOption {
	return func(a *Assembler) {
		a.selector = s
	}
}

// WithHistory 设置对话历史压缩器。
func WithHistory(h HistoryCompressor) AssemblerOption {
	return func(a *Assembler) {
		if h != nil {
			a.history = h
		}
	}
}

// WithStructurer 设置结构化器。
func WithStructurer(s Structurer) AssemblerOption {
	return func(a *Assembler) {
		if s != nil {
			a.structurer = s
		}
	}
}

// WithLogger 设置日志器。
func WithLogger(l *slog.Logger) AssemblerOption {
	return func(a *Assembler) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithMetrics 设置指标收集器。
func WithMetrics(m otel.Metrics) AssemblerOption {
	return func(a *Assembler) {
		if m != nil {
			a.metrics = m
		}
	}
}

// WithTracer 设置追踪器。
func WithTracer(t otel.Tracer) AssemblerOption {
	return func(a *Assembler) {
		if t != nil {
			a.tracer = t
		}
	}
}

// NewAssembler 使用给定选项创建新的 Assembler。
func NewAssembler(entities storage.EntityReader, opts ...AssemblerOption) *Assembler {
	a := &Assembler{
		entities:   entities,
		config:     DefaultConfig(),
		structurer: NewDefaultStructurer(),
		logger:     slog.Default(),
		metrics:    otel.NewNoopMetrics(),
		tracer:     otel.NewNoopTracer(),
	}

	for _, opt := range opts {
		opt(a)
	}

	if a.history == nil {
		a.history = history.NewCompressor(nil, history.WithLogger(a.logger))
	}

	a.gatherers = []Gatherer{
		NewProfileGatherer(),
		NewRecentLogGatherer(entities),
		NewKnowledgeGatherer(a.knowledge, a.scripts),
	}
	if a.selector != nil {
		a.gatherers = append(a.gatherers, NewRetrievalGatherer(a.selector))
	}

	return a
}

// Config 返回组装器的配置。
func (a *Assembler) Config() *Config {
	return a.config
}

// Assemble 组装消息列表。
//
// 唯一返回的错误是 errors.ErrEntityNotFound；其余失败只会让对应的块为空。
func (a *Assembler) Assemble(ctx context.Context, in Input) ([]message.Message, error) {
	start := time.Now()
	ctx, span := a.tracer.Start(ctx, "context.assemble",
		otel.WithAttributes(otel.EntityID(strconv.FormatInt(in.EntityID, 10))))
	defer span.End()

	a.metrics.Counter(otel.MetricAssemblyRequests).Add(ctx, 1)

	entity, err := a.entities.GetEntity(ctx, in.EntityID)
	if err != nil {
		if errors.Is(err, coreerrors.ErrEntityNotFound) {
			span.RecordError(err)
			span.SetStatus(otel.StatusError, err.Error())
			return nil, err
		}
		a.logger.Warn("load entity failed, profile omitted", "entity_id", in.EntityID, "error", err)
		entity = &domain.Entity{ID: in.EntityID}
	}

	packets := gatherAll(ctx, a.gatherers, &GatherInput{
		Entity:         entity,
		Query:          in.Query,
		ExtraKnowledge: in.ExtraKnowledge,
		Config:         a.config,
	}, a.logger)

	hist := a.history.Compress(ctx, in.History, a.config.KeepLast)
	msgs := a.structurer.Structure(a.config.GetPersona(), packets, hist, in.Query)

	tokens := a.config.GetTokenCounter().CountMessages(msgs)
	a.metrics.Histogram(otel.MetricAssemblyTokens).Record(ctx, float64(tokens))
	a.metrics.Histogram(otel.MetricAssemblyDuration).Record(ctx, float64(time.Since(start).Milliseconds()))
	span.SetAttributes(
		attribute.Int(otel.AttrAssemblyMessages, len(msgs)),
		attribute.Int(otel.AttrAssemblyTokens, tokens),
	)

	if limit := a.config.MaxPromptTokens; limit > 0 && tokens > limit {
		a.logger.Warn("assembled prompt exceeds token budget",
			"entity_id", in.EntityID, "tokens", tokens, "limit", limit)
	} else {
		a.logger.Debug("context assembled",
			"entity_id", in.EntityID, "messages", len(msgs), "tokens", tokens)
	}

	return msgs, nil
}
