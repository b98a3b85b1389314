// Package engine 是上下文引擎的门面
//
// Engine 把检索选择器、表结构匹配器、历史压缩器、知识库索引和上下文组装器
// 组合在一起，对外提供七个检索操作、自动技能以及完整的对话流程：
//
//	eng, err := engine.FromConfig(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Close(ctx)
//
//	reply, err := eng.Chat(ctx, engine.ChatRequest{Message: "帮我分析一下客户 12 的跟进情况"})
//
// 除了实体不存在之外，所有失败都降级为空结果或内联的错误回复。
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	agentctx "github.com/easyops/contextengine-go/pkg/context"
	"github.com/easyops/contextengine-go/pkg/core/config"
	coreerrors "github.com/easyops/contextengine-go/pkg/core/errors"
	"github.com/easyops/contextengine-go/pkg/core/llm"
	"github.com/easyops/contextengine-go/pkg/history"
	"github.com/easyops/contextengine-go/pkg/knowledge"
	"github.com/easyops/contextengine-go/pkg/otel"
	"github.com/easyops/contextengine-go/pkg/retrieval"
	"github.com/easyops/contextengine-go/pkg/schema"
	"github.com/easyops/contextengine-go/pkg/skill"
	"github.com/easyops/contextengine-go/pkg/storage"
)

// Engine 上下文引擎
//
// 唯一的共享可变状态是知识库索引，它自带互斥锁；Engine 可以被并发使用。
type Engine struct {
	store    storage.Store
	provider llm.Provider
	cfg      config.Config

	matcher    *schema.Matcher
	selector   *retrieval.Selector
	compressor *history.Compressor
	index      *knowledge.Index
	scripts    *knowledge.ScriptSearcher
	library    *knowledge.Library
	assembler  *agentctx.Assembler
	router     *skill.Router
	skills     *skill.Runner

	logger  *slog.Logger
	metrics otel.Metrics
	tracer  otel.Tracer

	embedder llm.Embedder
	aliases  storage.AliasResolver
	closers  []func(context.Context) error
}

// Option 配置 Engine
type Option func(*Engine)

// WithConfig 设置配置，未设置的字段使用默认值
func WithConfig(cfg config.Config) Option {
	return func(e *Engine) {
		e.cfg = cfg.WithDefaults()
	}
}

// WithEmbedder 设置嵌入服务，为 nil 时知识库检索返回空结果
func WithEmbedder(embedder llm.Embedder) Option {
	return func(e *Engine) {
		e.embedder = embedder
	}
}

// WithAliases 设置额外的表格别名来源，优先于存储中的别名
func WithAliases(aliases storage.AliasResolver) Option {
	return func(e *Engine) {
		e.aliases = aliases
	}
}

// WithLogger 设置日志器
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics 设置指标收集器
func WithMetrics(m otel.Metrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithTracer 设置追踪器
func WithTracer(t otel.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// New 创建 Engine
//
// provider 为 nil 时使用占位模型。
func New(store storage.Store, provider llm.Provider, opts ...Option) *Engine {
	if provider == nil {
		provider = llm.NewStubProvider("")
	}
	e := &Engine{
		store:    store,
		provider: provider,
		cfg:      config.Default(),
		logger:   slog.Default(),
		metrics:  otel.NewNoopMetrics(),
		tracer:   otel.NewNoopTracer(),
	}
	for _, opt := range opts {
		opt(e)
	}

	var aliases storage.AliasResolver = store
	if e.aliases != nil {
		aliases = storage.ChainResolver{e.aliases, store}
	}
	resolver := schema.NewTableResolver(aliases)

	e.matcher = schema.NewMatcher(store, resolver,
		schema.WithLogger(e.logger),
		schema.WithMetrics(e.metrics),
		schema.WithTracer(e.tracer),
	)
	e.selector = retrieval.NewSelector(store, provider, resolver,
		retrieval.WithConfig(e.cfg.Retrieval),
		retrieval.WithLogger(e.logger),
		retrieval.WithMetrics(e.metrics),
		retrieval.WithTracer(e.tracer),
	)
	e.compressor = history.NewCompressor(provider,
		history.WithKeepLast(e.cfg.History.KeepLast),
		history.WithTurnCap(e.cfg.History.TurnCap),
		history.WithSummaryCap(e.cfg.History.SummaryCap),
		history.WithSummaryMaxTokens(e.cfg.History.SummaryMaxTokens),
		history.WithLogger(e.logger),
		history.WithMetrics(e.metrics),
		history.WithTracer(e.tracer),
	)
	e.index = knowledge.NewIndex(store, e.embedder,
		knowledge.WithChunker(knowledge.NewWindowChunker(e.cfg.Knowledge.ChunkSize, e.cfg.Knowledge.ChunkOverlap)),
		knowledge.WithTopK(e.cfg.Knowledge.TopK),
		knowledge.WithEmbedBatch(e.cfg.Embedding.BatchSize),
		knowledge.WithRateLimit(e.cfg.Embedding.RatePerSecond),
		knowledge.WithLogger(e.logger),
		knowledge.WithMetrics(e.metrics),
		knowledge.WithTracer(e.tracer),
	)
	e.scripts = knowledge.NewScriptSearcher(store, e.logger)
	e.library = knowledge.NewLibrary(store, e.index)

	e.assembler = agentctx.NewAssembler(store,
		agentctx.WithConfig(agentctx.ConfigFrom(e.cfg.Assembly, e.cfg.Knowledge, e.cfg.History)),
		agentctx.WithKnowledge(e.index),
		agentctx.WithScripts(e.scripts),
		agentctx.WithSelector(e.selector),
		agentctx.WithHistory(e.compressor),
		agentctx.WithLogger(e.logger),
		agentctx.WithMetrics(e.metrics),
		agentctx.WithTracer(e.tracer),
	)
	e.router = skill.NewRouter(store, e.logger)
	e.skills = skill.NewRunner(provider, store,
		skill.WithRequestOptions(e.requestOptions()...),
		skill.WithLogger(e.logger),
		skill.WithMetrics(e.metrics),
		skill.WithTracer(e.tracer),
	)
	return e
}

// FromConfig 按配置创建 Engine 及其全部依赖
//
// 创建顺序：可观测性 → 存储 → 对话模型（熔断 + 追踪）→ 嵌入服务 → 别名文件。
// 未配置嵌入凭证不是错误，知识库检索只会返回空结果。
func FromConfig(ctx context.Context, cfg *config.Config) (*Engine, error) {
	if cfg == nil {
		def := config.Default()
		cfg = &def
	}
	c := cfg.WithDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	obs, err := otel.NewProvider(otel.FromAppConfig(c.Observability))
	if err != nil {
		return nil, fmt.Errorf("init observability: %w", err)
	}
	logger := obs.Slog()
	traced := []otel.TracedOption{otel.WithTracer(obs.Tracer()), otel.WithMetrics(obs.Metrics())}
	breaker := llm.BreakerSettingsFromConfig(c.Breaker)

	store, err := storage.Open(c.Storage.Driver, c.Storage.DSN)
	if err != nil {
		_ = obs.Shutdown(ctx)
		return nil, fmt.Errorf("open storage: %w", err)
	}
	fail := func(err error) (*Engine, error) {
		_ = store.Close()
		_ = obs.Shutdown(ctx)
		return nil, err
	}

	provider, err := llm.FromConfig(c.LLM)
	if err != nil {
		return fail(fmt.Errorf("create llm provider: %w", err))
	}
	if !c.Breaker.Disabled {
		provider = llm.NewBreakerProvider(provider, breaker)
	}
	provider = otel.NewTracedProvider(provider, traced...)

	var embedder llm.Embedder
	emb, err := llm.EmbedderFromConfig(ctx, c.Embedding)
	switch {
	case errors.Is(err, coreerrors.ErrNoCredentials):
		logger.Info("no embedding credentials, knowledge search disabled")
	case err != nil:
		return fail(fmt.Errorf("create embedder: %w", err))
	default:
		name := string(c.Embedding.Provider)
		if !c.Breaker.Disabled {
			emb = llm.NewBreakerEmbedder(name, emb, breaker)
		}
		embedder = otel.NewTracedEmbedder(name, emb, traced...)
	}

	opts := []Option{
		WithConfig(c),
		WithEmbedder(embedder),
		WithLogger(logger),
		WithMetrics(obs.Metrics()),
		WithTracer(obs.Tracer()),
	}
	if c.AliasesFile != "" {
		aliases, err := storage.LoadAliasFile(c.AliasesFile)
		if err != nil {
			return fail(fmt.Errorf("load aliases: %w", err))
		}
		logger.Debug("table aliases loaded", "file", c.AliasesFile, "count", aliases.Len())
		opts = append(opts, WithAliases(aliases))
	}

	e := New(store, provider, opts...)
	e.closers = append(e.closers,
		func(context.Context) error { return provider.Close() },
		func(context.Context) error { return store.Close() },
		obs.Shutdown,
	)
	return e, nil
}

// Close 释放 FromConfig 创建的资源；New 创建的 Engine 不持有任何资源
func (e *Engine) Close(ctx context.Context) error {
	var errs []error
	for _, fn := range e.closers {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}

// Store 返回底层存储
func (e *Engine) Store() storage.Store {
	return e.store
}

// Library 返回知识库文档管理，写操作会使索引失效
func (e *Engine) Library() *knowledge.Library {
	return e.library
}

// Config 返回生效的配置
func (e *Engine) Config() config.Config {
	return e.cfg
}
