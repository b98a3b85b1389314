package knowledge

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/easyops/contextengine-go/pkg/core/errors"
	"github.com/easyops/contextengine-go/pkg/core/llm"
	"github.com/easyops/contextengine-go/pkg/domain"
	"github.com/easyops/contextengine-go/pkg/otel"
	"github.com/easyops/contextengine-go/pkg/storage"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
)

// State 索引状态
type State int

const (
	// StateEmpty 尚未构建或知识库为空
	StateEmpty State = iota
	// StateBuilt 已按当前指纹构建
	StateBuilt
	// StateStale 指纹已变化或被显式失效，下次检索时重建
	StateStale
)

// String 返回状态名称
func (s State) String() string {
	switch s {
	case StateBuilt:
		return "built"
	case StateStale:
		return "stale"
	default:
		return "empty"
	}
}

// DefaultTopK 默认返回条数
const DefaultTopK = 3

// defaultEmbedBatch 每次嵌入请求的文本数
const defaultEmbedBatch = 16

// Index 知识库向量索引
//
// 零值不可用，请使用 NewIndex 创建。
type Index struct {
	reader   storage.KnowledgeReader
	embedder llm.Embedder
	chunker  Chunker
	limiter  *rate.Limiter
	batch    int
	topK     int

	logger  *slog.Logger
	metrics otel.Metrics
	tracer  otel.Tracer

	mu    sync.Mutex
	state State
	sig   domain.IndexSignature
	store VectorStore
}

// IndexOption 索引配置选项
type IndexOption func(*Index)

// WithChunker 设置分块器
func WithChunker(c Chunker) IndexOption {
	return func(idx *Index) {
		if c != nil {
			idx.chunker = c
		}
	}
}

// WithTopK 设置默认返回条数
func WithTopK(k int) IndexOption {
	return func(idx *Index) {
		if k > 0 {
			idx.topK = k
		}
	}
}

// WithEmbedBatch 设置每批嵌入的文本数
func WithEmbedBatch(n int) IndexOption {
	return func(idx *Index) {
		if n > 0 {
			idx.batch = n
		}
	}
}

// WithRateLimit 限制嵌入请求速率（每秒批次数），0 表示不限
func WithRateLimit(perSecond float64) IndexOption {
	return func(idx *Index) {
		if perSecond > 0 {
			idx.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithLogger 设置日志器
func WithLogger(l *slog.Logger) IndexOption {
	return func(idx *Index) {
		if l != nil {
			idx.logger = l
		}
	}
}

// WithMetrics 设置指标收集器
func WithMetrics(m otel.Metrics) IndexOption {
	return func(idx *Index) {
		if m != nil {
			idx.metrics = m
		}
	}
}

// WithTracer 设置追踪器
func WithTracer(t otel.Tracer) IndexOption {
	return func(idx *Index) {
		if t != nil {
			idx.tracer = t
		}
	}
}

// NewIndex 创建知识库索引
//
// embedder 为 nil 表示未配置嵌入凭证，此时 Search 总是返回空结果。
func NewIndex(reader storage.KnowledgeReader, embedder llm.Embedder, opts ...IndexOption) *Index {
	idx := &Index{
		reader:   reader,
		embedder: embedder,
		chunker:  NewWindowChunker(DefaultChunkSize, DefaultChunkOverlap),
		batch:    defaultEmbedBatch,
		topK:     DefaultTopK,
		logger:   slog.Default(),
		metrics:  otel.NewNoopMetrics(),
		tracer:   otel.NewNoopTracer(),
		state:    StateEmpty,
		store:    NewMemoryVectorStore(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// State 返回当前状态
func (idx *Index) State() State {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.state
}

// Signature 返回最近一次构建时的指纹
func (idx *Index) Signature() domain.IndexSignature {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.sig
}

// Enabled 是否配置了嵌入服务
func (idx *Index) Enabled() bool {
	return idx.embedder != nil
}

// Invalidate 使索引失效，下一次检索时重建
func (idx *Index) Invalidate() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.state == StateBuilt {
		idx.state = StateStale
	}
	idx.sig = domain.IndexSignature{Count: -1}
}

// Search 语义检索知识库
//
// 从不返回错误：未配置嵌入、知识库为空或任何失败都返回空切片。
// k <= 0 时使用默认条数。
func (idx *Index) Search(ctx context.Context, query string, k int) []Hit {
	hits := []Hit{}
	query = strings.TrimSpace(query)
	if query == "" || idx.embedder == nil {
		return hits
	}
	if k <= 0 {
		k = idx.topK
	}

	ctx, span := idx.tracer.Start(ctx, "knowledge.search",
		otel.WithAttributes(attribute.Int(otel.AttrKnowledgeTopK, k)))
	defer span.End()
	idx.metrics.Counter(otel.MetricKnowledgeSearches).Add(ctx, 1)

	store, err := idx.ensure(ctx)
	if err != nil {
		idx.logger.Warn("knowledge index unavailable", "error", err)
		span.RecordError(err)
		span.SetStatus(otel.StatusError, err.Error())
		return hits
	}
	if store == nil || store.Size() == 0 {
		return hits
	}

	vecs, err := idx.embedder.Embed(ctx, []string{query})
	if err != nil || len(vecs) != 1 {
		if err == nil {
			err = errors.ErrEmbeddingFailed
		}
		idx.logger.Warn("knowledge query embedding failed", "error", err)
		span.RecordError(err)
		span.SetStatus(otel.StatusError, err.Error())
		return hits
	}

	hits = append(hits, store.Search(vecs[0], k)...)
	span.SetAttributes(attribute.Int(otel.AttrKnowledgeHits, len(hits)))
	span.SetStatus(otel.StatusOK, "")
	return hits
}

// ensure 在锁内检查指纹并按需重建，返回可供检索的存储
func (idx *Index) ensure(ctx context.Context) (VectorStore, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	sig, err := idx.reader.KnowledgeSignature(ctx)
	if err != nil {
		return nil, errors.WrapError(err, "read knowledge signature")
	}

	if idx.state == StateBuilt && sig == idx.sig {
		return idx.store, nil
	}
	if idx.state == StateBuilt {
		idx.state = StateStale
	}

	if sig.Count == 0 {
		idx.store = NewMemoryVectorStore()
		idx.sig = sig
		idx.state = StateEmpty
		idx.metrics.Gauge(otel.MetricKnowledgeChunks).Set(ctx, 0)
		return idx.store, nil
	}

	store, err := idx.rebuild(ctx)
	if err != nil {
		return nil, err
	}
	idx.store = store
	idx.sig = sig
	idx.state = StateBuilt
	return idx.store, nil
}

// rebuild 读取全部文档、分块并嵌入
func (idx *Index) rebuild(ctx context.Context) (VectorStore, error) {
	ctx, span := idx.tracer.Start(ctx, "knowledge.rebuild")
	defer span.End()
	start := time.Now()

	docs, err := idx.reader.ListKnowledgeDocuments(ctx)
	if err != nil {
		return nil, errors.WrapError(err, "list knowledge documents")
	}

	var chunks []Chunk
	for _, doc := range docs {
		chunks = append(chunks, idx.chunker.Chunk(doc)...)
	}

	for begin := 0; begin < len(chunks); begin += idx.batch {
		end := min(begin+idx.batch, len(chunks))
		if idx.limiter != nil {
			if err := idx.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		texts := make([]string, 0, end-begin)
		for _, c := range chunks[begin:end] {
			texts = append(texts, c.Content)
		}
		vecs, err := idx.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(vecs) != len(texts) {
			return nil, errors.WrapError(errors.ErrEmbeddingFailed, "vector count mismatch")
		}
		for i, v := range vecs {
			chunks[begin+i].Vector = v
		}
	}

	store := NewMemoryVectorStore()
	store.Add(chunks)

	elapsed := time.Since(start)
	idx.metrics.Counter(otel.MetricKnowledgeRebuilds).Add(ctx, 1)
	idx.metrics.Histogram(otel.MetricKnowledgeRebuildTime).Record(ctx, float64(elapsed.Milliseconds()))
	idx.metrics.Gauge(otel.MetricKnowledgeChunks).Set(ctx, float64(len(chunks)))
	span.SetAttributes(attribute.Int(otel.AttrKnowledgeChunks, len(chunks)))
	idx.logger.Info("knowledge index rebuilt",
		"documents", len(docs),
		"chunks", len(chunks),
		"elapsed", elapsed,
	)
	return store, nil
}
