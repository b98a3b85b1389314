package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/easyops/contextengine-go/pkg/core/config"
	"github.com/easyops/contextengine-go/pkg/core/llm"
	"github.com/easyops/contextengine-go/pkg/core/message"
	"github.com/easyops/contextengine-go/pkg/domain"
	"github.com/easyops/contextengine-go/pkg/modeljson"
	"github.com/easyops/contextengine-go/pkg/otel"
	"github.com/easyops/contextengine-go/pkg/schema"
	"github.com/easyops/contextengine-go/pkg/storage"
	"go.opentelemetry.io/otel/attribute"
)

// 默认参数
const (
	DefaultMaxCandidates = 30
	DefaultSnippetChars  = 50
	DefaultContentCap    = 50000
	DefaultFallbackLimit = 3
	DefaultMinStemLength = 5
	selectorMaxTokens    = 256
)

// Result 一次选择的明细
type Result struct {
	// Blocks 选中的文本块，按渲染顺序
	Blocks []Block
	// Candidates 参与选择的候选数
	Candidates int
	// KeywordHits 文件名匹配命中数
	KeywordHits int
	// ModelHits 模型挑选命中数（含与文件名匹配重复的）
	ModelHits int
	// Override 是否走了画像汇总
	Override bool
	// Fallback 是否走了兜底文件
	Fallback bool
}

// Selector 检索选择器
//
// 每次调用都是无状态的，可以被多个 goroutine 并发使用。
type Selector struct {
	entities storage.EntityReader
	provider llm.Provider
	resolver *schema.TableResolver

	maxCandidates int
	snippetChars  int
	contentCap    int
	fallbackLimit int
	minStemLength int
	modelPass     bool

	logger  *slog.Logger
	metrics otel.Metrics
	tracer  otel.Tracer
}

// Option 选择器配置选项
type Option func(*Selector)

// WithConfig 从配置段设置参数
func WithConfig(cfg config.RetrievalConfig) Option {
	return func(s *Selector) {
		cfg = cfg.WithDefaults()
		s.maxCandidates = cfg.MaxCandidates
		s.snippetChars = cfg.SnippetChars
		s.contentCap = cfg.ContentCap
		s.fallbackLimit = cfg.FallbackLimit
		s.minStemLength = cfg.MinStemLength
		s.modelPass = !cfg.DisableModelPass
	}
}

// WithMaxCandidates 设置候选条目上限
func WithMaxCandidates(n int) Option {
	return func(s *Selector) {
		if n > 0 {
			s.maxCandidates = n
		}
	}
}

// WithContentCap 设置单块正文字符上限
func WithContentCap(n int) Option {
	return func(s *Selector) {
		if n > 0 {
			s.contentCap = n
		}
	}
}

// WithFallbackLimit 设置兜底文件数
func WithFallbackLimit(n int) Option {
	return func(s *Selector) {
		if n > 0 {
			s.fallbackLimit = n
		}
	}
}

// WithModelPass 开关模型挑选阶段
func WithModelPass(enabled bool) Option {
	return func(s *Selector) {
		s.modelPass = enabled
	}
}

// WithLogger 设置日志器
func WithLogger(l *slog.Logger) Option {
	return func(s *Selector) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics 设置指标收集器
func WithMetrics(m otel.Metrics) Option {
	return func(s *Selector) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithTracer 设置追踪器
func WithTracer(t otel.Tracer) Option {
	return func(s *Selector) {
		if t != nil {
			s.tracer = t
		}
	}
}

// NewSelector 创建检索选择器
//
// provider 为 nil 时跳过模型挑选；resolver 为 nil 时不使用表格别名。
func NewSelector(entities storage.EntityReader, provider llm.Provider, resolver *schema.TableResolver, opts ...Option) *Selector {
	if resolver == nil {
		resolver = schema.NewTableResolver(nil)
	}
	s := &Selector{
		entities:      entities,
		provider:      provider,
		resolver:      resolver,
		maxCandidates: DefaultMaxCandidates,
		snippetChars:  DefaultSnippetChars,
		contentCap:    DefaultContentCap,
		fallbackLimit: DefaultFallbackLimit,
		minStemLength: DefaultMinStemLength,
		modelPass:     true,
		logger:        slog.Default(),
		metrics:       otel.NewNoopMetrics(),
		tracer:        otel.NewNoopTracer(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select 返回与查询相关的数据条目渲染文本
//
// 从不返回错误：存储失败、模型失败甚至 panic 都降级为空字符串。
func (s *Selector) Select(ctx context.Context, entityID int64, query string) (out string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("retrieval selector panicked", "entity_id", entityID, "panic", r)
			s.metrics.Counter(otel.MetricRetrievalErrors).Add(ctx, 1)
			out = ""
		}
	}()

	res, err := s.Choose(ctx, entityID, query)
	if err != nil {
		s.logger.Warn("retrieval selection degraded to empty", "entity_id", entityID, "error", err)
		s.metrics.Counter(otel.MetricRetrievalErrors).Add(ctx, 1)
		return ""
	}
	return RenderBlocks(res.Blocks, s.contentCap)
}

// Choose 执行选择并返回明细
//
// 只有读取实体数据失败时返回错误；模型阶段的失败视为零命中。
func (s *Selector) Choose(ctx context.Context, entityID int64, query string) (*Result, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "retrieval.select",
		otel.WithAttributes(otel.EntityID(fmt.Sprint(entityID))))
	defer span.End()

	s.metrics.Counter(otel.MetricRetrievalRequests).Add(ctx, 1)
	defer func() {
		s.metrics.Histogram(otel.MetricRetrievalDuration).Record(ctx, float64(time.Since(start).Milliseconds()))
	}()

	entries, err := s.entities.ListDataEntries(ctx, entityID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otel.StatusError, err.Error())
		return nil, err
	}

	nonChat := make([]domain.DataEntry, 0, len(entries))
	for _, e := range domain.NewestFirst(entries) {
		if !e.Kind.IsConversational() {
			nonChat = append(nonChat, e)
		}
	}
	candidates := nonChat
	if len(candidates) > s.maxCandidates {
		candidates = candidates[:s.maxCandidates]
	}

	res := &Result{Candidates: len(candidates)}
	triggered := schema.HasAnalysisTrigger(query)

	var selected []domain.DataEntry
	if triggered && len(nonChat) > 0 {
		named := s.keywordPass(nonChat, query)
		res.Override = true
		res.KeywordHits = len(named)
		res.Blocks = s.profileBlocks(ctx, nonChat, named)
	} else {
		keyword := s.keywordPass(candidates, query)
		model := s.modelSelect(ctx, candidates, query)
		res.KeywordHits = len(keyword)
		res.ModelHits = len(model)
		selected = mergeEntries(keyword, model)

		if len(selected) == 0 {
			selected = s.fallback(nonChat)
			res.Fallback = len(selected) > 0
			if res.Fallback {
				s.metrics.Counter(otel.MetricRetrievalFallbacks).Add(ctx, 1)
			}
		}
		for _, e := range selected {
			res.Blocks = append(res.Blocks, s.entryBlock(ctx, e))
		}
	}

	s.metrics.Histogram(otel.MetricRetrievalSelected).Record(ctx, float64(len(res.Blocks)))
	span.SetAttributes(otel.RetrievalCounts(res.Candidates, res.KeywordHits, res.ModelHits, len(res.Blocks))...)
	span.SetAttributes(
		attribute.Bool(otel.AttrRetrievalOverride, res.Override),
		attribute.Bool(otel.AttrRetrievalFallback, res.Fallback),
	)
	s.logger.Debug("retrieval selection finished",
		"entity_id", entityID,
		"candidates", res.Candidates,
		"keyword_hits", res.KeywordHits,
		"model_hits", res.ModelHits,
		"blocks", len(res.Blocks),
		"override", res.Override,
		"fallback", res.Fallback)
	return res, nil
}

// keywordPass 文件名与查询的确定性匹配
func (s *Selector) keywordPass(candidates []domain.DataEntry, query string) []domain.DataEntry {
	q := strings.ToLower(query)
	hits := make([]domain.DataEntry, 0)
	for _, e := range candidates {
		f, ok := e.FileRef()
		if !ok {
			continue
		}
		if s.nameMatches(f.Name, q) || s.nameMatches(f.OriginalName, q) {
			hits = append(hits, e)
		}
	}
	return hits
}

func (s *Selector) nameMatches(name, lowerQuery string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return false
	}
	if strings.Contains(lowerQuery, name) {
		return true
	}
	stem := name
	if i := strings.LastIndex(name, "."); i >= 0 {
		stem = name[:i]
	}
	return utf8.RuneCountInString(stem) > s.minStemLength && strings.Contains(lowerQuery, stem)
}

// modelSelect 让模型从候选列表中挑选相关条目，任何失败都返回空
func (s *Selector) modelSelect(ctx context.Context, candidates []domain.DataEntry, query string) []domain.DataEntry {
	if !s.modelPass || s.provider == nil || len(candidates) == 0 {
		return nil
	}

	byID := make(map[int64]domain.DataEntry, len(candidates))
	lines := make([]string, 0, len(candidates))
	for _, e := range candidates {
		byID[e.ID] = e
		lines = append(lines, candidateLine(e, s.candidateName(ctx, e), s.snippetChars))
	}

	req := llm.NewRequest([]message.Message{
		message.NewSystemMessage(selectorInstruction),
		message.NewUserMessage(selectorInput(query, lines)),
	}, llm.WithRequestTemperature(0), llm.WithRequestMaxTokens(selectorMaxTokens))

	resp, err := s.provider.Generate(ctx, req)
	if err != nil {
		s.logger.Warn("model selection failed", "error", err)
		return nil
	}

	sel, err := modeljson.Decode[modeljson.IDSelection](resp.Content)
	if err != nil {
		s.logger.Warn("model selection reply unparseable", "error", err)
		return nil
	}

	out := make([]domain.DataEntry, 0, len(sel.IDs))
	for _, id := range sel.IDs {
		if e, ok := byID[id]; ok {
			out = append(out, e)
		}
	}
	return out
}

// fallback 最近的文件类条目
//
// 只有未触发画像词的查询会走到这里，触发画像词时导入行已经由 profileBlocks 全部给出。
func (s *Selector) fallback(nonChat []domain.DataEntry) []domain.DataEntry {
	out := make([]domain.DataEntry, 0, s.fallbackLimit)
	for _, e := range nonChat {
		if len(out) >= s.fallbackLimit {
			break
		}
		if e.IsFileLike() {
			out = append(out, e)
		}
	}
	return out
}

// profileBlocks 按表汇总全部导入行，其余非对话条目各占一块
//
// 查询中点名的文件排在最前，然后是各表，最后是其余条目。
func (s *Selector) profileBlocks(ctx context.Context, nonChat, named []domain.DataEntry) []Block {
	var (
		lead   []Block
		tables []Block
		others []Block
	)
	first := make(map[int64]bool, len(named))
	for _, e := range named {
		first[e.ID] = true
		lead = append(lead, s.entryBlock(ctx, e))
	}
	index := make(map[string]int)
	for _, e := range nonChat {
		if first[e.ID] {
			continue
		}
		row, ok := e.ImportedRow()
		if !ok {
			others = append(others, s.entryBlock(ctx, e))
			continue
		}
		name := s.resolver.Resolve(ctx, row)
		i, seen := index[name]
		if !seen {
			i = len(tables)
			index[name] = i
			tables = append(tables, Block{Label: name, Kind: domain.KindImportedRow})
		}
		b := &tables[i]
		if text := strings.TrimSpace(e.Text()); text != "" {
			if b.Content != "" {
				b.Content += "\n"
			}
			b.Content += text
		}
		b.EntryIDs = append(b.EntryIDs, e.ID)
	}
	return append(append(lead, tables...), others...)
}

func (s *Selector) entryBlock(ctx context.Context, e domain.DataEntry) Block {
	return Block{
		Label:    s.candidateName(ctx, e),
		Kind:     e.Kind,
		Content:  e.Text(),
		EntryIDs: []int64{e.ID},
	}
}

// candidateName 文件名优先，其次原始文件名，导入行使用表名
func (s *Selector) candidateName(ctx context.Context, e domain.DataEntry) string {
	switch p := e.Payload.(type) {
	case domain.FileRef:
		if names := p.Names(); len(names) > 0 {
			return names[0]
		}
	case domain.ImportedRow:
		return s.resolver.Resolve(ctx, p)
	}
	return noName
}

// mergeEntries 文件名命中在前，模型命中在后，按 ID 去重
func mergeEntries(groups ...[]domain.DataEntry) []domain.DataEntry {
	seen := make(map[int64]bool)
	out := make([]domain.DataEntry, 0)
	for _, g := range groups {
		for _, e := range g {
			if seen[e.ID] {
				continue
			}
			seen[e.ID] = true
			out = append(out, e)
		}
	}
	return out
}
