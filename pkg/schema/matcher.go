package schema

import (
	"context"
	"log/slog"

	"github.com/easyops/contextengine-go/pkg/domain"
	"github.com/easyops/contextengine-go/pkg/otel"
	"github.com/easyops/contextengine-go/pkg/storage"
	"go.opentelemetry.io/otel/attribute"
)

// Schema 实体导入数据的表结构
type Schema struct {
	// TableNames 表名，按首次出现的顺序
	TableNames []string `json:"table_names"`
	// FieldToTables 字段名到所属表
	FieldToTables map[string][]string `json:"field_to_tables"`
	// TableFields 表名到字段名，按首次出现的顺序
	TableFields map[string][]string `json:"table_fields"`
}

// MatchResult 查询的匹配结果
type MatchResult struct {
	ExplicitTables []string `json:"explicit_tables"`
	FuzzyTables    []string `json:"fuzzy_tables"`
	FieldTables    []string `json:"field_tables"`
	MatchedFields  []string `json:"matched_fields"`
}

// HasHit 是否有任何表或字段命中
func (m *MatchResult) HasHit() bool {
	return m != nil && (len(m.ExplicitTables) > 0 || len(m.FuzzyTables) > 0 ||
		len(m.FieldTables) > 0 || len(m.MatchedFields) > 0)
}

// Tables 返回全部命中表（显式、模糊、字段所属），去重并保持顺序
func (m *MatchResult) Tables() []string {
	if m == nil {
		return nil
	}
	var out orderedSet
	out.add(m.ExplicitTables...)
	out.add(m.FuzzyTables...)
	out.add(m.FieldTables...)
	return out.items
}

// Matcher 表结构匹配器
type Matcher struct {
	entities storage.EntityReader
	resolver *TableResolver
	logger   *slog.Logger
	metrics  otel.Metrics
	tracer   otel.Tracer
}

// Option 匹配器配置选项
type Option func(*Matcher)

// WithLogger 设置日志器
func WithLogger(l *slog.Logger) Option {
	return func(m *Matcher) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMetrics 设置指标收集器
func WithMetrics(metrics otel.Metrics) Option {
	return func(m *Matcher) {
		if metrics != nil {
			m.metrics = metrics
		}
	}
}

// WithTracer 设置追踪器
func WithTracer(t otel.Tracer) Option {
	return func(m *Matcher) {
		if t != nil {
			m.tracer = t
		}
	}
}

// NewMatcher 创建表结构匹配器
func NewMatcher(entities storage.EntityReader, resolver *TableResolver, opts ...Option) *Matcher {
	if resolver == nil {
		resolver = NewTableResolver(nil)
	}
	m := &Matcher{
		entities: entities,
		resolver: resolver,
		logger:   slog.Default(),
		metrics:  otel.NewNoopMetrics(),
		tracer:   otel.NewNoopTracer(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Resolver 返回表名解析器
func (m *Matcher) Resolver() *TableResolver {
	return m.resolver
}

// BuildSchema 构建实体的表结构
//
// 实体不存在时返回 errors.ErrEntityNotFound。
func (m *Matcher) BuildSchema(ctx context.Context, entityID int64) (*Schema, error) {
	if _, err := m.entities.GetEntity(ctx, entityID); err != nil {
		return nil, err
	}
	entries, err := m.entities.ListDataEntries(ctx, entityID)
	if err != nil {
		return nil, err
	}
	return SchemaFromEntries(ctx, m.resolver, entries), nil
}

// SchemaFromEntries 从数据条目推断表结构
func SchemaFromEntries(ctx context.Context, resolver *TableResolver, entries []domain.DataEntry) *Schema {
	s := &Schema{
		FieldToTables: make(map[string][]string),
		TableFields:   make(map[string][]string),
	}
	var tables orderedSet
	fields := make(map[string]*orderedSet)
	owners := make(map[string]*orderedSet)

	for _, e := range domain.Chronological(entries) {
		row, ok := e.ImportedRow()
		if !ok {
			continue
		}
		table := resolver.Resolve(ctx, row)
		tables.add(table)
		if fields[table] == nil {
			fields[table] = &orderedSet{}
		}
		for _, f := range row.OrderedFields() {
			fields[table].add(f)
			if owners[f] == nil {
				owners[f] = &orderedSet{}
			}
			owners[f].add(table)
		}
	}

	s.TableNames = tables.items
	for t, fs := range fields {
		s.TableFields[t] = fs.items
	}
	for f, ts := range owners {
		s.FieldToTables[f] = ts.items
	}
	return s
}

// Match 匹配查询与实体的表结构
func (m *Matcher) Match(ctx context.Context, entityID int64, query string) (*MatchResult, error) {
	ctx, span := m.tracer.Start(ctx, "schema.match", otel.WithAttributes(otel.EntityID(formatID(entityID))))
	defer span.End()

	s, err := m.BuildSchema(ctx, entityID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otel.StatusError, err.Error())
		return nil, err
	}

	res := MatchSchema(s, query)
	m.metrics.Counter(otel.MetricSchemaMatches).Add(ctx, 1)
	if res.HasHit() {
		m.metrics.Counter(otel.MetricSchemaHits).Add(ctx, 1)
	}
	span.SetAttributes(
		attribute.Int("schema.explicit", len(res.ExplicitTables)),
		attribute.Int("schema.fuzzy", len(res.FuzzyTables)),
		attribute.Int("schema.fields", len(res.MatchedFields)),
	)
	return res, nil
}

// MatchSchema 在给定表结构上匹配查询
func MatchSchema(s *Schema, query string) *MatchResult {
	res := &MatchResult{
		ExplicitTables: []string{},
		FuzzyTables:    []string{},
		FieldTables:    []string{},
		MatchedFields:  []string{},
	}
	if s == nil {
		return res
	}

	nq := Normalize(query)
	if nq == "" {
		return res
	}
	core := Core(query)

	for _, t := range s.TableNames {
		nt := Normalize(t)
		if literalContains(nq, nt) {
			res.ExplicitTables = append(res.ExplicitTables, t)
		}
		if fuzzyContains(nt, core) {
			res.FuzzyTables = append(res.FuzzyTables, t)
		}
	}

	var fieldTables, matched orderedSet
	for _, t := range s.TableNames {
		for _, f := range s.TableFields[t] {
			nf := Normalize(f)
			if literalContains(nq, nf) || fuzzyContains(nf, core) {
				matched.add(f)
				fieldTables.add(t)
			}
		}
	}
	if len(matched.items) > 0 {
		res.MatchedFields = matched.items
		res.FieldTables = fieldTables.items
	}
	return res
}

// orderedSet 保持插入顺序的字符串集合
type orderedSet struct {
	items []string
	seen  map[string]bool
}

func (o *orderedSet) add(items ...string) {
	if o.seen == nil {
		o.seen = make(map[string]bool)
	}
	for _, it := range items {
		if !o.seen[it] {
			o.seen[it] = true
			o.items = append(o.items, it)
		}
	}
}
