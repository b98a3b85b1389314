package otel

// 预定义的指标名称
// 遵循 OpenTelemetry 语义约定
const (
	// 检索选择指标
	MetricRetrievalRequests  = "retrieval.requests"  // 计数器: 检索次数
	MetricRetrievalDuration  = "retrieval.duration"  // 直方图: 检索耗时(ms)
	MetricRetrievalSelected  = "retrieval.selected"  // 直方图: 每次选中的条目数
	MetricRetrievalFallbacks = "retrieval.fallbacks" // 计数器: 走兜底文件的次数
	MetricRetrievalErrors    = "retrieval.errors"    // 计数器: 检索降级次数

	// 表结构匹配指标
	MetricSchemaMatches = "schema.matches" // 计数器: 匹配次数
	MetricSchemaHits    = "schema.hits"    // 计数器: 命中次数

	// 历史压缩指标
	MetricHistoryCompressions    = "history.compressions"     // 计数器: 触发压缩次数
	MetricHistorySummaryFailures = "history.summary.failures" // 计数器: 摘要失败次数
	MetricHistoryDropped         = "history.dropped"          // 计数器: 被折叠的消息数

	// 知识库指标
	MetricKnowledgeSearches    = "knowledge.searches"     // 计数器: 检索次数
	MetricKnowledgeRebuilds    = "knowledge.rebuilds"     // 计数器: 索引重建次数
	MetricKnowledgeRebuildTime = "knowledge.rebuild.time" // 直方图: 重建耗时(ms)
	MetricKnowledgeChunks      = "knowledge.chunks"       // 仪表: 当前索引块数

	// 上下文组装指标
	MetricAssemblyRequests = "assembly.requests" // 计数器: 组装次数
	MetricAssemblyDuration = "assembly.duration" // 直方图: 组装耗时(ms)
	MetricAssemblyTokens   = "assembly.tokens"   // 直方图: 估算的提示词 token 数

	// 技能指标
	MetricSkillRuns          = "skill.runs"           // 计数器: 技能调用次数
	MetricSkillParseFailures = "skill.parse.failures" // 计数器: 结构化结果解析失败次数

	// LLM 指标
	MetricLLMRequests         = "llm.requests"          // 计数器: LLM 请求次数
	MetricLLMRequestDuration  = "llm.request.duration"  // 直方图: LLM 请求时间(ms)
	MetricLLMTokensPrompt     = "llm.tokens.prompt"     // 计数器: Prompt Token 总数
	MetricLLMTokensCompletion = "llm.tokens.completion" // 计数器: Completion Token 总数
	MetricLLMTokensTotal      = "llm.tokens.total"      // 计数器: 总 Token 数
	MetricLLMErrors           = "llm.errors"            // 计数器: LLM 错误次数

	// 向量化指标
	MetricEmbeddingRequests = "embedding.requests" // 计数器: 向量化请求次数
	MetricEmbeddingTexts    = "embedding.texts"    // 计数器: 向量化文本数
	MetricEmbeddingErrors   = "embedding.errors"   // 计数器: 向量化错误次数
)

// MetricUnit 指标单位
type MetricUnit string

const (
	UnitNone         MetricUnit = ""
	UnitMilliseconds MetricUnit = "ms"
	UnitSeconds      MetricUnit = "s"
	UnitBytes        MetricUnit = "By"
	UnitCount        MetricUnit = "1"
)

// MetricDescription 指标描述
type MetricDescription struct {
	Name        string
	Description string
	Unit        MetricUnit
	Type        string // counter, histogram, gauge
}

// PredefinedMetrics 预定义指标列表
var PredefinedMetrics = []MetricDescription{
	{MetricRetrievalRequests, "Number of retrieval selections", UnitCount, "counter"},
	{MetricRetrievalDuration, "Duration of retrieval selections", UnitMilliseconds, "histogram"},
	{MetricRetrievalSelected, "Entries selected per retrieval", UnitCount, "histogram"},
	{MetricRetrievalFallbacks, "Number of file fallbacks", UnitCount, "counter"},
	{MetricRetrievalErrors, "Number of degraded retrievals", UnitCount, "counter"},

	{MetricSchemaMatches, "Number of schema matches", UnitCount, "counter"},
	{MetricSchemaHits, "Number of schema hits", UnitCount, "counter"},

	{MetricHistoryCompressions, "Number of history compressions", UnitCount, "counter"},
	{MetricHistorySummaryFailures, "Number of failed history summaries", UnitCount, "counter"},
	{MetricHistoryDropped, "Number of folded history messages", UnitCount, "counter"},

	{MetricKnowledgeSearches, "Number of knowledge searches", UnitCount, "counter"},
	{MetricKnowledgeRebuilds, "Number of knowledge index rebuilds", UnitCount, "counter"},
	{MetricKnowledgeRebuildTime, "Duration of knowledge index rebuilds", UnitMilliseconds, "histogram"},
	{MetricKnowledgeChunks, "Number of indexed knowledge chunks", UnitCount, "gauge"},

	{MetricAssemblyRequests, "Number of context assemblies", UnitCount, "counter"},
	{MetricAssemblyDuration, "Duration of context assemblies", UnitMilliseconds, "histogram"},
	{MetricAssemblyTokens, "Estimated prompt tokens per assembly", UnitCount, "histogram"},

	{MetricSkillRuns, "Number of skill runs", UnitCount, "counter"},
	{MetricSkillParseFailures, "Number of unparsable skill results", UnitCount, "counter"},

	{MetricLLMRequests, "Number of LLM requests", UnitCount, "counter"},
	{MetricLLMRequestDuration, "Duration of LLM requests", UnitMilliseconds, "histogram"},
	{MetricLLMTokensPrompt, "Number of prompt tokens", UnitCount, "counter"},
	{MetricLLMTokensCompletion, "Number of completion tokens", UnitCount, "counter"},
	{MetricLLMTokensTotal, "Total number of tokens", UnitCount, "counter"},
	{MetricLLMErrors, "Number of LLM errors", UnitCount, "counter"},

	{MetricEmbeddingRequests, "Number of embedding requests", UnitCount, "counter"},
	{MetricEmbeddingTexts, "Number of embedded texts", UnitCount, "counter"},
	{MetricEmbeddingErrors, "Number of embedding errors", UnitCount, "counter"},
}

// LookupMetric 按名称查找预定义指标
func LookupMetric(name string) (MetricDescription, bool) {
	for _, m := range PredefinedMetrics {
		if m.Name == name {
			return m, true
		}
	}
	return MetricDescription{}, false
}
