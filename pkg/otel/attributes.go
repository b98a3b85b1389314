package otel

import "go.opentelemetry.io/otel/attribute"

// 预定义的语义属性键
// 遵循 OpenTelemetry 语义约定
const (
	// 实体相关属性
	AttrEntityID        = "entity.id"
	AttrEntitySessionID = "entity.session_id"

	// 检索相关属性
	AttrRetrievalCandidates = "retrieval.candidates"
	AttrRetrievalKeywordHit = "retrieval.keyword_hits"
	AttrRetrievalModelHit   = "retrieval.model_hits"
	AttrRetrievalSelected   = "retrieval.selected"
	AttrRetrievalFallback   = "retrieval.fallback"
	AttrRetrievalOverride   = "retrieval.profile_override"

	// 表结构相关属性
	AttrSchemaTable = "schema.table"
	AttrSchemaTier  = "schema.tier"

	// 历史相关属性
	AttrHistoryTurns      = "history.turns"
	AttrHistoryCompressed = "history.compressed"

	// 知识库相关属性
	AttrKnowledgeState  = "knowledge.state"
	AttrKnowledgeChunks = "knowledge.chunks"
	AttrKnowledgeTopK   = "knowledge.top_k"
	AttrKnowledgeHits   = "knowledge.hits"

	// 组装相关属性
	AttrAssemblyMessages = "assembly.messages"
	AttrAssemblyTokens   = "assembly.tokens"

	// 技能相关属性
	AttrSkillName = "skill.name"

	// LLM 相关属性
	AttrLLMProvider         = "llm.provider"
	AttrLLMModel            = "llm.model"
	AttrLLMTemperature      = "llm.temperature"
	AttrLLMMaxTokens        = "llm.max_tokens"
	AttrLLMPromptTokens     = "llm.prompt_tokens"
	AttrLLMCompletionTokens = "llm.completion_tokens"
	AttrLLMTotalTokens      = "llm.total_tokens"

	// 向量化相关属性
	AttrEmbeddingTexts = "embedding.texts"

	// Message 相关属性
	AttrMessageCount = "message.count"

	// Error 相关属性
	AttrErrorType      = "error.type"
	AttrErrorMessage   = "error.message"
	AttrErrorRetryable = "error.retryable"
)

// EntityID 创建实体 ID 属性
func EntityID(id string) attribute.KeyValue {
	return attribute.String(AttrEntityID, id)
}

// SessionID 创建会话 ID 属性
func SessionID(id string) attribute.KeyValue {
	return attribute.String(AttrEntitySessionID, id)
}

// RetrievalCounts 创建检索各阶段命中数属性
func RetrievalCounts(candidates, keyword, model, selected int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrRetrievalCandidates, candidates),
		attribute.Int(AttrRetrievalKeywordHit, keyword),
		attribute.Int(AttrRetrievalModelHit, model),
		attribute.Int(AttrRetrievalSelected, selected),
	}
}

// SchemaTable 创建表名属性
func SchemaTable(table string) attribute.KeyValue {
	return attribute.String(AttrSchemaTable, table)
}

// KnowledgeState 创建索引状态属性
func KnowledgeState(state string) attribute.KeyValue {
	return attribute.String(AttrKnowledgeState, state)
}

// SkillName 创建技能名称属性
func SkillName(name string) attribute.KeyValue {
	return attribute.String(AttrSkillName, name)
}

// LLMProvider 创建 LLM 提供商属性
func LLMProvider(provider string) attribute.KeyValue {
	return attribute.String(AttrLLMProvider, provider)
}

// LLMModel 创建 LLM 模型属性
func LLMModel(model string) attribute.KeyValue {
	return attribute.String(AttrLLMModel, model)
}

// LLMTokens 创建 LLM Token 使用属性
func LLMTokens(prompt, completion, total int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrLLMPromptTokens, prompt),
		attribute.Int(AttrLLMCompletionTokens, completion),
		attribute.Int(AttrLLMTotalTokens, total),
	}
}

// ErrorAttrs 创建错误属性
func ErrorAttrs(errType, message string, retryable bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrErrorType, errType),
		attribute.String(AttrErrorMessage, message),
		attribute.Bool(AttrErrorRetryable, retryable),
	}
}
