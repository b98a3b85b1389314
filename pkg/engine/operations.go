package engine

import (
	"context"
	"errors"

	coreerrors "github.com/easyops/contextengine-go/pkg/core/errors"
	"github.com/easyops/contextengine-go/pkg/core/message"
	"github.com/easyops/contextengine-go/pkg/domain"
	"github.com/easyops/contextengine-go/pkg/history"
	"github.com/easyops/contextengine-go/pkg/knowledge"
	"github.com/easyops/contextengine-go/pkg/schema"
)

// RetrieveContext 返回与查询相关的实体数据渲染文本，任何失败都返回空字符串
func (e *Engine) RetrieveContext(ctx context.Context, entityID int64, query string) string {
	return e.selector.Select(ctx, entityID, query)
}

// MatchSchema 把查询与实体导入表格的表名和字段名匹配
//
// 只有实体不存在会返回错误，其他失败返回空结果。
func (e *Engine) MatchSchema(ctx context.Context, entityID int64, query string) (*schema.MatchResult, error) {
	res, err := e.matcher.Match(ctx, entityID, query)
	if err != nil {
		if errors.Is(err, coreerrors.ErrEntityNotFound) {
			return nil, err
		}
		e.logger.Warn("schema match failed", "entity_id", entityID, "error", err)
		return schema.MatchSchema(nil, query), nil
	}
	return res, nil
}

// IsInfoQuery 判断查询是否只是查看资料，而不是分析
func (e *Engine) IsInfoQuery(ctx context.Context, entityID int64, query string) bool {
	return e.matcher.IsInfoQuery(ctx, entityID, query)
}

// BuildStructuredResponse 不调用模型，直接渲染实体的档案与表格
func (e *Engine) BuildStructuredResponse(ctx context.Context, entityID int64, query string) (string, error) {
	return e.matcher.BuildStructuredResponse(ctx, entityID, query)
}

// CompressHistory 压缩对话历史，keepLast <= 0 时使用配置值
func (e *Engine) CompressHistory(ctx context.Context, turns []domain.Turn, keepLast int) []message.Message {
	return e.compressor.Compress(ctx, turns, keepLast)
}

// CompressRecords 压缩原始 {role, content} 记录，非法角色和空内容被丢弃
func (e *Engine) CompressRecords(ctx context.Context, records []history.Record, keepLast int) []message.Message {
	return e.compressor.CompressRecords(ctx, records, keepLast)
}

// SearchKnowledge 语义检索知识库，从不返回错误
func (e *Engine) SearchKnowledge(ctx context.Context, query string, k int) []knowledge.Hit {
	return e.index.Search(ctx, query, k)
}

// SearchScripts 检索话术库
func (e *Engine) SearchScripts(ctx context.Context, query string, k int) []knowledge.Hit {
	return e.scripts.Search(ctx, query, k)
}

// InvalidateKnowledgeCache 使知识库索引失效，下一次检索时重建
func (e *Engine) InvalidateKnowledgeCache() {
	e.index.Invalidate()
}

// KnowledgeState 返回知识库索引的当前状态
func (e *Engine) KnowledgeState() knowledge.State {
	return e.index.State()
}
