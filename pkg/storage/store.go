// Package storage 提供实体数据、知识库和话术库的存储接口与实现
package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/easyops/contextengine-go/pkg/domain"
)

// EntityReader 实体与实体数据读取接口
type EntityReader interface {
	// GetEntity 获取实体，不存在时返回 errors.ErrEntityNotFound
	GetEntity(ctx context.Context, id int64) (*domain.Entity, error)
	// ListDataEntries 按创建时间正序返回实体的全部数据条目
	ListDataEntries(ctx context.Context, entityID int64) ([]domain.DataEntry, error)
}

// EntityLister 列出全部实体（用于从消息中识别实体）
type EntityLister interface {
	ListEntities(ctx context.Context) ([]domain.Entity, error)
}

// EntityWriter 实体与实体数据写入接口
type EntityWriter interface {
	// PutEntity 新建或更新实体，ID 为 0 时分配新 ID
	PutEntity(ctx context.Context, entity *domain.Entity) error
	// AppendDataEntry 追加数据条目并分配 ID
	AppendDataEntry(ctx context.Context, entry *domain.DataEntry) error
	// DeleteDataEntry 删除数据条目
	DeleteDataEntry(ctx context.Context, id int64) error
}

// KnowledgeReader 知识库读取接口
type KnowledgeReader interface {
	// ListKnowledgeDocuments 按 ID 升序返回全部知识库文档
	ListKnowledgeDocuments(ctx context.Context) ([]domain.KnowledgeDocument, error)
	// KnowledgeSignature 返回知识库指纹 (数量, 最大 ID)
	KnowledgeSignature(ctx context.Context) (domain.IndexSignature, error)
}

// KnowledgeWriter 知识库写入接口
type KnowledgeWriter interface {
	// PutKnowledgeDocument 新建或更新文档，ID 为 0 时分配新 ID
	PutKnowledgeDocument(ctx context.Context, doc *domain.KnowledgeDocument) error
	// DeleteKnowledgeDocument 删除文档，不存在时返回 errors.ErrDocumentNotFound
	DeleteKnowledgeDocument(ctx context.Context, id int64) error
}

// ScriptReader 话术库读取接口
type ScriptReader interface {
	ListScripts(ctx context.Context) ([]domain.Script, error)
}

// ScriptWriter 话术库写入接口
type ScriptWriter interface {
	PutScript(ctx context.Context, script *domain.Script) error
}

// AliasResolver 表格别名解析接口
type AliasResolver interface {
	// ResolveTableAlias 查找表格 token 的配置别名
	ResolveTableAlias(ctx context.Context, token string, providerConfigID int64) (string, bool)
}

// AliasWriter 表格别名写入接口
type AliasWriter interface {
	PutTableAlias(ctx context.Context, providerConfigID int64, token, name string) error
}

// RuleReader 技能路由规则读取接口
type RuleReader interface {
	// ListRoutingRules 按 ID 升序返回全部规则
	ListRoutingRules(ctx context.Context) ([]domain.RoutingRule, error)
}

// RuleWriter 技能路由规则写入接口
type RuleWriter interface {
	// PutRoutingRule 新建或更新规则，ID 为 0 时分配新 ID
	PutRoutingRule(ctx context.Context, rule *domain.RoutingRule) error
	// DeleteRoutingRule 删除规则，不存在时返回 errors.ErrDocumentNotFound
	DeleteRoutingRule(ctx context.Context, id int64) error
}

// TurnReader 对话轮次读取接口
type TurnReader interface {
	// ListConversationTurns 返回实体最近 limit 轮对话，sessionID 为空时不限会话
	ListConversationTurns(ctx context.Context, entityID int64, sessionID string, limit int) ([]domain.Turn, error)
}

// Store 完整的存储接口
type Store interface {
	EntityReader
	TurnReader
	EntityLister
	EntityWriter
	KnowledgeReader
	KnowledgeWriter
	ScriptReader
	ScriptWriter
	AliasResolver
	AliasWriter
	RuleReader
	RuleWriter
	// Close 释放资源
	Close() error
}

// 支持的存储驱动
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// Open 根据驱动名称打开存储
func Open(driver, dsn string) (Store, error) {
	switch strings.ToLower(driver) {
	case "", DriverMemory:
		return NewMemoryStore(), nil
	case DriverSQLite, "sqlite3":
		if dsn == "" {
			dsn = "contextengine.db"
		}
		return NewSQLiteStore(dsn)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", driver)
	}
}

// TurnsFromEntries 将对话类条目转换为对话轮次
//
// sessionID 非空时只保留该会话的条目；limit > 0 时只保留最近 limit 轮。
func TurnsFromEntries(entries []domain.DataEntry, sessionID string, limit int) []domain.Turn {
	turns := make([]domain.Turn, 0)
	for _, e := range domain.Chronological(entries) {
		if !e.Kind.IsConversational() {
			continue
		}
		if sessionID != "" && e.SessionID != sessionID {
			continue
		}
		if strings.TrimSpace(e.Content) == "" {
			continue
		}
		role := domain.TurnAssistant
		if e.Kind.IsUserSide() {
			role = domain.TurnUser
		}
		turns = append(turns, domain.Turn{Role: role, Content: e.Content})
	}
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return turns
}
