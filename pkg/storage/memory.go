package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/easyops/contextengine-go/pkg/core/errors"
	"github.com/easyops/contextengine-go/pkg/domain"
)

// MemoryStore 内存存储
//
// 基于 map 的简单实现，适用于测试和命令行试运行。
type MemoryStore struct {
	entities  map[int64]domain.Entity
	entries   map[int64]domain.DataEntry
	documents map[int64]domain.KnowledgeDocument
	scripts   map[int64]domain.Script
	aliases   map[aliasKey]string
	rules     map[int64]domain.RoutingRule

	nextEntityID   int64
	nextEntryID    int64
	nextDocumentID int64
	nextScriptID   int64
	nextRuleID     int64

	mu sync.RWMutex
}

type aliasKey struct {
	configID int64
	token    string
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entities:  make(map[int64]domain.Entity),
		entries:   make(map[int64]domain.DataEntry),
		documents: make(map[int64]domain.KnowledgeDocument),
		scripts:   make(map[int64]domain.Script),
		aliases:   make(map[aliasKey]string),
		rules:     make(map[int64]domain.RoutingRule),
	}
}

// GetEntity 获取实体
func (s *MemoryStore) GetEntity(ctx context.Context, id int64) (*domain.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entities[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", errors.ErrEntityNotFound, id)
	}
	return &e, nil
}

// ListEntities 按 ID 升序列出实体
func (s *MemoryStore) ListEntities(ctx context.Context) ([]domain.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Entity, 0, len(s.entities))
	for _, e := range s.entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// PutEntity 新建或更新实体
func (s *MemoryStore) PutEntity(ctx context.Context, entity *domain.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entity.ID == 0 {
		s.nextEntityID++
		entity.ID = s.nextEntityID
	} else if entity.ID > s.nextEntityID {
		s.nextEntityID = entity.ID
	}
	if entity.CreatedAt.IsZero() {
		entity.CreatedAt = time.Now()
	}
	s.entities[entity.ID] = *entity
	return nil
}

// ListDataEntries 按创建时间正序返回实体数据
func (s *MemoryStore) ListDataEntries(ctx context.Context, entityID int64) ([]domain.DataEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.entities[entityID]; !ok {
		return nil, fmt.Errorf("%w: %d", errors.ErrEntityNotFound, entityID)
	}

	out := make([]domain.DataEntry, 0)
	for _, e := range s.entries {
		if e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return domain.Chronological(out), nil
}

// AppendDataEntry 追加数据条目
func (s *MemoryStore) AppendDataEntry(ctx context.Context, entry *domain.DataEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entities[entry.EntityID]; !ok {
		return fmt.Errorf("%w: %d", errors.ErrEntityNotFound, entry.EntityID)
	}
	s.nextEntryID++
	entry.ID = s.nextEntryID
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if entry.Payload == nil {
		entry.Payload = domain.FreeText{}
	}
	s.entries[entry.ID] = *entry
	return nil
}

// DeleteDataEntry 删除数据条目
func (s *MemoryStore) DeleteDataEntry(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[id]; !ok {
		return fmt.Errorf("data entry %d: %w", id, errors.ErrDocumentNotFound)
	}
	delete(s.entries, id)
	return nil
}

// ListKnowledgeDocuments 按 ID 升序返回知识库文档
func (s *MemoryStore) ListKnowledgeDocuments(ctx context.Context) ([]domain.KnowledgeDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.KnowledgeDocument, 0, len(s.documents))
	for _, d := range s.documents {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// KnowledgeSignature 返回知识库指纹
func (s *MemoryStore) KnowledgeSignature(ctx context.Context) (domain.IndexSignature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sig := domain.IndexSignature{Count: len(s.documents)}
	for id := range s.documents {
		if id > sig.MaxID {
			sig.MaxID = id
		}
	}
	return sig, nil
}

// PutKnowledgeDocument 新建或更新知识库文档
func (s *MemoryStore) PutKnowledgeDocument(ctx context.Context, doc *domain.KnowledgeDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if doc.ID == 0 {
		s.nextDocumentID++
		doc.ID = s.nextDocumentID
	} else if doc.ID > s.nextDocumentID {
		s.nextDocumentID = doc.ID
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}
	s.documents[doc.ID] = *doc
	return nil
}

// DeleteKnowledgeDocument 删除知识库文档
func (s *MemoryStore) DeleteKnowledgeDocument(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.documents[id]; !ok {
		return fmt.Errorf("%w: %d", errors.ErrDocumentNotFound, id)
	}
	delete(s.documents, id)
	return nil
}

// ListScripts 按 ID 升序返回话术
func (s *MemoryStore) ListScripts(ctx context.Context) ([]domain.Script, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Script, 0, len(s.scripts))
	for _, sc := range s.scripts {
		out = append(out, sc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// PutScript 新建或更新话术
func (s *MemoryStore) PutScript(ctx context.Context, script *domain.Script) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if script.ID == 0 {
		s.nextScriptID++
		script.ID = s.nextScriptID
	} else if script.ID > s.nextScriptID {
		s.nextScriptID = script.ID
	}
	if script.CreatedAt.IsZero() {
		script.CreatedAt = time.Now()
	}
	s.scripts[script.ID] = *script
	return nil
}

// ResolveTableAlias 查找别名：先精确匹配数据源，再匹配通配（数据源 0）
func (s *MemoryStore) ResolveTableAlias(ctx context.Context, token string, providerConfigID int64) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	token = domain.CleanSourceToken(token)
	if name, ok := s.aliases[aliasKey{providerConfigID, token}]; ok {
		return name, true
	}
	name, ok := s.aliases[aliasKey{0, token}]
	return name, ok
}

// PutTableAlias 设置表格别名
func (s *MemoryStore) PutTableAlias(ctx context.Context, providerConfigID int64, token, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.aliases[aliasKey{providerConfigID, domain.CleanSourceToken(token)}] = name
	return nil
}

// ListRoutingRules 按 ID 升序返回路由规则
func (s *MemoryStore) ListRoutingRules(ctx context.Context) ([]domain.RoutingRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.RoutingRule, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// PutRoutingRule 新建或更新路由规则
func (s *MemoryStore) PutRoutingRule(ctx context.Context, rule *domain.RoutingRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rule.ID == 0 {
		s.nextRuleID++
		rule.ID = s.nextRuleID
	} else if rule.ID > s.nextRuleID {
		s.nextRuleID = rule.ID
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now()
	}
	s.rules[rule.ID] = *rule
	return nil
}

// DeleteRoutingRule 删除路由规则
func (s *MemoryStore) DeleteRoutingRule(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[id]; !ok {
		return fmt.Errorf("routing rule %d: %w", id, errors.ErrDocumentNotFound)
	}
	delete(s.rules, id)
	return nil
}

// Close 关闭存储
func (s *MemoryStore) Close() error {
	return nil
}

// ListConversationTurns 返回实体最近的对话轮次
func (s *MemoryStore) ListConversationTurns(ctx context.Context, entityID int64, sessionID string, limit int) ([]domain.Turn, error) {
	entries, err := s.ListDataEntries(ctx, entityID)
	if err != nil {
		return nil, err
	}
	return TurnsFromEntries(entries, sessionID, limit), nil
}

// compile-time interface check
var _ Store = (*MemoryStore)(nil)
