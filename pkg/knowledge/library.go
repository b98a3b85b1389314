package knowledge

import (
	"context"
	"strings"
	"time"

	"github.com/easyops/contextengine-go/pkg/core/errors"
	"github.com/easyops/contextengine-go/pkg/domain"
	"github.com/easyops/contextengine-go/pkg/storage"
)

// DocumentStore 知识库文档存储
type DocumentStore interface {
	storage.KnowledgeReader
	storage.KnowledgeWriter
}

// Library 知识库文档管理
//
// 所有写操作成功后都会使索引失效。
type Library struct {
	store DocumentStore
	index *Index
}

// NewLibrary 创建知识库文档管理
func NewLibrary(store DocumentStore, index *Index) *Library {
	return &Library{store: store, index: index}
}

// DocumentUpdate 文档更新内容，空字段表示不修改
type DocumentUpdate struct {
	Title    string
	Content  string
	Category string
}

// Add 新增文档
func (l *Library) Add(ctx context.Context, title, content, source, category string) (*domain.KnowledgeDocument, error) {
	if strings.TrimSpace(content) == "" {
		return nil, errors.WrapError(errors.ErrInvalidInput, "document content is empty")
	}
	if category == "" {
		category = "general"
	}
	doc := &domain.KnowledgeDocument{
		Title:     title,
		Content:   content,
		Source:    source,
		Category:  category,
		CreatedAt: time.Now(),
	}
	if err := l.store.PutKnowledgeDocument(ctx, doc); err != nil {
		return nil, err
	}
	l.invalidate()
	return doc, nil
}

// Get 按 ID 获取文档
func (l *Library) Get(ctx context.Context, id int64) (*domain.KnowledgeDocument, error) {
	docs, err := l.store.ListKnowledgeDocuments(ctx)
	if err != nil {
		return nil, err
	}
	for i := range docs {
		if docs[i].ID == id {
			return &docs[i], nil
		}
	}
	return nil, errors.ErrDocumentNotFound
}

// List 返回全部文档
func (l *Library) List(ctx context.Context) ([]domain.KnowledgeDocument, error) {
	return l.store.ListKnowledgeDocuments(ctx)
}

// Update 更新文档
func (l *Library) Update(ctx context.Context, id int64, upd DocumentUpdate) (*domain.KnowledgeDocument, error) {
	doc, err := l.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.Title != "" {
		doc.Title = upd.Title
	}
	if upd.Content != "" {
		doc.Content = upd.Content
	}
	if upd.Category != "" {
		doc.Category = upd.Category
	}
	if err := l.store.PutKnowledgeDocument(ctx, doc); err != nil {
		return nil, err
	}
	l.invalidate()
	return doc, nil
}

// Delete 删除文档
func (l *Library) Delete(ctx context.Context, id int64) error {
	if err := l.store.DeleteKnowledgeDocument(ctx, id); err != nil {
		return err
	}
	l.invalidate()
	return nil
}

func (l *Library) invalidate() {
	if l.index != nil {
		l.index.Invalidate()
	}
}
