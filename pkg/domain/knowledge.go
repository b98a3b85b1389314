package domain

import (
	"strings"
	"time"
)

// KnowledgeDocument 全局知识库文档
type KnowledgeDocument struct {
	ID         int64     `json:"id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	RawContent string    `json:"raw_content,omitempty"`
	Source     string    `json:"source,omitempty"`
	Category   string    `json:"category,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Body 返回用于索引的正文，Content 为空时回退到 RawContent
func (d KnowledgeDocument) Body() string {
	if strings.TrimSpace(d.Content) != "" {
		return d.Content
	}
	return d.RawContent
}

// IndexSignature 知识库指纹：文档数量与最大 ID
//
// 任一变化都意味着索引已过期。
type IndexSignature struct {
	Count int   `json:"count"`
	MaxID int64 `json:"max_id"`
}

// SignatureOf 计算文档集合的指纹
func SignatureOf(docs []KnowledgeDocument) IndexSignature {
	sig := IndexSignature{Count: len(docs)}
	for _, d := range docs {
		if d.ID > sig.MaxID {
			sig.MaxID = d.ID
		}
	}
	return sig
}

// Script 话术库条目
type Script struct {
	ID         int64     `json:"id"`
	Title      string    `json:"title"`
	Category   string    `json:"category,omitempty"`
	Filename   string    `json:"filename,omitempty"`
	Content    string    `json:"content"`
	RawContent string    `json:"raw_content,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Body 返回话术正文，Content 为空时回退到 RawContent
func (s Script) Body() string {
	if strings.TrimSpace(s.Content) != "" {
		return s.Content
	}
	return s.RawContent
}
