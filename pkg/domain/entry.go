package domain

import (
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// SourceKind 数据条目的来源类型标签
type SourceKind string

const (
	// KindChatUser 用户发出的对话消息
	KindChatUser SourceKind = "chat_history_user"
	// KindChatAssistant 助手回复的对话消息
	KindChatAssistant SourceKind = "chat_history_ai"
	// KindAgentChatUser 智能体会话中的用户消息
	KindAgentChatUser SourceKind = "agent_chat_user"
	// KindAgentChatAssistant 智能体会话中的助手消息
	KindAgentChatAssistant SourceKind = "agent_chat_ai"
	// KindManualNote 手工备注
	KindManualNote SourceKind = "manual_note"
	// KindFileUpload 上传文件
	KindFileUpload SourceKind = "file_upload"
	// KindAudioTranscription 录音转写
	KindAudioTranscription SourceKind = "audio_transcription"
	// KindImportedRow 表格导入行
	KindImportedRow SourceKind = "imported_row"
)

// DocumentKind 根据文件扩展名返回文档类型标签，例如 document_pdf
func DocumentKind(filename string) SourceKind {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	if ext == "" {
		ext = "file"
	}
	return SourceKind("document_" + ext)
}

// IsConversational 是否为对话类条目
func (k SourceKind) IsConversational() bool {
	s := string(k)
	return strings.HasPrefix(s, "chat_history") || strings.HasPrefix(s, "agent_chat")
}

// IsCustomerChat 是否为与客户之间的聊天记录，不含智能体会话
func (k SourceKind) IsCustomerChat() bool {
	return k == KindChatUser || k == KindChatAssistant
}

// IsDocumentLike 是否为文档或录音类条目
func (k SourceKind) IsDocumentLike() bool {
	s := string(k)
	return strings.HasPrefix(s, "document_") ||
		strings.HasPrefix(s, "audio_") ||
		strings.HasPrefix(s, "audio_transcription")
}

// IsUserSide 对话类条目是否来自用户一侧
func (k SourceKind) IsUserSide() bool {
	return k == KindChatUser || k == KindAgentChatUser
}

// DataEntry 实体的一条数据
//
// 条目一经写入不可修改，只能删除。
type DataEntry struct {
	// ID 条目标识
	ID int64 `json:"id"`
	// EntityID 所属实体
	EntityID int64 `json:"entity_id"`
	// Kind 来源类型
	Kind SourceKind `json:"source_type"`
	// Content 文本内容
	Content string `json:"content"`
	// Payload 类型化载荷
	Payload Payload `json:"-"`
	// SessionID 所属会话（对话类条目）
	SessionID string `json:"session_id,omitempty"`
	// CreatedAt 创建时间
	CreatedAt time.Time `json:"created_at"`
}

// FileRef 返回文件载荷
func (e DataEntry) FileRef() (FileRef, bool) {
	f, ok := e.Payload.(FileRef)
	return f, ok
}

// ImportedRow 返回导入行载荷
func (e DataEntry) ImportedRow() (ImportedRow, bool) {
	r, ok := e.Payload.(ImportedRow)
	return r, ok
}

// IsFileLike 是否为文件类条目（有文件名或文档/录音类型）
func (e DataEntry) IsFileLike() bool {
	if f, ok := e.FileRef(); ok && len(f.Names()) > 0 {
		return true
	}
	return e.Kind.IsDocumentLike()
}

// DisplayName 条目的展示名称
func (e DataEntry) DisplayName() string {
	switch p := e.Payload.(type) {
	case FileRef:
		if p.OriginalName != "" {
			return p.OriginalName
		}
		if p.Name != "" {
			return p.Name
		}
	case ImportedRow:
		if p.SourceName != "" {
			return p.SourceName
		}
		if p.SourceToken != "" {
			return p.SourceToken
		}
	}
	return string(e.Kind)
}

// Text 条目的文本内容；导入行在 Content 为空时渲染字段
func (e DataEntry) Text() string {
	if strings.TrimSpace(e.Content) != "" {
		return e.Content
	}
	if r, ok := e.ImportedRow(); ok {
		return r.Render("; ")
	}
	return ""
}

// NewestFirst 返回按创建时间倒序排列的副本，时间相同时 ID 大者在前
func NewestFirst(entries []DataEntry) []DataEntry {
	out := make([]DataEntry, len(entries))
	copy(out, entries)
	sortEntries(out, func(a, b DataEntry) bool {
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
	return out
}

// Chronological 返回按创建时间正序排列的副本
func Chronological(entries []DataEntry) []DataEntry {
	out := make([]DataEntry, len(entries))
	copy(out, entries)
	sortEntries(out, func(a, b DataEntry) bool {
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return out
}

func sortEntries(entries []DataEntry, less func(a, b DataEntry) bool) {
	sort.SliceStable(entries, func(i, j int) bool {
		return less(entries[i], entries[j])
	})
}
