package context

import (
	"strings"
	"time"
)

// PacketType 表示上下文块的类型，同时决定它在消息列表中的位置。
type PacketType string

const (
	// PacketTypeProfile 实体档案事实。
	PacketTypeProfile PacketType = "profile"

	// PacketTypeRecentLog 最近的对话流水。
	PacketTypeRecentLog PacketType = "recent_log"

	// PacketTypeKnowledge 知识库、调用方附加知识与话术命中。
	PacketTypeKnowledge PacketType = "knowledge"

	// PacketTypeRetrieval 检索选择器输出。
	PacketTypeRetrieval PacketType = "retrieval"
)

// Order 返回块在消息列表中的顺序（越小越靠前）。
func (t PacketType) Order() int {
	switch t {
	case PacketTypeProfile:
		return 2
	case PacketTypeRecentLog:
		return 3
	case PacketTypeKnowledge:
		return 4
	case PacketTypeRetrieval:
		return 5
	default:
		return 99
	}
}

// Title 返回块的标题。
func (t PacketType) Title() string {
	switch t {
	case PacketTypeProfile:
		return "【客户档案】"
	case PacketTypeRecentLog:
		return "【客户最近的聊天记录】"
	case PacketTypeKnowledge:
		return "【参考知识库】"
	case PacketTypeRetrieval:
		return "【已检索客户档案】"
	default:
		return ""
	}
}

// Packet 表示一个收集到的上下文块。
type Packet struct {
	// Type 块类型。
	Type PacketType

	// Content 正文，不含标题。
	Content string

	// Source 来源描述（例如 "knowledge"、"selector"）。
	Source string

	// Timestamp 收集时间。
	Timestamp time.Time

	// TokenCount 正文的 Token 数量，组装时计算。
	TokenCount int
}

// NewPacket 创建上下文块。
func NewPacket(t PacketType, content, source string) *Packet {
	return &Packet{
		Type:      t,
		Content:   content,
		Source:    source,
		Timestamp: time.Now(),
	}
}

// Empty 块是否没有可用内容。
func (p *Packet) Empty() bool {
	return p == nil || strings.TrimSpace(p.Content) == ""
}

// Render 返回带标题的正文。
//
// 知识块的正文自带小标题，不再加统一标题。
func (p *Packet) Render() string {
	if p.Type == PacketTypeKnowledge {
		return p.Content
	}
	return p.Type.Title() + "\n" + p.Content
}
