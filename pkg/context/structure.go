package context

import (
	"sort"

	"github.com/easyops/contextengine-go/pkg/core/message"
)

// Structurer 定义把收集到的块排成消息列表的接口。
type Structurer interface {
	// Structure 返回完整的消息列表，query 总是最后一条。
	Structure(persona string, packets []*Packet, history []message.Message, query string) []message.Message
}

// DefaultStructurer 按固定顺序排列消息：人设、各上下文块、历史、查询。
type DefaultStructurer struct{}

// NewDefaultStructurer 创建新的 DefaultStructurer。
func NewDefaultStructurer() *DefaultStructurer {
	return &DefaultStructurer{}
}

// Structure 组装消息列表，空块被省略。
func (s *DefaultStructurer) Structure(persona string, packets []*Packet, history []message.Message, query string) []message.Message {
	blocks := make([]*Packet, 0, len(packets))
	for _, p := range packets {
		if !p.Empty() {
			blocks = append(blocks, p)
		}
	}
	sort.SliceStable(blocks, func(i, j int) bool {
		return blocks[i].Type.Order() < blocks[j].Type.Order()
	})

	msgs := make([]message.Message, 0, len(blocks)+len(history)+2)
	msgs = append(msgs, message.NewSystemMessage(systemPrompt(persona)))
	for _, p := range blocks {
		msgs = append(msgs, message.NewUserMessage(p.Render()).WithMetadata("block", string(p.Type)))
	}
	msgs = append(msgs, history...)
	msgs = append(msgs, message.NewUserMessage(query))
	return msgs
}

// 编译时接口检查
var _ Structurer = (*DefaultStructurer)(nil)
