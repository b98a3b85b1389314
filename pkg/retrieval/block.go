package retrieval

import (
	"fmt"
	"strings"

	"github.com/easyops/contextengine-go/pkg/core/message"
	"github.com/easyops/contextengine-go/pkg/domain"
)

// blockSeparator 每个文本块的结束行
const blockSeparator = "----"

// Block 一个渲染单元：单个条目或一张表格的全部行
type Block struct {
	// Label 展示名称（文件名或表名）
	Label string `json:"label"`
	// Kind 来源类型
	Kind domain.SourceKind `json:"kind"`
	// Content 正文
	Content string `json:"content"`
	// EntryIDs 组成该块的条目
	EntryIDs []int64 `json:"entry_ids"`
}

// Render 渲染为 "[label (kind)]" 开头、"----" 结尾的文本，正文超过 limit 字符时截断
func (b Block) Render(limit int) string {
	return fmt.Sprintf("[%s (%s)]\n%s\n%s", b.Label, b.Kind, message.Truncate(b.Content, limit), blockSeparator)
}

// RenderBlocks 按顺序渲染全部文本块
func RenderBlocks(blocks []Block, limit int) string {
	if len(blocks) == 0 {
		return ""
	}
	parts := make([]string, len(blocks))
	for i, b := range blocks {
		parts[i] = b.Render(limit)
	}
	return strings.Join(parts, "\n")
}
