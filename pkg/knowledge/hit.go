package knowledge

import (
	"fmt"
	"strings"
)

// Hit 一条检索结果
type Hit struct {
	// Content 命中的文本片段
	Content string `json:"content"`
	// Source 来源，话术命中为 "sales_talk:<分类>"
	Source string `json:"source,omitempty"`
	// DocumentID 所属文档或话术 ID
	DocumentID int64 `json:"id"`
	// ChunkID 知识库分块标识，话术命中为空
	ChunkID string `json:"chunk_id,omitempty"`
	// Title 标题
	Title string `json:"title,omitempty"`
	// Category 分类
	Category string `json:"category,omitempty"`
	// Score 相关性分数
	Score float32 `json:"score"`
}

// Citation 返回用于引用的简短来源描述
func (h Hit) Citation() string {
	switch {
	case h.Title != "" && h.Source != "":
		return fmt.Sprintf("%s（%s）", h.Title, h.Source)
	case h.Title != "":
		return h.Title
	case h.Source != "":
		return h.Source
	default:
		return fmt.Sprintf("#%d", h.DocumentID)
	}
}

// FormatHits 把命中结果渲染成纯文本，每条之间用分隔线隔开
func FormatHits(hits []Hit) string {
	if len(hits) == 0 {
		return ""
	}
	var b strings.Builder
	for i, h := range hits {
		if i > 0 {
			b.WriteString("\n----\n")
		}
		fmt.Fprintf(&b, "来源: %s\n%s", h.Citation(), strings.TrimSpace(h.Content))
	}
	return b.String()
}
