package knowledge

import (
	"strconv"
	"strings"

	"github.com/easyops/contextengine-go/pkg/domain"
	"github.com/google/uuid"
)

// 默认分块参数（按字符计）
const (
	DefaultChunkSize    = 800
	DefaultChunkOverlap = 100
)

// Chunk 知识库文档分块
type Chunk struct {
	// ID 分块唯一标识，由文档 ID 与序号确定性生成
	ID string
	// DocumentID 所属文档 ID
	DocumentID int64
	// Index 分块在文档中的序号
	Index int
	// Content 分块内容
	Content string
	// Title 文档标题
	Title string
	// Source 文档来源
	Source string
	// Category 文档分类
	Category string
	// Vector 嵌入向量
	Vector []float32
}

// Hit 把分块转换为检索结果
func (c Chunk) Hit(score float32) Hit {
	return Hit{
		Content:    c.Content,
		Source:     c.Source,
		DocumentID: c.DocumentID,
		ChunkID:    c.ID,
		Title:      c.Title,
		Category:   c.Category,
		Score:      score,
	}
}

// Chunker 文档分块器接口
type Chunker interface {
	// Chunk 将文档分割成块
	Chunk(doc domain.KnowledgeDocument) []Chunk
}

// WindowChunker 固定窗口分块器
//
// 按字符（rune）向前扫描，窗口大小 Size，相邻块重叠 Overlap。
// 最后一块可以更短，不会越过文档末尾。
type WindowChunker struct {
	Size    int
	Overlap int
}

// NewWindowChunker 创建固定窗口分块器，非法参数回退到默认值
func NewWindowChunker(size, overlap int) WindowChunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	return WindowChunker{Size: size, Overlap: overlap}
}

// Chunk 将文档分割成块
func (c WindowChunker) Chunk(doc domain.KnowledgeDocument) []Chunk {
	body := doc.Body()
	if strings.TrimSpace(body) == "" {
		return nil
	}

	chunker := NewWindowChunker(c.Size, c.Overlap)
	windows := splitWindows([]rune(body), chunker.Size, chunker.Overlap)

	chunks := make([]Chunk, 0, len(windows))
	for _, w := range windows {
		if strings.TrimSpace(w) == "" {
			continue
		}
		idx := len(chunks)
		chunks = append(chunks, Chunk{
			ID:         chunkID(doc.ID, idx),
			DocumentID: doc.ID,
			Index:      idx,
			Content:    w,
			Title:      doc.Title,
			Source:     doc.Source,
			Category:   doc.Category,
		})
	}
	return chunks
}

// splitWindows 切出全部窗口
func splitWindows(runes []rune, size, overlap int) []string {
	var out []string
	step := size - overlap
	for start := 0; start < len(runes); start += step {
		end := min(start+size, len(runes))
		out = append(out, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return out
}

// chunkID 生成分块 ID
func chunkID(docID int64, index int) string {
	name := strconv.FormatInt(docID, 10) + ":" + strconv.Itoa(index)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}
