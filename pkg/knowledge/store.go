package knowledge

import (
	"math"
	"sort"
	"sync"
)

// VectorStore 向量存储接口
type VectorStore interface {
	// Add 添加分块，ID 相同的分块被替换
	Add(chunks []Chunk)
	// Search 按余弦相似度返回 topK 个分块
	Search(query []float32, topK int) []Hit
	// Size 返回分块数量
	Size() int
}

// MemoryVectorStore 内存向量存储
//
// 分块按加入顺序保存，分数相同时先加入的排前面。
// 以分块 ID 为键，重复加入同一分块会原地替换。
type MemoryVectorStore struct {
	chunks []Chunk
	byID   map[string]int
	mu     sync.RWMutex
}

// NewMemoryVectorStore 创建内存向量存储
func NewMemoryVectorStore() *MemoryVectorStore {
	return &MemoryVectorStore{byID: make(map[string]int)}
}

// Add 添加分块
func (s *MemoryVectorStore) Add(chunks []Chunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chunks {
		if c.ID != "" {
			if i, ok := s.byID[c.ID]; ok {
				s.chunks[i] = c
				continue
			}
			s.byID[c.ID] = len(s.chunks)
		}
		s.chunks = append(s.chunks, c)
	}
}

// Search 搜索相似分块
func (s *MemoryVectorStore) Search(query []float32, topK int) []Hit {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		chunk Chunk
		score float32
	}

	candidates := make([]scored, 0, len(s.chunks))
	for _, c := range s.chunks {
		if len(c.Vector) == 0 {
			continue
		}
		candidates = append(candidates, scored{chunk: c, score: cosineSimilarity(query, c.Vector)})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	if topK > len(candidates) {
		topK = len(candidates)
	}
	hits := make([]Hit, 0, topK)
	for _, c := range candidates[:max(topK, 0)] {
		hits = append(hits, c.chunk.Hit(c.score))
	}
	return hits
}

// Size 返回分块数量
func (s *MemoryVectorStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

// cosineSimilarity 计算余弦相似度
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

var _ VectorStore = (*MemoryVectorStore)(nil)
