package knowledge

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"unicode"

	"github.com/easyops/contextengine-go/pkg/domain"
	"github.com/easyops/contextengine-go/pkg/storage"
)

// 话术检索打分权重
const (
	scoreQueryInTitle = 5.0
	scoreQueryInBody  = 2.5
	scoreTokenInTitle = 2.0
	scoreTokenInBody  = 1.0
	scoreExactTitle   = 6.0
)

// 话术摘录窗口（字符）
const (
	snippetLead  = 120
	snippetWidth = 240
)

// ScriptSearcher 话术库词法检索
type ScriptSearcher struct {
	reader storage.ScriptReader
	logger *slog.Logger
}

// NewScriptSearcher 创建话术检索器
func NewScriptSearcher(reader storage.ScriptReader, logger *slog.Logger) *ScriptSearcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &ScriptSearcher{reader: reader, logger: logger}
}

// Search 按关键词打分返回前 k 条话术
//
// 读取失败时记录日志并返回空切片。
func (s *ScriptSearcher) Search(ctx context.Context, query string, k int) []Hit {
	hits := []Hit{}
	q := strings.TrimSpace(query)
	if q == "" || k <= 0 || s.reader == nil {
		return hits
	}

	scripts, err := s.reader.ListScripts(ctx)
	if err != nil {
		s.logger.Warn("list scripts failed", "error", err)
		return hits
	}
	return RankScripts(scripts, q, k)
}

// RankScripts 对话术打分排序并截取摘录
func RankScripts(scripts []domain.Script, query string, k int) []Hit {
	ql := lower(strings.TrimSpace(query))
	if ql == "" || k <= 0 {
		return []Hit{}
	}
	tokens := strings.Fields(ql)

	type scored struct {
		script domain.Script
		score  float64
	}
	var ranked []scored
	for _, sc := range scripts {
		tl := lower(strings.TrimSpace(sc.Title))
		bl := lower(strings.TrimSpace(sc.Body()))

		var score float64
		if strings.Contains(tl, ql) {
			score += scoreQueryInTitle
		}
		if strings.Contains(bl, ql) {
			score += scoreQueryInBody
		}
		for _, tok := range tokens {
			if strings.Contains(tl, tok) {
				score += scoreTokenInTitle
			}
			if strings.Contains(bl, tok) {
				score += scoreTokenInBody
			}
		}
		if tl == ql {
			score += scoreExactTitle
		}
		if score > 0 {
			ranked = append(ranked, scored{script: sc, score: score})
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})
	if len(ranked) > k {
		ranked = ranked[:k]
	}

	hits := make([]Hit, 0, len(ranked))
	for _, r := range ranked {
		hits = append(hits, Hit{
			Content:    "Title: " + r.script.Title + "\n\n" + snippet(r.script.Body(), ql, tokens),
			Source:     "sales_talk:" + r.script.Category,
			DocumentID: r.script.ID,
			Title:      r.script.Title,
			Category:   r.script.Category,
			Score:      float32(r.score),
		})
	}
	return hits
}

// snippet 截取首个命中位置前 120 字起、共 240 字的片段
func snippet(body, ql string, tokens []string) string {
	runes := []rune(body)
	lowered := []rune(lower(body))

	pos := runeIndex(lowered, []rune(ql))
	if pos < 0 {
		for _, tok := range tokens {
			if pos = runeIndex(lowered, []rune(tok)); pos >= 0 {
				break
			}
		}
	}

	start := 0
	if pos >= 0 {
		start = max(0, pos-snippetLead)
	}
	end := min(len(runes), start+snippetWidth)
	return string(runes[start:end])
}

// lower 逐字符转小写，保持字符数不变
func lower(s string) string {
	return strings.Map(unicode.ToLower, s)
}

// runeIndex 返回 sub 在 s 中首次出现的字符下标
func runeIndex(s, sub []rune) int {
	if len(sub) == 0 {
		return -1
	}
	for i := 0; i+len(sub) <= len(s); i++ {
		match := true
		for j := range sub {
			if s[i+j] != sub[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
