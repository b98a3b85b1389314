package knowledge_test

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/easyops/contextengine-go/pkg/domain"
	"github.com/easyops/contextengine-go/pkg/knowledge"
	"github.com/easyops/contextengine-go/pkg/storage"
)

func TestRankScripts_Scoring(t *testing.T) {
	scripts := []domain.Script{
		{ID: 1, Title: "异议处理", Category: "objection", Content: "客户觉得价格高时先确认预算"},
		{ID: 2, Title: "价格", Category: "price", Content: "报价话术"},
		{ID: 3, Title: "开场白", Category: "open", Content: "您好"},
	}

	hits := knowledge.RankScripts(scripts, "价格", 3)
	if len(hits) != 2 {
		t.Fatalf("expected 2 scored scripts, got %d", len(hits))
	}
	// 精确标题: 5 + 2 + 6 = 13
	if hits[0].DocumentID != 2 || hits[0].Score != 13 {
		t.Fatalf("unexpected top hit %+v", hits[0])
	}
	// 仅正文: 2.5 + 1 = 3.5
	if hits[1].DocumentID != 1 || hits[1].Score != 3.5 {
		t.Fatalf("unexpected second hit %+v", hits[1])
	}
	if hits[0].Source != "sales_talk:price" {
		t.Fatalf("unexpected source %q", hits[0].Source)
	}
	if !strings.HasPrefix(hits[0].Content, "Title: 价格\n\n") {
		t.Fatalf("unexpected content %q", hits[0].Content)
	}
}

func TestRankScripts_Snippet(t *testing.T) {
	body := strings.Repeat("前", 300) + "关键词" + strings.Repeat("后", 300)
	hits := knowledge.RankScripts([]domain.Script{{ID: 1, Title: "t", Content: body}}, "关键词", 1)
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	snip := strings.TrimPrefix(hits[0].Content, "Title: t\n\n")
	if utf8.RuneCountInString(snip) != 240 {
		t.Fatalf("expected 240-rune snippet, got %d", utf8.RuneCountInString(snip))
	}
	if !strings.HasPrefix(snip, strings.Repeat("前", 120)+"关键词") {
		t.Fatalf("snippet should start 120 runes before the hit: %q", snip[:30])
	}
}

func TestRankScripts_TokensAndLimit(t *testing.T) {
	scripts := []domain.Script{
		{ID: 1, Title: "Refund Policy", RawContent: "money back"},
		{ID: 2, Title: "Shipping", Content: "refund not applicable"},
	}
	hits := knowledge.RankScripts(scripts, "REFUND policy", 1)
	if len(hits) != 1 || hits[0].DocumentID != 1 {
		t.Fatalf("unexpected hits %+v", hits)
	}
	if got := knowledge.RankScripts(scripts, "   ", 3); len(got) != 0 {
		t.Fatalf("expected no hits for blank query, got %v", got)
	}
}

func TestScriptSearcher(t *testing.T) {
	store := storage.NewMemoryStore()
	if err := store.PutScript(context.Background(), &domain.Script{Title: "跟进", Category: "follow", Content: "三天后跟进"}); err != nil {
		t.Fatalf("PutScript: %v", err)
	}

	s := knowledge.NewScriptSearcher(store, nil)
	hits := s.Search(context.Background(), "跟进", 2)
	if len(hits) != 1 || hits[0].Title != "跟进" {
		t.Fatalf("unexpected hits %+v", hits)
	}
	if got := s.Search(context.Background(), "跟进", 0); len(got) != 0 {
		t.Fatalf("expected no hits for k=0, got %v", got)
	}
}
