package context_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	agentctx "github.com/easyops/contextengine-go/pkg/context"
	coreerrors "github.com/easyops/contextengine-go/pkg/core/errors"
	"github.com/easyops/contextengine-go/pkg/core/message"
	"github.com/easyops/contextengine-go/pkg/domain"
	"github.com/easyops/contextengine-go/pkg/knowledge"
	"github.com/easyops/contextengine-go/pkg/otel"
	"github.com/easyops/contextengine-go/pkg/storage"
)

type fixedSearcher struct {
	hits []knowledge.Hit
}

func (s fixedSearcher) Search(_ context.Context, _ string, k int) []knowledge.Hit {
	if k < len(s.hits) {
		return s.hits[:k]
	}
	return s.hits
}

type fixedSelector string

func (s fixedSelector) Select(context.Context, int64, string) string { return string(s) }

type panicSelector struct{}

func (panicSelector) Select(context.Context, int64, string) string { panic("boom") }

// flakyReader 实体可读，但数据条目读取失败
type flakyReader struct {
	storage.EntityReader
}

func (flakyReader) ListDataEntries(context.Context, int64) ([]domain.DataEntry, error) {
	return nil, errors.New("disk on fire")
}

func newStore(t *testing.T) (*storage.MemoryStore, int64) {
	t.Helper()
	ctx := context.Background()
	st := storage.NewMemoryStore()
	e := &domain.Entity{Name: "王五", Stage: "观望期", RiskProfile: "稳健"}
	if err := st.PutEntity(ctx, e); err != nil {
		t.Fatalf("PutEntity: %v", err)
	}
	base := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	chat := []struct {
		kind    domain.SourceKind
		content string
	}{
		{domain.KindChatUser, "最近收益怎么样"},
		{domain.KindChatAssistant, "整体稳定"},
		{domain.KindAgentChatUser, "帮我分析一下"},
		{domain.KindAgentChatAssistant, "好的"},
	}
	for i, c := range chat {
		entry := &domain.DataEntry{EntityID: e.ID, Kind: c.kind, Content: c.content, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := st.AppendDataEntry(ctx, entry); err != nil {
			t.Fatalf("AppendDataEntry: %v", err)
		}
	}
	return st, e.ID
}

func newAssembler(entities storage.EntityReader, opts ...agentctx.AssemblerOption) *agentctx.Assembler {
	cfg := agentctx.NewConfig(agentctx.WithTokenCounter(agentctx.NewEstimatedCounter()))
	return agentctx.NewAssembler(entities, append([]agentctx.AssemblerOption{agentctx.WithConfig(cfg)}, opts...)...)
}

func blockOf(m message.Message) string {
	if m.Metadata == nil {
		return ""
	}
	s, _ := m.Metadata["block"].(string)
	return s
}

func TestAssembler_Order(t *testing.T) {
	st, id := newStore(t)
	a := newAssembler(st,
		agentctx.WithKnowledge(fixedSearcher{hits: []knowledge.Hit{{Title: "产品手册", Content: "稳健型产品介绍"}}}),
		agentctx.WithScripts(fixedSearcher{hits: []knowledge.Hit{{Source: "sales_talk:异议处理", Content: "先共情再回应"}}}),
		agentctx.WithSelector(fixedSelector("[合同.pdf (document_pdf)]\n合同正文\n----")),
	)

	history := []domain.Turn{
		{Role: domain.TurnUser, Content: "上次说到哪了"},
		{Role: domain.TurnAssistant, Content: "说到产品配置"},
	}
	msgs, err := a.Assemble(context.Background(), agentctx.Input{EntityID: id, Query: "怎么跟进", History: history})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	if len(msgs) != 8 {
		t.Fatalf("expected 8 messages, got %d", len(msgs))
	}
	if msgs[0].Role != message.RoleSystem || !strings.Contains(msgs[0].Content, agentctx.DefaultPersona) {
		t.Errorf("first message should be the persona, got %+v", msgs[0])
	}
	wantBlocks := []string{"profile", "recent_log", "knowledge", "retrieval"}
	for i, want := range wantBlocks {
		if got := blockOf(msgs[i+1]); got != want {
			t.Errorf("message %d: expected block %q, got %q", i+1, want, got)
		}
	}
	if !strings.HasPrefix(msgs[1].Content, "【客户档案】\n姓名：王五") {
		t.Errorf("unexpected profile block: %q", msgs[1].Content)
	}
	recent := msgs[2].Content
	for _, want := range []string{"【客户最近的聊天记录】", "[客户]: 最近收益怎么样", "[销售]: 整体稳定"} {
		if !strings.Contains(recent, want) {
			t.Errorf("recent log missing %q:\n%s", want, recent)
		}
	}
	if strings.Contains(recent, "帮我分析一下") || strings.Contains(recent, "好的") {
		t.Errorf("agent session entries must stay out of the recent log:\n%s", recent)
	}
	kb := msgs[3].Content
	if !strings.HasPrefix(kb, "【参考知识库】") || !strings.Contains(kb, "【参考话术库】") {
		t.Errorf("unexpected knowledge block: %q", kb)
	}
	if !strings.HasPrefix(msgs[4].Content, "【已检索客户档案】") {
		t.Errorf("unexpected retrieval block: %q", msgs[4].Content)
	}
	if msgs[5].Content != "上次说到哪了" || msgs[6].Role != message.RoleAssistant {
		t.Errorf("history not placed after blocks: %+v %+v", msgs[5], msgs[6])
	}
	last := msgs[len(msgs)-1]
	if last.Role != message.RoleUser || last.Content != "怎么跟进" {
		t.Errorf("query must be last, got %+v", last)
	}
}

func TestAssembler_OmitsEmptyBlocks(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemoryStore()
	e := &domain.Entity{}
	if err := st.PutEntity(ctx, e); err != nil {
		t.Fatalf("PutEntity: %v", err)
	}

	a := newAssembler(st, agentctx.WithSelector(fixedSelector("")))
	msgs, err := a.Assemble(ctx, agentctx.Input{EntityID: e.ID, Query: "你好"})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected persona and query only, got %d messages", len(msgs))
	}
}

func TestAssembler_EntityNotFound(t *testing.T) {
	a := newAssembler(storage.NewMemoryStore())
	_, err := a.Assemble(context.Background(), agentctx.Input{EntityID: 42, Query: "你好"})
	if !errors.Is(err, coreerrors.ErrEntityNotFound) {
		t.Fatalf("expected ErrEntityNotFound, got %v", err)
	}
}

func TestAssembler_DegradesFailingBlocks(t *testing.T) {
	st, id := newStore(t)
	a := newAssembler(flakyReader{st}, agentctx.WithSelector(panicSelector{}))

	msgs, err := a.Assemble(context.Background(), agentctx.Input{EntityID: id, Query: "怎么跟进"})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	for _, m := range msgs {
		if b := blockOf(m); b == "recent_log" || b == "retrieval" {
			t.Errorf("failed block %q should be omitted", b)
		}
	}
	if blockOf(msgs[1]) != "profile" {
		t.Errorf("profile block should survive, got %q", blockOf(msgs[1]))
	}
}

func TestAssembler_ExtraKnowledgeAndPersona(t *testing.T) {
	st, id := newStore(t)
	cfg := agentctx.NewConfig(
		agentctx.WithTokenCounter(agentctx.NewEstimatedCounter()),
		agentctx.WithPersona("你是测试助手"),
		agentctx.WithRecentLogLimit(1),
	)
	a := agentctx.NewAssembler(st, agentctx.WithConfig(cfg))

	msgs, err := a.Assemble(context.Background(), agentctx.Input{
		EntityID:       id,
		Query:          "说说产品",
		ExtraKnowledge: []string{"新品下周发布", "  "},
	})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if !strings.HasPrefix(msgs[0].Content, "你是测试助手") {
		t.Errorf("custom persona not used: %q", msgs[0].Content)
	}
	var recent, kb string
	for _, m := range msgs {
		switch blockOf(m) {
		case "recent_log":
			recent = m.Content
		case "knowledge":
			kb = m.Content
		}
	}
	if strings.Count(recent, "\n") != 1 || !strings.Contains(recent, "[销售]: 整体稳定") {
		t.Errorf("expected only the newest log entry, got %q", recent)
	}
	if kb != "【参考知识库】\n- 新品下周发布" {
		t.Errorf("unexpected knowledge block: %q", kb)
	}
}

func TestAssembler_RecordsMetrics(t *testing.T) {
	st, id := newStore(t)
	metrics := otel.NewInMemoryMetrics()
	a := newAssembler(st, agentctx.WithMetrics(metrics))

	if _, err := a.Assemble(context.Background(), agentctx.Input{EntityID: id, Query: "你好"}); err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if got := metrics.GetCounterValue(otel.MetricAssemblyRequests); got != 1 {
		t.Errorf("expected 1 assembly request, got %d", got)
	}
	if tokens := metrics.GetHistogramValues(otel.MetricAssemblyTokens); len(tokens) != 1 || tokens[0] <= 0 {
		t.Errorf("expected one positive token estimate, got %v", tokens)
	}
}
