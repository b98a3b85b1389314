package retrieval_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/easyops/contextengine-go/pkg/core/llm"
	"github.com/easyops/contextengine-go/pkg/core/message"
	"github.com/easyops/contextengine-go/pkg/domain"
	"github.com/easyops/contextengine-go/pkg/otel"
	"github.com/easyops/contextengine-go/pkg/retrieval"
	"github.com/easyops/contextengine-go/pkg/schema"
	"github.com/easyops/contextengine-go/pkg/storage"
)

// scriptedProvider 返回预设回复并记录请求
type scriptedProvider struct {
	*llm.StubProvider

	mu    sync.Mutex
	reply string
	err   error
	calls int
	last  llm.Request
}

func newScripted(reply string, err error) *scriptedProvider {
	return &scriptedProvider{StubProvider: llm.NewStubProvider(""), reply: reply, err: err}
}

func (p *scriptedProvider) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.last = req
	if p.err != nil {
		return llm.Response{}, p.err
	}
	return llm.Response{Content: p.reply}, nil
}

func (p *scriptedProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type seed struct {
	store    *storage.MemoryStore
	entityID int64
	base     time.Time
	next     int
}

func newSeed(t *testing.T) *seed {
	t.Helper()
	st := storage.NewMemoryStore()
	e := &domain.Entity{Name: "李四"}
	if err := st.PutEntity(context.Background(), e); err != nil {
		t.Fatalf("PutEntity: %v", err)
	}
	return &seed{store: st, entityID: e.ID, base: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)}
}

// add 追加条目，后加入的条目更新
func (s *seed) add(t *testing.T, kind domain.SourceKind, content string, payload domain.Payload) int64 {
	t.Helper()
	s.next++
	entry := &domain.DataEntry{
		EntityID:  s.entityID,
		Kind:      kind,
		Content:   content,
		Payload:   payload,
		CreatedAt: s.base.Add(time.Duration(s.next) * time.Minute),
	}
	if err := s.store.AppendDataEntry(context.Background(), entry); err != nil {
		t.Fatalf("AppendDataEntry: %v", err)
	}
	return entry.ID
}

func TestSelector_KeywordThenModel(t *testing.T) {
	s := newSeed(t)
	contract := s.add(t, domain.DocumentKind("contract_2024.pdf"), "合同正文", domain.FileRef{Name: "contract_2024.pdf"})
	audio := s.add(t, domain.KindAudioTranscription, "录音转写内容", domain.FileRef{OriginalName: "call.m4a"})
	s.add(t, domain.KindChatUser, "contract_2024 聊天里也提到了", nil)

	provider := newScripted(fmt.Sprintf("```json\n{\"relevant_ids\": [\"%d\", %d, 999]}\n```", audio, contract), nil)
	sel := retrieval.NewSelector(s.store, provider, nil)

	res, err := sel.Choose(context.Background(), s.entityID, "帮我看一下 Contract_2024 和刚才的录音")
	if err != nil {
		t.Fatalf("Choose: %v", err)
	}
	if res.KeywordHits != 1 || res.ModelHits != 2 {
		t.Errorf("unexpected hit counts: keyword=%d model=%d", res.KeywordHits, res.ModelHits)
	}
	if len(res.Blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(res.Blocks))
	}
	if res.Blocks[0].EntryIDs[0] != contract || res.Blocks[1].EntryIDs[0] != audio {
		t.Errorf("expected keyword hit first, got %+v", res.Blocks)
	}
	if res.Blocks[1].Label != "call.m4a" {
		t.Errorf("expected original file name as label, got %q", res.Blocks[1].Label)
	}
	if res.Candidates != 2 {
		t.Errorf("conversational entries must not be candidates, got %d", res.Candidates)
	}
}

func TestSelector_StemNeedsMoreThanFiveChars(t *testing.T) {
	s := newSeed(t)
	s.add(t, domain.DocumentKind("plan.pdf"), "方案", domain.FileRef{Name: "plan.pdf"})
	s.add(t, domain.DocumentKind("proposal.docx"), "提案", domain.FileRef{Name: "proposal.docx"})

	sel := retrieval.NewSelector(s.store, nil, nil)
	res, err := sel.Choose(context.Background(), s.entityID, "看看 plan 和 proposal")
	if err != nil {
		t.Fatalf("Choose: %v", err)
	}
	if res.KeywordHits != 1 || len(res.Blocks) != 1 || res.Blocks[0].Label != "proposal.docx" {
		t.Errorf("expected only the long stem to match, got %+v", res)
	}
}

func TestSelector_ModelFailureFallsBackToRecentFiles(t *testing.T) {
	s := newSeed(t)
	for i := 0; i < 4; i++ {
		name := fmt.Sprintf("file%d.pdf", i)
		s.add(t, domain.DocumentKind(name), "内容"+name, domain.FileRef{Name: name})
	}
	s.add(t, domain.KindManualNote, "备注", nil)
	s.add(t, domain.KindImportedRow, "", domain.ImportedRow{SourceName: "资产表", Fields: map[string]string{"资产": "1"}})

	for name, provider := range map[string]*scriptedProvider{
		"error":   newScripted("", errors.New("boom")),
		"garbage": newScripted("I cannot help with that", nil),
		"empty":   newScripted(`{"relevant_ids": []}`, nil),
	} {
		t.Run(name, func(t *testing.T) {
			metrics := otel.NewInMemoryMetrics()
			sel := retrieval.NewSelector(s.store, provider, nil, retrieval.WithMetrics(metrics))
			res, err := sel.Choose(context.Background(), s.entityID, "怎么回复他")
			if err != nil {
				t.Fatalf("Choose: %v", err)
			}
			if !res.Fallback || len(res.Blocks) != 3 {
				t.Fatalf("expected 3 fallback blocks, got %+v", res)
			}
			want := []string{"file3.pdf", "file2.pdf", "file1.pdf"}
			for i, b := range res.Blocks {
				if b.Label != want[i] {
					t.Errorf("block %d: got %q, want %q", i, b.Label, want[i])
				}
			}
			if metrics.GetCounterValue(otel.MetricRetrievalFallbacks) != 1 {
				t.Error("expected fallback metric")
			}
		})
	}
}

func TestSelector_ProfileOverrideGroupsAllTables(t *testing.T) {
	s := newSeed(t)
	if err := s.store.PutTableAlias(context.Background(), 0, "tblAssets123456", "资产明细"); err != nil {
		t.Fatalf("PutTableAlias: %v", err)
	}
	s.add(t, domain.KindImportedRow, "", domain.ImportedRow{SourceToken: "tblAssets123456",
		Fields: map[string]string{"资产": "100"}})
	s.add(t, domain.KindImportedRow, "", domain.ImportedRow{SourceToken: "tblFollow123456", SourceName: "跟进表",
		Fields: map[string]string{"内容": "首次沟通"}})
	s.add(t, domain.KindImportedRow, "", domain.ImportedRow{SourceToken: "tblAssets123456",
		Fields: map[string]string{"资产": "200"}})
	s.add(t, domain.KindManualNote, "客户偏好稳健", nil)
	s.add(t, domain.KindChatUser, "聊天", nil)

	provider := newScripted(`{"relevant_ids": []}`, nil)
	sel := retrieval.NewSelector(s.store, provider, schema.NewTableResolver(s.store))

	res, err := sel.Choose(context.Background(), s.entityID, "评估一下这个客户的风险")
	if err != nil {
		t.Fatalf("Choose: %v", err)
	}
	if !res.Override {
		t.Fatal("expected profile override")
	}
	if provider.Calls() != 0 {
		t.Error("override must bypass model selection")
	}
	if len(res.Blocks) != 3 {
		t.Fatalf("expected 2 table blocks and 1 note block, got %+v", res.Blocks)
	}
	assets := res.Blocks[0]
	if assets.Label != "资产明细" || len(assets.EntryIDs) != 2 {
		t.Errorf("unexpected assets block %+v", assets)
	}
	if strings.Index(assets.Content, "资产: 200") > strings.Index(assets.Content, "资产: 100") {
		t.Errorf("expected newest row first, got %q", assets.Content)
	}
	if res.Blocks[1].Label != "跟进表" || res.Blocks[2].Kind != domain.KindManualNote {
		t.Errorf("unexpected block order %+v", res.Blocks)
	}
}

func TestSelector_TriggeredQueryNamingAFile(t *testing.T) {
	s := newSeed(t)
	contract := s.add(t, domain.DocumentKind("contract_v2.pdf"), "第二版合同正文", domain.FileRef{Name: "contract_v2.pdf"})
	s.add(t, domain.KindImportedRow, "", domain.ImportedRow{SourceName: "跟进表", Fields: map[string]string{"内容": "已寄送合同"}})
	note := s.add(t, domain.KindManualNote, "客户对违约条款有疑问", nil)

	provider := newScripted(`[]`, nil)
	sel := retrieval.NewSelector(s.store, provider, nil)

	res, err := sel.Choose(context.Background(), s.entityID, "分析 contract_v2 这份合同")
	if err != nil {
		t.Fatalf("Choose: %v", err)
	}
	if !res.Override || res.Fallback {
		t.Fatalf("expected profile override, got %+v", res)
	}
	if provider.Calls() != 0 {
		t.Error("override must bypass model selection")
	}
	if res.KeywordHits != 1 || len(res.Blocks) != 3 {
		t.Fatalf("expected named file plus 2 blocks, got %+v", res)
	}
	if res.Blocks[0].Label != "contract_v2.pdf" || res.Blocks[0].EntryIDs[0] != contract {
		t.Errorf("named file should lead, got %+v", res.Blocks[0])
	}
	if res.Blocks[1].Label != "跟进表" || res.Blocks[2].EntryIDs[0] != note {
		t.Errorf("unexpected block order %+v", res.Blocks)
	}

	out := sel.Select(context.Background(), s.entityID, "分析 contract_v2 这份合同")
	if strings.Count(out, "第二版合同正文") != 1 {
		t.Errorf("named file should be rendered once, got %q", out)
	}
}

func TestSelector_RowsOnlyReachTriggeredQueries(t *testing.T) {
	s := newSeed(t)
	s.add(t, domain.KindImportedRow, "", domain.ImportedRow{SourceName: "资产表", Fields: map[string]string{"资产": "1"}})

	sel := retrieval.NewSelector(s.store, newScripted(`{"relevant_ids": []}`, nil), nil)

	res, err := sel.Choose(context.Background(), s.entityID, "怎么回复他")
	if err != nil {
		t.Fatalf("Choose: %v", err)
	}
	if res.Fallback || len(res.Blocks) != 0 {
		t.Errorf("imported rows must not be a fallback for plain queries, got %+v", res)
	}

	res, err = sel.Choose(context.Background(), s.entityID, "总结一下他的资产")
	if err != nil {
		t.Fatalf("Choose: %v", err)
	}
	if !res.Override || len(res.Blocks) != 1 || res.Blocks[0].Label != "资产表" {
		t.Errorf("triggered query should see the rows, got %+v", res)
	}
}

func TestSelector_CandidateCap(t *testing.T) {
	s := newSeed(t)
	s.add(t, domain.DocumentKind("oldest.pdf"), "旧文件", domain.FileRef{Name: "oldest.pdf"})
	for i := 0; i < 35; i++ {
		s.add(t, domain.KindManualNote, fmt.Sprintf("备注 %d", i), nil)
	}

	provider := newScripted(`{"relevant_ids": []}`, nil)
	sel := retrieval.NewSelector(s.store, provider, nil)
	res, err := sel.Choose(context.Background(), s.entityID, "oldest.pdf 里写了什么")
	if err != nil {
		t.Fatalf("Choose: %v", err)
	}
	if res.Candidates != retrieval.DefaultMaxCandidates {
		t.Errorf("expected %d candidates, got %d", retrieval.DefaultMaxCandidates, res.Candidates)
	}
	if res.KeywordHits != 0 {
		t.Error("entries beyond the candidate cap must not be keyword matched")
	}

	prompt := provider.last.Messages[len(provider.last.Messages)-1].Content
	if got := strings.Count(prompt, "ID: "); got != retrieval.DefaultMaxCandidates {
		t.Errorf("expected %d candidate lines, got %d", retrieval.DefaultMaxCandidates, got)
	}
	if provider.last.Messages[0].Role != message.RoleSystem {
		t.Error("expected system instruction first")
	}
}

func TestSelector_SelectRendersAndTruncates(t *testing.T) {
	s := newSeed(t)
	long := strings.Repeat("字", 120)
	s.add(t, domain.DocumentKind("big.txt"), long, domain.FileRef{Name: "big.txt"})

	sel := retrieval.NewSelector(s.store, nil, nil, retrieval.WithContentCap(100))
	out := sel.Select(context.Background(), s.entityID, "big.txt")

	if !strings.HasPrefix(out, "[big.txt (document_txt)]\n") {
		t.Errorf("unexpected header: %q", out)
	}
	if !strings.HasSuffix(out, message.TruncationMarker+"\n----") {
		t.Errorf("expected truncation marker before separator, got %q", out[len(out)-40:])
	}
}

func TestSelector_DegradesToEmpty(t *testing.T) {
	s := newSeed(t)
	s.add(t, domain.DocumentKind("a.pdf"), "x", domain.FileRef{Name: "a.pdf"})

	metrics := otel.NewInMemoryMetrics()
	sel := retrieval.NewSelector(s.store, nil, nil, retrieval.WithMetrics(metrics))
	if out := sel.Select(context.Background(), 404, "a.pdf"); out != "" {
		t.Errorf("unknown entity should yield empty output, got %q", out)
	}
	if metrics.GetCounterValue(otel.MetricRetrievalErrors) != 1 {
		t.Error("expected degraded retrieval to be counted")
	}

	panicking := retrieval.NewSelector(panicReader{}, nil, nil)
	if out := panicking.Select(context.Background(), 1, "a.pdf"); out != "" {
		t.Errorf("panic should yield empty output, got %q", out)
	}
}

func TestSelector_NoEntries(t *testing.T) {
	s := newSeed(t)
	sel := retrieval.NewSelector(s.store, newScripted("", nil), nil)
	if out := sel.Select(context.Background(), s.entityID, "分析风险"); out != "" {
		t.Errorf("expected empty output, got %q", out)
	}
}

type panicReader struct{}

func (panicReader) GetEntity(ctx context.Context, id int64) (*domain.Entity, error) {
	panic("storage exploded")
}

func (panicReader) ListDataEntries(ctx context.Context, entityID int64) ([]domain.DataEntry, error) {
	panic("storage exploded")
}
