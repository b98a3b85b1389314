package domain_test

import (
	"testing"

	"github.com/easyops/contextengine-go/pkg/domain"
)

func TestPayloadFromMeta_Empty(t *testing.T) {
	if _, ok := domain.PayloadFromMeta(nil).(domain.FreeText); !ok {
		t.Fatal("expected FreeText for nil meta")
	}
	if _, ok := domain.PayloadFromMeta(map[string]any{"foo": "bar"}).(domain.FreeText); !ok {
		t.Fatal("expected FreeText for meta without reserved keys")
	}
}

func TestPayloadFromMeta_FileRef(t *testing.T) {
	p := domain.PayloadFromMeta(map[string]any{
		"filename":                "call_0412.txt",
		"original_audio_filename": "call_0412.m4a",
		"file_path":               "/data/uploads/call_0412.txt",
	})

	f, ok := p.(domain.FileRef)
	if !ok {
		t.Fatalf("expected FileRef, got %T", p)
	}
	if f.Name != "call_0412.txt" || f.OriginalName != "call_0412.m4a" {
		t.Errorf("unexpected names: %+v", f)
	}
	if len(f.Names()) != 2 {
		t.Errorf("expected 2 names, got %v", f.Names())
	}
}

func TestPayloadFromMeta_ImportedRowFlat(t *testing.T) {
	p := domain.PayloadFromMeta(map[string]any{
		"source_token":       "https://example.feishu.cn/base/bascnABC123?table=tblXYZ",
		"source_provider_id": float64(7),
		"客户姓名":               "张三",
		"资产":                 float64(120000),
	})

	row, ok := p.(domain.ImportedRow)
	if !ok {
		t.Fatalf("expected ImportedRow, got %T", p)
	}
	if row.SourceToken != "bascnABC123" {
		t.Errorf("expected cleaned token, got %q", row.SourceToken)
	}
	if row.ProviderConfigID != 7 {
		t.Errorf("expected provider id 7, got %d", row.ProviderConfigID)
	}
	if row.Fields["客户姓名"] != "张三" || row.Fields["资产"] != "120000" {
		t.Errorf("unexpected fields: %v", row.Fields)
	}
	if _, exists := row.Fields["source_token"]; exists {
		t.Error("reserved key leaked into fields")
	}
}

func TestMetaRoundTrip_ImportedRow(t *testing.T) {
	row := domain.ImportedRow{
		SourceToken:      "tblQ3assets01",
		SourceName:       "Q3 Assets",
		ProviderConfigID: 3,
		Fields:           map[string]string{"b": "2", "a": "1"},
		FieldOrder:       []string{"b", "a"},
	}

	// JSON 往返后数字与列表都变成通用类型
	meta := domain.MetaFromPayload(row)
	meta["source_provider_id"] = float64(3)
	meta["field_order"] = []any{"b", "a"}
	fields := map[string]any{"b": "2", "a": "1"}
	meta["fields"] = fields

	got, ok := domain.PayloadFromMeta(meta).(domain.ImportedRow)
	if !ok {
		t.Fatal("expected ImportedRow")
	}
	if got.SourceName != "Q3 Assets" || got.ProviderConfigID != 3 {
		t.Errorf("unexpected row: %+v", got)
	}
	if r := got.Render("; "); r != "b: 2; a: 1" {
		t.Errorf("unexpected render %q", r)
	}
}

func TestCleanSourceToken(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"shtcnAbc", "shtcnAbc"},
		{"https://x.feishu.cn/sheets/shtcnAbc?sheet=1", "shtcnAbc"},
		{"https://x.feishu.cn/docx/doxAbc#h1", "doxAbc"},
		{"  tbl123?x=1 ", "tbl123"},
	}
	for _, tt := range tests {
		if got := domain.CleanSourceToken(tt.in); got != tt.want {
			t.Errorf("CleanSourceToken(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSourceKind(t *testing.T) {
	if !domain.KindChatUser.IsConversational() || !domain.KindAgentChatAssistant.IsConversational() {
		t.Error("chat kinds should be conversational")
	}
	if !domain.SourceKind("chat_history_ai_risk_analysis").IsConversational() {
		t.Error("skill chat kinds should be conversational")
	}
	if domain.KindManualNote.IsConversational() {
		t.Error("manual note is not conversational")
	}
	if !domain.DocumentKind("Report.PDF").IsDocumentLike() {
		t.Error("document kinds should be document-like")
	}
	if domain.DocumentKind("Report.PDF") != "document_pdf" {
		t.Errorf("unexpected document kind %q", domain.DocumentKind("Report.PDF"))
	}
	if !domain.KindAudioTranscription.IsDocumentLike() {
		t.Error("audio transcription should be document-like")
	}
}

func TestEntity_ProfileFacts(t *testing.T) {
	e := &domain.Entity{
		Name:         "张三",
		Stage:        "trust_building",
		CustomFields: map[string]string{"城市": "杭州"},
	}
	facts := e.ProfileFacts()
	if len(facts) != 3 {
		t.Fatalf("expected 3 facts, got %d", len(facts))
	}
	if facts[0].Label != "姓名" || facts[2].Label != "城市" {
		t.Errorf("unexpected order: %+v", facts)
	}
}
