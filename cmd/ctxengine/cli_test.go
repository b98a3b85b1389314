package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/easyops/contextengine-go/pkg/core/llm"
	"github.com/easyops/contextengine-go/pkg/domain"
	"github.com/easyops/contextengine-go/pkg/storage"
)

func seedDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ctx.db")
	st, err := storage.NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	if err := st.PutEntity(ctx, &domain.Entity{Name: "张三", Stage: "trust_building"}); err != nil {
		t.Fatalf("PutEntity: %v", err)
	}
	row := &domain.DataEntry{
		EntityID: 1,
		Kind:     domain.KindImportedRow,
		Payload: domain.ImportedRow{
			SourceName: "客户跟进表",
			Fields:     map[string]string{"跟进日期": "2024-06-01", "备注": "已加微信"},
			FieldOrder: []string{"跟进日期", "备注"},
		},
		CreatedAt: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
	}
	if err := st.AppendDataEntry(ctx, row); err != nil {
		t.Fatalf("AppendDataEntry: %v", err)
	}
	return path
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestStructuredAndInfo(t *testing.T) {
	db := seedDB(t)

	out, err := run(t, "", "--db", db, "info", "1", "查看客户跟进表")
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if strings.TrimSpace(out) != "true" {
		t.Errorf("info = %q, want true", out)
	}

	out, err = run(t, "", "--db", db, "structured", "1", "查看客户跟进表")
	if err != nil {
		t.Fatalf("structured: %v", err)
	}
	if !strings.Contains(out, "已加微信") {
		t.Errorf("structured output missing table row: %q", out)
	}

	if _, err := run(t, "", "--db", db, "structured", "99"); err == nil {
		t.Error("expected error for unknown entity")
	}
}

func TestMatchJSON(t *testing.T) {
	db := seedDB(t)

	out, err := run(t, "", "--db", db, "--json", "match", "1", "客户跟进表的备注")
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if !strings.Contains(out, `"explicit_tables"`) || !strings.Contains(out, "客户跟进表") {
		t.Errorf("unexpected match output: %s", out)
	}
}

func TestChatStub(t *testing.T) {
	db := seedDB(t)

	out, err := run(t, "", "--db", db, "chat", "你好")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if strings.TrimSpace(out) != llm.DefaultStubReply {
		t.Errorf("chat = %q, want stub reply", out)
	}

	out, err = run(t, "", "--db", db, "chat", "--stream", "分析客户【张三】的情况")
	if err != nil {
		t.Fatalf("chat --stream: %v", err)
	}
	if !strings.HasPrefix(out, "已定位客户【张三】(ID: 1)。") {
		t.Errorf("stream output missing located prefix: %q", out)
	}
}

func TestCompressFromStdin(t *testing.T) {
	input := `[{"role":"user","content":"产品收益怎么样"},{"role":"assistant","content":"年化约三个点"},{"role":"robot","content":"丢弃"}]`

	out, err := run(t, input, "compress")
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if !strings.Contains(out, "产品收益怎么样") || !strings.Contains(out, "年化约三个点") {
		t.Errorf("compress output missing turns: %q", out)
	}
	if strings.Contains(out, "丢弃") {
		t.Errorf("invalid role should be dropped: %q", out)
	}

	if _, err := run(t, "not json", "compress"); err == nil {
		t.Error("expected decode error")
	}
}

func TestKnowledgeBaseCommands(t *testing.T) {
	db := seedDB(t)

	out, err := run(t, "", "--db", db, "kb", "add", "--title", "产品手册", "--category", "产品", "稳健型产品介绍")
	if err != nil {
		t.Fatalf("kb add: %v", err)
	}
	if strings.TrimSpace(out) != "Added document 1" {
		t.Errorf("kb add = %q", out)
	}

	if _, err := run(t, "", "--db", db, "kb", "update", "1", "--title", "产品手册 v2"); err != nil {
		t.Fatalf("kb update: %v", err)
	}

	out, err = run(t, "", "--db", db, "kb", "list")
	if err != nil {
		t.Fatalf("kb list: %v", err)
	}
	if !strings.Contains(out, "产品手册 v2") {
		t.Errorf("kb list missing updated title: %q", out)
	}

	// 没有嵌入凭证时检索返回空
	out, err = run(t, "", "--db", db, "search", "稳健")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if strings.TrimSpace(out) != "(no hits)" {
		t.Errorf("search = %q", out)
	}

	if _, err := run(t, "", "--db", db, "kb", "rm", "1"); err != nil {
		t.Fatalf("kb rm: %v", err)
	}
	out, _ = run(t, "", "--db", db, "kb", "list")
	if strings.TrimSpace(out) != "" {
		t.Errorf("kb list after rm = %q", out)
	}
}

func TestSkillCommands(t *testing.T) {
	db := seedDB(t)

	out, err := run(t, "", "--db", db, "summarize", "1")
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if !strings.Contains(out, "stage: trust_building") || !strings.Contains(out, llm.DefaultStubReply) {
		t.Errorf("summarize = %q", out)
	}

	out, err = run(t, "", "--db", db, "progression", "1")
	if err != nil {
		t.Fatalf("progression: %v", err)
	}
	if !strings.HasPrefix(out, "hold: ") || !strings.Contains(out, "  - 系统错误") {
		t.Errorf("progression = %q", out)
	}

	out, err = run(t, "", "--db", db, "--json", "reply", "1", "--intent", "约见面", "客户：在吗")
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if !strings.Contains(out, `"suggested_reply": "`+llm.DefaultStubReply+`"`) {
		t.Errorf("reply = %q", out)
	}

	if _, err := run(t, "", "--db", db, "summarize", "9"); err == nil {
		t.Error("expected error for missing entity")
	}
}

func TestRulesCommands(t *testing.T) {
	db := seedDB(t)

	out, err := run(t, "", "--db", db, "rules", "add", "跟进表", "risk_analysis")
	if err != nil {
		t.Fatalf("rules add: %v", err)
	}
	if strings.TrimSpace(out) != "Added rule 1" {
		t.Errorf("rules add = %q", out)
	}
	if _, err := run(t, "", "--db", db, "rules", "add", "跟进表", "customer_summary"); err == nil {
		t.Error("expected error for unknown skill")
	}

	out, _ = run(t, "", "--db", db, "rules", "list")
	if strings.TrimSpace(out) != "1\t跟进表\trisk_analysis" {
		t.Errorf("rules list = %q", out)
	}

	// 规则命中后回复带技能标记
	out, err = run(t, "", "--db", db, "chat", "分析客户【张三】的跟进表")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if !strings.Contains(out, "【自动触发：风险分析】") {
		t.Errorf("chat output missing skill banner: %q", out)
	}

	if _, err := run(t, "", "--db", db, "rules", "rm", "1"); err != nil {
		t.Fatalf("rules rm: %v", err)
	}
	if _, err := run(t, "", "--db", db, "rules", "rm", "1"); err == nil {
		t.Error("expected error deleting a missing rule")
	}
}

func TestHealthStub(t *testing.T) {
	out, err := run(t, "", "--db", seedDB(t), "health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if !strings.HasPrefix(out, "stub/mock healthy=true") {
		t.Errorf("health = %q", out)
	}
}

func TestParseID(t *testing.T) {
	if _, err := parseID("abc"); err == nil {
		t.Error("expected error for non-numeric id")
	}
	if _, err := parseID("0"); err == nil {
		t.Error("expected error for zero id")
	}
	if id, err := parseID("42"); err != nil || id != 42 {
		t.Errorf("parseID(42) = %d, %v", id, err)
	}
}
