package skill_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	coreerrors "github.com/easyops/contextengine-go/pkg/core/errors"
	"github.com/easyops/contextengine-go/pkg/core/llm"
	"github.com/easyops/contextengine-go/pkg/core/message"
	"github.com/easyops/contextengine-go/pkg/domain"
	"github.com/easyops/contextengine-go/pkg/skill"
	"github.com/easyops/contextengine-go/pkg/storage"
)

// scriptedProvider 返回固定内容的模型
type scriptedProvider struct {
	reply string
	err   error
	last  []message.Message
}

func (p *scriptedProvider) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	p.last = req.Messages
	if p.err != nil {
		return llm.Response{}, p.err
	}
	return llm.Response{Content: p.reply}, nil
}

func (p *scriptedProvider) GenerateStream(ctx context.Context, req llm.Request) (<-chan llm.StreamChunk, <-chan error) {
	chunks := make(chan llm.StreamChunk)
	errs := make(chan error, 1)
	close(chunks)
	errs <- errors.New("not supported")
	close(errs)
	return chunks, errs
}

func (p *scriptedProvider) Name() string  { return "scripted" }
func (p *scriptedProvider) Model() string { return "scripted" }
func (p *scriptedProvider) Close() error  { return nil }

// failingRules 读取规则总是失败
type failingRules struct{}

func (failingRules) ListRoutingRules(ctx context.Context) ([]domain.RoutingRule, error) {
	return nil, errors.New("database is locked")
}

func seed(t *testing.T, withData bool) *storage.MemoryStore {
	t.Helper()
	ctx := context.Background()
	st := storage.NewMemoryStore()
	if err := st.PutEntity(ctx, &domain.Entity{Name: "张三", Stage: "trust_building", Summary: "关注稳健收益"}); err != nil {
		t.Fatalf("PutEntity: %v", err)
	}
	if !withData {
		return st
	}
	for i, e := range []*domain.DataEntry{
		{EntityID: 1, Kind: domain.KindManualNote, Content: "客户说年底有一笔资金到期"},
		{EntityID: 1, Kind: domain.KindChatUser, Content: "收益能到多少"},
	} {
		e.CreatedAt = time.Date(2024, 6, 1+i, 9, 0, 0, 0, time.UTC)
		if err := st.AppendDataEntry(ctx, e); err != nil {
			t.Fatalf("AppendDataEntry: %v", err)
		}
	}
	return st
}

func TestRouter_BuiltInTriggers(t *testing.T) {
	r := skill.NewRouter(nil, nil)

	tests := []struct {
		query string
		want  skill.Name
		ok    bool
	}{
		{query: "帮我做个风险分析", want: skill.RiskAnalysis, ok: true},
		{query: "分析一下他的风险承受能力", want: skill.RiskAnalysis, ok: true},
		{query: "这单赢单概率多大", want: skill.DealEvaluation, ok: true},
		{query: "成功率怎么样", want: skill.DealEvaluation, ok: true},
		{query: "只有风险两个字", ok: false},
		{query: "   ", ok: false},
	}
	for _, tt := range tests {
		got, ok := r.Route(context.Background(), tt.query)
		if ok != tt.ok || got != tt.want {
			t.Errorf("Route(%q) = %q, %v; want %q, %v", tt.query, got, ok, tt.want, tt.ok)
		}
	}
}

func TestRouter_StoredRules(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemoryStore()
	for _, rule := range []*domain.RoutingRule{
		{Keyword: "跟进表", Skill: "unknown_skill"},
		{Keyword: "跟进", Skill: string(skill.DealEvaluation)},
		{Keyword: "跟进表", Skill: string(skill.RiskAnalysis)},
	} {
		if err := st.PutRoutingRule(ctx, rule); err != nil {
			t.Fatalf("PutRoutingRule: %v", err)
		}
	}
	r := skill.NewRouter(st, nil)

	// 第一条规则目标无效被跳过，第二条先于第三条命中
	if got, ok := r.Route(ctx, "看看跟进表"); !ok || got != skill.DealEvaluation {
		t.Errorf("Route() = %q, %v; want deal_evaluation", got, ok)
	}
	// 规则优先于内置触发词
	if got, _ := r.Route(ctx, "跟进情况的风险分析"); got != skill.DealEvaluation {
		t.Errorf("stored rule should win, got %q", got)
	}

	r = skill.NewRouter(failingRules{}, nil)
	if got, ok := r.Route(ctx, "风险分析"); !ok || got != skill.RiskAnalysis {
		t.Errorf("rule read failure should fall back to built-ins, got %q, %v", got, ok)
	}
}

func TestName(t *testing.T) {
	if skill.RiskAnalysis.Banner() != "【自动触发：风险分析】\n" {
		t.Errorf("Banner() = %q", skill.RiskAnalysis.Banner())
	}
	if skill.DealEvaluation.Label() != "赢单评估" {
		t.Errorf("Label() = %q", skill.DealEvaluation.Label())
	}
	if skill.Name("customer_summary").IsValid() {
		t.Error("customer_summary is not a routable skill")
	}
}

func TestNormalizeStage(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", skill.StageContactBefore},
		{"Trust_Building", skill.StageTrustBuilding},
		{"处于观望期", skill.StageTrustBuilding},
		{"犹豫中", skill.StageTrustBuilding},
		{"决策阶段", skill.StageProductMatching},
		{"商务谈判", skill.StageClosing},
		{"初次接触", skill.StageContactBefore},
		{"something else", skill.StageContactBefore},
		{"product_matching", skill.StageProductMatching},
	}
	for _, tt := range tests {
		if got := skill.NormalizeStage(tt.in); got != tt.want {
			t.Errorf("NormalizeStage(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRun(t *testing.T) {
	p := &scriptedProvider{reply: "  风险偏好偏保守  "}
	r := skill.NewRunner(p, storage.NewMemoryStore())

	out, err := r.Run(context.Background(), skill.RiskAnalysis, "客户数据")
	if err != nil || out != "风险偏好偏保守" {
		t.Fatalf("Run() = %q, %v", out, err)
	}
	if len(p.last) != 2 || !strings.Contains(p.last[1].Content, "客户背景信息：\n客户数据") {
		t.Errorf("unexpected messages %+v", p.last)
	}

	if _, err := r.Run(context.Background(), skill.Name("customer_summary"), "x"); !errors.Is(err, coreerrors.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSummarize(t *testing.T) {
	ctx := context.Background()

	t.Run("no data", func(t *testing.T) {
		p := &scriptedProvider{reply: "{}"}
		sum, err := skill.NewRunner(p, seed(t, false)).Summarize(ctx, 1)
		if err != nil {
			t.Fatalf("Summarize: %v", err)
		}
		if sum.Summary != skill.NoDataSummary || p.last != nil {
			t.Errorf("expected no model call and placeholder summary, got %+v", sum)
		}
	})

	t.Run("unparsable output kept as summary", func(t *testing.T) {
		st := seed(t, true)
		p := &scriptedProvider{reply: "客户资金年底到期，关注收益"}
		sum, err := skill.NewRunner(p, st).Summarize(ctx, 1)
		if err != nil {
			t.Fatalf("Summarize: %v", err)
		}
		if sum.Summary != p.reply || sum.Stage != "trust_building" {
			t.Errorf("unexpected summary %+v", sum)
		}
		ent, _ := st.GetEntity(ctx, 1)
		if ent.Summary != p.reply {
			t.Errorf("entity summary not stored: %q", ent.Summary)
		}
		if !strings.Contains(p.last[1].Content, "客户说年底有一笔资金到期") {
			t.Errorf("entity data missing from prompt: %q", p.last[1].Content)
		}
	})

	t.Run("model failure keeps entity", func(t *testing.T) {
		st := seed(t, true)
		sum, err := skill.NewRunner(&scriptedProvider{err: errors.New("timeout")}, st).Summarize(ctx, 1)
		if err != nil {
			t.Fatalf("Summarize: %v", err)
		}
		if !sum.Degraded || sum.Summary != "关注稳健收益" {
			t.Errorf("expected degraded previous profile, got %+v", sum)
		}
	})

	t.Run("missing entity", func(t *testing.T) {
		_, err := skill.NewRunner(&scriptedProvider{}, storage.NewMemoryStore()).Summarize(ctx, 9)
		if !errors.Is(err, coreerrors.ErrEntityNotFound) {
			t.Errorf("expected ErrEntityNotFound, got %v", err)
		}
	})
}

func TestEvaluateProgression(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		reply    string
		want     string
		degraded bool
	}{
		{
			name:  "parsed",
			reply: "```json\n{\"recommendation\":\"Recommend\",\"reason\":\"资金到位\",\"key_blockers\":[],\"next_step_suggestion\":\"约见面\"}\n```",
			want:  skill.Recommend,
		},
		{
			name:     "unknown recommendation",
			reply:    `{"recommendation":"maybe","reason":"不确定"}`,
			want:     skill.Hold,
			degraded: true,
		},
		{name: "not json", reply: "建议继续跟进", want: skill.Hold, degraded: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := skill.NewRunner(&scriptedProvider{reply: tt.reply}, seed(t, true)).EvaluateProgression(ctx, 1)
			if err != nil {
				t.Fatalf("EvaluateProgression: %v", err)
			}
			if p.Recommendation != tt.want || p.Degraded != tt.degraded {
				t.Errorf("got %+v", p)
			}
			if tt.degraded && p.KeyBlockers[0] != "系统错误" {
				t.Errorf("unexpected fallback %+v", p)
			}
		})
	}
}

func TestSuggestReply(t *testing.T) {
	ctx := context.Background()

	p := &scriptedProvider{reply: "```\n张总您好，年底到期的资金可以考虑稳健型产品\n```"}
	s, err := skill.NewRunner(p, seed(t, true)).SuggestReply(ctx, skill.ReplyRequest{EntityID: 1, Intent: "约下周见面"})
	if err != nil {
		t.Fatalf("SuggestReply: %v", err)
	}
	if !s.Degraded || s.SuggestedReply != "张总您好，年底到期的资金可以考虑稳健型产品" {
		t.Errorf("expected raw text fallback, got %+v", s)
	}
	prompt := p.last[1].Content
	for _, want := range []string{"关注稳健收益", "[chat_history_user]: 收益能到多少", "销售当前的意图是：约下周见面"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q: %q", want, prompt)
		}
	}

	p = &scriptedProvider{reply: `{"suggested_reply":"好的","rationale":"先确认","risk_alert":""}`}
	s, err = skill.NewRunner(p, seed(t, true)).SuggestReply(ctx, skill.ReplyRequest{EntityID: 1, ChatContext: "客户：在吗"})
	if err != nil || s.SuggestedReply != "好的" || s.Degraded {
		t.Fatalf("SuggestReply() = %+v, %v", s, err)
	}
	if !strings.Contains(p.last[1].Content, "最近对话：\n客户：在吗") {
		t.Errorf("chat context not used: %q", p.last[1].Content)
	}

	s, _ = skill.NewRunner(&scriptedProvider{err: errors.New("503")}, seed(t, true)).SuggestReply(ctx, skill.ReplyRequest{EntityID: 1})
	if !s.Degraded || s.SuggestedReply != "" || s.RiskAlert != "请人工撰写回复" {
		t.Errorf("unexpected failure result %+v", s)
	}
}
