package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	coreerrors "github.com/easyops/contextengine-go/pkg/core/errors"
	"github.com/easyops/contextengine-go/pkg/core/llm"
	"github.com/easyops/contextengine-go/pkg/domain"
	"github.com/easyops/contextengine-go/pkg/knowledge"
	"github.com/easyops/contextengine-go/pkg/skill"
)

// RouteSkill 判断查询是否触发自动技能
func (e *Engine) RouteSkill(ctx context.Context, query string) (skill.Name, bool) {
	return e.router.Route(ctx, query)
}

// AddRoutingRule 新增一条关键词路由规则
func (e *Engine) AddRoutingRule(ctx context.Context, keyword string, name skill.Name) (*domain.RoutingRule, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, fmt.Errorf("empty keyword: %w", coreerrors.ErrInvalidInput)
	}
	if !name.IsValid() {
		return nil, fmt.Errorf("unknown skill %q: %w", name, coreerrors.ErrInvalidInput)
	}
	rule := &domain.RoutingRule{Keyword: keyword, Skill: string(name), CreatedAt: time.Now()}
	if err := e.store.PutRoutingRule(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

// CheckHealth 检查当前模型端点是否可用
func (e *Engine) CheckHealth(ctx context.Context, timeout time.Duration) llm.HealthStatus {
	return llm.CheckHealth(ctx, e.provider, timeout)
}

// Summarize 生成实体画像并写回实体，唯一返回的错误是 errors.ErrEntityNotFound
func (e *Engine) Summarize(ctx context.Context, entityID int64) (*skill.Summary, error) {
	return e.skills.Summarize(ctx, entityID)
}

// EvaluateProgression 判断是否适合推进成交，唯一返回的错误是 errors.ErrEntityNotFound
func (e *Engine) EvaluateProgression(ctx context.Context, entityID int64) (*skill.Progression, error) {
	return e.skills.EvaluateProgression(ctx, entityID)
}

// SuggestReply 生成给客户的回复建议，唯一返回的错误是 errors.ErrEntityNotFound
func (e *Engine) SuggestReply(ctx context.Context, req skill.ReplyRequest) (*skill.ReplySuggestion, error) {
	return e.skills.SuggestReply(ctx, req)
}

// skillInput 技能的客户背景：会话历史、检索到的实体数据、知识库与话术库参考
func (e *Engine) skillInput(ctx context.Context, entityID int64, query string, turns []domain.Turn) string {
	var parts []string
	if len(turns) > 0 {
		var b strings.Builder
		for _, t := range turns {
			who := "销售"
			if t.Role == domain.TurnAssistant {
				who = "助手"
			}
			b.WriteString("[" + who + "]: " + strings.TrimSpace(t.Content) + "\n")
		}
		parts = append(parts, "【会话记录】\n"+strings.TrimRight(b.String(), "\n"))
	}
	if retrieved := e.selector.Select(ctx, entityID, query); retrieved != "" {
		parts = append(parts, retrieved)
	}
	cfg := e.assembler.Config()
	if hits := knowledge.FormatHits(e.index.Search(ctx, query, cfg.KnowledgeTopK)); hits != "" {
		parts = append(parts, "【相关知识库参考】\n"+hits)
	}
	if hits := knowledge.FormatHits(e.scripts.Search(ctx, query, cfg.ScriptTopK)); hits != "" {
		parts = append(parts, "【相关话术库参考】\n"+hits)
	}
	return strings.Join(parts, "\n\n")
}
