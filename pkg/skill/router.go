package skill

import (
	"context"
	"log/slog"
	"strings"

	"github.com/easyops/contextengine-go/pkg/storage"
)

// Name 技能名称
type Name string

const (
	// RiskAnalysis 风险偏好深度分析
	RiskAnalysis Name = "risk_analysis"
	// DealEvaluation 推进可行性研判（赢单评估）
	DealEvaluation Name = "deal_evaluation"
)

// IsValid 是否为可执行的技能
func (n Name) IsValid() bool {
	return n == RiskAnalysis || n == DealEvaluation
}

// Label 技能的中文名称
func (n Name) Label() string {
	switch n {
	case RiskAnalysis:
		return "风险分析"
	case DealEvaluation:
		return "赢单评估"
	default:
		return string(n)
	}
}

// Banner 自动触发技能时放在回复开头的标记
func (n Name) Banner() string {
	return "【自动触发：" + n.Label() + "】\n"
}

// Router 技能路由
//
// 先按存储中的规则匹配关键词（按 ID 顺序，第一条命中即返回），
// 再使用内置触发词：同时包含“风险”和“分析”时走风险分析，
// 包含“赢单”或“成功率”时走赢单评估。
type Router struct {
	rules  storage.RuleReader
	logger *slog.Logger
}

// NewRouter 创建技能路由，rules 为 nil 时只使用内置触发词
func NewRouter(rules storage.RuleReader, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{rules: rules, logger: logger}
}

// Route 返回查询触发的技能
func (r *Router) Route(ctx context.Context, query string) (Name, bool) {
	if strings.TrimSpace(query) == "" {
		return "", false
	}

	if r.rules != nil {
		rules, err := r.rules.ListRoutingRules(ctx)
		if err != nil {
			r.logger.Warn("list routing rules failed, using built-in triggers", "error", err)
		}
		for _, rule := range rules {
			if rule.Keyword == "" || !strings.Contains(query, rule.Keyword) {
				continue
			}
			name := Name(rule.Skill)
			if !name.IsValid() {
				r.logger.Warn("routing rule targets unknown skill", "rule_id", rule.ID, "skill", rule.Skill)
				continue
			}
			return name, true
		}
	}

	switch {
	case strings.Contains(query, "风险") && strings.Contains(query, "分析"):
		return RiskAnalysis, true
	case strings.Contains(query, "赢单") || strings.Contains(query, "成功率"):
		return DealEvaluation, true
	}
	return "", false
}
