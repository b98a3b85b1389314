package skill

import (
	"context"
	"fmt"
	"strings"

	"github.com/easyops/contextengine-go/pkg/core/message"
	"github.com/easyops/contextengine-go/pkg/modeljson"
)

// NoDataSummary 实体没有任何数据时的画像
const NoDataSummary = "暂无数据，无法生成画像。"

// 实体阶段
const (
	StageContactBefore   = "contact_before"
	StageTrustBuilding   = "trust_building"
	StageProductMatching = "product_matching"
	StageClosing         = "closing"
)

// stageAliases 阶段别名，按顺序匹配
var stageAliases = []struct {
	key   string
	stage string
}{
	{"contact_before", StageContactBefore},
	{"trust_building", StageTrustBuilding},
	{"product_matching", StageProductMatching},
	{"closing", StageClosing},
	{"认知", StageContactBefore},
	{"观望", StageTrustBuilding},
	{"决策", StageProductMatching},
	{"犹豫", StageTrustBuilding},
	{"初次", StageContactBefore},
	{"匹配", StageProductMatching},
	{"谈判", StageClosing},
}

// NormalizeStage 把模型或人工填写的阶段描述归一为固定的阶段标识
//
// 无法识别时返回 StageContactBefore。
func NormalizeStage(s string) string {
	t := strings.ToLower(strings.TrimSpace(s))
	if t == "" {
		return StageContactBefore
	}
	for _, a := range stageAliases {
		if strings.Contains(t, a.key) {
			return a.stage
		}
	}
	return StageContactBefore
}

// Summary 实体画像
type Summary struct {
	Stage       string `json:"stage"`
	RiskProfile string `json:"risk_profile"`
	Summary     string `json:"summary"`
	// Degraded 模型调用失败，返回的是实体原有画像
	Degraded bool `json:"-"`
}

// Validate 实现 modeljson.Validator
func (s *Summary) Validate() error {
	if strings.TrimSpace(s.Stage) == "" && strings.TrimSpace(s.Summary) == "" && strings.TrimSpace(s.RiskProfile) == "" {
		return fmt.Errorf("summary has no fields")
	}
	return nil
}

// Summarize 根据实体全部数据生成画像并写回实体
//
// 阶段经 NormalizeStage 归一；模型输出无法解析时原文作为摘要，阶段与风险偏好保持不变。
// 模型调用失败时实体不变，返回 Degraded 的原有画像。实体不存在时返回 errors.ErrEntityNotFound。
func (r *Runner) Summarize(ctx context.Context, entityID int64) (*Summary, error) {
	ent, entries, err := r.loadEntity(ctx, entityID)
	if err != nil {
		return nil, err
	}

	input := r.fullContext(entries)
	if input == "" {
		return &Summary{Stage: ent.Stage, RiskProfile: ent.RiskProfile, Summary: NoDataSummary}, nil
	}

	raw, err := r.generate(ctx, "customer_summary", []message.Message{
		message.NewSystemMessage(summaryPrompt),
		message.NewUserMessage("客户原始数据：\n" + input),
	})
	if err != nil {
		r.logger.Warn("summary generation failed", "entity_id", entityID, "error", err)
		return &Summary{Stage: ent.Stage, RiskProfile: ent.RiskProfile, Summary: ent.Summary, Degraded: true}, nil
	}

	parsed, perr := modeljson.Decode[Summary](raw)
	if perr != nil {
		r.parseFailed(ctx, "customer_summary", perr)
		ent.Summary = raw
	} else {
		ent.Summary = parsed.Summary
		if strings.TrimSpace(ent.Summary) == "" {
			ent.Summary = raw
		}
		ent.Stage = NormalizeStage(parsed.Stage)
		if rp := strings.TrimSpace(parsed.RiskProfile); rp != "" {
			ent.RiskProfile = rp
		}
	}

	if err := r.entities.PutEntity(ctx, ent); err != nil {
		r.logger.Warn("store summary failed", "entity_id", entityID, "error", err)
	}
	return &Summary{Stage: ent.Stage, RiskProfile: ent.RiskProfile, Summary: ent.Summary}, nil
}
