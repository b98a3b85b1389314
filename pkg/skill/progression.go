package skill

import (
	"context"
	"fmt"
	"strings"

	"github.com/easyops/contextengine-go/pkg/core/message"
	"github.com/easyops/contextengine-go/pkg/modeljson"
)

// 推进建议
const (
	Recommend = "recommend"
	Hold      = "hold"
	Stop      = "stop"
)

// Progression 推进研判结果
type Progression struct {
	Recommendation string   `json:"recommendation"`
	Reason         string   `json:"reason"`
	KeyBlockers    []string `json:"key_blockers"`
	NextStep       string   `json:"next_step_suggestion"`
	// Degraded 模型调用或解析失败，结果为保守的默认值
	Degraded bool `json:"-"`
}

// Validate 实现 modeljson.Validator
func (p *Progression) Validate() error {
	p.Recommendation = strings.ToLower(strings.TrimSpace(p.Recommendation))
	switch p.Recommendation {
	case Recommend, Hold, Stop:
	default:
		return fmt.Errorf("unknown recommendation %q", p.Recommendation)
	}
	if p.KeyBlockers == nil {
		p.KeyBlockers = []string{}
	}
	return nil
}

// heldProgression 无法研判时的默认结果
func heldProgression() *Progression {
	return &Progression{
		Recommendation: Hold,
		Reason:         "AI 解析响应失败，建议人工判断",
		KeyBlockers:    []string{"系统错误"},
		NextStep:       "检查日志",
		Degraded:       true,
	}
}

// EvaluateProgression 判断现在是否适合推进成交
//
// 模型调用或解析失败时返回 hold 的默认结果。实体不存在时返回 errors.ErrEntityNotFound。
func (r *Runner) EvaluateProgression(ctx context.Context, entityID int64) (*Progression, error) {
	_, entries, err := r.loadEntity(ctx, entityID)
	if err != nil {
		return nil, err
	}

	raw, err := r.generate(ctx, "evaluate_progression", []message.Message{
		message.NewSystemMessage(progressionPrompt),
		message.NewUserMessage("客户全量数据：\n" + r.fullContext(entries)),
	})
	if err != nil {
		r.logger.Warn("progression evaluation failed", "entity_id", entityID, "error", err)
		return heldProgression(), nil
	}

	p, err := modeljson.Decode[Progression](raw)
	if err != nil {
		r.parseFailed(ctx, "evaluate_progression", err)
		return heldProgression(), nil
	}
	return &p, nil
}
