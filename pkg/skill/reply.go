package skill

import (
	"context"
	"fmt"
	"strings"

	"github.com/easyops/contextengine-go/pkg/core/message"
	"github.com/easyops/contextengine-go/pkg/domain"
	"github.com/easyops/contextengine-go/pkg/modeljson"
)

// ReplySuggestion 回复建议
type ReplySuggestion struct {
	SuggestedReply string `json:"suggested_reply"`
	Rationale      string `json:"rationale"`
	RiskAlert      string `json:"risk_alert"`
	// Degraded 模型输出无法解析，SuggestedReply 为原文
	Degraded bool `json:"-"`
}

// Validate 实现 modeljson.Validator
func (s *ReplySuggestion) Validate() error {
	if strings.TrimSpace(s.SuggestedReply) == "" {
		return fmt.Errorf("suggested_reply is empty")
	}
	return nil
}

// ReplyRequest 回复建议请求
type ReplyRequest struct {
	EntityID int64
	// Intent 销售当前的意图（可选）
	Intent string
	// ChatContext 当前对话，为空时使用实体最近的数据
	ChatContext string
}

// SuggestReply 生成给客户的回复建议
//
// 模型输出无法解析时原文作为建议回复；模型调用失败时返回 Degraded 的空建议。
// 实体不存在时返回 errors.ErrEntityNotFound。
func (r *Runner) SuggestReply(ctx context.Context, req ReplyRequest) (*ReplySuggestion, error) {
	ent, entries, err := r.loadEntity(ctx, req.EntityID)
	if err != nil {
		return nil, err
	}

	recent := strings.TrimSpace(req.ChatContext)
	if recent == "" {
		recent = r.recentContext(entries)
	}
	input := fmt.Sprintf("客户上下文：\n%s\n\n最近对话：\n%s", ent.Summary, recent)
	if intent := strings.TrimSpace(req.Intent); intent != "" {
		input += "\n\n销售当前的意图是：" + intent
	}

	raw, err := r.generate(ctx, "suggest_reply", []message.Message{
		message.NewSystemMessage(replyPrompt),
		message.NewUserMessage(input),
	})
	if err != nil {
		r.logger.Warn("reply suggestion failed", "entity_id", req.EntityID, "error", err)
		return &ReplySuggestion{
			Rationale: "AI 响应失败: " + err.Error(),
			RiskAlert: "请人工撰写回复",
			Degraded:  true,
		}, nil
	}

	s, perr := modeljson.Decode[ReplySuggestion](raw)
	if perr != nil {
		r.parseFailed(ctx, "suggest_reply", perr)
		return &ReplySuggestion{
			SuggestedReply: modeljson.StripFences(raw),
			Rationale:      "解析失败，直接显示原文",
			RiskAlert:      "请人工审核回复内容",
			Degraded:       true,
		}, nil
	}
	return &s, nil
}

// recentContext 渲染最近的若干条数据
func (r *Runner) recentContext(entries []domain.DataEntry) string {
	if len(entries) > DefaultRecentEntries {
		entries = entries[len(entries)-DefaultRecentEntries:]
	}
	var b strings.Builder
	for _, e := range entries {
		if text := strings.TrimSpace(e.Text()); text != "" {
			fmt.Fprintf(&b, "[%s]: %s\n", e.Kind, message.Truncate(text, r.entryCap))
		}
	}
	return b.String()
}
