package schema

import (
	"context"
	"strconv"
)

// IsInfoQuery 判断查询是否在索取原始结构化数据，而不是要一段分析
//
// 画像/分析触发词优先：出现触发词时总是返回 false。
// 否则提到档案基本字段、使用索取资料的说法或表结构有任何命中时返回 true。
// 匹配出错时视为非资料查询。
func (m *Matcher) IsInfoQuery(ctx context.Context, entityID int64, query string) bool {
	if HasAnalysisTrigger(query) {
		return false
	}
	if MentionsProfileField(query) || HasInfoPhrase(query) {
		return true
	}
	res, err := m.Match(ctx, entityID, query)
	if err != nil {
		m.logger.Debug("schema match failed during info classification", "entity_id", entityID, "error", err)
		return false
	}
	return res.HasHit()
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
