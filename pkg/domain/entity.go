// Package domain 定义上下文引擎的核心数据模型
//
// 包括实体档案、实体数据条目（带类型化载荷）、对话轮次、
// 知识库文档以及话术库条目。
package domain

import (
	"sort"
	"time"
)

// Entity 表示一个被服务的实体（例如客户）及其档案
type Entity struct {
	// ID 实体标识
	ID int64 `json:"id"`
	// Name 名称
	Name string `json:"name"`
	// ContactInfo 联系方式
	ContactInfo string `json:"contact_info,omitempty"`
	// Stage 所处阶段
	Stage string `json:"stage,omitempty"`
	// RiskProfile 风险偏好
	RiskProfile string `json:"risk_profile,omitempty"`
	// Summary 画像摘要
	Summary string `json:"summary,omitempty"`
	// CustomFields 自定义字段
	CustomFields map[string]string `json:"custom_fields,omitempty"`
	// CreatedAt 创建时间
	CreatedAt time.Time `json:"created_at"`
}

// ProfileFact 档案中的一条事实
type ProfileFact struct {
	Label string
	Value string
}

// ProfileFacts 返回非空的档案事实，顺序固定
func (e *Entity) ProfileFacts() []ProfileFact {
	if e == nil {
		return nil
	}

	facts := make([]ProfileFact, 0, 5+len(e.CustomFields))
	add := func(label, value string) {
		if value != "" {
			facts = append(facts, ProfileFact{Label: label, Value: value})
		}
	}

	add("姓名", e.Name)
	add("联系方式", e.ContactInfo)
	add("阶段", e.Stage)
	add("风险偏好", e.RiskProfile)
	add("画像摘要", e.Summary)

	keys := make([]string, 0, len(e.CustomFields))
	for k := range e.CustomFields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		add(k, e.CustomFields[k])
	}

	return facts
}
