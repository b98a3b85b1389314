package domain

import "time"

// RoutingRule 关键词路由规则：消息包含 Keyword 时交给 Skill 处理
type RoutingRule struct {
	ID        int64     `json:"id"`
	Keyword   string    `json:"keyword"`
	Skill     string    `json:"skill"`
	CreatedAt time.Time `json:"created_at"`
}
