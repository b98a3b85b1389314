package domain

import (
	"fmt"
	"strings"

	"github.com/easyops/contextengine-go/pkg/core/errors"
)

// TurnRole 对话轮次的角色，只有用户和助手两种
type TurnRole uint8

const (
	// TurnUser 用户
	TurnUser TurnRole = iota + 1
	// TurnAssistant 助手
	TurnAssistant
)

// String 返回角色名称
func (r TurnRole) String() string {
	switch r {
	case TurnUser:
		return "user"
	case TurnAssistant:
		return "assistant"
	default:
		return fmt.Sprintf("TurnRole(%d)", uint8(r))
	}
}

// Valid 是否为合法角色
func (r TurnRole) Valid() bool {
	return r == TurnUser || r == TurnAssistant
}

// ParseTurnRole 解析角色字符串，ai 视为 assistant 的别名
func ParseTurnRole(s string) (TurnRole, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "user":
		return TurnUser, nil
	case "assistant", "ai":
		return TurnAssistant, nil
	default:
		return 0, fmt.Errorf("%w: %q", errors.ErrInvalidRole, s)
	}
}

// Turn 对话中的一轮
type Turn struct {
	Role    TurnRole `json:"role"`
	Content string   `json:"content"`
}

// NewTurn 创建对话轮次，角色非法时返回 ErrInvalidRole
func NewTurn(role TurnRole, content string) (Turn, error) {
	if !role.Valid() {
		return Turn{}, fmt.Errorf("%w: %s", errors.ErrInvalidRole, role)
	}
	return Turn{Role: role, Content: content}, nil
}

// MarshalText 实现 encoding.TextMarshaler
func (r TurnRole) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: %s", errors.ErrInvalidRole, r)
	}
	return []byte(r.String()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler
func (r *TurnRole) UnmarshalText(b []byte) error {
	role, err := ParseTurnRole(string(b))
	if err != nil {
		return err
	}
	*r = role
	return nil
}
