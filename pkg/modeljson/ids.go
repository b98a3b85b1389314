package modeljson

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// IDSelection 模型返回的条目 ID 列表
//
// 接受裸数组 [1, 2] 或对象 {"relevant_ids": [1, 2]}；
// 元素可以是数字或数字字符串，无法识别的元素被忽略。
type IDSelection struct {
	IDs []int64
}

// UnmarshalJSON 实现 json.Unmarshaler
func (s *IDSelection) UnmarshalJSON(b []byte) error {
	trimmed := strings.TrimSpace(string(b))
	if trimmed == "" || trimmed == "null" {
		return fmt.Errorf("empty id selection")
	}

	var items []json.RawMessage
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(b, &items); err != nil {
			return err
		}
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(b, &obj); err != nil {
			return err
		}
		raw, ok := obj["relevant_ids"]
		if !ok {
			raw, ok = obj["ids"]
		}
		if !ok {
			return fmt.Errorf("object has no relevant_ids field")
		}
		if err := json.Unmarshal(raw, &items); err != nil {
			return fmt.Errorf("relevant_ids is not a list: %w", err)
		}
	default:
		return fmt.Errorf("unexpected id selection shape")
	}

	s.IDs = make([]int64, 0, len(items))
	for _, item := range items {
		if id, ok := parseID(item); ok {
			s.IDs = append(s.IDs, id)
		}
	}
	return nil
}

// Validate 拒绝负数 ID
func (s *IDSelection) Validate() error {
	for _, id := range s.IDs {
		if id < 0 {
			return fmt.Errorf("negative id %d", id)
		}
	}
	return nil
}

func parseID(raw json.RawMessage) (int64, bool) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if id, err := n.Int64(); err == nil {
			return id, true
		}
		return 0, false
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		return id, err == nil
	}
	return 0, false
}
