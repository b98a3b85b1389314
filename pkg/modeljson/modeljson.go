// Package modeljson 将模型输出的文本解析为类型化结果
//
// 模型经常在 JSON 外包裹 Markdown 代码块或解释性文字。解析分为
// 去除代码块、截取 JSON、反序列化、校验四个阶段，任一阶段失败都返回
// 带阶段信息的 *ParseError，调用方据此决定降级策略。
package modeljson

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/easyops/contextengine-go/pkg/core/errors"
)

// Stage 解析阶段
type Stage string

const (
	// StageEmpty 输出为空
	StageEmpty Stage = "empty"
	// StageExtract 未找到完整的 JSON
	StageExtract Stage = "extract"
	// StageDecode 反序列化失败
	StageDecode Stage = "decode"
	// StageValidate 校验失败
	StageValidate Stage = "validate"
)

// ParseError 模型输出解析错误
type ParseError struct {
	// Stage 失败阶段
	Stage Stage
	// Raw 原始输出（截断至 200 字符）
	Raw string
	// Err 底层错误
	Err error
}

// Error 实现 error 接口
func (e *ParseError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("model output parse failed at %s stage", e.Stage)
	}
	return fmt.Sprintf("model output parse failed at %s stage: %v", e.Stage, e.Err)
}

// Unwrap 返回底层错误
func (e *ParseError) Unwrap() error {
	return e.Err
}

// Is 使 errors.Is(err, errors.ErrInvalidResponse) 成立
func (e *ParseError) Is(target error) bool {
	return target == errors.ErrInvalidResponse
}

// Validator 可选的校验接口，解码后调用
type Validator interface {
	Validate() error
}

// Decode 将模型输出解析为 T
//
// 返回的错误总是 *ParseError。
func Decode[T any](text string) (T, error) {
	var zero T

	if strings.TrimSpace(text) == "" {
		return zero, &ParseError{Stage: StageEmpty}
	}

	raw, ok := Extract(text)
	if !ok {
		return zero, &ParseError{Stage: StageExtract, Raw: truncate(text), Err: fmt.Errorf("no complete JSON value found")}
	}

	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return zero, &ParseError{Stage: StageDecode, Raw: truncate(raw), Err: err}
	}

	if val, ok := any(&v).(Validator); ok {
		if err := val.Validate(); err != nil {
			return zero, &ParseError{Stage: StageValidate, Raw: truncate(raw), Err: err}
		}
	}

	return v, nil
}

// StripFences 去除 Markdown 代码块标记
func StripFences(text string) string {
	text = strings.TrimSpace(text)
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```JSON", "")
	text = strings.ReplaceAll(text, "```", "")
	return strings.TrimSpace(text)
}

// Extract 截取文本中第一个完整的 JSON 对象或数组
func Extract(text string) (string, bool) {
	text = StripFences(text)

	start := strings.IndexAny(text, "{[")
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escape := false

	for i := start; i < len(text); i++ {
		c := text[i]

		if escape {
			escape = false
			continue
		}
		if c == '\\' {
			escape = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch c {
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}

	return "", false
}

func truncate(s string) string {
	const limit = 200
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}
