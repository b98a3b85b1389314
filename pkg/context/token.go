package context

import (
	"sync"
	"unicode/utf8"

	"github.com/easyops/contextengine-go/pkg/core/message"
	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter 定义 Token 计数接口。
type TokenCounter interface {
	// Count 返回给定文本的 Token 数量。
	Count(text string) int

	// CountMessages 返回消息列表的总 Token 数量，
	// 包括角色前缀和分隔符。
	CountMessages(messages []message.Message) int
}

// TiktokenCounter 使用 tiktoken 实现精确的 Token 计数。
type TiktokenCounter struct {
	encoding *tiktoken.Tiktoken
	model    string
}

// TiktokenOption 配置 TiktokenCounter。
type TiktokenOption func(*TiktokenCounter)

// WithModel 设置 Token 编码使用的模型。
func WithModel(model string) TiktokenOption {
	return func(c *TiktokenCounter) {
		c.model = model
	}
}

// NewTiktokenCounter 创建新的 TiktokenCounter。
// 模型没有对应编码时使用 cl100k_base。
func NewTiktokenCounter(opts ...TiktokenOption) (*TiktokenCounter, error) {
	c := &TiktokenCounter{
		model: "gpt-4o",
	}

	for _, opt := range opts {
		opt(c)
	}

	encoding, err := tiktoken.EncodingForModel(c.model)
	if err != nil {
		encoding, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}

	c.encoding = encoding
	return c, nil
}

// Count 返回给定文本的 Token 数量。
func (c *TiktokenCounter) Count(text string) int {
	if c.encoding == nil {
		return estimateTokens(text)
	}
	return len(c.encoding.Encode(text, nil, nil))
}

// CountMessages 返回消息列表的总 Token 数量。
// 按 OpenAI 聊天格式计入每条消息的固定开销。
func (c *TiktokenCounter) CountMessages(messages []message.Message) int {
	tokensPerMessage := 3 // <|start|>{role}\n{content}<|end|>\n

	total := 0
	for _, msg := range messages {
		total += tokensPerMessage
		total += c.Count(string(msg.Role))
		total += c.Count(msg.Content)
	}
	total += 3 // <|start|>assistant<|message|>

	return total
}

// EstimatedCounter 使用字符估算实现 Token 计数。
// 这是当 tiktoken 编码无法加载时的降级方案。
type EstimatedCounter struct {
	// CharsPerToken 是每个 Token 的平均字节数。
	// 默认值为 4，这是英文文本的合理估计。
	CharsPerToken float64
}

// NewEstimatedCounter 创建新的 EstimatedCounter。
func NewEstimatedCounter() *EstimatedCounter {
	return &EstimatedCounter{
		CharsPerToken: 4.0,
	}
}

// Count 返回估算的 Token 数量。
func (c *EstimatedCounter) Count(text string) int {
	if c.CharsPerToken <= 0 {
		c.CharsPerToken = 4.0
	}
	return int(float64(len(text)) / c.CharsPerToken)
}

// CountMessages 返回消息列表的估算 Token 数量。
func (c *EstimatedCounter) CountMessages(messages []message.Message) int {
	tokensPerMessage := 4

	total := 0
	for _, msg := range messages {
		total += tokensPerMessage
		total += c.Count(string(msg.Role))
		total += c.Count(msg.Content)
	}
	total += 3

	return total
}

// estimateTokens 编码器缺失时的估算：中日韩字符按一个 token 计，其余按 4 字节一个 token。
func estimateTokens(text string) int {
	wide, narrowBytes := 0, 0
	for _, r := range text {
		if r >= 0x2E80 {
			wide++
		} else {
			narrowBytes += utf8.RuneLen(r)
		}
	}
	return wide + narrowBytes/4
}

var (
	defaultCounterOnce sync.Once
	defaultCounter     TokenCounter
)

// DefaultTokenCounter 返回进程内共享的 TokenCounter，
// 优先使用 TiktokenCounter，如果不可用则降级到 EstimatedCounter。
func DefaultTokenCounter() TokenCounter {
	defaultCounterOnce.Do(func() {
		counter, err := NewTiktokenCounter()
		if err != nil {
			defaultCounter = NewEstimatedCounter()
			return
		}
		defaultCounter = counter
	})
	return defaultCounter
}

// 编译时接口检查
var _ TokenCounter = (*TiktokenCounter)(nil)
var _ TokenCounter = (*EstimatedCounter)(nil)
