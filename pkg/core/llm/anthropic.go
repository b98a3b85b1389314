package llm

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/easyops/contextengine-go/pkg/core/errors"
	"github.com/easyops/contextengine-go/pkg/core/message"
)

// AnthropicClient Anthropic 对话模型客户端
type AnthropicClient struct {
	client  anthropic.Client
	options *Options
}

// NewAnthropic 创建 Anthropic 客户端
func NewAnthropic(opts ...Option) (*AnthropicClient, error) {
	options := applyOptions(opts)

	if options.APIKey == "" {
		return nil, errors.ErrInvalidAPIKey
	}
	if options.Model == "" {
		options.Model = "claude-3-5-sonnet-latest"
	}
	if options.Name == "" {
		options.Name = "anthropic"
	}

	clientOpts := []option.RequestOption{
		option.WithAPIKey(options.APIKey),
		option.WithHTTPClient(options.httpClient()),
		// 重试由 retry 统一处理
		option.WithMaxRetries(0),
	}
	if options.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(options.BaseURL))
	}

	return &AnthropicClient{
		client:  anthropic.NewClient(clientOpts...),
		options: options,
	}, nil
}

// Name 返回提供商名称
func (c *AnthropicClient) Name() string {
	return c.options.Name
}

// Model 返回当前模型名称
func (c *AnthropicClient) Model() string {
	return c.options.Model
}

// Close 关闭客户端连接
func (c *AnthropicClient) Close() error {
	return nil
}

// Generate 生成响应（非流式）
func (c *AnthropicClient) Generate(ctx context.Context, req Request) (Response, error) {
	params := c.buildParams(req)

	var resp *anthropic.Message
	err := retry(ctx, c.options.MaxRetries, c.options.RetryDelay, func() error {
		var callErr error
		resp, callErr = c.client.Messages.New(ctx, params)
		return mapAnthropicError(callErr)
	})
	if err != nil {
		return Response{}, err
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	return Response{
		ID:           resp.ID,
		Content:      sb.String(),
		FinishReason: string(resp.StopReason),
		TokenUsage: message.TokenUsage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}, nil
}

// GenerateStream 生成响应（流式）
func (c *AnthropicClient) GenerateStream(ctx context.Context, req Request) (<-chan StreamChunk, <-chan error) {
	chunkChan := make(chan StreamChunk, 10)
	errChan := make(chan error, 1)

	go func() {
		defer close(chunkChan)
		defer close(errChan)

		stream := c.client.Messages.NewStreaming(ctx, c.buildParams(req))
		defer stream.Close()

		for stream.Next() {
			event := stream.Current()
			var chunk StreamChunk
			switch ev := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				delta, ok := ev.Delta.AsAny().(anthropic.TextDelta)
				if !ok || delta.Text == "" {
					continue
				}
				chunk.Content = delta.Text
			case anthropic.MessageStopEvent:
				chunk = StreamChunk{Done: true, FinishReason: "stop"}
			default:
				continue
			}

			select {
			case chunkChan <- chunk:
			case <-ctx.Done():
				errChan <- ctx.Err()
				return
			}
			if chunk.Done {
				return
			}
		}

		if err := stream.Err(); err != nil {
			errChan <- mapAnthropicError(err)
		}
	}()

	return chunkChan, errChan
}

// buildParams 构建请求参数
//
// 首条 system 消息作为 System 参数，之后出现的 system 消息按 user 消息发送。
func (c *AnthropicClient) buildParams(req Request) anthropic.MessageNewParams {
	system, msgs := splitSystemPrompt(req.Messages)

	maxTokens := c.options.MaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}
	temperature := c.options.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.options.Model),
		MaxTokens:   int64(maxTokens),
		Messages:    make([]anthropic.MessageParam, 0, len(msgs)),
		Temperature: anthropic.Float(temperature),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if req.TopP != nil {
		params.TopP = anthropic.Float(*req.TopP)
	}
	if len(req.Stop) > 0 {
		params.StopSequences = req.Stop
	}

	for _, msg := range msgs {
		block := anthropic.NewTextBlock(msg.Content)
		if msg.Role == message.RoleAssistant {
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(block))
		} else {
			params.Messages = append(params.Messages, anthropic.NewUserMessage(block))
		}
	}
	return params
}

// splitSystemPrompt 拆出首条 system 消息
func splitSystemPrompt(msgs []message.Message) (string, []message.Message) {
	if len(msgs) == 0 || msgs[0].Role != message.RoleSystem {
		return "", msgs
	}
	return msgs[0].Content, msgs[1:]
}

// mapAnthropicError 映射 Anthropic 错误到引擎错误
func mapAnthropicError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *anthropic.Error
	if stderrors.As(err, &apiErr) {
		if apiErr.StatusCode == 529 {
			return fmt.Errorf("%w: %v", errors.ErrProviderUnavailable, err)
		}
		return mapHTTPStatus(apiErr.StatusCode, err)
	}
	return errors.WrapError(err, "anthropic request failed")
}

// compile-time interface check
var _ Provider = (*AnthropicClient)(nil)
