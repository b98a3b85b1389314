package llm

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/easyops/contextengine-go/pkg/core/errors"
	"github.com/easyops/contextengine-go/pkg/core/message"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient OpenAI 兼容客户端
//
// 同时作为对话模型与批量嵌入服务使用。DeepSeek、通义千问兼容模式、豆包等
// 通过 BaseURL 复用同一实现。
type OpenAIClient struct {
	client  *openai.Client
	options *Options
}

// NewOpenAI 创建 OpenAI 兼容客户端
func NewOpenAI(opts ...Option) (*OpenAIClient, error) {
	options := applyOptions(opts)

	if options.APIKey == "" {
		return nil, errors.ErrInvalidAPIKey
	}
	if options.Model == "" {
		options.Model = "gpt-4o-mini"
	}
	if options.EmbeddingModel == "" {
		options.EmbeddingModel = "text-embedding-3-small"
	}
	if options.Name == "" {
		options.Name = "openai"
	}

	config := openai.DefaultConfig(options.APIKey)
	if options.BaseURL != "" {
		config.BaseURL = options.BaseURL
	}
	config.HTTPClient = options.httpClient()

	return &OpenAIClient{
		client:  openai.NewClientWithConfig(config),
		options: options,
	}, nil
}

// Name 返回提供商名称
func (c *OpenAIClient) Name() string {
	return c.options.Name
}

// Model 返回当前模型名称
func (c *OpenAIClient) Model() string {
	return c.options.Model
}

// Close 关闭客户端连接
func (c *OpenAIClient) Close() error {
	return nil
}

// Generate 生成响应（非流式）
func (c *OpenAIClient) Generate(ctx context.Context, req Request) (Response, error) {
	chatReq := c.buildChatRequest(req)

	var resp openai.ChatCompletionResponse
	err := retry(ctx, c.options.MaxRetries, c.options.RetryDelay, func() error {
		var callErr error
		resp, callErr = c.client.CreateChatCompletion(ctx, chatReq)
		return mapOpenAIError(callErr)
	})
	if err != nil {
		return Response{}, err
	}
	if len(resp.Choices) == 0 {
		return Response{}, fmt.Errorf("%w: no choices returned", errors.ErrInvalidResponse)
	}

	return parseOpenAIResponse(resp), nil
}

// buildChatRequest 构建 OpenAI 请求
func (c *OpenAIClient) buildChatRequest(req Request) openai.ChatCompletionRequest {
	chatReq := openai.ChatCompletionRequest{
		Model:    c.options.Model,
		Messages: convertMessagesToOpenAI(req.Messages),
	}

	if req.Temperature != nil {
		chatReq.Temperature = float32(*req.Temperature)
	} else {
		chatReq.Temperature = float32(c.options.Temperature)
	}

	if req.MaxTokens != nil {
		chatReq.MaxTokens = *req.MaxTokens
	} else {
		chatReq.MaxTokens = c.options.MaxTokens
	}

	if req.TopP != nil {
		chatReq.TopP = float32(*req.TopP)
	}

	if len(req.Stop) > 0 {
		chatReq.Stop = req.Stop
	}

	return chatReq
}

// convertMessagesToOpenAI 转换消息格式
func convertMessagesToOpenAI(msgs []message.Message) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, msg := range msgs {
		result = append(result, openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}
	return result
}

// parseOpenAIResponse 解析响应
func parseOpenAIResponse(resp openai.ChatCompletionResponse) Response {
	choice := resp.Choices[0]
	return Response{
		ID:           resp.ID,
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		TokenUsage: message.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
}

// Embed 生成文本嵌入向量
//
// 按 BatchSize 分批请求，结果按返回的 index 放回原位置。
func (c *OpenAIClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.options.BatchSize {
		end := min(start+c.options.BatchSize, len(texts))
		batch, err := c.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		result = append(result, batch...)
	}
	return result, nil
}

func (c *OpenAIClient) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(c.options.EmbeddingModel),
	}

	var resp openai.EmbeddingResponse
	err := retry(ctx, c.options.MaxRetries, c.options.RetryDelay, func() error {
		var callErr error
		resp, callErr = c.client.CreateEmbeddings(ctx, req)
		return mapOpenAIError(callErr)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrEmbeddingFailed, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d inputs", errors.ErrEmbeddingFailed, len(resp.Data), len(texts))
	}

	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	result := make([][]float32, len(data))
	for i, d := range data {
		result[i] = d.Embedding
	}
	return result, nil
}

// mapOpenAIError 映射 OpenAI 错误到引擎错误
func mapOpenAIError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.APIError
	if !stderrors.As(err, &apiErr) {
		var reqErr *openai.RequestError
		if stderrors.As(err, &reqErr) {
			return mapHTTPStatus(reqErr.HTTPStatusCode, err)
		}
		return errors.WrapError(err, "openai request failed")
	}
	return mapHTTPStatus(apiErr.HTTPStatusCode, err)
}

// mapHTTPStatus 按 HTTP 状态码映射错误
func mapHTTPStatus(code int, err error) error {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %v", errors.ErrInvalidAPIKey, err)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %v", errors.ErrModelNotFound, err)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %v", errors.ErrRateLimited, err)
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %v", errors.ErrTimeout, err)
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return fmt.Errorf("%w: %v", errors.ErrProviderUnavailable, err)
	default:
		return fmt.Errorf("provider error (code=%d): %w", code, err)
	}
}

// compile-time interface check
var (
	_ Provider = (*OpenAIClient)(nil)
	_ Embedder = (*OpenAIClient)(nil)
)
