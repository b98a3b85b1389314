package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/easyops/contextengine-go/pkg/core/errors"
)

// DefaultMultimodalBaseURL 多模态嵌入默认端点（火山方舟）
const DefaultMultimodalBaseURL = "https://ark.cn-beijing.volces.com/api/v3"

// MultimodalEmbedder 多模态嵌入客户端
//
// 请求体中每段文本包装为 {"type":"text","text":...}；响应的 data 可能是
// 按 index 排列的对象列表，也可能是单个对象（服务端将整批输入融合为一个向量）。
type MultimodalEmbedder struct {
	baseURL    string
	httpClient *http.Client
	options    *Options
}

// NewMultimodalEmbedder 创建多模态嵌入客户端
func NewMultimodalEmbedder(opts ...Option) (*MultimodalEmbedder, error) {
	options := applyOptions(opts)
	if options.APIKey == "" {
		return nil, errors.ErrNoCredentials
	}
	if options.EmbeddingModel == "" {
		options.EmbeddingModel = "doubao-embedding-vision-250615"
	}
	baseURL := options.BaseURL
	if baseURL == "" {
		baseURL = DefaultMultimodalBaseURL
	}

	return &MultimodalEmbedder{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: options.httpClient(),
		options:    options,
	}, nil
}

// multimodalInput 类型化输入条目
type multimodalInput struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type multimodalRequest struct {
	Model string            `json:"model"`
	Input []multimodalInput `json:"input"`
}

type multimodalVector struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

// Embed 生成文本嵌入向量
func (e *MultimodalEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.options.BatchSize {
		end := min(start+e.options.BatchSize, len(texts))
		vectors, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		result = append(result, vectors...)
	}
	return result, nil
}

func (e *MultimodalEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, fused, err := e.request(ctx, texts)
	if err != nil {
		return nil, err
	}
	if !fused || len(texts) == 1 {
		return vectors, nil
	}

	// 服务端融合了整批输入，逐条重新请求
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		v, _, err := e.request(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		out = append(out, v...)
	}
	return out, nil
}

// request 发送一次嵌入请求，fused 表示响应 data 为单个对象
func (e *MultimodalEmbedder) request(ctx context.Context, texts []string) ([][]float32, bool, error) {
	reqBody := multimodalRequest{
		Model: e.options.EmbeddingModel,
		Input: make([]multimodalInput, len(texts)),
	}
	for i, t := range texts {
		reqBody.Input[i] = multimodalInput{Type: "text", Text: t}
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal embed request: %w", err)
	}

	var raw []byte
	err = retry(ctx, e.options.MaxRetries, e.options.RetryDelay, func() error {
		var callErr error
		raw, callErr = e.post(ctx, body)
		return callErr
	})
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", errors.ErrEmbeddingFailed, err)
	}

	return decodeMultimodalResponse(raw, len(texts))
}

func (e *MultimodalEmbedder) post(ctx context.Context, body []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings/multimodal", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create embed request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+e.options.APIKey)

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read embed response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, mapHTTPStatus(resp.StatusCode, fmt.Errorf("multimodal embed error: %s - %s", resp.Status, truncateBody(respBody)))
	}
	return respBody, nil
}

// decodeMultimodalResponse 解析响应，data 只接受对象列表或单个对象
func decodeMultimodalResponse(raw []byte, want int) ([][]float32, bool, error) {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, false, fmt.Errorf("%w: decode response: %v", errors.ErrEmbeddingFailed, err)
	}

	data := bytes.TrimSpace(envelope.Data)
	if len(data) == 0 {
		return nil, false, fmt.Errorf("%w: response has no data field", errors.ErrEmbeddingFailed)
	}

	switch data[0] {
	case '[':
		var items []multimodalVector
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, false, fmt.Errorf("%w: data list: %v", errors.ErrEmbeddingFailed, err)
		}
		if len(items) != want {
			return nil, false, fmt.Errorf("%w: got %d vectors for %d inputs", errors.ErrEmbeddingFailed, len(items), want)
		}
		sort.SliceStable(items, func(i, j int) bool { return items[i].Index < items[j].Index })
		out := make([][]float32, len(items))
		for i, item := range items {
			if len(item.Embedding) == 0 {
				return nil, false, fmt.Errorf("%w: empty vector at index %d", errors.ErrEmbeddingFailed, item.Index)
			}
			out[i] = item.Embedding
		}
		return out, false, nil
	case '{':
		var item multimodalVector
		if err := json.Unmarshal(data, &item); err != nil {
			return nil, false, fmt.Errorf("%w: data object: %v", errors.ErrEmbeddingFailed, err)
		}
		if len(item.Embedding) == 0 {
			return nil, false, fmt.Errorf("%w: empty vector", errors.ErrEmbeddingFailed)
		}
		return [][]float32{item.Embedding}, true, nil
	default:
		return nil, false, fmt.Errorf("%w: unexpected data shape %s", errors.ErrEmbeddingFailed, truncateBody(data))
	}
}

// truncateBody 截断响应体用于错误信息
func truncateBody(b []byte) string {
	const limit = 200
	s := string(b)
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}

// compile-time interface check
var _ Embedder = (*MultimodalEmbedder)(nil)
