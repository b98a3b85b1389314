package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/easyops/contextengine-go/pkg/core/errors"
)

// GeminiEmbedder Gemini 嵌入客户端
type GeminiEmbedder struct {
	client  *genai.Client
	options *Options
}

// NewGeminiEmbedder 创建 Gemini 嵌入客户端
func NewGeminiEmbedder(ctx context.Context, opts ...Option) (*GeminiEmbedder, error) {
	options := applyOptions(opts)
	if options.APIKey == "" {
		return nil, errors.ErrNoCredentials
	}
	if options.EmbeddingModel == "" {
		options.EmbeddingModel = "text-embedding-004"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     options.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: options.httpClient(),
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &GeminiEmbedder{client: client, options: options}, nil
}

// Embed 生成文本嵌入向量
func (e *GeminiEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
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

func (e *GeminiEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}
	cfg := &genai.EmbedContentConfig{}
	if e.options.TaskType != "" {
		cfg.TaskType = e.options.TaskType
	}

	var resp *genai.EmbedContentResponse
	err := retry(ctx, e.options.MaxRetries, e.options.RetryDelay, func() error {
		var callErr error
		resp, callErr = e.client.Models.EmbedContent(ctx, e.options.EmbeddingModel, contents, cfg)
		if callErr != nil {
			return fmt.Errorf("%w: %v", errors.ErrProviderUnavailable, callErr)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrEmbeddingFailed, err)
	}
	if resp == nil || len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: unexpected embedding count", errors.ErrEmbeddingFailed)
	}

	out := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("%w: empty vector at %d", errors.ErrEmbeddingFailed, i)
		}
		out[i] = emb.Values
	}
	return out, nil
}

// compile-time interface check
var _ Embedder = (*GeminiEmbedder)(nil)
