// Package embedding 提供统一的嵌入提供者接口和实现.
package embedding

import "context"

// EmbeddingRequest 表示生成嵌入的请求.
type EmbeddingRequest struct {
	Input     []string  `json:"input"`                // Text inputs to embed
	Model     string    `json:"model,omitempty"`      // Model to use
	InputType InputType `json:"input_type,omitempty"` // query or document
}

// InputType 指定嵌入优化的输入类型.
type InputType string

const (
	InputTypeQuery    InputType = "query"    // For search queries
	InputTypeDocument InputType = "document" // For documents to be indexed
)

// EmbeddingResponse 表示嵌入请求的响应.
type EmbeddingResponse struct {
	Provider   string          `json:"provider"`
	Model      string          `json:"model"`
	Embeddings []EmbeddingData `json:"embeddings"`
	Usage      EmbeddingUsage  `json:"usage"`
}

// EmbeddingData 表示单个嵌入结果.
type EmbeddingData struct {
	Index     int       `json:"index"`
	Embedding []float64 `json:"embedding"`
}

// EmbeddingUsage 表示嵌入请求的 Token 用量.
type EmbeddingUsage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Provider 定义统一的嵌入提供者接口.
type Provider interface {
	// Name 返回提供者名称.
	Name() string
	// Dimensions 返回输出向量维度.
	Dimensions() int
	// Embed 为给定输入生成嵌入.
	Embed(ctx context.Context, req *EmbeddingRequest) (*EmbeddingResponse, error)
}

// EmbedQuery 嵌入单个查询字符串的便捷函数.
func EmbedQuery(ctx context.Context, p Provider, query string) ([]float64, error) {
	resp, err := p.Embed(ctx, &EmbeddingRequest{
		Input:     []string{query},
		InputType: InputTypeQuery,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 {
		return nil, errNoEmbeddings
	}
	return resp.Embeddings[0].Embedding, nil
}

// EmbedDocuments 批量嵌入文档文本的便捷函数，结果与输入顺序一致.
func EmbedDocuments(ctx context.Context, p Provider, documents []string) ([][]float64, error) {
	if len(documents) == 0 {
		return nil, nil
	}
	resp, err := p.Embed(ctx, &EmbeddingRequest{
		Input:     documents,
		InputType: InputTypeDocument,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(documents) {
		return nil, errNoEmbeddings
	}
	out := make([][]float64, len(documents))
	for _, d := range resp.Embeddings {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, errNoEmbeddings
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}
