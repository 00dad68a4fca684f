package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/alterflow/types"
)

var errNoEmbeddings = errors.New("no embeddings returned")

// OpenAIConfig OpenAI 兼容嵌入端点配置.
type OpenAIConfig struct {
	BaseURL    string        // 默认 https://api.openai.com
	APIKey     string        // Bearer 鉴权
	Model      string        // 如 text-embedding-3-small
	Dimensions int           // 期望的输出维度
	Timeout    time.Duration // 请求超时
}

// OpenAIProvider 调用 OpenAI 兼容 /v1/embeddings 端点.
type OpenAIProvider struct {
	cfg    OpenAIConfig
	client *http.Client
}

// NewOpenAIProvider 创建 OpenAI 兼容嵌入提供者.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &OpenAIProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (p *OpenAIProvider) Name() string    { return "openai" }
func (p *OpenAIProvider) Dimensions() int { return p.cfg.Dimensions }

type openAIEmbedRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openAIEmbedData struct {
	Index     int       `json:"index"`
	Embedding []float64 `json:"embedding"`
}

type openAIEmbedResponse struct {
	Model string            `json:"model"`
	Data  []openAIEmbedData `json:"data"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

// Embed 实现 Provider.
func (p *OpenAIProvider) Embed(ctx context.Context, req *EmbeddingRequest) (*EmbeddingResponse, error) {
	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}

	body, err := json.Marshal(openAIEmbedRequest{
		Model:      model,
		Input:      req.Input,
		Dimensions: p.cfg.Dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	endpoint := strings.TrimRight(p.cfg.BaseURL, "/") + "/v1/embeddings"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embedding request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, types.NewError(types.ErrRetrieval, "embedding request failed").
			WithRetryable(true).WithCause(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewError(types.ErrRetrieval, "read embedding response").WithCause(err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, types.NewError(types.ErrRetrieval,
			fmt.Sprintf("embedding endpoint returned status %d", resp.StatusCode)).
			WithRetryable(resp.StatusCode >= 500 || resp.StatusCode == 429)
	}

	var out openAIEmbedResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, types.NewError(types.ErrRetrieval, "embedding response is not valid JSON").WithCause(err)
	}

	embeddings := make([]EmbeddingData, len(out.Data))
	for i, d := range out.Data {
		embeddings[i] = EmbeddingData{Index: d.Index, Embedding: d.Embedding}
	}

	return &EmbeddingResponse{
		Provider:   p.Name(),
		Model:      out.Model,
		Embeddings: embeddings,
		Usage: EmbeddingUsage{
			PromptTokens: out.Usage.PromptTokens,
			TotalTokens:  out.Usage.TotalTokens,
		},
	}, nil
}
