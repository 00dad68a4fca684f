package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/alterflow/types"
)

// OpenAIConfig OpenAI 兼容后端配置。
// 任何暴露 /v1/chat/completions 的服务均可使用（OpenAI、DeepSeek、vLLM 等）。
type OpenAIConfig struct {
	// 基础 URL，默认 https://api.openai.com
	BaseURL string
	// API Key（Bearer 鉴权）
	APIKey string
	// 模型名
	Model string
	// 默认请求超时
	Timeout time.Duration
}

// OpenAIInvoker 通过 OpenAI 兼容 chat completions 端点调用 Alter。
type OpenAIInvoker struct {
	cfg    OpenAIConfig
	client *http.Client
	logger *zap.Logger
}

// NewOpenAIInvoker 创建 OpenAI 兼容后端调用器。
func NewOpenAIInvoker(cfg OpenAIConfig, logger *zap.Logger) *OpenAIInvoker {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAIInvoker{
		cfg:    cfg,
		client: &http.Client{},
		logger: logger.With(zap.String("invoker", "openai")),
	}
}

func (p *OpenAIInvoker) Name() string { return "openai" }

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model    string          `json:"model"`
	Messages []openAIMessage `json:"messages"`
}

type openAIChoice struct {
	Index        int           `json:"index"`
	FinishReason string        `json:"finish_reason"`
	Message      openAIMessage `json:"message"`
}

type openAIResponse struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Choices []openAIChoice `json:"choices"`
}

// Invoke 实现 Invoker。
// Alter 的人格完全编码在 prompt 内，这里不额外注入 system 消息。
func (p *OpenAIInvoker) Invoke(ctx context.Context, alter types.Alter, prompt string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = p.cfg.Timeout
	}
	invokeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(openAIRequest{
		Model: p.cfg.Model,
		Messages: []openAIMessage{
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal openai request: %w", err)
	}

	endpoint := strings.TrimRight(p.cfg.BaseURL, "/") + "/v1/chat/completions"
	httpReq, err := http.NewRequestWithContext(invokeCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build openai request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", mapInvokeErr(ctx, invokeCtx, err, "openai")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", mapInvokeErr(ctx, invokeCtx, err, "openai")
	}

	if resp.StatusCode != http.StatusOK {
		return "", statusErr(resp.StatusCode, "openai", truncate(string(raw), 200))
	}

	var out openAIResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", types.NewError(types.ErrMalformedResponse, "openai response is not valid JSON").
			WithRetryable(true).WithCause(err).WithAlter(alter.ID)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", types.NewError(types.ErrMalformedResponse, "openai response has no usable choice").
			WithRetryable(true).WithAlter(alter.ID)
	}

	p.logger.Debug("openai invocation completed",
		zap.String("alter", alter.ID),
		zap.Duration("latency", time.Since(start)),
		zap.String("finish_reason", out.Choices[0].FinishReason))

	return out.Choices[0].Message.Content, nil
}
