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

// OllamaConfig 本地 Ollama 后端配置。
type OllamaConfig struct {
	// 基础 URL，默认 http://localhost:11434
	BaseURL string
	// 模型名
	Model string
	// 默认请求超时（调用方未给 timeout 时生效）
	Timeout time.Duration
}

// OllamaInvoker 通过本地 Ollama /api/generate 端点调用 Alter。
// Ollama 无鉴权、非流式调用一次返回完整文本。
type OllamaInvoker struct {
	cfg    OllamaConfig
	client *http.Client
	logger *zap.Logger
}

// NewOllamaInvoker 创建 Ollama 后端调用器。
func NewOllamaInvoker(cfg OllamaConfig, logger *zap.Logger) *OllamaInvoker {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OllamaInvoker{
		cfg: cfg,
		// 超时由每次调用的 context 控制，客户端本身不设硬超时
		client: &http.Client{},
		logger: logger.With(zap.String("invoker", "ollama")),
	}
}

func (p *OllamaInvoker) Name() string { return "ollama" }

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Invoke 实现 Invoker。
func (p *OllamaInvoker) Invoke(ctx context.Context, alter types.Alter, prompt string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = p.cfg.Timeout
	}
	invokeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(ollamaRequest{
		Model:  p.cfg.Model,
		Prompt: prompt,
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("marshal ollama request: %w", err)
	}

	endpoint := strings.TrimRight(p.cfg.BaseURL, "/") + "/api/generate"
	httpReq, err := http.NewRequestWithContext(invokeCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build ollama request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", mapInvokeErr(ctx, invokeCtx, err, "ollama")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", mapInvokeErr(ctx, invokeCtx, err, "ollama")
	}

	if resp.StatusCode != http.StatusOK {
		return "", statusErr(resp.StatusCode, "ollama", truncate(string(raw), 200))
	}

	var out ollamaResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", types.NewError(types.ErrMalformedResponse, "ollama response is not valid JSON").
			WithRetryable(true).WithCause(err).WithAlter(alter.ID)
	}
	if strings.TrimSpace(out.Response) == "" {
		return "", types.NewError(types.ErrMalformedResponse, "ollama returned empty response").
			WithRetryable(true).WithAlter(alter.ID)
	}

	p.logger.Debug("ollama invocation completed",
		zap.String("alter", alter.ID),
		zap.Duration("latency", time.Since(start)),
		zap.Int("chars", len(out.Response)))

	return out.Response, nil
}

// truncate 截断过长的错误响应体，避免日志与错误信息爆炸。
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
