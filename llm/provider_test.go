package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/alterflow/types"
)

var testAlter = types.Alter{ID: "a1", Name: "Backend Architect", Team: "backend_team"}

// --- Ollama ---

func TestOllamaInvoker_Success(t *testing.T) {
	var gotPrompt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)

		var req ollamaRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotPrompt = req.Prompt
		assert.False(t, req.Stream)

		json.NewEncoder(w).Encode(ollamaResponse{Response: "use a message queue", Done: true})
	}))
	defer server.Close()

	inv := NewOllamaInvoker(OllamaConfig{BaseURL: server.URL, Model: "llama3"}, zap.NewNop())

	out, err := inv.Invoke(context.Background(), testAlter, "how to decouple services?", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "use a message queue", out)
	assert.Equal(t, "how to decouple services?", gotPrompt)
}

func TestOllamaInvoker_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusInternalServerError)
	}))
	defer server.Close()

	inv := NewOllamaInvoker(OllamaConfig{BaseURL: server.URL}, zap.NewNop())

	_, err := inv.Invoke(context.Background(), testAlter, "q", time.Second)
	require.Error(t, err)
	assert.Equal(t, types.ErrBackendUnavailable, types.GetErrorCode(err))
	assert.True(t, types.IsRetryable(err), "5xx should be retryable")
}

func TestOllamaInvoker_ClientErrorNotRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown model", http.StatusNotFound)
	}))
	defer server.Close()

	inv := NewOllamaInvoker(OllamaConfig{BaseURL: server.URL}, zap.NewNop())

	_, err := inv.Invoke(context.Background(), testAlter, "q", time.Second)
	require.Error(t, err)
	assert.False(t, types.IsRetryable(err))
}

func TestOllamaInvoker_MalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json at all"))
	}))
	defer server.Close()

	inv := NewOllamaInvoker(OllamaConfig{BaseURL: server.URL}, zap.NewNop())

	_, err := inv.Invoke(context.Background(), testAlter, "q", time.Second)
	require.Error(t, err)
	assert.Equal(t, types.ErrMalformedResponse, types.GetErrorCode(err))
}

func TestOllamaInvoker_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		json.NewEncoder(w).Encode(ollamaResponse{Response: "late"})
	}))
	defer server.Close()

	inv := NewOllamaInvoker(OllamaConfig{BaseURL: server.URL}, zap.NewNop())

	_, err := inv.Invoke(context.Background(), testAlter, "q", 20*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, types.ErrInvocationTimeout, types.GetErrorCode(err))
	assert.True(t, types.IsRetryable(err))
}

func TestOllamaInvoker_ParentCancelPassesThrough(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer server.Close()

	inv := NewOllamaInvoker(OllamaConfig{BaseURL: server.URL}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := inv.Invoke(ctx, testAlter, "q", 5*time.Second)
	require.Error(t, err)
	// 运行级取消必须原样透传，不得伪装成调用错误
	assert.ErrorIs(t, err, context.Canceled)
}

// --- OpenAI 兼容 ---

func TestOpenAIInvoker_Success(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")

		json.NewEncoder(w).Encode(openAIResponse{
			ID:    "resp-1",
			Model: "gpt-4o-mini",
			Choices: []openAIChoice{
				{Index: 0, FinishReason: "stop", Message: openAIMessage{Role: "assistant", Content: "final answer"}},
			},
		})
	}))
	defer server.Close()

	inv := NewOpenAIInvoker(OpenAIConfig{BaseURL: server.URL, APIKey: "sk-test", Model: "gpt-4o-mini"}, zap.NewNop())

	out, err := inv.Invoke(context.Background(), testAlter, "question", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "final answer", out)
	assert.Equal(t, "Bearer sk-test", gotAuth)
}

func TestOpenAIInvoker_EmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(openAIResponse{ID: "resp-2"})
	}))
	defer server.Close()

	inv := NewOpenAIInvoker(OpenAIConfig{BaseURL: server.URL}, zap.NewNop())

	_, err := inv.Invoke(context.Background(), testAlter, "q", time.Second)
	require.Error(t, err)
	assert.Equal(t, types.ErrMalformedResponse, types.GetErrorCode(err))
}

func TestOpenAIInvoker_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	inv := NewOpenAIInvoker(OpenAIConfig{BaseURL: server.URL}, zap.NewNop())

	_, err := inv.Invoke(context.Background(), testAlter, "q", time.Second)
	require.Error(t, err)
	assert.True(t, types.IsRetryable(err), "429 should be retryable")
}

// --- 限流包装器 ---

func TestRateLimitedInvoker(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		json.NewEncoder(w).Encode(ollamaResponse{Response: "ok"})
	}))
	defer server.Close()

	inner := NewOllamaInvoker(OllamaConfig{BaseURL: server.URL}, zap.NewNop())
	limited := NewRateLimitedInvoker(inner, 100, 1)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := limited.Invoke(context.Background(), testAlter, "q", time.Second)
		require.NoError(t, err)
	}

	// 100 rps、burst 1：三次调用至少跨越 ~20ms
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, "ollama", limited.Name())
}

func TestRateLimitedInvoker_CancelWhileWaiting(t *testing.T) {
	inner := NewOllamaInvoker(OllamaConfig{BaseURL: "http://127.0.0.1:0"}, zap.NewNop())
	limited := NewRateLimitedInvoker(inner, 0.001, 1)

	// 吃掉突发额度
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	limited.limiter.Allow()

	_, err := limited.Invoke(ctx, testAlter, "q", time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
