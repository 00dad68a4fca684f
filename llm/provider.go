package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/alterflow/types"
)

// Invoker 是 Alter 调用端口：向一个 Alter 发出提示词，取回文本或失败。
// 这是对推理后端（本地或远端）的纯能力边界：
//   - 对不同 Alter 的并发调用必须安全；
//   - 不含任何重试逻辑，重试策略属于调用方（阶段状态机）。
//
// 实现返回的错误使用 types.Error 三种调用错误码之一：
// INVOCATION_TIMEOUT、BACKEND_UNAVAILABLE、MALFORMED_RESPONSE。
// 父 context 被取消时原样返回 context 错误，交由调用方识别运行级中止。
type Invoker interface {
	// Name 返回后端名称（用于日志与指标标签）
	Name() string
	// Invoke 向 alter 发出 prompt，超时 timeout（<=0 时取实现默认值）
	Invoke(ctx context.Context, alter types.Alter, prompt string, timeout time.Duration) (string, error)
}

// mapInvokeErr 将传输层错误归一到调用错误码。
// 父 context 的取消/超时保持原样透传。
func mapInvokeErr(ctx context.Context, invokeCtx context.Context, err error, backend string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) || (invokeCtx != nil && invokeCtx.Err() == context.DeadlineExceeded) {
		return types.NewError(types.ErrInvocationTimeout, backend+" invocation timed out").
			WithRetryable(true).WithCause(err)
	}
	return types.NewError(types.ErrBackendUnavailable, backend+" request failed").
		WithRetryable(true).WithCause(err)
}

// statusErr 将非 2xx 响应映射为调用错误。5xx 与 429 可重试，其余 4xx 不可。
func statusErr(status int, backend, body string) error {
	retryable := status >= 500 || status == 429
	msg := fmt.Sprintf("%s returned status %d: %s", backend, status, body)
	return types.NewError(types.ErrBackendUnavailable, msg).WithRetryable(retryable)
}
