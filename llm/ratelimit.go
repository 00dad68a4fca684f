package llm

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/BaSui01/alterflow/types"
)

// RateLimitedInvoker 用令牌桶包装另一个 Invoker，限制对后端的请求速率。
// 等待令牌消耗的是调用方 context 的时间预算。
type RateLimitedInvoker struct {
	inner   Invoker
	limiter *rate.Limiter
}

// NewRateLimitedInvoker 创建限流包装器。
// rps 为每秒请求数，burst 为突发容量（<=0 时取 1）。
func NewRateLimitedInvoker(inner Invoker, rps float64, burst int) *RateLimitedInvoker {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedInvoker{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (p *RateLimitedInvoker) Name() string { return p.inner.Name() }

// Invoke 等待令牌后转发给内层 Invoker。
func (p *RateLimitedInvoker) Invoke(ctx context.Context, alter types.Alter, prompt string, timeout time.Duration) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", types.NewError(types.ErrBackendUnavailable, "rate limiter rejected request").
			WithCause(err)
	}
	return p.inner.Invoke(ctx, alter, prompt, timeout)
}
