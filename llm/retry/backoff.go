package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/alterflow/types"
)

// Policy 定义重试策略配置
// 简单但功能完整：指数退避 + 随机抖动 + 可重试性过滤
type Policy struct {
	MaxAttempts  int           // 最大尝试次数（含首次，>=1）
	InitialDelay time.Duration // 初始延迟时间
	MaxDelay     time.Duration // 最大延迟时间
	Multiplier   float64       // 延迟时间倍增因子（指数退避）
	Jitter       bool          // 是否添加随机抖动（防止雪崩）
	// OnRetry 重试回调（attempt 为即将开始的尝试序号，从 2 起）
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultPolicy 返回默认的重试策略
// 适用于交互式编排运行中的单 Alter 调用
func DefaultPolicy() *Policy {
	return &Policy{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     8 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Retryer 重试器接口
type Retryer interface {
	// Do 执行函数，失败且错误可重试时按策略重试
	Do(ctx context.Context, fn func() error) error

	// DoText 执行返回文本的函数，返回文本、实际尝试次数与最终错误
	DoText(ctx context.Context, fn func() (string, error)) (string, int, error)
}

// backoffRetryer 基于指数退避的重试器实现
type backoffRetryer struct {
	policy *Policy
	logger *zap.Logger
}

// NewBackoffRetryer 创建指数退避重试器
func NewBackoffRetryer(policy *Policy, logger *zap.Logger) Retryer {
	if policy == nil {
		policy = DefaultPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	// 参数校验
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.InitialDelay <= 0 {
		policy.InitialDelay = 500 * time.Millisecond
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = 8 * time.Second
	}
	if policy.Multiplier < 1.0 {
		policy.Multiplier = 2.0
	}

	return &backoffRetryer{policy: policy, logger: logger}
}

// Do 实现 Retryer.Do
func (r *backoffRetryer) Do(ctx context.Context, fn func() error) error {
	_, _, err := r.DoText(ctx, func() (string, error) {
		return "", fn()
	})
	return err
}

// DoText 实现 Retryer.DoText
// 核心重试逻辑：指数退避 + 随机抖动 + 可重试性过滤。
// 不可重试的错误（含 context 取消）立即返回，不消耗剩余预算。
func (r *backoffRetryer) DoText(ctx context.Context, fn func() (string, error)) (string, int, error) {
	var lastErr error

	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := r.calculateDelay(attempt - 1)

			r.logger.Debug("retrying after backoff",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr))

			if r.policy.OnRetry != nil {
				r.policy.OnRetry(attempt, lastErr, delay)
			}

			select {
			case <-ctx.Done():
				return "", attempt - 1, ctx.Err()
			case <-time.After(delay):
			}
		}

		text, err := fn()
		if err == nil {
			return text, attempt, nil
		}
		lastErr = err

		// context 中止立即透传：运行级取消不重试
		if ctx.Err() != nil {
			return "", attempt, ctx.Err()
		}
		if !types.IsRetryable(err) {
			return "", attempt, err
		}
	}

	return "", r.policy.MaxAttempts, lastErr
}

// calculateDelay 计算第 n 次重试前的退避延迟
func (r *backoffRetryer) calculateDelay(n int) time.Duration {
	delay := float64(r.policy.InitialDelay) * math.Pow(r.policy.Multiplier, float64(n-1))
	if delay > float64(r.policy.MaxDelay) {
		delay = float64(r.policy.MaxDelay)
	}

	if r.policy.Jitter {
		// 在 [delay/2, delay) 区间内随机，避免重试风暴同步
		delay = delay/2 + rand.Float64()*delay/2
	}

	return time.Duration(delay)
}
