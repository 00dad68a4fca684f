package orchestrator

import (
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/alterflow/types"
)

// SchedulerConfig 自适应调度的阈值策略。
// 阈值来自配置，运行内不做在线学习。
type SchedulerConfig struct {
	// 平均调用延迟超过该值时，从剩余阶段中裁掉 SelfVerify
	LatencyThreshold time.Duration
	// 失败率超过该值时，按 TimeoutExtendFactor 放宽单 Alter 超时
	FailureRateThreshold float64
	// 放宽超时的倍数（> 1）
	TimeoutExtendFactor float64
}

// ScheduleDecision 是一次阶段切换前的调度决策。
type ScheduleDecision struct {
	// Phases 裁剪后的剩余阶段，相对顺序不变
	Phases []types.Phase
	// AlterTimeout 本阶段使用的单 Alter 超时
	AlterTimeout time.Duration
	// DroppedSelfVerify 标记本次决策裁掉了 SelfVerify
	DroppedSelfVerify bool
	// ExtendedTimeout 标记本次决策放宽了超时
	ExtendedTimeout bool
}

// AdaptiveScheduler 在每次阶段切换前基于已收集指标做同步决策。
// 绝不引入新的 I/O，不阻塞关键路径。
type AdaptiveScheduler struct {
	config SchedulerConfig
	logger *zap.Logger
}

// NewAdaptiveScheduler 创建调度器。
func NewAdaptiveScheduler(config SchedulerConfig, logger *zap.Logger) *AdaptiveScheduler {
	if config.TimeoutExtendFactor <= 1 {
		config.TimeoutExtendFactor = 1.5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdaptiveScheduler{
		config: config,
		logger: logger.With(zap.String("component", "scheduler")),
	}
}

// Plan 基于运行指标快照决定剩余阶段与本阶段超时。
// remaining 的首个元素是即将执行的阶段，永远不会被裁掉。
func (s *AdaptiveScheduler) Plan(remaining []types.Phase, baseTimeout time.Duration, snap types.MetricsSnapshot) ScheduleDecision {
	decision := ScheduleDecision{
		Phases:       append([]types.Phase(nil), remaining...),
		AlterTimeout: baseTimeout,
	}
	if snap.Invocations == 0 {
		return decision
	}

	if s.config.LatencyThreshold > 0 && snap.AvgLatency > s.config.LatencyThreshold {
		trimmed := decision.Phases[:0]
		for i, phase := range decision.Phases {
			if i > 0 && phase == types.PhaseSelfVerify {
				decision.DroppedSelfVerify = true
				continue
			}
			trimmed = append(trimmed, phase)
		}
		decision.Phases = trimmed
	}

	if s.config.FailureRateThreshold > 0 && snap.FailureRate > s.config.FailureRateThreshold {
		decision.AlterTimeout = time.Duration(float64(baseTimeout) * s.config.TimeoutExtendFactor)
		decision.ExtendedTimeout = true
	}

	if decision.DroppedSelfVerify || decision.ExtendedTimeout {
		s.logger.Info("adaptive schedule adjusted",
			zap.Duration("avg_latency", snap.AvgLatency),
			zap.Float64("failure_rate", snap.FailureRate),
			zap.Bool("dropped_self_verify", decision.DroppedSelfVerify),
			zap.Duration("alter_timeout", decision.AlterTimeout))
	}
	return decision
}
