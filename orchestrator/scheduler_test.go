package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/BaSui01/alterflow/types"
)

func testSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		LatencyThreshold:     20 * time.Second,
		FailureRateThreshold: 0.5,
		TimeoutExtendFactor:  1.5,
	}
}

func TestAdaptiveScheduler_NoSignalsNoChanges(t *testing.T) {
	s := NewAdaptiveScheduler(testSchedulerConfig(), zap.NewNop())

	remaining := types.DefaultPhaseSequence()
	decision := s.Plan(remaining, time.Minute, types.MetricsSnapshot{})

	assert.Equal(t, remaining, decision.Phases)
	assert.Equal(t, time.Minute, decision.AlterTimeout)
	assert.False(t, decision.DroppedSelfVerify)
	assert.False(t, decision.ExtendedTimeout)
}

func TestAdaptiveScheduler_HighLatencyDropsSelfVerify(t *testing.T) {
	s := NewAdaptiveScheduler(testSchedulerConfig(), zap.NewNop())

	snap := types.MetricsSnapshot{Invocations: 4, AvgLatency: 30 * time.Second}
	decision := s.Plan([]types.Phase{types.PhaseCriticalReview, types.PhaseSelfVerify, types.PhaseVote}, time.Minute, snap)

	assert.Equal(t, []types.Phase{types.PhaseCriticalReview, types.PhaseVote}, decision.Phases)
	assert.True(t, decision.DroppedSelfVerify)
}

func TestAdaptiveScheduler_NeverDropsImminentPhase(t *testing.T) {
	s := NewAdaptiveScheduler(testSchedulerConfig(), zap.NewNop())

	snap := types.MetricsSnapshot{Invocations: 4, AvgLatency: 30 * time.Second}
	decision := s.Plan([]types.Phase{types.PhaseSelfVerify, types.PhaseVote}, time.Minute, snap)

	assert.Equal(t, []types.Phase{types.PhaseSelfVerify, types.PhaseVote}, decision.Phases,
		"即将执行的阶段不可被裁掉")
	assert.False(t, decision.DroppedSelfVerify)
}

func TestAdaptiveScheduler_HighFailureRateExtendsTimeout(t *testing.T) {
	s := NewAdaptiveScheduler(testSchedulerConfig(), zap.NewNop())

	snap := types.MetricsSnapshot{Invocations: 4, Failures: 3, FailureRate: 0.75}
	decision := s.Plan([]types.Phase{types.PhaseVote}, time.Minute, snap)

	assert.True(t, decision.ExtendedTimeout)
	assert.Equal(t, 90*time.Second, decision.AlterTimeout)
}

func TestAdaptiveScheduler_BothSignals(t *testing.T) {
	s := NewAdaptiveScheduler(testSchedulerConfig(), zap.NewNop())

	snap := types.MetricsSnapshot{
		Invocations: 4,
		Failures:    4,
		AvgLatency:  40 * time.Second,
		FailureRate: 1.0,
	}
	decision := s.Plan(types.DefaultPhaseSequence()[1:], 10*time.Second, snap)

	assert.Equal(t, []types.Phase{types.PhaseCriticalReview, types.PhaseVote}, decision.Phases)
	assert.Equal(t, 15*time.Second, decision.AlterTimeout)
}

func TestAdaptiveScheduler_ZeroInvocationsIsNoop(t *testing.T) {
	s := NewAdaptiveScheduler(testSchedulerConfig(), zap.NewNop())

	// 快照为空（首个阶段之前）时不得做任何调整
	decision := s.Plan(types.DefaultPhaseSequence(), time.Minute, types.MetricsSnapshot{AvgLatency: time.Hour})
	assert.Equal(t, types.DefaultPhaseSequence(), decision.Phases)
	assert.False(t, decision.DroppedSelfVerify)
}
