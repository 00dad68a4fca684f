package orchestrator

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/alterflow/llm/retry"
	"github.com/BaSui01/alterflow/rag"
	"github.com/BaSui01/alterflow/testutil/mocks"
	"github.com/BaSui01/alterflow/types"
)

// 命中 arch_team 与 ops_team 两个 Team 的问题
const twoTeamQuestion = "How can I improve my application architecture and deploy reliability?"

func fastTestConfig() Config {
	cfg := DefaultConfig()
	cfg.RunTimeout = 0
	cfg.AlterTimeout = time.Second
	cfg.Retry = retry.Policy{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     4 * time.Millisecond,
		Multiplier:   2.0,
	}
	cfg.Instructions = map[types.Phase]string{
		types.PhaseBrainstorm:     "Generate creative ideas.",
		types.PhaseCriticalReview: "Critically analyze the ideas.",
		types.PhaseSelfVerify:     "Verify feasibility.",
		types.PhaseVote:           "Provide your final recommendation.",
	}
	cfg.EmergencyKeywords = []string{"urgent", "outage"}
	cfg.CriticalThreshold = 2
	return cfg
}

func declarationOrder(record types.PhaseRecord) []string {
	ids := make([]string, len(record.Contributions))
	for i, c := range record.Contributions {
		ids[i] = c.AlterID
	}
	return ids
}

func TestOrchestrator_FullRunTwoTeams(t *testing.T) {
	registry := assignTestRegistry(t)
	mock := mocks.NewInvoker()
	o := New(registry, mock, fastTestConfig(), WithLogger(zaptest.NewLogger(t)))

	transcript, err := o.Run(context.Background(), twoTeamQuestion, false)
	require.NoError(t, err)

	assert.Equal(t, types.RunStateDone, transcript.State)
	assert.False(t, transcript.Incomplete)
	require.Len(t, transcript.AssignedTeams, 2)

	// 4 个 Phase × 每个参与 Team 的成员数
	require.Len(t, transcript.Phases, 4)
	for i, phase := range types.DefaultPhaseSequence() {
		record := transcript.Phases[i]
		assert.Equal(t, phase, record.Phase)
		assert.Equal(t, []string{"arch-1", "arch-2", "ops-1"}, declarationOrder(record))
		assert.Equal(t, 3, record.SuccessCount())
		assert.False(t, record.Degraded)
	}
	assert.Equal(t, 12, transcript.ContributionCount())
	assert.NotEmpty(t, transcript.FinalDecision, "完整运行必须带一个合成结论")
	assert.False(t, transcript.SynthesisFailed)
}

// Transcript 顺序恒等于声明顺序，与各 Alter 的响应延迟无关。
func TestOrchestrator_OrderIndependentOfLatency(t *testing.T) {
	registry := assignTestRegistry(t)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	properties := gopter.NewProperties(parameters)

	properties.Property("transcript order equals declaration order", prop.ForAll(
		func(delays []int) bool {
			mock := mocks.NewInvoker()
			mock.DelayFor["arch-1"] = time.Duration(delays[0]) * time.Millisecond
			mock.DelayFor["arch-2"] = time.Duration(delays[1]) * time.Millisecond
			mock.DelayFor["ops-1"] = time.Duration(delays[2]) * time.Millisecond

			o := New(registry, mock, fastTestConfig())
			transcript, err := o.Run(context.Background(), twoTeamQuestion, false)
			if err != nil {
				return false
			}
			for _, record := range transcript.Phases {
				ids := declarationOrder(record)
				if len(ids) != 3 || ids[0] != "arch-1" || ids[1] != "arch-2" || ids[2] != "ops-1" {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(3, gen.IntRange(0, 25)),
	))

	properties.TestingRun(t)
}

// 重试预算耗尽的 Alter 记为 failed 而非缺失，Phase 照常推进。
func TestOrchestrator_RetryExhaustedIsFailedNotMissing(t *testing.T) {
	registry := assignTestRegistry(t)
	mock := mocks.NewInvoker()
	mock.Errors["arch-2"] = types.NewError(types.ErrBackendUnavailable, "backend down").WithRetryable(true)

	o := New(registry, mock, fastTestConfig(), WithLogger(zaptest.NewLogger(t)))
	transcript, err := o.Run(context.Background(), twoTeamQuestion, false)
	require.NoError(t, err, "单个 Alter 的失败不得让运行失败")

	require.Len(t, transcript.Phases, 4)
	for _, record := range transcript.Phases {
		require.Len(t, record.Contributions, 3, "失败的 Alter 不得从 Transcript 缺失")
		failed := record.Contributions[1]
		assert.Equal(t, "arch-2", failed.AlterID)
		assert.Equal(t, types.ContributionFailed, failed.Status)
		assert.Equal(t, types.ErrBackendUnavailable, failed.ErrorCode)
		assert.Equal(t, 3, failed.Attempts)
		assert.False(t, record.Degraded, "其余 Alter 成功时 Phase 不算 degraded")
	}
	// 每个 Phase 3 次尝试
	assert.Equal(t, 12, mock.CallCount("arch-2"))
}

func TestOrchestrator_FirstAttemptFailuresRecover(t *testing.T) {
	registry := assignTestRegistry(t)
	mock := mocks.NewInvoker()
	mock.Errors["ops-1"] = types.NewError(types.ErrInvocationTimeout, "slow").WithRetryable(true)
	mock.FailFirst["ops-1"] = 1 // 每个运行只有首个调用失败

	cfg := fastTestConfig()
	o := New(registry, mock, cfg)
	transcript, err := o.Run(context.Background(), twoTeamQuestion, false)
	require.NoError(t, err)

	first := transcript.Phases[0].Contributions[2]
	assert.Equal(t, "ops-1", first.AlterID)
	assert.Equal(t, types.ContributionOK, first.Status)
	assert.Equal(t, 2, first.Attempts, "首次失败后重试成功")
}

// phaseAwareInvoker 让 Brainstorm 立即返回，其后阶段阻塞指定时长。
type phaseAwareInvoker struct {
	laterDelay time.Duration
}

func (p *phaseAwareInvoker) Name() string { return "phase-aware" }

func (p *phaseAwareInvoker) Invoke(ctx context.Context, alter types.Alter, prompt string, timeout time.Duration) (string, error) {
	if strings.Contains(prompt, "Current phase: Brainstorm") {
		return "quick idea", nil
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(p.laterDelay):
		return "slow answer", nil
	}
}

// deadline 在 CriticalReview 期间过期：Brainstorm 完整、
// CriticalReview 部分、后续阶段缺失、Incomplete=true。
func TestOrchestrator_DeadlineDuringCriticalReview(t *testing.T) {
	registry := assignTestRegistry(t)
	cfg := fastTestConfig()
	cfg.RunTimeout = 250 * time.Millisecond
	cfg.Retry.MaxAttempts = 1

	o := New(registry, &phaseAwareInvoker{laterDelay: 2 * time.Second}, cfg, WithLogger(zaptest.NewLogger(t)))
	transcript, err := o.Run(context.Background(), twoTeamQuestion, false)

	require.Error(t, err)
	assert.Equal(t, types.ErrRunTimeout, types.GetErrorCode(err))
	require.NotNil(t, transcript, "部分结果永远被返回")

	assert.True(t, transcript.Incomplete)
	assert.Equal(t, types.RunStateFailed, transcript.State)

	require.Len(t, transcript.Phases, 2, "SelfVerify/Vote 不得出现")
	brainstorm := transcript.Phases[0]
	assert.Equal(t, types.PhaseBrainstorm, brainstorm.Phase)
	assert.Equal(t, 3, brainstorm.SuccessCount(), "Brainstorm 必须完整")

	review := transcript.Phases[1]
	assert.Equal(t, types.PhaseCriticalReview, review.Phase)
	assert.Zero(t, review.SuccessCount())
	for _, c := range review.Contributions {
		assert.Equal(t, types.ContributionSkipped, c.Status)
		assert.Equal(t, types.ErrRunTimeout, c.ErrorCode)
	}
}

func TestOrchestrator_ExplicitCancellation(t *testing.T) {
	registry := assignTestRegistry(t)
	mock := mocks.NewInvoker()
	mock.Delay = 2 * time.Second

	cfg := fastTestConfig()
	cfg.Retry.MaxAttempts = 1
	o := New(registry, mock, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	transcript, err := o.Run(ctx, twoTeamQuestion, false)
	require.Error(t, err)
	assert.Equal(t, types.ErrRunCancelled, types.GetErrorCode(err))
	require.NotNil(t, transcript)
	assert.True(t, transcript.Incomplete)
	assert.Equal(t, types.RunStateFailed, transcript.State)
}

func TestOrchestrator_EmergencyShortCircuit(t *testing.T) {
	registry := assignTestRegistry(t)
	mock := mocks.NewInvoker()
	o := New(registry, mock, fastTestConfig())

	transcript, err := o.Run(context.Background(), "urgent: outage in the deploy pipeline", false)
	require.NoError(t, err)

	assert.Equal(t, types.UrgencyCritical, transcript.Urgency)
	require.Len(t, transcript.Phases, 2, "紧急短路只执行精简子集")
	assert.Equal(t, types.PhaseBrainstorm, transcript.Phases[0].Phase)
	assert.Equal(t, types.PhaseVote, transcript.Phases[1].Phase)
}

func TestOrchestrator_AllAltersFailPhaseDegraded(t *testing.T) {
	registry := assignTestRegistry(t)
	mock := mocks.NewInvoker()
	bad := types.NewError(types.ErrMalformedResponse, "garbage").WithRetryable(false)
	mock.Errors["arch-1"] = bad
	mock.Errors["arch-2"] = bad
	mock.Errors["ops-1"] = bad

	o := New(registry, mock, fastTestConfig())
	transcript, err := o.Run(context.Background(), twoTeamQuestion, false)
	require.NoError(t, err, "全员失败也不是运行级失败")

	assert.Equal(t, types.RunStateDone, transcript.State)
	require.Len(t, transcript.Phases, 4, "degraded Phase 仍然推进")
	for _, record := range transcript.Phases {
		assert.True(t, record.Degraded)
	}

	assert.False(t, transcript.SynthesisFailed)
	assert.Equal(t, fallbackNoContributions, transcript.FinalDecision, "全员失败时给出固定无结论模板")
}

type staticRetriever struct {
	result *rag.RetrievalResult
	err    error
	calls  int
}

func (r *staticRetriever) Retrieve(ctx context.Context, query string) (*rag.RetrievalResult, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return r.result, nil
}

func TestOrchestrator_RetrievalContextFlowsIntoPrompts(t *testing.T) {
	registry := assignTestRegistry(t)
	mock := mocks.NewInvoker()
	retriever := &staticRetriever{result: &rag.RetrievalResult{Context: "sharding splits rows across nodes"}}

	o := New(registry, mock, fastTestConfig(), WithRetriever(retriever))
	transcript, err := o.Run(context.Background(), twoTeamQuestion, true)
	require.NoError(t, err)

	assert.Equal(t, 1, retriever.calls)
	assert.Equal(t, "sharding splits rows across nodes", transcript.RetrievedContext)

	calls := mock.Calls()
	require.NotEmpty(t, calls)
	for _, call := range calls {
		assert.Contains(t, call.Prompt, "sharding splits rows across nodes")
	}
}

func TestOrchestrator_RetrievalDisabledSkipsRetriever(t *testing.T) {
	registry := assignTestRegistry(t)
	retriever := &staticRetriever{result: &rag.RetrievalResult{Context: "ctx"}}

	o := New(registry, mocks.NewInvoker(), fastTestConfig(), WithRetriever(retriever))
	transcript, err := o.Run(context.Background(), twoTeamQuestion, false)
	require.NoError(t, err)

	assert.Zero(t, retriever.calls)
	assert.Empty(t, transcript.RetrievedContext)
}

func TestOrchestrator_RetrievalFailureIsNonFatal(t *testing.T) {
	registry := assignTestRegistry(t)
	retriever := &staticRetriever{err: types.NewError(types.ErrRetrieval, "index offline")}

	o := New(registry, mocks.NewInvoker(), fastTestConfig(), WithRetriever(retriever), WithLogger(zaptest.NewLogger(t)))
	transcript, err := o.Run(context.Background(), twoTeamQuestion, true)
	require.NoError(t, err, "检索失败不得让运行失败")

	assert.Empty(t, transcript.RetrievedContext)
	assert.Equal(t, types.RunStateDone, transcript.State)
}

func TestOrchestrator_PriorContributionsFlowBetweenPhases(t *testing.T) {
	registry := assignTestRegistry(t)
	mock := mocks.NewInvoker()
	mock.Responses["arch-1"] = "idea: use sharding"

	o := New(registry, mock, fastTestConfig())
	_, err := o.Run(context.Background(), twoTeamQuestion, false)
	require.NoError(t, err)

	var reviewPromptForArch2 string
	for _, call := range mock.Calls() {
		if call.AlterID == "arch-2" && strings.Contains(call.Prompt, "Current phase: CriticalReview") {
			reviewPromptForArch2 = call.Prompt
		}
	}
	require.NotEmpty(t, reviewPromptForArch2)
	assert.Contains(t, reviewPromptForArch2, "idea: use sharding", "同 Team 的上一阶段贡献应进入提示词")
	assert.NotContains(t, reviewPromptForArch2, "response from ops-1", "其他 Team 的贡献不进入提示词")
}

func TestOrchestrator_ModeratorSynthesisFailureFlagsTranscript(t *testing.T) {
	registry := assignTestRegistry(t)
	mock := mocks.NewInvoker()
	moderator := mocks.NewInvoker()
	moderator.Errors["moderator"] = types.NewError(types.ErrBackendUnavailable, "moderator down")

	o := New(registry, mock, fastTestConfig(), WithModerator(moderator, 10*time.Second))
	transcript, err := o.Run(context.Background(), twoTeamQuestion, false)
	require.NoError(t, err, "合成失败对运行非致命")

	assert.True(t, transcript.SynthesisFailed)
	assert.Empty(t, transcript.FinalDecision)
	assert.Equal(t, types.RunStateDone, transcript.State)
}

func TestOrchestrator_ContributesToMetricsStore(t *testing.T) {
	registry := assignTestRegistry(t)
	store := NewMemoryMetricsStore()

	o := New(registry, mocks.NewInvoker(), fastTestConfig(), WithMetricsStore(store))
	transcript, err := o.Run(context.Background(), twoTeamQuestion, false)
	require.NoError(t, err)

	snap, err := store.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Runs)
	assert.Equal(t, int64(transcript.ContributionCount()), snap.Invocations)
}
