package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/BaSui01/alterflow/internal/metrics"
	"github.com/BaSui01/alterflow/llm"
	"github.com/BaSui01/alterflow/llm/retry"
	"github.com/BaSui01/alterflow/rag"
	"github.com/BaSui01/alterflow/types"
)

// Retriever 为运行提供检索上下文。rag.Pipeline 满足该接口。
type Retriever interface {
	Retrieve(ctx context.Context, query string) (*rag.RetrievalResult, error)
}

// Config 编排器配置。
type Config struct {
	// Phase 内 Alter 调用的最大并行度
	MaxParallel int
	// 单次 Alter 调用超时（调度器可按策略放宽）
	AlterTimeout time.Duration
	// 运行级 deadline，0 表示不设
	RunTimeout time.Duration
	// Team Assignment 过线分数
	AssignThreshold int
	// 每个 Alter 每个 Phase 的重试预算
	Retry retry.Policy
	// 提示词携带的先前贡献条数上限
	HistoryLimit int

	// 各阶段指令文本
	Instructions map[types.Phase]string
	// 紧急关键词与升级阈值
	EmergencyKeywords []string
	CriticalThreshold int
	// 紧急短路后的精简阶段子集
	EmergencyPhases []types.Phase

	// 自适应调度阈值
	Scheduler SchedulerConfig
}

// DefaultConfig 返回编排器默认配置。
func DefaultConfig() Config {
	return Config{
		MaxParallel:     4,
		AlterTimeout:    60 * time.Second,
		RunTimeout:      10 * time.Minute,
		AssignThreshold: 1,
		Retry:           *retry.DefaultPolicy(),
		HistoryLimit:    5,
		EmergencyPhases: []types.Phase{types.PhaseBrainstorm, types.PhaseVote},
		Scheduler: SchedulerConfig{
			LatencyThreshold:     20 * time.Second,
			FailureRateThreshold: 0.5,
			TimeoutExtendFactor:  1.5,
		},
	}
}

// Orchestrator 驱动阶段状态机并收集 Transcript。
type Orchestrator struct {
	registry *types.Registry
	invoker  llm.Invoker
	config   Config

	assigner    *TeamAssigner
	detector    *EmergencyDetector
	scheduler   *AdaptiveScheduler
	prompts     *PromptBuilder
	synthesizer *DecisionSynthesizer
	retryer     retry.Retryer

	retriever        Retriever          // 可选
	moderator        llm.Invoker        // 可选，nil 走确定性降级
	moderatorTimeout time.Duration
	metricsStore     MetricsStore       // 可选
	collector        *metrics.Collector // 可选，nil 安全
	tracer           trace.Tracer
	logger           *zap.Logger
}

// Option 配置 Orchestrator 的可选依赖。
type Option func(*Orchestrator)

// WithRetriever 注入检索管线。
func WithRetriever(r Retriever) Option {
	return func(o *Orchestrator) { o.retriever = r }
}

// WithModerator 注入 moderator 后端用于最终合成。
func WithModerator(moderator llm.Invoker, timeout time.Duration) Option {
	return func(o *Orchestrator) {
		o.moderator = moderator
		o.moderatorTimeout = timeout
	}
}

// WithMetricsStore 注入跨运行指标存储。
func WithMetricsStore(store MetricsStore) Option {
	return func(o *Orchestrator) { o.metricsStore = store }
}

// WithCollector 注入 Prometheus 收集器。
func WithCollector(c *metrics.Collector) Option {
	return func(o *Orchestrator) { o.collector = c }
}

// WithLogger 注入日志器。
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// New 创建编排器。registry 与 invoker 必填。
func New(registry *types.Registry, invoker llm.Invoker, config Config, opts ...Option) *Orchestrator {
	if config.MaxParallel <= 0 {
		config.MaxParallel = DefaultConfig().MaxParallel
	}
	if config.AlterTimeout <= 0 {
		config.AlterTimeout = DefaultConfig().AlterTimeout
	}

	o := &Orchestrator{
		registry: registry,
		invoker:  invoker,
		config:   config,
		tracer:   otel.Tracer("github.com/BaSui01/alterflow/orchestrator"),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With(zap.String("component", "orchestrator"))

	o.assigner = NewTeamAssigner(registry, config.AssignThreshold, o.logger)
	o.detector = NewEmergencyDetector(config.EmergencyKeywords, config.CriticalThreshold, o.logger)
	o.scheduler = NewAdaptiveScheduler(config.Scheduler, o.logger)
	o.prompts = NewPromptBuilder(config.Instructions, config.HistoryLimit)
	policy := config.Retry
	o.retryer = retry.NewBackoffRetryer(&policy, o.logger)
	o.synthesizer = NewDecisionSynthesizer(o.moderator, o.moderatorTimeout, o.logger)
	return o
}

// Run 执行一次完整的编排运行。
//
// 运行级 deadline 过期或 ctx 被取消时，中止在途调用并返回部分
// Transcript（Incomplete=true）与 RUN_TIMEOUT / RUN_CANCELLED；
// 部分结果永远被返回，绝不丢弃。单个 Alter 的失败被隔离在其
// Contribution 内，从不让整个 Phase 或运行失败。
func (o *Orchestrator) Run(ctx context.Context, question string, useRetrieval bool) (*types.Transcript, error) {
	runID := uuid.NewString()
	logger := o.logger.With(zap.String("run_id", runID))
	started := time.Now()

	transcript := &types.Transcript{
		RunID:        runID,
		Question:     question,
		State:        types.RunStateRunning,
		UseRetrieval: useRetrieval,
		StartedAt:    started.UTC(),
	}

	if o.config.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.config.RunTimeout)
		defer cancel()
	}

	ctx, span := o.tracer.Start(ctx, "orchestrator.run",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.Bool("run.use_retrieval", useRetrieval),
		))
	defer span.End()

	// 紧急检测只在入口做一次
	urgency := o.detector.Detect(question)
	transcript.Urgency = urgency
	phases := o.phaseSequenceFor(urgency)

	// 跨运行指标：起跑时读一份快照，仅作观测信号
	if o.metricsStore != nil {
		if snap, err := o.metricsStore.Snapshot(ctx); err == nil {
			logger.Debug("cross-run metrics snapshot",
				zap.Int64("runs", snap.Runs),
				zap.Duration("avg_latency", snap.AvgLatency),
				zap.Float64("failure_rate", snap.FailureRate))
		} else {
			logger.Warn("cross-run metrics snapshot failed", zap.Error(err))
		}
	}

	if useRetrieval && o.retriever != nil {
		retrievalStart := time.Now()
		result, err := o.retriever.Retrieve(ctx, question)
		if err != nil {
			// 检索失败不升级：没有上下文照样运行
			logger.Warn("retrieval failed, continuing without context", zap.Error(err))
			o.collector.RecordRetrieval("error", time.Since(retrievalStart))
		} else {
			transcript.RetrievedContext = result.Context
			o.collector.RecordRetrieval("ok", time.Since(retrievalStart))
		}
	}

	assignment := o.assigner.Assign(question)
	transcript.AssignedTeams = assignment.Teams
	logger.Info("run started",
		zap.String("urgency", urgency.String()),
		zap.Int("teams", len(assignment.Teams)),
		zap.Int("alters", len(assignment.Alters)),
		zap.Int("phases", len(phases)))

	rc := &types.RunContext{
		RunID:            runID,
		Question:         question,
		UseRetrieval:     useRetrieval,
		RetrievedContext: transcript.RetrievedContext,
		AssignedTeams:    assignment.Teams,
		Alters:           assignment.Alters,
		Urgency:          urgency,
		Metrics:          types.NewRunMetrics(),
	}
	if deadline, ok := ctx.Deadline(); ok {
		rc.Deadline = deadline
	}

	var runErr error
	remaining := phases
	for len(remaining) > 0 {
		decision := o.scheduler.Plan(remaining, o.config.AlterTimeout, rc.Metrics.Snapshot())
		remaining = decision.Phases

		phase := remaining[0]
		record := o.runPhase(ctx, phase, decision.AlterTimeout, rc, transcript)
		transcript.Phases = append(transcript.Phases, record)
		o.collector.RecordPhase(string(phase), record.Degraded, record.Duration)

		if ctx.Err() != nil {
			runErr = o.abortError(ctx)
			break
		}
		remaining = remaining[1:]
	}

	if runErr != nil {
		transcript.State = types.RunStateFailed
		transcript.Incomplete = true
		logger.Warn("run aborted, returning partial transcript",
			zap.String("error_code", string(types.GetErrorCode(runErr))),
			zap.Int("phases_executed", len(transcript.Phases)))
	} else {
		decision, err := o.synthesizer.Synthesize(ctx, transcript)
		if err != nil {
			transcript.SynthesisFailed = true
		} else {
			transcript.FinalDecision = decision
		}
		transcript.State = types.RunStateDone
	}
	transcript.FinishedAt = time.Now().UTC()

	span.SetAttributes(attribute.String("run.state", string(transcript.State)))
	if runErr != nil {
		span.RecordError(runErr)
	}

	o.collector.RecordRun(string(transcript.State), urgency.String(), time.Since(started))
	o.contributeMetrics(rc, logger)

	logger.Info("run finished",
		zap.String("state", string(transcript.State)),
		zap.Int("contributions", transcript.ContributionCount()),
		zap.Duration("duration", time.Since(started)))

	return transcript, runErr
}

// runPhase 并发调用本阶段的全部参与 Alter，并发度受 MaxParallel 约束。
// 结果写入按声明顺序预分配的槽位，Transcript 顺序与完成时序无关。
func (o *Orchestrator) runPhase(ctx context.Context, phase types.Phase, timeout time.Duration, rc *types.RunContext, transcript *types.Transcript) types.PhaseRecord {
	start := time.Now()

	ctx, span := o.tracer.Start(ctx, "orchestrator.phase",
		trace.WithAttributes(attribute.String("phase", string(phase))))
	defer span.End()

	var prevRecord *types.PhaseRecord
	if phase.UsesPriorContributions() && len(transcript.Phases) > 0 {
		prevRecord = &transcript.Phases[len(transcript.Phases)-1]
	}

	slots := make([]types.Contribution, len(rc.Alters))
	sem := semaphore.NewWeighted(int64(o.config.MaxParallel))

	var g errgroup.Group
	for i := range rc.Alters {
		i := i
		alter := rc.Alters[i]
		g.Go(func() error {
			if err := sem.Acquire(ctx, 1); err != nil {
				// 运行已中止，该 Alter 未及调用
				slots[i] = o.abortedContribution(ctx, alter, phase, 0, 0)
				return nil
			}
			defer sem.Release(1)

			prompt := o.prompts.Build(alter, phase, rc, priorForTeam(prevRecord, alter.Team))

			invokeStart := time.Now()
			text, attempts, err := o.retryer.DoText(ctx, func() (string, error) {
				return o.invoker.Invoke(ctx, alter, prompt, timeout)
			})
			latency := time.Since(invokeStart)
			rc.Metrics.RecordInvocation(latency, err != nil)

			switch {
			case err == nil:
				slots[i] = types.Contribution{
					AlterID:   alter.ID,
					AlterName: alter.Name,
					Team:      alter.Team,
					Phase:     phase,
					Prompt:    prompt,
					Output:    text,
					Status:    types.ContributionOK,
					Attempts:  attempts,
					Latency:   latency,
					Timestamp: time.Now().UTC(),
				}
				o.collector.RecordInvocation(o.invoker.Name(), "ok", latency)
			case ctx.Err() != nil:
				slots[i] = o.abortedContribution(ctx, alter, phase, attempts, latency)
				o.collector.RecordInvocation(o.invoker.Name(), "aborted", latency)
			default:
				// 重试预算耗尽：记为 failed，不是缺失；Phase 照常推进
				slots[i] = types.Contribution{
					AlterID:   alter.ID,
					AlterName: alter.Name,
					Team:      alter.Team,
					Phase:     phase,
					Prompt:    prompt,
					Status:    types.ContributionFailed,
					ErrorCode: types.GetErrorCode(err),
					Error:     err.Error(),
					Attempts:  attempts,
					Latency:   latency,
					Timestamp: time.Now().UTC(),
				}
				o.collector.RecordInvocation(o.invoker.Name(), "failed", latency)
				o.logger.Warn("alter failed after retries",
					zap.String("alter_id", alter.ID),
					zap.String("phase", string(phase)),
					zap.Int("attempts", attempts),
					zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	record := types.PhaseRecord{
		Phase:         phase,
		Contributions: slots,
		Duration:      time.Since(start),
	}
	record.Degraded = record.SuccessCount() == 0
	return record
}

// abortedContribution 构造运行中止时的占位贡献。
func (o *Orchestrator) abortedContribution(ctx context.Context, alter types.Alter, phase types.Phase, attempts int, latency time.Duration) types.Contribution {
	code := types.ErrRunCancelled
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		code = types.ErrRunTimeout
	}
	return types.Contribution{
		AlterID:   alter.ID,
		AlterName: alter.Name,
		Team:      alter.Team,
		Phase:     phase,
		Status:    types.ContributionSkipped,
		ErrorCode: code,
		Error:     ctx.Err().Error(),
		Attempts:  attempts,
		Latency:   latency,
		Timestamp: time.Now().UTC(),
	}
}

// abortError 把运行中止的 context 错误映射为类型化错误。
func (o *Orchestrator) abortError(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return types.NewError(types.ErrRunTimeout, "run deadline expired, partial transcript returned").
			WithCause(ctx.Err())
	}
	return types.NewError(types.ErrRunCancelled, "run cancelled, partial transcript returned").
		WithCause(ctx.Err())
}

// phaseSequenceFor 返回本次运行的阶段序列。
// 任何非 None 的紧急级别都切换到精简子集（相对顺序不变）。
func (o *Orchestrator) phaseSequenceFor(urgency types.UrgencyLevel) []types.Phase {
	if urgency > types.UrgencyNone && len(o.config.EmergencyPhases) > 0 {
		return append([]types.Phase(nil), o.config.EmergencyPhases...)
	}
	return types.DefaultPhaseSequence()
}

// contributeMetrics 把本次运行的指标合入跨运行存储。
// 运行可能因 deadline 结束，合入用独立的短超时 context。
func (o *Orchestrator) contributeMetrics(rc *types.RunContext, logger *zap.Logger) {
	if o.metricsStore == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.metricsStore.Update(ctx, rc.Metrics.Snapshot()); err != nil {
		logger.Warn("cross-run metrics update failed", zap.Error(err))
	}
}
