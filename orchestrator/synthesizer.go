package orchestrator

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/alterflow/llm"
	"github.com/BaSui01/alterflow/types"
)

// DecisionSynthesizer 把完整 Transcript 归约为一个最终结论。
// 配置了 moderator 后端时通过调用端口合成；
// 否则使用文档化的确定性降级：按固定模板拼接 Vote 阶段贡献。
type DecisionSynthesizer struct {
	moderator llm.Invoker // nil 表示无 moderator，走降级
	timeout   time.Duration
	logger    *zap.Logger
}

// NewDecisionSynthesizer 创建合成器。moderator 为 nil 时使用确定性降级。
func NewDecisionSynthesizer(moderator llm.Invoker, timeout time.Duration, logger *zap.Logger) *DecisionSynthesizer {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DecisionSynthesizer{
		moderator: moderator,
		timeout:   timeout,
		logger:    logger.With(zap.String("component", "synthesizer")),
	}
}

// Synthesize 生成最终结论。
// moderator 调用失败返回 SYNTHESIS_ERROR，对运行非致命：
// 调用方保留原始 Transcript 并置 SynthesisFailed。
func (s *DecisionSynthesizer) Synthesize(ctx context.Context, transcript *types.Transcript) (string, error) {
	if s.moderator == nil {
		return s.fallback(transcript), nil
	}

	moderatorAlter := types.Alter{
		ID:           "moderator",
		Name:         "Moderator",
		Competencies: "Synthesizing multi-expert deliberations into one clear, actionable decision.",
	}

	decision, err := s.moderator.Invoke(ctx, moderatorAlter, s.buildPrompt(transcript), s.timeout)
	if err != nil {
		s.logger.Warn("moderator synthesis failed, transcript still returned",
			zap.String("run_id", transcript.RunID),
			zap.Error(err))
		return "", types.NewError(types.ErrSynthesis, "moderator invocation failed").WithCause(err)
	}
	return decision, nil
}

// buildPrompt 汇总全部贡献供 moderator 裁决。
func (s *DecisionSynthesizer) buildPrompt(transcript *types.Transcript) string {
	var sb strings.Builder
	sb.WriteString("You are the moderator of a multi-expert deliberation.\n")
	sb.WriteString("Question: ")
	sb.WriteString(transcript.Question)
	sb.WriteString("\n\nThe experts went through the following phases:\n")

	for i := range transcript.Phases {
		record := &transcript.Phases[i]
		sb.WriteString("\n## ")
		sb.WriteString(string(record.Phase))
		sb.WriteString("\n")
		for _, c := range record.Contributions {
			if c.Status != types.ContributionOK {
				continue
			}
			sb.WriteString("- ")
			sb.WriteString(c.AlterName)
			sb.WriteString(" [")
			sb.WriteString(c.Team)
			sb.WriteString("]: ")
			sb.WriteString(c.Output)
			sb.WriteString("\n")
		}
	}

	sb.WriteString("\nSynthesize the deliberation into one final decision with clear reasoning.")
	return sb.String()
}

// fallbackNoContributions 是所有阶段都没有成功贡献时的固定结论，
// 让空结论与刻意为空的结论在 Transcript 里区分得开。
const fallbackNoContributions = "No decision could be synthesized: no expert contribution succeeded in any phase."

// fallback 确定性降级：固定模板拼接 Vote 阶段的成功贡献。
// Vote 没有执行或全部失败时回退到最后一个有成功贡献的阶段；
// 全部阶段都没有成功贡献时返回固定的无结论模板。
func (s *DecisionSynthesizer) fallback(transcript *types.Transcript) string {
	record := transcript.PhaseRecordFor(types.PhaseVote)
	if record == nil || record.SuccessCount() == 0 {
		record = nil
		for i := len(transcript.Phases) - 1; i >= 0; i-- {
			if transcript.Phases[i].SuccessCount() > 0 {
				record = &transcript.Phases[i]
				break
			}
		}
	}
	if record == nil {
		s.logger.Warn("no successful contributions to synthesize",
			zap.String("run_id", transcript.RunID))
		return fallbackNoContributions
	}

	var sb strings.Builder
	sb.WriteString("Final recommendations (")
	sb.WriteString(string(record.Phase))
	sb.WriteString(" phase):\n")
	for _, c := range record.Contributions {
		if c.Status != types.ContributionOK {
			continue
		}
		sb.WriteString("- ")
		sb.WriteString(c.AlterName)
		sb.WriteString(": ")
		sb.WriteString(c.Output)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
