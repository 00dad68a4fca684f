package orchestrator

import (
	"strings"

	"github.com/BaSui01/alterflow/types"
)

// PromptBuilder 从 (阶段, 运行上下文, 先前贡献) 构造 Alter 的提示词。
// 纯函数，不触达任何后端，可独立单测。
type PromptBuilder struct {
	instructions map[types.Phase]string
	// historyLimit 限制提示词携带的先前贡献条数（保留最近的）
	historyLimit int
}

// NewPromptBuilder 创建提示词构造器。historyLimit <= 0 表示不限。
func NewPromptBuilder(instructions map[types.Phase]string, historyLimit int) *PromptBuilder {
	return &PromptBuilder{
		instructions: instructions,
		historyLimit: historyLimit,
	}
}

// Build 为一个 Alter 组装某阶段的完整提示词。
// prior 应只包含该 Alter 所属 Team 的上一阶段贡献；
// Brainstorm 阶段不携带先前贡献。
func (b *PromptBuilder) Build(alter types.Alter, phase types.Phase, rc *types.RunContext, prior []types.Contribution) string {
	var sb strings.Builder

	sb.WriteString("You are ")
	sb.WriteString(alter.Name)
	sb.WriteString(", an expert with the following competencies: ")
	sb.WriteString(alter.Competencies)
	sb.WriteString("\n")
	for _, example := range alter.Examples {
		sb.WriteString("Example of how you speak: ")
		sb.WriteString(example)
		sb.WriteString("\n")
	}

	sb.WriteString("\nQuestion: ")
	sb.WriteString(rc.Question)
	sb.WriteString("\n")

	if rc.UseRetrieval && rc.RetrievedContext != "" {
		sb.WriteString("\nRelevant context from the knowledge base:\n")
		sb.WriteString(rc.RetrievedContext)
		sb.WriteString("\n")
	}

	sb.WriteString("\nCurrent phase: ")
	sb.WriteString(string(phase))
	if instruction, ok := b.instructions[phase]; ok && instruction != "" {
		sb.WriteString("\nInstructions: ")
		sb.WriteString(instruction)
	}
	sb.WriteString("\n")

	if phase.UsesPriorContributions() && len(prior) > 0 {
		kept := prior
		if b.historyLimit > 0 && len(kept) > b.historyLimit {
			kept = kept[len(kept)-b.historyLimit:]
		}
		sb.WriteString("\nPrevious contributions from your team:\n")
		for _, c := range kept {
			sb.WriteString("- ")
			sb.WriteString(c.AlterName)
			sb.WriteString(" (")
			sb.WriteString(string(c.Phase))
			sb.WriteString("): ")
			sb.WriteString(c.Output)
			sb.WriteString("\n")
		}
	}

	sb.WriteString("\nRespond as ")
	sb.WriteString(alter.Name)
	sb.WriteString(".")

	return sb.String()
}

// priorForTeam 过滤出某 Team 上一阶段的成功贡献，保持 Transcript 顺序。
func priorForTeam(record *types.PhaseRecord, team string) []types.Contribution {
	if record == nil {
		return nil
	}
	var prior []types.Contribution
	for _, c := range record.Contributions {
		if c.Team == team && c.Status == types.ContributionOK {
			prior = append(prior, c)
		}
	}
	return prior
}
