package types

// Phase 表示讨论流程中的一个阶段。
type Phase string

const (
	PhaseBrainstorm     Phase = "Brainstorm"     // 发散：产出初始思路
	PhaseCriticalReview Phase = "CriticalReview" // 审视：指出风险与改进点
	PhaseSelfVerify     Phase = "SelfVerify"     // 自检：验证可行性与一致性
	PhaseVote           Phase = "Vote"           // 表决：给出最终建议
)

// DefaultPhaseSequence 返回完整的标准阶段序列。
// 自适应调度或紧急短路可能在运行中裁剪该序列，但从不改变相对顺序。
func DefaultPhaseSequence() []Phase {
	return []Phase{PhaseBrainstorm, PhaseCriticalReview, PhaseSelfVerify, PhaseVote}
}

// Valid reports whether p is one of the four known phases.
func (p Phase) Valid() bool {
	switch p {
	case PhaseBrainstorm, PhaseCriticalReview, PhaseSelfVerify, PhaseVote:
		return true
	}
	return false
}

// UsesPriorContributions reports whether prompts for this phase include the
// previous phase's contributions. Brainstorm starts from a clean slate.
func (p Phase) UsesPriorContributions() bool {
	return p != PhaseBrainstorm
}

// RunState 表示阶段状态机的宏观状态。
type RunState string

const (
	RunStatePending RunState = "pending"
	RunStateRunning RunState = "running"
	RunStateDone    RunState = "done"
	// RunStateFailed 仅由运行级超时/取消到达；
	// 单个 Alter 的失败永远不会进入该状态。
	RunStateFailed RunState = "failed"
)

// UrgencyLevel 表示紧急关键词检测得出的紧急程度。
// 仅在运行入口评估一次，之后作为只读信号供调度器消费。
type UrgencyLevel int

const (
	UrgencyNone UrgencyLevel = iota
	UrgencyElevated
	UrgencyCritical
)

// String returns the urgency level name.
func (u UrgencyLevel) String() string {
	switch u {
	case UrgencyElevated:
		return "elevated"
	case UrgencyCritical:
		return "critical"
	default:
		return "none"
	}
}
