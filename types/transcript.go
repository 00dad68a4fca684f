package types

import "time"

// ContributionStatus 表示单条贡献的结果状态。
type ContributionStatus string

const (
	ContributionOK      ContributionStatus = "ok"
	ContributionFailed  ContributionStatus = "failed"  // 重试预算耗尽
	ContributionSkipped ContributionStatus = "skipped" // 运行中止，未及调用
)

// Contribution 记录一个 Alter 在一个 Phase 的一次产出（或失败）。
// 追加写入，每个参与 Phase 的 Alter 恰好产生一条。
type Contribution struct {
	AlterID   string             `json:"alter_id"`
	AlterName string             `json:"alter_name"`
	Team      string             `json:"team"`
	Phase     Phase              `json:"phase"`
	Prompt    string             `json:"prompt,omitempty"`
	Output    string             `json:"output,omitempty"`
	Status    ContributionStatus `json:"status"`
	// 失败时的错误码（INVOCATION_TIMEOUT 等）
	ErrorCode ErrorCode     `json:"error_code,omitempty"`
	Error     string        `json:"error,omitempty"`
	Attempts  int           `json:"attempts"`
	Latency   time.Duration `json:"latency"`
	Timestamp time.Time     `json:"timestamp"`
}

// PhaseRecord 记录一个已执行 Phase 的全部贡献。
// Contributions 的顺序恒等于 Team/Alter 声明顺序，与完成顺序无关。
type PhaseRecord struct {
	Phase         Phase          `json:"phase"`
	Contributions []Contribution `json:"contributions"`
	// Degraded 标记该 Phase 没有任何成功贡献（仍然推进）
	Degraded bool          `json:"degraded,omitempty"`
	Duration time.Duration `json:"duration"`
}

// SuccessCount returns the number of successful contributions in the phase.
func (p *PhaseRecord) SuccessCount() int {
	n := 0
	for i := range p.Contributions {
		if p.Contributions[i].Status == ContributionOK {
			n++
		}
	}
	return n
}

// TeamScore 记录一次运行中某 Team 的匹配得分。
type TeamScore struct {
	Team  string `json:"team"`
	Score int    `json:"score"`
}

// Transcript 是一次编排运行的完整有序记录，外加最终合成结论。
// 由单个运行独占，绝不跨并发请求共享。
type Transcript struct {
	RunID    string   `json:"run_id"`
	Question string   `json:"question"`
	State    RunState `json:"state"`

	UseRetrieval     bool   `json:"use_retrieval"`
	RetrievedContext string `json:"retrieved_context,omitempty"`

	AssignedTeams []TeamScore  `json:"assigned_teams"`
	Urgency       UrgencyLevel `json:"urgency"`

	Phases []PhaseRecord `json:"phases"`

	// FinalDecision 为合成结论；SynthesisFailed 标记 moderator 调用失败，
	// 此时调用方仍可使用原始 Transcript（文档化降级，而非静默）。
	FinalDecision   string `json:"final_decision,omitempty"`
	SynthesisFailed bool   `json:"synthesis_failed,omitempty"`

	// Incomplete 标记运行被 deadline/取消中止，Transcript 为部分结果。
	Incomplete bool      `json:"incomplete,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// PhaseRecordFor returns the record for the given phase, or nil if that phase
// was not executed.
func (t *Transcript) PhaseRecordFor(phase Phase) *PhaseRecord {
	for i := range t.Phases {
		if t.Phases[i].Phase == phase {
			return &t.Phases[i]
		}
	}
	return nil
}

// ContributionCount returns the total number of contributions across phases.
func (t *Transcript) ContributionCount() int {
	n := 0
	for i := range t.Phases {
		n += len(t.Phases[i].Contributions)
	}
	return n
}
