package types

import (
	"sync"
	"time"
)

// RunContext 承载一次编排运行的输入与运行期状态。
// 随请求创建、运行结束即销毁，从不跨运行共享。
type RunContext struct {
	RunID        string
	Question     string
	UseRetrieval bool

	// 检索到的上下文块（UseRetrieval 为 false 时为空）
	RetrievedContext string

	AssignedTeams []TeamScore
	Alters        []Alter

	Urgency  UrgencyLevel
	Deadline time.Time

	// Metrics 累积本次运行的性能信号，供自适应调度器消费。
	Metrics *RunMetrics
}

// RunMetrics 累积一次运行内的性能指标。
// 并发的 Alter 调用会同时上报，内部加锁；读取方拿到的是即时快照。
type RunMetrics struct {
	mu           sync.Mutex
	invocations  int
	failures     int
	totalLatency time.Duration
}

// NewRunMetrics creates an empty metrics accumulator.
func NewRunMetrics() *RunMetrics {
	return &RunMetrics{}
}

// RecordInvocation 记录一次 Alter 调用的结果。
func (m *RunMetrics) RecordInvocation(latency time.Duration, failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invocations++
	m.totalLatency += latency
	if failed {
		m.failures++
	}
}

// Snapshot 返回当前指标的一致快照。
func (m *RunMetrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := MetricsSnapshot{
		Invocations: m.invocations,
		Failures:    m.failures,
	}
	if m.invocations > 0 {
		snap.AvgLatency = m.totalLatency / time.Duration(m.invocations)
		snap.FailureRate = float64(m.failures) / float64(m.invocations)
	}
	return snap
}

// MetricsSnapshot 是 RunMetrics 的只读快照。
// 调度决策只基于快照做同步判断，绝不引入新的 I/O。
type MetricsSnapshot struct {
	Invocations int           `json:"invocations"`
	Failures    int           `json:"failures"`
	AvgLatency  time.Duration `json:"avg_latency"`
	FailureRate float64       `json:"failure_rate"`
}
