// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器。nil *Collector 上的所有记录方法都是 no-op，
// 编排器可以在未接入 Prometheus 时直接传 nil。
type Collector struct {
	// 运行指标
	runsTotal   *prometheus.CounterVec
	runDuration prometheus.Histogram

	// 阶段指标
	phasesTotal   *prometheus.CounterVec
	phaseDuration *prometheus.HistogramVec

	// Alter 调用指标
	invocationsTotal   *prometheus.CounterVec
	invocationDuration *prometheus.HistogramVec

	// 检索指标
	retrievalsTotal   *prometheus.CounterVec
	retrievalDuration prometheus.Histogram
	ingestedChunks    prometheus.Counter

	logger *zap.Logger
}

// NewCollector 创建指标收集器。reg 为 nil 时使用默认注册表。
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// 运行指标
	c.runsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of orchestration runs",
		},
		[]string{"state", "urgency"},
	)

	c.runDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Orchestration run duration in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	// 阶段指标
	c.phasesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phases_total",
			Help:      "Total number of executed phases",
		},
		[]string{"phase", "degraded"},
	)

	c.phaseDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "phase_duration_seconds",
			Help:      "Phase duration in seconds",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120},
		},
		[]string{"phase"},
	)

	// Alter 调用指标
	c.invocationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invocations_total",
			Help:      "Total number of alter invocations",
		},
		[]string{"backend", "status"},
	)

	c.invocationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "invocation_duration_seconds",
			Help:      "Alter invocation duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"backend"},
	)

	// 检索指标
	c.retrievalsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrievals_total",
			Help:      "Total number of retrieval queries",
		},
		[]string{"status"},
	)

	c.retrievalDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_duration_seconds",
			Help:      "Retrieval query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	c.ingestedChunks = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingested_chunks_total",
			Help:      "Total number of ingested document chunks",
		},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 指标记录
// =============================================================================

// RecordRun 记录一次编排运行
func (c *Collector) RecordRun(state, urgency string, duration time.Duration) {
	if c == nil {
		return
	}
	c.runsTotal.WithLabelValues(state, urgency).Inc()
	c.runDuration.Observe(duration.Seconds())
}

// RecordPhase 记录一个已执行阶段
func (c *Collector) RecordPhase(phase string, degraded bool, duration time.Duration) {
	if c == nil {
		return
	}
	c.phasesTotal.WithLabelValues(phase, boolLabel(degraded)).Inc()
	c.phaseDuration.WithLabelValues(phase).Observe(duration.Seconds())
}

// RecordInvocation 记录一次 Alter 调用
func (c *Collector) RecordInvocation(backend, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.invocationsTotal.WithLabelValues(backend, status).Inc()
	c.invocationDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

// RecordRetrieval 记录一次检索查询
func (c *Collector) RecordRetrieval(status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.retrievalsTotal.WithLabelValues(status).Inc()
	c.retrievalDuration.Observe(duration.Seconds())
}

// RecordIngestedChunks 记录摄入的块数
func (c *Collector) RecordIngestedChunks(n int) {
	if c == nil {
		return
	}
	c.ingestedChunks.Add(float64(n))
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
