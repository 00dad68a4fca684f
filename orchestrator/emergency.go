package orchestrator

import (
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/alterflow/types"
)

// EmergencyDetector 在运行入口做一次性的紧急关键词检测。
// 结果是类型化的紧急级别，之后只作为只读信号供调度消费。
type EmergencyDetector struct {
	keywords          []string
	criticalThreshold int
	logger            *zap.Logger
}

// NewEmergencyDetector 创建检测器。
// criticalThreshold 为判定 critical 所需的命中关键词数，<=0 时取 2。
func NewEmergencyDetector(keywords []string, criticalThreshold int, logger *zap.Logger) *EmergencyDetector {
	if criticalThreshold <= 0 {
		criticalThreshold = 2
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	lowered := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			lowered = append(lowered, kw)
		}
	}
	return &EmergencyDetector{
		keywords:          lowered,
		criticalThreshold: criticalThreshold,
		logger:            logger.With(zap.String("component", "emergency")),
	}
}

// Detect 返回问题的紧急级别。子串匹配，大小写不敏感。
func (d *EmergencyDetector) Detect(question string) types.UrgencyLevel {
	questionLower := strings.ToLower(question)

	hits := 0
	for _, kw := range d.keywords {
		if strings.Contains(questionLower, kw) {
			hits++
		}
	}

	level := types.UrgencyNone
	switch {
	case hits >= d.criticalThreshold:
		level = types.UrgencyCritical
	case hits > 0:
		level = types.UrgencyElevated
	}

	if level != types.UrgencyNone {
		d.logger.Info("emergency keywords detected",
			zap.Int("hits", hits),
			zap.String("urgency", level.String()))
	}
	return level
}
