package config

import (
	"time"

	"github.com/BaSui01/alterflow/types"
)

// DefaultConfig 返回带生产级默认值的完整配置。
// 注册表默认只含一个通才 Team，真实部署应通过 YAML 提供完整注册表。
func DefaultConfig() *Config {
	return &Config{
		Registry: RegistryConfig{
			Teams: []types.Team{
				{
					Name:        "generalist_team",
					Description: "General software engineering and architecture",
					Keywords:    []string{"software", "architecture", "engineering"},
					Alters: []types.Alter{
						{ID: "generalist-1", Name: "Generalist 1", Competencies: "General software engineering and architecture."},
						{ID: "generalist-2", Name: "Generalist 2", Competencies: "General software engineering and architecture."},
						{ID: "generalist-3", Name: "Generalist 3", Competencies: "General software engineering and architecture."},
					},
				},
			},
			DefaultTeam: "generalist_team",
		},
		Phases: PhasesConfig{
			Instructions: map[types.Phase]string{
				types.PhaseBrainstorm:     "Generate creative ideas and initial approaches. Think outside the box and propose multiple solutions.",
				types.PhaseCriticalReview: "Critically analyze the ideas presented. Point out potential issues, risks, and improvements.",
				types.PhaseSelfVerify:     "Verify the feasibility and correctness of the proposed solutions. Check for consistency.",
				types.PhaseVote:           "Provide your final recommendation with clear reasoning. Vote for the best approach.",
			},
			EmergencyKeywords: []string{"urgent", "outage", "production down", "security breach", "data loss"},
			CriticalThreshold: 2,
			EmergencyPhases:   []types.Phase{types.PhaseBrainstorm, types.PhaseVote},
		},
		Orchestrator: OrchestratorConfig{
			MaxParallel:          4,
			AlterTimeout:         60 * time.Second,
			RunTimeout:           10 * time.Minute,
			AssignThreshold:      1,
			MaxAttempts:          3,
			RetryInitialDelay:    500 * time.Millisecond,
			RetryMaxDelay:        8 * time.Second,
			RetryMultiplier:      2.0,
			LatencyThreshold:     20 * time.Second,
			FailureRateThreshold: 0.5,
			TimeoutExtendFactor:  1.5,
			HistoryLimit:         5,
		},
		Retrieval: RetrievalConfig{
			ChunkSize:       512,
			ChunkOverlap:    50,
			TopK:            3,
			MaxContextChars: 4000,
			Metric:          "cosine",
			IndexPath:       "alterflow_index.json",
			TokenizerModel:  "gpt-4",
		},
		Embedding: EmbeddingConfig{
			Provider:   "local",
			BaseURL:    "https://api.openai.com",
			Model:      "text-embedding-3-small",
			Dimensions: 384,
			Timeout:    30 * time.Second,
		},
		LLM: LLMConfig{
			Provider:  "ollama",
			BaseURL:   "http://localhost:11434",
			Model:     "llama3",
			Timeout:   60 * time.Second,
			RateLimit: 0,
			RateBurst: 1,
		},
		Moderator: ModeratorConfig{
			Enabled:  false,
			Provider: "openai",
			BaseURL:  "https://api.openai.com",
			Model:    "gpt-4o-mini",
			Timeout:  90 * time.Second,
		},
		Database: DatabaseConfig{
			Path: "alterflow.db",
		},
		Redis: RedisConfig{
			Enabled:   false,
			Addr:      "localhost:6379",
			DB:        0,
			KeyPrefix: "alterflow:metrics",
		},
		Log: LogConfig{
			Level:       "info",
			Format:      "json",
			OutputPaths: []string{"stdout"},
		},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			OTLPEndpoint: "localhost:4317",
			ServiceName:  "alterflow",
			SampleRate:   1.0,
		},
	}
}
