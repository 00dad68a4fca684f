// Package alterflow provides a top-level convenience entry point that wires
// the whole deliberation stack from a single configuration.
//
// Usage:
//
//	import "github.com/BaSui01/alterflow"
//
//	app, err := alterflow.NewFromFile("alterflow.yaml")
//	app, err := alterflow.New(cfg, alterflow.WithInvoker(myBackend))
//
//	transcript, err := app.Ask(ctx, "How do we scale the database?", true)
//
// The app owns the logger, the LLM backends, the retrieval pipeline, the
// cross-run metrics store and telemetry. Call [App.Close] on shutdown.
package alterflow

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/alterflow/config"
	"github.com/BaSui01/alterflow/internal/metrics"
	"github.com/BaSui01/alterflow/internal/telemetry"
	"github.com/BaSui01/alterflow/llm"
	"github.com/BaSui01/alterflow/llm/embedding"
	"github.com/BaSui01/alterflow/llm/retry"
	"github.com/BaSui01/alterflow/orchestrator"
	"github.com/BaSui01/alterflow/rag"
	"github.com/BaSui01/alterflow/types"
)

// App 是装配完成的 alterflow 实例。
type App struct {
	Config       *config.Config
	Logger       *zap.Logger
	Orchestrator *orchestrator.Orchestrator
	Pipeline     *rag.Pipeline

	collector *metrics.Collector
	providers *telemetry.Providers
}

// Option 覆盖 App 装配过程中的某个依赖，主要供测试注入。
type Option func(*builder)

type builder struct {
	logger     *zap.Logger
	invoker    llm.Invoker
	moderator  llm.Invoker
	embedder   embedding.Provider
	registerer prometheus.Registerer
	noMetrics  bool
}

// WithLogger 使用既有日志器，跳过按 LogConfig 构建。
func WithLogger(logger *zap.Logger) Option {
	return func(b *builder) { b.logger = logger }
}

// WithInvoker 使用既有 Alter 调用后端，跳过按 LLMConfig 构建。
func WithInvoker(invoker llm.Invoker) Option {
	return func(b *builder) { b.invoker = invoker }
}

// WithModerator 使用既有 moderator 后端。
func WithModerator(moderator llm.Invoker) Option {
	return func(b *builder) { b.moderator = moderator }
}

// WithEmbedder 使用既有嵌入提供者，跳过按 EmbeddingConfig 构建。
func WithEmbedder(provider embedding.Provider) Option {
	return func(b *builder) { b.embedder = provider }
}

// WithRegisterer 指定 Prometheus 注册器（默认全局注册器）。
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(b *builder) { b.registerer = reg }
}

// WithoutCollector 关闭 Prometheus 指标收集（测试避免重复注册）。
func WithoutCollector() Option {
	return func(b *builder) { b.noMetrics = true }
}

// NewFromFile 从 YAML 配置文件装配 App。
func NewFromFile(path string, opts ...Option) (*App, error) {
	cfg, err := config.NewLoader().WithConfigPath(path).Load()
	if err != nil {
		return nil, err
	}
	return New(cfg, opts...)
}

// New 按配置装配完整的 App。
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var b builder
	for _, opt := range opts {
		opt(&b)
	}

	logger := b.logger
	if logger == nil {
		var err error
		logger, err = buildLogger(cfg.Log)
		if err != nil {
			return nil, types.NewError(types.ErrConfig, "build logger").WithCause(err)
		}
	}

	providers, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		return nil, types.NewError(types.ErrConfig, "init telemetry").WithCause(err)
	}

	registry, err := cfg.BuildRegistry()
	if err != nil {
		return nil, err
	}

	invoker := b.invoker
	if invoker == nil {
		invoker, err = buildInvoker(cfg.LLM, logger)
		if err != nil {
			return nil, err
		}
	}

	moderator := b.moderator
	if moderator == nil && cfg.Moderator.Enabled {
		moderator, err = buildInvoker(llmConfigFromModerator(cfg.Moderator), logger)
		if err != nil {
			return nil, err
		}
	}

	pipeline, err := buildPipeline(cfg, b.embedder, logger)
	if err != nil {
		return nil, err
	}

	metricsStore, err := buildMetricsStore(cfg.Redis, logger)
	if err != nil {
		return nil, err
	}

	var collector *metrics.Collector
	if !b.noMetrics {
		collector = metrics.NewCollector("alterflow", b.registerer, logger)
	}

	orchOpts := []orchestrator.Option{
		orchestrator.WithLogger(logger),
		orchestrator.WithRetriever(pipeline),
		orchestrator.WithMetricsStore(metricsStore),
		orchestrator.WithCollector(collector),
	}
	if moderator != nil {
		orchOpts = append(orchOpts, orchestrator.WithModerator(moderator, cfg.Moderator.Timeout))
	}

	orch := orchestrator.New(registry, invoker, orchestratorConfig(cfg), orchOpts...)

	return &App{
		Config:       cfg,
		Logger:       logger,
		Orchestrator: orch,
		Pipeline:     pipeline,
		collector:    collector,
		providers:    providers,
	}, nil
}

// Ask 对一个问题执行一次完整的编排运行。
func (a *App) Ask(ctx context.Context, question string, useRetrieval bool) (*types.Transcript, error) {
	return a.Orchestrator.Run(ctx, question, useRetrieval)
}

// Ingest 将一个文档摄入知识库，返回生成的块数。
func (a *App) Ingest(ctx context.Context, documentID, text string) (int, error) {
	n, err := a.Pipeline.Ingest(ctx, documentID, text)
	if err == nil && n > 0 {
		a.collector.RecordIngestedChunks(n)
	}
	return n, err
}

// Close 刷新遥测并关闭外部连接。
func (a *App) Close(ctx context.Context) error {
	err := a.providers.Shutdown(ctx)
	_ = a.Logger.Sync()
	return err
}

// =============================================================================
// 装配辅助
// =============================================================================

// buildLogger 按 LogConfig 构建 zap 日志器。
func buildLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		var err error
		level, err = zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
	}

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	if cfg.Format == "console" {
		zc.Encoding = "console"
		zc.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	if len(cfg.OutputPaths) > 0 {
		zc.OutputPaths = cfg.OutputPaths
	}
	return zc.Build()
}

// buildInvoker 按 LLMConfig 构建调用后端，按需套限流。
func buildInvoker(cfg config.LLMConfig, logger *zap.Logger) (llm.Invoker, error) {
	var invoker llm.Invoker
	switch cfg.Provider {
	case "ollama":
		invoker = llm.NewOllamaInvoker(llm.OllamaConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		}, logger)
	case "openai":
		invoker = llm.NewOpenAIInvoker(llm.OpenAIConfig{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		}, logger)
	default:
		return nil, types.NewError(types.ErrConfig, "unknown llm provider: "+cfg.Provider)
	}

	if cfg.RateLimit > 0 {
		invoker = llm.NewRateLimitedInvoker(invoker, cfg.RateLimit, cfg.RateBurst)
	}
	return invoker, nil
}

// llmConfigFromModerator 把 moderator 配置折算为后端配置复用构建逻辑。
func llmConfigFromModerator(cfg config.ModeratorConfig) config.LLMConfig {
	return config.LLMConfig{
		Provider: cfg.Provider,
		BaseURL:  cfg.BaseURL,
		APIKey:   cfg.APIKey,
		Model:    cfg.Model,
		Timeout:  cfg.Timeout,
	}
}

// buildEmbedder 按 EmbeddingConfig 构建嵌入提供者。
func buildEmbedder(cfg config.EmbeddingConfig) (embedding.Provider, error) {
	switch cfg.Provider {
	case "local":
		return embedding.NewLocalProvider(cfg.Dimensions), nil
	case "openai":
		return embedding.NewOpenAIProvider(embedding.OpenAIConfig{
			BaseURL:    cfg.BaseURL,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Timeout:    cfg.Timeout,
		}), nil
	default:
		return nil, types.NewError(types.ErrConfig, "unknown embedding provider: "+cfg.Provider)
	}
}

// buildPipeline 装配检索管线：块存储、向量索引、嵌入与分词。
func buildPipeline(cfg *config.Config, embedder embedding.Provider, logger *zap.Logger) (*rag.Pipeline, error) {
	if embedder == nil {
		var err error
		embedder, err = buildEmbedder(cfg.Embedding)
		if err != nil {
			return nil, err
		}
	}

	store, err := rag.OpenChunkStore(cfg.Database.Path, logger)
	if err != nil {
		return nil, err
	}

	index := rag.NewFlatIndex(rag.Metric(cfg.Retrieval.Metric), logger)
	tokenizer := rag.NewTokenizer(cfg.Retrieval.TokenizerModel, logger)

	return rag.NewPipeline(rag.PipelineConfig{
		Chunker: rag.ChunkerConfig{
			ChunkSize:    cfg.Retrieval.ChunkSize,
			ChunkOverlap: cfg.Retrieval.ChunkOverlap,
		},
		TopK:            cfg.Retrieval.TopK,
		MaxContextChars: cfg.Retrieval.MaxContextChars,
		IndexPath:       cfg.Retrieval.IndexPath,
	}, embedder, index, store, tokenizer, logger)
}

// buildMetricsStore 按 RedisConfig 选择跨运行指标存储。
func buildMetricsStore(cfg config.RedisConfig, logger *zap.Logger) (orchestrator.MetricsStore, error) {
	if !cfg.Enabled {
		return orchestrator.NewMemoryMetricsStore(), nil
	}
	return orchestrator.NewRedisMetricsStore(orchestrator.RedisMetricsConfig{
		Addr:      cfg.Addr,
		Password:  cfg.Password,
		DB:        cfg.DB,
		KeyPrefix: cfg.KeyPrefix,
	}, logger)
}

// orchestratorConfig 把加载的配置折算为编排器配置。
func orchestratorConfig(cfg *config.Config) orchestrator.Config {
	return orchestrator.Config{
		MaxParallel:     cfg.Orchestrator.MaxParallel,
		AlterTimeout:    cfg.Orchestrator.AlterTimeout,
		RunTimeout:      cfg.Orchestrator.RunTimeout,
		AssignThreshold: cfg.Orchestrator.AssignThreshold,
		Retry: retry.Policy{
			MaxAttempts:  cfg.Orchestrator.MaxAttempts,
			InitialDelay: cfg.Orchestrator.RetryInitialDelay,
			MaxDelay:     cfg.Orchestrator.RetryMaxDelay,
			Multiplier:   cfg.Orchestrator.RetryMultiplier,
			Jitter:       true,
		},
		HistoryLimit:      cfg.Orchestrator.HistoryLimit,
		Instructions:      cfg.Phases.Instructions,
		EmergencyKeywords: cfg.Phases.EmergencyKeywords,
		CriticalThreshold: cfg.Phases.CriticalThreshold,
		EmergencyPhases:   cfg.Phases.EmergencyPhases,
		Scheduler: orchestrator.SchedulerConfig{
			LatencyThreshold:     cfg.Orchestrator.LatencyThreshold,
			FailureRateThreshold: cfg.Orchestrator.FailureRateThreshold,
			TimeoutExtendFactor:  cfg.Orchestrator.TimeoutExtendFactor,
		},
	}
}
