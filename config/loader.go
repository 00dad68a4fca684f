// =============================================================================
// alterflow 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("alterflow.yaml").
//	    WithEnvPrefix("ALTERFLOW").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/alterflow/types"
)

// =============================================================================
// 核心配置结构
// =============================================================================

// Config 是 alterflow 的完整配置结构
type Config struct {
	// Registry Team/Alter 注册表
	Registry RegistryConfig `yaml:"registry" env:"REGISTRY"`

	// Phases 阶段指令与紧急路由
	Phases PhasesConfig `yaml:"phases" env:"PHASES"`

	// Orchestrator 编排器配置
	Orchestrator OrchestratorConfig `yaml:"orchestrator" env:"ORCHESTRATOR"`

	// Retrieval 检索管线配置
	Retrieval RetrievalConfig `yaml:"retrieval" env:"RETRIEVAL"`

	// Embedding 嵌入提供者配置
	Embedding EmbeddingConfig `yaml:"embedding" env:"EMBEDDING"`

	// LLM Alter 调用后端配置
	LLM LLMConfig `yaml:"llm" env:"LLM"`

	// Moderator 最终合成 moderator 后端配置
	Moderator ModeratorConfig `yaml:"moderator" env:"MODERATOR"`

	// Database 块存储数据库配置
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Redis 跨运行指标存储配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// RegistryConfig Team/Alter 注册表配置
type RegistryConfig struct {
	// Teams 保持声明顺序（打分平局与 Transcript 排序的裁决依据）
	Teams []types.Team `yaml:"teams" env:"-"`
	// 兜底 Team：没有任何 Team 过线时选它，保证运行永远有参与者
	DefaultTeam string `yaml:"default_team" env:"DEFAULT_TEAM"`
}

// PhasesConfig 阶段指令与紧急路由配置
type PhasesConfig struct {
	// 各阶段的指令文本（附加到参与 Alter 的提示词）
	Instructions map[types.Phase]string `yaml:"instructions" env:"-"`
	// 紧急关键词：在运行入口检测一次
	EmergencyKeywords []string `yaml:"emergency_keywords" env:"EMERGENCY_KEYWORDS"`
	// 升级关键词命中数量阈值：达到则判定为 critical
	CriticalThreshold int `yaml:"critical_threshold" env:"CRITICAL_THRESHOLD"`
	// 紧急短路后的精简阶段子集
	EmergencyPhases []types.Phase `yaml:"emergency_phases" env:"-"`
}

// OrchestratorConfig 编排器配置
type OrchestratorConfig struct {
	// Phase 内 Alter 调用的最大并行度
	MaxParallel int `yaml:"max_parallel" env:"MAX_PARALLEL"`
	// 单次 Alter 调用超时
	AlterTimeout time.Duration `yaml:"alter_timeout" env:"ALTER_TIMEOUT"`
	// 运行级 deadline（0 表示不设）
	RunTimeout time.Duration `yaml:"run_timeout" env:"RUN_TIMEOUT"`
	// Team Assignment 过线分数阈值
	AssignThreshold int `yaml:"assign_threshold" env:"ASSIGN_THRESHOLD"`
	// 每个 Alter 每个 Phase 的最大尝试次数
	MaxAttempts int `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
	// 重试初始退避
	RetryInitialDelay time.Duration `yaml:"retry_initial_delay" env:"RETRY_INITIAL_DELAY"`
	// 重试最大退避
	RetryMaxDelay time.Duration `yaml:"retry_max_delay" env:"RETRY_MAX_DELAY"`
	// 退避倍增因子
	RetryMultiplier float64 `yaml:"retry_multiplier" env:"RETRY_MULTIPLIER"`
	// 调度器：平均延迟超过该值则裁剪 SelfVerify
	LatencyThreshold time.Duration `yaml:"latency_threshold" env:"LATENCY_THRESHOLD"`
	// 调度器：失败率超过该值则放宽单 Alter 超时
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" env:"FAILURE_RATE_THRESHOLD"`
	// 放宽超时的倍数
	TimeoutExtendFactor float64 `yaml:"timeout_extend_factor" env:"TIMEOUT_EXTEND_FACTOR"`
	// 提示词中携带的历史贡献条数上限
	HistoryLimit int `yaml:"history_limit" env:"HISTORY_LIMIT"`
}

// RetrievalConfig 检索管线配置
type RetrievalConfig struct {
	// 块大小（字符）
	ChunkSize int `yaml:"chunk_size" env:"CHUNK_SIZE"`
	// 相邻块重叠（字符）
	ChunkOverlap int `yaml:"chunk_overlap" env:"CHUNK_OVERLAP"`
	// 检索 Top-K
	TopK int `yaml:"top_k" env:"TOP_K"`
	// 上下文块字符预算：超出则先丢弃排名最低的块
	MaxContextChars int `yaml:"max_context_chars" env:"MAX_CONTEXT_CHARS"`
	// 距离度量: cosine, l2
	Metric string `yaml:"metric" env:"METRIC"`
	// 索引快照文件路径
	IndexPath string `yaml:"index_path" env:"INDEX_PATH"`
	// token 计数所用的 tiktoken 模型（空则退化为字符估算）
	TokenizerModel string `yaml:"tokenizer_model" env:"TOKENIZER_MODEL"`
}

// EmbeddingConfig 嵌入提供者配置
type EmbeddingConfig struct {
	// 提供者: openai, local
	Provider string `yaml:"provider" env:"PROVIDER"`
	// 基础 URL（OpenAI 兼容端点）
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 模型名
	Model string `yaml:"model" env:"MODEL"`
	// 向量维度
	Dimensions int `yaml:"dimensions" env:"DIMENSIONS"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// LLMConfig Alter 调用后端配置
type LLMConfig struct {
	// 提供者: ollama, openai
	Provider string `yaml:"provider" env:"PROVIDER"`
	// 基础 URL
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// API Key（openai 时必填）
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 模型名
	Model string `yaml:"model" env:"MODEL"`
	// 请求超时（作为调用方未显式给定时的缺省）
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 每秒请求数上限（0 表示不限流）
	RateLimit float64 `yaml:"rate_limit" env:"RATE_LIMIT"`
	// 突发容量
	RateBurst int `yaml:"rate_burst" env:"RATE_BURST"`
}

// ModeratorConfig moderator 后端配置
type ModeratorConfig struct {
	// 是否启用 moderator 合成；禁用时使用文档化的确定性拼接降级
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 提供者: ollama, openai
	Provider string `yaml:"provider" env:"PROVIDER"`
	// 基础 URL
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 模型名
	Model string `yaml:"model" env:"MODEL"`
	// 合成调用超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// DatabaseConfig 块存储数据库配置
type DatabaseConfig struct {
	// SQLite 数据库文件路径（":memory:" 表示内存库）
	Path string `yaml:"path" env:"PATH"`
}

// RedisConfig 跨运行指标存储配置
type RedisConfig struct {
	// 是否启用 Redis 指标存储（禁用时使用进程内存储）
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 键前缀
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "ALTERFLOW",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
// 注册表在加载时一次性校验，拒绝而非等到运行中途才失败。
func (l *Loader) Load() (*Config, error) {
	// 1. 从默认值开始
	cfg := DefaultConfig()

	// 2. 如果指定了配置文件，从文件加载
	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// 3. 从环境变量覆盖
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// 4. 内置校验
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// 5. 运行外部验证器
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		// 结构体递归处理
		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 校验与辅助函数
// =============================================================================

// Validate 校验配置的内部一致性。
// 注册表错误属于 ConfigError：启动即失败。
func (c *Config) Validate() error {
	if _, err := c.BuildRegistry(); err != nil {
		return err
	}
	for _, p := range c.Phases.EmergencyPhases {
		if !p.Valid() {
			return types.NewError(types.ErrConfig, "unknown emergency phase: "+string(p))
		}
	}
	if c.Orchestrator.MaxParallel <= 0 {
		return types.NewError(types.ErrConfig, "orchestrator.max_parallel must be positive")
	}
	if c.Orchestrator.MaxAttempts <= 0 {
		return types.NewError(types.ErrConfig, "orchestrator.max_attempts must be positive")
	}
	if c.Retrieval.ChunkSize <= 0 || c.Retrieval.ChunkOverlap < 0 ||
		c.Retrieval.ChunkOverlap >= c.Retrieval.ChunkSize {
		return types.NewError(types.ErrConfig, "retrieval chunk_overlap must be in [0, chunk_size)")
	}
	switch c.Retrieval.Metric {
	case "cosine", "l2":
	default:
		return types.NewError(types.ErrConfig, "retrieval.metric must be cosine or l2")
	}
	return nil
}

// BuildRegistry 从配置构建经过校验的注册表。
func (c *Config) BuildRegistry() (*types.Registry, error) {
	return types.NewRegistry(c.Registry.Teams, c.Registry.DefaultTeam)
}

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}
