package orchestrator

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/alterflow/types"
)

// CrossRunSnapshot 是跨运行累积指标的只读快照。
type CrossRunSnapshot struct {
	Runs        int64         `json:"runs"`
	Invocations int64         `json:"invocations"`
	Failures    int64         `json:"failures"`
	AvgLatency  time.Duration `json:"avg_latency"`
	FailureRate float64       `json:"failure_rate"`
}

// MetricsStore 是显式注入的跨运行指标存储。
// 每次运行开始时读一份快照，结束时贡献一次更新；没有环境全局态。
type MetricsStore interface {
	// Snapshot 读取跨运行累积指标
	Snapshot(ctx context.Context) (CrossRunSnapshot, error)
	// Update 合入一次运行的指标
	Update(ctx context.Context, run types.MetricsSnapshot) error
}

// ====== 进程内实现 ======

// MemoryMetricsStore 进程内指标存储，适合单进程部署与测试。
type MemoryMetricsStore struct {
	mu           sync.Mutex
	runs         int64
	invocations  int64
	failures     int64
	totalLatency time.Duration
}

// NewMemoryMetricsStore 创建进程内存储。
func NewMemoryMetricsStore() *MemoryMetricsStore {
	return &MemoryMetricsStore{}
}

func (s *MemoryMetricsStore) Snapshot(ctx context.Context) (CrossRunSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return buildSnapshot(s.runs, s.invocations, s.failures, s.totalLatency), nil
}

func (s *MemoryMetricsStore) Update(ctx context.Context, run types.MetricsSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs++
	s.invocations += int64(run.Invocations)
	s.failures += int64(run.Failures)
	s.totalLatency += run.AvgLatency * time.Duration(run.Invocations)
	return nil
}

// ====== Redis 实现 ======

// RedisMetricsStore 把跨运行指标放在一个 Redis hash 里，
// 多个进程可以共享同一份累积信号。
type RedisMetricsStore struct {
	client *redis.Client
	key    string
	logger *zap.Logger
}

// RedisMetricsConfig Redis 指标存储配置。
type RedisMetricsConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// NewRedisMetricsStore 连接 Redis 并创建存储。启动时 Ping 验证连通性。
func NewRedisMetricsStore(cfg RedisMetricsConfig, logger *zap.Logger) (*RedisMetricsStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, types.NewError(types.ErrConfig, "connect to redis metrics store").WithCause(err)
	}

	key := cfg.KeyPrefix
	if key == "" {
		key = "alterflow:metrics"
	}
	return &RedisMetricsStore{
		client: client,
		key:    key,
		logger: logger.With(zap.String("component", "metrics_store")),
	}, nil
}

// NewRedisMetricsStoreWithClient 复用既有客户端（测试用 miniredis 注入）。
func NewRedisMetricsStoreWithClient(client *redis.Client, keyPrefix string, logger *zap.Logger) *RedisMetricsStore {
	if keyPrefix == "" {
		keyPrefix = "alterflow:metrics"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisMetricsStore{client: client, key: keyPrefix, logger: logger}
}

func (s *RedisMetricsStore) Snapshot(ctx context.Context) (CrossRunSnapshot, error) {
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return CrossRunSnapshot{}, err
	}

	get := func(name string) int64 {
		v, _ := strconv.ParseInt(fields[name], 10, 64)
		return v
	}
	return buildSnapshot(
		get("runs"),
		get("invocations"),
		get("failures"),
		time.Duration(get("total_latency_ms"))*time.Millisecond,
	), nil
}

func (s *RedisMetricsStore) Update(ctx context.Context, run types.MetricsSnapshot) error {
	totalLatency := run.AvgLatency * time.Duration(run.Invocations)

	pipe := s.client.Pipeline()
	pipe.HIncrBy(ctx, s.key, "runs", 1)
	pipe.HIncrBy(ctx, s.key, "invocations", int64(run.Invocations))
	pipe.HIncrBy(ctx, s.key, "failures", int64(run.Failures))
	pipe.HIncrBy(ctx, s.key, "total_latency_ms", totalLatency.Milliseconds())
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	return nil
}

func buildSnapshot(runs, invocations, failures int64, totalLatency time.Duration) CrossRunSnapshot {
	snap := CrossRunSnapshot{
		Runs:        runs,
		Invocations: invocations,
		Failures:    failures,
	}
	if invocations > 0 {
		snap.AvgLatency = totalLatency / time.Duration(invocations)
		snap.FailureRate = float64(failures) / float64(invocations)
	}
	return snap
}
