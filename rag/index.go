package rag

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/alterflow/types"
)

// Metric 距离度量。
type Metric string

const (
	MetricCosine Metric = "cosine" // 余弦距离 1 - cos(a, b)
	MetricL2     Metric = "l2"     // 欧氏距离
)

// SearchResult 索引搜索结果，按距离升序返回。
type SearchResult struct {
	ID       string  `json:"id"`
	Distance float64 `json:"distance"`
}

// FlatIndex 扁平向量索引（暴力搜索）。
// 首个插入的向量固定索引维度；全零或空向量被拒绝。
// 读写由 RWMutex 保护，快照为 JSON 文件。
type FlatIndex struct {
	mu        sync.RWMutex
	metric    Metric
	dimension int
	ids       []string // 插入顺序
	vectors   map[string][]float64
	logger    *zap.Logger
}

// NewFlatIndex 创建扁平索引。metric 非法时使用 cosine。
func NewFlatIndex(metric Metric, logger *zap.Logger) *FlatIndex {
	if metric != MetricCosine && metric != MetricL2 {
		metric = MetricCosine
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FlatIndex{
		metric:  metric,
		vectors: make(map[string][]float64),
		logger:  logger,
	}
}

// Add 插入或覆盖一个向量。
// 空向量和全零向量返回 INVALID_VECTOR；与索引维度不符返回 DIMENSION_MISMATCH。
func (idx *FlatIndex) Add(id string, vector []float64) error {
	if err := validateVector(vector); err != nil {
		return err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.dimension == 0 {
		idx.dimension = len(vector)
	} else if len(vector) != idx.dimension {
		return types.NewError(types.ErrDimensionMismatch,
			fmt.Sprintf("vector %s has dimension %d, index expects %d", id, len(vector), idx.dimension))
	}

	if _, exists := idx.vectors[id]; !exists {
		idx.ids = append(idx.ids, id)
	}
	idx.vectors[id] = vector
	return nil
}

// Delete 删除向量。不存在的 ID 是 no-op。
func (idx *FlatIndex) Delete(id string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, exists := idx.vectors[id]; !exists {
		return
	}
	delete(idx.vectors, id)
	for i, existing := range idx.ids {
		if existing == id {
			idx.ids = append(idx.ids[:i], idx.ids[i+1:]...)
			break
		}
	}
}

// Search 返回与 query 距离最近的 k 个结果，按距离升序。
// 空索引返回空切片；k <= 0 返回空切片。
// 距离相同时按插入顺序决定先后，保证结果确定。
func (idx *FlatIndex) Search(query []float64, k int) ([]SearchResult, error) {
	if err := validateVector(query); err != nil {
		return nil, err
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(idx.vectors) == 0 || k <= 0 {
		return []SearchResult{}, nil
	}
	if len(query) != idx.dimension {
		return nil, types.NewError(types.ErrDimensionMismatch,
			fmt.Sprintf("query has dimension %d, index expects %d", len(query), idx.dimension))
	}

	results := make([]SearchResult, 0, len(idx.ids))
	for _, id := range idx.ids {
		results = append(results, SearchResult{
			ID:       id,
			Distance: idx.distance(query, idx.vectors[id]),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})

	if k > len(results) {
		k = len(results)
	}
	return results[:k], nil
}

// Size 返回索引中的向量数。
func (idx *FlatIndex) Size() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.vectors)
}

func (idx *FlatIndex) distance(a, b []float64) float64 {
	switch idx.metric {
	case MetricL2:
		var sum float64
		for i := range a {
			d := a[i] - b[i]
			sum += d * d
		}
		return math.Sqrt(sum)
	default:
		var dot, normA, normB float64
		for i := range a {
			dot += a[i] * b[i]
			normA += a[i] * a[i]
			normB += b[i] * b[i]
		}
		if normA == 0 || normB == 0 {
			return 1.0
		}
		return 1.0 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
	}
}

// validateVector 拒绝空向量与全零向量。
func validateVector(vector []float64) error {
	if len(vector) == 0 {
		return types.NewError(types.ErrInvalidVector, "vector is empty")
	}
	allZero := true
	for _, v := range vector {
		if v != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		return types.NewError(types.ErrInvalidVector, "vector is all zeros")
	}
	return nil
}

// ====== 快照持久化 ======

type indexSnapshot struct {
	Metric    Metric               `json:"metric"`
	Dimension int                  `json:"dimension"`
	IDs       []string             `json:"ids"`
	Vectors   map[string][]float64 `json:"vectors"`
}

// Snapshot 将索引写入 JSON 文件。先写临时文件再重命名，避免半写状态。
func (idx *FlatIndex) Snapshot(path string) error {
	idx.mu.RLock()
	snap := indexSnapshot{
		Metric:    idx.metric,
		Dimension: idx.dimension,
		IDs:       append([]string(nil), idx.ids...),
		Vectors:   make(map[string][]float64, len(idx.vectors)),
	}
	for id, vec := range idx.vectors {
		snap.Vectors[id] = vec
	}
	idx.mu.RUnlock()

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal index snapshot: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write index snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit index snapshot: %w", err)
	}

	idx.logger.Info("index snapshot written",
		zap.String("path", path),
		zap.Int("vectors", len(snap.IDs)))
	return nil
}

// LoadSnapshot 从 JSON 文件恢复索引。文件不存在时保持索引为空，不报错。
func (idx *FlatIndex) LoadSnapshot(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read index snapshot: %w", err)
	}

	var snap indexSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("parse index snapshot: %w", err)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.metric = snap.Metric
	idx.dimension = snap.Dimension
	idx.ids = snap.IDs
	idx.vectors = snap.Vectors
	if idx.vectors == nil {
		idx.vectors = make(map[string][]float64)
	}

	idx.logger.Info("index snapshot loaded",
		zap.String("path", path),
		zap.Int("vectors", len(idx.ids)))
	return nil
}
