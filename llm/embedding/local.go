package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// LocalProvider 是基于特征哈希的本地确定性嵌入器。
// 不依赖任何外部模型服务：分词后将每个 token 哈希到固定维度的桶，
// 累加计数并做 L2 归一化。语义质量远不及真实嵌入模型，但输出确定、
// 零依赖，适合离线运行与测试（文档化降级，而非静默替代）。
type LocalProvider struct {
	dimensions int
}

// NewLocalProvider 创建本地嵌入器。dimensions <= 0 时取 384。
func NewLocalProvider(dimensions int) *LocalProvider {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &LocalProvider{dimensions: dimensions}
}

func (p *LocalProvider) Name() string    { return "local" }
func (p *LocalProvider) Dimensions() int { return p.dimensions }

// Embed 实现 Provider。相同输入永远产出相同向量。
func (p *LocalProvider) Embed(ctx context.Context, req *EmbeddingRequest) (*EmbeddingResponse, error) {
	embeddings := make([]EmbeddingData, len(req.Input))
	totalTokens := 0

	for i, text := range req.Input {
		vec, n := p.embedOne(text)
		totalTokens += n
		embeddings[i] = EmbeddingData{Index: i, Embedding: vec}
	}

	return &EmbeddingResponse{
		Provider:   p.Name(),
		Model:      "feature-hash",
		Embeddings: embeddings,
		Usage:      EmbeddingUsage{PromptTokens: totalTokens, TotalTokens: totalTokens},
	}, nil
}

func (p *LocalProvider) embedOne(text string) ([]float64, int) {
	vec := make([]float64, p.dimensions)

	tokens := tokenize(text)
	for _, tok := range tokens {
		h := fnv.New32a()
		h.Write([]byte(tok))
		bucket := int(h.Sum32()) % p.dimensions
		if bucket < 0 {
			bucket += p.dimensions
		}
		vec[bucket]++
	}

	// L2 归一化，使余弦与点积等价
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i] /= norm
		}
	}

	return vec, len(tokens)
}

// tokenize 小写化并按非字母数字切分。
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
