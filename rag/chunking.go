package rag

import (
	"strings"

	"go.uber.org/zap"
)

// Chunk 文档块。位置以 rune 为单位，指向原始文档。
type Chunk struct {
	Index      int    `json:"index"`
	Content    string `json:"content"`
	StartPos   int    `json:"start_pos"`
	EndPos     int    `json:"end_pos"`
	TokenCount int    `json:"token_count"`
}

// ChunkerConfig 固定大小分块配置（字符计）。
type ChunkerConfig struct {
	ChunkSize    int `json:"chunk_size"`    // 每块字符数
	ChunkOverlap int `json:"chunk_overlap"` // 相邻块重叠字符数，必须小于 ChunkSize
}

// DefaultChunkerConfig 默认分块配置。
func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{
		ChunkSize:    512,
		ChunkOverlap: 50,
	}
}

// Chunker 固定大小重叠分块器。
type Chunker struct {
	config    ChunkerConfig
	tokenizer Tokenizer
	logger    *zap.Logger
}

// NewChunker 创建分块器。overlap >= size 时收缩为 size-1。
func NewChunker(config ChunkerConfig, tokenizer Tokenizer, logger *zap.Logger) *Chunker {
	if config.ChunkSize <= 0 {
		config.ChunkSize = DefaultChunkerConfig().ChunkSize
	}
	if config.ChunkOverlap < 0 {
		config.ChunkOverlap = 0
	}
	if config.ChunkOverlap >= config.ChunkSize {
		config.ChunkOverlap = config.ChunkSize - 1
	}
	if tokenizer == nil {
		tokenizer = EstimatorCounter{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chunker{config: config, tokenizer: tokenizer, logger: logger}
}

// Split 将文本切为固定大小的重叠块。
// 空白文本返回空切片；块按文档顺序编号，相邻块共享 ChunkOverlap 个字符。
func (c *Chunker) Split(text string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return []Chunk{}
	}

	runes := []rune(text)
	step := c.config.ChunkSize - c.config.ChunkOverlap

	chunks := []Chunk{}
	for start := 0; start < len(runes); start += step {
		end := start + c.config.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}

		content := string(runes[start:end])
		chunks = append(chunks, Chunk{
			Index:      len(chunks),
			Content:    content,
			StartPos:   start,
			EndPos:     end,
			TokenCount: c.tokenizer.CountTokens(content),
		})

		if end >= len(runes) {
			break
		}
	}

	c.logger.Debug("document split",
		zap.Int("chunks", len(chunks)),
		zap.Int("chunk_size", c.config.ChunkSize),
		zap.Int("overlap", c.config.ChunkOverlap))

	return chunks
}
