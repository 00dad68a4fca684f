package rag

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// Tokenizer 统计文本的 token 数，用于块的元数据与预算估算。
type Tokenizer interface {
	CountTokens(text string) int
}

// TiktokenCounter 基于 tiktoken 的精确计数器。
// 编码数据懒初始化（首次使用时可能下载）；初始化失败时
// 回退到 len/4 字符估算并记录一次警告。
type TiktokenCounter struct {
	model  string
	logger *zap.Logger

	once    sync.Once
	enc     *tiktoken.Tiktoken
	initErr error
}

// NewTiktokenCounter 创建 tiktoken 计数器。model 如 "gpt-4o"、"gpt-3.5-turbo"。
func NewTiktokenCounter(model string, logger *zap.Logger) *TiktokenCounter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TiktokenCounter{model: model, logger: logger}
}

func (t *TiktokenCounter) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.EncodingForModel(t.model)
		if err != nil {
			t.initErr = err
			t.logger.Warn("tiktoken init failed, falling back to char estimate",
				zap.String("model", t.model),
				zap.Error(err))
			return
		}
		t.enc = enc
	})
	return t.initErr
}

// CountTokens 返回文本的 token 数，失败时退化为 len/4 估算。
func (t *TiktokenCounter) CountTokens(text string) int {
	if err := t.init(); err != nil {
		return estimateTokens(text)
	}
	return len(t.enc.Encode(text, nil, nil))
}

// EstimatorCounter 纯估算计数器，不依赖编码数据下载。
type EstimatorCounter struct{}

func (EstimatorCounter) CountTokens(text string) int {
	return estimateTokens(text)
}

// estimateTokens 按 1 token ≈ 4 字符估算。
func estimateTokens(text string) int {
	return len(text) / 4
}

// NewTokenizer 按配置选择计数器：model 为空时使用估算器。
func NewTokenizer(model string, logger *zap.Logger) Tokenizer {
	if model == "" {
		return EstimatorCounter{}
	}
	return NewTiktokenCounter(model, logger)
}
