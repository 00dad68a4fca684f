package rag

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/alterflow/llm/embedding"
	"github.com/BaSui01/alterflow/types"
)

// PipelineConfig 检索管线配置。
type PipelineConfig struct {
	Chunker         ChunkerConfig `json:"chunker"`
	TopK            int           `json:"top_k"`             // 检索候选数
	MaxContextChars int           `json:"max_context_chars"` // 上下文字符预算，0 表示不限
	IndexPath       string        `json:"index_path"`        // 快照路径，空表示不持久化
}

// DefaultPipelineConfig 默认管线配置。
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Chunker:         DefaultChunkerConfig(),
		TopK:            3,
		MaxContextChars: 4000,
	}
}

// RetrievedChunk 检索命中的块。
type RetrievedChunk struct {
	ID         string  `json:"id"`
	DocumentID string  `json:"document_id"`
	Content    string  `json:"content"`
	Distance   float64 `json:"distance"`
}

// RetrievalResult 一次检索的结果。
// Chunks 按距离升序；Context 是预算内的块拼接，可直接注入提示词。
type RetrievalResult struct {
	Context string           `json:"context"`
	Chunks  []RetrievedChunk `json:"chunks"`
}

// Pipeline 编排分块、嵌入、索引与块存储。
type Pipeline struct {
	config   PipelineConfig
	chunker  *Chunker
	embedder embedding.Provider
	index    *FlatIndex
	store    *ChunkStore
	logger   *zap.Logger
}

// NewPipeline 创建检索管线。IndexPath 非空时尝试加载既有快照。
func NewPipeline(config PipelineConfig, embedder embedding.Provider, index *FlatIndex, store *ChunkStore, tokenizer Tokenizer, logger *zap.Logger) (*Pipeline, error) {
	if config.TopK <= 0 {
		config.TopK = DefaultPipelineConfig().TopK
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "rag"))

	if config.IndexPath != "" {
		if err := index.LoadSnapshot(config.IndexPath); err != nil {
			return nil, err
		}
	}

	return &Pipeline{
		config:   config,
		chunker:  NewChunker(config.Chunker, tokenizer, logger),
		embedder: embedder,
		index:    index,
		store:    store,
		logger:   logger,
	}, nil
}

// Ingest 摄入一个文档：分块、批量嵌入、建索引、落库、写快照。
// 空白文档记录警告后跳过，不报错；嵌入不了的块（全零向量、维度不符）
// 同样跳过并告警，只有成功建索引的块才写入存储。
// 重复摄入同一文档 ID 会先清掉旧块。
func (p *Pipeline) Ingest(ctx context.Context, documentID, text string) (int, error) {
	chunks := p.chunker.Split(text)
	if len(chunks) == 0 {
		p.logger.Warn("document is empty, skipping ingest",
			zap.String("document_id", documentID))
		return 0, nil
	}

	contents := make([]string, len(chunks))
	for i, chunk := range chunks {
		contents[i] = chunk.Content
	}
	vectors, err := embedding.EmbedDocuments(ctx, p.embedder, contents)
	if err != nil {
		return 0, types.NewError(types.ErrRetrieval, "embed document chunks").WithCause(err)
	}

	staleIDs, err := p.store.ChunkIDsForDocument(ctx, documentID)
	if err != nil {
		return 0, err
	}

	// 先建索引再落库：单个块建不了索引只丢这一块，不让整篇摄入失败
	kept := make([]Chunk, 0, len(chunks))
	for i, chunk := range chunks {
		if err := p.index.Add(ChunkID(documentID, chunk.Index), vectors[i]); err != nil {
			p.logger.Warn("chunk not indexable, skipping",
				zap.String("document_id", documentID),
				zap.Int("chunk_index", chunk.Index),
				zap.Error(err))
			continue
		}
		kept = append(kept, chunk)
	}
	if len(kept) == 0 {
		p.logger.Warn("document has no indexable chunks, skipping ingest",
			zap.String("document_id", documentID))
		return 0, nil
	}

	// 上一版本遗留、本次未覆盖到的旧块从索引摘除
	keptIDs := make(map[string]bool, len(kept))
	for _, chunk := range kept {
		keptIDs[ChunkID(documentID, chunk.Index)] = true
	}
	for _, id := range staleIDs {
		if !keptIDs[id] {
			p.index.Delete(id)
		}
	}

	if err := p.store.ReplaceDocument(ctx, documentID, kept); err != nil {
		// 落库失败时撤掉本次写入的向量，索引不留无主条目
		for _, chunk := range kept {
			p.index.Delete(ChunkID(documentID, chunk.Index))
		}
		return 0, err
	}

	if p.config.IndexPath != "" {
		if err := p.index.Snapshot(p.config.IndexPath); err != nil {
			return 0, err
		}
	}

	p.logger.Info("document ingested",
		zap.String("document_id", documentID),
		zap.Int("chunks", len(kept)),
		zap.Int("skipped", len(chunks)-len(kept)),
		zap.Int("index_size", p.index.Size()))
	return len(kept), nil
}

// Retrieve 为查询取回 Top-K 块并组装上下文。
// 索引为空时返回空结果，不报错。超出字符预算时先丢弃排名最低的块。
func (p *Pipeline) Retrieve(ctx context.Context, query string) (*RetrievalResult, error) {
	if p.index.Size() == 0 {
		return &RetrievalResult{Chunks: []RetrievedChunk{}}, nil
	}

	queryVec, err := embedding.EmbedQuery(ctx, p.embedder, query)
	if err != nil {
		return nil, types.NewError(types.ErrRetrieval, "embed query").WithCause(err)
	}

	hits, err := p.index.Search(queryVec, p.config.TopK)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return &RetrievalResult{Chunks: []RetrievedChunk{}}, nil
	}

	ids := make([]string, len(hits))
	distanceByID := make(map[string]float64, len(hits))
	for i, hit := range hits {
		ids[i] = hit.ID
		distanceByID[hit.ID] = hit.Distance
	}

	rows, err := p.store.ChunksByID(ctx, ids)
	if err != nil {
		return nil, err
	}

	chunks := make([]RetrievedChunk, 0, len(rows))
	for _, row := range rows {
		chunks = append(chunks, RetrievedChunk{
			ID:         row.ID,
			DocumentID: row.DocumentID,
			Content:    row.Content,
			Distance:   distanceByID[row.ID],
		})
	}

	kept := p.fitBudget(chunks)
	contents := make([]string, len(kept))
	for i, chunk := range kept {
		contents[i] = chunk.Content
	}

	p.logger.Debug("retrieval completed",
		zap.Int("hits", len(chunks)),
		zap.Int("kept", len(kept)))

	return &RetrievalResult{
		Context: strings.Join(contents, "\n\n"),
		Chunks:  kept,
	}, nil
}

// fitBudget 按字符预算裁剪，从排名最低的块开始丢弃。
func (p *Pipeline) fitBudget(chunks []RetrievedChunk) []RetrievedChunk {
	if p.config.MaxContextChars <= 0 {
		return chunks
	}

	total := 0
	for _, chunk := range chunks {
		total += len(chunk.Content)
	}
	kept := chunks
	for len(kept) > 0 && total > p.config.MaxContextChars {
		last := kept[len(kept)-1]
		total -= len(last.Content)
		kept = kept[:len(kept)-1]
	}
	return kept
}
