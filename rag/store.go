package rag

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BaSui01/alterflow/types"
)

// DocumentRow 已摄入文档的行记录。
type DocumentRow struct {
	ID         string    `gorm:"primaryKey;size:255" json:"id"`
	ChunkCount int       `gorm:"not null" json:"chunk_count"`
	IngestedAt time.Time `gorm:"not null" json:"ingested_at"`
}

func (DocumentRow) TableName() string { return "documents" }

// ChunkRow 文档块的行记录。主键为 "<doc_id>#<index>"。
type ChunkRow struct {
	ID         string `gorm:"primaryKey;size:300" json:"id"`
	DocumentID string `gorm:"not null;index:idx_chunk_document;size:255" json:"document_id"`
	ChunkIndex int    `gorm:"not null" json:"chunk_index"`
	Content    string `gorm:"type:text;not null" json:"content"`
	StartPos   int    `gorm:"not null" json:"start_pos"`
	EndPos     int    `gorm:"not null" json:"end_pos"`
	TokenCount int    `gorm:"not null" json:"token_count"`
}

func (ChunkRow) TableName() string { return "chunks" }

// ChunkID 构造块的稳定主键。
func ChunkID(documentID string, index int) string {
	return fmt.Sprintf("%s#%04d", documentID, index)
}

// ChunkStore 基于 GORM/SQLite 的块存储。
type ChunkStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// OpenChunkStore 打开（或创建）SQLite 块存储并执行迁移。
// path 为 ":memory:" 时使用内存库。
func OpenChunkStore(path string, logger *zap.Logger) (*ChunkStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, types.NewError(types.ErrRetrieval, "open chunk store").WithCause(err)
	}
	if err := db.AutoMigrate(&DocumentRow{}, &ChunkRow{}); err != nil {
		return nil, types.NewError(types.ErrRetrieval, "migrate chunk store").WithCause(err)
	}
	return &ChunkStore{db: db, logger: logger}, nil
}

// ReplaceDocument 以事务方式替换文档的全部块。
// 同一文档重复摄入时先删除旧行，保证幂等。
func (s *ChunkStore) ReplaceDocument(ctx context.Context, documentID string, chunks []Chunk) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", documentID).Delete(&ChunkRow{}).Error; err != nil {
			return err
		}

		rows := make([]ChunkRow, len(chunks))
		for i, chunk := range chunks {
			rows[i] = ChunkRow{
				ID:         ChunkID(documentID, chunk.Index),
				DocumentID: documentID,
				ChunkIndex: chunk.Index,
				Content:    chunk.Content,
				StartPos:   chunk.StartPos,
				EndPos:     chunk.EndPos,
				TokenCount: chunk.TokenCount,
			}
		}
		if len(rows) > 0 {
			if err := tx.Create(&rows).Error; err != nil {
				return err
			}
		}

		doc := DocumentRow{
			ID:         documentID,
			ChunkCount: len(chunks),
			IngestedAt: time.Now().UTC(),
		}
		return tx.Save(&doc).Error
	})
	if err != nil {
		return types.NewError(types.ErrRetrieval, "replace document chunks").WithCause(err)
	}

	s.logger.Info("document chunks stored",
		zap.String("document_id", documentID),
		zap.Int("chunks", len(chunks)))
	return nil
}

// ChunkIDsForDocument 返回文档当前所有块的 ID，按块序。
func (s *ChunkStore) ChunkIDsForDocument(ctx context.Context, documentID string) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&ChunkRow{}).
		Where("document_id = ?", documentID).
		Order("chunk_index").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, types.NewError(types.ErrRetrieval, "list document chunks").WithCause(err)
	}
	return ids, nil
}

// ChunksByID 按 ID 批量取回块行。结果与输入 ID 顺序一致，缺失的 ID 被跳过。
func (s *ChunkStore) ChunksByID(ctx context.Context, ids []string) ([]ChunkRow, error) {
	if len(ids) == 0 {
		return []ChunkRow{}, nil
	}

	var rows []ChunkRow
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, types.NewError(types.ErrRetrieval, "fetch chunks").WithCause(err)
	}

	byID := make(map[string]ChunkRow, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
	}
	ordered := make([]ChunkRow, 0, len(ids))
	for _, id := range ids {
		if row, ok := byID[id]; ok {
			ordered = append(ordered, row)
		}
	}
	return ordered, nil
}

// Documents 返回全部文档行。
func (s *ChunkStore) Documents(ctx context.Context) ([]DocumentRow, error) {
	var docs []DocumentRow
	if err := s.db.WithContext(ctx).Order("id").Find(&docs).Error; err != nil {
		return nil, types.NewError(types.ErrRetrieval, "list documents").WithCause(err)
	}
	return docs, nil
}

// DeleteDocument 删除文档及其全部块。
func (s *ChunkStore) DeleteDocument(ctx context.Context, documentID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", documentID).Delete(&ChunkRow{}).Error; err != nil {
			return err
		}
		return tx.Delete(&DocumentRow{ID: documentID}).Error
	})
	if err != nil {
		return types.NewError(types.ErrRetrieval, "delete document").WithCause(err)
	}
	return nil
}
