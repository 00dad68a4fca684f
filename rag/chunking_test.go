package rag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"
)

func TestChunker_EmptyDocument(t *testing.T) {
	c := NewChunker(DefaultChunkerConfig(), EstimatorCounter{}, zap.NewNop())

	assert.Empty(t, c.Split(""))
	assert.Empty(t, c.Split("   \n\t  "))
}

func TestChunker_SingleChunk(t *testing.T) {
	c := NewChunker(ChunkerConfig{ChunkSize: 100, ChunkOverlap: 10}, EstimatorCounter{}, zap.NewNop())

	chunks := c.Split("short document")
	require.Len(t, chunks, 1)
	assert.Equal(t, "short document", chunks[0].Content)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, 0, chunks[0].StartPos)
	assert.Equal(t, len("short document"), chunks[0].EndPos)
}

func TestChunker_OverlapSharedBetweenNeighbors(t *testing.T) {
	c := NewChunker(ChunkerConfig{ChunkSize: 10, ChunkOverlap: 4}, EstimatorCounter{}, zap.NewNop())

	text := "abcdefghijklmnopqrstuvwxyz"
	chunks := c.Split(text)
	require.Greater(t, len(chunks), 1)

	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1].Content)
		curr := []rune(chunks[i].Content)
		tail := string(prev[len(prev)-4:])
		head := string(curr[:4])
		assert.Equal(t, tail, head, "相邻块应共享 overlap 段")
	}
}

func TestChunker_CJKRuneBoundaries(t *testing.T) {
	c := NewChunker(ChunkerConfig{ChunkSize: 4, ChunkOverlap: 1}, EstimatorCounter{}, zap.NewNop())

	chunks := c.Split("一二三四五六七八")
	require.NotEmpty(t, chunks)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len([]rune(chunk.Content)), 4)
		// 不得在 UTF-8 序列中间切断
		assert.True(t, strings.ToValidUTF8(chunk.Content, "") == chunk.Content)
	}
}

func TestChunker_ShrinksInvalidOverlap(t *testing.T) {
	c := NewChunker(ChunkerConfig{ChunkSize: 5, ChunkOverlap: 9}, EstimatorCounter{}, zap.NewNop())

	chunks := c.Split("abcdefghij")
	require.NotEmpty(t, chunks, "overlap >= size 时必须仍能推进")
}

// 分块不变量：块大小受限、编号连续、去掉 overlap 前缀后可无损重建原文。
func TestChunker_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		size := rapid.IntRange(2, 64).Draw(t, "size")
		overlap := rapid.IntRange(0, size-1).Draw(t, "overlap")
		text := rapid.StringN(1, 512, -1).Draw(t, "text")
		if strings.TrimSpace(text) == "" {
			t.Skip("blank document")
		}

		c := NewChunker(ChunkerConfig{ChunkSize: size, ChunkOverlap: overlap}, EstimatorCounter{}, zap.NewNop())
		chunks := c.Split(text)

		if len(chunks) == 0 {
			t.Fatalf("non-blank document produced no chunks")
		}

		var rebuilt strings.Builder
		for i, chunk := range chunks {
			if chunk.Index != i {
				t.Fatalf("chunk %d has index %d", i, chunk.Index)
			}
			runes := []rune(chunk.Content)
			if len(runes) == 0 || len(runes) > size {
				t.Fatalf("chunk %d has %d runes, want 1..%d", i, len(runes), size)
			}
			if i == 0 {
				rebuilt.WriteString(chunk.Content)
			} else {
				rebuilt.WriteString(string(runes[overlap:]))
			}
		}

		if rebuilt.String() != text {
			t.Fatalf("chunks do not reassemble into the original document")
		}
	})
}
