package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/lectern/internal/core/domain"
)

func seedGraph(t *testing.T, g *ChunkGraph, docID string, vectors [][]float32) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, g.UpsertDocument(ctx, domain.DocumentNode{ID: docID, Name: docID}))
	for i, v := range vectors {
		chunk := domain.Chunk{
			ID:         fmt.Sprintf("%s-%d", docID, i),
			DocumentID: docID,
			Index:      i,
			Text:       fmt.Sprintf("%s chunk %d", docID, i),
			Embedding:  v,
		}
		require.NoError(t, g.AddChunk(ctx, chunk, []string{"Photosynthesis", "light"}))
	}
}

func TestChunkGraph_EnsureVectorIndex(t *testing.T) {
	g := NewChunkGraph()
	ctx := context.Background()

	require.NoError(t, g.EnsureVectorIndex(ctx, 3))
	require.NoError(t, g.EnsureVectorIndex(ctx, 3))
	assert.ErrorIs(t, g.EnsureVectorIndex(ctx, 4), domain.ErrConfiguration)
	assert.ErrorIs(t, g.EnsureVectorIndex(ctx, 0), domain.ErrInvalidInput)
}

func TestChunkGraph_AddChunk_RequiresDocument(t *testing.T) {
	g := NewChunkGraph()

	err := g.AddChunk(context.Background(), domain.Chunk{ID: "c", DocumentID: "ghost"}, nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestChunkGraph_AddChunk_DimensionMismatch(t *testing.T) {
	g := NewChunkGraph()
	ctx := context.Background()
	require.NoError(t, g.EnsureVectorIndex(ctx, 3))
	require.NoError(t, g.UpsertDocument(ctx, domain.DocumentNode{ID: "doc-a"}))

	err := g.AddChunk(ctx, domain.Chunk{ID: "c", DocumentID: "doc-a", Embedding: []float32{1, 0}}, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestChunkGraph_SearchDocument_IsScoped(t *testing.T) {
	g := NewChunkGraph()
	ctx := context.Background()

	// doc-b holds the vectors closest to the query; they must never surface for doc-a.
	seedGraph(t, g, "doc-a", [][]float32{{0, 1, 0}, {0.2, 0.8, 0}, {0, 0, 1}})
	seedGraph(t, g, "doc-b", [][]float32{{1, 0, 0}, {0.99, 0.01, 0}})

	hits, err := g.SearchDocument(ctx, "doc-a", []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	for _, h := range hits {
		assert.Equal(t, "doc-a", h.DocumentID)
	}
	assert.Equal(t, 1, hits[0].ChunkIndex, "closest doc-a chunk ranks first")
	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].Score, hits[i].Score)
	}
}

func TestChunkGraph_SearchDocument_TruncatesToK(t *testing.T) {
	g := NewChunkGraph()
	seedGraph(t, g, "doc-a", [][]float32{{1, 0}, {0, 1}, {1, 1}})

	hits, err := g.SearchDocument(context.Background(), "doc-a", []float32{1, 0}, 2)
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	_, err = g.SearchDocument(context.Background(), "doc-a", []float32{1, 0}, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestChunkGraph_SearchDocument_UnknownDocument(t *testing.T) {
	g := NewChunkGraph()
	seedGraph(t, g, "doc-a", [][]float32{{1, 0}})

	hits, err := g.SearchDocument(context.Background(), "ghost", []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestChunkGraph_ListChunksAndCount(t *testing.T) {
	g := NewChunkGraph()
	ctx := context.Background()
	seedGraph(t, g, "doc-a", [][]float32{{1}, {2}, {3}})

	n, err := g.CountChunks(ctx, "doc-a")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	chunks, err := g.ListChunks(ctx, "doc-a")
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
	}
}

func TestChunkGraph_DeleteDocument(t *testing.T) {
	g := NewChunkGraph()
	ctx := context.Background()
	seedGraph(t, g, "doc-a", [][]float32{{1, 0}, {0, 1}})
	seedGraph(t, g, "doc-b", [][]float32{{1, 0}})

	require.NoError(t, g.DeleteDocument(ctx, "doc-a"))

	n, _ := g.CountChunks(ctx, "doc-a")
	assert.Zero(t, n)
	n, _ = g.CountChunks(ctx, "doc-b")
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, g.ConceptCount(), "concepts survive document deletion")

	assert.NoError(t, g.DeleteDocument(ctx, "ghost"))
}

func TestChunkGraph_ListConcepts(t *testing.T) {
	g := NewChunkGraph()
	ctx := context.Background()
	require.NoError(t, g.UpsertDocument(ctx, domain.DocumentNode{ID: "doc-a"}))
	require.NoError(t, g.AddChunk(ctx, domain.Chunk{ID: "c0", DocumentID: "doc-a", Index: 0}, []string{"Cells", "  energy "}))
	require.NoError(t, g.AddChunk(ctx, domain.Chunk{ID: "c1", DocumentID: "doc-a", Index: 1}, []string{"cells", ""}))

	concepts, err := g.ListConcepts(ctx, "doc-a", 10)
	require.NoError(t, err)
	require.Len(t, concepts, 2)
	assert.Equal(t, domain.ConceptCount{Name: "cells", Chunks: 2}, concepts[0])
	assert.Equal(t, domain.ConceptCount{Name: "energy", Chunks: 1}, concepts[1])
}
