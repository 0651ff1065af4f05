//go:build integration

package qdrant

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/lectern/internal/core/domain"
)

// Run with: LECTERN_TEST_QDRANT_ADDR=host:port go test -tags integration ./internal/adapters/driven/graph/qdrant/
// Requires a Qdrant server (gRPC port).
func setupLiveGraph(t *testing.T) *ChunkGraph {
	t.Helper()
	addr := os.Getenv("LECTERN_TEST_QDRANT_ADDR")
	if addr == "" {
		t.Skip("LECTERN_TEST_QDRANT_ADDR not set")
	}
	ctx := context.Background()
	index := fmt.Sprintf("lectern_it_%d", time.Now().UnixNano())
	g, err := New(Config{Addr: addr, APIKey: os.Getenv("LECTERN_TEST_QDRANT_API_KEY"), Index: index})
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })
	t.Cleanup(func() {
		_ = g.client.DeleteCollection(context.Background(), g.collection)
		_ = g.client.DeleteCollection(context.Background(), g.documents)
	})
	require.NoError(t, g.EnsureVectorIndex(ctx, 3))
	return g
}

// seedLive stores n chunks for docID whose vectors differ only by a tiny offset.
func seedLive(t *testing.T, g *ChunkGraph, docID string, n int, offset float32) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, g.UpsertDocument(ctx, domain.DocumentNode{ID: docID, Name: docID + ".pdf"}))
	t.Cleanup(func() { _ = g.DeleteDocument(context.Background(), docID) })
	for i := range n {
		require.NoError(t, g.AddChunk(ctx, domain.Chunk{
			ID:         fmt.Sprintf("%s-chunk-%d", docID, i),
			DocumentID: docID,
			Index:      i,
			Text:       fmt.Sprintf("%s passage %d", docID, i),
			Embedding:  []float32{1, float32(i) * 0.01, offset},
		}, []string{"shared"}))
	}
}

func TestLiveSearchDocument_NeverCrossesDocuments(t *testing.T) {
	g := setupLiveGraph(t)
	ctx := context.Background()

	// The foreign document is closer to every query than any target chunk.
	seedLive(t, g, "doc-target", 4, 0.05)
	seedLive(t, g, "doc-foreign", 20, 0)

	query := []float32{1, 0, 0}
	for k := 1; k <= 10; k++ {
		var hits []domain.ChunkHit
		require.Eventually(t, func() bool {
			var err error
			hits, err = g.SearchDocument(ctx, "doc-target", query, k)
			return err == nil && len(hits) == min(k, 4)
		}, 10*time.Second, 100*time.Millisecond, "k=%d", k)

		for _, hit := range hits {
			assert.Equal(t, "doc-target", hit.DocumentID, "k=%d", k)
		}
	}
}

func TestLiveSearchDocument_UnknownDocumentIsEmpty(t *testing.T) {
	g := setupLiveGraph(t)
	seedLive(t, g, "doc-foreign", 5, 0)

	hits, err := g.SearchDocument(context.Background(), "doc-missing", []float32{1, 0, 0}, 5)

	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestLiveDeleteDocument_RemovesOnlyItsChunks(t *testing.T) {
	g := setupLiveGraph(t)
	ctx := context.Background()
	seedLive(t, g, "doc-kept", 3, 0)
	seedLive(t, g, "doc-dropped", 3, 0)

	require.NoError(t, g.DeleteDocument(ctx, "doc-dropped"))

	require.Eventually(t, func() bool {
		n, err := g.CountChunks(ctx, "doc-dropped")
		return err == nil && n == 0
	}, 10*time.Second, 100*time.Millisecond)
	n, err := g.CountChunks(ctx, "doc-kept")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
