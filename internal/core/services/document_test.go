package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/lectern/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/retry"
)

func newDocumentFixture(t *testing.T) (*memory.DocumentStore, *memory.ChunkGraph) {
	t.Helper()
	docs := memory.NewDocumentStore()
	graph := memory.NewChunkGraph()

	ctx := context.Background()
	require.NoError(t, docs.CreateDocument(ctx, &domain.Document{
		ID: "doc-1", OwnerID: "alice", Name: "Doc", Status: domain.StatusProcessing,
	}))

	tx, err := docs.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.SaveChapters(ctx, testChapters("doc-1", [2]int{0, 2}, [2]int{2, 3})))
	require.NoError(t, tx.Commit())

	_, err = NewIndexer(graph, &fakeEmbedder{}, &stubConcepts{}, IndexerOptions{ConceptRate: -1}).
		Index(ctx, IndexRequest{DocumentID: "doc-1", Chunks: []string{"alpha one", "beta two", "gamma three"}})
	require.NoError(t, err)
	require.NoError(t, docs.TransitionStatus(ctx, "doc-1", domain.StatusProcessing, domain.StatusReady))
	return docs, graph
}

func TestDocumentService_ListAndGet(t *testing.T) {
	docs, graph := newDocumentFixture(t)
	svc := NewDocumentService(docs, graph)
	ctx := context.Background()

	list, err := svc.List(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = svc.List(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, list)

	doc, err := svc.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "Doc", doc.Name)

	_, err = svc.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDocumentService_Details(t *testing.T) {
	docs, graph := newDocumentFixture(t)

	details, err := NewDocumentService(docs, graph).Details(context.Background(), "doc-1")
	require.NoError(t, err)

	assert.Equal(t, "doc-1", details.Document.ID)
	assert.Len(t, details.Chapters, 2)
	assert.Equal(t, 3, details.ChunkCount)
	require.NotEmpty(t, details.Concepts)
	assert.Equal(t, "shared", details.Concepts[0].Name)
}

func TestDocumentService_Content(t *testing.T) {
	docs, graph := newDocumentFixture(t)

	content, err := NewDocumentService(docs, graph).Content(context.Background(), "doc-1")
	require.NoError(t, err)

	assert.Equal(t, "alpha one\nbeta two\ngamma three", content)
}

func TestDocumentService_DeleteRecordRefusesWhileIndexed(t *testing.T) {
	docs, graph := newDocumentFixture(t)
	svc := NewDocumentService(docs, graph)

	err := svc.DeleteRecord(context.Background(), "doc-1")

	assert.ErrorIs(t, err, domain.ErrGraphNotEmpty)
	_, err = docs.GetDocument(context.Background(), "doc-1")
	assert.NoError(t, err)
}

func TestDocumentService_TwoPhaseDelete(t *testing.T) {
	docs, graph := newDocumentFixture(t)
	svc := NewDocumentService(docs, graph)
	ctx := context.Background()

	require.NoError(t, svc.PurgeIndex(ctx, "doc-1"))
	count, err := graph.CountChunks(ctx, "doc-1")
	require.NoError(t, err)
	assert.Zero(t, count)

	require.NoError(t, svc.DeleteRecord(ctx, "doc-1"))
	_, err = docs.GetDocument(ctx, "doc-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	chapters, err := docs.ListChapters(ctx, "doc-1")
	require.NoError(t, err)
	assert.Empty(t, chapters)
}

func TestDocumentService_DeleteRetriesPurge(t *testing.T) {
	docs, graph := newDocumentFixture(t)
	flaky := &flakyGraph{ChunkGraph: graph}
	flaky.failures.Store(2)

	svc := NewDocumentService(docs, flaky)
	svc.purgeOpts = retry.Options{MaxAttempts: 4, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}

	require.NoError(t, svc.Delete(context.Background(), "doc-1"))

	assert.EqualValues(t, 3, flaky.deletes.Load())
	_, err := docs.GetDocument(context.Background(), "doc-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDocumentService_DeleteKeepsRecordWhenPurgeFails(t *testing.T) {
	docs, graph := newDocumentFixture(t)
	flaky := &flakyGraph{ChunkGraph: graph}
	flaky.failures.Store(100)

	svc := NewDocumentService(docs, flaky)
	svc.purgeOpts = retry.Options{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}

	err := svc.Delete(context.Background(), "doc-1")

	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "graph unavailable"))
	_, err = docs.GetDocument(context.Background(), "doc-1")
	assert.NoError(t, err)
}

func TestDocumentService_DeleteMissing(t *testing.T) {
	svc := NewDocumentService(memory.NewDocumentStore(), memory.NewChunkGraph())

	assert.ErrorIs(t, svc.Delete(context.Background(), "missing"), domain.ErrNotFound)
}
