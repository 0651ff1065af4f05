package services

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
	"github.com/custodia-labs/lectern/internal/core/ports/driving"
	"github.com/custodia-labs/lectern/internal/logger"
)

// Ensure Retriever implements the interface.
var _ driving.RetrievalService = (*Retriever)(nil)

// Retriever answers similarity queries scoped to a single document.
type Retriever struct {
	docs     driven.DocumentStore
	graph    driven.ChunkGraph
	embedder driven.EmbeddingService
}

// NewRetriever creates a retriever.
func NewRetriever(docs driven.DocumentStore, graph driven.ChunkGraph, embedder driven.EmbeddingService) *Retriever {
	return &Retriever{docs: docs, graph: graph, embedder: embedder}
}

// Query returns at most topK chunks of documentID ranked by similarity to query.
// Every hit is checked to belong to documentID; a foreign hit fails the whole
// query with domain.ErrIsolationViolation.
func (r *Retriever) Query(ctx context.Context, documentID, query string, topK int) ([]domain.ChunkHit, error) {
	if documentID == "" {
		return nil, fmt.Errorf("%w: document id is required", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is empty", domain.ErrInvalidInput)
	}
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top-k must be positive, got %d", domain.ErrInvalidInput, topK)
	}
	if r.embedder == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := r.graph.SearchDocument(ctx, documentID, vector, topK)
	if err != nil {
		return nil, fmt.Errorf("search document %s: %w", documentID, err)
	}

	for _, hit := range hits {
		if hit.DocumentID != documentID {
			logger.Error("Search for %s returned chunk %d of %s", documentID, hit.ChunkIndex, hit.DocumentID)
			return nil, fmt.Errorf("%w: query for %s returned a chunk of %s",
				domain.ErrIsolationViolation, documentID, hit.DocumentID)
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// Sample returns up to n random chunks drawn from the owner's ready documents.
func (r *Retriever) Sample(ctx context.Context, ownerID string, n int) ([]domain.Chunk, error) {
	if n <= 0 {
		return nil, nil
	}

	docs, err := r.docs.ListDocuments(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	var pool []domain.Chunk
	for _, doc := range docs {
		if doc.Status != domain.StatusReady {
			continue
		}
		chunks, err := r.graph.ListChunks(ctx, doc.ID)
		if err != nil {
			return nil, fmt.Errorf("list chunks of %s: %w", doc.ID, err)
		}
		pool = append(pool, chunks...)
	}

	rand.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	if len(pool) > n {
		pool = pool[:n]
	}
	return pool, nil
}
