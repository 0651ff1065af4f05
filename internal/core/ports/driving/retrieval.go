package driving

import (
	"context"

	"github.com/custodia-labs/lectern/internal/core/domain"
)

// RetrievalService answers similarity queries scoped to a single document.
type RetrievalService interface {
	// Query returns at most topK chunks of the document, most similar first.
	// A document with no indexed chunks yields an empty slice, not an error.
	Query(ctx context.Context, documentID, query string, topK int) ([]domain.ChunkHit, error)

	// Sample returns up to n random chunks drawn from the owner's ready documents.
	Sample(ctx context.Context, ownerID string, n int) ([]domain.Chunk, error)
}
