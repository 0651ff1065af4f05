package driven

import (
	"context"

	"github.com/custodia-labs/lectern/internal/core/domain"
)

// ChunkGraph stores the per-document chunk graph:
// Chunk -PART_OF-> Document and Chunk -MENTIONS-> Concept,
// with a cosine similarity index over chunk embeddings.
//
// Every implementation must scope SearchDocument to the given document
// before or during the nearest-neighbour scan. A hit from another document
// is a correctness bug, not a ranking issue.
type ChunkGraph interface {
	// EnsureVectorIndex creates the similarity index if it does not exist.
	EnsureVectorIndex(ctx context.Context, dimensions int) error

	// UpsertDocument creates or updates the document node.
	UpsertDocument(ctx context.Context, doc domain.DocumentNode) error

	// AddChunk stores a chunk, links it to its document and to each concept,
	// creating concepts by name when absent.
	AddChunk(ctx context.Context, chunk domain.Chunk, concepts []string) error

	// DeleteDocument removes the document node, its chunks and their edges.
	// Concepts are left in place. Deleting an unknown document is not an error.
	DeleteDocument(ctx context.Context, documentID string) error

	// CountChunks returns how many chunks the document has.
	CountChunks(ctx context.Context, documentID string) (int, error)

	// ListChunks returns the document's chunks ordered by index.
	ListChunks(ctx context.Context, documentID string) ([]domain.Chunk, error)

	// SearchDocument returns up to k chunks of the document most similar to vector,
	// ordered by descending score.
	SearchDocument(ctx context.Context, documentID string, vector []float32, k int) ([]domain.ChunkHit, error)

	// ListConcepts returns the concepts mentioned by the document's chunks,
	// most mentioned first.
	ListConcepts(ctx context.Context, documentID string, limit int) ([]domain.ConceptCount, error)

	// Close releases resources.
	Close() error
}
