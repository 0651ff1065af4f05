// Package driven provides interfaces for infrastructure adapters (secondary/outbound ports).
package driven

import "context"

// EmbeddingService turns chunk text and queries into vectors.
// The same text must always yield the same vector for a given model, and
// every vector has Dimensions entries. The ChunkGraph vector index is
// created with that size, so switching models means re-indexing.
type EmbeddingService interface {
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions is fixed by the model.
	Dimensions() int

	ModelName() string

	// Ping makes a cheap request so startup can fail fast on a bad endpoint.
	Ping(ctx context.Context) error

	Close() error
}
