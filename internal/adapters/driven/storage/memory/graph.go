package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/custodia-labs/lectern/internal/adapters/driven/graph"
	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
)

// Ensure ChunkGraph implements the interface.
var _ driven.ChunkGraph = (*ChunkGraph)(nil)

// ChunkGraph is an in-memory implementation of driven.ChunkGraph.
// Searches walk the document's PART_OF edges first and score only those
// chunks, so other documents are never candidates.
type ChunkGraph struct {
	mu         sync.RWMutex
	dimensions int
	documents  map[string]domain.DocumentNode
	chunks     map[string]domain.Chunk
	partOf     map[string]map[string]struct{} // document ID -> chunk IDs
	mentions   map[string][]string            // chunk ID -> concept names
	concepts   map[string]domain.Concept
}

// NewChunkGraph creates a new in-memory chunk graph.
func NewChunkGraph() *ChunkGraph {
	return &ChunkGraph{
		documents: make(map[string]domain.DocumentNode),
		chunks:    make(map[string]domain.Chunk),
		partOf:    make(map[string]map[string]struct{}),
		mentions:  make(map[string][]string),
		concepts:  make(map[string]domain.Concept),
	}
}

// EnsureVectorIndex records the embedding dimensionality. Repeated calls with
// the same value are no-ops; a different value is rejected.
func (g *ChunkGraph) EnsureVectorIndex(_ context.Context, dimensions int) error {
	if dimensions <= 0 {
		return fmt.Errorf("%w: dimensions must be positive", domain.ErrInvalidInput)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.dimensions != 0 && g.dimensions != dimensions {
		return fmt.Errorf("%w: index has %d dimensions, requested %d",
			domain.ErrConfiguration, g.dimensions, dimensions)
	}
	g.dimensions = dimensions
	return nil
}

// UpsertDocument creates or updates the document node.
func (g *ChunkGraph) UpsertDocument(_ context.Context, doc domain.DocumentNode) error {
	if doc.ID == "" {
		return domain.ErrInvalidInput
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.documents[doc.ID] = doc
	return nil
}

// AddChunk stores a chunk and its PART_OF and MENTIONS edges.
func (g *ChunkGraph) AddChunk(_ context.Context, chunk domain.Chunk, concepts []string) error {
	if chunk.ID == "" || chunk.DocumentID == "" {
		return domain.ErrInvalidInput
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.documents[chunk.DocumentID]; !ok {
		return fmt.Errorf("document node %s: %w", chunk.DocumentID, domain.ErrNotFound)
	}
	if g.dimensions != 0 && len(chunk.Embedding) != g.dimensions {
		return fmt.Errorf("%w: embedding has %d dimensions, index has %d",
			domain.ErrInvalidInput, len(chunk.Embedding), g.dimensions)
	}

	chunk.Embedding = append([]float32(nil), chunk.Embedding...)
	g.chunks[chunk.ID] = chunk
	if g.partOf[chunk.DocumentID] == nil {
		g.partOf[chunk.DocumentID] = make(map[string]struct{})
	}
	g.partOf[chunk.DocumentID][chunk.ID] = struct{}{}

	var names []string
	for _, c := range concepts {
		name := graph.NormaliseConcept(c)
		if name == "" {
			continue
		}
		if _, ok := g.concepts[name]; !ok {
			g.concepts[name] = domain.Concept{Name: name}
		}
		names = append(names, name)
	}
	if len(names) > 0 {
		g.mentions[chunk.ID] = names
	}
	return nil
}

// DeleteDocument removes the document node, its chunks and their edges.
func (g *ChunkGraph) DeleteDocument(_ context.Context, documentID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for id := range g.partOf[documentID] {
		delete(g.chunks, id)
		delete(g.mentions, id)
	}
	delete(g.partOf, documentID)
	delete(g.documents, documentID)
	return nil
}

// CountChunks returns how many chunks the document has.
func (g *ChunkGraph) CountChunks(_ context.Context, documentID string) (int, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.partOf[documentID]), nil
}

// ListChunks returns the document's chunks ordered by index.
func (g *ChunkGraph) ListChunks(_ context.Context, documentID string) ([]domain.Chunk, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	chunks := make([]domain.Chunk, 0, len(g.partOf[documentID]))
	for id := range g.partOf[documentID] {
		chunks = append(chunks, g.chunks[id])
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Index < chunks[j].Index })
	return chunks, nil
}

// SearchDocument scores only the document's own chunks against vector.
func (g *ChunkGraph) SearchDocument(
	_ context.Context, documentID string, vector []float32, k int,
) ([]domain.ChunkHit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive", domain.ErrInvalidInput)
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	candidates := g.partOf[documentID]
	hits := make([]domain.ChunkHit, 0, len(candidates))
	for id := range candidates {
		chunk := g.chunks[id]
		hits = append(hits, domain.ChunkHit{
			DocumentID: chunk.DocumentID,
			ChunkIndex: chunk.Index,
			ChapterID:  chunk.ChapterID,
			Text:       chunk.Text,
			Score:      graph.Cosine(vector, chunk.Embedding),
		})
	}
	return graph.RankHits(hits, k), nil
}

// ListConcepts returns the document's concepts, most mentioned first.
func (g *ChunkGraph) ListConcepts(_ context.Context, documentID string, limit int) ([]domain.ConceptCount, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	counts := make(map[string]int)
	for id := range g.partOf[documentID] {
		for _, name := range g.mentions[id] {
			counts[name]++
		}
	}
	out := make([]domain.ConceptCount, 0, len(counts))
	for name, n := range counts {
		out = append(out, domain.ConceptCount{Name: name, Chunks: n})
	}
	return graph.RankConcepts(out, limit), nil
}

// ConceptCount returns the number of distinct concept nodes.
func (g *ChunkGraph) ConceptCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.concepts)
}

// Close releases resources.
func (g *ChunkGraph) Close() error {
	return nil
}
