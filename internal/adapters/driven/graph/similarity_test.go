package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/custodia-labs/lectern/internal/core/domain"
)

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 2, 3}, []float32{2, 4, 6}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, Cosine([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Zero(t, Cosine([]float32{1, 2}, []float32{1, 2, 3}))
	assert.Zero(t, Cosine([]float32{0, 0}, []float32{1, 1}))
	assert.Zero(t, Cosine(nil, nil))
}

func TestRankHits(t *testing.T) {
	hits := []domain.ChunkHit{
		{ChunkIndex: 3, Score: 0.2},
		{ChunkIndex: 1, Score: 0.9},
		{ChunkIndex: 0, Score: 0.5},
		{ChunkIndex: 2, Score: 0.5},
	}

	ranked := RankHits(hits, 3)

	assert.Len(t, ranked, 3)
	assert.Equal(t, 1, ranked[0].ChunkIndex)
	assert.Equal(t, 0, ranked[1].ChunkIndex)
	assert.Equal(t, 2, ranked[2].ChunkIndex)
}

func TestRankConcepts(t *testing.T) {
	counts := []domain.ConceptCount{{Name: "b", Chunks: 2}, {Name: "a", Chunks: 2}, {Name: "c", Chunks: 5}}

	ranked := RankConcepts(counts, 2)

	assert.Equal(t, []domain.ConceptCount{{Name: "c", Chunks: 5}, {Name: "a", Chunks: 2}}, ranked)
}

func TestNormaliseConcept(t *testing.T) {
	assert.Equal(t, "machine learning", NormaliseConcept("  Machine   Learning "))
	assert.Empty(t, NormaliseConcept("   "))
}
