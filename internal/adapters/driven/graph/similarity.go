// Package graph holds helpers shared by the ChunkGraph backends.
// Backends live in subpackages (redis, qdrant) or alongside the
// relational stores (storage/memory, storage/sqlite).
package graph

import (
	"math"
	"sort"
	"strings"

	"github.com/custodia-labs/lectern/internal/core/domain"
)

// Cosine returns the cosine similarity of a and b.
// Mismatched lengths and zero vectors score 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// RankHits sorts hits by descending score, breaking ties by chunk index,
// and truncates to k.
func RankHits(hits []domain.ChunkHit, k int) []domain.ChunkHit {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkIndex < hits[j].ChunkIndex
	})
	if k >= 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// RankConcepts sorts counts by descending mentions then name, and truncates to limit.
// A limit <= 0 keeps everything.
func RankConcepts(counts []domain.ConceptCount, limit int) []domain.ConceptCount {
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Chunks != counts[j].Chunks {
			return counts[i].Chunks > counts[j].Chunks
		}
		return counts[i].Name < counts[j].Name
	})
	if limit > 0 && len(counts) > limit {
		counts = counts[:limit]
	}
	return counts
}

// NormaliseConcept canonicalises a concept name for upsert-by-name.
func NormaliseConcept(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
