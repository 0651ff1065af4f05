package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/lectern/internal/adapters/driven/graph"
	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
)

// chunkGraph implements driven.ChunkGraph on the chunks, concepts and
// chunk_concepts tables. SearchDocument selects the document's rows first
// and scores only those, so the scan is scoped by construction.
type chunkGraph struct {
	store *Store
}

var _ driven.ChunkGraph = (*chunkGraph)(nil)

// EnsureVectorIndex records the embedding dimensionality.
func (g *chunkGraph) EnsureVectorIndex(ctx context.Context, dimensions int) error {
	if dimensions <= 0 {
		return fmt.Errorf("%w: dimensions must be positive", domain.ErrInvalidInput)
	}

	existing, err := g.dimensions(ctx, g.store.db)
	if err != nil {
		return err
	}
	if existing != 0 {
		if existing != dimensions {
			return fmt.Errorf("%w: index has %d dimensions, requested %d",
				domain.ErrConfiguration, existing, dimensions)
		}
		return nil
	}

	_, err = g.store.db.ExecContext(ctx,
		"INSERT INTO vector_index (id, dimensions) VALUES (1, ?) ON CONFLICT(id) DO NOTHING", dimensions)
	if err != nil {
		return fmt.Errorf("creating vector index: %w", err)
	}
	return nil
}

// UpsertDocument creates or updates the document node.
func (g *chunkGraph) UpsertDocument(ctx context.Context, doc domain.DocumentNode) error {
	if doc.ID == "" {
		return domain.ErrInvalidInput
	}
	createdAt := doc.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := g.store.db.ExecContext(ctx, `
		INSERT INTO graph_documents (id, name, created_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name
	`, doc.ID, doc.Name, toUnix(createdAt))
	if err != nil {
		return fmt.Errorf("saving document node: %w", err)
	}
	return nil
}

// AddChunk stores a chunk with its PART_OF and MENTIONS edges in one transaction.
func (g *chunkGraph) AddChunk(ctx context.Context, chunk domain.Chunk, concepts []string) error {
	if chunk.ID == "" || chunk.DocumentID == "" {
		return domain.ErrInvalidInput
	}

	// Checks read outside the write transaction.
	var exists int
	err := g.store.db.QueryRowContext(ctx,
		"SELECT 1 FROM graph_documents WHERE id = ?", chunk.DocumentID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("document node %s: %w", chunk.DocumentID, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("checking document node: %w", err)
	}

	dims, err := g.dimensions(ctx, g.store.db)
	if err != nil {
		return err
	}
	if dims != 0 && len(chunk.Embedding) != dims {
		return fmt.Errorf("%w: embedding has %d dimensions, index has %d",
			domain.ErrInvalidInput, len(chunk.Embedding), dims)
	}

	tx, err := g.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	createdAt := chunk.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO chunks (id, document_id, chapter_id, idx, text, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document_id = excluded.document_id,
			chapter_id = excluded.chapter_id,
			idx = excluded.idx,
			text = excluded.text,
			embedding = excluded.embedding
	`, chunk.ID, chunk.DocumentID, chunk.ChapterID, chunk.Index, chunk.Text,
		float32SliceToBytes(chunk.Embedding), toUnix(createdAt))
	if err != nil {
		return fmt.Errorf("saving chunk: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunk_concepts WHERE chunk_id = ?", chunk.ID); err != nil {
		return fmt.Errorf("clearing chunk concepts: %w", err)
	}
	for _, c := range concepts {
		name := graph.NormaliseConcept(c)
		if name == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO concepts (name) VALUES (?)", name); err != nil {
			return fmt.Errorf("saving concept: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO chunk_concepts (chunk_id, concept_name) VALUES (?, ?)", chunk.ID, name); err != nil {
			return fmt.Errorf("linking concept: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// DeleteDocument removes the document node, its chunks and their edges.
func (g *chunkGraph) DeleteDocument(ctx context.Context, documentID string) error {
	tx, err := g.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmts := []string{
		"DELETE FROM chunk_concepts WHERE chunk_id IN (SELECT id FROM chunks WHERE document_id = ?)",
		"DELETE FROM chunks WHERE document_id = ?",
		"DELETE FROM graph_documents WHERE id = ?",
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt, documentID); err != nil {
			return fmt.Errorf("deleting document graph: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// CountChunks returns how many chunks the document has.
func (g *chunkGraph) CountChunks(ctx context.Context, documentID string) (int, error) {
	var n int
	err := g.store.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM chunks WHERE document_id = ?", documentID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return n, nil
}

// ListChunks returns the document's chunks ordered by index.
func (g *chunkGraph) ListChunks(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	rows, err := g.store.db.QueryContext(ctx, `
		SELECT id, document_id, chapter_id, idx, text, embedding, created_at
		FROM chunks WHERE document_id = ?
		ORDER BY idx
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.Chunk //nolint:prealloc // size unknown from query
	for rows.Next() {
		var c domain.Chunk
		var blob []byte
		var createdAt int64
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.ChapterID, &c.Index, &c.Text,
			&blob, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		c.Embedding = bytesToFloat32Slice(blob)
		c.CreatedAt = fromUnix(createdAt)
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}
	return chunks, nil
}

// SearchDocument scores the document's chunks against vector by cosine similarity.
func (g *chunkGraph) SearchDocument(
	ctx context.Context, documentID string, vector []float32, k int,
) ([]domain.ChunkHit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive", domain.ErrInvalidInput)
	}

	rows, err := g.store.db.QueryContext(ctx, `
		SELECT document_id, chapter_id, idx, text, embedding
		FROM chunks WHERE document_id = ?
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var hits []domain.ChunkHit //nolint:prealloc // size unknown from query
	for rows.Next() {
		var h domain.ChunkHit
		var blob []byte
		if err := rows.Scan(&h.DocumentID, &h.ChapterID, &h.ChunkIndex, &h.Text, &blob); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		h.Score = graph.Cosine(vector, bytesToFloat32Slice(blob))
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}

	return graph.RankHits(hits, k), nil
}

// ListConcepts returns the document's concepts, most mentioned first.
func (g *chunkGraph) ListConcepts(ctx context.Context, documentID string, limit int) ([]domain.ConceptCount, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := g.store.db.QueryContext(ctx, `
		SELECT cc.concept_name, COUNT(*) AS mentions
		FROM chunk_concepts cc
		JOIN chunks c ON c.id = cc.chunk_id
		WHERE c.document_id = ?
		GROUP BY cc.concept_name
		ORDER BY mentions DESC, cc.concept_name
		LIMIT ?
	`, documentID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying concepts: %w", err)
	}
	defer rows.Close()

	var out []domain.ConceptCount //nolint:prealloc // size unknown from query
	for rows.Next() {
		var c domain.ConceptCount
		if err := rows.Scan(&c.Name, &c.Chunks); err != nil {
			return nil, fmt.Errorf("scanning concept: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating concepts: %w", err)
	}
	return out, nil
}

// Close is a no-op; the Store owns the connection.
func (g *chunkGraph) Close() error {
	return nil
}

// dimensions returns the recorded index dimensionality, or 0 if none.
func (g *chunkGraph) dimensions(ctx context.Context, db *sql.DB) (int, error) {
	var dims int
	err := db.QueryRowContext(ctx, "SELECT dimensions FROM vector_index WHERE id = 1").Scan(&dims)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading vector index: %w", err)
	}
	return dims, nil
}
