// Package redis implements driven.ChunkGraph on Redis with a RediSearch
// HNSW vector index. Chunks are hashes indexed by the vector index;
// PART_OF and MENTIONS edges are plain Redis sets.
package redis

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/lectern/internal/adapters/driven/graph"
	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
)

// Hash field names on chunk keys.
const (
	fieldDocumentID = "document_id"
	fieldChapterID  = "chapter_id"
	fieldIndex      = "idx"
	fieldText       = "text"
	fieldEmbedding  = "embedding"
	fieldCreatedAt  = "created_at"
	fieldScore      = "score"
)

// HNSW build parameters.
const (
	defaultEFConstruction = 200
	defaultM              = 16
)

// Ensure ChunkGraph implements the interface.
var _ driven.ChunkGraph = (*ChunkGraph)(nil)

// Config holds Redis connection configuration.
type Config struct {
	Addr     string
	Password string
	DB       int

	// Index names the RediSearch index and prefixes every key.
	Index string
}

// ChunkGraph stores chunks in Redis.
type ChunkGraph struct {
	client *redis.Client
	index  string
	prefix string
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config) (*ChunkGraph, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("%w: redis address is required", domain.ErrConfiguration)
	}

	// FT.SEARCH replies are parsed in their RESP2 array form.
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		Protocol: 2,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, domain.NewExternalError("redis", fmt.Errorf("connecting to redis: %w", err))
	}

	return NewWithClient(client, cfg.Index), nil
}

// NewWithClient wraps an existing client. The graph takes ownership of it.
func NewWithClient(client *redis.Client, index string) *ChunkGraph {
	if index == "" {
		index = "chunk_embeddings"
	}
	return &ChunkGraph{
		client: client,
		index:  index,
		prefix: index + ":",
	}
}

func (g *ChunkGraph) chunkKey(id string) string    { return g.prefix + "chunk:" + id }
func (g *ChunkGraph) docKey(id string) string      { return g.prefix + "doc:" + id }
func (g *ChunkGraph) partOfKey(id string) string   { return g.prefix + "partof:" + id }
func (g *ChunkGraph) mentionsKey(id string) string { return g.prefix + "mentions:" + id }
func (g *ChunkGraph) conceptsKey() string          { return g.prefix + "concepts" }
func (g *ChunkGraph) dimsKey() string              { return g.prefix + "dims" }

// EnsureVectorIndex creates the HNSW cosine index over chunk hashes if it does not exist.
func (g *ChunkGraph) EnsureVectorIndex(ctx context.Context, dimensions int) error {
	if dimensions <= 0 {
		return fmt.Errorf("%w: dimensions must be positive", domain.ErrInvalidInput)
	}

	existing, err := g.dimensions(ctx)
	if err != nil {
		return err
	}
	if existing != 0 && existing != dimensions {
		return fmt.Errorf("%w: index has %d dimensions, requested %d",
			domain.ErrConfiguration, existing, dimensions)
	}

	if _, err := g.client.Do(ctx, "FT.INFO", g.index).Result(); err == nil {
		return g.recordDimensions(ctx, dimensions)
	}

	_, err = g.client.Do(ctx, "FT.CREATE", g.index,
		"ON", "HASH",
		"PREFIX", "1", g.prefix+"chunk:",
		"SCHEMA",
		fieldEmbedding, "VECTOR", "HNSW", "10",
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(dimensions),
		"DISTANCE_METRIC", "COSINE",
		"EF_CONSTRUCTION", strconv.Itoa(defaultEFConstruction),
		"M", strconv.Itoa(defaultM),
		fieldDocumentID, "TAG",
		fieldIndex, "NUMERIC",
	).Result()
	if err != nil {
		return domain.NewExternalError("redis", fmt.Errorf("creating vector index: %w", err))
	}

	return g.recordDimensions(ctx, dimensions)
}

func (g *ChunkGraph) recordDimensions(ctx context.Context, dimensions int) error {
	if err := g.client.Set(ctx, g.dimsKey(), dimensions, 0).Err(); err != nil {
		return domain.NewExternalError("redis", err)
	}
	return nil
}

// UpsertDocument creates or updates the document node.
func (g *ChunkGraph) UpsertDocument(ctx context.Context, doc domain.DocumentNode) error {
	if doc.ID == "" {
		return domain.ErrInvalidInput
	}
	createdAt := doc.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	err := g.client.HSet(ctx, g.docKey(doc.ID),
		"name", doc.Name,
		fieldCreatedAt, createdAt.Unix(),
	).Err()
	if err != nil {
		return domain.NewExternalError("redis", fmt.Errorf("saving document node: %w", err))
	}
	return nil
}

// AddChunk stores the chunk hash and its edges in one MULTI/EXEC block.
func (g *ChunkGraph) AddChunk(ctx context.Context, chunk domain.Chunk, concepts []string) error {
	if chunk.ID == "" || chunk.DocumentID == "" {
		return domain.ErrInvalidInput
	}

	n, err := g.client.Exists(ctx, g.docKey(chunk.DocumentID)).Result()
	if err != nil {
		return domain.NewExternalError("redis", err)
	}
	if n == 0 {
		return fmt.Errorf("document node %s: %w", chunk.DocumentID, domain.ErrNotFound)
	}

	dims, err := g.dimensions(ctx)
	if err != nil {
		return err
	}
	if dims != 0 && len(chunk.Embedding) != dims {
		return fmt.Errorf("%w: embedding has %d dimensions, index has %d",
			domain.ErrInvalidInput, len(chunk.Embedding), dims)
	}

	var names []any
	for _, c := range concepts {
		if name := graph.NormaliseConcept(c); name != "" {
			names = append(names, name)
		}
	}

	createdAt := chunk.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = g.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, g.chunkKey(chunk.ID),
			fieldDocumentID, chunk.DocumentID,
			fieldChapterID, chunk.ChapterID,
			fieldIndex, chunk.Index,
			fieldText, chunk.Text,
			fieldEmbedding, encodeVector(chunk.Embedding),
			fieldCreatedAt, createdAt.Unix(),
		)
		pipe.SAdd(ctx, g.partOfKey(chunk.DocumentID), chunk.ID)
		pipe.Del(ctx, g.mentionsKey(chunk.ID))
		if len(names) > 0 {
			pipe.SAdd(ctx, g.mentionsKey(chunk.ID), names...)
			pipe.SAdd(ctx, g.conceptsKey(), names...)
		}
		return nil
	})
	if err != nil {
		return domain.NewExternalError("redis", fmt.Errorf("saving chunk: %w", err))
	}
	return nil
}

// DeleteDocument removes the document node, its chunk hashes and their edges.
func (g *ChunkGraph) DeleteDocument(ctx context.Context, documentID string) error {
	ids, err := g.client.SMembers(ctx, g.partOfKey(documentID)).Result()
	if err != nil {
		return domain.NewExternalError("redis", err)
	}

	keys := make([]string, 0, 2*len(ids)+2)
	for _, id := range ids {
		keys = append(keys, g.chunkKey(id), g.mentionsKey(id))
	}
	keys = append(keys, g.partOfKey(documentID), g.docKey(documentID))

	if err := g.client.Del(ctx, keys...).Err(); err != nil {
		return domain.NewExternalError("redis", fmt.Errorf("deleting document graph: %w", err))
	}
	return nil
}

// CountChunks returns how many chunks the document has.
func (g *ChunkGraph) CountChunks(ctx context.Context, documentID string) (int, error) {
	n, err := g.client.SCard(ctx, g.partOfKey(documentID)).Result()
	if err != nil {
		return 0, domain.NewExternalError("redis", err)
	}
	return int(n), nil
}

// ListChunks returns the document's chunks ordered by index.
func (g *ChunkGraph) ListChunks(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	ids, err := g.client.SMembers(ctx, g.partOfKey(documentID)).Result()
	if err != nil {
		return nil, domain.NewExternalError("redis", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = g.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, g.chunkKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, domain.NewExternalError("redis", err)
	}

	chunks := make([]domain.Chunk, 0, len(ids))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		chunks = append(chunks, chunkFromHash(ids[i], fields))
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Index < chunks[j].Index })
	return chunks, nil
}

// SearchDocument runs a KNN query pre-filtered on the document_id tag.
func (g *ChunkGraph) SearchDocument(
	ctx context.Context, documentID string, vector []float32, k int,
) ([]domain.ChunkHit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive", domain.ErrInvalidInput)
	}

	args := append([]any{"FT.SEARCH", g.index}, searchArgs(documentID, vector, k)...)
	res, err := g.client.Do(ctx, args...).Result()
	if err != nil {
		return nil, domain.NewExternalError("redis", fmt.Errorf("vector search: %w", err))
	}

	hits, err := parseSearchResult(res)
	if err != nil {
		return nil, domain.NewExternalError("redis", err)
	}
	return graph.RankHits(hits, k), nil
}

// ListConcepts returns the document's concepts, most mentioned first.
func (g *ChunkGraph) ListConcepts(ctx context.Context, documentID string, limit int) ([]domain.ConceptCount, error) {
	ids, err := g.client.SMembers(ctx, g.partOfKey(documentID)).Result()
	if err != nil {
		return nil, domain.NewExternalError("redis", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.StringSliceCmd, len(ids))
	_, err = g.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.SMembers(ctx, g.mentionsKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, domain.NewExternalError("redis", err)
	}

	counts := make(map[string]int)
	for _, cmd := range cmds {
		for _, name := range cmd.Val() {
			counts[name]++
		}
	}
	out := make([]domain.ConceptCount, 0, len(counts))
	for name, n := range counts {
		out = append(out, domain.ConceptCount{Name: name, Chunks: n})
	}
	return graph.RankConcepts(out, limit), nil
}

// Close closes the Redis connection.
func (g *ChunkGraph) Close() error {
	return g.client.Close()
}

// dimensions returns the recorded index dimensionality, or 0 if none.
func (g *ChunkGraph) dimensions(ctx context.Context) (int, error) {
	dims, err := g.client.Get(ctx, g.dimsKey()).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, domain.NewExternalError("redis", err)
	}
	return dims, nil
}

// searchArgs builds the FT.SEARCH arguments after the index name.
// The tag filter left of "=>" restricts the KNN candidates to one document.
func searchArgs(documentID string, vector []float32, k int) []any {
	query := fmt.Sprintf("(@%s:{%s})=>[KNN %d @%s $vec AS %s]",
		fieldDocumentID, escapeTag(documentID), k, fieldEmbedding, fieldScore)
	return []any{
		query,
		"PARAMS", "2", "vec", encodeVector(vector),
		"RETURN", "5", fieldDocumentID, fieldChapterID, fieldIndex, fieldText, fieldScore,
		"SORTBY", fieldScore, "ASC",
		"LIMIT", "0", strconv.Itoa(k),
		"DIALECT", "2",
	}
}

// parseSearchResult decodes a RESP2 FT.SEARCH reply:
// [total, key1, [field, value, ...], key2, [...], ...].
// The KNN score is a cosine distance and is converted to similarity.
func parseSearchResult(res any) ([]domain.ChunkHit, error) {
	values, ok := res.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected FT.SEARCH reply %T", domain.ErrMalformedResponse, res)
	}

	var hits []domain.ChunkHit
	for i := 1; i+1 < len(values); i += 2 {
		fields, ok := values[i+1].([]any)
		if !ok {
			return nil, fmt.Errorf("%w: unexpected field list %T", domain.ErrMalformedResponse, values[i+1])
		}

		var hit domain.ChunkHit
		for j := 0; j+1 < len(fields); j += 2 {
			name, _ := fields[j].(string)
			value, _ := fields[j+1].(string)
			switch name {
			case fieldDocumentID:
				hit.DocumentID = value
			case fieldChapterID:
				hit.ChapterID = value
			case fieldIndex:
				hit.ChunkIndex, _ = strconv.Atoi(value)
			case fieldText:
				hit.Text = value
			case fieldScore:
				distance, err := strconv.ParseFloat(value, 64)
				if err != nil {
					return nil, fmt.Errorf("%w: score %q", domain.ErrMalformedResponse, value)
				}
				hit.Score = 1 - distance
			}
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// chunkFromHash rebuilds a chunk from its hash fields.
func chunkFromHash(id string, fields map[string]string) domain.Chunk {
	idx, _ := strconv.Atoi(fields[fieldIndex])
	created, _ := strconv.ParseInt(fields[fieldCreatedAt], 10, 64)
	return domain.Chunk{
		ID:         id,
		DocumentID: fields[fieldDocumentID],
		ChapterID:  fields[fieldChapterID],
		Index:      idx,
		Text:       fields[fieldText],
		Embedding:  decodeVector([]byte(fields[fieldEmbedding])),
		CreatedAt:  time.Unix(created, 0),
	}
}

// encodeVector packs a vector as little-endian FLOAT32, the layout RediSearch expects.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	if len(b) == 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}

// escapeTag backslash-escapes every character RediSearch treats as a tag separator or operator.
func escapeTag(s string) string {
	var b strings.Builder
	for _, r := range s {
		isWord := r == '_' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		if !isWord {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
