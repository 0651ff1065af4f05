// Package qdrant implements driven.ChunkGraph on a Qdrant collection over gRPC.
//
// Each chunk is a point whose payload carries document_id, chapter_id, idx,
// text and its concept names. Document nodes live in a side collection
// "<index>_documents" with a one-dimensional placeholder vector.
// Searches carry a must-match filter on the keyword-indexed document_id
// field, which Qdrant applies during the HNSW traversal.
package qdrant

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/custodia-labs/lectern/internal/adapters/driven/graph"
	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
)

// Payload keys.
const (
	keyDocumentID = "document_id"
	keyChunkID    = "chunk_id"
	keyChapterID  = "chapter_id"
	keyIndex      = "idx"
	keyText       = "text"
	keyConcepts   = "concepts"
	keyName       = "name"
	keyCreatedAt  = "created_at"
)

const defaultPort = 6334

// idNamespace maps arbitrary lectern IDs onto the UUID point IDs Qdrant requires.
var idNamespace = uuid.MustParse("6f1c2a4e-8d3b-4c5f-9a7e-2b1d0c3e4f5a")

// Ensure ChunkGraph implements the interface.
var _ driven.ChunkGraph = (*ChunkGraph)(nil)

// Config holds Qdrant connection configuration.
type Config struct {
	// Addr is host:port of the gRPC endpoint. The port defaults to 6334.
	Addr   string
	APIKey string

	// Index names the chunk collection.
	Index string
}

// ChunkGraph stores chunks as Qdrant points.
type ChunkGraph struct {
	client     *qdrant.Client
	collection string
	documents  string

	mu         sync.RWMutex
	dimensions int
}

// New connects to Qdrant.
func New(cfg Config) (*ChunkGraph, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("%w: qdrant address is required", domain.ErrConfiguration)
	}
	host, port, err := splitAddr(cfg.Addr)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, domain.NewExternalError("qdrant", fmt.Errorf("connecting to qdrant: %w", err))
	}

	index := cfg.Index
	if index == "" {
		index = "chunk_embeddings"
	}
	return &ChunkGraph{
		client:     client,
		collection: index,
		documents:  index + "_documents",
	}, nil
}

// EnsureVectorIndex creates the cosine chunk collection, its document_id
// keyword index and the document side collection when missing.
func (g *ChunkGraph) EnsureVectorIndex(ctx context.Context, dimensions int) error {
	if dimensions <= 0 {
		return fmt.Errorf("%w: dimensions must be positive", domain.ErrInvalidInput)
	}

	exists, err := g.client.CollectionExists(ctx, g.collection)
	if err != nil {
		return domain.NewExternalError("qdrant", err)
	}
	if exists {
		info, err := g.client.GetCollectionInfo(ctx, g.collection)
		if err != nil {
			return domain.NewExternalError("qdrant", err)
		}
		size := int(info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize())
		if size != dimensions {
			return fmt.Errorf("%w: collection %s has %d dimensions, requested %d",
				domain.ErrConfiguration, g.collection, size, dimensions)
		}
	} else {
		if err := g.createCollection(ctx, g.collection, uint64(dimensions)); err != nil {
			return err
		}
		_, err = g.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: g.collection,
			FieldName:      keyDocumentID,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return domain.NewExternalError("qdrant", fmt.Errorf("indexing document_id: %w", err))
		}
	}

	exists, err = g.client.CollectionExists(ctx, g.documents)
	if err != nil {
		return domain.NewExternalError("qdrant", err)
	}
	if !exists {
		if err := g.createCollection(ctx, g.documents, 1); err != nil {
			return err
		}
	}

	g.mu.Lock()
	g.dimensions = dimensions
	g.mu.Unlock()
	return nil
}

func (g *ChunkGraph) createCollection(ctx context.Context, name string, size uint64) error {
	err := g.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     size,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return domain.NewExternalError("qdrant", fmt.Errorf("creating collection %s: %w", name, err))
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

	wait := true
	_, err := g.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: g.documents,
		Wait:           &wait,
		Points: []*qdrant.PointStruct{{
			Id:      pointID(doc.ID),
			Vectors: qdrant.NewVectors(1),
			Payload: qdrant.NewValueMap(map[string]any{
				keyDocumentID: doc.ID,
				keyName:       doc.Name,
				keyCreatedAt:  createdAt.Unix(),
			}),
		}},
	})
	if err != nil {
		return domain.NewExternalError("qdrant", fmt.Errorf("saving document node: %w", err))
	}
	return nil
}

// AddChunk upserts the chunk point with its concepts in the payload.
func (g *ChunkGraph) AddChunk(ctx context.Context, chunk domain.Chunk, concepts []string) error {
	if chunk.ID == "" || chunk.DocumentID == "" {
		return domain.ErrInvalidInput
	}

	nodes, err := g.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: g.documents,
		Ids:            []*qdrant.PointId{pointID(chunk.DocumentID)},
	})
	if err != nil {
		return domain.NewExternalError("qdrant", err)
	}
	if len(nodes) == 0 {
		return fmt.Errorf("document node %s: %w", chunk.DocumentID, domain.ErrNotFound)
	}

	g.mu.RLock()
	dims := g.dimensions
	g.mu.RUnlock()
	if dims != 0 && len(chunk.Embedding) != dims {
		return fmt.Errorf("%w: embedding has %d dimensions, index has %d",
			domain.ErrInvalidInput, len(chunk.Embedding), dims)
	}

	wait := true
	_, err = g.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: g.collection,
		Wait:           &wait,
		Points: []*qdrant.PointStruct{{
			Id:      pointID(chunk.ID),
			Vectors: qdrant.NewVectors(chunk.Embedding...),
			Payload: qdrant.NewValueMap(chunkPayload(chunk, concepts)),
		}},
	})
	if err != nil {
		return domain.NewExternalError("qdrant", fmt.Errorf("saving chunk: %w", err))
	}
	return nil
}

// DeleteDocument removes the document's chunk points and its node.
func (g *ChunkGraph) DeleteDocument(ctx context.Context, documentID string) error {
	wait := true
	_, err := g.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: g.collection,
		Wait:           &wait,
		Points:         qdrant.NewPointsSelectorFilter(documentFilter(documentID)),
	})
	if err != nil {
		return domain.NewExternalError("qdrant", fmt.Errorf("deleting chunks: %w", err))
	}

	_, err = g.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: g.documents,
		Wait:           &wait,
		Points:         qdrant.NewPointsSelector(pointID(documentID)),
	})
	if err != nil {
		return domain.NewExternalError("qdrant", fmt.Errorf("deleting document node: %w", err))
	}
	return nil
}

// CountChunks returns how many chunks the document has.
func (g *ChunkGraph) CountChunks(ctx context.Context, documentID string) (int, error) {
	exact := true
	n, err := g.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: g.collection,
		Filter:         documentFilter(documentID),
		Exact:          &exact,
	})
	if err != nil {
		return 0, domain.NewExternalError("qdrant", err)
	}
	return int(n), nil
}

// ListChunks returns the document's chunks ordered by index.
func (g *ChunkGraph) ListChunks(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	points, err := g.scroll(ctx, documentID, true)
	if err != nil {
		return nil, err
	}
	chunks := make([]domain.Chunk, 0, len(points))
	for _, p := range points {
		chunks = append(chunks, chunkFromPoint(p))
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Index < chunks[j].Index })
	return chunks, nil
}

// SearchDocument queries the nearest chunks with a document_id must-match filter.
func (g *ChunkGraph) SearchDocument(
	ctx context.Context, documentID string, vector []float32, k int,
) ([]domain.ChunkHit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive", domain.ErrInvalidInput)
	}

	limit := uint64(k)
	points, err := g.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: g.collection,
		Query:          qdrant.NewQuery(vector...),
		Filter:         documentFilter(documentID),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, domain.NewExternalError("qdrant", fmt.Errorf("vector search: %w", err))
	}

	hits := make([]domain.ChunkHit, 0, len(points))
	for _, p := range points {
		hits = append(hits, hitFromPoint(p))
	}
	return graph.RankHits(hits, k), nil
}

// ListConcepts counts the concept names carried by the document's chunk payloads.
func (g *ChunkGraph) ListConcepts(ctx context.Context, documentID string, limit int) ([]domain.ConceptCount, error) {
	points, err := g.scroll(ctx, documentID, false)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, p := range points {
		for _, name := range payloadStrings(p.GetPayload()[keyConcepts]) {
			counts[name]++
		}
	}
	out := make([]domain.ConceptCount, 0, len(counts))
	for name, n := range counts {
		out = append(out, domain.ConceptCount{Name: name, Chunks: n})
	}
	return graph.RankConcepts(out, limit), nil
}

// Close closes the gRPC connection.
func (g *ChunkGraph) Close() error {
	return g.client.Close()
}

// scroll fetches every chunk point of a document in one page sized by Count.
func (g *ChunkGraph) scroll(ctx context.Context, documentID string, withVectors bool) ([]*qdrant.RetrievedPoint, error) {
	n, err := g.CountChunks(ctx, documentID)
	if err != nil || n == 0 {
		return nil, err
	}

	limit := uint32(n)
	points, err := g.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: g.collection,
		Filter:         documentFilter(documentID),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(withVectors),
	})
	if err != nil {
		return nil, domain.NewExternalError("qdrant", err)
	}
	return points, nil
}

// documentFilter matches points whose document_id equals id.
func documentFilter(id string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch(keyDocumentID, id)},
	}
}

// pointID derives a stable UUID point ID from a lectern ID.
func pointID(id string) *qdrant.PointId {
	return qdrant.NewIDUUID(uuid.NewSHA1(idNamespace, []byte(id)).String())
}

// chunkPayload builds the point payload for a chunk.
func chunkPayload(chunk domain.Chunk, concepts []string) map[string]any {
	names := make([]any, 0, len(concepts))
	seen := make(map[string]bool, len(concepts))
	for _, c := range concepts {
		name := graph.NormaliseConcept(c)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}

	createdAt := chunk.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return map[string]any{
		keyDocumentID: chunk.DocumentID,
		keyChunkID:    chunk.ID,
		keyChapterID:  chunk.ChapterID,
		keyIndex:      int64(chunk.Index),
		keyText:       chunk.Text,
		keyConcepts:   names,
		keyCreatedAt:  createdAt.Unix(),
	}
}

// hitFromPoint converts a scored point into a hit. Qdrant already reports
// cosine similarity for Distance_Cosine collections.
func hitFromPoint(p *qdrant.ScoredPoint) domain.ChunkHit {
	payload := p.GetPayload()
	return domain.ChunkHit{
		DocumentID: payload[keyDocumentID].GetStringValue(),
		ChapterID:  payload[keyChapterID].GetStringValue(),
		ChunkIndex: int(payload[keyIndex].GetIntegerValue()),
		Text:       payload[keyText].GetStringValue(),
		Score:      float64(p.GetScore()),
	}
}

// chunkFromPoint converts a retrieved point back into a chunk.
func chunkFromPoint(p *qdrant.RetrievedPoint) domain.Chunk {
	payload := p.GetPayload()
	return domain.Chunk{
		ID:         payload[keyChunkID].GetStringValue(),
		DocumentID: payload[keyDocumentID].GetStringValue(),
		ChapterID:  payload[keyChapterID].GetStringValue(),
		Index:      int(payload[keyIndex].GetIntegerValue()),
		Text:       payload[keyText].GetStringValue(),
		Embedding:  p.GetVectors().GetVector().GetData(),
		CreatedAt:  time.Unix(payload[keyCreatedAt].GetIntegerValue(), 0),
	}
}

// payloadStrings flattens a list payload value into strings.
func payloadStrings(v *qdrant.Value) []string {
	values := v.GetListValue().GetValues()
	out := make([]string, 0, len(values))
	for _, item := range values {
		if s := item.GetStringValue(); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// splitAddr parses host[:port].
func splitAddr(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, defaultPort, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("%w: invalid qdrant port %q", domain.ErrConfiguration, portStr)
	}
	return host, port, nil
}
