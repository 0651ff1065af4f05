package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
	"github.com/custodia-labs/lectern/internal/logger"
	"github.com/custodia-labs/lectern/internal/ratelimit"
)

// IndexerOptions configures chunk indexing.
type IndexerOptions struct {
	// Parallelism bounds how many chunks are indexed at once.
	Parallelism int

	// MaxConcepts is the most concepts kept per chunk. Negative disables extraction.
	MaxConcepts int

	// EmbedTimeout and ConceptTimeout bound each external call.
	EmbedTimeout   time.Duration
	ConceptTimeout time.Duration

	// ConceptRate limits concept extraction calls per second. <= 0 is unlimited.
	ConceptRate float64
}

// DefaultIndexerOptions returns the default indexing options.
func DefaultIndexerOptions() IndexerOptions {
	return IndexerOptions{
		Parallelism:    4,
		MaxConcepts:    5,
		EmbedTimeout:   30 * time.Second,
		ConceptTimeout: 30 * time.Second,
		ConceptRate:    2,
	}
}

// IndexRequest describes one document to index.
type IndexRequest struct {
	DocumentID   string
	DocumentName string

	// Chunks are the document's chunk texts in order.
	Chunks []string

	// Chapters partition the chunk indexes. May be empty.
	Chapters []domain.Chapter
}

// IndexResult reports how many chunks reached the graph.
type IndexResult struct {
	Indexed int
	Failed  int
}

// Indexer embeds chunks and writes them to the chunk graph with their
// document, chapter and concept edges.
type Indexer struct {
	graph    driven.ChunkGraph
	embedder driven.EmbeddingService
	concepts driven.ConceptExtractor
	limiter  *ratelimit.Limiter
	opts     IndexerOptions
}

// NewIndexer creates an indexer. concepts may be nil.
func NewIndexer(
	graph driven.ChunkGraph,
	embedder driven.EmbeddingService,
	concepts driven.ConceptExtractor,
	opts IndexerOptions,
) *Indexer {
	defaults := DefaultIndexerOptions()
	if opts.Parallelism <= 0 {
		opts.Parallelism = defaults.Parallelism
	}
	switch {
	case opts.MaxConcepts == 0:
		opts.MaxConcepts = defaults.MaxConcepts
	case opts.MaxConcepts < 0:
		opts.MaxConcepts = 0
	}
	if opts.EmbedTimeout <= 0 {
		opts.EmbedTimeout = defaults.EmbedTimeout
	}
	if opts.ConceptTimeout <= 0 {
		opts.ConceptTimeout = defaults.ConceptTimeout
	}

	return &Indexer{
		graph:    graph,
		embedder: embedder,
		concepts: concepts,
		limiter:  ratelimit.New(ratelimit.Config{RequestsPerSecond: opts.ConceptRate, BurstSize: opts.Parallelism}),
		opts:     opts,
	}
}

// Index replaces whatever the graph holds for the document with the given chunks.
// A chunk that cannot be embedded or stored is skipped and counted as failed.
// When every chunk fails the result is domain.ErrIndexingFailed.
func (ix *Indexer) Index(ctx context.Context, req IndexRequest) (*IndexResult, error) {
	if req.DocumentID == "" {
		return nil, fmt.Errorf("%w: document id is required", domain.ErrInvalidInput)
	}
	if ix.embedder == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}

	if err := ix.graph.EnsureVectorIndex(ctx, ix.embedder.Dimensions()); err != nil {
		return nil, fmt.Errorf("ensure vector index: %w", err)
	}
	if err := ix.graph.DeleteDocument(ctx, req.DocumentID); err != nil {
		return nil, fmt.Errorf("clear previous index: %w", err)
	}
	if err := ix.graph.UpsertDocument(ctx, domain.DocumentNode{
		ID:        req.DocumentID,
		Name:      req.DocumentName,
		CreatedAt: time.Now(),
	}); err != nil {
		return nil, fmt.Errorf("upsert document node: %w", err)
	}

	if len(req.Chunks) == 0 {
		return &IndexResult{}, nil
	}

	chapters := append([]domain.Chapter(nil), req.Chapters...)
	sort.Slice(chapters, func(i, j int) bool { return chapters[i].StartChunk < chapters[j].StartChunk })

	var indexed, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.opts.Parallelism)

	for i, text := range req.Chunks {
		g.Go(func() error {
			if err := ix.indexChunk(gctx, req.DocumentID, i, text, chapters); err != nil {
				if errors.Is(err, context.Canceled) && ctx.Err() != nil {
					return err
				}
				logger.Warn("Chunk %d of %s not indexed: %v", i, req.DocumentID, err)
				failed.Add(1)
				return nil
			}
			indexed.Add(1)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &IndexResult{Indexed: int(indexed.Load()), Failed: int(failed.Load())}
	if result.Indexed == 0 {
		return result, fmt.Errorf("%w: none of %d chunks indexed", domain.ErrIndexingFailed, len(req.Chunks))
	}
	if result.Failed > 0 {
		logger.Warn("Indexed %d of %d chunks for %s", result.Indexed, len(req.Chunks), req.DocumentID)
	} else {
		logger.Debug("Indexed %d chunks for %s", result.Indexed, req.DocumentID)
	}
	return result, nil
}

// indexChunk embeds one chunk, tags its concepts and stores it.
func (ix *Indexer) indexChunk(
	ctx context.Context,
	documentID string,
	index int,
	text string,
	chapters []domain.Chapter,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	embedCtx, cancel := context.WithTimeout(ctx, ix.opts.EmbedTimeout)
	vector, err := ix.embedder.Embed(embedCtx, text)
	cancel()
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}

	chunk := domain.Chunk{
		ID:         uuid.New().String(),
		DocumentID: documentID,
		ChapterID:  domain.ChapterFor(chapters, index),
		Index:      index,
		Text:       text,
		Embedding:  vector,
		CreatedAt:  time.Now(),
	}

	if err := ix.graph.AddChunk(ctx, chunk, ix.extractConcepts(ctx, index, text)); err != nil {
		return fmt.Errorf("add chunk: %w", err)
	}
	return nil
}

// extractConcepts returns the chunk's concepts. Failures yield none.
func (ix *Indexer) extractConcepts(ctx context.Context, index int, text string) []string {
	if ix.concepts == nil || ix.opts.MaxConcepts == 0 {
		return nil
	}
	if err := ix.limiter.Wait(ctx); err != nil {
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, ix.opts.ConceptTimeout)
	defer cancel()

	concepts, err := ix.concepts.ExtractConcepts(callCtx, text, ix.opts.MaxConcepts)
	if err != nil {
		kind := domain.ClassifyExternal(err)
		if kind == domain.ExternalQuota {
			ix.limiter.Backoff(0)
		}
		logger.Debug("Chunk %d: concept extraction failed (%s): %v", index, kind, err)
		return nil
	}
	if len(concepts) > ix.opts.MaxConcepts {
		concepts = concepts[:ix.opts.MaxConcepts]
	}
	return concepts
}
