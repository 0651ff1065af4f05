package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
	"github.com/custodia-labs/lectern/internal/core/ports/driving"
	"github.com/custodia-labs/lectern/internal/logger"
	"github.com/custodia-labs/lectern/internal/retry"
)

// detailConcepts is how many concepts Details reports.
const detailConcepts = 10

// Ensure DocumentService implements the interface.
var _ driving.DocumentService = (*DocumentService)(nil)

// DocumentService reads documents and removes them from both stores.
type DocumentService struct {
	docs      driven.DocumentStore
	graph     driven.ChunkGraph
	purgeOpts retry.Options
}

// NewDocumentService creates a new document service.
func NewDocumentService(docs driven.DocumentStore, graph driven.ChunkGraph) *DocumentService {
	return &DocumentService{docs: docs, graph: graph, purgeOpts: retry.DefaultOptions}
}

// List returns the owner's documents, newest first. An empty owner lists all.
func (s *DocumentService) List(ctx context.Context, ownerID string) ([]domain.Document, error) {
	return s.docs.ListDocuments(ctx, ownerID)
}

// Get retrieves a document by ID.
func (s *DocumentService) Get(ctx context.Context, documentID string) (*domain.Document, error) {
	return s.docs.GetDocument(ctx, documentID)
}

// Details returns the document with its chapters, chunk count and top concepts.
func (s *DocumentService) Details(ctx context.Context, documentID string) (*driving.DocumentDetails, error) {
	doc, err := s.docs.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	chapters, err := s.docs.ListChapters(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}

	count, err := s.graph.CountChunks(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("count chunks: %w", err)
	}

	concepts, err := s.graph.ListConcepts(ctx, documentID, detailConcepts)
	if err != nil {
		return nil, fmt.Errorf("list concepts: %w", err)
	}

	return &driving.DocumentDetails{
		Document:   *doc,
		Chapters:   chapters,
		ChunkCount: count,
		Concepts:   concepts,
	}, nil
}

// Content returns the document's indexed chunks in order, one per line.
// Adjacent chunks overlap, so the result repeats some text.
func (s *DocumentService) Content(ctx context.Context, documentID string) (string, error) {
	if _, err := s.docs.GetDocument(ctx, documentID); err != nil {
		return "", err
	}

	chunks, err := s.graph.ListChunks(ctx, documentID)
	if err != nil {
		return "", fmt.Errorf("list chunks: %w", err)
	}

	sort.Slice(chunks, func(i, j int) bool {
		return chunks[i].Index < chunks[j].Index
	})

	var builder strings.Builder
	for i, chunk := range chunks {
		if i > 0 {
			builder.WriteString("\n")
		}
		builder.WriteString(chunk.Text)
	}
	return builder.String(), nil
}

// PurgeIndex removes the document's graph nodes, retrying transient
// failures, and confirms nothing is left.
func (s *DocumentService) PurgeIndex(ctx context.Context, documentID string) error {
	if documentID == "" {
		return fmt.Errorf("%w: document id is required", domain.ErrInvalidInput)
	}

	err := retry.Do(ctx, s.purgeOpts, func(ctx context.Context) error {
		if err := s.graph.DeleteDocument(ctx, documentID); err != nil {
			logger.Debug("Purge of %s failed, retrying: %v", documentID, err)
			return err
		}
		count, err := s.graph.CountChunks(ctx, documentID)
		if err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w: %d chunks remain", domain.ErrGraphNotEmpty, count)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("purge index of %s: %w", documentID, err)
	}
	return nil
}

// DeleteRecord removes the relational document with its chapters, questions
// and answers. It refuses while the graph still holds the document's chunks.
func (s *DocumentService) DeleteRecord(ctx context.Context, documentID string) error {
	if _, err := s.docs.GetDocument(ctx, documentID); err != nil {
		return err
	}

	count, err := s.graph.CountChunks(ctx, documentID)
	if err != nil {
		return fmt.Errorf("count chunks: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("%w: %s has %d chunks", domain.ErrGraphNotEmpty, documentID, count)
	}

	return s.docs.DeleteDocument(ctx, documentID)
}

// Delete purges the index and then deletes the record.
func (s *DocumentService) Delete(ctx context.Context, documentID string) error {
	if _, err := s.docs.GetDocument(ctx, documentID); err != nil {
		return err
	}
	if err := s.PurgeIndex(ctx, documentID); err != nil {
		return err
	}
	if err := s.DeleteRecord(ctx, documentID); err != nil {
		return err
	}
	logger.Info("Deleted document %s", documentID)
	return nil
}
