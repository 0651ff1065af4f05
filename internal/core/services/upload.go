package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
	"github.com/custodia-labs/lectern/internal/core/ports/driving"
	"github.com/custodia-labs/lectern/internal/logger"
)

// cleanupTimeout bounds the failure bookkeeping, which runs even when the
// upload context has been cancelled.
const cleanupTimeout = 10 * time.Second

// Ensure UploadService implements the interface.
var _ driving.UploadService = (*UploadService)(nil)

// UploadService drives a document through extraction, chunking, chapter
// segmentation and indexing, recording its status as it goes.
type UploadService struct {
	docs      driven.DocumentStore
	graph     driven.ChunkGraph
	extractor driven.TextExtractor
	splitter  driven.TextSplitter
	segmenter *ChapterSegmenter
	indexer   *Indexer
}

// NewUploadService creates a new upload service.
func NewUploadService(
	docs driven.DocumentStore,
	graph driven.ChunkGraph,
	extractor driven.TextExtractor,
	splitter driven.TextSplitter,
	segmenter *ChapterSegmenter,
	indexer *Indexer,
) *UploadService {
	return &UploadService{
		docs:      docs,
		graph:     graph,
		extractor: extractor,
		splitter:  splitter,
		segmenter: segmenter,
		indexer:   indexer,
	}
}

// Upload processes one PDF. The document ends in status ready on success and
// in status error on any failure after it was created; the returned error is
// the one that stopped processing.
func (s *UploadService) Upload(ctx context.Context, req driving.UploadRequest) (*driving.UploadResult, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: document name is required", domain.ErrInvalidInput)
	}

	now := time.Now()
	doc := &domain.Document{
		ID:        uuid.New().String(),
		OwnerID:   req.OwnerID,
		Name:      name,
		Locator:   req.Locator,
		Status:    domain.StatusProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.docs.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}

	logger.Section("Upload " + name)
	logger.Debug("Document %s created", doc.ID)

	result, err := s.process(ctx, doc, req.Data)
	if err != nil {
		s.fail(ctx, doc, err)
		return nil, err
	}

	if err := s.docs.TransitionStatus(ctx, doc.ID, domain.StatusProcessing, domain.StatusReady); err != nil {
		err = fmt.Errorf("mark ready: %w", err)
		s.fail(ctx, doc, err)
		return nil, err
	}
	doc.Status = domain.StatusReady
	doc.UpdatedAt = time.Now()

	logger.Info("Document %s ready: %d chunks, %d chapters", doc.ID, result.ChunkCount, len(result.Chapters))
	return result, nil
}

// process runs the pipeline stages for a created document.
func (s *UploadService) process(ctx context.Context, doc *domain.Document, data []byte) (*driving.UploadResult, error) {
	text, err := s.extractor.Extract(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}

	chunks := s.splitter.Split(text)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: no text chunks in document", domain.ErrExtraction)
	}
	logger.Debug("Split into %d chunks", len(chunks))

	chapters, err := s.segment(ctx, doc.ID, chunks)
	if err != nil {
		return nil, err
	}

	indexed, err := s.indexer.Index(ctx, IndexRequest{
		DocumentID:   doc.ID,
		DocumentName: doc.Name,
		Chunks:       chunks,
		Chapters:     chapters,
	})
	if err != nil {
		return nil, fmt.Errorf("index: %w", err)
	}

	return &driving.UploadResult{
		Document:     doc,
		Chapters:     chapters,
		ChunkCount:   len(chunks),
		IndexedCount: indexed.Indexed,
	}, nil
}

// segment stores the chapters in their own transaction.
func (s *UploadService) segment(ctx context.Context, documentID string, chunks []string) ([]domain.Chapter, error) {
	tx, err := s.docs.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}

	chapters, err := s.segmenter.Segment(ctx, tx, documentID, chunks)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Warn("Rollback for %s failed: %v", documentID, rbErr)
		}
		return nil, fmt.Errorf("segment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit chapters: %w", err)
	}
	return chapters, nil
}

// fail records the error status and drops any partial index. Its own
// failures are logged, never returned.
func (s *UploadService) fail(ctx context.Context, doc *domain.Document, cause error) {
	logger.Error("Upload of %s failed: %v", doc.ID, cause)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	err := s.docs.TransitionStatus(ctx, doc.ID, domain.StatusProcessing, domain.StatusError)
	switch {
	case err == nil:
		doc.Status = domain.StatusError
	case errors.Is(err, domain.ErrInvalidTransition):
		logger.Warn("Document %s already left processing: %v", doc.ID, err)
	default:
		logger.Error("Could not mark %s as error: %v", doc.ID, err)
	}

	if s.graph == nil {
		return
	}
	if err := s.graph.DeleteDocument(ctx, doc.ID); err != nil {
		logger.Warn("Could not clear partial index of %s: %v", doc.ID, err)
	}
}
