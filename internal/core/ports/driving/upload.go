package driving

import (
	"context"

	"github.com/custodia-labs/lectern/internal/core/domain"
)

// UploadRequest carries one PDF into the ingestion pipeline.
type UploadRequest struct {
	// OwnerID identifies the uploading user.
	OwnerID string

	// Name is the display name, usually the file name.
	Name string

	// Locator records where the original bytes are kept. Optional.
	Locator string

	// Data is the raw PDF.
	Data []byte
}

// UploadResult describes a completed upload.
type UploadResult struct {
	Document *domain.Document
	Chapters []domain.Chapter

	// ChunkCount is the number of chunks produced by the splitter.
	ChunkCount int

	// IndexedCount is the number of chunks written to the graph.
	// It is below ChunkCount when individual chunks failed.
	IndexedCount int
}

// UploadService runs the ingestion pipeline: extract, chunk, segment, index.
type UploadService interface {
	// Upload ingests a PDF. On failure the document is left in status error
	// and the original error is returned.
	Upload(ctx context.Context, req UploadRequest) (*UploadResult, error)
}

// SweepService reclaims uploads abandoned mid-pipeline.
type SweepService interface {
	// Sweep moves documents stuck in processing past the stale window to error
	// and returns them.
	Sweep(ctx context.Context) ([]domain.Document, error)
}
