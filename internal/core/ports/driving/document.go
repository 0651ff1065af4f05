package driving

import (
	"context"

	"github.com/custodia-labs/lectern/internal/core/domain"
)

// DocumentService manages uploaded documents.
type DocumentService interface {
	// List returns an owner's documents. An empty owner lists all documents.
	List(ctx context.Context, ownerID string) ([]domain.Document, error)

	// Get retrieves a document by ID.
	Get(ctx context.Context, documentID string) (*domain.Document, error)

	// Details returns the document with its chapters and graph statistics.
	Details(ctx context.Context, documentID string) (*DocumentDetails, error)

	// Content reconstructs the chunked text in index order.
	Content(ctx context.Context, documentID string) (string, error)

	// PurgeIndex deletes the document's graph nodes. This is phase one of a delete
	// and is retried until it succeeds or the retry budget is spent.
	PurgeIndex(ctx context.Context, documentID string) error

	// DeleteRecord deletes the relational row with its chapters, questions and answers.
	// This is phase two and fails with domain.ErrGraphNotEmpty if chunks remain.
	DeleteRecord(ctx context.Context, documentID string) error

	// Delete runs PurgeIndex then DeleteRecord.
	Delete(ctx context.Context, documentID string) error
}

// DocumentDetails provides a combined view of a document for display.
type DocumentDetails struct {
	Document   domain.Document
	Chapters   []domain.Chapter
	ChunkCount int
	Concepts   []domain.ConceptCount
}
