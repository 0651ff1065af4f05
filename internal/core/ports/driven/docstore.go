package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/lectern/internal/core/domain"
)

// DocumentStore persists documents and chapters.
// Backed by SQLite for metadata storage.
type DocumentStore interface {
	// CreateDocument stores a new document. Fails with domain.ErrInvalidInput
	// if the ID is empty or the status is unknown.
	CreateDocument(ctx context.Context, doc *domain.Document) error

	// GetDocument retrieves a document by ID.
	GetDocument(ctx context.Context, id string) (*domain.Document, error)

	// ListDocuments returns documents for an owner, newest first.
	// An empty owner lists every document.
	ListDocuments(ctx context.Context, ownerID string) ([]domain.Document, error)

	// TransitionStatus moves a document from one status to another.
	// The write only applies while the stored status still equals from;
	// otherwise it fails with domain.ErrInvalidTransition.
	TransitionStatus(ctx context.Context, id string, from, to domain.DocumentStatus) error

	// ListStale returns documents in status whose last update is before the cutoff.
	ListStale(ctx context.Context, status domain.DocumentStatus, before time.Time) ([]domain.Document, error)

	// DeleteDocument removes a document together with its chapters, questions and answers.
	DeleteDocument(ctx context.Context, id string) error

	// ListChapters returns a document's chapters ordered by number.
	ListChapters(ctx context.Context, documentID string) ([]domain.Chapter, error)

	// Begin opens a unit of work for batched writes.
	Begin(ctx context.Context) (DocumentTx, error)
}

// DocumentTx is a unit of work over the relational store.
// Nothing written through it is visible until Commit.
type DocumentTx interface {
	// SaveChapters stores all chapters of a document in one batch.
	SaveChapters(ctx context.Context, chapters []domain.Chapter) error

	// Commit makes the writes durable.
	Commit() error

	// Rollback discards the writes. Calling it after Commit is a no-op.
	Rollback() error
}

// QuestionStore persists generated questions and graded answers.
type QuestionStore interface {
	SaveQuestion(ctx context.Context, q *domain.Question) error
	GetQuestion(ctx context.Context, id string) (*domain.Question, error)
	ListQuestions(ctx context.Context, documentID string) ([]domain.Question, error)
	SaveAnswer(ctx context.Context, a *domain.Answer) error
	ListAnswers(ctx context.Context, questionID string) ([]domain.Answer, error)
}
