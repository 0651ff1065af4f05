package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
)

// Ensure DocumentStore implements the interfaces.
var (
	_ driven.DocumentStore = (*DocumentStore)(nil)
	_ driven.QuestionStore = (*DocumentStore)(nil)
	_ driven.DocumentTx    = (*documentTx)(nil)
)

// DocumentStore is an in-memory implementation of driven.DocumentStore
// and driven.QuestionStore. Deleting a document cascades to its chapters,
// questions and answers, as the SQLite store does.
type DocumentStore struct {
	mu        sync.RWMutex
	documents map[string]domain.Document
	chapters  map[string][]domain.Chapter
	questions map[string]domain.Question
	answers   map[string][]domain.Answer
}

// NewDocumentStore creates a new in-memory document store.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		documents: make(map[string]domain.Document),
		chapters:  make(map[string][]domain.Chapter),
		questions: make(map[string]domain.Question),
		answers:   make(map[string][]domain.Answer),
	}
}

// CreateDocument stores a new document.
func (s *DocumentStore) CreateDocument(_ context.Context, doc *domain.Document) error {
	if doc == nil || doc.ID == "" || !doc.Status.IsValid() {
		return domain.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[doc.ID]; ok {
		return fmt.Errorf("%w: document %s already exists", domain.ErrInvalidInput, doc.ID)
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = doc.CreatedAt
	}
	s.documents[doc.ID] = *doc
	return nil
}

// GetDocument retrieves a document by ID.
func (s *DocumentStore) GetDocument(_ context.Context, id string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &doc, nil
}

// ListDocuments returns documents for an owner, newest first.
func (s *DocumentStore) ListDocuments(_ context.Context, ownerID string) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var docs []domain.Document
	for _, doc := range s.documents {
		if ownerID == "" || doc.OwnerID == ownerID {
			docs = append(docs, doc)
		}
	}
	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].CreatedAt.After(docs[j].CreatedAt)
		}
		return docs[i].ID < docs[j].ID
	})
	return docs, nil
}

// TransitionStatus moves a document from one status to another.
func (s *DocumentStore) TransitionStatus(_ context.Context, id string, from, to domain.DocumentStatus) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, to)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[id]
	if !ok {
		return domain.ErrNotFound
	}
	if doc.Status != from {
		return fmt.Errorf("%w: document %s is %s, not %s", domain.ErrInvalidTransition, id, doc.Status, from)
	}
	doc.Status = to
	doc.UpdatedAt = time.Now()
	s.documents[id] = doc
	return nil
}

// ListStale returns documents in status last updated before the cutoff.
func (s *DocumentStore) ListStale(
	_ context.Context, status domain.DocumentStatus, before time.Time,
) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var docs []domain.Document
	for _, doc := range s.documents {
		if doc.Status == status && doc.UpdatedAt.Before(before) {
			docs = append(docs, doc)
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].UpdatedAt.Before(docs[j].UpdatedAt) })
	return docs, nil
}

// DeleteDocument removes a document with its chapters, questions and answers.
func (s *DocumentStore) DeleteDocument(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.documents, id)
	delete(s.chapters, id)
	for qid, q := range s.questions {
		if q.DocumentID == id {
			delete(s.questions, qid)
			delete(s.answers, qid)
		}
	}
	return nil
}

// ListChapters returns a document's chapters ordered by number.
func (s *DocumentStore) ListChapters(_ context.Context, documentID string) ([]domain.Chapter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chapters := append([]domain.Chapter(nil), s.chapters[documentID]...)
	sort.Slice(chapters, func(i, j int) bool { return chapters[i].Number < chapters[j].Number })
	return chapters, nil
}

// Begin opens a unit of work. Writes are buffered until Commit.
func (s *DocumentStore) Begin(_ context.Context) (driven.DocumentTx, error) {
	return &documentTx{store: s}, nil
}

// documentTx buffers chapter writes for a DocumentStore.
type documentTx struct {
	store    *DocumentStore
	chapters []domain.Chapter
	done     bool
}

// SaveChapters buffers a batch of chapters.
func (t *documentTx) SaveChapters(_ context.Context, chapters []domain.Chapter) error {
	if t.done {
		return fmt.Errorf("%w: transaction already finished", domain.ErrInvalidInput)
	}
	t.chapters = append(t.chapters, chapters...)
	return nil
}

// Commit applies the buffered chapters. Chapters of one document replace any previous set.
func (t *documentTx) Commit() error {
	if t.done {
		return fmt.Errorf("%w: transaction already finished", domain.ErrInvalidInput)
	}
	t.done = true

	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	byDoc := make(map[string][]domain.Chapter)
	for _, ch := range t.chapters {
		if _, ok := s.documents[ch.DocumentID]; !ok {
			return fmt.Errorf("chapter %s: document %s: %w", ch.ID, ch.DocumentID, domain.ErrNotFound)
		}
		byDoc[ch.DocumentID] = append(byDoc[ch.DocumentID], ch)
	}
	for docID, chapters := range byDoc {
		s.chapters[docID] = chapters
	}
	return nil
}

// Rollback discards the buffered chapters.
func (t *documentTx) Rollback() error {
	t.done = true
	t.chapters = nil
	return nil
}

// SaveQuestion stores or replaces a question.
func (s *DocumentStore) SaveQuestion(_ context.Context, q *domain.Question) error {
	if q == nil || q.ID == "" {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[q.DocumentID]; q.DocumentID != "" && !ok {
		return fmt.Errorf("question document %s: %w", q.DocumentID, domain.ErrNotFound)
	}
	s.questions[q.ID] = *q
	return nil
}

// GetQuestion retrieves a question by ID.
func (s *DocumentStore) GetQuestion(_ context.Context, id string) (*domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.questions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &q, nil
}

// ListQuestions returns a document's questions, oldest first.
func (s *DocumentStore) ListQuestions(_ context.Context, documentID string) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var questions []domain.Question
	for _, q := range s.questions {
		if q.DocumentID == documentID {
			questions = append(questions, q)
		}
	}
	sort.Slice(questions, func(i, j int) bool { return questions[i].CreatedAt.Before(questions[j].CreatedAt) })
	return questions, nil
}

// SaveAnswer stores an answer.
func (s *DocumentStore) SaveAnswer(_ context.Context, a *domain.Answer) error {
	if a == nil || a.ID == "" {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.questions[a.QuestionID]; !ok {
		return fmt.Errorf("answer question %s: %w", a.QuestionID, domain.ErrNotFound)
	}
	s.answers[a.QuestionID] = append(s.answers[a.QuestionID], *a)
	return nil
}

// ListAnswers returns the answers recorded for a question in submission order.
func (s *DocumentStore) ListAnswers(_ context.Context, questionID string) ([]domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Answer(nil), s.answers[questionID]...), nil
}
