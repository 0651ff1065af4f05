package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
)

// documentStore implements driven.DocumentStore.
type documentStore struct {
	store *Store
}

var (
	_ driven.DocumentStore = (*documentStore)(nil)
	_ driven.DocumentTx    = (*documentTx)(nil)
)

const documentColumns = "id, owner_id, name, locator, status, created_at, updated_at"

// CreateDocument stores a new document.
func (s *documentStore) CreateDocument(ctx context.Context, doc *domain.Document) error {
	if doc == nil || doc.ID == "" || !doc.Status.IsValid() {
		return domain.ErrInvalidInput
	}

	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = doc.CreatedAt
	}

	res, err := s.store.db.ExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, doc.ID, doc.OwnerID, doc.Name, doc.Locator, string(doc.Status),
		toUnix(doc.CreatedAt), toUnix(doc.UpdatedAt))
	if err != nil {
		return fmt.Errorf("saving document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: document %s already exists", domain.ErrInvalidInput, doc.ID)
	}
	return nil
}

// GetDocument retrieves a document by ID.
func (s *documentStore) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	row := s.store.db.QueryRowContext(ctx,
		"SELECT "+documentColumns+" FROM documents WHERE id = ?", id)

	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return doc, err
}

// ListDocuments returns documents for an owner, newest first.
func (s *documentStore) ListDocuments(ctx context.Context, ownerID string) ([]domain.Document, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE ? = '' OR owner_id = ?
		ORDER BY created_at DESC, id
	`, ownerID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	return scanDocuments(rows)
}

// TransitionStatus moves a document from one status to another.
// The UPDATE is conditional on the current status, so a concurrent sweep and
// a finishing upload cannot both win.
func (s *documentStore) TransitionStatus(ctx context.Context, id string, from, to domain.DocumentStatus) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, to)
	}

	res, err := s.store.db.ExecContext(ctx, `
		UPDATE documents SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, string(to), toUnix(time.Now()), id, string(from))
	if err != nil {
		return fmt.Errorf("updating document status: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating document status: %w", err)
	}
	if n > 0 {
		return nil
	}

	doc, err := s.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: document %s is %s, not %s", domain.ErrInvalidTransition, id, doc.Status, from)
}

// ListStale returns documents in status last updated before the cutoff.
func (s *documentStore) ListStale(
	ctx context.Context, status domain.DocumentStatus, before time.Time,
) ([]domain.Document, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE status = ? AND updated_at < ?
		ORDER BY updated_at
	`, string(status), toUnix(before))
	if err != nil {
		return nil, fmt.Errorf("querying stale documents: %w", err)
	}
	defer rows.Close()

	return scanDocuments(rows)
}

// DeleteDocument removes a document. Chapters, questions and answers cascade.
func (s *documentStore) DeleteDocument(ctx context.Context, id string) error {
	_, err := s.store.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	return nil
}

// ListChapters returns a document's chapters ordered by number.
func (s *documentStore) ListChapters(ctx context.Context, documentID string) ([]domain.Chapter, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, document_id, number, title, summary, start_chunk, end_chunk, created_at
		FROM chapters WHERE document_id = ?
		ORDER BY number
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("querying chapters: %w", err)
	}
	defer rows.Close()

	var chapters []domain.Chapter //nolint:prealloc // size unknown from query
	for rows.Next() {
		var ch domain.Chapter
		var createdAt int64
		if err := rows.Scan(&ch.ID, &ch.DocumentID, &ch.Number, &ch.Title, &ch.Summary,
			&ch.StartChunk, &ch.EndChunk, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning chapter: %w", err)
		}
		ch.CreatedAt = fromUnix(createdAt)
		chapters = append(chapters, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chapters: %w", err)
	}
	return chapters, nil
}

// Begin opens a database transaction.
func (s *documentStore) Begin(ctx context.Context) (driven.DocumentTx, error) {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	return &documentTx{tx: tx, cleared: make(map[string]bool)}, nil
}

// documentTx implements driven.DocumentTx over a *sql.Tx.
type documentTx struct {
	tx *sql.Tx

	// cleared records documents whose previous chapters were already removed in this tx.
	cleared map[string]bool
}

// SaveChapters inserts a batch of chapters, replacing any chapters the
// document had before this transaction.
func (t *documentTx) SaveChapters(ctx context.Context, chapters []domain.Chapter) error {
	if len(chapters) == 0 {
		return nil
	}

	stmt, err := t.tx.PrepareContext(ctx, `
		INSERT INTO chapters (id, document_id, number, title, summary, start_chunk, end_chunk, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, ch := range chapters {
		if !t.cleared[ch.DocumentID] {
			if err := t.clear(ctx, ch.DocumentID); err != nil {
				return err
			}
			t.cleared[ch.DocumentID] = true
		}

		createdAt := ch.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		if _, err := stmt.ExecContext(ctx, ch.ID, ch.DocumentID, ch.Number, ch.Title, ch.Summary,
			ch.StartChunk, ch.EndChunk, toUnix(createdAt)); err != nil {
			return fmt.Errorf("saving chapter %d: %w", ch.Number, err)
		}
	}
	return nil
}

// clear removes the document's existing chapters, then checks the document exists.
// The DELETE comes first so the transaction takes the write lock before reading.
func (t *documentTx) clear(ctx context.Context, documentID string) error {
	if _, err := t.tx.ExecContext(ctx, "DELETE FROM chapters WHERE document_id = ?", documentID); err != nil {
		return fmt.Errorf("clearing chapters: %w", err)
	}
	var exists int
	err := t.tx.QueryRowContext(ctx, "SELECT 1 FROM documents WHERE id = ?", documentID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("document %s: %w", documentID, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("checking document: %w", err)
	}
	return nil
}

// Commit commits the transaction.
func (t *documentTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Rollback aborts the transaction. It is a no-op after Commit.
func (t *documentTx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rolling back transaction: %w", err)
	}
	return nil
}

// scanDocument scans a single document row.
func scanDocument(row rowScanner) (*domain.Document, error) {
	var doc domain.Document
	var status string
	var createdAt, updatedAt int64

	if err := row.Scan(&doc.ID, &doc.OwnerID, &doc.Name, &doc.Locator, &status,
		&createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}

	doc.Status = domain.DocumentStatus(status)
	doc.CreatedAt = fromUnix(createdAt)
	doc.UpdatedAt = fromUnix(updatedAt)
	return &doc, nil
}

// scanDocuments scans every row of a document query.
func scanDocuments(rows *sql.Rows) ([]domain.Document, error) {
	var docs []domain.Document //nolint:prealloc // size unknown from query
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return docs, nil
}
