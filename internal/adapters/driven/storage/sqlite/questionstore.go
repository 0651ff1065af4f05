package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
)

// questionStore implements driven.QuestionStore.
type questionStore struct {
	store *Store
}

var _ driven.QuestionStore = (*questionStore)(nil)

const questionColumns = "id, owner_id, document_id, chapter_id, topic, type, prompt, options, " +
	"correct_answer, explanation, context, created_at"

// SaveQuestion stores or replaces a question.
func (s *questionStore) SaveQuestion(ctx context.Context, q *domain.Question) error {
	if q == nil || q.ID == "" {
		return domain.ErrInvalidInput
	}

	options := q.Options
	if options == nil {
		options = []string{}
	}
	optionsJSON, err := json.Marshal(options)
	if err != nil {
		return fmt.Errorf("marshalling options: %w", err)
	}

	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now()
	}

	var documentID sql.NullString
	if q.DocumentID != "" {
		documentID = sql.NullString{String: q.DocumentID, Valid: true}
		var exists int
		err := s.store.db.QueryRowContext(ctx, "SELECT 1 FROM documents WHERE id = ?", q.DocumentID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("question document %s: %w", q.DocumentID, domain.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("checking document: %w", err)
		}
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO questions (`+questionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			topic = excluded.topic,
			type = excluded.type,
			prompt = excluded.prompt,
			options = excluded.options,
			correct_answer = excluded.correct_answer,
			explanation = excluded.explanation,
			context = excluded.context
	`, q.ID, q.OwnerID, documentID, q.ChapterID, q.Topic, string(q.Type), q.Prompt,
		string(optionsJSON), q.CorrectAnswer, q.Explanation, q.Context, toUnix(q.CreatedAt))
	if err != nil {
		return fmt.Errorf("saving question: %w", err)
	}
	return nil
}

// GetQuestion retrieves a question by ID.
func (s *questionStore) GetQuestion(ctx context.Context, id string) (*domain.Question, error) {
	row := s.store.db.QueryRowContext(ctx,
		"SELECT "+questionColumns+" FROM questions WHERE id = ?", id)

	q, err := scanQuestion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return q, err
}

// ListQuestions returns a document's questions, oldest first.
func (s *questionStore) ListQuestions(ctx context.Context, documentID string) ([]domain.Question, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT `+questionColumns+` FROM questions
		WHERE document_id = ?
		ORDER BY created_at, id
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("querying questions: %w", err)
	}
	defer rows.Close()

	var questions []domain.Question //nolint:prealloc // size unknown from query
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, *q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating questions: %w", err)
	}
	return questions, nil
}

// SaveAnswer stores an answer.
func (s *questionStore) SaveAnswer(ctx context.Context, a *domain.Answer) error {
	if a == nil || a.ID == "" {
		return domain.ErrInvalidInput
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}

	var exists int
	err := s.store.db.QueryRowContext(ctx, "SELECT 1 FROM questions WHERE id = ?", a.QuestionID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("answer question %s: %w", a.QuestionID, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("checking question: %w", err)
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO answers (id, question_id, user_id, response, score, correct, feedback, graded, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.QuestionID, a.UserID, a.Response, a.Score, boolToInt(a.Correct),
		a.Feedback, boolToInt(a.Graded), toUnix(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("saving answer: %w", err)
	}
	return nil
}

// ListAnswers returns the answers recorded for a question in submission order.
func (s *questionStore) ListAnswers(ctx context.Context, questionID string) ([]domain.Answer, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, question_id, user_id, response, score, correct, feedback, graded, created_at
		FROM answers WHERE question_id = ?
		ORDER BY created_at, rowid
	`, questionID)
	if err != nil {
		return nil, fmt.Errorf("querying answers: %w", err)
	}
	defer rows.Close()

	var answers []domain.Answer //nolint:prealloc // size unknown from query
	for rows.Next() {
		var a domain.Answer
		var correct, graded int
		var createdAt int64
		if err := rows.Scan(&a.ID, &a.QuestionID, &a.UserID, &a.Response, &a.Score,
			&correct, &a.Feedback, &graded, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning answer: %w", err)
		}
		a.Correct = correct != 0
		a.Graded = graded != 0
		a.CreatedAt = fromUnix(createdAt)
		answers = append(answers, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating answers: %w", err)
	}
	return answers, nil
}

// scanQuestion scans a single question row.
func scanQuestion(row rowScanner) (*domain.Question, error) {
	var q domain.Question
	var documentID sql.NullString
	var qType, optionsJSON string
	var createdAt int64

	if err := row.Scan(&q.ID, &q.OwnerID, &documentID, &q.ChapterID, &q.Topic, &qType, &q.Prompt,
		&optionsJSON, &q.CorrectAnswer, &q.Explanation, &q.Context, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning question: %w", err)
	}

	if err := json.Unmarshal([]byte(optionsJSON), &q.Options); err != nil {
		return nil, fmt.Errorf("unmarshaling options: %w", err)
	}
	if len(q.Options) == 0 {
		q.Options = nil
	}

	q.DocumentID = documentID.String
	q.Type = domain.QuestionType(qType)
	q.CreatedAt = fromUnix(createdAt)
	return &q, nil
}
