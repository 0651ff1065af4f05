package driving

import (
	"context"

	"github.com/custodia-labs/lectern/internal/core/domain"
)

// QuestionService generates quiz questions from indexed documents and grades answers.
type QuestionService interface {
	// Generate creates a question for one document. An empty topic defaults to the
	// document's most mentioned concept. Fails with domain.ErrNoContent when
	// retrieval finds nothing.
	Generate(ctx context.Context, ownerID, documentID, topic string) (*domain.Question, error)

	// GenerateRandom creates a question from chunks sampled across the owner's ready documents.
	GenerateRandom(ctx context.Context, ownerID string) (*domain.Question, error)

	// SubmitAnswer grades and records a user's answer. When the validator fails,
	// a fallback grade is recorded instead of returning an error.
	SubmitAnswer(ctx context.Context, userID, questionID, response string) (*domain.Answer, error)

	// Answers lists the recorded answers for a question.
	Answers(ctx context.Context, questionID string) ([]domain.Answer, error)
}
