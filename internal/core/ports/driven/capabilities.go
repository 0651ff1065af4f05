package driven

import (
	"context"

	"github.com/custodia-labs/lectern/internal/core/domain"
)

// Summariser produces a title and summary for a window of chunk text.
// Callers impose a timeout and fall back locally on any error.
type Summariser interface {
	Summarise(ctx context.Context, text string) (domain.ChapterSummary, error)
}

// ConceptExtractor returns up to max short concept names mentioned in text.
// Failures are treated as "no concepts".
type ConceptExtractor interface {
	ExtractConcepts(ctx context.Context, text string, max int) ([]string, error)
}

// QuestionRequest is the bounded input handed to a QuestionGenerator.
type QuestionRequest struct {
	Topic   string
	Context string
	Type    domain.QuestionType
}

// QuestionGenerator turns retrieved context into a quiz question.
// Implementations are unreliable (rate limits, malformed replies) and
// report failures as *domain.ExternalError.
type QuestionGenerator interface {
	GenerateQuestion(ctx context.Context, req QuestionRequest) (*domain.GeneratedQuestion, error)
}

// ValidationRequest is the bounded input handed to an AnswerValidator.
type ValidationRequest struct {
	Question      string
	Type          domain.QuestionType
	CorrectAnswer string
	Answer        string
	Context       string
}

// AnswerValidator grades a user's answer.
type AnswerValidator interface {
	ValidateAnswer(ctx context.Context, req ValidationRequest) (*domain.Grade, error)
}
