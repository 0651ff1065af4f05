package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
	"github.com/custodia-labs/lectern/internal/core/ports/driving"
	"github.com/custodia-labs/lectern/internal/logger"
)

// Question generation limits.
const (
	// DefaultTopic is used when the caller gives none and the document has no concepts.
	DefaultTopic = "What are the main concepts in this document?"

	questionChunks   = 5
	questionChars    = 2000
	validationChars  = 4000
	contextSeparator = "\n\n---\n\n"
	generateTimeout  = 60 * time.Second
	validateTimeout  = 60 * time.Second
	fallbackScore    = 0.5
	fallbackFeedback = "Your answer was recorded but could not be graded automatically."
)

// questionTypes is the rotation used for successive questions of a document.
var questionTypes = []domain.QuestionType{
	domain.QuestionShortAnswer,
	domain.QuestionMultipleChoice,
	domain.QuestionTrueFalse,
}

// Ensure QuestionService implements the interface.
var _ driving.QuestionService = (*QuestionService)(nil)

// QuestionService generates quiz questions from retrieved chunks and grades answers.
type QuestionService struct {
	docs      driven.DocumentStore
	questions driven.QuestionStore
	graph     driven.ChunkGraph
	retrieval driving.RetrievalService
	generator driven.QuestionGenerator
	validator driven.AnswerValidator
}

// NewQuestionService creates a new question service. validator may be nil,
// in which case every answer gets the fallback grade.
func NewQuestionService(
	docs driven.DocumentStore,
	questions driven.QuestionStore,
	graph driven.ChunkGraph,
	retrieval driving.RetrievalService,
	generator driven.QuestionGenerator,
	validator driven.AnswerValidator,
) *QuestionService {
	return &QuestionService{
		docs:      docs,
		questions: questions,
		graph:     graph,
		retrieval: retrieval,
		generator: generator,
		validator: validator,
	}
}

// Generate creates a question about topic from the document's most relevant chunks.
// An empty topic falls back to the document's most mentioned concept.
func (s *QuestionService) Generate(ctx context.Context, ownerID, documentID, topic string) (*domain.Question, error) {
	if s.generator == nil {
		return nil, domain.ErrLLMUnavailable
	}

	doc, err := s.docs.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.Status != domain.StatusReady {
		return nil, fmt.Errorf("%w: document %s is %s", domain.ErrNoContent, documentID, doc.Status)
	}

	topic = strings.TrimSpace(topic)
	if topic == "" {
		topic = s.defaultTopic(ctx, documentID)
	}
	logger.Debug("Generating question on %q for %s", topic, documentID)

	hits, err := s.retrieval.Query(ctx, documentID, topic, questionChunks)
	if err != nil {
		return nil, fmt.Errorf("retrieve context: %w", err)
	}
	if len(hits) == 0 {
		return nil, fmt.Errorf("%w: nothing relevant to %q in %s", domain.ErrNoContent, topic, documentID)
	}

	texts := make([]string, len(hits))
	for i, hit := range hits {
		texts[i] = hit.Text
	}

	return s.generate(ctx, ownerID, documentID, hits[0].ChapterID, topic, texts)
}

// GenerateRandom creates a question from chunks sampled across the owner's ready documents.
func (s *QuestionService) GenerateRandom(ctx context.Context, ownerID string) (*domain.Question, error) {
	if s.generator == nil {
		return nil, domain.ErrLLMUnavailable
	}

	chunks, err := s.retrieval.Sample(ctx, ownerID, questionChunks)
	if err != nil {
		return nil, fmt.Errorf("sample chunks: %w", err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: no ready documents", domain.ErrNoContent)
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	first := chunks[0]
	return s.generate(ctx, ownerID, first.DocumentID, first.ChapterID, s.defaultTopic(ctx, first.DocumentID), texts)
}

// generate calls the generator on the joined context and stores the result.
func (s *QuestionService) generate(
	ctx context.Context,
	ownerID, documentID, chapterID, topic string,
	texts []string,
) (*domain.Question, error) {
	questionContext := truncateRunes(strings.Join(texts, contextSeparator), questionChars)

	existing, err := s.questions.ListQuestions(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	qtype := questionTypes[len(existing)%len(questionTypes)]

	callCtx, cancel := context.WithTimeout(ctx, generateTimeout)
	defer cancel()

	generated, err := s.generator.GenerateQuestion(callCtx, driven.QuestionRequest{
		Topic:   topic,
		Context: questionContext,
		Type:    qtype,
	})
	if err != nil {
		return nil, fmt.Errorf("generate question: %w", err)
	}

	q := &domain.Question{
		ID:                uuid.New().String(),
		OwnerID:           ownerID,
		DocumentID:        documentID,
		ChapterID:         chapterID,
		Topic:             topic,
		GeneratedQuestion: *generated,
		Context:           questionContext,
		CreatedAt:         time.Now(),
	}
	if err := s.questions.SaveQuestion(ctx, q); err != nil {
		return nil, fmt.Errorf("save question: %w", err)
	}

	logger.Info("Question %s (%s) generated for %s", q.ID, q.Type, documentID)
	return q, nil
}

// defaultTopic returns the document's most mentioned concept or DefaultTopic.
func (s *QuestionService) defaultTopic(ctx context.Context, documentID string) string {
	concepts, err := s.graph.ListConcepts(ctx, documentID, 1)
	if err != nil {
		logger.Debug("Concepts for %s unavailable: %v", documentID, err)
		return DefaultTopic
	}
	if len(concepts) == 0 {
		return DefaultTopic
	}
	return concepts[0].Name
}

// SubmitAnswer grades and records a response. A validator failure records the
// fallback grade with Graded false instead of failing the submission.
func (s *QuestionService) SubmitAnswer(
	ctx context.Context,
	userID, questionID, response string,
) (*domain.Answer, error) {
	response = strings.TrimSpace(response)
	if response == "" {
		return nil, fmt.Errorf("%w: answer is empty", domain.ErrInvalidInput)
	}

	q, err := s.questions.GetQuestion(ctx, questionID)
	if err != nil {
		return nil, err
	}

	answer := &domain.Answer{
		ID:         uuid.New().String(),
		QuestionID: q.ID,
		UserID:     userID,
		Response:   response,
		CreatedAt:  time.Now(),
	}

	grade, err := s.grade(ctx, q, response)
	if err != nil {
		logger.Warn("Grading answer to %s failed (%s), recording fallback: %v",
			q.ID, domain.ClassifyExternal(err), err)
		answer.Score = fallbackScore
		answer.Feedback = fallbackFeedback
	} else {
		answer.Score = grade.Score
		answer.Correct = grade.Correct
		answer.Feedback = grade.Feedback
		answer.Graded = true
	}

	if err := s.questions.SaveAnswer(ctx, answer); err != nil {
		return nil, fmt.Errorf("save answer: %w", err)
	}
	return answer, nil
}

// grade asks the validator for a grade.
func (s *QuestionService) grade(ctx context.Context, q *domain.Question, response string) (*domain.Grade, error) {
	if s.validator == nil {
		return nil, domain.ErrLLMUnavailable
	}

	callCtx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()

	return s.validator.ValidateAnswer(callCtx, driven.ValidationRequest{
		Question:      q.Prompt,
		Type:          q.Type,
		CorrectAnswer: q.CorrectAnswer,
		Answer:        response,
		Context:       truncateRunes(q.Context, validationChars),
	})
}

// Answers returns the answers recorded for a question.
func (s *QuestionService) Answers(ctx context.Context, questionID string) ([]domain.Answer, error) {
	if _, err := s.questions.GetQuestion(ctx, questionID); err != nil {
		return nil, err
	}
	return s.questions.ListAnswers(ctx, questionID)
}
