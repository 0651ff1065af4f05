package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
)

// Interface checks.
var (
	_ driven.Summariser        = (*Summariser)(nil)
	_ driven.ConceptExtractor  = (*ConceptExtractor)(nil)
	_ driven.QuestionGenerator = (*QuestionGenerator)(nil)
	_ driven.AnswerValidator   = (*AnswerValidator)(nil)
)

// conceptInputLimit bounds the chunk text sent for concept extraction.
const conceptInputLimit = 500

const summarisePrompt = `You are given the opening text of a section of a longer document.
Write a short title (at most 12 words) and a summary (at most 3 sentences).
Respond with JSON only: {"title": "...", "summary": "..."}

Text:
%s`

const conceptPrompt = `Extract the %d most important concepts, terms, or topics from this text.
Return ONLY a comma-separated list of concepts, nothing else.

Text: %s

Concepts:`

const questionPrompt = `Write one %s quiz question about "%s" that can be answered from the context below.
For multiple_choice give exactly 4 options; for true_false the options are "True" and "False";
for short_answer give no options.
Respond with JSON only:
{"question": "...", "options": ["..."], "correct_answer": "...", "explanation": "..."}

Context:
%s`

const validatePrompt = `Evaluate the following student answer.

Question: %s
Question Type: %s
Expected Answer: %s
Student Answer: %s

Reference material:
%s

Respond with JSON only: {"score": 0.0-1.0, "is_correct": true|false, "feedback": "..."}`

// Summariser produces chapter titles and summaries with an LLM.
type Summariser struct {
	llm driven.LLMService
}

// NewSummariser creates a summariser backed by llm.
func NewSummariser(llm driven.LLMService) *Summariser {
	return &Summariser{llm: llm}
}

// Summarise asks for a JSON title and summary of text.
func (s *Summariser) Summarise(ctx context.Context, text string) (domain.ChapterSummary, error) {
	reply, err := s.llm.Generate(ctx, fmt.Sprintf(summarisePrompt, text), driven.GenerateOptions{
		MaxTokens:   300,
		Temperature: 0.2,
		JSON:        true,
	})
	if err != nil {
		return domain.ChapterSummary{}, domain.NewExternalError("summariser", err)
	}

	var out struct {
		Title   string `json:"title"`
		Summary string `json:"summary"`
	}
	if err := DecodeReply(reply, &out); err != nil {
		return domain.ChapterSummary{}, domain.NewExternalError("summariser", err)
	}

	summary := domain.ChapterSummary{
		Title:   strings.TrimSpace(out.Title),
		Summary: strings.TrimSpace(out.Summary),
	}
	if summary.Title == "" || summary.Summary == "" {
		return domain.ChapterSummary{}, domain.NewExternalError("summariser",
			fmt.Errorf("%w: missing title or summary", domain.ErrMalformedResponse))
	}
	return summary, nil
}

// ConceptExtractor tags chunk text with concept names using an LLM.
type ConceptExtractor struct {
	llm driven.LLMService
}

// NewConceptExtractor creates a concept extractor backed by llm.
func NewConceptExtractor(llm driven.LLMService) *ConceptExtractor {
	return &ConceptExtractor{llm: llm}
}

// ExtractConcepts sends the first 500 characters of text and parses a comma list.
func (c *ConceptExtractor) ExtractConcepts(ctx context.Context, text string, max int) ([]string, error) {
	if max <= 0 {
		return nil, nil
	}

	prompt := fmt.Sprintf(conceptPrompt, max, truncateRunes(text, conceptInputLimit))
	reply, err := c.llm.Generate(ctx, prompt, driven.GenerateOptions{MaxTokens: 100, Temperature: 0.2})
	if err != nil {
		return nil, domain.NewExternalError("concepts", err)
	}
	return SplitList(reply, max), nil
}

// QuestionGenerator writes quiz questions from retrieved context with an LLM.
type QuestionGenerator struct {
	llm driven.LLMService
}

// NewQuestionGenerator creates a question generator backed by llm.
func NewQuestionGenerator(llm driven.LLMService) *QuestionGenerator {
	return &QuestionGenerator{llm: llm}
}

// GenerateQuestion asks for one question of req.Type about req.Topic.
func (g *QuestionGenerator) GenerateQuestion(
	ctx context.Context,
	req driven.QuestionRequest,
) (*domain.GeneratedQuestion, error) {
	qtype := req.Type
	if !qtype.IsValid() {
		qtype = domain.QuestionMultipleChoice
	}

	reply, err := g.llm.Generate(ctx, fmt.Sprintf(questionPrompt, qtype, req.Topic, req.Context),
		driven.GenerateOptions{MaxTokens: 600, Temperature: 0.7, JSON: true})
	if err != nil {
		return nil, domain.NewExternalError("questions", err)
	}

	var out questionReply
	if err := DecodeReply(reply, &out); err != nil {
		return nil, domain.NewExternalError("questions", err)
	}

	q, err := out.toDomain(qtype)
	if err != nil {
		return nil, domain.NewExternalError("questions", err)
	}
	return q, nil
}

// questionReply is the JSON shape requested from generators.
// The agent service uses the same field names.
type questionReply struct {
	Type          string   `json:"type"`
	Question      string   `json:"question"`
	Text          string   `json:"text"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
	Explanation   string   `json:"explanation"`
}

// toDomain validates the reply for the requested type.
func (r questionReply) toDomain(qtype domain.QuestionType) (*domain.GeneratedQuestion, error) {
	prompt := strings.TrimSpace(r.Question)
	if prompt == "" {
		prompt = strings.TrimSpace(r.Text)
	}
	if prompt == "" {
		return nil, fmt.Errorf("%w: question text is empty", domain.ErrMalformedResponse)
	}

	q := &domain.GeneratedQuestion{
		Type:          qtype,
		Prompt:        prompt,
		CorrectAnswer: strings.TrimSpace(r.CorrectAnswer),
		Explanation:   strings.TrimSpace(r.Explanation),
	}

	switch qtype {
	case domain.QuestionMultipleChoice:
		if len(r.Options) < 2 {
			return nil, fmt.Errorf("%w: multiple choice question needs options", domain.ErrMalformedResponse)
		}
		q.Options = r.Options
	case domain.QuestionTrueFalse:
		q.Options = []string{"True", "False"}
	}
	return q, nil
}

// ParseQuestion decodes a generator reply into a question of type qtype.
func ParseQuestion(reply string, qtype domain.QuestionType) (*domain.GeneratedQuestion, error) {
	var out questionReply
	if err := DecodeReply(reply, &out); err != nil {
		return nil, err
	}
	return out.toDomain(qtype)
}

// AnswerValidator grades answers with an LLM.
type AnswerValidator struct {
	llm driven.LLMService
}

// NewAnswerValidator creates an answer validator backed by llm.
func NewAnswerValidator(llm driven.LLMService) *AnswerValidator {
	return &AnswerValidator{llm: llm}
}

// ValidateAnswer asks for a JSON score, correctness and feedback.
func (v *AnswerValidator) ValidateAnswer(ctx context.Context, req driven.ValidationRequest) (*domain.Grade, error) {
	prompt := fmt.Sprintf(validatePrompt, req.Question, req.Type, req.CorrectAnswer, req.Answer, req.Context)
	reply, err := v.llm.Generate(ctx, prompt, driven.GenerateOptions{MaxTokens: 400, Temperature: 0.3, JSON: true})
	if err != nil {
		return nil, domain.NewExternalError("validator", err)
	}

	grade, err := ParseGrade(reply)
	if err != nil {
		return nil, domain.NewExternalError("validator", err)
	}
	return grade, nil
}

// ParseGrade decodes a validator reply. The score must lie in [0, 1].
func ParseGrade(reply string) (*domain.Grade, error) {
	var out struct {
		Score     *float64 `json:"score"`
		IsCorrect *bool    `json:"is_correct"`
		Feedback  string   `json:"feedback"`
	}
	if err := DecodeReply(reply, &out); err != nil {
		return nil, err
	}
	if out.Score == nil || *out.Score < 0 || *out.Score > 1 {
		return nil, fmt.Errorf("%w: score missing or outside [0, 1]", domain.ErrMalformedResponse)
	}

	grade := &domain.Grade{
		Score:    *out.Score,
		Feedback: strings.TrimSpace(out.Feedback),
	}
	if out.IsCorrect != nil {
		grade.Correct = *out.IsCorrect
	} else {
		grade.Correct = grade.Score >= 0.5
	}
	return grade, nil
}
