package domain

import "time"

// QuestionType is the answer format a question expects.
type QuestionType string

// Supported question types.
const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionTrueFalse      QuestionType = "true_false"
	QuestionShortAnswer    QuestionType = "short_answer"
)

// IsValid returns true if the question type is recognised.
func (t QuestionType) IsValid() bool {
	switch t {
	case QuestionMultipleChoice, QuestionTrueFalse, QuestionShortAnswer:
		return true
	default:
		return false
	}
}

// GeneratedQuestion is what a question generator returns.
type GeneratedQuestion struct {
	Type          QuestionType
	Prompt        string
	Options       []string
	CorrectAnswer string
	Explanation   string
}

// Question is a persisted quiz question generated from retrieved chunks.
type Question struct {
	ID         string
	OwnerID    string
	DocumentID string
	ChapterID  string
	Topic      string

	GeneratedQuestion

	// Context is the bounded retrieved text the question was generated from.
	// It is reused when grading answers.
	Context string

	CreatedAt time.Time
}

// Grade is what an answer validator returns.
type Grade struct {
	// Score is in [0, 1].
	Score    float64
	Correct  bool
	Feedback string
}

// Answer is a user's response to a question together with its grade.
type Answer struct {
	ID         string
	QuestionID string
	UserID     string
	Response   string
	Score      float64
	Correct    bool
	Feedback   string

	// Graded is false when the validator failed and the fallback grade was recorded.
	Graded bool

	CreatedAt time.Time
}
