package cli

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/lectern/internal/core/domain"
)

func TestQuestionCmd_HasSubcommands(t *testing.T) {
	names := make([]string, 0, len(questionCmd.Commands()))
	for _, cmd := range questionCmd.Commands() {
		names = append(names, cmd.Name())
	}

	assert.ElementsMatch(t, []string{"generate", "random", "answer", "answers"}, names)
}

func TestQuestionGenerateCmd_PrintsQuestion(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	result := seedDocument(t, "animals.pdf")

	out, err := execute(t, "question", "generate", result.Document.ID, "--topic", "cats")

	require.NoError(t, err)
	assert.Contains(t, out, "Question: ")
	assert.Contains(t, out, "Document: "+result.Document.ID)
	assert.Contains(t, out, "Topic:    cats")
	assert.Contains(t, out, "Which animal sleeps in the sun?")
	assert.Contains(t, out, "A. Cats")
	assert.Contains(t, out, "B. Fish")
	assert.NotContains(t, out, "Answer: Cats", "answer is hidden without --show-answer")
}

func TestQuestionGenerateCmd_ShowAnswer(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	result := seedDocument(t, "animals.pdf")

	out, err := execute(t, "question", "generate", result.Document.ID, "--show-answer")

	require.NoError(t, err)
	assert.Contains(t, out, "Answer: Cats")
	assert.Contains(t, out, "The text says cats sleep in the sun.")
}

func TestQuestionGenerateCmd_DocumentNotReady(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	require.NoError(t, env.docs.CreateDocument(context.Background(), &domain.Document{
		ID: "doc-busy", OwnerID: "tester", Name: "busy.pdf", Status: domain.StatusProcessing,
	}))

	_, err := execute(t, "question", "generate", "doc-busy")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNoContent)
	assert.Contains(t, err.Error(), "failed to generate question")
}

func TestQuestionRandomCmd(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	_, err := execute(t, "question", "random")
	require.Error(t, err, "no ready documents yet")
	assert.ErrorIs(t, err, domain.ErrNoContent)

	result := seedDocument(t, "animals.pdf")
	out, err := execute(t, "question", "random")

	require.NoError(t, err)
	assert.Contains(t, out, "Document: "+result.Document.ID)
}

func TestQuestionAnswerCmd_GradesAndLists(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	result := seedDocument(t, "animals.pdf")
	q, err := questionService.Generate(context.Background(), "tester", result.Document.ID, "cats")
	require.NoError(t, err)

	out, err := execute(t, "question", "answer", q.ID, "cats")
	require.NoError(t, err)
	assert.Contains(t, out, "Correct")
	assert.Contains(t, out, "Score:    1.00")

	out, err = execute(t, "question", "answer", q.ID, "big", "fish")
	require.NoError(t, err)
	assert.Contains(t, out, "Incorrect")
	assert.Contains(t, out, "The answer is Cats.")

	out, err = execute(t, "question", "answers", q.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "Response: cats")
	assert.Contains(t, out, "Response: big fish")
	assert.Contains(t, out, "Total: 2 answers")
}

func TestQuestionAnswersCmd_Empty(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	result := seedDocument(t, "animals.pdf")
	q, err := questionService.Generate(context.Background(), "tester", result.Document.ID, "")
	require.NoError(t, err)

	out, err := execute(t, "question", "answers", q.ID)

	require.NoError(t, err)
	assert.Contains(t, out, "No answers recorded.")
}

func TestQuestionAnswerCmd_UnknownQuestion(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	_, err := execute(t, "question", "answer", "missing", "cats")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPrintGrade_Ungraded(t *testing.T) {
	out := captureOutput(func() {
		printGrade(rootCmd, &domain.Answer{Score: 0.5, Feedback: "recorded"})
	})

	assert.Contains(t, out, "Not graded automatically")
	assert.Contains(t, out, "Score:    0.50")
}

func TestQuestionCmds_ServiceNotConfigured(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	questionService = nil

	for _, args := range [][]string{
		{"question", "generate", "doc-1"},
		{"question", "random"},
		{"question", "answer", "q-1", "cats"},
		{"question", "answers", "q-1"},
	} {
		_, err := execute(t, args...)
		require.Error(t, err, "%v", args)
		assert.Contains(t, err.Error(), "question service not configured")
	}
}
