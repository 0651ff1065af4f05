package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/lectern/internal/core/domain"
)

var questionCmd = &cobra.Command{
	Use:   "question",
	Short: "Generate quiz questions and grade answers",
}

var questionGenerateCmd = &cobra.Command{
	Use:   "generate [doc-id]",
	Short: "Generate a question from one document",
	Long: `Generates a question from the chunks of a document most relevant to a topic.
Without --topic the document's most mentioned concept is used.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuestionGenerate,
}

var questionRandomCmd = &cobra.Command{
	Use:   "random",
	Short: "Generate a question from random chunks of your documents",
	Args:  cobra.NoArgs,
	RunE:  runQuestionRandom,
}

var questionAnswerCmd = &cobra.Command{
	Use:   "answer [question-id] [response...]",
	Short: "Submit an answer for grading",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runQuestionAnswer,
}

var questionAnswersCmd = &cobra.Command{
	Use:   "answers [question-id]",
	Short: "List the answers recorded for a question",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuestionAnswers,
}

var (
	questionTopic string
	showAnswer    bool
)

func init() {
	questionGenerateCmd.Flags().StringVarP(&questionTopic, "topic", "t", "", "topic to ask about")
	questionCmd.PersistentFlags().BoolVar(&showAnswer, "show-answer", false, "print the expected answer")

	questionCmd.AddCommand(questionGenerateCmd)
	questionCmd.AddCommand(questionRandomCmd)
	questionCmd.AddCommand(questionAnswerCmd)
	questionCmd.AddCommand(questionAnswersCmd)
	rootCmd.AddCommand(questionCmd)
}

func runQuestionGenerate(cmd *cobra.Command, args []string) error {
	if questionService == nil {
		return errors.New("question service not configured")
	}

	q, err := questionService.Generate(cmd.Context(), ownerID, args[0], questionTopic)
	if err != nil {
		return fmt.Errorf("failed to generate question: %w", err)
	}

	printQuestion(cmd, q)
	return nil
}

func runQuestionRandom(cmd *cobra.Command, _ []string) error {
	if questionService == nil {
		return errors.New("question service not configured")
	}

	q, err := questionService.GenerateRandom(cmd.Context(), ownerID)
	if err != nil {
		return fmt.Errorf("failed to generate question: %w", err)
	}

	printQuestion(cmd, q)
	return nil
}

func runQuestionAnswer(cmd *cobra.Command, args []string) error {
	if questionService == nil {
		return errors.New("question service not configured")
	}

	response := strings.Join(args[1:], " ")
	answer, err := questionService.SubmitAnswer(cmd.Context(), ownerID, args[0], response)
	if err != nil {
		return fmt.Errorf("failed to submit answer: %w", err)
	}

	printAnswer(cmd, answer)
	return nil
}

func runQuestionAnswers(cmd *cobra.Command, args []string) error {
	if questionService == nil {
		return errors.New("question service not configured")
	}

	answers, err := questionService.Answers(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to list answers: %w", err)
	}

	if len(answers) == 0 {
		cmd.Println("No answers recorded.")
		return nil
	}

	for i := range answers {
		cmd.Printf("%s  %s\n", answers[i].CreatedAt.Format(timeLayout), answers[i].UserID)
		cmd.Printf("  Response: %s\n", answers[i].Response)
		printGrade(cmd, &answers[i])
		cmd.Println()
	}
	cmd.Printf("Total: %d answers\n", len(answers))
	return nil
}

func printQuestion(cmd *cobra.Command, q *domain.Question) {
	cmd.Printf("Question: %s\n", q.ID)
	cmd.Printf("  Type:     %s\n", q.Type)
	cmd.Printf("  Document: %s\n", q.DocumentID)
	if q.Topic != "" {
		cmd.Printf("  Topic:    %s\n", q.Topic)
	}
	cmd.Println()
	cmd.Printf("  %s\n", q.Prompt)
	for i, opt := range q.Options {
		cmd.Printf("    %c. %s\n", 'A'+i, opt)
	}

	if showAnswer {
		cmd.Println()
		cmd.Printf("  Answer: %s\n", q.CorrectAnswer)
		if q.Explanation != "" {
			cmd.Printf("  %s\n", q.Explanation)
		}
	}
}

func printAnswer(cmd *cobra.Command, a *domain.Answer) {
	cmd.Printf("Answer: %s\n", a.ID)
	printGrade(cmd, a)
}

func printGrade(cmd *cobra.Command, a *domain.Answer) {
	if !a.Graded {
		cmd.Println("  Not graded automatically")
	} else if a.Correct {
		cmd.Println("  Correct")
	} else {
		cmd.Println("  Incorrect")
	}
	cmd.Printf("  Score:    %.2f\n", a.Score)
	if a.Feedback != "" {
		cmd.Printf("  Feedback: %s\n", a.Feedback)
	}
}
