package cli

import (
	"bytes"
	"context"
	"hash/fnv"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/lectern/internal/adapters/driven/ai"
	"github.com/custodia-labs/lectern/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
	"github.com/custodia-labs/lectern/internal/core/ports/driving"
	"github.com/custodia-labs/lectern/internal/core/services"
	"github.com/custodia-labs/lectern/internal/postprocessors/chunker"
)

const testDimensions = 32

// wordEmbedder hashes words into a normalised vector, so texts sharing words are close.
type wordEmbedder struct{}

func (wordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, testDimensions)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(strings.Trim(w, ".,")))
		v[h.Sum32()%testDimensions]++
	}
	var norm float64
	for _, x := range v {
		norm += float64(x * x)
	}
	if norm > 0 {
		for i := range v {
			v[i] = float32(float64(v[i]) / math.Sqrt(norm))
		}
	}
	return v, nil
}

func (wordEmbedder) Dimensions() int              { return testDimensions }
func (wordEmbedder) ModelName() string            { return "words" }
func (wordEmbedder) Ping(_ context.Context) error { return nil }
func (wordEmbedder) Close() error                 { return nil }

// plainExtractor treats the upload bytes as the document text.
type plainExtractor struct{}

func (plainExtractor) Extract(_ context.Context, data []byte) (string, error) {
	if strings.TrimSpace(string(data)) == "" {
		return "", domain.ErrExtraction
	}
	return string(data), nil
}

// cannedGenerator returns a fixed multiple choice question.
type cannedGenerator struct{}

func (cannedGenerator) GenerateQuestion(_ context.Context, req driven.QuestionRequest) (*domain.GeneratedQuestion, error) {
	return &domain.GeneratedQuestion{
		Type:          req.Type,
		Prompt:        "Which animal sleeps in the sun?",
		Options:       []string{"Cats", "Fish"},
		CorrectAnswer: "Cats",
		Explanation:   "The text says cats sleep in the sun.",
	}, nil
}

// exactValidator marks answers equal to the expected answer as correct.
type exactValidator struct{}

func (exactValidator) ValidateAnswer(_ context.Context, req driven.ValidationRequest) (*domain.Grade, error) {
	if strings.EqualFold(req.Answer, req.CorrectAnswer) {
		return &domain.Grade{Score: 1, Correct: true, Feedback: "Well done."}, nil
	}
	return &domain.Grade{Score: 0, Feedback: "The answer is " + req.CorrectAnswer + "."}, nil
}

// sampleText is a short document about cats and dogs.
const sampleText = `Cats sleep often in the sun while the house is quiet.
Dogs bark loudly at the mail carrier every morning.
Cats groom themselves carefully after every meal.
Dogs fetch sticks thrown across the park.`

// testEnv exposes the in-memory stores behind the injected services.
type testEnv struct {
	docs  *memory.DocumentStore
	graph *memory.ChunkGraph
}

// env is the environment of the most recent setupTestServices call.
var env *testEnv

// setupTestServices injects services backed by memory stores and returns a cleanup
// that restores the previous services and resets command flags.
func setupTestServices() func() {
	prev := Services{
		Upload:    uploadService,
		Document:  documentService,
		Retrieval: retrievalService,
		Question:  questionService,
		Settings:  settingsService,
		Sweep:     sweepService,
	}
	prevReady := servicesReady
	prevOwner := ownerID

	docs := memory.NewDocumentStore()
	graph := memory.NewChunkGraph()
	embedder := wordEmbedder{}

	splitter, err := chunker.New(chunker.WithChunkSize(60), chunker.WithOverlap(0))
	if err != nil {
		panic(err)
	}
	segmenter, err := services.NewChapterSegmenter(nil, services.ChapterOptions{WindowSize: 2})
	if err != nil {
		panic(err)
	}
	indexer := services.NewIndexer(graph, embedder, nil, services.IndexerOptions{MaxConcepts: -1})
	retriever := services.NewRetriever(docs, graph, embedder)

	SetServices(&Services{
		Upload:    services.NewUploadService(docs, graph, plainExtractor{}, splitter, segmenter, indexer),
		Document:  services.NewDocumentService(docs, graph),
		Retrieval: retriever,
		Question:  services.NewQuestionService(docs, docs, graph, retriever, cannedGenerator{}, exactValidator{}),
		Settings:  services.NewSettingsService(memory.NewConfigStore(), ai.NewConfigValidator()),
		Sweep:     services.NewSweeper(docs, services.DefaultStaleAfter),
	})
	ownerID = "tester"
	env = &testEnv{docs: docs, graph: graph}

	return func() {
		SetServices(&prev)
		servicesReady = prevReady
		ownerID = prevOwner
		env = nil
		resetFlags()
	}
}

// resetFlags restores command flags that tests may have set.
func resetFlags() {
	queryTopK = 0
	queryJSON = false
	listAll = false
	indexOnly = false
	recordOnly = false
	questionTopic = ""
	showAnswer = false
	watchSettle = defaultSettle
	// Mutually exclusive flags are checked against Changed, which survives between runs.
	for _, name := range []string{"index-only", "record-only"} {
		documentDeleteCmd.Flags().Lookup(name).Changed = false
	}
}

// seedDocument uploads sampleText through the injected upload service.
func seedDocument(t *testing.T, name string) *driving.UploadResult {
	t.Helper()
	result, err := uploadService.Upload(context.Background(), driving.UploadRequest{
		OwnerID: ownerID,
		Name:    name,
		Data:    []byte(sampleText),
	})
	require.NoError(t, err)
	require.Equal(t, domain.StatusReady, result.Document.Status)
	return result
}

// execute runs the root command with args and returns its combined output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()
	return buf.String(), err
}

// captureOutput returns what fn prints through rootCmd.
func captureOutput(fn func()) string {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	fn()
	return buf.String()
}
