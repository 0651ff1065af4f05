package services

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
)

const testDimensions = 16

// fakeEmbedder hashes words into a small normalised vector, so texts that
// share words are close.
type fakeEmbedder struct {
	fail  func(text string) bool
	calls atomic.Int32
}

func (e *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	if e.fail != nil && e.fail(text) {
		return nil, domain.NewExternalError("embedding", errors.New("embedder down"))
	}
	return wordVector(text), nil
}

func (e *fakeEmbedder) Dimensions() int              { return testDimensions }
func (e *fakeEmbedder) ModelName() string            { return "fake" }
func (e *fakeEmbedder) Ping(_ context.Context) error { return nil }
func (e *fakeEmbedder) Close() error                 { return nil }

func wordVector(text string) []float32 {
	v := make([]float32, testDimensions)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%testDimensions]++
	}
	var norm float64
	for _, x := range v {
		norm += float64(x * x)
	}
	if norm == 0 {
		v[0] = 1
		return v
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / math.Sqrt(norm))
	}
	return v
}

// stubSummariser returns a numbered summary or a fixed error.
type stubSummariser struct {
	mu     sync.Mutex
	err    error
	result *domain.ChapterSummary
	inputs []string
}

func (s *stubSummariser) Summarise(_ context.Context, text string) (domain.ChapterSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputs = append(s.inputs, text)
	if s.err != nil {
		return domain.ChapterSummary{}, s.err
	}
	if s.result != nil {
		return *s.result, nil
	}
	return domain.ChapterSummary{
		Title:   fmt.Sprintf("Chapter %d", len(s.inputs)),
		Summary: "About " + firstWord(text),
	}, nil
}

func firstWord(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// stubConcepts tags every chunk with its first word.
type stubConcepts struct {
	err   error
	calls atomic.Int32
}

func (c *stubConcepts) ExtractConcepts(_ context.Context, text string, max int) ([]string, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	concepts := []string{firstWord(text), "shared"}
	if len(concepts) > max {
		concepts = concepts[:max]
	}
	return concepts, nil
}

// recordingTx counts SaveChapters calls.
type recordingTx struct {
	saves     int
	chapters  []domain.Chapter
	saveErr   error
	committed bool
}

func (t *recordingTx) SaveChapters(_ context.Context, chapters []domain.Chapter) error {
	t.saves++
	if t.saveErr != nil {
		return t.saveErr
	}
	t.chapters = append(t.chapters, chapters...)
	return nil
}

func (t *recordingTx) Commit() error {
	t.committed = true
	return nil
}

func (t *recordingTx) Rollback() error { return nil }

// textExtractor treats the upload bytes as the document text.
type textExtractor struct{}

func (textExtractor) Extract(_ context.Context, data []byte) (string, error) {
	if strings.TrimSpace(string(data)) == "" {
		return "", fmt.Errorf("%w: empty document", domain.ErrExtraction)
	}
	return string(data), nil
}

// lineSplitter returns one chunk per non-empty line.
type lineSplitter struct{}

func (lineSplitter) Split(text string) []string {
	var chunks []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			chunks = append(chunks, line)
		}
	}
	return chunks
}

// numberedChunks returns n distinct chunk texts.
func numberedChunks(n int) []string {
	chunks := make([]string, n)
	for i := range chunks {
		chunks[i] = fmt.Sprintf("chunk%d talks about topic%d in detail.", i, i%7)
	}
	return chunks
}

// leakyGraph injects a hit from another document into every search.
type leakyGraph struct {
	driven.ChunkGraph
	foreign string
}

func (g *leakyGraph) SearchDocument(
	ctx context.Context, documentID string, vector []float32, k int,
) ([]domain.ChunkHit, error) {
	hits, err := g.ChunkGraph.SearchDocument(ctx, documentID, vector, k)
	if err != nil {
		return nil, err
	}
	return append(hits, domain.ChunkHit{DocumentID: g.foreign, Text: "leaked", Score: 1}), nil
}

// flakyGraph fails DeleteDocument a fixed number of times.
type flakyGraph struct {
	driven.ChunkGraph
	failures atomic.Int32
	deletes  atomic.Int32
}

func (g *flakyGraph) DeleteDocument(ctx context.Context, documentID string) error {
	g.deletes.Add(1)
	if g.failures.Add(-1) >= 0 {
		return errors.New("graph unavailable")
	}
	return g.ChunkGraph.DeleteDocument(ctx, documentID)
}

// stubGenerator returns a canned question for the requested type.
type stubGenerator struct {
	err      error
	requests []driven.QuestionRequest
}

func (g *stubGenerator) GenerateQuestion(
	_ context.Context, req driven.QuestionRequest,
) (*domain.GeneratedQuestion, error) {
	g.requests = append(g.requests, req)
	if g.err != nil {
		return nil, g.err
	}
	q := &domain.GeneratedQuestion{
		Type:          req.Type,
		Prompt:        "What is " + req.Topic + "?",
		CorrectAnswer: "A",
		Explanation:   "Because.",
	}
	if req.Type == domain.QuestionMultipleChoice {
		q.Options = []string{"A", "B", "C", "D"}
	}
	return q, nil
}

// stubValidator returns a fixed grade or error.
type stubValidator struct {
	err      error
	grade    domain.Grade
	requests []driven.ValidationRequest
}

func (v *stubValidator) ValidateAnswer(_ context.Context, req driven.ValidationRequest) (*domain.Grade, error) {
	v.requests = append(v.requests, req)
	if v.err != nil {
		return nil, v.err
	}
	g := v.grade
	return &g, nil
}
