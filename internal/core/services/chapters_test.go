package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/lectern/internal/core/domain"
)

func newSegmenter(t *testing.T, summariser *stubSummariser, opts ChapterOptions) *ChapterSegmenter {
	t.Helper()
	var seg *ChapterSegmenter
	var err error
	if summariser == nil {
		seg, err = NewChapterSegmenter(nil, opts)
	} else {
		seg, err = NewChapterSegmenter(summariser, opts)
	}
	require.NoError(t, err)
	return seg
}

func TestNewChapterSegmenter_Defaults(t *testing.T) {
	seg := newSegmenter(t, nil, ChapterOptions{})

	assert.Equal(t, DefaultChapterOptions(), seg.Options())
}

func TestNewChapterSegmenter_RejectsNegative(t *testing.T) {
	_, err := NewChapterSegmenter(nil, ChapterOptions{WindowSize: -1})

	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestSegment_65ChunksMakesThreeChapters(t *testing.T) {
	summariser := &stubSummariser{}
	seg := newSegmenter(t, summariser, ChapterOptions{})
	tx := &recordingTx{}

	chapters, err := seg.Segment(context.Background(), tx, "doc-1", numberedChunks(65))
	require.NoError(t, err)

	require.Len(t, chapters, 3)
	bounds := [][2]int{{0, 30}, {30, 60}, {60, 65}}
	for i, ch := range chapters {
		assert.Equal(t, i+1, ch.Number)
		assert.Equal(t, bounds[i][0], ch.StartChunk)
		assert.Equal(t, bounds[i][1], ch.EndChunk)
		assert.Equal(t, "doc-1", ch.DocumentID)
		assert.NotEmpty(t, ch.ID)
	}
	assert.Equal(t, "Chapter 1", chapters[0].Title)
	assert.Equal(t, 1, tx.saves, "chapters are saved in one batch")
	assert.Equal(t, chapters, tx.chapters)
}

func TestSegment_PartitionsAnyLength(t *testing.T) {
	seg := newSegmenter(t, nil, ChapterOptions{WindowSize: 7})

	for n := 1; n <= 50; n++ {
		chapters, err := seg.Segment(context.Background(), &recordingTx{}, "doc", numberedChunks(n))
		require.NoError(t, err)

		require.Equal(t, (n+6)/7, len(chapters), "n=%d", n)
		assert.Equal(t, 0, chapters[0].StartChunk)
		assert.Equal(t, n, chapters[len(chapters)-1].EndChunk)
		for i := 1; i < len(chapters); i++ {
			assert.Equal(t, chapters[i-1].EndChunk, chapters[i].StartChunk)
			assert.Equal(t, chapters[i-1].Number+1, chapters[i].Number)
		}
	}
}

func TestSegment_EmptyChunks(t *testing.T) {
	seg := newSegmenter(t, &stubSummariser{}, ChapterOptions{})
	tx := &recordingTx{}

	chapters, err := seg.Segment(context.Background(), tx, "doc-1", nil)

	require.NoError(t, err)
	assert.Empty(t, chapters)
	assert.Zero(t, tx.saves)
}

func TestSegment_RequiresDocumentID(t *testing.T) {
	seg := newSegmenter(t, nil, ChapterOptions{})

	_, err := seg.Segment(context.Background(), &recordingTx{}, "", numberedChunks(3))

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSegment_FallbackOnSummariserFailure(t *testing.T) {
	failures := []error{
		domain.NewExternalError("summariser", context.DeadlineExceeded),
		domain.NewExternalError("summariser", domain.ErrMalformedResponse),
		domain.NewExternalError("summariser", domain.ErrRateLimited),
		errors.New("connection refused"),
	}

	for _, failure := range failures {
		t.Run(string(domain.ClassifyExternal(failure)), func(t *testing.T) {
			seg := newSegmenter(t, &stubSummariser{err: failure}, ChapterOptions{})
			first := strings.Repeat("x", 250)

			chapters, err := seg.Segment(context.Background(), &recordingTx{}, "doc-1", []string{first, "second"})
			require.NoError(t, err)

			require.Len(t, chapters, 1)
			assert.Equal(t, "Section", chapters[0].Title)
			assert.Equal(t, strings.Repeat("x", 200)+"...", chapters[0].Summary)
		})
	}
}

func TestSegment_FallbackWithoutSummariser(t *testing.T) {
	seg := newSegmenter(t, nil, ChapterOptions{})

	chapters, err := seg.Segment(context.Background(), &recordingTx{}, "doc-1", []string{"Short text"})
	require.NoError(t, err)

	assert.Equal(t, "Section", chapters[0].Title)
	assert.Equal(t, "Short text...", chapters[0].Summary)
}

func TestSegment_FallbackEmptyFirstChunk(t *testing.T) {
	seg := newSegmenter(t, nil, ChapterOptions{})

	chapters, err := seg.Segment(context.Background(), &recordingTx{}, "doc-1", []string{"  ", "more"})
	require.NoError(t, err)

	assert.Equal(t, "Section content", chapters[0].Summary)
}

func TestSegment_CapsSummariserOutput(t *testing.T) {
	summariser := &stubSummariser{result: &domain.ChapterSummary{
		Title:   strings.Repeat("t", 300),
		Summary: strings.Repeat("é", 800),
	}}
	seg := newSegmenter(t, summariser, ChapterOptions{})

	chapters, err := seg.Segment(context.Background(), &recordingTx{}, "doc-1", numberedChunks(2))
	require.NoError(t, err)

	assert.Equal(t, 200, utf8.RuneCountInString(chapters[0].Title))
	assert.Equal(t, 500, utf8.RuneCountInString(chapters[0].Summary))
}

func TestSegment_BlankSummaryFallsBackPerField(t *testing.T) {
	summariser := &stubSummariser{result: &domain.ChapterSummary{Title: " ", Summary: ""}}
	seg := newSegmenter(t, summariser, ChapterOptions{})

	chapters, err := seg.Segment(context.Background(), &recordingTx{}, "doc-1", []string{"Opening words"})
	require.NoError(t, err)

	assert.Equal(t, "Section", chapters[0].Title)
	assert.Equal(t, "Opening words...", chapters[0].Summary)
}

func TestSegment_SummariserContextIsBounded(t *testing.T) {
	summariser := &stubSummariser{}
	seg := newSegmenter(t, summariser, ChapterOptions{ContextChunks: 2, ContextChars: 15})

	_, err := seg.Segment(context.Background(), &recordingTx{}, "doc-1", []string{"aaaaaaaaaa", "bbbbbbbbbb", "cccc"})
	require.NoError(t, err)

	require.Len(t, summariser.inputs, 1)
	assert.Equal(t, "aaaaaaaaaa\n\nbbb", summariser.inputs[0])
}

func TestSegment_SaveFailure(t *testing.T) {
	seg := newSegmenter(t, nil, ChapterOptions{})
	tx := &recordingTx{saveErr: errors.New("disk full")}

	_, err := seg.Segment(context.Background(), tx, "doc-1", numberedChunks(3))

	assert.ErrorContains(t, err, "disk full")
}

func TestSegment_SummariserTimeout(t *testing.T) {
	seg := newSegmenter(t, nil, ChapterOptions{Timeout: time.Millisecond})
	seg.summariser = blockingSummariser{}

	chapters, err := seg.Segment(context.Background(), &recordingTx{}, "doc-1", []string{"Waiting"})
	require.NoError(t, err)

	assert.Equal(t, "Section", chapters[0].Title)
}

// blockingSummariser waits for its context to end.
type blockingSummariser struct{}

func (blockingSummariser) Summarise(ctx context.Context, _ string) (domain.ChapterSummary, error) {
	<-ctx.Done()
	return domain.ChapterSummary{}, domain.NewExternalError("summariser", ctx.Err())
}
