package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
	"github.com/custodia-labs/lectern/internal/logger"
)

// Fallback chapter text used when no summary could be produced.
const (
	fallbackTitle   = "Section"
	fallbackSummary = "Section content"
)

// ChapterOptions configures chapter segmentation.
type ChapterOptions struct {
	// WindowSize is the number of chunks per chapter. The last chapter may be shorter.
	WindowSize int

	// ContextChunks is how many leading chunks of a window are sent to the summariser.
	ContextChunks int

	// ContextChars caps the summariser input in characters.
	ContextChars int

	// Timeout bounds each summariser call.
	Timeout time.Duration

	// TitleLimit and SummaryLimit cap the stored text in characters.
	TitleLimit   int
	SummaryLimit int

	// FallbackPrefix is how much of the first chunk becomes the fallback summary.
	FallbackPrefix int
}

// DefaultChapterOptions returns the default segmentation options.
func DefaultChapterOptions() ChapterOptions {
	return ChapterOptions{
		WindowSize:     30,
		ContextChunks:  5,
		ContextChars:   3000,
		Timeout:        30 * time.Second,
		TitleLimit:     200,
		SummaryLimit:   500,
		FallbackPrefix: 200,
	}
}

// ChapterSegmenter groups consecutive chunks into fixed-size chapters and
// titles each one through an optional summariser.
type ChapterSegmenter struct {
	summariser driven.Summariser
	opts       ChapterOptions
}

// NewChapterSegmenter creates a segmenter. summariser may be nil, in which
// case every chapter uses the local fallback. Zero-valued options take defaults.
func NewChapterSegmenter(summariser driven.Summariser, opts ChapterOptions) (*ChapterSegmenter, error) {
	defaults := DefaultChapterOptions()
	if opts.WindowSize == 0 {
		opts.WindowSize = defaults.WindowSize
	}
	if opts.ContextChunks == 0 {
		opts.ContextChunks = defaults.ContextChunks
	}
	if opts.ContextChars == 0 {
		opts.ContextChars = defaults.ContextChars
	}
	if opts.Timeout == 0 {
		opts.Timeout = defaults.Timeout
	}
	if opts.TitleLimit == 0 {
		opts.TitleLimit = defaults.TitleLimit
	}
	if opts.SummaryLimit == 0 {
		opts.SummaryLimit = defaults.SummaryLimit
	}
	if opts.FallbackPrefix == 0 {
		opts.FallbackPrefix = defaults.FallbackPrefix
	}

	if opts.WindowSize < 0 || opts.ContextChunks < 0 || opts.ContextChars < 0 || opts.Timeout < 0 ||
		opts.TitleLimit < 0 || opts.SummaryLimit < 0 || opts.FallbackPrefix < 0 {
		return nil, fmt.Errorf("%w: chapter options must not be negative: %+v", domain.ErrConfiguration, opts)
	}

	return &ChapterSegmenter{summariser: summariser, opts: opts}, nil
}

// Options returns the effective options.
func (s *ChapterSegmenter) Options() ChapterOptions {
	return s.opts
}

// Segment computes the chapters for chunks and stores them through tx in one batch.
// The chapters are numbered from 1 and partition [0, len(chunks)) in order.
// Summariser failures never fail segmentation; only the store write can.
func (s *ChapterSegmenter) Segment(
	ctx context.Context,
	tx driven.DocumentTx,
	documentID string,
	chunks []string,
) ([]domain.Chapter, error) {
	if documentID == "" {
		return nil, fmt.Errorf("%w: document id is required", domain.ErrInvalidInput)
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	now := time.Now()
	chapters := make([]domain.Chapter, 0, (len(chunks)+s.opts.WindowSize-1)/s.opts.WindowSize)

	for start := 0; start < len(chunks); start += s.opts.WindowSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := min(start+s.opts.WindowSize, len(chunks))
		number := len(chapters) + 1
		summary := s.summarise(ctx, number, chunks[start:end])

		chapters = append(chapters, domain.Chapter{
			ID:         uuid.New().String(),
			DocumentID: documentID,
			Number:     number,
			Title:      truncateRunes(summary.Title, s.opts.TitleLimit),
			Summary:    truncateRunes(summary.Summary, s.opts.SummaryLimit),
			StartChunk: start,
			EndChunk:   end,
			CreatedAt:  now,
		})
	}

	if err := tx.SaveChapters(ctx, chapters); err != nil {
		return nil, fmt.Errorf("save chapters: %w", err)
	}

	logger.Debug("Segmented %d chunks into %d chapters", len(chunks), len(chapters))
	return chapters, nil
}

// summarise asks the summariser for one window and falls back locally on any failure.
func (s *ChapterSegmenter) summarise(ctx context.Context, number int, window []string) domain.ChapterSummary {
	if s.summariser == nil {
		return s.fallback(window)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	summary, err := s.summariser.Summarise(callCtx, s.windowContext(window))
	if err != nil {
		logger.Warn("Chapter %d: summariser failed (%s), using fallback: %v",
			number, domain.ClassifyExternal(err), err)
		return s.fallback(window)
	}

	summary.Title = strings.TrimSpace(summary.Title)
	summary.Summary = strings.TrimSpace(summary.Summary)
	if summary.Title == "" {
		summary.Title = fallbackTitle
	}
	if summary.Summary == "" {
		summary.Summary = s.fallback(window).Summary
	}
	return summary
}

// windowContext joins the leading chunks of a window, bounded in length.
func (s *ChapterSegmenter) windowContext(window []string) string {
	n := min(s.opts.ContextChunks, len(window))
	return truncateRunes(strings.Join(window[:n], "\n\n"), s.opts.ContextChars)
}

// fallback derives a title and summary from local data only.
func (s *ChapterSegmenter) fallback(window []string) domain.ChapterSummary {
	first := ""
	if len(window) > 0 {
		first = strings.TrimSpace(window[0])
	}
	if first == "" {
		return domain.ChapterSummary{Title: fallbackTitle, Summary: fallbackSummary}
	}
	return domain.ChapterSummary{
		Title:   fallbackTitle,
		Summary: truncateRunes(first, s.opts.FallbackPrefix) + "...",
	}
}

// truncateRunes returns at most n runes of s. n <= 0 leaves s unchanged.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
