// Package chunker provides a boundary-aware, fixed-size text chunker.
package chunker

import (
	"fmt"
	"strings"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
)

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = 1000

// DefaultChunkOverlap is the default number of overlapping characters.
const DefaultChunkOverlap = 200

// Ensure Chunker implements the interface.
var _ driven.TextSplitter = (*Chunker)(nil)

// Chunker splits text into overlapping chunks of at most chunkSize characters,
// preferring to end a chunk just after a sentence terminator or newline.
// Sizes are counted in runes, not bytes.
type Chunker struct {
	chunkSize int
	overlap   int
}

// Option configures the chunker.
type Option func(*Chunker)

// WithChunkSize sets the chunk size in characters.
func WithChunkSize(size int) Option {
	return func(c *Chunker) {
		c.chunkSize = size
	}
}

// WithOverlap sets the overlap between chunks in characters.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		c.overlap = overlap
	}
}

// New creates a chunker with the given options.
// An overlap that is not smaller than the chunk size would stop the cursor
// from advancing, so it is rejected here with domain.ErrConfiguration.
func New(opts ...Option) (*Chunker, error) {
	c := &Chunker{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}

	for _, opt := range opts {
		opt(c)
	}

	switch {
	case c.chunkSize <= 0:
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", domain.ErrConfiguration, c.chunkSize)
	case c.overlap < 0:
		return nil, fmt.Errorf("%w: overlap must not be negative, got %d", domain.ErrConfiguration, c.overlap)
	case c.overlap >= c.chunkSize:
		return nil, fmt.Errorf("%w: overlap %d must be smaller than chunk size %d",
			domain.ErrConfiguration, c.overlap, c.chunkSize)
	}

	return c, nil
}

// ChunkSize returns the configured chunk size.
func (c *Chunker) ChunkSize() int {
	return c.chunkSize
}

// Overlap returns the configured overlap.
func (c *Chunker) Overlap() int {
	return c.overlap
}

// Split returns the trimmed, non-empty chunks of text in order.
// The output depends only on text and the configuration.
func (c *Chunker) Split(text string) []string {
	runes := []rune(text)
	windows := c.spans(runes)

	chunks := make([]string, 0, len(windows))
	for _, w := range windows {
		chunk := strings.TrimSpace(string(runes[w.start:w.end]))
		if chunk == "" {
			continue
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}

// span is a half-open rune range of the source text.
type span struct {
	start, end int
}

// spans computes the untrimmed chunk ranges.
func (c *Chunker) spans(runes []rune) []span {
	n := len(runes)
	if n == 0 {
		return nil
	}

	out := make([]span, 0, n/(c.chunkSize-c.overlap)+1)
	start := 0
	for start < n {
		end := start + c.chunkSize
		if end < n {
			// Cut after the last terminator when it lies past the midpoint.
			if br := lastBreak(runes[start:end]); 2*br > c.chunkSize {
				end = start + br + 1
			}
		} else {
			end = n
		}

		out = append(out, span{start: start, end: end})
		if end == n {
			break
		}

		next := end - c.overlap
		if next <= start {
			// A short boundary cut with a large overlap would stall the cursor.
			next = end
		}
		start = next
	}
	return out
}

// lastBreak returns the offset of the last '.' or '\n' in window, or -1.
func lastBreak(window []rune) int {
	for i := len(window) - 1; i >= 0; i-- {
		if window[i] == '.' || window[i] == '\n' {
			return i
		}
	}
	return -1
}
