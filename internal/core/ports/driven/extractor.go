package driven

import "context"

// TextExtractor pulls plain text out of a binary document.
type TextExtractor interface {
	// Extract returns every page's text, in page order, separated by newlines.
	// Empty or unreadable input fails with domain.ErrExtraction.
	Extract(ctx context.Context, data []byte) (string, error)
}

// TextSplitter splits text into ordered, overlapping, non-empty chunks.
// Implementations must be deterministic.
type TextSplitter interface {
	Split(text string) []string
}
