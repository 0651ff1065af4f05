package domain

import "time"

// Chapter is a symbolic grouping of consecutive chunks.
// Chapters are derived from fixed-size chunk windows, not from the PDF's table of contents.
type Chapter struct {
	// ID is the unique identifier for the chapter.
	ID string

	// DocumentID links to the owning Document.
	DocumentID string

	// Number is the 1-based position of the chapter within the document.
	Number int

	// Title is a short human-readable heading.
	Title string

	// Summary describes the chapter content.
	Summary string

	// StartChunk is the first chunk index in the chapter (inclusive).
	StartChunk int

	// EndChunk is one past the last chunk index in the chapter (exclusive).
	EndChunk int

	// CreatedAt is when the chapter was created.
	CreatedAt time.Time
}

// Contains reports whether the chunk index falls within the chapter range.
func (c Chapter) Contains(chunkIndex int) bool {
	return chunkIndex >= c.StartChunk && chunkIndex < c.EndChunk
}

// Len returns the number of chunks in the chapter.
func (c Chapter) Len() int {
	return c.EndChunk - c.StartChunk
}

// ChapterSummary is the title and summary produced for a chunk window.
type ChapterSummary struct {
	Title   string
	Summary string
}

// ChapterFor returns the ID of the chapter containing chunkIndex, or "" if none does.
// Chapters must be sorted by StartChunk.
func ChapterFor(chapters []Chapter, chunkIndex int) string {
	lo, hi := 0, len(chapters)
	for lo < hi {
		mid := (lo + hi) / 2
		switch {
		case chunkIndex < chapters[mid].StartChunk:
			hi = mid
		case chunkIndex >= chapters[mid].EndChunk:
			lo = mid + 1
		default:
			return chapters[mid].ID
		}
	}
	return ""
}
