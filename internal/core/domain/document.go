package domain

import "time"

// DocumentStatus is the lifecycle state of an uploaded document.
type DocumentStatus string

// Document lifecycle states.
const (
	// StatusPending exists before the upload has started processing.
	StatusPending DocumentStatus = "pending"

	// StatusProcessing means extraction, segmentation or indexing is running.
	StatusProcessing DocumentStatus = "processing"

	// StatusReady means the document is fully indexed and retrievable.
	StatusReady DocumentStatus = "ready"

	// StatusError means the upload failed or was swept after stalling.
	StatusError DocumentStatus = "error"
)

// IsValid returns true if the status is recognised.
func (s DocumentStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusReady, StatusError:
		return true
	default:
		return false
	}
}

// IsTerminal returns true for statuses that end an upload attempt.
func (s DocumentStatus) IsTerminal() bool {
	return s == StatusReady || s == StatusError
}

// CanTransitionTo reports whether moving from s to next is allowed.
// Terminal statuses have no outgoing edges.
func (s DocumentStatus) CanTransitionTo(next DocumentStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusReady || next == StatusError
	default:
		return false
	}
}

// String returns the string representation.
func (s DocumentStatus) String() string {
	return string(s)
}

// Document is an uploaded PDF as recorded by the relational store.
// The graph store refers to it only by ID.
type Document struct {
	// ID is the unique identifier for the document.
	ID string

	// OwnerID is the opaque identifier of the uploading user.
	OwnerID string

	// Name is the display name, usually the original file name.
	Name string

	// Locator is where the original bytes live (path or URI). Opaque to lectern.
	Locator string

	// Status is the lifecycle state.
	Status DocumentStatus

	// CreatedAt is when the upload started.
	CreatedAt time.Time

	// UpdatedAt is when the status last changed.
	UpdatedAt time.Time
}

// Chunk is a bounded, overlapping slice of a document's text.
// Chunks live only in the graph store and are never mutated after creation.
type Chunk struct {
	// ID is the unique identifier for the chunk.
	ID string

	// DocumentID links to the owning Document.
	DocumentID string

	// ChapterID links to the chapter whose range contains Index. May be empty.
	ChapterID string

	// Index is the zero-based ordinal position within the document.
	Index int

	// Text is the trimmed, non-empty chunk content.
	Text string

	// Embedding is the vector representation used for similarity search.
	Embedding []float32

	// CreatedAt is when the chunk was indexed.
	CreatedAt time.Time
}

// DocumentNode is the graph-side projection of a Document.
type DocumentNode struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Concept is a name-keyed tag that chunks may mention.
type Concept struct {
	Name string
}

// ConceptCount reports how many chunks of a document mention a concept.
type ConceptCount struct {
	Name   string
	Chunks int
}

// ChunkHit is a single similarity-search result.
type ChunkHit struct {
	// DocumentID is the owning document, carried so callers can verify isolation.
	DocumentID string

	// ChunkIndex is the ordinal position of the chunk within its document.
	ChunkIndex int

	// ChapterID is the chapter the chunk belongs to, if any.
	ChapterID string

	// Text is the chunk content.
	Text string

	// Score is the cosine similarity to the query (higher is better).
	Score float64
}
