package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrExtraction indicates the PDF bytes were empty, unreadable or held no text.
	ErrExtraction = errors.New("extraction failed")

	// ErrConfiguration indicates invalid pipeline parameters, such as overlap >= chunk size.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrInvalidTransition indicates a document status change that the lifecycle forbids,
	// or that lost a race with another writer.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrIsolationViolation indicates a retrieval result belonging to another document.
	// This is a correctness bug in the graph backend and must never be silenced.
	ErrIsolationViolation = errors.New("document isolation violated")

	// ErrIndexingFailed indicates that no chunk of a document could be indexed.
	ErrIndexingFailed = errors.New("indexing failed")

	// ErrNoContent indicates retrieval returned nothing to generate a question from.
	ErrNoContent = errors.New("no indexed content")

	// ErrGraphNotEmpty indicates a relational delete was attempted while
	// the graph still holds chunks for the document.
	ErrGraphNotEmpty = errors.New("graph still holds document chunks")

	// ErrLLMUnavailable indicates the LLM service is not configured.
	ErrLLMUnavailable = errors.New("LLM service unavailable")

	// ErrEmbeddingUnavailable indicates the embedding service is not configured.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrRateLimited indicates the API rate limit was exceeded.
	ErrRateLimited = errors.New("rate limited")

	// ErrMalformedResponse indicates an external service replied with something unparseable.
	ErrMalformedResponse = errors.New("malformed response")
)

// ExternalKind classifies a failed call to an external capability.
type ExternalKind string

// External failure kinds. All of them degrade to the same fallback;
// the kind only makes the cause visible in logs.
const (
	ExternalTimeout     ExternalKind = "timeout"
	ExternalMalformed   ExternalKind = "malformed"
	ExternalQuota       ExternalKind = "quota"
	ExternalUnavailable ExternalKind = "unavailable"
)

// ExternalError is the failure result of a call to an external capability
// (summariser, concept extractor, question generator, answer validator).
type ExternalError struct {
	// Service names the capability, e.g. "summariser".
	Service string

	// Kind classifies the failure.
	Kind ExternalKind

	// Err is the underlying error.
	Err error
}

// Error implements error.
func (e *ExternalError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Service, e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *ExternalError) Unwrap() error {
	return e.Err
}

// NewExternalError wraps err as an ExternalError for service, classifying it.
// An error that is already an ExternalError keeps its kind.
func NewExternalError(service string, err error) *ExternalError {
	return &ExternalError{Service: service, Kind: ClassifyExternal(err), Err: err}
}

// ClassifyExternal derives the failure kind of an external call error.
func ClassifyExternal(err error) ExternalKind {
	var ext *ExternalError
	if errors.As(err, &ext) {
		return ext.Kind
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	var netErr interface{ Timeout() bool }
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return ExternalTimeout
	case errors.Is(err, ErrRateLimited):
		return ExternalQuota
	case errors.Is(err, ErrMalformedResponse), errors.As(err, &syntaxErr), errors.As(err, &typeErr):
		return ExternalMalformed
	default:
		return ExternalUnavailable
	}
}
