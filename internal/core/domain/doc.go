// Package domain defines the core business entities for lectern.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Document: An uploaded PDF and its lifecycle status
//   - Chunk: An overlapping slice of document text, the unit of retrieval
//   - Chapter: A fixed-size window of consecutive chunks
//   - Question / Answer: Generated quiz questions and graded responses
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
