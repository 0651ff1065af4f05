// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - TextExtractor: Pulls plain text out of PDF bytes
//   - TextSplitter: Splits text into overlapping chunks
//   - EmbeddingService: Generates fixed-dimension vectors from text
//   - DocumentStore: Document and chapter persistence (relational)
//   - QuestionStore: Question and answer persistence (relational)
//   - ChunkGraph: Chunk/concept graph with a document-scoped vector index
//   - ConfigStore: Application configuration
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - Summariser: Chapter titles and summaries. Without it, chapters use the local fallback.
//   - ConceptExtractor: Concept tags for chunks. Without it, no MENTIONS edges are created.
//   - QuestionGenerator / AnswerValidator: Quiz generation and grading.
//   - LLMService: Backs the prompted summariser, concept extractor and question generator.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter, connector, or normaliser package
package driven
