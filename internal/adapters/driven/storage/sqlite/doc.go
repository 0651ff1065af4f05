// Package sqlite provides a unified SQLite-based implementation of driven port interfaces.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. It implements several ports
// through a single database connection:
//
//   - DocumentStore: documents, chapters and the chapter unit of work
//   - QuestionStore: generated questions and graded answers
//   - ChunkGraph: chunks, concepts and embeddings (the default graph backend)
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files.
//
// # Data Location
//
// By default, the database is stored at ~/.lectern/data/lectern.db
//
// # Thread Safety
//
// All operations are thread-safe. The store uses database-level locking provided
// by SQLite in WAL mode. Transactions issue their first write before any read,
// so a writer waits on the busy timeout instead of failing on a stale snapshot.
package sqlite
