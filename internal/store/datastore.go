package store

import "github.com/jward/pytrail/internal/index"

// DataStore is what an indexing session writes to. Both Store (direct
// SQLite) and Batch (in-memory buffering for parallel indexing) implement
// it.
type DataStore interface {
	index.Sink

	// FileByPath is needed by the engine to skip unchanged files.
	FileByPath(path string) (*File, error)
}

// Compile-time checks.
var (
	_ DataStore = (*Store)(nil)
	_ DataStore = (*Batch)(nil)
)
