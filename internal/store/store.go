package store

import (
	"database/sql"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/mattn/go-sqlite3"

	"github.com/jward/pytrail/internal/index"
)

// SchemaVersion is bumped whenever schemaDDL changes incompatibly.
const SchemaVersion = "3"

// DefaultIDCacheSize bounds the serialized-name to symbol-id cache.
const DefaultIDCacheSize = 8192

// ErrSchemaVersion is returned when a database was written by an
// incompatible version of the schema.
var ErrSchemaVersion = errors.New("store: incompatible schema version")

// Store is the SQLite data access layer for the symbol graph.
type Store struct {
	db  *sql.DB
	ids *lru.Cache[string, int64]
}

var _ index.Sink = (*Store)(nil)

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	ids, err := lru.New[string, int64](DefaultIDCacheSize)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create id cache: %w", err)
	}
	return &Store{db: db, ids: ids}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for ad-hoc queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates all tables and indexes and stamps a fresh database with
// the current schema version. Idempotent.
func (s *Store) Migrate() error {
	if _, err := s.db.Exec(schemaDDL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if _, err := s.db.Exec(
		"INSERT OR IGNORE INTO meta (key, value) VALUES ('schema_version', ?)", SchemaVersion,
	); err != nil {
		return fmt.Errorf("migrate: stamp version: %w", err)
	}
	return nil
}

// CheckSchemaVersion fails with ErrSchemaVersion when the database was
// stamped by a different schema.
func (s *Store) CheckSchemaVersion() error {
	v, err := s.GetMetadata("schema_version")
	if err != nil {
		return err
	}
	if v != SchemaVersion {
		return fmt.Errorf("%w: database has %q, want %q", ErrSchemaVersion, v, SchemaVersion)
	}
	return nil
}

// GetMetadata returns the value stored under key, or "" if unset.
func (s *Store) GetMetadata(key string) (string, error) {
	var v string
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get metadata %q: %w", key, err)
	}
	return v, nil
}

// SetMetadata stores value under key.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		"INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set metadata %q: %w", key, err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS meta (
  key             TEXT PRIMARY KEY,
  value           TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS files (
  id              INTEGER PRIMARY KEY,
  path            TEXT NOT NULL UNIQUE,
  language        TEXT NOT NULL,
  hash            TEXT,
  line_count      INTEGER DEFAULT 0,
  last_indexed    TIMESTAMP,
  indexed         BOOLEAN DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS symbols (
  id              INTEGER PRIMARY KEY,
  serialized      TEXT NOT NULL UNIQUE,
  display_name    TEXT NOT NULL,
  name            TEXT NOT NULL,
  kind            TEXT NOT NULL DEFAULT '',
  definition_kind TEXT NOT NULL DEFAULT 'implicit'
);

CREATE TABLE IF NOT EXISTS symbol_locations (
  id              INTEGER PRIMARY KEY,
  symbol_id       INTEGER NOT NULL REFERENCES symbols(id),
  file_id         INTEGER NOT NULL REFERENCES files(id),
  kind            TEXT NOT NULL,
  start_line      INTEGER,
  start_col       INTEGER,
  end_line        INTEGER,
  end_col         INTEGER,
  UNIQUE (symbol_id, file_id, kind, start_line, start_col, end_line, end_col)
);

CREATE TABLE IF NOT EXISTS references_ (
  id              INTEGER PRIMARY KEY,
  context_symbol_id INTEGER NOT NULL REFERENCES symbols(id),
  target_symbol_id  INTEGER NOT NULL REFERENCES symbols(id),
  kind            TEXT NOT NULL,
  UNIQUE (context_symbol_id, target_symbol_id, kind)
);

CREATE TABLE IF NOT EXISTS reference_locations (
  id              INTEGER PRIMARY KEY,
  reference_id    INTEGER NOT NULL REFERENCES references_(id),
  file_id         INTEGER NOT NULL REFERENCES files(id),
  start_line      INTEGER,
  start_col       INTEGER,
  end_line        INTEGER,
  end_col         INTEGER,
  UNIQUE (reference_id, file_id, start_line, start_col, end_line, end_col)
);

CREATE TABLE IF NOT EXISTS local_symbols (
  id              INTEGER PRIMARY KEY,
  name            TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS local_symbol_locations (
  id              INTEGER PRIMARY KEY,
  local_symbol_id INTEGER NOT NULL REFERENCES local_symbols(id),
  file_id         INTEGER NOT NULL REFERENCES files(id),
  start_line      INTEGER,
  start_col       INTEGER,
  end_line        INTEGER,
  end_col         INTEGER,
  UNIQUE (local_symbol_id, file_id, start_line, start_col, end_line, end_col)
);

CREATE TABLE IF NOT EXISTS atomic_ranges (
  id              INTEGER PRIMARY KEY,
  file_id         INTEGER NOT NULL REFERENCES files(id),
  start_line      INTEGER,
  start_col       INTEGER,
  end_line        INTEGER,
  end_col         INTEGER
);

CREATE TABLE IF NOT EXISTS errors (
  id              INTEGER PRIMARY KEY,
  file_id         INTEGER NOT NULL REFERENCES files(id),
  message         TEXT NOT NULL,
  fatal           BOOLEAN DEFAULT FALSE,
  start_line      INTEGER,
  start_col       INTEGER,
  end_line        INTEGER,
  end_col         INTEGER
);

CREATE TABLE IF NOT EXISTS index_runs (
  id              TEXT PRIMARY KEY,
  started_at      TIMESTAMP NOT NULL,
  finished_at     TIMESTAMP,
  files           INTEGER DEFAULT 0,
  errors          INTEGER DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_symbols_name ON symbols(name);
CREATE INDEX IF NOT EXISTS idx_symbols_display ON symbols(display_name);
CREATE INDEX IF NOT EXISTS idx_symbols_kind ON symbols(kind);
CREATE INDEX IF NOT EXISTS idx_symbol_locations_symbol ON symbol_locations(symbol_id);
CREATE INDEX IF NOT EXISTS idx_symbol_locations_file ON symbol_locations(file_id);
CREATE INDEX IF NOT EXISTS idx_references_context ON references_(context_symbol_id);
CREATE INDEX IF NOT EXISTS idx_references_target ON references_(target_symbol_id);
CREATE INDEX IF NOT EXISTS idx_reference_locations_ref ON reference_locations(reference_id);
CREATE INDEX IF NOT EXISTS idx_reference_locations_file ON reference_locations(file_id);
CREATE INDEX IF NOT EXISTS idx_local_locations_file ON local_symbol_locations(file_id);
CREATE INDEX IF NOT EXISTS idx_atomic_ranges_file ON atomic_ranges(file_id);
CREATE INDEX IF NOT EXISTS idx_errors_file ON errors(file_id);
`

// DeleteFileData transactionally removes everything recorded at locations
// in a file so it can be re-indexed. Symbols, references and local symbols
// stay interned; the file row stays with its hash cleared.
func (s *Store) DeleteFileData(fileID int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		"DELETE FROM symbol_locations WHERE file_id = ?",
		"DELETE FROM reference_locations WHERE file_id = ?",
		"DELETE FROM local_symbol_locations WHERE file_id = ?",
		"DELETE FROM atomic_ranges WHERE file_id = ?",
		"DELETE FROM errors WHERE file_id = ?",
		"UPDATE files SET hash = NULL, indexed = FALSE WHERE id = ?",
	} {
		if _, err := tx.Exec(q, fileID); err != nil {
			return fmt.Errorf("delete file data: %w", err)
		}
	}
	return tx.Commit()
}
