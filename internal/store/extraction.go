package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jward/pytrail/internal/symbol"
)

// --- Write helpers shared by the Sink methods and CommitBatch ---

func upsertFile(q querier, path, language string) (int64, error) {
	if _, err := q.Exec(
		`INSERT INTO files (path, language) VALUES (?, ?)
		 ON CONFLICT(path) DO UPDATE SET language = excluded.language`,
		path, language,
	); err != nil {
		return 0, err
	}
	var id int64
	err := q.QueryRow("SELECT id FROM files WHERE path = ?", path).Scan(&id)
	return id, err
}

func internSymbol(q querier, h symbol.Hierarchy) (int64, error) {
	key := h.Serialize()
	if _, err := q.Exec(
		`INSERT INTO symbols (serialized, display_name, name) VALUES (?, ?, ?)
		 ON CONFLICT(serialized) DO NOTHING`,
		key, h.DisplayString(), h.Last(),
	); err != nil {
		return 0, err
	}
	var id int64
	err := q.QueryRow("SELECT id FROM symbols WHERE serialized = ?", key).Scan(&id)
	return id, err
}

// upgradeSymbolKind stores kind unless the symbol already has a kind of
// equal or higher rank.
func upgradeSymbolKind(q querier, id int64, kind symbol.Kind) error {
	_, err := q.Exec(
		"UPDATE symbols SET kind = ? WHERE id = ? AND "+kindRankSQL+" < ?",
		string(kind), id, kind.Rank(),
	)
	return err
}

// setDefinitionKind never demotes an explicit definition.
func setDefinitionKind(q querier, id int64, kind symbol.DefinitionKind) error {
	_, err := q.Exec(
		"UPDATE symbols SET definition_kind = ? WHERE id = ? AND definition_kind <> 'explicit'",
		string(kind), id,
	)
	return err
}

func insertLocation(q querier, symbolID, fileID int64, kind LocationKind, r symbol.Range) error {
	args := append([]any{symbolID, fileID, string(kind)}, rangeArgs(r)...)
	_, err := q.Exec(
		`INSERT OR IGNORE INTO symbol_locations (symbol_id, file_id, kind, start_line, start_col, end_line, end_col)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`, args...,
	)
	return err
}

func internReference(q querier, contextID, targetID int64, kind symbol.ReferenceKind) (int64, error) {
	if _, err := q.Exec(
		`INSERT INTO references_ (context_symbol_id, target_symbol_id, kind) VALUES (?, ?, ?)
		 ON CONFLICT(context_symbol_id, target_symbol_id, kind) DO NOTHING`,
		contextID, targetID, string(kind),
	); err != nil {
		return 0, err
	}
	var id int64
	err := q.QueryRow(
		"SELECT id FROM references_ WHERE context_symbol_id = ? AND target_symbol_id = ? AND kind = ?",
		contextID, targetID, string(kind),
	).Scan(&id)
	return id, err
}

func insertReferenceLocation(q querier, refID, fileID int64, r symbol.Range) error {
	args := append([]any{refID, fileID}, rangeArgs(r)...)
	_, err := q.Exec(
		`INSERT OR IGNORE INTO reference_locations (reference_id, file_id, start_line, start_col, end_line, end_col)
		 VALUES (?, ?, ?, ?, ?, ?)`, args...,
	)
	return err
}

func internLocalSymbol(q querier, name string) (int64, error) {
	if _, err := q.Exec("INSERT INTO local_symbols (name) VALUES (?) ON CONFLICT(name) DO NOTHING", name); err != nil {
		return 0, err
	}
	var id int64
	err := q.QueryRow("SELECT id FROM local_symbols WHERE name = ?", name).Scan(&id)
	return id, err
}

func insertLocalLocation(q querier, localID, fileID int64, r symbol.Range) error {
	args := append([]any{localID, fileID}, rangeArgs(r)...)
	_, err := q.Exec(
		`INSERT OR IGNORE INTO local_symbol_locations (local_symbol_id, file_id, start_line, start_col, end_line, end_col)
		 VALUES (?, ?, ?, ?, ?, ?)`, args...,
	)
	return err
}

func insertAtomicRange(q querier, fileID int64, r symbol.Range) error {
	args := append([]any{fileID}, rangeArgs(r)...)
	_, err := q.Exec(
		"INSERT INTO atomic_ranges (file_id, start_line, start_col, end_line, end_col) VALUES (?, ?, ?, ?, ?)",
		args...,
	)
	return err
}

func insertError(q querier, fileID int64, message string, fatal bool, r symbol.Range) error {
	args := append([]any{fileID, message, fatal}, rangeArgs(r)...)
	_, err := q.Exec(
		`INSERT INTO errors (file_id, message, fatal, start_line, start_col, end_line, end_col)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`, args...,
	)
	return err
}

// --- index.Sink ---

func (s *Store) RecordFile(path, language string) (int64, error) {
	id, err := upsertFile(s.db, path, language)
	if err != nil {
		return 0, fmt.Errorf("record file: %w", err)
	}
	return id, nil
}

// RecordSymbol interns h by its serialized form.
func (s *Store) RecordSymbol(h symbol.Hierarchy) (int64, error) {
	key := h.Serialize()
	if id, ok := s.ids.Get(key); ok {
		return id, nil
	}
	id, err := internSymbol(s.db, h)
	if err != nil {
		return 0, fmt.Errorf("record symbol %s: %w", h.DisplayString(), err)
	}
	s.ids.Add(key, id)
	return id, nil
}

func (s *Store) RecordSymbolKind(symbolID int64, kind symbol.Kind) error {
	if err := upgradeSymbolKind(s.db, symbolID, kind); err != nil {
		return fmt.Errorf("record symbol kind: %w", err)
	}
	return nil
}

func (s *Store) RecordSymbolDefinitionKind(symbolID int64, kind symbol.DefinitionKind) error {
	if err := setDefinitionKind(s.db, symbolID, kind); err != nil {
		return fmt.Errorf("record definition kind: %w", err)
	}
	return nil
}

func (s *Store) RecordSymbolLocation(symbolID, fileID int64, r symbol.Range) error {
	if err := insertLocation(s.db, symbolID, fileID, LocationToken, r); err != nil {
		return fmt.Errorf("record symbol location: %w", err)
	}
	return nil
}

func (s *Store) RecordSymbolScopeLocation(symbolID, fileID int64, r symbol.Range) error {
	if err := insertLocation(s.db, symbolID, fileID, LocationScope, r); err != nil {
		return fmt.Errorf("record scope location: %w", err)
	}
	return nil
}

func (s *Store) RecordQualifierLocation(symbolID, fileID int64, r symbol.Range) error {
	if err := insertLocation(s.db, symbolID, fileID, LocationQualifier, r); err != nil {
		return fmt.Errorf("record qualifier location: %w", err)
	}
	return nil
}

func (s *Store) RecordReference(contextID, targetID int64, kind symbol.ReferenceKind) (int64, error) {
	id, err := internReference(s.db, contextID, targetID, kind)
	if err != nil {
		return 0, fmt.Errorf("record reference: %w", err)
	}
	return id, nil
}

func (s *Store) RecordReferenceLocation(referenceID, fileID int64, r symbol.Range) error {
	if err := insertReferenceLocation(s.db, referenceID, fileID, r); err != nil {
		return fmt.Errorf("record reference location: %w", err)
	}
	return nil
}

func (s *Store) RecordLocalSymbol(name string) (int64, error) {
	id, err := internLocalSymbol(s.db, name)
	if err != nil {
		return 0, fmt.Errorf("record local symbol: %w", err)
	}
	return id, nil
}

func (s *Store) RecordLocalSymbolLocation(localSymbolID, fileID int64, r symbol.Range) error {
	if err := insertLocalLocation(s.db, localSymbolID, fileID, r); err != nil {
		return fmt.Errorf("record local symbol location: %w", err)
	}
	return nil
}

func (s *Store) RecordAtomicSourceRange(fileID int64, r symbol.Range) error {
	if err := insertAtomicRange(s.db, fileID, r); err != nil {
		return fmt.Errorf("record atomic range: %w", err)
	}
	return nil
}

func (s *Store) RecordError(message string, fatal bool, fileID int64, r symbol.Range) error {
	if err := insertError(s.db, fileID, message, fatal, r); err != nil {
		return fmt.Errorf("record error: %w", err)
	}
	return nil
}

// --- File operations ---

// MarkFileIndexed stamps a successfully indexed file with its content hash.
func (s *Store) MarkFileIndexed(path, hash string, lineCount int) error {
	_, err := s.db.Exec(
		"UPDATE files SET hash = ?, line_count = ?, last_indexed = ?, indexed = TRUE WHERE path = ?",
		hash, lineCount, time.Now().UTC(), path,
	)
	if err != nil {
		return fmt.Errorf("mark file indexed: %w", err)
	}
	return nil
}

const fileColumns = "id, path, language, COALESCE(hash, ''), COALESCE(line_count, 0), last_indexed, COALESCE(indexed, FALSE)"

func scanFile(scanner interface{ Scan(...any) error }) (*File, error) {
	f := &File{}
	var last sql.NullTime
	if err := scanner.Scan(&f.ID, &f.Path, &f.Language, &f.Hash, &f.LineCount, &last, &f.Indexed); err != nil {
		return nil, err
	}
	if last.Valid {
		f.LastIndexed = last.Time
	}
	return f, nil
}

func (s *Store) FileByPath(path string) (*File, error) {
	f, err := scanFile(s.db.QueryRow("SELECT "+fileColumns+" FROM files WHERE path = ?", path))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file by path: %w", err)
	}
	return f, nil
}

func (s *Store) FileByID(id int64) (*File, error) {
	f, err := scanFile(s.db.QueryRow("SELECT "+fileColumns+" FROM files WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file by id: %w", err)
	}
	return f, nil
}

// Files returns every known file ordered by path.
func (s *Store) Files() ([]*File, error) {
	rows, err := s.db.Query("SELECT " + fileColumns + " FROM files ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("files: %w", err)
	}
	defer rows.Close()
	var files []*File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}
