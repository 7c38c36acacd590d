package store

import (
	"database/sql"
	"fmt"

	"github.com/jward/pytrail/internal/symbol"
)

// --- Symbols ---

const symbolColumns = "id, serialized, display_name, name, kind, definition_kind"

func scanSymbol(scanner interface{ Scan(...any) error }) (*Symbol, error) {
	sym := &Symbol{}
	var kind, defKind string
	if err := scanner.Scan(&sym.ID, &sym.Serialized, &sym.DisplayName, &sym.Name, &kind, &defKind); err != nil {
		return nil, err
	}
	sym.Kind = symbol.Kind(kind)
	sym.DefinitionKind = symbol.DefinitionKind(defKind)
	return sym, nil
}

func (s *Store) querySymbols(query string, args ...any) ([]*Symbol, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var syms []*Symbol
	for rows.Next() {
		sym, err := scanSymbol(rows)
		if err != nil {
			return nil, fmt.Errorf("scan symbol: %w", err)
		}
		syms = append(syms, sym)
	}
	return syms, rows.Err()
}

func (s *Store) SymbolByID(id int64) (*Symbol, error) {
	sym, err := scanSymbol(s.db.QueryRow("SELECT "+symbolColumns+" FROM symbols WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("symbol by id: %w", err)
	}
	return sym, nil
}

// SymbolByHierarchy looks a symbol up by its exact hierarchical name.
func (s *Store) SymbolByHierarchy(h symbol.Hierarchy) (*Symbol, error) {
	sym, err := scanSymbol(s.db.QueryRow("SELECT "+symbolColumns+" FROM symbols WHERE serialized = ?", h.Serialize()))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("symbol by hierarchy: %w", err)
	}
	return sym, nil
}

// SymbolsByName matches a full display name or any dotted suffix of one,
// so "Foo.bar" finds "pkg.mod.Foo.bar".
func (s *Store) SymbolsByName(name string) ([]*Symbol, error) {
	syms, err := s.querySymbols(
		"SELECT "+symbolColumns+` FROM symbols
		 WHERE display_name = ?
		    OR (length(display_name) > length(?) AND substr(display_name, -length(?) - 1) = '.' || ?)
		 ORDER BY display_name`,
		name, name, name, name,
	)
	if err != nil {
		return nil, fmt.Errorf("symbols by name: %w", err)
	}
	return syms, nil
}

func (s *Store) SymbolsByKind(kind symbol.Kind) ([]*Symbol, error) {
	syms, err := s.querySymbols("SELECT "+symbolColumns+" FROM symbols WHERE kind = ? ORDER BY display_name", string(kind))
	if err != nil {
		return nil, fmt.Errorf("symbols by kind: %w", err)
	}
	return syms, nil
}

func (s *Store) AllSymbols() ([]*Symbol, error) {
	syms, err := s.querySymbols("SELECT " + symbolColumns + " FROM symbols ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("all symbols: %w", err)
	}
	return syms, nil
}

// --- Locations ---

func (s *Store) queryLocations(query string, args ...any) ([]*Location, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var locs []*Location
	for rows.Next() {
		l := &Location{}
		var kind string
		if err := rows.Scan(&l.ID, &l.SymbolID, &l.FileID, &l.Path, &kind,
			&l.Range.StartLine, &l.Range.StartColumn, &l.Range.EndLine, &l.Range.EndColumn); err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		l.Kind = LocationKind(kind)
		locs = append(locs, l)
	}
	return locs, rows.Err()
}

// SymbolLocations returns every token, scope and qualifier location of a
// symbol.
func (s *Store) SymbolLocations(symbolID int64) ([]*Location, error) {
	locs, err := s.queryLocations(
		`SELECT l.id, l.symbol_id, l.file_id, f.path, l.kind, l.start_line, l.start_col, l.end_line, l.end_col
		 FROM symbol_locations l JOIN files f ON f.id = l.file_id
		 WHERE l.symbol_id = ?
		 ORDER BY f.path, l.start_line, l.start_col`, symbolID,
	)
	if err != nil {
		return nil, fmt.Errorf("symbol locations: %w", err)
	}
	return locs, nil
}

// LocationsInFile returns the locations of the given kind recorded in a
// file, in source order.
func (s *Store) LocationsInFile(fileID int64, kind LocationKind) ([]*Location, error) {
	locs, err := s.queryLocations(
		`SELECT l.id, l.symbol_id, l.file_id, f.path, l.kind, l.start_line, l.start_col, l.end_line, l.end_col
		 FROM symbol_locations l JOIN files f ON f.id = l.file_id
		 WHERE l.file_id = ? AND l.kind = ?
		 ORDER BY l.start_line, l.start_col`, fileID, string(kind),
	)
	if err != nil {
		return nil, fmt.Errorf("locations in file: %w", err)
	}
	return locs, nil
}

// --- References ---

func (s *Store) queryReferences(query string, args ...any) ([]*Reference, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	var refs []*Reference
	byID := make(map[int64]*Reference)
	for rows.Next() {
		r := &Reference{}
		var kind string
		if err := rows.Scan(&r.ID, &r.ContextSymbolID, &r.TargetSymbolID, &kind); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan reference: %w", err)
		}
		r.Kind = symbol.ReferenceKind(kind)
		refs = append(refs, r)
		byID[r.ID] = r
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return nil, nil
	}

	ids := make([]int64, 0, len(refs))
	for _, r := range refs {
		ids = append(ids, r.ID)
	}
	locRows, err := s.db.Query(
		`SELECT rl.reference_id, rl.file_id, f.path, rl.start_line, rl.start_col, rl.end_line, rl.end_col
		 FROM reference_locations rl JOIN files f ON f.id = rl.file_id
		 WHERE rl.reference_id IN (`+placeholderList(len(ids))+`)
		 ORDER BY f.path, rl.start_line, rl.start_col`,
		int64sToArgs(ids)...,
	)
	if err != nil {
		return nil, err
	}
	defer locRows.Close()
	for locRows.Next() {
		var l ReferenceLocation
		if err := locRows.Scan(&l.ReferenceID, &l.FileID, &l.Path,
			&l.Range.StartLine, &l.Range.StartColumn, &l.Range.EndLine, &l.Range.EndColumn); err != nil {
			return nil, fmt.Errorf("scan reference location: %w", err)
		}
		if r := byID[l.ReferenceID]; r != nil {
			r.Locations = append(r.Locations, l)
		}
	}
	return refs, locRows.Err()
}

// ReferencesTo returns the references targeting a symbol with their
// locations. References whose locations were all deleted are omitted.
func (s *Store) ReferencesTo(symbolID int64) ([]*Reference, error) {
	refs, err := s.queryReferences(
		`SELECT r.id, r.context_symbol_id, r.target_symbol_id, r.kind FROM references_ r
		 WHERE r.target_symbol_id = ?
		   AND EXISTS (SELECT 1 FROM reference_locations rl WHERE rl.reference_id = r.id)
		 ORDER BY r.id`, symbolID,
	)
	if err != nil {
		return nil, fmt.Errorf("references to: %w", err)
	}
	return refs, nil
}

// ReferencesFrom returns the references made within a context symbol.
func (s *Store) ReferencesFrom(symbolID int64) ([]*Reference, error) {
	refs, err := s.queryReferences(
		`SELECT r.id, r.context_symbol_id, r.target_symbol_id, r.kind FROM references_ r
		 WHERE r.context_symbol_id = ?
		   AND EXISTS (SELECT 1 FROM reference_locations rl WHERE rl.reference_id = r.id)
		 ORDER BY r.id`, symbolID,
	)
	if err != nil {
		return nil, fmt.Errorf("references from: %w", err)
	}
	return refs, nil
}

// ReferencesInFile returns the references with at least one location in a
// file. Only the locations inside that file are attached.
func (s *Store) ReferencesInFile(fileID int64) ([]*Reference, error) {
	refs, err := s.queryReferences(
		`SELECT r.id, r.context_symbol_id, r.target_symbol_id, r.kind FROM references_ r
		 WHERE EXISTS (SELECT 1 FROM reference_locations rl WHERE rl.reference_id = r.id AND rl.file_id = ?)
		 ORDER BY r.id`, fileID,
	)
	if err != nil {
		return nil, fmt.Errorf("references in file: %w", err)
	}
	for _, r := range refs {
		kept := r.Locations[:0]
		for _, l := range r.Locations {
			if l.FileID == fileID {
				kept = append(kept, l)
			}
		}
		r.Locations = kept
	}
	return refs, nil
}

// --- Locals, atomic ranges and errors ---

func (s *Store) LocalOccurrences(fileID int64) ([]*LocalOccurrence, error) {
	rows, err := s.db.Query(
		`SELECT l.local_symbol_id, l.file_id, ls.name, l.start_line, l.start_col, l.end_line, l.end_col
		 FROM local_symbol_locations l JOIN local_symbols ls ON ls.id = l.local_symbol_id
		 WHERE l.file_id = ?
		 ORDER BY l.start_line, l.start_col`, fileID,
	)
	if err != nil {
		return nil, fmt.Errorf("local occurrences: %w", err)
	}
	defer rows.Close()
	var out []*LocalOccurrence
	for rows.Next() {
		o := &LocalOccurrence{}
		if err := rows.Scan(&o.LocalSymbolID, &o.FileID, &o.Name,
			&o.Range.StartLine, &o.Range.StartColumn, &o.Range.EndLine, &o.Range.EndColumn); err != nil {
			return nil, fmt.Errorf("scan local occurrence: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) AtomicRanges(fileID int64) ([]*AtomicRange, error) {
	rows, err := s.db.Query(
		`SELECT file_id, start_line, start_col, end_line, end_col FROM atomic_ranges
		 WHERE file_id = ? ORDER BY start_line, start_col`, fileID,
	)
	if err != nil {
		return nil, fmt.Errorf("atomic ranges: %w", err)
	}
	defer rows.Close()
	var out []*AtomicRange
	for rows.Next() {
		a := &AtomicRange{}
		if err := rows.Scan(&a.FileID, &a.Range.StartLine, &a.Range.StartColumn, &a.Range.EndLine, &a.Range.EndColumn); err != nil {
			return nil, fmt.Errorf("scan atomic range: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) ErrorsByFile(fileID int64) ([]*ErrorRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, file_id, message, fatal, start_line, start_col, end_line, end_col FROM errors
		 WHERE file_id = ? ORDER BY start_line, start_col, id`, fileID,
	)
	if err != nil {
		return nil, fmt.Errorf("errors by file: %w", err)
	}
	defer rows.Close()
	var out []*ErrorRecord
	for rows.Next() {
		e := &ErrorRecord{}
		if err := rows.Scan(&e.ID, &e.FileID, &e.Message, &e.Fatal,
			&e.Range.StartLine, &e.Range.StartColumn, &e.Range.EndLine, &e.Range.EndColumn); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
