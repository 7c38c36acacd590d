package pytrail

import (
	"database/sql"
	"fmt"

	"github.com/jward/pytrail/internal/store"
	"github.com/jward/pytrail/internal/symbol"
)

// QueryBuilder provides the navigation query API over the Store.
type QueryBuilder struct {
	store *store.Store
}

// NewQueryBuilder wraps an existing Store, for callers that open the
// database without an Engine.
func NewQueryBuilder(s *store.Store) *QueryBuilder {
	return &QueryBuilder{store: s}
}

// Edge is one typed reference seen from one of its ends. Symbol is the
// symbol at the other end.
type Edge struct {
	Symbol    *Symbol
	Kind      symbol.ReferenceKind
	Locations []ReferenceLocation
}

// SymbolsByName returns the symbols whose display name equals name or ends
// with "."+name.
func (q *QueryBuilder) SymbolsByName(name string) ([]*Symbol, error) {
	return q.store.SymbolsByName(name)
}

// Symbol returns the symbol with the given ID, or nil.
func (q *QueryBuilder) Symbol(id int64) (*Symbol, error) {
	return q.store.SymbolByID(id)
}

// File returns the file record for path, or nil.
func (q *QueryBuilder) File(path string) (*File, error) {
	return q.store.FileByPath(path)
}

// Files returns every known file ordered by path.
func (q *QueryBuilder) Files() ([]*File, error) {
	return q.store.Files()
}

// Definition returns where a symbol is defined: its token locations.
// Implicit symbols such as builtins have none.
func (q *QueryBuilder) Definition(symbolID int64) ([]*Location, error) {
	locs, err := q.store.SymbolLocations(symbolID)
	if err != nil {
		return nil, fmt.Errorf("definition: %w", err)
	}
	var out []*Location
	for _, l := range locs {
		if l.Kind == store.LocationToken {
			out = append(out, l)
		}
	}
	return out, nil
}

// SymbolAt returns the narrowest symbol defined or referenced at the
// 1-based position in a file, or nil.
func (q *QueryBuilder) SymbolAt(path string, line, col int) (*Symbol, error) {
	f, err := q.store.FileByPath(path)
	if err != nil {
		return nil, fmt.Errorf("symbol at: lookup file: %w", err)
	}
	if f == nil {
		return nil, nil
	}

	var id int64
	err = q.store.DB().QueryRow(
		`SELECT symbol_id FROM (
		   SELECT symbol_id, start_line, start_col, end_line, end_col
		   FROM symbol_locations WHERE file_id = ? AND kind IN ('token', 'qualifier')
		   UNION ALL
		   SELECT r.target_symbol_id, rl.start_line, rl.start_col, rl.end_line, rl.end_col
		   FROM reference_locations rl JOIN references_ r ON r.id = rl.reference_id
		   WHERE rl.file_id = ?
		 )
		 WHERE start_line <= ? AND end_line >= ?
		   AND (start_line < ? OR start_col <= ?)
		   AND (end_line > ? OR end_col >= ?)
		 ORDER BY end_line - start_line, end_col - start_col
		 LIMIT 1`,
		f.ID, f.ID,
		line, line,
		line, col,
		line, col,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("symbol at: %w", err)
	}
	return q.store.SymbolByID(id)
}

// DefinitionAt is go-to-definition: the definition locations of the symbol
// at a position.
func (q *QueryBuilder) DefinitionAt(path string, line, col int) ([]*Location, error) {
	sym, err := q.SymbolAt(path, line, col)
	if err != nil || sym == nil {
		return nil, err
	}
	return q.Definition(sym.ID)
}

// ReferencesTo returns every reference targeting the symbol.
func (q *QueryBuilder) ReferencesTo(symbolID int64) ([]*Reference, error) {
	return q.store.ReferencesTo(symbolID)
}

// ReferencesFrom returns every reference made inside the symbol.
func (q *QueryBuilder) ReferencesFrom(symbolID int64) ([]*Reference, error) {
	return q.store.ReferencesFrom(symbolID)
}

// Callers returns the symbols that call symbolID.
func (q *QueryBuilder) Callers(symbolID int64) ([]Edge, error) {
	refs, err := q.store.ReferencesTo(symbolID)
	if err != nil {
		return nil, fmt.Errorf("callers: %w", err)
	}
	return q.edges(refs, symbol.ReferenceCall, false)
}

// Callees returns the symbols called from within symbolID.
func (q *QueryBuilder) Callees(symbolID int64) ([]Edge, error) {
	refs, err := q.store.ReferencesFrom(symbolID)
	if err != nil {
		return nil, fmt.Errorf("callees: %w", err)
	}
	return q.edges(refs, symbol.ReferenceCall, true)
}

// Subclasses returns the classes that list symbolID as a direct base.
func (q *QueryBuilder) Subclasses(symbolID int64) ([]Edge, error) {
	refs, err := q.store.ReferencesTo(symbolID)
	if err != nil {
		return nil, fmt.Errorf("subclasses: %w", err)
	}
	return q.edges(refs, symbol.ReferenceInheritance, false)
}

// Superclasses returns the direct bases of a class.
func (q *QueryBuilder) Superclasses(symbolID int64) ([]Edge, error) {
	refs, err := q.store.ReferencesFrom(symbolID)
	if err != nil {
		return nil, fmt.Errorf("superclasses: %w", err)
	}
	return q.edges(refs, symbol.ReferenceInheritance, true)
}

// Imports returns what a file imports, with the import locations in that
// file.
func (q *QueryBuilder) Imports(fileID int64) ([]Edge, error) {
	refs, err := q.store.ReferencesInFile(fileID)
	if err != nil {
		return nil, fmt.Errorf("imports: %w", err)
	}
	return q.edges(refs, symbol.ReferenceImport, true)
}

// FileErrors returns the diagnostics recorded for a file path.
func (q *QueryBuilder) FileErrors(path string) ([]*ErrorRecord, error) {
	f, err := q.store.FileByPath(path)
	if err != nil {
		return nil, fmt.Errorf("file errors: %w", err)
	}
	if f == nil {
		return nil, nil
	}
	return q.store.ErrorsByFile(f.ID)
}

// DependentFiles returns the files that reference symbols defined in path.
func (q *QueryBuilder) DependentFiles(path string) ([]*File, error) {
	f, err := q.store.FileByPath(path)
	if err != nil {
		return nil, fmt.Errorf("dependent files: %w", err)
	}
	if f == nil {
		return nil, nil
	}
	return q.store.DependentFiles(f.ID)
}

// edges keeps the references of one kind and resolves the far end: the
// target when outgoing, the context otherwise.
func (q *QueryBuilder) edges(refs []*Reference, kind symbol.ReferenceKind, outgoing bool) ([]Edge, error) {
	var out []Edge
	for _, r := range refs {
		if r.Kind != kind {
			continue
		}
		id := r.ContextSymbolID
		if outgoing {
			id = r.TargetSymbolID
		}
		sym, err := q.store.SymbolByID(id)
		if err != nil {
			return nil, err
		}
		if sym == nil {
			continue
		}
		out = append(out, Edge{Symbol: sym, Kind: r.Kind, Locations: r.Locations})
	}
	return out, nil
}
