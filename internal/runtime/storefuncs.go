package runtime

import (
	"context"
	"fmt"
	"strings"

	"github.com/risor-io/risor/object"

	"github.com/jward/pytrail"
	"github.com/jward/pytrail/internal/store"
	"github.com/jward/pytrail/internal/symbol"
)

// --- Graph query bridge functions ---

// symbols_by_name(name) → []map
func makeSymbolsByNameFn(q *pytrail.QueryBuilder) *object.Builtin {
	return object.NewBuiltin("symbols_by_name", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("symbols_by_name", 1, len(args))
		}
		name, err := toString(args[0])
		if err != nil {
			return object.Errorf("symbols_by_name: %v", err)
		}
		syms, err := q.SymbolsByName(name)
		if err != nil {
			return object.Errorf("symbols_by_name: %v", err)
		}
		return symbolsToList(syms)
	})
}

// search_symbols(query, limit?) → []map with a "score" key.
func makeSearchSymbolsFn(q *pytrail.QueryBuilder) *object.Builtin {
	return object.NewBuiltin("search_symbols", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) < 1 || len(args) > 2 {
			return object.Errorf("search_symbols: expected 1 or 2 arguments, got %d", len(args))
		}
		query, err := toString(args[0])
		if err != nil {
			return object.Errorf("search_symbols: %v", err)
		}
		limit := 0
		if len(args) == 2 {
			n, err := toInt64(args[1])
			if err != nil {
				return object.Errorf("search_symbols: limit %v", err)
			}
			limit = int(n)
		}
		results, err := q.Search(query, limit)
		if err != nil {
			return object.Errorf("search_symbols: %v", err)
		}
		out := make([]object.Object, 0, len(results))
		for _, r := range results {
			m := symbolMap(r.Symbol)
			m["score"] = object.NewFloat(r.Score)
			out = append(out, object.NewMap(m))
		}
		return object.NewList(out)
	})
}

// symbol(id) → map or nil
func makeSymbolFn(q *pytrail.QueryBuilder) *object.Builtin {
	return object.NewBuiltin("symbol", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("symbol", 1, len(args))
		}
		id, err := toInt64(args[0])
		if err != nil {
			return object.Errorf("symbol: %v", err)
		}
		sym, err := q.Symbol(id)
		if err != nil {
			return object.Errorf("symbol: %v", err)
		}
		if sym == nil {
			return object.Nil
		}
		return object.NewMap(symbolMap(sym))
	})
}

// references_to(symbol_id) → []map
func makeReferencesToFn(q *pytrail.QueryBuilder) *object.Builtin {
	return makeReferencesFn("references_to", q.ReferencesTo)
}

// references_from(symbol_id) → []map
func makeReferencesFromFn(q *pytrail.QueryBuilder) *object.Builtin {
	return makeReferencesFn("references_from", q.ReferencesFrom)
}

func makeReferencesFn(name string, fetch func(int64) ([]*store.Reference, error)) *object.Builtin {
	return object.NewBuiltin(name, func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError(name, 1, len(args))
		}
		id, err := toInt64(args[0])
		if err != nil {
			return object.Errorf("%s: %v", name, err)
		}
		refs, err := fetch(id)
		if err != nil {
			return object.Errorf("%s: %v", name, err)
		}
		out := make([]object.Object, 0, len(refs))
		for _, r := range refs {
			out = append(out, object.NewMap(map[string]object.Object{
				"id":                object.NewInt(r.ID),
				"context_symbol_id": object.NewInt(r.ContextSymbolID),
				"target_symbol_id":  object.NewInt(r.TargetSymbolID),
				"kind":              object.NewString(string(r.Kind)),
				"locations":         locationsToList(r.Locations),
			}))
		}
		return object.NewList(out)
	})
}

// callers/callees/subclasses/superclasses(symbol_id) → []map of the
// symbol at the other end, with "kind" and "locations".
func makeEdgesFn(name string, fetch func(int64) ([]pytrail.Edge, error)) *object.Builtin {
	return object.NewBuiltin(name, func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError(name, 1, len(args))
		}
		id, err := toInt64(args[0])
		if err != nil {
			return object.Errorf("%s: %v", name, err)
		}
		edges, err := fetch(id)
		if err != nil {
			return object.Errorf("%s: %v", name, err)
		}
		out := make([]object.Object, 0, len(edges))
		for _, e := range edges {
			m := symbolMap(e.Symbol)
			m["reference_kind"] = object.NewString(string(e.Kind))
			m["locations"] = locationsToList(e.Locations)
			out = append(out, object.NewMap(m))
		}
		return object.NewList(out)
	})
}

// files() → []map
func makeFilesFn(q *pytrail.QueryBuilder) *object.Builtin {
	return object.NewBuiltin("files", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 0 {
			return object.NewArgsError("files", 0, len(args))
		}
		files, err := q.Files()
		if err != nil {
			return object.Errorf("files: %v", err)
		}
		out := make([]object.Object, 0, len(files))
		for _, f := range files {
			out = append(out, object.NewMap(map[string]object.Object{
				"id":         object.NewInt(f.ID),
				"path":       object.NewString(f.Path),
				"language":   object.NewString(f.Language),
				"hash":       object.NewString(f.Hash),
				"line_count": object.NewInt(int64(f.LineCount)),
				"indexed":    object.NewBool(f.Indexed),
			}))
		}
		return object.NewList(out)
	})
}

// file_errors(path) → []map
func makeFileErrorsFn(q *pytrail.QueryBuilder) *object.Builtin {
	return object.NewBuiltin("file_errors", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("file_errors", 1, len(args))
		}
		path, err := toString(args[0])
		if err != nil {
			return object.Errorf("file_errors: %v", err)
		}
		errs, err := q.FileErrors(path)
		if err != nil {
			return object.Errorf("file_errors: %v", err)
		}
		out := make([]object.Object, 0, len(errs))
		for _, e := range errs {
			m := rangeMap(e.Range)
			m["message"] = object.NewString(e.Message)
			m["fatal"] = object.NewBool(e.Fatal)
			out = append(out, object.NewMap(m))
		}
		return object.NewList(out)
	})
}

// makeDBQueryFn creates a db_query bridge that executes arbitrary read-only SQL.
// Returns a list of maps (column name → value).
func makeDBQueryFn(s *store.Store) *object.Builtin {
	return object.NewBuiltin("db_query", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) < 1 {
			return object.Errorf("db_query: expected at least 1 argument (sql), got %d", len(args))
		}
		sqlStr, err := toString(args[0])
		if err != nil {
			return object.Errorf("db_query: %v", err)
		}

		// Only allow SELECT statements.
		trimmed := strings.TrimSpace(strings.ToUpper(sqlStr))
		if !strings.HasPrefix(trimmed, "SELECT") {
			return object.Errorf("db_query: only SELECT queries are allowed")
		}

		var queryArgs []any
		for _, arg := range args[1:] {
			switch v := arg.(type) {
			case *object.Int:
				queryArgs = append(queryArgs, v.Value())
			case *object.Float:
				queryArgs = append(queryArgs, v.Value())
			case *object.String:
				queryArgs = append(queryArgs, v.Value())
			case *object.Bool:
				queryArgs = append(queryArgs, v.Value())
			case *object.NilType:
				queryArgs = append(queryArgs, nil)
			default:
				queryArgs = append(queryArgs, fmt.Sprintf("%v", arg))
			}
		}

		rows, queryErr := s.DB().QueryContext(ctx, sqlStr, queryArgs...)
		if queryErr != nil {
			return object.Errorf("db_query: %v", queryErr)
		}
		defer rows.Close()

		cols, colErr := rows.Columns()
		if colErr != nil {
			return object.Errorf("db_query: columns: %v", colErr)
		}

		results := []object.Object{}
		for rows.Next() {
			values := make([]any, len(cols))
			ptrs := make([]any, len(cols))
			for i := range values {
				ptrs[i] = &values[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				return object.Errorf("db_query: scan: %v", err)
			}
			row := make(map[string]object.Object, len(cols))
			for i, col := range cols {
				row[col] = sqlValueToObject(values[i])
			}
			results = append(results, object.NewMap(row))
		}
		if err := rows.Err(); err != nil {
			return object.Errorf("db_query: rows: %v", err)
		}
		return object.NewList(results)
	})
}

// --- Conversion helpers ---

func toInt64(obj object.Object) (int64, error) {
	if i, ok := obj.(*object.Int); ok {
		return i.Value(), nil
	}
	if f, ok := obj.(*object.Float); ok {
		return int64(f.Value()), nil
	}
	return 0, fmt.Errorf("expected int, got %s", obj.Type())
}

func toString(obj object.Object) (string, error) {
	if s, ok := obj.(*object.String); ok {
		return s.Value(), nil
	}
	return "", fmt.Errorf("expected string, got %s", obj.Type())
}

// sqlValueToObject converts a database value to a Risor object.
func sqlValueToObject(v any) object.Object {
	if v == nil {
		return object.Nil
	}
	switch val := v.(type) {
	case int64:
		return object.NewInt(val)
	case float64:
		return object.NewFloat(val)
	case string:
		return object.NewString(val)
	case bool:
		return object.NewBool(val)
	case []byte:
		return object.NewString(string(val))
	default:
		return object.NewString(fmt.Sprintf("%v", val))
	}
}

func symbolMap(sym *store.Symbol) map[string]object.Object {
	return map[string]object.Object{
		"id":              object.NewInt(sym.ID),
		"name":            object.NewString(sym.Name),
		"display_name":    object.NewString(sym.DisplayName),
		"kind":            object.NewString(string(sym.Kind)),
		"definition_kind": object.NewString(string(sym.DefinitionKind)),
	}
}

func symbolsToList(syms []*store.Symbol) object.Object {
	out := make([]object.Object, 0, len(syms))
	for _, sym := range syms {
		out = append(out, object.NewMap(symbolMap(sym)))
	}
	return object.NewList(out)
}

func rangeMap(r symbol.Range) map[string]object.Object {
	return map[string]object.Object{
		"start_line": object.NewInt(int64(r.StartLine)),
		"start_col":  object.NewInt(int64(r.StartColumn)),
		"end_line":   object.NewInt(int64(r.EndLine)),
		"end_col":    object.NewInt(int64(r.EndColumn)),
	}
}

func locationsToList(locs []store.ReferenceLocation) object.Object {
	out := make([]object.Object, 0, len(locs))
	for _, l := range locs {
		m := rangeMap(l.Range)
		m["path"] = object.NewString(l.Path)
		m["file_id"] = object.NewInt(l.FileID)
		out = append(out, object.NewMap(m))
	}
	return object.NewList(out)
}
