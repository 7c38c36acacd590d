// Package pytrail indexes Python source into a symbol graph stored in
// SQLite. Every name occurrence is resolved to a stable hierarchical name
// and recorded either as a definition site or as a typed reference (call,
// import, inheritance, type usage, usage) with its exact source range.
//
// # Pipeline
//
// For each source file, pytrail parses with tree-sitter, asks the resolver
// where every identifier is defined, and walks the tree in an indexing
// session that writes symbols, references, local symbols and diagnostics
// to the store. Sessions run on a worker pool, each writing into its own
// batch; batches are committed serially so that identical hierarchical
// names always map to one symbol.
//
// # Usage
//
// Create an Engine, index source files and query:
//
//	e, err := pytrail.New("pytrail.db", pytrail.WithSearchRoots("src"))
//	if err != nil { ... }
//	defer e.Close()
//
//	ctx := context.Background()
//	err = e.IndexDirectory(ctx, "src")
//
//	q := e.Query()
//	syms, err := q.SymbolsByName("Client.send")
//	callers, err := q.Callers(syms[0].ID)
//
// # Query API
//
// The [QueryBuilder] returned by [Engine.Query] provides:
//
//   - [QueryBuilder.SymbolsByName] and [QueryBuilder.Search]: exact-suffix and
//     fuzzy symbol lookup.
//   - [QueryBuilder.Definition]: where a symbol is defined.
//   - [QueryBuilder.ReferencesTo] and [QueryBuilder.ReferencesFrom]: typed
//     edges with their locations.
//   - [QueryBuilder.Callers], [QueryBuilder.Callees]: the call graph.
//   - [QueryBuilder.Subclasses], [QueryBuilder.Superclasses]: inheritance.
//   - [QueryBuilder.Imports]: what a file imports.
//   - [QueryBuilder.FileErrors]: diagnostics recorded for a file.
//
// # Incremental Indexing
//
// [Engine.IndexFiles] detects unchanged files via content hashing and skips
// them. When a file changes, the files whose references point into it are
// queued; [Engine.RefreshDependents] re-indexes them.
package pytrail
