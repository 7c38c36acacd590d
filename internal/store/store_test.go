package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/pytrail/internal/symbol"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

func rng(sl, sc, el, ec int) symbol.Range {
	return symbol.Range{StartLine: sl, StartColumn: sc, EndLine: el, EndColumn: ec}
}

// recordTestFile records a file through the Sink surface.
func recordTestFile(t *testing.T, s *Store, path string) int64 {
	t.Helper()
	id, err := s.RecordFile(path, "python")
	require.NoError(t, err)
	require.Positive(t, id)
	return id
}

func recordTestSymbol(t *testing.T, s *Store, dotted string) int64 {
	t.Helper()
	h, ok := symbol.FromDotted(dotted)
	require.True(t, ok)
	id, err := s.RecordSymbol(h)
	require.NoError(t, err)
	require.Positive(t, id)
	return id
}

// =============================================================================
// Schema & Lifecycle
// =============================================================================

func TestMigrate_AllTablesExist(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	expectedTables := []string{
		"meta", "files", "symbols", "symbol_locations", "references_",
		"reference_locations", "local_symbols", "local_symbol_locations",
		"atomic_ranges", "errors", "index_runs",
	}
	for _, table := range expectedTables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.Migrate())
	require.NoError(t, s.CheckSchemaVersion())
}

func TestMigrate_WALMode(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	var mode string
	require.NoError(t, s.db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestCheckSchemaVersion_Mismatch(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.SetMetadata("schema_version", "0"))

	err := s.CheckSchemaVersion()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSchemaVersion)
	assert.Contains(t, err.Error(), `"0"`)

	// Migrate must not silently restamp an existing database.
	require.NoError(t, s.Migrate())
	assert.ErrorIs(t, s.CheckSchemaVersion(), ErrSchemaVersion)
}

func TestMetadata(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	v, err := s.GetMetadata("missing")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, s.SetMetadata("k", "one"))
	require.NoError(t, s.SetMetadata("k", "two"))
	v, err = s.GetMetadata("k")
	require.NoError(t, err)
	assert.Equal(t, "two", v)
}

// =============================================================================
// File operations
// =============================================================================

func TestRecordFile_Idempotent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	id1 := recordTestFile(t, s, "/src/a.py")
	id2 := recordTestFile(t, s, "/src/a.py")
	assert.Equal(t, id1, id2)

	f, err := s.FileByPath("/src/a.py")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, id1, f.ID)
	assert.Equal(t, "python", f.Language)
	assert.False(t, f.Indexed)
	assert.Empty(t, f.Hash)
}

func TestFile_ByPathNotFound(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	got, err := s.FileByPath("/nonexistent")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMarkFileIndexed(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	id := recordTestFile(t, s, "/src/a.py")

	require.NoError(t, s.MarkFileIndexed("/src/a.py", "abc", 12))
	f, err := s.FileByID(id)
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "abc", f.Hash)
	assert.Equal(t, 12, f.LineCount)
	assert.True(t, f.Indexed)
	assert.False(t, f.LastIndexed.IsZero())
}

func TestFiles_OrderedByPath(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	recordTestFile(t, s, "/b.py")
	recordTestFile(t, s, "/a.py")

	files, err := s.Files()
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "/a.py", files[0].Path)
	assert.Equal(t, "/b.py", files[1].Path)
}

// =============================================================================
// Symbol operations
// =============================================================================

func TestRecordSymbol_InternsBySerializedName(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	id1 := recordTestSymbol(t, s, "pkg.mod.Foo")
	id2 := recordTestSymbol(t, s, "pkg.mod.Foo")
	id3 := recordTestSymbol(t, s, "pkg.mod.Bar")
	assert.Equal(t, id1, id2)
	assert.NotEqual(t, id1, id3)

	// A cold cache must agree with the database.
	s.ids.Purge()
	assert.Equal(t, id1, recordTestSymbol(t, s, "pkg.mod.Foo"))

	sym, err := s.SymbolByID(id1)
	require.NoError(t, err)
	require.NotNil(t, sym)
	assert.Equal(t, "pkg.mod.Foo", sym.DisplayName)
	assert.Equal(t, "Foo", sym.Name)
	assert.Equal(t, symbol.DefinitionImplicit, sym.DefinitionKind)
	h, err := sym.Hierarchy()
	require.NoError(t, err)
	assert.Equal(t, "pkg.mod.Foo", h.DisplayString())
}

func TestRecordSymbolKind_OnlyUpgrades(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	id := recordTestSymbol(t, s, "m.x")

	require.NoError(t, s.RecordSymbolKind(id, symbol.KindGlobalVariable))
	require.NoError(t, s.RecordSymbolKind(id, symbol.KindField))
	sym, err := s.SymbolByID(id)
	require.NoError(t, err)
	assert.Equal(t, symbol.KindField, sym.Kind)

	require.NoError(t, s.RecordSymbolKind(id, symbol.KindGlobalVariable))
	sym, err = s.SymbolByID(id)
	require.NoError(t, err)
	assert.Equal(t, symbol.KindField, sym.Kind)

	require.NoError(t, s.RecordSymbolKind(id, symbol.KindClass))
	require.NoError(t, s.RecordSymbolKind(id, symbol.KindFunction))
	sym, err = s.SymbolByID(id)
	require.NoError(t, err)
	assert.Equal(t, symbol.KindClass, sym.Kind, "equal rank keeps the first kind")
}

func TestRecordSymbolDefinitionKind_ExplicitSticks(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	id := recordTestSymbol(t, s, "m.f")

	require.NoError(t, s.RecordSymbolDefinitionKind(id, symbol.DefinitionExplicit))
	require.NoError(t, s.RecordSymbolDefinitionKind(id, symbol.DefinitionImplicit))
	sym, err := s.SymbolByID(id)
	require.NoError(t, err)
	assert.True(t, sym.Explicit())
}

func TestSymbolsByName_Suffix(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	recordTestSymbol(t, s, "pkg.mod.Foo.bar")
	recordTestSymbol(t, s, "other.Foo.bar")
	recordTestSymbol(t, s, "pkg.mod.Foo.foobar")
	recordTestSymbol(t, s, "pkg.my_name")
	recordTestSymbol(t, s, "pkg.myXname")

	syms, err := s.SymbolsByName("Foo.bar")
	require.NoError(t, err)
	names := make([]string, 0, len(syms))
	for _, sym := range syms {
		names = append(names, sym.DisplayName)
	}
	assert.Equal(t, []string{"other.Foo.bar", "pkg.mod.Foo.bar"}, names)

	// Underscores are literal, not wildcards.
	syms, err = s.SymbolsByName("my_name")
	require.NoError(t, err)
	require.Len(t, syms, 1)
	assert.Equal(t, "pkg.my_name", syms[0].DisplayName)

	syms, err = s.SymbolsByName("pkg.mod.Foo.bar")
	require.NoError(t, err)
	assert.Len(t, syms, 1)
}

func TestSymbolsByKind(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	a := recordTestSymbol(t, s, "m.A")
	f := recordTestSymbol(t, s, "m.f")
	require.NoError(t, s.RecordSymbolKind(a, symbol.KindClass))
	require.NoError(t, s.RecordSymbolKind(f, symbol.KindFunction))

	classes, err := s.SymbolsByKind(symbol.KindClass)
	require.NoError(t, err)
	require.Len(t, classes, 1)
	assert.Equal(t, a, classes[0].ID)
}

// =============================================================================
// Locations, references, locals
// =============================================================================

func TestSymbolLocations_Deduplicated(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	fileID := recordTestFile(t, s, "/m.py")
	id := recordTestSymbol(t, s, "m.Foo")

	require.NoError(t, s.RecordSymbolLocation(id, fileID, rng(1, 7, 1, 9)))
	require.NoError(t, s.RecordSymbolLocation(id, fileID, rng(1, 7, 1, 9)))
	require.NoError(t, s.RecordSymbolScopeLocation(id, fileID, rng(1, 1, 3, 12)))
	require.NoError(t, s.RecordQualifierLocation(id, fileID, rng(5, 1, 5, 3)))

	locs, err := s.SymbolLocations(id)
	require.NoError(t, err)
	require.Len(t, locs, 3)
	kinds := map[LocationKind]symbol.Range{}
	for _, l := range locs {
		assert.Equal(t, "/m.py", l.Path)
		kinds[l.Kind] = l.Range
	}
	assert.Equal(t, rng(1, 7, 1, 9), kinds[LocationToken])
	assert.Equal(t, rng(1, 1, 3, 12), kinds[LocationScope])
	assert.Equal(t, rng(5, 1, 5, 3), kinds[LocationQualifier])

	defs, err := s.LocationsInFile(fileID, LocationToken)
	require.NoError(t, err)
	assert.Len(t, defs, 1)
}

func TestReferences_InternedWithLocations(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	fileID := recordTestFile(t, s, "/m.py")
	mod := recordTestSymbol(t, s, "m")
	fn := recordTestSymbol(t, s, "m.f")

	ref1, err := s.RecordReference(mod, fn, symbol.ReferenceCall)
	require.NoError(t, err)
	ref2, err := s.RecordReference(mod, fn, symbol.ReferenceCall)
	require.NoError(t, err)
	assert.Equal(t, ref1, ref2)
	ref3, err := s.RecordReference(mod, fn, symbol.ReferenceImport)
	require.NoError(t, err)
	assert.NotEqual(t, ref1, ref3)

	require.NoError(t, s.RecordReferenceLocation(ref1, fileID, rng(4, 1, 4, 1)))
	require.NoError(t, s.RecordReferenceLocation(ref1, fileID, rng(5, 1, 5, 1)))
	require.NoError(t, s.RecordReferenceLocation(ref3, fileID, rng(1, 10, 1, 10)))

	to, err := s.ReferencesTo(fn)
	require.NoError(t, err)
	require.Len(t, to, 2)
	assert.Equal(t, symbol.ReferenceCall, to[0].Kind)
	require.Len(t, to[0].Locations, 2)
	assert.Equal(t, 4, to[0].Locations[0].Range.StartLine)
	assert.Equal(t, "/m.py", to[0].Locations[0].Path)

	from, err := s.ReferencesFrom(mod)
	require.NoError(t, err)
	assert.Len(t, from, 2)

	inFile, err := s.ReferencesInFile(fileID)
	require.NoError(t, err)
	assert.Len(t, inFile, 2)
}

func TestLocalsAtomicRangesAndErrors(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	fileID := recordTestFile(t, s, "/m.py")

	l1, err := s.RecordLocalSymbol("m.f<a>")
	require.NoError(t, err)
	l2, err := s.RecordLocalSymbol("m.f<a>")
	require.NoError(t, err)
	assert.Equal(t, l1, l2)
	require.NoError(t, s.RecordLocalSymbolLocation(l1, fileID, rng(1, 7, 1, 7)))
	require.NoError(t, s.RecordLocalSymbolLocation(l1, fileID, rng(2, 5, 2, 5)))

	require.NoError(t, s.RecordAtomicSourceRange(fileID, rng(1, 1, 3, 3)))
	require.NoError(t, s.RecordError(`Unexpected token of type "ERROR" encountered.`, false, fileID, rng(7, 1, 7, 2)))

	locals, err := s.LocalOccurrences(fileID)
	require.NoError(t, err)
	require.Len(t, locals, 2)
	assert.Equal(t, "m.f<a>", locals[0].Name)

	atomic, err := s.AtomicRanges(fileID)
	require.NoError(t, err)
	require.Len(t, atomic, 1)
	assert.Equal(t, rng(1, 1, 3, 3), atomic[0].Range)

	errs, err := s.ErrorsByFile(fileID)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.False(t, errs[0].Fatal)
	assert.Equal(t, 7, errs[0].Range.StartLine)
}

// =============================================================================
// Deletion & dependents
// =============================================================================

func TestDeleteFileData(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	a := recordTestFile(t, s, "/a.py")
	b := recordTestFile(t, s, "/b.py")
	sym := recordTestSymbol(t, s, "a.Foo")
	ctxB := recordTestSymbol(t, s, "b")

	require.NoError(t, s.RecordSymbolLocation(sym, a, rng(1, 7, 1, 9)))
	ref, err := s.RecordReference(ctxB, sym, symbol.ReferenceTypeUsage)
	require.NoError(t, err)
	require.NoError(t, s.RecordReferenceLocation(ref, b, rng(3, 1, 3, 3)))
	require.NoError(t, s.RecordError("boom", false, a, rng(1, 1, 1, 1)))
	require.NoError(t, s.MarkFileIndexed("/a.py", "h1", 3))

	require.NoError(t, s.DeleteFileData(a))

	locs, err := s.SymbolLocations(sym)
	require.NoError(t, err)
	assert.Empty(t, locs)
	errs, err := s.ErrorsByFile(a)
	require.NoError(t, err)
	assert.Empty(t, errs)
	f, err := s.FileByID(a)
	require.NoError(t, err)
	assert.Empty(t, f.Hash)
	assert.False(t, f.Indexed)

	// The symbol stays interned and b's reference to it survives.
	got, err := s.SymbolByID(sym)
	require.NoError(t, err)
	assert.NotNil(t, got)
	to, err := s.ReferencesTo(sym)
	require.NoError(t, err)
	assert.Len(t, to, 1)
}

func TestDependentFiles(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	a := recordTestFile(t, s, "/a.py")
	b := recordTestFile(t, s, "/b.py")
	recordTestFile(t, s, "/c.py")
	foo := recordTestSymbol(t, s, "a.Foo")
	modA := recordTestSymbol(t, s, "a")
	modB := recordTestSymbol(t, s, "b")

	require.NoError(t, s.RecordSymbolLocation(foo, a, rng(1, 7, 1, 9)))
	self, err := s.RecordReference(modA, foo, symbol.ReferenceTypeUsage)
	require.NoError(t, err)
	require.NoError(t, s.RecordReferenceLocation(self, a, rng(4, 1, 4, 3)))
	ext, err := s.RecordReference(modB, foo, symbol.ReferenceImport)
	require.NoError(t, err)
	require.NoError(t, s.RecordReferenceLocation(ext, b, rng(1, 15, 1, 17)))

	deps, err := s.DependentFiles(a)
	require.NoError(t, err)
	require.Len(t, deps, 1)
	assert.Equal(t, "/b.py", deps[0].Path)
}

func TestPruneOrphans(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	f := recordTestFile(t, s, "/a.py")
	mod := recordTestSymbol(t, s, "a")
	fn := recordTestSymbol(t, s, "a.f")
	ref, err := s.RecordReference(mod, fn, symbol.ReferenceCall)
	require.NoError(t, err)
	require.NoError(t, s.RecordReferenceLocation(ref, f, rng(2, 1, 2, 1)))
	_, err = s.RecordReference(fn, mod, symbol.ReferenceUsage)
	require.NoError(t, err)
	_, err = s.RecordLocalSymbol("a.f<x>")
	require.NoError(t, err)

	removed, err := s.PruneOrphans()
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	from, err := s.ReferencesFrom(mod)
	require.NoError(t, err)
	assert.Len(t, from, 1)
}

// =============================================================================
// Runs & hashing
// =============================================================================

func TestIndexRuns(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	run, err := s.BeginRun()
	require.NoError(t, err)
	assert.Len(t, run.ID, 36)
	require.NoError(t, s.FinishRun(run, 4, 1))

	runs, err := s.Runs(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
	assert.Equal(t, 4, runs[0].Files)
	assert.Equal(t, 1, runs[0].Errors)
	assert.False(t, runs[0].FinishedAt.IsZero())
}

func TestContentHashAndLineCount(t *testing.T) {
	t.Parallel()
	assert.Equal(t, ContentHash([]byte("x = 1\n")), ContentHash([]byte("x = 1\n")))
	assert.NotEqual(t, ContentHash([]byte("x = 1\n")), ContentHash([]byte("x = 2\n")))
	assert.Len(t, ContentHash(nil), 64)

	assert.Equal(t, 0, LineCount(nil))
	assert.Equal(t, 1, LineCount([]byte("x")))
	assert.Equal(t, 2, LineCount([]byte("x\ny\n")))
	assert.Equal(t, 3, LineCount([]byte("x\ny\nz")))
}
