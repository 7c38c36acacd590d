package pytrail

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/pytrail/internal/index"
	"github.com/jward/pytrail/internal/store"
	"github.com/jward/pytrail/internal/symbol"
)

var fixtureProject = map[string]string{
	"pkg/__init__.py": "",
	"pkg/mod.py":      "class Thing:\n    pass\n\ndef run():\n    pass\n",
	"main.py": "from pkg.mod import Thing, run\n" +
		"\n" +
		"class Sub(Thing):\n" +
		"    pass\n" +
		"\n" +
		"def go():\n" +
		"    run()\n" +
		"\n" +
		"go()\n",
}

func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return dir
}

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	e, err := New(dbPath, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

// indexProject writes files and indexes all of them.
func indexProject(t *testing.T, files map[string]string, opts ...Option) (*Engine, string) {
	t.Helper()
	dir := writeProject(t, files)
	e := newTestEngine(t, append([]Option{WithSearchRoots(dir)}, opts...)...)
	var paths []string
	for rel := range files {
		paths = append(paths, filepath.Join(dir, filepath.FromSlash(rel)))
	}
	sort.Strings(paths)
	require.NoError(t, e.IndexFiles(context.Background(), paths))
	return e, dir
}

func symbolNamed(t *testing.T, e *Engine, display string) *Symbol {
	t.Helper()
	syms, err := e.Query().SymbolsByName(display)
	require.NoError(t, err)
	for _, s := range syms {
		if s.DisplayName == display {
			return s
		}
	}
	t.Fatalf("symbol %q not found", display)
	return nil
}

func displayNames(t *testing.T, e *Engine) []string {
	t.Helper()
	syms, err := e.Store().AllSymbols()
	require.NoError(t, err)
	var out []string
	for _, s := range syms {
		out = append(out, s.DisplayName+":"+string(s.Kind))
	}
	sort.Strings(out)
	return out
}

// =============================================================================
// Construction
// =============================================================================

func TestNew_CreatesStoreAndResolver(t *testing.T) {
	e := newTestEngine(t)
	require.NotNil(t, e.store)
	require.NotNil(t, e.resolver)
	require.NotNil(t, e.Store())
	require.NotNil(t, e.Query())
	assert.True(t, e.useParallel)
}

func TestNew_InvalidPath(t *testing.T) {
	_, err := New("/nonexistent/dir/db.sqlite")
	require.Error(t, err)
}

func TestNew_SchemaMismatch(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "old.db")
	s, err := store.NewStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	require.NoError(t, s.SetMetadata("schema_version", "0"))
	require.NoError(t, s.Close())

	_, err = New(dbPath)
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrSchemaVersion)
}

func TestOptions(t *testing.T) {
	e := newTestEngine(t,
		WithParallel(false), WithWorkers(3), WithExcludeDirs("build"),
		WithVerbose(true), WithForce(true), WithCacheSize(16),
	)
	assert.False(t, e.useParallel)
	assert.Equal(t, 3, e.numWorkers(10))
	assert.Equal(t, 2, e.numWorkers(2))
	assert.True(t, e.excludeDirs["build"])
	assert.True(t, e.verbose)
	assert.True(t, e.force)
}

// =============================================================================
// IndexFiles
// =============================================================================

func TestIndexFiles_UnsupportedFile(t *testing.T) {
	e := newTestEngine(t)
	tmp := filepath.Join(t.TempDir(), "readme.txt")
	require.NoError(t, os.WriteFile(tmp, []byte("hello"), 0o644))

	err := e.IndexFiles(context.Background(), []string{tmp})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedFile)

	f, err := e.Store().FileByPath(tmp)
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestIndexFiles_MissingFileDoesNotStopOthers(t *testing.T) {
	dir := writeProject(t, map[string]string{"a.py": "x = 1\n"})
	e := newTestEngine(t, WithSearchRoots(dir))

	err := e.IndexFiles(context.Background(), []string{
		filepath.Join(dir, "missing.py"),
		filepath.Join(dir, "a.py"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "indexing had 1 error(s)")

	f, err := e.Store().FileByPath(filepath.Join(dir, "a.py"))
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.True(t, f.Indexed)
}

func TestIndexFiles_Project(t *testing.T) {
	for _, parallel := range []bool{true, false} {
		name := "serial"
		if parallel {
			name = "parallel"
		}
		t.Run(name, func(t *testing.T) {
			e, dir := indexProject(t, fixtureProject, WithParallel(parallel))

			thing := symbolNamed(t, e, "pkg.mod.Thing")
			assert.Equal(t, symbol.KindClass, thing.Kind)
			assert.True(t, thing.Explicit())
			assert.Equal(t, symbol.KindModule, symbolNamed(t, e, "main").Kind)
			assert.Equal(t, symbol.KindFunction, symbolNamed(t, e, "main.go").Kind)

			f, err := e.Store().FileByPath(filepath.Join(dir, "main.py"))
			require.NoError(t, err)
			require.NotNil(t, f)
			assert.True(t, f.Indexed)
			assert.Equal(t, 9, f.LineCount)
			assert.Equal(t, index.Language, f.Language)

			runs, err := e.Store().Runs(0)
			require.NoError(t, err)
			require.Len(t, runs, 1)
			assert.Equal(t, 3, runs[0].Files)
			assert.Equal(t, 0, runs[0].Errors)
		})
	}
}

func TestIndexFiles_SerialAndParallelAgree(t *testing.T) {
	serial, _ := indexProject(t, fixtureProject, WithParallel(false))
	parallel, _ := indexProject(t, fixtureProject, WithParallel(true), WithWorkers(4))
	assert.Equal(t, displayNames(t, serial), displayNames(t, parallel))
}

func TestIndexFiles_SkipsUnchangedFiles(t *testing.T) {
	e, dir := indexProject(t, fixtureProject)
	before, err := e.Store().FileByPath(filepath.Join(dir, "main.py"))
	require.NoError(t, err)

	require.NoError(t, e.IndexFiles(context.Background(), []string{filepath.Join(dir, "main.py")}))

	after, err := e.Store().FileByPath(filepath.Join(dir, "main.py"))
	require.NoError(t, err)
	assert.Equal(t, before.LastIndexed, after.LastIndexed)

	runs, err := e.Store().Runs(0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	total := runs[0].Files + runs[1].Files
	assert.Equal(t, 3, total, "second run indexed nothing")
}

func TestIndexFiles_ReindexesChangedFile(t *testing.T) {
	e, dir := indexProject(t, fixtureProject)
	modPath := filepath.Join(dir, "pkg", "mod.py")
	run := symbolNamed(t, e, "pkg.mod.run")

	require.NoError(t, os.WriteFile(modPath, []byte("class Thing:\n    pass\n\ndef walk():\n    pass\n"), 0o644))
	require.NoError(t, e.IndexFiles(context.Background(), []string{modPath}))

	defs, err := e.Query().Definition(run.ID)
	require.NoError(t, err)
	assert.Empty(t, defs, "stale definition removed")

	walk := symbolNamed(t, e, "pkg.mod.walk")
	defs, err = e.Query().Definition(walk.ID)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, modPath, defs[0].Path)
	assert.Equal(t, 4, defs[0].Range.StartLine)

	// main.py points into mod.py and is queued for refresh.
	assert.Equal(t, []string{filepath.Join(dir, "main.py")}, e.PendingDependents())
	require.NoError(t, e.RefreshDependents(context.Background()))
	assert.Empty(t, e.PendingDependents())

	// main.py still calls run, which no longer exists.
	callers, err := e.Query().Callers(run.ID)
	require.NoError(t, err)
	assert.Empty(t, callers)
}

func TestIndexFiles_ForceReindexes(t *testing.T) {
	e, dir := indexProject(t, fixtureProject, WithForce(true))
	require.NoError(t, e.IndexFiles(context.Background(), []string{filepath.Join(dir, "main.py")}))

	runs, err := e.Store().Runs(0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, 4, runs[0].Files+runs[1].Files)

	// Re-indexing did not duplicate locations.
	sub := symbolNamed(t, e, "main.Sub")
	defs, err := e.Query().Definition(sub.ID)
	require.NoError(t, err)
	assert.Len(t, defs, 1)
}

func TestIndexFiles_CancelledContext(t *testing.T) {
	dir := writeProject(t, fixtureProject)
	e := newTestEngine(t, WithSearchRoots(dir))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := e.IndexFiles(ctx, []string{filepath.Join(dir, "main.py")})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	f, err := e.Store().FileByPath(filepath.Join(dir, "main.py"))
	require.NoError(t, err)
	if f != nil {
		assert.False(t, f.Indexed)
	}
}

func TestRemoveFile(t *testing.T) {
	e, dir := indexProject(t, fixtureProject)
	modPath := filepath.Join(dir, "pkg", "mod.py")
	thing := symbolNamed(t, e, "pkg.mod.Thing")

	require.NoError(t, os.Remove(modPath))
	require.NoError(t, e.RemoveFile(modPath))

	defs, err := e.Query().Definition(thing.ID)
	require.NoError(t, err)
	assert.Empty(t, defs)
	assert.Equal(t, []string{filepath.Join(dir, "main.py")}, e.PendingDependents())

	var orphans int
	require.NoError(t, e.Store().DB().QueryRow(`SELECT COUNT(*) FROM references_ r
		WHERE NOT EXISTS (SELECT 1 FROM reference_locations rl WHERE rl.reference_id = r.id)`).Scan(&orphans))
	assert.Zero(t, orphans)

	// Unknown files are ignored.
	require.NoError(t, e.RemoveFile(filepath.Join(dir, "never.py")))
}

// =============================================================================
// IndexDirectory & IndexSource
// =============================================================================

func TestIndexDirectory_WalkSkipsExcludedDirs(t *testing.T) {
	files := map[string]string{
		"app.py":                "x = 1\n",
		"lib/util.pyi":          "def f() -> int: ...\n",
		".hidden/secret.py":     "y = 1\n",
		"__pycache__/cached.py": "z = 1\n",
		"build/gen.py":          "w = 1\n",
		"notes.txt":             "not python\n",
	}
	dir := writeProject(t, files)
	e := newTestEngine(t, WithSearchRoots(dir), WithExcludeDirs("build"))

	paths, err := e.walkListFiles(dir)
	require.NoError(t, err)
	sort.Strings(paths)
	assert.Equal(t, []string{
		filepath.Join(dir, "app.py"),
		filepath.Join(dir, "lib", "util.pyi"),
	}, paths)

	require.NoError(t, e.IndexDirectory(context.Background(), dir))
	indexed, err := e.Query().Files()
	require.NoError(t, err)
	assert.Len(t, indexed, 2)
}

func TestIndexDirectory_NotADirectory(t *testing.T) {
	e := newTestEngine(t)
	f := filepath.Join(t.TempDir(), "a.py")
	require.NoError(t, os.WriteFile(f, []byte("x = 1\n"), 0o644))
	require.Error(t, e.IndexDirectory(context.Background(), f))
	require.Error(t, e.IndexDirectory(context.Background(), filepath.Join(t.TempDir(), "nope")))
}

func TestExcludedPath(t *testing.T) {
	e := newTestEngine(t, WithExcludeDirs("build"))
	assert.False(t, e.excludedPath("a.py"))
	assert.False(t, e.excludedPath("pkg/a.py"))
	assert.True(t, e.excludedPath("build/a.py"))
	assert.True(t, e.excludedPath("pkg/__pycache__/a.py"))
	assert.True(t, e.excludedPath(".venv/lib/a.py"))
}

func TestIndexSource_ReplacesPreviousSnippet(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.IndexSource(ctx, "def g():\n    pass\n\ng()\n"))
	g := symbolNamed(t, e, "virtual_file.g")
	callers, err := e.Query().Callers(g.ID)
	require.NoError(t, err)
	require.Len(t, callers, 1)
	assert.Equal(t, "virtual_file", callers[0].Symbol.DisplayName)

	require.NoError(t, e.IndexSource(ctx, "def h():\n    pass\n"))
	defs, err := e.Query().Definition(g.ID)
	require.NoError(t, err)
	assert.Empty(t, defs)
	callers, err = e.Query().Callers(g.ID)
	require.NoError(t, err)
	assert.Empty(t, callers)

	f, err := e.Store().FileByPath(index.VirtualFilePath)
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, 2, f.LineCount)
}

func TestIsPythonFile(t *testing.T) {
	assert.True(t, IsPythonFile("a.py"))
	assert.True(t, IsPythonFile("/x/b.pyi"))
	assert.False(t, IsPythonFile("c.pyc"))
	assert.False(t, IsPythonFile("Makefile"))
}
