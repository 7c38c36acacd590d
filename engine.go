package pytrail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/jward/pytrail/internal/index"
	"github.com/jward/pytrail/internal/resolve"
	"github.com/jward/pytrail/internal/store"
)

// ErrUnsupportedFile is returned for paths that are not Python sources.
var ErrUnsupportedFile = errors.New("pytrail: unsupported file")

// Engine orchestrates the pytrail pipeline: file discovery, change
// detection, per-file indexing sessions, and query access.
type Engine struct {
	store    *store.Store
	resolver *resolve.Resolver
	logger   *slog.Logger

	roots       []string
	excludeDirs map[string]bool
	cacheSize   int
	workers     int
	verbose     bool
	force       bool

	// useParallel enables the parallel indexing pipeline.
	useParallel bool

	// dependents accumulates files whose references point into files that
	// changed since the last RefreshDependents.
	dependents map[string]bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithSearchRoots sets the directories module names and absolute imports
// are computed against.
func WithSearchRoots(roots ...string) Option {
	return func(e *Engine) {
		for _, r := range roots {
			if abs, err := filepath.Abs(r); err == nil {
				r = abs
			}
			e.roots = append(e.roots, r)
		}
	}
}

// WithExcludeDirs adds directory base names skipped by IndexDirectory.
func WithExcludeDirs(names ...string) Option {
	return func(e *Engine) {
		for _, n := range names {
			e.excludeDirs[n] = true
		}
	}
}

// WithParallel controls parallel indexing. When true (default), IndexFiles
// uses a worker pool of sessions, each writing into its own batch, with a
// single goroutine committing batches to SQLite. Set to false for serial
// mode.
func WithParallel(parallel bool) Option {
	return func(e *Engine) {
		e.useParallel = parallel
	}
}

// WithWorkers bounds the worker pool. Zero means runtime.NumCPU().
func WithWorkers(n int) Option {
	return func(e *Engine) {
		e.workers = n
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithCacheSize bounds the resolver's parsed module cache.
func WithCacheSize(n int) Option {
	return func(e *Engine) {
		e.cacheSize = n
	}
}

// WithVerbose makes sessions log every visited node at debug level.
func WithVerbose(verbose bool) Option {
	return func(e *Engine) {
		e.verbose = verbose
	}
}

// WithForce re-indexes files even when their content hash is unchanged.
func WithForce(force bool) Option {
	return func(e *Engine) {
		e.force = force
	}
}

// New creates an Engine backed by a SQLite database at dbPath. A database
// written by a different schema version is rejected with
// store.ErrSchemaVersion.
func New(dbPath string, opts ...Option) (*Engine, error) {
	s, err := store.NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("pytrail: create store: %w", err)
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("pytrail: migrate: %w", err)
	}
	if err := s.CheckSchemaVersion(); err != nil {
		s.Close()
		return nil, fmt.Errorf("pytrail: %w", err)
	}

	e := &Engine{
		store:       s,
		logger:      slog.Default(),
		excludeDirs: make(map[string]bool),
		useParallel: true, // default to parallel indexing
		dependents:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.resolver = resolve.New(
		resolve.WithSearchRoots(e.roots...),
		resolve.WithCacheSize(e.cacheSize),
		resolve.WithLogger(e.logger),
	)
	return e, nil
}

// Close releases the Engine's database resources.
func (e *Engine) Close() error {
	return e.store.Close()
}

// Store returns the underlying Store for direct access.
func (e *Engine) Store() *Store {
	return e.store
}

// Query returns a new QueryBuilder wrapping the Store.
func (e *Engine) Query() *QueryBuilder {
	return NewQueryBuilder(e.store)
}

// IsPythonFile reports whether path has a Python source extension.
func IsPythonFile(path string) bool {
	switch filepath.Ext(path) {
	case ".py", ".pyi":
		return true
	}
	return false
}

func (e *Engine) sessionOptions() []index.Option {
	return []index.Option{
		index.WithSearchRoots(e.roots...),
		index.WithLogger(e.logger),
		index.WithTrace(e.verbose),
	}
}

func (e *Engine) numWorkers(items int) int {
	n := e.workers
	if n <= 0 {
		n = runtime.NumCPU()
	}
	return max(min(n, items), 1)
}

// IndexFiles indexes the given file paths. When WithParallel is enabled,
// uses a worker pool for concurrent indexing with batched SQLite writes.
// Otherwise falls back to the serial path.
//
// For each file:
//  1. Reject non-Python paths with ErrUnsupportedFile
//  2. Skip unchanged files (same content hash)
//  3. Note dependent files, then delete the file's stale data
//  4. Index the resolver's tree of the file in a session
//  5. Stamp the file with its new hash
//
// Errors on individual files are collected; processing continues. Every
// call is recorded as an index run.
func (e *Engine) IndexFiles(ctx context.Context, paths []string) error {
	return e.indexFiles(ctx, paths, e.force)
}

func (e *Engine) indexFiles(ctx context.Context, paths []string, force bool) error {
	run, err := e.store.BeginRun()
	if err != nil {
		return fmt.Errorf("pytrail: %w", err)
	}

	var indexed int
	var errs []error
	if e.useParallel {
		indexed, errs = e.indexFilesParallel(ctx, paths, force)
	} else {
		indexed, errs = e.indexFilesSerial(ctx, paths, force)
	}

	if indexed > 0 {
		if err := e.prune(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := e.store.FinishRun(run, indexed, len(errs)); err != nil {
		errs = append(errs, err)
	}
	e.logger.Info("index run finished", "run", run.ID, "files", indexed, "errors", len(errs))
	if len(errs) > 0 {
		return fmt.Errorf("indexing had %d error(s): %w", len(errs), errs[0])
	}
	return nil
}

func (e *Engine) indexFilesSerial(ctx context.Context, paths []string, force bool) (int, []error) {
	var errs []error
	var items []workItem
	for _, path := range paths {
		item, skip, err := e.prepareFile(path, force)
		if err != nil {
			errs = append(errs, fmt.Errorf("prepare %s: %w", path, err))
			continue
		}
		if !skip {
			items = append(items, item)
		}
	}
	e.invalidate(items)

	indexed := 0
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := e.indexFile(ctx, item, e.store); err != nil {
			errs = append(errs, fmt.Errorf("index %s: %w", item.path, err))
			continue
		}
		if err := e.store.MarkFileIndexed(item.path, item.hash, item.lineCount); err != nil {
			errs = append(errs, err)
			continue
		}
		indexed++
	}
	return indexed, errs
}

// indexFile runs one session over the resolver's tree of item.path.
func (e *Engine) indexFile(ctx context.Context, item workItem, sink store.DataStore) error {
	tree, err := e.resolver.Tree(ctx, item.path)
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	sess := index.NewSession(sink, e.resolver, item.path, e.sessionOptions()...)
	if err := sess.Index(ctx, tree); err != nil {
		return err
	}
	stats := sess.Stats()
	e.logger.Debug("indexed file",
		"path", item.path,
		"names", stats.Names,
		"references", stats.Count(index.OutcomeReference),
		"unresolved", stats.Count(index.OutcomeUnresolved),
		"errors", stats.Errors,
	)
	return nil
}

// invalidate evicts the resolver's cached copies of changed files before
// any session asks about them.
func (e *Engine) invalidate(items []workItem) {
	paths := make([]string, 0, len(items))
	for _, item := range items {
		paths = append(paths, item.path)
	}
	e.resolver.Invalidate(paths...)
}

// IndexSource indexes an in-memory snippet as index.VirtualFilePath,
// replacing whatever the previous snippet recorded.
func (e *Engine) IndexSource(ctx context.Context, code string) error {
	src := []byte(code)
	existing, err := e.store.FileByPath(index.VirtualFilePath)
	if err != nil {
		return fmt.Errorf("pytrail: %w", err)
	}
	if existing != nil {
		if err := e.store.DeleteFileData(existing.ID); err != nil {
			return fmt.Errorf("pytrail: %w", err)
		}
	}
	e.resolver.AddSource(index.VirtualFilePath, src)
	item := workItem{
		path:      index.VirtualFilePath,
		hash:      store.ContentHash(src),
		lineCount: store.LineCount(src),
	}
	if err := e.indexFile(ctx, item, e.store); err != nil {
		return fmt.Errorf("pytrail: %w", err)
	}
	return e.store.MarkFileIndexed(item.path, item.hash, item.lineCount)
}

// PendingDependents returns the files queued by RefreshDependents, sorted.
func (e *Engine) PendingDependents() []string {
	out := make([]string, 0, len(e.dependents))
	for p := range e.dependents {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// RefreshDependents re-indexes files whose references point at symbols of
// files that changed since the previous call. Their own content is usually
// unchanged, so the hash check is bypassed.
func (e *Engine) RefreshDependents(ctx context.Context) error {
	paths := e.PendingDependents()
	e.dependents = make(map[string]bool)
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return e.indexFiles(ctx, existing, true)
}

// RemoveFile drops the indexed data of a deleted file and queues its
// dependents.
func (e *Engine) RemoveFile(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("pytrail: %w", err)
	}
	f, err := e.store.FileByPath(abs)
	if err != nil || f == nil {
		return err
	}
	if err := e.queueDependents(f); err != nil {
		return err
	}
	e.resolver.Invalidate(abs)
	if err := e.store.DeleteFileData(f.ID); err != nil {
		return err
	}
	return e.prune()
}

// prune drops references and local symbols left without any location by
// deleted or re-indexed files.
func (e *Engine) prune() error {
	n, err := e.store.PruneOrphans()
	if err != nil {
		return fmt.Errorf("pytrail: prune: %w", err)
	}
	if n > 0 {
		e.logger.Debug("pruned orphans", "rows", n)
	}
	return nil
}

func (e *Engine) queueDependents(f *store.File) error {
	deps, err := e.store.DependentFiles(f.ID)
	if err != nil {
		return err
	}
	for _, d := range deps {
		if d.Path != index.VirtualFilePath {
			e.dependents[d.Path] = true
		}
	}
	return nil
}

// skipDirs are directories excluded from indexing.
var skipDirs = map[string]bool{
	"__pycache__":   true,
	"venv":          true,
	"site-packages": true,
	"node_modules":  true,
}

func (e *Engine) skipDir(name string) bool {
	return strings.HasPrefix(name, ".") || skipDirs[name] || e.excludeDirs[name]
}

// SkipsDir reports whether IndexDirectory ignores directories named name.
func (e *Engine) SkipsDir(name string) bool {
	return e.skipDir(name)
}

// IndexDirectory walks root and indexes all Python files. If root is inside
// a git repository, uses git ls-files to respect .gitignore. Falls back to
// a filesystem walk (skipping hidden dirs, __pycache__, virtualenvs and
// configured directories) if git is unavailable.
func (e *Engine) IndexDirectory(ctx context.Context, root string) error {
	root, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("pytrail: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("pytrail: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("pytrail: %s is not a directory", root)
	}
	paths, err := e.gitListFiles(root)
	if err != nil {
		// Not a git repo or git not available, fall back to walk.
		e.logger.Debug("git ls-files unavailable, walking", "root", root, "err", err)
		paths, err = e.walkListFiles(root)
		if err != nil {
			return err
		}
	}
	return e.IndexFiles(ctx, paths)
}

// gitListFiles uses git ls-files to discover tracked and untracked (but not
// ignored) Python files under root.
func (e *Engine) gitListFiles(root string) ([]string, error) {
	// --cached: tracked files, --others: untracked files,
	// --exclude-standard: respect .gitignore, .git/info/exclude, global excludes.
	cmd := exec.Command("git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git ls-files: %w", err)
	}

	var paths []string
	for _, line := range strings.Split(stdout.String(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !IsPythonFile(line) || e.excludedPath(line) {
			continue
		}
		paths = append(paths, filepath.Join(root, line))
	}
	return paths, nil
}

// excludedPath reports whether any directory of a root-relative path is
// skipped.
func (e *Engine) excludedPath(rel string) bool {
	dirs := strings.Split(filepath.ToSlash(filepath.Dir(rel)), "/")
	for _, d := range dirs {
		if d != "." && e.skipDir(d) {
			return true
		}
	}
	return false
}

// walkListFiles discovers files by walking the filesystem, used as a
// fallback when git is not available.
func (e *Engine) walkListFiles(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && e.skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if IsPythonFile(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory: %w", err)
	}
	return paths, nil
}
