// Package resolve is the default go-to-definition oracle used by the
// indexer. It binds names lexically per module, follows imports through a
// set of search roots and answers attribute accesses on modules, classes and
// instance parameters. It performs no type inference beyond that.
package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/jward/pytrail/internal/index"
	"github.com/jward/pytrail/internal/syntax"
)

// DefaultCacheSize is the number of parsed modules kept in memory.
const DefaultCacheSize = 256

const maxImportDepth = 16

// Resolver implements index.Resolver. It is safe for concurrent use.
type Resolver struct {
	roots     []string
	cacheSize int
	logger    *slog.Logger

	modules *lru.Cache[string, *module]
	loads   singleflight.Group

	mu      sync.RWMutex
	overlay map[string][]byte
}

var _ index.Resolver = (*Resolver)(nil)

// Option configures a Resolver.
type Option func(*Resolver)

// WithSearchRoots sets the directories absolute imports are looked up in.
func WithSearchRoots(roots ...string) Option {
	return func(r *Resolver) {
		for _, root := range roots {
			r.roots = append(r.roots, canonical(root))
		}
	}
}

// WithCacheSize bounds the parsed module cache.
func WithCacheSize(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.cacheSize = n
		}
	}
}

// WithLogger sets the logger for load failures and recovered panics.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a Resolver.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		cacheSize: DefaultCacheSize,
		logger:    slog.Default(),
		overlay:   make(map[string][]byte),
	}
	for _, opt := range opts {
		opt(r)
	}
	cache, err := lru.New[string, *module](r.cacheSize)
	if err != nil {
		// Only returned for a non-positive size, which WithCacheSize rejects.
		panic(fmt.Sprintf("resolve: create cache: %v", err))
	}
	r.modules = cache
	return r
}

// Roots returns the configured search roots.
func (r *Resolver) Roots() []string {
	return append([]string(nil), r.roots...)
}

// AddSource overlays src for path. Overlaid sources take precedence over
// the filesystem, which lets snippets such as index.VirtualFilePath be
// resolved.
func (r *Resolver) AddSource(path string, src []byte) {
	key := canonical(path)
	r.mu.Lock()
	r.overlay[key] = src
	r.mu.Unlock()
	r.modules.Remove(key)
}

// RemoveSource drops an overlay added with AddSource.
func (r *Resolver) RemoveSource(path string) {
	key := canonical(path)
	r.mu.Lock()
	delete(r.overlay, key)
	r.mu.Unlock()
	r.modules.Remove(key)
}

// Invalidate evicts cached modules so that changed files are re-read.
func (r *Resolver) Invalidate(paths ...string) {
	for _, p := range paths {
		r.modules.Remove(canonical(p))
	}
}

// Tree returns the parsed tree of path, loading it if necessary. Sessions
// index the same tree the resolver answers from.
func (r *Resolver) Tree(ctx context.Context, path string) (*syntax.Tree, error) {
	m, err := r.load(ctx, path)
	if err != nil {
		return nil, err
	}
	if m.tree == nil {
		return nil, fmt.Errorf("resolve: %s is not a source file", path)
	}
	return m.tree, nil
}

// Definitions returns the go-to-definition candidates for the identifier
// starting at pos in path. Failures yield an empty list.
func (r *Resolver) Definitions(ctx context.Context, path string, pos syntax.Position) (defs []index.Definition) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("resolver panic", "path", path, "pos", pos.String(), "panic", rec)
			defs = nil
		}
	}()
	m, err := r.load(ctx, path)
	if err != nil || m.tree == nil {
		return nil
	}
	n := m.tree.NameAt(pos)
	if n == nil {
		return nil
	}
	q := &query{r: r, ctx: ctx, seen: make(map[*syntax.Node]bool)}
	return q.occurrence(m, n)
}

func canonical(path string) string {
	if path == index.VirtualFilePath {
		return path
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

func (r *Resolver) source(path string) ([]byte, bool, error) {
	r.mu.RLock()
	src, ok := r.overlay[path]
	r.mu.RUnlock()
	if ok {
		return src, true, nil
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, false, err
	}
	return src, false, nil
}

func (r *Resolver) exists(path string) bool {
	r.mu.RLock()
	_, ok := r.overlay[path]
	r.mu.RUnlock()
	if ok {
		return true
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// load returns the bound module for path, parsing it at most once per
// cache lifetime even under concurrent requests.
func (r *Resolver) load(ctx context.Context, path string) (*module, error) {
	key := canonical(path)
	if m, ok := r.modules.Get(key); ok {
		return m, nil
	}
	v, err, _ := r.loads.Do(key, func() (any, error) {
		if m, ok := r.modules.Get(key); ok {
			return m, nil
		}
		m, err := r.build(ctx, key)
		if err != nil {
			return nil, err
		}
		r.modules.Add(key, m)
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*module), nil
}

func (r *Resolver) build(ctx context.Context, path string) (*module, error) {
	name := r.moduleName(path)
	if isDir(path) {
		return newModule(path, name, nil), nil
	}
	src, _, err := r.source(path)
	if err != nil {
		return nil, fmt.Errorf("resolve: read %s: %w", path, err)
	}
	tree, err := syntax.Parse(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("resolve: %s: %w", path, err)
	}
	return newModule(path, name, tree), nil
}

func (r *Resolver) moduleName(path string) string {
	h, ok := index.ModuleHierarchy(path, index.SearchPath(path, r.roots))
	if !ok {
		return ""
	}
	return h.DisplayString()
}

// moduleRef locates a module found during import resolution.
type moduleRef struct {
	path     string // empty for external modules
	name     string
	external bool
}

// findModule locates dotted (relative to from when level > 0).
func (r *Resolver) findModule(from *module, dotted string, level int) (moduleRef, bool) {
	var bases []string
	if level > 0 {
		base := filepath.Dir(from.path)
		for i := 1; i < level; i++ {
			base = filepath.Dir(base)
		}
		if dotted == "" {
			return r.packageAt(base)
		}
		bases = []string{base}
	} else {
		if dotted == "" {
			return moduleRef{}, false
		}
		bases = index.SearchPath(from.path, r.roots)
		if from.path == index.VirtualFilePath {
			if wd, err := os.Getwd(); err == nil {
				bases = append(bases, wd)
			}
		}
	}

	rel := filepath.FromSlash(strings.ReplaceAll(dotted, ".", "/"))
	for _, base := range bases {
		cand := filepath.Join(base, rel)
		for _, f := range []string{
			filepath.Join(cand, "__init__.py"),
			filepath.Join(cand, "__init__.pyi"),
			cand + ".py",
			cand + ".pyi",
		} {
			if r.exists(f) {
				return moduleRef{path: f, name: r.nameOr(f, dotted)}, true
			}
		}
		if isDir(cand) {
			return moduleRef{path: cand, name: r.nameOr(cand, dotted)}, true
		}
	}

	if level == 0 {
		top, _, _ := strings.Cut(dotted, ".")
		if stdlibModules[top] {
			return moduleRef{name: dotted, external: true}, true
		}
	}
	return moduleRef{}, false
}

// submodule finds name inside the package pkg. Plain modules have no
// submodules.
func (r *Resolver) submodule(pkg *module, name string) (moduleRef, bool) {
	var dir string
	switch base := filepath.Base(pkg.path); {
	case base == "__init__.py" || base == "__init__.pyi":
		dir = filepath.Dir(pkg.path)
	case pkg.tree == nil:
		dir = pkg.path
	default:
		return moduleRef{}, false
	}
	cand := filepath.Join(dir, name)
	for _, f := range []string{
		filepath.Join(cand, "__init__.py"),
		filepath.Join(cand, "__init__.pyi"),
		cand + ".py",
		cand + ".pyi",
	} {
		if r.exists(f) {
			return moduleRef{path: f, name: r.moduleName(f)}, true
		}
	}
	if isDir(cand) {
		return moduleRef{path: cand, name: r.moduleName(cand)}, true
	}
	return moduleRef{}, false
}

func (r *Resolver) packageAt(dir string) (moduleRef, bool) {
	init := filepath.Join(dir, "__init__.py")
	if r.exists(init) {
		return moduleRef{path: init, name: r.moduleName(init)}, true
	}
	if isDir(dir) {
		return moduleRef{path: dir, name: r.moduleName(dir)}, true
	}
	return moduleRef{}, false
}

func (r *Resolver) nameOr(path, fallback string) string {
	if name := r.moduleName(path); name != "" {
		return name
	}
	return fallback
}
