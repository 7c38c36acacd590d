// Package runtime runs Risor scripts against a pytrail index. Scripts get
// tree-sitter host functions for Python sources and, when a store is
// attached, the symbol graph queries.
package runtime

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/importer"
	"github.com/risor-io/risor/object"

	"github.com/jward/pytrail"
	"github.com/jward/pytrail/internal/store"
)

// scriptExt is the extension import statements resolve to.
const scriptExt = ".risor"

// Runtime evaluates Risor scripts with the pytrail globals installed.
type Runtime struct {
	store   *store.Store
	query   *pytrail.QueryBuilder
	scripts scriptSource
	sources *treeSources
	logger  *slog.Logger
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithScriptsDir resolves relative script paths and import statements
// against dir.
func WithScriptsDir(dir string) Option {
	return func(r *Runtime) {
		r.scripts = dirScripts(dir)
	}
}

// WithFS loads scripts and imported modules from fsys instead of disk.
func WithFS(fsys fs.FS) Option {
	return func(r *Runtime) {
		r.scripts = fsScripts{fsys}
	}
}

// WithLogger sets the logger behind the script "log" global.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runtime) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a Runtime over s. A nil store leaves only the parsing host
// functions and log available.
func New(s *store.Store, opts ...Option) *Runtime {
	r := &Runtime{
		store:   s,
		scripts: dirScripts(""),
		sources: newTreeSources(),
		logger:  slog.Default(),
	}
	if s != nil {
		r.query = pytrail.NewQueryBuilder(s)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunFile loads the script at path and runs it. globals are added to, and
// override, the standard ones.
func (r *Runtime) RunFile(ctx context.Context, path string, globals map[string]any) error {
	src, err := r.Load(path)
	if err != nil {
		return err
	}
	return r.eval(ctx, src, path, globals)
}

// Run evaluates Risor source code.
func (r *Runtime) Run(ctx context.Context, source string, globals map[string]any) error {
	return r.eval(ctx, source, "<inline>", globals)
}

// Load returns the source of the script at path.
func (r *Runtime) Load(path string) (string, error) {
	data, err := r.scripts.read(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (r *Runtime) eval(ctx context.Context, source, label string, extra map[string]any) error {
	globals := r.globals(extra)

	opts := make([]risor.Option, 0, len(globals)+1)
	for name, val := range globals {
		opts = append(opts, risor.WithGlobal(name, val))
	}

	// Imported modules are compiled against the same global names, Risor's
	// builtins included.
	if imp := r.scripts.importer(risor.NewConfig(opts...).GlobalNames()); imp != nil {
		opts = append(opts, risor.WithImporter(imp))
	}

	r.logger.Debug("running script", "script", label)
	if _, err := risor.Eval(ctx, source, opts...); err != nil {
		return fmt.Errorf("runtime: script %s: %w", label, err)
	}
	return nil
}

// globals assembles the host functions visible to scripts.
func (r *Runtime) globals(extra map[string]any) map[string]any {
	g := map[string]any{
		"parse":      makeParseFn(r.sources),
		"parse_src":  makeParseSrcFn(r.sources),
		"node_text":  makeNodeTextFn(r.sources),
		"node_child": makeNodeChildFn(),
		"query":      makeQueryFn(r.sources),
		"log":        mustProxy(&logObject{logger: r.logger.With("component", "script")}),
	}

	if r.query != nil {
		// Risor cannot construct Go struct pointers, so these return maps
		// built Go-side.
		g["symbols_by_name"] = makeSymbolsByNameFn(r.query)
		g["search_symbols"] = makeSearchSymbolsFn(r.query)
		g["symbol"] = makeSymbolFn(r.query)
		g["references_to"] = makeReferencesToFn(r.query)
		g["references_from"] = makeReferencesFromFn(r.query)
		g["callers"] = makeEdgesFn("callers", r.query.Callers)
		g["callees"] = makeEdgesFn("callees", r.query.Callees)
		g["subclasses"] = makeEdgesFn("subclasses", r.query.Subclasses)
		g["superclasses"] = makeEdgesFn("superclasses", r.query.Superclasses)
		g["files"] = makeFilesFn(r.query)
		g["file_errors"] = makeFileErrorsFn(r.query)
		g["db_query"] = makeDBQueryFn(r.store)
	}

	for k, v := range extra {
		g[k] = v
	}
	return g
}

func mustProxy(v any) object.Object {
	p, err := object.NewProxy(v)
	if err != nil {
		panic(fmt.Sprintf("runtime: proxy %T: %v", v, err))
	}
	return p
}

// scriptSource locates script files and the modules they import.
type scriptSource interface {
	read(path string) ([]byte, error)
	importer(globalNames []string) importer.Importer
}

// dirScripts reads from disk. Relative paths are taken from the directory
// itself when it is set, and from the working directory otherwise.
type dirScripts string

func (d dirScripts) read(path string) ([]byte, error) {
	full := path
	if !filepath.IsAbs(path) && d != "" {
		full = filepath.Join(string(d), path)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("runtime: read script %s: %w", full, err)
	}
	return data, nil
}

func (d dirScripts) importer(globalNames []string) importer.Importer {
	if d == "" {
		return nil
	}
	return importer.NewLocalImporter(importer.LocalImporterOptions{
		GlobalNames: globalNames,
		SourceDir:   string(d),
		Extensions:  []string{scriptExt},
	})
}

// fsScripts reads from an fs.FS, which takes unrooted slash paths.
type fsScripts struct {
	fsys fs.FS
}

func (f fsScripts) read(path string) ([]byte, error) {
	name := strings.TrimPrefix(filepath.ToSlash(path), "/")
	data, err := fs.ReadFile(f.fsys, name)
	if err != nil {
		return nil, fmt.Errorf("runtime: read script %s from fs: %w", name, err)
	}
	return data, nil
}

func (f fsScripts) importer(globalNames []string) importer.Importer {
	return importer.NewFSImporter(importer.FSImporterOptions{
		GlobalNames: globalNames,
		SourceFS:    f.fsys,
		Extensions:  []string{scriptExt},
	})
}
