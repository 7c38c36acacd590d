// Package index walks a parsed Python syntax tree and records its symbol
// graph into a Sink. Every name occurrence is resolved through a Resolver,
// given a stable hierarchical name and classified as a definition site or a
// typed reference. One Session indexes one file on one goroutine.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/jward/pytrail/internal/symbol"
	"github.com/jward/pytrail/internal/syntax"
)

// VirtualFilePath is the path under which in-memory snippets are indexed.
const VirtualFilePath = "virtual_file.py"

// Language is recorded for every indexed file.
const Language = "python"

const maxHierarchyDepth = 32

// Outcome is the single result of handling one name occurrence.
type Outcome int

const (
	// OutcomeSuppressed marks the name of a class or function at its own
	// definition.
	OutcomeSuppressed Outcome = iota
	// OutcomeQualifier marks a module or class used as a qualifier.
	OutcomeQualifier
	// OutcomeLocal marks a parameter or function-local variable.
	OutcomeLocal
	// OutcomeReference covers every record against a hierarchical symbol:
	// typed references and field or global variable definition sites.
	OutcomeReference
	// OutcomeUnresolved marks a reference to the unsolved sentinel.
	OutcomeUnresolved
)

var outcomeNames = [...]string{"suppressed", "qualifier", "local", "reference", "unresolved"}

func (o Outcome) String() string {
	if int(o) < len(outcomeNames) {
		return outcomeNames[o]
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Stats summarises one indexing session.
type Stats struct {
	Names        int
	Outcomes     map[Outcome]int
	Errors       int
	AtomicRanges int
}

// Count returns the number of occurrences with outcome o.
func (s Stats) Count(o Outcome) int {
	return s.Outcomes[o]
}

// Option configures a Session.
type Option func(*Session)

// WithSearchRoots adds directories that module names are computed against.
func WithSearchRoots(roots ...string) Option {
	return func(s *Session) {
		s.roots = append(s.roots, roots...)
	}
}

// WithLogger sets the logger used for traces and recovered resolver panics.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTrace logs every visited node at debug level.
func WithTrace(trace bool) Option {
	return func(s *Session) {
		s.trace = trace
	}
}

// ErrSessionUsed is returned when Index is called twice on one Session.
var ErrSessionUsed = errors.New("index: session already used")

// Session indexes a single file.
type Session struct {
	rec      *recorder
	resolver Resolver
	path     string
	roots    []string
	sysPath  []string
	logger   *slog.Logger
	trace    bool
	used     bool

	scopes   scopeStack
	stats    Stats
	memo     map[*syntax.Node]memoEntry
	visiting map[*syntax.Node]bool
}

type memoEntry struct {
	h  symbol.Hierarchy
	ok bool
}

// NewSession creates a session that records path into sink.
func NewSession(sink Sink, resolver Resolver, path string, opts ...Option) *Session {
	s := &Session{
		rec:      &recorder{sink: sink},
		resolver: resolver,
		path:     path,
		logger:   slog.Default(),
		stats:    Stats{Outcomes: make(map[Outcome]int)},
		memo:     make(map[*syntax.Node]memoEntry),
		visiting: make(map[*syntax.Node]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.sysPath = SearchPath(path, s.roots)
	return s
}

// Index records the file, seeds the file and module frames and walks tree.
// Sink failures stop the walk and are returned wrapped.
func (s *Session) Index(ctx context.Context, tree *syntax.Tree) error {
	if s.used {
		return ErrSessionUsed
	}
	s.used = true

	fileID := s.rec.file(s.path, Language)
	s.scopes.push(fileID, s.path, nil)

	module, ok := s.moduleHierarchy(s.path)
	if !ok {
		module = symbol.NewHierarchy(moduleStem(s.path))
	}
	moduleID := s.rec.symbol(module)
	s.rec.symbolKind(moduleID, symbol.KindModule)
	s.rec.explicit(moduleID)
	s.scopes.push(moduleID, module.DisplayString(), nil)

	if tree != nil {
		s.traverse(ctx, tree.Root, 0)
	}

	if d := s.scopes.depth(); d != 2 && s.rec.err == nil {
		s.logger.Warn("unbalanced scope stack", "path", s.path, "depth", d)
	}
	if s.rec.err != nil {
		return fmt.Errorf("index %s: %w", s.path, s.rec.err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("index %s: %w", s.path, err)
	}
	return nil
}

// FileID returns the id the sink assigned to the file.
func (s *Session) FileID() int64 {
	return s.rec.fileID
}

// Stats returns the outcome counts collected so far.
func (s *Session) Stats() Stats {
	out := s.stats
	out.Outcomes = make(map[Outcome]int, len(s.stats.Outcomes))
	for k, v := range s.stats.Outcomes {
		out.Outcomes[k] = v
	}
	return out
}

// Depth returns the current scope stack depth.
func (s *Session) Depth() int {
	return s.scopes.depth()
}

func (s *Session) count(o Outcome) {
	s.stats.Outcomes[o]++
}

// definitions queries the resolver for the identifier n in path. Panics are
// recovered and treated as an empty answer.
func (s *Session) definitions(ctx context.Context, path string, n *syntax.Node) (defs []Definition) {
	if n == nil || s.resolver == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("resolver panic", "path", path, "pos", n.Start.String(), "panic", r)
			defs = nil
		}
	}()
	return s.resolver.Definitions(ctx, path, n.Start)
}

// definitionPath returns the file a located definition lives in.
func (s *Session) definitionPath(def Definition) string {
	if def.ModulePath != "" {
		return def.ModulePath
	}
	return s.path
}

// SearchPath returns the roots module names are computed against: the
// package root of path first, then roots in reverse lexical order so that
// nested roots win over their parents.
func SearchPath(path string, roots []string) []string {
	out := []string{}
	if path != VirtualFilePath {
		out = append(out, packageRoot(path))
	}
	sorted := make([]string, 0, len(roots))
	for _, r := range roots {
		sorted = append(sorted, absPath(r))
	}
	sort.Sort(sort.Reverse(sort.StringSlice(sorted)))
	return append(out, sorted...)
}
