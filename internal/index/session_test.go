package index_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/pytrail/internal/index"
	"github.com/jward/pytrail/internal/resolve"
	"github.com/jward/pytrail/internal/symbol"
	"github.com/jward/pytrail/internal/syntax"
)

// ===== In-memory sink =====

type symbolLoc struct {
	Symbol string
	Range  symbol.Range
}

type refRec struct {
	Context string
	Target  string
	Kind    symbol.ReferenceKind
	Range   symbol.Range
}

type localRec struct {
	Name  string
	Range symbol.Range
}

type errRec struct {
	Message string
	Fatal   bool
	Range   symbol.Range
}

type records struct {
	Files      []string
	Symbols    []string
	Kinds      map[string]symbol.Kind
	Explicit   map[string]bool
	Locations  []symbolLoc
	Scopes     []symbolLoc
	Qualifiers []symbolLoc
	Refs       []refRec
	Locals     []localRec
	Atomic     []symbol.Range
	Errors     []errRec
}

type memSink struct {
	ids      map[string]int64
	names    []string
	locals   []string
	pending  map[int64]refRec
	nextRef  int64
	calls    int
	out      records
	failOn   string
	failErr  error
	failedAt int
}

func newMemSink() *memSink {
	return &memSink{
		ids:     make(map[string]int64),
		pending: make(map[int64]refRec),
		out: records{
			Kinds:    make(map[string]symbol.Kind),
			Explicit: make(map[string]bool),
		},
	}
}

var errSinkBroken = errors.New("sink broken")

func (m *memSink) call(op string) error {
	m.calls++
	if m.failedAt > 0 {
		return errSinkBroken
	}
	if m.failOn != "" && m.failOn == op {
		m.failedAt = m.calls
		return m.failErr
	}
	return nil
}

func (m *memSink) name(id int64) string {
	if id <= 0 || int(id) > len(m.names) {
		return ""
	}
	return m.names[id-1]
}

func (m *memSink) RecordFile(path, language string) (int64, error) {
	if err := m.call("RecordFile"); err != nil {
		return 0, err
	}
	m.out.Files = append(m.out.Files, path+":"+language)
	return int64(len(m.out.Files)), nil
}

func (m *memSink) RecordSymbol(h symbol.Hierarchy) (int64, error) {
	if err := m.call("RecordSymbol"); err != nil {
		return 0, err
	}
	key := h.Serialize()
	if id, ok := m.ids[key]; ok {
		return id, nil
	}
	m.names = append(m.names, h.DisplayString())
	id := int64(len(m.names))
	m.ids[key] = id
	m.out.Symbols = append(m.out.Symbols, h.DisplayString())
	return id, nil
}

func (m *memSink) RecordSymbolKind(id int64, kind symbol.Kind) error {
	if err := m.call("RecordSymbolKind"); err != nil {
		return err
	}
	name := m.name(id)
	if cur, ok := m.out.Kinds[name]; !ok || kind.Rank() > cur.Rank() {
		m.out.Kinds[name] = kind
	}
	return nil
}

func (m *memSink) RecordSymbolDefinitionKind(id int64, kind symbol.DefinitionKind) error {
	if err := m.call("RecordSymbolDefinitionKind"); err != nil {
		return err
	}
	if kind == symbol.DefinitionExplicit {
		m.out.Explicit[m.name(id)] = true
	}
	return nil
}

func (m *memSink) RecordSymbolLocation(id, fileID int64, r symbol.Range) error {
	if err := m.call("RecordSymbolLocation"); err != nil {
		return err
	}
	m.out.Locations = append(m.out.Locations, symbolLoc{m.name(id), r})
	return nil
}

func (m *memSink) RecordSymbolScopeLocation(id, fileID int64, r symbol.Range) error {
	if err := m.call("RecordSymbolScopeLocation"); err != nil {
		return err
	}
	m.out.Scopes = append(m.out.Scopes, symbolLoc{m.name(id), r})
	return nil
}

func (m *memSink) RecordReference(contextID, targetID int64, kind symbol.ReferenceKind) (int64, error) {
	if err := m.call("RecordReference"); err != nil {
		return 0, err
	}
	m.nextRef++
	m.pending[m.nextRef] = refRec{Context: m.name(contextID), Target: m.name(targetID), Kind: kind}
	return m.nextRef, nil
}

func (m *memSink) RecordReferenceLocation(refID, fileID int64, r symbol.Range) error {
	if err := m.call("RecordReferenceLocation"); err != nil {
		return err
	}
	ref := m.pending[refID]
	ref.Range = r
	m.out.Refs = append(m.out.Refs, ref)
	return nil
}

func (m *memSink) RecordQualifierLocation(id, fileID int64, r symbol.Range) error {
	if err := m.call("RecordQualifierLocation"); err != nil {
		return err
	}
	m.out.Qualifiers = append(m.out.Qualifiers, symbolLoc{m.name(id), r})
	return nil
}

func (m *memSink) RecordLocalSymbol(name string) (int64, error) {
	if err := m.call("RecordLocalSymbol"); err != nil {
		return 0, err
	}
	for i, n := range m.locals {
		if n == name {
			return int64(i + 1), nil
		}
	}
	m.locals = append(m.locals, name)
	return int64(len(m.locals)), nil
}

func (m *memSink) RecordLocalSymbolLocation(id, fileID int64, r symbol.Range) error {
	if err := m.call("RecordLocalSymbolLocation"); err != nil {
		return err
	}
	m.out.Locals = append(m.out.Locals, localRec{m.locals[id-1], r})
	return nil
}

func (m *memSink) RecordAtomicSourceRange(fileID int64, r symbol.Range) error {
	if err := m.call("RecordAtomicSourceRange"); err != nil {
		return err
	}
	m.out.Atomic = append(m.out.Atomic, r)
	return nil
}

func (m *memSink) RecordError(message string, fatal bool, fileID int64, r symbol.Range) error {
	if err := m.call("RecordError"); err != nil {
		return err
	}
	m.out.Errors = append(m.out.Errors, errRec{message, fatal, r})
	return nil
}

func (m *memSink) refsTo(target string) []refRec {
	var out []refRec
	for _, r := range m.out.Refs {
		if r.Target == target {
			out = append(out, r)
		}
	}
	return out
}

func refKinds(refs []refRec) []symbol.ReferenceKind {
	out := make([]symbol.ReferenceKind, 0, len(refs))
	for _, r := range refs {
		out = append(out, r.Kind)
	}
	return out
}

func (m *memSink) qualifiersOf(name string) int {
	n := 0
	for _, q := range m.out.Qualifiers {
		if q.Symbol == name {
			n++
		}
	}
	return n
}

func (m *memSink) localCount(name string) int {
	n := 0
	for _, l := range m.out.Locals {
		if l.Name == name {
			n++
		}
	}
	return n
}

// ===== Helpers =====

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return dir
}

type indexed struct {
	sink    *memSink
	session *index.Session
	path    string
	dir     string
}

// indexFile indexes rel inside a temp tree with the real resolver.
func indexFile(t *testing.T, files map[string]string, rel string) indexed {
	t.Helper()
	dir := writeTree(t, files)
	path := filepath.Join(dir, filepath.FromSlash(rel))
	r := resolve.New(resolve.WithSearchRoots(dir))
	tree, err := r.Tree(context.Background(), path)
	require.NoError(t, err)

	sink := newMemSink()
	s := index.NewSession(sink, r, path, index.WithSearchRoots(dir))
	require.NoError(t, s.Index(context.Background(), tree))
	return indexed{sink: sink, session: s, path: path, dir: dir}
}

func indexSnippet(t *testing.T, src string) indexed {
	t.Helper()
	return indexFile(t, map[string]string{"m.py": src}, "m.py")
}

// assertComplete checks that every name occurrence got exactly one outcome
// and that the scope stack is back at the file and module frames.
func assertComplete(t *testing.T, s *index.Session) {
	t.Helper()
	st := s.Stats()
	total := 0
	for _, o := range []index.Outcome{
		index.OutcomeSuppressed, index.OutcomeQualifier, index.OutcomeLocal,
		index.OutcomeReference, index.OutcomeUnresolved,
	} {
		total += st.Count(o)
	}
	assert.Equal(t, st.Names, total, "outcomes %v", st.Outcomes)
	assert.Equal(t, 2, s.Depth())
}

// ===== Definitions and scopes =====

func TestSession_ModuleAndFile(t *testing.T) {
	t.Parallel()
	got := indexSnippet(t, "")

	require.Len(t, got.sink.out.Files, 1)
	assert.Equal(t, got.path+":python", got.sink.out.Files[0])
	assert.Equal(t, int64(1), got.session.FileID())
	assert.Equal(t, symbol.KindModule, got.sink.out.Kinds["m"])
	assert.True(t, got.sink.out.Explicit["m"])
	assertComplete(t, got.session)
}

func TestSession_ClassAndMethod(t *testing.T) {
	t.Parallel()
	got := indexSnippet(t, "class Foo:\n    def bar(self):\n        return self\n")
	out := got.sink.out

	assert.Equal(t, symbol.KindClass, out.Kinds["m.Foo"])
	assert.Equal(t, symbol.KindFunction, out.Kinds["m.Foo.bar"])
	assert.True(t, out.Explicit["m.Foo"])
	assert.True(t, out.Explicit["m.Foo.bar"])

	assert.Contains(t, out.Locations, symbolLoc{"m.Foo", symbol.Range{StartLine: 1, StartColumn: 7, EndLine: 1, EndColumn: 9}})
	require.Len(t, out.Scopes, 2)
	assert.Equal(t, "m.Foo", out.Scopes[0].Symbol)
	assert.Equal(t, 1, out.Scopes[0].Range.StartLine)
	assert.Equal(t, 3, out.Scopes[0].Range.EndLine)

	// Names at their own definition produce nothing.
	st := got.session.Stats()
	assert.Equal(t, 2, st.Count(index.OutcomeSuppressed))
	assert.Empty(t, got.sink.refsTo("m.Foo"))
	assert.Empty(t, got.sink.refsTo("m.Foo.bar"))

	assert.Equal(t, 2, got.sink.localCount("m.Foo.bar<self>"))
	assertComplete(t, got.session)
}

func TestSession_SelfAttributeBecomesClassField(t *testing.T) {
	t.Parallel()
	src := "class Counter:\n" +
		"    def __init__(self):\n" +
		"        self.count = 0\n" +
		"    def inc(self):\n" +
		"        self.count += 1\n" +
		"        return self.count\n"
	got := indexSnippet(t, src)
	out := got.sink.out

	assert.Equal(t, symbol.KindField, out.Kinds["m.Counter.count"])
	assert.True(t, out.Explicit["m.Counter.count"])
	assert.Contains(t, out.Locations, symbolLoc{"m.Counter.count", symbol.Range{StartLine: 3, StartColumn: 14, EndLine: 3, EndColumn: 18}})

	refs := got.sink.refsTo("m.Counter.count")
	require.Len(t, refs, 2)
	for _, r := range refs {
		assert.Equal(t, symbol.ReferenceUsage, r.Kind)
		assert.Equal(t, "m.Counter.inc", r.Context)
	}
	for _, name := range out.Symbols {
		assert.NotContains(t, name, "self")
	}
	assertComplete(t, got.session)
}

func TestSession_ClassBodyFieldAndBuiltinCall(t *testing.T) {
	t.Parallel()
	got := indexSnippet(t, "class C:\n    x = 1\n\nprint(C.x)\n")
	out := got.sink.out

	assert.Equal(t, symbol.KindField, out.Kinds["m.C.x"])
	assert.True(t, out.Explicit["m.C.x"])
	assert.Equal(t, []symbol.ReferenceKind{symbol.ReferenceUsage}, refKinds(got.sink.refsTo("m.C.x")))
	assert.Equal(t, 1, got.sink.qualifiersOf("m.C"))

	calls := got.sink.refsTo("builtin.print")
	require.Len(t, calls, 1)
	assert.Equal(t, symbol.ReferenceCall, calls[0].Kind)
	assert.Equal(t, "m", calls[0].Context)
	assertComplete(t, got.session)
}

func TestSession_LocalsAndParameters(t *testing.T) {
	t.Parallel()
	got := indexSnippet(t, "def f(a):\n    b = a\n    return b\n")

	assert.Equal(t, 2, got.sink.localCount("m.f<a>"))
	assert.Equal(t, 2, got.sink.localCount("m.f<b>"))
	assert.NotContains(t, got.sink.out.Symbols, "m.f.b")
	assert.Equal(t, 4, got.session.Stats().Count(index.OutcomeLocal))
	assertComplete(t, got.session)
}

func TestSession_GlobalVariable(t *testing.T) {
	t.Parallel()
	got := indexSnippet(t, "LIMIT = 10\n\ndef f():\n    return LIMIT\n")
	out := got.sink.out

	assert.Equal(t, symbol.KindGlobalVariable, out.Kinds["m.LIMIT"])
	assert.True(t, out.Explicit["m.LIMIT"])
	refs := got.sink.refsTo("m.LIMIT")
	require.Len(t, refs, 1)
	assert.Equal(t, symbol.ReferenceUsage, refs[0].Kind)
	assert.Equal(t, "m.f", refs[0].Context)
	assertComplete(t, got.session)
}

// ===== References =====

func TestSession_CallVersusPlainUse(t *testing.T) {
	t.Parallel()
	got := indexSnippet(t, "def helper():\n    pass\n\nhelper()\nf = helper\n")

	refs := got.sink.refsTo("m.helper")
	require.Len(t, refs, 1)
	assert.Equal(t, symbol.ReferenceCall, refs[0].Kind)
	assert.Equal(t, 4, refs[0].Range.StartLine)

	// A function that is neither called nor imported falls through.
	unsolved := got.sink.refsTo(symbol.Unsolved().DisplayString())
	require.Len(t, unsolved, 1)
	assert.Equal(t, 5, unsolved[0].Range.StartLine)
	assert.Equal(t, symbol.KindGlobalVariable, got.sink.out.Kinds["m.f"])
	assertComplete(t, got.session)
}

func TestSession_InheritanceAndTypeUsage(t *testing.T) {
	t.Parallel()
	got := indexSnippet(t, "class Base:\n    pass\n\nclass Child(Base):\n    pass\n\nb = Base\n")

	refs := got.sink.refsTo("m.Base")
	require.Len(t, refs, 2)
	assert.Equal(t, symbol.ReferenceInheritance, refs[0].Kind)
	assert.Equal(t, "m.Child", refs[0].Context)
	assert.Equal(t, symbol.ReferenceTypeUsage, refs[1].Kind)
	assertComplete(t, got.session)
}

func TestSession_Imports(t *testing.T) {
	t.Parallel()
	main := "import pkg.mod\n" +
		"from pkg.mod import Thing, run, VALUE\n" +
		"import os\n" +
		"\n" +
		"class Sub(Thing):\n" +
		"    pass\n" +
		"\n" +
		"run()\n" +
		"pkg.mod.run()\n" +
		"os.getcwd()\n"
	got := indexFile(t, map[string]string{
		"pkg/__init__.py": "",
		"pkg/mod.py":      "class Thing:\n    pass\n\ndef run():\n    pass\n\nVALUE = 1\n",
		"main.py":         main,
	}, "main.py")
	sink := got.sink

	assert.Equal(t, symbol.KindModule, sink.out.Kinds["main"])
	assert.ElementsMatch(t,
		[]symbol.ReferenceKind{symbol.ReferenceImport, symbol.ReferenceImport},
		refKinds(sink.refsTo("pkg.mod")))
	assert.Equal(t, 3, sink.qualifiersOf("pkg"))
	assert.Equal(t, 1, sink.qualifiersOf("pkg.mod"))

	assert.ElementsMatch(t,
		[]symbol.ReferenceKind{symbol.ReferenceImport, symbol.ReferenceInheritance},
		refKinds(sink.refsTo("pkg.mod.Thing")))
	assert.ElementsMatch(t,
		[]symbol.ReferenceKind{symbol.ReferenceImport, symbol.ReferenceCall, symbol.ReferenceCall},
		refKinds(sink.refsTo("pkg.mod.run")))
	assert.Equal(t, []symbol.ReferenceKind{symbol.ReferenceImport}, refKinds(sink.refsTo("pkg.mod.VALUE")))
	assert.Equal(t, symbol.KindGlobalVariable, sink.out.Kinds["pkg.mod.VALUE"])
	assert.False(t, sink.out.Explicit["pkg.mod.VALUE"])

	assert.Equal(t, []symbol.ReferenceKind{symbol.ReferenceImport}, refKinds(sink.refsTo("os")))
	assert.Equal(t, 1, sink.qualifiersOf("os"))
	assert.Equal(t, []symbol.ReferenceKind{symbol.ReferenceUsage}, refKinds(sink.refsTo("os.getcwd")))

	assert.Empty(t, sink.out.Errors)
	assertComplete(t, got.session)
}

func TestSession_AliasedImport(t *testing.T) {
	t.Parallel()
	got := indexFile(t, map[string]string{
		"pkg/__init__.py": "class Thing:\n    pass\n",
		"main.py":         "from pkg import Thing as T\n\nT()\n",
	}, "main.py")
	sink := got.sink

	refs := sink.refsTo("pkg.Thing")
	require.Len(t, refs, 2)
	assert.Equal(t, refRec{
		Context: "main",
		Target:  "pkg.Thing",
		Kind:    symbol.ReferenceImport,
		Range:   symbol.Range{StartLine: 1, StartColumn: 17, EndLine: 1, EndColumn: 21},
	}, refs[0])
	assert.Equal(t, symbol.ReferenceTypeUsage, refs[1].Kind)
	assert.Equal(t, symbol.Range{StartLine: 3, StartColumn: 1, EndLine: 3, EndColumn: 1}, refs[1].Range)

	// The alias is its own binding, not another import of the class.
	assert.Equal(t, symbol.KindGlobalVariable, sink.out.Kinds["main.T"])
	assert.True(t, sink.out.Explicit["main.T"])
	assert.Contains(t, sink.out.Locations, symbolLoc{
		Symbol: "main.T",
		Range:  symbol.Range{StartLine: 1, StartColumn: 26, EndLine: 1, EndColumn: 26},
	})
	assert.Empty(t, sink.refsTo("main.T"))
	assertComplete(t, got.session)
}

func TestSession_FromImportedFunction(t *testing.T) {
	t.Parallel()
	got := indexFile(t, map[string]string{
		"pkg/__init__.py": "def helper():\n    pass\n",
		"main.py":         "from pkg import helper as h\nh()\nh\n",
	}, "main.py")

	refs := got.sink.refsTo("pkg.helper")
	require.Len(t, refs, 2)
	assert.Equal(t, symbol.ReferenceImport, refs[0].Kind)
	assert.Equal(t, symbol.Range{StartLine: 1, StartColumn: 17, EndLine: 1, EndColumn: 22}, refs[0].Range)
	assert.Equal(t, symbol.ReferenceCall, refs[1].Kind)
	assert.Equal(t, 2, refs[1].Range.StartLine)
	assertComplete(t, got.session)
}

func TestSession_UnresolvedImportsAreReported(t *testing.T) {
	t.Parallel()
	got := indexSnippet(t, "import missing.sub\nfrom nowhere import thing\nundefined_call()\n")
	out := got.sink.out

	require.Len(t, out.Errors, 2)
	assert.Equal(t, `Imported symbol named "missing" has not been found.`, out.Errors[0].Message)
	assert.False(t, out.Errors[0].Fatal)
	assert.Equal(t, symbol.Range{StartLine: 1, StartColumn: 8, EndLine: 1, EndColumn: 14}, out.Errors[0].Range)
	assert.Equal(t, `Imported symbol named "nowhere" has not been found.`, out.Errors[1].Message)

	st := got.session.Stats()
	assert.Equal(t, 2, st.Errors)
	assert.Equal(t, 5, st.Count(index.OutcomeUnresolved))
	unsolved := got.sink.refsTo(symbol.Unsolved().DisplayString())
	assert.Len(t, unsolved, 5)
	for _, r := range unsolved {
		assert.Equal(t, symbol.ReferenceUsage, r.Kind)
	}
	assertComplete(t, got.session)
}

// ===== Ranges and errors =====

func TestSession_MultiLineStringIsAtomic(t *testing.T) {
	t.Parallel()
	got := indexSnippet(t, "\"\"\"doc\nmore\"\"\"\nx = 'one line'\n")

	require.Len(t, got.sink.out.Atomic, 1)
	assert.Equal(t, 1, got.sink.out.Atomic[0].StartLine)
	assert.Equal(t, 2, got.sink.out.Atomic[0].EndLine)
	assert.Equal(t, 1, got.session.Stats().AtomicRanges)
}

func TestSession_SyntaxErrorsAreRecorded(t *testing.T) {
	t.Parallel()
	got := indexSnippet(t, "def f(:\n    pass\n\nclass Ok:\n    pass\n")

	require.NotEmpty(t, got.sink.out.Errors)
	for _, e := range got.sink.out.Errors {
		assert.Regexp(t, `^(Unexpected|Missing) token of type ".+"`, e.Message)
		assert.False(t, e.Fatal)
	}
	assert.Equal(t, len(got.sink.out.Errors), got.session.Stats().Errors)
	assert.Equal(t, 2, got.session.Depth())
}

// ===== Properties =====

func TestSession_Deterministic(t *testing.T) {
	t.Parallel()
	src := "import os\n\nclass A:\n    def m(self, v):\n        self.v = v\n        return os.path\n\nA().m(1)\n"
	first := indexSnippet(t, src)
	second := indexSnippet(t, src)

	// Paths differ between temp dirs; everything else must match.
	first.sink.out.Files, second.sink.out.Files = nil, nil
	assert.Equal(t, first.sink.out, second.sink.out)
	assert.Equal(t, first.session.Stats(), second.session.Stats())
}

func TestSession_VirtualFile(t *testing.T) {
	t.Parallel()
	src := []byte("def g():\n    pass\n\ng()\n")
	r := resolve.New()
	r.AddSource(index.VirtualFilePath, src)
	t.Cleanup(func() { r.RemoveSource(index.VirtualFilePath) })

	tree, err := r.Tree(context.Background(), index.VirtualFilePath)
	require.NoError(t, err)
	sink := newMemSink()
	s := index.NewSession(sink, r, index.VirtualFilePath)
	require.NoError(t, s.Index(context.Background(), tree))

	assert.Equal(t, symbol.KindModule, sink.out.Kinds["virtual_file"])
	assert.Equal(t, []symbol.ReferenceKind{symbol.ReferenceCall}, refKinds(sink.refsTo("virtual_file.g")))
}

// ===== Failure handling =====

type panicResolver struct{}

func (panicResolver) Definitions(context.Context, string, syntax.Position) []index.Definition {
	panic("boom")
}

func TestSession_ResolverPanicIsRecovered(t *testing.T) {
	t.Parallel()
	tree, err := syntax.Parse(context.Background(), []byte("class A:\n    pass\n\nA()\n"))
	require.NoError(t, err)

	sink := newMemSink()
	s := index.NewSession(sink, panicResolver{}, filepath.Join(t.TempDir(), "m.py"))
	require.NoError(t, s.Index(context.Background(), tree))

	unsolved := symbol.Unsolved().DisplayString()
	assert.Equal(t, symbol.KindClass, sink.out.Kinds[unsolved])
	assert.Equal(t, 2, s.Stats().Count(index.OutcomeUnresolved))
	assertComplete(t, s)
}

func TestSession_NilTree(t *testing.T) {
	t.Parallel()
	sink := newMemSink()
	s := index.NewSession(sink, nil, filepath.Join(t.TempDir(), "empty.py"))
	require.NoError(t, s.Index(context.Background(), nil))
	assert.Equal(t, []string{"empty"}, sink.out.Symbols)
	assert.Equal(t, 2, s.Depth())
}

func TestSession_SinkErrorIsSticky(t *testing.T) {
	t.Parallel()
	tree, err := syntax.Parse(context.Background(), []byte("def f():\n    pass\n\nf()\nf()\n"))
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "m.py")
	require.NoError(t, os.WriteFile(path, []byte("def f():\n    pass\n\nf()\nf()\n"), 0o644))

	sink := newMemSink()
	sink.failOn = "RecordReference"
	sink.failErr = errors.New("disk full")
	s := index.NewSession(sink, resolve.New(), path)

	err = s.Index(context.Background(), tree)
	require.Error(t, err)
	assert.ErrorIs(t, err, sink.failErr)
	assert.Contains(t, err.Error(), "record reference")
	assert.True(t, strings.HasPrefix(err.Error(), "index "+path))
	assert.Equal(t, sink.failedAt, sink.calls, "no sink calls after the first failure")
}

func TestSession_IndexTwice(t *testing.T) {
	t.Parallel()
	s := index.NewSession(newMemSink(), nil, filepath.Join(t.TempDir(), "m.py"))
	require.NoError(t, s.Index(context.Background(), nil))
	assert.ErrorIs(t, s.Index(context.Background(), nil), index.ErrSessionUsed)
}

func TestSession_CancelledContext(t *testing.T) {
	t.Parallel()
	tree, err := syntax.Parse(context.Background(), []byte("x = 1\n"))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := index.NewSession(newMemSink(), nil, filepath.Join(t.TempDir(), "m.py"))
	assert.ErrorIs(t, s.Index(ctx, tree), context.Canceled)
}

// ===== Module names =====

func TestModuleHierarchy(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	tests := []struct {
		name string
		path string
		want string
		ok   bool
	}{
		{"plain module", filepath.Join(root, "a", "b.py"), "a.b", true},
		{"stub", filepath.Join(root, "a", "b.pyi"), "a.b", true},
		{"package init", filepath.Join(root, "a", "__init__.py"), "a", true},
		{"virtual file", index.VirtualFilePath, "virtual_file", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, ok := index.ModuleHierarchy(tt.path, []string{root})
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, h.DisplayString())
		})
	}
}

func TestSearchPath(t *testing.T) {
	t.Parallel()
	dir := writeTree(t, map[string]string{"pkg/__init__.py": "", "pkg/sub/__init__.py": "", "pkg/sub/x.py": ""})
	got := index.SearchPath(filepath.Join(dir, "pkg", "sub", "x.py"), []string{"/a", "/a/b"})
	assert.Equal(t, []string{dir, "/a/b", "/a"}, got)

	assert.Equal(t, []string{"/r"}, index.SearchPath(index.VirtualFilePath, []string{"/r"}))
}
