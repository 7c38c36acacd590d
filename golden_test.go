package pytrail

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Golden test format.
type goldenFile struct {
	Definitions []goldenDef     `json:"definitions,omitempty"`
	References  []goldenRef     `json:"references,omitempty"`
	Inheritance []goldenInherit `json:"inheritance,omitempty"`
	Calls       []goldenCall    `json:"calls,omitempty"`
}

type goldenDef struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
	File string `json:"file"`
	Line int    `json:"line"`
}

type goldenRef struct {
	From goldenLoc    `json:"from"`
	To   goldenTarget `json:"to"`
}

type goldenLoc struct {
	File string `json:"file"`
	Line int    `json:"line"`
	Col  int    `json:"col"`
}

// goldenTarget with an empty File is an implicit symbol such as a builtin.
type goldenTarget struct {
	Name string `json:"name"`
	File string `json:"file"`
	Line int    `json:"line"`
}

type goldenInherit struct {
	Class string `json:"class"`
	Base  string `json:"base"`
}

type goldenCall struct {
	Caller string `json:"caller"`
	Callee string `json:"callee"`
}

// TestGolden walks testdata/python/ level directories. Each level indexes
// its src/ tree with src/ as the search root and checks golden.json.
func TestGolden(t *testing.T) {
	root := filepath.Join("testdata", "python")
	levels, err := os.ReadDir(root)
	if err != nil {
		t.Skip("no testdata directory found")
	}

	for _, level := range levels {
		if !level.IsDir() {
			continue
		}
		testDir := filepath.Join(root, level.Name())
		goldenPath := filepath.Join(testDir, "golden.json")
		srcDir := filepath.Join(testDir, "src")

		if _, err := os.Stat(goldenPath); err != nil {
			continue
		}
		if _, err := os.Stat(srcDir); err != nil {
			continue
		}

		t.Run(level.Name(), func(t *testing.T) {
			runGoldenTest(t, srcDir, goldenPath)
		})
	}
}

func runGoldenTest(t *testing.T, srcDir, goldenPath string) {
	t.Helper()

	goldenData, err := os.ReadFile(goldenPath)
	require.NoError(t, err)
	var golden goldenFile
	require.NoError(t, json.Unmarshal(goldenData, &golden))

	srcDir, err = filepath.Abs(srcDir)
	require.NoError(t, err)

	dbPath := filepath.Join(t.TempDir(), "golden.db")
	engine, err := New(dbPath, WithSearchRoots(srcDir))
	require.NoError(t, err)
	defer engine.Close()

	require.NoError(t, engine.IndexDirectory(context.Background(), srcDir))

	if len(golden.Definitions) > 0 {
		t.Run("definitions", func(t *testing.T) {
			verifyDefinitions(t, engine, golden.Definitions)
		})
	}
	if len(golden.References) > 0 {
		t.Run("references", func(t *testing.T) {
			verifyReferences(t, engine, srcDir, golden.References)
		})
	}
	if len(golden.Inheritance) > 0 {
		t.Run("inheritance", func(t *testing.T) {
			verifyInheritance(t, engine, golden.Inheritance)
		})
	}
	if len(golden.Calls) > 0 {
		t.Run("calls", func(t *testing.T) {
			verifyCalls(t, engine, golden.Calls)
		})
	}
}

// goldenSymbol finds the symbol whose display name is exactly name.
func goldenSymbol(t *testing.T, engine *Engine, name string) *Symbol {
	t.Helper()
	syms, err := engine.Query().SymbolsByName(name)
	require.NoError(t, err)
	for _, s := range syms {
		if s.DisplayName == name {
			return s
		}
	}
	return nil
}

// definedAt reports whether any definition location of sym is in a file
// with the given base name on the given line.
func definedAt(t *testing.T, engine *Engine, sym *Symbol, file string, line int) bool {
	t.Helper()
	locs, err := engine.Query().Definition(sym.ID)
	require.NoError(t, err)
	for _, l := range locs {
		if filepath.Base(l.Path) == file && l.Range.StartLine == line {
			return true
		}
	}
	return false
}

func verifyDefinitions(t *testing.T, engine *Engine, expected []goldenDef) {
	t.Helper()
	for _, exp := range expected {
		sym := goldenSymbol(t, engine, exp.Name)
		if !assert.NotNil(t, sym, "missing definition: %+v", exp) {
			continue
		}
		assert.Equal(t, exp.Kind, string(sym.Kind), "kind of %s", exp.Name)
		assert.True(t, definedAt(t, engine, sym, exp.File, exp.Line), "definition of %s not at %s:%d", exp.Name, exp.File, exp.Line)
	}
}

func verifyReferences(t *testing.T, engine *Engine, srcDir string, expected []goldenRef) {
	t.Helper()
	for _, exp := range expected {
		fromFile := filepath.Join(srcDir, exp.From.File)
		sym, err := engine.Query().SymbolAt(fromFile, exp.From.Line, exp.From.Col)
		require.NoError(t, err, "error resolving reference from %s:%d:%d", exp.From.File, exp.From.Line, exp.From.Col)
		if !assert.NotNil(t, sym, "nothing at %s:%d:%d", exp.From.File, exp.From.Line, exp.From.Col) {
			continue
		}
		assert.Equal(t, exp.To.Name, sym.DisplayName, "reference from %s:%d:%d", exp.From.File, exp.From.Line, exp.From.Col)
		if exp.To.File == "" {
			continue
		}
		assert.True(t, definedAt(t, engine, sym, exp.To.File, exp.To.Line),
			"reference from %s:%d:%d should resolve to %s in %s:%d",
			exp.From.File, exp.From.Line, exp.From.Col, exp.To.Name, exp.To.File, exp.To.Line)
	}
}

func verifyInheritance(t *testing.T, engine *Engine, expected []goldenInherit) {
	t.Helper()
	for _, exp := range expected {
		cls := goldenSymbol(t, engine, exp.Class)
		if !assert.NotNil(t, cls, "missing class %s", exp.Class) {
			continue
		}
		supers, err := engine.Query().Superclasses(cls.ID)
		require.NoError(t, err)
		assert.Contains(t, edgeNames(supers), exp.Base, "missing base: %s inherits %s", exp.Class, exp.Base)
	}
}

func verifyCalls(t *testing.T, engine *Engine, expected []goldenCall) {
	t.Helper()
	for _, exp := range expected {
		caller := goldenSymbol(t, engine, exp.Caller)
		if !assert.NotNil(t, caller, "missing caller %s", exp.Caller) {
			continue
		}
		callees, err := engine.Query().Callees(caller.ID)
		require.NoError(t, err)
		assert.Contains(t, edgeNames(callees), exp.Callee, "missing call edge: %s -> %s", exp.Caller, exp.Callee)
	}
}
