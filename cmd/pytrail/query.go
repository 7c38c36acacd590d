package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jward/pytrail"
	"github.com/jward/pytrail/internal/store"
)

func (a *app) queryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query the symbol graph",
		Long:  "Run queries against an indexed project. All line and column numbers are 1-based.",
	}
	cmd.AddCommand(
		a.symbolsCmd(),
		a.searchCmd(),
		a.symbolAtCmd(),
		a.definitionCmd(),
		a.referencesCmd(),
		a.edgesCmd("callers", "Find the functions calling a symbol", (*pytrail.QueryBuilder).Callers, false),
		a.edgesCmd("callees", "Find the symbols called from a function", (*pytrail.QueryBuilder).Callees, true),
		a.edgesCmd("subclasses", "Find the direct subclasses of a class", (*pytrail.QueryBuilder).Subclasses, false),
		a.edgesCmd("superclasses", "Find the direct bases of a class", (*pytrail.QueryBuilder).Superclasses, true),
		a.importsCmd(),
		a.dependentsCmd(),
		a.errorsCmd(),
		a.filesCmd(),
	)
	return cmd
}

// --- Helpers ---

// openStore opens the Store from the --db flag path (or default).
func (a *app) openStore() (*store.Store, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting cwd: %w", err)
	}
	dbPath := a.resolveDBPath(findRepoRoot(cwd))

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("database not found: %s (run 'pytrail index' first)", dbPath)
	}

	s, err := store.NewStore(dbPath)
	if err != nil {
		return nil, err
	}
	if err := s.CheckSchemaVersion(); err != nil {
		s.Close()
		return nil, fmt.Errorf("%s: %w (re-index with --force)", dbPath, err)
	}
	return s, nil
}

// withQuery opens the store, runs fn and reports its result or error under
// the command's name.
func (a *app) withQuery(cmd *cobra.Command, fn func(qb *pytrail.QueryBuilder) (CLIResult, error)) error {
	name := cmd.Name()
	s, err := a.openStore()
	if err != nil {
		return a.outputError(cmd, name, err)
	}
	defer s.Close()

	result, err := fn(pytrail.NewQueryBuilder(s))
	if err != nil {
		return a.outputError(cmd, name, err)
	}
	result.Command = name
	return a.outputResult(cmd, result)
}

// resolveFilePath converts a file argument to an absolute path.
// If the path is already absolute, it's returned as-is.
// Otherwise, it's resolved relative to the current working directory.
func resolveFilePath(file string) (string, error) {
	if filepath.IsAbs(file) {
		return file, nil
	}
	abs, err := filepath.Abs(file)
	if err != nil {
		return "", fmt.Errorf("resolving file path %q: %w", file, err)
	}
	return abs, nil
}

// parseIntArg parses a positional argument as a 1-based position.
func parseIntArg(value, name string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: must be a positive integer", name, value)
	}
	if n < 1 {
		return 0, fmt.Errorf("invalid %s %q: must be at least 1", name, value)
	}
	return n, nil
}

// parsePosition parses <file> <line> <col> positional arguments.
func parsePosition(args []string) (string, int, int, error) {
	file, err := resolveFilePath(args[0])
	if err != nil {
		return "", 0, 0, err
	}
	line, err := parseIntArg(args[1], "line")
	if err != nil {
		return "", 0, 0, err
	}
	col, err := parseIntArg(args[2], "col")
	if err != nil {
		return "", 0, 0, err
	}
	return file, line, col, nil
}

// resolveSymbol resolves a symbol from either positional args
// (<file> <line> <col>) or the --symbol flag.
func resolveSymbol(cmd *cobra.Command, args []string, qb *pytrail.QueryBuilder) (*pytrail.Symbol, error) {
	symbolFlag, _ := cmd.Flags().GetInt64("symbol")
	if symbolFlag != 0 {
		sym, err := qb.Symbol(symbolFlag)
		if err != nil {
			return nil, fmt.Errorf("looking up symbol: %w", err)
		}
		if sym == nil {
			return nil, fmt.Errorf("no symbol with id %d", symbolFlag)
		}
		return sym, nil
	}

	if len(args) < 3 {
		return nil, fmt.Errorf("requires either <file> <line> <col> arguments or --symbol flag")
	}
	file, line, col, err := parsePosition(args)
	if err != nil {
		return nil, err
	}
	sym, err := qb.SymbolAt(file, line, col)
	if err != nil {
		return nil, fmt.Errorf("looking up symbol: %w", err)
	}
	if sym == nil {
		return nil, fmt.Errorf("no symbol found at %s:%d:%d", file, line, col)
	}
	return sym, nil
}

// outputResult marshals a CLIResult to stdout in the selected format.
func (a *app) outputResult(cmd *cobra.Command, result CLIResult) error {
	if a.flagFormat == "text" {
		return outputResultText(cmd.OutOrStdout(), result)
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope. In text mode it goes to stderr.
func (a *app) outputError(cmd *cobra.Command, command string, err error) error {
	a.errorHandled = true
	if a.flagFormat == "text" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err)
		return err
	}
	result := CLIResult{
		Command: command,
		Error:   err.Error(),
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
	return err
}

func count(n int) *int {
	return &n
}

// symbolToCLI converts a Symbol to a CLISymbol positioned at its first
// definition.
func symbolToCLI(qb *pytrail.QueryBuilder, sym *pytrail.Symbol) (CLISymbol, error) {
	out := CLISymbol{
		ID:             sym.ID,
		Name:           sym.Name,
		DisplayName:    sym.DisplayName,
		Kind:           string(sym.Kind),
		DefinitionKind: string(sym.DefinitionKind),
	}
	defs, err := qb.Definition(sym.ID)
	if err != nil {
		return out, err
	}
	if len(defs) > 0 {
		out.File = defs[0].Path
		out.StartLine = defs[0].Range.StartLine
		out.StartCol = defs[0].Range.StartColumn
		out.EndLine = defs[0].Range.EndLine
		out.EndCol = defs[0].Range.EndColumn
	}
	return out, nil
}

func symbolsToCLI(qb *pytrail.QueryBuilder, syms []*pytrail.Symbol) ([]CLISymbol, error) {
	out := make([]CLISymbol, 0, len(syms))
	for _, sym := range syms {
		c, err := symbolToCLI(qb, sym)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// symbolNames memoizes display-name lookups by symbol ID.
type symbolNames struct {
	qb    *pytrail.QueryBuilder
	names map[int64]string
}

func newSymbolNames(qb *pytrail.QueryBuilder) *symbolNames {
	return &symbolNames{qb: qb, names: make(map[int64]string)}
}

// name returns the display name, or "" when the lookup fails.
func (n *symbolNames) name(id int64) string {
	if name, ok := n.names[id]; ok {
		return name
	}
	var name string
	if sym, err := n.qb.Symbol(id); err == nil && sym != nil {
		name = sym.DisplayName
	}
	n.names[id] = name
	return name
}

// --- Name Commands ---

func (a *app) symbolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "symbols <name>",
		Short: "Find symbols by display name or dotted suffix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withQuery(cmd, func(qb *pytrail.QueryBuilder) (CLIResult, error) {
				syms, err := qb.SymbolsByName(args[0])
				if err != nil {
					return CLIResult{}, err
				}
				out, err := symbolsToCLI(qb, syms)
				if err != nil {
					return CLIResult{}, err
				}
				return CLIResult{Results: out, TotalCount: count(len(out))}, nil
			})
		},
	}
}

func (a *app) searchCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Fuzzy search for symbols",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withQuery(cmd, func(qb *pytrail.QueryBuilder) (CLIResult, error) {
				results, err := qb.Search(args[0], limit)
				if err != nil {
					return CLIResult{}, err
				}
				out := make([]CLISearchResult, 0, len(results))
				for _, r := range results {
					sym, err := symbolToCLI(qb, r.Symbol)
					if err != nil {
						return CLIResult{}, err
					}
					out = append(out, CLISearchResult{Symbol: sym, Score: r.Score})
				}
				return CLIResult{Results: out, TotalCount: count(len(out))}, nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", pytrail.DefaultSearchLimit, "maximum number of results")
	return cmd
}

// --- Position-Based Commands ---

func (a *app) symbolAtCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "symbol-at <file> <line> <col>",
		Short: "Find the symbol defined or referenced at a position",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withQuery(cmd, func(qb *pytrail.QueryBuilder) (CLIResult, error) {
				file, line, col, err := parsePosition(args)
				if err != nil {
					return CLIResult{}, err
				}
				sym, err := qb.SymbolAt(file, line, col)
				if err != nil || sym == nil {
					return CLIResult{}, err
				}
				out, err := symbolToCLI(qb, sym)
				if err != nil {
					return CLIResult{}, err
				}
				return CLIResult{Results: out, TotalCount: count(1)}, nil
			})
		},
	}
}

func (a *app) definitionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "definition <file> <line> <col>",
		Short: "Find the definition of the symbol at a position",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withQuery(cmd, func(qb *pytrail.QueryBuilder) (CLIResult, error) {
				file, line, col, err := parsePosition(args)
				if err != nil {
					return CLIResult{}, err
				}
				sym, err := qb.SymbolAt(file, line, col)
				if err != nil {
					return CLIResult{}, err
				}
				out := []CLILocation{}
				if sym != nil {
					locs, err := qb.Definition(sym.ID)
					if err != nil {
						return CLIResult{}, err
					}
					for _, l := range locs {
						out = append(out, CLILocation{
							File:      l.Path,
							StartLine: l.Range.StartLine,
							StartCol:  l.Range.StartColumn,
							EndLine:   l.Range.EndLine,
							EndCol:    l.Range.EndColumn,
							SymbolID:  &sym.ID,
						})
					}
				}
				return CLIResult{Results: out, TotalCount: count(len(out))}, nil
			})
		},
	}
}

// --- Symbol ID or Position Commands ---

func (a *app) referencesCmd() *cobra.Command {
	var direction, kind string
	cmd := &cobra.Command{
		Use:   "references [<file> <line> <col>]",
		Short: "Find the references to a symbol, or made inside it",
		Long:  "Accepts either <file> <line> <col> positional args or --symbol <id>.",
		Args:  cobra.MaximumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withQuery(cmd, func(qb *pytrail.QueryBuilder) (CLIResult, error) {
				sym, err := resolveSymbol(cmd, args, qb)
				if err != nil {
					return CLIResult{}, err
				}
				var refs []*pytrail.Reference
				switch direction {
				case "to":
					refs, err = qb.ReferencesTo(sym.ID)
				case "from":
					refs, err = qb.ReferencesFrom(sym.ID)
				default:
					err = fmt.Errorf("invalid direction %q: must be to or from", direction)
				}
				if err != nil {
					return CLIResult{}, err
				}

				names := newSymbolNames(qb)
				out := []CLIReference{}
				for _, r := range refs {
					if kind != "" && string(r.Kind) != kind {
						continue
					}
					ref := CLIReference{
						ID:          r.ID,
						Kind:        string(r.Kind),
						ContextID:   r.ContextSymbolID,
						ContextName: names.name(r.ContextSymbolID),
						TargetID:    r.TargetSymbolID,
						TargetName:  names.name(r.TargetSymbolID),
						Locations:   make([]CLILocation, 0, len(r.Locations)),
					}
					for _, l := range r.Locations {
						ref.Locations = append(ref.Locations, CLILocation{
							File:      l.Path,
							StartLine: l.Range.StartLine,
							StartCol:  l.Range.StartColumn,
							EndLine:   l.Range.EndLine,
							EndCol:    l.Range.EndColumn,
						})
					}
					out = append(out, ref)
				}
				return CLIResult{Results: out, TotalCount: count(len(out))}, nil
			})
		},
	}
	cmd.Flags().Int64("symbol", 0, "symbol ID to query")
	cmd.Flags().StringVar(&direction, "direction", "to", "to: references targeting the symbol, from: references made inside it")
	cmd.Flags().StringVar(&kind, "kind", "", "only this reference kind: usage|call|import|inheritance|type_usage")
	return cmd
}

// edgesCmd builds one of the call or inheritance graph commands. outgoing
// is true when the queried symbol is the "from" end of the edges.
func (a *app) edgesCmd(name, short string, fetch func(*pytrail.QueryBuilder, int64) ([]pytrail.Edge, error), outgoing bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   name + " [<file> <line> <col>]",
		Short: short,
		Long:  "Accepts either <file> <line> <col> positional args or --symbol <id>.",
		Args:  cobra.MaximumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withQuery(cmd, func(qb *pytrail.QueryBuilder) (CLIResult, error) {
				sym, err := resolveSymbol(cmd, args, qb)
				if err != nil {
					return CLIResult{}, err
				}
				edges, err := fetch(qb, sym.ID)
				if err != nil {
					return CLIResult{}, err
				}
				out := []CLIEdge{}
				for _, e := range edges {
					out = append(out, edgeRows(sym, e, outgoing)...)
				}
				return CLIResult{Results: out, TotalCount: count(len(out))}, nil
			})
		},
	}
	cmd.Flags().Int64("symbol", 0, "symbol ID to query")
	return cmd
}

// edgeRows flattens an Edge into one CLIEdge per location.
func edgeRows(sym *pytrail.Symbol, e pytrail.Edge, outgoing bool) []CLIEdge {
	from, to := e.Symbol, sym
	if outgoing {
		from, to = sym, e.Symbol
	}
	base := CLIEdge{
		FromID:   from.ID,
		FromName: from.DisplayName,
		ToID:     to.ID,
		ToName:   to.DisplayName,
		Kind:     string(e.Kind),
	}
	if len(e.Locations) == 0 {
		return []CLIEdge{base}
	}
	rows := make([]CLIEdge, 0, len(e.Locations))
	for _, l := range e.Locations {
		row := base
		row.File = l.Path
		row.Line = l.Range.StartLine
		row.Col = l.Range.StartColumn
		rows = append(rows, row)
	}
	return rows
}

// --- File Commands ---

func (a *app) importsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "imports <file>",
		Short: "List what a file imports",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withQuery(cmd, func(qb *pytrail.QueryBuilder) (CLIResult, error) {
				f, err := a.indexedFile(qb, args[0])
				if err != nil {
					return CLIResult{}, err
				}
				edges, err := qb.Imports(f.ID)
				if err != nil {
					return CLIResult{}, err
				}
				module := &pytrail.Symbol{DisplayName: filepath.Base(f.Path)}
				out := []CLIEdge{}
				for _, e := range edges {
					out = append(out, edgeRows(module, e, true)...)
				}
				return CLIResult{Results: out, TotalCount: count(len(out))}, nil
			})
		},
	}
}

func (a *app) dependentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dependents <file>",
		Short: "List the files that reference symbols defined in a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withQuery(cmd, func(qb *pytrail.QueryBuilder) (CLIResult, error) {
				f, err := a.indexedFile(qb, args[0])
				if err != nil {
					return CLIResult{}, err
				}
				files, err := qb.DependentFiles(f.Path)
				if err != nil {
					return CLIResult{}, err
				}
				out := filesToCLI(files)
				return CLIResult{Results: out, TotalCount: count(len(out))}, nil
			})
		},
	}
}

func (a *app) errorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "errors <file>",
		Short: "List the diagnostics recorded while indexing a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withQuery(cmd, func(qb *pytrail.QueryBuilder) (CLIResult, error) {
				f, err := a.indexedFile(qb, args[0])
				if err != nil {
					return CLIResult{}, err
				}
				errs, err := qb.FileErrors(f.Path)
				if err != nil {
					return CLIResult{}, err
				}
				out := make([]CLIError, 0, len(errs))
				for _, e := range errs {
					out = append(out, CLIError{
						File:      f.Path,
						Message:   e.Message,
						Fatal:     e.Fatal,
						StartLine: e.Range.StartLine,
						StartCol:  e.Range.StartColumn,
						EndLine:   e.Range.EndLine,
						EndCol:    e.Range.EndColumn,
					})
				}
				return CLIResult{Results: out, TotalCount: count(len(out))}, nil
			})
		},
	}
}

func (a *app) filesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "files",
		Short: "List the indexed files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withQuery(cmd, func(qb *pytrail.QueryBuilder) (CLIResult, error) {
				files, err := qb.Files()
				if err != nil {
					return CLIResult{}, err
				}
				out := filesToCLI(files)
				return CLIResult{Results: out, TotalCount: count(len(out))}, nil
			})
		},
	}
}

// indexedFile resolves a file argument and fails when it is not indexed.
func (a *app) indexedFile(qb *pytrail.QueryBuilder, arg string) (*pytrail.File, error) {
	path, err := resolveFilePath(arg)
	if err != nil {
		return nil, err
	}
	f, err := qb.File(path)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, fmt.Errorf("file not indexed: %s", path)
	}
	return f, nil
}

func filesToCLI(files []*pytrail.File) []CLIFile {
	out := make([]CLIFile, 0, len(files))
	for _, f := range files {
		out = append(out, CLIFile{
			ID:        f.ID,
			Path:      f.Path,
			Language:  f.Language,
			LineCount: f.LineCount,
			Indexed:   f.Indexed,
		})
	}
	return out
}
