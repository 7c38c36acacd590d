package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jward/pytrail"
)

// Version is reported to MCP clients.
const Version = "0.1.0"

// Server exposes the symbol graph to MCP clients as tools.
type Server struct {
	query  *pytrail.QueryBuilder
	logger *slog.Logger
	srv    *server.MCPServer
}

// NewServer registers the pytrail tools over a QueryBuilder.
func NewServer(q *pytrail.QueryBuilder, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		query:  q,
		logger: logger,
		srv: server.NewMCPServer(
			"pytrail",
			Version,
			server.WithToolCapabilities(false),
			server.WithLogging(),
		),
	}

	s.srv.AddTool(
		mcp.NewTool(
			"search_symbols",
			mcp.WithDescription("Fuzzy search for Python symbols (modules, classes, functions, fields, globals) by name."),
			mcp.WithString("query", mcp.Required(), mcp.Description("The search query string")),
			mcp.WithNumber("limit", mcp.Description("Max number of results (default 10)")),
		),
		s.handleSearchSymbols,
	)

	s.srv.AddTool(
		mcp.NewTool(
			"find_definition",
			mcp.WithDescription("Find where a symbol is defined."),
			mcp.WithString("symbol", mcp.Required(), mcp.Description("Dotted symbol name such as pkg.mod.Class, or a numeric symbol id")),
		),
		s.handleFindDefinition,
	)

	s.srv.AddTool(
		mcp.NewTool(
			"find_references",
			mcp.WithDescription("List the references to a symbol, or the references made inside it."),
			mcp.WithString("symbol", mcp.Required(), mcp.Description("Dotted symbol name such as pkg.mod.func, or a numeric symbol id")),
			mcp.WithString("direction", mcp.Description("to (default) or from"), mcp.Enum("to", "from")),
			mcp.WithString("kind", mcp.Description("Only this reference kind: usage, call, import, inheritance or type_usage")),
		),
		s.handleFindReferences,
	)

	s.srv.AddTool(
		mcp.NewTool(
			"file_errors",
			mcp.WithDescription("List the diagnostics recorded while indexing a file."),
			mcp.WithString("path", mcp.Required(), mcp.Description("Absolute path of the Python file")),
		),
		s.handleFileErrors,
	)

	return s
}

// Run serves MCP over stdio until the client disconnects or ctx is done.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio")
	return server.NewStdioServer(s.srv).Listen(ctx, os.Stdin, os.Stdout)
}

type symbolResult struct {
	ID          int64   `json:"id"`
	DisplayName string  `json:"display_name"`
	Kind        string  `json:"kind"`
	Explicit    bool    `json:"explicit"`
	Score       float64 `json:"score,omitempty"`
}

type locationResult struct {
	Path      string `json:"path"`
	Line      int    `json:"line"`
	Column    int    `json:"column"`
	EndLine   int    `json:"end_line"`
	EndColumn int    `json:"end_column"`
}

type referenceResult struct {
	Kind      string           `json:"kind"`
	Context   string           `json:"context"`
	Target    string           `json:"target"`
	Locations []locationResult `json:"locations"`
}

type errorResult struct {
	Message string `json:"message"`
	Fatal   bool   `json:"fatal"`
	Line    int    `json:"line"`
	Column  int    `json:"column"`
}

func (s *Server) handleSearchSymbols(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	query, ok := args["query"].(string)
	if !ok || strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("query argument required"), nil
	}
	limit := pytrail.DefaultSearchLimit
	if l, ok := args["limit"].(float64); ok && l > 0 {
		limit = int(l)
	}

	results, err := s.query.Search(query, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	out := make([]symbolResult, 0, len(results))
	for _, r := range results {
		sr := toSymbolResult(r.Symbol)
		sr.Score = r.Score
		out = append(out, sr)
	}
	return jsonResult(out)
}

func (s *Server) handleFindDefinition(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sym, errRes := s.symbolArg(request)
	if errRes != nil {
		return errRes, nil
	}
	locs, err := s.query.Definition(sym.ID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("definition failed: %v", err)), nil
	}
	out := struct {
		Symbol      symbolResult     `json:"symbol"`
		Definitions []locationResult `json:"definitions"`
	}{Symbol: toSymbolResult(sym), Definitions: []locationResult{}}
	for _, l := range locs {
		out.Definitions = append(out.Definitions, locationResult{
			Path:      l.Path,
			Line:      l.Range.StartLine,
			Column:    l.Range.StartColumn,
			EndLine:   l.Range.EndLine,
			EndColumn: l.Range.EndColumn,
		})
	}
	return jsonResult(out)
}

func (s *Server) handleFindReferences(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sym, errRes := s.symbolArg(request)
	if errRes != nil {
		return errRes, nil
	}
	args := request.GetArguments()
	direction, _ := args["direction"].(string)
	kind, _ := args["kind"].(string)

	var (
		refs []*pytrail.Reference
		err  error
	)
	switch direction {
	case "", "to":
		refs, err = s.query.ReferencesTo(sym.ID)
	case "from":
		refs, err = s.query.ReferencesFrom(sym.ID)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("direction must be to or from, got %q", direction)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("references failed: %v", err)), nil
	}

	names := map[int64]string{}
	out := make([]referenceResult, 0, len(refs))
	for _, r := range refs {
		if kind != "" && string(r.Kind) != kind {
			continue
		}
		rr := referenceResult{
			Kind:      string(r.Kind),
			Context:   s.displayName(names, r.ContextSymbolID),
			Target:    s.displayName(names, r.TargetSymbolID),
			Locations: []locationResult{},
		}
		for _, l := range r.Locations {
			rr.Locations = append(rr.Locations, locationResult{
				Path:      l.Path,
				Line:      l.Range.StartLine,
				Column:    l.Range.StartColumn,
				EndLine:   l.Range.EndLine,
				EndColumn: l.Range.EndColumn,
			})
		}
		out = append(out, rr)
	}
	if len(out) == 0 {
		return mcp.NewToolResultText("No references found."), nil
	}
	return jsonResult(out)
}

func (s *Server) handleFileErrors(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	path, ok := args["path"].(string)
	if !ok || path == "" {
		return mcp.NewToolResultError("path argument required"), nil
	}
	f, err := s.query.File(path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("lookup failed: %v", err)), nil
	}
	if f == nil {
		return mcp.NewToolResultError(fmt.Sprintf("file %s is not indexed", path)), nil
	}
	errs, err := s.query.FileErrors(path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("file errors failed: %v", err)), nil
	}
	if len(errs) == 0 {
		return mcp.NewToolResultText("No errors recorded."), nil
	}
	out := make([]errorResult, 0, len(errs))
	for _, e := range errs {
		out = append(out, errorResult{
			Message: e.Message,
			Fatal:   e.Fatal,
			Line:    e.Range.StartLine,
			Column:  e.Range.StartColumn,
		})
	}
	return jsonResult(out)
}

// symbolArg resolves the "symbol" argument: a numeric id, an exact display
// name, or an unambiguous dotted suffix.
func (s *Server) symbolArg(request mcp.CallToolRequest) (*pytrail.Symbol, *mcp.CallToolResult) {
	name, ok := request.GetArguments()["symbol"].(string)
	if !ok || strings.TrimSpace(name) == "" {
		return nil, mcp.NewToolResultError("symbol argument required")
	}
	if id, err := strconv.ParseInt(name, 10, 64); err == nil {
		sym, err := s.query.Symbol(id)
		if err != nil {
			return nil, mcp.NewToolResultError(fmt.Sprintf("lookup failed: %v", err))
		}
		if sym == nil {
			return nil, mcp.NewToolResultError(fmt.Sprintf("no symbol with id %d", id))
		}
		return sym, nil
	}

	syms, err := s.query.SymbolsByName(name)
	if err != nil {
		return nil, mcp.NewToolResultError(fmt.Sprintf("lookup failed: %v", err))
	}
	for _, sym := range syms {
		if sym.DisplayName == name {
			return sym, nil
		}
	}
	switch len(syms) {
	case 0:
		return nil, mcp.NewToolResultError(fmt.Sprintf("no symbol named %q", name))
	case 1:
		return syms[0], nil
	}
	candidates := make([]string, 0, len(syms))
	for _, sym := range syms {
		candidates = append(candidates, sym.DisplayName)
	}
	return nil, mcp.NewToolResultError(fmt.Sprintf("%q is ambiguous: %s", name, strings.Join(candidates, ", ")))
}

func (s *Server) displayName(cache map[int64]string, id int64) string {
	if n, ok := cache[id]; ok {
		return n
	}
	n := strconv.FormatInt(id, 10)
	if sym, err := s.query.Symbol(id); err == nil && sym != nil {
		n = sym.DisplayName
	}
	cache[id] = n
	return n
}

func toSymbolResult(sym *pytrail.Symbol) symbolResult {
	return symbolResult{
		ID:          sym.ID,
		DisplayName: sym.DisplayName,
		Kind:        string(sym.Kind),
		Explicit:    sym.Explicit(),
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError("failed to marshal result"), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
