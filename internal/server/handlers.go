package server

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jward/pytrail"
)

// Health check
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleSymbols looks symbols up by exact or dotted-suffix name.
func (s *Server) handleSymbols(c *gin.Context) {
	name := strings.TrimSpace(c.Query("name"))
	if name == "" {
		handleError(c, NewAppError(http.StatusBadRequest, "Missing name parameter", nil))
		return
	}
	syms, err := s.query.SymbolsByName(name)
	if err != nil {
		handleError(c, err)
		return
	}
	out := make([]SymbolResponse, 0, len(syms))
	for _, sym := range syms {
		out = append(out, toSymbol(sym))
	}
	c.JSON(http.StatusOK, gin.H{"symbols": out})
}

// handleSymbol returns one symbol with its definition locations.
func (s *Server) handleSymbol(c *gin.Context) {
	sym, err := s.symbolParam(c)
	if err != nil {
		handleError(c, err)
		return
	}
	defs, err := s.query.Definition(sym.ID)
	if err != nil {
		handleError(c, err)
		return
	}
	resp := SymbolDetailResponse{SymbolResponse: toSymbol(sym), Definitions: []LocationResponse{}}
	for _, d := range defs {
		resp.Definitions = append(resp.Definitions, LocationResponse{Path: d.Path, Range: toRange(d.Range)})
	}
	c.JSON(http.StatusOK, resp)
}

// handleReferences returns the references to a symbol, or the ones made
// inside it with ?direction=from.
func (s *Server) handleReferences(c *gin.Context) {
	sym, err := s.symbolParam(c)
	if err != nil {
		handleError(c, err)
		return
	}

	var refs []*pytrail.Reference
	switch dir := c.DefaultQuery("direction", "to"); dir {
	case "to":
		refs, err = s.query.ReferencesTo(sym.ID)
	case "from":
		refs, err = s.query.ReferencesFrom(sym.ID)
	default:
		err = fmt.Errorf("%w: direction must be to or from, got %q", ErrInvalidInput, dir)
	}
	if err != nil {
		handleError(c, err)
		return
	}

	kind := c.Query("kind")
	seen := make(map[int64]SymbolResponse)
	out := make([]ReferenceResponse, 0, len(refs))
	for _, r := range refs {
		if kind != "" && string(r.Kind) != kind {
			continue
		}
		ctxSym, err := s.cachedSymbol(seen, r.ContextSymbolID)
		if err != nil {
			handleError(c, err)
			return
		}
		target, err := s.cachedSymbol(seen, r.TargetSymbolID)
		if err != nil {
			handleError(c, err)
			return
		}
		out = append(out, ReferenceResponse{
			ID:        r.ID,
			Kind:      string(r.Kind),
			Context:   ctxSym,
			Target:    target,
			Locations: toReferenceLocations(r.Locations),
		})
	}
	c.JSON(http.StatusOK, gin.H{"symbol": toSymbol(sym), "references": out})
}

// handleEdges serves one of the call or inheritance graph queries.
func (s *Server) handleEdges(fetch func(int64) ([]pytrail.Edge, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		sym, err := s.symbolParam(c)
		if err != nil {
			handleError(c, err)
			return
		}
		edges, err := fetch(sym.ID)
		if err != nil {
			handleError(c, err)
			return
		}
		out := make([]EdgeResponse, 0, len(edges))
		for _, e := range edges {
			out = append(out, EdgeResponse{
				Symbol:    toSymbol(e.Symbol),
				Kind:      string(e.Kind),
				Locations: toReferenceLocations(e.Locations),
			})
		}
		c.JSON(http.StatusOK, gin.H{"symbol": toSymbol(sym), "edges": out})
	}
}

// handleSearch provides fuzzy symbol search.
func (s *Server) handleSearch(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		handleError(c, NewAppError(http.StatusBadRequest, "Missing q parameter", nil))
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			handleError(c, NewAppError(http.StatusBadRequest, "Invalid limit", err))
			return
		}
		limit = n
	}
	results, err := s.query.Search(q, limit)
	if err != nil {
		handleError(c, err)
		return
	}
	out := make([]SearchResultResponse, 0, len(results))
	for _, r := range results {
		out = append(out, SearchResultResponse{Symbol: toSymbol(r.Symbol), Score: r.Score})
	}
	c.JSON(http.StatusOK, gin.H{"results": out})
}

// handleFiles lists every indexed file.
func (s *Server) handleFiles(c *gin.Context) {
	files, err := s.query.Files()
	if err != nil {
		handleError(c, err)
		return
	}
	out := make([]FileResponse, 0, len(files))
	for _, f := range files {
		out = append(out, FileResponse{
			ID:        f.ID,
			Path:      f.Path,
			Language:  f.Language,
			LineCount: f.LineCount,
			Indexed:   f.Indexed,
		})
	}
	c.JSON(http.StatusOK, gin.H{"files": out})
}

// handleFileErrors returns the diagnostics recorded for ?path=.
func (s *Server) handleFileErrors(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		handleError(c, NewAppError(http.StatusBadRequest, "Missing path parameter", nil))
		return
	}
	if !filepath.IsAbs(path) {
		abs, err := filepath.Abs(path)
		if err != nil {
			handleError(c, fmt.Errorf("%w: %v", ErrInvalidInput, err))
			return
		}
		path = abs
	}

	f, err := s.query.File(path)
	if err != nil {
		handleError(c, err)
		return
	}
	if f == nil {
		handleError(c, fmt.Errorf("file %s: %w", path, ErrNotFound))
		return
	}
	errs, err := s.query.FileErrors(path)
	if err != nil {
		handleError(c, err)
		return
	}
	out := make([]FileErrorResponse, 0, len(errs))
	for _, e := range errs {
		out = append(out, FileErrorResponse{Message: e.Message, Fatal: e.Fatal, Range: toRange(e.Range)})
	}
	c.JSON(http.StatusOK, gin.H{"path": path, "errors": out})
}

// symbolParam loads the symbol named by the :id path parameter.
func (s *Server) symbolParam(c *gin.Context) (*pytrail.Symbol, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return nil, NewAppError(http.StatusBadRequest, "Invalid symbol id", err)
	}
	sym, err := s.query.Symbol(id)
	if err != nil {
		return nil, err
	}
	if sym == nil {
		return nil, fmt.Errorf("symbol %d: %w", id, ErrNotFound)
	}
	return sym, nil
}

func (s *Server) cachedSymbol(seen map[int64]SymbolResponse, id int64) (SymbolResponse, error) {
	if r, ok := seen[id]; ok {
		return r, nil
	}
	sym, err := s.query.Symbol(id)
	if err != nil {
		return SymbolResponse{}, err
	}
	if sym == nil {
		return SymbolResponse{ID: id}, nil
	}
	r := toSymbol(sym)
	seen[id] = r
	return r, nil
}

func handleError(c *gin.Context, err error) {
	appErr := MapError(err)
	c.JSON(appErr.Code, gin.H{"error": appErr.Message})
}
