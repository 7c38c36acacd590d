package server

import (
	"github.com/jward/pytrail"
	"github.com/jward/pytrail/internal/symbol"
)

// JSON response shapes. Positions are 1-based.

type SymbolResponse struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	DisplayName    string `json:"display_name"`
	Kind           string `json:"kind"`
	DefinitionKind string `json:"definition_kind"`
}

type RangeResponse struct {
	StartLine   int `json:"start_line"`
	StartColumn int `json:"start_col"`
	EndLine     int `json:"end_line"`
	EndColumn   int `json:"end_col"`
}

type LocationResponse struct {
	Path  string        `json:"path"`
	Range RangeResponse `json:"range"`
}

type SymbolDetailResponse struct {
	SymbolResponse
	Definitions []LocationResponse `json:"definitions"`
}

type ReferenceResponse struct {
	ID        int64              `json:"id"`
	Kind      string             `json:"kind"`
	Context   SymbolResponse     `json:"context"`
	Target    SymbolResponse     `json:"target"`
	Locations []LocationResponse `json:"locations"`
}

type EdgeResponse struct {
	Symbol    SymbolResponse     `json:"symbol"`
	Kind      string             `json:"kind"`
	Locations []LocationResponse `json:"locations"`
}

type SearchResultResponse struct {
	Symbol SymbolResponse `json:"symbol"`
	Score  float64        `json:"score"`
}

type FileResponse struct {
	ID        int64  `json:"id"`
	Path      string `json:"path"`
	Language  string `json:"language"`
	LineCount int    `json:"line_count"`
	Indexed   bool   `json:"indexed"`
}

type FileErrorResponse struct {
	Message string        `json:"message"`
	Fatal   bool          `json:"fatal"`
	Range   RangeResponse `json:"range"`
}

func toSymbol(s *pytrail.Symbol) SymbolResponse {
	return SymbolResponse{
		ID:             s.ID,
		Name:           s.Name,
		DisplayName:    s.DisplayName,
		Kind:           string(s.Kind),
		DefinitionKind: string(s.DefinitionKind),
	}
}

func toRange(r symbol.Range) RangeResponse {
	return RangeResponse{
		StartLine:   r.StartLine,
		StartColumn: r.StartColumn,
		EndLine:     r.EndLine,
		EndColumn:   r.EndColumn,
	}
}

func toReferenceLocations(locs []pytrail.ReferenceLocation) []LocationResponse {
	out := make([]LocationResponse, 0, len(locs))
	for _, l := range locs {
		out = append(out, LocationResponse{Path: l.Path, Range: toRange(l.Range)})
	}
	return out
}
