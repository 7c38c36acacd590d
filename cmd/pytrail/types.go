package main

// CLIResult is the top-level JSON envelope for all query commands.
type CLIResult struct {
	Command    string `json:"command"`
	Results    any    `json:"results"`
	TotalCount *int   `json:"total_count,omitempty"`
	Error      string `json:"error,omitempty"`
}

// CLISymbol is a JSON-friendly symbol representation. The position is the
// first definition; implicit symbols have none.
type CLISymbol struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	DisplayName    string `json:"display_name"`
	Kind           string `json:"kind"`
	DefinitionKind string `json:"definition_kind"`
	File           string `json:"file,omitempty"`
	StartLine      int    `json:"start_line,omitempty"`
	StartCol       int    `json:"start_col,omitempty"`
	EndLine        int    `json:"end_line,omitempty"`
	EndCol         int    `json:"end_col,omitempty"`
}

// CLILocation extends Location with the symbol ID for chaining.
type CLILocation struct {
	File      string `json:"file"`
	StartLine int    `json:"start_line"`
	StartCol  int    `json:"start_col"`
	EndLine   int    `json:"end_line"`
	EndCol    int    `json:"end_col"`
	SymbolID  *int64 `json:"symbol_id,omitempty"`
}

// CLIReference is one reference between a context symbol and a target.
type CLIReference struct {
	ID          int64         `json:"id"`
	Kind        string        `json:"kind"`
	ContextID   int64         `json:"context_id"`
	ContextName string        `json:"context_name,omitempty"`
	TargetID    int64         `json:"target_id"`
	TargetName  string        `json:"target_name,omitempty"`
	Locations   []CLILocation `json:"locations"`
}

// CLIEdge is a JSON-friendly call or inheritance graph edge, one per
// source location.
type CLIEdge struct {
	FromID   int64  `json:"from_id"`
	FromName string `json:"from_name,omitempty"`
	ToID     int64  `json:"to_id"`
	ToName   string `json:"to_name,omitempty"`
	Kind     string `json:"kind"`
	File     string `json:"file,omitempty"`
	Line     int    `json:"line"`
	Col      int    `json:"col"`
}

// CLISearchResult is a fuzzy search hit.
type CLISearchResult struct {
	Symbol CLISymbol `json:"symbol"`
	Score  float64   `json:"score"`
}

// CLIFile is a JSON-friendly file representation.
type CLIFile struct {
	ID        int64  `json:"id"`
	Path      string `json:"path"`
	Language  string `json:"language"`
	LineCount int    `json:"line_count"`
	Indexed   bool   `json:"indexed"`
}

// CLIError is a diagnostic recorded while indexing a file.
type CLIError struct {
	File      string `json:"file"`
	Message   string `json:"message"`
	Fatal     bool   `json:"fatal,omitempty"`
	StartLine int    `json:"start_line"`
	StartCol  int    `json:"start_col"`
	EndLine   int    `json:"end_line"`
	EndCol    int    `json:"end_col"`
}
