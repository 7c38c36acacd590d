package store

import (
	"time"

	"github.com/jward/pytrail/internal/symbol"
)

// LocationKind distinguishes the location tables a symbol can appear in.
type LocationKind string

const (
	LocationToken     LocationKind = "token"
	LocationScope     LocationKind = "scope"
	LocationQualifier LocationKind = "qualifier"
)

type File struct {
	ID          int64
	Path        string
	Language    string
	Hash        string
	LineCount   int
	LastIndexed time.Time
	Indexed     bool
}

type Symbol struct {
	ID             int64
	Serialized     string
	DisplayName    string
	Name           string
	Kind           symbol.Kind
	DefinitionKind symbol.DefinitionKind
}

// Hierarchy decodes the stored serialized name.
func (s *Symbol) Hierarchy() (symbol.Hierarchy, error) {
	return symbol.ParseHierarchy(s.Serialized)
}

// Explicit reports whether the symbol was defined in indexed source.
func (s *Symbol) Explicit() bool {
	return s.DefinitionKind == symbol.DefinitionExplicit
}

type Location struct {
	ID       int64
	SymbolID int64
	FileID   int64
	Path     string
	Kind     LocationKind
	Range    symbol.Range
}

type Reference struct {
	ID              int64
	ContextSymbolID int64
	TargetSymbolID  int64
	Kind            symbol.ReferenceKind
	Locations       []ReferenceLocation
}

type ReferenceLocation struct {
	ReferenceID int64
	FileID      int64
	Path        string
	Range       symbol.Range
}

type LocalSymbol struct {
	ID   int64
	Name string
}

type LocalOccurrence struct {
	LocalSymbolID int64
	FileID        int64
	Name          string
	Range         symbol.Range
}

type AtomicRange struct {
	FileID int64
	Range  symbol.Range
}

type ErrorRecord struct {
	ID      int64
	FileID  int64
	Message string
	Fatal   bool
	Range   symbol.Range
}

// IndexRun records one indexing invocation.
type IndexRun struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Files      int
	Errors     int
}
