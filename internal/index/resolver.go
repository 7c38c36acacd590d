package index

import (
	"context"

	"github.com/jward/pytrail/internal/syntax"
)

// DefinitionType is the category of a resolver candidate.
type DefinitionType string

const (
	TypeModule    DefinitionType = "module"
	TypeClass     DefinitionType = "class"
	TypeFunction  DefinitionType = "function"
	TypeInstance  DefinitionType = "instance"
	TypeParameter DefinitionType = "param"
	TypeStatement DefinitionType = "statement"
	TypeUnknown   DefinitionType = "unknown"
)

// Definition is one go-to-definition candidate for a name occurrence.
type Definition struct {
	Type DefinitionType
	Name string

	// ModuleName is the dotted name of the defining module. "builtins" marks
	// builtin definitions.
	ModuleName string

	// ModulePath is the file (or package directory) that defines the
	// candidate. Empty for builtins and unlocatable externals.
	ModulePath string

	// FullName is the dotted, fully-qualified name, used when the
	// definition has no location.
	FullName string

	// NameNode is the identifier that introduces the definition, inside the
	// tree of ModulePath.
	NameNode *syntax.Node

	// Pos is the start of NameNode. Nil when the definition has no location.
	Pos *syntax.Position
}

// HasLocation reports whether the definition points into source.
func (d Definition) HasLocation() bool {
	return d.Pos != nil
}

// IsBuiltin reports whether the definition belongs to the builtins module.
func (d Definition) IsBuiltin() bool {
	return d.ModuleName == "builtins" || d.ModuleName == "__builtin__"
}

// Resolver answers go-to-definition queries with import following. An empty
// result means the name could not be resolved. Implementations must not
// panic; Session recovers from panics anyway and treats them as no answer.
type Resolver interface {
	Definitions(ctx context.Context, path string, pos syntax.Position) []Definition
}
