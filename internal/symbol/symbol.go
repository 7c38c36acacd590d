// Package symbol holds the value types shared between the indexer and the
// symbol store: hierarchical names, source ranges and the kind vocabularies.
package symbol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind is the kind of a hierarchical symbol.
type Kind string

const (
	KindModule         Kind = "module"
	KindClass          Kind = "class"
	KindFunction       Kind = "function"
	KindField          Kind = "field"
	KindGlobalVariable Kind = "global_variable"
)

// Rank orders kinds by specificity. A stored kind is only replaced by one of
// higher rank.
func (k Kind) Rank() int {
	switch k {
	case KindModule, KindClass, KindFunction:
		return 3
	case KindField:
		return 2
	case KindGlobalVariable:
		return 1
	}
	return 0
}

// DefinitionKind tells whether a symbol was defined in indexed source.
type DefinitionKind string

const (
	DefinitionExplicit DefinitionKind = "explicit"
	DefinitionImplicit DefinitionKind = "implicit"
)

// ReferenceKind classifies an edge between a context symbol and a target.
type ReferenceKind string

const (
	ReferenceUsage       ReferenceKind = "usage"
	ReferenceCall        ReferenceKind = "call"
	ReferenceImport      ReferenceKind = "import"
	ReferenceInheritance ReferenceKind = "inheritance"
	ReferenceTypeUsage   ReferenceKind = "type_usage"
)

// Range is a source range. Lines and the start column are 1-based. EndColumn
// is the 0-based exclusive end offset, which is the 1-based column of the
// last character.
type Range struct {
	StartLine   int `json:"start_line"`
	StartColumn int `json:"start_column"`
	EndLine     int `json:"end_line"`
	EndColumn   int `json:"end_column"`
}

func (r Range) String() string {
	return fmt.Sprintf("[%d:%d|%d:%d]", r.StartLine, r.StartColumn, r.EndLine, r.EndColumn)
}

// Element is one segment of a hierarchical name.
type Element struct {
	Prefix  string `json:"prefix"`
	Name    string `json:"name"`
	Postfix string `json:"postfix"`
}

// DefaultDelimiter separates the elements of Python names.
const DefaultDelimiter = "."

// UnsolvedName is the single element of the sentinel hierarchy used for
// occurrences the resolver could not answer.
const UnsolvedName = "unsolved symbol"

// BuiltinRoot prefixes hierarchies of builtin definitions.
const BuiltinRoot = "builtin"

// Hierarchy is an ordered list of name elements, outermost first. Values are
// treated as immutable: Append returns a new Hierarchy.
type Hierarchy struct {
	Delimiter string    `json:"name_delimiter"`
	Elements  []Element `json:"name_elements"`
}

// NewHierarchy builds a hierarchy from plain element names.
func NewHierarchy(names ...string) Hierarchy {
	h := Hierarchy{Delimiter: DefaultDelimiter, Elements: make([]Element, 0, len(names))}
	for _, n := range names {
		h.Elements = append(h.Elements, Element{Name: n})
	}
	return h
}

// Unsolved returns the sentinel hierarchy.
func Unsolved() Hierarchy {
	return NewHierarchy(UnsolvedName)
}

// FromDotted splits a dotted name into a hierarchy. Empty segments make the
// name invalid.
func FromDotted(dotted string) (Hierarchy, bool) {
	if dotted == "" {
		return Hierarchy{}, false
	}
	parts := strings.Split(dotted, ".")
	for _, p := range parts {
		if p == "" {
			return Hierarchy{}, false
		}
	}
	return NewHierarchy(parts...), true
}

// Len returns the number of elements.
func (h Hierarchy) Len() int {
	return len(h.Elements)
}

// Last returns the innermost element name, or "".
func (h Hierarchy) Last() string {
	if len(h.Elements) == 0 {
		return ""
	}
	return h.Elements[len(h.Elements)-1].Name
}

// Append returns a copy of h with name appended.
func (h Hierarchy) Append(name string) Hierarchy {
	out := Hierarchy{Delimiter: h.delimiter(), Elements: make([]Element, len(h.Elements), len(h.Elements)+1)}
	copy(out.Elements, h.Elements)
	out.Elements = append(out.Elements, Element{Name: name})
	return out
}

// IsUnsolved reports whether h is the sentinel hierarchy.
func (h Hierarchy) IsUnsolved() bool {
	return len(h.Elements) == 1 && h.Elements[0].Name == UnsolvedName
}

func (h Hierarchy) delimiter() string {
	if h.Delimiter == "" {
		return DefaultDelimiter
	}
	return h.Delimiter
}

// DisplayString joins the elements with the delimiter. A prefix is followed
// by a space; a postfix is appended directly.
func (h Hierarchy) DisplayString() string {
	var b strings.Builder
	for i, e := range h.Elements {
		if i > 0 {
			b.WriteString(h.delimiter())
		}
		if e.Prefix != "" {
			b.WriteString(e.Prefix)
			b.WriteByte(' ')
		}
		b.WriteString(e.Name)
		b.WriteString(e.Postfix)
	}
	return b.String()
}

// Serialize returns the canonical JSON form used as the symbol identity key.
func (h Hierarchy) Serialize() string {
	out := Hierarchy{Delimiter: h.delimiter(), Elements: h.Elements}
	if out.Elements == nil {
		out.Elements = []Element{}
	}
	b, _ := json.Marshal(out)
	return string(b)
}

// ParseHierarchy decodes a serialized hierarchy.
func ParseHierarchy(serialized string) (Hierarchy, error) {
	var h Hierarchy
	if err := json.Unmarshal([]byte(serialized), &h); err != nil {
		return Hierarchy{}, fmt.Errorf("symbol: parse hierarchy: %w", err)
	}
	return h, nil
}

// Equal reports element-wise equality.
func (h Hierarchy) Equal(o Hierarchy) bool {
	if h.delimiter() != o.delimiter() || len(h.Elements) != len(o.Elements) {
		return false
	}
	for i := range h.Elements {
		if h.Elements[i] != o.Elements[i] {
			return false
		}
	}
	return true
}
