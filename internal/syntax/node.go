// Package syntax converts tree-sitter Python parse trees into an owned node
// tree. Every node carries a closed Kind used by the indexer for dispatch, plus
// the raw grammar type, the field name it occupies in its parent and its
// source range.
package syntax

import "fmt"

// Kind is the closed set of node categories the indexer dispatches on.
type Kind int

const (
	Generic Kind = iota
	Module
	ClassDef
	FunctionDef
	ImportFrom
	ImportName
	Name
	String
	ErrorLeaf
)

var kindNames = [...]string{
	Generic:     "generic",
	Module:      "module",
	ClassDef:    "class-def",
	FunctionDef: "function-def",
	ImportFrom:  "import-from",
	ImportName:  "import-name",
	Name:        "name",
	String:      "string",
	ErrorLeaf:   "error-leaf",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Position is a point in a source file. Line is 1-based, Column is a 0-based
// byte offset within the line.
type Position struct {
	Line   int
	Column int
}

// Before reports whether p sorts strictly before o.
func (p Position) Before(o Position) bool {
	if p.Line != o.Line {
		return p.Line < o.Line
	}
	return p.Column < o.Column
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Node is one node of an owned syntax tree. Trees are immutable after Parse
// returns and may be shared between goroutines.
type Node struct {
	Kind      Kind
	Type      string // raw grammar type, e.g. "attribute"
	Field     string // field name in the parent, "" if none
	Text      string // source text, set for leaves only
	Start     Position
	End       Position
	StartByte int
	EndByte   int
	Named     bool
	Missing   bool
	Parent    *Node
	Children  []*Node

	index int
}

// IsLeaf reports whether n has no children.
func (n *Node) IsLeaf() bool {
	return len(n.Children) == 0
}

// NextSibling returns the following sibling, named or not.
func (n *Node) NextSibling() *Node {
	if n == nil || n.Parent == nil || n.index+1 >= len(n.Parent.Children) {
		return nil
	}
	return n.Parent.Children[n.index+1]
}

// PrevSibling returns the preceding sibling, named or not.
func (n *Node) PrevSibling() *Node {
	if n == nil || n.Parent == nil || n.index == 0 {
		return nil
	}
	return n.Parent.Children[n.index-1]
}

// FieldChild returns the first child stored under field name.
func (n *Node) FieldChild(name string) *Node {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if c.Field == name {
			return c
		}
	}
	return nil
}

// FieldChildren returns every child stored under field name, in order.
func (n *Node) FieldChildren(name string) []*Node {
	if n == nil {
		return nil
	}
	var out []*Node
	for _, c := range n.Children {
		if c.Field == name {
			out = append(out, c)
		}
	}
	return out
}

// FirstChildOfType returns the first direct child with the given grammar type.
func (n *Node) FirstChildOfType(typ string) *Node {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if c.Type == typ {
			return c
		}
	}
	return nil
}

// NamedChildren returns the named direct children.
func (n *Node) NamedChildren() []*Node {
	if n == nil {
		return nil
	}
	var out []*Node
	for _, c := range n.Children {
		if c.Named {
			out = append(out, c)
		}
	}
	return out
}

// Ancestor returns the nearest strict ancestor whose grammar type is one of
// types, or nil.
func (n *Node) Ancestor(types ...string) *Node {
	if n == nil {
		return nil
	}
	for a := n.Parent; a != nil; a = a.Parent {
		for _, t := range types {
			if a.Type == t {
				return a
			}
		}
	}
	return nil
}

// Within reports whether n is anc or lies inside anc's subtree.
func (n *Node) Within(anc *Node) bool {
	if anc == nil {
		return false
	}
	for a := n; a != nil; a = a.Parent {
		if a == anc {
			return true
		}
	}
	return false
}

// Is reports whether n has the given grammar type. It is nil-safe.
func (n *Node) Is(typ string) bool {
	return n != nil && n.Type == typ
}

func (n *Node) String() string {
	if n == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s[%s-%s]", n.Type, n.Start, n.End)
}

// Walk visits n and its descendants in pre-order. Children of a node are
// skipped when fn returns false for it.
func Walk(n *Node, fn func(*Node) bool) {
	if n == nil {
		return
	}
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		Walk(c, fn)
	}
}
