package syntax

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// Tree is a parsed Python source file.
type Tree struct {
	Root   *Node
	Source []byte
}

// Parse parses Python source and converts the tree-sitter CST into an owned
// Node tree. A fresh parser is created per call, so Parse is safe for
// concurrent use.
func Parse(ctx context.Context, src []byte) (*Tree, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("syntax: parse: %w", err)
	}
	defer tree.Close()

	root := convert(tree.RootNode(), nil, "", 0, src)
	return &Tree{Root: root, Source: src}, nil
}

func convert(tn *sitter.Node, parent *Node, field string, index int, src []byte) *Node {
	start, end := tn.StartPoint(), tn.EndPoint()
	n := &Node{
		Type:      tn.Type(),
		Field:     field,
		Start:     Position{Line: int(start.Row) + 1, Column: int(start.Column)},
		End:       Position{Line: int(end.Row) + 1, Column: int(end.Column)},
		StartByte: int(tn.StartByte()),
		EndByte:   int(tn.EndByte()),
		Named:     tn.IsNamed(),
		Missing:   tn.IsMissing(),
		Parent:    parent,
		index:     index,
	}
	n.Kind = kindOf(tn)

	count := int(tn.ChildCount())
	if count == 0 {
		if n.EndByte <= len(src) && n.StartByte <= n.EndByte {
			n.Text = string(src[n.StartByte:n.EndByte])
		}
		return n
	}
	n.Children = make([]*Node, 0, count)
	for i := 0; i < count; i++ {
		child := tn.Child(i)
		if child == nil {
			continue
		}
		n.Children = append(n.Children, convert(child, n, tn.FieldNameForChild(i), len(n.Children), src))
	}
	return n
}

func kindOf(tn *sitter.Node) Kind {
	if tn.IsMissing() || tn.IsError() {
		return ErrorLeaf
	}
	switch tn.Type() {
	case "module":
		return Module
	case "class_definition":
		return ClassDef
	case "function_definition":
		return FunctionDef
	case "import_from_statement", "future_import_statement":
		return ImportFrom
	case "import_statement":
		return ImportName
	case "identifier":
		return Name
	case "string":
		return String
	}
	return Generic
}

// Content returns the source text spanned by n.
func (t *Tree) Content(n *Node) string {
	if n == nil || n.EndByte > len(t.Source) || n.StartByte > n.EndByte {
		return ""
	}
	return string(t.Source[n.StartByte:n.EndByte])
}

// NameAt returns the identifier node that starts exactly at pos, or nil.
func (t *Tree) NameAt(pos Position) *Node {
	var found *Node
	Walk(t.Root, func(n *Node) bool {
		if found != nil {
			return false
		}
		if pos.Before(n.Start) || !pos.Before(n.End) && n.End != n.Start {
			return false
		}
		if n.Kind == Name && n.Start == pos {
			found = n
			return false
		}
		return true
	})
	return found
}

// LineCount returns the number of lines in the source.
func (t *Tree) LineCount() int {
	lines := 1
	for _, b := range t.Source {
		if b == '\n' {
			lines++
		}
	}
	return lines
}
