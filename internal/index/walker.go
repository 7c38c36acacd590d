package index

import (
	"context"
	"strings"

	"github.com/jward/pytrail/internal/symbol"
	"github.com/jward/pytrail/internal/syntax"
)

// traverse visits n and its children in source order, running the begin
// handler before the children and the end handler after them.
func (s *Session) traverse(ctx context.Context, n *syntax.Node, depth int) {
	if n == nil || s.rec.err != nil || ctx.Err() != nil {
		return
	}
	if s.trace {
		s.logger.Debug("ast",
			"node", strings.Repeat("| ", depth)+n.Type,
			"text", n.Text,
			"range", RangeOf(n).String())
	}

	s.beginVisit(ctx, n)
	for _, c := range n.Children {
		s.traverse(ctx, c, depth+1)
	}
	s.endVisit(n)
}

func (s *Session) beginVisit(ctx context.Context, n *syntax.Node) {
	switch n.Kind {
	case syntax.ClassDef:
		s.beginScope(ctx, n, symbol.KindClass)
	case syntax.FunctionDef:
		s.beginScope(ctx, n, symbol.KindFunction)
	case syntax.ImportFrom, syntax.ImportName:
		s.reportUnsolvedImports(ctx, n)
	case syntax.Name:
		s.visitName(ctx, n)
	case syntax.String:
		s.visitString(n)
	case syntax.ErrorLeaf:
		s.visitErrorLeaf(n)
	case syntax.Module, syntax.Generic:
	}
}

func (s *Session) endVisit(n *syntax.Node) {
	switch n.Kind {
	case syntax.ClassDef, syntax.FunctionDef, syntax.ImportFrom, syntax.ImportName,
		syntax.Name, syntax.String, syntax.ErrorLeaf:
		s.scopes.popIfOwner(n)
	case syntax.Module, syntax.Generic:
	}
}

// beginScope records a class or function definition and pushes its frame.
func (s *Session) beginScope(ctx context.Context, n *syntax.Node, kind symbol.Kind) {
	name := n.FieldChild("name")
	h, ok := s.hierarchyOfNode(ctx, name, s.path, 0)
	if !ok {
		h = symbol.Unsolved()
	}

	id := s.rec.symbol(h)
	s.rec.explicit(id)
	s.rec.symbolKind(id, kind)
	if name != nil {
		s.rec.location(id, RangeOf(name))
	} else {
		s.rec.location(id, RangeOf(n))
	}
	s.rec.scopeLocation(id, RangeOf(n))
	s.scopes.push(id, h.DisplayString(), n)
}

// visitString marks strings spanning several lines as atomic ranges.
func (s *Session) visitString(n *syntax.Node) {
	if n.Start.Line == n.End.Line {
		return
	}
	s.rec.atomic(RangeOf(n))
	s.stats.AtomicRanges++
}

func (s *Session) visitErrorLeaf(n *syntax.Node) {
	var msg string
	if n.Missing {
		msg = `Missing token of type "` + n.Type + `".`
	} else {
		tokenType := n.Type
		if len(n.Children) > 0 {
			tokenType = n.Children[0].Type
		}
		msg = `Unexpected token of type "` + tokenType + `" encountered.`
	}
	s.rec.error(msg, false, RangeOf(n))
	s.stats.Errors++
}
