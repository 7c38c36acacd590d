package index

import (
	"context"

	"github.com/jward/pytrail/internal/syntax"
)

// reportUnsolvedImports records a non-fatal error for every imported name
// the resolver cannot answer. Dotted names are checked up to their first
// missing segment, aliases are not checked, and a from-import whose module
// is missing reports only the module.
func (s *Session) reportUnsolvedImports(ctx context.Context, n *syntax.Node) {
	switch n.Type {
	case "import_statement":
		for _, item := range n.FieldChildren("name") {
			s.checkImported(ctx, item)
		}
	case "import_from_statement", "future_import_statement":
		if mod := n.FieldChild("module_name"); mod != nil {
			target := mod
			if mod.Is("relative_import") {
				target = mod.FirstChildOfType("dotted_name")
			}
			if target != nil && !s.checkDotted(ctx, target) {
				return
			}
		}
		for _, item := range n.FieldChildren("name") {
			if !s.checkImported(ctx, item) {
				return
			}
		}
	}
}

func (s *Session) checkImported(ctx context.Context, item *syntax.Node) bool {
	if item.Is("aliased_import") {
		item = item.FieldChild("name")
	}
	switch {
	case item.Is("dotted_name"):
		return s.checkDotted(ctx, item)
	case item != nil && item.Kind == syntax.Name:
		return s.checkName(ctx, item)
	}
	return true
}

func (s *Session) checkDotted(ctx context.Context, dotted *syntax.Node) bool {
	for _, c := range dotted.Children {
		if c.Kind == syntax.Name && !s.checkName(ctx, c) {
			return false
		}
	}
	return true
}

func (s *Session) checkName(ctx context.Context, n *syntax.Node) bool {
	if len(s.definitions(ctx, s.path, n)) > 0 {
		return true
	}
	s.rec.error(`Imported symbol named "`+n.Text+`" has not been found.`, false, RangeOf(n))
	s.stats.Errors++
	return false
}
