package index

import (
	"context"

	"github.com/jward/pytrail/internal/symbol"
	"github.com/jward/pytrail/internal/syntax"
)

// visitName classifies one identifier occurrence. The first candidate that
// produces a record wins; when none does the occurrence is recorded as a
// usage of the unsolved sentinel.
func (s *Session) visitName(ctx context.Context, n *syntax.Node) {
	s.stats.Names++
	for _, def := range s.definitions(ctx, s.path, n) {
		var handled bool
		switch def.Type {
		case TypeInstance:
			if !def.HasLocation() {
				handled = s.recordInstance(n, def)
			}
		case TypeModule:
			handled = s.recordModule(n, def)
		case TypeClass, TypeFunction:
			if s.isOwnDefinition(n, def) {
				s.count(OutcomeSuppressed)
				return
			}
			if def.Type == TypeClass {
				handled = s.recordClass(ctx, n, def)
			} else {
				handled = s.recordFunction(ctx, n, def)
			}
		case TypeParameter:
			if def.HasLocation() && def.NameNode != nil {
				handled = s.recordParameter(ctx, n, def)
			}
		case TypeStatement:
			if def.HasLocation() && def.NameNode != nil {
				handled = s.recordStatement(ctx, n, def)
			}
		case TypeUnknown:
		}
		if handled {
			return
		}
	}
	s.recordUnresolved(n)
}

// isOwnDefinition reports whether n is the name of the definition itself.
func (s *Session) isOwnDefinition(n *syntax.Node, def Definition) bool {
	return def.HasLocation() && *def.Pos == n.Start && s.definitionPath(def) == s.path
}

func (s *Session) isDefinitionSite(n *syntax.Node, def Definition) bool {
	return s.isOwnDefinition(n, def) && def.NameNode.End == n.End
}

func (s *Session) recordReference(n *syntax.Node, h symbol.Hierarchy, kind symbol.Kind, refKind symbol.ReferenceKind) {
	id := s.rec.symbol(h)
	if kind != "" {
		s.rec.symbolKind(id, kind)
	}
	s.rec.reference(s.scopes.top().id, id, refKind, RangeOf(n))
	s.count(OutcomeReference)
}

func (s *Session) recordDefinition(n *syntax.Node, h symbol.Hierarchy, kind symbol.Kind) {
	id := s.rec.symbol(h)
	s.rec.symbolKind(id, kind)
	s.rec.explicit(id)
	s.rec.location(id, RangeOf(n))
	s.count(OutcomeReference)
}

func (s *Session) recordQualifier(n *syntax.Node, h symbol.Hierarchy, kind symbol.Kind) {
	id := s.rec.symbol(h)
	s.rec.symbolKind(id, kind)
	s.rec.qualifier(id, RangeOf(n))
	s.count(OutcomeQualifier)
}

func (s *Session) recordUnresolved(n *syntax.Node) {
	id := s.rec.symbol(symbol.Unsolved())
	s.rec.reference(s.scopes.top().id, id, symbol.ReferenceUsage, RangeOf(n))
	s.count(OutcomeUnresolved)
}

func (s *Session) recordInstance(n *syntax.Node, def Definition) bool {
	h, ok := symbol.FromDotted(def.FullName)
	if !ok {
		return false
	}
	refKind := symbol.ReferenceUsage
	if inImportFrom(n) {
		refKind = symbol.ReferenceImport
	}
	s.recordReference(n, h, symbol.KindGlobalVariable, refKind)
	return true
}

func (s *Session) recordModule(n *syntax.Node, def Definition) bool {
	h, ok := s.moduleDefinitionHierarchy(def)
	if !ok {
		return false
	}
	if isQualifier(n) {
		s.recordQualifier(n, h, symbol.KindModule)
		return true
	}
	refKind := symbol.ReferenceUsage
	if inImport(n) {
		refKind = symbol.ReferenceImport
	}
	s.recordReference(n, h, symbol.KindModule, refKind)
	return true
}

func (s *Session) recordClass(ctx context.Context, n *syntax.Node, def Definition) bool {
	h, ok := s.definitionHierarchy(ctx, def)
	if !ok {
		return false
	}
	if isQualifier(n) {
		s.recordQualifier(n, h, symbol.KindClass)
		return true
	}
	refKind := symbol.ReferenceTypeUsage
	switch {
	case isSuperclass(n):
		refKind = symbol.ReferenceInheritance
	case inImport(n):
		refKind = symbol.ReferenceImport
	}
	s.recordReference(n, h, symbol.KindClass, refKind)
	return true
}

// recordFunction records calls and from-imports only. Any other use of a
// function defers to the next candidate.
func (s *Session) recordFunction(ctx context.Context, n *syntax.Node, def Definition) bool {
	var refKind symbol.ReferenceKind
	switch {
	case isCallee(n):
		refKind = symbol.ReferenceCall
	case inImportFrom(n):
		refKind = symbol.ReferenceImport
	default:
		return false
	}
	h, ok := s.definitionHierarchy(ctx, def)
	if !ok {
		return false
	}
	s.recordReference(n, h, symbol.KindFunction, refKind)
	return true
}

func (s *Session) recordParameter(ctx context.Context, n *syntax.Node, def Definition) bool {
	s.rec.local(s.localSymbolName(ctx, def), RangeOf(n))
	s.count(OutcomeLocal)
	return true
}

// recordStatement handles assignment-like definitions. Where the defining
// name sits decides the symbol: a class body gives a static field, an
// instance attribute assigned through a method's instance parameter gives a
// field, module level gives a global variable, and anything else is local.
func (s *Session) recordStatement(ctx context.Context, n *syntax.Node, def Definition) bool {
	defPath := s.definitionPath(def)
	atDefinition := s.isDefinitionSite(n, def)
	container := enclosingDef(def.NameNode)

	var kind symbol.Kind
	switch {
	case container != nil && container.Kind == syntax.ClassDef:
		kind = symbol.KindField
	case container != nil && s.isInstanceAttribute(ctx, def.NameNode, defPath):
		kind = symbol.KindField
	case container == nil:
		kind = symbol.KindGlobalVariable
	default:
		s.rec.local(s.localSymbolName(ctx, def), RangeOf(n))
		s.count(OutcomeLocal)
		return true
	}

	h, ok := s.hierarchyOfNode(ctx, def.NameNode, defPath, 0)
	if !ok {
		h = symbol.Unsolved()
	}
	if atDefinition {
		s.recordDefinition(n, h, kind)
		return true
	}
	refKind := symbol.ReferenceUsage
	if kind == symbol.KindGlobalVariable && inImport(n) {
		refKind = symbol.ReferenceImport
	}
	s.recordReference(n, h, kind, refKind)
	return true
}

// isInstanceAttribute reports whether name is the attribute part of an
// access through a method's implicit instance parameter.
func (s *Session) isInstanceAttribute(ctx context.Context, name *syntax.Node, path string) bool {
	if name.Field != "attribute" || !name.Parent.Is("attribute") {
		return false
	}
	return s.selfClass(ctx, name.Parent.FieldChild("object"), path) != nil
}
