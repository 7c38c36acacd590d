package index

import "github.com/jward/pytrail/internal/syntax"

// Grammar predicates over tree-sitter Python nodes.

var importTypes = []string{"import_statement", "import_from_statement", "future_import_statement"}

// inImport reports whether n lies inside any import statement.
func inImport(n *syntax.Node) bool {
	return n.Ancestor(importTypes...) != nil
}

// inImportFrom reports whether n lies inside a from-import.
func inImportFrom(n *syntax.Node) bool {
	return n.Ancestor("import_from_statement", "future_import_statement") != nil
}

// accessTarget widens an identifier to the expression it terminates: the
// enclosing attribute when n is its attribute part.
func accessTarget(n *syntax.Node) *syntax.Node {
	if n.Field == "attribute" && n.Parent.Is("attribute") {
		return n.Parent
	}
	return n
}

// isQualifier reports whether n is followed by a "." operator, skipping at
// most one call or subscript trailer.
func isQualifier(n *syntax.Node) bool {
	target := accessTarget(n)
	if p := target.Parent; p != nil {
		if (p.Type == "call" && target.Field == "function") || (p.Type == "subscript" && target.Field == "value") {
			target = p
		}
	}
	next := target.NextSibling()
	return next != nil && next.Type == "."
}

// isCallee reports whether n names the function of a call with a
// parenthesized argument list.
func isCallee(n *syntax.Node) bool {
	target := accessTarget(n)
	p := target.Parent
	if !p.Is("call") || target.Field != "function" {
		return false
	}
	return p.FieldChild("arguments").Is("argument_list")
}

// isSuperclass reports whether n is a direct base in a class header.
func isSuperclass(n *syntax.Node) bool {
	target := accessTarget(n)
	list := target.Parent
	return list.Is("argument_list") && list.Field == "superclasses" && list.Parent != nil &&
		list.Parent.Kind == syntax.ClassDef
}

// enclosingDef returns the nearest class or function definition around n,
// skipping the definition that n itself names.
func enclosingDef(n *syntax.Node) *syntax.Node {
	start := n.Parent
	if start != nil && (start.Kind == syntax.ClassDef || start.Kind == syntax.FunctionDef) && n.Field == "name" {
		start = start.Parent
	}
	for a := start; a != nil; a = a.Parent {
		if a.Kind == syntax.ClassDef || a.Kind == syntax.FunctionDef {
			return a
		}
	}
	return nil
}

// nameOf returns the identifier that names an expression used as a
// container: the identifier itself, the attribute part of an attribute or
// the callee name of a call.
func nameOf(expr *syntax.Node) *syntax.Node {
	for expr != nil {
		switch expr.Type {
		case "identifier":
			return expr
		case "attribute":
			return expr.FieldChild("attribute")
		case "call":
			expr = expr.FieldChild("function")
		case "parenthesized_expression":
			named := expr.NamedChildren()
			if len(named) != 1 {
				return nil
			}
			expr = named[0]
		default:
			return nil
		}
	}
	return nil
}

// MethodClass returns the class whose method takes param as its first
// parameter, or nil when param is not the implicit instance parameter of a
// method defined directly in a class body. Static methods have none.
func MethodClass(param *syntax.Node) *syntax.Node {
	if param == nil || param.Parent == nil {
		return nil
	}
	item := param
	switch item.Parent.Type {
	case "typed_parameter", "default_parameter", "typed_default_parameter":
		item = item.Parent
	}
	params := item.Parent
	if !params.Is("parameters") {
		return nil
	}
	named := params.NamedChildren()
	if len(named) == 0 || named[0] != item {
		return nil
	}
	fn := params.Parent
	if fn == nil || fn.Kind != syntax.FunctionDef || IsStaticMethod(fn) {
		return nil
	}
	holder := fn.Parent
	if holder.Is("decorated_definition") {
		holder = holder.Parent
	}
	if !holder.Is("block") || holder.Parent == nil || holder.Parent.Kind != syntax.ClassDef {
		return nil
	}
	return holder.Parent
}

// IsStaticMethod reports whether fn carries a @staticmethod decorator.
func IsStaticMethod(fn *syntax.Node) bool {
	dd := fn.Parent
	if !dd.Is("decorated_definition") {
		return false
	}
	for _, c := range dd.Children {
		if c.Type != "decorator" {
			continue
		}
		for _, e := range c.NamedChildren() {
			if name := nameOf(e); name != nil && name.Text == "staticmethod" {
				return true
			}
		}
	}
	return false
}
