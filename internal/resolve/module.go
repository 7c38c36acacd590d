package resolve

import (
	"strings"

	"github.com/jward/pytrail/internal/index"
	"github.com/jward/pytrail/internal/syntax"
)

type scopeKind int

const (
	scopeModule scopeKind = iota
	scopeClass
	scopeFunction
)

type bindingKind int

const (
	bindClass bindingKind = iota
	bindFunction
	bindParam
	bindStatement
	bindImport
)

// importRef describes what an import binding refers to.
type importRef struct {
	module string // dotted module, without leading dots
	level  int    // number of leading dots for relative imports
	attr   string // imported name for from-imports, "" for a module binding
	alias  bool   // bound under an "as" alias
}

type binding struct {
	kind bindingKind
	name *syntax.Node
	imp  *importRef
}

type scope struct {
	kind      scopeKind
	owner     *syntax.Node
	parent    *scope
	names     map[string][]*binding
	attrs     map[string][]*binding // class scopes: attributes assigned through self
	globals   map[string]bool
	nonlocals map[string]bool
	wildcards []importRef
}

func newScope(kind scopeKind, owner *syntax.Node, parent *scope) *scope {
	return &scope{
		kind:      kind,
		owner:     owner,
		parent:    parent,
		names:     make(map[string][]*binding),
		attrs:     make(map[string][]*binding),
		globals:   make(map[string]bool),
		nonlocals: make(map[string]bool),
	}
}

func (s *scope) add(name *syntax.Node, kind bindingKind, imp *importRef) {
	if name == nil || name.Text == "" {
		return
	}
	s.names[name.Text] = append(s.names[name.Text], &binding{kind: kind, name: name, imp: imp})
}

// find returns the last binding of name at or before occ, or the first
// binding when none precedes it. A nil occ selects the last binding.
func (s *scope) find(name string, occ *syntax.Node) *binding {
	bs := s.names[name]
	if len(bs) == 0 {
		return nil
	}
	if occ == nil {
		return bs[len(bs)-1]
	}
	var found *binding
	for _, b := range bs {
		if occ.Start.Before(b.name.Start) {
			break
		}
		found = b
	}
	if found == nil {
		return bs[0]
	}
	return found
}

// module is a parsed and bound source file. Modules are immutable once
// built and shared between goroutines through the cache.
type module struct {
	path   string // file, or directory for namespace packages
	name   string
	tree   *syntax.Tree
	root   *scope
	scopes map[*syntax.Node]*scope
}

func newModule(path, name string, tree *syntax.Tree) *module {
	m := &module{
		path:   path,
		name:   name,
		tree:   tree,
		scopes: make(map[*syntax.Node]*scope),
	}
	var rootNode *syntax.Node
	if tree != nil {
		rootNode = tree.Root
	}
	m.root = newScope(scopeModule, rootNode, nil)
	if rootNode != nil {
		m.scopes[rootNode] = m.root
		b := binder{m: m}
		for _, c := range rootNode.Children {
			b.visit(c, m.root)
		}
	}
	return m
}

// qualifiedName builds a dotted name for a binding from the chain of scopes
// that owns it.
func (m *module) qualifiedName(sc *scope, name string) string {
	parts := []string{name}
	for s := sc; s != nil && s.kind != scopeModule; s = s.parent {
		if n := s.owner.FieldChild("name"); n != nil {
			parts = append([]string{n.Text}, parts...)
		}
	}
	if m.name != "" {
		parts = append([]string{m.name}, parts...)
	}
	return strings.Join(parts, ".")
}

// scopeOf returns the scope an occurrence is evaluated in. Decorators,
// default values, annotations and base classes belong to the enclosing
// scope.
func (m *module) scopeOf(occ *syntax.Node) *scope {
	child := occ
	for a := occ.Parent; a != nil; child, a = a, a.Parent {
		switch a.Type {
		case "function_definition", "lambda":
			if child.Field == "body" || (child.Field == "parameters" && !inParameterValue(occ, child)) {
				if sc := m.scopes[a]; sc != nil {
					return sc
				}
			}
		case "class_definition":
			if child.Field == "body" {
				if sc := m.scopes[a]; sc != nil {
					return sc
				}
			}
		}
	}
	return m.root
}

// inParameterValue reports whether occ sits in a default value or
// annotation inside the parameter list params.
func inParameterValue(occ, params *syntax.Node) bool {
	for n := occ; n != nil && n != params; n = n.Parent {
		if n.Field == "value" || n.Field == "type" {
			return true
		}
	}
	return false
}

// binder records the bindings of one module.
type binder struct {
	m *module
}

func (b binder) visit(n *syntax.Node, sc *scope) {
	if n == nil {
		return
	}
	switch n.Type {
	case "class_definition":
		sc.add(n.FieldChild("name"), bindClass, nil)
		b.visit(n.FieldChild("superclasses"), sc)
		cs := newScope(scopeClass, n, sc)
		b.m.scopes[n] = cs
		b.visit(n.FieldChild("body"), cs)
		return
	case "function_definition":
		sc.add(n.FieldChild("name"), bindFunction, nil)
		fs := newScope(scopeFunction, n, sc)
		b.m.scopes[n] = fs
		b.params(n.FieldChild("parameters"), fs, sc)
		b.visit(n.FieldChild("return_type"), sc)
		b.visit(n.FieldChild("body"), fs)
		return
	case "lambda":
		ls := newScope(scopeFunction, n, sc)
		b.m.scopes[n] = ls
		b.params(n.FieldChild("parameters"), ls, sc)
		b.visit(n.FieldChild("body"), ls)
		return
	case "assignment", "augmented_assignment":
		b.target(n.FieldChild("left"), sc)
		b.visit(n.FieldChild("type"), sc)
		b.visit(n.FieldChild("right"), sc)
		return
	case "for_statement", "for_in_clause":
		b.target(n.FieldChild("left"), sc)
		for _, c := range n.Children {
			if c.Field != "left" {
				b.visit(c, sc)
			}
		}
		return
	case "named_expression":
		b.target(n.FieldChild("name"), sc)
		b.visit(n.FieldChild("value"), sc)
		return
	case "as_pattern":
		for _, c := range n.Children {
			if c.Field == "alias" {
				for _, t := range c.NamedChildren() {
					b.target(t, sc)
				}
				if c.Type == "identifier" {
					b.target(c, sc)
				}
				continue
			}
			b.visit(c, sc)
		}
		return
	case "except_clause":
		afterAs := false
		for _, c := range n.Children {
			if c.Type == "as" {
				afterAs = true
				continue
			}
			if afterAs && c.Named {
				b.target(c, sc)
				afterAs = false
				continue
			}
			b.visit(c, sc)
		}
		return
	case "global_statement":
		for _, c := range n.NamedChildren() {
			sc.globals[c.Text] = true
		}
		return
	case "nonlocal_statement":
		for _, c := range n.NamedChildren() {
			sc.nonlocals[c.Text] = true
		}
		return
	case "import_statement":
		b.importStatement(n, sc)
		return
	case "import_from_statement":
		b.importFrom(n, sc)
		return
	}
	for _, c := range n.Children {
		b.visit(c, sc)
	}
}

func (b binder) params(params *syntax.Node, fs, outer *scope) {
	if params == nil {
		return
	}
	for _, p := range params.Children {
		switch p.Type {
		case "identifier":
			fs.add(p, bindParam, nil)
		case "typed_parameter":
			for _, c := range p.Children {
				switch {
				case c.Type == "identifier" && c.Field == "":
					fs.add(c, bindParam, nil)
				case c.Type == "list_splat_pattern" || c.Type == "dictionary_splat_pattern":
					fs.add(c.FirstChildOfType("identifier"), bindParam, nil)
				default:
					b.visit(c, outer)
				}
			}
		case "default_parameter", "typed_default_parameter":
			fs.add(p.FieldChild("name"), bindParam, nil)
			b.visit(p.FieldChild("type"), outer)
			b.visit(p.FieldChild("value"), outer)
		case "list_splat_pattern", "dictionary_splat_pattern":
			fs.add(p.FirstChildOfType("identifier"), bindParam, nil)
		}
	}
}

// target binds the names assigned by an assignment-like target.
func (b binder) target(t *syntax.Node, sc *scope) {
	if t == nil {
		return
	}
	switch t.Type {
	case "identifier":
		switch {
		case sc.globals[t.Text]:
			b.m.root.add(t, bindStatement, nil)
		case sc.nonlocals[t.Text]:
		default:
			sc.add(t, bindStatement, nil)
		}
	case "pattern_list", "tuple_pattern", "list_pattern", "tuple", "list",
		"parenthesized_expression", "list_splat_pattern", "list_splat", "expression_list":
		for _, c := range t.NamedChildren() {
			b.target(c, sc)
		}
	case "attribute":
		b.instanceAttribute(t, sc)
		b.visit(t.FieldChild("object"), sc)
	default:
		b.visit(t, sc)
	}
}

// instanceAttribute records self.attr assignments on the owning class.
func (b binder) instanceAttribute(t *syntax.Node, sc *scope) {
	obj := t.FieldChild("object")
	attr := t.FieldChild("attribute")
	if obj == nil || attr == nil || obj.Type != "identifier" || sc.kind != scopeFunction {
		return
	}
	first := firstParameter(sc.owner)
	if first == nil || first.Text != obj.Text {
		return
	}
	cls := index.MethodClass(first)
	if cls == nil {
		return
	}
	if cs := b.m.scopes[cls]; cs != nil {
		cs.attrs[attr.Text] = append(cs.attrs[attr.Text], &binding{kind: bindStatement, name: attr})
	}
}

// firstParameter returns the identifier of a function's first parameter.
func firstParameter(fn *syntax.Node) *syntax.Node {
	if fn == nil || fn.Type != "function_definition" {
		return nil
	}
	params := fn.FieldChild("parameters")
	if params == nil {
		return nil
	}
	named := params.NamedChildren()
	if len(named) == 0 {
		return nil
	}
	p := named[0]
	switch p.Type {
	case "identifier":
		return p
	case "typed_parameter":
		return p.FirstChildOfType("identifier")
	case "default_parameter", "typed_default_parameter":
		return p.FieldChild("name")
	}
	return nil
}

func (b binder) importStatement(n *syntax.Node, sc *scope) {
	for _, item := range n.FieldChildren("name") {
		switch item.Type {
		case "dotted_name":
			first := item.FirstChildOfType("identifier")
			if first != nil {
				sc.add(first, bindImport, &importRef{module: first.Text})
			}
		case "aliased_import":
			alias := item.FieldChild("alias")
			if dotted := item.FieldChild("name"); dotted != nil && alias != nil {
				sc.add(alias, bindImport, &importRef{module: dottedText(dotted), alias: true})
			}
		}
	}
}

func (b binder) importFrom(n *syntax.Node, sc *scope) {
	modName, level := importSource(n)
	for _, c := range n.Children {
		switch {
		case c.Type == "wildcard_import":
			sc.wildcards = append(sc.wildcards, importRef{module: modName, level: level})
		case c.Field != "name":
		case c.Type == "dotted_name":
			names := identifiers(c)
			if len(names) > 0 {
				last := names[len(names)-1]
				sc.add(last, bindImport, &importRef{module: modName, level: level, attr: dottedText(c)})
			}
		case c.Type == "aliased_import":
			alias := c.FieldChild("alias")
			if dotted := c.FieldChild("name"); dotted != nil && alias != nil {
				sc.add(alias, bindImport, &importRef{module: modName, level: level, attr: dottedText(dotted), alias: true})
			}
		}
	}
}

// importSource returns the module and relative level of a from-import.
func importSource(n *syntax.Node) (string, int) {
	mod := n.FieldChild("module_name")
	if mod == nil {
		return "", 0
	}
	if mod.Type == "dotted_name" {
		return dottedText(mod), 0
	}
	level := 0
	name := ""
	syntax.Walk(mod, func(c *syntax.Node) bool {
		switch c.Type {
		case ".":
			level++
		case "dotted_name":
			name = dottedText(c)
			return false
		}
		return true
	})
	return name, level
}

func identifiers(n *syntax.Node) []*syntax.Node {
	var out []*syntax.Node
	for _, c := range n.Children {
		if c.Type == "identifier" {
			out = append(out, c)
		}
	}
	return out
}

func dottedText(n *syntax.Node) string {
	if n.Type == "identifier" {
		return n.Text
	}
	var parts []string
	for _, id := range identifiers(n) {
		parts = append(parts, id.Text)
	}
	return strings.Join(parts, ".")
}
