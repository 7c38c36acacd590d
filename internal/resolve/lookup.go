package resolve

import (
	"context"

	"github.com/jward/pytrail/internal/index"
	"github.com/jward/pytrail/internal/syntax"
)

// query carries the state of one Definitions call. seen guards against
// cyclic imports and class hierarchies.
type query struct {
	r     *Resolver
	ctx   context.Context
	depth int
	seen  map[*syntax.Node]bool
}

func (q *query) enter(n *syntax.Node) bool {
	if q.depth >= maxImportDepth || q.ctx.Err() != nil {
		return false
	}
	if n != nil {
		if q.seen[n] {
			return false
		}
		q.seen[n] = true
	}
	q.depth++
	return true
}

func (q *query) leave(n *syntax.Node) {
	q.depth--
	if n != nil {
		delete(q.seen, n)
	}
}

// occurrence resolves an identifier inside module m.
func (q *query) occurrence(m *module, n *syntax.Node) []index.Definition {
	if !q.enter(n) {
		return nil
	}
	defer q.leave(n)

	if stmt := n.Ancestor("import_statement", "import_from_statement", "future_import_statement"); stmt != nil {
		return q.importOccurrence(m, stmt, n)
	}
	if n.Field == "name" && n.Parent.Is("keyword_argument") {
		return q.keywordArgument(m, n)
	}
	if n.Field == "attribute" && n.Parent.Is("attribute") {
		return q.attribute(m, n)
	}

	if b := q.lookup(m, n, n.Text); b != nil {
		return q.bindingDefinitions(m, b, n)
	}
	if def, ok := builtinDefinition(n.Text); ok {
		return []index.Definition{def}
	}
	return nil
}

// lookup performs LEGB lookup of name from the scope of occ. Class scopes
// are visible only to their own body.
func (q *query) lookup(m *module, occ *syntax.Node, name string) *binding {
	sc := m.scopeOf(occ)
	if sc.globals[name] {
		sc = m.root
	}
	for s, i := sc, 0; s != nil; s, i = s.parent, i+1 {
		if s.kind == scopeClass && i > 0 {
			continue
		}
		if b := s.find(name, occ); b != nil {
			return b
		}
	}
	return nil
}

// bindingDefinitions turns a binding into candidates, following imports.
func (q *query) bindingDefinitions(m *module, b *binding, occ *syntax.Node) []index.Definition {
	switch b.kind {
	case bindImport:
		if b.imp.alias && b.name == occ {
			return []index.Definition{q.located(m, b, index.TypeStatement)}
		}
		return q.importTarget(m, *b.imp)
	case bindClass:
		return []index.Definition{q.located(m, b, index.TypeClass)}
	case bindFunction:
		return []index.Definition{q.located(m, b, index.TypeFunction)}
	case bindParam:
		return []index.Definition{q.located(m, b, index.TypeParameter)}
	default:
		return []index.Definition{q.located(m, b, index.TypeStatement)}
	}
}

func (q *query) located(m *module, b *binding, typ index.DefinitionType) index.Definition {
	pos := b.name.Start
	return index.Definition{
		Type:       typ,
		Name:       b.name.Text,
		ModuleName: m.name,
		ModulePath: m.path,
		FullName:   m.qualifiedName(m.scopeOf(b.name), b.name.Text),
		NameNode:   b.name,
		Pos:        &pos,
	}
}

func moduleDefinition(ref moduleRef) index.Definition {
	name := ref.name
	if i := lastDot(name); i >= 0 {
		name = name[i+1:]
	}
	return index.Definition{
		Type:       index.TypeModule,
		Name:       name,
		ModuleName: ref.name,
		ModulePath: ref.path,
		FullName:   ref.name,
	}
}

func lastDot(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '.' {
			return i
		}
	}
	return -1
}

func externalInstance(fullName string) index.Definition {
	name := fullName
	if i := lastDot(name); i >= 0 {
		name = name[i+1:]
	}
	return index.Definition{Type: index.TypeInstance, Name: name, FullName: fullName}
}

// importTarget resolves what an import binding refers to.
func (q *query) importTarget(m *module, imp importRef) []index.Definition {
	if imp.attr == "" {
		ref, ok := q.r.findModule(m, imp.module, imp.level)
		if !ok {
			return nil
		}
		return []index.Definition{moduleDefinition(ref)}
	}
	return q.moduleMember(m, imp.module, imp.level, imp.attr)
}

// moduleMember resolves attr inside the module named by (dotted, level),
// falling back to a submodule of that name.
func (q *query) moduleMember(from *module, dotted string, level int, attr string) []index.Definition {
	ref, ok := q.r.findModule(from, dotted, level)
	if !ok {
		return nil
	}
	if ref.external {
		return []index.Definition{externalInstance(ref.name + "." + attr)}
	}
	target, err := q.r.load(q.ctx, ref.path)
	if err != nil {
		return nil
	}
	return q.memberOf(target, attr)
}

// memberOf resolves a top-level name of a loaded module, then a submodule,
// then names brought in by wildcard imports.
func (q *query) memberOf(target *module, attr string) []index.Definition {
	if b := target.root.find(attr, nil); b != nil {
		if !q.enter(b.name) {
			return nil
		}
		defs := q.bindingDefinitions(target, b, nil)
		q.leave(b.name)
		return defs
	}
	if sub, ok := q.r.submodule(target, attr); ok {
		return []index.Definition{moduleDefinition(sub)}
	}
	for _, w := range target.root.wildcards {
		if defs := q.moduleMember(target, w.module, w.level, attr); len(defs) > 0 {
			return defs
		}
	}
	return nil
}

// importOccurrence resolves identifiers that appear inside import
// statements.
func (q *query) importOccurrence(m *module, stmt, n *syntax.Node) []index.Definition {
	if n.Field == "alias" && n.Parent.Is("aliased_import") {
		if b := m.scopeOf(n).find(n.Text, n); b != nil && b.name == n {
			return []index.Definition{q.located(m, b, index.TypeStatement)}
		}
		return nil
	}

	switch stmt.Type {
	case "future_import_statement":
		return []index.Definition{externalInstance("__future__." + n.Text)}
	case "import_statement":
		return q.modulePrefix(m, n, 0)
	}

	modName, level := importSource(stmt)
	if mod := stmt.FieldChild("module_name"); mod != nil && n.Within(mod) {
		return q.modulePrefix(m, n, level)
	}
	return q.moduleMember(m, modName, level, n.Text)
}

// modulePrefix resolves the module named by the dotted name up to and
// including n.
func (q *query) modulePrefix(m *module, n *syntax.Node, level int) []index.Definition {
	dotted := n.Parent
	prefix := n.Text
	if dotted.Is("dotted_name") {
		prefix = ""
		for _, id := range identifiers(dotted) {
			if prefix != "" {
				prefix += "."
			}
			prefix += id.Text
			if id == n {
				break
			}
		}
	}
	ref, ok := q.r.findModule(m, prefix, level)
	if !ok {
		return nil
	}
	return []index.Definition{moduleDefinition(ref)}
}

// attribute resolves obj.attr where n is the attr identifier.
func (q *query) attribute(m *module, n *syntax.Node) []index.Definition {
	obj := n.Parent.FieldChild("object")
	for _, od := range q.expression(m, obj) {
		if defs := q.memberOfDefinition(od, n.Text); len(defs) > 0 {
			return defs
		}
	}
	return nil
}

// expression resolves the value an expression denotes, as far as lexical
// facts allow. Calling a class yields the class itself.
func (q *query) expression(m *module, expr *syntax.Node) []index.Definition {
	if expr == nil {
		return nil
	}
	switch expr.Type {
	case "identifier":
		return q.occurrence(m, expr)
	case "attribute":
		if attr := expr.FieldChild("attribute"); attr != nil {
			return q.occurrence(m, attr)
		}
	case "call":
		var out []index.Definition
		for _, d := range q.expression(m, expr.FieldChild("function")) {
			if d.Type == index.TypeClass {
				out = append(out, d)
			}
		}
		return out
	case "parenthesized_expression":
		if named := expr.NamedChildren(); len(named) == 1 {
			return q.expression(m, named[0])
		}
	}
	return nil
}

// memberOfDefinition looks attr up on whatever def denotes.
func (q *query) memberOfDefinition(def index.Definition, attr string) []index.Definition {
	switch def.Type {
	case index.TypeModule:
		if def.ModulePath == "" {
			return []index.Definition{externalInstance(def.FullName + "." + attr)}
		}
		target, err := q.r.load(q.ctx, def.ModulePath)
		if err != nil {
			return nil
		}
		return q.memberOf(target, attr)
	case index.TypeClass:
		if def.NameNode == nil {
			return nil
		}
		return q.classMember(def.ModulePath, def.NameNode.Parent, attr)
	case index.TypeParameter:
		if cls := index.MethodClass(def.NameNode); cls != nil {
			return q.classMember(def.ModulePath, cls, attr)
		}
	case index.TypeInstance:
		if !def.HasLocation() && def.FullName != "" {
			return []index.Definition{externalInstance(def.FullName + "." + attr)}
		}
	}
	return nil
}

// classMember resolves attr on a class: its body first, then attributes
// assigned through self in its methods, then its resolvable bases.
func (q *query) classMember(path string, cls *syntax.Node, attr string) []index.Definition {
	if cls == nil || cls.Kind != syntax.ClassDef || !q.enter(cls) {
		return nil
	}
	defer q.leave(cls)

	m, err := q.r.load(q.ctx, path)
	if err != nil {
		return nil
	}
	cs := m.scopes[cls]
	if cs == nil {
		return nil
	}
	if bs := cs.names[attr]; len(bs) > 0 {
		return q.bindingDefinitions(m, bs[0], nil)
	}
	if bs := cs.attrs[attr]; len(bs) > 0 {
		return []index.Definition{q.located(m, bs[0], index.TypeStatement)}
	}
	bases := cls.FieldChild("superclasses")
	if bases == nil {
		return nil
	}
	for _, base := range bases.NamedChildren() {
		if base.Type == "keyword_argument" {
			continue
		}
		for _, bd := range q.expression(m, base) {
			if bd.Type != index.TypeClass || bd.NameNode == nil {
				continue
			}
			if defs := q.classMember(bd.ModulePath, bd.NameNode.Parent, attr); len(defs) > 0 {
				return defs
			}
		}
	}
	return nil
}

// keywordArgument resolves the name of a keyword argument to the matching
// parameter of the callee.
func (q *query) keywordArgument(m *module, n *syntax.Node) []index.Definition {
	args := n.Parent.Parent
	call := args.Parent
	if !args.Is("argument_list") || !call.Is("call") {
		return nil
	}
	for _, d := range q.expression(m, call.FieldChild("function")) {
		if d.NameNode == nil {
			continue
		}
		fn := d.NameNode.Parent
		path := d.ModulePath
		if d.Type == index.TypeClass {
			inits := q.classMember(d.ModulePath, fn, "__init__")
			if len(inits) == 0 || inits[0].NameNode == nil {
				continue
			}
			fn = inits[0].NameNode.Parent
			path = inits[0].ModulePath
		} else if d.Type != index.TypeFunction {
			continue
		}
		target, err := q.r.load(q.ctx, path)
		if err != nil {
			continue
		}
		if fs := target.scopes[fn]; fs != nil {
			for _, b := range fs.names[n.Text] {
				if b.kind == bindParam {
					return []index.Definition{q.located(target, b, index.TypeParameter)}
				}
			}
		}
	}
	return nil
}
