package index

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/jward/pytrail/internal/symbol"
	"github.com/jward/pytrail/internal/syntax"
)

// ModuleHierarchy derives the module hierarchy of a source file: the suffix
// is stripped, then the first search root containing the file, then a
// trailing __init__. An empty segment means the file has no module name.
func ModuleHierarchy(path string, searchPath []string) (symbol.Hierarchy, bool) {
	if path == VirtualFilePath {
		return symbol.NewHierarchy(moduleStem(path)), true
	}
	trimmed := absPath(path)
	for _, suffix := range []string{".pyi", ".py"} {
		if strings.HasSuffix(trimmed, suffix) {
			trimmed = strings.TrimSuffix(trimmed, suffix)
			break
		}
	}
	for _, root := range searchPath {
		rest, ok := strings.CutPrefix(trimmed, root)
		if !ok || rest == "" {
			continue
		}
		if !strings.HasPrefix(rest, string(filepath.Separator)) && !strings.HasSuffix(root, string(filepath.Separator)) {
			continue
		}
		trimmed = strings.TrimPrefix(rest, string(filepath.Separator))
		break
	}

	parts := strings.Split(filepath.ToSlash(trimmed), "/")
	if len(parts) > 0 && parts[len(parts)-1] == "__init__" {
		parts = parts[:len(parts)-1]
	}
	if len(parts) == 0 {
		return symbol.Hierarchy{}, false
	}
	for _, p := range parts {
		if p == "" {
			return symbol.Hierarchy{}, false
		}
	}
	return symbol.NewHierarchy(parts...), true
}

func (s *Session) moduleHierarchy(path string) (symbol.Hierarchy, bool) {
	return ModuleHierarchy(path, s.sysPath)
}

func moduleStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(strings.TrimSuffix(base, ".pyi"), ".py")
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}

// packageRoot walks up from the file's directory while __init__.py exists.
func packageRoot(path string) string {
	dir := filepath.Dir(absPath(path))
	for {
		if _, err := os.Stat(filepath.Join(dir, "__init__.py")); err != nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}

// hierarchyOfNode returns the hierarchical name of the definition that the
// identifier (or the name of the definition node) n resolves to. The
// resolver is asked for n's canonical definition, whose container is
// resolved recursively. ok is false when the resolver has no located
// answer.
func (s *Session) hierarchyOfNode(ctx context.Context, n *syntax.Node, path string, depth int) (symbol.Hierarchy, bool) {
	if n == nil {
		return symbol.Hierarchy{}, false
	}
	name := n
	if n.Kind != syntax.Name {
		name = n.FieldChild("name")
		if name == nil {
			return symbol.Hierarchy{}, false
		}
	}
	if depth > maxHierarchyDepth || s.visiting[name] {
		return symbol.Unsolved(), true
	}
	if e, ok := s.memo[name]; ok {
		return e.h, e.ok
	}

	s.visiting[name] = true
	h, ok := s.computeHierarchy(ctx, name, path, depth)
	delete(s.visiting, name)

	s.memo[name] = memoEntry{h: h, ok: ok}
	return h, ok
}

func (s *Session) computeHierarchy(ctx context.Context, name *syntax.Node, path string, depth int) (symbol.Hierarchy, bool) {
	for _, def := range s.definitions(ctx, path, name) {
		if def.NameNode == nil {
			continue
		}
		defPath := s.definitionPath(def)
		element := def.NameNode.Text

		container, hasContainer := s.containerOf(ctx, def.NameNode, defPath)
		if hasContainer {
			parent, ok := s.hierarchyOfNode(ctx, container, defPath, depth+1)
			if !ok {
				parent = symbol.Unsolved()
			}
			return parent.Append(element), true
		}

		module, ok := s.moduleHierarchy(defPath)
		if !ok {
			module = symbol.Unsolved()
		}
		return module.Append(element), true
	}
	return symbol.Hierarchy{}, false
}

// containerOf finds the node whose hierarchy prefixes the definition name
// n. For attribute definitions that is the object, with the implicit
// instance parameter of a method replaced by its class. Otherwise it is the
// enclosing class or function. hasContainer is false at module level.
func (s *Session) containerOf(ctx context.Context, n *syntax.Node, path string) (*syntax.Node, bool) {
	if n.Field == "attribute" && n.Parent.Is("attribute") {
		obj := n.Parent.FieldChild("object")
		if cls := s.selfClass(ctx, obj, path); cls != nil {
			return cls.FieldChild("name"), true
		}
		return nameOf(obj), true
	}
	if def := enclosingDef(n); def != nil {
		return def.FieldChild("name"), true
	}
	return nil, false
}

// selfClass returns the class of a method when obj resolves to that
// method's implicit instance parameter.
func (s *Session) selfClass(ctx context.Context, obj *syntax.Node, path string) *syntax.Node {
	if obj == nil || obj.Kind != syntax.Name {
		return nil
	}
	for _, def := range s.definitions(ctx, path, obj) {
		if def.Type != TypeParameter {
			continue
		}
		if cls := MethodClass(def.NameNode); cls != nil {
			return cls
		}
	}
	return nil
}

// definitionHierarchy names a class or function candidate: by its full
// name when it has no location, otherwise through its name node.
func (s *Session) definitionHierarchy(ctx context.Context, def Definition) (symbol.Hierarchy, bool) {
	if !def.HasLocation() || def.NameNode == nil {
		return fullNameHierarchy(def)
	}
	return s.hierarchyOfNode(ctx, def.NameNode, s.definitionPath(def), 0)
}

func fullNameHierarchy(def Definition) (symbol.Hierarchy, bool) {
	h, ok := symbol.FromDotted(def.FullName)
	if !ok {
		return symbol.Hierarchy{}, false
	}
	if def.IsBuiltin() {
		root := symbol.NewHierarchy(symbol.BuiltinRoot)
		for _, e := range h.Elements {
			root = root.Append(e.Name)
		}
		return root, true
	}
	return h, true
}

// moduleDefinitionHierarchy names a module candidate from its file when
// known, else from its full name.
func (s *Session) moduleDefinitionHierarchy(def Definition) (symbol.Hierarchy, bool) {
	if def.ModulePath != "" {
		h, ok := s.moduleHierarchy(def.ModulePath)
		if ok {
			if def.Name != "" && h.Last() != def.Name {
				h = h.Append(def.Name)
			}
			return h, true
		}
	}
	return fullNameHierarchy(def)
}

// localSymbolName names a parameter or function-local variable after its
// enclosing function, falling back to the current scope.
func (s *Session) localSymbolName(ctx context.Context, def Definition) string {
	var contextName string
	if fn := def.NameNode.Ancestor("function_definition"); fn != nil {
		if h, ok := s.hierarchyOfNode(ctx, fn.FieldChild("name"), s.definitionPath(def), 0); ok {
			contextName = h.DisplayString()
		}
	}
	if contextName == "" {
		contextName = s.scopes.top().name
	}
	return contextName + "<" + def.NameNode.Text + ">"
}
