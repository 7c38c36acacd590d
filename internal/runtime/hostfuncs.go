package runtime

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"unsafe"

	"github.com/risor-io/risor/object"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// treeSources maps each tree parsed by a script to its source bytes.
// smacker/go-tree-sitter nodes cannot reach their tree, so the key is the
// root node's address, found again by climbing Parent().
type treeSources struct {
	mu   sync.RWMutex
	byID map[uintptr][]byte
}

func newTreeSources() *treeSources {
	return &treeSources{byID: make(map[uintptr][]byte)}
}

func rootKey(n *sitter.Node) uintptr {
	for p := n.Parent(); p != nil; p = n.Parent() {
		n = p
	}
	return uintptr(unsafe.Pointer(n))
}

func (ts *treeSources) remember(tree *sitter.Tree, src []byte) {
	key := rootKey(tree.RootNode())
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.byID[key] = src
}

func (ts *treeSources) lookup(n *sitter.Node) ([]byte, bool) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	src, ok := ts.byID[rootKey(n)]
	return src, ok
}

// builtin wraps fn with an exact arity check.
func builtin(name string, arity int, fn func(ctx context.Context, args []object.Object) object.Object) *object.Builtin {
	return object.NewBuiltin(name, func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != arity {
			return object.NewArgsError(name, arity, len(args))
		}
		return fn(ctx, args)
	})
}

// proxy returns a Risor handle for a Go value; a nil node becomes nil.
func proxy(fn string, v any) object.Object {
	if n, ok := v.(*sitter.Node); ok && n == nil {
		return object.Nil
	}
	p, err := object.NewProxy(v)
	if err != nil {
		return object.Errorf("%s: proxy %T: %v", fn, v, err)
	}
	return p
}

func nodeArg(fn string, arg object.Object) (*sitter.Node, *object.Error) {
	p, ok := arg.(*object.Proxy)
	if !ok {
		return nil, object.Errorf("%s: expected a node, got %s", fn, arg.Type())
	}
	n, ok := p.Interface().(*sitter.Node)
	if !ok {
		return nil, object.Errorf("%s: expected *sitter.Node, got %T", fn, p.Interface())
	}
	return n, nil
}

// nodeSource resolves a node argument together with its tree's source.
func (ts *treeSources) nodeSource(fn string, arg object.Object) (*sitter.Node, []byte, *object.Error) {
	n, errObj := nodeArg(fn, arg)
	if errObj != nil {
		return nil, nil, errObj
	}
	src, ok := ts.lookup(n)
	if !ok {
		return nil, nil, object.Errorf("%s: node does not belong to a tree parsed by this script", fn)
	}
	return n, src, nil
}

func (ts *treeSources) parse(ctx context.Context, fn string, src []byte) object.Object {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return object.Errorf("%s: %v", fn, err)
	}
	ts.remember(tree, src)
	return proxy(fn, tree)
}

// parse(path) → Tree
func makeParseFn(ts *treeSources) *object.Builtin {
	return builtin("parse", 1, func(ctx context.Context, args []object.Object) object.Object {
		path, err := toString(args[0])
		if err != nil {
			return object.Errorf("parse: path %v", err)
		}
		src, err := os.ReadFile(path)
		if err != nil {
			return object.Errorf("parse: reading %s: %v", path, err)
		}
		return ts.parse(ctx, "parse", src)
	})
}

// parse_src(source) → Tree
func makeParseSrcFn(ts *treeSources) *object.Builtin {
	return builtin("parse_src", 1, func(ctx context.Context, args []object.Object) object.Object {
		src, err := toString(args[0])
		if err != nil {
			return object.Errorf("parse_src: source %v", err)
		}
		return ts.parse(ctx, "parse_src", []byte(src))
	})
}

// node_text(node) → string
//
// Risor cannot pass a string where Node.Content wants []byte.
func makeNodeTextFn(ts *treeSources) *object.Builtin {
	return builtin("node_text", 1, func(ctx context.Context, args []object.Object) object.Object {
		n, src, errObj := ts.nodeSource("node_text", args[0])
		if errObj != nil {
			return errObj
		}
		return object.NewString(n.Content(src))
	})
}

// node_child(node, field) → Node or nil
func makeNodeChildFn() *object.Builtin {
	return builtin("node_child", 2, func(ctx context.Context, args []object.Object) object.Object {
		n, errObj := nodeArg("node_child", args[0])
		if errObj != nil {
			return errObj
		}
		field, err := toString(args[1])
		if err != nil {
			return object.Errorf("node_child: field %v", err)
		}
		return proxy("node_child", n.ChildByFieldName(field))
	})
}

// query(pattern, node) → []map of capture name to Node
func makeQueryFn(ts *treeSources) *object.Builtin {
	return builtin("query", 2, func(ctx context.Context, args []object.Object) object.Object {
		pattern, err := toString(args[0])
		if err != nil {
			return object.Errorf("query: pattern %v", err)
		}
		n, src, errObj := ts.nodeSource("query", args[1])
		if errObj != nil {
			return errObj
		}

		q, err := sitter.NewQuery([]byte(pattern), python.GetLanguage())
		if err != nil {
			return object.Errorf("query: invalid pattern: %v", err)
		}
		defer q.Close()
		cur := sitter.NewQueryCursor()
		defer cur.Close()
		cur.Exec(q, n)

		matches := []object.Object{}
		for m, ok := cur.NextMatch(); ok; m, ok = cur.NextMatch() {
			m = cur.FilterPredicates(m, src)
			captures := make(map[string]object.Object, len(m.Captures))
			for _, c := range m.Captures {
				captures[q.CaptureNameForId(c.Index)] = proxy("query", c.Node)
			}
			matches = append(matches, object.NewMap(captures))
		}
		return object.NewList(matches)
	})
}

// logObject is the script "log" global.
type logObject struct {
	logger *slog.Logger
}

func (l *logObject) Debug(msg string) { l.logger.Debug(msg) }
func (l *logObject) Info(msg string)  { l.logger.Info(msg) }
func (l *logObject) Warn(msg string)  { l.logger.Warn(msg) }
func (l *logObject) Error(msg string) { l.logger.Error(msg) }
