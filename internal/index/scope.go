package index

import "github.com/jward/pytrail/internal/syntax"

// frame is one entry of the scope stack. Seeded frames have a nil owner and
// are never popped.
type frame struct {
	id    int64
	name  string
	owner *syntax.Node
}

type scopeStack struct {
	frames []frame
}

func (s *scopeStack) push(id int64, name string, owner *syntax.Node) {
	s.frames = append(s.frames, frame{id: id, name: name, owner: owner})
}

// popIfOwner pops the top frame only when n is the node that pushed it.
func (s *scopeStack) popIfOwner(n *syntax.Node) bool {
	if n == nil || len(s.frames) == 0 {
		return false
	}
	if s.frames[len(s.frames)-1].owner != n {
		return false
	}
	s.frames = s.frames[:len(s.frames)-1]
	return true
}

func (s *scopeStack) top() frame {
	if len(s.frames) == 0 {
		return frame{}
	}
	return s.frames[len(s.frames)-1]
}

func (s *scopeStack) depth() int {
	return len(s.frames)
}
