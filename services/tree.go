package services

// treeNode is the in-memory arena entry for one institution during a
// subtree walk. Only the fields the analyzer and executor need are loaded.
type treeNode struct {
	ID       uint
	ParentID *uint
	Name     string
	Type     string
	Level    int
}

// childFetcher returns the direct children of the given parent ids in one
// batched query. Walks issue one fetch per tree level, not per node.
type childFetcher func(parentIDs []uint) ([]treeNode, error)

// subtree is the arena built by walkSubtree: nodes indexed by id, an
// adjacency list, and the breadth-first visit order.
type subtree struct {
	root       treeNode
	nodes      map[uint]treeNode
	children   map[uint][]uint
	order      []uint // breadth-first, root first
	outOfScope int    // nodes excluded because the caller cannot see them
}

// walkSubtree does a breadth-first walk from root. A visited set guards
// against malformed parent pointers: the tree should be acyclic by
// construction, but a corrupt row must not send the walk into a loop.
// Nodes outside scope are skipped (and their subtrees with them) but
// counted so the report can flag the exclusion.
func walkSubtree(root treeNode, fetch childFetcher, scope Scope) (*subtree, error) {
	t := &subtree{
		root:     root,
		nodes:    map[uint]treeNode{root.ID: root},
		children: make(map[uint][]uint),
		order:    []uint{root.ID},
	}
	visited := map[uint]bool{root.ID: true}
	frontier := []uint{root.ID}

	for len(frontier) > 0 {
		rows, err := fetch(frontier)
		if err != nil {
			return nil, err
		}

		var next []uint
		for _, n := range rows {
			if visited[n.ID] {
				continue
			}
			visited[n.ID] = true
			if !scope.Allows(n.ID) {
				t.outOfScope++
				continue
			}
			t.nodes[n.ID] = n
			if n.ParentID != nil {
				t.children[*n.ParentID] = append(t.children[*n.ParentID], n.ID)
			}
			t.order = append(t.order, n.ID)
			next = append(next, n.ID)
		}
		frontier = next
	}

	return t, nil
}

// size returns the number of visible nodes including the root.
func (t *subtree) size() int {
	return len(t.order)
}

// ids returns all visible node ids, root first.
func (t *subtree) ids() []uint {
	out := make([]uint, len(t.order))
	copy(out, t.order)
	return out
}

// bottomUp returns node ids deepest-first. A parent always precedes its
// children in breadth-first order, so the reverse guarantees every node is
// processed before its parent.
func (t *subtree) bottomUp() []uint {
	out := make([]uint, len(t.order))
	for i, id := range t.order {
		out[len(t.order)-1-i] = id
	}
	return out
}
