package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uintPtr(v uint) *uint { return &v }

// mapFetcher builds a childFetcher from a static parent -> children table.
func mapFetcher(children map[uint][]treeNode) childFetcher {
	return func(parentIDs []uint) ([]treeNode, error) {
		var out []treeNode
		for _, pid := range parentIDs {
			out = append(out, children[pid]...)
		}
		return out, nil
	}
}

// threeLevelTree builds: 1 -> (2, 3), 2 -> (4, 5), 3 -> (6).
func threeLevelTree() (treeNode, map[uint][]treeNode) {
	root := treeNode{ID: 1, Name: "region", Type: "region", Level: 2}
	children := map[uint][]treeNode{
		1: {
			{ID: 2, ParentID: uintPtr(1), Name: "sector-a", Type: "sector", Level: 3},
			{ID: 3, ParentID: uintPtr(1), Name: "sector-b", Type: "sector", Level: 3},
		},
		2: {
			{ID: 4, ParentID: uintPtr(2), Name: "school-1", Type: "school", Level: 4},
			{ID: 5, ParentID: uintPtr(2), Name: "school-2", Type: "school", Level: 4},
		},
		3: {
			{ID: 6, ParentID: uintPtr(3), Name: "school-3", Type: "school", Level: 4},
		},
	}
	return root, children
}

func TestWalkSubtreeVisitsBreadthFirst(t *testing.T) {
	root, children := threeLevelTree()

	tree, err := walkSubtree(root, mapFetcher(children), nil)
	require.NoError(t, err)

	assert.Equal(t, 6, tree.size())
	assert.Equal(t, []uint{1, 2, 3, 4, 5, 6}, tree.ids())
	assert.Equal(t, 0, tree.outOfScope)
	assert.Equal(t, []uint{2, 3}, tree.children[1])
}

func TestWalkSubtreeBottomUpPutsChildrenBeforeParents(t *testing.T) {
	root, children := threeLevelTree()

	tree, err := walkSubtree(root, mapFetcher(children), nil)
	require.NoError(t, err)

	order := tree.bottomUp()
	require.Len(t, order, 6)

	pos := make(map[uint]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	for parent, kids := range tree.children {
		for _, kid := range kids {
			assert.Less(t, pos[kid], pos[parent],
				"child %d must be processed before parent %d", kid, parent)
		}
	}
	assert.Equal(t, root.ID, order[len(order)-1], "target node goes last")
}

func TestWalkSubtreeGuardsAgainstCycles(t *testing.T) {
	// Corrupt data: the leaf claims the root as its child.
	root := treeNode{ID: 1, Name: "a"}
	children := map[uint][]treeNode{
		1: {{ID: 2, ParentID: uintPtr(1), Name: "b"}},
		2: {{ID: 1, ParentID: uintPtr(2), Name: "a"}},
	}

	tree, err := walkSubtree(root, mapFetcher(children), nil)
	require.NoError(t, err)

	assert.Equal(t, 2, tree.size(), "each node is visited exactly once")
}

func TestWalkSubtreeSkipsNodesOutsideScope(t *testing.T) {
	root, children := threeLevelTree()

	// Sector-b (id 3) is outside scope, so school-3 under it must never
	// even be fetched.
	scope := Scope{1: {}, 2: {}, 4: {}, 5: {}}
	tree, err := walkSubtree(root, mapFetcher(children), scope)
	require.NoError(t, err)

	assert.Equal(t, 4, tree.size())
	assert.Equal(t, 1, tree.outOfScope)
	assert.NotContains(t, tree.nodes, uint(3))
	assert.NotContains(t, tree.nodes, uint(6))
}

func TestScopeAllows(t *testing.T) {
	var unrestricted Scope
	assert.True(t, unrestricted.Allows(42), "nil scope allows everything")

	restricted := Scope{7: {}}
	assert.True(t, restricted.Allows(7))
	assert.False(t, restricted.Allows(8))
}
