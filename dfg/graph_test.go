package dfg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCompute(op string) *ComputeNode {
	return &ComputeNode{Opcode: op}
}

func TestVirtualRootInvariant(t *testing.T) {
	g := New("t")
	a := g.AddNode(newCompute("add"))
	b := g.AddNode(newCompute("mul"))

	// both nodes hang off the virtual root
	assert.Len(t, g.OutEdges(g.Root(), true), 2)

	// a real predecessor strips the virtual edge
	g.Connect(&Edge{Src: a, Dst: b, Operand: 0, Kind: EdgeNormal})
	virtuals := 0
	for _, e := range g.InEdges(b, false) {
		if e.IsVirtual() {
			virtuals++
		}
	}
	assert.Zero(t, virtuals)
	assert.Len(t, g.InEdges(b, true), 1)

	// removing the predecessor edge restores the virtual edge
	g.RemoveEdge(g.InEdges(b, true)[0])
	require.Len(t, g.InEdges(b, false), 1)
	assert.True(t, g.InEdges(b, false)[0].IsVirtual())
}

func TestDuplicateEdgeIgnored(t *testing.T) {
	g := New("t")
	a := g.AddNode(newCompute("add"))
	b := g.AddNode(newCompute("mul"))

	e1 := g.Connect(&Edge{Src: a, Dst: b, Operand: 0, Kind: EdgeNormal})
	e2 := g.Connect(&Edge{Src: a, Dst: b, Operand: 0, Kind: EdgeNormal})
	assert.Same(t, e1, e2)
	assert.Equal(t, 1, g.EdgeCount())

	// a different operand index is a distinct edge
	g.Connect(&Edge{Src: a, Dst: b, Operand: 1, Kind: EdgeNormal})
	assert.Equal(t, 2, g.EdgeCount())
}

func TestRemoveNodeReattachesVirtualEdges(t *testing.T) {
	g := New("t")
	a := g.AddNode(newCompute("add"))
	b := g.AddNode(newCompute("mul"))
	c := g.AddNode(newCompute("sub"))
	g.Connect(&Edge{Src: a, Dst: b, Operand: 0, Kind: EdgeNormal})
	g.Connect(&Edge{Src: b, Dst: c, Operand: 0, Kind: EdgeNormal})

	g.RemoveNode(b)
	assert.Equal(t, 2, g.NodeCount())
	// c lost its only predecessor and is rooted again
	require.Len(t, g.InEdges(c, false), 1)
	assert.True(t, g.InEdges(c, false)[0].IsVirtual())
}

func TestLoopCarriedSelfEdgeAndCycleSafeBFS(t *testing.T) {
	g := New("t")
	a := g.AddNode(newCompute("add"))
	g.Connect(&Edge{Src: a, Dst: a, Operand: 1, Kind: EdgeLoopCarried, Distance: 1})

	visited := 0
	g.BFS(func(Node) { visited++ })
	assert.Equal(t, 1, visited)

	e := g.Edges()[0]
	attrs := e.Attrs()
	keys := map[string]string{}
	for _, at := range attrs {
		keys[at.Key] = at.Value
	}
	assert.Equal(t, "back", keys["dir"])
	assert.Equal(t, "1", keys["distance"])
}

func TestMakeSequentialIDs(t *testing.T) {
	g := New("t")
	var nodes []Node
	for i := 0; i < 5; i++ {
		nodes = append(nodes, g.AddNode(newCompute("add")))
	}
	g.Connect(&Edge{Src: nodes[0], Dst: nodes[1], Operand: 0, Kind: EdgeNormal})

	// initial identities are scattered
	dense := true
	for _, n := range nodes {
		if n.ID() > 5 {
			dense = false
		}
	}
	assert.False(t, dense)

	g.MakeSequentialIDs()
	seen := map[int64]bool{}
	for _, n := range nodes {
		assert.GreaterOrEqual(t, n.ID(), int64(0))
		assert.Less(t, n.ID(), int64(5))
		seen[n.ID()] = true
	}
	assert.Len(t, seen, 5)
}

func TestIdempotentStructureSnapshot(t *testing.T) {
	g := New("t")
	a := g.AddNode(newCompute("add"))
	b := g.AddNode(newCompute("mul"))
	g.Connect(&Edge{Src: a, Dst: b, Operand: 1, Kind: EdgeNormal})

	nodesBefore, edgesBefore := g.NodeCount(), g.EdgeCount()
	// reading the counts must leave the structure untouched
	assert.Equal(t, nodesBefore, g.NodeCount())
	assert.Equal(t, edgesBefore, g.EdgeCount())
}
