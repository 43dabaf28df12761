package dfgpass

import (
	"go/constant"
	"go/types"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang.org/x/tools/go/ssa"

	"cgraomp/dfg"
)

// chainGraph builds Load_0 + Load_1 + Load_2 + Load_3 as a left-leaning
// chain of adds feeding one store.
func chainGraph() (*dfg.Graph, []*dfg.MemLoadNode, []*dfg.ComputeNode, *dfg.MemStoreNode) {
	g := dfg.New("chain")
	var loads []*dfg.MemLoadNode
	for i := 0; i < 4; i++ {
		ld := &dfg.MemLoadNode{Symbol: "a"}
		g.AddNode(ld)
		loads = append(loads, ld)
	}
	var adds []*dfg.ComputeNode
	prev := dfg.Node(loads[0])
	for i := 1; i < 4; i++ {
		add := &dfg.ComputeNode{Opcode: "add"}
		g.AddNode(add)
		g.Connect(&dfg.Edge{Src: prev, Dst: add, Operand: 0, Kind: dfg.EdgeNormal})
		g.Connect(&dfg.Edge{Src: loads[i], Dst: add, Operand: 1, Kind: dfg.EdgeNormal})
		adds = append(adds, add)
		prev = add
	}
	store := &dfg.MemStoreNode{Symbol: "c"}
	g.AddNode(store)
	g.Connect(&dfg.Edge{Src: prev, Dst: store, Operand: 0, Kind: dfg.EdgeNormal})
	return g, loads, adds, store
}

func depthTo(g *dfg.Graph, from dfg.Node, to dfg.Node) int {
	if from == to {
		return 0
	}
	best := -1
	for _, e := range g.OutEdges(from, false) {
		if d := depthTo(g, e.Dst, to); d >= 0 && (best < 0 || d+1 < best) {
			best = d + 1
		}
	}
	return best
}

func TestBalanceTreeReducesHeight(t *testing.T) {
	g, loads, adds, store := chainGraph()
	require.Equal(t, 8, g.NodeCount())

	changed := (&BalanceTree{}).Run(g, nil, &Analyses{})
	assert.True(t, changed)

	// node and edge structure stays a 3-add tree over 4 loads
	assert.Equal(t, 8, g.NodeCount())
	_ = adds

	// the longest load-to-store path shrinks from 4 hops to 3
	maxDepth := 0
	for _, ld := range loads {
		d := depthTo(g, ld, store)
		require.GreaterOrEqual(t, d, 1, "load disconnected from the store")
		if d > maxDepth {
			maxDepth = d
		}
	}
	assert.Equal(t, 3, maxDepth)
}

func TestBalanceTreeLeavesSmallTreesAlone(t *testing.T) {
	g := dfg.New("small")
	l1 := g.AddNode(&dfg.MemLoadNode{Symbol: "a"})
	l2 := g.AddNode(&dfg.MemLoadNode{Symbol: "b"})
	add := g.AddNode(&dfg.ComputeNode{Opcode: "add"})
	st := g.AddNode(&dfg.MemStoreNode{Symbol: "c"})
	g.Connect(&dfg.Edge{Src: l1, Dst: add, Operand: 0, Kind: dfg.EdgeNormal})
	g.Connect(&dfg.Edge{Src: l2, Dst: add, Operand: 1, Kind: dfg.EdgeNormal})
	g.Connect(&dfg.Edge{Src: add, Dst: st, Operand: 0, Kind: dfg.EdgeNormal})

	assert.False(t, (&BalanceTree{}).Run(g, nil, &Analyses{}))
	assert.Equal(t, 4, g.NodeCount())
}

func TestDeadNodeElim(t *testing.T) {
	g := dfg.New("dead")
	ld := g.AddNode(&dfg.MemLoadNode{Symbol: "a"})
	add := g.AddNode(&dfg.ComputeNode{Opcode: "add"})
	orphan := g.AddNode(&dfg.ComputeNode{Opcode: "mul"})
	st := g.AddNode(&dfg.MemStoreNode{Symbol: "c"})
	g.Connect(&dfg.Edge{Src: ld, Dst: add, Operand: 0, Kind: dfg.EdgeNormal})
	g.Connect(&dfg.Edge{Src: add, Dst: st, Operand: 0, Kind: dfg.EdgeNormal})
	g.Connect(&dfg.Edge{Src: ld, Dst: orphan, Operand: 0, Kind: dfg.EdgeNormal})

	changed := (&DeadNodeElim{}).Run(g, nil, &Analyses{})
	assert.True(t, changed)
	assert.Equal(t, 3, g.NodeCount())
	for _, n := range g.Nodes() {
		assert.NotEqual(t, "mul", nodeOpcode(n))
	}

	// a second run is a no-op
	assert.False(t, (&DeadNodeElim{}).Run(g, nil, &Analyses{}))
}

func TestMergeConst(t *testing.T) {
	g := dfg.New("consts")
	ten := ssa.NewConst(constant.MakeInt64(10), types.Typ[types.Int32])
	two := ssa.NewConst(constant.MakeInt64(2), types.Typ[types.Int32])

	mul1 := g.AddNode(&dfg.ComputeNode{Opcode: "mul"})
	mul2 := g.AddNode(&dfg.ComputeNode{Opcode: "mul"})
	shl := g.AddNode(&dfg.ComputeNode{Opcode: "shl"})
	c1 := g.AddNode(&dfg.ConstantNode{Value: ten})
	c2 := g.AddNode(&dfg.ConstantNode{Value: ten})
	c3 := g.AddNode(&dfg.ConstantNode{Value: two})
	g.Connect(&dfg.Edge{Src: c1, Dst: mul1, Operand: 1, Kind: dfg.EdgeNormal})
	g.Connect(&dfg.Edge{Src: c2, Dst: mul2, Operand: 1, Kind: dfg.EdgeNormal})
	g.Connect(&dfg.Edge{Src: c3, Dst: shl, Operand: 1, Kind: dfg.EdgeNormal})

	changed := (&MergeConst{}).Run(g, nil, &Analyses{})
	assert.True(t, changed)

	consts := 0
	for _, n := range g.Nodes() {
		if n.Kind() == dfg.KindConstant {
			consts++
		}
	}
	assert.Equal(t, 2, consts, "the two tens merge, the two stays")
	// both multiplies are still fed
	require.Len(t, g.InEdges(mul1, true), 1)
	require.Len(t, g.InEdges(mul2, true), 1)
	assert.Same(t, g.InEdges(mul1, true)[0].Src, g.InEdges(mul2, true)[0].Src)

	assert.False(t, (&MergeConst{}).Run(g, nil, &Analyses{}))
}

func nodeOpcode(n dfg.Node) string {
	if c, ok := n.(*dfg.ComputeNode); ok {
		return c.Opcode
	}
	return ""
}
