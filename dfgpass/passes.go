package dfgpass

import (
	"sort"

	"github.com/oleiade/lane"

	"cgraomp/dfg"
	"cgraomp/loopinfo"
)

// builtinCallback resolves the names of the built-in passes.
func builtinCallback(name string, pm *Manager) bool {
	switch name {
	case "balance-tree":
		pm.AddPass(&BalanceTree{})
	case "dead-node-elim":
		pm.AddPass(&DeadNodeElim{})
	case "merge-const":
		pm.AddPass(&MergeConst{})
	default:
		return false
	}
	return true
}

// BuiltinPassNames lists the names claimed by the built-in resolver.
func BuiltinPassNames() []string {
	return []string{"balance-tree", "dead-node-elim", "merge-const"}
}

// operatorPrecedence orders balancing roots; lower means higher priority.
var operatorPrecedence = map[string]int{
	"fmul": 0, "mul": 0,
	"fadd": 1, "add": 1,
	"and": 2,
	"xor": 3,
	"or":  4,
}

// associativeOps are the opcodes whose operand trees may be reshaped.
var associativeOps = map[string]bool{
	"add": true, "mul": true, "and": true, "or": true, "xor": true,
}

// BalanceTree reduces the height of associative, commutative operation
// chains by rebuilding them as weight-balanced trees.
type BalanceTree struct {
	weight    map[dfg.Node]int
	visited   map[dfg.Node]bool
	candidate map[dfg.Node]bool
}

func (*BalanceTree) Name() string { return "balance-tree" }

func (p *BalanceTree) Run(g *dfg.Graph, l *loopinfo.Loop, am *Analyses) bool {
	p.weight = make(map[dfg.Node]int)
	p.visited = make(map[dfg.Node]bool)
	p.candidate = make(map[dfg.Node]bool)

	p.initWeight(g)
	changed := false
	for _, root := range p.findRootCandidates(g) {
		if p.toBalanced(g, root) {
			changed = true
		}
	}
	return changed
}

// initWeight sums sub-tree weights in topological (breadth-first) order;
// source nodes weigh one.
func (p *BalanceTree) initWeight(g *dfg.Graph) {
	g.BFS(func(n dfg.Node) {
		if n.Kind() == dfg.KindConstant {
			return
		}
		in := g.InEdges(n, true)
		if len(in) == 0 {
			p.weight[n] = 1
			return
		}
		sum := 0
		for _, e := range in {
			sum += p.weight[e.Src]
		}
		p.weight[n] = sum
	})
}

// findRootCandidates picks the compute nodes whose operand chains are
// worth balancing, ordered by operator precedence.
func (p *BalanceTree) findRootCandidates(g *dfg.Graph) []*dfg.ComputeNode {
	var candidates []*dfg.ComputeNode
	for _, n := range g.Nodes() {
		comp, ok := n.(*dfg.ComputeNode)
		if !ok || !associativeOps[comp.Opcode] {
			continue
		}
		uses := g.OutEdges(comp, false)
		isRoot := false
		switch {
		case len(uses) > 1:
			isRoot = true
		case len(uses) == 1:
			if useComp, ok := uses[0].Dst.(*dfg.ComputeNode); !ok || useComp.Opcode != comp.Opcode {
				isRoot = true
			}
		}
		if isRoot {
			candidates = append(candidates, comp)
			p.candidate[comp] = true
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return operatorPrecedence[candidates[i].Opcode] < operatorPrecedence[candidates[j].Opcode]
	})
	return candidates
}

func (p *BalanceTree) toBalanced(g *dfg.Graph, root *dfg.ComputeNode) bool {
	p.visited[root] = true

	worklist := lane.NewQueue()
	leaves := lane.NewPQueue(lane.MINPQ)
	var replaced []dfg.Node

	for _, e := range g.InEdges(root, true) {
		worklist.Enqueue(e.Src)
	}

	for !worklist.Empty() {
		n := worklist.Dequeue().(dfg.Node)
		if comp, ok := n.(*dfg.ComputeNode); ok {
			if p.candidate[comp] {
				if !p.visited[comp] {
					p.toBalanced(g, comp)
				}
				leaves.Push(n, p.weight[n])
				continue
			}
			if comp.Opcode == root.Opcode && len(g.OutEdges(comp, false)) == 1 {
				replaced = append(replaced, comp)
				for _, e := range g.InEdges(comp, true) {
					worklist.Enqueue(e.Src)
				}
				continue
			}
		}
		leaves.Push(n, p.weight[n])
	}

	// a chain of k interior nodes exposes k+1 leaves; anything shorter
	// is already balanced
	if len(replaced) < 2 || leaves.Size() < 4 {
		return false
	}

	for _, n := range replaced {
		g.RemoveNode(n)
	}

	pos := 0
	for leaves.Size() > 2 {
		ra, wa := leaves.Pop()
		rb, wb := leaves.Pop()
		interior := replaced[pos]
		pos++
		p.weight[interior] = wa + wb
		g.AddNode(interior)
		g.Connect(&dfg.Edge{Src: ra.(dfg.Node), Dst: interior, Operand: 0, Kind: dfg.EdgeNormal})
		g.Connect(&dfg.Edge{Src: rb.(dfg.Node), Dst: interior, Operand: 1, Kind: dfg.EdgeNormal})
		leaves.Push(interior, p.weight[interior])
	}

	for _, e := range g.InEdges(root, true) {
		g.RemoveEdge(e)
	}
	operand := 0
	for !leaves.Empty() {
		n, _ := leaves.Pop()
		g.Connect(&dfg.Edge{Src: n.(dfg.Node), Dst: root, Operand: operand, Kind: dfg.EdgeNormal})
		operand++
	}
	return true
}

// MergeConst folds duplicate literal nodes: every constant of the same
// value and type feeds its consumers from a single node. Constants
// carrying a skip sequence keep their own node.
type MergeConst struct{}

func (*MergeConst) Name() string { return "merge-const" }

func (*MergeConst) Run(g *dfg.Graph, l *loopinfo.Loop, am *Analyses) bool {
	type constKey struct {
		value string
		typ   string
	}
	cfg := dfg.AttrConfig{OpKey: "opcode", FloatPrecision: -1}
	canonical := make(map[constKey]*dfg.ConstantNode)
	changed := false

	for _, n := range g.Nodes() {
		c, ok := n.(*dfg.ConstantNode)
		if !ok || c.Value == nil || len(c.Skip) > 0 {
			continue
		}
		key := constKey{typ: c.Value.Type().String()}
		for _, a := range c.Attrs(cfg) {
			if a.Key == "value" {
				key.value = a.Value
			}
		}
		keep, seen := canonical[key]
		if !seen {
			canonical[key] = c
			continue
		}
		for _, e := range g.OutEdges(c, false) {
			g.RemoveEdge(e)
			g.Connect(&dfg.Edge{Src: keep, Dst: e.Dst, Operand: e.Operand,
				Kind: e.Kind, Distance: e.Distance})
		}
		g.RemoveNode(c)
		changed = true
	}
	return changed
}

// DeadNodeElim removes nodes with no path to any store output.
type DeadNodeElim struct{}

func (*DeadNodeElim) Name() string { return "dead-node-elim" }

func (*DeadNodeElim) Run(g *dfg.Graph, l *loopinfo.Loop, am *Analyses) bool {
	// reverse reachability from the stores, cycle safe
	live := make(map[dfg.Node]bool)
	stack := []dfg.Node{}
	for _, n := range g.Nodes() {
		if n.Kind() == dfg.KindMemStore {
			live[n] = true
			stack = append(stack, n)
		}
	}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, e := range g.InEdges(n, true) {
			if !live[e.Src] {
				live[e.Src] = true
				stack = append(stack, e.Src)
			}
		}
	}

	changed := false
	for _, n := range g.Nodes() {
		if !live[n] {
			g.RemoveNode(n)
			changed = true
		}
	}
	return changed
}
