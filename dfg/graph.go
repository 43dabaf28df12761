package dfg

import (
	"github.com/oleiade/lane"
	"golang.org/x/tools/go/ssa"
)

// virtualRootID is the reserved identity of the virtual root.
const virtualRootID = -1

// idStride scatters initial node IDs so they resemble value identities
// rather than a dense sequence; MakeSequentialIDs renumbers on demand.
const idStride = 2654435761

// Graph is the data flow graph of one kernel. It owns its nodes and
// edges; loop-carried edges may close cycles, so traversals guard with a
// visited set.
type Graph struct {
	name string
	root *VirtualRootNode

	nodes []Node
	out   map[Node][]*Edge
	in    map[Node][]*Edge

	ids    map[ssa.Value]int64
	nextID int64
}

// New creates an empty graph holding only the virtual root.
func New(name string) *Graph {
	g := &Graph{
		name: name,
		root: &VirtualRootNode{},
		out:  make(map[Node][]*Edge),
		in:   make(map[Node][]*Edge),
		ids:  make(map[ssa.Value]int64),
	}
	g.root.setID(virtualRootID)
	return g
}

func (g *Graph) Name() string        { return g.name }
func (g *Graph) SetName(name string) { g.name = name }

// Root returns the virtual root.
func (g *Graph) Root() Node { return g.root }

// ValueID derives the stable identity of an IR value within this graph.
func (g *Graph) ValueID(v ssa.Value) int64 {
	if id, ok := g.ids[v]; ok {
		return id
	}
	g.nextID++
	id := (g.nextID * idStride) & 0x7fffffff
	g.ids[v] = id
	return id
}

// freshID identifies a node with no underlying IR value.
func (g *Graph) freshID() int64 {
	g.nextID++
	return (g.nextID * idStride) & 0x7fffffff
}

// AddNode inserts the node and connects it to the virtual root; the
// virtual edge disappears as soon as the node gains a real predecessor.
func (g *Graph) AddNode(n Node) Node {
	if n.ID() == 0 {
		n.setID(g.freshID())
	}
	g.nodes = append(g.nodes, n)
	g.addEdge(&Edge{Src: g.root, Dst: n, Kind: EdgeNormal, virtual: true})
	return n
}

// AddValueNode inserts the node with its identity derived from v.
func (g *Graph) AddValueNode(n Node, v ssa.Value) Node {
	n.setID(g.ValueID(v))
	return g.AddNode(n)
}

// Connect adds a data edge and strips the destination's virtual edge.
// A duplicate of an existing (src, dst, operand, kind) edge is ignored.
func (g *Graph) Connect(e *Edge) *Edge {
	for _, have := range g.out[e.Src] {
		if have.Dst == e.Dst && have.Operand == e.Operand && have.Kind == e.Kind {
			return have
		}
	}
	g.addEdge(e)
	// a loop-carried self edge does not make the node an inner node
	if e.Src != Node(g.root) && e.Src != e.Dst {
		g.dropVirtualEdge(e.Dst)
	}
	return e
}

func (g *Graph) addEdge(e *Edge) {
	g.out[e.Src] = append(g.out[e.Src], e)
	g.in[e.Dst] = append(g.in[e.Dst], e)
}

func (g *Graph) dropVirtualEdge(dst Node) {
	for _, e := range g.in[dst] {
		if e.virtual {
			g.RemoveEdge(e)
			return
		}
	}
}

// RemoveEdge deletes the edge. A destination losing its last real
// predecessor becomes a source and regains its virtual edge.
func (g *Graph) RemoveEdge(e *Edge) {
	g.out[e.Src] = removeEdge(g.out[e.Src], e)
	g.in[e.Dst] = removeEdge(g.in[e.Dst], e)
	if e.virtual || e.Dst == Node(g.root) {
		return
	}
	if len(g.realInEdges(e.Dst)) == 0 && g.contains(e.Dst) {
		g.addEdge(&Edge{Src: g.root, Dst: e.Dst, Kind: EdgeNormal, virtual: true})
	}
}

// RemoveNode deletes the node and all its edges.
func (g *Graph) RemoveNode(n Node) {
	for _, e := range append([]*Edge(nil), g.in[n]...) {
		g.out[e.Src] = removeEdge(g.out[e.Src], e)
	}
	delete(g.in, n)
	outs := append([]*Edge(nil), g.out[n]...)
	delete(g.out, n)
	for i, cand := range g.nodes {
		if cand == n {
			g.nodes = append(g.nodes[:i], g.nodes[i+1:]...)
			break
		}
	}
	for _, e := range outs {
		g.in[e.Dst] = removeEdge(g.in[e.Dst], e)
		if len(g.realInEdges(e.Dst)) == 0 && g.contains(e.Dst) {
			g.addEdge(&Edge{Src: g.root, Dst: e.Dst, Kind: EdgeNormal, virtual: true})
		}
	}
}

func (g *Graph) contains(n Node) bool {
	for _, cand := range g.nodes {
		if cand == n {
			return true
		}
	}
	return false
}

func removeEdge(edges []*Edge, e *Edge) []*Edge {
	for i, have := range edges {
		if have == e {
			return append(edges[:i], edges[i+1:]...)
		}
	}
	return edges
}

// Nodes returns the non-root nodes in insertion order.
func (g *Graph) Nodes() []Node {
	return append([]Node(nil), g.nodes...)
}

// NodeCount counts the non-root nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// Edges returns every non-virtual edge.
func (g *Graph) Edges() []*Edge {
	var out []*Edge
	for _, n := range append([]Node{g.root}, g.nodes...) {
		for _, e := range g.out[n] {
			if !e.virtual {
				out = append(out, e)
			}
		}
	}
	return out
}

// EdgeCount counts the non-virtual edges.
func (g *Graph) EdgeCount() int { return len(g.Edges()) }

// OutEdges returns the outgoing edges of n, virtual edges excluded when
// n is the root and includeVirtual is false.
func (g *Graph) OutEdges(n Node, includeVirtual bool) []*Edge {
	var out []*Edge
	for _, e := range g.out[n] {
		if e.virtual && !includeVirtual {
			continue
		}
		out = append(out, e)
	}
	return out
}

// InEdges returns the incoming edges of n. ignoreRoot drops the virtual
// edge.
func (g *Graph) InEdges(n Node, ignoreRoot bool) []*Edge {
	var out []*Edge
	for _, e := range g.in[n] {
		if ignoreRoot && e.virtual {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (g *Graph) realInEdges(n Node) []*Edge {
	var out []*Edge
	for _, e := range g.InEdges(n, true) {
		if e.Src != n {
			out = append(out, e)
		}
	}
	return out
}

// BFS visits every node reachable from the virtual root in breadth-first
// order, cycle-safe.
func (g *Graph) BFS(visit func(Node)) {
	seen := map[Node]bool{Node(g.root): true}
	fifo := lane.NewQueue()
	fifo.Enqueue(Node(g.root))
	for !fifo.Empty() {
		n := fifo.Dequeue().(Node)
		if n != Node(g.root) {
			visit(n)
		}
		for _, e := range g.out[n] {
			if !seen[e.Dst] {
				seen[e.Dst] = true
				fifo.Enqueue(e.Dst)
			}
		}
	}
}

// MakeSequentialIDs renumbers the nodes densely from 0 in breadth-first
// order from the virtual root.
func (g *Graph) MakeSequentialIDs() {
	next := int64(0)
	g.BFS(func(n Node) {
		n.setID(next)
		next++
	})
}

// FindNode returns the node registered for the IR value identity, or nil.
func (g *Graph) FindNode(v ssa.Value) Node {
	id, ok := g.ids[v]
	if !ok {
		return nil
	}
	for _, n := range g.nodes {
		if n.ID() == id {
			return n
		}
	}
	return nil
}
