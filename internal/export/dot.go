// Package export serialises a DFG to a textual graph file plus a per-node
// metadata side file.
package export

import (
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/encoding"
	"gonum.org/v1/gonum/graph/encoding/dot"
	"gonum.org/v1/gonum/graph/multi"

	"cgraomp/dfg"
	"cgraomp/internal/options"
)

// attrList is a reusable attribute set implementing encoding.Attributer.
type attrList []encoding.Attribute

func (a attrList) Attributes() []encoding.Attribute { return a }

// Naming carries the parts of the output file names.
type Naming struct {
	// ModulePath locates the source module; files land next to it when
	// no prefix is configured.
	ModulePath string
	// ModuleName is the module component of the file name.
	ModuleName string
	// FuncName is the outlined worker's name.
	FuncName string
	// OrigName is the original source function name when known.
	OrigName string
	// LoopName identifies the kernel loop.
	LoopName string
}

// Exporter writes graphs according to the configured output options.
type Exporter struct {
	Opts *options.Options
}

// dotNode adapts a DFG node for the graph marshaller.
type dotNode struct {
	id    int64
	name  string
	attrs attrList
}

func (n *dotNode) ID() int64                        { return n.id }
func (n *dotNode) DOTID() string                    { return n.name }
func (n *dotNode) Attributes() []encoding.Attribute { return n.attrs }

// dotLine adapts a DFG edge.
type dotLine struct {
	from, to graph.Node
	id       int64
	attrs    attrList
}

func (l *dotLine) From() graph.Node                 { return l.from }
func (l *dotLine) To() graph.Node                   { return l.to }
func (l *dotLine) ID() int64                        { return l.id }
func (l *dotLine) Attributes() []encoding.Attribute { return l.attrs }

func (l *dotLine) ReversedLine() graph.Line {
	rev := *l
	rev.from, rev.to = l.to, l.from
	return &rev
}

// dotGraph is a directed multigraph carrying graph-level attribute
// preambles.
type dotGraph struct {
	*multi.DirectedGraph
	graphAttrs attrList
	nodeAttrs  attrList
	edgeAttrs  attrList
}

func (g *dotGraph) DOTAttributers() (graph, node, edge encoding.Attributer) {
	return g.graphAttrs, g.nodeAttrs, g.edgeAttrs
}

// Export writes the graph file and, when any node carries metadata, the
// auxiliary JSON file.
func (e *Exporter) Export(g *dfg.Graph, naming Naming) error {
	if e.Opts.DFGPlainNodeName {
		g.MakeSequentialIDs()
	}

	base := e.outputBase(naming)
	body, err := e.marshal(g)
	if err != nil {
		return fmt.Errorf("render graph %s: %w", g.Name(), err)
	}
	if err := os.WriteFile(base+".dot", body, 0o644); err != nil {
		return fmt.Errorf("write graph %s: %w", g.Name(), err)
	}
	return e.writeExtraInfo(g, base)
}

// marshal renders the graph with the virtual root and its edges stripped.
func (e *Exporter) marshal(g *dfg.Graph) ([]byte, error) {
	cfg := dfg.AttrConfig{
		OpKey:          e.Opts.DFGOpKey,
		FloatPrecision: e.Opts.DFGFloatPrecision,
	}

	dg := &dotGraph{
		DirectedGraph: multi.NewDirectedGraph(),
		graphAttrs:    kvAttrs(e.Opts.DFGGraphProp),
		nodeAttrs:     kvAttrs(e.Opts.DFGNodeProp),
		edgeAttrs:     kvAttrs(e.Opts.DFGEdgeProp),
	}

	byNode := make(map[dfg.Node]*dotNode)
	for _, n := range g.Nodes() {
		dn := &dotNode{id: n.ID(), name: n.UniqueName(), attrs: nodeAttrs(n, cfg)}
		dg.AddNode(dn)
		byNode[n] = dn
	}

	lineID := int64(0)
	for _, edge := range g.Edges() {
		from, okF := byNode[edge.Src]
		to, okT := byNode[edge.Dst]
		if !okF || !okT {
			continue
		}
		dg.SetLine(&dotLine{from: from, to: to, id: lineID, attrs: edgeAttrs(edge)})
		lineID++
	}

	return dot.MarshalMulti(dg, g.Name(), "", "\t")
}

func nodeAttrs(n dfg.Node, cfg dfg.AttrConfig) attrList {
	var out attrList
	for _, a := range n.Attrs(cfg) {
		out = append(out, encoding.Attribute{Key: a.Key, Value: a.Value})
	}
	return out
}

func edgeAttrs(e *dfg.Edge) attrList {
	var out attrList
	for _, a := range e.Attrs() {
		out = append(out, encoding.Attribute{Key: a.Key, Value: a.Value})
	}
	return out
}

func kvAttrs(kvs []options.KeyValue) attrList {
	var out attrList
	for _, kv := range kvs {
		out = append(out, encoding.Attribute{Key: kv.Key, Value: kv.Value})
	}
	return out
}

// outputBase derives "<prefix>_<module>_<funcOrOrig>_<loop>"; without a
// prefix the file lands next to the source module.
func (e *Exporter) outputBase(n Naming) string {
	funcName := n.FuncName
	if e.Opts.UseSimpleDFGName && n.OrigName != "" {
		funcName = n.OrigName
	}
	stem := fmt.Sprintf("%s_%s_%s", n.ModuleName, funcName, n.LoopName)
	if e.Opts.DFGFilePrefix != "" {
		return e.Opts.DFGFilePrefix + "_" + stem
	}
	dir := filepath.Dir(n.ModulePath)
	return filepath.Join(dir, stem)
}
