package dfg

import "strconv"

// EdgeKind discriminates the edge variants.
type EdgeKind int

const (
	// EdgeNormal is an intra-iteration data edge.
	EdgeNormal EdgeKind = iota
	// EdgeLoopCarried crosses iterations with a distance of at least 1.
	EdgeLoopCarried
	// EdgeInit seeds the first iteration of a loop-carried value.
	EdgeInit
)

// Edge is one directed edge. Edges are identified by
// (src, dst, operand, kind); the graph rejects duplicates.
type Edge struct {
	Src Node
	Dst Node
	// Operand is the operand position of Dst fed by this edge.
	Operand int
	Kind    EdgeKind
	// Distance is the iteration distance of a loop-carried edge.
	Distance int64

	virtual bool
}

// IsVirtual reports whether the edge emanates from the virtual root.
func (e *Edge) IsVirtual() bool { return e.virtual }

// Attrs returns the semantic attributes of the edge.
func (e *Edge) Attrs() []Attr {
	attrs := []Attr{{"operand", strconv.Itoa(e.Operand)}}
	switch e.Kind {
	case EdgeLoopCarried:
		d := strconv.FormatInt(e.Distance, 10)
		attrs = append(attrs, Attr{"dir", "back"}, Attr{"distance", d}, Attr{"label", d})
	case EdgeInit:
		attrs = append(attrs, Attr{"type", "init"}, Attr{"label", "init"})
	}
	return attrs
}
