// Package dfg is the typed data flow graph extracted from a kernel: nodes
// and edges are tagged variants, the graph owns both, and a virtual root
// keeps every source node reachable for uniform traversal.
package dfg

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/tools/go/ssa"

	"cgraomp/internal/irutil"
)

// NodeKind discriminates the node variants.
type NodeKind int

const (
	KindVirtualRoot NodeKind = iota
	KindCompute
	KindMemLoad
	KindMemStore
	KindConstant
	KindGlobalData
	KindGEPAdd
)

// Attr is one key=value attribute of a node or edge in graph output.
type Attr struct {
	Key   string
	Value string
}

// AttrConfig carries the output options that shape node attributes.
type AttrConfig struct {
	// OpKey is the attribute name used for opcodes.
	OpKey string
	// FloatPrecision is the number of fractional digits for float
	// constants; negative means shortest representation.
	FloatPrecision int
}

// Node is one vertex of the DFG.
type Node interface {
	ID() int64
	Kind() NodeKind
	UniqueName() string
	// Attrs returns the semantic attributes of the node.
	Attrs(cfg AttrConfig) []Attr
	// ExtraInfo is the per-node auxiliary metadata map, nil when empty.
	ExtraInfo() map[string]any
	SetExtraInfo(key string, value any)

	setID(int64)
}

// baseNode carries the identity and metadata shared by all variants.
type baseNode struct {
	id    int64
	extra map[string]any
}

func (b *baseNode) ID() int64                 { return b.id }
func (b *baseNode) setID(id int64)            { b.id = id }
func (b *baseNode) ExtraInfo() map[string]any { return b.extra }

func (b *baseNode) SetExtraInfo(key string, value any) {
	if b.extra == nil {
		b.extra = make(map[string]any)
	}
	b.extra[key] = value
}

// VirtualRootNode roots the graph and never appears in output.
type VirtualRootNode struct {
	baseNode
}

func (*VirtualRootNode) Kind() NodeKind          { return KindVirtualRoot }
func (*VirtualRootNode) UniqueName() string      { return "__VROOT" }
func (*VirtualRootNode) Attrs(AttrConfig) []Attr { return nil }

// ComputeNode is one mapped computational operation.
type ComputeNode struct {
	baseNode
	Inst ssa.Instruction
	// Opcode is the emitted name from the matched map entry.
	Opcode string
	// Custom marks a custom-instruction call site.
	Custom bool
}

func (*ComputeNode) Kind() NodeKind { return KindCompute }

func (n *ComputeNode) UniqueName() string {
	return fmt.Sprintf("%s_%d", n.Opcode, n.ID())
}

func (n *ComputeNode) Attrs(cfg AttrConfig) []Attr {
	return []Attr{{"type", "op"}, {cfg.OpKey, n.Opcode}}
}

// MemLoadNode is a decoupled memory input.
type MemLoadNode struct {
	baseNode
	Inst *ssa.UnOp
	// Symbol names the argument or global behind the access.
	Symbol string
}

func (*MemLoadNode) Kind() NodeKind { return KindMemLoad }

func (n *MemLoadNode) UniqueName() string {
	return fmt.Sprintf("Load_%d", n.ID())
}

func (n *MemLoadNode) Attrs(AttrConfig) []Attr {
	return []Attr{{"type", "input"}, {"data", n.Symbol}}
}

// MemStoreNode is a decoupled memory output.
type MemStoreNode struct {
	baseNode
	Inst   *ssa.Store
	Symbol string
}

func (*MemStoreNode) Kind() NodeKind { return KindMemStore }

func (n *MemStoreNode) UniqueName() string {
	return fmt.Sprintf("Store_%d", n.ID())
}

func (n *MemStoreNode) Attrs(AttrConfig) []Attr {
	return []Attr{{"type", "output"}, {"data", n.Symbol}}
}

// ConstantNode is a literal operand. Skip holds the transparently skipped
// cast chain of a folded loop invariant, owned by the node.
type ConstantNode struct {
	baseNode
	Value *ssa.Const
	Skip  []ssa.Value
}

func (*ConstantNode) Kind() NodeKind { return KindConstant }

func (n *ConstantNode) UniqueName() string {
	return fmt.Sprintf("Const_%d", n.ID())
}

func (n *ConstantNode) Attrs(cfg AttrConfig) []Attr {
	attrs := []Attr{{"type", "const"}}
	if len(n.Skip) > 0 {
		attrs = append(attrs, Attr{"skipped", skipString(n.Skip)})
	}
	attrs = append(attrs,
		Attr{"datatype", irutil.DataTypeString(n.Value.Type())},
		Attr{"value", constString(n.Value, cfg.FloatPrecision)},
	)
	return attrs
}

// GlobalDataNode is a named loop-invariant input.
type GlobalDataNode struct {
	baseNode
	Value ssa.Value
	Skip  []ssa.Value
}

func (*GlobalDataNode) Kind() NodeKind { return KindGlobalData }

func (n *GlobalDataNode) UniqueName() string {
	return fmt.Sprintf("Data_%d", n.ID())
}

func (n *GlobalDataNode) Attrs(AttrConfig) []Attr {
	attrs := []Attr{{"type", "const"}}
	if len(n.Skip) > 0 {
		attrs = append(attrs, Attr{"skipped", skipString(n.Skip)})
	}
	attrs = append(attrs,
		Attr{"datatype", irutil.DataTypeString(n.Value.Type())},
		Attr{"value", n.Value.Name()},
	)
	return attrs
}

// GEPAddNode is one link of a lowered pointer-index chain producing an
// effective element address.
type GEPAddNode struct {
	baseNode
	Inst ssa.Instruction
}

func (*GEPAddNode) Kind() NodeKind { return KindGEPAdd }

func (n *GEPAddNode) UniqueName() string {
	return fmt.Sprintf("GEPAdd_%d", n.ID())
}

func (n *GEPAddNode) Attrs(cfg AttrConfig) []Attr {
	return []Attr{{"type", "op"}, {cfg.OpKey, "add"}}
}

func skipString(skip []ssa.Value) string {
	names := make([]string, len(skip))
	for i, v := range skip {
		if instr, ok := v.(ssa.Instruction); ok {
			names[i] = irutil.Opcode(instr)
		} else {
			names[i] = v.Name()
		}
	}
	return "(" + strings.Join(names, ",") + ")"
}

func constString(c *ssa.Const, prec int) string {
	if c.Value == nil {
		return "nil"
	}
	if irutil.IsFloat(c.Type()) {
		return strconv.FormatFloat(c.Float64(), 'f', prec, 64)
	}
	return strconv.FormatInt(c.Int64(), 10)
}
