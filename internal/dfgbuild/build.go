// Package dfgbuild constructs the typed data flow graph of a verified
// kernel.
package dfgbuild

import (
	"fmt"

	"golang.org/x/tools/go/ssa"

	"cgraomp/dfg"
	"cgraomp/internal/decouple"
	"cgraomp/internal/diag"
	"cgraomp/internal/irutil"
	"cgraomp/internal/model"
	"cgraomp/internal/verify"
)

// Builder turns kernel verdicts into data flow graphs.
type Builder struct {
	Model    *model.Model
	Reporter *diag.Reporter
}

// Build constructs the DFG of a passing kernel according to the model
// category.
func (b *Builder) Build(verdict *verify.KernelVerdict) (*dfg.Graph, error) {
	if !verdict.OK() {
		return nil, fmt.Errorf("kernel %s did not pass verification", verdict.Loop.Name())
	}
	switch b.Model.Category {
	case model.Decoupled:
		return b.buildDecoupled(verdict)
	case model.TimeMultiplexed:
		return b.buildTimeMultiplexed(verdict)
	}
	return nil, fmt.Errorf("unknown CGRA category")
}

// builderState tracks value-to-node mappings during construction.
type builderState struct {
	g      *dfg.Graph
	values map[ssa.Value]dfg.Node
	stores map[*ssa.Store]dfg.Node
	// depPhis maps dependency phis to their distance and init value
	depPhis map[*ssa.Phi]depInfo
}

type depInfo struct {
	distance int64
	init     ssa.Value
}

func (b *Builder) buildDecoupled(verdict *verify.KernelVerdict) (*dfg.Graph, error) {
	da := verdict.Decouple
	st := &builderState{
		g:       dfg.New(verdict.Loop.Name()),
		values:  make(map[ssa.Value]dfg.Node),
		stores:  make(map[*ssa.Store]dfg.Node),
		depPhis: make(map[*ssa.Phi]depInfo),
	}
	g := st.g

	for _, d := range verdict.Deps.Simples {
		st.depPhis[d.Node] = depInfo{distance: d.Distance(), init: d.Init}
	}

	// memory access nodes
	for _, ld := range da.Loads {
		n := &dfg.MemLoadNode{Inst: ld, Symbol: irutil.SymbolOf(ld.X)}
		g.AddValueNode(n, ld)
		st.values[ld] = n
		b.attachAGInfo(verdict, ld, n)
	}
	for _, store := range da.Stores {
		n := &dfg.MemStoreNode{Inst: store, Symbol: irutil.SymbolOf(store.Addr)}
		g.AddNode(n)
		st.stores[store] = n
		b.attachAGInfo(verdict, store, n)
	}

	// computation nodes; dependency phis forward to their defining node
	for _, val := range da.Comp {
		instr := val.(ssa.Instruction)
		if phi, ok := instr.(*ssa.Phi); ok {
			if _, isDep := st.depPhis[phi]; isDep {
				continue
			}
		}
		st.values[val] = g.AddValueNode(b.makeComputeNode(instr), val)
	}
	for _, d := range verdict.Deps.Simples {
		if defVal, ok := d.Def.(ssa.Value); ok {
			if n, ok := st.values[defVal]; ok {
				st.values[d.Node] = n
			}
		}
	}

	// edges follow the IR operand structure
	for _, val := range da.Comp {
		if n, ok := st.values[val]; ok {
			b.connectOperands(st, val.(ssa.Instruction), n, da)
		}
	}
	for _, store := range da.Stores {
		b.connectOperands(st, store, st.stores[store], da)
	}

	b.rewriteMemoryDeps(st, verdict)
	return g, nil
}

// makeComputeNode derives the emitted opcode from the matched map entry.
func (b *Builder) makeComputeNode(instr ssa.Instruction) *dfg.ComputeNode {
	opcode := irutil.Opcode(instr)
	custom := false
	if entry := b.Model.IsSupported(instr); entry != nil {
		opcode = entry.MapName()
		custom = entry.Class() == model.CustomEntry
	} else if _, ok := instr.(*ssa.Call); ok {
		custom = true
	}
	return &dfg.ComputeNode{Inst: instr, Opcode: opcode, Custom: custom}
}

// connectOperands wires the data operands of instr into its node.
// The address operand of stores and the callee of custom calls carry no
// edges.
func (b *Builder) connectOperands(st *builderState, instr ssa.Instruction, dst dfg.Node, da *decouple.Report) {
	for i, op := range irutil.DataOperands(instr) {
		if phi, ok := op.(*ssa.Phi); ok {
			if dep, isDep := st.depPhis[phi]; isDep && st.values[phi] == dst {
				// the value feeds its own next iteration
				st.g.Connect(&dfg.Edge{Src: dst, Dst: dst, Operand: i,
					Kind: dfg.EdgeLoopCarried, Distance: dep.distance})
				if initNode := b.invariantNode(st, dep.init, nil, da); initNode != nil {
					st.g.Connect(&dfg.Edge{Src: initNode, Dst: dst, Operand: i, Kind: dfg.EdgeInit})
				}
				continue
			}
		}
		src := b.operandNode(st, op, da)
		if src == nil {
			b.warnf("no node for operand %d of %v", i, instr)
			continue
		}
		st.g.Connect(&dfg.Edge{Src: src, Dst: dst, Operand: i, Kind: dfg.EdgeNormal})
	}
}

// operandNode resolves or materialises the source node of an operand.
func (b *Builder) operandNode(st *builderState, op ssa.Value, da *decouple.Report) dfg.Node {
	if n, ok := st.values[op]; ok {
		return n
	}
	if c, ok := op.(*ssa.Const); ok {
		n := &dfg.ConstantNode{Value: c}
		st.g.AddNode(n)
		return n
	}
	if da != nil {
		if ld, ok := op.(*ssa.UnOp); ok {
			if c, imm := da.Immediates[ld]; imm {
				n := &dfg.ConstantNode{Value: c}
				st.g.AddNode(n)
				return n
			}
		}
		if inv := da.InvariantFor(op); inv != nil {
			return b.invariantNode(st, inv.Source, inv.Skip, da)
		}
	}
	return nil
}

// invariantNode materialises a Constant or GlobalData node for a
// loop-invariant source, one node per source value.
func (b *Builder) invariantNode(st *builderState, source ssa.Value, skip []ssa.Value, da *decouple.Report) dfg.Node {
	if n, ok := st.values[source]; ok {
		return n
	}
	var n dfg.Node
	if c, ok := source.(*ssa.Const); ok {
		n = &dfg.ConstantNode{Value: c, Skip: skip}
	} else {
		n = &dfg.GlobalDataNode{Value: source, Skip: skip}
	}
	st.g.AddNode(n)
	st.values[source] = n
	return n
}

// rewriteMemoryDeps replaces the normal edges out of a dependent load
// with loop-carried edges from the defining store plus init edges from
// the load.
func (b *Builder) rewriteMemoryDeps(st *builderState, verdict *verify.KernelVerdict) {
	if b.Model.InterLoop != model.DepBackwardInst && b.Model.InterLoop != model.DepGeneric {
		return
	}
	for _, dep := range verdict.Deps.Memories {
		loadNode, okL := st.values[ssa.Value(dep.Load)]
		storeNode, okS := st.stores[dep.Store]
		if !okL || !okS {
			continue
		}
		for _, e := range st.g.OutEdges(loadNode, false) {
			consumer, operand := e.Dst, e.Operand
			st.g.RemoveEdge(e)
			st.g.Connect(&dfg.Edge{Src: storeNode, Dst: consumer, Operand: operand,
				Kind: dfg.EdgeLoopCarried, Distance: dep.Distance})
			st.g.Connect(&dfg.Edge{Src: loadNode, Dst: consumer, Operand: operand, Kind: dfg.EdgeInit})
		}
	}
}

// attachAGInfo stores the address-generator configuration as per-node
// metadata.
func (b *Builder) attachAGInfo(verdict *verify.KernelVerdict, instr ssa.Instruction, n dfg.Node) {
	if verdict.AG == nil {
		return
	}
	cfg, ok := verdict.AG.Configs[instr]
	if !ok {
		return
	}
	for k, v := range cfg.ExtraInfo() {
		n.SetExtraInfo(k, v)
	}
}

func (b *Builder) warnf(format string, args ...any) {
	if b.Reporter != nil {
		b.Reporter.Warningf(format, args...)
	}
}
