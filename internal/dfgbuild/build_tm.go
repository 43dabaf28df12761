package dfgbuild

import (
	"golang.org/x/tools/go/ssa"

	"cgraomp/dfg"
	"cgraomp/internal/irutil"
	"cgraomp/internal/kernel"
	"cgraomp/internal/verify"
	"cgraomp/loopinfo"
)

// buildTimeMultiplexed lowers the whole loop body: every instruction
// becomes a compute node except the loop control, dependency phis, and
// pointer arithmetic, which lowers to GEPAdd chains.
func (b *Builder) buildTimeMultiplexed(verdict *verify.KernelVerdict) (*dfg.Graph, error) {
	inner := verdict.Inner
	st := &builderState{
		g:       dfg.New(verdict.Loop.Name()),
		values:  make(map[ssa.Value]dfg.Node),
		stores:  make(map[*ssa.Store]dfg.Node),
		depPhis: make(map[*ssa.Phi]depInfo),
	}
	g := st.g

	for _, d := range verdict.Deps.Inductions {
		st.depPhis[d.IV.Phi] = depInfo{distance: 1, init: d.IV.Init}
	}
	for _, d := range verdict.Deps.Simples {
		st.depPhis[d.Node] = depInfo{distance: d.Distance(), init: d.Init}
	}

	skip := b.tmExcluded(inner, verdict)

	// one node per surviving instruction; pointer indexing lowers to
	// GEPAdd chains
	var order []ssa.Instruction
	for _, blk := range inner.Blocks() {
		for _, instr := range blk.Instrs {
			if skip[instr] {
				continue
			}
			if irutil.IsPointerIndex(instr) {
				n := &dfg.GEPAddNode{Inst: instr}
				g.AddValueNode(n, instr.(ssa.Value))
				st.values[instr.(ssa.Value)] = n
				order = append(order, instr)
				continue
			}
			if store, ok := irutil.IsStore(instr); ok {
				n := &dfg.MemStoreNode{Inst: store, Symbol: irutil.SymbolOf(store.Addr)}
				g.AddNode(n)
				st.stores[store] = n
				order = append(order, instr)
				continue
			}
			if ld, ok := irutil.IsLoad(instr); ok {
				n := &dfg.MemLoadNode{Inst: ld, Symbol: irutil.SymbolOf(ld.X)}
				g.AddValueNode(n, ld)
				st.values[ld] = n
				order = append(order, instr)
				continue
			}
			if val, ok := instr.(ssa.Value); ok {
				st.values[val] = g.AddValueNode(b.makeComputeNode(instr), val)
				order = append(order, instr)
			}
		}
	}

	// dependency phis forward to their defining nodes
	for _, d := range verdict.Deps.Inductions {
		if n, ok := st.values[d.IV.Op]; ok {
			st.values[d.IV.Phi] = n
		}
	}
	for _, d := range verdict.Deps.Simples {
		if defVal, ok := d.Def.(ssa.Value); ok {
			if n, ok := st.values[defVal]; ok {
				st.values[d.Node] = n
			}
		}
	}

	for _, instr := range order {
		var dst dfg.Node
		if store, ok := irutil.IsStore(instr); ok {
			dst = st.stores[store]
		} else {
			dst = st.values[instr.(ssa.Value)]
		}
		b.connectTMOperands(st, instr, dst)
	}

	b.rewriteMemoryDeps(st, verdict)
	return g, nil
}

// tmExcluded collects the instructions that carry no compute node: the
// back branch and its condition, control flow, dependency phis, and the
// schedule runtime.
func (b *Builder) tmExcluded(inner *loopinfo.Loop, verdict *verify.KernelVerdict) map[ssa.Instruction]bool {
	skip := make(map[ssa.Instruction]bool)
	if back := loopinfo.BackBranch(inner); back != nil {
		skip[back] = true
		if cond, ok := back.Cond.(ssa.Instruction); ok {
			skip[cond] = true
		}
	}
	for _, blk := range inner.Blocks() {
		for _, instr := range blk.Instrs {
			switch v := instr.(type) {
			case *ssa.Jump, *ssa.If, *ssa.Return, *ssa.DebugRef:
				skip[instr] = true
			case *ssa.Phi:
				if _, isDep := b.phiDep(v, verdict); isDep {
					skip[instr] = true
				}
			case *ssa.Call:
				if callee := v.Call.StaticCallee(); callee != nil &&
					kernel.IsScheduleRuntimeName(callee.Name()) {
					skip[instr] = true
				}
			}
		}
	}
	return skip
}

func (b *Builder) phiDep(phi *ssa.Phi, verdict *verify.KernelVerdict) (depInfo, bool) {
	for _, d := range verdict.Deps.Inductions {
		if d.IV.Phi == phi {
			return depInfo{distance: 1, init: d.IV.Init}, true
		}
	}
	for _, d := range verdict.Deps.Simples {
		if d.Node == phi {
			return depInfo{distance: d.Distance(), init: d.Init}, true
		}
	}
	return depInfo{}, false
}

// connectTMOperands wires a time-multiplexed node: dependency phis turn
// into loop-carried self edges plus init edges; pointer operands of
// memory accesses come from GEPAdd nodes or base-pointer data nodes.
func (b *Builder) connectTMOperands(st *builderState, instr ssa.Instruction, dst dfg.Node) {
	connect := func(i int, op ssa.Value) {
		if phi, ok := op.(*ssa.Phi); ok {
			if dep, isDep := st.depPhis[phi]; isDep {
				if st.values[phi] == dst {
					st.g.Connect(&dfg.Edge{Src: dst, Dst: dst, Operand: i,
						Kind: dfg.EdgeLoopCarried, Distance: dep.distance})
					if initNode := b.invariantNode(st, dep.init, nil, nil); initNode != nil {
						st.g.Connect(&dfg.Edge{Src: initNode, Dst: dst, Operand: i, Kind: dfg.EdgeInit})
					}
					return
				}
			}
		}
		src := b.operandNode(st, op, nil)
		if src == nil {
			src = b.tmLeafNode(st, op)
		}
		if src == nil {
			b.warnf("no node for operand %d of %v", i, instr)
			return
		}
		st.g.Connect(&dfg.Edge{Src: src, Dst: dst, Operand: i, Kind: dfg.EdgeNormal})
	}

	switch v := instr.(type) {
	case *ssa.Store:
		connect(0, v.Val)
		connect(1, v.Addr)
	case *ssa.UnOp:
		connect(0, v.X)
	case *ssa.IndexAddr:
		connect(0, v.X)
		connect(1, v.Index)
	case *ssa.FieldAddr:
		connect(0, v.X)
	default:
		for i, op := range irutil.DataOperands(instr) {
			connect(i, op)
		}
	}
}

// tmLeafNode materialises base pointers and other out-of-loop inputs as
// data nodes.
func (b *Builder) tmLeafNode(st *builderState, op ssa.Value) dfg.Node {
	return b.invariantNode(st, op, nil, nil)
}
