// Package decouple partitions an innermost loop body into memory accesses,
// computation, and loop invariants.
package decouple

import (
	"go/types"

	"github.com/oleiade/lane"
	"golang.org/x/tools/go/ssa"

	"cgraomp/internal/irutil"
	"cgraomp/internal/kernel"
	"cgraomp/loopinfo"
)

// Error causes reported by decoupling.
const (
	ErrLoopDependentLoad = "loop-dependent memory loads"
	ErrUnreachableStore  = "unreachable store"
)

// Invariant is a loop-invariant input of the kernel: the value used inside
// the loop, the chain of transparent casts skipped, and the final source
// defined outside the loop.
type Invariant struct {
	// First is the operand as consumed inside the loop.
	First ssa.Value
	// Skip lists the skipped cast instructions, innermost first.
	Skip []ssa.Value
	// Source is the origin outside the loop.
	Source ssa.Value
}

// Report is the decoupling result of one kernel loop.
type Report struct {
	Loads      []*ssa.UnOp
	Stores     []*ssa.Store
	Comp       []ssa.Value
	Invariants []*Invariant
	// Immediates maps loads of constant-initialised local arrays at
	// compile-time indices to their literal values.
	Immediates map[*ssa.UnOp]*ssa.Const

	ErrCause string

	inSet map[ssa.Value]bool
}

// OK reports whether decoupling succeeded.
func (r *Report) OK() bool { return r.ErrCause == "" }

// Contains reports whether v was collected as a load, store value, or
// computation.
func (r *Report) Contains(v ssa.Value) bool { return r.inSet[v] }

// InvariantFor returns the invariant record whose in-loop value is v.
func (r *Report) InvariantFor(v ssa.Value) *Invariant {
	for _, inv := range r.Invariants {
		if inv.First == v {
			return inv
		}
	}
	return nil
}

// Name implements the analysis-result contract.
func (r *Report) Name() string { return "decoupled-analysis" }

// Invalidate reports whether the report must be recomputed for the unit.
func (r *Report) Invalidate(unit any, preserved map[string]bool) bool {
	if preserved == nil {
		return false
	}
	return !preserved[r.Name()] && !preserved["all"]
}

// Reporter receives structural warnings during decoupling.
type Reporter interface {
	Warningf(format string, args ...any)
}

// Analyze decouples the innermost loop body. Schedule-bookkeeping loads
// (address captured by the schedule-init call, or loads of pointers) are
// excluded from the seeds; the flood from the surviving loads must
// terminate at stores and reach every store of the loop.
func Analyze(l *loopinfo.Loop, sched *kernel.ScheduleInfo, reporter Reporter) *Report {
	r := &Report{
		Immediates: make(map[*ssa.UnOp]*ssa.Const),
		inSet:      make(map[ssa.Value]bool),
	}

	// classify the memory accesses of the loop body
	for _, b := range l.Blocks() {
		for _, instr := range b.Instrs {
			if ld, ok := irutil.IsLoad(instr); ok {
				if sched != nil && sched.Contains(ld.X) {
					continue // loop scheduling bookkeeping
				}
				if loadsPointer(ld) {
					continue
				}
				if c := resolveImmediate(ld, l); c != nil {
					r.Immediates[ld] = c
					continue
				}
				r.Loads = append(r.Loads, ld)
			} else if st, ok := irutil.IsStore(instr); ok {
				r.Stores = append(r.Stores, st)
			}
		}
	}

	if len(r.Stores) == 0 {
		r.ErrCause = ErrUnreachableStore
		return r
	}

	seeds := make(map[ssa.Value]bool, len(r.Loads))
	for _, ld := range r.Loads {
		seeds[ld] = true
	}
	storeSet := make(map[*ssa.Store]bool, len(r.Stores))
	for _, st := range r.Stores {
		storeSet[st] = true
	}

	// breadth-first flood through use-edges
	traversed := make(map[ssa.Value]bool)
	reachedStores := make(map[*ssa.Store]bool)
	fifo := lane.NewQueue()
	for _, ld := range r.Loads {
		fifo.Enqueue(ssa.Value(ld))
		traversed[ld] = true
	}
	for !fifo.Empty() {
		v := fifo.Dequeue().(ssa.Value)
		for _, user := range irutil.Users(v) {
			if !l.ContainsInstr(user) {
				continue
			}
			if st, ok := irutil.IsStore(user); ok {
				// stores terminate the flood
				reachedStores[st] = true
				continue
			}
			if _, ok := irutil.IsLoad(user); ok {
				r.ErrCause = ErrLoopDependentLoad
				return r
			}
			uv, ok := user.(ssa.Value)
			if !ok {
				// control flow; not part of the data flow
				continue
			}
			if traversed[uv] {
				continue
			}
			traversed[uv] = true
			r.Comp = append(r.Comp, uv)
			fifo.Enqueue(uv)
		}
	}

	for _, st := range r.Stores {
		if !reachedStores[st] {
			r.ErrCause = ErrUnreachableStore
			return r
		}
	}

	for v := range traversed {
		r.inSet[v] = true
	}

	// loop invariants of computation and store values
	var consumers []ssa.Instruction
	for _, v := range r.Comp {
		consumers = append(consumers, v.(ssa.Instruction))
	}
	for _, st := range r.Stores {
		consumers = append(consumers, st)
	}
	seenInv := make(map[ssa.Value]bool)
	for _, instr := range consumers {
		for _, op := range irutil.DataOperands(instr) {
			if _, isConst := op.(*ssa.Const); isConst {
				continue
			}
			if traversed[op] {
				continue
			}
			if ld, ok := op.(*ssa.UnOp); ok {
				if _, imm := r.Immediates[ld]; imm {
					continue
				}
			}
			if seenInv[op] {
				continue
			}
			seenInv[op] = true
			inv := followSkipChain(op, l)
			if l.ContainsValue(inv.Source) {
				if reporter != nil {
					reporter.Warningf("operand %s of the kernel is defined inside the loop but is not part of the data flow", inv.Source.Name())
				}
				continue
			}
			r.Invariants = append(r.Invariants, inv)
		}
	}

	return r
}

// followSkipChain walks through transparent casts (integer widening or
// truncation, and bit-level retypes) from the in-loop use toward the
// invariant source, recording the skipped instructions.
func followSkipChain(op ssa.Value, l *loopinfo.Loop) *Invariant {
	inv := &Invariant{First: op}
	cur := op
	for {
		switch v := cur.(type) {
		case *ssa.Convert:
			if !integerCast(v) {
				inv.Source = cur
				return inv
			}
			inv.Skip = append(inv.Skip, v)
			cur = v.X
		case *ssa.ChangeType:
			inv.Skip = append(inv.Skip, v)
			cur = v.X
		default:
			inv.Source = cur
			return inv
		}
	}
}

func integerCast(cv *ssa.Convert) bool {
	isInt := func(t types.Type) bool {
		b, ok := t.Underlying().(*types.Basic)
		return ok && b.Info()&types.IsInteger != 0
	}
	return isInt(cv.X.Type()) && isInt(cv.Type())
}

// loadsPointer reports whether the load produces a pointer, which marks it
// as schedule or access bookkeeping rather than kernel data.
func loadsPointer(ld *ssa.UnOp) bool {
	switch ld.Type().Underlying().(type) {
	case *types.Pointer, *types.Slice:
		return true
	}
	return false
}

// resolveImmediate recognises a load from a constant-initialised local
// array at a compile-time index and returns the literal value.
func resolveImmediate(ld *ssa.UnOp, l *loopinfo.Loop) *ssa.Const {
	ia, ok := ld.X.(*ssa.IndexAddr)
	if !ok {
		return nil
	}
	idx, ok := ia.Index.(*ssa.Const)
	if !ok || idx.Value == nil {
		return nil
	}
	alloc, ok := ia.X.(*ssa.Alloc)
	if !ok || l.ContainsInstr(alloc) {
		return nil
	}

	var found *ssa.Const
	for _, ref := range irutil.Users(alloc) {
		elem, ok := ref.(*ssa.IndexAddr)
		if !ok {
			continue
		}
		for _, use := range irutil.Users(elem) {
			st, ok := irutil.IsStore(use)
			if !ok {
				continue
			}
			if l.ContainsInstr(st) {
				// the array is written inside the kernel
				return nil
			}
			elemIdx, ok := elem.Index.(*ssa.Const)
			if !ok {
				return nil
			}
			val, ok := st.Val.(*ssa.Const)
			if !ok {
				return nil
			}
			if elemIdx.Int64() == idx.Int64() {
				if found != nil {
					return nil
				}
				found = val
			}
		}
	}
	return found
}
