package loopinfo

import (
	"go/token"

	"golang.org/x/tools/go/ssa"
)

// IndVar is the canonical induction pattern of a loop: a header phi, its
// back-edge update with a constant step, and the initial value.
type IndVar struct {
	Phi  *ssa.Phi
	Op   *ssa.BinOp
	Init ssa.Value
	Step int64
}

// InductionVariables detects the induction variables of the loop. A phi
// whose back-edge update has a non-constant step is not an induction
// variable.
func InductionVariables(l *Loop) []*IndVar {
	var out []*IndVar
	for _, instr := range l.Header.Instrs {
		phi, ok := instr.(*ssa.Phi)
		if !ok {
			continue
		}
		if iv := inductionOf(l, phi); iv != nil {
			out = append(out, iv)
		}
	}
	return out
}

func inductionOf(l *Loop, phi *ssa.Phi) *IndVar {
	var init ssa.Value
	var update ssa.Value
	for i, edge := range phi.Edges {
		pred := phi.Block().Preds[i]
		if l.blockSet[pred] {
			if update != nil {
				return nil
			}
			update = edge
		} else {
			if init != nil {
				return nil
			}
			init = edge
		}
	}
	if init == nil || update == nil {
		return nil
	}
	bin, ok := update.(*ssa.BinOp)
	if !ok {
		return nil
	}
	step, ok := constStep(bin, phi)
	if !ok {
		return nil
	}
	return &IndVar{Phi: phi, Op: bin, Init: init, Step: step}
}

func constStep(bin *ssa.BinOp, phi *ssa.Phi) (int64, bool) {
	switch bin.Op {
	case token.ADD:
		if bin.X == phi {
			if c, ok := bin.Y.(*ssa.Const); ok && c.Value != nil {
				return c.Int64(), true
			}
		}
		if bin.Y == phi {
			if c, ok := bin.X.(*ssa.Const); ok && c.Value != nil {
				return c.Int64(), true
			}
		}
	case token.SUB:
		if bin.X == phi {
			if c, ok := bin.Y.(*ssa.Const); ok && c.Value != nil {
				return -c.Int64(), true
			}
		}
	}
	return 0, false
}

// ExitCondition returns the compare controlling the loop's back branch,
// searching the header then the latch.
func ExitCondition(l *Loop) *ssa.BinOp {
	for _, b := range []*ssa.BasicBlock{l.Header, l.Latch()} {
		if b == nil {
			continue
		}
		last := b.Instrs[len(b.Instrs)-1]
		br, ok := last.(*ssa.If)
		if !ok {
			continue
		}
		if cmp, ok := br.Cond.(*ssa.BinOp); ok {
			return cmp
		}
	}
	return nil
}

// BackBranch returns the conditional branch of the loop's back edge, or
// nil when the latch ends in an unconditional jump.
func BackBranch(l *Loop) *ssa.If {
	for _, b := range []*ssa.BasicBlock{l.Latch(), l.Header} {
		if b == nil {
			continue
		}
		if br, ok := b.Instrs[len(b.Instrs)-1].(*ssa.If); ok {
			return br
		}
	}
	return nil
}

// TripCount computes the exact static trip count of the loop, or 0 when
// the bounds are not compile-time constants.
func TripCount(l *Loop) uint64 {
	ivs := InductionVariables(l)
	cmp := ExitCondition(l)
	if cmp == nil {
		return 0
	}
	for _, iv := range ivs {
		if n, ok := tripCountFor(iv, cmp); ok {
			return n
		}
	}
	return 0
}

func tripCountFor(iv *IndVar, cmp *ssa.BinOp) (uint64, bool) {
	initConst, ok := iv.Init.(*ssa.Const)
	if !ok || initConst.Value == nil {
		return 0, false
	}
	init := initConst.Int64()

	op := cmp.Op
	var bound int64
	switch {
	case cmp.X == ssa.Value(iv.Phi):
		c, okY := cmp.Y.(*ssa.Const)
		if !okY || c.Value == nil {
			return 0, false
		}
		bound = c.Int64()
	case cmp.Y == ssa.Value(iv.Phi):
		c, okX := cmp.X.(*ssa.Const)
		if !okX || c.Value == nil {
			return 0, false
		}
		bound = c.Int64()
		op = swapCompare(op)
	default:
		return 0, false
	}

	step := iv.Step
	switch op {
	case token.LEQ:
		bound++
		op = token.LSS
	case token.GEQ:
		bound--
		op = token.GTR
	}
	switch {
	case op == token.LSS && step > 0:
		if bound <= init {
			return 0, true
		}
		return uint64((bound - init + step - 1) / step), true
	case op == token.GTR && step < 0:
		if bound >= init {
			return 0, true
		}
		return uint64((init - bound - step - 1) / -step), true
	}
	return 0, false
}

func swapCompare(op token.Token) token.Token {
	switch op {
	case token.LSS:
		return token.GTR
	case token.LEQ:
		return token.GEQ
	case token.GTR:
		return token.LSS
	case token.GEQ:
		return token.LEQ
	}
	return op
}
