package scev

import (
	"go/token"
	"go/types"

	"golang.org/x/tools/go/ssa"

	"cgraomp/internal/irutil"
	"cgraomp/loopinfo"
)

// Analysis computes scalar evolutions of values within one function, using
// its loop forest to recognise induction recurrences.
type Analysis struct {
	info  *loopinfo.Info
	ivs   map[*ssa.Phi]ivRec
	cache map[ssa.Value]Expr
	busy  map[ssa.Value]bool
}

type ivRec struct {
	loop *loopinfo.Loop
	iv   *loopinfo.IndVar
}

// NewAnalysis prepares the evolution analysis for the function of info.
func NewAnalysis(info *loopinfo.Info) *Analysis {
	a := &Analysis{
		info:  info,
		ivs:   make(map[*ssa.Phi]ivRec),
		cache: make(map[ssa.Value]Expr),
		busy:  make(map[ssa.Value]bool),
	}
	var walk func(l *loopinfo.Loop)
	walk = func(l *loopinfo.Loop) {
		for _, iv := range loopinfo.InductionVariables(l) {
			a.ivs[iv.Phi] = ivRec{loop: l, iv: iv}
		}
		for _, c := range l.Children {
			walk(c)
		}
	}
	for _, l := range info.TopLevel {
		walk(l)
	}
	return a
}

// Name implements the analysis-result contract.
func (a *Analysis) Name() string { return "scalar-evolution" }

// Invalidate reports whether cached evolutions must be dropped.
func (a *Analysis) Invalidate(unit any, preserved map[string]bool) bool {
	if preserved == nil {
		return false
	}
	return !preserved[a.Name()] && !preserved["all"]
}

// Of computes the evolution of v.
func (a *Analysis) Of(v ssa.Value) Expr {
	if e, ok := a.cache[v]; ok {
		return e
	}
	if a.busy[v] {
		// a cycle that is not a recognised induction recurrence
		return Unknown{V: v}
	}
	a.busy[v] = true
	e := a.compute(v)
	delete(a.busy, v)
	a.cache[v] = e
	return e
}

func (a *Analysis) compute(v ssa.Value) Expr {
	switch val := v.(type) {
	case *ssa.Const:
		if val.Value == nil {
			return Unknown{V: v}
		}
		if b, ok := val.Type().Underlying().(*types.Basic); ok && b.Info()&types.IsInteger != 0 {
			return Const{V: val.Int64()}
		}
		return Unknown{V: v}
	case *ssa.Phi:
		if rec, ok := a.ivs[val]; ok {
			return AddRec{
				Start: a.Of(rec.iv.Init),
				Step:  Const{V: rec.iv.Step},
				Loop:  rec.loop,
			}
		}
		return Unknown{V: v}
	case *ssa.BinOp:
		switch val.Op {
		case token.ADD:
			return NewAdd(a.Of(val.X), a.Of(val.Y))
		case token.SUB:
			return Minus(a.Of(val.X), a.Of(val.Y))
		case token.MUL:
			return NewMul(a.Of(val.X), a.Of(val.Y))
		case token.SHL:
			if c, ok := val.Y.(*ssa.Const); ok && c.Value != nil {
				return NewMul(a.Of(val.X), Const{V: 1 << uint(c.Int64())})
			}
		}
		return Unknown{V: v}
	case *ssa.Convert:
		return a.castOf(irutil.Opcode(val), val.X)
	case *ssa.ChangeType:
		return a.Of(val.X)
	case *ssa.IndexAddr:
		elem := irutil.IndexedElemType(val.X.Type())
		units := irutil.ElemUnits(elem)
		return NewAdd(a.Of(val.X), NewMul(Const{V: units}, a.Of(val.Index)))
	case *ssa.Slice:
		return a.Of(val.X)
	}
	return Unknown{V: v}
}

// castOf keeps a Cast wrapper only around opaque operands; affine
// structure passes through transparently.
func (a *Analysis) castOf(kind string, x ssa.Value) Expr {
	inner := a.Of(x)
	switch inner.(type) {
	case Const, AddRec, Add, Mul:
		return inner
	}
	return Cast{Kind: kind, X: inner}
}

// PointerOf computes the evolution of a memory access's address, measured
// in elements of the accessed scalar type.
func (a *Analysis) PointerOf(instr ssa.Instruction) Expr {
	ptr := irutil.MemPointer(instr)
	if ptr == nil {
		return nil
	}
	return a.Of(ptr)
}
