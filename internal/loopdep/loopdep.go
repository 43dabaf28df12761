// Package loopdep enumerates induction variables, register-carried
// dependencies, and memory-carried RAW dependencies of a kernel loop.
package loopdep

import (
	"golang.org/x/tools/go/ssa"

	"cgraomp/internal/irutil"
	"cgraomp/internal/scev"
	"cgraomp/loopinfo"
)

// Dependency is one inter-iteration dependency of the loop.
type Dependency interface {
	// Phi returns the header phi carrying the dependency, or nil for
	// memory dependencies.
	Phi() *ssa.Phi
	kindName() string
}

// Induction is an induction-variable update: phi, back-edge binary
// operator, initial value, and constant step.
type Induction struct {
	IV *loopinfo.IndVar
}

func (d *Induction) Phi() *ssa.Phi    { return d.IV.Phi }
func (d *Induction) kindName() string { return "induction" }

// Simple is a register-carried dependency with distance 1.
type Simple struct {
	// Def is the in-loop instruction feeding the next iteration.
	Def ssa.Instruction
	// Init is the value entering from outside the loop.
	Init ssa.Value
	// Node is the carrying phi.
	Node *ssa.Phi
}

func (d *Simple) Phi() *ssa.Phi    { return d.Node }
func (d *Simple) kindName() string { return "simple" }

// Distance of a register-carried dependency is always one iteration.
func (d *Simple) Distance() int64 { return 1 }

// Memory is a store-to-load RAW dependency across iterations.
type Memory struct {
	Store    *ssa.Store
	Load     *ssa.UnOp
	Distance int64
}

func (d *Memory) Phi() *ssa.Phi    { return nil }
func (d *Memory) kindName() string { return "memory" }

// Info is the dependency inventory of one kernel loop nest.
type Info struct {
	Inductions []*Induction
	Simples    []*Simple
	Memories   []*Memory
}

// NumRegDeps counts register-carried dependencies (induction variables
// excluded).
func (i *Info) NumRegDeps() int { return len(i.Simples) }

// NumMemDeps counts memory-carried dependencies.
func (i *Info) NumMemDeps() int { return len(i.Memories) }

// IsInductionPhi reports whether phi belongs to an induction variable.
func (i *Info) IsInductionPhi(phi *ssa.Phi) bool {
	for _, d := range i.Inductions {
		if d.IV.Phi == phi {
			return true
		}
	}
	return false
}

// IsDependencyPhi reports whether phi carries a register dependency.
func (i *Info) IsDependencyPhi(phi *ssa.Phi) bool {
	for _, d := range i.Simples {
		if d.Node == phi {
			return true
		}
	}
	return false
}

// Name implements the analysis-result contract.
func (i *Info) Name() string { return "loop-dependency" }

// Invalidate reports whether the inventory must be recomputed.
func (i *Info) Invalidate(unit any, preserved map[string]bool) bool {
	if preserved == nil {
		return false
	}
	return !preserved[i.Name()] && !preserved["all"]
}

// Reporter receives structural warnings.
type Reporter interface {
	Warningf(format string, args ...any)
}

// Analyze inventories the dependencies of the nest rooted at l. Memory
// dependencies farther than threshold iterations are ignored.
func Analyze(l *loopinfo.Loop, sc *scev.Analysis, threshold int64, reporter Reporter) *Info {
	info := &Info{}

	indvarPhis := make(map[*ssa.Phi]bool)
	for _, nest := range loopinfo.NestLoops(l) {
		for _, iv := range loopinfo.InductionVariables(nest) {
			indvarPhis[iv.Phi] = true
			info.Inductions = append(info.Inductions, &Induction{IV: iv})
		}
	}

	// register-carried dependencies: non-induction phis with one incoming
	// value from outside the loop and one from inside
	for _, b := range l.Blocks() {
		for _, instr := range b.Instrs {
			phi, ok := instr.(*ssa.Phi)
			if !ok || indvarPhis[phi] {
				continue
			}
			var init ssa.Value
			var carried ssa.Instruction
			valid := true
			for i, edge := range phi.Edges {
				pred := phi.Block().Preds[i]
				if l.Contains(pred) {
					if carried != nil {
						valid = false
						break
					}
					carried, _ = edge.(ssa.Instruction)
				} else {
					if init != nil {
						valid = false
						break
					}
					init = edge
				}
			}
			if valid && init != nil && carried != nil {
				info.Simples = append(info.Simples, &Simple{Def: carried, Init: init, Node: phi})
			}
		}
	}

	// memory-carried RAW dependencies with constant distance
	inner := loopinfo.Innermost(l)
	if inner == nil {
		inner = l
	}
	var loads []*ssa.UnOp
	var stores []*ssa.Store
	for _, b := range inner.Blocks() {
		for _, instr := range b.Instrs {
			if ld, ok := irutil.IsLoad(instr); ok {
				loads = append(loads, ld)
			} else if st, ok := irutil.IsStore(instr); ok {
				stores = append(stores, st)
			}
		}
	}
	for _, st := range stores {
		stSym := irutil.SymbolOf(st.Addr)
		for _, ld := range loads {
			if stSym == "unknown" || irutil.SymbolOf(ld.X) != stSym {
				continue
			}
			dist, ok := scev.ConstantDifference(sc.Of(st.Addr), sc.Of(ld.X))
			if !ok {
				if reporter != nil {
					reporter.Warningf("cannot compute dependence distance between a store and a load of %s", stSym)
				}
				continue
			}
			if dist >= 1 && dist <= threshold {
				info.Memories = append(info.Memories, &Memory{Store: st, Load: ld, Distance: dist})
			}
		}
	}

	return info
}
