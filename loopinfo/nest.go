package loopinfo

import (
	"go/token"

	"golang.org/x/tools/go/ssa"
)

// NestDepth is the depth of the deepest loop chain rooted at l.
func NestDepth(l *Loop) int {
	max := 0
	for _, c := range l.Children {
		if d := NestDepth(c); d > max {
			max = d
		}
	}
	return 1 + max
}

// MaxPerfectDepth measures how deep the nest stays perfect starting at l:
// a single child whose surrounding blocks carry no effectful instructions
// extends the perfect nest by one level.
func MaxPerfectDepth(l *Loop) int {
	if len(l.Children) != 1 {
		return 1
	}
	child := l.Children[0]
	if !perfectlyWraps(l, child) {
		return 1
	}
	return 1 + MaxPerfectDepth(child)
}

// Innermost returns the unique innermost loop of the nest rooted at l, or
// nil when a level forks into multiple inner loops.
func Innermost(l *Loop) *Loop {
	for {
		switch len(l.Children) {
		case 0:
			return l
		case 1:
			l = l.Children[0]
		default:
			return nil
		}
	}
}

// NestLoops lists the single-child chain from l down to the innermost
// loop, outermost first.
func NestLoops(l *Loop) []*Loop {
	out := []*Loop{l}
	for len(l.Children) == 1 {
		l = l.Children[0]
		out = append(out, l)
	}
	return out
}

// perfectlyWraps reports whether every block of outer that is not part of
// inner carries only loop-control instructions.
func perfectlyWraps(outer, inner *Loop) bool {
	for _, b := range outer.blocks {
		if inner.blockSet[b] {
			continue
		}
		for _, instr := range b.Instrs {
			if !isControlInstr(instr) {
				return false
			}
		}
	}
	return true
}

func isControlInstr(instr ssa.Instruction) bool {
	switch v := instr.(type) {
	case *ssa.Phi, *ssa.If, *ssa.Jump:
		return true
	case *ssa.BinOp:
		// induction updates and exit conditions
		_ = v
		return true
	default:
		return false
	}
}

// KernelReporter receives structural warnings from kernel-loop selection.
type KernelReporter interface {
	Warning(pos token.Pos, msg string)
}

// FindKernelLoops returns, per outermost loop, the outermost loop whose
// sub-tree is maximally perfectly nested. A nest with more than one
// innermost loop at the same level is rejected with a warning and yields
// no kernel.
func FindKernelLoops(info *Info, reporter KernelReporter) []*Loop {
	var kernels []*Loop
	for _, outer := range info.TopLevel {
		if Innermost(outer) == nil {
			if reporter != nil {
				reporter.Warning(headerPos(outer), "detect multiple innermost loops")
			}
			continue
		}
		for _, l := range NestLoops(outer) {
			if NestDepth(l) == MaxPerfectDepth(l) {
				kernels = append(kernels, l)
				break
			}
		}
	}
	return kernels
}

func headerPos(l *Loop) token.Pos {
	for _, instr := range l.Header.Instrs {
		if pos := instr.Pos(); pos.IsValid() {
			return pos
		}
	}
	return token.NoPos
}
