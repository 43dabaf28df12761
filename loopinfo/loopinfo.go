// Package loopinfo detects natural loops and perfectly nested loop
// structures in SSA functions.
package loopinfo

import (
	"fmt"
	"sort"

	"golang.org/x/tools/go/ssa"
)

// Loop is one natural loop: a header plus the set of blocks that reach the
// back edge without leaving the loop.
type Loop struct {
	Fn       *ssa.Function
	Header   *ssa.BasicBlock
	Parent   *Loop
	Children []*Loop

	blocks   []*ssa.BasicBlock
	blockSet map[*ssa.BasicBlock]bool
	latches  []*ssa.BasicBlock
}

// Blocks returns the loop blocks; the header is first.
func (l *Loop) Blocks() []*ssa.BasicBlock {
	return append([]*ssa.BasicBlock(nil), l.blocks...)
}

// Contains reports whether b belongs to the loop (including nested loops).
func (l *Loop) Contains(b *ssa.BasicBlock) bool { return l.blockSet[b] }

// ContainsInstr reports whether the instruction's block belongs to the loop.
func (l *Loop) ContainsInstr(instr ssa.Instruction) bool {
	return instr.Block() != nil && l.blockSet[instr.Block()]
}

// ContainsValue reports whether the value is an instruction defined inside
// the loop.
func (l *Loop) ContainsValue(v ssa.Value) bool {
	instr, ok := v.(ssa.Instruction)
	return ok && l.ContainsInstr(instr)
}

// Latch returns the unique in-loop predecessor of the header carrying the
// back edge, or nil when there is more than one.
func (l *Loop) Latch() *ssa.BasicBlock {
	if len(l.latches) == 1 {
		return l.latches[0]
	}
	return nil
}

// Preheader returns the unique out-of-loop predecessor of the header, or
// nil.
func (l *Loop) Preheader() *ssa.BasicBlock {
	var pre *ssa.BasicBlock
	for _, p := range l.Header.Preds {
		if l.blockSet[p] {
			continue
		}
		if pre != nil {
			return nil
		}
		pre = p
	}
	return pre
}

// Depth is the nesting depth of the loop, 1 for a top-level loop.
func (l *Loop) Depth() int {
	d := 1
	for p := l.Parent; p != nil; p = p.Parent {
		d++
	}
	return d
}

// Name identifies the loop in diagnostics and output file names.
func (l *Loop) Name() string {
	comment := l.Header.Comment
	if comment == "" {
		comment = "loop"
	}
	return fmt.Sprintf("%s%d", comment, l.Header.Index)
}

// Info is the per-function loop forest.
type Info struct {
	Fn       *ssa.Function
	TopLevel []*Loop
}

// Name implements the analysis-result contract.
func (i *Info) Name() string { return "loop-nest" }

// Invalidate reports whether the loop forest must be recomputed.
func (i *Info) Invalidate(unit any, preserved map[string]bool) bool {
	if preserved == nil {
		return false
	}
	return !preserved[i.Name()] && !preserved["all"]
}

// Analyze builds the loop forest of fn from its dominator tree: an edge
// b -> h where h dominates b is a back edge, and the natural loop of h is
// everything that reaches b without passing through h.
func Analyze(fn *ssa.Function) *Info {
	info := &Info{Fn: fn}
	byHeader := make(map[*ssa.BasicBlock]*Loop)

	for _, b := range fn.Blocks {
		for _, succ := range b.Succs {
			if !succ.Dominates(b) {
				continue
			}
			l := byHeader[succ]
			if l == nil {
				l = &Loop{
					Fn:       fn,
					Header:   succ,
					blockSet: map[*ssa.BasicBlock]bool{succ: true},
					blocks:   []*ssa.BasicBlock{succ},
				}
				byHeader[succ] = l
			}
			l.latches = append(l.latches, b)
			collectNaturalLoop(l, b)
		}
	}

	loops := make([]*Loop, 0, len(byHeader))
	for _, l := range byHeader {
		loops = append(loops, l)
	}
	// order blocks and loops deterministically
	for _, l := range loops {
		sort.Slice(l.blocks[1:], func(i, j int) bool {
			return l.blocks[i+1].Index < l.blocks[j+1].Index
		})
	}
	sort.Slice(loops, func(i, j int) bool {
		return loops[i].Header.Index < loops[j].Header.Index
	})

	// nesting: the parent is the smallest strictly containing loop
	for _, l := range loops {
		var parent *Loop
		for _, candidate := range loops {
			if candidate == l || !candidate.blockSet[l.Header] {
				continue
			}
			if parent == nil || parent.blockSet[candidate.Header] {
				parent = candidate
			}
		}
		l.Parent = parent
	}
	for _, l := range loops {
		if l.Parent == nil {
			info.TopLevel = append(info.TopLevel, l)
		} else {
			l.Parent.Children = append(l.Parent.Children, l)
		}
	}
	return info
}

func collectNaturalLoop(l *Loop, latch *ssa.BasicBlock) {
	stack := []*ssa.BasicBlock{latch}
	for len(stack) > 0 {
		b := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if l.blockSet[b] {
			continue
		}
		l.blockSet[b] = true
		l.blocks = append(l.blocks, b)
		stack = append(stack, b.Preds...)
	}
}
