// Package verify orchestrates the per-kernel verification stages and
// renders their verdicts.
package verify

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/tools/go/ssa"

	"cgraomp/internal/irutil"
)

// Result is one named verification verdict: a pass/fail flag plus a short
// textual remark.
type Result interface {
	Name() string
	OK() bool
	Remark() string
}

type simpleResult struct {
	name   string
	remark string
	ok     bool
}

func (r *simpleResult) Name() string   { return r.name }
func (r *simpleResult) OK() bool       { return r.ok }
func (r *simpleResult) Remark() string { return r.remark }

// NewResult wraps a ready-made verdict.
func NewResult(name, remark string, ok bool) Result {
	return &simpleResult{name: name, remark: remark, ok: ok}
}

// Names of the verification stages.
const (
	DecouplingName   = "Memory access decoupling"
	InterLoopDepName = "Inter loop dependency"
	InstAvailName    = "Instruction availability"
	MemAccessName    = "Memory access pattern"
)

// InstAvailability records the instructions without a map entry.
type InstAvailability struct {
	unsupported []ssa.Instruction
}

// Add records an unsupported instruction.
func (a *InstAvailability) Add(instr ssa.Instruction) {
	a.unsupported = append(a.unsupported, instr)
}

// Filter drops entries present in the excepted set.
func (a *InstAvailability) Filter(except map[ssa.Instruction]bool) {
	kept := a.unsupported[:0]
	for _, instr := range a.unsupported {
		if !except[instr] {
			kept = append(kept, instr)
		}
	}
	a.unsupported = kept
}

// UnsupportedOpcodes returns the de-duplicated opcode names, sorted.
func (a *InstAvailability) UnsupportedOpcodes() []string {
	set := make(map[string]bool)
	for _, instr := range a.unsupported {
		set[irutil.Opcode(instr)] = true
	}
	out := make([]string, 0, len(set))
	for op := range set {
		out = append(out, op)
	}
	sort.Strings(out)
	return out
}

func (a *InstAvailability) Name() string { return InstAvailName }

func (a *InstAvailability) OK() bool { return len(a.unsupported) == 0 }

func (a *InstAvailability) Remark() string {
	ops := a.UnsupportedOpcodes()
	if len(ops) == 0 {
		return "All instructions are supported"
	}
	return fmt.Sprintf("Unsupported instructions are used: [%s]", strings.Join(ops, ", "))
}
