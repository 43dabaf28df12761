package kernel

import (
	"strings"

	"golang.org/x/tools/go/ssa"
)

// ScheduleInfo captures the seven operands of the static schedule
// initialisation call, exposed as an insertion-ordered set for equality
// testing against arbitrary IR values. A function without the call yields
// an invalid ScheduleInfo.
type ScheduleInfo struct {
	call   *ssa.Call
	values []ssa.Value
	set    map[ssa.Value]bool
}

// ExtractSchedule finds the first call whose callee name starts with the
// schedule-init runtime prefix and captures operand indices 2..8.
func ExtractSchedule(fn *ssa.Function) *ScheduleInfo {
	si := &ScheduleInfo{set: make(map[ssa.Value]bool)}
	for _, b := range fn.Blocks {
		for _, instr := range b.Instrs {
			call, ok := instr.(*ssa.Call)
			if !ok || !calleeHasPrefix(call, ScheduleInitPrefix) {
				continue
			}
			args := call.Call.Args
			if len(args) < 9 {
				continue
			}
			si.call = call
			for _, v := range args[2:9] {
				if !si.set[v] {
					si.set[v] = true
					si.values = append(si.values, v)
				}
			}
			return si
		}
	}
	return si
}

// Valid reports whether the schedule-init call was found.
func (s *ScheduleInfo) Valid() bool { return s.call != nil }

// CallSite returns the schedule-init call, or nil when invalid.
func (s *ScheduleInfo) CallSite() *ssa.Call { return s.call }

// Contains reports whether v is one of the captured schedule operands.
// An invalid ScheduleInfo contains nothing, so downstream analyses never
// treat a value as schedule-related.
func (s *ScheduleInfo) Contains(v ssa.Value) bool { return s.set[v] }

// Values returns the captured operands in insertion order.
func (s *ScheduleInfo) Values() []ssa.Value {
	return append([]ssa.Value(nil), s.values...)
}

func (s *ScheduleInfo) operand(i int) ssa.Value {
	if !s.Valid() {
		return nil
	}
	return s.call.Call.Args[2+i]
}

func (s *ScheduleInfo) SchedType() ssa.Value    { return s.operand(0) }
func (s *ScheduleInfo) LastIterFlag() ssa.Value { return s.operand(1) }
func (s *ScheduleInfo) LowerBound() ssa.Value   { return s.operand(2) }
func (s *ScheduleInfo) UpperBound() ssa.Value   { return s.operand(3) }
func (s *ScheduleInfo) Stride() ssa.Value       { return s.operand(4) }
func (s *ScheduleInfo) Increment() ssa.Value    { return s.operand(5) }
func (s *ScheduleInfo) Chunk() ssa.Value        { return s.operand(6) }

// Name implements the analysis-result contract.
func (s *ScheduleInfo) Name() string { return "omp-static-schedule" }

// Invalidate: schedule info dies with any transform that touches the
// runtime calls it captured.
func (s *ScheduleInfo) Invalidate(unit any, preserved map[string]bool) bool {
	if preserved == nil {
		return false
	}
	return !preserved[s.Name()] && !preserved["all"]
}

// RemoveScheduleRuntime erases the schedule init/fini runtime calls from a
// function once the analyses have consumed them. It reports whether any
// instruction was removed.
func RemoveScheduleRuntime(fn *ssa.Function) bool {
	removed := false
	for _, b := range fn.Blocks {
		kept := b.Instrs[:0]
		for _, instr := range b.Instrs {
			if call, ok := instr.(*ssa.Call); ok {
				if calleeHasPrefix(call, ScheduleInitPrefix) ||
					calleeHasPrefix(call, ScheduleFiniPrefix) {
					removed = true
					continue
				}
			}
			kept = append(kept, instr)
		}
		b.Instrs = kept
	}
	return removed
}

// IsScheduleRuntimeName reports whether a callee name belongs to the
// schedule runtime.
func IsScheduleRuntimeName(name string) bool {
	return strings.HasPrefix(name, ScheduleInitPrefix) ||
		strings.HasPrefix(name, ScheduleFiniPrefix)
}
