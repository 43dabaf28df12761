package model

import (
	"fmt"
	"math"
	"sort"

	"golang.org/x/tools/go/ssa"

	"cgraomp/internal/irutil"
)

// EntryClass discriminates the map-entry variants.
type EntryClass int

const (
	BinaryOpEntry EntryClass = iota
	CompareEntry
	MemoryEntry
	CustomEntry
)

// MemKind tags memory map entries.
type MemKind int

const (
	MemLoad MemKind = iota
	MemStore
)

// knownFlags is the closed set of instruction flags accepted in mapping
// conditions. The host SSA form carries none of them, so a flag-conditioned
// entry can never match an instruction; the names are still validated.
var knownFlags = map[string]bool{
	"nuw": true, "nsw": true, "exact": true,
	"fast": true, "nnan": true, "ninf": true, "nsz": true,
	"arcp": true, "contract": true, "afn": true, "reassoc": true,
}

// knownPreds is the set of accepted compare predicate names.
var knownPreds = map[string]bool{
	// integer
	"eq": true, "ne": true,
	"ugt": true, "uge": true, "ult": true, "ule": true,
	"sgt": true, "sge": true, "slt": true, "sle": true,
	// float
	"false": true, "oeq": true, "ogt": true, "oge": true,
	"olt": true, "ole": true, "one": true, "ord": true,
	"ueq": true, "une": true, "uno": true, "true": true,
}

type constCond struct {
	operand int // 0 = lhs, 1 = rhs
	isInt   bool
	intVal  int64
	dblVal  float64
}

// MapCondition is a predicate over an instruction: required flags
// (conjunction), optional compare-predicate equality, and optional constant
// operand equality. Any unspecified sub-clause matches.
type MapCondition struct {
	mapName  string
	flags    []string
	pred     string
	constOp  *constCond
	flagsOf  func(ssa.Instruction) map[string]bool
	declPred bool
}

// NewMapCondition builds an unconstrained condition mapping to name.
func NewMapCondition(name string) *MapCondition {
	return &MapCondition{mapName: name}
}

// MapName is the emitted opcode name of a matching instruction.
func (c *MapCondition) MapName() string { return c.mapName }

// SetFlags installs the required-flag clause; unknown flags are an error.
func (c *MapCondition) SetFlags(flags []string) error {
	for _, f := range flags {
		if !knownFlags[f] {
			return fmt.Errorf("unknown flag %q for instruction mapping condition", f)
		}
	}
	c.flags = append(c.flags, flags...)
	return nil
}

// SetPred installs the compare-predicate clause.
func (c *MapCondition) SetPred(pred string) error {
	if !knownPreds[pred] {
		return fmt.Errorf("unknown pred type %q for instruction mapping condition", pred)
	}
	c.pred = pred
	c.declPred = true
	return nil
}

// SetConstInt installs an integer constant-operand clause, replacing any
// clause installed before.
func (c *MapCondition) SetConstInt(v int64, isLeft bool) {
	c.constOp = &constCond{operand: operandIndex(isLeft), isInt: true, intVal: v}
}

// SetConstDouble installs a floating constant-operand clause.
func (c *MapCondition) SetConstDouble(v float64, isLeft bool) {
	c.constOp = &constCond{operand: operandIndex(isLeft), dblVal: v}
}

func operandIndex(isLeft bool) int {
	if isLeft {
		return 0
	}
	return 1
}

// Match evaluates the condition against an instruction.
func (c *MapCondition) Match(instr ssa.Instruction) bool {
	if len(c.flags) > 0 {
		have := map[string]bool{}
		if c.flagsOf != nil {
			have = c.flagsOf(instr)
		}
		for _, f := range c.flags {
			if !have[f] {
				return false
			}
		}
	}
	if c.declPred {
		bin, ok := instr.(*ssa.BinOp)
		if !ok {
			return false
		}
		pred, ok := irutil.Predicate(bin)
		if !ok || pred != c.pred {
			return false
		}
	}
	if c.constOp != nil && !c.matchConst(instr) {
		return false
	}
	return true
}

func (c *MapCondition) matchConst(instr ssa.Instruction) bool {
	ops := irutil.DataOperands(instr)
	if c.constOp.operand >= len(ops) {
		return false
	}
	k, ok := ops[c.constOp.operand].(*ssa.Const)
	if !ok || k.Value == nil {
		return false
	}
	if c.constOp.isInt {
		return k.Int64() == c.constOp.intVal
	}
	return EqualDouble(k.Float64(), c.constOp.dblVal)
}

// EqualDouble compares doubles within the machine epsilon, scaled by the
// larger magnitude.
func EqualDouble(a, b float64) bool {
	eps := math.Nextafter(1, 2) - 1
	return math.Abs(a-b) <= eps*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}

// MapEntry is one instruction-mapping rule: an opcode class plus a
// condition.
type MapEntry struct {
	class   EntryClass
	opcode  string
	isInt   bool
	memKind MemKind
	cond    *MapCondition
}

// Opcode is the configured opcode string of the entry.
func (e *MapEntry) Opcode() string { return e.opcode }

// Class reports the entry variant.
func (e *MapEntry) Class() EntryClass { return e.class }

// MapName is the name this entry emits for matching instructions.
func (e *MapEntry) MapName() string { return e.cond.MapName() }

// Match reports whether the instruction belongs to this entry's opcode
// class and satisfies its condition.
func (e *MapEntry) Match(instr ssa.Instruction, customCheck func(*ssa.Function) bool) bool {
	switch e.class {
	case BinaryOpEntry:
		bin, ok := instr.(*ssa.BinOp)
		if !ok || irutil.IsCompare(bin) {
			// a unary operator matches the entry of its own opcode
			// (fneg, sub or xor)
			if un, okU := instr.(*ssa.UnOp); okU && irutil.Opcode(un) == e.opcode {
				return e.cond.Match(instr)
			}
			return false
		}
		return irutil.Opcode(bin) == e.opcode && e.cond.Match(instr)
	case CompareEntry:
		bin, ok := instr.(*ssa.BinOp)
		if !ok || !irutil.IsCompare(bin) {
			return false
		}
		isInt := !irutil.IsFloat(bin.X.Type())
		return isInt == e.isInt && e.cond.Match(instr)
	case MemoryEntry:
		if _, ok := irutil.IsLoad(instr); ok {
			return e.memKind == MemLoad
		}
		if _, ok := irutil.IsStore(instr); ok {
			return e.memKind == MemStore
		}
		return false
	case CustomEntry:
		call, ok := instr.(*ssa.Call)
		if !ok {
			return false
		}
		callee := call.Call.StaticCallee()
		if callee == nil || callee.Name() != e.opcode {
			return false
		}
		if customCheck != nil && !customCheck(callee) {
			return false
		}
		return e.cond.Match(instr)
	}
	return false
}

// genericEntryClasses maps the recognized generic opcode strings to their
// entry class.
var genericEntryClasses = map[string]func(cond *MapCondition) *MapEntry{}

func init() {
	binOps := []string{
		"add", "fadd", "sub", "fsub", "mul", "fmul",
		"udiv", "sdiv", "fdiv", "urem", "srem", "frem",
		"shl", "lshr", "ashr", "and", "or", "xor", "fneg",
	}
	for _, op := range binOps {
		op := op
		genericEntryClasses[op] = func(cond *MapCondition) *MapEntry {
			return &MapEntry{class: BinaryOpEntry, opcode: op, cond: cond}
		}
	}
	genericEntryClasses["icmp"] = func(cond *MapCondition) *MapEntry {
		return &MapEntry{class: CompareEntry, opcode: "icmp", isInt: true, cond: cond}
	}
	genericEntryClasses["fcmp"] = func(cond *MapCondition) *MapEntry {
		return &MapEntry{class: CompareEntry, opcode: "fcmp", isInt: false, cond: cond}
	}
	genericEntryClasses["load"] = func(cond *MapCondition) *MapEntry {
		return &MapEntry{class: MemoryEntry, opcode: "load", memKind: MemLoad, cond: cond}
	}
	genericEntryClasses["store"] = func(cond *MapCondition) *MapEntry {
		return &MapEntry{class: MemoryEntry, opcode: "store", memKind: MemStore, cond: cond}
	}
}

// GenericOpcodes lists the recognized generic opcode strings, sorted.
func GenericOpcodes() []string {
	out := make([]string, 0, len(genericEntryClasses))
	for op := range genericEntryClasses {
		out = append(out, op)
	}
	sort.Strings(out)
	return out
}

// InstructionMap is the ordered sequence of map entries plus the
// default-entry table keyed by opcode. For any opcode there is at most one
// default entry; adding a conditional entry displaces the default.
type InstructionMap struct {
	entries  []*MapEntry
	defaults map[string]*MapEntry
	custom   map[string]bool

	customCheck func(*ssa.Function) bool
	warnf       func(format string, args ...any)
}

func NewInstructionMap() *InstructionMap {
	return &InstructionMap{
		defaults: make(map[string]*MapEntry),
		custom:   make(map[string]bool),
	}
}

// SetWarnFunc installs the sink for duplicate-registration warnings.
func (m *InstructionMap) SetWarnFunc(f func(format string, args ...any)) {
	m.warnf = f
}

// SetCustomInstChecker installs the predicate deciding whether a function
// is a custom-instruction implementation.
func (m *InstructionMap) SetCustomInstChecker(check func(*ssa.Function) bool) {
	m.customCheck = check
}

func (m *InstructionMap) warn(format string, args ...any) {
	if m.warnf != nil {
		m.warnf(format, args...)
	}
}

// AddGenericInst registers a default entry for a recognized opcode.
func (m *InstructionMap) AddGenericInst(opcode string) error {
	if _, dup := m.defaults[opcode]; dup {
		m.warn("instruction %q is already added", opcode)
		return nil
	}
	gen, ok := genericEntryClasses[opcode]
	if !ok {
		return fmt.Errorf("unknown opcode %q for the supported instructions", opcode)
	}
	e := gen(NewMapCondition(opcode))
	m.entries = append(m.entries, e)
	m.defaults[opcode] = e
	return nil
}

// AddCustomInst registers a default entry for a custom instruction named
// after its implementing function.
func (m *InstructionMap) AddCustomInst(name string) {
	if _, dup := m.defaults[name]; dup {
		m.warn("instruction %q is already added", name)
		return
	}
	e := &MapEntry{class: CustomEntry, opcode: name, cond: NewMapCondition(name)}
	m.entries = append(m.entries, e)
	m.defaults[name] = e
	m.custom[name] = true
}

// AddMapEntry appends a conditional entry for opcode, displacing the
// default entry if it still exists.
func (m *InstructionMap) AddMapEntry(opcode string, cond *MapCondition) error {
	def, known := m.defaults[opcode]
	if !known {
		return fmt.Errorf("a mapping condition for not supported instruction %q is specified", opcode)
	}
	if def != nil {
		for i, e := range m.entries {
			if e == def {
				m.entries = append(m.entries[:i], m.entries[i+1:]...)
				break
			}
		}
		m.defaults[opcode] = nil
	}
	var e *MapEntry
	if m.custom[opcode] {
		e = &MapEntry{class: CustomEntry, opcode: opcode, cond: cond}
	} else {
		e = genericEntryClasses[opcode](cond)
	}
	m.entries = append(m.entries, e)
	return nil
}

// Find walks the entries in insertion order and returns the first whose
// opcode class matches the instruction and whose condition is satisfied.
func (m *InstructionMap) Find(instr ssa.Instruction) *MapEntry {
	for _, e := range m.entries {
		if e.Match(instr, m.customCheck) {
			return e
		}
	}
	return nil
}

// FindByOpcode returns the first entry registered for an opcode string.
func (m *InstructionMap) FindByOpcode(opcode string) *MapEntry {
	for _, e := range m.entries {
		if e.opcode == opcode {
			return e
		}
	}
	return nil
}

// Entries exposes the entry sequence in insertion order.
func (m *InstructionMap) Entries() []*MapEntry {
	return append([]*MapEntry(nil), m.entries...)
}
