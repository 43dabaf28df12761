package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/tools/go/ssa"

	"cgraomp/internal/irutil"
	"cgraomp/internal/ssatest"
)

const arithSrc = `package kernel

func compute(a, b int32, p *int32) int32 {
	s := a + b
	m := s * 2
	if m < b {
		m = m * a
	}
	*p = m
	return m
}
`

func collectInstrs(fn *ssa.Function) []ssa.Instruction {
	var out []ssa.Instruction
	for _, b := range fn.Blocks {
		out = append(out, b.Instrs...)
	}
	return out
}

func findBinOp(t *testing.T, fn *ssa.Function, opcode string) *ssa.BinOp {
	t.Helper()
	for _, instr := range collectInstrs(fn) {
		if bin, ok := instr.(*ssa.BinOp); ok && irutil.Opcode(bin) == opcode {
			return bin
		}
	}
	t.Fatalf("no %s instruction in fixture", opcode)
	return nil
}

func newMap(t *testing.T, generic ...string) *InstructionMap {
	t.Helper()
	m := NewInstructionMap()
	for _, op := range generic {
		require.NoError(t, m.AddGenericInst(op))
	}
	return m
}

func TestFindMatchesByOpcodeClass(t *testing.T) {
	pkg, _, _ := ssatest.Build(t, arithSrc)
	fn := ssatest.Func(t, pkg, "compute")

	m := newMap(t, "add", "mul", "icmp", "store")
	add := findBinOp(t, fn, "add")
	mul := findBinOp(t, fn, "mul")
	cmp := findBinOp(t, fn, "icmp")

	e := m.Find(add)
	require.NotNil(t, e)
	assert.Equal(t, "add", e.Opcode())

	e = m.Find(mul)
	require.NotNil(t, e)
	assert.Equal(t, "mul", e.Opcode())

	e = m.Find(cmp)
	require.NotNil(t, e)
	assert.Equal(t, CompareEntry, e.Class())

	var store *ssa.Store
	for _, instr := range collectInstrs(fn) {
		if st, ok := irutil.IsStore(instr); ok {
			store = st
		}
	}
	require.NotNil(t, store)
	e = m.Find(store)
	require.NotNil(t, e)
	assert.Equal(t, MemoryEntry, e.Class())
}

func TestFindIsStable(t *testing.T) {
	pkg, _, _ := ssatest.Build(t, arithSrc)
	fn := ssatest.Func(t, pkg, "compute")
	m := newMap(t, "add", "mul", "icmp")

	mul := findBinOp(t, fn, "mul")
	first := m.Find(mul)
	for i := 0; i < 5; i++ {
		assert.Same(t, first, m.Find(mul))
	}
}

func TestConditionalEntryDisplacesDefault(t *testing.T) {
	pkg, _, _ := ssatest.Build(t, arithSrc)
	fn := ssatest.Func(t, pkg, "compute")
	m := newMap(t, "mul")

	// mul by constant 2 maps to a shifter; the plain default disappears
	cond := NewMapCondition("shl1")
	cond.SetConstInt(2, false)
	require.NoError(t, m.AddMapEntry("mul", cond))

	// s * 2 has the constant on the rhs
	var byConst, byVar *ssa.BinOp
	for _, instr := range collectInstrs(fn) {
		bin, ok := instr.(*ssa.BinOp)
		if !ok || irutil.Opcode(bin) != "mul" {
			continue
		}
		if _, isConst := bin.Y.(*ssa.Const); isConst {
			byConst = bin
		} else {
			byVar = bin
		}
	}
	require.NotNil(t, byConst)
	require.NotNil(t, byVar)

	e := m.Find(byConst)
	require.NotNil(t, e)
	assert.Equal(t, "shl1", e.MapName())
	// m * a no longer matches anything: the default entry was displaced
	assert.Nil(t, m.Find(byVar))
}

func TestPredCondition(t *testing.T) {
	pkg, _, _ := ssatest.Build(t, arithSrc)
	fn := ssatest.Func(t, pkg, "compute")
	m := newMap(t, "icmp")

	cond := NewMapCondition("lt")
	require.NoError(t, cond.SetPred("slt"))
	require.NoError(t, m.AddMapEntry("icmp", cond))

	cmp := findBinOp(t, fn, "icmp")
	e := m.Find(cmp)
	require.NotNil(t, e)
	assert.Equal(t, "lt", e.MapName())

	// an eq-only map does not match a signed less-than
	m2 := newMap(t, "icmp")
	cond2 := NewMapCondition("eq")
	require.NoError(t, cond2.SetPred("eq"))
	require.NoError(t, m2.AddMapEntry("icmp", cond2))
	assert.Nil(t, m2.Find(cmp))
}

func TestFlagConditionNeverMatches(t *testing.T) {
	pkg, _, _ := ssatest.Build(t, arithSrc)
	fn := ssatest.Func(t, pkg, "compute")
	m := newMap(t, "add")

	cond := NewMapCondition("fastadd")
	require.NoError(t, cond.SetFlags([]string{"fast"}))
	require.NoError(t, m.AddMapEntry("add", cond))

	add := findBinOp(t, fn, "add")
	assert.Nil(t, m.Find(add))
}

func TestAddMapEntryUnknownOpcode(t *testing.T) {
	m := newMap(t)
	err := m.AddMapEntry("add", NewMapCondition("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not supported instruction")
}

func TestDuplicateGenericWarns(t *testing.T) {
	m := NewInstructionMap()
	var warned bool
	m.SetWarnFunc(func(string, ...any) { warned = true })
	require.NoError(t, m.AddGenericInst("add"))
	require.NoError(t, m.AddGenericInst("add"))
	assert.True(t, warned)
	assert.Len(t, m.Entries(), 1)
}
