package scev

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/tools/go/ssa"

	"cgraomp/internal/irutil"
	"cgraomp/internal/ssatest"
	"cgraomp/loopinfo"
)

const scevSrc = `package kernel

func memdep(a []int32, b []int32, n int32) {
	for i := int32(1); i < n; i++ {
		b[i] = a[i] + b[i-1]
	}
}

func nested3(a *[4][8][16]int32, c *[4][8][16]int32) {
	for i := 0; i < 4; i++ {
		for j := 0; j < 8; j++ {
			for k := 0; k < 16; k++ {
				c[i][j][k] = a[i][j][k] * 2
			}
		}
	}
}
`

func loads(fn *ssa.Function, l *loopinfo.Loop) []*ssa.UnOp {
	var out []*ssa.UnOp
	for _, b := range l.Blocks() {
		for _, instr := range b.Instrs {
			if ld, ok := irutil.IsLoad(instr); ok {
				out = append(out, ld)
			}
		}
	}
	return out
}

func stores(fn *ssa.Function, l *loopinfo.Loop) []*ssa.Store {
	var out []*ssa.Store
	for _, b := range l.Blocks() {
		for _, instr := range b.Instrs {
			if st, ok := irutil.IsStore(instr); ok {
				out = append(out, st)
			}
		}
	}
	return out
}

func TestInductionRecurrence(t *testing.T) {
	pkg, _, _ := ssatest.Build(t, scevSrc)
	fn := ssatest.Func(t, pkg, "memdep")
	info := loopinfo.Analyze(fn)
	require.Len(t, info.TopLevel, 1)
	l := info.TopLevel[0]

	ivs := loopinfo.InductionVariables(l)
	require.Len(t, ivs, 1)

	a := NewAnalysis(info)
	e := a.Of(ivs[0].Phi)
	rec, ok := e.(AddRec)
	require.True(t, ok, "expected a recurrence, got %s", e)
	assert.Equal(t, Const{V: 1}, rec.Start)
	assert.Equal(t, Const{V: 1}, rec.Step)
	assert.Same(t, l, rec.Loop)
}

func TestPointerDistance(t *testing.T) {
	pkg, _, _ := ssatest.Build(t, scevSrc)
	fn := ssatest.Func(t, pkg, "memdep")
	info := loopinfo.Analyze(fn)
	l := info.TopLevel[0]
	a := NewAnalysis(info)

	// find the b[i] store and the b[i-1] load
	sts := stores(fn, l)
	require.Len(t, sts, 1)
	storePtr := a.PointerOf(sts[0])

	var depLoad Expr
	for _, ld := range loads(fn, l) {
		if irutil.SymbolOf(ld.X) == "b" {
			depLoad = a.PointerOf(ld)
		}
	}
	require.NotNil(t, depLoad)

	dist, ok := ConstantDifference(storePtr, depLoad)
	require.True(t, ok, "difference of %s and %s must fold", storePtr, depLoad)
	assert.Equal(t, int64(1), dist)
}

func TestNestedRecurrence(t *testing.T) {
	pkg, _, _ := ssatest.Build(t, scevSrc)
	fn := ssatest.Func(t, pkg, "nested3")
	info := loopinfo.Analyze(fn)
	require.Len(t, info.TopLevel, 1)
	inner := loopinfo.Innermost(info.TopLevel[0])
	require.NotNil(t, inner)

	a := NewAnalysis(info)
	sts := stores(fn, inner)
	require.Len(t, sts, 1)

	e := a.PointerOf(sts[0])
	rec, ok := e.(AddRec)
	require.True(t, ok, "expected innermost recurrence at top, got %s", e)
	assert.Equal(t, Const{V: 1}, rec.Step)
	assert.Same(t, inner, rec.Loop)

	mid, ok := rec.Start.(AddRec)
	require.True(t, ok, "expected middle recurrence, got %s", rec.Start)
	assert.Equal(t, Const{V: 16}, mid.Step)

	outer, ok := mid.Start.(AddRec)
	require.True(t, ok, "expected outer recurrence, got %s", mid.Start)
	assert.Equal(t, Const{V: 128}, outer.Step)

	_, ok = outer.Start.(Unknown)
	assert.True(t, ok, "expected the base pointer at the bottom, got %s", outer.Start)
}

func TestFolding(t *testing.T) {
	assert.Equal(t, Const{V: 7}, NewAdd(Const{V: 3}, Const{V: 4}))
	assert.Equal(t, Const{V: 12}, NewMul(Const{V: 3}, Const{V: 4}))
	assert.Equal(t, Const{V: 0}, NewMul(Const{V: 0}, Unknown{}))

	u := Unknown{}
	sum := NewAdd(u, Negate(u))
	assert.Equal(t, Const{V: 0}, sum)
}
