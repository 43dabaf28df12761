package verify

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/tools/go/ssa"

	"cgraomp/internal/diag"
	"cgraomp/internal/model"
	"cgraomp/internal/ssatest"
)

const verifySrc = `package kernel

func __kmpc_for_static_init_4(loc int32, gtid int32, schedtype int32, plastiter *int32, plower *int32, pupper *int32, pstride *int32, incr int32, chunk int32) {
}

func __omp_offloading_806_13_vecAdd_l6(a []int32, b []int32, c []int32, n int32) {
	var lastiter, lower, upper, stride int32
	lower = 0
	upper = n - 1
	stride = 1
	__kmpc_for_static_init_4(0, 0, 34, &lastiter, &lower, &upper, &stride, 1, 0)
	for i := lower; i <= upper; i++ {
		c[i] = a[i] + 10*b[i]
	}
}

func __omp_offloading_806_13_memDep_l20(a []int32, b []int32, n int32) {
	for i := int32(1); i < n; i++ {
		b[i] = a[i] + b[i-1]
	}
}

func __omp_offloading_806_13_divide_l30(a []int32, c []int32, n int32) {
	for i := int32(0); i < n; i++ {
		c[i] = a[i] / 3
	}
}
`

func buildModel(t *testing.T, interLoop model.InterLoopDep, generic ...string) *model.Model {
	t.Helper()
	m := &model.Model{
		Category:  model.Decoupled,
		InterLoop: interLoop,
		AG:        &model.AffineAG{},
		InstMap:   model.NewInstructionMap(),
	}
	for _, op := range generic {
		require.NoError(t, m.InstMap.AddGenericInst(op))
	}
	return m
}

func verifyFn(t *testing.T, m *model.Model, fnName string) (*FunctionResult, string) {
	t.Helper()
	pkg, fset, _ := ssatest.Build(t, verifySrc)
	fn := ssatest.Func(t, pkg, fnName)
	var buf bytes.Buffer
	reporter := diag.NewReporter(&buf, "text")
	reporter.SetFileSet(fset)
	v := &Verifier{Model: m, Reporter: reporter, MemDepDistance: 4}
	res := v.VerifyFunction(fn)
	return res, buf.String()
}

func TestVectorKernelPasses(t *testing.T) {
	m := buildModel(t, model.DepNo, "add", "mul", "load", "store")
	res, out := verifyFn(t, m, "__omp_offloading_806_13_vecAdd_l6")
	require.Len(t, res.Verdicts, 1)
	verdict := res.Verdicts[0]
	assert.True(t, verdict.OK(), "diagnostics: %s", out)
	assert.Len(t, res.Kernels(), 1)
	assert.Contains(t, out, "valid kernel")
	require.NotNil(t, verdict.AG)
	assert.True(t, verdict.AG.OK())
}

func TestInterLoopDependencyRejected(t *testing.T) {
	m := buildModel(t, model.DepNo, "add", "load", "store")
	res, out := verifyFn(t, m, "__omp_offloading_806_13_memDep_l20")
	require.Len(t, res.Verdicts, 1)
	assert.False(t, res.Verdicts[0].OK())
	assert.Empty(t, res.Kernels())
	assert.Contains(t, out, "invalid kernel")
	assert.Contains(t, out, "including 1 inter loop dependencies")
	assert.Contains(t, out, "VIOLATE")
}

func TestInterLoopDependencyAcceptedWithBackwardInst(t *testing.T) {
	m := buildModel(t, model.DepBackwardInst, "add", "load", "store")
	res, out := verifyFn(t, m, "__omp_offloading_806_13_memDep_l20")
	require.Len(t, res.Verdicts, 1)
	assert.True(t, res.Verdicts[0].OK(), "diagnostics: %s", out)
	require.NotNil(t, res.Verdicts[0].Deps)
	assert.Equal(t, 1, res.Verdicts[0].Deps.NumMemDeps())
}

func TestUnsupportedInstructionRejected(t *testing.T) {
	// sdiv is not in the map
	m := buildModel(t, model.DepNo, "add", "mul", "load", "store")
	res, out := verifyFn(t, m, "__omp_offloading_806_13_divide_l30")
	require.Len(t, res.Verdicts, 1)
	verdict := res.Verdicts[0]
	assert.False(t, verdict.OK())
	assert.Contains(t, out, "sdiv")

	var avail *InstAvailability
	for _, r := range verdict.Results() {
		if a, ok := r.(*InstAvailability); ok {
			avail = a
		}
	}
	require.NotNil(t, avail)
	assert.Equal(t, []string{"sdiv"}, avail.UnsupportedOpcodes())
}

func TestRemarkListsAllSubChecks(t *testing.T) {
	m := buildModel(t, model.DepNo, "add", "load", "store")
	_, out := verifyFn(t, m, "__omp_offloading_806_13_memDep_l20")
	assert.Contains(t, out, DecouplingName)
	assert.Contains(t, out, InterLoopDepName)
	assert.Contains(t, out, InstAvailName)
}

func TestInstAvailabilityFilter(t *testing.T) {
	pkg, _, _ := ssatest.Build(t, verifySrc)
	fn := ssatest.Func(t, pkg, "__omp_offloading_806_13_divide_l30")

	var div ssa.Instruction
	for _, b := range fn.Blocks {
		for _, instr := range b.Instrs {
			if bin, ok := instr.(*ssa.BinOp); ok && strings.Contains(bin.Op.String(), "/") {
				div = instr
			}
		}
	}
	require.NotNil(t, div)

	avail := &InstAvailability{}
	avail.Add(div)
	assert.False(t, avail.OK())
	avail.Filter(map[ssa.Instruction]bool{div: true})
	assert.True(t, avail.OK())
	assert.Equal(t, "All instructions are supported", avail.Remark())
}
