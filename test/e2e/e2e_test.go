package e2e

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cgraomp/internal/diag"
	"cgraomp/internal/driver"
	"cgraomp/internal/options"
)

const vecAddModel = `{
	"category": "decoupled",
	"conditional": {"allowed": false},
	"inter-loop-dependency": {"allowed": false},
	"address_generator": {"control": "affine"},
	"generic_instructions": ["add", "sub", "mul", "icmp", "load", "store"],
	"custom_instructions": []
}`

func TestVecAddEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("requires the go toolchain for package loading")
	}

	outDir := t.TempDir()
	modelPath := filepath.Join(outDir, "model.json")
	require.NoError(t, os.WriteFile(modelPath, []byte(vecAddModel), 0o644))

	opts := options.Default()
	opts.ModelPath = modelPath
	opts.DFGFilePrefix = filepath.Join(outDir, "dfg")
	opts.DFGPlainNodeName = true
	opts.UseSimpleDFGName = true

	var diagBuf bytes.Buffer
	reporter := diag.NewReporter(&diagBuf, "text")
	d := &driver.Driver{Opts: opts, Reporter: reporter}
	require.NoError(t, d.Run([]string{filepath.Join("vecadd", "main.go")}), "diagnostics: %s", diagBuf.String())

	matches, err := filepath.Glob(filepath.Join(outDir, "dfg_main_vecAdd_*.dot"))
	require.NoError(t, err)
	require.Len(t, matches, 1, "expected exactly one graph, diagnostics: %s", diagBuf.String())

	body, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	dot := string(body)

	assert.Equal(t, 2, strings.Count(dot, "type=input"), "two memory loads")
	assert.Equal(t, 1, strings.Count(dot, "type=output"), "one memory store")
	assert.Equal(t, 1, strings.Count(dot, "opcode=mul"))
	assert.Equal(t, 1, strings.Count(dot, "opcode=add"))
	assert.Equal(t, 1, strings.Count(dot, "type=const"), "one constant input")
	assert.NotContains(t, dot, "dir=back", "no loop-carried edges")
	assert.NotContains(t, dot, "__VROOT")
	assert.Contains(t, diagBuf.String(), "valid kernel")

	// the address patterns of all three accesses land in the side file
	jsonPath := strings.TrimSuffix(matches[0], ".dot") + ".json"
	meta, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(string(meta), `"base"`))
}

func TestNestedLoopEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("requires the go toolchain for package loading")
	}

	outDir := t.TempDir()
	modelPath := filepath.Join(outDir, "model.json")
	require.NoError(t, os.WriteFile(modelPath, []byte(vecAddModel), 0o644))

	opts := options.Default()
	opts.ModelPath = modelPath
	opts.DFGFilePrefix = filepath.Join(outDir, "dfg")
	opts.DFGPlainNodeName = true
	opts.UseSimpleDFGName = true

	var diagBuf bytes.Buffer
	reporter := diag.NewReporter(&diagBuf, "text")
	d := &driver.Driver{Opts: opts, Reporter: reporter}
	require.NoError(t, d.Run([]string{filepath.Join("nested3", "main.go")}), "diagnostics: %s", diagBuf.String())

	matches, err := filepath.Glob(filepath.Join(outDir, "dfg_main_stencilAdd_*.dot"))
	require.NoError(t, err)
	require.Len(t, matches, 1, "diagnostics: %s", diagBuf.String())

	body, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	dot := string(body)
	assert.Equal(t, 2, strings.Count(dot, "type=input"))
	assert.Equal(t, 1, strings.Count(dot, "type=output"))
	assert.Equal(t, 1, strings.Count(dot, "opcode=mul"))
	assert.Equal(t, 1, strings.Count(dot, "opcode=add"))
	assert.Equal(t, 1, strings.Count(dot, "type=const"), "the invariant scale is the only const input")

	// every access reports three affine dimensions with equal trip counts
	meta, err := os.ReadFile(strings.TrimSuffix(matches[0], ".dot") + ".json")
	require.NoError(t, err)
	metaStr := string(meta)
	assert.Equal(t, 3, strings.Count(metaStr, `"base"`))
	assert.Equal(t, 3, strings.Count(metaStr, `"count": 16`))
	assert.Equal(t, 3, strings.Count(metaStr, `"count": 8`))
	assert.Equal(t, 3, strings.Count(metaStr, `"count": 4`))
	assert.Equal(t, 3, strings.Count(metaStr, `"step": 16`))
	assert.Equal(t, 3, strings.Count(metaStr, `"step": 128`))
}

const memDepModel = `{
	"category": "decoupled",
	"conditional": {"allowed": false},
	"inter-loop-dependency": {"allowed": true, "type": "BackwardInst"},
	"address_generator": {"control": "affine"},
	"generic_instructions": ["add", "sub", "mul", "icmp", "load", "store"],
	"custom_instructions": []
}`

func TestMemoryDependencyEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("requires the go toolchain for package loading")
	}

	run := func(model string) (string, []string) {
		outDir := t.TempDir()
		modelPath := filepath.Join(outDir, "model.json")
		require.NoError(t, os.WriteFile(modelPath, []byte(model), 0o644))

		opts := options.Default()
		opts.ModelPath = modelPath
		opts.DFGFilePrefix = filepath.Join(outDir, "dfg")
		opts.DFGPlainNodeName = true
		opts.UseSimpleDFGName = true

		var diagBuf bytes.Buffer
		reporter := diag.NewReporter(&diagBuf, "text")
		d := &driver.Driver{Opts: opts, Reporter: reporter}
		require.NoError(t, d.Run([]string{filepath.Join("memdep", "main.go")}), "diagnostics: %s", diagBuf.String())

		matches, err := filepath.Glob(filepath.Join(outDir, "dfg_main_prefixAdd_*.dot"))
		require.NoError(t, err)
		return diagBuf.String(), matches
	}

	// a fabric carrying backward dependencies accepts the kernel
	diags, matches := run(memDepModel)
	require.Len(t, matches, 1, "diagnostics: %s", diags)
	body, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	dot := string(body)
	assert.Equal(t, 1, strings.Count(dot, "dir=back"))
	assert.Equal(t, 1, strings.Count(dot, "distance=1"))
	assert.Equal(t, 1, strings.Count(dot, "type=init"))
	assert.Contains(t, diags, "valid kernel")

	// a fabric without inter-loop dependency support rejects it
	diags, matches = run(vecAddModel)
	assert.Empty(t, matches)
	assert.Contains(t, diags, "invalid kernel")
	assert.Contains(t, diags, "including 1 inter loop dependencies")
}
