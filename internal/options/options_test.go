package options

import (
	"flag"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseArgs(t *testing.T, args ...string) (*Options, error) {
	t.Helper()
	o := Default()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	o.Register(fs)
	return o, fs.Parse(args)
}

func TestDefaults(t *testing.T) {
	o := Default()
	assert.Equal(t, "opcode", o.DFGOpKey)
	assert.False(t, o.DFGPlainNodeName)
	assert.Equal(t, 1, o.MemDepDistance)
	assert.Equal(t, "text", o.DiagFormat)
	assert.NotEmpty(t, o.ModelPath)
}

func TestParseAllOptions(t *testing.T) {
	o, err := parseArgs(t,
		"-cgra-model", "cgra.json",
		"-cgraomp-verbose",
		"-cgra-dfg-op-key", "op",
		"-cgra-dfg-plain",
		"-cgra-dfg-float-prec", "6",
		"-cgra-dfg-graph-prop", "rankdir=LR,splines=true",
		"-dfg-pass-pipeline", "balance-tree,dead-node-elim",
		"-load-dfg-pass-plugin", "a.so",
		"-load-dfg-pass-plugin", "b.so",
		"-dfg-file-prefix", "out/dfg",
		"-mem-dep-distance", "8",
		"-use-simple-dfg-name",
	)
	require.NoError(t, err)
	assert.Equal(t, "cgra.json", o.ModelPath)
	assert.True(t, o.Verbose)
	assert.Equal(t, "op", o.DFGOpKey)
	assert.True(t, o.DFGPlainNodeName)
	assert.Equal(t, 6, o.DFGFloatPrecision)
	assert.Equal(t, []KeyValue{{"rankdir", "LR"}, {"splines", "true"}}, o.DFGGraphProp)
	assert.Equal(t, []string{"balance-tree", "dead-node-elim"}, o.DFGPassPipeline)
	assert.Equal(t, []string{"a.so", "b.so"}, o.DFGPassPlugins)
	assert.Equal(t, "out/dfg", o.DFGFilePrefix)
	assert.Equal(t, 8, o.MemDepDistance)
	assert.True(t, o.UseSimpleDFGName)
}

func TestModelPathAlias(t *testing.T) {
	o, err := parseArgs(t, "-cm", "other.json")
	require.NoError(t, err)
	assert.Equal(t, "other.json", o.ModelPath)
}

func TestMalformedKeyValue(t *testing.T) {
	_, err := parseArgs(t, "-cgra-dfg-node-prop", "shape")
	require.Error(t, err)

	_, err = parseArgs(t, "-cgra-dfg-node-prop", "shape=box=tall")
	require.Error(t, err)

	_, err = ParseKeyValue("shape=box")
	assert.NoError(t, err)
}
