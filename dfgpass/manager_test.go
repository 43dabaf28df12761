package dfgpass

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cgraomp/dfg"
	"cgraomp/loopinfo"
)

type recordingPass struct {
	name    string
	ran     *[]string
	changed bool
}

func (p *recordingPass) Name() string { return p.name }

func (p *recordingPass) Run(g *dfg.Graph, l *loopinfo.Loop, am *Analyses) bool {
	*p.ran = append(*p.ran, p.name)
	return p.changed
}

func TestManagerRunsInOrder(t *testing.T) {
	var ran []string
	m := &Manager{}
	m.AddPass(&recordingPass{name: "first", ran: &ran})
	m.AddPass(&recordingPass{name: "second", ran: &ran, changed: true})
	m.AddPass(&recordingPass{name: "third", ran: &ran})

	changed := m.Run(dfg.New("t"), nil, &Analyses{})
	assert.True(t, changed)
	assert.Equal(t, []string{"first", "second", "third"}, ran)
}

func TestManagerReportsNoChange(t *testing.T) {
	var ran []string
	m := &Manager{}
	m.AddPass(&recordingPass{name: "only", ran: &ran})
	assert.False(t, m.Run(dfg.New("t"), nil, &Analyses{}))
}

func TestParsePipelineBuiltins(t *testing.T) {
	b, err := NewBuilder(nil)
	require.NoError(t, err)

	m := &Manager{}
	require.NoError(t, b.ParsePipeline(m, []string{"balance-tree", "dead-node-elim"}))
	passes := m.Passes()
	require.Len(t, passes, 2)
	assert.Equal(t, "balance-tree", passes[0].Name())
	assert.Equal(t, "dead-node-elim", passes[1].Name())
}

func TestParsePipelineUnknownNameIsFatal(t *testing.T) {
	b, err := NewBuilder(nil)
	require.NoError(t, err)

	err = b.ParsePipeline(&Manager{}, []string{"no-such-pass"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no-such-pass not found")
}

func TestCallbackRegistrationOrder(t *testing.T) {
	b, err := NewBuilder(nil)
	require.NoError(t, err)

	var ran []string
	// a later callback can claim a new name but not shadow built-ins
	b.RegisterPipelineParsingCallback(func(name string, pm *Manager) bool {
		if name == "balance-tree" || name == "extra" {
			pm.AddPass(&recordingPass{name: "extra:" + name, ran: &ran})
			return true
		}
		return false
	})

	m := &Manager{}
	require.NoError(t, b.ParsePipeline(m, []string{"balance-tree", "extra"}))
	passes := m.Passes()
	require.Len(t, passes, 2)
	assert.Equal(t, "balance-tree", passes[0].Name())
	assert.Equal(t, "extra:extra", passes[1].Name())
}

func TestMissingPluginIsFatal(t *testing.T) {
	_, err := NewBuilder([]string{"/nonexistent/pass-plugin.so"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pass-plugin.so")
}

func TestEmptyPipelineIsIdentity(t *testing.T) {
	g := dfg.New("t")
	a := g.AddNode(&dfg.ComputeNode{Opcode: "add"})
	b := g.AddNode(&dfg.ComputeNode{Opcode: "mul"})
	g.Connect(&dfg.Edge{Src: a, Dst: b, Operand: 1, Kind: dfg.EdgeNormal})

	type edgeKey struct {
		src, dst int64
		operand  int
	}
	snapshot := func() (int, int, map[edgeKey]bool) {
		edges := map[edgeKey]bool{}
		for _, e := range g.Edges() {
			edges[edgeKey{e.Src.ID(), e.Dst.ID(), e.Operand}] = true
		}
		return g.NodeCount(), g.EdgeCount(), edges
	}

	n0, e0, s0 := snapshot()
	changed := (&Manager{}).Run(g, nil, &Analyses{})
	n1, e1, s1 := snapshot()

	assert.False(t, changed)
	assert.Equal(t, n0, n1)
	assert.Equal(t, e0, e1)
	assert.Equal(t, s0, s1)
}
