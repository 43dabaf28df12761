// Package dfgpass schedules a configurable pipeline of DFG-rewriting
// passes and loads plugin libraries that contribute new passes.
package dfgpass

import (
	"fmt"
	"plugin"

	"golang.org/x/tools/go/ssa"

	"cgraomp/dfg"
	"cgraomp/loopinfo"
)

// Analyses gives passes access to the kernel context.
type Analyses struct {
	// Fn is the outlined worker holding the kernel.
	Fn *ssa.Function
	// Verbose enables pass-level debug output.
	Verbose bool
	// Extra carries analysis results keyed by name.
	Extra map[string]any
}

// Pass is one DFG transformation. Run reports whether the graph changed.
type Pass interface {
	Name() string
	Run(g *dfg.Graph, l *loopinfo.Loop, am *Analyses) bool
}

// Manager owns an ordered pass pipeline.
type Manager struct {
	pipeline []Pass
}

// AddPass appends a pass to the pipeline.
func (m *Manager) AddPass(p Pass) {
	m.pipeline = append(m.pipeline, p)
}

// Passes lists the scheduled passes in order.
func (m *Manager) Passes() []Pass {
	return append([]Pass(nil), m.pipeline...)
}

// Run invokes each pass in turn and reports whether any changed the
// graph.
func (m *Manager) Run(g *dfg.Graph, l *loopinfo.Loop, am *Analyses) bool {
	changed := false
	for _, p := range m.pipeline {
		if am != nil && am.Verbose {
			fmt.Printf("applying %s\n", p.Name())
		}
		if p.Run(g, l, am) {
			changed = true
		}
	}
	return changed
}

// Callback claims a pass name by scheduling the pass and returning true.
type Callback func(name string, pm *Manager) bool

// Builder resolves pass names against registered callbacks: built-in
// passes first, then every loaded plugin in load order.
type Builder struct {
	callbacks []Callback
}

// NewBuilder registers the built-in passes and loads the given plugin
// libraries. Plugins stay resident for the process lifetime.
func NewBuilder(pluginPaths []string) (*Builder, error) {
	b := &Builder{}
	b.RegisterPipelineParsingCallback(builtinCallback)
	for _, path := range pluginPaths {
		if err := b.loadPlugin(path); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// RegisterPipelineParsingCallback appends a pass-name resolver.
func (b *Builder) RegisterPipelineParsingCallback(cb Callback) {
	b.callbacks = append(b.callbacks, cb)
}

// ParsePipeline schedules the named passes onto pm. An unclaimed name is
// an error.
func (b *Builder) ParsePipeline(pm *Manager, names []string) error {
	for _, name := range names {
		found := false
		for _, cb := range b.callbacks {
			if cb(name, pm) {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%s not found", name)
		}
	}
	return nil
}

// PluginInfo is the value a plugin's exported factory returns.
type PluginInfo struct {
	// Name identifies the plugin in diagnostics.
	Name string
	// RegisterPassBuilderCallbacks contributes the plugin's pass-name
	// resolvers.
	RegisterPassBuilderCallbacks func(*Builder)
}

// pluginSymbol is the factory every plugin library must export.
const pluginSymbol = "GetDFGPassPluginInfo"

func (b *Builder) loadPlugin(path string) error {
	lib, err := plugin.Open(path)
	if err != nil {
		return fmt.Errorf("load DFG pass plugin %s: %w", path, err)
	}
	sym, err := lib.Lookup(pluginSymbol)
	if err != nil {
		return fmt.Errorf("%s function is not implemented in %s", pluginSymbol, path)
	}
	factory, ok := sym.(func() PluginInfo)
	if !ok {
		return fmt.Errorf("%s in %s has the wrong signature", pluginSymbol, path)
	}
	info := factory()
	if info.RegisterPassBuilderCallbacks != nil {
		info.RegisterPassBuilderCallbacks(b)
	}
	return nil
}
