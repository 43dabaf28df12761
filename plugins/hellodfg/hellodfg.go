// A sample DFG pass plugin. Build it with
//
//	go build -buildmode=plugin ./plugins/hellodfg
//
// and load it via -load-dfg-pass-plugin; the pass then resolves under the
// pipeline name "hello".
package main

import (
	"fmt"
	"os"

	"cgraomp/dfg"
	"cgraomp/dfgpass"
	"cgraomp/loopinfo"
)

type helloPass struct{}

func (helloPass) Name() string { return "hello" }

func (helloPass) Run(g *dfg.Graph, l *loopinfo.Loop, am *dfgpass.Analyses) bool {
	fmt.Fprintf(os.Stderr, "My DFG Pass is called: Hello World (%s: %d nodes)\n",
		g.Name(), g.NodeCount())
	return false
}

// GetDFGPassPluginInfo is the factory symbol the pass builder resolves
// from every plugin library.
func GetDFGPassPluginInfo() dfgpass.PluginInfo {
	return dfgpass.PluginInfo{
		Name: "A sample of DFG Pass",
		RegisterPassBuilderCallbacks: func(pb *dfgpass.Builder) {
			pb.RegisterPipelineParsingCallback(
				func(name string, pm *dfgpass.Manager) bool {
					if name == "hello" {
						pm.AddPass(helloPass{})
						return true
					}
					return false
				})
		},
	}
}

func main() {}
