package export

import (
	"encoding/json"
	"fmt"
	"os"

	"cgraomp/dfg"
)

// writeExtraInfo writes "<base>.json" holding the extra-info map of every
// node that carries one. Nothing is written when no node has metadata.
func (e *Exporter) writeExtraInfo(g *dfg.Graph, base string) error {
	info := make(map[string]map[string]any)
	for _, n := range g.Nodes() {
		if xi := n.ExtraInfo(); len(xi) > 0 {
			info[n.UniqueName()] = xi
		}
	}
	if len(info) == 0 {
		return nil
	}
	body, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("render extra info of %s: %w", g.Name(), err)
	}
	if err := os.WriteFile(base+".json", body, 0o644); err != nil {
		return fmt.Errorf("write extra info of %s: %w", g.Name(), err)
	}
	return nil
}
