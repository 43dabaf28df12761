// Package options carries the process-wide configuration shared by every
// pipeline component.
package options

import (
	"flag"
	"fmt"
	"strings"

	"github.com/xyproto/env/v2"
)

// KeyValue is one parsed attr=value option argument.
type KeyValue struct {
	Key   string
	Value string
}

func (kv KeyValue) String() string {
	return kv.Key + "=" + kv.Value
}

// ParseKeyValue splits a single key=value token. An argument that does not
// contain exactly one '=' is malformed.
func ParseKeyValue(s string) (KeyValue, error) {
	parts := strings.Split(s, "=")
	if len(parts) != 2 {
		return KeyValue{}, fmt.Errorf("malformed key=value argument %q", s)
	}
	return KeyValue{Key: parts[0], Value: parts[1]}, nil
}

// kvList is a repeated, comma-separated list of key=value pairs.
type kvList struct {
	items *[]KeyValue
}

func (l kvList) String() string {
	if l.items == nil {
		return ""
	}
	parts := make([]string, 0, len(*l.items))
	for _, kv := range *l.items {
		parts = append(parts, kv.String())
	}
	return strings.Join(parts, ",")
}

func (l kvList) Set(s string) error {
	for _, tok := range strings.Split(s, ",") {
		if tok == "" {
			continue
		}
		kv, err := ParseKeyValue(tok)
		if err != nil {
			return err
		}
		*l.items = append(*l.items, kv)
	}
	return nil
}

// stringList is a repeated or comma-separated plain string option.
type stringList struct {
	items *[]string
	comma bool
}

func (l stringList) String() string {
	if l.items == nil {
		return ""
	}
	return strings.Join(*l.items, ",")
}

func (l stringList) Set(s string) error {
	if !l.comma {
		*l.items = append(*l.items, s)
		return nil
	}
	for _, tok := range strings.Split(s, ",") {
		if tok != "" {
			*l.items = append(*l.items, tok)
		}
	}
	return nil
}

// Options is the recognized option set of the pipeline.
type Options struct {
	// path to the machine description JSON
	ModelPath string
	// verbose diagnostic stream
	Verbose bool
	// attribute name used for opcode in graph output
	DFGOpKey string
	// dense sequential IDs in node names instead of IR-value identities
	DFGPlainNodeName bool
	// fractional digits emitted for float constants; <0 means shortest
	DFGFloatPrecision int
	// repeated graph/node/edge-level attributes
	DFGGraphProp []KeyValue
	DFGNodeProp  []KeyValue
	DFGEdgeProp  []KeyValue
	// ordered list of DFG pass names
	DFGPassPipeline []string
	// repeated plugin library paths
	DFGPassPlugins []string
	// output-file prefix override
	DFGFilePrefix string
	// loop-carried memory-dependency distance threshold
	MemDepDistance int
	// prefer the original source function name in output filenames
	UseSimpleDFGName bool
	// diagnostic output format (text|json)
	DiagFormat string
}

// Default returns the option set with all defaults applied. The model path
// default may come from the CGRA_MODEL environment variable.
func Default() *Options {
	return &Options{
		ModelPath:         env.Str("CGRA_MODEL", "model.json"),
		DFGOpKey:          "opcode",
		DFGFloatPrecision: -1,
		MemDepDistance:    1,
		DiagFormat:        "text",
	}
}

// Register binds every option to fs under its documented name.
func (o *Options) Register(fs *flag.FlagSet) {
	fs.StringVar(&o.ModelPath, "cgra-model", o.ModelPath, "path to CGRA config file")
	fs.StringVar(&o.ModelPath, "cm", o.ModelPath, "alias for -cgra-model")
	fs.BoolVar(&o.Verbose, "cgraomp-verbose", o.Verbose, "enable verbose output")
	fs.StringVar(&o.DFGOpKey, "cgra-dfg-op-key", o.DFGOpKey, "opcode key for DOT generation")
	fs.BoolVar(&o.DFGPlainNodeName, "cgra-dfg-plain", o.DFGPlainNodeName,
		"use plain node names instead of IR-value identities for DOT generation")
	fs.IntVar(&o.DFGFloatPrecision, "cgra-dfg-float-prec", o.DFGFloatPrecision,
		"fractional digits emitted for float constants")
	fs.Var(kvList{&o.DFGGraphProp}, "cgra-dfg-graph-prop", "common DOT preferences for graph (attr=value,...)")
	fs.Var(kvList{&o.DFGNodeProp}, "cgra-dfg-node-prop", "common DOT preferences for node (attr=value,...)")
	fs.Var(kvList{&o.DFGEdgeProp}, "cgra-dfg-edge-prop", "common DOT preferences for edge (attr=value,...)")
	fs.Var(stringList{&o.DFGPassPipeline, true}, "dfg-pass-pipeline",
		"comma-separated list of DFG pass names")
	fs.Var(stringList{&o.DFGPassPlugins, false}, "load-dfg-pass-plugin", "load a DFG pass plugin")
	fs.StringVar(&o.DFGFilePrefix, "dfg-file-prefix", o.DFGFilePrefix, "prefix for data flow graph files")
	fs.IntVar(&o.MemDepDistance, "mem-dep-distance", o.MemDepDistance,
		"loop-carried memory dependency distance threshold")
	fs.BoolVar(&o.UseSimpleDFGName, "use-simple-dfg-name", o.UseSimpleDFGName,
		"prefer the original source function name in output filenames")
	fs.StringVar(&o.DiagFormat, "diag-format", o.DiagFormat, "diagnostic output format (text|json)")
}
