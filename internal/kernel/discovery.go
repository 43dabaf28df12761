// Package kernel locates offload kernels in the module and extracts the
// runtime schedule information consumed by the loop analyses.
package kernel

import (
	"fmt"
	"go/ast"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/tools/go/ssa"

	"cgraomp/internal/annotation"
	"cgraomp/internal/diag"
)

// Runtime entry-point name prefixes of the front-end contract.
const (
	ForkCallPrefix     = "__kmpc_fork_call"
	ScheduleInitPrefix = "__kmpc_for_static_init"
	ScheduleFiniPrefix = "__kmpc_for_static_fini"
)

// workerNameRE matches outlined worker names:
// __omp_offloading_<dev:hex>_<file:hex>_<name>_l<line>
var workerNameRE = regexp.MustCompile(`^__omp_offloading_(?:0x)?([0-9a-fA-F]+)_(?:0x)?([0-9a-fA-F]+)_(.+)_l([0-9]+)$`)

// OffloadInfo is the per-kernel metadata parsed from the module's
// offload-info directives.
type OffloadInfo struct {
	DeviceID int64
	FileID   int64
	FuncName string
	Line     int
	Order    int
}

// Info holds the discovered kernels of a module: the outlined workers in
// declaration order, the surrounding offload function of each worker, and
// the correlated metadata.
type Info struct {
	workers  []*ssa.Function
	offload  map[*ssa.Function]*ssa.Function
	metadata map[*ssa.Function]*OffloadInfo
}

// Workers returns the outlined worker functions in declaration order.
func (i *Info) Workers() []*ssa.Function {
	return append([]*ssa.Function(nil), i.workers...)
}

// OffloadFunction returns the function containing the fork call that
// spawns the worker, or nil.
func (i *Info) OffloadFunction(worker *ssa.Function) *ssa.Function {
	return i.offload[worker]
}

// Metadata returns the offload-info entry correlated with the worker, or
// nil when the worker name matched no directive.
func (i *Info) Metadata(worker *ssa.Function) *OffloadInfo {
	return i.metadata[worker]
}

// Name implements the analysis-result contract.
func (i *Info) Name() string { return "omp-kernel" }

// Invalidate: kernel discovery only depends on call sites of the runtime
// fork entry, preserved by every DFG-level transform.
func (i *Info) Invalidate(unit any, preserved map[string]bool) bool {
	if preserved == nil {
		return false
	}
	return !preserved[i.Name()] && !preserved["all"]
}

// Discover walks the module for parallel-fork call sites, resolves the
// outlined workers, and correlates them with the offload-info directives
// found in files. The absence of any offload-info directive while workers
// exist is fatal.
func Discover(pkgs []*ssa.Package, files []*ast.File, reporter *diag.Reporter) (*Info, error) {
	info := &Info{
		offload:  make(map[*ssa.Function]*ssa.Function),
		metadata: make(map[*ssa.Function]*OffloadInfo),
	}

	for _, fn := range functionsInDeclOrder(pkgs) {
		for _, b := range fn.Blocks {
			for _, instr := range b.Instrs {
				call, ok := instr.(*ssa.Call)
				if !ok || !calleeHasPrefix(call, ForkCallPrefix) {
					continue
				}
				worker := resolveWorker(call)
				if worker == nil {
					if reporter != nil {
						reporter.Warning(call.Pos(), "cannot resolve the outlined function of a parallel fork call")
					}
					continue
				}
				if _, dup := info.offload[worker]; dup {
					continue
				}
				info.workers = append(info.workers, worker)
				info.offload[worker] = fn
			}
		}
	}

	if len(info.workers) == 0 {
		return info, nil
	}

	entries := parseOffloadDirectives(files, reporter)
	if len(entries) == 0 {
		return nil, fmt.Errorf("fail to find the offload-info metadata of the module")
	}
	for _, worker := range info.workers {
		md := correlate(worker, entries)
		if md == nil {
			if reporter != nil {
				reporter.Warningf("no offload-info entry matches the outlined function %s", worker.Name())
			}
			continue
		}
		info.metadata[worker] = md
	}
	return info, nil
}

// functionsInDeclOrder lists the member functions of the packages sorted
// by source position, which is the module declaration order.
func functionsInDeclOrder(pkgs []*ssa.Package) []*ssa.Function {
	var fns []*ssa.Function
	for _, pkg := range pkgs {
		if pkg == nil {
			continue
		}
		for _, mem := range pkg.Members {
			if fn, ok := mem.(*ssa.Function); ok && len(fn.Blocks) > 0 {
				fns = append(fns, fn)
			}
		}
	}
	sort.Slice(fns, func(i, j int) bool { return fns[i].Pos() < fns[j].Pos() })
	return fns
}

func calleeHasPrefix(call *ssa.Call, prefix string) bool {
	callee := call.Call.StaticCallee()
	return callee != nil && strings.HasPrefix(callee.Name(), prefix)
}

// resolveWorker unwraps the third argument of the fork call down to the
// outlined function value.
func resolveWorker(call *ssa.Call) *ssa.Function {
	args := call.Call.Args
	if len(args) < 3 {
		return nil
	}
	v := args[2]
	for {
		switch w := v.(type) {
		case *ssa.Function:
			return w
		case *ssa.MakeInterface:
			v = w.X
		case *ssa.ChangeType:
			v = w.X
		case *ssa.MakeClosure:
			if fn, ok := w.Fn.(*ssa.Function); ok {
				return fn
			}
			return nil
		default:
			return nil
		}
	}
}

// ParseWorkerName decodes the device id, file id, original name, and line
// encoded in an outlined worker's name.
func ParseWorkerName(name string) (*OffloadInfo, bool) {
	m := workerNameRE.FindStringSubmatch(name)
	if m == nil {
		return nil, false
	}
	dev, err1 := strconv.ParseInt(m[1], 16, 64)
	file, err2 := strconv.ParseInt(m[2], 16, 64)
	line, err3 := strconv.Atoi(m[4])
	if err1 != nil || err2 != nil || err3 != nil {
		return nil, false
	}
	return &OffloadInfo{DeviceID: dev, FileID: file, FuncName: m[3], Line: line}, true
}

func parseOffloadDirectives(files []*ast.File, reporter *diag.Reporter) []*OffloadInfo {
	var out []*OffloadInfo
	for _, file := range files {
		if file == nil {
			continue
		}
		for _, arg := range annotation.ScanDirectives(file, "offload-info") {
			md, err := parseOffloadInfoArgs(arg)
			if err != nil {
				if reporter != nil {
					reporter.Warningf("malformed offload-info directive %q: %v", arg, err)
				}
				continue
			}
			out = append(out, md)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

func parseOffloadInfoArgs(arg string) (*OffloadInfo, error) {
	md := &OffloadInfo{}
	for _, field := range strings.Fields(arg) {
		kv := strings.SplitN(field, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("field %q is not key=value", field)
		}
		switch kv[0] {
		case "dev":
			v, err := strconv.ParseInt(kv[1], 0, 64)
			if err != nil {
				return nil, err
			}
			md.DeviceID = v
		case "file":
			v, err := strconv.ParseInt(kv[1], 0, 64)
			if err != nil {
				return nil, err
			}
			md.FileID = v
		case "name":
			md.FuncName = kv[1]
		case "line":
			v, err := strconv.Atoi(kv[1])
			if err != nil {
				return nil, err
			}
			md.Line = v
		case "order":
			v, err := strconv.Atoi(kv[1])
			if err != nil {
				return nil, err
			}
			md.Order = v
		default:
			return nil, fmt.Errorf("unknown field %q", kv[0])
		}
	}
	if md.FuncName == "" {
		return nil, fmt.Errorf("missing name field")
	}
	return md, nil
}

func correlate(worker *ssa.Function, entries []*OffloadInfo) *OffloadInfo {
	parsed, ok := ParseWorkerName(worker.Name())
	if !ok {
		return nil
	}
	for _, e := range entries {
		if e.DeviceID == parsed.DeviceID && e.FileID == parsed.FileID &&
			e.FuncName == parsed.FuncName && e.Line == parsed.Line {
			return e
		}
	}
	return nil
}
