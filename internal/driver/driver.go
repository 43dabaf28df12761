// Package driver wires the whole pipeline: model load, module load,
// kernel discovery, verification, DFG construction, pass pipeline, and
// export.
package driver

import (
	"fmt"
	"go/ast"

	"github.com/davecgh/go-spew/spew"
	gopackages "golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/ssa"

	"cgraomp/dfgpass"
	"cgraomp/internal/analysis"
	"cgraomp/internal/annotation"
	"cgraomp/internal/dfgbuild"
	"cgraomp/internal/diag"
	"cgraomp/internal/export"
	"cgraomp/internal/frontend"
	"cgraomp/internal/kernel"
	"cgraomp/internal/model"
	"cgraomp/internal/options"
	"cgraomp/internal/verify"
)

// Driver runs the pipeline over one module per invocation.
type Driver struct {
	Opts     *options.Options
	Reporter *diag.Reporter
}

// Run processes the module made of the given sources. Kernels are visited
// in module declaration order; a kernel that fails verification or export
// is skipped without aborting the pipeline.
func (d *Driver) Run(sources []string) error {
	d.Reporter.SetVerbose(d.Opts.Verbose)

	m, err := model.Parse(d.Opts.ModelPath, d.Reporter.Warningf)
	if err != nil {
		return err
	}
	d.Reporter.Debugf("loaded CGRA model:\n%s", spew.Sdump(m))

	pkgs, _, err := frontend.LoadPackages(frontend.LoadConfig{Sources: sources}, d.Reporter)
	if err != nil {
		return err
	}
	prog, ssaPkgs, err := frontend.BuildSSA(pkgs, d.Reporter)
	if err != nil {
		return err
	}

	annots := annotation.Analyze(prog, pkgs)
	kernels, err := kernel.Discover(ssaPkgs, syntaxFiles(pkgs), d.Reporter)
	if err != nil {
		return err
	}
	if len(kernels.Workers()) == 0 {
		d.Reporter.Warningf("no offload kernels found in the module")
		return nil
	}

	pb, err := dfgpass.NewBuilder(d.Opts.DFGPassPlugins)
	if err != nil {
		return err
	}
	pm := &dfgpass.Manager{}
	if err := pb.ParsePipeline(pm, d.Opts.DFGPassPipeline); err != nil {
		return err
	}

	cache := analysis.NewCache()
	verifier := &verify.Verifier{
		Model:          m,
		Annotations:    annots,
		Reporter:       d.Reporter,
		Cache:          cache,
		MemDepDistance: int64(d.Opts.MemDepDistance),
	}
	builder := &dfgbuild.Builder{Model: m, Reporter: d.Reporter}
	exporter := &export.Exporter{Opts: d.Opts}

	for _, worker := range kernels.Workers() {
		d.emitOffloadRemark(kernels, worker)
		res := verifier.VerifyFunction(worker)
		for _, verdict := range res.Kernels() {
			g, err := builder.Build(verdict)
			if err != nil {
				d.Reporter.Warningf("fail to build a data flow graph of %s: %v",
					verdict.Loop.Name(), err)
				continue
			}
			pm.Run(g, verdict.Loop, &dfgpass.Analyses{Fn: worker, Verbose: d.Opts.Verbose})
			if err := exporter.Export(g, d.naming(pkgs, kernels, worker, verdict.Loop.Name())); err != nil {
				d.Reporter.Errorf("%v", err)
				continue
			}
		}
		if kernel.RemoveScheduleRuntime(worker) {
			// the runtime calls are gone; only the loop forest survives
			cache.Invalidate(worker, map[string]bool{"loop-nest": true})
		}
	}
	return nil
}

func (d *Driver) naming(pkgs []*gopackages.Package, info *kernel.Info, worker *ssa.Function, loopName string) export.Naming {
	naming := export.Naming{
		FuncName: worker.Name(),
		LoopName: loopName,
	}
	if len(pkgs) > 0 && pkgs[0] != nil {
		naming.ModuleName = pkgs[0].Name
		if len(pkgs[0].CompiledGoFiles) > 0 {
			naming.ModulePath = pkgs[0].CompiledGoFiles[0]
		}
	}
	if md := info.Metadata(worker); md != nil {
		naming.OrigName = md.FuncName
	}
	return naming
}

func (d *Driver) emitOffloadRemark(info *kernel.Info, worker *ssa.Function) {
	offload := info.OffloadFunction(worker)
	md := info.Metadata(worker)
	if offload == nil || md == nil {
		return
	}
	rm := &diag.Remark{
		Pass: "cgraomp",
		Name: "Offloading function",
		Kind: diag.RemarkAnalysis,
		Pos:  offload.Pos(),
	}
	rm.Append("caller", md.FuncName)
	rm.Append("callee", worker.Name())
	rm.Append("defined line", fmt.Sprint(md.Line))
	d.Reporter.EmitRemark(rm)
}

func syntaxFiles(pkgs []*gopackages.Package) []*ast.File {
	var files []*ast.File
	for _, pkg := range pkgs {
		if pkg != nil {
			files = append(files, pkg.Syntax...)
		}
	}
	return files
}
