package verify

import (
	"fmt"

	"golang.org/x/tools/go/ssa"

	"cgraomp/internal/agverify"
	"cgraomp/internal/analysis"
	"cgraomp/internal/annotation"
	"cgraomp/internal/decouple"
	"cgraomp/internal/diag"
	"cgraomp/internal/irutil"
	"cgraomp/internal/kernel"
	"cgraomp/internal/loopdep"
	"cgraomp/internal/model"
	"cgraomp/internal/scev"
	"cgraomp/loopinfo"
)

const passName = "cgraomp"

// KernelVerdict bundles the verification outcome and the analysis results
// a passing kernel hands to the DFG builder.
type KernelVerdict struct {
	Loop     *loopinfo.Loop
	Inner    *loopinfo.Loop
	Schedule *kernel.ScheduleInfo
	Decouple *decouple.Report
	Deps     *loopdep.Info
	AG       *agverify.Result
	SC       *scev.Analysis

	results []Result
}

// Results lists the per-stage verdicts in execution order.
func (k *KernelVerdict) Results() []Result {
	return append([]Result(nil), k.results...)
}

// OK reports whether every stage passed.
func (k *KernelVerdict) OK() bool {
	for _, r := range k.results {
		if !r.OK() {
			return false
		}
	}
	return true
}

func (k *KernelVerdict) add(r Result) { k.results = append(k.results, r) }

// FunctionResult is the verification outcome of one outlined worker.
type FunctionResult struct {
	Fn       *ssa.Function
	Verdicts []*KernelVerdict
}

// Kernels returns the verdicts that passed every stage.
func (f *FunctionResult) Kernels() []*KernelVerdict {
	var out []*KernelVerdict
	for _, v := range f.Verdicts {
		if v.OK() {
			out = append(out, v)
		}
	}
	return out
}

// Verifier runs the category-specific verification pipeline over worker
// functions.
type Verifier struct {
	Model       *model.Model
	Annotations *annotation.Analysis
	Reporter    *diag.Reporter
	// Cache, when set, holds the per-function analysis results under the
	// preserved-set invalidation contract.
	Cache *analysis.Cache
	// MemDepDistance is the loop-carried memory-dependency threshold.
	MemDepDistance int64
}

// VerifyFunction verifies every kernel loop of the worker and emits one
// optimisation remark per loop.
func (v *Verifier) VerifyFunction(fn *ssa.Function) *FunctionResult {
	v.bindCustomChecker()

	res := &FunctionResult{Fn: fn}
	sched := v.scheduleOf(fn)
	if !sched.Valid() && v.Reporter != nil {
		v.Reporter.Warningf("fail to find OpenMP scheduling info in %s", fn.Name())
	}

	info := v.loopsOf(fn)
	kernels := loopinfo.FindKernelLoops(info, v.Reporter)
	if len(kernels) == 0 {
		v.debugf("cannot find any valid loop kernels in %s", fn.Name())
		return res
	}
	v.debugf("the number of kernels in %s: %d", fn.Name(), len(kernels))

	sc := scev.NewAnalysis(info)
	for _, l := range kernels {
		var verdict *KernelVerdict
		switch v.Model.Category {
		case model.Decoupled:
			verdict = v.verifyDecoupled(l, sched, sc)
		case model.TimeMultiplexed:
			verdict = v.verifyTimeMultiplexed(l, sched, sc)
		}
		res.Verdicts = append(res.Verdicts, verdict)
		v.emitRemark(fn, verdict)
	}
	return res
}

// verifyDecoupled checks decoupling, inter-loop dependencies, instruction
// availability of the computation set, and the address-generator pattern.
func (v *Verifier) verifyDecoupled(l *loopinfo.Loop, sched *kernel.ScheduleInfo, sc *scev.Analysis) *KernelVerdict {
	inner := loopinfo.Innermost(l)
	verdict := &KernelVerdict{Loop: l, Inner: inner, Schedule: sched, SC: sc}

	da := decouple.Analyze(inner, sched, v.Reporter)
	verdict.Decouple = da
	daRemark := "Success"
	if !da.OK() {
		daRemark = "Error " + da.ErrCause
	}
	verdict.add(NewResult(DecouplingName, daRemark, da.OK()))

	ld := loopdep.Analyze(l, sc, v.MemDepDistance, v.Reporter)
	verdict.Deps = ld

	except := make(map[ssa.Instruction]bool)
	switch v.Model.InterLoop {
	case model.DepNo:
		depCount := ld.NumRegDeps() + ld.NumMemDeps()
		if depCount > 0 {
			verdict.add(NewResult(InterLoopDepName,
				fmt.Sprintf("including %d inter loop dependencies", depCount), false))
		} else {
			verdict.add(NewResult(InterLoopDepName, "No dependency", true))
		}
	default:
		// the fabric carries the dependencies; exclude their phis from
		// availability checking
		for _, d := range ld.Inductions {
			except[d.IV.Phi] = true
		}
		for _, d := range ld.Simples {
			except[d.Node] = true
		}
	}

	avail := &InstAvailability{}
	if da.OK() {
		for _, val := range da.Comp {
			instr, ok := val.(ssa.Instruction)
			if !ok {
				v.debugf("unexpected IR %s in the computation set", val.Name())
				continue
			}
			if v.Model.IsSupported(instr) == nil {
				avail.Add(instr)
			}
		}
	}
	avail.Filter(except)
	verdict.add(avail)

	if ag, ok := v.Model.AG.(*model.AffineAG); ok && da.OK() {
		agRes := agverify.VerifyAffine(ag,
			agverify.CollectAccesses(da.Loads, da.Stores), sc)
		verdict.AG = agRes
		remark := "All access patterns are compatible"
		if !agRes.OK() {
			remark = "Incompatible access pattern is found"
		}
		verdict.add(NewResult(MemAccessName, remark, agRes.OK()))
	}

	return verdict
}

// verifyTimeMultiplexed checks instruction availability of the whole loop
// body except the loop control, dependency phis, and address arithmetic.
func (v *Verifier) verifyTimeMultiplexed(l *loopinfo.Loop, sched *kernel.ScheduleInfo, sc *scev.Analysis) *KernelVerdict {
	inner := loopinfo.Innermost(l)
	verdict := &KernelVerdict{Loop: l, Inner: inner, Schedule: sched, SC: sc}

	ld := loopdep.Analyze(l, sc, v.MemDepDistance, v.Reporter)
	verdict.Deps = ld

	except := make(map[ssa.Instruction]bool)
	for _, d := range ld.Inductions {
		except[d.IV.Phi] = true
	}
	for _, d := range ld.Simples {
		except[d.Node] = true
	}
	if back := loopinfo.BackBranch(inner); back != nil {
		except[back] = true
		if cond, ok := back.Cond.(ssa.Instruction); ok {
			except[cond] = true
		}
	}

	avail := &InstAvailability{}
	for _, b := range inner.Blocks() {
		for _, instr := range b.Instrs {
			switch instr.(type) {
			case *ssa.Jump, *ssa.If, *ssa.Return, *ssa.DebugRef:
				continue
			}
			if irutil.IsPointerIndex(instr) {
				continue
			}
			if call, ok := instr.(*ssa.Call); ok {
				if callee := call.Call.StaticCallee(); callee != nil &&
					kernel.IsScheduleRuntimeName(callee.Name()) {
					continue
				}
			}
			if except[instr] {
				continue
			}
			if v.Model.IsSupported(instr) == nil {
				avail.Add(instr)
			}
		}
	}
	avail.Filter(except)
	verdict.add(avail)

	return verdict
}

// scheduleOf extracts (or re-uses the cached) schedule info of fn.
func (v *Verifier) scheduleOf(fn *ssa.Function) *kernel.ScheduleInfo {
	if v.Cache == nil {
		return kernel.ExtractSchedule(fn)
	}
	r := v.Cache.Get("omp-static-schedule", fn, func() analysis.Result {
		return kernel.ExtractSchedule(fn)
	})
	return r.(*kernel.ScheduleInfo)
}

// loopsOf computes (or re-uses the cached) loop forest of fn.
func (v *Verifier) loopsOf(fn *ssa.Function) *loopinfo.Info {
	if v.Cache == nil {
		return loopinfo.Analyze(fn)
	}
	r := v.Cache.Get("loop-nest", fn, func() analysis.Result {
		return loopinfo.Analyze(fn)
	})
	return r.(*loopinfo.Info)
}

// bindCustomChecker wires the annotation analysis into custom-instruction
// map entries.
func (v *Verifier) bindCustomChecker() {
	if v.Annotations == nil {
		return
	}
	annots := v.Annotations
	v.Model.InstMap.SetCustomInstChecker(func(fn *ssa.Function) bool {
		return annots.IsCustomInst(fn)
	})
}

func (v *Verifier) emitRemark(fn *ssa.Function, verdict *KernelVerdict) {
	if v.Reporter == nil {
		return
	}
	pos := fn.Pos()
	if verdict.OK() {
		rm := &diag.Remark{Pass: passName, Name: "valid kernel", Kind: diag.RemarkPassed, Pos: pos}
		rm.Append("Loop", verdict.Loop.Name())
		v.Reporter.EmitRemark(rm)
		return
	}
	rm := &diag.Remark{Pass: passName, Name: "invalid kernel", Kind: diag.RemarkMissed, Pos: pos}
	rm.Append("Loop", verdict.Loop.Name())
	for _, r := range verdict.Results() {
		if r.OK() {
			rm.Append(r.Name(), "PASS")
		} else {
			rm.Append(r.Name(), "VIOLATE")
			rm.Append("cause", r.Remark())
		}
	}
	v.Reporter.EmitRemark(rm)
}

func (v *Verifier) debugf(format string, args ...any) {
	if v.Reporter != nil {
		v.Reporter.Debugf(format, args...)
	}
}
