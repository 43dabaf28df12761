// Package agverify validates memory-access address patterns against the
// model's address-generator description.
package agverify

import (
	"go/types"

	"golang.org/x/tools/go/ssa"

	"cgraomp/internal/model"
	"cgraomp/internal/scev"
	"cgraomp/loopinfo"
)

// Dim is one loop-control dimension of an affine access: start offset,
// element step, and static trip count (0 when only dynamically bounded).
type Dim struct {
	Start int64  `json:"start"`
	Step  int64  `json:"step"`
	Count uint64 `json:"count"`
}

// Config is the address-generator configuration recovered for one memory
// access.
type Config struct {
	Valid bool
	Dims  []Dim
	Base  ssa.Value
}

// ExtraInfo serialises the configuration for the per-node metadata file.
func (c *Config) ExtraInfo() map[string]any {
	base := "unknown"
	if c.Base != nil {
		base = c.Base.Name()
	}
	offsets := make([]map[string]any, len(c.Dims))
	for i, d := range c.Dims {
		offsets[i] = map[string]any{"start": d.Start, "step": d.Step, "count": d.Count}
	}
	return map[string]any{"base": base, "offset": offsets}
}

// Result maps every verified access to its configuration.
type Result struct {
	Configs map[ssa.Instruction]*Config
	order   []ssa.Instruction
}

// OK reports whether every access has a valid configuration.
func (r *Result) OK() bool {
	for _, c := range r.Configs {
		if !c.Valid {
			return false
		}
	}
	return true
}

// Accesses returns the verified instructions in analysis order.
func (r *Result) Accesses() []ssa.Instruction {
	return append([]ssa.Instruction(nil), r.order...)
}

// Name implements the analysis-result contract.
func (r *Result) Name() string { return "ag-compatibility" }

// Invalidate reports whether the result must be recomputed.
func (r *Result) Invalidate(unit any, preserved map[string]bool) bool {
	if preserved == nil {
		return false
	}
	return !preserved[r.Name()] && !preserved["all"]
}

// VerifyAffine decomposes the address of every given access by scalar
// evolution and checks it against the affine generator's nesting limit.
func VerifyAffine(ag *model.AffineAG, accesses []ssa.Instruction, sc *scev.Analysis) *Result {
	res := &Result{Configs: make(map[ssa.Instruction]*Config)}
	for _, acc := range accesses {
		cfg := decompose(sc.PointerOf(acc))
		if cfg.Valid && !ag.Unlimited() && len(cfg.Dims) > ag.MaxNests {
			cfg.Valid = false
		}
		res.Configs[acc] = cfg
		res.order = append(res.order, acc)
	}
	return res
}

// decompose recursively pulls loop-control dimensions off the address
// evolution. Dimensions come out innermost first; the recursion bottoms
// out at the iteration-invariant base term.
func decompose(e scev.Expr) *Config {
	cfg := &Config{}
	if e == nil {
		return cfg
	}
	base, offset, ok := walk(e, cfg, false)
	if !ok {
		cfg.Valid = false
		cfg.Dims = nil
		return cfg
	}
	if len(cfg.Dims) > 0 {
		cfg.Dims[len(cfg.Dims)-1].Start += offset
	} else if offset != 0 {
		// a loop-invariant address is a degenerate single point
		cfg.Dims = append(cfg.Dims, Dim{Start: offset, Count: 1})
	}
	cfg.Base = base
	cfg.Valid = true
	return cfg
}

// walk returns the base value and constant offset of the invariant part of
// e, appending one dimension per constant-step recurrence. outsideRec is
// set once the walk has left the recurrence spine; any further recurrence
// is invalid.
func walk(e scev.Expr, cfg *Config, outsideRec bool) (ssa.Value, int64, bool) {
	switch v := e.(type) {
	case scev.Const:
		return nil, v.V, true
	case scev.Unknown:
		return v.V, 0, true
	case scev.AddRec:
		if outsideRec {
			return nil, 0, false
		}
		step, ok := v.Step.(scev.Const)
		if !ok {
			return nil, 0, false
		}
		cfg.Dims = append(cfg.Dims, Dim{Step: step.V, Count: loopinfo.TripCount(v.Loop)})
		return walk(v.Start, cfg, false)
	case scev.Add:
		// the invariant sum below the recurrence spine: constants plus
		// invariant unknowns, one of which may name the base
		var pointers, others []ssa.Value
		offset := int64(0)
		for _, op := range v.Ops {
			b, off, ok := walk(op, cfg, true)
			if !ok {
				return nil, 0, false
			}
			offset += off
			if b == nil {
				continue
			}
			if isPointer(b.Type()) {
				pointers = append(pointers, b)
			} else {
				others = append(others, b)
			}
		}
		switch {
		case len(pointers) == 1:
			return pointers[0], offset, true
		case len(pointers) == 0 && len(others) == 1:
			return others[0], offset, true
		default:
			// the base stays symbolic
			return nil, offset, true
		}
	case scev.Cast:
		return walk(v.X, cfg, outsideRec)
	case scev.Mul:
		// transparent for validity, opaque for the base: any nested
		// recurrence past this point breaks the affine shape
		for _, op := range v.Ops {
			if _, _, ok := walk(op, cfg, true); !ok {
				return nil, 0, false
			}
		}
		return nil, 0, true
	}
	return nil, 0, false
}

func isPointer(t types.Type) bool {
	switch t.Underlying().(type) {
	case *types.Pointer, *types.Slice:
		return true
	}
	return false
}

// CollectAccesses lists the memory-access instructions of a decoupling
// result in load-then-store order.
func CollectAccesses(loads []*ssa.UnOp, stores []*ssa.Store) []ssa.Instruction {
	out := make([]ssa.Instruction, 0, len(loads)+len(stores))
	for _, ld := range loads {
		out = append(out, ld)
	}
	for _, st := range stores {
		out = append(out, st)
	}
	return out
}
