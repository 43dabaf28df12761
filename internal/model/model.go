// Package model loads the declarative CGRA machine description and exposes
// the typed model consulted by every verification stage.
package model

import (
	"encoding/json"

	"golang.org/x/tools/go/ssa"
)

// Category selects the CGRA execution style.
type Category int

const (
	Decoupled Category = iota
	TimeMultiplexed
)

func (c Category) String() string {
	if c == Decoupled {
		return "decoupled"
	}
	return "time-multiplexed"
}

// ConditionalStyle describes how conditionals are realised on the fabric.
type ConditionalStyle int

const (
	CondNo ConditionalStyle = iota
	CondMuxInst
	CondTriState
)

func (c ConditionalStyle) String() string {
	switch c {
	case CondMuxInst:
		return "MuxInst"
	case CondTriState:
		return "TriState"
	default:
		return "no"
	}
}

// InterLoopDep describes the fabric's support for inter-iteration
// dependencies.
type InterLoopDep int

const (
	DepNo InterLoopDep = iota
	DepGeneric
	DepBackwardInst
)

func (d InterLoopDep) String() string {
	switch d {
	case DepGeneric:
		return "generic"
	case DepBackwardInst:
		return "BackwardInst"
	default:
		return "no"
	}
}

// AGKind tags the address generator variant.
type AGKind int

const (
	AGAffine AGKind = iota
	AGFullState
)

// AddressGenerator describes the permitted address-expression shape of a
// decoupled CGRA.
type AddressGenerator interface {
	Kind() AGKind
}

// AffineAG accepts affine access expressions nested through at most
// MaxNests induction levels. MaxNests <= 0 means unlimited.
type AffineAG struct {
	MaxNests int
}

func (*AffineAG) Kind() AGKind { return AGAffine }

// Unlimited reports whether the generator has no nesting limit.
func (ag *AffineAG) Unlimited() bool { return ag.MaxNests <= 0 }

// FullStateAG accepts arbitrary address computations.
type FullStateAG struct{}

func (*FullStateAG) Kind() AGKind { return AGFullState }

// Model is the immutable machine description shared read-only across the
// pipeline.
type Model struct {
	File        string
	Category    Category
	Conditional ConditionalStyle
	InterLoop   InterLoopDep
	// AG is set only for decoupled models.
	AG      AddressGenerator
	InstMap *InstructionMap

	genericInsts []string
	customInsts  []string
	mapEntries   []mapEntryJSON
}

// IsSupported looks up the map entry matching the instruction, or nil.
func (m *Model) IsSupported(instr ssa.Instruction) *MapEntry {
	return m.InstMap.Find(instr)
}

// CustomInstNames returns the configured custom instruction names.
func (m *Model) CustomInstNames() []string {
	return append([]string(nil), m.customInsts...)
}

// MarshalJSON re-serialises the model with the machine-description schema,
// so that a load → save → load round trip preserves the typed settings.
func (m *Model) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"category": m.Category.String(),
		"conditional": allowedBlock(
			m.Conditional != CondNo, m.Conditional.String()),
		"inter-loop-dependency": allowedBlock(
			m.InterLoop != DepNo, m.InterLoop.String()),
		"generic_instructions": m.genericInsts,
		"custom_instructions":  m.customInsts,
	}
	if m.Category == Decoupled {
		ag := map[string]any{"control": "affine"}
		if affine, ok := m.AG.(*AffineAG); ok && !affine.Unlimited() {
			ag["max_nested_level"] = affine.MaxNests
		}
		out["address_generator"] = ag
	}
	if len(m.mapEntries) > 0 {
		out["instruction_map"] = m.mapEntries
	}
	return json.Marshal(out)
}

func allowedBlock(allowed bool, typ string) map[string]any {
	if !allowed {
		return map[string]any{"allowed": false}
	}
	return map[string]any{"allowed": true, "type": typ}
}
