package model

import (
	"encoding/json"
	"fmt"
	"os"
)

const (
	categoryKey   = "category"
	condKey       = "conditional"
	interLoopKey  = "inter-loop-dependency"
	agKey         = "address_generator"
	agControlKey  = "control"
	agMaxNestKey  = "max_nested_level"
	genInstKey    = "generic_instructions"
	customInstKey = "custom_instructions"
	instMapKey    = "instruction_map"
	allowedKey    = "allowed"
	typeKey       = "type"
	instKey       = "inst"
	mapKey        = "map"
	flagsKey      = "flags"
	predKey       = "pred"
	lhsKey        = "lhs"
	rhsKey        = "rhs"
	constIntKey   = "ConstantInt"
	constDblKey   = "ConstantDouble"
)

var categoryNames = map[string]Category{
	"decoupled":        Decoupled,
	"time-multiplexed": TimeMultiplexed,
}

var condStyleNames = map[string]ConditionalStyle{
	"MuxInst":  CondMuxInst,
	"TriState": CondTriState,
}

var interLoopNames = map[string]InterLoopDep{
	"generic":      DepGeneric,
	"BackwardInst": DepBackwardInst,
}

// mapEntryJSON is the raw schema of one instruction_map entry, retained for
// round-trip serialisation.
type mapEntryJSON struct {
	Inst  string          `json:"inst"`
	Map   string          `json:"map"`
	Flags []string        `json:"flags,omitempty"`
	Pred  string          `json:"pred,omitempty"`
	LHS   json.RawMessage `json:"lhs,omitempty"`
	RHS   json.RawMessage `json:"rhs,omitempty"`
}

// Parse reads and validates a machine description file. warnf, when
// non-nil, receives non-fatal schema warnings.
func Parse(path string, warnf func(format string, args ...any)) (*Model, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, fmt.Errorf("%s is invalid JSON file: %w", path, err)
	}

	p := &parser{file: path, top: top, warnf: warnf}
	return p.parse()
}

type parser struct {
	file  string
	top   map[string]json.RawMessage
	warnf func(format string, args ...any)
}

func (p *parser) warn(format string, args ...any) {
	if p.warnf != nil {
		p.warnf(format, args...)
	}
}

func (p *parser) parse() (*Model, error) {
	cat, err := p.parseCategory()
	if err != nil {
		return nil, err
	}
	cond, err := parseToggleMap(p, condKey, condStyleNames, CondNo)
	if err != nil {
		return nil, err
	}
	ild, err := parseToggleMap(p, interLoopKey, interLoopNames, DepNo)
	if err != nil {
		return nil, err
	}

	m := &Model{
		File:        p.file,
		Category:    cat,
		Conditional: cond,
		InterLoop:   ild,
		InstMap:     NewInstructionMap(),
	}
	m.InstMap.SetWarnFunc(p.warnf)

	if cat == Decoupled {
		ag, err := p.parseAG()
		if err != nil {
			return nil, err
		}
		m.AG = ag
	}

	generic, err := p.stringArray(genInstKey)
	if err != nil {
		return nil, err
	}
	for _, op := range generic {
		if err := m.InstMap.AddGenericInst(op); err != nil {
			return nil, invalidValue(p.file, genInstKey, op, GenericOpcodes(), "")
		}
	}
	m.genericInsts = generic

	custom, err := p.stringArray(customInstKey)
	if err != nil {
		return nil, err
	}
	for _, name := range custom {
		m.InstMap.AddCustomInst(name)
	}
	m.customInsts = custom

	if raw, ok := p.top[instMapKey]; ok {
		var entries []json.RawMessage
		if err := json.Unmarshal(raw, &entries); err != nil {
			return nil, invalidType(p.file, instMapKey, "array", "", "")
		}
		for _, e := range entries {
			if err := p.parseMapEntry(m, e); err != nil {
				return nil, err
			}
		}
	}

	return m, nil
}

func (p *parser) parseCategory() (Category, error) {
	raw, ok := p.top[categoryKey]
	if !ok {
		return 0, missingKey(p.file, categoryKey, "")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, invalidType(p.file, categoryKey, "string", string(raw), "")
	}
	cat, ok := categoryNames[s]
	if !ok {
		return 0, invalidValue(p.file, categoryKey, s,
			[]string{"time-multiplexed", "decoupled"}, "")
	}
	return cat, nil
}

// parseToggleMap reads an {"allowed": bool, "type"?: string} block. A
// disallowed block maps to the zero setting regardless of any type given.
func parseToggleMap[T ~int](p *parser, key string, names map[string]T, no T) (T, error) {
	raw, ok := p.top[key]
	if !ok {
		return no, missingKey(p.file, key, "")
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return no, invalidType(p.file, key, "object", string(raw), "")
	}
	allowedRaw, ok := obj[allowedKey]
	if !ok {
		return no, missingKey(p.file, allowedKey, key)
	}
	var allowed bool
	if err := json.Unmarshal(allowedRaw, &allowed); err != nil {
		return no, invalidType(p.file, allowedKey, "bool", string(allowedRaw), key)
	}
	if !allowed {
		return no, nil
	}
	typeRaw, ok := obj[typeKey]
	if !ok {
		return no, missingKey(p.file, typeKey, key)
	}
	var typ string
	if err := json.Unmarshal(typeRaw, &typ); err != nil {
		return no, invalidType(p.file, typeKey, "string", string(typeRaw), key)
	}
	val, ok := names[typ]
	if !ok {
		return no, invalidValue(p.file, typeKey, typ, sortedKeys(names), key)
	}
	return val, nil
}

func (p *parser) parseAG() (AddressGenerator, error) {
	raw, ok := p.top[agKey]
	if !ok {
		return nil, missingKey(p.file, agKey, "")
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, invalidType(p.file, agKey, "object", string(raw), "")
	}
	ctrlRaw, ok := obj[agControlKey]
	if !ok {
		return nil, missingKey(p.file, agControlKey, agKey)
	}
	var ctrl string
	if err := json.Unmarshal(ctrlRaw, &ctrl); err != nil {
		return nil, invalidType(p.file, agControlKey, "string", string(ctrlRaw), agKey)
	}
	if ctrl != "affine" {
		return nil, invalidValue(p.file, agControlKey, ctrl, []string{"affine"}, agKey)
	}
	maxRaw, ok := obj[agMaxNestKey]
	if !ok {
		// no limitation regarding the nested level
		return &AffineAG{}, nil
	}
	var maxNests int
	if err := json.Unmarshal(maxRaw, &maxNests); err != nil {
		return nil, invalidType(p.file, agMaxNestKey, "integer", string(maxRaw), agKey)
	}
	if maxNests <= 0 {
		return nil, invalidValue(p.file, agMaxNestKey, fmt.Sprint(maxNests), nil, agKey)
	}
	return &AffineAG{MaxNests: maxNests}, nil
}

func (p *parser) stringArray(key string) ([]string, error) {
	raw, ok := p.top[key]
	if !ok {
		return nil, missingKey(p.file, key, "")
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, invalidType(p.file, key, "an array of string", string(raw), "")
	}
	return list, nil
}

func (p *parser) parseMapEntry(m *Model, raw json.RawMessage) error {
	const region = `an entry of "instruction_map"`
	var entry mapEntryJSON
	if err := json.Unmarshal(raw, &entry); err != nil {
		return invalidType(p.file, instMapKey, "object", string(raw), region)
	}
	if entry.Inst == "" {
		return missingKey(p.file, instKey, region)
	}
	if entry.Map == "" {
		return missingKey(p.file, mapKey, region)
	}

	cond := NewMapCondition(entry.Map)
	if len(entry.Flags) > 0 {
		if err := cond.SetFlags(entry.Flags); err != nil {
			return err
		}
	}
	if entry.Pred != "" {
		if err := cond.SetPred(entry.Pred); err != nil {
			return err
		}
	}
	if entry.LHS != nil {
		if err := p.setConst(cond, entry.LHS, true, region); err != nil {
			return err
		}
		if entry.RHS != nil {
			p.warn("both left and right hand side condition is specified for an instruction mapping for %s; the right hand side one is ignored", entry.Inst)
		}
	} else if entry.RHS != nil {
		if err := p.setConst(cond, entry.RHS, false, region); err != nil {
			return err
		}
	}

	if err := m.InstMap.AddMapEntry(entry.Inst, cond); err != nil {
		return invalidValue(p.file, instKey, entry.Inst, nil, region)
	}
	m.mapEntries = append(m.mapEntries, entry)
	return nil
}

func (p *parser) setConst(cond *MapCondition, raw json.RawMessage, isLeft bool, region string) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return invalidType(p.file, lhsKey, "object", string(raw), region)
	}
	if intRaw, ok := obj[constIntKey]; ok {
		var v int64
		if err := json.Unmarshal(intRaw, &v); err != nil {
			return invalidType(p.file, constIntKey, "Integer", string(intRaw), region)
		}
		cond.SetConstInt(v, isLeft)
		return nil
	}
	if dblRaw, ok := obj[constDblKey]; ok {
		var v float64
		if err := json.Unmarshal(dblRaw, &v); err != nil {
			return invalidType(p.file, constDblKey, "Number", string(dblRaw), region)
		}
		cond.SetConstDouble(v, isLeft)
		return nil
	}
	return missingKey(p.file, constIntKey, region)
}

func sortedKeys[T any](m map[string]T) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	// deterministic error messages
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j] < out[j-1]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
