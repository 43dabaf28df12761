package irutil

import (
	"go/token"

	"golang.org/x/tools/go/ssa"
)

// DataOperands returns the data-carrying operands of an instruction in
// operand-index order. Stores contribute only their value operand (the
// address is handled by the access machinery), calls contribute only their
// arguments (never the callee), loads contribute nothing.
func DataOperands(instr ssa.Instruction) []ssa.Value {
	switch v := instr.(type) {
	case *ssa.Store:
		return []ssa.Value{v.Val}
	case *ssa.Call:
		return append([]ssa.Value(nil), v.Call.Args...)
	case *ssa.UnOp:
		if v.Op == token.MUL {
			return nil
		}
		return []ssa.Value{v.X}
	case *ssa.BinOp:
		return []ssa.Value{v.X, v.Y}
	case *ssa.Convert:
		return []ssa.Value{v.X}
	case *ssa.ChangeType:
		return []ssa.Value{v.X}
	case *ssa.Phi:
		return append([]ssa.Value(nil), v.Edges...)
	case *ssa.IndexAddr:
		return []ssa.Value{v.X, v.Index}
	case *ssa.FieldAddr:
		return []ssa.Value{v.X}
	case *ssa.Extract:
		return []ssa.Value{v.Tuple}
	}
	return nil
}

// MemPointer returns the address operand of a memory access, or nil when
// the instruction is not one.
func MemPointer(instr ssa.Instruction) ssa.Value {
	if ld, ok := IsLoad(instr); ok {
		return ld.X
	}
	if st, ok := IsStore(instr); ok {
		return st.Addr
	}
	return nil
}

// Users returns the instructions that consume the value, in referrer order.
func Users(v ssa.Value) []ssa.Instruction {
	refs := v.Referrers()
	if refs == nil {
		return nil
	}
	return *refs
}
