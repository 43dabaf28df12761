// Package irutil provides opcode naming, operand access, and symbol
// resolution helpers over the host SSA form.
package irutil

import (
	"go/token"
	"go/types"

	"golang.org/x/tools/go/ssa"
)

// compareTokens lists the binary operators that form compare instructions.
var compareTokens = map[token.Token]bool{
	token.EQL: true, token.NEQ: true,
	token.LSS: true, token.LEQ: true,
	token.GTR: true, token.GEQ: true,
}

// IsCompare reports whether op is a comparison.
func IsCompare(op *ssa.BinOp) bool {
	return compareTokens[op.Op]
}

// IsLoad matches a memory load: a pointer dereference producing data.
func IsLoad(instr ssa.Instruction) (*ssa.UnOp, bool) {
	if un, ok := instr.(*ssa.UnOp); ok && un.Op == token.MUL {
		return un, true
	}
	return nil, false
}

// IsStore matches a memory store.
func IsStore(instr ssa.Instruction) (*ssa.Store, bool) {
	st, ok := instr.(*ssa.Store)
	return st, ok
}

// IsPointerIndex matches address-arithmetic instructions (the GEP analog).
func IsPointerIndex(instr ssa.Instruction) bool {
	switch instr.(type) {
	case *ssa.IndexAddr, *ssa.FieldAddr:
		return true
	}
	return false
}

// IsFloat reports whether t is a floating point type.
func IsFloat(t types.Type) bool {
	b, ok := t.Underlying().(*types.Basic)
	return ok && b.Info()&types.IsFloat != 0
}

// IsUnsigned reports whether t is an unsigned integer type.
func IsUnsigned(t types.Type) bool {
	b, ok := t.Underlying().(*types.Basic)
	return ok && b.Info()&types.IsUnsigned != 0
}

// Opcode derives the machine-description opcode name of an instruction.
func Opcode(instr ssa.Instruction) string {
	switch v := instr.(type) {
	case *ssa.BinOp:
		return binOpcode(v)
	case *ssa.UnOp:
		switch v.Op {
		case token.MUL:
			return "load"
		case token.SUB:
			if IsFloat(v.X.Type()) {
				return "fneg"
			}
			return "sub"
		case token.XOR, token.NOT:
			return "xor"
		}
		return "unop"
	case *ssa.Store:
		return "store"
	case *ssa.Convert:
		return convertOpcode(v)
	case *ssa.ChangeType:
		return "bitcast"
	case *ssa.IndexAddr, *ssa.FieldAddr:
		return "getelementptr"
	case *ssa.Phi:
		return "phi"
	case *ssa.Alloc:
		return "alloca"
	case *ssa.Call:
		if callee := v.Call.StaticCallee(); callee != nil {
			return callee.Name()
		}
		return "call"
	case *ssa.If, *ssa.Jump:
		return "br"
	case *ssa.Return:
		return "ret"
	case *ssa.Extract:
		return "extractvalue"
	}
	return "unknown"
}

func binOpcode(op *ssa.BinOp) string {
	float := IsFloat(op.X.Type())
	unsigned := IsUnsigned(op.X.Type())
	if IsCompare(op) {
		if float {
			return "fcmp"
		}
		return "icmp"
	}
	switch op.Op {
	case token.ADD:
		if float {
			return "fadd"
		}
		return "add"
	case token.SUB:
		if float {
			return "fsub"
		}
		return "sub"
	case token.MUL:
		if float {
			return "fmul"
		}
		return "mul"
	case token.QUO:
		switch {
		case float:
			return "fdiv"
		case unsigned:
			return "udiv"
		default:
			return "sdiv"
		}
	case token.REM:
		switch {
		case float:
			return "frem"
		case unsigned:
			return "urem"
		default:
			return "srem"
		}
	case token.AND, token.AND_NOT:
		return "and"
	case token.OR:
		return "or"
	case token.XOR:
		return "xor"
	case token.SHL:
		return "shl"
	case token.SHR:
		if unsigned {
			return "lshr"
		}
		return "ashr"
	}
	return "unknown"
}

func convertOpcode(cv *ssa.Convert) string {
	from, to := cv.X.Type(), cv.Type()
	switch {
	case IsFloat(from) && IsFloat(to):
		if BitWidth(to) < BitWidth(from) {
			return "fptrunc"
		}
		return "fpext"
	case IsFloat(from):
		if IsUnsigned(to) {
			return "fptoui"
		}
		return "fptosi"
	case IsFloat(to):
		if IsUnsigned(from) {
			return "uitofp"
		}
		return "sitofp"
	default:
		wf, wt := BitWidth(from), BitWidth(to)
		switch {
		case wt < wf:
			return "trunc"
		case wt == wf:
			return "bitcast"
		case IsUnsigned(from):
			return "zext"
		default:
			return "sext"
		}
	}
}

// Predicate derives the compare-predicate name of a comparison.
func Predicate(op *ssa.BinOp) (string, bool) {
	if !IsCompare(op) {
		return "", false
	}
	float := IsFloat(op.X.Type())
	unsigned := IsUnsigned(op.X.Type())
	switch op.Op {
	case token.EQL:
		if float {
			return "oeq", true
		}
		return "eq", true
	case token.NEQ:
		if float {
			return "one", true
		}
		return "ne", true
	case token.LSS:
		return signedPred("olt", "ult", "slt", float, unsigned), true
	case token.LEQ:
		return signedPred("ole", "ule", "sle", float, unsigned), true
	case token.GTR:
		return signedPred("ogt", "ugt", "sgt", float, unsigned), true
	case token.GEQ:
		return signedPred("oge", "uge", "sge", float, unsigned), true
	}
	return "", false
}

func signedPred(f, u, s string, float, unsigned bool) string {
	switch {
	case float:
		return f
	case unsigned:
		return u
	default:
		return s
	}
}

// BitWidth returns the width of a scalar type in bits.
func BitWidth(t types.Type) int {
	b, ok := t.Underlying().(*types.Basic)
	if !ok {
		return 32
	}
	switch b.Kind() {
	case types.Bool:
		return 1
	case types.Int8, types.Uint8:
		return 8
	case types.Int16, types.Uint16:
		return 16
	case types.Int32, types.Uint32, types.Int, types.Uint, types.Float32:
		return 32
	case types.Int64, types.Uint64, types.Uintptr, types.Float64:
		return 64
	default:
		return 32
	}
}
