package irutil

import (
	"fmt"
	"go/token"
	"go/types"
	"strings"

	"golang.org/x/tools/go/ssa"
)

// SymbolOf resolves the symbolic name of the argument, global, or local
// allocation behind a pointer value, transparently unwrapping
// pointer-computation instructions and intermediate pointer loads. It
// returns "unknown" when no named source is reachable.
func SymbolOf(ptr ssa.Value) string {
	seen := make(map[ssa.Value]bool)
	for ptr != nil && !seen[ptr] {
		seen[ptr] = true
		switch v := ptr.(type) {
		case *ssa.IndexAddr:
			ptr = v.X
		case *ssa.FieldAddr:
			ptr = v.X
		case *ssa.Slice:
			ptr = v.X
		case *ssa.UnOp:
			if v.Op != token.MUL {
				return "unknown"
			}
			ptr = v.X
		case *ssa.Alloc:
			return allocName(v)
		case *ssa.Parameter:
			return v.Name()
		case *ssa.Global:
			return v.Name()
		case *ssa.FreeVar:
			return v.Name()
		case *ssa.Convert:
			ptr = v.X
		case *ssa.ChangeType:
			ptr = v.X
		default:
			return "unknown"
		}
	}
	return "unknown"
}

func allocName(a *ssa.Alloc) string {
	name := strings.TrimPrefix(strings.TrimSpace(a.Comment), "var ")
	if name == "" {
		name = a.Name()
	}
	if name == "" {
		return "unknown"
	}
	return strings.ReplaceAll(name, " ", "_")
}

// DataTypeString encodes a type for graph output: intN for integers,
// floatN for IEEE-754 floats, and address<<inner>> for pointer-typed
// sources.
func DataTypeString(t types.Type) string {
	switch u := t.Underlying().(type) {
	case *types.Pointer:
		return fmt.Sprintf("address<<%s>>", DataTypeString(u.Elem()))
	case *types.Slice:
		return fmt.Sprintf("address<<%s>>", DataTypeString(u.Elem()))
	case *types.Array:
		return DataTypeString(u.Elem())
	case *types.Basic:
		if u.Info()&types.IsFloat != 0 {
			return fmt.Sprintf("float%d", BitWidth(t))
		}
		return fmt.Sprintf("int%d", BitWidth(t))
	default:
		return "unknown"
	}
}

// ElemUnits counts the scalar elements of t: the product of array lengths
// down to the scalar element, 1 for a scalar. Address expressions measure
// in these units.
func ElemUnits(t types.Type) int64 {
	units := int64(1)
	for {
		arr, ok := t.Underlying().(*types.Array)
		if !ok {
			return units
		}
		units *= arr.Len()
		t = arr.Elem()
	}
}

// IndexedElemType returns the element type addressed by an IndexAddr on t.
func IndexedElemType(t types.Type) types.Type {
	switch u := t.Underlying().(type) {
	case *types.Pointer:
		return IndexedElemType(u.Elem())
	case *types.Slice:
		return u.Elem()
	case *types.Array:
		return u.Elem()
	default:
		return t
	}
}
