// Package scev is a compact scalar-evolution analysis over the host SSA
// form: enough expression structure to decompose affine address patterns
// and to subtract pointer evolutions for dependence distances.
package scev

import (
	"fmt"
	"strings"

	"golang.org/x/tools/go/ssa"

	"cgraomp/loopinfo"
)

// Expr is a scalar-evolution expression.
type Expr interface {
	fmt.Stringer
	isExpr()
}

// Const is a compile-time integer.
type Const struct {
	V int64
}

func (Const) isExpr()          {}
func (c Const) String() string { return fmt.Sprint(c.V) }

// Unknown wraps an SSA value the analysis cannot see through. It commonly
// identifies the base pointer of an access.
type Unknown struct {
	V ssa.Value
}

func (Unknown) isExpr() {}
func (u Unknown) String() string {
	if u.V == nil {
		return "?"
	}
	return "%" + u.V.Name()
}

// AddRec is the value start + step * iteration(Loop).
type AddRec struct {
	Start Expr
	Step  Expr
	Loop  *loopinfo.Loop
}

func (AddRec) isExpr() {}
func (r AddRec) String() string {
	return fmt.Sprintf("{%s,+,%s}<%s>", r.Start, r.Step, r.Loop.Name())
}

// Add is a flattened sum.
type Add struct {
	Ops []Expr
}

func (Add) isExpr() {}
func (a Add) String() string {
	parts := make([]string, len(a.Ops))
	for i, op := range a.Ops {
		parts[i] = op.String()
	}
	return "(" + strings.Join(parts, " + ") + ")"
}

// Mul is a flattened product.
type Mul struct {
	Ops []Expr
}

func (Mul) isExpr() {}
func (m Mul) String() string {
	parts := make([]string, len(m.Ops))
	for i, op := range m.Ops {
		parts[i] = op.String()
	}
	return "(" + strings.Join(parts, " * ") + ")"
}

// Cast marks a width change whose operand stayed opaque.
type Cast struct {
	Kind string
	X    Expr
}

func (Cast) isExpr()          {}
func (c Cast) String() string { return fmt.Sprintf("(%s %s)", c.Kind, c.X) }

// IsInvariant reports whether the expression does not vary with the
// iterations of l.
func IsInvariant(e Expr, l *loopinfo.Loop) bool {
	switch v := e.(type) {
	case Const:
		return true
	case Unknown:
		return !l.ContainsValue(v.V)
	case AddRec:
		if v.Loop == l {
			return false
		}
		// an outer recurrence is fixed within the iterations of an
		// inner loop
		return isAncestor(v.Loop, l) && IsInvariant(v.Start, l) && IsInvariant(v.Step, l)
	case Add:
		for _, op := range v.Ops {
			if !IsInvariant(op, l) {
				return false
			}
		}
		return true
	case Mul:
		for _, op := range v.Ops {
			if !IsInvariant(op, l) {
				return false
			}
		}
		return true
	case Cast:
		return IsInvariant(v.X, l)
	}
	return false
}

// isAncestor reports whether outer strictly contains inner.
func isAncestor(outer, inner *loopinfo.Loop) bool {
	for p := inner.Parent; p != nil; p = p.Parent {
		if p == outer {
			return true
		}
	}
	return false
}
