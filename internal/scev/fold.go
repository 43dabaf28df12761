package scev

import (
	"golang.org/x/tools/go/ssa"
)

// NewAdd builds the folded sum of the operands: constants are summed,
// linear terms over the same unknown are combined, and recurrences absorb
// invariant siblings into their start so the innermost recurrence surfaces
// at the top of the expression.
func NewAdd(ops ...Expr) Expr {
	var flat []Expr
	flatten(ops, &flat)

	// peel off recurrences first
	var recs []AddRec
	var rest []Expr
	for _, op := range flat {
		if r, ok := op.(AddRec); ok {
			recs = append(recs, r)
		} else {
			rest = append(rest, op)
		}
	}
	if len(recs) > 0 {
		return foldRecSum(recs, rest)
	}
	return linearSum(rest)
}

func flatten(ops []Expr, out *[]Expr) {
	for _, op := range ops {
		if a, ok := op.(Add); ok {
			flatten(a.Ops, out)
			continue
		}
		*out = append(*out, op)
	}
}

// foldRecSum combines recurrences and invariant terms. The recurrence of
// the innermost loop wins the top position; everything invariant within
// that loop moves into its start expression.
func foldRecSum(recs []AddRec, rest []Expr) Expr {
	// pick the deepest loop among the recurrences
	innerIdx := 0
	for i, r := range recs[1:] {
		if r.Loop.Depth() > recs[innerIdx].Loop.Depth() {
			innerIdx = i + 1
		}
	}
	inner := recs[innerIdx]

	var startParts []Expr
	step := inner.Step
	startParts = append(startParts, inner.Start)
	for i, r := range recs {
		if i == innerIdx {
			continue
		}
		if r.Loop == inner.Loop {
			step = NewAdd(step, r.Step)
			startParts = append(startParts, r.Start)
			continue
		}
		if !IsInvariant(r, inner.Loop) {
			// cannot be expressed as a recurrence over the inner loop
			return opaqueAdd(append(recsToExprs(recs), rest...))
		}
		startParts = append(startParts, r)
	}
	for _, t := range rest {
		if !IsInvariant(t, inner.Loop) {
			return opaqueAdd(append(recsToExprs(recs), rest...))
		}
		startParts = append(startParts, t)
	}

	folded := AddRec{Start: NewAdd(startParts...), Step: step, Loop: inner.Loop}
	// a recurrence that stopped stepping is its start
	if c, ok := folded.Step.(Const); ok && c.V == 0 {
		return folded.Start
	}
	return folded
}

func recsToExprs(recs []AddRec) []Expr {
	out := make([]Expr, len(recs))
	for i, r := range recs {
		out[i] = r
	}
	return out
}

func opaqueAdd(ops []Expr) Expr {
	if len(ops) == 1 {
		return ops[0]
	}
	return Add{Ops: ops}
}

// linearSum combines constants and coefficient-weighted unknowns; opaque
// terms pass through unchanged.
func linearSum(terms []Expr) Expr {
	constSum := int64(0)
	coeffs := make(map[ssa.Value]int64)
	var order []ssa.Value
	var opaque []Expr

	for _, t := range terms {
		switch v := t.(type) {
		case Const:
			constSum += v.V
		case Unknown:
			if _, seen := coeffs[v.V]; !seen {
				order = append(order, v.V)
			}
			coeffs[v.V]++
		case Mul:
			if c, u, ok := asScaledUnknown(v); ok {
				if _, seen := coeffs[u]; !seen {
					order = append(order, u)
				}
				coeffs[u] += c
				continue
			}
			opaque = append(opaque, v)
		default:
			opaque = append(opaque, t)
		}
	}

	var out []Expr
	for _, u := range order {
		switch c := coeffs[u]; c {
		case 0:
		case 1:
			out = append(out, Unknown{V: u})
		default:
			out = append(out, Mul{Ops: []Expr{Const{V: c}, Unknown{V: u}}})
		}
	}
	out = append(out, opaque...)
	if constSum != 0 || len(out) == 0 {
		out = append(out, Const{V: constSum})
	}
	if len(out) == 1 {
		return out[0]
	}
	return Add{Ops: out}
}

func asScaledUnknown(m Mul) (int64, ssa.Value, bool) {
	if len(m.Ops) != 2 {
		return 0, nil, false
	}
	c, okC := m.Ops[0].(Const)
	u, okU := m.Ops[1].(Unknown)
	if okC && okU {
		return c.V, u.V, true
	}
	c, okC = m.Ops[1].(Const)
	u, okU = m.Ops[0].(Unknown)
	if okC && okU {
		return c.V, u.V, true
	}
	return 0, nil, false
}

// NewMul builds the folded product of the operands: constants multiply
// out, and a constant factor distributes over sums and recurrences.
func NewMul(ops ...Expr) Expr {
	var flat []Expr
	for _, op := range ops {
		if m, ok := op.(Mul); ok {
			flat = append(flat, m.Ops...)
			continue
		}
		flat = append(flat, op)
	}

	constProd := int64(1)
	var rest []Expr
	for _, op := range flat {
		if c, ok := op.(Const); ok {
			constProd *= c.V
			continue
		}
		rest = append(rest, op)
	}
	if constProd == 0 {
		return Const{V: 0}
	}
	if len(rest) == 0 {
		return Const{V: constProd}
	}
	if constProd == 1 && len(rest) == 1 {
		return rest[0]
	}
	if len(rest) == 1 {
		switch v := rest[0].(type) {
		case AddRec:
			return AddRec{
				Start: NewMul(Const{V: constProd}, v.Start),
				Step:  NewMul(Const{V: constProd}, v.Step),
				Loop:  v.Loop,
			}
		case Add:
			scaled := make([]Expr, len(v.Ops))
			for i, op := range v.Ops {
				scaled[i] = NewMul(Const{V: constProd}, op)
			}
			return NewAdd(scaled...)
		}
	}
	if constProd != 1 {
		rest = append([]Expr{Const{V: constProd}}, rest...)
	}
	if len(rest) == 1 {
		return rest[0]
	}
	return Mul{Ops: rest}
}

// Negate is multiplication by -1.
func Negate(e Expr) Expr {
	switch v := e.(type) {
	case Const:
		return Const{V: -v.V}
	case AddRec:
		return AddRec{Start: Negate(v.Start), Step: Negate(v.Step), Loop: v.Loop}
	case Add:
		neg := make([]Expr, len(v.Ops))
		for i, op := range v.Ops {
			neg[i] = Negate(op)
		}
		return NewAdd(neg...)
	default:
		return NewMul(Const{V: -1}, e)
	}
}

// Minus folds a - b.
func Minus(a, b Expr) Expr {
	return NewAdd(a, Negate(b))
}

// ConstantDifference computes a - b when it folds to a compile-time
// constant.
func ConstantDifference(a, b Expr) (int64, bool) {
	if c, ok := Minus(a, b).(Const); ok {
		return c.V, true
	}
	return 0, false
}
