package batched

import (
	"fmt"

	"github.com/AlexMWells/OpenShadingLanguage/pkg/oso"
	"github.com/AlexMWells/OpenShadingLanguage/pkg/wir"
)

var compareConds = map[oso.OpKind]wir.Cond{
	oso.OpEq:  wir.Eq,
	oso.OpNeq: wir.Ne,
	oso.OpLt:  wir.Lt,
	oso.OpLe:  wir.Le,
	oso.OpGt:  wir.Gt,
	oso.OpGe:  wir.Ge,
}

// compareElem is the type both operands are compared as.
func compareElem(a, b oso.TypeSpec) wir.Elem {
	switch {
	case a.IsStringBased() || b.IsStringBased():
		return wir.String
	case a.IsFloatBased() || b.IsFloatBased():
		return wir.Float
	default:
		return wir.Int
	}
}

// genCompare compares component by component: every component must
// satisfy the relation, except for neq where any differing component
// does. A scalar compared with a matrix stands for the matrix with the
// scalar on its diagonal.
func genCompare(x *context, op *oso.Opcode) error {
	R, A, B := x.arg(op, 0), x.arg(op, 1), x.arg(op, 2)
	if A.Type.IsClosure() || B.Type.IsClosure() {
		return errClosureArith
	}
	uniform := A.Uniform && B.Uniform
	if err := checkResult(R, uniform); err != nil {
		return err
	}
	cond := compareConds[op.Kind]
	e := compareElem(A.Type, B.Type)
	if e == wir.String && cond != wir.Eq && cond != wir.Ne {
		return fmt.Errorf("%w: %s of strings", ErrContract, op.Name)
	}
	if (e == wir.String) != (A.Type.IsStringBased() && B.Type.IsStringBased()) {
		return fmt.Errorf("%w: %s of %s and %s", ErrContract, op.Name, A.Type, B.Type)
	}
	n := A.Type.Aggregate()
	if m := B.Type.Aggregate(); m > n {
		n = m
	}
	matrix := A.Type.IsMatrix() || B.Type.IsMatrix()
	b := x.b
	operand := func(s *oso.Symbol, c int) wir.Value {
		if matrix && !s.Type.IsMatrix() && c%5 != 0 {
			return x.zero(e, !uniform)
		}
		return x.loadAs(s, 0, c, e, !uniform)
	}
	var res wir.Value
	for c := 0; c < n; c++ {
		r := b.Cmp(cond, operand(A, c), operand(B, c))
		switch {
		case c == 0:
			res = r
		case cond == wir.Ne:
			res = b.Or(res, r)
		default:
			res = b.And(res, r)
		}
	}
	x.store(R, 0, 0, b.Unary(wir.BoolToInt, res))
	return nil
}
