package batched

import (
	"fmt"

	"github.com/AlexMWells/OpenShadingLanguage/pkg/funcspec"
	"github.com/AlexMWells/OpenShadingLanguage/pkg/oso"
	"github.com/AlexMWells/OpenShadingLanguage/pkg/wir"
)

var errClosureArith = fmt.Errorf("%w: closure arithmetic is not implemented", ErrNotImplemented)

// chans holds the value and derivative channels of every component.
type chans [3][]wir.Value

// loadChans reads n components of sym as e. Derivative channels are read
// when derivs is set.
func (x *context) loadChans(sym *oso.Symbol, n int, e wir.Elem, wide, derivs bool) chans {
	var ch chans
	last := 0
	if derivs {
		last = 2
	}
	for d := 0; d <= last; d++ {
		ch[d] = make([]wir.Value, n)
		for c := 0; c < n; c++ {
			ch[d][c] = x.loadAs(sym, d, c, e, wide)
		}
	}
	return ch
}

// storeChans writes ch to sym, clearing its derivatives when ch has none.
func (x *context) storeChans(sym *oso.Symbol, ch chans) {
	for d := range ch {
		for c, v := range ch[d] {
			x.store(sym, d, c, v)
		}
	}
	if ch[1] == nil {
		x.zeroDerivs(sym)
	}
}

// arith is the shape shared by the component-wise operations: the
// result, whether the op is computed once, the element type and count,
// and whether derivatives propagate.
type arith struct {
	res     *oso.Symbol
	uniform bool
	elem    wir.Elem
	n       int
	derivs  bool
}

func (x *context) arith(op *oso.Opcode, inputs ...*oso.Symbol) (arith, error) {
	res := x.arg(op, 0)
	if res.Type.IsClosure() {
		return arith{}, errClosureArith
	}
	a := arith{res: res, uniform: true, elem: elemOf(res.Type), n: res.Type.Components()}
	for _, in := range inputs {
		if in.Type.IsClosure() {
			return arith{}, errClosureArith
		}
		a.uniform = a.uniform && in.Uniform
		a.derivs = a.derivs || x.hasDerivs(in)
	}
	a.derivs = a.derivs && x.hasDerivs(res)
	return a, checkResult(res, a.uniform)
}

func (x *context) operands(a arith, syms ...*oso.Symbol) []chans {
	out := make([]chans, len(syms))
	for i, s := range syms {
		out[i] = x.loadChans(s, a.n, a.elem, !a.uniform, a.derivs)
	}
	return out
}

func (x *context) constOf(e wir.Elem, v float32, wide bool) wir.Value {
	var c wir.Value
	if e == wir.Float {
		c = x.b.ConstFloat(v)
	} else {
		c = x.b.ConstInt(int32(v))
	}
	if wide {
		c = x.b.Broadcast(c)
	}
	return c
}

// safeDiv is a/b, with non-finite float quotients and integer division
// by zero yielding 0.
func (x *context) safeDiv(a, b wir.Value) wir.Value {
	bld := x.b
	t := bld.TypeOf(a)
	q := bld.Div(a, b)
	if t.Elem == wir.Float {
		return bld.Select(bld.Unary(wir.IsFinite, q), q, x.zero(wir.Float, t.Wide))
	}
	z := x.zero(wir.Int, t.Wide)
	return bld.Select(bld.Cmp(wir.Eq, b, z), z, q)
}

func genAddSub(x *context, op *oso.Opcode) error {
	A, B := x.arg(op, 1), x.arg(op, 2)
	a, err := x.arith(op, A, B)
	if err != nil {
		return err
	}
	bop := wir.Add
	if op.Kind == oso.OpSub {
		bop = wir.Sub
	}
	in := x.operands(a, A, B)
	var r chans
	for d := range r {
		if in[0][d] == nil {
			continue
		}
		r[d] = make([]wir.Value, a.n)
		for c := range r[d] {
			r[d][c] = x.b.Binary(bop, in[0][d][c], in[1][d][c])
		}
	}
	x.storeChans(a.res, r)
	return nil
}

// matrixArith calls the runtime for products and quotients involving a
// matrix: (result, a, b) with a matrix and a float or two matrices.
func (x *context) matrixArith(op *oso.Opcode, base string) error {
	R, A, B := x.arg(op, 0), x.arg(op, 1), x.arg(op, 2)
	uniform := A.Uniform && B.Uniform
	if err := checkResult(R, uniform); err != nil {
		return err
	}
	args := []*oso.Symbol{R, A, B}
	for i, s := range args[1:] {
		if s.Type.IsInt() {
			t := x.tempSym(oso.TypeFloat, s.Uniform, false)
			x.copySymbol(t, s)
			args[i+1] = t
		}
	}
	spec := funcspec.New(base)
	if uniform {
		spec.Unbatch()
	}
	spec.ResultSym(R, false, uniform)
	for _, s := range args[1:] {
		spec.ArgSym(s, false, uniform)
	}
	if !uniform {
		spec.Mask()
	}
	_, err := x.call(spec, args)
	return err
}

func genMul(x *context, op *oso.Opcode) error {
	A, B := x.arg(op, 1), x.arg(op, 2)
	if A.Type.IsMatrix() || B.Type.IsMatrix() {
		if A.Type.IsClosure() || B.Type.IsClosure() {
			return errClosureArith
		}
		return x.matrixArith(op, "mul")
	}
	a, err := x.arith(op, A, B)
	if err != nil {
		return err
	}
	b := x.b
	in := x.operands(a, A, B)
	var r chans
	r[0] = make([]wir.Value, a.n)
	for c := range r[0] {
		r[0][c] = b.Mul(in[0][0][c], in[1][0][c])
	}
	if a.derivs {
		for d := 1; d <= 2; d++ {
			r[d] = make([]wir.Value, a.n)
			for c := range r[d] {
				// (ab)' = a b' + a' b
				r[d][c] = b.Add(b.Mul(in[0][0][c], in[1][d][c]), b.Mul(in[0][d][c], in[1][0][c]))
			}
		}
	}
	x.storeChans(a.res, r)
	return nil
}

func genDiv(x *context, op *oso.Opcode) error {
	A, B := x.arg(op, 1), x.arg(op, 2)
	if A.Type.IsMatrix() || B.Type.IsMatrix() {
		if A.Type.IsClosure() || B.Type.IsClosure() {
			return errClosureArith
		}
		return x.matrixArith(op, "div")
	}
	a, err := x.arith(op, A, B)
	if err != nil {
		return err
	}
	b := x.b
	in := x.operands(a, A, B)
	var r chans
	r[0] = make([]wir.Value, a.n)
	for c := range r[0] {
		r[0][c] = x.safeDiv(in[0][0][c], in[1][0][c])
	}
	if a.derivs {
		for d := 1; d <= 2; d++ {
			r[d] = make([]wir.Value, a.n)
			for c := range r[d] {
				// (a/b)' = (a' b - a b') / b^2
				av, bv := in[0][0][c], in[1][0][c]
				num := b.Sub(b.Mul(in[0][d][c], bv), b.Mul(av, in[1][d][c]))
				r[d][c] = x.safeDiv(num, b.Mul(bv, bv))
			}
		}
	}
	x.storeChans(a.res, r)
	return nil
}

func genMod(x *context, op *oso.Opcode) error {
	A, B := x.arg(op, 1), x.arg(op, 2)
	a, err := x.arith(op, A, B)
	if err != nil {
		return err
	}
	b := x.b
	if a.elem == wir.Float && !a.uniform {
		spec := funcspec.New("fmod").
			ResultSym(a.res, a.derivs, false).
			ArgSym(A, a.derivs && x.hasDerivs(A), false).
			ArgSym(B, a.derivs && x.hasDerivs(B), false).
			Mask()
		_, err := x.call(spec, []*oso.Symbol{a.res, A, B})
		return err
	}
	in := x.operands(a, A, B)
	var r chans
	r[0] = make([]wir.Value, a.n)
	for c := range r[0] {
		av, bv := in[0][0][c], in[1][0][c]
		q := b.Binary(wir.Mod, av, bv)
		if a.elem == wir.Float {
			r[0][c] = b.Select(b.Unary(wir.IsFinite, q), q, x.zero(wir.Float, !a.uniform))
		} else {
			z := x.zero(wir.Int, !a.uniform)
			r[0][c] = b.Select(b.Cmp(wir.Eq, bv, z), z, q)
		}
	}
	if a.derivs {
		// fmod(a, b) moves with a between discontinuities
		r[1], r[2] = in[0][1], in[0][2]
	}
	x.storeChans(a.res, r)
	return nil
}

func genNeg(x *context, op *oso.Opcode) error {
	A := x.arg(op, 1)
	a, err := x.arith(op, A)
	if err != nil {
		return err
	}
	in := x.operands(a, A)
	var r chans
	for d := range r {
		if in[0][d] == nil {
			continue
		}
		r[d] = make([]wir.Value, a.n)
		for c := range r[d] {
			r[d][c] = x.b.Unary(wir.Neg, in[0][d][c])
		}
	}
	x.storeChans(a.res, r)
	return nil
}

// pick selects a component of t or f, derivatives included.
func (x *context) pick(cond wir.Value, t, f chans, c int, r *chans) {
	for d := range r {
		if t[d] == nil {
			continue
		}
		if r[d] == nil {
			r[d] = make([]wir.Value, len(t[0]))
		}
		r[d][c] = x.b.Select(cond, t[d][c], f[d][c])
	}
}

func genMinMax(x *context, op *oso.Opcode) error {
	A, B := x.arg(op, 1), x.arg(op, 2)
	a, err := x.arith(op, A, B)
	if err != nil {
		return err
	}
	cmp := wir.Lt
	if op.Kind == oso.OpMax {
		cmp = wir.Gt
	}
	in := x.operands(a, A, B)
	var r chans
	for c := 0; c < a.n; c++ {
		x.pick(x.b.Cmp(cmp, in[0][0][c], in[1][0][c]), in[0], in[1], c, &r)
	}
	x.storeChans(a.res, r)
	return nil
}

func genClamp(x *context, op *oso.Opcode) error {
	X, Lo, Hi := x.arg(op, 1), x.arg(op, 2), x.arg(op, 3)
	a, err := x.arith(op, X, Lo, Hi)
	if err != nil {
		return err
	}
	in := x.operands(a, X, Lo, Hi)
	var lo, r chans
	for c := 0; c < a.n; c++ {
		x.pick(x.b.Cmp(wir.Lt, in[0][0][c], in[1][0][c]), in[1], in[0], c, &lo)
	}
	for c := 0; c < a.n; c++ {
		x.pick(x.b.Cmp(wir.Gt, lo[0][c], in[2][0][c]), in[2], lo, c, &r)
	}
	x.storeChans(a.res, r)
	return nil
}

func genMix(x *context, op *oso.Opcode) error {
	A, B, X := x.arg(op, 1), x.arg(op, 2), x.arg(op, 3)
	a, err := x.arith(op, A, B, X)
	if err != nil {
		return err
	}
	if a.elem != wir.Float {
		return fmt.Errorf("%w: mix of %s", ErrContract, a.res.Type)
	}
	b := x.b
	in := x.operands(a, A, B, X)
	one := x.constOf(wir.Float, 1, !a.uniform)
	var r chans
	r[0] = make([]wir.Value, a.n)
	for c := range r[0] {
		av, bv, xv := in[0][0][c], in[1][0][c], in[2][0][c]
		r[0][c] = b.Add(b.Mul(av, b.Sub(one, xv)), b.Mul(bv, xv))
	}
	if a.derivs {
		for d := 1; d <= 2; d++ {
			r[d] = make([]wir.Value, a.n)
			for c := range r[d] {
				av, bv, xv := in[0][0][c], in[1][0][c], in[2][0][c]
				da, db, dx := in[0][d][c], in[1][d][c], in[2][d][c]
				// a'(1-x) + b'x + (b-a)x'
				r[d][c] = b.Add(b.Add(b.Mul(da, b.Sub(one, xv)), b.Mul(db, xv)), b.Mul(b.Sub(bv, av), dx))
			}
		}
	}
	x.storeChans(a.res, r)
	return nil
}

// genSelect is R = C ? B : A, component by component when C is an
// aggregate.
func genSelect(x *context, op *oso.Opcode) error {
	A, B, C := x.arg(op, 1), x.arg(op, 2), x.arg(op, 3)
	a, err := x.arith(op, A, B, C)
	if err != nil {
		return err
	}
	b := x.b
	in := x.operands(a, A, B)
	ce := elemOf(C.Type)
	var r chans
	for c := 0; c < a.n; c++ {
		cv := x.loadAs(C, 0, c, ce, !a.uniform)
		cond := b.Cmp(wir.Ne, cv, x.zero(ce, !a.uniform))
		x.pick(cond, in[1], in[0], c, &r)
	}
	x.storeChans(a.res, r)
	return nil
}

// genLogical is and/or of the truth of two ints.
func genLogical(x *context, op *oso.Opcode) error {
	A, B := x.arg(op, 1), x.arg(op, 2)
	a, err := x.arith(op, A, B)
	if err != nil {
		return err
	}
	b := x.b
	truth := func(s *oso.Symbol) wir.Value {
		e := elemOf(s.Type)
		return b.Cmp(wir.Ne, x.loadAs(s, 0, 0, e, !a.uniform), x.zero(e, !a.uniform))
	}
	bop := wir.And
	if op.Kind == oso.OpOr {
		bop = wir.Or
	}
	v := b.Unary(wir.BoolToInt, b.Binary(bop, truth(A), truth(B)))
	x.store(a.res, 0, 0, v)
	return nil
}

func genBitwise(x *context, op *oso.Opcode) error {
	A, B := x.arg(op, 1), x.arg(op, 2)
	a, err := x.arith(op, A, B)
	if err != nil {
		return err
	}
	if a.elem != wir.Int {
		return fmt.Errorf("%w: %s of %s", ErrContract, op.Name, a.res.Type)
	}
	var bop wir.BinOp
	switch op.Kind {
	case oso.OpBitAnd:
		bop = wir.And
	case oso.OpBitOr:
		bop = wir.Or
	case oso.OpXor:
		bop = wir.Xor
	case oso.OpShl:
		bop = wir.Shl
	default:
		bop = wir.Shr
	}
	in := x.operands(a, A, B)
	for c := 0; c < a.n; c++ {
		x.store(a.res, 0, c, x.b.Binary(bop, in[0][0][c], in[1][0][c]))
	}
	return nil
}

func genCompl(x *context, op *oso.Opcode) error {
	A := x.arg(op, 1)
	a, err := x.arith(op, A)
	if err != nil {
		return err
	}
	if a.elem != wir.Int {
		return fmt.Errorf("%w: compl of %s", ErrContract, a.res.Type)
	}
	x.store(a.res, 0, 0, x.b.Not(x.loadAs(A, 0, 0, wir.Int, !a.uniform)))
	return nil
}
