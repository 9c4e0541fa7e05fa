package batched

import (
	"fmt"

	"github.com/AlexMWells/OpenShadingLanguage/pkg/funcspec"
	"github.com/AlexMWells/OpenShadingLanguage/pkg/oso"
)

// newSpec starts the spec of a call made once for a uniform op, or
// masked for every lane of a varying one.
func (x *context) newSpec(base string, uniform bool) *funcspec.Spec {
	s := funcspec.New(base)
	if uniform {
		return s.Unbatch()
	}
	return s.Mask()
}

// spaceName is the constant name of a space with the renderer's synonym
// for common folded in. ok is false for names known only at run time.
func (x *context) spaceName(s *oso.Symbol) (name string, ok bool) {
	if !s.IsConstant() || !s.Type.IsString() {
		return "", false
	}
	name = s.ConstString(0)
	if r := x.opts.Renderer; r != nil && name != "" && name == r.CommonSpaceSynonym() {
		name = "common"
	}
	return name, true
}

func (x *context) isCommon(s *oso.Symbol) bool {
	name, ok := x.spaceName(s)
	return ok && name == "common"
}

// spaceSpec starts the spec of a space lookup. Lookups report unknown
// spaces per lane and so are always batched and masked.
func spaceSpec(base string) *funcspec.Spec { return funcspec.New(base).Mask() }

// fromToMatrix computes the transform between two named spaces into a
// temp.
func (x *context) fromToMatrix(from, to *oso.Symbol) (*oso.Symbol, error) {
	uniform := from.Uniform && to.Uniform
	m := x.tempSym(oso.TypeMatrix, uniform, false)
	spec := spaceSpec("get_from_to_matrix").
		ResultSym(m, false, uniform).
		ArgSym(from, false, uniform).
		ArgSym(to, false, uniform)
	if _, err := x.call(spec, []*oso.Symbol{m, from, to}); err != nil {
		return nil, err
	}
	return m, nil
}

// transformTriple is R = src transformed by m as a point, vector or
// normal.
func (x *context) transformTriple(R, src, m *oso.Symbol, kind string, uniform bool) error {
	derivs := x.hasDerivs(R) && x.hasDerivs(src)
	spec := x.newSpec("transform_"+kind, uniform).
		ResultSym(R, derivs, uniform).
		ArgSym(src, derivs, uniform).
		ArgSym(m, false, uniform)
	_, err := x.call(spec, []*oso.Symbol{R, src, m})
	return err
}

func tripleKind(k oso.OpKind) string {
	switch k {
	case oso.OpPoint, oso.OpTransform:
		return "point"
	case oso.OpNormal, oso.OpTransformN:
		return "normal"
	case oso.OpColor:
		return "color"
	}
	return "vector"
}

// genConstructTriple builds a color, point, vector or normal from one
// value or three components, optionally given in a named space.
func genConstructTriple(x *context, op *oso.Opcode) error {
	R := x.arg(op, 0)
	uniform := x.uniformFrom(op, 1)
	if err := checkResult(R, uniform); err != nil {
		return err
	}
	var space *oso.Symbol
	first := 1
	switch op.NArgs() {
	case 2:
		x.copySymbol(R, x.arg(op, 1))
		return nil
	case 4:
	case 5:
		space, first = x.arg(op, 1), 2
		if !space.Type.IsString() {
			return fmt.Errorf("%w: space of %s is %s", ErrContract, op.Name, space.Type)
		}
	default:
		return errArgs(op)
	}
	kind := tripleKind(op.Kind)
	target := R
	transform := space != nil && kind != "color" && !x.isCommon(space)
	if transform {
		target = x.tempSym(R.Type, uniform, x.hasDerivs(R))
	}
	channels := 1
	if x.hasDerivs(target) {
		channels = 3
	}
	for d := 0; d < channels; d++ {
		for c := 0; c < 3; c++ {
			x.store(target, d, c, x.load(x.arg(op, first+c), d, 0))
		}
	}
	switch {
	case space == nil:
	case kind == "color":
		if name, ok := x.spaceName(space); ok && (name == "rgb" || name == "RGB" || name == "linear") {
			return nil
		}
		spec := x.newSpec("prepend_color_from", uniform).
			ArgSym(R, false, uniform).SetOutput(0).
			ArgSym(space, false, uniform)
		_, err := x.call(spec, []*oso.Symbol{R, space})
		return err
	case transform:
		m, err := x.fromToMatrix(space, constString("common"))
		if err != nil {
			return err
		}
		return x.transformTriple(R, target, m, kind, uniform)
	}
	return nil
}

// prependMatrixFrom turns R into the transform from the named space.
func (x *context) prependMatrixFrom(R, space *oso.Symbol, uniform bool) error {
	if x.isCommon(space) {
		return nil
	}
	spec := spaceSpec("prepend_matrix_from").
		ArgSym(R, false, uniform).SetOutput(0).
		ArgSym(space, false, uniform)
	_, err := x.call(spec, []*oso.Symbol{R, space})
	return err
}

// genMatrix covers matrix(m), matrix(f), matrix(space, f),
// matrix(from, to) and the sixteen value forms with and without a space.
func genMatrix(x *context, op *oso.Opcode) error {
	R := x.arg(op, 0)
	uniform := x.uniformFrom(op, 1)
	if err := checkResult(R, uniform); err != nil {
		return err
	}
	n := op.NArgs()
	switch {
	case n == 2:
		x.copySymbol(R, x.arg(op, 1))
		return nil
	case n == 3 && x.arg(op, 2).Type.IsString():
		from, to := x.arg(op, 1), x.arg(op, 2)
		spec := spaceSpec("get_from_to_matrix").
			ResultSym(R, false, uniform).
			ArgSym(from, false, uniform).
			ArgSym(to, false, uniform)
		_, err := x.call(spec, []*oso.Symbol{R, from, to})
		return err
	case n == 3:
		x.copySymbol(R, x.arg(op, 2))
		return x.prependMatrixFrom(R, x.arg(op, 1), uniform)
	case n == 17 || n == 18:
		first := n - 16
		vals := make([]*oso.Symbol, 16)
		for i := range vals {
			vals[i] = x.arg(op, first+i)
		}
		for i, v := range vals {
			x.store(R, 0, i, x.load(v, 0, 0))
		}
		x.zeroDerivs(R)
		if n == 18 {
			return x.prependMatrixFrom(R, x.arg(op, 1), uniform)
		}
		return nil
	}
	return errArgs(op)
}

// genGetMatrix is R = getmatrix(from, to, M), R telling whether both
// spaces are known.
func genGetMatrix(x *context, op *oso.Opcode) error {
	if op.NArgs() != 4 {
		return errArgs(op)
	}
	R, from, to, M := x.arg(op, 0), x.arg(op, 1), x.arg(op, 2), x.arg(op, 3)
	uniform := from.Uniform && to.Uniform
	if err := checkResult(R, uniform); err != nil {
		return err
	}
	if err := checkResult(M, uniform); err != nil {
		return err
	}
	spec := spaceSpec("getmatrix").
		ResultSym(R, false, uniform).
		ArgSym(M, false, uniform).SetOutput(1).
		ArgSym(from, false, uniform).
		ArgSym(to, false, uniform)
	_, err := x.call(spec, []*oso.Symbol{R, M, from, to})
	return err
}

// genTransform covers transform(M, p), transform(to, p) and
// transform(from, to, p) and their vector and normal forms.
func genTransform(x *context, op *oso.Opcode) error {
	n := op.NArgs()
	if n != 3 && n != 4 {
		return errArgs(op)
	}
	R, P := x.arg(op, 0), x.arg(op, n-1)
	uniform := x.uniformFrom(op, 1)
	if err := checkResult(R, uniform); err != nil {
		return err
	}
	var from, to, m *oso.Symbol
	switch {
	case n == 3 && x.arg(op, 1).Type.IsMatrix():
		m = x.arg(op, 1)
	case n == 3:
		from, to = constString("common"), x.arg(op, 1)
	default:
		from, to = x.arg(op, 1), x.arg(op, 2)
	}
	kind := tripleKind(op.Kind)
	if m == nil {
		f, fok := x.spaceName(from)
		t, tok := x.spaceName(to)
		if fok && tok && f == t {
			x.copySymbol(R, P)
			return nil
		}
		if r := x.opts.Renderer; r != nil && r.TransformPoints(f, t) {
			return fmt.Errorf("%w: renderer transform of %s from %q to %q", ErrNotImplemented, kind, f, t)
		}
		var err error
		if m, err = x.fromToMatrix(from, to); err != nil {
			return err
		}
	}
	return x.transformTriple(R, P, m, kind, uniform)
}
