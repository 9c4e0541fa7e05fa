package batched

import (
	"github.com/AlexMWells/OpenShadingLanguage/pkg/oso"
)

// stepFunctions are piecewise constant: their derivatives are zero.
var stepFunctions = map[string]bool{
	"floor": true,
	"ceil":  true,
	"round": true,
	"sign":  true,
	"trunc": true,
	"step":  true,
	"logb":  true,
}

// callGeneric calls the library routine base with R as result, once when
// every input is uniform and masked otherwise.
func (x *context) callGeneric(base string, R *oso.Symbol, inputs ...*oso.Symbol) error {
	uniform := true
	derivs := false
	for _, in := range inputs {
		uniform = uniform && in.Uniform
		derivs = derivs || x.hasDerivs(in)
	}
	if err := checkResult(R, uniform); err != nil {
		return err
	}
	derivs = derivs && x.hasDerivs(R) && !stepFunctions[base]
	spec := x.newSpec(base, uniform).ResultSym(R, derivs, uniform)
	for _, in := range inputs {
		spec.ArgSym(in, derivs && x.hasDerivs(in), uniform)
	}
	args := append([]*oso.Symbol{R}, inputs...)
	_, err := x.call(spec, args)
	return err
}

// genGeneric covers the math library: the op name is the routine name,
// argument 0 the result.
func genGeneric(x *context, op *oso.Opcode) error {
	if op.NArgs() < 2 {
		return errArgs(op)
	}
	inputs := make([]*oso.Symbol, op.NArgs()-1)
	for i := range inputs {
		inputs[i] = x.arg(op, i+1)
	}
	return x.callGeneric(op.Name, x.arg(op, 0), inputs...)
}

// genSinCos is sincos(x, s, c) as a sin and a cos.
func genSinCos(x *context, op *oso.Opcode) error {
	if op.NArgs() != 3 {
		return errArgs(op)
	}
	A, S, C := x.arg(op, 0), x.arg(op, 1), x.arg(op, 2)
	if err := x.callGeneric("sin", S, A); err != nil {
		return err
	}
	return x.callGeneric("cos", C, A)
}
