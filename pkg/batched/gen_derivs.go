package batched

import (
	"github.com/AlexMWells/OpenShadingLanguage/pkg/oso"
)

// genDeriv reads the x or y derivative channel. Values without
// derivatives have none to give and read as zero.
func genDeriv(x *context, op *oso.Opcode) error {
	R, A := x.arg(op, 0), x.arg(op, 1)
	if err := checkResult(R, A.Uniform); err != nil {
		return err
	}
	d := 1
	if op.Kind == oso.OpDy {
		d = 2
	}
	n := R.Type.Components()
	for c := 0; c < n; c++ {
		x.store(R, 0, c, x.load(A, d, c))
	}
	x.zeroDerivs(R)
	return nil
}

// genDz is dPdz for P and zero for everything else.
func genDz(x *context, op *oso.Opcode) error {
	R, A := x.arg(op, 0), x.arg(op, 1)
	if err := checkResult(R, A.Uniform); err != nil {
		return err
	}
	if A.SymType == oso.SymGlobal && A.Name == "P" {
		dPdz := x.globalSym("dPdz", oso.TypeVector)
		if err := checkResult(R, dPdz.Uniform); err != nil {
			return err
		}
		for c := 0; c < 3; c++ {
			x.store(R, 0, c, x.load(dPdz, 0, c))
		}
		x.zeroDerivs(R)
		return nil
	}
	x.zeroSymbol(R)
	return nil
}

func genFilterWidth(x *context, op *oso.Opcode) error {
	R, X := x.arg(op, 0), x.arg(op, 1)
	if err := checkResult(R, X.Uniform); err != nil {
		return err
	}
	if !x.hasDerivs(X) {
		x.zeroSymbol(R)
		return nil
	}
	spec := x.newSpec("filterwidth", X.Uniform).
		ResultSym(R, false, X.Uniform).
		ArgSym(X, true, X.Uniform)
	_, err := x.call(spec, []*oso.Symbol{R, X})
	return err
}

// surface calls a routine of the screen derivatives of a point: area
// and calculatenormal. A point without derivatives spans no area.
func (x *context) surface(op *oso.Opcode, base string) error {
	R, P := x.arg(op, 0), x.arg(op, 1)
	if err := checkResult(R, P.Uniform); err != nil {
		return err
	}
	if !x.hasDerivs(P) {
		x.zeroSymbol(R)
		return nil
	}
	spec := x.newSpec(base, P.Uniform).
		ResultSym(R, false, P.Uniform).
		ArgSym(P, true, P.Uniform)
	_, err := x.call(spec, []*oso.Symbol{R, P})
	return err
}

func genArea(x *context, op *oso.Opcode) error { return x.surface(op, "area") }

func genCalculateNormal(x *context, op *oso.Opcode) error {
	return x.surface(op, "calculatenormal")
}
