package batched

import (
	"fmt"

	"github.com/AlexMWells/OpenShadingLanguage/pkg/oso"
	"github.com/AlexMWells/OpenShadingLanguage/pkg/wir"
)

// genUseParam runs the lazy upstream layers feeding the connected
// parameters the op names, for the executing lanes they have not run on.
func genUseParam(x *context, op *oso.Opcode) error {
	for i := 0; i < op.NArgs(); i++ {
		sym := x.arg(op, i)
		if !sym.IsParam() || !sym.Connected {
			continue
		}
		for _, con := range x.inst.IncomingFor(op.Args[i]) {
			if !x.lazy(con.SrcLayer) {
				continue
			}
			x.callLayer(con.SrcLayer)
		}
	}
	return nil
}

// callLayer calls the function of layer li for the lanes of the current
// mask not in its run mask. Once called outside any conditional code the
// layer is known to have run for the rest of this layer.
func (x *context) callLayer(li int) {
	if x.alreadyRun[li] {
		return
	}
	b := x.b
	run := x.runSlots[li]
	bits := b.And(b.MaskBits(x.eng.CurrentMask()), b.Not(b.Load(run, 0)))
	call := x.newBlock("run_layer")
	after := x.newBlock("after_run_layer")
	b.CondBr(b.Cmp(wir.Ne, bits, b.ConstInt(0)), call, after)
	b.CallFunction(LayerFunction(x.g.Layers[li]), b.MaskFrom(bits))
	b.Br(after)
	if !x.inConditional[x.opnum] {
		x.alreadyRun[li] = true
	}
}

// genGetAttribute covers the forms
//
//	R = getattribute(name, dest)
//	R = getattribute(object, name, dest)
//	R = getattribute(name, index, dest)
//	R = getattribute(object, name, index, dest)
//
// The renderer's answer may vary by lane unless analysis marked the
// attribute uniform.
func genGetAttribute(x *context, op *oso.Opcode) error {
	n := op.NArgs()
	if n < 3 || n > 5 {
		return errArgs(op)
	}
	R, dest := x.arg(op, 0), x.arg(op, n-1)
	object, name, index := constString(""), x.arg(op, 1), (*oso.Symbol)(nil)
	switch {
	case n == 4 && x.arg(op, 2).Type.IsString():
		object, name = x.arg(op, 1), x.arg(op, 2)
	case n == 4:
		index = x.arg(op, 2)
	case n == 5:
		object, name, index = x.arg(op, 1), x.arg(op, 2), x.arg(op, 3)
	}
	if !object.Type.IsString() || !name.Type.IsString() {
		return fmt.Errorf("%w: attribute object and name must be strings", ErrContract)
	}
	idx := x.b.ConstInt(-1)
	if index != nil {
		if !index.Type.IsInt() {
			return fmt.Errorf("%w: attribute index of type %s", ErrContract, index.Type)
		}
		if !index.Uniform {
			return fmt.Errorf("%w: varying attribute array index", ErrNotImplemented)
		}
		idx = x.load(index, 0, 0)
	}
	uniform := op.AnalysisFlag && object.Uniform && name.Uniform
	if err := checkResult(R, uniform); err != nil {
		return err
	}
	if err := checkResult(dest, uniform); err != nil {
		return err
	}
	derivs := x.hasDerivs(dest)
	spec := x.newSpec("get_attribute", uniform).
		ResultSym(R, false, uniform).
		ArgSym(object, false, uniform).
		ArgSym(name, false, uniform).
		ArgSym(dest, derivs, uniform).SetOutput(3)
	count := x.b.ConstInt(int32(dest.Type.NumElements()))
	_, err := x.call(spec, []*oso.Symbol{R, object, name, dest}, idx, count)
	return err
}
