package batched

import (
	"fmt"

	"github.com/AlexMWells/OpenShadingLanguage/pkg/oso"
	"github.com/AlexMWells/OpenShadingLanguage/pkg/wir"
)

// genRegex is R = regex_search(subject, pattern) or, with a results
// array for the submatch offsets, R = regex_search(subject, results,
// pattern). regex_match anchors the pattern at both ends.
func genRegex(x *context, op *oso.Opcode) error {
	n := op.NArgs()
	if n != 3 && n != 4 {
		return errArgs(op)
	}
	R, subject, pattern := x.arg(op, 0), x.arg(op, 1), x.arg(op, n-1)
	uniform := subject.Uniform && pattern.Uniform
	if err := checkResult(R, uniform); err != nil {
		return err
	}
	spec := x.newSpec(op.Name, uniform).
		ResultSym(R, false, uniform).
		ArgSym(subject, false, uniform)
	args := []*oso.Symbol{R, subject}
	var rest []wir.Value
	if n == 4 {
		results := x.arg(op, 2)
		if !results.Type.IsIntBased() {
			return fmt.Errorf("%w: regex results of type %s", ErrContract, results.Type)
		}
		if err := checkResult(results, uniform); err != nil {
			return err
		}
		spec.ArgSym(results, false, uniform).SetOutput(2)
		args = append(args, results)
		rest = append(rest, x.b.ConstInt(int32(results.Type.NumElements())))
	}
	spec.ArgSym(pattern, false, uniform)
	args = append(args, pattern)
	_, err := x.call(spec, args, rest...)
	return err
}

// genSplit is R = split(str, results [, sep [, maxsplit]]). The
// separator defaults to white space and maxsplit to the length of
// results.
func genSplit(x *context, op *oso.Opcode) error {
	n := op.NArgs()
	if n < 3 || n > 5 {
		return errArgs(op)
	}
	R, str, results := x.arg(op, 0), x.arg(op, 1), x.arg(op, 2)
	if !results.Type.IsArray() || !results.Type.IsStringBased() {
		return fmt.Errorf("%w: split results of type %s", ErrContract, results.Type)
	}
	length := int32(results.Type.NumElements())
	sep, maxsplit := constString(""), constInt(length)
	if n > 3 {
		sep = x.arg(op, 3)
	}
	if n > 4 {
		maxsplit = x.arg(op, 4)
	}
	uniform := str.Uniform && sep.Uniform && maxsplit.Uniform
	if err := checkResult(R, uniform); err != nil {
		return err
	}
	if err := checkResult(results, uniform); err != nil {
		return err
	}
	spec := x.newSpec("split", uniform).
		ResultSym(R, false, uniform).
		ArgSym(str, false, uniform).
		ArgSym(results, false, uniform).SetOutput(2).
		ArgSym(sep, false, uniform).
		ArgSym(maxsplit, false, uniform)
	_, err := x.call(spec, []*oso.Symbol{R, str, results, sep, maxsplit}, x.b.ConstInt(length))
	return err
}

// genRaytype is R = raytype(name). Names the renderer knows at compile
// time test a bit of the raytype global directly.
func genRaytype(x *context, op *oso.Opcode) error {
	if op.NArgs() != 2 {
		return errArgs(op)
	}
	R, name := x.arg(op, 0), x.arg(op, 1)
	if !name.Type.IsString() {
		return fmt.Errorf("%w: raytype of %s", ErrContract, name.Type)
	}
	raytype := x.globalSym("raytype", oso.TypeInt)
	uniform := name.Uniform && raytype.Uniform
	if err := checkResult(R, uniform); err != nil {
		return err
	}
	if r := x.opts.Renderer; r != nil && name.IsConstant() {
		if bit := r.RaytypeBit(name.ConstString(0)); bit != 0 {
			b := x.b
			hit := b.Cmp(wir.Ne, b.And(x.load(raytype, 0, 0), b.ConstInt(bit)), b.ConstInt(0))
			x.store(R, 0, 0, b.Unary(wir.BoolToInt, hit))
			x.zeroDerivs(R)
			return nil
		}
	}
	spec := x.newSpec("raytype_name", uniform).
		ResultSym(R, false, uniform).
		ArgSym(raytype, false, uniform).
		ArgSym(name, false, uniform)
	_, err := x.call(spec, []*oso.Symbol{R, raytype, name})
	return err
}
