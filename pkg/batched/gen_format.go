package batched

import (
	"fmt"
	"strings"

	"github.com/AlexMWells/OpenShadingLanguage/pkg/funcspec"
	"github.com/AlexMWells/OpenShadingLanguage/pkg/oso"
	"github.com/AlexMWells/OpenShadingLanguage/pkg/wir"
)

// formatConversions end a directive.
const formatConversions = "cdefgimnopsuvxX"

// rewriteFormat adapts format to the types of the values it prints. Each
// directive is repeated for every component of an aggregate or array,
// space separated, and its conversion is changed to one suiting the
// base type. used is the number of arguments the directives consume.
func rewriteFormat(format string, types []oso.TypeSpec) (out string, used int, err error) {
	var sb strings.Builder
	for i := 0; i < len(format); {
		if format[i] != '%' {
			sb.WriteByte(format[i])
			i++
			continue
		}
		if i+1 < len(format) && format[i+1] == '%' {
			sb.WriteString("%%")
			i += 2
			continue
		}
		j := i + 1
		for j < len(format) && strings.IndexByte(formatConversions, format[j]) < 0 {
			j++
		}
		if j < len(format) {
			j++
		}
		directive := []byte(format[i:j])
		i = j
		if used >= len(types) {
			return "", 0, fmt.Errorf("%w: Mismatch between format string and arguments", ErrFormat)
		}
		t := types[used]
		used++
		if t.IsClosure() {
			return "", 0, fmt.Errorf("%w: printing closures", ErrNotImplemented)
		}
		last := len(directive) - 1
		conv := directive[last]
		switch {
		case t.IsStringBased() && conv != 's':
			directive[last] = 's'
		case t.IsIntBased() && strings.IndexByte("dioux", conv) < 0 && conv != 'X':
			directive[last] = 'd'
		case t.IsFloatBased() && strings.IndexByte("fgcemnpv", conv) < 0:
			directive[last] = 'f'
		}
		for k := 0; k < t.Components(); k++ {
			if k > 0 {
				sb.WriteByte(' ')
			}
			sb.Write(directive)
		}
	}
	return sb.String(), used, nil
}

// formatPrefix is prepended to the text of error and warning.
func formatPrefix(op *oso.Opcode, shader string) string {
	if op.Kind == oso.OpError || op.Kind == oso.OpWarning {
		return fmt.Sprintf("Shader %s [%s]: ", op.Name, shader)
	}
	return ""
}

// formatArgs loads every component of the printed symbols. Uniform ones
// are scalars; varying ones stay wide until a lane is picked.
func (x *context) formatArgs(syms []*oso.Symbol) []wir.Value {
	var vals []wir.Value
	for _, s := range syms {
		for c := 0; c < s.Type.Components(); c++ {
			vals = append(vals, x.load(s, 0, c))
		}
	}
	return vals
}

// prepareFormat checks that op's format is constant and rewrites it.
// first is the index of the format argument.
func (x *context) prepareFormat(op *oso.Opcode, first int) (string, []*oso.Symbol, error) {
	fmtSym := x.arg(op, first)
	if !fmtSym.IsConstant() || !fmtSym.Type.IsString() {
		return "", nil, fmt.Errorf("%w: %s must currently have constant format", ErrFormat, op.Name)
	}
	var syms []*oso.Symbol
	var types []oso.TypeSpec
	for i := first + 1; i < op.NArgs(); i++ {
		s := x.arg(op, i)
		syms = append(syms, s)
		types = append(types, s.Type)
	}
	f, used, err := rewriteFormat(fmtSym.ConstString(0), types)
	if err != nil {
		return "", nil, err
	}
	return formatPrefix(op, x.inst.ShaderName) + f, syms[:used], nil
}

// perLane calls emit once for every active lane, in lane order, with the
// values of that lane and the lane's bit as mask.
func (x *context) perLane(vals []wir.Value, emit func(lane, bit wir.Value, vals []wir.Value)) {
	b := x.b
	mask := b.MaskBits(x.eng.CurrentMask())
	counter := x.temp(wir.Int, false, 1)
	b.Store(counter, 0, b.ConstInt(0))
	cond := x.newBlock("lane_cond")
	body := x.newBlock("lane_body")
	active := x.newBlock("lane_active")
	step := x.newBlock("lane_step")
	after := x.newBlock("after_lanes")

	b.Br(cond)
	lane := b.Load(counter, 0)
	b.CondBr(b.Cmp(wir.Lt, lane, b.ConstInt(int32(x.opts.Width))), body, after)

	bit := b.Binary(wir.Shl, b.ConstInt(1), lane)
	b.CondBr(b.Cmp(wir.Ne, b.And(mask, bit), b.ConstInt(0)), active, step)

	scalars := make([]wir.Value, len(vals))
	for i, v := range vals {
		if b.TypeOf(v).Wide {
			v = b.Extract(v, lane)
		}
		scalars[i] = v
	}
	emit(lane, bit, scalars)
	b.Br(step)

	b.Store(counter, 0, b.Add(lane, b.ConstInt(1)))
	b.Br(cond)
	b.SetInsertPoint(after)
}

// genPrintf covers printf, error, warning and fprintf. The runtime
// formats once per call, so varying values are printed lane by lane.
func genPrintf(x *context, op *oso.Opcode) error {
	first := 0
	if op.Kind == oso.OpFprintf {
		first = 1
	}
	if op.NArgs() <= first {
		return errArgs(op)
	}
	format, syms, err := x.prepareFormat(op, first)
	if err != nil {
		return err
	}
	name, err := x.batchedName(op.Name, true)
	if err != nil {
		return err
	}
	var lead []wir.Value
	if first == 1 {
		lead = append(lead, x.load(x.arg(op, 0), 0, 0))
	}
	lead = append(lead, x.b.ConstString(format))
	vals := append(lead, x.formatArgs(syms)...)
	uniform := true
	for _, v := range vals {
		uniform = uniform && !x.b.TypeOf(v).Wide
	}
	if uniform {
		x.b.Call(name, wir.VoidType, append(vals, x.b.MaskBits(x.eng.CurrentMask()))...)
		return nil
	}
	x.perLane(vals, func(_, bit wir.Value, vals []wir.Value) {
		x.b.Call(name, wir.VoidType, append(vals, bit)...)
	})
	return nil
}

// genFormat is R = format(fmt, ...).
func genFormat(x *context, op *oso.Opcode) error {
	if op.NArgs() < 2 {
		return errArgs(op)
	}
	R := x.arg(op, 0)
	format, syms, err := x.prepareFormat(op, 1)
	if err != nil {
		return err
	}
	vals := append([]wir.Value{x.b.ConstString(format)}, x.formatArgs(syms)...)
	uniform := true
	for _, s := range syms {
		uniform = uniform && s.Uniform
	}
	if err := checkResult(R, uniform); err != nil {
		return err
	}
	if uniform {
		name, err := funcspec.Resolve(funcspec.New("format").Unbatch(), x.opts.Width, x.opts.Catalog)
		if err != nil {
			return err
		}
		x.store(R, 0, 0, x.b.Call(name, wir.Scalar(wir.String), vals...))
		return nil
	}
	name, err := x.batchedName("format", true)
	if err != nil {
		return err
	}
	out := x.b.Addr(x.storageOf(R).slot, 0)
	x.perLane(vals, func(_, bit wir.Value, vals []wir.Value) {
		x.b.Call(name, wir.VoidType, append([]wir.Value{out}, append(vals, bit)...)...)
	})
	return nil
}
