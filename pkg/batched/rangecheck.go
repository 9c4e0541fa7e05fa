package batched

import (
	"github.com/AlexMWells/OpenShadingLanguage/pkg/funcspec"
	"github.com/AlexMWells/OpenShadingLanguage/pkg/oso"
	"github.com/AlexMWells/OpenShadingLanguage/pkg/wir"
)

// rangeContext is what the runtime reports along with an out of range
// index: the container, the source position and the layer.
func (x *context) rangeContext(container *oso.Symbol) []wir.Value {
	b := x.b
	file, line := "", 0
	if x.op != nil {
		file, line = x.op.SourceFile, x.op.SourceLine
	}
	return []wir.Value{
		b.ConstString(container.Name),
		b.ConstString(file),
		b.ConstInt(int32(line)),
		b.ConstString(x.g.Name),
		b.ConstInt(int32(x.layer)),
		b.ConstString(x.inst.LayerName),
		b.ConstString(x.inst.ShaderName),
	}
}

func clampConst(v int32, n int) int32 {
	switch {
	case v < 0:
		return 0
	case int(v) >= n:
		return int32(n - 1)
	}
	return v
}

// index loads the int idx used to address one of the n elements of
// container. With range checking on, indices that are not known to be
// in range are checked at run time, which reports and clamps offenders.
// Constant indices are otherwise clamped here.
func (x *context) index(idx *oso.Symbol, n int, container *oso.Symbol) (wir.Value, error) {
	b := x.b
	if idx.IsConstant() {
		if idx.ConstIndexInRange(n) || !x.opts.RangeChecking {
			return b.ConstInt(clampConst(idx.ConstInt(0), n)), nil
		}
	}
	v := x.loadAs(idx, 0, 0, wir.Int, false)
	if !x.opts.RangeChecking {
		return v, nil
	}
	length := b.ConstInt(int32(n))
	if !b.TypeOf(v).Wide {
		name, err := funcspec.Resolve(funcspec.New("range_check").Unbatch(), x.opts.Width, x.opts.Catalog)
		if err != nil {
			return wir.NoValue, err
		}
		args := append([]wir.Value{v, length}, x.rangeContext(container)...)
		return b.Call(name, wir.IntType, args...), nil
	}
	name, err := x.batchedName("range_check", true)
	if err != nil {
		return wir.NoValue, err
	}
	mask := x.eng.CurrentMask()
	t := x.temp(wir.Int, true, 1)
	b.StoreMasked(t, 0, v, mask)
	args := append([]wir.Value{b.Addr(t, 0), length}, x.rangeContext(container)...)
	args = append(args, b.MaskBits(mask))
	b.Call(name, wir.VoidType, args...)
	return b.Load(t, 0), nil
}
