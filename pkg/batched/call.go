package batched

import (
	"fmt"

	"github.com/AlexMWells/OpenShadingLanguage/pkg/funcspec"
	"github.com/AlexMWells/OpenShadingLanguage/pkg/oso"
	"github.com/AlexMWells/OpenShadingLanguage/pkg/wir"
)

// ref passes sym by pointer. A symbol whose storage does not have the
// width or derivatives the routine expects is copied into a temp first.
func (x *context) ref(sym *oso.Symbol, derivs, wide bool) wir.Value {
	if st, ok := x.storage[sym]; ok && st.wide == wide && (!derivs || st.derivs) {
		return x.b.Addr(st.slot, 0)
	}
	t := x.tempSym(sym.Type, !wide, derivs)
	x.copySymbol(t, sym)
	return x.b.Addr(x.storage[t].slot, 0)
}

// outRef passes sym by pointer for the routine to write. The returned
// func must run after the call: it moves the result out of a temp when
// one was needed and clears derivatives the routine did not compute.
func (x *context) outRef(sym *oso.Symbol, derivs, wide bool) (wir.Value, func()) {
	st := x.storageOf(sym)
	if st.wide == wide && (!derivs || st.derivs) {
		done := func() {}
		if st.derivs && !derivs {
			done = func() { x.zeroDerivs(sym) }
		}
		return x.b.Addr(st.slot, 0), done
	}
	t := x.tempSym(sym.Type, !wide, derivs)
	// routines may read what they write
	if wide || !st.wide {
		x.copySymbol(t, sym)
	}
	return x.b.Addr(x.storage[t].slot, 0), func() { x.copySymbol(sym, t) }
}

// call emits a call of the routine spec describes. args[i] is the
// symbol passed for spec.Args[i]; rest follows them unmangled, then the
// lane mask when the spec is masked.
func (x *context) call(spec *funcspec.Spec, args []*oso.Symbol, rest ...wir.Value) (wir.Value, error) {
	if len(args) != len(spec.Args) {
		x.fail("%s: %d symbols for %d arguments", spec.Base, len(args), len(spec.Args))
	}
	name, err := funcspec.Resolve(spec, x.opts.Width, x.opts.Catalog)
	if err != nil {
		return wir.NoValue, err
	}
	b := x.b
	byValue := spec.ResultByValue()
	vals := make([]wir.Value, 0, len(args)+len(rest)+1)
	var after []func()
	for i, a := range spec.Args {
		sym := args[i]
		wide := spec.Batched() && !a.Uniform
		switch {
		case i == 0 && byValue:
		case a.Out || (i == 0 && spec.HasResult()):
			p, done := x.outRef(sym, a.Derivs, wide)
			vals = append(vals, p)
			after = append(after, done)
		case spec.Pass(i) == funcspec.ByValue:
			v := x.load(sym, 0, 0)
			if b.TypeOf(v).Wide {
				v = b.Extract(v, b.FirstLane(x.eng.CurrentMask()))
			}
			vals = append(vals, v)
		default:
			vals = append(vals, x.ref(sym, a.Derivs, wide))
		}
	}
	vals = append(vals, rest...)
	if spec.Masked() {
		vals = append(vals, b.MaskBits(x.eng.CurrentMask()))
	}
	ret := wir.VoidType
	if byValue {
		ret = wir.Scalar(elemOf(spec.Args[0].Type))
	}
	r := b.Call(name, ret, vals...)
	for _, done := range after {
		done()
	}
	if byValue {
		x.store(args[0], 0, 0, r)
		x.zeroDerivs(args[0])
	}
	return r, nil
}

// callFixed emits a call of a routine whose name carries no argument
// codes.
func (x *context) callFixed(name string, ret wir.Type, args ...wir.Value) (wir.Value, error) {
	if c := x.opts.Catalog; c != nil && !c.Has(name) {
		return wir.NoValue, fmt.Errorf("%w: %s", funcspec.ErrUnknownVariant, name)
	}
	return x.b.Call(name, ret, args...), nil
}

// batchedName is the name of a routine of the batched library that takes
// no mangled arguments.
func (x *context) batchedName(base string, masked bool) (string, error) {
	s := funcspec.New(base)
	if masked {
		s.Mask()
	}
	return funcspec.Resolve(s, x.opts.Width, x.opts.Catalog)
}
