package batched

import (
	"fmt"

	"github.com/AlexMWells/OpenShadingLanguage/pkg/oso"
	"github.com/AlexMWells/OpenShadingLanguage/pkg/wir"
)

// storage is where a symbol lives: comps elements of elem, followed by
// the x and y derivatives of every element when derivs is set.
type storage struct {
	slot   wir.Slot
	elem   wir.Elem
	wide   bool
	comps  int
	derivs bool
}

func (s storage) offset(d, c int) int { return d*s.comps + c }

func (s storage) channels() int {
	if s.derivs {
		return 3
	}
	return 1
}

func elemOf(t oso.TypeSpec) wir.Elem {
	switch {
	case t.IsFloatBased():
		return wir.Float
	case t.IsStringBased():
		return wir.String
	default:
		return wir.Int
	}
}

func (c *compiler) newStorage(name string, t oso.TypeSpec, wide, derivs bool, scope wir.SlotScope, owner string) storage {
	st := storage{
		elem:   elemOf(t),
		wide:   wide,
		comps:  t.Components(),
		derivs: derivs && t.IsFloatBased(),
	}
	st.slot = c.mod.NewSlot(wir.SlotInfo{
		Name:  name,
		Elem:  st.elem,
		Wide:  wide,
		Len:   st.comps * st.channels(),
		Scope: scope,
		Owner: owner,
	})
	return st
}

func (x *context) storageOf(sym *oso.Symbol) storage {
	st, ok := x.storage[sym]
	if !ok {
		x.fail("no storage for %s", sym.Name)
	}
	return st
}

// hasDerivs reports whether sym carries derivatives that can be read.
func (x *context) hasDerivs(sym *oso.Symbol) bool {
	if sym.IsConstant() {
		return false
	}
	st, ok := x.storage[sym]
	return ok && st.derivs
}

func (x *context) zero(e wir.Elem, wide bool) wir.Value {
	b := x.b
	var v wir.Value
	switch e {
	case wir.Float:
		v = b.ConstFloat(0)
	case wir.String:
		v = b.ConstString("")
	case wir.Bool:
		v = b.ConstBool(false)
	default:
		v = b.ConstInt(0)
	}
	if wide {
		v = b.Broadcast(v)
	}
	return v
}

// payload is component c of sym's constant value.
func (x *context) payload(sym *oso.Symbol, c int) wir.Value {
	if sym.Type.Components() == 1 {
		c = 0
	}
	switch elemOf(sym.Type) {
	case wir.Float:
		return x.b.ConstFloat(sym.ConstFloat(c))
	case wir.String:
		return x.b.ConstString(sym.ConstString(c))
	default:
		return x.b.ConstInt(sym.ConstInt(c))
	}
}

// convert changes v to element type e, widening it when wide is set.
func (x *context) convert(v wir.Value, e wir.Elem, wide bool) wir.Value {
	b := x.b
	t := b.TypeOf(v)
	switch {
	case t.Elem == e:
	case t.Elem == wir.Int && e == wir.Float:
		v = b.Unary(wir.IntToFloat, v)
	case t.Elem == wir.Float && e == wir.Int:
		v = b.Unary(wir.FloatToInt, v)
	case t.Elem == wir.Bool && e == wir.Int:
		v = b.Unary(wir.BoolToInt, v)
	case t.Elem == wir.Bool && e == wir.Float:
		v = b.Unary(wir.IntToFloat, b.Unary(wir.BoolToInt, v))
	default:
		x.fail("cannot convert %s to %s", t, e)
	}
	if wide {
		v = b.Widen(v)
	}
	return v
}

// load reads channel d (0 value, 1 x derivative, 2 y derivative) of
// component c of sym. Constants fold to immediates, missing derivatives
// read as zero and scalars read the same value for every component.
func (x *context) load(sym *oso.Symbol, d, c int) wir.Value {
	if sym.IsConstant() {
		if d > 0 {
			return x.zero(elemOf(sym.Type), false)
		}
		return x.payload(sym, c)
	}
	st := x.storageOf(sym)
	if d > 0 && !st.derivs {
		return x.zero(st.elem, st.wide)
	}
	if st.comps == 1 {
		c = 0
	}
	if c >= st.comps {
		x.fail("component %d of %s", c, sym.Name)
	}
	return x.b.Load(st.slot, st.offset(d, c))
}

// loadAs is load converted to e and widened when wide is set.
func (x *context) loadAs(sym *oso.Symbol, d, c int, e wir.Elem, wide bool) wir.Value {
	return x.convert(x.load(sym, d, c), e, wide)
}

// store writes v to channel d of component c of sym for the executing
// lanes. Derivative channels of symbols without derivatives are dropped.
func (x *context) store(sym *oso.Symbol, d, c int, v wir.Value) {
	if sym.IsConstant() {
		x.fail("store to constant %s", sym.Name)
	}
	st := x.storageOf(sym)
	if d > 0 && !st.derivs {
		return
	}
	x.storeTo(st, st.offset(d, c), v, x.eng.CurrentMask())
}

func (x *context) storeTo(st storage, off int, v, mask wir.Value) {
	b := x.b
	if b.TypeOf(v).Wide && !st.wide {
		x.fail("varying value stored into uniform storage %s", x.mod.Slot(st.slot).Name)
	}
	v = x.convert(v, st.elem, st.wide)
	if st.wide {
		b.StoreMasked(st.slot, off, v, mask)
	} else {
		b.Store(st.slot, off, v)
	}
}

// zeroDerivs clears the derivatives of sym.
func (x *context) zeroDerivs(sym *oso.Symbol) {
	if !x.hasDerivs(sym) {
		return
	}
	st := x.storageOf(sym)
	z := x.zero(st.elem, st.wide)
	for d := 1; d <= 2; d++ {
		for c := 0; c < st.comps; c++ {
			x.store(sym, d, c, z)
		}
	}
}

// zeroSymbol clears every channel of sym.
func (x *context) zeroSymbol(sym *oso.Symbol) {
	st := x.storageOf(sym)
	z := x.zero(st.elem, st.wide)
	for d := 0; d < st.channels(); d++ {
		for c := 0; c < st.comps; c++ {
			x.store(sym, d, c, z)
		}
	}
}

// copySymbol assigns src to dst component by component, converting
// element types, broadcasting scalars and copying derivatives when dst
// has them.
func (x *context) copySymbol(dst, src *oso.Symbol) {
	st := x.storageOf(dst)
	n := st.comps
	if src.Type.Components() > 1 && src.Type.Components() < n {
		n = src.Type.Components()
	}
	diag := dst.Type.IsMatrix() && src.Type.Components() == 1
	channels := 1
	if st.derivs && x.hasDerivs(src) {
		channels = 3
	}
	// read everything first: dst and src may share storage
	vals := make([]wir.Value, 0, n*channels)
	for d := 0; d < channels; d++ {
		for c := 0; c < n; c++ {
			if diag && c%5 != 0 {
				vals = append(vals, x.zero(st.elem, false))
				continue
			}
			vals = append(vals, x.load(src, d, c))
		}
	}
	for d := 0; d < channels; d++ {
		for c := 0; c < n; c++ {
			x.store(dst, d, c, vals[d*n+c])
		}
	}
	if st.derivs && channels == 1 {
		x.zeroDerivs(dst)
	}
}

type tempKey struct {
	elem wir.Elem
	wide bool
	n    int
}

type takenSlot struct {
	key  tempKey
	slot wir.Slot
}

// tempScope hands out scratch slots with stack discipline: the slots
// taken since a mark go back to the free lists when the mark is
// released, to be reused by later ops.
type tempScope struct {
	free  map[tempKey][]wir.Slot
	taken []takenSlot
	count int
}

func newTempScope() tempScope {
	return tempScope{free: make(map[tempKey][]wir.Slot)}
}

func (t *tempScope) mark() int { return len(t.taken) }

func (t *tempScope) release(mark int) {
	for _, ts := range t.taken[mark:] {
		t.free[ts.key] = append(t.free[ts.key], ts.slot)
	}
	t.taken = t.taken[:mark]
}

// temp returns a scratch slot of n elements.
func (x *context) temp(e wir.Elem, wide bool, n int) wir.Slot {
	k := tempKey{elem: e, wide: wide, n: n}
	t := &x.temps
	var s wir.Slot
	if fl := t.free[k]; len(fl) > 0 {
		s = fl[len(fl)-1]
		t.free[k] = fl[:len(fl)-1]
	} else {
		s = x.mod.NewSlot(wir.SlotInfo{
			Name:  fmt.Sprintf("%s.tmp%d", x.inst.LayerName, t.count),
			Elem:  e,
			Wide:  wide,
			Len:   n,
			Scope: wir.Local,
			Owner: x.fn,
		})
		t.count++
	}
	t.taken = append(t.taken, takenSlot{key: k, slot: s})
	return s
}

// tempSym is a scratch symbol of type t backed by a temp slot.
func (x *context) tempSym(t oso.TypeSpec, uniform, derivs bool) *oso.Symbol {
	derivs = derivs && t.IsFloatBased()
	st := storage{elem: elemOf(t), wide: !uniform, comps: t.Components(), derivs: derivs}
	st.slot = x.temp(st.elem, st.wide, st.comps*st.channels())
	sym := &oso.Symbol{
		Name:      x.mod.Slot(st.slot).Name,
		Type:      t,
		SymType:   oso.SymTemp,
		Uniform:   uniform,
		HasDerivs: derivs,
	}
	x.storage[sym] = st
	return sym
}

// Constant symbols made up by the generator. They fold to immediates and
// get a temp slot only when passed by reference.

func constString(s string) *oso.Symbol {
	return &oso.Symbol{Name: fmt.Sprintf("%q", s), Type: oso.TypeString, SymType: oso.SymConst, Uniform: true, Strings: []string{s}}
}

func constInt(v int32) *oso.Symbol {
	return &oso.Symbol{Name: fmt.Sprint(v), Type: oso.TypeInt, SymType: oso.SymConst, Uniform: true, Ints: []int32{v}}
}

// globalSym is a symbol standing for a shader global the program does not
// name itself.
func (x *context) globalSym(name string, t oso.TypeSpec) *oso.Symbol {
	st := x.global(name, t)
	sym := &oso.Symbol{Name: name, Type: t, SymType: oso.SymGlobal, Uniform: !st.wide, HasDerivs: st.derivs}
	x.storage[sym] = st
	return sym
}
