package interp

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/AlexMWells/OpenShadingLanguage/pkg/wir"
)

type frame struct {
	m    *Machine
	f    *wir.Function
	vals []Value
}

func (fr *frame) width() int { return fr.m.Module.Width }

func (fr *frame) get(v wir.Value) Value { return fr.vals[v] }

func (fr *frame) def(v wir.Value) Value {
	val := newValue(fr.f.TypeOf(v), fr.width())
	fr.vals[v] = val
	return val
}

func (fr *frame) run() error {
	bl := fr.f.Entry
	for {
		b := fr.f.Blocks[bl]
		next := wir.NoBlock
		for _, instr := range b.Instrs {
			fr.m.steps++
			if fr.m.MaxSteps > 0 && fr.m.steps > fr.m.MaxSteps {
				return fmt.Errorf("interp: %s: %w", fr.f.Name, ErrStepLimit)
			}
			switch t := instr.(type) {
			case wir.Ibr:
				next = t.Target
			case wir.Icondbr:
				if fr.get(t.Cond).B[0] {
					next = t.Then
				} else {
					next = t.Else
				}
			case wir.Iret:
				return nil
			case wir.Iunreachable:
				return fmt.Errorf("interp: %s: reached unreachable block %s", fr.f.Name, b.Name)
			default:
				if err := fr.exec(instr); err != nil {
					return err
				}
			}
		}
		if next == wir.NoBlock {
			return fmt.Errorf("interp: %s: block %s falls off its end", fr.f.Name, b.Name)
		}
		bl = next
	}
}

func (fr *frame) exec(instr wir.Instr) error {
	switch t := instr.(type) {
	case wir.Iconst:
		d := fr.def(t.Dest)
		switch d.Type.Elem {
		case wir.Int:
			d.I[0] = t.Int
		case wir.Float:
			d.F[0] = t.Float
		case wir.Bool:
			d.B[0] = t.Bool
		case wir.String:
			d.S[0] = t.Str
		}
	case wir.Ibinary:
		fr.binary(t)
	case wir.Iunary:
		fr.unary(t)
	case wir.Icmp:
		fr.compare(t)
	case wir.Iselect:
		fr.sel(t)
	case wir.Ibroadcast:
		src := fr.get(t.Src)
		d := fr.def(t.Dest)
		for l := 0; l < d.Len(); l++ {
			copyElem(d, l, src, 0)
		}
	case wir.Iextract:
		src := fr.get(t.Src)
		lane := int(fr.get(t.Lane).I[0])
		if lane < 0 || lane >= fr.width() {
			return fmt.Errorf("interp: extract of lane %d", lane)
		}
		d := fr.def(t.Dest)
		copyElem(d, 0, src, lane)
	case wir.Imaskbits:
		d := fr.def(t.Dest)
		d.I[0] = int32(fr.get(t.Mask).Bits())
	case wir.Imaskfrom:
		fr.vals[t.Dest] = Mask(uint32(fr.get(t.Bits).I[0]), fr.width())
	case wir.Ifirstlane:
		d := fr.def(t.Dest)
		b := fr.get(t.Mask).Bits()
		if b == 0 {
			d.I[0] = int32(fr.width())
		} else {
			d.I[0] = int32(bits.TrailingZeros32(b))
		}
	case wir.Iaddr:
		fr.vals[t.Dest] = Value{Type: wir.PtrType, P: fr.m.Memory().Ref(t.Slot, t.Offset)}
	case wir.Iload:
		fr.load(t)
	case wir.Istore:
		return fr.store(t)
	case wir.Icall:
		return fr.callKernel(t)
	case wir.Icallfn:
		args := make([]Value, len(t.Args))
		for i, a := range t.Args {
			args[i] = fr.get(a)
		}
		if fr.m.Record {
			rec := CallRecord{Func: t.Func}
			if len(args) > 0 && args[0].Type == wir.MaskType {
				rec.Masked, rec.Mask = true, args[0].Bits()
			}
			fr.m.Calls = append(fr.m.Calls, rec)
		}
		return fr.m.call(t.Func, args)
	default:
		return fmt.Errorf("interp: unexpected instruction %T", instr)
	}
	return nil
}

func copyElem(dst Value, di int, src Value, si int) {
	switch dst.Type.Elem {
	case wir.Int:
		dst.I[di] = src.I[si]
	case wir.Float:
		dst.F[di] = src.F[si]
	case wir.Bool:
		dst.B[di] = src.B[si]
	case wir.String:
		dst.S[di] = src.S[si]
	}
}

func (fr *frame) binary(t wir.Ibinary) {
	a, b := fr.get(t.A), fr.get(t.B)
	d := fr.def(t.Dest)
	for l := 0; l < d.Len(); l++ {
		switch d.Type.Elem {
		case wir.Int:
			d.I[l] = intOp(t.Op, a.I[l], b.I[l])
		case wir.Float:
			d.F[l] = floatOp(t.Op, a.F[l], b.F[l])
		case wir.Bool:
			switch t.Op {
			case wir.And:
				d.B[l] = a.B[l] && b.B[l]
			case wir.Or:
				d.B[l] = a.B[l] || b.B[l]
			case wir.Xor:
				d.B[l] = a.B[l] != b.B[l]
			}
		}
	}
}

// intOp follows C semantics except that division by zero yields 0.
func intOp(op wir.BinOp, x, y int32) int32 {
	switch op {
	case wir.Add:
		return x + y
	case wir.Sub:
		return x - y
	case wir.Mul:
		return x * y
	case wir.Div:
		if y == 0 {
			return 0
		}
		return x / y
	case wir.Mod:
		if y == 0 {
			return 0
		}
		return x % y
	case wir.And:
		return x & y
	case wir.Or:
		return x | y
	case wir.Xor:
		return x ^ y
	case wir.Shl:
		return x << (uint32(y) & 31)
	case wir.Shr:
		return x >> (uint32(y) & 31)
	}
	return 0
}

func floatOp(op wir.BinOp, x, y float32) float32 {
	switch op {
	case wir.Add:
		return x + y
	case wir.Sub:
		return x - y
	case wir.Mul:
		return x * y
	case wir.Div:
		return x / y
	case wir.Mod:
		return float32(math.Mod(float64(x), float64(y)))
	}
	return 0
}

func (fr *frame) unary(t wir.Iunary) {
	a := fr.get(t.A)
	d := fr.def(t.Dest)
	for l := 0; l < d.Len(); l++ {
		switch t.Op {
		case wir.Neg:
			if a.Type.Elem == wir.Int {
				d.I[l] = -a.I[l]
			} else {
				d.F[l] = -a.F[l]
			}
		case wir.Not:
			if a.Type.Elem == wir.Int {
				d.I[l] = ^a.I[l]
			} else {
				d.B[l] = !a.B[l]
			}
		case wir.IntToFloat:
			d.F[l] = float32(a.I[l])
		case wir.FloatToInt:
			d.I[l] = ftoi(a.F[l])
		case wir.BoolToInt:
			if a.B[l] {
				d.I[l] = 1
			} else {
				d.I[l] = 0
			}
		case wir.IsFinite:
			f := float64(a.F[l])
			d.B[l] = !math.IsNaN(f) && !math.IsInf(f, 0)
		}
	}
}

// ftoi truncates toward zero, saturating out-of-range values.
func ftoi(f float32) int32 {
	switch {
	case math.IsNaN(float64(f)):
		return 0
	case f >= math.MaxInt32:
		return math.MaxInt32
	case f <= math.MinInt32:
		return math.MinInt32
	}
	return int32(f)
}

func (fr *frame) compare(t wir.Icmp) {
	a, b := fr.get(t.A), fr.get(t.B)
	d := fr.def(t.Dest)
	for l := 0; l < d.Len(); l++ {
		var c int // -1, 0, 1; 2 for unordered
		switch a.Type.Elem {
		case wir.Int:
			c = cmp3(a.I[l] < b.I[l], a.I[l] == b.I[l])
		case wir.Float:
			x, y := a.F[l], b.F[l]
			if math.IsNaN(float64(x)) || math.IsNaN(float64(y)) {
				c = 2
			} else {
				c = cmp3(x < y, x == y)
			}
		case wir.Bool:
			c = cmp3(!a.B[l] && b.B[l], a.B[l] == b.B[l])
		case wir.String:
			c = cmp3(a.S[l] < b.S[l], a.S[l] == b.S[l])
		}
		d.B[l] = holds(t.Cond, c)
	}
}

func cmp3(less, equal bool) int {
	switch {
	case less:
		return -1
	case equal:
		return 0
	}
	return 1
}

func holds(cond wir.Cond, c int) bool {
	if c == 2 {
		return cond == wir.Ne
	}
	switch cond {
	case wir.Eq:
		return c == 0
	case wir.Ne:
		return c != 0
	case wir.Lt:
		return c < 0
	case wir.Le:
		return c <= 0
	case wir.Gt:
		return c > 0
	default:
		return c >= 0
	}
}

func (fr *frame) sel(t wir.Iselect) {
	c, x, y := fr.get(t.Cond), fr.get(t.T), fr.get(t.F)
	if !c.Type.Wide {
		if c.B[0] {
			fr.vals[t.Dest] = x
		} else {
			fr.vals[t.Dest] = y
		}
		return
	}
	d := fr.def(t.Dest)
	for l := 0; l < d.Len(); l++ {
		if c.B[l] {
			copyElem(d, l, x, l)
		} else {
			copyElem(d, l, y, l)
		}
	}
}

func (fr *frame) load(t wir.Iload) {
	cells := fr.m.Memory().Slots[t.Slot]
	d := fr.def(t.Dest)
	w := fr.width()
	if t.Index == wir.NoValue || !fr.get(t.Index).Type.Wide {
		e := t.Offset
		if t.Index != wir.NoValue {
			e += int(fr.get(t.Index).I[0]) * t.Stride
		}
		if !cells.inRange(e) {
			panic(fmt.Sprintf("load %s[%d] out of range", cells.Info.Name, e))
		}
		for l := 0; l < d.Len(); l++ {
			loadElem(d, l, cells, cells.index(e, l))
		}
		return
	}
	idx := fr.get(t.Index)
	for l := 0; l < w; l++ {
		e := t.Offset + int(idx.I[l])*t.Stride
		// lanes that are switched off may carry garbage indices
		if !cells.inRange(e) {
			continue
		}
		loadElem(d, l, cells, cells.index(e, l))
	}
}

func loadElem(d Value, l int, c *Cells, i int) {
	switch d.Type.Elem {
	case wir.Int:
		d.I[l] = c.I[i]
	case wir.Float:
		d.F[l] = c.F[i]
	case wir.Bool:
		d.B[l] = c.B[i]
	case wir.String:
		d.S[l] = c.S[i]
	}
}

func storeElem(c *Cells, i int, s Value, l int) {
	switch c.Info.Elem {
	case wir.Int:
		c.I[i] = s.I[l]
	case wir.Float:
		c.F[i] = s.F[l]
	case wir.Bool:
		c.B[i] = s.B[l]
	case wir.String:
		c.S[i] = s.S[l]
	}
}

func (fr *frame) store(t wir.Istore) error {
	cells := fr.m.Memory().Slots[t.Slot]
	src := fr.get(t.Src)
	var idx Value
	if t.Index != wir.NoValue {
		idx = fr.get(t.Index)
	}
	if !cells.Info.Wide {
		e := t.Offset
		if t.Index != wir.NoValue {
			e += int(idx.I[0]) * t.Stride
		}
		if !cells.inRange(e) {
			return fmt.Errorf("interp: store %s[%d] out of range", cells.Info.Name, e)
		}
		storeElem(cells, cells.index(e, 0), src, 0)
		return nil
	}
	var mask Value
	if t.Mask != wir.NoValue {
		mask = fr.get(t.Mask)
	}
	for l := 0; l < fr.width(); l++ {
		if t.Mask != wir.NoValue && !mask.B[l] {
			continue
		}
		e := t.Offset
		if t.Index != wir.NoValue {
			if idx.Type.Wide {
				e += int(idx.I[l]) * t.Stride
			} else {
				e += int(idx.I[0]) * t.Stride
			}
		}
		if !cells.inRange(e) {
			return fmt.Errorf("interp: store %s[%d] out of range in lane %d", cells.Info.Name, e, l)
		}
		storeElem(cells, cells.index(e, l), src, l)
	}
	return nil
}

func (fr *frame) callKernel(t wir.Icall) error {
	k, err := fr.m.kernel(t.Func)
	if err != nil {
		return err
	}
	args := make([]any, len(t.Args))
	for i, a := range t.Args {
		args[i] = fr.get(a).Any()
	}
	fr.m.record(t.Func, args)
	res, err := k(fr.m.Ctx, args)
	if err != nil {
		return fmt.Errorf("interp: %s: %w", t.Func, err)
	}
	if t.Dest == wir.NoValue {
		return nil
	}
	v, err := fromResult(fr.f.TypeOf(t.Dest), fr.width(), res)
	if err != nil {
		return fmt.Errorf("interp: %s: %w", t.Func, err)
	}
	fr.vals[t.Dest] = v
	return nil
}
