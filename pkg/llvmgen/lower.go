// Package llvmgen lowers wide IR to LLVM IR. Wide values become LLVM
// vectors of the module width, slots become zero-initialised globals and
// runtime routines become external declarations.
package llvmgen

import (
	"fmt"
	"io"
	"math"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"github.com/AlexMWells/OpenShadingLanguage/pkg/wir"
)

// Lower translates every slot and function of mod.
func Lower(mod *wir.Module) (*ir.Module, error) {
	g := &genContext{
		src:     mod,
		m:       ir.NewModule(),
		funcs:   make(map[string]*ir.Func),
		externs: make(map[string]*ir.Func),
		strs:    make(map[string]constant.Constant),
	}
	g.m.SourceFilename = mod.Name

	for _, s := range mod.Slots {
		t := types.NewArray(uint64(s.Len), g.typ(wir.Type{Elem: s.Elem, Wide: s.Wide}))
		g.slots = append(g.slots, g.m.NewGlobalDef(s.Name, constant.NewZeroInitializer(t)))
	}
	// declare first so calls may precede the callee's definition
	for _, f := range mod.Funcs {
		params := make([]*ir.Param, len(f.Params))
		for i, p := range f.Params {
			params[i] = ir.NewParam(fmt.Sprintf("p%d", i), g.typ(f.TypeOf(p)))
		}
		g.funcs[f.Name] = g.m.NewFunc(f.Name, types.Void, params...)
	}
	for _, f := range mod.Funcs {
		if err := g.lowerFunction(f); err != nil {
			return nil, fmt.Errorf("llvmgen: %s: %w", f.Name, err)
		}
	}
	return g.m, nil
}

// Write lowers mod and writes the LLVM assembly text to w.
func Write(w io.Writer, mod *wir.Module) error {
	m, err := Lower(mod)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, m.String())
	return err
}

// genContext holds state during lowering
type genContext struct {
	src     *wir.Module
	m       *ir.Module
	slots   []*ir.Global
	funcs   map[string]*ir.Func
	externs map[string]*ir.Func
	strs    map[string]constant.Constant

	// per function
	fn     *wir.Function
	vals   []value.Value
	blocks []*ir.Block
	cur    *ir.Block
}

func (g *genContext) width() uint64 { return uint64(g.src.Width) }

func scalarType(e wir.Elem) types.Type {
	switch e {
	case wir.Bool:
		return types.I1
	case wir.Int:
		return types.I32
	case wir.Float:
		return types.Float
	case wir.String, wir.Ptr:
		return types.I8Ptr
	}
	return types.Void
}

func (g *genContext) typ(t wir.Type) types.Type {
	s := scalarType(t.Elem)
	if t.Wide && t.Elem != wir.Void {
		return types.NewVector(g.width(), s)
	}
	return s
}

func i32(v int64) constant.Constant { return constant.NewInt(types.I32, v) }

// vectorSuffix names the overload of an intrinsic, e.g. "v8f32".
func (g *genContext) vectorSuffix(t wir.Type, scalar string) string {
	if t.Wide {
		return fmt.Sprintf("v%d%s", g.width(), scalar)
	}
	return scalar
}

// declare returns the external routine name, declaring it on first use.
func (g *genContext) declare(name string, ret types.Type, args ...types.Type) (*ir.Func, error) {
	if f, ok := g.externs[name]; ok {
		if len(f.Params) != len(args) {
			return nil, fmt.Errorf("%s called with %d and %d arguments", name, len(f.Params), len(args))
		}
		return f, nil
	}
	params := make([]*ir.Param, len(args))
	for i, t := range args {
		params[i] = ir.NewParam("", t)
	}
	f := g.m.NewFunc(name, ret, params...)
	g.externs[name] = f
	return f, nil
}

func (g *genContext) str(s string) constant.Constant {
	if c, ok := g.strs[s]; ok {
		return c
	}
	glob := g.m.NewGlobalDef(fmt.Sprintf(".str.%d", len(g.strs)), constant.NewCharArrayFromString(s+"\x00"))
	glob.Immutable = true
	c := constant.NewBitCast(glob, types.I8Ptr)
	g.strs[s] = c
	return c
}

// order returns the blocks of f in reverse postorder from the entry so
// every value is defined before its uses; unreachable blocks follow.
func order(f *wir.Function) []wir.Block {
	seen := make([]bool, len(f.Blocks))
	var post []wir.Block
	var visit func(b wir.Block)
	visit = func(b wir.Block) {
		if b < 0 || int(b) >= len(f.Blocks) || seen[b] {
			return
		}
		seen[b] = true
		if t := f.Blocks[b].Terminator(); t != nil {
			for _, s := range wir.Successors(t) {
				visit(s)
			}
		}
		post = append(post, b)
	}
	visit(f.Entry)
	out := make([]wir.Block, 0, len(f.Blocks))
	for i := len(post) - 1; i >= 0; i-- {
		out = append(out, post[i])
	}
	for i := range f.Blocks {
		if !seen[i] {
			out = append(out, wir.Block(i))
		}
	}
	return out
}

func (g *genContext) lowerFunction(f *wir.Function) error {
	lf := g.funcs[f.Name]
	g.fn = f
	g.vals = make([]value.Value, f.NumValues())
	for i, p := range f.Params {
		g.vals[p] = lf.Params[i]
	}
	g.blocks = make([]*ir.Block, len(f.Blocks))
	for _, b := range order(f) {
		g.blocks[b] = lf.NewBlock(fmt.Sprintf("%s.%d", f.Blocks[b].Name, b))
	}
	for _, b := range order(f) {
		g.cur = g.blocks[b]
		for _, instr := range f.Blocks[b].Instrs {
			if err := g.translateInstruction(instr); err != nil {
				return fmt.Errorf("block %s: %w", f.Blocks[b].Name, err)
			}
		}
		if f.Blocks[b].Terminator() == nil {
			g.cur.NewUnreachable()
		}
	}
	return nil
}

// get returns the lowered v, or undef when its definition was never
// reached.
func (g *genContext) get(v wir.Value) value.Value {
	if lv := g.vals[v]; lv != nil {
		return lv
	}
	return constant.NewUndef(g.typ(g.fn.TypeOf(v)))
}

func (g *genContext) set(v wir.Value, lv value.Value) { g.vals[v] = lv }

// splat broadcasts the scalar x to every lane.
func (g *genContext) splat(x value.Value) value.Value {
	vt := types.NewVector(g.width(), x.Type())
	ins := g.cur.NewInsertElement(constant.NewUndef(vt), x, i32(0))
	zeros := constant.NewZeroInitializer(types.NewVector(g.width(), types.I32))
	return g.cur.NewShuffleVector(ins, constant.NewUndef(vt), zeros)
}

// like returns the scalar constant c, splatted when t is wide.
func (g *genContext) like(t wir.Type, c constant.Constant) value.Value {
	if t.Wide {
		return g.splat(c)
	}
	return c
}

// translateInstruction translates one wide IR instruction
func (g *genContext) translateInstruction(instr wir.Instr) error {
	switch i := instr.(type) {
	case wir.Iconst:
		g.translateConst(i)
	case wir.Ibinary:
		g.translateBinary(i)
	case wir.Iunary:
		return g.translateUnary(i)
	case wir.Icmp:
		return g.translateCmp(i)
	case wir.Iselect:
		g.set(i.Dest, g.cur.NewSelect(g.get(i.Cond), g.get(i.T), g.get(i.F)))
	case wir.Ibroadcast:
		g.set(i.Dest, g.splat(g.get(i.Src)))
	case wir.Iextract:
		g.set(i.Dest, g.cur.NewExtractElement(g.get(i.Src), g.get(i.Lane)))
	case wir.Imaskbits:
		g.set(i.Dest, g.maskBits(g.get(i.Mask)))
	case wir.Imaskfrom:
		narrow := g.cur.NewTrunc(g.get(i.Bits), types.NewInt(g.width()))
		g.set(i.Dest, g.cur.NewBitCast(narrow, g.typ(wir.MaskType)))
	case wir.Ifirstlane:
		return g.translateFirstLane(i)
	case wir.Iaddr:
		ptr := g.element(i.Slot, i32(int64(i.Offset)), nil)
		g.set(i.Dest, g.cur.NewBitCast(ptr, types.I8Ptr))
	case wir.Iload:
		g.translateLoad(i)
	case wir.Istore:
		g.translateStore(i)
	case wir.Icall:
		return g.translateCall(i)
	case wir.Icallfn:
		callee, ok := g.funcs[i.Func]
		if !ok {
			return fmt.Errorf("call of unknown function %s", i.Func)
		}
		g.cur.NewCall(callee, g.args(i.Args)...)
	case wir.Ibr:
		g.cur.NewBr(g.blocks[i.Target])
	case wir.Icondbr:
		g.cur.NewCondBr(g.get(i.Cond), g.blocks[i.Then], g.blocks[i.Else])
	case wir.Iret:
		g.cur.NewRet(nil)
	case wir.Iunreachable:
		g.cur.NewUnreachable()
	default:
		return fmt.Errorf("unexpected instruction %T", instr)
	}
	return nil
}

func (g *genContext) args(vs []wir.Value) []value.Value {
	out := make([]value.Value, len(vs))
	for n, v := range vs {
		out[n] = g.get(v)
	}
	return out
}

func (g *genContext) translateConst(i wir.Iconst) {
	switch g.fn.TypeOf(i.Dest).Elem {
	case wir.Int:
		g.set(i.Dest, i32(int64(i.Int)))
	case wir.Float:
		g.set(i.Dest, constant.NewFloat(types.Float, float64(i.Float)))
	case wir.Bool:
		g.set(i.Dest, constant.NewBool(i.Bool))
	case wir.String:
		g.set(i.Dest, g.str(i.Str))
	}
}

func (g *genContext) translateBinary(i wir.Ibinary) {
	t := g.fn.TypeOf(i.Dest)
	x, y := g.get(i.A), g.get(i.B)
	b := g.cur
	if t.Elem == wir.Float {
		switch i.Op {
		case wir.Add:
			g.set(i.Dest, b.NewFAdd(x, y))
		case wir.Sub:
			g.set(i.Dest, b.NewFSub(x, y))
		case wir.Mul:
			g.set(i.Dest, b.NewFMul(x, y))
		case wir.Div:
			g.set(i.Dest, b.NewFDiv(x, y))
		case wir.Mod:
			g.set(i.Dest, b.NewFRem(x, y))
		}
		return
	}
	switch i.Op {
	case wir.Add:
		g.set(i.Dest, b.NewAdd(x, y))
	case wir.Sub:
		g.set(i.Dest, b.NewSub(x, y))
	case wir.Mul:
		g.set(i.Dest, b.NewMul(x, y))
	case wir.Div, wir.Mod:
		// integer division by zero yields 0
		zero := g.like(t, i32(0))
		isZero := b.NewICmp(enum.IPredEQ, y, zero)
		safe := b.NewSelect(isZero, g.like(t, i32(1)), y)
		var q value.Value
		if i.Op == wir.Div {
			q = b.NewSDiv(x, safe)
		} else {
			q = b.NewSRem(x, safe)
		}
		g.set(i.Dest, b.NewSelect(isZero, zero, q))
	case wir.And:
		g.set(i.Dest, b.NewAnd(x, y))
	case wir.Or:
		g.set(i.Dest, b.NewOr(x, y))
	case wir.Xor:
		g.set(i.Dest, b.NewXor(x, y))
	case wir.Shl:
		g.set(i.Dest, b.NewShl(x, b.NewAnd(y, g.like(t, i32(31)))))
	case wir.Shr:
		g.set(i.Dest, b.NewAShr(x, b.NewAnd(y, g.like(t, i32(31)))))
	}
}

func (g *genContext) translateUnary(i wir.Iunary) error {
	src := g.fn.TypeOf(i.A)
	dst := g.fn.TypeOf(i.Dest)
	x := g.get(i.A)
	b := g.cur
	switch i.Op {
	case wir.Neg:
		if src.Elem == wir.Float {
			g.set(i.Dest, b.NewFNeg(x))
		} else {
			g.set(i.Dest, b.NewSub(g.like(src, i32(0)), x))
		}
	case wir.Not:
		if src.Elem == wir.Bool {
			g.set(i.Dest, b.NewXor(x, g.like(src, constant.NewBool(true))))
		} else {
			g.set(i.Dest, b.NewXor(x, g.like(src, i32(-1))))
		}
	case wir.IntToFloat:
		g.set(i.Dest, b.NewSIToFP(x, g.typ(dst)))
	case wir.FloatToInt:
		// saturating, NaN gives 0
		name := "llvm.fptosi.sat." + g.vectorSuffix(dst, "i32") + "." + g.vectorSuffix(src, "f32")
		f, err := g.declare(name, g.typ(dst), g.typ(src))
		if err != nil {
			return err
		}
		g.set(i.Dest, b.NewCall(f, x))
	case wir.BoolToInt:
		g.set(i.Dest, b.NewZExt(x, g.typ(dst)))
	case wir.IsFinite:
		f, err := g.declare("llvm.fabs."+g.vectorSuffix(src, "f32"), g.typ(src), g.typ(src))
		if err != nil {
			return err
		}
		inf := g.like(src, constant.NewFloat(types.Float, math.Inf(1)))
		g.set(i.Dest, b.NewFCmp(enum.FPredOLT, b.NewCall(f, x), inf))
	default:
		return fmt.Errorf("unary %s", i.Op)
	}
	return nil
}

var (
	intPreds = map[wir.Cond]enum.IPred{
		wir.Eq: enum.IPredEQ, wir.Ne: enum.IPredNE,
		wir.Lt: enum.IPredSLT, wir.Le: enum.IPredSLE,
		wir.Gt: enum.IPredSGT, wir.Ge: enum.IPredSGE,
	}
	boolPreds = map[wir.Cond]enum.IPred{
		wir.Eq: enum.IPredEQ, wir.Ne: enum.IPredNE,
		wir.Lt: enum.IPredULT, wir.Le: enum.IPredULE,
		wir.Gt: enum.IPredUGT, wir.Ge: enum.IPredUGE,
	}
	// unordered only for Ne: a NaN operand compares unequal and nothing else
	floatPreds = map[wir.Cond]enum.FPred{
		wir.Eq: enum.FPredOEQ, wir.Ne: enum.FPredUNE,
		wir.Lt: enum.FPredOLT, wir.Le: enum.FPredOLE,
		wir.Gt: enum.FPredOGT, wir.Ge: enum.FPredOGE,
	}
)

func (g *genContext) translateCmp(i wir.Icmp) error {
	x, y := g.get(i.A), g.get(i.B)
	switch g.fn.TypeOf(i.A).Elem {
	case wir.Int:
		g.set(i.Dest, g.cur.NewICmp(intPreds[i.Cond], x, y))
	case wir.Bool:
		g.set(i.Dest, g.cur.NewICmp(boolPreds[i.Cond], x, y))
	case wir.Float:
		g.set(i.Dest, g.cur.NewFCmp(floatPreds[i.Cond], x, y))
	case wir.String:
		// strings are interned, so only identity is meaningful
		if i.Cond != wir.Eq && i.Cond != wir.Ne {
			return fmt.Errorf("string comparison %s", i.Cond)
		}
		g.set(i.Dest, g.cur.NewICmp(intPreds[i.Cond], x, y))
	default:
		return fmt.Errorf("comparison of %s", g.fn.TypeOf(i.A))
	}
	return nil
}

func (g *genContext) maskBits(mask value.Value) value.Value {
	packed := g.cur.NewBitCast(mask, types.NewInt(g.width()))
	return g.cur.NewZExt(packed, types.I32)
}

func (g *genContext) translateFirstLane(i wir.Ifirstlane) error {
	narrow := types.NewInt(g.width())
	f, err := g.declare(fmt.Sprintf("llvm.cttz.i%d", g.width()), narrow, narrow, types.I1)
	if err != nil {
		return err
	}
	// cttz of zero is the bit width, which is the lane count
	packed := g.cur.NewBitCast(g.get(i.Mask), narrow)
	tz := g.cur.NewCall(f, packed, constant.NewBool(false))
	g.set(i.Dest, g.cur.NewZExt(tz, types.I32))
	return nil
}

// element addresses element e of slot s, or lane lane of it.
func (g *genContext) element(s wir.Slot, e value.Value, lane value.Value) value.Value {
	glob := g.slots[s]
	at := glob.ContentType
	if lane == nil {
		return g.cur.NewGetElementPtr(at, glob, i32(0), e)
	}
	return g.cur.NewGetElementPtr(at, glob, i32(0), e, lane)
}

// index computes off + idx*stride for a scalar index.
func (g *genContext) index(off int, idx wir.Value, stride int) value.Value {
	if idx == wir.NoValue {
		return i32(int64(off))
	}
	scaled := g.cur.NewMul(g.get(idx), i32(int64(stride)))
	return g.cur.NewAdd(scaled, i32(int64(off)))
}

// laneIndex computes the element lane l of a wide index selects, clamped
// to the slot so lanes that are switched off never address outside it.
func (g *genContext) laneIndex(s wir.Slot, off int, idx wir.Value, stride int, l int) value.Value {
	b := g.cur
	e := b.NewAdd(b.NewMul(b.NewExtractElement(g.get(idx), i32(int64(l))), i32(int64(stride))), i32(int64(off)))
	last := i32(int64(g.src.Slots[s].Len - 1))
	low := b.NewSelect(b.NewICmp(enum.IPredSLT, e, i32(0)), i32(0), e)
	return b.NewSelect(b.NewICmp(enum.IPredSGT, low, last), last, low)
}

func (g *genContext) wideIndex(idx wir.Value) bool {
	return idx != wir.NoValue && g.fn.TypeOf(idx).Wide
}

func (g *genContext) translateLoad(i wir.Iload) {
	info := g.src.Slots[i.Slot]
	elem := scalarType(info.Elem)
	if !g.wideIndex(i.Index) {
		ptr := g.element(i.Slot, g.index(i.Offset, i.Index, i.Stride), nil)
		g.set(i.Dest, g.cur.NewLoad(g.typ(wir.Type{Elem: info.Elem, Wide: info.Wide}), ptr))
		return
	}
	// gather
	var acc value.Value = constant.NewUndef(types.NewVector(g.width(), elem))
	for l := 0; l < int(g.width()); l++ {
		e := g.laneIndex(i.Slot, i.Offset, i.Index, i.Stride, l)
		var lane value.Value
		if info.Wide {
			lane = i32(int64(l))
		}
		v := g.cur.NewLoad(elem, g.element(i.Slot, e, lane))
		acc = g.cur.NewInsertElement(acc, v, i32(int64(l)))
	}
	g.set(i.Dest, acc)
}

func (g *genContext) translateStore(i wir.Istore) {
	info := g.src.Slots[i.Slot]
	src := g.get(i.Src)
	if !g.wideIndex(i.Index) {
		ptr := g.element(i.Slot, g.index(i.Offset, i.Index, i.Stride), nil)
		if i.Mask != wir.NoValue {
			old := g.cur.NewLoad(g.typ(wir.Type{Elem: info.Elem, Wide: true}), ptr)
			src = g.cur.NewSelect(g.get(i.Mask), src, old)
		}
		g.cur.NewStore(src, ptr)
		return
	}
	// scatter
	elem := scalarType(info.Elem)
	for l := 0; l < int(g.width()); l++ {
		lane := i32(int64(l))
		ptr := g.element(i.Slot, g.laneIndex(i.Slot, i.Offset, i.Index, i.Stride, l), lane)
		var v value.Value = g.cur.NewExtractElement(src, lane)
		if i.Mask != wir.NoValue {
			on := g.cur.NewExtractElement(g.get(i.Mask), lane)
			v = g.cur.NewSelect(on, v, g.cur.NewLoad(elem, ptr))
		}
		g.cur.NewStore(v, ptr)
	}
}

func (g *genContext) translateCall(i wir.Icall) error {
	ret := types.Type(types.Void)
	if i.Dest != wir.NoValue {
		ret = g.typ(g.fn.TypeOf(i.Dest))
	}
	params := make([]types.Type, len(i.Args))
	for n, a := range i.Args {
		params[n] = g.typ(g.fn.TypeOf(a))
	}
	f, err := g.declare(i.Func, ret, params...)
	if err != nil {
		return err
	}
	call := g.cur.NewCall(f, g.args(i.Args)...)
	if i.Dest != wir.NoValue {
		g.set(i.Dest, call)
	}
	return nil
}
