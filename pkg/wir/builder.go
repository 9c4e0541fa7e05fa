package wir

import "fmt"

// ContractError reports misuse of the builder: mixing widths, emitting into
// a finished block, and the like. The builder panics with it; callers that
// want an error value recover it at their API boundary.
type ContractError struct {
	Msg string
}

func (e *ContractError) Error() string { return "wir: " + e.Msg }

// Builder appends instructions to the functions of a module.
type Builder struct {
	m   *Module
	f   *Function
	cur Block
}

// NewBuilder creates a builder for m.
func NewBuilder(m *Module) *Builder {
	return &Builder{m: m, cur: NoBlock}
}

func (b *Builder) fail(format string, args ...any) {
	panic(&ContractError{Msg: fmt.Sprintf(format, args...)})
}

// Module returns the module being built.
func (b *Builder) Module() *Module { return b.m }

// Width returns the module's lane count.
func (b *Builder) Width() int { return b.m.Width }

// Function returns the function being built.
func (b *Builder) Function() *Function { return b.f }

// BeginFunction adds a function with the given parameter types and makes
// its entry block the insert point.
func (b *Builder) BeginFunction(name string, params ...Type) *Function {
	if b.m.Func(name) != nil {
		b.fail("function %s already defined", name)
	}
	f := &Function{Name: name}
	for _, t := range params {
		f.Params = append(f.Params, f.newValue(t))
	}
	b.m.Funcs = append(b.m.Funcs, f)
	b.f = f
	f.Entry = b.NewBlock("entry")
	b.cur = f.Entry
	return f
}

// SetFunction resumes building an existing function at block bl.
func (b *Builder) SetFunction(f *Function, bl Block) {
	b.f = f
	b.cur = bl
}

// Param returns parameter i of the current function.
func (b *Builder) Param(i int) Value { return b.f.Params[i] }

// TypeOf returns the type of v in the current function.
func (b *Builder) TypeOf(v Value) Type { return b.f.TypeOf(v) }

// NewBlock appends an empty block to the current function. It does not
// move the insert point.
func (b *Builder) NewBlock(name string) Block {
	if b.f == nil {
		b.fail("NewBlock outside a function")
	}
	b.f.Blocks = append(b.f.Blocks, &BasicBlock{Name: name})
	return Block(len(b.f.Blocks) - 1)
}

// SetInsertPoint directs subsequent instructions to block bl.
func (b *Builder) SetInsertPoint(bl Block) {
	if int(bl) < 0 || int(bl) >= len(b.f.Blocks) {
		b.fail("no block %d", bl)
	}
	b.cur = bl
}

// InsertPoint returns the block receiving instructions.
func (b *Builder) InsertPoint() Block { return b.cur }

// Terminated reports whether the insert block already ends in a terminator.
func (b *Builder) Terminated() bool {
	return b.f.Blocks[b.cur].Terminator() != nil
}

// BlockName returns the name of bl.
func (b *Builder) BlockName(bl Block) string { return b.f.Blocks[bl].Name }

func (b *Builder) emit(i Instr) {
	if b.f == nil || b.cur == NoBlock {
		b.fail("no insert point")
	}
	blk := b.f.Blocks[b.cur]
	if blk.Terminator() != nil {
		b.fail("emitting into terminated block %s", blk.Name)
	}
	blk.Instrs = append(blk.Instrs, i)
}

func (b *Builder) value(v Value, what string) Type {
	if v <= 0 || int(v) >= b.f.NumValues() {
		b.fail("%s: invalid value %d", what, v)
	}
	return b.f.TypeOf(v)
}

// ConstInt materialises a uniform int.
func (b *Builder) ConstInt(v int32) Value {
	d := b.f.newValue(IntType)
	b.emit(Iconst{Dest: d, Int: v})
	return d
}

// ConstFloat materialises a uniform float.
func (b *Builder) ConstFloat(v float32) Value {
	d := b.f.newValue(FloatType)
	b.emit(Iconst{Dest: d, Float: v})
	return d
}

// ConstBool materialises a uniform bool.
func (b *Builder) ConstBool(v bool) Value {
	d := b.f.newValue(BoolType)
	b.emit(Iconst{Dest: d, Bool: v})
	return d
}

// ConstString materialises a uniform string.
func (b *Builder) ConstString(s string) Value {
	d := b.f.newValue(Scalar(String))
	b.emit(Iconst{Dest: d, Str: s})
	return d
}

// WideInt is a per-lane int with the same value in every lane.
func (b *Builder) WideInt(v int32) Value { return b.Broadcast(b.ConstInt(v)) }

// WideFloat is a per-lane float with the same value in every lane.
func (b *Builder) WideFloat(v float32) Value { return b.Broadcast(b.ConstFloat(v)) }

// WideBool is a mask with every lane set to v.
func (b *Builder) WideBool(v bool) Value { return b.Broadcast(b.ConstBool(v)) }

// Binary emits a two-operand operation. Both operands must have the same type.
func (b *Builder) Binary(op BinOp, x, y Value) Value {
	tx, ty := b.value(x, op.String()), b.value(y, op.String())
	if tx != ty {
		b.fail("%s: operand types %s and %s differ", op, tx, ty)
	}
	switch op {
	case Add, Sub, Mul, Div, Mod:
		if tx.Elem != Int && tx.Elem != Float {
			b.fail("%s: %s operands", op, tx)
		}
	case And, Or, Xor:
		if tx.Elem != Int && tx.Elem != Bool {
			b.fail("%s: %s operands", op, tx)
		}
	case Shl, Shr:
		if tx.Elem != Int {
			b.fail("%s: %s operands", op, tx)
		}
	}
	d := b.f.newValue(tx)
	b.emit(Ibinary{Dest: d, Op: op, A: x, B: y})
	return d
}

func (b *Builder) Add(x, y Value) Value { return b.Binary(Add, x, y) }
func (b *Builder) Sub(x, y Value) Value { return b.Binary(Sub, x, y) }
func (b *Builder) Mul(x, y Value) Value { return b.Binary(Mul, x, y) }
func (b *Builder) Div(x, y Value) Value { return b.Binary(Div, x, y) }
func (b *Builder) And(x, y Value) Value { return b.Binary(And, x, y) }
func (b *Builder) Or(x, y Value) Value  { return b.Binary(Or, x, y) }

// Unary emits a one-operand operation.
func (b *Builder) Unary(op UnOp, x Value) Value {
	t := b.value(x, op.String())
	res := t
	switch op {
	case Neg:
		if t.Elem != Int && t.Elem != Float {
			b.fail("neg of %s", t)
		}
	case Not:
		if t.Elem != Int && t.Elem != Bool {
			b.fail("not of %s", t)
		}
	case IntToFloat:
		if t.Elem != Int {
			b.fail("itof of %s", t)
		}
		res.Elem = Float
	case FloatToInt:
		if t.Elem != Float {
			b.fail("ftoi of %s", t)
		}
		res.Elem = Int
	case BoolToInt:
		if t.Elem != Bool {
			b.fail("btoi of %s", t)
		}
		res.Elem = Int
	case IsFinite:
		if t.Elem != Float {
			b.fail("isfinite of %s", t)
		}
		res.Elem = Bool
	}
	d := b.f.newValue(res)
	b.emit(Iunary{Dest: d, Op: op, A: x})
	return d
}

// Not inverts a bool or mask (bitwise for ints).
func (b *Builder) Not(x Value) Value { return b.Unary(Not, x) }

// Cmp compares two values of the same type, producing a bool of the same width.
func (b *Builder) Cmp(c Cond, x, y Value) Value {
	tx, ty := b.value(x, "cmp"), b.value(y, "cmp")
	if tx != ty {
		b.fail("cmp %s: operand types %s and %s differ", c, tx, ty)
	}
	if tx.Elem == Void || tx.Elem == Ptr {
		b.fail("cmp %s of %s", c, tx)
	}
	if tx.Elem == String && c != Eq && c != Ne {
		b.fail("cmp %s of strings", c)
	}
	d := b.f.newValue(Type{Elem: Bool, Wide: tx.Wide})
	b.emit(Icmp{Dest: d, Cond: c, A: x, B: y})
	return d
}

// Select picks t or f. A wide condition requires wide operands.
func (b *Builder) Select(cond, t, f Value) Value {
	tc := b.value(cond, "select")
	tt, tf := b.value(t, "select"), b.value(f, "select")
	if tc.Elem != Bool {
		b.fail("select on %s", tc)
	}
	if tt != tf {
		b.fail("select: arm types %s and %s differ", tt, tf)
	}
	if tc.Wide && !tt.Wide {
		b.fail("select: wide condition with %s arms", tt)
	}
	d := b.f.newValue(tt)
	b.emit(Iselect{Dest: d, Cond: cond, T: t, F: f})
	return d
}

// Broadcast copies a scalar into every lane.
func (b *Builder) Broadcast(x Value) Value {
	t := b.value(x, "broadcast")
	if t.Wide {
		b.fail("broadcast of wide value")
	}
	d := b.f.newValue(Wide(t.Elem))
	b.emit(Ibroadcast{Dest: d, Src: x})
	return d
}

// Widen returns x unchanged when already wide, else its broadcast.
func (b *Builder) Widen(x Value) Value {
	if b.value(x, "widen").Wide {
		return x
	}
	return b.Broadcast(x)
}

// Extract reads one lane of a wide value.
func (b *Builder) Extract(x, lane Value) Value {
	t, tl := b.value(x, "extract"), b.value(lane, "extract")
	if !t.Wide || tl != IntType {
		b.fail("extract from %s at %s", t, tl)
	}
	d := b.f.newValue(Scalar(t.Elem))
	b.emit(Iextract{Dest: d, Src: x, Lane: lane})
	return d
}

// MaskBits packs a mask into an int.
func (b *Builder) MaskBits(mask Value) Value {
	if t := b.value(mask, "maskbits"); t != MaskType {
		b.fail("maskbits of %s", t)
	}
	d := b.f.newValue(IntType)
	b.emit(Imaskbits{Dest: d, Mask: mask})
	return d
}

// MaskFrom unpacks an int into a mask.
func (b *Builder) MaskFrom(bits Value) Value {
	if t := b.value(bits, "maskfrom"); t != IntType {
		b.fail("maskfrom of %s", t)
	}
	d := b.f.newValue(MaskType)
	b.emit(Imaskfrom{Dest: d, Bits: bits})
	return d
}

// FirstLane yields the index of the lowest active lane.
func (b *Builder) FirstLane(mask Value) Value {
	if t := b.value(mask, "firstlane"); t != MaskType {
		b.fail("firstlane of %s", t)
	}
	d := b.f.newValue(IntType)
	b.emit(Ifirstlane{Dest: d, Mask: mask})
	return d
}

func (b *Builder) slot(s Slot, off int, what string) SlotInfo {
	if int(s) < 0 || int(s) >= len(b.m.Slots) {
		b.fail("%s: no slot %d", what, s)
	}
	info := b.m.Slots[s]
	if off < 0 || off >= info.Len {
		b.fail("%s: offset %d outside slot %s[%d]", what, off, info.Name, info.Len)
	}
	return info
}

// Addr takes the address of an element of a slot.
func (b *Builder) Addr(s Slot, off int) Value {
	b.slot(s, off, "addr")
	d := b.f.newValue(PtrType)
	b.emit(Iaddr{Dest: d, Slot: s, Offset: off})
	return d
}

// Load reads one element of a slot. The result has the slot's width.
func (b *Builder) Load(s Slot, off int) Value {
	info := b.slot(s, off, "load")
	d := b.f.newValue(Type{Elem: info.Elem, Wide: info.Wide})
	b.emit(Iload{Dest: d, Slot: s, Offset: off, Index: NoValue})
	return d
}

// LoadIndexed reads element off + idx*stride. A wide index gathers a
// separate element per lane and always yields a wide value.
func (b *Builder) LoadIndexed(s Slot, off int, idx Value, stride int) Value {
	info := b.slot(s, off, "load")
	ti := b.value(idx, "load index")
	if ti.Elem != Int {
		b.fail("load index of type %s", ti)
	}
	d := b.f.newValue(Type{Elem: info.Elem, Wide: info.Wide || ti.Wide})
	b.emit(Iload{Dest: d, Slot: s, Offset: off, Index: idx, Stride: stride})
	return d
}

func (b *Builder) checkStore(info SlotInfo, src, idx, mask Value) {
	ts := b.value(src, "store")
	if ts.Elem != info.Elem {
		b.fail("store of %s into %s slot %s", ts, info.Elem, info.Name)
	}
	if ts.Wide != info.Wide {
		b.fail("store of %s into %s slot %s of wrong width", ts, info.Elem, info.Name)
	}
	if idx != NoValue {
		ti := b.value(idx, "store index")
		if ti.Elem != Int || (ti.Wide && !info.Wide) {
			b.fail("store index of type %s into slot %s", ti, info.Name)
		}
	}
	if mask != NoValue {
		if !info.Wide {
			b.fail("masked store into uniform slot %s", info.Name)
		}
		if tm := b.value(mask, "store mask"); tm != MaskType {
			b.fail("store mask of type %s", tm)
		}
	}
}

// Store writes src to an element of a slot of the same width.
func (b *Builder) Store(s Slot, off int, src Value) {
	b.StoreMasked(s, off, src, NoValue)
}

// StoreMasked writes only the lanes enabled by mask.
func (b *Builder) StoreMasked(s Slot, off int, src, mask Value) {
	info := b.slot(s, off, "store")
	b.checkStore(info, src, NoValue, mask)
	b.emit(Istore{Slot: s, Offset: off, Index: NoValue, Src: src, Mask: mask})
}

// StoreIndexed writes element off + idx*stride, per lane when idx is wide.
func (b *Builder) StoreIndexed(s Slot, off int, idx Value, stride int, src, mask Value) {
	info := b.slot(s, off, "store")
	b.checkStore(info, src, idx, mask)
	b.emit(Istore{Slot: s, Offset: off, Index: idx, Stride: stride, Src: src, Mask: mask})
}

// Call invokes a runtime routine. ret is VoidType for routines without a
// result, in which case NoValue is returned.
func (b *Builder) Call(name string, ret Type, args ...Value) Value {
	for _, a := range args {
		b.value(a, "call "+name)
	}
	d := NoValue
	if ret.Elem != Void {
		d = b.f.newValue(ret)
	}
	b.emit(Icall{Dest: d, Func: name, Args: append([]Value(nil), args...)})
	return d
}

// CallFunction invokes another function of the module.
func (b *Builder) CallFunction(name string, args ...Value) {
	for _, a := range args {
		b.value(a, "call "+name)
	}
	b.emit(Icallfn{Func: name, Args: append([]Value(nil), args...)})
}

// Br ends the current block with a jump to target and continues in target.
func (b *Builder) Br(target Block) {
	b.emit(Ibr{Target: target})
	b.cur = target
}

// CondBr ends the current block with a conditional jump on a scalar bool
// and continues in then.
func (b *Builder) CondBr(cond Value, then, els Block) {
	if t := b.value(cond, "condbr"); t != BoolType {
		b.fail("condbr on %s", t)
	}
	b.emit(Icondbr{Cond: cond, Then: then, Else: els})
	b.cur = then
}

// Ret ends the current block with a return.
func (b *Builder) Ret() { b.emit(Iret{}) }

// Unreachable ends the current block as dead.
func (b *Builder) Unreachable() { b.emit(Iunreachable{}) }
