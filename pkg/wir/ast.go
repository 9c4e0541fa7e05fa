// Package wir defines the wide IR the batched generator emits: functions
// of basic blocks whose values are either scalars (one value for the whole
// batch) or full-width vectors (one value per lane).
// Values are handles into a per-function arena that records their type, so
// width mistakes are caught when an instruction is built.
package wir

import "fmt"

// Elem is the element type of a value or storage slot.
type Elem uint8

const (
	Void Elem = iota
	Bool
	Int
	Float
	String
	Ptr
)

var elemNames = [...]string{"void", "bool", "int", "float", "string", "ptr"}

func (e Elem) String() string {
	if int(e) < len(elemNames) {
		return elemNames[e]
	}
	return fmt.Sprintf("elem(%d)", int(e))
}

// Type is an element type plus its width: a scalar or one value per lane.
type Type struct {
	Elem Elem
	Wide bool
}

// Scalar returns the uniform type of e.
func Scalar(e Elem) Type { return Type{Elem: e} }

// Wide returns the per-lane type of e.
func Wide(e Elem) Type { return Type{Elem: e, Wide: true} }

// Common types.
var (
	VoidType  = Type{}
	MaskType  = Wide(Bool)
	BoolType  = Scalar(Bool)
	IntType   = Scalar(Int)
	FloatType = Scalar(Float)
	PtrType   = Scalar(Ptr)
)

func (t Type) String() string {
	if t.Wide {
		return "w" + t.Elem.String()
	}
	return t.Elem.String()
}

// Value is a handle to a value produced by an instruction or a parameter.
type Value int32

// NoValue is the zero handle.
const NoValue Value = 0

// Block identifies a basic block of a function.
type Block int32

// NoBlock marks an absent block.
const NoBlock Block = -1

// Slot identifies a storage slot of a module.
type Slot int32

// NoSlot marks an absent slot.
const NoSlot Slot = -1

// SlotScope says where a slot lives.
type SlotScope uint8

const (
	// Local slots belong to one function invocation.
	Local SlotScope = iota
	// GroupData slots are shared by every layer of one batch execution.
	GroupData
)

// SlotInfo describes a storage slot: Len elements of Elem, each either a
// single value or one value per lane.
type SlotInfo struct {
	Name  string
	Elem  Elem
	Wide  bool
	Len   int
	Scope SlotScope
	Owner string // owning function for Local slots
}

// BinOp is a two-operand arithmetic or bitwise operation.
type BinOp uint8

const (
	Add BinOp = iota
	Sub
	Mul
	Div
	Mod
	And
	Or
	Xor
	Shl
	Shr
)

var binOpNames = [...]string{"add", "sub", "mul", "div", "mod", "and", "or", "xor", "shl", "shr"}

func (o BinOp) String() string { return binOpNames[o] }

// UnOp is a one-operand operation.
type UnOp uint8

const (
	Neg UnOp = iota
	Not
	IntToFloat
	FloatToInt
	BoolToInt
	IsFinite
)

var unOpNames = [...]string{"neg", "not", "itof", "ftoi", "btoi", "isfinite"}

func (o UnOp) String() string { return unOpNames[o] }

// Cond is a comparison predicate.
type Cond uint8

const (
	Eq Cond = iota
	Ne
	Lt
	Le
	Gt
	Ge
)

var condNames = [...]string{"eq", "ne", "lt", "le", "gt", "ge"}

func (c Cond) String() string { return condNames[c] }

// Negate returns the opposite predicate.
func (c Cond) Negate() Cond {
	switch c {
	case Eq:
		return Ne
	case Ne:
		return Eq
	case Lt:
		return Ge
	case Le:
		return Gt
	case Gt:
		return Le
	default:
		return Lt
	}
}

// Instr is a wide IR instruction.
type Instr interface {
	implInstr()
}

// Iconst materialises a scalar constant; the field matching Dest's type is used.
type Iconst struct {
	Dest  Value
	Int   int32
	Float float32
	Bool  bool
	Str   string
}

// Ibinary computes Dest = A op B.
type Ibinary struct {
	Dest Value
	Op   BinOp
	A, B Value
}

// Iunary computes Dest = op A.
type Iunary struct {
	Dest Value
	Op   UnOp
	A    Value
}

// Icmp computes the boolean Dest = A cond B.
type Icmp struct {
	Dest Value
	Cond Cond
	A, B Value
}

// Iselect computes Dest = Cond ? T : F, per lane when Cond is wide.
type Iselect struct {
	Dest, Cond, T, F Value
}

// Ibroadcast widens a scalar to every lane.
type Ibroadcast struct {
	Dest, Src Value
}

// Iextract reads lane Lane of a wide value.
type Iextract struct {
	Dest, Src, Lane Value
}

// Imaskbits packs a mask into an int, bit i for lane i.
type Imaskbits struct {
	Dest, Mask Value
}

// Imaskfrom unpacks an int into a mask.
type Imaskfrom struct {
	Dest, Bits Value
}

// Ifirstlane yields the lowest active lane of a mask (Width if none).
type Ifirstlane struct {
	Dest, Mask Value
}

// Iaddr takes the address of element Offset of a slot.
type Iaddr struct {
	Dest   Value
	Slot   Slot
	Offset int
}

// Iload reads element Offset (+ Index*Stride when Index is set) of a slot.
type Iload struct {
	Dest   Value
	Slot   Slot
	Offset int
	Index  Value
	Stride int
}

// Istore writes element Offset (+ Index*Stride) of a slot, only in lanes
// enabled by Mask when Mask is set.
type Istore struct {
	Slot   Slot
	Offset int
	Index  Value
	Stride int
	Src    Value
	Mask   Value
}

// Icall calls an external runtime routine by name.
type Icall struct {
	Dest Value
	Func string
	Args []Value
}

// Icallfn calls another function of the same module.
type Icallfn struct {
	Func string
	Args []Value
}

// Ibr is an unconditional branch.
type Ibr struct {
	Target Block
}

// Icondbr branches on a scalar bool.
type Icondbr struct {
	Cond       Value
	Then, Else Block
}

// Iret returns from the function.
type Iret struct{}

// Iunreachable terminates a block control never reaches.
type Iunreachable struct{}

func (Iconst) implInstr()       {}
func (Ibinary) implInstr()      {}
func (Iunary) implInstr()       {}
func (Icmp) implInstr()         {}
func (Iselect) implInstr()      {}
func (Ibroadcast) implInstr()   {}
func (Iextract) implInstr()     {}
func (Imaskbits) implInstr()    {}
func (Imaskfrom) implInstr()    {}
func (Ifirstlane) implInstr()   {}
func (Iaddr) implInstr()        {}
func (Iload) implInstr()        {}
func (Istore) implInstr()       {}
func (Icall) implInstr()        {}
func (Icallfn) implInstr()      {}
func (Ibr) implInstr()          {}
func (Icondbr) implInstr()      {}
func (Iret) implInstr()         {}
func (Iunreachable) implInstr() {}

// IsTerminator reports whether i ends a basic block.
func IsTerminator(i Instr) bool {
	switch i.(type) {
	case Ibr, Icondbr, Iret, Iunreachable:
		return true
	}
	return false
}

// Successors returns the blocks a terminator may transfer control to.
func Successors(i Instr) []Block {
	switch t := i.(type) {
	case Ibr:
		return []Block{t.Target}
	case Icondbr:
		return []Block{t.Then, t.Else}
	}
	return nil
}

// BasicBlock is a straight-line instruction sequence ending in a terminator.
type BasicBlock struct {
	Name   string
	Instrs []Instr
}

// Terminator returns the block's final instruction if it is a terminator.
func (b *BasicBlock) Terminator() Instr {
	if len(b.Instrs) == 0 {
		return nil
	}
	if last := b.Instrs[len(b.Instrs)-1]; IsTerminator(last) {
		return last
	}
	return nil
}

// Function is one generated routine.
type Function struct {
	Name   string
	Params []Value
	Blocks []*BasicBlock
	Entry  Block

	// arena of value types, indexed by Value (entry 0 unused)
	types []Type
}

// TypeOf returns the type of v.
func (f *Function) TypeOf(v Value) Type {
	if v <= 0 || int(v) >= len(f.types) {
		return VoidType
	}
	return f.types[v]
}

// NumValues returns the size of the value arena.
func (f *Function) NumValues() int { return len(f.types) }

func (f *Function) newValue(t Type) Value {
	if len(f.types) == 0 {
		f.types = append(f.types, VoidType)
	}
	f.types = append(f.types, t)
	return Value(len(f.types) - 1)
}

// Module is the unit of generation: storage slots plus functions.
type Module struct {
	Name  string
	Width int
	Slots []SlotInfo
	Funcs []*Function
	Entry string
}

// NewModule creates an empty module for the given lane count.
func NewModule(name string, width int) *Module {
	return &Module{Name: name, Width: width}
}

// NewSlot allocates a storage slot.
func (m *Module) NewSlot(info SlotInfo) Slot {
	if info.Len <= 0 {
		info.Len = 1
	}
	m.Slots = append(m.Slots, info)
	return Slot(len(m.Slots) - 1)
}

// Slot returns the description of s.
func (m *Module) Slot(s Slot) SlotInfo { return m.Slots[s] }

// FindSlot looks a slot up by name and scope.
func (m *Module) FindSlot(name string) (Slot, bool) {
	for i, s := range m.Slots {
		if s.Name == name {
			return Slot(i), true
		}
	}
	return NoSlot, false
}

// Func returns the function named name, or nil.
func (m *Module) Func(name string) *Function {
	for _, f := range m.Funcs {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Externals returns the distinct runtime routines called by the module, in
// first-use order.
func (m *Module) Externals() []string {
	seen := make(map[string]bool)
	var out []string
	for _, f := range m.Funcs {
		for _, b := range f.Blocks {
			for _, i := range b.Instrs {
				if c, ok := i.(Icall); ok && !seen[c.Func] {
					seen[c.Func] = true
					out = append(out, c.Func)
				}
			}
		}
	}
	return out
}
