package wir

import (
	"fmt"
	"io"
	"strconv"
)

// Printer renders a module as text, one instruction per line.
type Printer struct {
	w io.Writer
	m *Module
}

// NewPrinter creates a new printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// PrintModule prints the module's slots followed by its functions.
func (p *Printer) PrintModule(m *Module) {
	p.m = m
	fmt.Fprintf(p.w, "module %q width %d\n", m.Name, m.Width)
	for i, s := range m.Slots {
		scope := "local " + s.Owner
		if s.Scope == GroupData {
			scope = "groupdata"
		}
		kind := s.Elem.String()
		if s.Wide {
			kind = "w" + kind
		}
		fmt.Fprintf(p.w, "slot s%d %q %s[%d] %s\n", i, s.Name, kind, s.Len, scope)
	}
	for _, f := range m.Funcs {
		fmt.Fprintln(p.w)
		p.PrintFunction(f)
	}
}

// PrintFunction prints one function.
func (p *Printer) PrintFunction(f *Function) {
	fmt.Fprintf(p.w, "func %s(", f.Name)
	for i, v := range f.Params {
		if i > 0 {
			fmt.Fprint(p.w, ", ")
		}
		fmt.Fprintf(p.w, "%%%d: %s", v, f.TypeOf(v))
	}
	fmt.Fprintln(p.w, ") {")
	for i, b := range f.Blocks {
		fmt.Fprintf(p.w, "%s:\n", blockLabel(f, Block(i)))
		for _, instr := range b.Instrs {
			fmt.Fprint(p.w, "  ")
			p.printInstr(f, instr)
			fmt.Fprintln(p.w)
		}
	}
	fmt.Fprintln(p.w, "}")
}

func blockLabel(f *Function, b Block) string {
	if int(b) < 0 || int(b) >= len(f.Blocks) {
		return "?" + strconv.Itoa(int(b))
	}
	return f.Blocks[b].Name + "." + strconv.Itoa(int(b))
}

func (p *Printer) def(f *Function, v Value) {
	fmt.Fprintf(p.w, "%%%d:%s = ", v, f.TypeOf(v))
}

func (p *Printer) slotName(s Slot) string {
	if p.m != nil && int(s) >= 0 && int(s) < len(p.m.Slots) {
		return p.m.Slots[s].Name
	}
	return "s" + strconv.Itoa(int(s))
}

func (p *Printer) element(off int, idx Value, stride int) string {
	if idx == NoValue {
		return strconv.Itoa(off)
	}
	return fmt.Sprintf("%d+%%%d*%d", off, idx, stride)
}

func (p *Printer) printInstr(f *Function, instr Instr) {
	switch i := instr.(type) {
	case Iconst:
		p.def(f, i.Dest)
		switch f.TypeOf(i.Dest).Elem {
		case Int:
			fmt.Fprintf(p.w, "const %d", i.Int)
		case Float:
			fmt.Fprintf(p.w, "const %v", i.Float)
		case Bool:
			fmt.Fprintf(p.w, "const %t", i.Bool)
		case String:
			fmt.Fprintf(p.w, "const %q", i.Str)
		}
	case Ibinary:
		p.def(f, i.Dest)
		fmt.Fprintf(p.w, "%s %%%d, %%%d", i.Op, i.A, i.B)
	case Iunary:
		p.def(f, i.Dest)
		fmt.Fprintf(p.w, "%s %%%d", i.Op, i.A)
	case Icmp:
		p.def(f, i.Dest)
		fmt.Fprintf(p.w, "cmp %s %%%d, %%%d", i.Cond, i.A, i.B)
	case Iselect:
		p.def(f, i.Dest)
		fmt.Fprintf(p.w, "select %%%d, %%%d, %%%d", i.Cond, i.T, i.F)
	case Ibroadcast:
		p.def(f, i.Dest)
		fmt.Fprintf(p.w, "broadcast %%%d", i.Src)
	case Iextract:
		p.def(f, i.Dest)
		fmt.Fprintf(p.w, "extract %%%d[%%%d]", i.Src, i.Lane)
	case Imaskbits:
		p.def(f, i.Dest)
		fmt.Fprintf(p.w, "maskbits %%%d", i.Mask)
	case Imaskfrom:
		p.def(f, i.Dest)
		fmt.Fprintf(p.w, "maskfrom %%%d", i.Bits)
	case Ifirstlane:
		p.def(f, i.Dest)
		fmt.Fprintf(p.w, "firstlane %%%d", i.Mask)
	case Iaddr:
		p.def(f, i.Dest)
		fmt.Fprintf(p.w, "addr %s[%d]", p.slotName(i.Slot), i.Offset)
	case Iload:
		p.def(f, i.Dest)
		fmt.Fprintf(p.w, "load %s[%s]", p.slotName(i.Slot), p.element(i.Offset, i.Index, i.Stride))
	case Istore:
		fmt.Fprintf(p.w, "store %s[%s] = %%%d", p.slotName(i.Slot), p.element(i.Offset, i.Index, i.Stride), i.Src)
		if i.Mask != NoValue {
			fmt.Fprintf(p.w, " mask %%%d", i.Mask)
		}
	case Icall:
		if i.Dest != NoValue {
			p.def(f, i.Dest)
		}
		fmt.Fprintf(p.w, "call %s(", i.Func)
		p.args(i.Args)
		fmt.Fprint(p.w, ")")
	case Icallfn:
		fmt.Fprintf(p.w, "callfn %s(", i.Func)
		p.args(i.Args)
		fmt.Fprint(p.w, ")")
	case Ibr:
		fmt.Fprintf(p.w, "br %s", blockLabel(f, i.Target))
	case Icondbr:
		fmt.Fprintf(p.w, "condbr %%%d, %s, %s", i.Cond, blockLabel(f, i.Then), blockLabel(f, i.Else))
	case Iret:
		fmt.Fprint(p.w, "ret")
	case Iunreachable:
		fmt.Fprint(p.w, "unreachable")
	default:
		fmt.Fprint(p.w, "???")
	}
}

func (p *Printer) args(vs []Value) {
	for j, a := range vs {
		if j > 0 {
			fmt.Fprint(p.w, ", ")
		}
		fmt.Fprintf(p.w, "%%%d", a)
	}
}
