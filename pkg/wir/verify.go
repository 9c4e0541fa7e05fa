package wir

import "fmt"

// Verify checks structural well-formedness of every function of m: each
// block ends in exactly one terminator, branch targets exist, and every
// operand refers to a value of the function.
func Verify(m *Module) error {
	for _, f := range m.Funcs {
		if err := VerifyFunction(f); err != nil {
			return err
		}
	}
	return nil
}

// VerifyFunction checks a single function.
func VerifyFunction(f *Function) error {
	if len(f.Blocks) == 0 {
		return fmt.Errorf("wir: %s has no blocks", f.Name)
	}
	for bi, b := range f.Blocks {
		if b.Terminator() == nil {
			return fmt.Errorf("wir: %s: block %s is not terminated", f.Name, blockLabel(f, Block(bi)))
		}
		for ii, instr := range b.Instrs {
			if ii < len(b.Instrs)-1 && IsTerminator(instr) {
				return fmt.Errorf("wir: %s: terminator in the middle of %s", f.Name, blockLabel(f, Block(bi)))
			}
			for _, s := range Successors(instr) {
				if int(s) < 0 || int(s) >= len(f.Blocks) {
					return fmt.Errorf("wir: %s: branch to missing block %d", f.Name, s)
				}
			}
			for _, v := range Uses(instr) {
				if v <= 0 || int(v) >= f.NumValues() {
					return fmt.Errorf("wir: %s: use of undefined value %%%d", f.Name, v)
				}
			}
		}
	}
	return nil
}

// Uses returns the operands read by an instruction.
func Uses(i Instr) []Value {
	var out []Value
	add := func(vs ...Value) {
		for _, v := range vs {
			if v != NoValue {
				out = append(out, v)
			}
		}
	}
	switch t := i.(type) {
	case Ibinary:
		add(t.A, t.B)
	case Iunary:
		add(t.A)
	case Icmp:
		add(t.A, t.B)
	case Iselect:
		add(t.Cond, t.T, t.F)
	case Ibroadcast:
		add(t.Src)
	case Iextract:
		add(t.Src, t.Lane)
	case Imaskbits:
		add(t.Mask)
	case Imaskfrom:
		add(t.Bits)
	case Ifirstlane:
		add(t.Mask)
	case Iload:
		add(t.Index)
	case Istore:
		add(t.Index, t.Src, t.Mask)
	case Icall:
		add(t.Args...)
	case Icallfn:
		add(t.Args...)
	case Icondbr:
		add(t.Cond)
	}
	return out
}
