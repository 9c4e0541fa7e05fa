package linearize

import (
	"testing"

	"github.com/AlexMWells/OpenShadingLanguage/pkg/wir"
)

func TestTunnelEmpty(t *testing.T) {
	f := &wir.Function{Name: "empty"}
	Tunnel(f)
	if len(f.Blocks) != 0 {
		t.Errorf("expected no blocks")
	}
}

func TestTunnelSimpleChain(t *testing.T) {
	// entry: br b1; b1: br b2; b2: br b3; b3: ret
	m := wir.NewModule("t", 4)
	b := wir.NewBuilder(m)
	f := b.BeginFunction("chain")
	b1 := b.NewBlock("b1")
	b2 := b.NewBlock("b2")
	b3 := b.NewBlock("b3")
	b.ConstInt(0)
	b.Br(b1)
	b.Br(b2)
	b.Br(b3)
	b.Ret()

	Tunnel(f)

	br, ok := f.Blocks[f.Entry].Terminator().(wir.Ibr)
	if !ok || br.Target != b3 {
		t.Errorf("entry terminator = %#v, want br b3", f.Blocks[f.Entry].Terminator())
	}
}

func TestTunnelConditional(t *testing.T) {
	m := wir.NewModule("t", 4)
	b := wir.NewBuilder(m)
	f := b.BeginFunction("cond")
	fwd := b.NewBlock("fwd")
	done := b.NewBlock("done")
	b.CondBr(b.ConstBool(false), fwd, done)
	b.Br(done)
	b.Ret()

	Tunnel(f)

	cb := f.Blocks[f.Entry].Terminator().(wir.Icondbr)
	if cb.Then != done || cb.Else != done {
		t.Errorf("condbr = %+v, want both arms to done", cb)
	}
}

func TestTunnelCycle(t *testing.T) {
	m := wir.NewModule("t", 4)
	b := wir.NewBuilder(m)
	f := b.BeginFunction("loop")
	a := b.NewBlock("a")
	c := b.NewBlock("c")
	b.ConstInt(0)
	b.Br(a)
	b.Br(c)
	b.Br(a)

	// must terminate
	Tunnel(f)
	if _, ok := f.Blocks[f.Entry].Terminator().(wir.Ibr); !ok {
		t.Error("entry lost its branch")
	}
}
