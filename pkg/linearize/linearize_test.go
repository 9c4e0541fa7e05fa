package linearize

import (
	"testing"

	"github.com/AlexMWells/OpenShadingLanguage/pkg/wir"
)

// diamond builds entry -> (then|else) -> after, plus a dead block.
func diamond() (*wir.Module, *wir.Function) {
	m := wir.NewModule("t", 8)
	b := wir.NewBuilder(m)
	f := b.BeginFunction("f")
	dead := b.NewBlock("dead")
	after := b.NewBlock("after")
	els := b.NewBlock("else")
	then := b.NewBlock("then")
	b.CondBr(b.ConstBool(true), then, els)
	b.Br(after)
	b.SetInsertPoint(els)
	b.Br(after)
	b.Ret()
	b.SetInsertPoint(dead)
	b.Unreachable()
	return m, f
}

func blockNames(f *wir.Function) []string {
	var out []string
	for _, b := range f.Blocks {
		out = append(out, b.Name)
	}
	return out
}

func TestLinearizeOrder(t *testing.T) {
	_, f := diamond()
	Linearize(f)

	got := blockNames(f)
	want := []string{"entry", "then", "else", "after"}
	if len(got) != len(want) {
		t.Fatalf("blocks = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("block %d = %s, want %s", i, got[i], want[i])
		}
	}
	if f.Entry != 0 {
		t.Errorf("entry = %d", f.Entry)
	}
	cb, ok := f.Blocks[0].Terminator().(wir.Icondbr)
	if !ok || cb.Then != 1 || cb.Else != 2 {
		t.Errorf("entry terminator = %#v", f.Blocks[0].Terminator())
	}
	if err := wir.VerifyFunction(f); err != nil {
		t.Error(err)
	}
}

func TestLinearizeDropsUnreachable(t *testing.T) {
	_, f := diamond()
	Linearize(f)
	for _, b := range f.Blocks {
		if b.Name == "dead" {
			t.Error("dead block survived")
		}
	}
}

func TestLinearizeEmpty(t *testing.T) {
	f := &wir.Function{Name: "empty"}
	Linearize(f)
	if len(f.Blocks) != 0 {
		t.Error("expected no blocks")
	}
}

func TestMergeBlocks(t *testing.T) {
	m := wir.NewModule("t", 8)
	b := wir.NewBuilder(m)
	f := b.BeginFunction("f")
	next := b.NewBlock("next")
	b.ConstInt(1)
	b.Br(next)
	b.ConstInt(2)
	b.Ret()

	Linearize(f)
	MergeBlocks(f)
	if len(f.Blocks) != 1 {
		t.Fatalf("blocks = %v, want a single merged block", blockNames(f))
	}
	if n := len(f.Blocks[0].Instrs); n != 3 {
		t.Errorf("merged block has %d instrs, want 3", n)
	}
}

func TestModulePipeline(t *testing.T) {
	m, f := diamond()
	Module(m)
	if err := wir.Verify(m); err != nil {
		t.Fatal(err)
	}
	// then/else are empty forwarding blocks and get tunneled away
	if len(f.Blocks) != 2 {
		t.Errorf("blocks = %v", blockNames(f))
	}
}
