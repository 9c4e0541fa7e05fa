package wir

import (
	"errors"
	"testing"
)

func newTestBuilder() *Builder {
	m := NewModule("test", 8)
	b := NewBuilder(m)
	b.BeginFunction("f", MaskType)
	return b
}

// expectContract runs fn and reports whether it panicked with a ContractError.
func expectContract(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Errorf("%s: expected contract panic", name)
			return
		}
		err, ok := r.(error)
		var ce *ContractError
		if !ok || !errors.As(err, &ce) {
			t.Errorf("%s: panic %v is not a ContractError", name, r)
		}
	}()
	fn()
}

func TestBuilderTypes(t *testing.T) {
	b := newTestBuilder()
	i := b.ConstInt(3)
	f := b.ConstFloat(1.5)
	wf := b.Broadcast(f)

	tests := []struct {
		name string
		v    Value
		want Type
	}{
		{"const int", i, IntType},
		{"const float", f, FloatType},
		{"broadcast", wf, Wide(Float)},
		{"add", b.Add(wf, wf), Wide(Float)},
		{"cmp", b.Cmp(Lt, wf, wf), MaskType},
		{"itof", b.Unary(IntToFloat, i), FloatType},
		{"maskbits", b.MaskBits(b.Param(0)), IntType},
		{"maskfrom", b.MaskFrom(i), MaskType},
		{"extract", b.Extract(wf, i), FloatType},
		{"widen wide", b.Widen(wf), Wide(Float)},
		{"widen scalar", b.Widen(i), Wide(Int)},
	}
	for _, tt := range tests {
		if got := b.TypeOf(tt.v); got != tt.want {
			t.Errorf("%s: type = %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestBuilderRejectsWidthMix(t *testing.T) {
	b := newTestBuilder()
	s := b.ConstFloat(1)
	w := b.WideFloat(2)
	i := b.ConstInt(1)
	slot := b.Module().NewSlot(SlotInfo{Name: "u", Elem: Float, Len: 1})

	expectContract(t, "add scalar+wide", func() { b.Add(s, w) })
	expectContract(t, "add int+float", func() { b.Add(s, b.Unary(IntToFloat, i)); b.Add(s, i) })
	expectContract(t, "broadcast wide", func() { b.Broadcast(w) })
	expectContract(t, "wide store into uniform slot", func() { b.Store(slot, 0, w) })
	expectContract(t, "masked uniform store", func() { b.StoreMasked(slot, 0, s, b.Param(0)) })
	expectContract(t, "offset out of range", func() { b.Load(slot, 1) })
	expectContract(t, "condbr on mask", func() {
		x := b.NewBlock("x")
		b.CondBr(b.Param(0), x, x)
	})
	expectContract(t, "select wide cond scalar arms", func() { b.Select(b.Param(0), s, s) })
	expectContract(t, "shl float", func() { b.Binary(Shl, s, s) })
}

func TestBuilderBranchMovesInsertPoint(t *testing.T) {
	b := newTestBuilder()
	then := b.NewBlock("then")
	els := b.NewBlock("else")
	b.CondBr(b.ConstBool(true), then, els)
	if b.InsertPoint() != then {
		t.Errorf("insert point = %d, want then", b.InsertPoint())
	}
	b.Br(els)
	if b.InsertPoint() != els {
		t.Errorf("insert point = %d, want else", b.InsertPoint())
	}
	b.Ret()
	if !b.Terminated() {
		t.Error("else should be terminated")
	}
	expectContract(t, "emit after terminator", func() { b.ConstInt(1) })

	if err := VerifyFunction(b.Function()); err != nil {
		t.Errorf("verify: %v", err)
	}
}

func TestVerifyUnterminated(t *testing.T) {
	b := newTestBuilder()
	b.NewBlock("dangling")
	b.Ret()
	if err := Verify(b.Module()); err == nil {
		t.Error("expected unterminated block error")
	}
}

func TestIndexedAccessWidth(t *testing.T) {
	b := newTestBuilder()
	u := b.Module().NewSlot(SlotInfo{Name: "arr", Elem: Int, Len: 4})
	w := b.Module().NewSlot(SlotInfo{Name: "warr", Elem: Int, Wide: true, Len: 4})

	if got := b.TypeOf(b.LoadIndexed(u, 0, b.ConstInt(1), 1)); got != IntType {
		t.Errorf("uniform slot, uniform index: %s", got)
	}
	if got := b.TypeOf(b.LoadIndexed(u, 0, b.WideInt(1), 1)); got != Wide(Int) {
		t.Errorf("uniform slot, varying index: %s", got)
	}
	if got := b.TypeOf(b.LoadIndexed(w, 0, b.ConstInt(1), 1)); got != Wide(Int) {
		t.Errorf("wide slot, uniform index: %s", got)
	}
	expectContract(t, "varying index into uniform store", func() {
		b.StoreIndexed(u, 0, b.WideInt(0), 1, b.ConstInt(1), NoValue)
	})
	b.StoreIndexed(w, 0, b.WideInt(0), 1, b.WideInt(1), b.Param(0))
}

func TestExternals(t *testing.T) {
	b := newTestBuilder()
	b.Call("osl_b8_sin_w8fw8f", VoidType)
	b.Call("osl_b8_cos_w8fw8f", VoidType)
	b.Call("osl_b8_sin_w8fw8f", VoidType)
	b.Ret()
	got := b.Module().Externals()
	if len(got) != 2 || got[0] != "osl_b8_sin_w8fw8f" || got[1] != "osl_b8_cos_w8fw8f" {
		t.Errorf("externals = %v", got)
	}
}

func TestCondNegate(t *testing.T) {
	tests := []struct{ c, want Cond }{
		{Eq, Ne}, {Ne, Eq}, {Lt, Ge}, {Le, Gt}, {Gt, Le}, {Ge, Lt},
	}
	for _, tt := range tests {
		if got := tt.c.Negate(); got != tt.want {
			t.Errorf("Negate(%v) = %v, want %v", tt.c, got, tt.want)
		}
	}
}
