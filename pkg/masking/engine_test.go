package masking

import (
	"errors"
	"testing"

	"github.com/AlexMWells/OpenShadingLanguage/pkg/interp"
	"github.com/AlexMWells/OpenShadingLanguage/pkg/wir"
)

const width = 8

// harness builds a function main(start mask) with an engine and a result
// slot, and runs it.
type harness struct {
	t   *testing.T
	m   *wir.Module
	b   *wir.Builder
	e   *Engine
	out wir.Slot
}

func newHarness(t *testing.T) *harness {
	m := wir.NewModule("t", width)
	b := wir.NewBuilder(m)
	b.BeginFunction("main", wir.MaskType)
	out := m.NewSlot(wir.SlotInfo{Name: "out", Elem: wir.Int, Len: 4})
	return &harness{t: t, m: m, b: b, e: New(b), out: out}
}

func (h *harness) lanes(bits uint32) wir.Value {
	return h.b.MaskFrom(h.b.ConstInt(int32(bits)))
}

// record stores the bits of the current mask in out[i].
func (h *harness) record(i int) {
	h.b.Store(h.out, i, h.b.MaskBits(h.e.CurrentMask()))
}

func (h *harness) run(start uint32) []int32 {
	h.t.Helper()
	h.b.Ret()
	// blocks handed to the engine as targets are never filled here
	for i, blk := range h.b.Function().Blocks {
		if blk.Terminator() == nil {
			h.b.SetInsertPoint(wir.Block(i))
			h.b.Unreachable()
		}
	}
	if err := wir.Verify(h.m); err != nil {
		h.t.Fatal(err)
	}
	mach := interp.NewMachine(h.m, nil, nil)
	if err := mach.Run("main", interp.Mask(start, width)); err != nil {
		h.t.Fatal(err)
	}
	return mach.Memory().Slots[h.out].I
}

func expectContract(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		err, ok := r.(error)
		var ce *ContractError
		if !ok || !errors.As(err, &ce) {
			t.Errorf("%s: expected ContractError panic, got %v", name, r)
		}
	}()
	fn()
}

func TestPushCombinesWithMaskBelow(t *testing.T) {
	tests := []struct {
		name   string
		negate [2]bool
		want   uint32
	}{
		{"plain plain", [2]bool{false, false}, 0xF0 & 0x3C & 0x66},
		{"plain negated", [2]bool{false, true}, 0xF0 & 0x3C &^ 0x66},
		{"negated plain", [2]bool{true, false}, 0xF0 &^ 0x3C & 0x66},
		{"negated negated", [2]bool{true, true}, 0xF0 &^ 0x3C &^ 0x66},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			r0 := h.e.PushMask(h.b.Param(0), false, true)
			r1 := h.e.PushMask(h.lanes(0x3C), tt.negate[0], false)
			r2 := h.e.PushMask(h.lanes(0x66), tt.negate[1], false)
			h.record(0)
			r2()
			r1()
			h.record(1)
			r0()
			if !h.e.Balanced() {
				t.Errorf("depths = %+v", h.e.Depth())
			}
			got := h.run(0xF0)
			if uint32(got[0]) != tt.want {
				t.Errorf("mask = %08b, want %08b", got[0], tt.want)
			}
			if got[1] != 0xF0 {
				t.Errorf("after pops mask = %08b, want start", got[1])
			}
		})
	}
}

func TestAbsolutePushIgnoresMaskBelow(t *testing.T) {
	h := newHarness(t)
	r0 := h.e.PushMask(h.lanes(0x0F), false, true)
	r1 := h.e.PushMask(h.lanes(0xF0), false, true)
	h.record(0)
	r1()
	r0()
	if got := h.run(0xFF); got[0] != 0xF0 {
		t.Errorf("mask = %08b", got[0])
	}
}

func TestReleaseOrder(t *testing.T) {
	h := newHarness(t)
	r0 := h.e.PushMask(h.b.Param(0), false, true)
	r1 := h.e.PushLoop(wir.Block(0), wir.Block(0))
	expectContract(t, "out of order", func() { r0() })
	r1()
	expectContract(t, "twice", func() { r1() })
	r0()
	if !h.e.Balanced() {
		t.Errorf("unbalanced: %+v", h.e.Depth())
	}
}

func TestMaskedReturn(t *testing.T) {
	h := newHarness(t)
	release := h.e.PushFunctionMask(h.b.Param(0))
	_, releaseFn := h.e.PushFunction(h.b.NewBlock("exit"))
	before := h.e.MaskedReturnCount()
	r := h.e.PushMask(h.lanes(0b0000_0110), false, false)
	h.e.OpMaskedReturn()
	r()
	if h.e.MaskedReturnCount() != before+1 {
		t.Errorf("return count = %d", h.e.MaskedReturnCount())
	}
	h.e.ApplyReturnToMaskStack()
	h.record(0)
	h.b.Store(h.out, 1, h.b.MaskBits(h.e.ApplyReturnTo(h.lanes(0b0011_0011))))
	releaseFn()
	release()

	got := h.run(0b0000_1111)
	if got[0] != 0b0000_1001 {
		t.Errorf("mask after return = %08b, want 00001001", got[0])
	}
	if got[1] != 0b0000_0001 {
		t.Errorf("ApplyReturnTo = %08b", got[1])
	}
}

func TestReturnAppliedOnce(t *testing.T) {
	h := newHarness(t)
	release := h.e.PushFunctionMask(h.b.Param(0))
	r := h.e.PushMask(h.lanes(0x01), false, false)
	h.e.OpMaskedReturn()
	r()
	h.e.ApplyReturnToMaskStack()
	n := len(h.b.Function().Blocks[h.b.InsertPoint()].Instrs)
	h.e.ApplyReturnToMaskStack()
	if len(h.b.Function().Blocks[h.b.InsertPoint()].Instrs) != n {
		t.Error("second apply emitted code")
	}
	release()
	h.run(0xFF)
}

func TestMaskedBreakAndContinue(t *testing.T) {
	h := newHarness(t)
	release := h.e.PushFunctionMask(h.b.Param(0))
	control := h.e.NewMaskSlot("control")
	cont := h.e.NewMaskSlot("continue")
	h.b.Store(control, 0, h.e.CurrentMask())
	h.b.Store(cont, 0, h.b.WideBool(false))
	rl := h.e.PushLoop(h.b.NewBlock("step"), h.b.NewBlock("after"))
	rml := h.e.PushMaskedLoop(control, cont)
	body := h.e.PushMask(h.b.Param(0), false, true)

	r := h.e.PushMask(h.lanes(0b0001), false, false)
	h.e.OpMaskedBreak()
	r()
	h.e.ApplyBreakToMaskStack()
	h.record(0)

	r = h.e.PushMask(h.lanes(0b0010), false, false)
	h.e.OpMaskedContinue()
	r()
	h.e.ApplyContinueToMaskStack()
	h.record(1)
	if h.e.MaskedBreakCount() != 1 || h.e.MaskedContinueCount() != 1 {
		t.Errorf("counts = %d/%d", h.e.MaskedBreakCount(), h.e.MaskedContinueCount())
	}
	body()
	rml()
	rl()
	h.b.Store(h.out, 2, h.b.MaskBits(h.b.Load(control, 0)))
	release()

	got := h.run(0b1111)
	if got[0] != 0b1110 {
		t.Errorf("after break = %04b", got[0])
	}
	if got[1] != 0b1100 {
		t.Errorf("after continue = %04b", got[1])
	}
	if got[2] != 0b1110 {
		t.Errorf("control = %04b", got[2])
	}
}

func TestNegatedEntryFolding(t *testing.T) {
	h := newHarness(t)
	release := h.e.PushFunctionMask(h.b.Param(0))
	elseArm := h.e.PushMask(h.lanes(0b0011), true, false) // else arm: lanes 2..7
	r := h.e.PushMask(h.lanes(0b0100), false, false)
	h.e.OpMaskedReturn()
	r()
	h.e.ApplyReturnToMaskStack()
	h.record(0)
	elseArm()
	release()
	if got := h.run(0xFF); got[0] != 0b1111_1000 {
		t.Errorf("mask = %08b", got[0])
	}
}

func TestExitAcrossInlinedCalls(t *testing.T) {
	h := newHarness(t)
	exitBlock := h.b.NewBlock("exit")
	outer := h.e.PushFunctionMask(h.b.Param(0))
	_, outerFn := h.e.PushFunction(exitBlock)

	exitsBefore := h.e.MaskedExitCount()
	inner := h.e.PushFunctionMask(h.e.CurrentMask())
	_, innerFn := h.e.PushFunction(h.b.NewBlock("after_call"))
	if !h.e.InsideFunction() || h.e.ExitInstanceBlock() != exitBlock {
		t.Error("function scope bookkeeping wrong")
	}
	r := h.e.PushMask(h.lanes(0b0101), false, false)
	h.e.OpMaskedExit()
	r()
	innerFn()
	inner()

	if h.e.MaskedExitCount() <= exitsBefore {
		t.Fatal("exit not counted")
	}
	h.e.ApplyExitToMaskStack()
	h.record(0)
	outerFn()
	outer()

	if got := h.run(0b1111); got[0] != 0b1010 {
		t.Errorf("caller mask after exit = %04b", got[0])
	}
}

func TestMaskedReturnBlocksArePerFunction(t *testing.T) {
	h := newHarness(t)
	outer := h.e.PushFunctionMask(h.b.Param(0))
	mrb := h.e.PushMaskedReturnBlock(h.b.NewBlock("test_else"))
	inner := h.e.PushFunctionMask(h.e.CurrentMask())
	if h.e.HasMaskedReturnBlock() {
		t.Error("callee sees its caller's masked return block")
	}
	inner()
	if !h.e.HasMaskedReturnBlock() {
		t.Error("caller lost its masked return block")
	}
	mrb()
	outer()
	h.run(0xFF)
}

func TestUniformLoopBranchUnderVaryingCondition(t *testing.T) {
	h := newHarness(t)
	release := h.e.PushFunctionMask(h.b.Param(0))
	step, after := h.b.NewBlock("step"), h.b.NewBlock("after")
	rl := h.e.PushLoop(step, after)
	rml := h.e.PushMaskedLoop(wir.NoSlot, wir.NoSlot)

	if got := h.e.LoopBranchTarget(false); got != after {
		t.Errorf("break target = %d", got)
	}
	if got := h.e.LoopBranchTarget(true); got != step {
		t.Errorf("continue target = %d", got)
	}
	r := h.e.PushMask(h.lanes(1), false, false)
	expectContract(t, "varying break in uniform loop", func() { h.e.LoopBranchTarget(false) })
	expectContract(t, "masked break in uniform loop", func() { h.e.OpMaskedBreak() })
	r()
	rml()
	rl()
	release()
}

func TestTestIfMaskIsNonZero(t *testing.T) {
	for _, start := range []uint32{0, 0x10} {
		h := newHarness(t)
		nz := h.e.TestIfMaskIsNonZero(h.b.Param(0))
		h.b.Store(h.out, 0, h.b.Unary(wir.BoolToInt, nz))
		got := h.run(start)
		if (got[0] == 1) != (start != 0) {
			t.Errorf("start %x: nonzero = %d", start, got[0])
		}
	}
}
