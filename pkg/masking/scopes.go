package masking

import "github.com/AlexMWells/OpenShadingLanguage/pkg/wir"

func (e *Engine) fn() *function {
	if len(e.funcs) == 0 {
		e.fail("not inside a function scope")
	}
	return e.funcs[len(e.funcs)-1]
}

// PushFunctionMask opens the return state of an inlined function (or layer
// body) entered with the lanes of start, and makes start the executing
// mask.
func (e *Engine) PushFunctionMask(start wir.Value) Release {
	f := &function{retMask: e.newMaskSlot("return_mask")}
	e.b.Store(f.retMask, 0, start)
	releaseMask := e.PushMask(start, false, true)
	e.funcs = append(e.funcs, f)
	popFunc := e.guard("function mask", func() { e.funcs = e.funcs[:len(e.funcs)-1] })
	return func() {
		popFunc()
		releaseMask()
	}
}

// PushFunction registers after as the block a uniform return jumps to and
// returns it.
func (e *Engine) PushFunction(after wir.Block) (wir.Block, Release) {
	e.returnBlocks = append(e.returnBlocks, after)
	return after, e.guard("function", func() { e.returnBlocks = e.returnBlocks[:len(e.returnBlocks)-1] })
}

// ReturnBlock is where a uniform return of the innermost function goes.
func (e *Engine) ReturnBlock() wir.Block {
	if len(e.returnBlocks) == 0 {
		e.fail("no return block")
	}
	return e.returnBlocks[len(e.returnBlocks)-1]
}

// ExitInstanceBlock is the return block of the layer body.
func (e *Engine) ExitInstanceBlock() wir.Block {
	if len(e.returnBlocks) == 0 {
		e.fail("no exit block")
	}
	return e.returnBlocks[0]
}

// InsideFunction reports whether code is being generated for an inlined
// function rather than the layer body itself.
func (e *Engine) InsideFunction() bool { return len(e.returnBlocks) > 1 }

// PushMaskedReturnBlock sets the block a masked return or exit jumps to
// after disabling its lanes. The stack belongs to the innermost function,
// so a return never lands in its caller's code.
func (e *Engine) PushMaskedReturnBlock(bl wir.Block) Release {
	f := e.fn()
	f.maskedReturn = append(f.maskedReturn, bl)
	return e.guard("masked return block", func() { f.maskedReturn = f.maskedReturn[:len(f.maskedReturn)-1] })
}

// HasMaskedReturnBlock reports whether the innermost function has one.
func (e *Engine) HasMaskedReturnBlock() bool {
	return len(e.funcs) > 0 && len(e.fn().maskedReturn) > 0
}

// MaskedReturnBlock returns the innermost masked return block.
func (e *Engine) MaskedReturnBlock() wir.Block {
	f := e.fn()
	if len(f.maskedReturn) == 0 {
		e.fail("no masked return block")
	}
	return f.maskedReturn[len(f.maskedReturn)-1]
}

// MaskedReturnCount is the number of masked returns emitted in the
// innermost function so far.
func (e *Engine) MaskedReturnCount() int {
	if len(e.funcs) == 0 {
		return 0
	}
	return e.fn().returnCount
}

// MaskedExitCount is the number of masked exits emitted so far.
func (e *Engine) MaskedExitCount() int { return e.exitCount }

// OpMaskedReturn disables the executing lanes for the rest of the
// innermost function.
func (e *Engine) OpMaskedReturn() {
	f := e.fn()
	cur := e.CurrentMask()
	e.clearLanes(f.retMask, cur)
	f.returnCount++
}

// OpMaskedExit disables the executing lanes for the rest of the layer:
// every enclosing function loses them.
func (e *Engine) OpMaskedExit() {
	cur := e.CurrentMask()
	for _, f := range e.funcs {
		e.clearLanes(f.retMask, cur)
	}
	e.exitCount++
	e.fn().returnCount++
}

func (e *Engine) clearLanes(s wir.Slot, lanes wir.Value) {
	v := e.b.Load(s, 0)
	e.b.Store(s, 0, e.b.And(v, e.b.Not(lanes)))
}

// ApplyReturnTo removes returned lanes of the innermost function from m.
func (e *Engine) ApplyReturnTo(m wir.Value) wir.Value {
	return e.b.And(m, e.b.Load(e.fn().retMask, 0))
}

// ApplyReturnToMaskStack folds returns not yet seen by the top of the mask
// stack into it.
func (e *Engine) ApplyReturnToMaskStack() {
	f := e.fn()
	t := e.top()
	if t.appliedReturns >= f.returnCount {
		return
	}
	e.fold(e.b.Load(f.retMask, 0))
	e.top().appliedReturns = f.returnCount
}

// ApplyExitToMaskStack is called in the caller after an inlined call whose
// body exited: the exit counts as a return of the caller.
func (e *Engine) ApplyExitToMaskStack() {
	e.fn().returnCount++
	e.ApplyReturnToMaskStack()
}

func (e *Engine) newMaskSlot(name string) wir.Slot {
	owner := ""
	if f := e.b.Function(); f != nil {
		owner = f.Name
	}
	return e.b.Module().NewSlot(wir.SlotInfo{
		Name:  name,
		Elem:  wir.Bool,
		Wide:  true,
		Len:   1,
		Scope: wir.Local,
		Owner: owner,
	})
}

// NewMaskSlot allocates a local slot holding one mask, for loop control
// and continue masks.
func (e *Engine) NewMaskSlot(name string) wir.Slot { return e.newMaskSlot(name) }
