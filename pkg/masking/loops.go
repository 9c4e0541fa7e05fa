package masking

import "github.com/AlexMWells/OpenShadingLanguage/pkg/wir"

// PushLoop opens a loop whose continue target is step and break target is
// after.
func (e *Engine) PushLoop(step, after wir.Block) Release {
	e.loops = append(e.loops, loop{step: step, after: after, maskDepth: len(e.masks)})
	return e.guard("loop", func() { e.loops = e.loops[:len(e.loops)-1] })
}

func (e *Engine) innerLoop() *loop {
	if len(e.loops) == 0 {
		e.fail("not inside a loop")
	}
	return &e.loops[len(e.loops)-1]
}

// LoopStepBlock is the continue target of the innermost loop.
func (e *Engine) LoopStepBlock() wir.Block { return e.innerLoop().step }

// LoopAfterBlock is the break target of the innermost loop.
func (e *Engine) LoopAfterBlock() wir.Block { return e.innerLoop().after }

// LoopBranchTarget returns where a break (or continue) of a uniform loop
// branches. Breaking out of a uniform loop from under a varying condition
// would leave the loop with lanes still disabled, so it is refused.
func (e *Engine) LoopBranchTarget(isContinue bool) wir.Block {
	l := e.innerLoop()
	if e.IsInnermostLoopMasked() {
		e.fail("branch out of a masked loop")
	}
	if len(e.masks) > l.maskDepth {
		e.fail("break or continue under a varying condition inside a uniform loop")
	}
	if isContinue {
		return l.step
	}
	return l.after
}

// PushMaskedLoop records the control and continue mask slots of the
// innermost loop. Uniform loops push wir.NoSlot for both.
func (e *Engine) PushMaskedLoop(control, cont wir.Slot) Release {
	if control == wir.NoSlot && cont != wir.NoSlot {
		e.fail("continue mask without a control mask")
	}
	e.maskedLoops = append(e.maskedLoops, maskedLoop{control: control, cont: cont})
	return e.guard("masked loop", func() { e.maskedLoops = e.maskedLoops[:len(e.maskedLoops)-1] })
}

func (e *Engine) innerMaskedLoop() *maskedLoop {
	if len(e.maskedLoops) == 0 {
		e.fail("not inside a loop")
	}
	return &e.maskedLoops[len(e.maskedLoops)-1]
}

// IsInnermostLoopMasked reports whether the innermost loop runs under a
// control mask.
func (e *Engine) IsInnermostLoopMasked() bool {
	return len(e.maskedLoops) > 0 && e.maskedLoops[len(e.maskedLoops)-1].control != wir.NoSlot
}

// MaskedBreakCount is the number of masked breaks of the innermost loop.
func (e *Engine) MaskedBreakCount() int {
	if len(e.maskedLoops) == 0 {
		return 0
	}
	return e.innerMaskedLoop().breakCount
}

// MaskedContinueCount is the number of masked continues of the innermost loop.
func (e *Engine) MaskedContinueCount() int {
	if len(e.maskedLoops) == 0 {
		return 0
	}
	return e.innerMaskedLoop().continueCount
}

// OpMaskedBreak removes the executing lanes from the loop's control mask.
func (e *Engine) OpMaskedBreak() {
	l := e.innerMaskedLoop()
	if l.control == wir.NoSlot {
		e.fail("masked break in a uniform loop")
	}
	e.clearLanes(l.control, e.CurrentMask())
	l.breakCount++
}

// OpMaskedContinue adds the executing lanes to the loop's continue mask.
func (e *Engine) OpMaskedContinue() {
	l := e.innerMaskedLoop()
	if l.cont == wir.NoSlot {
		e.fail("masked continue in a loop without a continue mask")
	}
	v := e.b.Load(l.cont, 0)
	e.b.Store(l.cont, 0, e.b.Or(v, e.CurrentMask()))
	l.continueCount++
}

// ApplyBreakToMaskStack folds the loop's control mask into the top of the
// mask stack.
func (e *Engine) ApplyBreakToMaskStack() {
	l := e.innerMaskedLoop()
	t := e.top()
	if l.control == wir.NoSlot || t.appliedBreaks >= l.breakCount {
		return
	}
	e.fold(e.b.Load(l.control, 0))
	e.top().appliedBreaks = l.breakCount
}

// ApplyContinueToMaskStack removes continued lanes from the top of the
// mask stack.
func (e *Engine) ApplyContinueToMaskStack() {
	l := e.innerMaskedLoop()
	t := e.top()
	if l.cont == wir.NoSlot || t.appliedContinues >= l.continueCount {
		return
	}
	e.fold(e.b.Not(e.b.Load(l.cont, 0)))
	e.top().appliedContinues = l.continueCount
}
