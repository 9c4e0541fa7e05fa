package batched

import (
	"github.com/AlexMWells/OpenShadingLanguage/pkg/oso"
	"github.com/AlexMWells/OpenShadingLanguage/pkg/wir"
)

// loadMask turns an int (or float) condition into a mask: lanes where it
// is nonzero.
func (x *context) loadMask(cond *oso.Symbol) wir.Value {
	b := x.b
	v := b.Widen(x.load(cond, 0, 0))
	return b.Cmp(wir.Ne, v, x.zero(b.TypeOf(v).Elem, true))
}

// testNonzero is a scalar bool for a uniform condition.
func (x *context) testNonzero(cond *oso.Symbol) wir.Value {
	b := x.b
	v := x.load(cond, 0, 0)
	if b.TypeOf(v).Wide {
		x.fail("uniform test of varying %s", cond.Name)
	}
	return b.Cmp(wir.Ne, v, x.zero(b.TypeOf(v).Elem, false))
}

// anyLanes is true when some lane of the current mask executes.
func (x *context) anyLanes() wir.Value {
	return x.eng.TestIfMaskIsNonZero(x.eng.CurrentMask())
}

// enterMasked moves into bl, skipping to skip when the current mask is
// empty and lane tests are enabled.
func (x *context) enterMasked(bl, skip wir.Block) {
	if x.opts.TestAnyLanes {
		x.b.CondBr(x.anyLanes(), bl, skip)
		return
	}
	x.b.Br(bl)
}

// nextMaskScope is where execution goes once no lane is left in the
// current region.
func (x *context) nextMaskScope() wir.Block {
	eng := x.eng
	switch {
	case eng.HasMaskedReturnBlock():
		return eng.MaskedReturnBlock()
	case eng.InsideFunction():
		return eng.ReturnBlock()
	default:
		return eng.ExitInstanceBlock()
	}
}

// guardLanes leaves the region when the lanes disabled by returns,
// breaks or continues leave none executing.
func (x *context) guardLanes(name string) {
	if !x.opts.TestAnyLanes {
		return
	}
	cont := x.newBlock(name)
	x.b.CondBr(x.anyLanes(), cont, x.nextMaskScope())
}

type flowCounts struct{ ret, brk, cont int }

func (x *context) flowCounts() flowCounts {
	eng := x.eng
	return flowCounts{eng.MaskedReturnCount(), eng.MaskedBreakCount(), eng.MaskedContinueCount()}
}

// applyControlFlow folds masked continues, breaks and returns emitted
// since before into the top of the mask stack.
func (x *context) applyControlFlow(before flowCounts, name string) {
	eng := x.eng
	applied := false
	if eng.MaskedContinueCount() > before.cont {
		eng.ApplyContinueToMaskStack()
		applied = true
	}
	if eng.MaskedBreakCount() > before.brk {
		eng.ApplyBreakToMaskStack()
		applied = true
	}
	if eng.MaskedReturnCount() > before.ret {
		eng.ApplyReturnToMaskStack()
		applied = true
	}
	if applied {
		x.guardLanes(name)
	}
}

func genNop(x *context, op *oso.Opcode) error { return nil }

func genIf(x *context, op *oso.Opcode) error {
	cond := x.arg(op, 0)
	b, eng := x.b, x.eng
	opnum := x.opnum
	hasElse := op.Jump(0) != op.Jump(1)
	before := x.flowCounts()

	if cond.Uniform {
		then := x.newBlock("then")
		els := wir.NoBlock
		if hasElse {
			els = x.newBlock("else")
		}
		after := x.newBlock("after_if")
		target := after
		if hasElse {
			target = els
		}
		b.CondBr(x.testNonzero(cond), then, target)
		if err := x.build(opnum+1, op.Jump(0)); err != nil {
			return err
		}
		b.Br(after)
		if hasElse {
			if err := x.buildIn(els, op.Jump(0), op.Jump(1)); err != nil {
				return err
			}
			b.Br(after)
		}
	} else {
		mask := x.loadMask(cond)
		releaseThen := eng.PushMask(mask, false, false)
		then := x.newBlock("then")
		testElse, els := wir.NoBlock, wir.NoBlock
		if hasElse {
			testElse = x.newBlock("test_else")
			els = x.newBlock("else")
		}
		after := x.newBlock("after_if")
		next := after
		if hasElse {
			next = testElse
		}

		x.enterMasked(then, next)
		releaseRet := eng.PushMaskedReturnBlock(next)
		if err := x.build(opnum+1, op.Jump(0)); err != nil {
			return err
		}
		releaseRet()
		releaseThen()
		b.Br(next)

		if hasElse {
			releaseElse := eng.PushMask(mask, true, false)
			x.enterMasked(els, after)
			releaseRet := eng.PushMaskedReturnBlock(after)
			if err := x.build(op.Jump(0), op.Jump(1)); err != nil {
				return err
			}
			releaseRet()
			releaseElse()
			b.Br(after)
		}
	}
	x.applyControlFlow(before, "after_if_applied")
	return nil
}

// genLoop lowers for, while and dowhile. Jump 0 starts the condition
// code, jump 1 the body, jump 2 the step and jump 3 is past the loop;
// initialization code runs from the op to jump 0.
func genLoop(x *context, op *oso.Opcode) error {
	cond := x.arg(op, 0)
	if cond.Uniform {
		return x.uniformLoop(op, cond)
	}
	return x.varyingLoop(op, cond)
}

func (x *context) uniformLoop(op *oso.Opcode, cond *oso.Symbol) error {
	b, eng := x.b, x.eng
	opnum := x.opnum
	condBl := x.newBlock("cond")
	body := x.newBlock("body")
	step := x.newBlock("step")
	after := x.newBlock("after_loop")

	releaseLoop := eng.PushLoop(step, after)
	// uniform loops are tracked too, so a break knows it may branch
	releaseMasked := eng.PushMaskedLoop(wir.NoSlot, wir.NoSlot)

	if err := x.build(opnum+1, op.Jump(0)); err != nil {
		return err
	}
	if op.Kind == oso.OpDoWhile {
		b.Br(body)
	} else {
		b.Br(condBl)
	}

	if err := x.buildIn(condBl, op.Jump(0), op.Jump(1)); err != nil {
		return err
	}
	b.CondBr(x.testNonzero(cond), body, after)

	if err := x.buildIn(body, op.Jump(1), op.Jump(2)); err != nil {
		return err
	}
	b.Br(step)
	if err := x.build(op.Jump(2), op.Jump(3)); err != nil {
		return err
	}
	b.Br(condBl)

	b.SetInsertPoint(after)
	releaseMasked()
	releaseLoop()
	return nil
}

func (x *context) varyingLoop(op *oso.Opcode, cond *oso.Symbol) error {
	b, eng := x.b, x.eng
	opnum := x.opnum
	doWhile := op.Kind == oso.OpDoWhile

	var condBl, body wir.Block
	if doWhile {
		body = x.newBlock("body")
		condBl = x.newBlock("cond")
	} else {
		condBl = x.newBlock("cond")
		body = x.newBlock("body")
	}
	step := x.newBlock("step")
	after := x.newBlock("after_loop")

	retBefore := eng.MaskedReturnCount()

	// AnalysisFlag on a loop says it contains a continue
	control := x.temp(wir.Bool, true, 1)
	cont := wir.NoSlot
	if op.AnalysisFlag {
		cont = x.temp(wir.Bool, true, 1)
	}
	releaseLoop := eng.PushLoop(step, after)
	releaseMasked := eng.PushMaskedLoop(control, cont)

	if err := x.build(opnum+1, op.Jump(0)); err != nil {
		return err
	}
	b.Store(control, 0, eng.CurrentMask())

	// with every lane gone, a continue may still need the step
	retTarget := after
	if cont != wir.NoSlot {
		retTarget = step
	}
	releaseRet := eng.PushMaskedReturnBlock(retTarget)

	if doWhile {
		b.Br(body)
		pre := b.Load(control, 0)
		release := eng.PushMask(pre, false, true)
		if cont != wir.NoSlot {
			b.Store(cont, 0, b.WideBool(false))
		}
		if err := x.build(op.Jump(1), op.Jump(2)); err != nil {
			return err
		}
		b.Br(step)
		if eng.MaskedContinueCount() > 0 {
			release()
			preStep := pre
			if eng.MaskedBreakCount() > 0 {
				preStep = b.Load(control, 0)
				if x.opts.TestAnyLanes {
					some := x.newBlock("lanes_after_continue")
					b.CondBr(eng.TestIfMaskIsNonZero(preStep), some, after)
				}
			}
			if eng.MaskedReturnCount() > retBefore {
				preStep = eng.ApplyReturnTo(preStep)
			}
			release = eng.PushMask(preStep, false, true)
		}
		if err := x.build(op.Jump(2), op.Jump(3)); err != nil {
			return err
		}
		b.Br(condBl)

		if err := x.build(op.Jump(0), op.Jump(1)); err != nil {
			return err
		}
		release()
		live := pre
		if eng.MaskedBreakCount() > 0 {
			live = b.Load(control, 0)
		}
		post := b.And(x.loadMask(cond), live)
		if eng.MaskedReturnCount() > retBefore {
			post = eng.ApplyReturnTo(post)
		}
		b.Store(control, 0, post)
		b.CondBr(eng.TestIfMaskIsNonZero(post), body, after)
	} else {
		b.Br(condBl)
		pre := b.Load(control, 0)
		release := eng.PushMask(pre, false, true)
		if err := x.build(op.Jump(0), op.Jump(1)); err != nil {
			return err
		}
		release()
		post := b.And(x.loadMask(cond), pre)
		b.Store(control, 0, post)
		b.CondBr(eng.TestIfMaskIsNonZero(post), body, after)

		release = eng.PushMask(post, false, true)
		if cont != wir.NoSlot {
			b.Store(cont, 0, b.WideBool(false))
		}
		if err := x.build(op.Jump(1), op.Jump(2)); err != nil {
			return err
		}
		b.Br(step)
		if eng.MaskedContinueCount() > 0 {
			release()
			preStep := post
			if eng.MaskedBreakCount() > 0 {
				preStep = b.Load(control, 0)
			}
			if eng.MaskedReturnCount() > retBefore {
				preStep = eng.ApplyReturnTo(preStep)
			}
			release = eng.PushMask(preStep, false, true)
		}
		// the step is masked: lanes that returned in the body are out of
		// its mask even when a continue re-pushed it
		if err := x.build(op.Jump(2), op.Jump(3)); err != nil {
			return err
		}
		release()
		// lanes that returned inside the body must not run the condition
		// again
		if eng.MaskedReturnCount() > retBefore {
			live := post
			if eng.MaskedBreakCount() > 0 {
				live = b.Load(control, 0)
			}
			b.Store(control, 0, eng.ApplyReturnTo(live))
		}
		b.Br(condBl)
	}

	releaseRet()
	releaseMasked()
	releaseLoop()
	b.SetInsertPoint(after)

	if eng.MaskedReturnCount() > retBefore {
		eng.ApplyReturnToMaskStack()
		x.guardLanes("after_loop_applied")
	}
	return nil
}

// genLoopMod lowers break and continue.
func genLoopMod(x *context, op *oso.Opcode) error {
	isContinue := op.Kind == oso.OpContinue
	eng := x.eng
	if !eng.IsInnermostLoopMasked() {
		x.b.Br(eng.LoopBranchTarget(isContinue))
		x.b.SetInsertPoint(x.newBlock("next"))
		return nil
	}
	if isContinue {
		eng.OpMaskedContinue()
	} else {
		eng.OpMaskedBreak()
	}
	return nil
}

// genReturn lowers return and exit.
func genReturn(x *context, op *oso.Opcode) error {
	b, eng := x.b, x.eng
	exit := op.Kind == oso.OpExit
	switch {
	case eng.HasMaskedReturnBlock():
		if exit {
			eng.OpMaskedExit()
		} else {
			eng.OpMaskedReturn()
		}
		b.Br(eng.MaskedReturnBlock())
	case exit && eng.InsideFunction():
		// only the lanes running the function leave; the caller folds
		// them out of its own mask
		eng.OpMaskedExit()
		b.Br(eng.ReturnBlock())
	case exit:
		b.Br(eng.ExitInstanceBlock())
	default:
		b.Br(eng.ReturnBlock())
	}
	b.SetInsertPoint(x.newBlock("after_" + op.Name))
	return nil
}

// genFunctionCall inlines the body of a shader function, which runs from
// the op to jump 0 with its own return state.
func genFunctionCall(x *context, op *oso.Opcode) error {
	b, eng := x.b, x.eng
	opnum := x.opnum
	exitsBefore := eng.MaskedExitCount()

	releaseMask := eng.PushFunctionMask(eng.CurrentMask())
	after, releaseFn := eng.PushFunction(x.newBlock("after_call"))
	if err := x.build(opnum+1, op.Jump(0)); err != nil {
		return err
	}
	b.Br(after)
	releaseFn()
	releaseMask()

	if eng.MaskedExitCount() > exitsBefore {
		eng.ApplyExitToMaskStack()
		x.guardLanes("after_call_applied_exit")
	}
	return nil
}

// genFunctionCallNR inlines a function that has no return.
func genFunctionCallNR(x *context, op *oso.Opcode) error {
	return x.build(x.opnum+1, op.Jump(0))
}
