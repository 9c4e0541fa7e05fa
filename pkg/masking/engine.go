// Package masking tracks which lanes of a batch are executing while code is
// generated for divergent control flow. It owns the mask stack, the
// per-inlined-function return state and the per-loop break/continue state,
// and emits the IR that updates them.
//
// Every Push method returns a Release closure. Scopes must be released in
// the reverse order they were opened; anything else is a generator bug and
// panics with a *ContractError.
package masking

import (
	"fmt"

	"github.com/AlexMWells/OpenShadingLanguage/pkg/wir"
)

// ContractError reports misuse of the engine by a generator.
type ContractError struct {
	Msg string
}

func (e *ContractError) Error() string { return "masking: " + e.Msg }

// Release closes a scope opened by a Push method.
type Release func()

// entry is one level of the mask stack. A negated entry's effective mask
// is the complement of value. The applied counters record how many masked
// returns/breaks/continues have already been folded into value.
type entry struct {
	value    wir.Value
	negate   bool
	absolute bool

	appliedReturns   int
	appliedBreaks    int
	appliedContinues int
}

// function is the state of one inlined function (or of the layer body,
// which is the outermost function).
type function struct {
	retMask      wir.Slot
	returnCount  int
	maskedReturn []wir.Block
}

type loop struct {
	step, after wir.Block
	maskDepth   int
}

type maskedLoop struct {
	control, cont wir.Slot
	breakCount    int
	continueCount int
}

// Engine is the mask stack and control-flow state of one function being
// generated. It is not safe for concurrent use.
type Engine struct {
	b *wir.Builder

	masks        []entry
	funcs        []*function
	returnBlocks []wir.Block
	loops        []loop
	maskedLoops  []maskedLoop
	exitCount    int

	guards  []int
	nextTag int
}

// New creates an engine emitting through b.
func New(b *wir.Builder) *Engine {
	return &Engine{b: b}
}

func (e *Engine) fail(format string, args ...any) {
	panic(&ContractError{Msg: fmt.Sprintf(format, args...)})
}

// guard registers a scope and returns its LIFO-checked release.
func (e *Engine) guard(what string, pop func()) Release {
	e.nextTag++
	tag := e.nextTag
	e.guards = append(e.guards, tag)
	released := false
	return func() {
		if released {
			e.fail("%s released twice", what)
		}
		if len(e.guards) == 0 || e.guards[len(e.guards)-1] != tag {
			e.fail("%s released out of order", what)
		}
		released = true
		e.guards = e.guards[:len(e.guards)-1]
		pop()
	}
}

// Depths reports the size of each of the engine's stacks.
type Depths struct {
	Masks, Functions, ReturnBlocks, Loops, MaskedLoops, Scopes int
}

// Depth returns the current stack sizes.
func (e *Engine) Depth() Depths {
	return Depths{
		Masks:        len(e.masks),
		Functions:    len(e.funcs),
		ReturnBlocks: len(e.returnBlocks),
		Loops:        len(e.loops),
		MaskedLoops:  len(e.maskedLoops),
		Scopes:       len(e.guards),
	}
}

// Balanced reports whether every scope has been released.
func (e *Engine) Balanced() bool { return e.Depth() == Depths{} }

// PushMask makes m (or its complement when negate is set) the executing
// mask. Unless absolute, it is combined with the mask below.
func (e *Engine) PushMask(m wir.Value, negate, absolute bool) Release {
	if t := e.b.TypeOf(m); t != wir.MaskType {
		e.fail("push of %s as a mask", t)
	}
	ent := entry{value: m, negate: negate, absolute: absolute}
	if n := len(e.masks); n > 0 && !absolute {
		prev := e.masks[n-1]
		b := e.b
		switch {
		case !prev.negate && !negate:
			ent.value = b.And(m, prev.value)
		case !prev.negate && negate:
			// effective ~m & prev
			ent.value = b.Or(m, b.Not(prev.value))
		case prev.negate && !negate:
			// effective m & ~prev
			ent.value = b.And(m, b.Not(prev.value))
		default:
			// effective ~m & ~prev
			ent.value = b.Or(m, prev.value)
		}
	} else if absolute && negate {
		e.fail("absolute masks cannot be negated")
	}
	e.masks = append(e.masks, ent)
	return e.guard("mask", func() { e.masks = e.masks[:len(e.masks)-1] })
}

func (e *Engine) top() *entry {
	if len(e.masks) == 0 {
		e.fail("mask stack is empty")
	}
	return &e.masks[len(e.masks)-1]
}

// CurrentMask returns the effective mask of the executing lanes.
func (e *Engine) CurrentMask() wir.Value {
	t := e.top()
	if t.negate {
		return e.b.Not(t.value)
	}
	return t.value
}

// TestIfMaskIsNonZero emits a scalar bool that is true when any lane of m
// is set.
func (e *Engine) TestIfMaskIsNonZero(m wir.Value) wir.Value {
	return e.b.Cmp(wir.Ne, e.b.MaskBits(m), e.b.ConstInt(0))
}

// fold applies r (lanes that remain active) to the top entry.
func (e *Engine) fold(r wir.Value) {
	t := e.top()
	if t.negate {
		t.value = e.b.Or(t.value, e.b.Not(r))
	} else {
		t.value = e.b.And(t.value, r)
	}
}
