package batched

import (
	"errors"
	"fmt"

	"github.com/AlexMWells/OpenShadingLanguage/pkg/masking"
	"github.com/AlexMWells/OpenShadingLanguage/pkg/oso"
	"github.com/AlexMWells/OpenShadingLanguage/pkg/wir"
)

// compiler holds what is shared by every layer of the group.
type compiler struct {
	g    *oso.Group
	opts Options
	mod  *wir.Module
	b    *wir.Builder

	params   [][]storage // per layer and symbol; only parameters are set
	globals  map[string]storage
	runSlots []wir.Slot

	cur *context
}

func newCompiler(g *oso.Group, opts Options) *compiler {
	mod := wir.NewModule(g.Name, opts.Width)
	return &compiler{
		g:       g,
		opts:    opts,
		mod:     mod,
		b:       wir.NewBuilder(mod),
		globals: make(map[string]storage),
	}
}

// context is the state of the layer being generated. Generators receive
// it explicitly.
type context struct {
	*compiler
	eng   *masking.Engine
	inst  *oso.Instance
	layer int
	fn    string

	storage map[*oso.Symbol]storage
	shadows []*oso.Symbol // uniform globals copied from lane storage

	// layers known to have run for every lane reaching the current op
	alreadyRun    map[int]bool
	inConditional []bool

	temps tempScope

	op    *oso.Opcode
	opnum int
}

// contractPanic carries a generator contract failure to Compile.
type contractPanic struct{ err error }

func (x *context) fail(format string, args ...any) {
	panic(contractPanic{fmt.Errorf("%w: %s", ErrContract, fmt.Sprintf(format, args...))})
}

// locate attaches the current layer and op to err.
func (x *context) locate(err error) error {
	var located *Error
	if errors.As(err, &located) {
		return err
	}
	e := &Error{Shader: x.inst.ShaderName, Layer: x.inst.LayerName, Err: err}
	if x.op != nil {
		e.File, e.Line, e.Op = x.op.SourceFile, x.op.SourceLine, x.op.Name
	}
	return e
}

func (x *context) newBlock(name string) wir.Block {
	if x.opts.DebugNames {
		name = fmt.Sprintf("%s_op%d", name, x.opnum)
	}
	return x.b.NewBlock(name)
}

// build generates ops [begin, end). Ops that own nested ranges skip past
// their farthest jump.
func (x *context) build(begin, end int) error {
	savedOp, savedNum := x.op, x.opnum
	defer func() { x.op, x.opnum = savedOp, savedNum }()
	for i := begin; i < end; {
		op := &x.inst.Ops[i]
		x.op, x.opnum = op, i
		mark := x.temps.mark()
		err := dispatch(x, op)
		x.temps.release(mark)
		if err != nil {
			return x.locate(err)
		}
		if j := op.FarthestJump(); j > i {
			i = j
		} else {
			i++
		}
	}
	return nil
}

// buildIn generates ops [begin, end) starting in block bl.
func (x *context) buildIn(bl wir.Block, begin, end int) error {
	x.b.SetInsertPoint(bl)
	return x.build(begin, end)
}

func (x *context) arg(op *oso.Opcode, i int) *oso.Symbol {
	if i >= op.NArgs() {
		x.fail("%s has %d arguments, wanted at least %d", op.Name, op.NArgs(), i+1)
	}
	return x.inst.OpArg(op, i)
}

// uniformFrom reports whether arguments first.. of op are all uniform.
func (x *context) uniformFrom(op *oso.Opcode, first int) bool {
	for i := first; i < op.NArgs(); i++ {
		if !x.inst.OpArg(op, i).Uniform {
			return false
		}
	}
	return true
}

// checkResult rejects a uniform result computed by a varying operation.
func checkResult(res *oso.Symbol, uniform bool) error {
	if res.Uniform && !uniform {
		return fmt.Errorf("%w: uniform result %s of a varying operation", ErrContract, res.Name)
	}
	return nil
}

func errArgs(op *oso.Opcode) error {
	return fmt.Errorf("%w: wrong number of arguments (%d)", ErrContract, op.NArgs())
}

// allocateGroupData creates the storage every layer can see: parameters,
// which upstream layers write into, and the per-layer run masks.
func (c *compiler) allocateGroupData() {
	c.params = make([][]storage, len(c.g.Layers))
	for li, in := range c.g.Layers {
		c.params[li] = make([]storage, len(in.Symbols))
		for i, s := range in.Symbols {
			if !s.IsParam() {
				continue
			}
			c.params[li][i] = c.newStorage(in.LayerName+"."+s.Name, s.Type, !s.Uniform, s.HasDerivs, wir.GroupData, "")
		}
		c.runSlots = append(c.runSlots, c.mod.NewSlot(wir.SlotInfo{
			Name:  "run." + in.LayerName,
			Elem:  wir.Int,
			Scope: wir.GroupData,
		}))
	}
}

// global returns the shared storage of a shader global. Globals are
// varying and float-based ones carry derivatives, except raytype which is
// a uniform int.
func (c *compiler) global(name string, t oso.TypeSpec) storage {
	if st, ok := c.globals[name]; ok {
		return st
	}
	wide, derivs := true, t.IsFloatBased()
	if name == "raytype" {
		wide, derivs = false, false
	}
	st := c.newStorage("sg."+name, t, wide, derivs, wir.GroupData, "")
	c.globals[name] = st
	return st
}

// lazy reports whether a layer runs only when a downstream layer needs
// one of its outputs.
func (c *compiler) lazy(layer int) bool {
	if layer == len(c.g.Layers)-1 {
		return false
	}
	for _, s := range c.g.Layers[layer].Symbols {
		if s.SymType == oso.SymOutputParam && s.Lazy {
			return true
		}
	}
	return false
}

// conditionalOps marks the ops nested inside a branch, loop or call
// body.
func conditionalOps(in *oso.Instance) []bool {
	res := make([]bool, len(in.Ops))
	for i := range in.Ops {
		end := in.Ops[i].FarthestJump()
		for j := i + 1; j < end && j < len(res); j++ {
			res[j] = true
		}
	}
	return res
}

func (c *compiler) compileLayer(li int) error {
	in := c.g.Layers[li]
	x := &context{
		compiler:      c,
		inst:          in,
		layer:         li,
		fn:            LayerFunction(in),
		storage:       make(map[*oso.Symbol]storage),
		alreadyRun:    make(map[int]bool),
		inConditional: conditionalOps(in),
		temps:         newTempScope(),
	}
	c.cur = x
	b := c.b
	b.BeginFunction(x.fn, wir.MaskType)
	x.eng = masking.New(b)
	exit := b.NewBlock("exit_instance")
	_, releaseFn := x.eng.PushFunction(exit)
	releaseMask := x.eng.PushFunctionMask(b.Param(0))

	run := c.runSlots[li]
	b.Store(run, 0, b.Or(b.Load(run, 0), b.MaskBits(b.Param(0))))

	x.allocateSymbols()
	if err := x.initSymbols(); err != nil {
		return err
	}
	if err := x.build(in.MainBegin, in.MainEnd); err != nil {
		return err
	}
	b.Br(exit)
	x.copyOutputs()
	releaseMask()
	releaseFn()
	b.Ret()

	f := b.Function()
	for i, blk := range f.Blocks {
		if blk.Terminator() == nil {
			b.SetInsertPoint(wir.Block(i))
			b.Unreachable()
		}
	}
	if !x.eng.Balanced() {
		return x.locate(fmt.Errorf("%w: unbalanced scopes %+v", ErrContract, x.eng.Depth()))
	}
	c.cur = nil
	return nil
}

func (x *context) allocateSymbols() {
	prefix := x.inst.LayerName + "."
	for i, s := range x.inst.Symbols {
		var st storage
		switch s.SymType {
		case oso.SymParam, oso.SymOutputParam:
			st = x.params[x.layer][i]
		case oso.SymGlobal:
			st = x.global(s.Name, s.Type)
			if s.Uniform && st.wide {
				st = x.newStorage(prefix+s.Name, s.Type, false, s.HasDerivs, wir.Local, x.fn)
				x.shadows = append(x.shadows, s)
			}
		case oso.SymConst:
			st = x.newStorage(prefix+s.Name, s.Type, false, false, wir.Local, x.fn)
		default:
			st = x.newStorage(prefix+s.Name, s.Type, !s.Uniform, s.HasDerivs, wir.Local, x.fn)
		}
		x.storage[s] = st
	}
}

// initSymbols gives every symbol its starting value: constants their
// payload, locals zero, parameters their defaults (by running their init
// ops when they have them). Connected parameters are left to the
// upstream layer.
func (x *context) initSymbols() error {
	b := x.b
	lane := wir.NoValue
	for _, s := range x.inst.Symbols {
		st := x.storage[s]
		switch s.SymType {
		case oso.SymConst:
			for c := 0; c < st.comps; c++ {
				b.Store(st.slot, c, x.payload(s, c))
			}
		case oso.SymLocal, oso.SymTemp:
			x.zeroSymbol(s)
		}
	}
	for _, s := range x.shadows {
		if lane == wir.NoValue {
			lane = b.FirstLane(b.Param(0))
		}
		g, st := x.globals[s.Name], x.storage[s]
		for c := 0; c < st.comps; c++ {
			b.Store(st.slot, c, b.Extract(b.Load(g.slot, c), lane))
		}
	}
	for _, s := range x.inst.Symbols {
		if !s.IsParam() || s.Connected {
			continue
		}
		if s.HasInitOps() {
			if err := x.build(s.InitBegin, s.InitEnd); err != nil {
				return err
			}
			continue
		}
		for c := 0; c < s.Type.Components(); c++ {
			x.store(s, 0, c, x.payload(s, c))
		}
		x.zeroDerivs(s)
	}
	return nil
}

// copyOutputs hands this layer's outputs to the downstream parameters
// connected to them, for the lanes the layer ran on.
func (x *context) copyOutputs() {
	b := x.b
	mask := b.Param(0)
	for dl := x.layer + 1; dl < len(x.g.Layers); dl++ {
		down := x.g.Layers[dl]
		for _, con := range down.Connections {
			if con.SrcLayer != x.layer {
				continue
			}
			src := x.inst.Symbol(con.SrcSymbol)
			dst := x.params[dl][con.DstSymbol]
			channels := 1
			if dst.derivs {
				channels = 3
			}
			for d := 0; d < channels; d++ {
				for c := 0; c < dst.comps; c++ {
					v := x.load(src, d, c)
					if b.TypeOf(v).Wide && !dst.wide {
						v = b.Extract(v, b.FirstLane(mask))
					}
					x.storeTo(dst, dst.offset(d, c), v, mask)
				}
			}
		}
	}
}

// compileEntry emits the group entry: clear the run masks, run every
// layer that is not lazy, entry layer last.
func (c *compiler) compileEntry() {
	b := c.b
	name := EntryFunction(c.g)
	b.BeginFunction(name, wir.MaskType)
	for _, s := range c.runSlots {
		b.Store(s, 0, b.ConstInt(0))
	}
	for i, in := range c.g.Layers {
		if c.lazy(i) {
			continue
		}
		b.CallFunction(LayerFunction(in), b.Param(0))
	}
	b.Ret()
	c.mod.Entry = name
}
