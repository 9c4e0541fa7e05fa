package batched

import (
	"fmt"

	"github.com/AlexMWells/OpenShadingLanguage/pkg/funcspec"
	"github.com/AlexMWells/OpenShadingLanguage/pkg/oso"
	"github.com/AlexMWells/OpenShadingLanguage/pkg/wir"
)

// noiseFlavor is the routine family behind a noise name.
type noiseFlavor struct {
	plain, periodic string
	derivs          bool
	options         bool
}

var noiseFlavors = map[string]noiseFlavor{
	"perlin":    {plain: "snoise", periodic: "psnoise", derivs: true},
	"snoise":    {plain: "snoise", periodic: "psnoise", derivs: true},
	"psnoise":   {plain: "snoise", periodic: "psnoise", derivs: true},
	"uperlin":   {plain: "noise", periodic: "pnoise", derivs: true},
	"noise":     {plain: "noise", periodic: "pnoise", derivs: true},
	"pnoise":    {plain: "noise", periodic: "pnoise", derivs: true},
	"cell":      {plain: "cellnoise", periodic: "pcellnoise"},
	"cellnoise": {plain: "cellnoise", periodic: "pcellnoise"},
	"hash":      {plain: "hashnoise", periodic: "phashnoise"},
	"hashnoise": {plain: "hashnoise", periodic: "phashnoise"},
	"simplex":   {plain: "simplexnoise", derivs: true},
	"usimplex":  {plain: "usimplexnoise", derivs: true},
	"gabor":     {plain: "gabornoise", periodic: "gaborpnoise", derivs: true, options: true},
	"null":      {plain: "nullnoise", periodic: "nullnoise"},
	"unull":     {plain: "unullnoise", periodic: "unullnoise"},
}

// unsignedNoise lists the routines whose range is [0,1]. With noise
// disabled they become unullnoise, the others nullnoise.
var unsignedNoise = map[string]bool{
	"noise":         true,
	"pnoise":        true,
	"cellnoise":     true,
	"pcellnoise":    true,
	"hashnoise":     true,
	"phashnoise":    true,
	"usimplexnoise": true,
	"unullnoise":    true,
}

// noiseCall is a decoded noise op.
type noiseCall struct {
	result   *oso.Symbol
	name     *oso.Symbol // non-constant flavour name, passed to the routine
	inputs   []*oso.Symbol
	periods  []*oso.Symbol
	options  []noiseOption
	base     string
	derivs   bool
	uniform  bool
	optioned bool
}

type noiseOption struct {
	name string
	val  *oso.Symbol
}

func (x *context) decodeNoise(op *oso.Opcode) (*noiseCall, error) {
	periodic := op.Kind == oso.OpPNoise || op.Kind == oso.OpPSNoise
	n := op.NArgs()
	at := func(i int) *oso.Symbol {
		if i < n {
			return x.arg(op, i)
		}
		return nil
	}
	if n < 2 {
		return nil, errArgs(op)
	}
	nc := &noiseCall{result: x.arg(op, 0)}
	a := 1
	flavor := op.Name
	if s := x.arg(op, 1); s.Type.IsString() {
		a = 2
		flavor = ""
		if s.IsConstant() {
			flavor = s.ConstString(0)
		} else {
			nc.name = s
		}
	}
	S := at(a)
	if S == nil {
		return nil, errArgs(op)
	}
	a++
	nc.inputs = []*oso.Symbol{S}
	if periodic {
		if t := at(a + 1); t != nil && (t.Type.IsFloat() || t.Type.IsTriple()) {
			nc.inputs = append(nc.inputs, at(a))
			a++
		}
		for range nc.inputs {
			p := at(a)
			if p == nil {
				return nil, errArgs(op)
			}
			nc.periods = append(nc.periods, p)
			a++
		}
	} else if t := at(a); t != nil && t.Type.IsFloat() {
		nc.inputs = append(nc.inputs, t)
		a++
	}

	for ; a < n; a += 2 {
		name := x.arg(op, a)
		if !name.Type.IsString() || !name.IsConstant() || a+1 >= n {
			return nil, fmt.Errorf("%w: malformed optional arguments of %s", ErrContract, op.Name)
		}
		nc.options = append(nc.options, noiseOption{name: name.ConstString(0), val: x.arg(op, a+1)})
	}

	R := nc.result
	inDerivs := false
	for _, in := range nc.inputs {
		inDerivs = inDerivs || x.hasDerivs(in)
	}
	switch {
	case nc.name != nil:
		nc.base = "genericnoise"
		if periodic {
			nc.base = "genericpnoise"
		}
		nc.derivs = x.hasDerivs(R)
		nc.optioned = true
	default:
		f, ok := noiseFlavors[flavor]
		base := f.plain
		if periodic {
			base = f.periodic
		}
		if !ok || base == "" {
			prefix := ""
			if periodic {
				prefix = "periodic "
			}
			return nil, fmt.Errorf("%w: %snoise type \"%s\" is unknown", ErrContract, prefix, flavor)
		}
		nc.base = base
		nc.derivs = f.derivs && inDerivs && x.hasDerivs(R)
		nc.optioned = f.options
	}
	if x.opts.NoNoise {
		if unsignedNoise[nc.base] {
			nc.base = "unullnoise"
		} else {
			nc.base = "nullnoise"
		}
		nc.name, nc.periods, nc.optioned, nc.derivs = nil, nil, false, false
	}

	nc.uniform = true
	for _, s := range nc.syms() {
		nc.uniform = nc.uniform && s.Uniform
	}
	if nc.optioned {
		for _, o := range nc.options {
			if o.name == "" {
				continue
			}
			if !validNoiseOption(o) {
				return nil, fmt.Errorf("%w: Unknown %s optional argument: \"%s\", <%s>", ErrContract, op.Name, o.name, o.val.Type)
			}
			nc.uniform = nc.uniform && o.val.Uniform
		}
	}
	return nc, checkResult(R, nc.uniform)
}

// syms are the symbols passed to the routine after the result.
func (nc *noiseCall) syms() []*oso.Symbol {
	var out []*oso.Symbol
	if nc.name != nil {
		out = append(out, nc.name)
	}
	out = append(out, nc.inputs...)
	return append(out, nc.periods...)
}

func validNoiseOption(o noiseOption) bool {
	t := o.val.Type
	switch o.name {
	case "anisotropic", "do_filter":
		return t.IsInt()
	case "bandwidth", "impulses":
		return t.IsInt() || t.IsFloat()
	case "direction":
		return t.IsTriple()
	}
	return false
}

// varyingOptions reports whether the options must be bound lane group by
// lane group.
func (nc *noiseCall) varyingOptions() bool {
	if !nc.optioned {
		return false
	}
	if nc.name != nil && !nc.name.Uniform {
		return true
	}
	for _, o := range nc.options {
		if o.name != "" && !o.val.Uniform {
			return true
		}
	}
	return false
}

func (nc *noiseCall) spec() (*funcspec.Spec, []*oso.Symbol) {
	s := funcspec.New(nc.base)
	if nc.uniform {
		s.Unbatch()
	} else {
		s.Mask()
	}
	s.ResultSym(nc.result, nc.derivs, nc.uniform)
	args := []*oso.Symbol{nc.result}
	if nc.name != nil {
		s.ArgSym(nc.name, false, true)
		args = append(args, nc.name)
	}
	for _, in := range nc.inputs {
		s.ArgSym(in, nc.derivs, nc.uniform)
		args = append(args, in)
	}
	for _, p := range nc.periods {
		s.ArgSym(p, false, nc.uniform)
		args = append(args, p)
	}
	return s, args
}

// setNoiseOption stores one option in opt. Varying values are set from
// lane lead, and the lanes holding the same value are returned.
func (x *context) setNoiseOption(opt wir.Value, o noiseOption, lead wir.Value) (wir.Value, error) {
	b := x.b
	setter := "osl_noiseparams_set_" + o.name
	match := wir.NoValue
	same := func(wide, scalar wir.Value) {
		m := b.Cmp(wir.Eq, wide, b.Broadcast(scalar))
		if match == wir.NoValue {
			match = m
		} else {
			match = b.And(match, m)
		}
	}
	if o.name == "direction" {
		var p wir.Value
		if o.val.Uniform {
			p = x.ref(o.val, false, false)
		} else {
			t := x.temp(wir.Float, false, 3)
			for c := 0; c < 3; c++ {
				wide := x.loadAs(o.val, 0, c, wir.Float, true)
				v := b.Extract(wide, lead)
				b.Store(t, c, v)
				same(wide, v)
			}
			p = b.Addr(t, 0)
		}
		_, err := x.callFixed(setter, wir.VoidType, opt, p)
		return match, err
	}
	e := wir.Float
	if o.name == "anisotropic" || o.name == "do_filter" {
		e = wir.Int
	}
	v := x.loadAs(o.val, 0, 0, e, false)
	if b.TypeOf(v).Wide {
		wide := v
		v = b.Extract(wide, lead)
		same(wide, v)
	}
	_, err := x.callFixed(setter, wir.VoidType, opt, v)
	return match, err
}

func (x *context) countNoise() error {
	if !x.opts.Profile {
		return nil
	}
	name, err := x.batchedName("count_noise", true)
	if err != nil {
		return err
	}
	x.b.Call(name, wir.VoidType, x.b.MaskBits(x.eng.CurrentMask()))
	return nil
}

// genNoise covers every noise op: the flavour is the op name or a leading
// name argument, inputs are one or two values (plus their periods for the
// periodic ops), and name/value pairs of options may follow.
func genNoise(x *context, op *oso.Opcode) error {
	nc, err := x.decodeNoise(op)
	if err != nil {
		return err
	}
	if err := x.countNoise(); err != nil {
		return err
	}
	spec, args := nc.spec()
	if !nc.optioned {
		_, err := x.call(spec, args)
		return err
	}
	b := x.b
	optName, err := funcspec.Resolve(funcspec.New("get_noise_options").Unbatch(), x.opts.Width, x.opts.Catalog)
	if err != nil {
		return err
	}
	opt := b.Call(optName, wir.PtrType)
	var varying []noiseOption
	for _, o := range nc.options {
		switch {
		case o.name == "":
		case o.val.Uniform:
			if _, err := x.setNoiseOption(opt, o, wir.NoValue); err != nil {
				return err
			}
		default:
			varying = append(varying, o)
		}
	}
	if !nc.varyingOptions() {
		_, err := x.call(spec, args, opt)
		return err
	}
	return x.binNoise(nc, spec, args, opt, varying)
}

// binNoise calls the routine once for every distinct combination of
// varying name and options among the executing lanes. Each round takes
// the lowest remaining lane and every lane agreeing with it.
func (x *context) binNoise(nc *noiseCall, spec *funcspec.Spec, args []*oso.Symbol, opt wir.Value, varying []noiseOption) error {
	b := x.b
	remaining := x.temp(wir.Bool, true, 1)
	b.Store(remaining, 0, x.eng.CurrentMask())
	bin := x.newBlock("bin_noise_options")
	after := x.newBlock("after_bin_noise_options")
	b.CondBr(b.Cmp(wir.Ne, b.MaskBits(x.eng.CurrentMask()), b.ConstInt(0)), bin, after)

	rem := b.Load(remaining, 0)
	lead := b.FirstLane(rem)
	match := b.MaskFrom(b.Binary(wir.Shl, b.ConstInt(1), lead))
	same := rem
	if nc.name != nil && !nc.name.Uniform {
		wide := x.load(nc.name, 0, 0)
		same = b.And(same, b.Cmp(wir.Eq, wide, b.Broadcast(b.Extract(wide, lead))))
	}
	for _, o := range varying {
		m, err := x.setNoiseOption(opt, o, lead)
		if err != nil {
			return err
		}
		same = b.And(same, m)
	}
	// a lane always matches itself, NaN options included
	match = b.And(rem, b.Or(match, same))

	release := x.eng.PushMask(match, false, true)
	_, err := x.call(spec, args, opt)
	release()
	if err != nil {
		return err
	}
	left := b.Binary(wir.Xor, rem, match)
	b.Store(remaining, 0, left)
	b.CondBr(b.Cmp(wir.Ne, b.MaskBits(left), b.ConstInt(0)), bin, after)
	b.SetInsertPoint(after)
	return nil
}
