package shadeops

import (
	"fmt"

	"github.com/AlexMWells/OpenShadingLanguage/pkg/funcspec"
	"github.com/AlexMWells/OpenShadingLanguage/pkg/interp"
	"github.com/AlexMWells/OpenShadingLanguage/pkg/oso"
)

// operand is one argument of a call as seen by a kernel: a value passed
// directly or a reference into slot storage. Derivative-carrying
// references hold all value components first, then the x derivatives,
// then the y derivatives.
type operand struct {
	arg funcspec.Arg
	v   any
}

func (o operand) comps() int { return o.arg.Type.Components() }

func (o operand) ref() interp.Ref {
	r, ok := o.v.(interp.Ref)
	if !ok {
		panic(fmt.Sprintf("argument %T is not a reference", o.v))
	}
	return r
}

// float reads channel d (0 value, 1 dx, 2 dy) of component c.
func (o operand) float(c, d, lane int) float32 {
	if d > 0 && !o.arg.Derivs {
		return 0
	}
	switch x := o.v.(type) {
	case float32:
		return x
	case int32:
		return float32(x)
	case []float32:
		return x[lane]
	case []int32:
		return float32(x[lane])
	case interp.Ref:
		i := c + d*o.comps()
		if o.arg.Type.Base == oso.Int {
			return float32(x.Int(i, lane))
		}
		return x.Float(i, lane)
	}
	panic(fmt.Sprintf("argument %T is not numeric", o.v))
}

func (o operand) dual(c, lane int) Dual {
	return Dual{o.float(c, 0, lane), o.float(c, 1, lane), o.float(c, 2, lane)}
}

// duals reads every component of the value at lane.
func (o operand) duals(lane int) []Dual {
	n := o.comps()
	out := make([]Dual, n)
	for c := range out {
		out[c] = o.dual(c, lane)
	}
	return out
}

func (o operand) int(c, lane int) int32 {
	switch x := o.v.(type) {
	case int32:
		return x
	case float32:
		return int32(x)
	case []int32:
		return x[lane]
	case interp.Ref:
		if o.arg.Type.Base == oso.Int {
			return x.Int(c, lane)
		}
		return int32(x.Float(c, lane))
	}
	panic(fmt.Sprintf("argument %T is not numeric", o.v))
}

func (o operand) str(c, lane int) string {
	switch x := o.v.(type) {
	case string:
		return x
	case []string:
		return x[lane]
	case interp.Ref:
		return x.Str(c, lane)
	}
	panic(fmt.Sprintf("argument %T is not a string", o.v))
}

// setDual writes component c, including derivatives when the operand
// carries them.
func (o operand) setDual(c, lane int, v Dual) {
	r := o.ref()
	n := o.comps()
	if o.arg.Type.Base == oso.Int {
		r.SetInt(c, lane, int32(v.V))
		return
	}
	r.SetFloat(c, lane, v.V)
	if o.arg.Derivs {
		r.SetFloat(c+n, lane, v.Dx)
		r.SetFloat(c+2*n, lane, v.Dy)
	}
}

func (o operand) setInt(c, lane int, v int32) { o.ref().SetInt(c, lane, v) }

func (o operand) setStr(c, lane int, v string) { o.ref().SetStr(c, lane, v) }

// call is a decoded invocation of a routine described by spec.
type call struct {
	ctx  *interp.Context
	spec *funcspec.Spec
	ops  []operand
	rest []any // arguments beyond the ones the name describes
	mask uint32
}

// bind splits raw kernel arguments according to spec. extra is the
// number of undescribed arguments that follow the described ones.
func bind(ctx *interp.Context, spec *funcspec.Spec, raw []any, extra int) (*call, error) {
	c := &call{ctx: ctx, spec: spec, ops: make([]operand, len(spec.Args))}
	i := 0
	for k, a := range spec.Args {
		c.ops[k].arg = a
		if k == 0 && spec.ResultByValue() {
			continue
		}
		if i >= len(raw) {
			return nil, fmt.Errorf("too few arguments (%d)", len(raw))
		}
		c.ops[k].v = raw[i]
		i++
	}
	if extra < 0 {
		extra = len(raw) - i
		if spec.Masked() {
			extra--
		}
	}
	if i+extra > len(raw) {
		return nil, fmt.Errorf("too few arguments (%d)", len(raw))
	}
	c.rest = raw[i : i+extra]
	i += extra
	c.mask = 1
	if spec.Batched() {
		c.mask = allLanes(ctx.Width)
	}
	if spec.Masked() {
		if i >= len(raw) {
			return nil, fmt.Errorf("missing lane mask")
		}
		bits, ok := raw[i].(int32)
		if !ok {
			return nil, fmt.Errorf("lane mask is %T", raw[i])
		}
		c.mask = uint32(bits) & allLanes(ctx.Width)
		i++
	}
	if i != len(raw) {
		return nil, fmt.Errorf("%d arguments, expected %d", len(raw), i)
	}
	return c, nil
}

func allLanes(width int) uint32 {
	if width >= 32 {
		return ^uint32(0)
	}
	return 1<<uint(width) - 1
}

// lanes calls fn for every active lane.
func (c *call) lanes(fn func(lane int)) {
	for l := 0; l < 32; l++ {
		if c.mask&(1<<uint(l)) != 0 {
			fn(l)
		}
	}
}

// result returns what the kernel hands back: the lane 0 value of a
// by-value result, nil otherwise.
func (c *call) result(v Dual) any {
	if !c.spec.ResultByValue() {
		return nil
	}
	if c.ops[0].arg.Type.Base == oso.Int {
		return int32(v.V)
	}
	return v.V
}
