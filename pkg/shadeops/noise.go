package shadeops

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/AlexMWells/OpenShadingLanguage/pkg/funcspec"
	"github.com/AlexMWells/OpenShadingLanguage/pkg/interp"
)

// NoiseOptions carries the optional arguments of noise calls. Generated
// code obtains one per call site from get_noise_options and fills it
// through the noiseparams setters.
type NoiseOptions struct {
	Anisotropic int32
	DoFilter    int32
	Direction   [3]float32
	Bandwidth   float32
	Impulses    float32
}

func defaultNoiseOptions() *NoiseOptions {
	return &NoiseOptions{DoFilter: 1, Direction: [3]float32{1, 0, 0}, Bandwidth: 1, Impulses: 16}
}

// noiseKind describes one noise flavour.
type noiseKind struct {
	eval     func(p []float64, period []float64, seed uint32) float64
	periodic bool
	derivs   bool // false for the piecewise constant kinds
	named    bool // a leading name argument selects the flavour
	options  bool // a trailing options pointer follows the arguments
}

func init() {
	kinds := map[string]noiseKind{
		"noise":         {eval: unsignedNoise(perlin), derivs: true},
		"snoise":        {eval: perlin, derivs: true},
		"pnoise":        {eval: unsignedNoise(perlin), derivs: true, periodic: true},
		"psnoise":       {eval: perlin, derivs: true, periodic: true},
		"cellnoise":     {eval: cellNoise},
		"pcellnoise":    {eval: cellNoise, periodic: true},
		"hashnoise":     {eval: hashNoise},
		"phashnoise":    {eval: hashNoise, periodic: true},
		"simplexnoise":  {eval: simplex, derivs: true},
		"usimplexnoise": {eval: unsignedNoise(simplex), derivs: true},
		"gabornoise":    {derivs: true, options: true},
		"gaborpnoise":   {derivs: true, options: true, periodic: true},
		"genericnoise":  {derivs: true, options: true, named: true},
		"genericpnoise": {derivs: true, options: true, named: true, periodic: true},
		"nullnoise":     {eval: func([]float64, []float64, uint32) float64 { return 0 }},
		"unullnoise":    {eval: func([]float64, []float64, uint32) float64 { return 0.5 }},
	}
	for name, k := range kinds {
		k := k
		register(name, func(p funcspec.Parsed) (interp.Kernel, error) { return noiseKernel(p, k) })
	}

	register("get_noise_options", func(p funcspec.Parsed) (interp.Kernel, error) {
		if len(p.Spec.Args) != 0 {
			return nil, errSignature(p)
		}
		return func(ctx *interp.Context, raw []any) (any, error) {
			return defaultNoiseOptions(), nil
		}, nil
	})
	registerFixed("osl_noiseparams_set_anisotropic", optionSetter(func(o *NoiseOptions, v any) error {
		n, ok := v.(int32)
		o.Anisotropic = n
		return typeCheck(ok, v)
	}))
	registerFixed("osl_noiseparams_set_do_filter", optionSetter(func(o *NoiseOptions, v any) error {
		n, ok := v.(int32)
		o.DoFilter = n
		return typeCheck(ok, v)
	}))
	registerFixed("osl_noiseparams_set_bandwidth", optionSetter(func(o *NoiseOptions, v any) error {
		f, ok := v.(float32)
		o.Bandwidth = f
		return typeCheck(ok, v)
	}))
	registerFixed("osl_noiseparams_set_impulses", optionSetter(func(o *NoiseOptions, v any) error {
		f, ok := v.(float32)
		o.Impulses = f
		return typeCheck(ok, v)
	}))
	registerFixed("osl_noiseparams_set_direction", optionSetter(func(o *NoiseOptions, v any) error {
		r, ok := v.(interp.Ref)
		if !ok {
			return typeCheck(false, v)
		}
		for i := range o.Direction {
			o.Direction[i] = r.Float(i, 0)
		}
		return nil
	}))

	register("count_noise", func(p funcspec.Parsed) (interp.Kernel, error) {
		if len(p.Spec.Args) != 0 || !p.Spec.Masked() {
			return nil, errSignature(p)
		}
		return func(ctx *interp.Context, raw []any) (any, error) {
			c, err := bind(ctx, p.Spec, raw, 0)
			if err != nil {
				return nil, err
			}
			services(ctx).addNoiseCalls(bits.OnesCount32(c.mask))
			return nil, nil
		}, nil
	})
}

func typeCheck(ok bool, v any) error {
	if !ok {
		return fmt.Errorf("option value is %T", v)
	}
	return nil
}

func optionSetter(set func(*NoiseOptions, any) error) interp.Kernel {
	return func(ctx *interp.Context, raw []any) (any, error) {
		if len(raw) != 2 {
			return nil, fmt.Errorf("%d arguments, expected 2", len(raw))
		}
		o, ok := raw[0].(*NoiseOptions)
		if !ok {
			return nil, fmt.Errorf("options are %T", raw[0])
		}
		return nil, set(o, raw[1])
	}
}

// noiseKernel builds (result, [name,] p..., [period...]) [options].
// Inputs are a float, two floats, a triple, or a triple and a float.
func noiseKernel(p funcspec.Parsed, k noiseKind) (interp.Kernel, error) {
	s := p.Spec
	args := s.Args
	if len(args) < 2 {
		return nil, errSignature(p)
	}
	out := args[0].Type.Components()
	if !numeric(args[0].Type) || (out != 1 && out != 3) {
		return nil, errSignature(p)
	}
	first := 1
	if k.named {
		if !args[1].Type.IsString() {
			return nil, errSignature(p)
		}
		first = 2
	}
	inputs := args[first:]
	if k.periodic {
		if len(inputs)%2 != 0 {
			return nil, errSignature(p)
		}
		n := len(inputs) / 2
		for i := 0; i < n; i++ {
			if inputs[i].Type.Components() != inputs[n+i].Type.Components() {
				return nil, errSignature(p)
			}
		}
		inputs = inputs[:n]
	}
	if !validNoiseInputs(inputs) {
		return nil, errSignature(p)
	}
	extra := 0
	if k.options {
		extra = 1
	}
	s.SetResult()
	byValue := s.ResultByValue()
	nin := len(inputs)
	return func(ctx *interp.Context, raw []any) (any, error) {
		c, err := bind(ctx, s, raw, extra)
		if err != nil {
			return nil, err
		}
		opt := defaultNoiseOptions()
		if k.options {
			if o, ok := c.rest[0].(*NoiseOptions); ok && o != nil {
				opt = o
			}
		}
		var last Dual
		var failed error
		c.lanes(func(l int) {
			eval := k.eval
			if k.named {
				name := c.ops[1].str(0, l)
				e, ok := namedNoise(name, k.periodic)
				if !ok {
					if failed == nil {
						failed = fmt.Errorf("unknown noise type %q", name)
					}
					return
				}
				eval = e
			} else if eval == nil {
				eval = gaborApprox(opt)
			}
			var pt [][3]float32
			var period []float64
			for i := 0; i < nin; i++ {
				o := c.ops[first+i]
				for comp := 0; comp < o.comps(); comp++ {
					d := o.dual(comp, l)
					pt = append(pt, [3]float32{d.V, d.Dx, d.Dy})
				}
				if k.periodic {
					po := c.ops[first+nin+i]
					for comp := 0; comp < po.comps(); comp++ {
						period = append(period, float64(po.float(comp, 0, l)))
					}
				}
			}
			for comp := 0; comp < out; comp++ {
				v := noiseDual(eval, pt, period, uint32(comp), k.derivs && s.Args[0].Derivs)
				last = v
				if !byValue {
					c.ops[0].setDual(comp, l, v)
				}
			}
		})
		if failed != nil {
			return nil, failed
		}
		return c.result(last), nil
	}, nil
}

func validNoiseInputs(in []funcspec.Arg) bool {
	switch len(in) {
	case 1:
		return in[0].Type.IsFloat() || in[0].Type.IsTriple()
	case 2:
		return (in[0].Type.IsFloat() || in[0].Type.IsTriple()) && in[1].Type.IsFloat()
	}
	return false
}

// namedNoise resolves a noise name at shading time.
func namedNoise(name string, periodic bool) (func([]float64, []float64, uint32) float64, bool) {
	switch name {
	case "perlin", "snoise":
		return perlin, true
	case "uperlin", "noise":
		return unsignedNoise(perlin), true
	case "cell", "cellnoise":
		return cellNoise, true
	case "hash", "hashnoise":
		return hashNoise, true
	case "simplex":
		return simplex, !periodic
	case "usimplex":
		return unsignedNoise(simplex), !periodic
	case "gabor":
		return gaborApprox(defaultNoiseOptions()), true
	case "null":
		return func([]float64, []float64, uint32) float64 { return 0 }, true
	case "unull":
		return func([]float64, []float64, uint32) float64 { return 0.5 }, true
	}
	return nil, false
}

// noiseDual evaluates eval at the values of pt and, when derivs is set,
// chains a central-difference gradient with the input derivatives.
func noiseDual(eval func([]float64, []float64, uint32) float64, pt [][3]float32, period []float64, seed uint32, derivs bool) Dual {
	p := make([]float64, len(pt))
	for i, x := range pt {
		p[i] = float64(x[0])
	}
	v := eval(p, period, seed)
	if !derivs {
		return Const(f32(v))
	}
	const eps = 1e-3
	var dx, dy float64
	q := make([]float64, len(p))
	for i := range p {
		if pt[i][1] == 0 && pt[i][2] == 0 {
			continue
		}
		copy(q, p)
		q[i] = p[i] + eps
		hi := eval(q, period, seed)
		q[i] = p[i] - eps
		lo := eval(q, period, seed)
		g := (hi - lo) / (2 * eps)
		dx += g * float64(pt[i][1])
		dy += g * float64(pt[i][2])
	}
	return Dual{f32(v), f32(dx), f32(dy)}
}

func unsignedNoise(f func([]float64, []float64, uint32) float64) func([]float64, []float64, uint32) float64 {
	return func(p, period []float64, seed uint32) float64 { return 0.5 * (f(p, period, seed) + 1) }
}

// hashInts mixes lattice coordinates and a seed.
func hashInts(seed uint32, xs ...int64) uint32 {
	h := seed*0x9e3779b9 + 0x7f4a7c15
	for _, x := range xs {
		h ^= uint32(x) + 0x9e3779b9 + (h << 6) + (h >> 2)
		h ^= h >> 16
		h *= 0x85ebca6b
		h ^= h >> 13
		h *= 0xc2b2ae35
		h ^= h >> 16
	}
	return h
}

func lattice(x float64, period float64) int64 {
	i := int64(math.Floor(x))
	if period >= 1 {
		n := int64(period)
		i %= n
		if i < 0 {
			i += n
		}
	}
	return i
}

func periodAt(period []float64, i int) float64 {
	if i < len(period) {
		return period[i]
	}
	return 0
}

// perlin is signed gradient noise in one to four dimensions.
func perlin(p []float64, period []float64, seed uint32) float64 {
	d := len(p)
	base := make([]float64, d)
	frac := make([]float64, d)
	for i, x := range p {
		base[i] = math.Floor(x)
		frac[i] = x - base[i]
	}
	corner := make([]int64, d)
	grad := make([]float64, d)
	var sum float64
	for c := 0; c < 1<<uint(d); c++ {
		w := 1.0
		for i := 0; i < d; i++ {
			bit := float64((c >> uint(i)) & 1)
			corner[i] = lattice(base[i]+bit, periodAt(period, i))
			t := frac[i]
			f := t * t * t * (t*(t*6-15) + 10)
			if bit == 0 {
				w *= 1 - f
			} else {
				w *= f
			}
		}
		h := hashInts(seed, corner...)
		var dot float64
		for i := 0; i < d; i++ {
			grad[i] = float64((h>>(uint(i)*8))&0xff)/127.5 - 1
			dot += grad[i] * (frac[i] - float64((c>>uint(i))&1))
		}
		sum += w * dot
	}
	return math.Max(-1, math.Min(1, sum*noiseScale(d)))
}

// noiseScale brings gradient noise roughly to [-1,1].
func noiseScale(d int) float64 {
	switch d {
	case 1:
		return 2
	case 2:
		return 1.4
	}
	return 1.1
}

// simplex is gradient noise on a skewed lattice.
func simplex(p []float64, period []float64, seed uint32) float64 {
	q := make([]float64, len(p))
	var s float64
	for _, x := range p {
		s += x
	}
	skew := s * (math.Sqrt(float64(len(p))+1) - 1) / float64(len(p))
	for i, x := range p {
		q[i] = x + skew
	}
	return perlin(q, nil, seed+0x51)
}

// cellNoise is constant over each unit cell, in [0,1).
func cellNoise(p []float64, period []float64, seed uint32) float64 {
	c := make([]int64, len(p))
	for i, x := range p {
		c[i] = lattice(x, periodAt(period, i))
	}
	return float64(hashInts(seed, c...)>>8) / (1 << 24)
}

// hashNoise hashes the exact input values, in [0,1).
func hashNoise(p []float64, period []float64, seed uint32) float64 {
	c := make([]int64, len(p))
	for i, x := range p {
		if pp := periodAt(period, i); pp > 0 {
			x = math.Mod(x, pp)
			if x < 0 {
				x += pp
			}
		}
		c[i] = int64(math.Float32bits(float32(x)))
	}
	return float64(hashInts(seed^0x5bd1e995, c...)>>8) / (1 << 24)
}

// gaborApprox is a band-limited approximation of sparse Gabor noise:
// gradient noise whose frequency follows the bandwidth, stretched along
// the direction when anisotropic.
func gaborApprox(opt *NoiseOptions) func([]float64, []float64, uint32) float64 {
	return func(p, period []float64, seed uint32) float64 {
		q := make([]float64, len(p))
		bw := float64(opt.Bandwidth)
		if bw <= 0 {
			bw = 1
		}
		for i, x := range p {
			q[i] = x * bw
		}
		if opt.Anisotropic != 0 && len(q) == 3 {
			var along float64
			for i := range q {
				along += q[i] * float64(opt.Direction[i])
			}
			for i := range q {
				q[i] += along * float64(opt.Direction[i])
			}
		}
		octaves := int(opt.Impulses) / 8
		if octaves < 1 {
			octaves = 1
		}
		var sum, amp float64 = 0, 1
		var norm float64
		for o := 0; o < octaves && o < 4; o++ {
			sum += amp * perlin(q, period, seed+uint32(o)*7)
			norm += amp
			amp *= 0.5
			for i := range q {
				q[i] *= 2
			}
		}
		return sum / norm
	}
}
