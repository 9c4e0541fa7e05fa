package shadeops

import (
	"math"

	"github.com/AlexMWells/OpenShadingLanguage/pkg/funcspec"
	"github.com/AlexMWells/OpenShadingLanguage/pkg/interp"
	"github.com/AlexMWells/OpenShadingLanguage/pkg/oso"
)

func init() {
	register("determinant", func(p funcspec.Parsed) (interp.Kernel, error) {
		if !shape(p, "fm") {
			return nil, errSignature(p)
		}
		return matrixKernel(p, func(c *call, l int) Dual {
			return Const(readMatrix(c.ops[1], l).Determinant())
		})
	})
	register("transpose", func(p funcspec.Parsed) (interp.Kernel, error) {
		if !shape(p, "mm") {
			return nil, errSignature(p)
		}
		return matrixKernel(p, func(c *call, l int) Dual {
			writeMatrix(c.ops[0], l, readMatrix(c.ops[1], l).Transpose())
			return Dual{}
		})
	})
	register("mul", matrixArith(func(a, b Matrix) Matrix { return a.Mul(b) }, mulScalar))
	register("div", matrixArith(func(a, b Matrix) Matrix { return a.Mul(b.Inverse()) }, divScalar))

	for name, apply := range map[string]func(Matrix, [3]float32) [3]float32{
		"transform_point":  Matrix.TransformPoint,
		"transform_vector": Matrix.TransformVector,
		"transform_normal": Matrix.TransformNormal,
	} {
		apply := apply
		normal := name == "transform_normal"
		register(name, func(p funcspec.Parsed) (interp.Kernel, error) {
			return transformKernel(p, apply, normal)
		})
	}

	register("get_from_to_matrix", func(p funcspec.Parsed) (interp.Kernel, error) {
		if !shape(p, "mss") {
			return nil, errSignature(p)
		}
		return matrixKernel(p, func(c *call, l int) Dual {
			from, to := c.ops[1].str(0, l), c.ops[2].str(0, l)
			m, ok := c.fromTo(from, to)
			writeMatrix(c.ops[0], l, m)
			if !ok {
				report(c.ctx).Errorf("Unknown transformation %q to %q", from, to)
			}
			return Dual{}
		})
	})
	register("getmatrix", func(p funcspec.Parsed) (interp.Kernel, error) {
		if !shape(p, "imss") {
			return nil, errSignature(p)
		}
		return matrixKernel(p, func(c *call, l int) Dual {
			m, ok := c.fromTo(c.ops[2].str(0, l), c.ops[3].str(0, l))
			writeMatrix(c.ops[1], l, m)
			if ok {
				return Const(1)
			}
			return Const(0)
		})
	})
	register("prepend_matrix_from", func(p funcspec.Parsed) (interp.Kernel, error) {
		if len(p.Spec.Args) != 2 || !p.Spec.Args[0].Type.IsMatrix() || !p.Spec.Args[1].Type.IsString() {
			return nil, errSignature(p)
		}
		return func(ctx *interp.Context, raw []any) (any, error) {
			c, err := bind(ctx, p.Spec, raw, 0)
			if err != nil {
				return nil, err
			}
			c.lanes(func(l int) {
				space := c.ops[1].str(0, l)
				from, ok := c.fromTo(space, "common")
				if !ok {
					report(ctx).Errorf("Unknown transformation %q", space)
					return
				}
				writeMatrix(c.ops[0], l, from.Mul(readMatrix(c.ops[0], l)))
			})
			return nil, nil
		}, nil
	})
	register("prepend_color_from", func(p funcspec.Parsed) (interp.Kernel, error) {
		if len(p.Spec.Args) != 2 || !p.Spec.Args[0].Type.IsTriple() || !p.Spec.Args[1].Type.IsString() {
			return nil, errSignature(p)
		}
		return func(ctx *interp.Context, raw []any) (any, error) {
			c, err := bind(ctx, p.Spec, raw, 0)
			if err != nil {
				return nil, err
			}
			c.lanes(func(l int) {
				space := c.ops[1].str(0, l)
				var in [3]float32
				for i := range in {
					in[i] = c.ops[0].float(i, 0, l)
				}
				rgb, ok := colorToRGB(space, in)
				if !ok {
					report(ctx).Errorf("Unknown color space %q", space)
					return
				}
				if space == "rgb" || space == "RGB" {
					return
				}
				for i, v := range rgb {
					c.ops[0].setDual(i, l, Const(v))
				}
			})
			return nil, nil
		}, nil
	})
}

// shape reports whether the argument codes of p, ignoring width and
// derivative flags, spell codes.
func shape(p funcspec.Parsed, codes string) bool {
	if len(p.Spec.Args) != len(codes) {
		return false
	}
	for i, a := range p.Spec.Args {
		if a.Type.IsArray() || typeLetter(a.Type) != codes[i] {
			return false
		}
	}
	return true
}

func typeLetter(t oso.TypeSpec) byte {
	switch {
	case t.Base == oso.Int:
		return 'i'
	case t.Base == oso.String:
		return 's'
	case t.Base == oso.Matrix:
		return 'm'
	case t.IsTriple():
		return 'v'
	case t.Base == oso.Float:
		return 'f'
	}
	return '?'
}

func readMatrix(o operand, lane int) Matrix {
	var m Matrix
	if o.comps() == 1 {
		v := o.float(0, 0, lane)
		return Matrix{v, 0, 0, 0, 0, v, 0, 0, 0, 0, v, 0, 0, 0, 0, v}
	}
	for i := range m {
		m[i] = o.float(i, 0, lane)
	}
	return m
}

func writeMatrix(o operand, lane int, m Matrix) {
	r := o.ref()
	for i, v := range m {
		r.SetFloat(i, lane, v)
	}
}

func (c *call) fromTo(from, to string) (Matrix, bool) {
	if from == to {
		return Identity, true
	}
	m, ok := fromTo(services(c.ctx).renderer(), from, to, 0)
	if !ok {
		return Identity, false
	}
	return m, true
}

// matrixKernel marks Args[0] as the result and calls fn for each active
// lane. fn writes pointer results itself and returns scalar ones.
func matrixKernel(p funcspec.Parsed, fn func(c *call, lane int) Dual) (interp.Kernel, error) {
	s := p.Spec.SetResult()
	byValue := s.ResultByValue()
	return func(ctx *interp.Context, raw []any) (any, error) {
		c, err := bind(ctx, s, raw, 0)
		if err != nil {
			return nil, err
		}
		var last Dual
		c.lanes(func(l int) {
			last = fn(c, l)
			if !byValue && s.Args[0].Type.Components() == 1 {
				c.ops[0].setDual(0, l, last)
			}
		})
		return c.result(last), nil
	}, nil
}

func mulScalar(m Matrix, f float32, _ bool) Matrix {
	for i := range m {
		m[i] *= f
	}
	return m
}

// divScalar computes m/f, or f/m (f times the inverse) when scalarFirst.
func divScalar(m Matrix, f float32, scalarFirst bool) Matrix {
	if scalarFirst {
		return mulScalar(m.Inverse(), f, false)
	}
	if f == 0 {
		return Matrix{}
	}
	return mulScalar(m, 1/f, false)
}

// matrixArith covers the mmm, mmf and mfm forms of mul and div.
func matrixArith(mm func(a, b Matrix) Matrix, mf func(m Matrix, f float32, scalarFirst bool) Matrix) factory {
	return func(p funcspec.Parsed) (interp.Kernel, error) {
		var fn func(c *call, l int) Matrix
		switch {
		case shape(p, "mmm"):
			fn = func(c *call, l int) Matrix { return mm(readMatrix(c.ops[1], l), readMatrix(c.ops[2], l)) }
		case shape(p, "mmf"):
			fn = func(c *call, l int) Matrix { return mf(readMatrix(c.ops[1], l), c.ops[2].float(0, 0, l), false) }
		case shape(p, "mfm"):
			fn = func(c *call, l int) Matrix { return mf(readMatrix(c.ops[2], l), c.ops[1].float(0, 0, l), true) }
		default:
			return nil, errSignature(p)
		}
		return matrixKernel(p, func(c *call, l int) Dual {
			writeMatrix(c.ops[0], l, fn(c, l))
			return Dual{}
		})
	}
}

// transformKernel applies a matrix to a triple: (result, input, matrix).
// Derivatives of points and vectors transform as vectors.
func transformKernel(p funcspec.Parsed, apply func(Matrix, [3]float32) [3]float32, normal bool) (interp.Kernel, error) {
	if !shape(p, "vvm") {
		return nil, errSignature(p)
	}
	s := p.Spec.SetResult()
	return func(ctx *interp.Context, raw []any) (any, error) {
		c, err := bind(ctx, s, raw, 0)
		if err != nil {
			return nil, err
		}
		c.lanes(func(l int) {
			m := readMatrix(c.ops[2], l)
			var v, dx, dy [3]float32
			for i := 0; i < 3; i++ {
				d := c.ops[1].dual(i, l)
				v[i], dx[i], dy[i] = d.V, d.Dx, d.Dy
			}
			r := apply(m, v)
			lin := m.TransformVector
			if normal {
				lin = m.TransformNormal
			}
			rdx, rdy := lin(dx), lin(dy)
			for i := 0; i < 3; i++ {
				c.ops[0].setDual(i, l, Dual{r[i], rdx[i], rdy[i]})
			}
		})
		return nil, nil
	}, nil
}

// colorToRGB converts c from the named color space.
func colorToRGB(space string, c [3]float32) ([3]float32, bool) {
	switch space {
	case "rgb", "RGB", "linear":
		return c, true
	case "hsv":
		return hsvToRGB(c), true
	case "hsl":
		return hslToRGB(c), true
	case "YIQ":
		return [3]float32{
			c[0] + 0.9557*c[1] + 0.6199*c[2],
			c[0] - 0.2716*c[1] - 0.6469*c[2],
			c[0] - 1.1082*c[1] + 1.7051*c[2],
		}, true
	case "XYZ":
		return xyzToRGB(c), true
	case "xyY":
		x, y, Y := c[0], c[1], c[2]
		if y == 0 {
			return [3]float32{}, true
		}
		return xyzToRGB([3]float32{x * Y / y, Y, (1 - x - y) * Y / y}), true
	}
	return c, false
}

func xyzToRGB(c [3]float32) [3]float32 {
	return [3]float32{
		3.2404542*c[0] - 1.5371385*c[1] - 0.4985314*c[2],
		-0.9692660*c[0] + 1.8760108*c[1] + 0.0415560*c[2],
		0.0556434*c[0] - 0.2040259*c[1] + 1.0572252*c[2],
	}
}

func hsvToRGB(c [3]float32) [3]float32 {
	h, s, v := c[0], c[1], c[2]
	if s < 0.0001 {
		return [3]float32{v, v, v}
	}
	h = 6 * (h - f32(math.Floor(float64(h))))
	i := int(h)
	f := h - float32(i)
	p := v * (1 - s)
	q := v * (1 - s*f)
	t := v * (1 - s*(1-f))
	switch i {
	case 0:
		return [3]float32{v, t, p}
	case 1:
		return [3]float32{q, v, p}
	case 2:
		return [3]float32{p, v, t}
	case 3:
		return [3]float32{p, q, v}
	case 4:
		return [3]float32{t, p, v}
	}
	return [3]float32{v, p, q}
}

func hslToRGB(c [3]float32) [3]float32 {
	h, s, l := c[0], c[1], c[2]
	var v float32
	if l <= 0.5 {
		v = l * (1 + s)
	} else {
		v = l*(1-s) + s
	}
	if v <= 0 {
		return [3]float32{}
	}
	m := 2*l - v
	return hsvToRGB([3]float32{h, (v - m) / v, v})
}
