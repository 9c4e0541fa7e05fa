package shadeops

import (
	"math"

	"github.com/AlexMWells/OpenShadingLanguage/pkg/funcspec"
	"github.com/AlexMWells/OpenShadingLanguage/pkg/interp"
)

func init() {
	register("filterwidth", func(p funcspec.Parsed) (interp.Kernel, error) {
		args := p.Spec.Args
		if len(args) != 2 || !args[1].Derivs {
			return nil, errSignature(p)
		}
		return mapKernel(p, 1, func(in []Dual) Dual {
			x := in[0]
			return Const(f32(math.Hypot(float64(x.Dx), float64(x.Dy))))
		})
	})
	register("area", surfaceKernel(func(dx, dy [3]float32, out []Dual) {
		n := crossf(dx, dy)
		out[0] = Const(f32(math.Sqrt(float64(n[0]*n[0] + n[1]*n[1] + n[2]*n[2]))))
	}, 1))
	register("calculatenormal", surfaceKernel(func(dx, dy [3]float32, out []Dual) {
		n := crossf(dx, dy)
		for i := range out {
			out[i] = Const(n[i])
		}
	}, 3))
}

func crossf(a, b [3]float32) [3]float32 {
	return [3]float32{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

// surfaceKernel builds (result, P) routines computed from the screen
// derivatives of a point.
func surfaceKernel(fn func(dx, dy [3]float32, out []Dual), comps int) factory {
	return func(p funcspec.Parsed) (interp.Kernel, error) {
		args := p.Spec.Args
		if len(args) != 2 || args[0].Type.Components() != comps || !args[1].Type.IsTriple() {
			return nil, errSignature(p)
		}
		s := p.Spec.SetResult()
		byValue := s.ResultByValue()
		return func(ctx *interp.Context, raw []any) (any, error) {
			c, err := bind(ctx, s, raw, 0)
			if err != nil {
				return nil, err
			}
			out := make([]Dual, comps)
			c.lanes(func(l int) {
				var dx, dy [3]float32
				for i := 0; i < 3; i++ {
					d := c.ops[1].dual(i, l)
					dx[i], dy[i] = d.Dx, d.Dy
				}
				fn(dx, dy, out)
				if !byValue {
					for i, v := range out {
						c.ops[0].setDual(i, l, v)
					}
				}
			})
			return c.result(out[0]), nil
		}, nil
	}
}
