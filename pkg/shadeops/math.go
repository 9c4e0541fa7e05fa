package shadeops

import (
	"math"

	"github.com/AlexMWells/OpenShadingLanguage/pkg/funcspec"
	"github.com/AlexMWells/OpenShadingLanguage/pkg/interp"
	"github.com/AlexMWells/OpenShadingLanguage/pkg/oso"
)

func init() {
	unary := map[string]func(Dual) Dual{
		"sin": dsin, "cos": dcos, "tan": dtan,
		"asin": dasin, "acos": dacos, "atan": datan,
		"sinh": dsinh, "cosh": dcosh, "tanh": dtanh,
		"exp": dexp, "exp2": dexp2, "expm1": dexpm1,
		"log": dlog, "log2": dlog2, "log10": dlog10, "logb": dlogb,
		"sqrt": dsqrt, "inversesqrt": dinversesqrt, "cbrt": dcbrt,
		"abs": dabs, "fabs": dabs,
		"floor": dfloor, "ceil": dceil, "round": dround, "trunc": dtrunc,
		"sign": dsign, "erf": derf, "erfc": derfc,
		"degrees": func(a Dual) Dual { return a.Scale(180 / math.Pi) },
		"radians": func(a Dual) Dual { return a.Scale(math.Pi / 180) },
	}
	for name, fn := range unary {
		fn := fn
		register(name, func(p funcspec.Parsed) (interp.Kernel, error) {
			return mapKernel(p, 1, func(in []Dual) Dual { return fn(in[0]) })
		})
	}

	binary := map[string]func(a, b Dual) Dual{
		"pow": dpow, "atan2": datan2, "fmod": dfmod, "hypot": dhypot, "step": dstep,
	}
	for name, fn := range binary {
		fn := fn
		register(name, func(p funcspec.Parsed) (interp.Kernel, error) {
			return mapKernel(p, 2, func(in []Dual) Dual { return fn(in[0], in[1]) })
		})
	}
	register("smoothstep", func(p funcspec.Parsed) (interp.Kernel, error) {
		return mapKernel(p, 3, func(in []Dual) Dual { return dsmoothstep(in[0], in[1], in[2]) })
	})

	classify := map[string]func(float64) bool{
		"isnan":    math.IsNaN,
		"isinf":    func(x float64) bool { return math.IsInf(x, 0) },
		"isfinite": func(x float64) bool { return !math.IsInf(x, 0) && !math.IsNaN(x) },
	}
	for name, fn := range classify {
		fn := fn
		register(name, func(p funcspec.Parsed) (interp.Kernel, error) {
			if len(p.Spec.Args) != 2 || !p.Spec.Args[0].Type.IsInt() {
				return nil, errSignature(p)
			}
			return mapKernel(p, 1, func(in []Dual) Dual {
				if fn(float64(in[0].V)) {
					return Const(1)
				}
				return Const(0)
			})
		})
	}

	register("dot", geomKernel(2, oso.TypeFloat, func(in [][]Dual, out []Dual) {
		out[0] = dot3(in[0], in[1])
	}))
	register("cross", geomKernel(2, oso.TypeVector, func(in [][]Dual, out []Dual) {
		copy(out, cross3(in[0], in[1]))
	}))
	register("length", geomKernel(1, oso.TypeFloat, func(in [][]Dual, out []Dual) {
		out[0] = length3(in[0])
	}))
	register("distance", geomKernel(2, oso.TypeFloat, func(in [][]Dual, out []Dual) {
		d := []Dual{in[0][0].Sub(in[1][0]), in[0][1].Sub(in[1][1]), in[0][2].Sub(in[1][2])}
		out[0] = length3(d)
	}))
	register("normalize", geomKernel(1, oso.TypeVector, func(in [][]Dual, out []Dual) {
		l := length3(in[0])
		if l.V == 0 {
			for i := range out {
				out[i] = Dual{}
			}
			return
		}
		for i := range out {
			out[i] = in[0][i].Div(l)
		}
	}))
}

// numeric reports whether values of t are handled component by component.
func numeric(t oso.TypeSpec) bool {
	return (t.Base == oso.Int || t.Base == oso.Float) && !t.IsArray()
}

// mapKernel builds a component-wise routine: Args[0] is the result, the
// next arity arguments are inputs. Scalar inputs broadcast against
// triples.
func mapKernel(p funcspec.Parsed, arity int, fn func([]Dual) Dual) (interp.Kernel, error) {
	s := p.Spec
	if len(s.Args) != arity+1 {
		return nil, errSignature(p)
	}
	s.SetResult()
	n := s.Args[0].Type.Components()
	for _, a := range s.Args {
		if !numeric(a.Type) {
			return nil, errSignature(p)
		}
		if k := a.Type.Components(); k != n && k != 1 {
			return nil, errSignature(p)
		}
	}
	byValue := s.ResultByValue()
	return func(ctx *interp.Context, raw []any) (any, error) {
		c, err := bind(ctx, s, raw, 0)
		if err != nil {
			return nil, err
		}
		var last Dual
		in := make([]Dual, arity)
		c.lanes(func(l int) {
			for comp := 0; comp < n; comp++ {
				for i := range in {
					o := c.ops[i+1]
					cc := comp
					if o.comps() == 1 {
						cc = 0
					}
					in[i] = o.dual(cc, l)
				}
				last = fn(in)
				if !byValue {
					c.ops[0].setDual(comp, l, last)
				}
			}
		})
		return c.result(last), nil
	}, nil
}

// geomKernel builds a routine over triples returning a value of type ret.
func geomKernel(arity int, ret oso.TypeSpec, fn func(in [][]Dual, out []Dual)) factory {
	return func(p funcspec.Parsed) (interp.Kernel, error) {
		s := p.Spec
		if len(s.Args) != arity+1 || s.Args[0].Type.Components() != ret.Components() {
			return nil, errSignature(p)
		}
		for _, a := range s.Args[1:] {
			if !a.Type.IsTriple() {
				return nil, errSignature(p)
			}
		}
		s.SetResult()
		byValue := s.ResultByValue()
		return func(ctx *interp.Context, raw []any) (any, error) {
			c, err := bind(ctx, s, raw, 0)
			if err != nil {
				return nil, err
			}
			out := make([]Dual, ret.Components())
			in := make([][]Dual, arity)
			c.lanes(func(l int) {
				for i := range in {
					in[i] = c.ops[i+1].duals(l)
				}
				fn(in, out)
				if !byValue {
					for k, v := range out {
						c.ops[0].setDual(k, l, v)
					}
				}
			})
			return c.result(out[0]), nil
		}, nil
	}
}

func dot3(a, b []Dual) Dual {
	return a[0].Mul(b[0]).Add(a[1].Mul(b[1])).Add(a[2].Mul(b[2]))
}

func cross3(a, b []Dual) []Dual {
	return []Dual{
		a[1].Mul(b[2]).Sub(a[2].Mul(b[1])),
		a[2].Mul(b[0]).Sub(a[0].Mul(b[2])),
		a[0].Mul(b[1]).Sub(a[1].Mul(b[0])),
	}
}

func length3(a []Dual) Dual {
	return dsqrt(dot3(a, a))
}
