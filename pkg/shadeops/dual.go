package shadeops

import "math"

// Dual is a value with its screen-space x and y derivatives.
type Dual struct {
	V, Dx, Dy float32
}

// Const is a dual with zero derivatives.
func Const(v float32) Dual { return Dual{V: v} }

func (a Dual) Add(b Dual) Dual { return Dual{a.V + b.V, a.Dx + b.Dx, a.Dy + b.Dy} }
func (a Dual) Sub(b Dual) Dual { return Dual{a.V - b.V, a.Dx - b.Dx, a.Dy - b.Dy} }
func (a Dual) Neg() Dual       { return Dual{-a.V, -a.Dx, -a.Dy} }
func (a Dual) Scale(s float32) Dual {
	return Dual{a.V * s, a.Dx * s, a.Dy * s}
}

func (a Dual) Mul(b Dual) Dual {
	return Dual{a.V * b.V, a.V*b.Dx + a.Dx*b.V, a.V*b.Dy + a.Dy*b.V}
}

// Div returns a/b; division by zero yields zero with zero derivatives.
func (a Dual) Div(b Dual) Dual {
	if b.V == 0 {
		return Dual{}
	}
	inv := 1 / b.V
	q := a.V * inv
	return Dual{q, (a.Dx - q*b.Dx) * inv, (a.Dy - q*b.Dy) * inv}
}

// chain applies f with derivative df at a.V.
func (a Dual) chain(f, df float32) Dual {
	return Dual{f, df * a.Dx, df * a.Dy}
}

func f32(x float64) float32 { return float32(x) }

func dsin(a Dual) Dual { return a.chain(f32(math.Sin(float64(a.V))), f32(math.Cos(float64(a.V)))) }
func dcos(a Dual) Dual { return a.chain(f32(math.Cos(float64(a.V))), -f32(math.Sin(float64(a.V)))) }

func dtan(a Dual) Dual {
	t := math.Tan(float64(a.V))
	return a.chain(f32(t), f32(1+t*t))
}

func dasin(a Dual) Dual {
	x := float64(clampf(a.V, -1, 1))
	d := 0.0
	if x*x < 1 {
		d = 1 / math.Sqrt(1-x*x)
	}
	return a.chain(f32(math.Asin(x)), f32(d))
}

func dacos(a Dual) Dual {
	x := float64(clampf(a.V, -1, 1))
	d := 0.0
	if x*x < 1 {
		d = -1 / math.Sqrt(1-x*x)
	}
	return a.chain(f32(math.Acos(x)), f32(d))
}

func datan(a Dual) Dual {
	x := float64(a.V)
	return a.chain(f32(math.Atan(x)), f32(1/(1+x*x)))
}

func datan2(y, x Dual) Dual {
	d := x.V*x.V + y.V*y.V
	v := f32(math.Atan2(float64(y.V), float64(x.V)))
	if d == 0 {
		return Const(v)
	}
	return Dual{v, (x.V*y.Dx - y.V*x.Dx) / d, (x.V*y.Dy - y.V*x.Dy) / d}
}

func dsinh(a Dual) Dual {
	x := float64(a.V)
	return a.chain(f32(math.Sinh(x)), f32(math.Cosh(x)))
}

func dcosh(a Dual) Dual {
	x := float64(a.V)
	return a.chain(f32(math.Cosh(x)), f32(math.Sinh(x)))
}

func dtanh(a Dual) Dual {
	t := math.Tanh(float64(a.V))
	return a.chain(f32(t), f32(1-t*t))
}

func dexp(a Dual) Dual {
	e := f32(math.Exp(float64(a.V)))
	return a.chain(e, e)
}

func dexp2(a Dual) Dual {
	e := math.Exp2(float64(a.V))
	return a.chain(f32(e), f32(e*math.Ln2))
}

func dexpm1(a Dual) Dual {
	x := float64(a.V)
	return a.chain(f32(math.Expm1(x)), f32(math.Exp(x)))
}

// logs of non-positive values are clamped the way the shading library
// does it, rather than producing NaN.
const logFloor = 1.1754943508222875e-38

func dlogBase(a Dual, scale float64) Dual {
	x := float64(a.V)
	if x < logFloor {
		return Const(f32(math.Log(logFloor) * scale))
	}
	return a.chain(f32(math.Log(x)*scale), f32(scale/x))
}

func dlog(a Dual) Dual   { return dlogBase(a, 1) }
func dlog2(a Dual) Dual  { return dlogBase(a, 1/math.Ln2) }
func dlog10(a Dual) Dual { return dlogBase(a, 1/math.Ln10) }

func dlogb(a Dual) Dual {
	x := float64(a.V)
	if x == 0 {
		return Const(f32(math.Inf(-1)))
	}
	return Const(f32(math.Logb(x)))
}

func dsqrt(a Dual) Dual {
	if a.V <= 0 {
		return Dual{}
	}
	s := f32(math.Sqrt(float64(a.V)))
	return a.chain(s, 0.5/s)
}

func dinversesqrt(a Dual) Dual {
	if a.V <= 0 {
		return Dual{}
	}
	r := f32(1 / math.Sqrt(float64(a.V)))
	return a.chain(r, -0.5*r/a.V)
}

func dcbrt(a Dual) Dual {
	c := f32(math.Cbrt(float64(a.V)))
	if c == 0 {
		return Dual{}
	}
	return a.chain(c, 1/(3*c*c))
}

func dabs(a Dual) Dual {
	if a.V < 0 {
		return a.Neg()
	}
	return a
}

func dpow(a, b Dual) Dual {
	if a.V == 0 && b.V == 0 {
		return Const(1)
	}
	x, y := float64(a.V), float64(b.V)
	p := math.Pow(x, y)
	if math.IsNaN(p) {
		return Dual{}
	}
	da := y * math.Pow(x, y-1)
	db := 0.0
	if x > 0 {
		db = p * math.Log(x)
	}
	return Dual{
		V:  f32(p),
		Dx: f32(da)*a.Dx + f32(db)*b.Dx,
		Dy: f32(da)*a.Dy + f32(db)*b.Dy,
	}
}

// dfmod follows C fmod; b == 0 yields 0.
func dfmod(a, b Dual) Dual {
	if b.V == 0 {
		return Dual{}
	}
	return Dual{f32(math.Mod(float64(a.V), float64(b.V))), a.Dx, a.Dy}
}

func dhypot(a, b Dual) Dual {
	h := f32(math.Hypot(float64(a.V), float64(b.V)))
	if h == 0 {
		return Dual{}
	}
	return Dual{h, (a.V*a.Dx + b.V*b.Dx) / h, (a.V*a.Dy + b.V*b.Dy) / h}
}

func derf(a Dual) Dual {
	x := float64(a.V)
	return a.chain(f32(math.Erf(x)), f32(2/math.SqrtPi*math.Exp(-x*x)))
}

func derfc(a Dual) Dual {
	x := float64(a.V)
	return a.chain(f32(math.Erfc(x)), f32(-2/math.SqrtPi*math.Exp(-x*x)))
}

func dfloor(a Dual) Dual { return Const(f32(math.Floor(float64(a.V)))) }
func dceil(a Dual) Dual  { return Const(f32(math.Ceil(float64(a.V)))) }
func dround(a Dual) Dual { return Const(f32(math.Round(float64(a.V)))) }
func dtrunc(a Dual) Dual { return Const(f32(math.Trunc(float64(a.V)))) }

func dsign(a Dual) Dual {
	switch {
	case a.V > 0:
		return Const(1)
	case a.V < 0:
		return Const(-1)
	}
	return Dual{}
}

func dstep(edge, x Dual) Dual {
	if x.V < edge.V {
		return Dual{}
	}
	return Const(1)
}

func dsmoothstep(e0, e1, x Dual) Dual {
	if x.V < e0.V {
		return Dual{}
	}
	if x.V >= e1.V {
		return Const(1)
	}
	t := x.Sub(e0).Div(e1.Sub(e0))
	// t*t*(3-2t)
	return t.Mul(t).Mul(Const(3).Sub(t.Scale(2)))
}

func clampf(x, lo, hi float32) float32 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func isFinite(x float32) bool {
	return !math.IsInf(float64(x), 0) && !math.IsNaN(float64(x))
}
