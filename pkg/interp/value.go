// Package interp executes wide IR over a batch of lanes. It is the
// reference executor used by the command line tool and the tests; runtime
// routines named by calls are resolved through a Resolver.
package interp

import (
	"fmt"
	"strings"

	"github.com/AlexMWells/OpenShadingLanguage/pkg/wir"
)

// Value is a runtime value: one element for scalars, one per lane for
// wide values. Only the slice matching Type.Elem is populated.
type Value struct {
	Type wir.Type
	I    []int32
	F    []float32
	B    []bool
	S    []string
	P    any
}

func newValue(t wir.Type, width int) Value {
	n := 1
	if t.Wide {
		n = width
	}
	v := Value{Type: t}
	switch t.Elem {
	case wir.Int:
		v.I = make([]int32, n)
	case wir.Float:
		v.F = make([]float32, n)
	case wir.Bool:
		v.B = make([]bool, n)
	case wir.String:
		v.S = make([]string, n)
	}
	return v
}

// Len returns the number of elements held.
func (v Value) Len() int {
	switch v.Type.Elem {
	case wir.Int:
		return len(v.I)
	case wir.Float:
		return len(v.F)
	case wir.Bool:
		return len(v.B)
	case wir.String:
		return len(v.S)
	}
	return 1
}

// Mask builds a wide bool value from a lane bit set.
func Mask(bits uint32, width int) Value {
	v := newValue(wir.MaskType, width)
	for l := 0; l < width; l++ {
		v.B[l] = bits&(1<<uint(l)) != 0
	}
	return v
}

// Bits packs a wide bool value into a lane bit set.
func (v Value) Bits() uint32 {
	var bits uint32
	for l, b := range v.B {
		if b {
			bits |= 1 << uint(l)
		}
	}
	return bits
}

// Any returns the value as a kernel argument: a scalar Go value for
// scalars, the lane slice for wide values.
func (v Value) Any() any {
	if v.Type.Wide {
		switch v.Type.Elem {
		case wir.Int:
			return v.I
		case wir.Float:
			return v.F
		case wir.Bool:
			return v.B
		case wir.String:
			return v.S
		}
		return v.P
	}
	switch v.Type.Elem {
	case wir.Int:
		return v.I[0]
	case wir.Float:
		return v.F[0]
	case wir.Bool:
		return v.B[0]
	case wir.String:
		return v.S[0]
	}
	return v.P
}

func (v Value) String() string {
	var sb strings.Builder
	n := v.Len()
	if v.Type.Wide {
		sb.WriteByte('[')
	}
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteByte(' ')
		}
		switch v.Type.Elem {
		case wir.Int:
			fmt.Fprint(&sb, v.I[i])
		case wir.Float:
			fmt.Fprint(&sb, v.F[i])
		case wir.Bool:
			fmt.Fprint(&sb, v.B[i])
		case wir.String:
			fmt.Fprintf(&sb, "%q", v.S[i])
		default:
			fmt.Fprint(&sb, v.P)
		}
	}
	if v.Type.Wide {
		sb.WriteByte(']')
	}
	return sb.String()
}

// fromResult converts a kernel result into a value of type t.
func fromResult(t wir.Type, width int, r any) (Value, error) {
	v := newValue(t, width)
	switch x := r.(type) {
	case int32:
		if t.Elem != wir.Int || t.Wide {
			break
		}
		v.I[0] = x
		return v, nil
	case float32:
		if t.Elem != wir.Float || t.Wide {
			break
		}
		v.F[0] = x
		return v, nil
	case bool:
		if t.Elem != wir.Bool || t.Wide {
			break
		}
		v.B[0] = x
		return v, nil
	case string:
		if t.Elem != wir.String || t.Wide {
			break
		}
		v.S[0] = x
		return v, nil
	case []int32:
		if t != wir.Wide(wir.Int) || len(x) != width {
			break
		}
		copy(v.I, x)
		return v, nil
	case []float32:
		if t != wir.Wide(wir.Float) || len(x) != width {
			break
		}
		copy(v.F, x)
		return v, nil
	case []bool:
		if t != wir.MaskType || len(x) != width {
			break
		}
		copy(v.B, x)
		return v, nil
	}
	if t.Elem == wir.Ptr {
		v.P = r
		return v, nil
	}
	return v, fmt.Errorf("kernel result %T does not fit %s", r, t)
}
