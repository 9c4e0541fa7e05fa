// Package oso models the compiled shader program handed to the batched
// code generator: typed symbols, a linear opcode stream per layer, and the
// layer connections of a shader group.
package oso

import (
	"fmt"
	"strconv"
	"strings"
)

// BaseType is the scalar base type of a value.
type BaseType int

const (
	Unknown BaseType = iota
	Int
	Float
	String
	Matrix
	Closure
	Void
)

func (b BaseType) String() string {
	switch b {
	case Int:
		return "int"
	case Float:
		return "float"
	case String:
		return "string"
	case Matrix:
		return "matrix"
	case Closure:
		return "closure color"
	case Void:
		return "void"
	default:
		return "unknown"
	}
}

// VecSemantics distinguishes the flavours of 3-component float aggregates.
type VecSemantics int

const (
	NoSemantics VecSemantics = iota
	Color
	Point
	Vector
	Normal
)

// TypeSpec describes a symbol's type. ArrayLen is 0 for non-arrays.
type TypeSpec struct {
	Base      BaseType
	Semantics VecSemantics
	ArrayLen  int
}

// Convenience type values.
var (
	TypeInt     = TypeSpec{Base: Int}
	TypeFloat   = TypeSpec{Base: Float}
	TypeString  = TypeSpec{Base: String}
	TypeMatrix  = TypeSpec{Base: Matrix}
	TypeColor   = TypeSpec{Base: Float, Semantics: Color}
	TypePoint   = TypeSpec{Base: Float, Semantics: Point}
	TypeVector  = TypeSpec{Base: Float, Semantics: Vector}
	TypeNormal  = TypeSpec{Base: Float, Semantics: Normal}
	TypeClosure = TypeSpec{Base: Closure}
	TypeVoid    = TypeSpec{Base: Void}
)

func (t TypeSpec) IsInt() bool     { return t.Base == Int && t.ArrayLen == 0 }
func (t TypeSpec) IsFloat() bool   { return t.Base == Float && t.Semantics == NoSemantics && t.ArrayLen == 0 }
func (t TypeSpec) IsString() bool  { return t.Base == String && t.ArrayLen == 0 }
func (t TypeSpec) IsMatrix() bool  { return t.Base == Matrix && t.ArrayLen == 0 }
func (t TypeSpec) IsClosure() bool { return t.Base == Closure }
func (t TypeSpec) IsArray() bool   { return t.ArrayLen != 0 }

// IsTriple reports whether t is a (non-array) color, point, vector or normal.
func (t TypeSpec) IsTriple() bool {
	return t.Base == Float && t.Semantics != NoSemantics && t.ArrayLen == 0
}

// IsIntBased reports whether the element type is int.
func (t TypeSpec) IsIntBased() bool { return t.Base == Int }

// IsFloatBased reports whether the element type is float, a triple or a matrix.
func (t TypeSpec) IsFloatBased() bool { return t.Base == Float || t.Base == Matrix }

// IsStringBased reports whether the element type is string.
func (t TypeSpec) IsStringBased() bool { return t.Base == String }

// IsScalarBased reports whether the element type is a single int, float or string.
func (t TypeSpec) IsScalarBased() bool {
	return t.Aggregate() == 1 && t.Base != Closure && t.Base != Void
}

// Aggregate returns the number of scalar components of one element.
func (t TypeSpec) Aggregate() int {
	switch {
	case t.Base == Matrix:
		return 16
	case t.Base == Float && t.Semantics != NoSemantics:
		return 3
	default:
		return 1
	}
}

// Elem returns the element type of an array (t itself otherwise).
func (t TypeSpec) Elem() TypeSpec {
	t.ArrayLen = 0
	return t
}

// NumElements returns the array length, or 1 for non-arrays.
func (t TypeSpec) NumElements() int {
	if t.ArrayLen > 0 {
		return t.ArrayLen
	}
	return 1
}

// Components is the number of scalars making up the whole value.
func (t TypeSpec) Components() int {
	return t.NumElements() * t.Aggregate()
}

// String renders the type the way the front end spells it.
func (t TypeSpec) String() string {
	var s string
	switch {
	case t.Base == Float && t.Semantics != NoSemantics:
		s = [...]string{"", "color", "point", "vector", "normal"}[t.Semantics]
	default:
		s = t.Base.String()
	}
	if t.ArrayLen > 0 {
		s += "[" + strconv.Itoa(t.ArrayLen) + "]"
	} else if t.ArrayLen < 0 {
		s += "[]"
	}
	return s
}

// ParseType parses a front-end type name such as "float", "color[3]" or
// "closure color".
func ParseType(s string) (TypeSpec, error) {
	s = strings.TrimSpace(s)
	var t TypeSpec
	if i := strings.IndexByte(s, '['); i >= 0 {
		if !strings.HasSuffix(s, "]") {
			return t, fmt.Errorf("bad array type %q", s)
		}
		n := strings.TrimSpace(s[i+1 : len(s)-1])
		if n == "" {
			t.ArrayLen = -1
		} else {
			v, err := strconv.Atoi(n)
			if err != nil || v <= 0 {
				return t, fmt.Errorf("bad array length in %q", s)
			}
			t.ArrayLen = v
		}
		s = strings.TrimSpace(s[:i])
	}
	switch s {
	case "int":
		t.Base = Int
	case "float":
		t.Base = Float
	case "string":
		t.Base = String
	case "matrix":
		t.Base = Matrix
	case "color":
		t.Base, t.Semantics = Float, Color
	case "point":
		t.Base, t.Semantics = Float, Point
	case "vector":
		t.Base, t.Semantics = Float, Vector
	case "normal":
		t.Base, t.Semantics = Float, Normal
	case "closure color", "closure":
		t.Base = Closure
	case "void":
		t.Base = Void
	default:
		return t, fmt.Errorf("unknown type %q", s)
	}
	return t, nil
}
