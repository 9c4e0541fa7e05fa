package oso

import "fmt"

// SymType is the storage class of a symbol.
type SymType int

const (
	SymParam SymType = iota
	SymOutputParam
	SymLocal
	SymTemp
	SymGlobal
	SymConst
)

var symTypeNames = [...]string{"param", "oparam", "local", "temp", "global", "const"}

func (s SymType) String() string {
	if int(s) < len(symTypeNames) {
		return symTypeNames[s]
	}
	return fmt.Sprintf("symtype(%d)", int(s))
}

// Symbol is a named value of a shader layer. Uniform and HasDerivs are the
// results of an external analysis and are trusted as given.
type Symbol struct {
	Name      string
	Type      TypeSpec
	SymType   SymType
	Uniform   bool
	HasDerivs bool

	// Connected marks a parameter whose value is produced by an upstream
	// layer (see Connection).
	Connected bool

	// Lazy output parameters are only computed when a downstream layer asks.
	Lazy bool

	// InitBegin/InitEnd bound the ops computing a parameter's default;
	// equal values mean the constant payload is the default.
	InitBegin, InitEnd int

	// constant payload (or parameter default), one entry per component
	Ints    []int32
	Floats  []float32
	Strings []string
}

// IsConstant reports whether the symbol is a compile-time constant.
func (s *Symbol) IsConstant() bool { return s.SymType == SymConst }

// IsVarying is the negation of Uniform.
func (s *Symbol) IsVarying() bool { return !s.Uniform }

// IsParam reports whether the symbol is an input or output parameter.
func (s *Symbol) IsParam() bool {
	return s.SymType == SymParam || s.SymType == SymOutputParam
}

// HasInitOps reports whether a default value is computed by code.
func (s *Symbol) HasInitOps() bool { return s.InitEnd > s.InitBegin }

// ConstInt returns component i of an int constant.
func (s *Symbol) ConstInt(i int) int32 {
	if i < len(s.Ints) {
		return s.Ints[i]
	}
	return 0
}

// ConstFloat returns component i of a float-based constant. Int payloads
// are converted.
func (s *Symbol) ConstFloat(i int) float32 {
	if i < len(s.Floats) {
		return s.Floats[i]
	}
	if i < len(s.Ints) {
		return float32(s.Ints[i])
	}
	return 0
}

// ConstString returns element i of a string constant.
func (s *Symbol) ConstString(i int) string {
	if i < len(s.Strings) {
		return s.Strings[i]
	}
	return ""
}

// ConstIndexInRange reports whether s is an int constant whose value is
// within [0, n).
func (s *Symbol) ConstIndexInRange(n int) bool {
	if !s.IsConstant() || !s.Type.IsInt() {
		return false
	}
	v := s.ConstInt(0)
	return v >= 0 && int(v) < n
}

func (s *Symbol) String() string {
	u := "varying"
	if s.Uniform {
		u = "uniform"
	}
	return fmt.Sprintf("%s %s %s %s", s.SymType, u, s.Type, s.Name)
}
