// Package funcspec names the runtime routines called by generated code.
//
// A Spec lists an operation's arguments with their type, derivative and
// uniformity specialisation. Its mangled name is the external symbol the
// runtime library must provide:
//
//	batched:   osl_b<W>_<name>_<codes>[_masked]
//	unbatched: osl_<name>_<codes>
//
// Each argument contributes one code: an optional "w<W>" when it is
// varying, an optional "d" when it carries derivatives, then one of
// i f s v m c (int, float, string, triple, matrix, closure). Arrays use
// their element code.
package funcspec

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/AlexMWells/OpenShadingLanguage/pkg/oso"
)

// ErrUnknownVariant is returned when the runtime library has no routine
// for a specialisation.
var ErrUnknownVariant = errors.New("no runtime routine for this variant")

// Arg is one argument specialisation.
type Arg struct {
	Type    oso.TypeSpec
	Derivs  bool
	Uniform bool

	// Out marks an argument the routine writes. It is not part of the
	// name; outputs are always passed by pointer.
	Out bool
}

// Pass is the marshaling convention of one argument.
type Pass int

const (
	ByValue Pass = iota
	ByPointer
)

func (p Pass) String() string {
	if p == ByValue {
		return "value"
	}
	return "pointer"
}

// Spec describes one runtime call.
type Spec struct {
	Base string
	Args []Arg

	unbatched bool
	masked    bool
	result    bool
}

// New starts a batched spec for the routine base.
func New(base string) *Spec { return &Spec{Base: base} }

// Arg appends an argument.
func (s *Spec) Arg(t oso.TypeSpec, derivs, uniform bool) *Spec {
	s.Args = append(s.Args, Arg{Type: t, Derivs: derivs, Uniform: uniform})
	return s
}

// ArgUniform appends a uniform argument without derivatives.
func (s *Spec) ArgUniform(t oso.TypeSpec) *Spec { return s.Arg(t, false, true) }

// ArgVarying appends a varying argument without derivatives.
func (s *Spec) ArgVarying(t oso.TypeSpec) *Spec { return s.Arg(t, false, false) }

// ArgOut appends an output argument.
func (s *Spec) ArgOut(t oso.TypeSpec, derivs, uniform bool) *Spec {
	s.Args = append(s.Args, Arg{Type: t, Derivs: derivs, Uniform: uniform, Out: true})
	return s
}

// SetOutput marks argument i as written by the routine.
func (s *Spec) SetOutput(i int) *Spec {
	s.Args[i].Out = true
	return s
}

// ArgSym appends sym's specialisation. forceUniform is set when the
// whole call is made in its uniform form.
func (s *Spec) ArgSym(sym *oso.Symbol, derivs, forceUniform bool) *Spec {
	return s.Arg(sym.Type, derivs, forceUniform || sym.Uniform)
}

// Result appends the result as the first argument. A uniform scalar
// result without derivatives of an unbatched spec is returned by value;
// any other result is written through the first pointer argument.
func (s *Spec) Result(t oso.TypeSpec, derivs, uniform bool) *Spec {
	if len(s.Args) != 0 {
		panic("funcspec: result must be the first argument")
	}
	s.result = true
	return s.Arg(t, derivs, uniform)
}

// SetResult marks the existing first argument as the result. Parse
// cannot recover this flag from a name; routines that know their own
// signature set it after parsing.
func (s *Spec) SetResult() *Spec {
	if len(s.Args) == 0 {
		panic("funcspec: no argument to mark as result")
	}
	s.result = true
	return s
}

// ResultSym is Result for a symbol.
func (s *Spec) ResultSym(sym *oso.Symbol, derivs, forceUniform bool) *Spec {
	return s.Result(sym.Type, derivs, forceUniform || sym.Uniform)
}

// Mask requests the trailing lane mask argument.
func (s *Spec) Mask() *Spec {
	s.masked = true
	return s
}

// Unbatch selects the uniform (one lane) form of the routine. Every
// argument of an unbatched spec is uniform.
func (s *Spec) Unbatch() *Spec {
	s.unbatched = true
	return s
}

// Batched reports whether the spec names a batched routine.
func (s *Spec) Batched() bool { return !s.unbatched }

// Masked reports whether the routine takes a trailing lane mask.
func (s *Spec) Masked() bool { return s.masked && !s.unbatched }

// HasResult reports whether Args[0] is the call's result.
func (s *Spec) HasResult() bool { return s.result }

// Varying reports whether any argument is varying.
func (s *Spec) Varying() bool {
	if s.unbatched {
		return false
	}
	for _, a := range s.Args {
		if !a.Uniform {
			return true
		}
	}
	return false
}

// Pass returns how argument i is handed to the routine.
func (s *Spec) Pass(i int) Pass {
	a := s.Args[i]
	if a.Out || (s.result && i == 0 && !s.ResultByValue()) {
		return ByPointer
	}
	if (a.Uniform || s.unbatched) && !a.Derivs && !a.Type.IsArray() &&
		(a.Type.IsInt() || a.Type.IsFloat() || a.Type.IsString()) {
		return ByValue
	}
	return ByPointer
}

// ResultByValue reports whether the result comes back as the call's
// return value rather than through Args[0].
func (s *Spec) ResultByValue() bool {
	if !s.result || !s.unbatched {
		return false
	}
	a := s.Args[0]
	return !a.Derivs && !a.Type.IsArray() && a.Type.IsScalarBased()
}

// Code returns the mangling of one argument.
func Code(a Arg, width int, batched bool) string {
	var sb strings.Builder
	if batched && !a.Uniform {
		sb.WriteByte('w')
		sb.WriteString(strconv.Itoa(width))
	}
	if a.Derivs {
		sb.WriteByte('d')
	}
	sb.WriteByte(typeCode(a.Type))
	return sb.String()
}

func typeCode(t oso.TypeSpec) byte {
	switch {
	case t.Base == oso.Int:
		return 'i'
	case t.Base == oso.String:
		return 's'
	case t.Base == oso.Matrix:
		return 'm'
	case t.Base == oso.Closure:
		return 'c'
	case t.Base == oso.Float && t.Semantics != oso.NoSemantics:
		return 'v'
	case t.Base == oso.Float:
		return 'f'
	}
	panic(fmt.Sprintf("funcspec: no code for type %s", t))
}

// Name returns the mangled routine name for the given lane count.
func (s *Spec) Name(width int) string {
	var sb strings.Builder
	sb.WriteString("osl_")
	if s.Batched() {
		sb.WriteByte('b')
		sb.WriteString(strconv.Itoa(width))
		sb.WriteByte('_')
	}
	sb.WriteString(s.Base)
	if len(s.Args) > 0 {
		sb.WriteByte('_')
		for _, a := range s.Args {
			sb.WriteString(Code(a, width, s.Batched()))
		}
	}
	if s.Masked() {
		sb.WriteString("_masked")
	}
	return sb.String()
}

func (s *Spec) String() string { return s.Name(0) }
