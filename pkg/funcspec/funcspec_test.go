package funcspec

import (
	"errors"
	"testing"

	"github.com/AlexMWells/OpenShadingLanguage/pkg/oso"
)

func TestName(t *testing.T) {
	tests := []struct {
		name string
		spec *Spec
		want string
	}{
		{
			"varying sin",
			New("sin").ArgVarying(oso.TypeFloat).ArgVarying(oso.TypeFloat).Mask(),
			"osl_b8_sin_w8fw8f_masked",
		},
		{
			"uniform form",
			New("sin").Unbatch().ArgVarying(oso.TypeFloat).ArgVarying(oso.TypeFloat),
			"osl_sin_ff",
		},
		{
			"mixed with derivs",
			New("pow").Arg(oso.TypeColor, true, false).Arg(oso.TypeColor, true, false).ArgUniform(oso.TypeFloat).Mask(),
			"osl_b8_pow_w8dvw8dvf_masked",
		},
		{
			"uniform derivs",
			New("length").ArgVarying(oso.TypeFloat).Arg(oso.TypeVector, true, true),
			"osl_b8_length_w8fdv",
		},
		{
			"matrix and string",
			New("get_from_to_matrix").ArgVarying(oso.TypeMatrix).ArgUniform(oso.TypeString).ArgVarying(oso.TypeString).Mask(),
			"osl_b8_get_from_to_matrix_w8msw8s_masked",
		},
		{
			"array uses element code",
			New("split").ArgVarying(oso.TypeInt).ArgUniform(oso.TypeSpec{Base: oso.String, ArrayLen: 4}),
			"osl_b8_split_w8is",
		},
		{
			"no arguments",
			New("count_noise").Mask(),
			"osl_b8_count_noise_masked",
		},
		{
			"unbatched ignores mask",
			New("range_check").Unbatch().Mask().ArgUniform(oso.TypeInt),
			"osl_range_check_i",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.spec.Name(8); got != tt.want {
				t.Errorf("Name = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	names := []string{
		"osl_b8_sin_w8fw8f_masked",
		"osl_sin_ff",
		"osl_b16_pow_w16dvw16dvf_masked",
		"osl_b8_length_w8fdv",
		"osl_b4_get_from_to_matrix_w4msw4s_masked",
		"osl_b8_count_noise_masked",
		"osl_range_check",
		"osl_b8_range_check_masked",
		"osl_b8_noise_null_w8fw8v_masked",
	}
	for _, n := range names {
		p, err := Parse(n)
		if err != nil {
			t.Errorf("Parse(%q): %v", n, err)
			continue
		}
		if got := p.Spec.Name(p.Width); got != n {
			t.Errorf("Parse(%q).Name = %q", n, got)
		}
	}
}

func TestParseFields(t *testing.T) {
	p, err := Parse("osl_b8_fmod_w8dvw8dvf_masked")
	if err != nil {
		t.Fatal(err)
	}
	s := p.Spec
	if p.Width != 8 || s.Base != "fmod" || !s.Batched() || !s.Masked() {
		t.Fatalf("parsed %+v width %d", s, p.Width)
	}
	if len(s.Args) != 3 {
		t.Fatalf("args = %+v", s.Args)
	}
	if s.Args[0].Uniform || !s.Args[0].Derivs || !s.Args[0].Type.IsTriple() {
		t.Errorf("arg 0 = %+v", s.Args[0])
	}
	if !s.Args[2].Uniform || s.Args[2].Derivs || !s.Args[2].Type.IsFloat() {
		t.Errorf("arg 2 = %+v", s.Args[2])
	}
}

func TestParseErrors(t *testing.T) {
	for _, n := range []string{"sin_ff", "osl_", "osl_b8_"} {
		if _, err := Parse(n); err == nil {
			t.Errorf("Parse(%q) succeeded", n)
		}
	}
	// a width mismatch means the suffix is not argument codes at all
	p, err := Parse("osl_b8_sin_w4f")
	if err != nil {
		t.Fatal(err)
	}
	if p.Spec.Base != "sin_w4f" {
		t.Errorf("base = %q", p.Spec.Base)
	}
}

func TestPass(t *testing.T) {
	s := New("mix").Unbatch().
		Result(oso.TypeFloat, false, true).
		ArgUniform(oso.TypeFloat).
		ArgUniform(oso.TypeColor).
		Arg(oso.TypeFloat, true, true)
	if !s.ResultByValue() {
		t.Error("uniform scalar result of an unbatched spec is returned by value")
	}
	want := []Pass{ByValue, ByValue, ByPointer, ByPointer}
	for i, w := range want {
		if got := s.Pass(i); got != w {
			t.Errorf("Pass(%d) = %v, want %v", i, got, w)
		}
	}

	b := New("mix").Result(oso.TypeFloat, false, false).ArgVarying(oso.TypeFloat).ArgUniform(oso.TypeFloat).Mask()
	if b.ResultByValue() {
		t.Error("batched results go through a pointer")
	}
	if b.Pass(0) != ByPointer || b.Pass(1) != ByPointer || b.Pass(2) != ByValue {
		t.Errorf("passes = %v %v %v", b.Pass(0), b.Pass(1), b.Pass(2))
	}
	if !b.Varying() || !b.Masked() {
		t.Error("batched spec should be varying and masked")
	}

	o := New("getattribute").Unbatch().ArgUniform(oso.TypeString).ArgOut(oso.TypeFloat, false, true)
	if o.Pass(0) != ByValue || o.Pass(1) != ByPointer {
		t.Errorf("outputs go through a pointer: %v %v", o.Pass(0), o.Pass(1))
	}
	if got := o.Name(8); got != "osl_getattribute_sf" {
		t.Errorf("Name = %q", got)
	}
}

func TestResolve(t *testing.T) {
	cat := Names{"osl_b8_sin_w8fw8f_masked": true}
	s := New("sin").ArgVarying(oso.TypeFloat).ArgVarying(oso.TypeFloat).Mask()
	if name, err := Resolve(s, 8, cat); err != nil || name != "osl_b8_sin_w8fw8f_masked" {
		t.Errorf("Resolve = %q, %v", name, err)
	}
	if _, err := Resolve(s, 16, cat); !errors.Is(err, ErrUnknownVariant) {
		t.Errorf("err = %v, want ErrUnknownVariant", err)
	}
	if _, err := Resolve(s, 4, nil); err != nil {
		t.Errorf("nil catalog: %v", err)
	}
}
