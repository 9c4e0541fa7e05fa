package funcspec

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/AlexMWells/OpenShadingLanguage/pkg/oso"
)

// Parsed is a decoded routine name.
type Parsed struct {
	Spec  *Spec
	Width int // 0 for unbatched routines
}

// Parse inverts Spec.Name. Triples decode as vectors and arrays as their
// element type, so Parse(n).Spec.Name(w) == n but the types may be less
// specific than the ones the name was built from. The result flag is not
// encoded in a name and is left unset.
func Parse(name string) (Parsed, error) {
	rest, ok := strings.CutPrefix(name, "osl_")
	if !ok {
		return Parsed{}, fmt.Errorf("funcspec: %q is not a runtime routine name", name)
	}
	var p Parsed
	spec := &Spec{unbatched: true}
	if w, after, ok := cutWidth(rest); ok {
		p.Width = w
		spec.unbatched = false
		rest = after
	}
	if body, ok := strings.CutSuffix(rest, "_masked"); ok && !spec.unbatched {
		spec.masked = true
		rest = body
	}
	if i := strings.LastIndexByte(rest, '_'); i > 0 {
		if args, err := parseCodes(rest[i+1:], p.Width, !spec.unbatched); err == nil {
			spec.Base = rest[:i]
			spec.Args = args
		}
	}
	if spec.Base == "" {
		spec.Base = rest
	}
	if spec.Base == "" {
		return Parsed{}, fmt.Errorf("funcspec: %q has no routine name", name)
	}
	p.Spec = spec
	return p, nil
}

// cutWidth strips a "b<W>_" batch prefix.
func cutWidth(s string) (int, string, bool) {
	if len(s) < 3 || s[0] != 'b' {
		return 0, s, false
	}
	i := 1
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 1 || i >= len(s) || s[i] != '_' {
		return 0, s, false
	}
	w, err := strconv.Atoi(s[1:i])
	if err != nil || w <= 0 {
		return 0, s, false
	}
	return w, s[i+1:], true
}

func parseCodes(s string, width int, batched bool) ([]Arg, error) {
	if s == "" {
		return nil, fmt.Errorf("funcspec: empty argument codes")
	}
	var args []Arg
	for len(s) > 0 {
		a := Arg{Uniform: true}
		if s[0] == 'w' {
			if !batched {
				return nil, fmt.Errorf("funcspec: varying argument in unbatched routine")
			}
			j := 1
			for j < len(s) && s[j] >= '0' && s[j] <= '9' {
				j++
			}
			if w, err := strconv.Atoi(s[1:j]); err != nil || w != width {
				return nil, fmt.Errorf("funcspec: argument width %q does not match %d", s[:j], width)
			}
			a.Uniform = false
			s = s[j:]
		}
		if len(s) > 0 && s[0] == 'd' {
			a.Derivs = true
			s = s[1:]
		}
		if len(s) == 0 {
			return nil, fmt.Errorf("funcspec: truncated argument code")
		}
		t, ok := codeTypes[s[0]]
		if !ok {
			return nil, fmt.Errorf("funcspec: unknown type code %q", s[0])
		}
		a.Type = t
		args = append(args, a)
		s = s[1:]
	}
	return args, nil
}

var codeTypes = map[byte]oso.TypeSpec{
	'i': oso.TypeInt,
	'f': oso.TypeFloat,
	's': oso.TypeString,
	'v': oso.TypeVector,
	'm': oso.TypeMatrix,
	'c': oso.TypeClosure,
}

// Catalog tells which runtime routines exist.
type Catalog interface {
	Has(name string) bool
}

// Names is a fixed Catalog.
type Names map[string]bool

// Has implements Catalog.
func (n Names) Has(name string) bool { return n[name] }

// Resolve returns the routine name of s, or ErrUnknownVariant when the
// catalog does not provide it. A nil catalog accepts every name.
func Resolve(s *Spec, width int, c Catalog) (string, error) {
	name := s.Name(width)
	if c != nil && !c.Has(name) {
		return "", fmt.Errorf("%w: %s", ErrUnknownVariant, name)
	}
	return name, nil
}
