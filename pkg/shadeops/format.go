package shadeops

import (
	"fmt"
	"io"
	"strings"

	"github.com/AlexMWells/OpenShadingLanguage/pkg/funcspec"
	"github.com/AlexMWells/OpenShadingLanguage/pkg/interp"
)

// The formatting routines take their format and scalar arguments
// unmangled. Batched forms run once for the lowest active lane; generated
// code calls them lane by lane when any argument is varying.
func init() {
	register("printf", textKernel(0, func(c *call, lane int, msg string) {
		io.WriteString(c.ctx.Stdout, msg)
	}))
	register("error", textKernel(0, func(c *call, lane int, msg string) {
		report(c.ctx).Errorf("%s", msg)
	}))
	register("warning", textKernel(0, func(c *call, lane int, msg string) {
		report(c.ctx).Warningf("%s", msg)
	}))
	register("fprintf", textKernel(1, func(c *call, lane int, msg string) {
		name, _ := c.rest[0].(string)
		w, err := services(c.ctx).openFile(name)
		if err != nil {
			report(c.ctx).Errorf("fprintf: %v", err)
			return
		}
		io.WriteString(w, msg)
		if cl, ok := w.(io.Closer); ok {
			cl.Close()
		}
	}))
	register("format", formatKernel)
}

// textKernel formats rest[lead:] and hands the text to out. lead counts
// arguments preceding the format string.
func textKernel(lead int, out func(c *call, lane int, msg string)) factory {
	return func(p funcspec.Parsed) (interp.Kernel, error) {
		if len(p.Spec.Args) != 0 || !p.Spec.Masked() {
			return nil, errSignature(p)
		}
		return func(ctx *interp.Context, raw []any) (any, error) {
			c, err := bind(ctx, p.Spec, raw, -1)
			if err != nil {
				return nil, err
			}
			if c.mask == 0 {
				return nil, nil
			}
			if len(c.rest) <= lead {
				return nil, fmt.Errorf("missing format string")
			}
			f, ok := c.rest[lead].(string)
			if !ok {
				return nil, fmt.Errorf("format is %T", c.rest[lead])
			}
			out(c, firstLane(c.mask), Sprintf(f, c.rest[lead+1:]...))
			return nil, nil
		}, nil
	}
}

// formatKernel is "osl_format"(fmt, args...) returning the string, or
// "osl_b<W>_format_masked"(out, fmt, args..., mask) writing it into the
// active lanes of out.
func formatKernel(p funcspec.Parsed) (interp.Kernel, error) {
	if len(p.Spec.Args) != 0 {
		return nil, errSignature(p)
	}
	if !p.Spec.Batched() {
		return func(ctx *interp.Context, raw []any) (any, error) {
			if len(raw) == 0 {
				return nil, fmt.Errorf("missing format string")
			}
			f, ok := raw[0].(string)
			if !ok {
				return nil, fmt.Errorf("format is %T", raw[0])
			}
			return Sprintf(f, raw[1:]...), nil
		}, nil
	}
	if !p.Spec.Masked() {
		return nil, errSignature(p)
	}
	return func(ctx *interp.Context, raw []any) (any, error) {
		c, err := bind(ctx, p.Spec, raw, -1)
		if err != nil {
			return nil, err
		}
		if len(c.rest) < 2 {
			return nil, fmt.Errorf("missing format string")
		}
		out, ok := c.rest[0].(interp.Ref)
		if !ok {
			return nil, fmt.Errorf("result is %T", c.rest[0])
		}
		f, ok := c.rest[1].(string)
		if !ok {
			return nil, fmt.Errorf("format is %T", c.rest[1])
		}
		s := Sprintf(f, c.rest[2:]...)
		c.lanes(func(l int) { out.SetStr(0, l, s) })
		return nil, nil
	}, nil
}

func firstLane(mask uint32) int {
	for l := 0; l < 32; l++ {
		if mask&(1<<uint(l)) != 0 {
			return l
		}
	}
	return -1
}

// Sprintf formats args with a C printf format. Length modifiers are
// ignored and integer and float arguments are converted to suit their
// directive.
func Sprintf(format string, args ...any) string {
	var sb strings.Builder
	next := 0
	for i := 0; i < len(format); i++ {
		ch := format[i]
		if ch != '%' {
			sb.WriteByte(ch)
			continue
		}
		j := i + 1
		for j < len(format) && strings.IndexByte("-+ #0", format[j]) >= 0 {
			j++
		}
		for j < len(format) && (format[j] >= '0' && format[j] <= '9' || format[j] == '.') {
			j++
		}
		spec := format[i:j]
		for j < len(format) && strings.IndexByte("hlLqjzt", format[j]) >= 0 {
			j++
		}
		if j >= len(format) {
			sb.WriteString(format[i:])
			break
		}
		conv := format[j]
		i = j
		if conv == '%' {
			sb.WriteByte('%')
			continue
		}
		if next >= len(args) {
			sb.WriteString(spec)
			sb.WriteByte(conv)
			continue
		}
		a := args[next]
		next++
		switch conv {
		case 'd', 'i', 'u':
			fmt.Fprintf(&sb, spec+"d", asInt(a))
		case 'o', 'x', 'X', 'c':
			fmt.Fprintf(&sb, spec+string(conv), asInt(a))
		case 'g', 'G':
			if !strings.Contains(spec, ".") {
				spec += ".6"
			}
			fmt.Fprintf(&sb, spec+string(conv), asFloat(a))
		case 'f', 'F', 'e', 'E':
			fmt.Fprintf(&sb, spec+string(conv), asFloat(a))
		case 's':
			fmt.Fprintf(&sb, spec+"s", asString(a))
		default:
			fmt.Fprintf(&sb, spec+"v", a)
		}
	}
	return sb.String()
}

func asInt(a any) any {
	switch x := a.(type) {
	case float32:
		return int32(x)
	case bool:
		if x {
			return int32(1)
		}
		return int32(0)
	}
	return a
}

func asFloat(a any) any {
	if x, ok := a.(int32); ok {
		return float32(x)
	}
	return a
}

func asString(a any) any {
	switch x := a.(type) {
	case string:
		return x
	case float32:
		return fmt.Sprintf("%g", x)
	}
	return fmt.Sprint(a)
}
