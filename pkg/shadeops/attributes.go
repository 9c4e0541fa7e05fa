package shadeops

import (
	"fmt"

	"github.com/AlexMWells/OpenShadingLanguage/pkg/funcspec"
	"github.com/AlexMWells/OpenShadingLanguage/pkg/interp"
	"github.com/AlexMWells/OpenShadingLanguage/pkg/oso"
)

func init() {
	register("get_attribute", attributeKernel)
}

// attributeKernel is (result, object, name, dest) followed by the array
// index (-1 for the whole value) and the number of elements of dest.
// result is 1 in lanes where the renderer knows the attribute and its
// type fits dest.
func attributeKernel(p funcspec.Parsed) (interp.Kernel, error) {
	args := p.Spec.Args
	if len(args) != 4 || !args[0].Type.IsInt() || !args[1].Type.IsString() || !args[2].Type.IsString() {
		return nil, errSignature(p)
	}
	s := p.Spec.SetResult().SetOutput(3)
	byValue := s.ResultByValue()
	return func(ctx *interp.Context, raw []any) (any, error) {
		c, err := bind(ctx, s, raw, 2)
		if err != nil {
			return nil, err
		}
		index, ok1 := c.rest[0].(int32)
		count, ok2 := c.rest[1].(int32)
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("attribute index and count are %T, %T", c.rest[0], c.rest[1])
		}
		r := services(ctx).renderer()
		dest := c.ops[3]
		var last Dual
		c.lanes(func(l int) {
			last = Const(0)
			a, ok := r.Attribute(c.ops[1].str(0, l), c.ops[2].str(0, l), l)
			if ok && copyAttribute(dest, l, a, int(index), int(count)) {
				last = Const(1)
			}
			if !byValue {
				c.ops[0].setDual(0, l, last)
			}
		})
		return c.result(last), nil
	}, nil
}

// copyAttribute stores a (element index of it, when index >= 0) into the
// count elements of dest.
func copyAttribute(dest operand, lane int, a Attribute, index, count int) bool {
	want := dest.arg.Type
	if a.Type.Aggregate() != want.Aggregate() {
		return false
	}
	switch {
	case want.Base == a.Type.Base:
	case want.IsFloatBased() && a.Type.Base == oso.Int:
	default:
		return false
	}
	agg := want.Aggregate()
	first, n := 0, a.Type.NumElements()
	if index >= 0 {
		if !a.Type.IsArray() || index >= n {
			return false
		}
		first, n = index, 1
	}
	if n != count {
		return false
	}
	// dest describes one element; derivatives follow all count elements.
	full := dest
	full.arg.Type = want.Elem()
	full.arg.Type.ArrayLen = count
	if count == 1 {
		full.arg.Type.ArrayLen = 0
	}
	for e := 0; e < n; e++ {
		for k := 0; k < agg; k++ {
			src := (first+e)*agg + k
			dst := e*agg + k
			switch a.Type.Base {
			case oso.String:
				full.setStr(dst, lane, a.Strings[src])
			case oso.Int:
				if want.Base == oso.Int {
					full.setInt(dst, lane, a.Ints[src])
				} else {
					full.setDual(dst, lane, Const(float32(a.Ints[src])))
				}
			default:
				full.setDual(dst, lane, Const(a.Floats[src]))
			}
		}
	}
	return true
}
