package shadeops

import (
	"fmt"

	"github.com/AlexMWells/OpenShadingLanguage/pkg/funcspec"
	"github.com/AlexMWells/OpenShadingLanguage/pkg/interp"
)

// rangeContext is the diagnostic context passed after the length:
// symbol, source file, line, group, layer, layer name, shader name.
type rangeContext struct {
	symbol, file      string
	line              int32
	group             string
	layer             int32
	layerName, shader string
}

func parseRangeContext(args []any) (rangeContext, error) {
	var rc rangeContext
	if len(args) != 7 {
		return rc, fmt.Errorf("range check takes 7 context arguments, got %d", len(args))
	}
	var ok [7]bool
	rc.symbol, ok[0] = args[0].(string)
	rc.file, ok[1] = args[1].(string)
	rc.line, ok[2] = args[2].(int32)
	rc.group, ok[3] = args[3].(string)
	rc.layer, ok[4] = args[4].(int32)
	rc.layerName, ok[5] = args[5].(string)
	rc.shader, ok[6] = args[6].(string)
	for i, o := range ok {
		if !o {
			return rc, fmt.Errorf("range check context argument %d is %T", i, args[i])
		}
	}
	return rc, nil
}

func (rc rangeContext) report(ctx *interp.Context, index, length int32) {
	report(ctx).Errorf("Index [%d] out of range %s[0..%d]: %s:%d (group %s, layer %d %s, shader %s)",
		index, rc.symbol, length-1, rc.file, rc.line, rc.group, rc.layer, rc.layerName, rc.shader)
}

func clampIndex(index, length int32) int32 {
	if index < 0 {
		return 0
	}
	if index >= length {
		return length - 1
	}
	return index
}

func init() {
	register("range_check", func(p funcspec.Parsed) (interp.Kernel, error) {
		if len(p.Spec.Args) != 0 {
			return nil, errSignature(p)
		}
		if !p.Spec.Batched() {
			return uniformRangeCheck, nil
		}
		if !p.Spec.Masked() {
			return nil, errSignature(p)
		}
		return func(ctx *interp.Context, raw []any) (any, error) {
			c, err := bind(ctx, p.Spec, raw, -1)
			if err != nil {
				return nil, err
			}
			if len(c.rest) != 9 {
				return nil, fmt.Errorf("%d arguments, expected 10", len(raw))
			}
			idx, ok := c.rest[0].(interp.Ref)
			if !ok {
				return nil, fmt.Errorf("index is %T", c.rest[0])
			}
			length, ok := c.rest[1].(int32)
			if !ok {
				return nil, fmt.Errorf("length is %T", c.rest[1])
			}
			rc, err := parseRangeContext(c.rest[2:])
			if err != nil {
				return nil, err
			}
			c.lanes(func(l int) {
				i := idx.Int(0, l)
				if i < 0 || i >= length {
					rc.report(ctx, i, length)
					idx.SetInt(0, l, clampIndex(i, length))
				}
			})
			return nil, nil
		}, nil
	})
}

// uniformRangeCheck is osl_range_check(index, length, context...) and
// returns the clamped index.
func uniformRangeCheck(ctx *interp.Context, raw []any) (any, error) {
	if len(raw) != 9 {
		return nil, fmt.Errorf("%d arguments, expected 9", len(raw))
	}
	i, ok1 := raw[0].(int32)
	length, ok2 := raw[1].(int32)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("index and length are %T, %T", raw[0], raw[1])
	}
	rc, err := parseRangeContext(raw[2:])
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= length {
		rc.report(ctx, i, length)
		return clampIndex(i, length), nil
	}
	return i, nil
}
