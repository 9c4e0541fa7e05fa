package shadeops

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/AlexMWells/OpenShadingLanguage/pkg/funcspec"
	"github.com/AlexMWells/OpenShadingLanguage/pkg/interp"
)

var regexCache sync.Map // pattern -> *regexp.Regexp

func compileRegex(pattern string, full bool) (*regexp.Regexp, error) {
	key := pattern
	if full {
		key = "^(?:" + pattern + ")$"
	}
	if re, ok := regexCache.Load(key); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(key)
	if err != nil {
		return nil, err
	}
	regexCache.Store(key, re)
	return re, nil
}

func init() {
	register("regex_search", func(p funcspec.Parsed) (interp.Kernel, error) { return regexKernel(p, false) })
	register("regex_match", func(p funcspec.Parsed) (interp.Kernel, error) { return regexKernel(p, true) })
	register("split", splitKernel)
	register("raytype_name", func(p funcspec.Parsed) (interp.Kernel, error) {
		if !shape(p, "iis") {
			return nil, errSignature(p)
		}
		s := p.Spec.SetResult()
		byValue := s.ResultByValue()
		return func(ctx *interp.Context, raw []any) (any, error) {
			c, err := bind(ctx, s, raw, 0)
			if err != nil {
				return nil, err
			}
			r := services(ctx).renderer()
			var last Dual
			c.lanes(func(l int) {
				last = Const(0)
				if bit := r.RaytypeBit(c.ops[2].str(0, l)); c.ops[1].int(0, l)&bit != 0 {
					last = Const(1)
				}
				if !byValue {
					c.ops[0].setDual(0, l, last)
				}
			})
			return c.result(last), nil
		}, nil
	})
}

// regexKernel is (result, subject, pattern), or (result, subject,
// results, pattern) followed by the length of results. results receives
// the start and end offsets of each submatch, -1 past the last one.
func regexKernel(p funcspec.Parsed, full bool) (interp.Kernel, error) {
	var capture bool
	switch {
	case shape(p, "iss"):
	case shape(p, "isis"):
		capture = true
		p.Spec.SetOutput(2)
	default:
		return nil, errSignature(p)
	}
	s := p.Spec.SetResult()
	byValue := s.ResultByValue()
	extra := 0
	pat := 2
	if capture {
		extra = 1
		pat = 3
	}
	return func(ctx *interp.Context, raw []any) (any, error) {
		c, err := bind(ctx, s, raw, extra)
		if err != nil {
			return nil, err
		}
		n := 0
		if capture {
			k, ok := c.rest[0].(int32)
			if !ok {
				return nil, fmt.Errorf("result count is %T", c.rest[0])
			}
			n = int(k)
		}
		var last Dual
		c.lanes(func(l int) {
			subject := c.ops[1].str(0, l)
			re, err := compileRegex(c.ops[pat].str(0, l), full)
			if err != nil {
				report(ctx).Errorf("Invalid regex %q: %v", c.ops[pat].str(0, l), err)
				last = Const(0)
			} else {
				loc := re.FindStringSubmatchIndex(subject)
				last = Const(0)
				if loc != nil {
					last = Const(1)
				}
				for r := 0; r < n; r++ {
					v := int32(-1)
					if r < len(loc) {
						v = int32(loc[r])
					}
					c.ops[2].setInt(r, l, v)
				}
			}
			if !byValue {
				c.ops[0].setDual(0, l, last)
			}
		})
		return c.result(last), nil
	}, nil
}

// splitKernel is (result, str, results, sep, maxsplit) followed by the
// length of results. An empty separator splits on runs of white space.
func splitKernel(p funcspec.Parsed) (interp.Kernel, error) {
	if !shape(p, "isssi") {
		return nil, errSignature(p)
	}
	s := p.Spec.SetResult().SetOutput(2)
	byValue := s.ResultByValue()
	return func(ctx *interp.Context, raw []any) (any, error) {
		c, err := bind(ctx, s, raw, 1)
		if err != nil {
			return nil, err
		}
		k, ok := c.rest[0].(int32)
		if !ok {
			return nil, fmt.Errorf("result count is %T", c.rest[0])
		}
		var last Dual
		c.lanes(func(l int) {
			pieces := Split(c.ops[1].str(0, l), c.ops[3].str(0, l), int(c.ops[4].int(0, l)), int(k))
			for i, piece := range pieces {
				c.ops[2].setStr(i, l, piece)
			}
			last = Const(float32(len(pieces)))
			if !byValue {
				c.ops[0].setDual(0, l, last)
			}
		})
		return c.result(last), nil
	}, nil
}

// Split splits str at sep, doing at most maxsplit splits and keeping at
// most maxsplit pieces (maxsplit is clamped to [0, limit]).
func Split(str, sep string, maxsplit, limit int) []string {
	if maxsplit > limit {
		maxsplit = limit
	}
	if maxsplit <= 0 {
		return nil
	}
	var pieces []string
	if sep == "" {
		pieces = strings.Fields(str)
	} else {
		pieces = strings.SplitN(str, sep, maxsplit+1)
	}
	if len(pieces) > maxsplit {
		pieces = pieces[:maxsplit]
	}
	return pieces
}
