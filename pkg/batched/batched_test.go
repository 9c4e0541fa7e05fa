package batched

//go:generate mockgen -write_package_comment=false -package=$GOPACKAGE -destination=mock_renderer_test.go github.com/AlexMWells/OpenShadingLanguage/pkg/batched Renderer

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"testing"

	"github.com/golang/mock/gomock"
	"gopkg.in/yaml.v3"

	"github.com/AlexMWells/OpenShadingLanguage/pkg/interp"
	"github.com/AlexMWells/OpenShadingLanguage/pkg/oso"
	"github.com/AlexMWells/OpenShadingLanguage/pkg/shadeops"
	"github.com/AlexMWells/OpenShadingLanguage/pkg/wir"
)

// Scenario is one case of testdata/batched.yaml.
type Scenario struct {
	Name          string       `yaml:"name"`
	Width         int          `yaml:"width"`
	Mask          *uint32      `yaml:"mask"`
	RangeChecking bool         `yaml:"range_checking"`
	TestAnyLanes  *bool        `yaml:"test_any_lanes"`
	Group         string       `yaml:"group"`
	Set           []SlotValues `yaml:"set"`
	Expect        []SlotValues `yaml:"expect"`
	Stdout        *string      `yaml:"stdout"`
	Errors        []string     `yaml:"errors"`
	ErrorCount    *int         `yaml:"error_count"`
	Calls         []CallCheck  `yaml:"calls"`
	ZeroMaskCalls *int         `yaml:"zero_mask_calls"`
	CompileError  string       `yaml:"compile_error"`
}

// SlotValues lists one element of a slot across lanes.
type SlotValues struct {
	Slot    string    `yaml:"slot"`
	Elem    int       `yaml:"elem"`
	Lanes   []float64 `yaml:"lanes"`
	Strings []string  `yaml:"strings"`
}

// CallCheck matches recorded runtime calls whose name contains Match.
type CallCheck struct {
	Match string   `yaml:"match"`
	Masks []uint32 `yaml:"masks"`
	Count *int     `yaml:"count"`
}

// ScenarioFile is the structure of testdata/batched.yaml.
type ScenarioFile struct {
	Tests []Scenario `yaml:"tests"`
}

func testOptions(lib *shadeops.Library) Options {
	opts := DefaultOptions()
	opts.Catalog = lib
	return opts
}

func compileGroup(t *testing.T, src string, opts Options) (*oso.Group, *wir.Module, error) {
	t.Helper()
	g, err := oso.Parse([]byte(src))
	if err != nil {
		t.Fatalf("oso.Parse: %v", err)
	}
	mod, err := Compile(g, opts)
	return g, mod, err
}

func newMachine(mod *wir.Module, lib *shadeops.Library, r shadeops.Renderer) (*interp.Machine, *shadeops.Reporter, *bytes.Buffer) {
	rep := &shadeops.Reporter{}
	out := &bytes.Buffer{}
	if r == nil {
		r = shadeops.NewStaticRenderer()
	}
	ctx := &interp.Context{
		Stdout:   out,
		Reporter: rep,
		Services: &shadeops.Services{Renderer: r},
	}
	m := interp.NewMachine(mod, lib, ctx)
	m.Record = true
	return m, rep, out
}

func findSlot(t *testing.T, mod *wir.Module, name string) wir.Slot {
	t.Helper()
	s, ok := mod.FindSlot(name)
	if !ok {
		t.Fatalf("no slot %s", name)
	}
	return s
}

func allLanes(width int) uint32 { return uint32(1)<<uint(width) - 1 }

func setSlot(t *testing.T, m *interp.Machine, sv SlotValues) {
	t.Helper()
	ref := m.Memory().Ref(findSlot(t, m.Module, sv.Slot), 0)
	for l, v := range sv.Lanes {
		switch ref.Cells.Info.Elem {
		case wir.Int:
			ref.SetInt(sv.Elem, l, int32(v))
		default:
			ref.SetFloat(sv.Elem, l, float32(v))
		}
	}
	for l, s := range sv.Strings {
		ref.SetStr(sv.Elem, l, s)
	}
}

func checkSlot(t *testing.T, m *interp.Machine, sv SlotValues) {
	t.Helper()
	ref := m.Memory().Ref(findSlot(t, m.Module, sv.Slot), 0)
	for l, want := range sv.Lanes {
		var got float64
		switch ref.Cells.Info.Elem {
		case wir.Int:
			got = float64(ref.Int(sv.Elem, l))
		default:
			got = float64(ref.Float(sv.Elem, l))
		}
		if math.Abs(got-want) > 1e-5 {
			t.Errorf("%s[%d] lane %d = %v, want %v", sv.Slot, sv.Elem, l, got, want)
		}
	}
	for l, want := range sv.Strings {
		if got := ref.Str(sv.Elem, l); got != want {
			t.Errorf("%s[%d] lane %d = %q, want %q", sv.Slot, sv.Elem, l, got, want)
		}
	}
}

func matchingCalls(m *interp.Machine, match string) []interp.CallRecord {
	var out []interp.CallRecord
	for _, c := range m.Calls {
		if strings.Contains(c.Func, match) {
			out = append(out, c)
		}
	}
	return out
}

func runScenario(t *testing.T, sc Scenario) {
	lib := shadeops.New()
	opts := testOptions(lib)
	if sc.Width != 0 {
		opts.Width = sc.Width
	}
	opts.RangeChecking = sc.RangeChecking
	if sc.TestAnyLanes != nil {
		opts.TestAnyLanes = *sc.TestAnyLanes
	}
	g, mod, err := compileGroup(t, sc.Group, opts)
	if sc.CompileError != "" {
		if err == nil {
			t.Fatalf("expected compile error containing %q", sc.CompileError)
		}
		if !strings.Contains(err.Error(), sc.CompileError) {
			t.Fatalf("compile error = %q, want it to contain %q", err, sc.CompileError)
		}
		return
	}
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	m, rep, out := newMachine(mod, lib, nil)
	for _, sv := range sc.Set {
		setSlot(t, m, sv)
	}
	mask := allLanes(opts.Width)
	if sc.Mask != nil {
		mask = *sc.Mask
	}
	if err := m.Run(EntryFunction(g), interp.Mask(mask, opts.Width)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, sv := range sc.Expect {
		checkSlot(t, m, sv)
	}
	if sc.Stdout != nil && out.String() != *sc.Stdout {
		t.Errorf("stdout = %q, want %q", out.String(), *sc.Stdout)
	}
	errs := rep.Errors()
	for _, want := range sc.Errors {
		found := false
		for _, e := range errs {
			found = found || strings.Contains(e, want)
		}
		if !found {
			t.Errorf("no error containing %q in %q", want, errs)
		}
	}
	if sc.ErrorCount != nil && len(errs) != *sc.ErrorCount {
		t.Errorf("%d errors reported, want %d: %q", len(errs), *sc.ErrorCount, errs)
	}
	for _, cc := range sc.Calls {
		calls := matchingCalls(m, cc.Match)
		if cc.Count != nil && len(calls) != *cc.Count {
			t.Errorf("%d calls matching %q, want %d", len(calls), cc.Match, *cc.Count)
		}
		if cc.Masks == nil {
			continue
		}
		if len(calls) != len(cc.Masks) {
			t.Errorf("%d calls matching %q, want %d", len(calls), cc.Match, len(cc.Masks))
			continue
		}
		for i, c := range calls {
			if c.Mask != cc.Masks[i] {
				t.Errorf("call %d of %s has mask %#x, want %#x", i, c.Func, c.Mask, cc.Masks[i])
			}
		}
	}
	if sc.ZeroMaskCalls != nil {
		if got := m.ZeroMaskCalls(); len(got) != *sc.ZeroMaskCalls {
			t.Errorf("zero mask calls = %+v, want %d", got, *sc.ZeroMaskCalls)
		}
	}
}

func TestScenariosYAML(t *testing.T) {
	data, err := os.ReadFile("../../testdata/batched.yaml")
	if err != nil {
		t.Fatalf("failed to read batched.yaml: %v", err)
	}
	var file ScenarioFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		t.Fatalf("failed to parse batched.yaml: %v", err)
	}
	if len(file.Tests) == 0 {
		t.Fatal("no scenarios")
	}
	for _, sc := range file.Tests {
		t.Run(sc.Name, func(t *testing.T) { runScenario(t, sc) })
	}
}

const broadcastGroup = `
group: g
layers:
  - shader: s
    layer: main
    symbols:
      - {name: x, type: float, kind: local}
      - {name: five, type: float, kind: const, value: [5.0]}
    code:
      - {op: assign, args: [x, five]}
`

func TestWidths(t *testing.T) {
	for _, width := range []int{4, 8, 16} {
		lib := shadeops.New()
		opts := testOptions(lib)
		opts.Width = width
		g, mod, err := compileGroup(t, broadcastGroup, opts)
		if err != nil {
			t.Fatalf("width %d: %v", width, err)
		}
		m, _, _ := newMachine(mod, lib, nil)
		if err := m.Run(EntryFunction(g), interp.Mask(allLanes(width), width)); err != nil {
			t.Fatalf("width %d: %v", width, err)
		}
		ref := m.Memory().Ref(findSlot(t, mod, "main.x"), 0)
		for l := 0; l < width; l++ {
			if got := ref.Float(0, l); got != 5 {
				t.Errorf("width %d lane %d = %v, want 5", width, l, got)
			}
		}
	}
}

// uniformVsBroadcast computes op(a, b) once into a uniform result and once
// into a varying one, both from uniform operands.
const uniformVsBroadcast = `
group: g
layers:
  - shader: s
    layer: main
    symbols:
      - {name: a, type: %[2]s, kind: local, uniform: true}
      - {name: b, type: %[2]s, kind: local, uniform: true}
      - {name: ca, type: %[2]s, kind: const, value: [%[4]v]}
      - {name: cb, type: %[2]s, kind: const, value: [%[5]v]}
      - {name: ru, type: %[3]s, kind: local, uniform: true}
      - {name: rv, type: %[3]s, kind: local}
    code:
      - {op: assign, args: [a, ca]}
      - {op: assign, args: [b, cb]}
      - {op: %[1]s, args: [ru, a, b]}
      - {op: %[1]s, args: [rv, a, b]}
`

func TestBroadcastMatchesUniform(t *testing.T) {
	floatOps := []string{"add", "sub", "mul", "div", "min", "max", "pow", "atan2", "fmod", "step", "eq", "lt"}
	intOps := []string{"add", "sub", "mul", "div", "mod", "min", "max", "eq", "lt", "and", "or"}
	operands := [][2]float64{{7, 3}, {-7, 2}, {2.5, 0}}
	compares := map[string]bool{"eq": true, "lt": true, "and": true, "or": true}

	type tc struct{ op, typ string }
	var cases []tc
	for _, op := range floatOps {
		cases = append(cases, tc{op, "float"})
	}
	for _, op := range intOps {
		cases = append(cases, tc{op, "int"})
	}
	for _, c := range cases {
		for _, ab := range operands {
			a, b := ab[0], ab[1]
			if c.typ == "int" {
				a, b = math.Trunc(a), math.Trunc(b)
			}
			res := c.typ
			if compares[c.op] {
				res = "int"
			}
			name := fmt.Sprintf("%s %s(%v,%v)", c.typ, c.op, a, b)
			t.Run(name, func(t *testing.T) {
				lib := shadeops.New()
				src := fmt.Sprintf(uniformVsBroadcast, c.op, c.typ, res, a, b)
				g, mod, err := compileGroup(t, src, testOptions(lib))
				if err != nil {
					t.Fatalf("Compile: %v", err)
				}
				m, _, _ := newMachine(mod, lib, nil)
				if err := m.Run(EntryFunction(g), interp.Mask(allLanes(mod.Width), mod.Width)); err != nil {
					t.Fatalf("Run: %v", err)
				}
				ru := m.Memory().Ref(findSlot(t, mod, "main.ru"), 0)
				rv := m.Memory().Ref(findSlot(t, mod, "main.rv"), 0)
				for l := 0; l < mod.Width; l++ {
					if res == "int" {
						if got, want := rv.Int(0, l), ru.Int(0, 0); got != want {
							t.Errorf("lane %d = %d, uniform %d", l, got, want)
						}
						continue
					}
					got, want := rv.Float(0, l), ru.Float(0, 0)
					if got != want && !(isNaN(got) && isNaN(want)) {
						t.Errorf("lane %d = %v, uniform %v", l, got, want)
					}
				}
			})
		}
	}
}

func isNaN(f float32) bool { return f != f }

func TestUniformAddBroadcastsToEveryLane(t *testing.T) {
	lib := shadeops.New()
	src := fmt.Sprintf(uniformVsBroadcast, "add", "float", "float", 2, 3)
	g, mod, err := compileGroup(t, src, testOptions(lib))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	m, _, _ := newMachine(mod, lib, nil)
	if err := m.Run(EntryFunction(g), interp.Mask(allLanes(mod.Width), mod.Width)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	checkSlot(t, m, SlotValues{Slot: "main.ru", Lanes: []float64{5}})
	checkSlot(t, m, SlotValues{Slot: "main.rv", Lanes: []float64{5, 5, 5, 5, 5, 5, 5, 5}})
}

func TestUnsupportedWidth(t *testing.T) {
	opts := DefaultOptions()
	opts.Width = 5
	_, _, err := compileGroup(t, broadcastGroup, opts)
	if !errors.Is(err, ErrContract) {
		t.Fatalf("err = %v, want ErrContract", err)
	}
}

func TestCompileErrorKinds(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want error
		line int
	}{
		{
			name: "non-constant format",
			src: `
group: g
layers:
  - shader: s
    layer: main
    symbols:
      - {name: f, type: string, kind: local}
    code:
      - {op: printf, args: [f], file: a.osl, line: 3}
`,
			want: ErrFormat,
			line: 3,
		},
		{
			name: "uniform result of a varying operation",
			src: `
group: g
layers:
  - shader: s
    layer: main
    symbols:
      - {name: u, type: float, kind: global}
      - {name: x, type: float, kind: local, uniform: true}
    code:
      - {op: neg, args: [x, u], file: a.osl, line: 9}
`,
			want: ErrContract,
			line: 9,
		},
		{
			name: "unknown noise type",
			src: `
group: g
layers:
  - shader: s
    layer: main
    symbols:
      - {name: r, type: float, kind: local}
      - {name: p, type: float, kind: local}
      - {name: kind, type: string, kind: const, value: [bogus]}
    code:
      - {op: noise, args: [r, kind, p], line: 4}
`,
			want: ErrContract,
			line: 4,
		},
		{
			name: "texture",
			src: `
group: g
layers:
  - shader: s
    layer: main
    symbols:
      - {name: r, type: color, kind: local}
      - {name: name, type: string, kind: const, value: [tex.tx]}
    code:
      - {op: texture, args: [r, name], line: 1}
`,
			want: ErrNotImplemented,
			line: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := compileGroup(t, tt.src, testOptions(shadeops.New()))
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			var located *Error
			if !errors.As(err, &located) {
				t.Fatalf("err = %T, want *Error", err)
			}
			if located.Line != tt.line || located.Layer != "main" || located.Shader != "s" {
				t.Errorf("located at %+v", located)
			}
		})
	}
}

const raytypeGroup = `
group: g
layers:
  - shader: s
    layer: main
    symbols:
      - {name: r, type: int, kind: local}
      - {name: name, type: string, kind: const, value: [shadow]}
    code:
      - {op: raytype, args: [r, name]}
`

func TestRaytypeKnownToRenderer(t *testing.T) {
	tests := []struct {
		bit      int32
		raytype  int32
		want     int32
		lookedUp bool
	}{
		{bit: 2, raytype: 2, want: 1},
		{bit: 2, raytype: 4, want: 0},
		// unknown at compile time: the runtime looks the name up
		{bit: 0, raytype: 2, want: 1, lookedUp: true},
	}
	for _, tt := range tests {
		ctrl := gomock.NewController(t)
		r := NewMockRenderer(ctrl)
		r.EXPECT().RaytypeBit("shadow").Return(tt.bit)

		lib := shadeops.New()
		opts := testOptions(lib)
		opts.Renderer = r
		g, mod, err := compileGroup(t, raytypeGroup, opts)
		if err != nil {
			t.Fatalf("Compile: %v", err)
		}
		m, _, _ := newMachine(mod, lib, nil)
		m.Memory().Ref(findSlot(t, mod, "sg.raytype"), 0).SetInt(0, 0, tt.raytype)
		if err := m.Run(EntryFunction(g), interp.Mask(0xff, 8)); err != nil {
			t.Fatalf("Run: %v", err)
		}
		ref := m.Memory().Ref(findSlot(t, mod, "main.r"), 0)
		for l := 0; l < 8; l++ {
			if got := ref.Int(0, l); got != tt.want {
				t.Errorf("bit %d raytype %d: lane %d = %d, want %d", tt.bit, tt.raytype, l, got, tt.want)
			}
		}
		if got := len(matchingCalls(m, "raytype_name")) > 0; got != tt.lookedUp {
			t.Errorf("bit %d: runtime lookup = %v, want %v", tt.bit, got, tt.lookedUp)
		}
	}
}

func TestRendererTransformIsNotImplemented(t *testing.T) {
	const src = `
group: g
layers:
  - shader: s
    layer: main
    symbols:
      - {name: p, type: point, kind: local}
      - {name: q, type: point, kind: local}
      - {name: from, type: string, kind: const, value: [object]}
      - {name: to, type: string, kind: const, value: [world]}
    code:
      - {op: transform, args: [q, from, to, p]}
`
	ctrl := gomock.NewController(t)
	r := NewMockRenderer(ctrl)
	r.EXPECT().CommonSpaceSynonym().Return("").AnyTimes()
	r.EXPECT().TransformPoints("object", "world").Return(true)
	opts := testOptions(shadeops.New())
	opts.Renderer = r
	_, _, err := compileGroup(t, src, opts)
	if !errors.Is(err, ErrNotImplemented) {
		t.Fatalf("err = %v, want ErrNotImplemented", err)
	}
}

func TestCommonSpaceSynonymSkipsTransform(t *testing.T) {
	const src = `
group: g
layers:
  - shader: s
    layer: main
    symbols:
      - {name: p, type: point, kind: local}
      - {name: space, type: string, kind: const, value: [world]}
      - {name: a, type: float, kind: const, value: [1]}
      - {name: b, type: float, kind: const, value: [2]}
      - {name: c, type: float, kind: const, value: [3]}
    code:
      - {op: point, args: [p, space, a, b, c]}
`
	ctrl := gomock.NewController(t)
	r := NewMockRenderer(ctrl)
	r.EXPECT().CommonSpaceSynonym().Return("world").AnyTimes()
	lib := shadeops.New()
	opts := testOptions(lib)
	opts.Renderer = r
	g, mod, err := compileGroup(t, src, opts)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	m, _, _ := newMachine(mod, lib, nil)
	if err := m.Run(EntryFunction(g), interp.Mask(0xff, 8)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls := matchingCalls(m, "matrix"); len(calls) != 0 {
		t.Errorf("unexpected space lookups %+v", calls)
	}
	for c, want := range []float64{1, 2, 3} {
		checkSlot(t, m, SlotValues{Slot: "main.p", Elem: c, Lanes: []float64{want, want, want, want, want, want, want, want}})
	}
}

func TestGetAttribute(t *testing.T) {
	const src = `
group: g
layers:
  - shader: s
    layer: main
    symbols:
      - {name: r, type: int, kind: local}
      - {name: name, type: string, kind: const, value: [size]}
      - {name: missing, type: string, kind: const, value: [weight]}
      - {name: dest, type: float, kind: local}
      - {name: r2, type: int, kind: local}
    code:
      - {op: getattribute, args: [r, name, dest]}
      - {op: getattribute, args: [r2, missing, dest]}
`
	lib := shadeops.New()
	g, mod, err := compileGroup(t, src, testOptions(lib))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	rend := shadeops.NewStaticRenderer()
	rend.Attributes["size"] = shadeops.Attribute{Type: oso.TypeFloat, Floats: []float32{3.5}}
	m, _, _ := newMachine(mod, lib, rend)
	if err := m.Run(EntryFunction(g), interp.Mask(0x0f, 8)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	checkSlot(t, m, SlotValues{Slot: "main.r", Lanes: []float64{1, 1, 1, 1, 0, 0, 0, 0}})
	checkSlot(t, m, SlotValues{Slot: "main.r2", Lanes: []float64{0, 0, 0, 0, 0, 0, 0, 0}})
	checkSlot(t, m, SlotValues{Slot: "main.dest", Lanes: []float64{3.5, 3.5, 3.5, 3.5, 0, 0, 0, 0}})
}

const divergentGroup = `
group: g
layers:
  - shader: s
    layer: main
    symbols:
      - {name: u, type: float, kind: global}
      - {name: thr, type: float, kind: const, value: [3.5]}
      - {name: c, type: int, kind: temp}
      - {name: msg, type: string, kind: const, value: ["hit\n"]}
      - {name: bw, type: float, kind: local}
      - {name: P, type: point, kind: local}
      - {name: R, type: float, kind: local}
      - {name: gabor, type: string, kind: const, value: [gabor]}
      - {name: bandwidth, type: string, kind: const, value: [bandwidth]}
      - {name: k, type: int, kind: local}
      - {name: arr, type: "float[4]", kind: local}
      - {name: r, type: float, kind: local}
    code:
      - {op: assign, args: [bw, u]}
      - {op: assign, args: [k, u]}
      - {op: gt, args: [c, u, thr]}
      - {op: if, args: [c], jumps: [7, 7]}
      - {op: printf, args: [msg]}
      - {op: noise, args: [R, gabor, P, bandwidth, bw]}
      - {op: aref, args: [r, arr, k]}
`

// With lane tests on, no masked routine is ever entered without a lane,
// whichever lanes start active.
func TestNoEmptyMaskedCalls(t *testing.T) {
	lib := shadeops.New()
	opts := testOptions(lib)
	opts.RangeChecking = true
	g, mod, err := compileGroup(t, divergentGroup, opts)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	for mask := uint32(1); mask < 256; mask++ {
		m, _, _ := newMachine(mod, lib, nil)
		setSlot(t, m, SlotValues{Slot: "sg.u", Lanes: []float64{0, 1, 2, 3, 4, 5, 6, 7}})
		if err := m.Run(EntryFunction(g), interp.Mask(mask, 8)); err != nil {
			t.Fatalf("mask %#x: %v", mask, err)
		}
		if zero := m.ZeroMaskCalls(); len(zero) != 0 {
			t.Fatalf("mask %#x: calls with no lanes %+v", mask, zero)
		}
		hits := len(matchingCalls(m, "printf"))
		if want := mask&0xf0 != 0; (hits == 1) != want {
			t.Errorf("mask %#x: %d printf calls", mask, hits)
		}
	}

	opts.TestAnyLanes = false
	g, mod, err = compileGroup(t, divergentGroup, opts)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	m, _, _ := newMachine(mod, lib, nil)
	setSlot(t, m, SlotValues{Slot: "sg.u", Lanes: []float64{0, 1, 2, 3, 4, 5, 6, 7}})
	if err := m.Run(EntryFunction(g), interp.Mask(0x07, 8)); err != nil {
		t.Fatal(err)
	}
	if len(m.ZeroMaskCalls()) == 0 {
		t.Error("expected empty masked calls without lane tests")
	}
}

func TestRewriteFormat(t *testing.T) {
	tests := []struct {
		format string
		types  []string
		want   string
		used   int
	}{
		{"%d", []string{"int"}, "%d", 1},
		{"%f", []string{"int"}, "%d", 1},
		{"%x", []string{"int"}, "%x", 1},
		{"%d", []string{"float"}, "%f", 1},
		{"%g", []string{"float"}, "%g", 1},
		{"%d", []string{"string"}, "%s", 1},
		{"%s", []string{"int"}, "%d", 1},
		{"P = %g", []string{"point"}, "P = %g %g %g", 1},
		{"%5.2f!", []string{"float[2]"}, "%5.2f %5.2f!", 1},
		{"100%% %d", []string{"int"}, "100%% %d", 1},
		{"%d and %s", []string{"int", "string", "int"}, "%d and %s", 2},
		{"none", []string{"int"}, "none", 0},
	}
	for _, tt := range tests {
		var types []oso.TypeSpec
		for _, s := range tt.types {
			ts, err := oso.ParseType(s)
			if err != nil {
				t.Fatal(err)
			}
			types = append(types, ts)
		}
		got, used, err := rewriteFormat(tt.format, types)
		if err != nil {
			t.Errorf("rewriteFormat(%q): %v", tt.format, err)
			continue
		}
		if got != tt.want || used != tt.used {
			t.Errorf("rewriteFormat(%q) = %q, %d, want %q, %d", tt.format, got, used, tt.want, tt.used)
		}
	}
}

func TestRewriteFormatScalarsIdempotent(t *testing.T) {
	formats := []string{"%d", "%i %s", "%f", "%g %e", "%5.1f%%", "x=%x"}
	for _, f := range formats {
		for _, base := range []string{"int", "float", "string"} {
			types := []oso.TypeSpec{}
			for i := 0; i < 2; i++ {
				ts, _ := oso.ParseType(base)
				types = append(types, ts)
			}
			once, used, err := rewriteFormat(f, types)
			if err != nil {
				t.Fatalf("rewriteFormat(%q, %s): %v", f, base, err)
			}
			twice, _, err := rewriteFormat(once, types[:used])
			if err != nil {
				t.Fatalf("rewriteFormat(%q, %s): %v", once, base, err)
			}
			if once != twice {
				t.Errorf("%q with %s: %q then %q", f, base, once, twice)
			}
		}
	}
}

func TestRewriteFormatMismatch(t *testing.T) {
	_, _, err := rewriteFormat("%d %d", []oso.TypeSpec{oso.TypeInt})
	if !errors.Is(err, ErrFormat) {
		t.Fatalf("err = %v, want ErrFormat", err)
	}
	_, _, err = rewriteFormat("%s", []oso.TypeSpec{{Base: oso.Closure}})
	if !errors.Is(err, ErrNotImplemented) {
		t.Fatalf("err = %v, want ErrNotImplemented", err)
	}
}
