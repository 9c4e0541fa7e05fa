package llvmgen

import (
	"bytes"
	"strings"
	"testing"

	"github.com/AlexMWells/OpenShadingLanguage/pkg/batched"
	"github.com/AlexMWells/OpenShadingLanguage/pkg/oso"
	"github.com/AlexMWells/OpenShadingLanguage/pkg/wir"
)

func lowerText(t *testing.T, mod *wir.Module) string {
	t.Helper()
	var buf bytes.Buffer
	if err := Write(&buf, mod); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return buf.String()
}

func expectAll(t *testing.T, text string, want []string) {
	t.Helper()
	for _, w := range want {
		if !strings.Contains(text, w) {
			t.Errorf("output lacks %q:\n%s", w, text)
		}
	}
}

func TestLowerMaskedStore(t *testing.T) {
	m := wir.NewModule("test", 8)
	x := m.NewSlot(wir.SlotInfo{Name: "main.x", Elem: wir.Float, Wide: true, Len: 2})
	b := wir.NewBuilder(m)
	b.BeginFunction("f", wir.MaskType)
	v := b.Add(b.Load(x, 0), b.WideFloat(1))
	b.StoreMasked(x, 1, v, b.Param(0))
	lane := b.FirstLane(b.Param(0))
	b.Call("osl_lane", wir.VoidType, lane, b.ConstString("hello"))
	b.Ret()

	expectAll(t, lowerText(t, m), []string{
		"@main.x = global [2 x <8 x float>] zeroinitializer",
		"define void @f(<8 x i1> %p0)",
		"fadd <8 x float>",
		"shufflevector",
		"select <8 x i1> %p0",
		"@llvm.cttz.i8",
		"declare void @osl_lane(i32",
		"c\"hello\\00\"",
		"ret void",
	})
}

func TestLowerIntDivision(t *testing.T) {
	m := wir.NewModule("test", 4)
	r := m.NewSlot(wir.SlotInfo{Name: "r", Elem: wir.Int})
	b := wir.NewBuilder(m)
	b.BeginFunction("f")
	b.Store(r, 0, b.Div(b.Load(r, 0), b.ConstInt(0)))
	b.Ret()

	text := lowerText(t, m)
	expectAll(t, text, []string{"icmp eq i32", "sdiv i32", "select i1"})
}

func TestLowerGather(t *testing.T) {
	m := wir.NewModule("test", 4)
	arr := m.NewSlot(wir.SlotInfo{Name: "arr", Elem: wir.Float, Wide: true, Len: 4})
	k := m.NewSlot(wir.SlotInfo{Name: "k", Elem: wir.Int, Wide: true})
	b := wir.NewBuilder(m)
	b.BeginFunction("f", wir.MaskType)
	v := b.LoadIndexed(arr, 0, b.Load(k, 0), 1)
	b.StoreIndexed(arr, 0, b.Load(k, 0), 1, v, b.Param(0))
	b.Ret()

	text := lowerText(t, m)
	if n := strings.Count(text, "insertelement <4 x float>"); n != 4 {
		t.Errorf("%d lane inserts, want 4:\n%s", n, text)
	}
	expectAll(t, text, []string{"extractelement <4 x i32>", "extractelement <4 x i1> %p0"})
}

func TestLowerCompiledGroup(t *testing.T) {
	const src = `
group: g
layers:
  - shader: s
    layer: main
    symbols:
      - {name: u, type: float, kind: global}
      - {name: half, type: float, kind: const, value: [0.5]}
      - {name: c, type: int, kind: temp}
      - {name: x, type: float, kind: local}
      - {name: one, type: float, kind: const, value: [1.0]}
      - {name: two, type: float, kind: const, value: [2.0]}
    code:
      - {op: lt, args: [c, u, half]}
      - {op: if, args: [c], jumps: [4, 5]}
      - {op: assign, args: [x, one]}
      - {op: nop, args: []}
      - {op: assign, args: [x, two]}
`
	g, err := oso.Parse([]byte(src))
	if err != nil {
		t.Fatal(err)
	}
	mod, err := batched.Compile(g, batched.DefaultOptions())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	expectAll(t, lowerText(t, mod), []string{
		"define void @group_g(<8 x i1> %p0)",
		"define void @layer_main(<8 x i1> %p0)",
		"call void @layer_main(",
		"fcmp ",
		"@main.x = global",
	})
}

func TestOrderPutsDefinitionsFirst(t *testing.T) {
	m := wir.NewModule("test", 8)
	b := wir.NewBuilder(m)
	f := b.BeginFunction("f")
	tail := b.NewBlock("tail")
	body := b.NewBlock("body")
	b.Br(body)
	b.Br(tail)
	b.Ret()
	got := order(f)
	if len(got) != 3 || got[0] != f.Entry || got[1] != body || got[2] != tail {
		t.Errorf("order = %v", got)
	}
}
