package oso

import (
	"errors"
	"strings"
	"testing"
)

const twoLayers = `
group: demo
layers:
  - shader: upstream
    layer: up
    symbols:
      - {name: Cout, type: color, kind: oparam}
      - {name: half, type: float, kind: const, value: [0.5]}
    code:
      - {op: assign, args: [Cout, half], line: 2}
  - shader: downstream
    layer: down
    symbols:
      - {name: Cin, type: color, kind: param}
      - {name: Out, type: color, kind: oparam, uniform: false}
      - {name: c, type: int, kind: temp}
      - {name: one, type: int, kind: const, value: [1]}
    code:
      - {op: useparam, args: [Cin]}
      - {op: if, args: [c], jumps: [3, 3]}
      - {op: assign, args: [Out, Cin]}
      - {op: add, args: [c, c, one]}
connections:
  - src: {layer: up, symbol: Cout}
    dst: {layer: down, symbol: Cin}
`

func TestLoadGroup(t *testing.T) {
	g, err := Load(strings.NewReader(twoLayers))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if g.Name != "demo" || len(g.Layers) != 2 {
		t.Fatalf("group = %q with %d layers", g.Name, len(g.Layers))
	}
	down := g.Layers[1]
	if len(down.Ops) != 4 {
		t.Fatalf("ops = %d, want 4", len(down.Ops))
	}
	if down.Ops[1].Kind != OpIf {
		t.Errorf("op 1 kind = %v, want OpIf", down.Ops[1].Kind)
	}
	if down.Ops[1].Jump(0) != 3 || down.Ops[1].Jump(2) != -1 {
		t.Errorf("jumps = %v", down.Ops[1].Jumps)
	}
	if down.MainBegin != 0 || down.MainEnd != 4 {
		t.Errorf("main = [%d,%d)", down.MainBegin, down.MainEnd)
	}
	_, cin := down.FindSymbol("Cin")
	if !cin.Connected {
		t.Error("Cin should be marked connected")
	}
	if len(down.Connections) != 1 || down.Connections[0].SrcLayer != 0 {
		t.Errorf("connections = %+v", down.Connections)
	}
	if !g.DownstreamUses(0, 0) {
		t.Error("Cout should be used downstream")
	}

	_, half := g.Layers[0].FindSymbol("half")
	if !half.Uniform || !half.IsConstant() || half.ConstFloat(0) != 0.5 {
		t.Errorf("half = %v %v", half, half.Floats)
	}
	_, one := down.FindSymbol("one")
	if one.ConstInt(0) != 1 {
		t.Errorf("one = %d", one.ConstInt(0))
	}
	_, out := down.FindSymbol("Out")
	if out.Uniform {
		t.Error("Out should be varying")
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"unknown op", `
group: g
layers:
  - layer: l
    code:
      - {op: frobnicate}
`, "unknown op"},
		{"unknown symbol", `
group: g
layers:
  - layer: l
    code:
      - {op: assign, args: [a, b]}
`, "unknown symbol"},
		{"bad type", `
group: g
layers:
  - layer: l
    symbols:
      - {name: a, type: quaternion}
`, "unknown type"},
		{"varying const", `
group: g
layers:
  - layer: l
    symbols:
      - {name: a, type: int, kind: const, uniform: false, value: [1]}
`, "always uniform"},
		{"jump out of range", `
group: g
layers:
  - layer: l
    symbols:
      - {name: c, type: int}
    code:
      - {op: if, args: [c], jumps: [9, 9]}
`, "out of range"},
		{"no layers", `group: g`, "no layers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestUnknownKeysRejected(t *testing.T) {
	src := `
group: g
layers:
  - layer: l
    symbols:
      - {name: c, type: int}
    code:
      - {op: if, args: [c], jmps: [1, 1]}
`
	if _, err := Parse([]byte(src)); err == nil || !strings.Contains(err.Error(), "jmps") {
		t.Errorf("Parse: err = %v, want a complaint about jmps", err)
	}
	if _, err := Load(strings.NewReader(src)); err == nil || !strings.Contains(err.Error(), "jmps") {
		t.Errorf("Load: err = %v, want a complaint about jmps", err)
	}
}

func TestLoadUnknownOpIsSentinel(t *testing.T) {
	_, err := Parse([]byte("group: g\nlayers:\n  - layer: l\n    code:\n      - {op: nosuchop}\n"))
	if !errors.Is(err, ErrUnknownOp) {
		t.Errorf("expected ErrUnknownOp, got %v", err)
	}
}

func TestMatrixDiagonalPayload(t *testing.T) {
	g, err := Parse([]byte(`
group: g
layers:
  - layer: l
    symbols:
      - {name: m, type: matrix, kind: const, value: [2]}
`))
	if err != nil {
		t.Fatal(err)
	}
	m := g.Layers[0].Symbols[0]
	for i := 0; i < 16; i++ {
		want := float32(0)
		if i%5 == 0 {
			want = 2
		}
		if m.ConstFloat(i) != want {
			t.Errorf("m[%d] = %v, want %v", i, m.ConstFloat(i), want)
		}
	}
}
