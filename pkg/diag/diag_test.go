package diag

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/AlexMWells/OpenShadingLanguage/pkg/batched"
	"github.com/AlexMWells/OpenShadingLanguage/pkg/shadeops"
)

func TestPlainMessages(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf, false)
	p.Error("oslbatch", errors.New("no input"))
	p.Warning("Config", "width ignored")
	p.Info("Done", "1 layer")
	want := "[oslbatch] no input\n[Config] width ignored\n[Done] 1 layer\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestCompileError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want []string
	}{
		{
			name: "located",
			err: &batched.Error{Shader: "s", Layer: "main", File: "a.osl", Line: 12, Op: "printf",
				Err: fmt.Errorf("%w: printf must currently have constant format", batched.ErrFormat)},
			want: []string{"[Format Error]", "a.osl:12", "layer main (shader s), op printf", "constant format"},
		},
		{
			name: "unsupported",
			err:  &batched.Error{Layer: "main", Err: fmt.Errorf("%w: texture", batched.ErrNotImplemented)},
			want: []string{"[Unsupported]", "<unknown>"},
		},
		{
			name: "plain",
			err:  errors.New("batched: no layers"),
			want: []string{"[Compile Error] batched: no layers"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			New(&buf, false).CompileError(tt.err)
			for _, w := range tt.want {
				if !strings.Contains(buf.String(), w) {
					t.Errorf("output %q lacks %q", buf.String(), w)
				}
			}
		})
	}
}

func TestForwardedShaderMessages(t *testing.T) {
	var buf bytes.Buffer
	rep := &shadeops.Reporter{Forward: New(&buf, false).Forward()}
	rep.Errorf("Index [%d] out of range", 7)
	rep.Warningf("careful")
	want := "[Shader Error] Index [7] out of range\n[Shader Warning] careful\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestTable(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, false).Table("outputs", []string{"symbol", "lane 0", "lane 1"}, [][]any{
		{"main.Cout[0]", 0.25, 0.75},
		{"main.hits", 1, 1},
	})
	for _, w := range []string{"outputs", "SYMBOL", "LANE 1", "main.Cout[0]", "0.75", "main.hits"} {
		if !strings.Contains(buf.String(), w) {
			t.Errorf("table lacks %q:\n%s", w, buf.String())
		}
	}
}
