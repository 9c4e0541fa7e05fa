package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const gradientGroup = `group: grad
layers:
  - shader: gradient
    layer: main
    symbols:
      - {name: u, type: float, kind: global}
      - {name: v, type: float, kind: global}
      - {name: zero, type: float, kind: const, value: [0]}
      - {name: Cout, type: color, kind: output}
    code:
      - {op: color, args: [Cout, u, v, zero]}
`

// resetFlags restores every package flag to its default
func resetFlags() {
	dWIR, dLLVM, runOnce = false, false, false
	outputs = nil
	configPath, width, rangeChecking, testAnyLanes, noColor = "", 8, false, true, false
	xres, yres, corners, workers, imageOutput = 64, 64, false, 0, "out.ppm"
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	resetFlags()
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs(normalizeFlags(args))
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestVersion(t *testing.T) {
	if version == "" {
		t.Error("version should not be empty")
	}
}

func TestFlagsExist(t *testing.T) {
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	for _, name := range []string{"dwir", "dllvm", "run", "output", "config", "width", "range-checking", "test-any-lanes", "no-color"} {
		if cmd.Flags().Lookup(name) == nil && cmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("expected flag --%s to exist", name)
		}
	}
	shade, _, err := cmd.Find([]string{"shade"})
	if err != nil || shade.Name() != "shade" {
		t.Fatalf("shade subcommand missing: %v", err)
	}
	for _, name := range []string{"xres", "yres", "corners", "workers", "image"} {
		if shade.Flags().Lookup(name) == nil {
			t.Errorf("expected shade flag --%s to exist", name)
		}
	}
}

func TestNormalizeFlags(t *testing.T) {
	got := normalizeFlags([]string{"-dwir", "-dllvm", "-o", "--run", "f.yaml"})
	want := []string{"--dwir", "--dllvm", "-o", "--run", "f.yaml"}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Errorf("normalizeFlags = %v, want %v", got, want)
	}
}

func TestOutputFilename(t *testing.T) {
	tests := []struct{ in, ext, want string }{
		{"a/grad.yaml", ".wir", "a/grad.wir"},
		{"grad.yml", ".ll", "grad.ll"},
		{"grad", ".ll", "grad.ll"},
	}
	for _, tt := range tests {
		if got := outputFilename(tt.in, tt.ext); got != tt.want {
			t.Errorf("outputFilename(%q, %q) = %q, want %q", tt.in, tt.ext, got, tt.want)
		}
	}
}

func TestNoArgsPrintsHelp(t *testing.T) {
	out, _, err := execute(t)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Usage:") {
		t.Errorf("expected usage, got %q", out)
	}
}

func TestCompileSummary(t *testing.T) {
	file := writeFile(t, "grad.yaml", gradientGroup)
	_, errOut, err := execute(t, file)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(errOut, "compiled") || !strings.Contains(errOut, "bytes of group data") {
		t.Errorf("expected a summary, got %q", errOut)
	}
}

func TestDWIRCreatesOutputFile(t *testing.T) {
	file := writeFile(t, "grad.yaml", gradientGroup)
	out, _, err := execute(t, "-dwir", file)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "func group_grad(") {
		t.Errorf("expected the entry function in stdout, got %q", out)
	}
	content, err := os.ReadFile(outputFilename(file, ".wir"))
	if err != nil {
		t.Fatalf("expected output file: %v", err)
	}
	if string(content) != out {
		t.Errorf("file and stdout differ")
	}
}

func TestDLLVM(t *testing.T) {
	file := writeFile(t, "grad.yaml", gradientGroup)
	out, _, err := execute(t, "-dllvm", "--width", "16", file)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"define void @group_grad(<16 x i1>", "define void @layer_main("} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in:\n%s", want, out)
		}
	}
	if _, err := os.Stat(outputFilename(file, ".ll")); err != nil {
		t.Errorf("expected .ll file: %v", err)
	}
}

func TestRunPrintsLanes(t *testing.T) {
	file := writeFile(t, "grad.yaml", gradientGroup)
	out, errOut, err := execute(t, "--run", "--width", "4", "--no-color", file)
	if err != nil {
		t.Fatalf("unexpected error: %v\n%s", err, errOut)
	}
	for _, want := range []string{"main.Cout[0]", "LANE 3", "0.125", "0.875"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in:\n%s", want, out)
		}
	}
}

func TestConfigFile(t *testing.T) {
	file := writeFile(t, "grad.yaml", gradientGroup)
	conf := writeFile(t, "osl.toml", "[codegen]\nwidth = 4\n[runtime]\nlanes-active = 2\n[output]\ncolor = false\n")
	out, errOut, err := execute(t, "--run", "--config", conf, file)
	if err != nil {
		t.Fatalf("unexpected error: %v\n%s", err, errOut)
	}
	if !strings.Contains(out, "LANE 1") || strings.Contains(out, "LANE 2") {
		t.Errorf("expected two lanes in:\n%s", out)
	}
}

func TestBadWidth(t *testing.T) {
	file := writeFile(t, "grad.yaml", gradientGroup)
	_, errOut, err := execute(t, "--width", "5", file)
	if err == nil {
		t.Fatal("expected an error for width 5")
	}
	if !strings.Contains(errOut, "oslbatch:") {
		t.Errorf("expected an oslbatch error, got %q", errOut)
	}
}

func TestFileNotFound(t *testing.T) {
	_, errOut, err := execute(t, "/nonexistent/grad.yaml")
	if err == nil {
		t.Fatal("expected an error for a missing file")
	}
	if !strings.Contains(errOut, "oslbatch:") {
		t.Errorf("expected an oslbatch error, got %q", errOut)
	}
}

func TestShadeWritesImage(t *testing.T) {
	file := writeFile(t, "grad.yaml", gradientGroup)
	img := filepath.Join(t.TempDir(), "grad.pfm")
	_, errOut, err := execute(t, "shade", "--xres", "4", "--yres", "3", "--workers", "2", "--image", img, "--no-color", file)
	if err != nil {
		t.Fatalf("unexpected error: %v\n%s", err, errOut)
	}
	data, err := os.ReadFile(img)
	if err != nil {
		t.Fatalf("expected image: %v", err)
	}
	header := "PF\n4 3\n-1.0\n"
	if !strings.HasPrefix(string(data), header) {
		t.Fatalf("bad header %q", data[:len(header)])
	}
	if len(data) != len(header)+4*3*3*4 {
		t.Errorf("image is %d bytes", len(data))
	}
	if !strings.Contains(errOut, "wrote "+img) {
		t.Errorf("expected a report, got %q", errOut)
	}
}
