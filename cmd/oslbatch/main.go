package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/AlexMWells/OpenShadingLanguage/pkg/batched"
	"github.com/AlexMWells/OpenShadingLanguage/pkg/config"
	"github.com/AlexMWells/OpenShadingLanguage/pkg/diag"
	"github.com/AlexMWells/OpenShadingLanguage/pkg/interp"
	"github.com/AlexMWells/OpenShadingLanguage/pkg/linearize"
	"github.com/AlexMWells/OpenShadingLanguage/pkg/llvmgen"
	"github.com/AlexMWells/OpenShadingLanguage/pkg/oso"
	"github.com/AlexMWells/OpenShadingLanguage/pkg/shade"
	"github.com/AlexMWells/OpenShadingLanguage/pkg/shadeops"
	"github.com/AlexMWells/OpenShadingLanguage/pkg/wir"
)

var version = "0.1.0"

// Dump and run flags
var (
	dWIR    bool
	dLLVM   bool
	runOnce bool
	outputs []string
)

// Code generation flags, shared with the shade command
var (
	configPath    string
	width         int
	rangeChecking bool
	testAnyLanes  bool
	noColor       bool
)

// Shade flags
var (
	xres, yres  int
	corners     bool
	workers     int
	imageOutput string
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	rootCmd := newRootCmd(os.Stdout, os.Stderr)
	// Accept the single-dash dump flags (-dwir) as well
	rootCmd.SetArgs(normalizeFlags(os.Args[1:]))
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}

// dumpFlagNames lists the flags that may be spelled with a single dash.
var dumpFlagNames = []string{"dwir", "dllvm"}

// normalizeFlags converts single-dash flags like -dwir to --dwir
func normalizeFlags(args []string) []string {
	result := make([]string, len(args))
	for i, arg := range args {
		result[i] = arg
		for _, name := range dumpFlagNames {
			if arg == "-"+name {
				result[i] = "--" + name
				break
			}
		}
	}
	return result
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "oslbatch [file.yaml]",
		Short: "oslbatch compiles shader groups to batched SIMD code",
		Long: `oslbatch lowers a shader group, given as YAML, to wide IR that
shades a batch of points at once under an execution mask. The result can
be dumped, lowered to LLVM IR or run by the reference executor.`,
		Version:       version,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				cmd.Help()
				return nil
			}
			cfg, err := loadConfig(cmd.Flags(), errOut)
			if err != nil {
				return err
			}
			return doCompile(args[0], cfg, out, errOut)
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	rootCmd.Flags().BoolVar(&dWIR, "dwir", false, "Dump wide IR")
	rootCmd.Flags().BoolVar(&dLLVM, "dllvm", false, "Dump LLVM IR")
	rootCmd.Flags().BoolVar(&runOnce, "run", false, "Run one batch and print the outputs")
	rootCmd.Flags().StringSliceVarP(&outputs, "output", "o", nil, "Symbols to print with --run (layer.symbol)")
	addCodegenFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(newShadeCmd(out, errOut))
	return rootCmd
}

// addCodegenFlags registers the flags that override the config file.
func addCodegenFlags(fs *pflag.FlagSet) {
	fs.StringVar(&configPath, "config", "", "TOML settings file")
	fs.IntVar(&width, "width", 8, "Lanes per batch (4, 8 or 16)")
	fs.BoolVar(&rangeChecking, "range-checking", false, "Clamp and report out of range indices")
	fs.BoolVar(&testAnyLanes, "test-any-lanes", true, "Skip masked regions with no active lane")
	fs.BoolVar(&noColor, "no-color", false, "Disable colored diagnostics")
}

// loadConfig reads --config, if given, and applies the flags set on the
// command line over it.
func loadConfig(fs *pflag.FlagSet, errOut io.Writer) (config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			fmt.Fprintf(errOut, "oslbatch: %v\n", err)
			return cfg, err
		}
	}
	if fs.Changed("width") {
		// lanes-active follows the width unless the file narrowed it
		if cfg.Runtime.LanesActive == cfg.Codegen.Width || cfg.Runtime.LanesActive > width {
			cfg.Runtime.LanesActive = width
		}
		cfg.Codegen.Width = width
	}
	if fs.Changed("range-checking") {
		cfg.Codegen.RangeChecking = rangeChecking
	}
	if fs.Changed("test-any-lanes") {
		cfg.Codegen.TestAnyLanes = testAnyLanes
	}
	if fs.Changed("no-color") {
		cfg.Output.Color = !noColor
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(errOut, "oslbatch: %v\n", err)
		return cfg, err
	}
	return cfg, nil
}

// outputFilename replaces the .yaml or .yml extension of filename by ext
func outputFilename(filename, ext string) string {
	for _, old := range []string{".yaml", ".yml"} {
		if strings.HasSuffix(filename, old) {
			return filename[:len(filename)-len(old)] + ext
		}
	}
	return filename + ext
}

// compileFile loads and compiles a group, printing diagnostics to errOut
func compileFile(filename string, cfg config.Config, errOut io.Writer) (*oso.Group, *wir.Module, *shadeops.Library, error) {
	g, err := oso.LoadFile(filename)
	if err != nil {
		fmt.Fprintf(errOut, "oslbatch: %v\n", err)
		return nil, nil, nil, err
	}
	lib := shadeops.New()
	opts := cfg.Options()
	opts.Catalog = lib
	mod, err := batched.Compile(g, opts)
	if err != nil {
		diag.New(errOut, cfg.Output.Color).CompileError(err)
		return nil, nil, nil, err
	}
	return g, mod, lib, nil
}

func doCompile(filename string, cfg config.Config, out, errOut io.Writer) error {
	g, mod, lib, err := compileFile(filename, cfg, errOut)
	if err != nil {
		return err
	}
	if dWIR {
		if err := dumpTo(outputFilename(filename, ".wir"), out, errOut, func(w io.Writer) error {
			wir.NewPrinter(w).PrintModule(mod)
			return nil
		}); err != nil {
			return err
		}
	}
	if dLLVM {
		if err := dumpTo(outputFilename(filename, ".ll"), out, errOut, func(w io.Writer) error {
			return llvmgen.Write(w, mod)
		}); err != nil {
			return err
		}
	}
	if runOnce {
		return doRun(g, mod, lib, cfg, out, errOut)
	}
	if !dWIR && !dLLVM {
		layout := linearize.ComputeLayout(mod)
		fmt.Fprintf(errOut, "oslbatch: compiled %s: %d functions, %d runtime routines, %d bytes of group data\n",
			filename, len(mod.Funcs), len(mod.Externals()), layout.GroupDataSize)
	}
	return nil
}

// dumpTo writes a dump to path and also to out.
func dumpTo(path string, out, errOut io.Writer, dump func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		fmt.Fprintf(errOut, "oslbatch: error creating %s: %v\n", path, err)
		return err
	}
	defer f.Close()
	if err := dump(io.MultiWriter(f, out)); err != nil {
		fmt.Fprintf(errOut, "oslbatch: %v\n", err)
		return err
	}
	return nil
}

// defaultOutputs names every float- or int-based output parameter.
func defaultOutputs(g *oso.Group) []string {
	var names []string
	for _, in := range g.Layers {
		for _, s := range in.Symbols {
			if s.SymType == oso.SymOutputParam && (s.Type.IsFloatBased() || s.Type.IsIntBased()) {
				names = append(names, in.LayerName+"."+s.Name)
			}
		}
	}
	return names
}

// doRun shades the active lanes of one batch as a row of points.
func doRun(g *oso.Group, mod *wir.Module, lib *shadeops.Library, cfg config.Config, out, errOut io.Writer) error {
	p := diag.New(errOut, cfg.Output.Color)
	names := outputs
	if len(names) == 0 {
		names = defaultOutputs(g)
	}
	outs, err := shade.Outputs(g, names)
	if err != nil {
		p.Error("oslbatch", err)
		return err
	}
	lanes := cfg.Runtime.LanesActive
	if lanes == 0 {
		p.Warning("oslbatch", "no active lanes")
		return nil
	}
	rep := &shadeops.Reporter{Forward: p.Forward()}
	opts := shade.Options{
		Width:   lanes,
		Height:  1,
		Workers: 1,
		Context: interp.Context{
			Stdout:   out,
			Reporter: rep,
			Services: &shadeops.Services{Renderer: shadeops.NewStaticRenderer()},
		},
	}
	img, err := shade.Render(context.Background(), mod, batched.EntryFunction(g), lib, outs, opts)
	if err != nil {
		p.Error("oslbatch", err)
		return err
	}

	header := []string{"symbol"}
	for l := 0; l < lanes; l++ {
		header = append(header, fmt.Sprintf("lane %d", l))
	}
	var rows [][]any
	ch := 0
	for _, o := range outs {
		for c := 0; c < o.Channels(); c++ {
			name := o.Slot
			if o.Channels() > 1 {
				name = fmt.Sprintf("%s[%d]", o.Slot, c)
			}
			row := []any{name}
			for l := 0; l < lanes; l++ {
				row = append(row, img.At(l, 0, ch))
			}
			rows = append(rows, row)
			ch++
		}
	}
	diag.New(out, cfg.Output.Color).Table(g.Name, header, rows)
	return nil
}

func newShadeCmd(out, errOut io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shade file.yaml",
		Short: "Shade an image with a group and write it as PPM or PFM",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags(), errOut)
			if err != nil {
				return err
			}
			return doShade(cmd.Context(), args[0], cfg, errOut)
		},
	}
	cmd.Flags().IntVar(&xres, "xres", 64, "Image width")
	cmd.Flags().IntVar(&yres, "yres", 64, "Image height")
	cmd.Flags().BoolVar(&corners, "corners", false, "Shade pixel corners instead of centers")
	cmd.Flags().IntVar(&workers, "workers", 0, "Batches shaded at once (0: one per CPU)")
	cmd.Flags().StringVarP(&imageOutput, "image", "i", "out.ppm", "Image file (.ppm or .pfm)")
	cmd.Flags().StringSliceVarP(&outputs, "output", "o", nil, "Symbols written to the image channels")
	return cmd
}

func doShade(ctx context.Context, filename string, cfg config.Config, errOut io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	p := diag.New(errOut, cfg.Output.Color)
	g, mod, lib, err := compileFile(filename, cfg, errOut)
	if err != nil {
		return err
	}
	names := outputs
	if len(names) == 0 {
		names = defaultOutputs(g)
	}
	outs, err := shade.Outputs(g, names)
	if err != nil {
		p.Error("oslbatch", err)
		return err
	}
	locations := shade.PixelCenters
	if corners {
		locations = shade.PixelCorners
	}
	rep := &shadeops.Reporter{}
	opts := shade.Options{
		Width:     xres,
		Height:    yres,
		Locations: locations,
		Workers:   workers,
		Context: interp.Context{
			Stdout:   io.Discard,
			Reporter: rep,
			Services: &shadeops.Services{Renderer: shadeops.NewStaticRenderer()},
		},
	}
	img, err := shade.Render(ctx, mod, batched.EntryFunction(g), lib, outs, opts)
	if err != nil {
		p.Error("oslbatch", err)
		return err
	}
	p.Messages(rep.Messages())
	if err := img.WriteFile(imageOutput); err != nil {
		p.Error("oslbatch", err)
		return err
	}
	p.Info("oslbatch", fmt.Sprintf("wrote %s (%dx%d, %d channels)", imageOutput, xres, yres, img.Channels))
	return nil
}
