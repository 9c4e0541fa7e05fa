// Package batched generates wide IR for a shader group. Each layer becomes a
// function that runs one batch of shading points under a lane mask; the
// group entry function runs the layers in order.
//
// Lanes diverge in control flow. The generator keeps them in one
// instruction stream by tracking the executing lanes on the mask stack of
// package masking, storing varying results only for active lanes, and
// computing uniform operations once. Runtime routines are named through
// package funcspec.
package batched

import (
	"errors"
	"fmt"

	"github.com/AlexMWells/OpenShadingLanguage/pkg/funcspec"
	"github.com/AlexMWells/OpenShadingLanguage/pkg/linearize"
	"github.com/AlexMWells/OpenShadingLanguage/pkg/masking"
	"github.com/AlexMWells/OpenShadingLanguage/pkg/oso"
	"github.com/AlexMWells/OpenShadingLanguage/pkg/wir"
)

var (
	// ErrContract reports a program the generator cannot lower as given:
	// a uniform result of a varying operation, a malformed argument list,
	// an unbalanced scope.
	ErrContract = errors.New("contract violation")

	// ErrNotImplemented reports an operation without a batched lowering.
	ErrNotImplemented = errors.New("not implemented")

	// ErrFormat reports an unusable format string.
	ErrFormat = errors.New("bad format")
)

// Error locates a generation failure in the shader source.
type Error struct {
	Shader string
	Layer  string
	File   string
	Line   int
	Op     string
	Err    error
}

func (e *Error) Error() string {
	loc := e.File
	if loc == "" {
		loc = "<unknown>"
	}
	if e.Line > 0 {
		loc = fmt.Sprintf("%s:%d", loc, e.Line)
	}
	if e.Op == "" {
		return fmt.Sprintf("%s: layer %s (shader %s): %v", loc, e.Layer, e.Shader, e.Err)
	}
	return fmt.Sprintf("%s: layer %s (shader %s): %s: %v", loc, e.Layer, e.Shader, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Renderer answers the compile-time questions the generator asks of the
// host renderer. A nil Renderer supports only linear transforms and has no
// synonym for "common".
type Renderer interface {
	// TransformPoints reports whether the renderer transforms points
	// between the two named spaces itself (non-linearly). Empty names ask
	// whether it does so for any pair.
	TransformPoints(from, to string) bool

	// CommonSpaceSynonym is another name for the "common" space, or "".
	CommonSpaceSynonym() string

	// RaytypeBit is the bit of the named ray type, or 0 when it has to be
	// looked up at run time.
	RaytypeBit(name string) int32
}

// Options controls code generation.
type Options struct {
	// Width is the number of lanes of a batch: 4, 8 or 16.
	Width int

	// RangeChecking clamps and reports out of range array and component
	// indices at run time.
	RangeChecking bool

	// TestAnyLanes guards every masked region with a branch that skips it
	// when no lane is active.
	TestAnyLanes bool

	// NoNoise replaces every noise call with a constant.
	NoNoise bool

	// Profile counts the lanes that evaluate noise.
	Profile bool

	// DebugNames suffixes block names with the op index that opened them.
	DebugNames bool

	// Catalog lists the runtime routines that exist. Nil accepts every
	// name.
	Catalog funcspec.Catalog

	Renderer Renderer
}

// DefaultOptions returns 8 lanes with lane tests on.
func DefaultOptions() Options {
	return Options{Width: 8, TestAnyLanes: true}
}

// LayerFunction is the name of the function generated for a layer.
func LayerFunction(in *oso.Instance) string { return "layer_" + in.LayerName }

// EntryFunction is the name of the group entry function.
func EntryFunction(g *oso.Group) string { return "group_" + g.Name }

// Compile lowers g into a module with one function per layer plus the
// group entry, which takes the mask of the lanes to shade.
func Compile(g *oso.Group, opts Options) (mod *wir.Module, err error) {
	switch opts.Width {
	case 4, 8, 16:
	default:
		return nil, fmt.Errorf("batched: %w: unsupported width %d", ErrContract, opts.Width)
	}
	if len(g.Layers) == 0 {
		return nil, fmt.Errorf("batched: %w: group %q has no layers", ErrContract, g.Name)
	}
	c := newCompiler(g, opts)
	defer func() {
		if r := recover(); r != nil {
			err = c.recovered(r)
			mod = nil
		}
	}()
	c.allocateGroupData()
	for i := range g.Layers {
		if err := c.compileLayer(i); err != nil {
			return nil, err
		}
	}
	c.compileEntry()
	linearize.Module(c.mod)
	if err := wir.Verify(c.mod); err != nil {
		return nil, fmt.Errorf("batched: %w: %v", ErrContract, err)
	}
	return c.mod, nil
}

// recovered converts a builder or engine panic into an error located at
// the op being generated.
func (c *compiler) recovered(r any) error {
	var cause error
	switch e := r.(type) {
	case contractPanic:
		cause = e.err
	case *wir.ContractError:
		cause = fmt.Errorf("%w: %v", ErrContract, e)
	case *masking.ContractError:
		cause = fmt.Errorf("%w: %v", ErrContract, e)
	default:
		panic(r)
	}
	if c.cur == nil {
		return fmt.Errorf("batched: %w", cause)
	}
	return c.cur.locate(cause)
}
