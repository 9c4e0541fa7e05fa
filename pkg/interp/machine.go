package interp

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/AlexMWells/OpenShadingLanguage/pkg/wir"
)

// Kernel is a runtime routine callable from generated code. Pointer
// arguments arrive as Ref, masks as int32 lane bits, uniform scalars as
// int32, float32 or string.
type Kernel func(ctx *Context, args []any) (any, error)

// Resolver finds the kernel implementing a runtime symbol.
type Resolver interface {
	Lookup(name string) (Kernel, bool)
}

// Reporter receives diagnostics raised while shading.
type Reporter interface {
	Errorf(format string, args ...any)
	Warningf(format string, args ...any)
}

// Context is what kernels see of the executing batch.
type Context struct {
	Width    int
	Stdout   io.Writer
	Reporter Reporter

	// Services is owned by the kernel library (renderer callbacks, noise
	// tables, ...).
	Services any

	Memory *Memory
}

// CallRecord describes one executed call.
type CallRecord struct {
	Func   string
	Masked bool
	Mask   uint32
}

// ErrUnknownKernel is returned when a called routine cannot be resolved.
var ErrUnknownKernel = errors.New("unknown runtime routine")

// ErrStepLimit is returned when execution exceeds Machine.MaxSteps.
var ErrStepLimit = errors.New("step limit exceeded")

// Machine runs the functions of one module.
type Machine struct {
	Module   *wir.Module
	Kernels  Resolver
	Ctx      *Context
	MaxSteps int

	// Record enables the call log.
	Record bool
	Calls  []CallRecord

	steps   int
	kernels map[string]Kernel
}

// NewMachine prepares m for execution with fresh memory.
func NewMachine(m *wir.Module, kernels Resolver, ctx *Context) *Machine {
	if ctx == nil {
		ctx = &Context{}
	}
	ctx.Width = m.Width
	if ctx.Stdout == nil {
		ctx.Stdout = io.Discard
	}
	if ctx.Memory == nil {
		ctx.Memory = NewMemory(m)
	}
	return &Machine{
		Module:   m,
		Kernels:  kernels,
		Ctx:      ctx,
		MaxSteps: 10_000_000,
		kernels:  make(map[string]Kernel),
	}
}

// Memory returns the machine's slot storage.
func (m *Machine) Memory() *Memory { return m.Ctx.Memory }

// Run executes function name with the given arguments.
func (m *Machine) Run(name string, args ...Value) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if s, ok := r.(string); ok {
				err = fmt.Errorf("interp: %s", s)
				return
			}
			panic(r)
		}
	}()
	m.steps = 0
	return m.call(name, args)
}

func (m *Machine) call(name string, args []Value) error {
	f := m.Module.Func(name)
	if f == nil {
		return fmt.Errorf("interp: no function %s", name)
	}
	if len(args) != len(f.Params) {
		return fmt.Errorf("interp: %s takes %d arguments, got %d", name, len(f.Params), len(args))
	}
	fr := &frame{m: m, f: f, vals: make([]Value, f.NumValues())}
	for i, p := range f.Params {
		if args[i].Type != f.TypeOf(p) {
			return fmt.Errorf("interp: %s argument %d is %s, want %s", name, i, args[i].Type, f.TypeOf(p))
		}
		fr.vals[p] = args[i]
	}
	return fr.run()
}

func (m *Machine) kernel(name string) (Kernel, error) {
	if k, ok := m.kernels[name]; ok {
		return k, nil
	}
	if m.Kernels == nil {
		return nil, fmt.Errorf("interp: %w %s", ErrUnknownKernel, name)
	}
	k, ok := m.Kernels.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("interp: %w %s", ErrUnknownKernel, name)
	}
	m.kernels[name] = k
	return k, nil
}

func (m *Machine) record(name string, args []any) {
	if !m.Record {
		return
	}
	rec := CallRecord{Func: name}
	if strings.HasSuffix(name, "_masked") && len(args) > 0 {
		if bits, ok := args[len(args)-1].(int32); ok {
			rec.Masked = true
			rec.Mask = uint32(bits)
		}
	}
	m.Calls = append(m.Calls, rec)
}

// ZeroMaskCalls returns the recorded masked calls that ran with no lanes.
func (m *Machine) ZeroMaskCalls() []CallRecord {
	var out []CallRecord
	for _, c := range m.Calls {
		if c.Masked && c.Mask == 0 {
			out = append(out, c)
		}
	}
	return out
}

// KernelMap is a Resolver backed by a fixed table.
type KernelMap map[string]Kernel

// Lookup implements Resolver.
func (k KernelMap) Lookup(name string) (Kernel, bool) {
	f, ok := k[name]
	return f, ok
}
