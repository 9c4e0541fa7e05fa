// Package shadeops is the reference runtime library for batched shaders:
// the kernels that generated code calls by their mangled routine names,
// the renderer services those kernels consult, and the channel through
// which shaders report errors and warnings.
//
// Routines are resolved lazily from their names. A name is parsed with
// funcspec.Parse and handed to the factory registered for its base name,
// which checks the argument specialisation and builds the kernel, so every
// variant a family supports exists without being listed.
package shadeops

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/AlexMWells/OpenShadingLanguage/pkg/funcspec"
	"github.com/AlexMWells/OpenShadingLanguage/pkg/interp"
)

// factory builds the kernel for one parsed variant, or reports that the
// family has no such variant.
type factory func(p funcspec.Parsed) (interp.Kernel, error)

var (
	families = map[string]factory{}
	// routines whose names carry no argument codes
	fixed = map[string]interp.Kernel{}
)

func register(base string, f factory) {
	if _, dup := families[base]; dup {
		panic("shadeops: duplicate family " + base)
	}
	families[base] = f
}

func registerFixed(name string, k interp.Kernel) {
	fixed[name] = k
}

// Services is what kernels need from the embedding application. It is
// installed as interp.Context.Services.
type Services struct {
	Renderer Renderer

	// OpenFile opens the destination of fprintf. Nil appends to the named
	// file on disk.
	OpenFile func(name string) (io.Writer, error)

	// NoiseCalls counts lanes that evaluated noise when profiling is on.
	NoiseCalls int
	mu         sync.Mutex
}

func (s *Services) addNoiseCalls(n int) {
	s.mu.Lock()
	s.NoiseCalls += n
	s.mu.Unlock()
}

var defaultServices = &Services{Renderer: NewStaticRenderer()}

func services(ctx *interp.Context) *Services {
	if s, ok := ctx.Services.(*Services); ok && s != nil {
		return s
	}
	return defaultServices
}

func (s *Services) renderer() Renderer {
	if s.Renderer == nil {
		return defaultServices.Renderer
	}
	return s.Renderer
}

func (s *Services) openFile(name string) (io.Writer, error) {
	if s.OpenFile != nil {
		return s.OpenFile(name)
	}
	f, err := os.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func report(ctx *interp.Context) interp.Reporter {
	if ctx.Reporter != nil {
		return ctx.Reporter
	}
	return discard{}
}

type discard struct{}

func (discard) Errorf(string, ...any)   {}
func (discard) Warningf(string, ...any) {}

// Library resolves routine names to kernels. It implements
// interp.Resolver and funcspec.Catalog and is safe for concurrent use.
type Library struct {
	mu    sync.Mutex
	cache map[string]interp.Kernel
	bad   map[string]error
}

// New returns an empty library; kernels are built on first lookup.
func New() *Library {
	return &Library{cache: make(map[string]interp.Kernel), bad: make(map[string]error)}
}

// Lookup implements interp.Resolver.
func (l *Library) Lookup(name string) (interp.Kernel, bool) {
	k, err := l.Resolve(name)
	return k, err == nil
}

// Has implements funcspec.Catalog.
func (l *Library) Has(name string) bool {
	_, err := l.Resolve(name)
	return err == nil
}

// Resolve returns the kernel for name or the reason there is none.
func (l *Library) Resolve(name string) (interp.Kernel, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if k, ok := l.cache[name]; ok {
		return k, nil
	}
	if err, ok := l.bad[name]; ok {
		return nil, err
	}
	k, err := build(name)
	if err != nil {
		l.bad[name] = err
		return nil, err
	}
	l.cache[name] = k
	return k, nil
}

func build(name string) (interp.Kernel, error) {
	if k, ok := fixed[name]; ok {
		return guard(name, 0, k), nil
	}
	p, err := funcspec.Parse(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", funcspec.ErrUnknownVariant, name)
	}
	f, ok := families[p.Spec.Base]
	if !ok {
		return nil, fmt.Errorf("%w: %s", funcspec.ErrUnknownVariant, name)
	}
	k, err := f(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", funcspec.ErrUnknownVariant, name, err)
	}
	return guard(name, p.Width, k), nil
}

// guard turns kernel panics (bad argument kinds, out of range storage
// access) into errors and checks the batch width.
func guard(name string, width int, k interp.Kernel) interp.Kernel {
	return func(ctx *interp.Context, args []any) (res any, err error) {
		if width != 0 && width != ctx.Width {
			return nil, fmt.Errorf("%s called with %d lanes", name, ctx.Width)
		}
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%s: %v", name, r)
			}
		}()
		return k(ctx, args)
	}
}

// errSignature reports a family variant that does not exist.
func errSignature(p funcspec.Parsed) error {
	return fmt.Errorf("unsupported signature for %s", p.Spec.Base)
}
