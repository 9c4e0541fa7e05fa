// Package shade runs a compiled shader group over every pixel of an
// image, one batch of pixels at a time on a pool of workers.
package shade

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/AlexMWells/OpenShadingLanguage/pkg/interp"
	"github.com/AlexMWells/OpenShadingLanguage/pkg/oso"
	"github.com/AlexMWells/OpenShadingLanguage/pkg/wir"
)

// Locations says where in a pixel the shading point sits.
type Locations int

const (
	// PixelCenters shades u = (x+0.5)/xres.
	PixelCenters Locations = iota
	// PixelCorners shades u = x/(xres-1), so the edges reach 0 and 1.
	PixelCorners
)

// Output is a symbol copied into the image after each batch.
type Output struct {
	Slot string
	Type oso.TypeSpec
}

// Channels is the number of image channels the output fills.
func (o Output) Channels() int { return o.Type.Components() }

// Outputs resolves "layer.symbol" names, or bare symbol names of the last
// layer, against g. Outputs that are neither float- nor int-based are
// rejected.
func Outputs(g *oso.Group, names []string) ([]Output, error) {
	var out []Output
	for _, name := range names {
		layer := len(g.Layers) - 1
		sym := name
		if i := strings.LastIndexByte(name, '.'); i >= 0 {
			if layer = g.FindLayer(name[:i]); layer < 0 {
				return nil, fmt.Errorf("shade: no layer %q", name[:i])
			}
			sym = name[i+1:]
		}
		in := g.Layers[layer]
		_, s := in.FindSymbol(sym)
		if s == nil {
			return nil, fmt.Errorf("shade: layer %s has no symbol %q", in.LayerName, sym)
		}
		if !s.Type.IsFloatBased() && !s.Type.IsIntBased() {
			return nil, fmt.Errorf("shade: output %s of type %s", name, s.Type)
		}
		out = append(out, Output{Slot: in.LayerName + "." + s.Name, Type: s.Type})
	}
	return out, nil
}

// Options configures Render.
type Options struct {
	Width, Height int
	Locations     Locations

	// Workers is the number of batches shaded at once; 0 means one per
	// CPU.
	Workers int

	// Context is the template of each worker's execution context. Its
	// Memory is ignored and its Stdout is shared by the workers.
	Context interp.Context
}

// Render shades every pixel of a Width x Height image by calling entry
// of mod with the lanes of each batch. Cancelling ctx stops new batches
// from starting; Render then returns ctx's error.
func Render(ctx context.Context, mod *wir.Module, entry string, lib interp.Resolver, outputs []Output, opts Options) (*Image, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("shade: bad resolution %dx%d", opts.Width, opts.Height)
	}
	channels := 0
	for _, o := range outputs {
		if _, ok := mod.FindSlot(o.Slot); !ok {
			return nil, fmt.Errorf("shade: module has no slot %s", o.Slot)
		}
		channels += o.Channels()
	}
	img := NewImage(opts.Width, opts.Height, channels)

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	width := mod.Width
	batches := (opts.Width*opts.Height + width - 1) / width

	jobs := make(chan int)
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ectx := opts.Context
			ectx.Memory = nil
			sh := newShader(mod, entry, lib, &ectx, outputs, img, opts)
			for b := range jobs {
				if err := sh.batch(b); err != nil {
					errs <- err
					return
				}
			}
		}()
	}

	var err error
dispatch:
	for b := 0; b < batches; b++ {
		select {
		case jobs <- b:
		case <-ctx.Done():
			err = ctx.Err()
			break dispatch
		case err = <-errs:
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()
	if err == nil {
		select {
		case err = <-errs:
		default:
		}
	}
	if err != nil {
		return nil, err
	}
	return img, nil
}

// shader is the state of one worker.
type shader struct {
	m       *interp.Machine
	entry   string
	outputs []Output
	img     *Image
	opts    Options
}

func newShader(mod *wir.Module, entry string, lib interp.Resolver, ctx *interp.Context, outputs []Output, img *Image, opts Options) *shader {
	return &shader{
		m:       interp.NewMachine(mod, lib, ctx),
		entry:   entry,
		outputs: outputs,
		img:     img,
		opts:    opts,
	}
}

// batch shades pixels [b*width, (b+1)*width) of the image in row order.
func (s *shader) batch(b int) error {
	width := s.m.Module.Width
	first := b * width
	n := s.opts.Width*s.opts.Height - first
	if n > width {
		n = width
	}
	s.m.Memory().Reset()
	g := newGlobals(s.m)
	xres, yres := s.opts.Width, s.opts.Height
	for l := 0; l < n; l++ {
		x, y := (first+l)%xres, (first+l)/xres
		g.setTriple("P", l, [3]float32{float32(x), float32(y), 0}, [3]float32{1, 0, 0}, [3]float32{0, 1, 0})
		u, v, dudx, dvdy := s.location(x, y)
		g.setFloat("u", l, u, dudx, 0)
		g.setFloat("v", l, v, 0, dvdy)
		g.setTriple("N", l, [3]float32{0, 0, 1}, [3]float32{}, [3]float32{})
		g.setTriple("Ng", l, [3]float32{0, 0, 1}, [3]float32{}, [3]float32{})
		g.setTriple("dPdu", l, [3]float32{float32(xres), 0, 0}, [3]float32{}, [3]float32{})
		g.setTriple("dPdv", l, [3]float32{0, float32(yres), 0}, [3]float32{}, [3]float32{})
		g.setFloat("surfacearea", l, 1, 0, 0)
	}
	mask := uint32(1)<<uint(n) - 1
	if err := s.m.Run(s.entry, interp.Mask(mask, width)); err != nil {
		return fmt.Errorf("shade: batch %d: %w", b, err)
	}
	for l := 0; l < n; l++ {
		s.store(first+l, l)
	}
	return nil
}

func (s *shader) location(x, y int) (u, v, dudx, dvdy float32) {
	xres, yres := s.opts.Width, s.opts.Height
	if s.opts.Locations == PixelCenters {
		return (float32(x) + 0.5) / float32(xres), (float32(y) + 0.5) / float32(yres),
			1 / float32(xres), 1 / float32(yres)
	}
	u, v = 0.5, 0.5
	if xres > 1 {
		u = float32(x) / float32(xres-1)
	}
	if yres > 1 {
		v = float32(y) / float32(yres-1)
	}
	return u, v, 1 / float32(max(1, xres-1)), 1 / float32(max(1, yres-1))
}

// store copies lane l of every output into pixel p.
func (s *shader) store(p, l int) {
	chans := s.img.Pix[p*s.img.Channels : (p+1)*s.img.Channels]
	ch := 0
	for _, o := range s.outputs {
		slot, _ := s.m.Module.FindSlot(o.Slot)
		ref := s.m.Memory().Ref(slot, 0)
		for c := 0; c < o.Channels(); c++ {
			if o.Type.IsIntBased() {
				chans[ch] = float32(ref.Int(c, l))
			} else {
				chans[ch] = ref.Float(c, l)
			}
			ch++
		}
	}
}

// globals writes the shader globals a module reads. Globals the module
// never references have no slot and are skipped.
type globals struct {
	m *interp.Machine
}

func newGlobals(m *interp.Machine) globals { return globals{m: m} }

func (g globals) ref(name string) (interp.Ref, bool) {
	slot, ok := g.m.Module.FindSlot("sg." + name)
	if !ok {
		return interp.Ref{}, false
	}
	return g.m.Memory().Ref(slot, 0), true
}

func (g globals) setFloat(name string, l int, v, dx, dy float32) {
	r, ok := g.ref(name)
	if !ok {
		return
	}
	r.SetFloat(0, l, v)
	if r.Len() >= 3 {
		r.SetFloat(1, l, dx)
		r.SetFloat(2, l, dy)
	}
}

func (g globals) setTriple(name string, l int, v, dx, dy [3]float32) {
	r, ok := g.ref(name)
	if !ok {
		return
	}
	for c := 0; c < 3; c++ {
		r.SetFloat(c, l, v[c])
		if r.Len() >= 9 {
			r.SetFloat(3+c, l, dx[c])
			r.SetFloat(6+c, l, dy[c])
		}
	}
}
