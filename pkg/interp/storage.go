package interp

import (
	"fmt"

	"github.com/AlexMWells/OpenShadingLanguage/pkg/wir"
)

// Cells is the backing store of one slot. Element e of a wide slot keeps
// lane l at index e*width+l.
type Cells struct {
	Info  wir.SlotInfo
	Width int
	I     []int32
	F     []float32
	B     []bool
	S     []string
}

func newCells(info wir.SlotInfo, width int) *Cells {
	n := info.Len
	if info.Wide {
		n *= width
	}
	c := &Cells{Info: info, Width: width}
	switch info.Elem {
	case wir.Int:
		c.I = make([]int32, n)
	case wir.Float:
		c.F = make([]float32, n)
	case wir.Bool:
		c.B = make([]bool, n)
	case wir.String:
		c.S = make([]string, n)
	}
	return c
}

func (c *Cells) index(elem, lane int) int {
	if elem < 0 || elem >= c.Info.Len {
		panic(fmt.Sprintf("slot %s: element %d out of range [0,%d)", c.Info.Name, elem, c.Info.Len))
	}
	if c.Info.Wide {
		return elem*c.Width + lane
	}
	return elem
}

func (c *Cells) inRange(elem int) bool { return elem >= 0 && elem < c.Info.Len }

// Ref points at element Base of a slot. Kernels read and write their
// pointer arguments through it; for uniform slots the lane is ignored.
type Ref struct {
	Cells *Cells
	Base  int
}

// Wide reports whether the referenced slot holds one value per lane.
func (r Ref) Wide() bool { return r.Cells.Info.Wide }

// Len is the number of elements from Base to the end of the slot.
func (r Ref) Len() int { return r.Cells.Info.Len - r.Base }

func (r Ref) Int(elem, lane int) int32 { return r.Cells.I[r.Cells.index(r.Base+elem, lane)] }
func (r Ref) Float(elem, lane int) float32 {
	return r.Cells.F[r.Cells.index(r.Base+elem, lane)]
}
func (r Ref) Str(elem, lane int) string {
	return r.Cells.S[r.Cells.index(r.Base+elem, lane)]
}

func (r Ref) SetInt(elem, lane int, v int32) { r.Cells.I[r.Cells.index(r.Base+elem, lane)] = v }
func (r Ref) SetFloat(elem, lane int, v float32) {
	r.Cells.F[r.Cells.index(r.Base+elem, lane)] = v
}
func (r Ref) SetStr(elem, lane int, v string) {
	r.Cells.S[r.Cells.index(r.Base+elem, lane)] = v
}

// Memory holds the storage of every slot of a module.
type Memory struct {
	Width int
	Slots []*Cells
}

// NewMemory allocates zeroed storage for m's slots.
func NewMemory(m *wir.Module) *Memory {
	mem := &Memory{Width: m.Width, Slots: make([]*Cells, len(m.Slots))}
	for i, s := range m.Slots {
		mem.Slots[i] = newCells(s, m.Width)
	}
	return mem
}

// Ref returns a reference to element off of slot s.
func (mem *Memory) Ref(s wir.Slot, off int) Ref {
	return Ref{Cells: mem.Slots[s], Base: off}
}

// Reset zeroes every slot.
func (mem *Memory) Reset() {
	for i, c := range mem.Slots {
		mem.Slots[i] = newCells(c.Info, mem.Width)
	}
}
