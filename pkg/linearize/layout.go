// Storage layout for wide IR slots.
// This pass assigns byte offsets to slots and computes the size of the
// shared group data block and each function's local frame.
package linearize

import "github.com/AlexMWells/OpenShadingLanguage/pkg/wir"

// elemSize is the byte size of one lane of an element; strings and
// pointers are stored as 8-byte handles.
func elemSize(e wir.Elem) int64 {
	switch e {
	case wir.Bool, wir.Int, wir.Float:
		return 4
	case wir.String, wir.Ptr:
		return 8
	default:
		return 0
	}
}

// Layout holds the storage assignment of a module.
type Layout struct {
	Width         int
	Offsets       []int64          // byte offset of each slot in its frame
	GroupDataSize int64            // aligned size of the shared block
	FrameSize     map[string]int64 // aligned size of each function's locals
}

// SlotSize returns the byte size of slot info for the given lane count.
func SlotSize(info wir.SlotInfo, width int) int64 {
	n := elemSize(info.Elem) * int64(info.Len)
	if info.Wide {
		n *= int64(width)
	}
	return n
}

// alignment of a slot: wide slots align to a full vector
func slotAlign(info wir.SlotInfo, width int) int64 {
	a := elemSize(info.Elem)
	if info.Wide {
		a *= int64(width)
	}
	if a == 0 {
		a = 1
	}
	return a
}

func alignUp(n, a int64) int64 {
	if n%a != 0 {
		n = (n/a + 1) * a
	}
	return n
}

// ComputeLayout assigns every slot of m an offset within either the group
// data block or its owner's frame.
func ComputeLayout(m *wir.Module) *Layout {
	l := &Layout{
		Width:     m.Width,
		Offsets:   make([]int64, len(m.Slots)),
		FrameSize: make(map[string]int64),
	}
	maxAlign := int64(16)
	for i, s := range m.Slots {
		a := slotAlign(s, m.Width)
		if a > maxAlign {
			maxAlign = a
		}
		if s.Scope == wir.GroupData {
			off := alignUp(l.GroupDataSize, a)
			l.Offsets[i] = off
			l.GroupDataSize = off + SlotSize(s, m.Width)
			continue
		}
		off := alignUp(l.FrameSize[s.Owner], a)
		l.Offsets[i] = off
		l.FrameSize[s.Owner] = off + SlotSize(s, m.Width)
	}
	l.GroupDataSize = alignUp(l.GroupDataSize, maxAlign)
	for k, v := range l.FrameSize {
		l.FrameSize[k] = alignUp(v, maxAlign)
	}
	return l
}
