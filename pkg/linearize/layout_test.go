package linearize

import (
	"testing"

	"github.com/AlexMWells/OpenShadingLanguage/pkg/wir"
)

func TestComputeLayout(t *testing.T) {
	m := wir.NewModule("t", 8)
	run := m.NewSlot(wir.SlotInfo{Name: "run", Elem: wir.Int, Len: 2, Scope: wir.GroupData})
	col := m.NewSlot(wir.SlotInfo{Name: "C", Elem: wir.Float, Wide: true, Len: 3, Scope: wir.GroupData})
	tmp := m.NewSlot(wir.SlotInfo{Name: "tmp", Elem: wir.Bool, Wide: true, Len: 1, Owner: "main"})
	str := m.NewSlot(wir.SlotInfo{Name: "s", Elem: wir.String, Len: 1, Owner: "main"})

	l := ComputeLayout(m)

	tests := []struct {
		name string
		slot wir.Slot
		off  int64
	}{
		{"run", run, 0},
		{"C", col, 32}, // 8 bytes of run rounded up to a 32-byte vector
		{"tmp", tmp, 0},
		{"s", str, 32},
	}
	for _, tt := range tests {
		if got := l.Offsets[tt.slot]; got != tt.off {
			t.Errorf("%s offset = %d, want %d", tt.name, got, tt.off)
		}
	}
	if l.GroupDataSize != 32+3*32 {
		t.Errorf("group data size = %d", l.GroupDataSize)
	}
	if l.FrameSize["main"] != 64 {
		t.Errorf("frame size = %d", l.FrameSize["main"])
	}
	if SlotSize(m.Slot(col), 8) != 96 {
		t.Errorf("slot size = %d", SlotSize(m.Slot(col), 8))
	}
}
