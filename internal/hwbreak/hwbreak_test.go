package hwbreak

import "testing"

func TestSizeFor(t *testing.T) {
	cases := map[int]Size{1: Size1, 2: Size2, 4: Size4, 8: Size8}
	for bytes, want := range cases {
		got, ok := SizeFor(bytes)
		if !ok || got != want {
			t.Errorf("SizeFor(%d) = %v, %v; want %v, true", bytes, got, ok, want)
		}
	}
	if _, ok := SizeFor(3); ok {
		t.Error("SizeFor(3) should fail")
	}
}

func TestTableAllocateFillsLowestFreeSlot(t *testing.T) {
	tbl := NewTable()
	for i := 0; i < maxSlots; i++ {
		idx, ok := tbl.Allocate(uint64(0x1000+i), ConditionReadWrite, Size4)
		if !ok || idx != i {
			t.Fatalf("Allocate #%d: got idx=%d ok=%v, want idx=%d", i, idx, ok, i)
		}
	}
	if tbl.HasAvailableSlot() {
		t.Error("table should be full after 4 allocations")
	}
	if _, ok := tbl.Allocate(0x2000, ConditionExecute, Size1); ok {
		t.Error("Allocate should fail once all slots are in use")
	}
}

func TestTableClearFreesSlot(t *testing.T) {
	tbl := NewTable()
	idx, _ := tbl.Allocate(0x1000, ConditionWrite, Size8)
	tbl.Clear(idx)
	if tbl.IsSlotActive(idx) {
		t.Error("slot should be inactive after Clear")
	}
	if tbl.ActiveCount() != 0 {
		t.Errorf("ActiveCount = %d, want 0", tbl.ActiveCount())
	}
}

func TestEncodeDR7SingleSlot(t *testing.T) {
	tbl := NewTable()
	tbl.Allocate(0x1000, ConditionReadWrite, Size4)
	dr7 := tbl.EncodeDR7()

	if dr7&0b1 == 0 {
		t.Error("local-enable bit for slot 0 should be set")
	}
	if (dr7>>16)&0b11 != uint64(ConditionReadWrite) {
		t.Errorf("condition bits for slot 0: got %02b", (dr7>>16)&0b11)
	}
	if (dr7>>18)&0b11 != uint64(Size4) {
		t.Errorf("length bits for slot 0: got %02b", (dr7>>18)&0b11)
	}
}

func TestEncodeDR7MultipleSlots(t *testing.T) {
	tbl := NewTable()
	tbl.Allocate(0x1000, ConditionExecute, Size1)
	tbl.Allocate(0x2000, ConditionWrite, Size2)
	dr7 := tbl.EncodeDR7()

	if dr7&0b1 == 0 || dr7&0b100 == 0 {
		t.Error("local-enable bits for slots 0 and 1 should both be set")
	}
	if (dr7>>20)&0b11 != uint64(ConditionWrite) {
		t.Errorf("condition bits for slot 1: got %02b", (dr7>>20)&0b11)
	}
}

func TestTriggeredSlot(t *testing.T) {
	idx, ok := TriggeredSlot(0b0100)
	if !ok || idx != 2 {
		t.Errorf("TriggeredSlot(0b0100) = %d, %v; want 2, true", idx, ok)
	}
	if _, ok := TriggeredSlot(0); ok {
		t.Error("TriggeredSlot(0) should report no slot triggered")
	}
}

func TestClearAll(t *testing.T) {
	tbl := NewTable()
	tbl.Allocate(0x1000, ConditionExecute, Size1)
	tbl.Allocate(0x2000, ConditionWrite, Size2)
	tbl.ClearAll()
	if tbl.ActiveCount() != 0 {
		t.Errorf("ActiveCount after ClearAll = %d, want 0", tbl.ActiveCount())
	}
}
