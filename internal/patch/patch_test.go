package patch

import "testing"

// fakeMem is an in-process stand-in for target memory: a flat byte buffer
// addressed from a fixed base, enough to exercise Manager without touching
// /proc.
type fakeMem struct {
	base uint64
	buf  []byte
}

func newFakeMem(base uint64, data []byte) *fakeMem {
	return &fakeMem{base: base, buf: append([]byte(nil), data...)}
}

func (f *fakeMem) Read(dst []byte, srcVA uint64) bool {
	off := srcVA - f.base
	if off+uint64(len(dst)) > uint64(len(f.buf)) {
		return false
	}
	copy(dst, f.buf[off:off+uint64(len(dst))])
	return true
}

func (f *fakeMem) WriteCode(src []byte, dstVA uint64) error {
	off := dstVA - f.base
	copy(f.buf[off:off+uint64(len(src))], src)
	return nil
}

func TestNOPWritesSledAndRecordsOriginal(t *testing.T) {
	mem := newFakeMem(0x1000, []byte{0x48, 0x8B, 0x05, 0x00, 0x00})
	mgr := New(mem, mem)

	if err := mgr.NOP(0x1000, 3, "disable check"); err != nil {
		t.Fatalf("NOP: %v", err)
	}
	if mem.buf[0] != 0x90 || mem.buf[1] != 0x90 || mem.buf[2] != 0x90 {
		t.Errorf("expected NOP sled, got %x", mem.buf[:3])
	}
	if !mgr.IsPatched(0x1000) {
		t.Error("expected patch to be marked active")
	}

	patches := mgr.Patches()
	if len(patches) != 1 || string(patches[0].Original) != "\x48\x8b\x05" {
		t.Errorf("unexpected patch record: %+v", patches)
	}
}

func TestNOPRefusesDoublePatch(t *testing.T) {
	mem := newFakeMem(0x1000, []byte{0x90, 0x90, 0x90})
	mgr := New(mem, mem)

	if err := mgr.NOP(0x1000, 2, ""); err != nil {
		t.Fatalf("first NOP: %v", err)
	}
	if err := mgr.NOP(0x1000, 2, ""); err == nil {
		t.Fatal("expected PatchConflict on second NOP at same address")
	}
}

func TestRestoreWritesBackOriginalAndIsIdempotent(t *testing.T) {
	mem := newFakeMem(0x1000, []byte{0xAA, 0xBB, 0xCC})
	mgr := New(mem, mem)

	if err := mgr.NOP(0x1000, 3, ""); err != nil {
		t.Fatalf("NOP: %v", err)
	}
	if err := mgr.Restore(0x1000); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if mem.buf[0] != 0xAA || mem.buf[1] != 0xBB || mem.buf[2] != 0xCC {
		t.Errorf("expected original bytes restored, got %x", mem.buf[:3])
	}
	if mgr.IsPatched(0x1000) {
		t.Error("expected patch inactive after Restore")
	}

	// second Restore is a no-op, not an error
	if err := mgr.Restore(0x1000); err != nil {
		t.Errorf("second Restore should be a no-op, got error: %v", err)
	}
}

func TestInvertCondJumpFlipsConditionByte(t *testing.T) {
	// je rel8 +4: 74 04
	mem := newFakeMem(0x2000, []byte{0x74, 0x04})
	mgr := New(mem, mem)

	if err := mgr.InvertCondJump(0x2000, 2, "invert win check"); err != nil {
		t.Fatalf("InvertCondJump: %v", err)
	}
	if mem.buf[0] != 0x75 {
		t.Errorf("expected JNE (0x75), got %#x", mem.buf[0])
	}
}

func TestInvertCondJumpRejectsNonJcc(t *testing.T) {
	// mov eax, imm32 -- not a conditional jump
	mem := newFakeMem(0x2000, []byte{0xB8, 0x00, 0x00, 0x00, 0x00})
	mgr := New(mem, mem)

	if err := mgr.InvertCondJump(0x2000, 5, ""); err == nil {
		t.Fatal("expected error inverting a non-Jcc instruction")
	}
}
