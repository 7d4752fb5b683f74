package disasm

import "testing"

func TestDecodeSimpleMovImmediate(t *testing.T) {
	// mov eax, 0x1 -- b8 01 00 00 00
	inst := Decode([]byte{0xB8, 0x01, 0x00, 0x00, 0x00}, 0x1000)
	if !inst.Valid {
		t.Fatal("expected valid decode")
	}
	if inst.Length != 5 {
		t.Errorf("Length = %d, want 5", inst.Length)
	}
	if inst.IsBranch {
		t.Error("mov should not be classified as a branch")
	}
}

func TestDecodeInvalidBytes(t *testing.T) {
	inst := Decode([]byte{0x0F, 0xFF}, 0x1000)
	if inst.Valid {
		t.Error("expected invalid decode for unassigned opcode")
	}
}

func TestDecodeUnconditionalJump(t *testing.T) {
	// jmp rel8 +2: eb 02
	inst := Decode([]byte{0xEB, 0x02}, 0x1000)
	if !inst.Valid || !inst.IsBranch || inst.IsConditional {
		t.Fatalf("expected unconditional branch, got %+v", inst)
	}
	if !inst.HasTarget || inst.BranchTarget != 0x1000+2+2 {
		t.Errorf("BranchTarget = %#x, want %#x", inst.BranchTarget, 0x1000+2+2)
	}
}

func TestDecodeConditionalJump(t *testing.T) {
	// je rel8 +4: 74 04
	inst := Decode([]byte{0x74, 0x04}, 0x2000)
	if !inst.Valid || !inst.IsBranch || !inst.IsConditional {
		t.Fatalf("expected conditional branch, got %+v", inst)
	}
}

func TestNopBytes(t *testing.T) {
	sled := NopBytes(4)
	if len(sled) != 4 {
		t.Fatalf("len(sled) = %d, want 4", len(sled))
	}
	for i, b := range sled {
		if b != 0x90 {
			t.Errorf("sled[%d] = %#x, want 0x90", i, b)
		}
	}
}

func TestWildcardAOBMasksRelativeJump(t *testing.T) {
	// jmp rel32: e9 00 00 00 00
	pattern, mask, ok := WildcardAOB([]byte{0xE9, 0x00, 0x00, 0x00, 0x00}, 0x1000)
	if !ok {
		t.Fatal("expected successful decode")
	}
	if mask[0] != 0xFF {
		t.Error("opcode byte should remain literal")
	}
	for i := 1; i < len(mask); i++ {
		if mask[i] != 0x00 {
			t.Errorf("displacement byte %d should be wildcarded, mask=%#x", i, mask[i])
		}
	}
	if pattern[0] != 0xE9 {
		t.Errorf("pattern[0] = %#x, want 0xE9", pattern[0])
	}
}

func TestWildcardAOBNoRelativeField(t *testing.T) {
	// mov eax, 0x1 -- no PC-relative operand, mask should be all-literal
	pattern, mask, ok := WildcardAOB([]byte{0xB8, 0x01, 0x00, 0x00, 0x00}, 0x1000)
	if !ok {
		t.Fatal("expected successful decode")
	}
	for i, m := range mask {
		if m != 0xFF {
			t.Errorf("mask[%d] = %#x, want 0xFF (no PC-relative field)", i, m)
		}
	}
	_ = pattern
}

func TestIsConditionalJumpOpcodeShortForm(t *testing.T) {
	off, ok := IsConditionalJumpOpcode([]byte{0x74, 0x04}) // JE rel8
	if !ok || off != 0 {
		t.Errorf("short-form Jcc: off=%d ok=%v, want 0, true", off, ok)
	}
}

func TestIsConditionalJumpOpcodeNearForm(t *testing.T) {
	off, ok := IsConditionalJumpOpcode([]byte{0x0F, 0x84, 0x00, 0x00, 0x00, 0x00}) // JE rel32
	if !ok || off != 1 {
		t.Errorf("near-form Jcc: off=%d ok=%v, want 1, true", off, ok)
	}
}

func TestIsConditionalJumpOpcodeRejectsNonJcc(t *testing.T) {
	if _, ok := IsConditionalJumpOpcode([]byte{0x90}); ok {
		t.Error("NOP should not be classified as Jcc")
	}
	if _, ok := IsConditionalJumpOpcode([]byte{0xE9, 0x00, 0x00, 0x00, 0x00}); ok {
		t.Error("unconditional JMP should not be classified as Jcc")
	}
}

func TestInvertConditionByteIsInvolution(t *testing.T) {
	je := byte(0x04) // condition nibble for JE/JZ within 0x74/0x0F84
	jne := InvertConditionByte(je)
	if jne == je {
		t.Fatal("InvertConditionByte should flip the condition")
	}
	if InvertConditionByte(jne) != je {
		t.Error("InvertConditionByte should be its own inverse")
	}
}
