// Package disasm is the pure-function Disassembler facade: it decodes one
// x86-64 instruction from a byte slice and a base address, and derives the
// two code-patch helpers (NOP sleds, wildcard AOB masks) on top of that
// decode. Decode quality itself is delegated to golang.org/x/arch/x86/x86asm.
package disasm

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"
)

// Instruction is the decode result surfaced to callers.
type Instruction struct {
	Valid         bool
	Length        int
	Mnemonic      string
	Operands      string
	FullText      string
	ReadsMemory   bool
	WritesMemory  bool
	IsBranch      bool
	IsConditional bool
	BranchTarget  uint64
	HasTarget     bool
}

// Decode decodes one instruction from src at the given virtual address.
// On failure it returns {Valid: false}; callers substitute a `db <byte>`
// line per the decode-failure error kind.
func Decode(src []byte, base uint64) Instruction {
	inst, err := x86asm.Decode(src, 64)
	if err != nil || inst.Len == 0 {
		return Instruction{Valid: false}
	}

	reads, writes := memoryRoles(inst)
	isBranch, isCond := branchClass(inst)

	out := Instruction{
		Valid:         true,
		Length:        inst.Len,
		Mnemonic:      inst.Op.String(),
		Operands:      operandsString(inst),
		ReadsMemory:   reads,
		WritesMemory:  writes,
		IsBranch:      isBranch,
		IsConditional: isCond,
	}

	if text, err := x86asm.IntelSyntax(inst, base, nil); err == nil {
		out.FullText = text
	} else {
		out.FullText = fmt.Sprintf("%s %s", out.Mnemonic, out.Operands)
	}

	if isBranch {
		if target, ok := branchTarget(inst, base); ok {
			out.BranchTarget = target
			out.HasTarget = true
		}
	}

	return out
}

func operandsString(inst x86asm.Inst) string {
	s := ""
	for i, a := range inst.Args {
		if a == nil {
			break
		}
		if i > 0 {
			s += ", "
		}
		s += a.String()
	}
	return s
}

// memoryRoles reports whether the instruction touches memory for reading
// and/or writing. Heuristic: x86asm lists the destination operand first;
// a Mem operand there means a write (the common RMW exception, e.g. string
// ops, is not distinguished further — callers only use this to decide
// whether an address is worth tracking).
func memoryRoles(inst x86asm.Inst) (reads, writes bool) {
	for i, a := range inst.Args {
		mem, ok := a.(x86asm.Mem)
		if !ok {
			continue
		}
		_ = mem
		if i == 0 {
			writes = true
		} else {
			reads = true
		}
	}
	return reads, writes
}

func branchClass(inst x86asm.Inst) (isBranch, isConditional bool) {
	switch inst.Op {
	case x86asm.JMP, x86asm.CALL:
		return true, false
	case x86asm.JA, x86asm.JAE, x86asm.JB, x86asm.JBE, x86asm.JCXZ, x86asm.JECXZ,
		x86asm.JRCXZ, x86asm.JE, x86asm.JG, x86asm.JGE, x86asm.JL, x86asm.JLE,
		x86asm.JNE, x86asm.JNO, x86asm.JNP, x86asm.JNS, x86asm.JO, x86asm.JP, x86asm.JS:
		return true, true
	default:
		return false, false
	}
}

func branchTarget(inst x86asm.Inst, base uint64) (uint64, bool) {
	for _, a := range inst.Args {
		if a == nil {
			continue
		}
		if rel, ok := a.(x86asm.Rel); ok {
			return uint64(int64(base) + int64(inst.Len) + int64(rel)), true
		}
	}
	return 0, false
}

// NopBytes returns a length-byte sled of 0x90 (NOP) instructions.
func NopBytes(length int) []byte {
	sled := make([]byte, length)
	for i := range sled {
		sled[i] = 0x90
	}
	return sled
}

// WildcardAOB decodes one instruction at base and returns its raw bytes
// plus a mask that is 0xFF everywhere except positions covered by a
// RIP-relative displacement or a branch/call's relative immediate — those
// are zeroed so the pattern matches the same instruction at any base
// address.
func WildcardAOB(src []byte, base uint64) (pattern, mask []byte, ok bool) {
	inst, err := x86asm.Decode(src, 64)
	if err != nil || inst.Len == 0 {
		return nil, nil, false
	}

	n := inst.Len
	pattern = make([]byte, n)
	copy(pattern, src[:n])
	mask = make([]byte, n)
	for i := range mask {
		mask[i] = 0xFF
	}

	if inst.PCRelOff > 0 && inst.PCRelOff < n {
		width := relWidth(inst)
		for i := inst.PCRelOff; i < inst.PCRelOff+width && i < n; i++ {
			mask[i] = 0x00
		}
	}

	return pattern, mask, true
}

// relWidth returns the width in bytes of the instruction's PC-relative
// field, derived from the argument that carries it.
func relWidth(inst x86asm.Inst) int {
	for _, a := range inst.Args {
		if a == nil {
			continue
		}
		if mem, ok := a.(x86asm.Mem); ok && mem.Base == x86asm.RIP {
			return 4 // displacement is always 4 bytes for RIP-relative addressing
		}
		if _, ok := a.(x86asm.Rel); ok {
			return inst.Len - inst.PCRelOff
		}
	}
	return inst.Len - inst.PCRelOff
}

// IsConditionalJumpOpcode reports whether the leading bytes of data encode
// a Jcc (conditional jump) instruction, per the structural rule: opcode
// 0x70..0x7F (short form) or the pair 0x0F 0x80..0x8F (near form). This is
// a byte-pattern check, not a full decode — Intel defines each adjacent
// opcode pair as a logical negation of the other, which is all invert
// needs.
func IsConditionalJumpOpcode(data []byte) (conditionByteOffset int, ok bool) {
	if len(data) >= 1 && data[0] >= 0x70 && data[0] <= 0x7F {
		return 0, true
	}
	if len(data) >= 2 && data[0] == 0x0F && data[1] >= 0x80 && data[1] <= 0x8F {
		return 1, true
	}
	return 0, false
}

// InvertConditionByte flips bit 0 of the Jcc condition byte, turning the
// jump into its logical negation (e.g. JZ <-> JNZ).
func InvertConditionByte(b byte) byte {
	return b ^ 0x01
}
