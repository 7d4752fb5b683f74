// Package patch implements PatchManager: a process-wide registry of
// byte-level code patches (NOP sleds, inverted conditional jumps), applied
// and restored through the write_code path so they respect the
// exclusive-ptrace-owner constraint.
package patch

import (
	"sync"

	"github.com/chanomhub/hexscan/internal/disasm"
	"github.com/chanomhub/hexscan/internal/engine"
)

// CodeWriter is the write_code boundary a Patch is installed through.
type CodeWriter interface {
	WriteCode(src []byte, dstVA uint64) error
}

// Reader reads plain (non-code) target memory, used to capture the
// original bytes before a patch overwrites them.
type Reader interface {
	Read(dst []byte, srcVA uint64) bool
}

// Patch is one installed (or previously installed) code rewrite.
type Patch struct {
	Address     uint64
	Original    []byte
	Patched     []byte
	Description string
	Active      bool
}

// Manager is the single process-wide patch registry, guarded by one mutex.
type Manager struct {
	mu       sync.Mutex
	mem      CodeWriter
	reader   Reader
	registry map[uint64]*Patch
}

// New returns an empty registry bound to the given memory transports.
func New(mem CodeWriter, reader Reader) *Manager {
	return &Manager{mem: mem, reader: reader, registry: make(map[uint64]*Patch)}
}

// NOP refuses if an active patch already exists at address; otherwise it
// saves the original length bytes, writes a length-byte 0x90 sled through
// write_code, and records the patch as active.
func (m *Manager) NOP(address uint64, length int, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.registry[address]; ok && existing.Active {
		return engine.PatchConflict(address)
	}

	original := make([]byte, length)
	if !m.reader.Read(original, address) {
		return engine.New(engine.KindTransportFailure, "could not read %d original bytes at 0x%x", length, address)
	}

	patched := disasm.NopBytes(length)
	if err := m.mem.WriteCode(patched, address); err != nil {
		return err
	}

	m.registry[address] = &Patch{
		Address: address, Original: original, Patched: patched,
		Description: description, Active: true,
	}
	return nil
}

// InvertCondJump verifies the bytes at address denote a Jcc, flips the
// condition bit (byte 0 for the short form, byte 1 for the near 0F 8x
// form), and writes the result through write_code.
func (m *Manager) InvertCondJump(address uint64, length int, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.registry[address]; ok && existing.Active {
		return engine.PatchConflict(address)
	}

	original := make([]byte, length)
	if !m.reader.Read(original, address) {
		return engine.New(engine.KindTransportFailure, "could not read %d original bytes at 0x%x", length, address)
	}

	offset, ok := disasm.IsConditionalJumpOpcode(original)
	if !ok {
		return engine.ParseError("invert_cond_jump", "bytes at the given address are not a conditional jump")
	}

	patched := append([]byte(nil), original...)
	patched[offset] = disasm.InvertConditionByte(patched[offset])

	if err := m.mem.WriteCode(patched, address); err != nil {
		return err
	}

	m.registry[address] = &Patch{
		Address: address, Original: original, Patched: patched,
		Description: description, Active: true,
	}
	return nil
}

// Restore writes the saved original bytes back and marks the entry
// inactive. Idempotent: repeated calls after the first are no-ops.
func (m *Manager) Restore(address uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.registry[address]
	if !ok || !p.Active {
		return nil
	}
	if err := m.mem.WriteCode(p.Original, address); err != nil {
		return err
	}
	p.Active = false
	return nil
}

// Patches returns every entry in the registry (active and restored),
// keyed by address, for listing.
func (m *Manager) Patches() []Patch {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Patch, 0, len(m.registry))
	for _, p := range m.registry {
		out = append(out, *p)
	}
	return out
}

// IsPatched reports whether address currently has an active patch.
func (m *Manager) IsPatched(address uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.registry[address]
	return ok && p.Active
}
