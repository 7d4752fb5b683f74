// Package memio implements MemoryIO: reading and writing target virtual
// memory through /proc/<pid>/mem, with process_vm_readv/writev fallbacks,
// plus the ptrace-word-poke path required for read-only code pages.
package memio

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/chanomhub/hexscan/internal/engine"
)

// CodeWriter is implemented by the access tracker: when attached, it is the
// only path allowed to touch target memory, so MemoryIO.WriteCode forwards
// through it instead of attaching a second time.
type CodeWriter interface {
	Attached() bool
	WriteMemory(addr uint64, data []byte) error
}

// IO performs reads/writes against one target PID.
type IO struct {
	pid    int
	tracer CodeWriter // may be nil if no tracker is ever attached
}

// New returns an IO bound to pid. tracer may be nil.
func New(pid int, tracer CodeWriter) *IO {
	return &IO{pid: pid, tracer: tracer}
}

// Read fills dst with len(dst) bytes from srcVA. Returns false (not an
// error) on a partial transfer, matching the boundary contract: callers
// decide whether to retry or move on.
func (io *IO) Read(dst []byte, srcVA uint64) bool {
	if n, err := io.pread(dst, srcVA); err == nil && n == len(dst) {
		return true
	}
	n, err := io.processVMReadv(dst, srcVA)
	return err == nil && n == len(dst)
}

// Write pushes len(src) bytes to dstVA. Returns false on partial transfer.
func (io *IO) Write(src []byte, dstVA uint64) bool {
	if n, err := io.pwrite(src, dstVA); err == nil && n == len(src) {
		return true
	}
	n, err := io.processVMWritev(src, dstVA)
	return err == nil && n == len(src)
}

// WriteCode writes into what may be a read-only, executable page. If a
// tracker currently holds the ptrace attachment, the write is forwarded to
// it; otherwise IO attaches, POKETEXTs word by word (reading back the tail
// word first so a partial final word doesn't clobber neighbouring bytes),
// and detaches.
func (io *IO) WriteCode(src []byte, dstVA uint64) error {
	if io.tracer != nil && io.tracer.Attached() {
		return io.tracer.WriteMemory(dstVA, src)
	}

	if err := unix.PtraceAttach(io.pid); err != nil {
		return engine.Permission("PTRACE_ATTACH")
	}
	var ws unix.WaitStatus
	if _, err := unix.Wait4(io.pid, &ws, 0, nil); err != nil {
		unix.PtraceDetach(io.pid)
		return engine.New(engine.KindTransportFailure, "wait4: %v", err)
	}
	defer unix.PtraceDetach(io.pid)

	return pokeWords(io.pid, dstVA, src)
}

const wordSize = 8

// pokeWords writes data to addr in machine-word chunks, PEEKTEXT-ing the
// trailing partial word first so bytes past len(data) are preserved.
func pokeWords(pid int, addr uint64, data []byte) error {
	i := 0
	for i < len(data) {
		wordAddr := addr + uint64(i)
		remaining := len(data) - i
		if remaining >= wordSize {
			var word [wordSize]byte
			copy(word[:], data[i:i+wordSize])
			if err := ptracePokeText(pid, wordAddr, word); err != nil {
				return err
			}
			i += wordSize
			continue
		}

		existing, err := ptracePeekText(pid, wordAddr)
		if err != nil {
			return err
		}
		copy(existing[:remaining], data[i:])
		if err := ptracePokeText(pid, wordAddr, existing); err != nil {
			return err
		}
		i += remaining
	}
	return nil
}

func ptracePeekText(pid int, addr uint64) ([wordSize]byte, error) {
	var buf [wordSize]byte
	if _, err := unix.PtracePeekText(pid, uintptr(addr), buf[:]); err != nil {
		return buf, engine.New(engine.KindTransportFailure, "PTRACE_PEEKTEXT: %v", err)
	}
	return buf, nil
}

func ptracePokeText(pid int, addr uint64, word [wordSize]byte) error {
	if _, err := unix.PtracePokeText(pid, uintptr(addr), word[:]); err != nil {
		return engine.New(engine.KindTransportFailure, "PTRACE_POKETEXT: %v", err)
	}
	return nil
}

func (io *IO) pread(dst []byte, srcVA uint64) (int, error) {
	f, err := os.OpenFile(fmt.Sprintf("/proc/%d/mem", io.pid), os.O_RDONLY, 0)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return f.ReadAt(dst, int64(srcVA))
}

func (io *IO) pwrite(src []byte, dstVA uint64) (int, error) {
	f, err := os.OpenFile(fmt.Sprintf("/proc/%d/mem", io.pid), os.O_WRONLY, 0)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return f.WriteAt(src, int64(dstVA))
}

func (io *IO) processVMReadv(dst []byte, srcVA uint64) (int, error) {
	local := []unix.Iovec{{Base: &dst[0], Len: uint64(len(dst))}}
	remote := []unix.RemoteIovec{{Base: uintptr(srcVA), Len: len(dst)}}
	return unix.ProcessVMReadv(io.pid, local, remote, 0)
}

func (io *IO) processVMWritev(src []byte, dstVA uint64) (int, error) {
	local := []unix.Iovec{{Base: &src[0], Len: uint64(len(src))}}
	remote := []unix.RemoteIovec{{Base: uintptr(dstVA), Len: len(src)}}
	return unix.ProcessVMWritev(io.pid, local, remote, 0)
}
