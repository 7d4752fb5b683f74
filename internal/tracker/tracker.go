// Package tracker implements AccessTracker: the dedicated ptrace-tracer
// thread that arms one hardware data breakpoint, records every instruction
// that trips it, and multiplexes incoming code-write requests from other
// goroutines while it holds the exclusive ptrace attachment.
//
// Linux permits exactly one tracer per task, and PTRACE_POKEUSER (needed to
// write DR0-DR7) must be issued from the same OS thread that attached. The
// tracker therefore runs its whole session on one goroutine pinned with
// runtime.LockOSThread, and every other caller talks to it through request
// channels instead of touching ptrace directly.
package tracker

import (
	"fmt"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/chanomhub/hexscan/internal/engine"
	"github.com/chanomhub/hexscan/internal/hwbreak"
)

// Linux ptrace request numbers for the user-area peek/poke, stable kernel
// ABI values not exposed as named wrappers by golang.org/x/sys/unix.
const (
	ptracePeekUser = 3
	ptracePokeUser = 6
)

// State is the tracker thread's position in its lifecycle.
type State int

const (
	Idle State = iota
	Attaching
	Arming
	Tracing
	Detaching
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Attaching:
		return "attaching"
	case Arming:
		return "arming"
	case Tracing:
		return "tracing"
	case Detaching:
		return "detaching"
	default:
		return "unknown"
	}
}

const debugRegOffset = 848 // offsetof(struct user, u_debugreg) on x86-64 Linux

type writeRequest struct {
	addr uint64
	data []byte
	done chan error
}

// Tracker runs one tracking session against one target PID at a time.
type Tracker struct {
	mu      sync.Mutex
	state   State
	pid     int
	slots   *hwbreak.Table
	records *recordMap

	attached  int32 // atomic bool, readable without the tracker-thread lock
	writeCh   chan writeRequest
	stopCh    chan struct{}
	doneCh    chan struct{}
	writeTimeout time.Duration
}

// New returns an idle tracker. writeTimeout bounds how long WriteMemory
// blocks waiting for the tracer thread to service a forwarded write.
func New(writeTimeout time.Duration) *Tracker {
	if writeTimeout <= 0 {
		writeTimeout = 2 * time.Second
	}
	return &Tracker{
		slots:        hwbreak.NewTable(),
		records:      newRecordMap(16),
		writeTimeout: writeTimeout,
	}
}

// State returns the tracker's current lifecycle state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Attached reports whether a tracking session currently holds the ptrace
// attachment. Safe to call from any goroutine without the tracker lock.
func (t *Tracker) Attached() bool {
	return atomic.LoadInt32(&t.attached) != 0
}

// Start arms a hardware breakpoint on addr for the given pid and begins
// the tracer thread's trap loop. Returns once the breakpoint is armed (or
// an error occurs getting there); tracing continues on a background
// goroutine until Stop is called or the target exits.
func (t *Tracker) Start(pid int, addr uint64, cond hwbreak.Condition, size hwbreak.Size) error {
	t.mu.Lock()
	if t.state != Idle {
		t.mu.Unlock()
		return engine.Busy("access tracking")
	}
	if !t.slots.HasAvailableSlot() {
		t.mu.Unlock()
		return engine.SlotExhausted()
	}
	t.pid = pid
	t.state = Attaching
	t.writeCh = make(chan writeRequest)
	t.stopCh = make(chan struct{})
	t.doneCh = make(chan struct{})
	t.mu.Unlock()

	armed := make(chan error, 1)
	go t.run(addr, cond, size, armed)
	return <-armed
}

// Stop requests the tracer thread shut down: it sends SIGSTOP to the
// target to break the thread out of waitpid, waits for it to clear the
// debug registers and detach, and returns to Idle.
func (t *Tracker) Stop() {
	t.mu.Lock()
	if t.state == Idle {
		t.mu.Unlock()
		return
	}
	stopCh := t.stopCh
	doneCh := t.doneCh
	pid := t.pid
	t.mu.Unlock()

	close(stopCh)
	_ = unix.Kill(pid, unix.SIGSTOP)
	<-doneCh
}

// WriteMemory is the single sanctioned path to modify target code while
// tracking is active: it posts a request to the tracer thread and blocks
// until POKETEXT completes or writeTimeout elapses.
func (t *Tracker) WriteMemory(addr uint64, data []byte) error {
	t.mu.Lock()
	if t.state == Idle {
		t.mu.Unlock()
		return engine.Detached()
	}
	ch := t.writeCh
	t.mu.Unlock()

	req := writeRequest{addr: addr, data: data, done: make(chan error, 1)}
	select {
	case ch <- req:
	case <-time.After(t.writeTimeout):
		return engine.New(engine.KindTransportFailure, "write-code request timed out")
	}

	select {
	case err := <-req.done:
		return err
	case <-time.After(t.writeTimeout):
		return engine.New(engine.KindTransportFailure, "write-code request timed out")
	}
}

// Records returns every observed AccessRecord, sorted descending by count.
func (t *Tracker) Records() []AccessRecord {
	t.mu.Lock()
	raw := t.records.values()
	t.mu.Unlock()

	out := make([]AccessRecord, len(raw))
	for i, r := range raw {
		out[i] = *r
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

// ClearRecords empties the record map without stopping a session.
func (t *Tracker) ClearRecords() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records.clear()
}

func (t *Tracker) setState(s State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

// run is the tracer thread body: attach, arm, loop on waitpid, detach.
// Pinned to one OS thread because PTRACE_* is thread-affine in the kernel.
func (t *Tracker) run(addr uint64, cond hwbreak.Condition, size hwbreak.Size, armed chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(t.doneCh)

	pid := t.pid

	if err := unix.PtraceAttach(pid); err != nil {
		t.setState(Idle)
		armed <- engine.Permission("PTRACE_ATTACH")
		return
	}
	atomic.StoreInt32(&t.attached, 1)

	var ws unix.WaitStatus
	if _, err := unix.Wait4(pid, &ws, 0, nil); err != nil {
		unix.PtraceDetach(pid)
		atomic.StoreInt32(&t.attached, 0)
		t.setState(Idle)
		armed <- engine.New(engine.KindTransportFailure, "wait4: %v", err)
		return
	}

	t.setState(Arming)
	slotIdx, ok := t.slots.Allocate(addr, cond, size)
	if !ok {
		unix.PtraceDetach(pid)
		atomic.StoreInt32(&t.attached, 0)
		t.setState(Idle)
		armed <- engine.SlotExhausted()
		return
	}

	if err := pokeDebugReg(pid, slotIdx, addr); err != nil {
		t.teardown(pid, slotIdx)
		armed <- err
		return
	}
	if err := pokeDR7(pid, t.slots.EncodeDR7()); err != nil {
		t.teardown(pid, slotIdx)
		armed <- err
		return
	}

	t.setState(Tracing)
	armed <- nil

	if err := unix.PtraceCont(pid, 0); err != nil {
		t.teardown(pid, slotIdx)
		return
	}

	t.loop(pid, slotIdx)
}

func (t *Tracker) loop(pid, slotIdx int) {
	for {
		select {
		case <-t.stopCh:
			t.teardown(pid, slotIdx)
			return
		case req := <-t.writeCh:
			req.done <- pokeCode(pid, req.addr, req.data)
			continue
		default:
		}

		var ws unix.WaitStatus
		wpid, err := unix.Wait4(pid, &ws, unix.WNOHANG, nil)
		if err != nil {
			t.teardown(pid, slotIdx)
			return
		}
		if wpid == 0 {
			// Nothing ready yet; service one more pending write request
			// (if any) before re-polling, so forwarded writes don't starve.
			select {
			case req := <-t.writeCh:
				req.done <- pokeCode(pid, req.addr, req.data)
			case <-t.stopCh:
				t.teardown(pid, slotIdx)
				return
			case <-time.After(time.Millisecond):
			}
			continue
		}

		switch {
		case ws.Exited() || ws.Signaled():
			t.finish(slotIdx)
			return
		case ws.StopSignal() == unix.SIGTRAP:
			t.onTrap(pid)
			_ = unix.PtraceCont(pid, 0)
		case ws.StopSignal() == unix.SIGSTOP:
			t.teardown(pid, slotIdx)
			return
		default:
			_ = unix.PtraceCont(pid, int(ws.StopSignal()))
		}
	}
}

func (t *Tracker) onTrap(pid int) {
	var regs unix.PtraceRegs
	if err := unix.PtraceGetRegs(pid, &regs); err != nil {
		return
	}
	rip := regs.Rip

	var bytes [16]byte
	for i := 0; i < 16; i += 8 {
		word, err := peekData(pid, rip+uint64(i))
		if err != nil {
			break
		}
		for j := 0; j < 8 && i+j < 16; j++ {
			bytes[i+j] = byte(word >> (8 * j))
		}
	}

	t.mu.Lock()
	t.records.upsert(rip, bytes, false)
	t.mu.Unlock()

	_ = pokeDR6(pid, 0)
}

// finish handles the target exiting while still attached: debug registers
// die with the process, nothing further to clean up on our side.
func (t *Tracker) finish(slotIdx int) {
	t.slots.Clear(slotIdx)
	atomic.StoreInt32(&t.attached, 0)
	t.setState(Idle)
}

func (t *Tracker) teardown(pid, slotIdx int) {
	t.setState(Detaching)
	t.slots.Clear(slotIdx)
	_ = pokeDR7(pid, t.slots.EncodeDR7())
	_ = pokeDebugReg(pid, slotIdx, 0)
	unix.PtraceDetach(pid)
	atomic.StoreInt32(&t.attached, 0)
	t.setState(Idle)
}

func peekData(pid int, addr uint64) (uint64, error) {
	var buf [8]byte
	if _, err := unix.PtracePeekData(pid, uintptr(addr), buf[:]); err != nil {
		return 0, err
	}
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(buf[i]) << (8 * i)
	}
	return v, nil
}

func pokeCode(pid int, addr uint64, data []byte) error {
	for i := 0; i < len(data); i += 8 {
		end := i + 8
		chunk := make([]byte, 8)
		if end > len(data) {
			existing, err := peekData(pid, addr+uint64(i))
			if err != nil {
				return engine.New(engine.KindTransportFailure, "PTRACE_PEEKTEXT: %v", err)
			}
			for j := 0; j < 8; j++ {
				chunk[j] = byte(existing >> (8 * j))
			}
			copy(chunk, data[i:])
		} else {
			copy(chunk, data[i:end])
		}
		if _, err := unix.PtracePokeText(pid, uintptr(addr+uint64(i)), chunk); err != nil {
			return engine.New(engine.KindTransportFailure, "PTRACE_POKETEXT: %v", err)
		}
	}
	return nil
}

func pokeDebugReg(pid, n int, value uint64) error {
	return pokeUser(pid, debugRegOffset+n*8, value)
}

func pokeDR6(pid int, value uint64) error { return pokeUser(pid, debugRegOffset+6*8, value) }
func pokeDR7(pid int, value uint64) error { return pokeUser(pid, debugRegOffset+7*8, value) }

func pokeUser(pid, offset int, value uint64) error {
	_, _, errno := syscall.Syscall6(syscall.SYS_PTRACE, uintptr(ptracePokeUser),
		uintptr(pid), uintptr(offset), uintptr(value), 0, 0)
	if errno != 0 {
		return engine.New(engine.KindTransportFailure, fmt.Sprintf("PTRACE_POKEUSER(%d): %v", offset, errno))
	}
	return nil
}

func peekUser(pid, offset int) (uint64, error) {
	var value uint64
	_, _, errno := syscall.Syscall6(syscall.SYS_PTRACE, uintptr(ptracePeekUser),
		uintptr(pid), uintptr(offset), uintptr(unsafe.Pointer(&value)), 0, 0)
	if errno != 0 {
		return 0, engine.New(engine.KindTransportFailure, fmt.Sprintf("PTRACE_PEEKUSER(%d): %v", offset, errno))
	}
	return value, nil
}
