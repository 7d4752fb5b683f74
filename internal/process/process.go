// Package process owns the lifecycle of the single target process a
// hexscan session is attached to: the PID, suspend/resume signalling, and
// the base address of its main executable mapping.
package process

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/chanomhub/hexscan/internal/engine"
)

// Observer is notified of attach/detach transitions.
type Observer interface {
	OnAttach(pid int)
	OnDetach(pid int)
}

// Handle owns the target PID and its coarse lifecycle controls. All
// operations are no-ops when detached, matching the source's "sentinel PID"
// convention rather than returning an error for every call site.
type Handle struct {
	mu          sync.Mutex
	pid         int // 0 means detached
	baseAddress uint64
	observers   []Observer
}

// New returns a detached handle.
func New() *Handle {
	return &Handle{}
}

// Attach selects pid as the target. It does not itself call ptrace — that
// is the tracer's job — it only records the PID and resolves the base
// address of the main binary's first executable mapping.
func (h *Handle) Attach(pid int) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, err := os.Stat(fmt.Sprintf("/proc/%d", pid)); err != nil {
		return engine.New(engine.KindDetached, "no such process: %d", pid)
	}

	if os.Geteuid() != 0 {
		fmt.Fprintf(os.Stderr, "warning: not running as root; ptrace operations on %d may fail with EPERM\n", pid)
	}

	base, err := resolveBaseAddress(pid)
	if err != nil {
		return err
	}

	h.pid = pid
	h.baseAddress = base
	for _, obs := range h.observers {
		obs.OnAttach(pid)
	}
	return nil
}

// Detach clears the selected PID. A no-op if already detached.
func (h *Handle) Detach() {
	h.mu.Lock()
	pid := h.pid
	h.pid = 0
	h.baseAddress = 0
	h.mu.Unlock()

	if pid != 0 {
		for _, obs := range h.observers {
			obs.OnDetach(pid)
		}
	}
}

// Subscribe registers an observer for attach/detach events.
func (h *Handle) Subscribe(obs Observer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.observers = append(h.observers, obs)
}

// PID returns the current target, or 0 if detached.
func (h *Handle) PID() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pid
}

// Attached reports whether a target is currently selected.
func (h *Handle) Attached() bool {
	return h.PID() != 0
}

// BaseAddress returns the load address of the main binary's first
// executable mapping, or 0 when detached.
func (h *Handle) BaseAddress() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.baseAddress
}

// Suspend stops the target with SIGSTOP. No-op when detached.
func (h *Handle) Suspend() error {
	pid := h.PID()
	if pid == 0 {
		return nil
	}
	return syscall.Kill(pid, syscall.SIGSTOP)
}

// Resume continues the target with SIGCONT. No-op when detached.
func (h *Handle) Resume() error {
	pid := h.PID()
	if pid == 0 {
		return nil
	}
	return syscall.Kill(pid, syscall.SIGCONT)
}

// resolveBaseAddress scans /proc/<pid>/maps for the first mapping whose
// pathname names a real file and whose permissions include execute; that
// mapping's start address is the process's load base.
func resolveBaseAddress(pid int) (uint64, error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/maps", pid))
	if err != nil {
		return 0, engine.New(engine.KindTransportFailure, "open maps: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		fields := strings.Fields(line)
		if len(fields) < 6 {
			continue
		}
		perms := fields[1]
		path := fields[5]
		if !strings.Contains(perms, "x") {
			continue
		}
		if strings.HasPrefix(path, "[") {
			continue
		}
		rangeParts := strings.SplitN(fields[0], "-", 2)
		if len(rangeParts) != 2 {
			continue
		}
		start, err := strconv.ParseUint(rangeParts[0], 16, 64)
		if err != nil {
			continue
		}
		return start, nil
	}
	return 0, nil
}
