package process

import (
	"os"
	"testing"
)

type recordingObserver struct {
	attached, detached []int
}

func (r *recordingObserver) OnAttach(pid int) { r.attached = append(r.attached, pid) }
func (r *recordingObserver) OnDetach(pid int) { r.detached = append(r.detached, pid) }

func TestNewHandleStartsDetached(t *testing.T) {
	h := New()
	if h.Attached() {
		t.Error("fresh handle should not be attached")
	}
	if h.PID() != 0 {
		t.Errorf("PID() = %d, want 0", h.PID())
	}
}

func TestAttachToSelfNotifiesObservers(t *testing.T) {
	h := New()
	obs := &recordingObserver{}
	h.Subscribe(obs)

	pid := os.Getpid()
	if err := h.Attach(pid); err != nil {
		t.Fatalf("Attach(self): %v", err)
	}
	if !h.Attached() || h.PID() != pid {
		t.Errorf("PID() = %d, want %d", h.PID(), pid)
	}
	if len(obs.attached) != 1 || obs.attached[0] != pid {
		t.Errorf("observer did not see OnAttach: %v", obs.attached)
	}

	h.Detach()
	if h.Attached() {
		t.Error("expected detached after Detach")
	}
	if len(obs.detached) != 1 || obs.detached[0] != pid {
		t.Errorf("observer did not see OnDetach: %v", obs.detached)
	}
}

func TestAttachToNonexistentPIDFails(t *testing.T) {
	h := New()
	if err := h.Attach(-1); err == nil {
		t.Fatal("expected Attach to a nonexistent PID to fail")
	}
	if h.Attached() {
		t.Error("handle should remain detached after a failed Attach")
	}
}

func TestDetachWithoutAttachIsNoop(t *testing.T) {
	h := New()
	obs := &recordingObserver{}
	h.Subscribe(obs)
	h.Detach()
	if len(obs.detached) != 0 {
		t.Error("Detach on an already-detached handle should not notify observers")
	}
}
