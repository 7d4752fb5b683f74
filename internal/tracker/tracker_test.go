package tracker

import "testing"

func TestStateString(t *testing.T) {
	cases := map[State]string{
		Idle:      "idle",
		Attaching: "attaching",
		Arming:    "arming",
		Tracing:   "tracing",
		Detaching: "detaching",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}

func TestNewTrackerStartsIdle(t *testing.T) {
	tr := New(0)
	if tr.State() != Idle {
		t.Errorf("new tracker state = %v, want Idle", tr.State())
	}
	if tr.Attached() {
		t.Error("new tracker should not report attached")
	}
}

func TestStopOnIdleTrackerIsNoop(t *testing.T) {
	tr := New(0)
	tr.Stop() // must not block or panic when nothing is running
	if tr.State() != Idle {
		t.Errorf("state after Stop on idle tracker = %v, want Idle", tr.State())
	}
}

func TestWriteMemoryWhileIdleReturnsDetached(t *testing.T) {
	tr := New(0)
	err := tr.WriteMemory(0x1000, []byte{0x90})
	if err == nil {
		t.Fatal("expected an error writing memory with no active tracking session")
	}
}

func TestRecordsEmptyInitially(t *testing.T) {
	tr := New(0)
	if len(tr.Records()) != 0 {
		t.Error("expected no records on a fresh tracker")
	}
}
