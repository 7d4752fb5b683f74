package main

import (
	"time"

	"github.com/chanomhub/hexscan/internal/config"
	"github.com/chanomhub/hexscan/internal/memio"
	"github.com/chanomhub/hexscan/internal/patch"
	"github.com/chanomhub/hexscan/internal/process"
	"github.com/chanomhub/hexscan/internal/regionmap"
	"github.com/chanomhub/hexscan/internal/scanner"
	"github.com/chanomhub/hexscan/internal/tracker"
)

// Session bundles one CLI invocation's (or one shell instance's) view of
// the memory engine: a process handle, the shared region map, and the
// components that depend on the currently-attached PID.
type Session struct {
	cfg     config.Config
	proc    *process.Handle
	regions *regionmap.Map
	track   *tracker.Tracker
	patches *patch.Manager
	scan    *scanner.Scanner
	mem     *memio.IO

	targetPID     int
	lastValueType scanner.ValueType

	Verbose bool
	Quiet   bool
}

// PID returns the PID this session is currently bound to, or 0 before
// attachPID has been called.
func (s *Session) PID() int { return s.targetPID }

// NewSession wires up a fresh, detached session using cfg for defaults.
func NewSession(cfg config.Config) *Session {
	proc := process.New()
	regions := regionmap.New()
	track := tracker.New(time.Duration(cfg.WriteTimeoutMS) * time.Millisecond)

	s := &Session{cfg: cfg, proc: proc, regions: regions, track: track}
	return s
}

// attachPID wires the PID-dependent components once a target is selected.
func (s *Session) attachPID(pid int) {
	s.targetPID = pid
	_ = s.proc.Attach(pid)
	s.mem = memio.New(pid, s.track)
	s.patches = patch.New(s.mem, s.mem)
	s.scan = scanner.New(pid, s.mem, s.regions, s.proc)
	s.scan.SetSuspendWhileScanning(s.cfg.SuspendWhileScanning)
	s.scan.SetFastScanOffset(s.cfg.DefaultStride)
	s.scan.SetMaxRegionBytes(s.cfg.MaxRegionBytes)
}
