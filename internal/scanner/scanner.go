// Package scanner implements the Scanner component: incremental value
// search and narrowing across a target process's mapped memory.
package scanner

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/chanomhub/hexscan/internal/engine"
	"github.com/chanomhub/hexscan/internal/regionmap"
)

// MemReader is the subset of MemoryIO a scan pass needs.
type MemReader interface {
	Read(dst []byte, srcVA uint64) bool
}

// RegionParser is the subset of RegionMap a scan pass needs.
type RegionParser interface {
	Parse(pid int) ([]regionmap.Region, error)
}

// Suspender is the subset of ProcessHandle needed for the suspend policy.
type Suspender interface {
	Suspend() error
	Resume() error
}

// state is the ScanState pair swapped atomically at the end of each pass.
type state struct {
	addresses []uint64
	snapshot  []byte // packed, width(valueType) bytes per address
}

// Scanner owns one ScanState and the predicate/operand selection that
// drives the next pass.
type Scanner struct {
	pid    int
	mem    MemReader
	region RegionParser
	proc   Suspender

	mu    sync.Mutex
	st    state
	hasBaseline bool

	valueType ValueType
	kind      Kind
	operand0  []byte
	operand1  []byte
	mask      []byte

	fastScanOffset int
	maxRegionBytes int
	suspendWhileScanning bool
	liveScan  bool
	autonext  bool

	total    int64
	progress int64
	running  int32
	cancel   int32

	stopLive chan struct{}
}

// New returns a Scanner bound to pid, reading through mem and enumerating
// regions through region. proc may be nil if suspend-while-scanning is
// never enabled.
func New(pid int, mem MemReader, region RegionParser, proc Suspender) *Scanner {
	return &Scanner{pid: pid, mem: mem, region: region, proc: proc}
}

// SetFastScanOffset widens the scan stride beyond width(ValueType); the
// effective stride is max(width, n).
func (s *Scanner) SetFastScanOffset(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fastScanOffset = n
}

// SetMaxRegionBytes caps how many bytes of a single region are read into the
// reusable scan buffer per bulk read. n <= 0 means no cap (read each region
// whole, however large).
func (s *Scanner) SetMaxRegionBytes(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxRegionBytes = n
}

// SetSuspendWhileScanning toggles the per-scanner suspend policy.
func (s *Scanner) SetSuspendWhileScanning(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suspendWhileScanning = v
}

// SetLiveScan toggles live scanning. Together with SetAutonext it makes
// every completed pass queue another NextScan after 200ms.
func (s *Scanner) SetLiveScan(v bool) {
	s.mu.Lock()
	s.liveScan = v
	s.mu.Unlock()
}

// SetAutonext toggles whether a live scan automatically re-queues itself.
func (s *Scanner) SetAutonext(v bool) {
	s.mu.Lock()
	s.autonext = v
	s.mu.Unlock()
}

// SetPredicate selects the kind, ValueType, and operands for the next pass.
// For byteArray, operand0/mask come from ParseAOB; operand1 is unused
// except for Range.
func (s *Scanner) SetPredicate(kind Kind, vt ValueType, operand0, operand1, mask []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kind = kind
	s.valueType = vt
	s.operand0 = operand0
	s.operand1 = operand1
	s.mask = mask
}

// Total returns the number of addresses the in-flight (or most recent)
// pass expects to examine.
func (s *Scanner) Total() int64 { return atomic.LoadInt64(&s.total) }

// Progress returns how many addresses have been examined so far.
func (s *Scanner) Progress() int64 { return atomic.LoadInt64(&s.progress) }

// Running reports whether a pass is currently in flight.
func (s *Scanner) Running() bool { return atomic.LoadInt32(&s.running) != 0 }

// Addresses returns a copy of the current hit list.
func (s *Scanner) Addresses() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uint64, len(s.st.addresses))
	copy(out, s.st.addresses)
	return out
}

// LatestValues returns a copy of the packed snapshot bytes.
func (s *Scanner) LatestValues() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, len(s.st.snapshot))
	copy(out, s.st.snapshot)
	return out
}

// CancelScan cooperatively aborts an in-flight pass; the worker checks
// between regions and exits without touching state.
func (s *Scanner) CancelScan() {
	atomic.StoreInt32(&s.cancel, 1)
}

// Reset clears all scan state back to the canonical reset state. A second
// call is a no-op.
func (s *Scanner) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st = state{}
	s.hasBaseline = false
	s.kind = Equal
	s.operand0, s.operand1, s.mask = nil, nil, nil
	atomic.StoreInt64(&s.total, 0)
	atomic.StoreInt64(&s.progress, 0)
	atomic.StoreInt32(&s.running, 0)
	atomic.StoreInt32(&s.cancel, 0)
}

func (s *Scanner) width() int {
	if s.valueType == TByteArray {
		return len(s.operand0)
	}
	if s.valueType == TString {
		return len(s.operand0)
	}
	return s.valueType.Width()
}

// regionReadLen is how many bytes of a size-byte region the scanner will
// bulk-read in one pread/process_vm_readv call, capped by maxRegion (<=0
// means no cap).
func regionReadLen(size uint64, maxRegion int) int {
	n := size
	if maxRegion > 0 && n > uint64(maxRegion) {
		n = uint64(maxRegion)
	}
	if n > uint64(^uint(0)>>1) {
		n = uint64(^uint(0) >> 1)
	}
	return int(n)
}

func (s *Scanner) stride() int {
	w := s.width()
	if s.valueType == TByteArray {
		return 1
	}
	if s.fastScanOffset > w {
		return s.fastScanOffset
	}
	return w
}

// NewScan launches a fresh pass over every region, discarding any prior
// hit list. Fails with Busy if a pass is already in flight.
func (s *Scanner) NewScan() error {
	s.mu.Lock()
	kind := s.kind
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		s.mu.Unlock()
		return engine.Busy("scan")
	}
	s.mu.Unlock()

	if kind.needsBaseline() {
		atomic.StoreInt32(&s.running, 0)
		return engine.NoBaseline()
	}

	go s.runNewScan()
	return nil
}

// NextScan narrows the previous hit list. Fails with Busy if a pass is
// already in flight, NoBaseline if there is no previous hit list.
func (s *Scanner) NextScan() error {
	s.mu.Lock()
	hasBaseline := s.hasBaseline
	kind := s.kind
	s.mu.Unlock()

	if !hasBaseline {
		return engine.NoBaseline()
	}
	_ = kind

	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return engine.Busy("scan")
	}

	go s.runNextScan()
	return nil
}

func (s *Scanner) withSuspension(fn func()) {
	s.mu.Lock()
	suspend := s.suspendWhileScanning && s.proc != nil
	s.mu.Unlock()

	if !suspend {
		fn()
		return
	}

	_ = s.proc.Suspend()
	defer s.proc.Resume()
	fn()
}

func (s *Scanner) runNewScan() {
	defer atomic.StoreInt32(&s.running, 0)

	s.withSuspension(func() {
		s.mu.Lock()
		kind, vt := s.kind, s.valueType
		operand0, operand1, mask := s.operand0, s.operand1, s.mask
		stride := s.stride()
		width := s.width()
		maxRegion := s.maxRegionBytes
		s.mu.Unlock()

		regions, err := s.region.Parse(s.pid)
		if err != nil || stride <= 0 {
			return
		}

		cmp := buildComparator(kind, vt)

		var total int64
		var bufCap int
		for _, r := range regions {
			n := regionReadLen(r.Size(), maxRegion)
			total += int64(n) / int64(stride)
			if n > bufCap {
				bufCap = n
			}
		}
		atomic.StoreInt64(&s.total, total)
		atomic.StoreInt64(&s.progress, 0)

		var newAddrs []uint64
		var newSnapshot []byte
		buf := make([]byte, bufCap)

		for _, r := range regions {
			if atomic.LoadInt32(&s.cancel) != 0 {
				atomic.StoreInt32(&s.cancel, 0)
				return
			}
			n := regionReadLen(r.Size(), maxRegion)
			if n < width {
				continue
			}
			rbuf := buf[:n]
			if !s.mem.Read(rbuf, r.Start) {
				atomic.AddInt64(&s.progress, int64(n)/int64(stride))
				continue
			}
			for off := 0; off+width <= n; off += stride {
				cur := rbuf[off : off+width]
				if cmp(vt, cur, nil, operand0, operand1, mask) {
					newAddrs = append(newAddrs, r.Start+uint64(off))
					newSnapshot = append(newSnapshot, cur...)
				}
				atomic.AddInt64(&s.progress, 1)
			}
		}

		s.mu.Lock()
		s.st = state{addresses: newAddrs, snapshot: newSnapshot}
		s.hasBaseline = true
		s.mu.Unlock()
	})

	s.maybeLiveNext()
}

func (s *Scanner) runNextScan() {
	defer atomic.StoreInt32(&s.running, 0)

	s.withSuspension(func() {
		s.mu.Lock()
		kind, vt := s.kind, s.valueType
		operand0, operand1, mask := s.operand0, s.operand1, s.mask
		width := s.width()
		maxRegion := s.maxRegionBytes
		prevAddrs := append([]uint64(nil), s.st.addresses...)
		prevSnapshot := append([]byte(nil), s.st.snapshot...)
		s.mu.Unlock()

		regions, err := s.region.Parse(s.pid)
		if err != nil {
			return
		}

		cmp := buildComparator(kind, vt)

		atomic.StoreInt64(&s.total, int64(len(prevAddrs)))
		atomic.StoreInt64(&s.progress, 0)

		var newAddrs []uint64
		var newSnapshot []byte

		// regionBuf holds the bulk read of whichever region the current
		// address falls in; re-read only when the cursor crosses into a
		// new region, so each region is read at most once per pass.
		var regionBuf []byte
		curRegion := -1
		var regionOK bool
		var regionBase uint64

		ri := 0
		for idx, va := range prevAddrs {
			for ri < len(regions) && va >= regions[ri].End {
				ri++
			}
			if ri >= len(regions) || va < regions[ri].Start || va+uint64(width) > regions[ri].End {
				atomic.AddInt64(&s.progress, 1)
				continue
			}
			if ri != curRegion {
				if atomic.LoadInt32(&s.cancel) != 0 {
					atomic.StoreInt32(&s.cancel, 0)
					return
				}
				curRegion = ri
				regionBase = regions[ri].Start
				n := regionReadLen(regions[ri].Size(), maxRegion)
				if cap(regionBuf) < n {
					regionBuf = make([]byte, n)
				} else {
					regionBuf = regionBuf[:n]
				}
				regionOK = n >= width && s.mem.Read(regionBuf, regionBase)
			}
			off := int(va - regionBase)
			if !regionOK || off+width > len(regionBuf) {
				atomic.AddInt64(&s.progress, 1)
				continue
			}
			cur := regionBuf[off : off+width]
			var prev []byte
			if (idx+1)*width <= len(prevSnapshot) {
				prev = prevSnapshot[idx*width : (idx+1)*width]
			}
			if cmp(vt, cur, prev, operand0, operand1, mask) {
				newAddrs = append(newAddrs, va)
				newSnapshot = append(newSnapshot, cur...)
			}
			atomic.AddInt64(&s.progress, 1)
		}

		s.mu.Lock()
		s.st = state{addresses: newAddrs, snapshot: newSnapshot}
		s.mu.Unlock()
	})

	s.maybeLiveNext()
}

// maybeLiveNext re-queues another NextScan shortly after this pass
// completes, when live-scan and autonext are both enabled.
func (s *Scanner) maybeLiveNext() {
	s.mu.Lock()
	live := s.liveScan && s.autonext
	s.mu.Unlock()
	if !live {
		return
	}
	go func() {
		time.Sleep(200 * time.Millisecond)
		_ = s.NextScan()
	}()
}
