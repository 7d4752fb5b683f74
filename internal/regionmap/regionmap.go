// Package regionmap parses /proc/<pid>/maps into filterable Region
// descriptors, re-read fresh on demand between scan passes.
package regionmap

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/chanomhub/hexscan/internal/engine"
)

// Perm is one bit of the rwxp permission set.
type Perm uint8

const (
	PermRead Perm = 1 << iota
	PermWrite
	PermExec
	PermPrivate
)

// Region is one mapping line from /proc/<pid>/maps.
type Region struct {
	Start, End uint64
	Perms      Perm
	Offset     uint64
	Dev        string
	Inode      uint64
	Path       string
}

// Size returns End-Start in bytes.
func (r Region) Size() uint64 { return r.End - r.Start }

// Contains reports whether va falls inside [Start, End).
func (r Region) Contains(va uint64) bool { return va >= r.Start && va < r.End }

// Has reports whether all of mask's bits are set in r.Perms.
func (r Region) Has(mask Perm) bool { return r.Perms&mask == mask }

// HasNone reports whether none of mask's bits are set in r.Perms.
func (r Region) HasNone(mask Perm) bool { return r.Perms&mask == 0 }

// Map holds the two permission filters applied by Parse.
type Map struct {
	MustHave    Perm
	MustNotHave Perm

	mainPath string
}

// New returns a Map with no filters (everything passes).
func New() *Map {
	return &Map{}
}

// Parse re-reads /proc/<pid>/maps and returns the regions that satisfy both
// filter masks. Malformed or trailing blank lines are skipped silently.
func (m *Map) Parse(pid int) ([]Region, error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/maps", pid))
	if err != nil {
		return nil, engine.New(engine.KindTransportFailure, "open maps: %v", err)
	}
	defer f.Close()

	var regions []Region
	scanner := bufio.NewScanner(f)
	first := true
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		region, ok := parseLine(line)
		if !ok {
			continue
		}
		if first && strings.Contains(region.Perms.String(), "x") && region.Path != "" && !strings.HasPrefix(region.Path, "[") {
			m.mainPath = region.Path
			first = false
		}
		if !region.Has(m.MustHave) || !region.HasNone(m.MustNotHave) {
			continue
		}
		regions = append(regions, region)
	}
	return regions, nil
}

// IsStaticAddress reports whether va lies within a region whose pathname
// matches the main binary. Colour-coding hint only; never affects which
// addresses a scan considers.
func (m *Map) IsStaticAddress(pid int, va uint64) bool {
	unfiltered := &Map{}
	regions, err := unfiltered.Parse(pid)
	if err != nil || unfiltered.mainPath == "" {
		return false
	}
	for _, r := range regions {
		if r.Path == unfiltered.mainPath && r.Contains(va) {
			return true
		}
	}
	return false
}

func (p Perm) String() string {
	var sb strings.Builder
	if p&PermRead != 0 {
		sb.WriteByte('r')
	} else {
		sb.WriteByte('-')
	}
	if p&PermWrite != 0 {
		sb.WriteByte('w')
	} else {
		sb.WriteByte('-')
	}
	if p&PermExec != 0 {
		sb.WriteByte('x')
	} else {
		sb.WriteByte('-')
	}
	if p&PermPrivate != 0 {
		sb.WriteByte('p')
	} else {
		sb.WriteByte('s')
	}
	return sb.String()
}

func parseLine(line string) (Region, bool) {
	fields := strings.Fields(line)
	if len(fields) < 5 {
		return Region{}, false
	}

	rangeParts := strings.SplitN(fields[0], "-", 2)
	if len(rangeParts) != 2 {
		return Region{}, false
	}
	start, err := strconv.ParseUint(rangeParts[0], 16, 64)
	if err != nil {
		return Region{}, false
	}
	end, err := strconv.ParseUint(rangeParts[1], 16, 64)
	if err != nil {
		return Region{}, false
	}

	permStr := fields[1]
	if len(permStr) < 4 {
		return Region{}, false
	}
	var perms Perm
	if permStr[0] == 'r' {
		perms |= PermRead
	}
	if permStr[1] == 'w' {
		perms |= PermWrite
	}
	if permStr[2] == 'x' {
		perms |= PermExec
	}
	if permStr[3] == 'p' {
		perms |= PermPrivate
	}

	offset, err := strconv.ParseUint(fields[2], 16, 64)
	if err != nil {
		return Region{}, false
	}

	inode, err := strconv.ParseUint(fields[4], 10, 64)
	if err != nil {
		inode = 0
	}

	path := ""
	if len(fields) >= 6 {
		path = strings.Join(fields[5:], " ")
	}

	return Region{
		Start:  start,
		End:    end,
		Perms:  perms,
		Offset: offset,
		Dev:    fields[3],
		Inode:  inode,
		Path:   path,
	}, true
}
