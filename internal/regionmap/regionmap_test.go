package regionmap

import "testing"

func TestParseLineBasic(t *testing.T) {
	r, ok := parseLine("00400000-00401000 r-xp 00000000 08:01 123456 /usr/bin/target")
	if !ok {
		t.Fatal("expected line to parse")
	}
	if r.Start != 0x00400000 || r.End != 0x00401000 {
		t.Errorf("range = %#x-%#x", r.Start, r.End)
	}
	if !r.Has(PermRead) || !r.Has(PermExec) || r.Has(PermWrite) {
		t.Errorf("unexpected perms: %v", r.Perms)
	}
	if !r.Has(PermPrivate) {
		t.Error("expected private mapping bit set")
	}
	if r.Path != "/usr/bin/target" {
		t.Errorf("Path = %q", r.Path)
	}
	if r.Inode != 123456 {
		t.Errorf("Inode = %d", r.Inode)
	}
}

func TestParseLineAnonymousMapping(t *testing.T) {
	r, ok := parseLine("7f0000000000-7f0000021000 rw-p 00000000 00:00 0")
	if !ok {
		t.Fatal("expected anonymous mapping to parse")
	}
	if r.Path != "" {
		t.Errorf("Path = %q, want empty", r.Path)
	}
}

func TestParseLineMalformed(t *testing.T) {
	if _, ok := parseLine("not a maps line"); ok {
		t.Error("expected malformed line to be rejected")
	}
	if _, ok := parseLine(""); ok {
		t.Error("expected empty line to be rejected")
	}
}

func TestRegionContains(t *testing.T) {
	r := Region{Start: 0x1000, End: 0x2000}
	if !r.Contains(0x1500) {
		t.Error("0x1500 should be inside [0x1000, 0x2000)")
	}
	if r.Contains(0x2000) {
		t.Error("end address is exclusive")
	}
	if r.Contains(0xFFF) {
		t.Error("address before start should not be contained")
	}
}

func TestPermStringFormatting(t *testing.T) {
	p := PermRead | PermWrite | PermPrivate
	if got := p.String(); got != "rw-p" {
		t.Errorf("String() = %q, want rw-p", got)
	}
}

func TestRegionSize(t *testing.T) {
	r := Region{Start: 0x1000, End: 0x1400}
	if r.Size() != 0x400 {
		t.Errorf("Size() = %#x, want 0x400", r.Size())
	}
}
