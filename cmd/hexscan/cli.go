// cli.go - subcommand dispatch for the one-shot (non-shell) CLI.
//
// Mirrors a Go-style subcommand shape: hexscan <verb> <pid> [args...].
// Every one-shot verb attaches for the duration of the call; only `shell`
// keeps a Session (and therefore a narrowing scan, or a tracking session)
// alive across multiple commands.
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/chanomhub/hexscan/internal/config"
	"github.com/chanomhub/hexscan/internal/disasm"
	"github.com/chanomhub/hexscan/internal/engine"
	"github.com/chanomhub/hexscan/internal/hwbreak"
	"github.com/chanomhub/hexscan/internal/regionmap"
	"github.com/chanomhub/hexscan/internal/scanner"
)

var knownVerbs = []string{"maps", "read", "write", "scan", "aob", "disasm", "track", "patch", "shell", "help", "version"}

// RunCLI is the entry point for the non-interactive CLI. It determines
// which verb to run based on args[0].
func RunCLI(args []string, cfg config.Config, verbose, quiet bool) error {
	if len(args) == 0 {
		return cmdHelp()
	}

	verb := args[0]
	rest := args[1:]

	switch verb {
	case "maps":
		return cmdMaps(rest)
	case "read":
		return cmdRead(rest)
	case "write":
		return cmdWrite(rest, cfg)
	case "scan":
		return cmdScan(rest, cfg)
	case "aob":
		return cmdAOB(rest)
	case "disasm":
		return cmdDisasm(rest)
	case "track":
		return cmdTrack(rest, cfg)
	case "patch":
		return cmdPatch(rest, cfg)
	case "shell":
		return cmdShell(rest, cfg)
	case "help", "--help", "-h":
		return cmdHelp()
	case "version", "--version", "-V":
		fmt.Println(versionString)
		return nil
	default:
		msg := fmt.Sprintf("unknown command: %s", verb)
		if suggestion := engine.SuggestCommand(verb, knownVerbs); suggestion != "" {
			msg += fmt.Sprintf("\n\ndid you mean '%s'?", suggestion)
		}
		return fmt.Errorf("%s\n\nRun 'hexscan help' for usage information", msg)
	}
}

func cmdHelp() error {
	fmt.Print(`hexscan - interactive memory inspector and live-patcher (Linux/x86-64)

USAGE:
    hexscan <command> [arguments]

COMMANDS:
    maps <pid> [--perms rwx] [--no-perms rwx]     List filtered memory regions
    read <pid> <addr> <len>                        Read and hex-dump memory
    write <pid> <addr> <hexbytes>                   Write raw bytes (ordinary memory)
    scan <pid> <type> <kind> <operand...>           Run a one-shot new_scan
    aob <pid> <addr>                                Wildcard-AOB of the instruction at addr
    disasm <pid> <addr> <len>                       Decode instructions in [addr, addr+len)
    track <pid> <addr> <size> [--seconds N]          Arm a hw breakpoint and report hit counts
    patch nop|invert|restore|list <pid> ...          Install/restore a code patch
    shell <pid>                                     Interactive session (keeps scan/track state)
    help                                             Show this help message
    version                                          Show version information

VALUE TYPES (for scan):
    i8 u8 i16 u16 i32 u32 i64 u64 f32 f64 aob

SCAN KINDS:
    eq gt lt range inc incby dec decby changed unchanged unknown

EXAMPLES:
    hexscan maps 1234 --perms rw
    hexscan scan 1234 i32 eq 3735928559
    hexscan scan 1234 aob eq "48 8B ?? 00 AA"
    hexscan track 1234 0x55d2a1000000 4 --seconds 5
    hexscan shell 1234
`)
	return nil
}

func cmdMaps(args []string) error {
	pid, rest, err := popPID(args)
	if err != nil {
		return err
	}
	must, mustNot := parsePermFlags(rest)

	rm := regionmap.New()
	rm.MustHave, rm.MustNotHave = must, mustNot
	regions, err := rm.Parse(pid)
	if err != nil {
		return err
	}
	for _, r := range regions {
		fmt.Printf("%012x-%012x %s %08x %-10s %8d %s\n",
			r.Start, r.End, permString(r.Perms), r.Offset, r.Dev, r.Inode, r.Path)
	}
	return nil
}

func permString(p regionmap.Perm) string {
	s := ""
	if p&regionmap.PermRead != 0 {
		s += "r"
	} else {
		s += "-"
	}
	if p&regionmap.PermWrite != 0 {
		s += "w"
	} else {
		s += "-"
	}
	if p&regionmap.PermExec != 0 {
		s += "x"
	} else {
		s += "-"
	}
	if p&regionmap.PermPrivate != 0 {
		s += "p"
	} else {
		s += "s"
	}
	return s
}

func parsePermFlags(args []string) (must, mustNot regionmap.Perm) {
	for i := 0; i < len(args)-1; i++ {
		switch args[i] {
		case "--perms":
			must = parsePermString(args[i+1])
		case "--no-perms":
			mustNot = parsePermString(args[i+1])
		}
	}
	return
}

func parsePermString(s string) regionmap.Perm {
	var p regionmap.Perm
	if strings.Contains(s, "r") {
		p |= regionmap.PermRead
	}
	if strings.Contains(s, "w") {
		p |= regionmap.PermWrite
	}
	if strings.Contains(s, "x") {
		p |= regionmap.PermExec
	}
	return p
}

func cmdRead(args []string) error {
	pid, rest, err := popPID(args)
	if err != nil {
		return err
	}
	if len(rest) < 2 {
		return fmt.Errorf("usage: hexscan read <pid> <addr> <len>")
	}
	addr, err := parseUint(rest[0])
	if err != nil {
		return err
	}
	length, err := strconv.Atoi(rest[1])
	if err != nil {
		return fmt.Errorf("invalid length: %v", err)
	}

	sess := newOneShotSession(pid)
	buf := make([]byte, length)
	if !sess.mem.Read(buf, addr) {
		return engine.New(engine.KindTransportFailure, "read failed at 0x%x", addr)
	}
	fmt.Println(hexDump(addr, buf))
	return nil
}

func cmdWrite(args []string, cfg config.Config) error {
	pid, rest, err := popPID(args)
	if err != nil {
		return err
	}
	if len(rest) < 2 {
		return fmt.Errorf("usage: hexscan write <pid> <addr> <hexbytes>")
	}
	addr, err := parseUint(rest[0])
	if err != nil {
		return err
	}
	data, err := hex.DecodeString(strings.ReplaceAll(rest[1], " ", ""))
	if err != nil {
		return fmt.Errorf("invalid hex bytes: %v", err)
	}

	sess := newOneShotSession(pid)
	_ = cfg
	if !sess.mem.Write(data, addr) {
		return engine.New(engine.KindTransportFailure, "write failed at 0x%x", addr)
	}
	fmt.Printf("wrote %d bytes to 0x%x\n", len(data), addr)
	return nil
}

func cmdScan(args []string, cfg config.Config) error {
	pid, rest, err := popPID(args)
	if err != nil {
		return err
	}
	if len(rest) < 2 {
		return fmt.Errorf("usage: hexscan scan <pid> <type> <kind> <operand...>")
	}
	vt, err := parseValueType(rest[0])
	if err != nil {
		return err
	}
	kind, err := parseKind(rest[1])
	if err != nil {
		return err
	}

	sess := newOneShotSession(pid)
	sess.scan.SetFastScanOffset(cfg.DefaultStride)

	op0, op1, mask, err := parseOperands(vt, kind, rest[2:])
	if err != nil {
		return err
	}
	sess.scan.SetPredicate(kind, vt, op0, op1, mask)

	if err := sess.scan.NewScan(); err != nil {
		return err
	}
	for sess.scan.Running() {
		time.Sleep(5 * time.Millisecond)
	}

	addrs := sess.scan.Addresses()
	fmt.Printf("%d hit(s)\n", len(addrs))
	for _, a := range addrs {
		tag := "dynamic"
		if sess.regions.IsStaticAddress(pid, a) {
			tag = "static"
		}
		fmt.Printf("  0x%x [%s]\n", a, tag)
	}
	return nil
}

func cmdAOB(args []string) error {
	pid, rest, err := popPID(args)
	if err != nil {
		return err
	}
	if len(rest) < 1 {
		return fmt.Errorf("usage: hexscan aob <pid> <addr>")
	}
	addr, err := parseUint(rest[0])
	if err != nil {
		return err
	}
	sess := newOneShotSession(pid)
	buf := make([]byte, 16)
	if !sess.mem.Read(buf, addr) {
		return engine.New(engine.KindTransportFailure, "read failed at 0x%x", addr)
	}
	pattern, mask, ok := disasm.WildcardAOB(buf, addr)
	if !ok {
		return engine.DecodeFailure(addr)
	}
	fmt.Println(scanner.FormatAOB(pattern, mask))
	return nil
}

func cmdDisasm(args []string) error {
	pid, rest, err := popPID(args)
	if err != nil {
		return err
	}
	if len(rest) < 2 {
		return fmt.Errorf("usage: hexscan disasm <pid> <addr> <len>")
	}
	addr, err := parseUint(rest[0])
	if err != nil {
		return err
	}
	length, err := strconv.Atoi(rest[1])
	if err != nil {
		return fmt.Errorf("invalid length: %v", err)
	}

	sess := newOneShotSession(pid)
	buf := make([]byte, length)
	if !sess.mem.Read(buf, addr) {
		return engine.New(engine.KindTransportFailure, "read failed at 0x%x", addr)
	}

	off := 0
	for off < len(buf) {
		inst := disasm.Decode(buf[off:], addr+uint64(off))
		if !inst.Valid {
			fmt.Printf("0x%x: db 0x%02x\n", addr+uint64(off), buf[off])
			off++
			continue
		}
		fmt.Printf("0x%x: %s\n", addr+uint64(off), inst.FullText)
		off += inst.Length
	}
	return nil
}

func cmdTrack(args []string, cfg config.Config) error {
	pid, rest, err := popPID(args)
	if err != nil {
		return err
	}
	if len(rest) < 2 {
		return fmt.Errorf("usage: hexscan track <pid> <addr> <size> [--seconds N]")
	}
	addr, err := parseUint(rest[0])
	if err != nil {
		return err
	}
	size, err := strconv.Atoi(rest[1])
	if err != nil {
		return fmt.Errorf("invalid size: %v", err)
	}
	szEnc, ok := hwbreak.SizeFor(size)
	if !ok {
		return fmt.Errorf("size must be 1, 2, 4, or 8")
	}
	seconds := 3
	for i := 2; i < len(rest)-1; i++ {
		if rest[i] == "--seconds" {
			seconds, _ = strconv.Atoi(rest[i+1])
		}
	}

	sess := newOneShotSession(pid)
	if err := sess.track.Start(pid, addr, hwbreak.ConditionReadWrite, szEnc); err != nil {
		return err
	}
	time.Sleep(time.Duration(seconds) * time.Second)
	sess.track.Stop()

	for _, r := range sess.track.Records() {
		fmt.Printf("ip=0x%x count=%d bytes=%s\n", r.IP, r.Count, hex.EncodeToString(r.Bytes[:]))
	}
	_ = cfg
	return nil
}

func cmdPatch(args []string, cfg config.Config) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: hexscan patch nop|invert|restore|list <pid> ...")
	}
	op := args[0]
	pid, rest, err := popPID(args[1:])
	if err != nil {
		return err
	}
	sess := newOneShotSession(pid)
	_ = cfg
	return runPatch(sess, op, rest)
}

// runPatch carries out one patch operation against sess's patch registry,
// so a shell session's patches stay listable and restorable between lines.
func runPatch(sess *Session, op string, rest []string) error {
	switch op {
	case "nop":
		if len(rest) < 2 {
			return fmt.Errorf("usage: hexscan patch nop <pid> <addr> <len> [desc]")
		}
		addr, err := parseUint(rest[0])
		if err != nil {
			return err
		}
		length, err := strconv.Atoi(rest[1])
		if err != nil {
			return err
		}
		desc := ""
		if len(rest) > 2 {
			desc = strings.Join(rest[2:], " ")
		}
		if err := sess.patches.NOP(addr, length, desc); err != nil {
			return err
		}
		fmt.Printf("nopped %d bytes at 0x%x\n", length, addr)
	case "invert":
		if len(rest) < 2 {
			return fmt.Errorf("usage: hexscan patch invert <pid> <addr> <len> [desc]")
		}
		addr, err := parseUint(rest[0])
		if err != nil {
			return err
		}
		length, err := strconv.Atoi(rest[1])
		if err != nil {
			return err
		}
		desc := ""
		if len(rest) > 2 {
			desc = strings.Join(rest[2:], " ")
		}
		if err := sess.patches.InvertCondJump(addr, length, desc); err != nil {
			return err
		}
		fmt.Printf("inverted conditional jump at 0x%x\n", addr)
	case "restore":
		if len(rest) < 1 {
			return fmt.Errorf("usage: hexscan patch restore <pid> <addr>")
		}
		addr, err := parseUint(rest[0])
		if err != nil {
			return err
		}
		if err := sess.patches.Restore(addr); err != nil {
			return err
		}
		fmt.Printf("restored 0x%x\n", addr)
	case "list":
		for _, p := range sess.patches.Patches() {
			fmt.Printf("0x%x active=%v %q\n", p.Address, p.Active, p.Description)
		}
	default:
		return fmt.Errorf("unknown patch operation: %s", op)
	}
	return nil
}

// newOneShotSession builds a Session bound to pid without attach observers
// persisting beyond this call — one-shot verbs don't hold a ptrace
// attachment themselves, only memio/scanner/patch talk to /proc directly
// (or forward to the tracker when one is active).
func newOneShotSession(pid int) *Session {
	s := NewSession(globalConfig)
	s.attachPID(pid)
	return s
}

func popPID(args []string) (int, []string, error) {
	if len(args) == 0 {
		return 0, nil, fmt.Errorf("missing <pid>")
	}
	pid, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, nil, fmt.Errorf("invalid pid %q: %v", args[0], err)
	}
	if _, err := os.Stat(fmt.Sprintf("/proc/%d", pid)); err != nil {
		return 0, nil, fmt.Errorf("no such process: %d", pid)
	}
	return pid, args[1:], nil
}

func parseUint(s string) (uint64, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %v", s, err)
	}
	return v, nil
}

func hexDump(base uint64, data []byte) string {
	var sb strings.Builder
	for i := 0; i < len(data); i += 16 {
		end := i + 16
		if end > len(data) {
			end = len(data)
		}
		fmt.Fprintf(&sb, "%012x  % x\n", base+uint64(i), data[i:end])
	}
	return strings.TrimRight(sb.String(), "\n")
}
