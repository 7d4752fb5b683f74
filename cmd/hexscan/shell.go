package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/chanomhub/hexscan/internal/config"
	"github.com/chanomhub/hexscan/internal/hwbreak"
	"github.com/chanomhub/hexscan/internal/tracker"
)

// cmdShell drops into an interactive REPL bound to pid, keeping scan and
// tracking state alive across commands within the one process — the thing
// a sequence of one-shot CLI invocations cannot do, since next_scan needs
// the previous hit list and a tracking session needs its dedicated thread
// to stay running between "shell" commands.
func cmdShell(args []string, cfg config.Config) error {
	pid, _, err := popPID(args)
	if err != nil {
		return err
	}

	sess := NewSession(cfg)
	sess.attachPID(pid)

	rl, err := readline.New(fmt.Sprintf("hexscan(%d)> ", pid))
	if err != nil {
		return err
	}
	defer rl.Close()

	fmt.Printf("attached to pid %d. Type 'help' for commands, 'exit' to quit.\n", pid)

	for {
		line, err := rl.Readline()
		if err != nil { // io.EOF on Ctrl-D, readline.ErrInterrupt on Ctrl-C
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if fields[0] == "exit" || fields[0] == "quit" {
			break
		}
		if err := dispatchShellCommand(sess, pid, fields); err != nil {
			fmt.Printf("error: %v\n", err)
		}
	}

	if sess.track.State() != tracker.Idle {
		sess.track.Stop()
	}
	return nil
}

func dispatchShellCommand(sess *Session, pid int, fields []string) error {
	verb := fields[0]
	args := fields[1:]

	switch verb {
	case "help":
		return cmdHelp()
	case "maps":
		must, mustNot := parsePermFlags(args)
		sess.regions.MustHave, sess.regions.MustNotHave = must, mustNot
		regions, err := sess.regions.Parse(pid)
		if err != nil {
			return err
		}
		for _, r := range regions {
			fmt.Printf("%012x-%012x %s %8d %s\n", r.Start, r.End, permString(r.Perms), r.Inode, r.Path)
		}
		return nil

	case "read":
		if len(args) < 2 {
			return fmt.Errorf("usage: read <addr> <len>")
		}
		addr, err := parseUint(args[0])
		if err != nil {
			return err
		}
		length, err := strconv.Atoi(args[1])
		if err != nil {
			return err
		}
		buf := make([]byte, length)
		if !sess.mem.Read(buf, addr) {
			return fmt.Errorf("read failed at 0x%x", addr)
		}
		fmt.Println(hexDump(addr, buf))
		return nil

	case "write":
		return cmdWrite(append([]string{strconv.Itoa(pid)}, args...), sess.cfg)

	case "scan":
		return shellScan(sess, pid, args)

	case "track":
		return shellTrack(sess, pid, args)

	case "patch":
		if len(args) == 0 {
			return fmt.Errorf("usage: patch nop|invert|restore|list <addr> ...")
		}
		return runPatch(sess, args[0], args[1:])

	case "disasm":
		return cmdDisasm(append([]string{strconv.Itoa(pid)}, args...))

	case "aob":
		return cmdAOB(append([]string{strconv.Itoa(pid)}, args...))

	default:
		return fmt.Errorf("unknown command: %s (try 'help')", verb)
	}
}

func shellScan(sess *Session, pid int, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: scan new <type> <kind> <operand...> | scan next <kind> <operand...> | scan reset")
	}
	switch args[0] {
	case "reset":
		sess.scan.Reset()
		fmt.Println("scan state reset")
		return nil
	case "new":
		if len(args) < 3 {
			return fmt.Errorf("usage: scan new <type> <kind> <operand...>")
		}
		vt, err := parseValueType(args[1])
		if err != nil {
			return err
		}
		kind, err := parseKind(args[2])
		if err != nil {
			return err
		}
		op0, op1, mask, err := parseOperands(vt, kind, args[3:])
		if err != nil {
			return err
		}
		sess.lastValueType = vt
		sess.scan.SetPredicate(kind, vt, op0, op1, mask)
		if err := sess.scan.NewScan(); err != nil {
			return err
		}
		waitAndReport(sess, pid)
		return nil
	case "next":
		if len(args) < 2 {
			return fmt.Errorf("usage: scan next <kind> <operand...>")
		}
		kind, err := parseKind(args[1])
		if err != nil {
			return err
		}
		// the value type sticks from the previous "scan new" call; only
		// the kind and operands change between narrowing passes.
		vt := sess.lastValueType
		op0, op1, mask, err := parseOperands(vt, kind, args[2:])
		if err != nil {
			return err
		}
		sess.scan.SetPredicate(kind, vt, op0, op1, mask)
		if err := sess.scan.NextScan(); err != nil {
			return err
		}
		waitAndReport(sess, pid)
		return nil
	default:
		return fmt.Errorf("unknown scan subcommand: %s", args[0])
	}
}

func waitAndReport(sess *Session, pid int) {
	for sess.scan.Running() {
		time.Sleep(5 * time.Millisecond)
	}
	addrs := sess.scan.Addresses()
	fmt.Printf("%d hit(s)\n", len(addrs))
	for i, a := range addrs {
		if i >= 50 {
			fmt.Printf("  ... and %d more\n", len(addrs)-i)
			break
		}
		fmt.Printf("  0x%x\n", a)
	}
}

func shellTrack(sess *Session, pid int, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: track start <addr> <size> | track stop | track records")
	}
	switch args[0] {
	case "start":
		if len(args) < 3 {
			return fmt.Errorf("usage: track start <addr> <size>")
		}
		addr, err := parseUint(args[1])
		if err != nil {
			return err
		}
		size, err := strconv.Atoi(args[2])
		if err != nil {
			return err
		}
		szEnc, ok := hwbreak.SizeFor(size)
		if !ok {
			return fmt.Errorf("size must be 1, 2, 4, or 8")
		}
		return sess.track.Start(pid, addr, hwbreak.ConditionReadWrite, szEnc)
	case "stop":
		sess.track.Stop()
		return nil
	case "records":
		for _, r := range sess.track.Records() {
			fmt.Printf("ip=0x%x count=%d\n", r.IP, r.Count)
		}
		return nil
	default:
		return fmt.Errorf("unknown track subcommand: %s", args[0])
	}
}

