// Command hexscan is an interactive memory inspector and live-patcher for
// a running Linux/x86-64 process: search its memory for a value, narrow
// the hit set across rescans, then read/write, track instruction-level
// access with hardware breakpoints, disassemble, and patch code in place.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/chanomhub/hexscan/internal/config"
)

const versionString = "hexscan 0.1.0"

var globalConfig config.Config

func main() {
	verbose := flag.Bool("v", false, "verbose output")
	quiet := flag.Bool("q", false, "suppress non-essential output")
	flag.BoolVar(verbose, "verbose", false, "verbose output")
	flag.BoolVar(quiet, "quiet", false, "suppress non-essential output")
	flag.Usage = func() {
		_ = cmdHelp()
	}
	flag.Parse()

	globalConfig = config.Load()

	if err := RunCLI(flag.Args(), globalConfig, *verbose, *quiet); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
