// Package config collects the small set of environment-tunable defaults the
// CLI falls back to when the matching flag is not given.
package config

import "github.com/xyproto/env/v2"

// Config holds the process-wide defaults, read once at startup.
type Config struct {
	// DefaultStride is passed to Scanner.SetFastScanOffset; the effective
	// scan stride is max(width(ValueType), DefaultStride) bytes.
	DefaultStride int
	// SuspendWhileScanning controls the default of Scanner.SuspendWhileScanning.
	SuspendWhileScanning bool
	// WriteTimeoutMS bounds, in milliseconds, how long a forwarded write-code
	// request waits for the tracer thread to report completion.
	WriteTimeoutMS int
	// MaxRegionBytes caps how many bytes of a single /proc/<pid>/maps region
	// a scan pass reads; bytes past the cap are not scanned.
	MaxRegionBytes int
}

// Load reads HEXSCAN_* environment variables, falling back to the defaults
// below when unset or malformed.
func Load() Config {
	return Config{
		DefaultStride:        env.Int("HEXSCAN_DEFAULT_STRIDE", 1),
		SuspendWhileScanning: env.Bool("HEXSCAN_SUSPEND_WHILE_SCANNING"),
		WriteTimeoutMS:       env.Int("HEXSCAN_WRITE_TIMEOUT_MS", 2000),
		MaxRegionBytes:       env.Int("HEXSCAN_MAX_REGION_BYTES", 256<<20),
	}
}
