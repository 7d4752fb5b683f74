package scanner

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/chanomhub/hexscan/internal/engine"
)

// ParseAOB parses a space-separated hex byte pattern, treating "??" and
// "**" as single-byte wildcards. Returns parallel byte/mask slices where
// mask[i] == 0xFF means the byte is literal and 0x00 means wildcard.
func ParseAOB(s string) (bytes, mask []byte, err error) {
	stripped := strings.ReplaceAll(strings.ReplaceAll(s, " ", ""), "\t", "")
	if stripped == "" {
		return nil, nil, engine.ParseError("AOB", "empty pattern")
	}
	if len(stripped)%2 != 0 {
		return nil, nil, engine.ParseError("AOB", "odd number of hex nibbles")
	}

	n := len(stripped) / 2
	bytes = make([]byte, n)
	mask = make([]byte, n)

	for i := 0; i < n; i++ {
		chunk := stripped[i*2 : i*2+2]
		if chunk == "??" || chunk == "**" {
			bytes[i] = 0
			mask[i] = 0x00
			continue
		}
		v, perr := strconv.ParseUint(chunk, 16, 8)
		if perr != nil {
			return nil, nil, engine.ParseError("AOB", fmt.Sprintf("invalid hex byte %q", chunk))
		}
		bytes[i] = byte(v)
		mask[i] = 0xFF
	}

	return bytes, mask, nil
}

// FormatAOB renders bytes/mask back into the canonical uppercase,
// space-separated wildcard string. parse(format(b, m)) == (b, m).
func FormatAOB(bytes, mask []byte) string {
	parts := make([]string, len(bytes))
	for i := range bytes {
		if mask[i] == 0x00 {
			parts[i] = "??"
		} else {
			parts[i] = fmt.Sprintf("%02X", bytes[i])
		}
	}
	return strings.Join(parts, " ")
}

// MatchAOB reports whether mem matches the pattern under mask:
// (mem[i] & mask[i]) == (pattern[i] & mask[i]) for every i.
func MatchAOB(mem, pattern, mask []byte) bool {
	if len(mem) != len(pattern) {
		return false
	}
	for i := range pattern {
		if mem[i]&mask[i] != pattern[i]&mask[i] {
			return false
		}
	}
	return true
}
