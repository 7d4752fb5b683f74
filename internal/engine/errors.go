package engine

import (
	"fmt"
	"strings"
)

// Level indicates the severity of an error.
type Level int

const (
	LevelWarning Level = iota
	LevelError
	LevelFatal
)

func (l Level) String() string {
	switch l {
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	case LevelFatal:
		return "fatal error"
	default:
		return "unknown"
	}
}

// Kind classifies an error by the taxonomy the memory engine reports to callers.
type Kind int

const (
	KindDetached Kind = iota
	KindPermission
	KindTransportFailure
	KindDecodeFailure
	KindBusy
	KindNoBaseline
	KindParseError
	KindSlotExhausted
	KindPatchConflict
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindDetached:
		return "detached"
	case KindPermission:
		return "permission"
	case KindTransportFailure:
		return "transport-failure"
	case KindDecodeFailure:
		return "decode-failure"
	case KindBusy:
		return "busy"
	case KindNoBaseline:
		return "no-baseline"
	case KindParseError:
		return "parse-error"
	case KindSlotExhausted:
		return "slot-exhausted"
	case KindPatchConflict:
		return "patch-conflict"
	default:
		return "internal"
	}
}

// Context carries optional extra detail rendered below the main message.
type Context struct {
	Suggestion string // "did you mean 'attach'?"
	HelpText   string
}

// HexError is the one error shape produced by every engine package.
type HexError struct {
	Level   Level
	Kind    Kind
	Message string
	Context Context
}

func (e HexError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Format renders a multi-line, optionally colourised error report.
func (e HexError) Format(useColor bool) string {
	var sb strings.Builder

	if useColor {
		sb.WriteString("\033[1;31m")
	}
	sb.WriteString(e.Level.String())
	sb.WriteString(": ")
	if useColor {
		sb.WriteString("\033[0m")
	}
	sb.WriteString(e.Message)
	sb.WriteString("\n")

	if useColor {
		sb.WriteString("\033[1;34m")
	}
	sb.WriteString("  --> ")
	sb.WriteString(e.Kind.String())
	if useColor {
		sb.WriteString("\033[0m")
	}
	sb.WriteString("\n")

	if e.Context.Suggestion != "" {
		if useColor {
			sb.WriteString("\033[1;32m")
		}
		sb.WriteString("   help: ")
		if useColor {
			sb.WriteString("\033[0m")
		}
		sb.WriteString(e.Context.Suggestion)
		sb.WriteString("\n")
	}

	if e.Context.HelpText != "" {
		if useColor {
			sb.WriteString("\033[1;36m")
		}
		sb.WriteString("   note: ")
		if useColor {
			sb.WriteString("\033[0m")
		}
		sb.WriteString(e.Context.HelpText)
		sb.WriteString("\n")
	}

	return sb.String()
}

// New builds an error-level HexError with no extra context.
func New(kind Kind, format string, args ...any) HexError {
	return HexError{Level: LevelError, Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Detached reports that no process is currently selected.
func Detached() HexError {
	return HexError{Level: LevelError, Kind: KindDetached, Message: "no process attached"}
}

// Permission reports an EPERM from ptrace, with the standard advisory.
func Permission(op string) HexError {
	return HexError{
		Level:   LevelError,
		Kind:    KindPermission,
		Message: fmt.Sprintf("%s: permission denied", op),
		Context: Context{Suggestion: "run as root (or grant CAP_SYS_PTRACE)"},
	}
}

// Busy reports that a scan or tracking session is already in flight.
func Busy(what string) HexError {
	return HexError{Level: LevelError, Kind: KindBusy, Message: fmt.Sprintf("%s already in progress", what)}
}

// NoBaseline reports a differential predicate requested with no prior snapshot.
func NoBaseline() HexError {
	return HexError{
		Level:   LevelError,
		Kind:    KindNoBaseline,
		Message: "differential predicate requires a previous scan",
		Context: Context{HelpText: "run a new scan before narrowing with Increased/Decreased/Changed/Unchanged"},
	}
}

// ParseError reports a malformed input (AOB string, numeric literal, ...).
func ParseError(what, detail string) HexError {
	return HexError{Level: LevelError, Kind: KindParseError, Message: fmt.Sprintf("%s: %s", what, detail)}
}

// SlotExhausted reports that all four hardware breakpoint slots are occupied.
func SlotExhausted() HexError {
	return HexError{Level: LevelError, Kind: KindSlotExhausted, Message: "no free hardware breakpoint slot"}
}

// PatchConflict reports that a patch is already active at the requested address.
func PatchConflict(address uint64) HexError {
	return HexError{Level: LevelError, Kind: KindPatchConflict, Message: fmt.Sprintf("patch already active at 0x%x", address)}
}

// DecodeFailure reports that the disassembler could not decode a byte slice.
func DecodeFailure(address uint64) HexError {
	return HexError{Level: LevelWarning, Kind: KindDecodeFailure, Message: fmt.Sprintf("could not decode instruction at 0x%x", address)}
}
