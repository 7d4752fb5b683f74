package main

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/chanomhub/hexscan/internal/scanner"
)

func parseValueType(s string) (scanner.ValueType, error) {
	switch strings.ToLower(s) {
	case "i8":
		return scanner.I8, nil
	case "u8":
		return scanner.U8, nil
	case "i16":
		return scanner.I16, nil
	case "u16":
		return scanner.U16, nil
	case "i32":
		return scanner.I32, nil
	case "u32":
		return scanner.U32, nil
	case "i64":
		return scanner.I64, nil
	case "u64":
		return scanner.U64, nil
	case "f32":
		return scanner.F32, nil
	case "f64":
		return scanner.F64, nil
	case "aob":
		return scanner.TByteArray, nil
	case "string", "str":
		return scanner.TString, nil
	default:
		return 0, fmt.Errorf("unknown value type %q", s)
	}
}

func parseKind(s string) (scanner.Kind, error) {
	switch strings.ToLower(s) {
	case "eq", "equal":
		return scanner.Equal, nil
	case "gt", "greater":
		return scanner.Greater, nil
	case "lt", "less":
		return scanner.Less, nil
	case "range":
		return scanner.Range, nil
	case "inc", "increased":
		return scanner.Increased, nil
	case "incby", "increasedby":
		return scanner.IncreasedBy, nil
	case "dec", "decreased":
		return scanner.Decreased, nil
	case "decby", "decreasedby":
		return scanner.DecreasedBy, nil
	case "changed":
		return scanner.Changed, nil
	case "unchanged":
		return scanner.Unchanged, nil
	case "unknown":
		return scanner.Unknown, nil
	default:
		return 0, fmt.Errorf("unknown scan kind %q", s)
	}
}

// parseOperands converts the CLI's trailing string operands into the
// width-aligned byte slices Scanner.SetPredicate expects.
func parseOperands(vt scanner.ValueType, kind scanner.Kind, args []string) (op0, op1, mask []byte, err error) {
	if vt == scanner.TByteArray {
		if len(args) < 1 {
			return nil, nil, nil, fmt.Errorf("aob scan requires a pattern string")
		}
		b, m, perr := scanner.ParseAOB(strings.Join(args, " "))
		return b, nil, m, perr
	}

	if kind == scanner.Unknown {
		return nil, nil, nil, nil
	}

	need := 1
	if kind == scanner.Range {
		need = 2
	}
	if len(args) < need {
		return nil, nil, nil, fmt.Errorf("scan kind requires %d operand(s)", need)
	}

	op0, err = encodeOperand(vt, args[0])
	if err != nil {
		return nil, nil, nil, err
	}
	if need == 2 {
		op1, err = encodeOperand(vt, args[1])
		if err != nil {
			return nil, nil, nil, err
		}
	}
	return op0, op1, nil, nil
}

func encodeOperand(vt scanner.ValueType, s string) ([]byte, error) {
	buf := make([]byte, vt.Width())
	switch vt {
	case scanner.I8, scanner.U8:
		v, err := strconv.ParseInt(s, 0, 16)
		if err != nil {
			return nil, err
		}
		buf[0] = byte(v)
	case scanner.I16, scanner.U16:
		v, err := strconv.ParseInt(s, 0, 32)
		if err != nil {
			return nil, err
		}
		binary.LittleEndian.PutUint16(buf, uint16(v))
	case scanner.I32, scanner.U32:
		v, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			return nil, err
		}
		binary.LittleEndian.PutUint32(buf, uint32(v))
	case scanner.I64, scanner.U64:
		v, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			return nil, err
		}
		binary.LittleEndian.PutUint64(buf, uint64(v))
	case scanner.F32:
		v, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return nil, err
		}
		binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(v)))
	case scanner.F64:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, err
		}
		binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
	default:
		return nil, fmt.Errorf("unsupported value type for scalar operand")
	}
	return buf, nil
}
