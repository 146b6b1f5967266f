// Package errkind defines the typed error kinds of spec.md §7, so call
// sites can branch with errors.As/errors.Is instead of matching strings.
// Grounded in the original Rust core's thiserror-derived error enums
// (AssumeError, ParsingError), translated to Go error values wrapped
// with fmt.Errorf the way golang-debug's own packages wrap os/ptrace
// errors rather than reaching for a third-party errors library.
package errkind

import "fmt"

// NotStarted is returned by any inspection or stepping operation
// attempted before DebugeeStart.
var NotStarted = fmt.Errorf("program not started")

// TraceOpFailed wraps a trace-control call that reported a
// non-ignorable failure (spec.md §4.1's failure model: "no such
// process" for an individual tid is swallowed upstream as ThreadExit;
// anything else reaches here).
type TraceOpFailed struct {
	Op  string
	Pid int
	Err error
}

func (e *TraceOpFailed) Error() string {
	return fmt.Sprintf("errkind: trace op %q failed for pid %d: %v", e.Op, e.Pid, e.Err)
}

func (e *TraceOpFailed) Unwrap() error { return e.Err }

// DecodeSub enumerates the variable-decode sub-kinds of spec.md §7.
type DecodeSub int

const (
	FieldNotFound DecodeSub = iota
	FieldNotNumber
	IncompleteInterp
	NoData
	NoType
	NotUtf8
	UnknownSize
	TypeParamNotFound
	UnexpectedType
	UnexpectedBinaryRepr
)

func (s DecodeSub) String() string {
	switch s {
	case FieldNotFound:
		return "field not found"
	case FieldNotNumber:
		return "field not a number"
	case IncompleteInterp:
		return "incomplete interpretation"
	case NoData:
		return "no data"
	case NoType:
		return "no type"
	case NotUtf8:
		return "not valid utf-8"
	case UnknownSize:
		return "unknown size"
	case TypeParamNotFound:
		return "type parameter not found"
	case UnexpectedType:
		return "unexpected type"
	case UnexpectedBinaryRepr:
		return "unexpected binary representation"
	default:
		return "unknown decode failure"
	}
}

// Decode is a variable-decode failure. The IR builder isolates these
// per-variable: a single member's Decode error produces a typed
// "no value" hole rather than failing the whole read.
type Decode struct {
	Sub     DecodeSub
	Context string
}

func (e *Decode) Error() string {
	if e.Context == "" {
		return fmt.Sprintf("errkind: decode: %s", e.Sub)
	}
	return fmt.Sprintf("errkind: decode: %s: %s", e.Sub, e.Context)
}

// NewDecode constructs a Decode error for sub-kind sub with context.
func NewDecode(sub DecodeSub, context string) *Decode {
	return &Decode{Sub: sub, Context: context}
}

// ParseSub enumerates the spec.md §7 Parse sub-kinds that are not
// themselves Decode failures.
type ParseSub int

const (
	UnsupportedLanguageVersion ParseSub = iota
	ReadMemory
)

func (s ParseSub) String() string {
	switch s {
	case UnsupportedLanguageVersion:
		return "unsupported language version"
	case ReadMemory:
		return "read memory"
	default:
		return "unknown parse failure"
	}
}

// Parse wraps either a Decode failure or one of ParseSub's own kinds.
type Parse struct {
	Decode *Decode
	Sub     ParseSub
	HasSub  bool
	Err     error
}

func (e *Parse) Error() string {
	if e.Decode != nil {
		return fmt.Sprintf("errkind: parse: %v", e.Decode)
	}
	if e.HasSub {
		return fmt.Sprintf("errkind: parse: %s: %v", e.Sub, e.Err)
	}
	return fmt.Sprintf("errkind: parse: %v", e.Err)
}

func (e *Parse) Unwrap() error {
	if e.Decode != nil {
		return e.Decode
	}
	return e.Err
}

// NotInDebugFrame is returned when the focus PC lies outside any
// compiled function (e.g. inside dynamic-loader stubs).
type NotInDebugFrame struct {
	PC fmt.Stringer
}

func (e *NotInDebugFrame) Error() string {
	return fmt.Sprintf("errkind: pc %s not in debug frame", e.PC)
}

// SymbolNotFound is returned when a named symbol lookup misses.
type SymbolNotFound struct {
	Name string
}

func (e *SymbolNotFound) Error() string {
	return fmt.Sprintf("errkind: symbol not found: %s", e.Name)
}

// FunctionNotFound is returned when a named or address-based function
// lookup misses.
type FunctionNotFound struct {
	Query string
}

func (e *FunctionNotFound) Error() string {
	return fmt.Sprintf("errkind: function not found: %s", e.Query)
}
