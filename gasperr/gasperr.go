// Package gasperr defines the structured error taxonomy used across the
// descriptor, scanner, and stack machine packages. Errors preserve message
// and causal context while still implementing the standard error interface,
// so callers can use errors.Is/errors.As across recovery chains.
package gasperr

import (
	"errors"
	"fmt"
)

// Kind classifies a gasp failure into one of the categories from the error
// handling design: schema-construction errors fail descriptor construction
// outright, everything else is recorded and parsing continues, except
// ResourceExhausted which is fatal during a feed.
type Kind int

const (
	// UnsupportedType reports a host type that cannot be expressed as a
	// Descriptor (a channel, function, or other non-expressible construct).
	UnsupportedType Kind = iota
	// CyclicType reports a recursive type graph deeper than the descriptor
	// registry's safety cap.
	CyclicType
	// ScannerRecovery reports a malformed token the scanner dropped or
	// reinterpreted as text. Non-fatal.
	ScannerRecovery
	// SchemaMismatch reports an unknown field, wrong element type, or
	// unresolved union encountered by the stack machine. Non-fatal; the
	// value slot is left unset and parsing continues.
	SchemaMismatch
	// PrimitiveParseFailure reports a primitive accumulator that failed to
	// parse into its declared type. The slot defaults to the zero value.
	PrimitiveParseFailure
	// ResourceExhausted reports the accumulated text budget being exceeded.
	// Fatal: the parser transitions to a permanent failed state.
	ResourceExhausted
)

// String renders the Kind for diagnostics and test failure messages.
func (k Kind) String() string {
	switch k {
	case UnsupportedType:
		return "unsupported_type"
	case CyclicType:
		return "cyclic_type"
	case ScannerRecovery:
		return "scanner_recovery"
	case SchemaMismatch:
		return "schema_mismatch"
	case PrimitiveParseFailure:
		return "primitive_parse_failure"
	case ResourceExhausted:
		return "resource_exhausted"
	default:
		return "unknown"
	}
}

// Error is a structured gasp failure. Cause links to an underlying error,
// enabling chains that survive across recovery boundaries while still
// supporting errors.Is/As through Unwrap.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// New constructs an Error of the given kind with the provided message.
func New(kind Kind, message string) *Error {
	if message == "" {
		message = kind.String()
	}
	return &Error{Kind: kind, Message: message}
}

// Newf formats according to a format specifier and returns the result as an
// Error of the given kind.
func Newf(kind Kind, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap constructs an Error of the given kind that wraps an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause to support errors.Is/As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is reports whether target is a gasp error of the same Kind. This lets
// callers write errors.Is(err, gasperr.New(gasperr.CyclicType, "")) style
// checks without caring about the message.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}

// Recorded pairs a non-fatal Error with the point in the frame stack where
// it was observed, for later inspection via Parser.Errors().
type Recorded struct {
	// Err is the recorded error.
	Err *Error
	// Path names where the error was observed, as supplied by the recording
	// component: the stack machine passes the tag name involved (or the
	// record's type name for a failed JSON recovery), the scanner the tag
	// name or offending token. It does not include the enclosing frames.
	Path string
}

// Recorder accumulates non-fatal errors observed while feeding a parser. It
// is not safe for concurrent use, matching the single-writer contract of
// the rest of the package.
type Recorder struct {
	items []Recorded
}

// Record appends a non-fatal error with the given breadcrumb path.
func (r *Recorder) Record(err *Error, path string) {
	if err == nil {
		return
	}
	r.items = append(r.items, Recorded{Err: err, Path: path})
}

// Errors returns a snapshot of all recorded errors in observation order.
func (r *Recorder) Errors() []Recorded {
	if len(r.items) == 0 {
		return nil
	}
	out := make([]Recorded, len(r.items))
	copy(out, r.items)
	return out
}

// Len reports how many errors have been recorded.
func (r *Recorder) Len() int { return len(r.items) }
