// Package errs classifies failures into the four kinds callers act on.
//
// Configuration errors are caller mistakes and are reported before any work
// starts. Resource and format errors come from the filesystem and from
// decoders and are never retried. Numerical errors abort an optimization run.
//
//	if errors.Is(err, errs.ErrFormat) { ... }
//	kind, ok := errs.KindOf(err)
package errs

import (
	"errors"
	"fmt"
)

// Kind identifies an error class.
type Kind int

// Error kinds.
const (
	KindUnknown Kind = iota
	KindConfiguration
	KindResource
	KindNumerical
	KindFormat
)

// Sentinels matched by errors.Is against any *Error of the same kind.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrResource      = errors.New("resource error")
	ErrNumerical     = errors.New("numerical error")
	ErrFormat        = errors.New("format error")
)

// String returns the lower-case kind name used in log lines.
func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindResource:
		return "resource"
	case KindNumerical:
		return "numerical"
	case KindFormat:
		return "format"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindConfiguration:
		return ErrConfiguration
	case KindResource:
		return ErrResource
	case KindNumerical:
		return ErrNumerical
	case KindFormat:
		return ErrFormat
	default:
		return nil
	}
}

// Error is a classified failure.
type Error struct {
	Kind Kind   // Error class
	Op   string // Operation that failed, e.g. "vgg.Load"
	Path string // File involved, if any
	Err  error  // Underlying cause
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Op
	if e.Path != "" {
		msg += " " + e.Path
	}
	if msg != "" {
		msg += ": "
	}
	msg += e.Kind.String()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// New returns a classified error. A nil err yields nil.
func New(kind Kind, op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// Configuration wraps err as a configuration error.
func Configuration(op string, err error) error {
	return New(KindConfiguration, op, "", err)
}

// Configurationf formats a configuration error.
func Configurationf(op, format string, args ...any) error {
	return Configuration(op, fmt.Errorf(format, args...))
}

// Resource wraps err as a resource error on path.
func Resource(op, path string, err error) error {
	return New(KindResource, op, path, err)
}

// Corrupt wraps err as a resource error on path whose cause is a format
// failure. The result matches both ErrResource and ErrFormat; KindOf reports
// KindResource.
func Corrupt(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return Resource(op, path, &Error{Kind: KindFormat, Err: err})
}

// Format wraps err as a format error on path.
func Format(op, path string, err error) error {
	return New(KindFormat, op, path, err)
}

// Formatf formats a format error on path.
func Formatf(op, path, format string, args ...any) error {
	return Format(op, path, fmt.Errorf(format, args...))
}

// Numericalf formats a numerical error.
func Numericalf(op, format string, args ...any) error {
	return New(KindNumerical, op, "", fmt.Errorf(format, args...))
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return KindUnknown, false
}
