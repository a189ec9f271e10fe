package logconfig

import (
	"errors"
	"fmt"
)

// Kind identifies the pipeline stage that failed.
type Kind string

// Error kinds.
const (
	FormatError     Kind = "FormatError"
	ResolutionError Kind = "ResolutionError"
	ValidationError Kind = "ValidationError"
	ApplyError      Kind = "ApplyError"
)

// Sentinels for errors.Is; they match any *Error of the same kind.
var (
	ErrFormat     = &Error{Kind: FormatError}
	ErrResolution = &Error{Kind: ResolutionError}
	ErrValidation = &Error{Kind: ValidationError}
	ErrApply      = &Error{Kind: ApplyError}
)

// Error is a located configuration failure.
type Error struct {
	Kind    Kind
	Path    Path
	Message string
	Cause   error
	// Partial is set on ApplyError when sinks added before the failure stayed active.
	Partial bool
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if len(e.Path) > 0 {
		msg += " at " + e.Path.String()
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches the kind sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Message != "" || t.Path != nil || t.Cause != nil {
		return false
	}
	return t.Kind == e.Kind
}

func newError(kind Kind, path Path, cause error, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Path:    path,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsPartial reports whether err is an ApplyError that left new sinks active.
func IsPartial(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == ApplyError && e.Partial
}
