// Package apierr defines the typed error kinds that cross the core
// boundary (spec.md §7). The REST layer's HTTP status mapping for them
// lives in internal/api (statusFor).
package apierr

import "fmt"

// Kind is one of the six error kinds the core boundary can surface.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindConflict
	KindInvalidArgument
	KindBackendError
	KindResourceExhausted
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindConflict:
		return "Conflict"
	case KindInvalidArgument:
		return "InvalidArgument"
	case KindBackendError:
		return "BackendError"
	case KindResourceExhausted:
		return "ResourceExhausted"
	default:
		return "Internal"
	}
}

// Error is the typed error returned on state-manager reply channels and
// surfaced by REST handlers.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...interface{}) *Error {
	return New(KindNotFound, format, args...)
}

func Conflict(format string, args ...interface{}) *Error {
	return New(KindConflict, format, args...)
}

func InvalidArgument(format string, args ...interface{}) *Error {
	return New(KindInvalidArgument, format, args...)
}

func BackendError(format string, args ...interface{}) *Error {
	return New(KindBackendError, format, args...)
}

func ResourceExhausted(format string, args ...interface{}) *Error {
	return New(KindResourceExhausted, format, args...)
}

func Internal(format string, args ...interface{}) *Error {
	return New(KindInternal, format, args...)
}

// As extracts an *Error from a generic error, returning ok=false if err is
// not one (or is nil), in which case callers should treat it as Internal.
func As(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	e, ok := err.(*Error)
	return e, ok
}
