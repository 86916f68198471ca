// Package apierr defines the error kinds shared by tinymem's HTTP and
// stdio transports. A single Kind maps to both an HTTP status
// and a stdio JSON-RPC-style numeric code.
package apierr

import "fmt"

// Kind classifies an error at the API boundary.
type Kind string

const (
	Unauthorized       Kind = "unauthorized"
	NotFound           Kind = "not_found"
	Conflict           Kind = "conflict"
	BadRequest         Kind = "bad_request"
	Timeout            Kind = "timeout"
	BackendUnavailable Kind = "backend_unavailable"
	Internal           Kind = "internal"
)

// Error is a classified error carrying a Kind and a human-readable reason.
type Error struct {
	Kind   Kind
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func New(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

func Unauthorizedf(format string, a ...any) *Error {
	return New(Unauthorized, fmt.Sprintf(format, a...))
}

func NotFoundf(format string, a ...any) *Error {
	return New(NotFound, fmt.Sprintf(format, a...))
}

func Conflictf(format string, a ...any) *Error {
	return New(Conflict, fmt.Sprintf(format, a...))
}

func BadRequestf(format string, a ...any) *Error {
	return New(BadRequest, fmt.Sprintf(format, a...))
}

func Timeoutf(format string, a ...any) *Error {
	return New(Timeout, fmt.Sprintf(format, a...))
}

func BackendUnavailablef(format string, a ...any) *Error {
	return New(BackendUnavailable, fmt.Sprintf(format, a...))
}

func Internalf(format string, a ...any) *Error {
	return New(Internal, fmt.Sprintf(format, a...))
}

// As extracts an *Error from err, if it is one.
func As(err error) (*Error, bool) {
	e, ok := err.(*Error)
	return e, ok
}

// HTTPStatus maps a Kind to its HTTP status code.
func (k Kind) HTTPStatus() int {
	switch k {
	case Unauthorized:
		return 401
	case NotFound:
		return 404
	case Conflict:
		return 409
	case BadRequest:
		return 400
	case Timeout:
		return 504
	case BackendUnavailable:
		return 503
	default:
		return 500
	}
}

// StdioCode maps a Kind to its JSON-RPC-style numeric code.
func (k Kind) StdioCode() int {
	switch k {
	case Unauthorized:
		return -32001
	case NotFound:
		return -32002
	case Conflict:
		return -32003
	case BadRequest:
		return -32004
	case Timeout:
		return -32005
	case BackendUnavailable:
		return -32006
	default:
		return -32000
	}
}
