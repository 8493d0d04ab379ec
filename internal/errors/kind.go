package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies every failure the fetch core can report.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidURL
	KindPathEscape
	KindIO
	KindHTTP
	KindNetwork
	KindEmptyDownload
	KindSink
	KindCancelled
	KindChecksum
)

func (k Kind) String() string {
	switch k {
	case KindInvalidURL:
		return "invalid_url"
	case KindPathEscape:
		return "path_escape"
	case KindIO:
		return "io_failure"
	case KindHTTP:
		return "http_error"
	case KindNetwork:
		return "network_error"
	case KindEmptyDownload:
		return "empty_download"
	case KindSink:
		return "sink_failure"
	case KindCancelled:
		return "cancelled"
	case KindChecksum:
		return "checksum_mismatch"
	default:
		return "unknown"
	}
}

// Error is a classified failure. Status is only set for KindHTTP.
type Error struct {
	Kind   Kind
	Status int
	Op     string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Kind == KindHTTP && e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, &Error{Kind: KindIO}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Status == 0 || t.Status == e.Status)
}

// New wraps err with a kind and the operation that failed.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// HTTPStatus builds a KindHTTP error for a non-2xx response.
func HTTPStatus(op string, status int, msg string) *Error {
	var err error
	if msg != "" {
		err = stderrors.New(msg)
	}
	return &Error{Kind: KindHTTP, Op: op, Status: status, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Status
	}
	return 0
}
