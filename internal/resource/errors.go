package resource

import (
	"errors"
	"fmt"
)

// ErrorKind is a member of the closed error taxonomy surfaced by the core.
type ErrorKind string

const (
	KindResourceNotFound       ErrorKind = "ResourceNotFound"
	KindResourceAlreadyRunning ErrorKind = "ResourceAlreadyRunning"
	KindResourceNotRunning     ErrorKind = "ResourceNotRunning"
	KindResourceRunning        ErrorKind = "ResourceRunning"
	KindSnapshotsExist         ErrorKind = "SnapshotsExist"
	KindImageNotFound          ErrorKind = "ImageNotFound"
	KindArgumentNotFound       ErrorKind = "ArgumentNotFound"
	KindConnectionFailed       ErrorKind = "ConnectionFailed"
	KindAPIError               ErrorKind = "APIError"
)

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrResourceNotFound       = &Error{Kind: KindResourceNotFound}
	ErrResourceAlreadyRunning = &Error{Kind: KindResourceAlreadyRunning}
	ErrResourceNotRunning     = &Error{Kind: KindResourceNotRunning}
	ErrResourceRunning        = &Error{Kind: KindResourceRunning}
	ErrSnapshotsExist         = &Error{Kind: KindSnapshotsExist}
	ErrImageNotFound          = &Error{Kind: KindImageNotFound}
	ErrArgumentNotFound       = &Error{Kind: KindArgumentNotFound}
	ErrConnectionFailed       = &Error{Kind: KindConnectionFailed}
	ErrAPIError               = &Error{Kind: KindAPIError}
)

// Error is the only error type that crosses the core boundary.
//
// Message is the stable, user-facing description of the kind. Detail keeps
// the backend's original text verbatim when the error was translated from a
// backend fault. Count is set for SnapshotsExist.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Detail  string    `json:"detail,omitempty"`
	Count   int       `json:"count,omitempty"`
}

func (e *Error) Error() string {
	if e.Detail != "" && e.Detail != e.Message {
		return fmt.Sprintf("%s: %s", e.Message, e.Detail)
	}
	return e.Message
}

// Is matches on kind so callers can write errors.Is(err, resource.ErrResourceNotFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// NotFound reports that an identifier resolves in neither backend namespace.
func NotFound() *Error {
	return &Error{Kind: KindResourceNotFound, Message: "Requested Resource not found -> Check identifier"}
}

// NotFoundf reports a missing sub-resource (snapshot, volume) by name.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Kind: KindResourceNotFound, Message: fmt.Sprintf(format, args...)}
}

// AlreadyRunning reports a start on a resource that is already running.
func AlreadyRunning() *Error {
	return &Error{Kind: KindResourceAlreadyRunning, Message: "Requested resource is already running"}
}

// NotRunning reports a stop/restart/shutdown on a resource that is not running.
func NotRunning() *Error {
	return &Error{Kind: KindResourceNotRunning, Message: "Requested resource is not running"}
}

// Running reports a remove on a resource that still holds a live process.
func Running() *Error {
	return &Error{
		Kind:    KindResourceRunning,
		Message: "Requested Resource is still running, please shutoff/stop resource before continue",
	}
}

// SnapshotsExist refuses to delete a domain that still owns count snapshots.
func SnapshotsExist(count int) *Error {
	return &Error{
		Kind:    KindSnapshotsExist,
		Message: fmt.Sprintf("Domain still has %d snapshot(s) -> delete all snapshots before deleting the domain", count),
		Count:   count,
	}
}

// ImageNotFound reports a container run against an unknown image reference.
func ImageNotFound(detail string) *Error {
	return &Error{Kind: KindImageNotFound, Message: "Image not found -> Search for spelling mistakes", Detail: detail}
}

// ArgumentNotFound reports an option the backend does not recognize.
func ArgumentNotFound(detail string) *Error {
	return &Error{
		Kind:    KindArgumentNotFound,
		Message: detail + " -> Search the documentation for the right argument",
		Detail:  detail,
	}
}

// ConnectionFailed reports an unreachable daemon.
func ConnectionFailed(detail string) *Error {
	return &Error{
		Kind:    KindConnectionFailed,
		Message: "Failed to establish a connection to daemon -> Contact your system administrator",
		Detail:  detail,
	}
}

// APIError carries any other backend fault with its original message.
func APIError(detail string) *Error {
	return &Error{Kind: KindAPIError, Message: detail, Detail: detail}
}

// KindOf returns the taxonomy kind of err. Errors that are not *Error are
// reported as APIError.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindAPIError
}

// AsError converts any error into a taxonomy error. Non-taxonomy errors
// become APIError with their message preserved.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return APIError(err.Error())
}
