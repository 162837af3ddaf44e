package messaging

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindInvalidArgument  Kind = "invalid_argument"
	KindNotFound         Kind = "not_found"
	KindPermissionDenied Kind = "permission_denied"
	KindInvalidState     Kind = "invalid_state"
)

// Error is a categorized failure surfaced by user-intent operations.
// Use errors.Is against the Err* kind sentinels, or errors.As to read
// Message and the wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

var (
	ErrInvalidArgument  = &Error{Kind: KindInvalidArgument}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrPermissionDenied = &Error{Kind: KindPermissionDenied}
	ErrInvalidState     = &Error{Kind: KindInvalidState}
)

// Errors reported by store adapters.
var (
	ErrIndexUnavailable   = errors.New("messaging: ordered query needs an index that is not available")
	ErrConversationExists = errors.New("messaging: conversation already exists")
	ErrDocumentNotFound   = errors.New("messaging: document not found")
	ErrStorePermission    = errors.New("messaging: store rejected the operation")
	ErrUnstorableID       = errors.New("messaging: id cannot be stored")
)

func (e *Error) Error() string {
	msg := "messaging: " + string(e.Kind)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so wrapped errors compare equal to
// the bare kind sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func InvalidArgument(format string, args ...any) error {
	return newError(KindInvalidArgument, nil, format, args...)
}

func NotFound(err error, format string, args ...any) error {
	return newError(KindNotFound, err, format, args...)
}

func PermissionDenied(err error, format string, args ...any) error {
	return newError(KindPermissionDenied, err, format, args...)
}

func InvalidState(format string, args ...any) error {
	return newError(KindInvalidState, nil, format, args...)
}

// KindOf returns the category of err, or "" when it is not a *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
