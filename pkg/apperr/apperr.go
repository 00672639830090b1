package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error so callers (HTTP, lambdas) can react without string matching.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindAuthorization Kind = "authorization"
	KindInvalidState  Kind = "invalid_state"
	KindInvalidCode   Kind = "invalid_code"
	KindNotFound      Kind = "not_found"
	KindConsistency   Kind = "consistency"
	KindRateLimited   Kind = "rate_limited"
	KindInternal      Kind = "internal"
)

// Error is a user-facing domain error.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap creates an error of the given kind that keeps the underlying cause.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func Validation(msg string) *Error    { return New(KindValidation, msg) }
func Authorization(msg string) *Error { return New(KindAuthorization, msg) }
func InvalidState(msg string) *Error  { return New(KindInvalidState, msg) }
func InvalidCode(msg string) *Error   { return New(KindInvalidCode, msg) }
func NotFound(msg string) *Error      { return New(KindNotFound, msg) }
func RateLimited(msg string) *Error   { return New(KindRateLimited, msg) }

// Consistency reports a pack/transaction mismatch detected inside an atomic write.
// Nothing was written; the caller may retry.
func Consistency(msg string, err error) *Error {
	return Wrap(KindConsistency, msg, err)
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the user-facing message of err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return "internal error"
}
