// Package service implements the table capacity ledger, the waitlist, the
// collateral hold lifecycle and the maintenance sweep on top of the
// repository stores and the payment gateway.
package service

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the HTTP boundary.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindNotFound
	KindForbidden
	KindExternal
	KindSignature
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindExternal:
		return "external"
	case KindSignature:
		return "signature"
	}
	return "internal"
}

// Error is a classified domain error.  Msg is safe to show to callers;
// Err carries the underlying cause for logs.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Msg != "":
		return e.Msg + ": " + e.Err.Error()
	case e.Err != nil:
		return e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches errors of the same kind and message so that wrapped copies
// of a sentinel still compare equal to it.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && t.Msg == e.Msg
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Domain errors returned by the services.
var (
	ErrAlreadySignedUp     = &Error{Kind: KindConflict, Msg: "user already has an active signup"}
	ErrAlreadyWaitlisted   = &Error{Kind: KindConflict, Msg: "user is already on the waitlist"}
	ErrTableLocked         = &Error{Kind: KindConflict, Msg: "table is locked"}
	ErrTableFull           = &Error{Kind: KindConflict, Msg: "table is full"}
	ErrTableNotFull        = &Error{Kind: KindConflict, Msg: "table is not full"}
	ErrUserSuspended       = &Error{Kind: KindConflict, Msg: "user is suspended"}
	ErrSetupTooLate        = &Error{Kind: KindConflict, Msg: "event is too close for a deferred hold"}
	ErrHoldNotDeferrable   = &Error{Kind: KindConflict, Msg: "hold is not awaiting a day-of placement"}
	ErrNoPaymentMethod     = &Error{Kind: KindConflict, Msg: "no default payment method on customer"}
	ErrIntentNotUsable     = &Error{Kind: KindConflict, Msg: "intent is not confirmed"}
	ErrTableNotFound       = &Error{Kind: KindNotFound, Msg: "table not found"}
	ErrUserNotFound        = &Error{Kind: KindNotFound, Msg: "user not found"}
	ErrSignupNotFound      = &Error{Kind: KindNotFound, Msg: "no signup for this table"}
	ErrNoHoldFound         = &Error{Kind: KindNotFound, Msg: "no hold found for this user and table"}
	ErrNoSetupFound        = &Error{Kind: KindNotFound, Msg: "no setup intent found for this user and table"}
	ErrForbidden           = &Error{Kind: KindForbidden, Msg: "not allowed to act for another user"}
	ErrCustomerSetupFailed = &Error{Kind: KindExternal, Msg: "could not set up payment customer"}
	ErrGateway             = &Error{Kind: KindExternal, Msg: "payment gateway error"}
	ErrNotification        = &Error{Kind: KindExternal, Msg: "could not send notification"}
	ErrInvalidSignature    = &Error{Kind: KindSignature, Msg: "invalid webhook signature"}
)

// Invalid returns a validation error with the given message.
func Invalid(format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

// wrap attaches cause to a copy of the sentinel.
func wrap(sentinel *Error, cause error) error {
	return &Error{Kind: sentinel.Kind, Msg: sentinel.Msg, Err: cause}
}
