// Package errs defines the stable error kinds surfaced by the chronos core.
//
// Every surfaced error carries a Kind and the subject it refers to (an
// account address, reservation id or batch id) so callers can tell "not
// found" apart from "temporarily unavailable" and "invalid request".
package errs

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindMalformedAccount        Kind = "MalformedAccount"
	KindInvalidArgument         Kind = "InvalidArgument"
	KindReservationNotFound     Kind = "ReservationNotFound"
	KindReservationNotConfirmed Kind = "ReservationNotConfirmed"
	KindCannotCancelExecuted    Kind = "CannotCancelExecuted"
	KindAuctionNotStarted       Kind = "AuctionNotStarted"
	KindInvalidBatchSize        Kind = "InvalidBatchSize"
	KindBatchNotPending         Kind = "BatchNotPending"
	KindBatchNotFound           Kind = "BatchNotFound"
	KindChainUnavailable        Kind = "ChainUnavailable"
	KindStaleCache              Kind = "StaleCache"
)

// Sentinels for errors.Is matching against a kind.
var (
	ErrMalformedAccount        = &Error{Kind: KindMalformedAccount}
	ErrInvalidArgument         = &Error{Kind: KindInvalidArgument}
	ErrReservationNotFound     = &Error{Kind: KindReservationNotFound}
	ErrReservationNotConfirmed = &Error{Kind: KindReservationNotConfirmed}
	ErrCannotCancelExecuted    = &Error{Kind: KindCannotCancelExecuted}
	ErrAuctionNotStarted       = &Error{Kind: KindAuctionNotStarted}
	ErrInvalidBatchSize        = &Error{Kind: KindInvalidBatchSize}
	ErrBatchNotPending         = &Error{Kind: KindBatchNotPending}
	ErrBatchNotFound           = &Error{Kind: KindBatchNotFound}
	ErrChainUnavailable        = &Error{Kind: KindChainUnavailable}
	ErrStaleCache              = &Error{Kind: KindStaleCache}
)

type Error struct {
	Kind    Kind
	Subject string
	Msg     string
	Err     error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Subject != "" {
		msg += " [" + e.Subject + "]"
	}
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same kind, so the package sentinels work
// with errors.Is regardless of subject.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

func New(kind Kind, subject string, format string, args ...any) *Error {
	return &Error{Kind: kind, Subject: subject, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, subject string, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Subject: subject, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// SubjectOf returns the subject of the first *Error in err's chain.
func SubjectOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Subject
	}
	return ""
}

// Retryable reports whether the caller may retry the failed operation with
// backoff. Only transport failures qualify.
func Retryable(err error) bool {
	return errors.Is(err, ErrChainUnavailable)
}
