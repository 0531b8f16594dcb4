package meshkv

import (
	"errors"
	"fmt"
)

// Kind identifies the category of a failure returned by the coordinator or
// a node. It is the caller-facing equivalent of spec.md §7's error kinds
// plus invalid-argument, which the wire protocol also surfaces as a status
// code (§6).
type Kind string

const (
	KindNotFound              Kind = "not-found"
	KindAlreadyExists         Kind = "already-exists"
	KindMalformedStream       Kind = "malformed-stream"
	KindUnknownNode           Kind = "unknown-node"
	KindJoinFailed            Kind = "join-failed"
	KindCoordinatorUnreachable Kind = "coordinator-unreachable"
	KindInvalidArgument       Kind = "invalid-argument"
	KindInternal              Kind = "internal"
)

// Side identifies which half of the system originated an Error.
type Side string

const (
	SideCoordinator Side = "coordinator"
	SideLocal       Side = "local"
)

// Error is the typed error returned across the meshkv API. It always
// carries the Kind of failure and which Side observed it, so callers can
// branch without string-matching messages.
type Error struct {
	Kind    Kind
	Side    Side
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s (%s)", e.Kind, e.Side)
	}
	return fmt.Sprintf("%s (%s): %s", e.Kind, e.Side, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error with no wrapped cause.
func New(kind Kind, side Side, message string) *Error {
	return &Error{Kind: kind, Side: side, Message: message}
}

// Wrap builds an Error around an underlying cause, as cap_caller.go wraps
// failures with fmt.Errorf("...: %w", err) before returning them.
func Wrap(kind Kind, side Side, message string, err error) *Error {
	return &Error{Kind: kind, Side: side, Message: message, Err: err}
}

// KindOf extracts the Kind from err if it (or something it wraps) is a
// *Error. The second return is false for errors outside this package.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Is reports whether err is a meshkv *Error of the given kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
