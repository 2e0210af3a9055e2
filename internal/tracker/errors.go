package tracker

import (
	"errors"
	"fmt"
)

// Kind is the category of a failed interaction.
type Kind string

const (
	// KindValidation marks input rejected before any state change.
	KindValidation Kind = "validation"

	// KindRemoteCall marks a failed create or update that was reverted locally.
	KindRemoteCall Kind = "remote_call"

	// KindLoad marks a failed list; the previous record set is kept.
	KindLoad Kind = "load"

	// KindInFlight marks a toggle refused because the same cell is still saving.
	KindInFlight Kind = "in_flight"

	// KindConfirmationRequired marks a destructive action that was not confirmed.
	KindConfirmationRequired Kind = "confirmation_required"
)

// Error is returned by every tracker interaction that did not succeed. Local
// state is already consistent when it is returned.
type Error struct {
	Kind       Kind
	Op         string
	Message    string
	Underlying error
}

func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s [%s]: %s: %v", e.Op, e.Kind, e.Message, e.Underlying)
	}
	return fmt.Sprintf("%s [%s]: %s", e.Op, e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Underlying
}

func newError(kind Kind, op, message string, underlying error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Underlying: underlying}
}

// ErrConfirmationRequired is returned by RemovePerson without confirmation.
var ErrConfirmationRequired = &Error{
	Kind:    KindConfirmationRequired,
	Op:      "remove_person",
	Message: "removal must be confirmed",
}

// KindOf extracts the kind from err, or "" if err is not a tracker error.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return ""
}

// IsKind reports whether err is a tracker error of the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
