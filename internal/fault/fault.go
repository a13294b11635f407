// Package fault defines the error taxonomy shared by every readykit component.
//
// Errors are classified by Kind so callers can decide, without string
// matching, whether a failure should be surfaced to the user, retried on the
// next connectivity event, or treated as fatal to the current operation:
//
//   - KindDevice: camera or geolocation unavailable/denied. Surfaced, never
//     retried automatically.
//   - KindNetwork: transient transport failure. Retried via queue flush or
//     the next checklist debounce cycle.
//   - KindValidation: payload rejected locally or by the remote. Surfaced,
//     not retried until corrected.
//   - KindStorage: local persistence failure. Fatal to the operation;
//     previously durable state is left untouched.
//   - KindUnknown: anything else. Treated as retriable.
package fault

import (
	"errors"
	"fmt"
)

// Kind categorizes an error.
type Kind string

const (
	KindDevice     Kind = "device"
	KindNetwork    Kind = "network"
	KindValidation Kind = "validation"
	KindStorage    Kind = "storage"
	KindUnknown    Kind = "unknown"
)

// Common Reason values. Reasons are free-form; these are the ones other
// packages branch on.
const (
	ReasonTimeout           = "timeout"
	ReasonUnsupported       = "unsupported"
	ReasonPermissionDenied  = "permission_denied"
	ReasonDeviceUnavailable = "device_unavailable"
	ReasonRejected          = "rejected"
)

// Error is a classified error.
type Error struct {
	// Kind identifies the error category.
	Kind Kind

	// Op names the operation that failed, e.g. "submit report".
	Op string

	// Reason is a short machine-readable detail, e.g. "timeout".
	Reason string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Reason != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s (%s): %v", e.Op, e.Kind, e.Reason, e.Err)
	case e.Reason != "":
		return fmt.Sprintf("%s: %s (%s)", e.Op, e.Kind, e.Reason)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error without an underlying cause.
func New(kind Kind, op, reason string) *Error {
	return &Error{Kind: kind, Op: op, Reason: reason}
}

// Wrap classifies err. If err is nil, Wrap returns nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Wrapf is Wrap with a reason.
func Wrapf(kind Kind, op, reason string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Reason: reason, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain.
// Returns KindUnknown for unclassified errors and "" for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// ReasonOf returns the Reason of the first *Error in err's chain.
func ReasonOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Reason
	}
	return ""
}

// IsDevice reports whether err is a device error.
func IsDevice(err error) bool { return KindOf(err) == KindDevice }

// IsNetwork reports whether err is a network error.
func IsNetwork(err error) bool { return KindOf(err) == KindNetwork }

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// IsStorage reports whether err is a storage error.
func IsStorage(err error) bool { return KindOf(err) == KindStorage }
