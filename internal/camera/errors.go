package camera

import (
	"errors"
	"fmt"
)

// Error kinds. Match with errors.Is.
var (
	ErrDeviceUnavailable = errors.New("device unavailable")
	ErrUnsupportedDevice = errors.New("unsupported device")
	ErrFormatRejected    = errors.New("format rejected")
	ErrAllocationFailed  = errors.New("buffer allocation failed")
	ErrMappingFailed     = errors.New("buffer mapping failed")
	ErrDeviceIO          = errors.New("device i/o error")
	ErrIO                = errors.New("i/o error")
	ErrStaleBuffer       = errors.New("stale buffer handle")
)

// Error is returned by every session and capture operation.
type Error struct {
	Kind  error
	Op    string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Cause)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Kind)
}

// Unwrap exposes both the kind and the underlying cause, so errors.Is
// matches the sentinel as well as an errno carried in Cause.
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

func newError(kind error, op string, cause error) *Error {
	return &Error{
		Kind:  kind,
		Op:    op,
		Cause: cause,
	}
}

// IsRecoverable reports whether err leaves the device worth reopening.
// Unsupported devices and filesystem errors are not.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnsupportedDevice) || errors.Is(err, ErrIO) {
		return false
	}
	return errors.Is(err, ErrDeviceIO) ||
		errors.Is(err, ErrDeviceUnavailable) ||
		errors.Is(err, ErrAllocationFailed) ||
		errors.Is(err, ErrMappingFailed) ||
		errors.Is(err, ErrFormatRejected) ||
		errors.Is(err, ErrStaleBuffer)
}
