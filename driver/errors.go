package driver

import "errors"

var (
	// ErrWokenUp aborts a blocking Poll after a Wakeup call.
	ErrWokenUp = errors.New("driver: poll woken up")

	// ErrInvalidState reports a transient illegal-state condition caused by
	// an administrative call racing the owning loop. Recoverable: the loop
	// services pending control commands and polls again.
	ErrInvalidState = errors.New("driver: invalid consumer state")

	// ErrClosed reports an operation on a released handle.
	ErrClosed = errors.New("driver: closed")
)

// IsWakeup reports whether err is a wakeup interruption.
func IsWakeup(err error) bool { return errors.Is(err, ErrWokenUp) }

// IsStateConflict reports whether err is a recoverable illegal-state fault.
func IsStateConflict(err error) bool { return errors.Is(err, ErrInvalidState) }

// Recoverable reports whether a poll fault should be serviced by the control
// dispatcher instead of tearing the loop down.
func Recoverable(err error) bool { return IsWakeup(err) || IsStateConflict(err) }
