// Package accel defines the boundary between a channel and the accelerator
// that services it: the registration record handed over, the interface an
// accelerator implements, and the errors it reports.
package accel

import (
	"errors"
	"fmt"
	"unsafe"

	"cohort/utils"
)

var (
	// ErrUnsupported reports that no accelerator is reachable from this
	// process (unknown syscall, unsupported OS).
	ErrUnsupported = errors.New("accel: accelerator not supported")
	// ErrInvalid reports a registration record with missing addresses.
	ErrInvalid = errors.New("accel: invalid registration")
	// ErrNotRegistered reports an unregister for an unknown registration.
	ErrNotRegistered = errors.New("accel: not registered")
)

// Registration is what the accelerator learns about a channel.  The three
// addresses must stay valid and in place until Unregister succeeds.
type Registration struct {
	Sender   unsafe.Pointer // control block of the host→accelerator ring
	Receiver unsafe.Pointer // control block of the accelerator→host ring
	Aux      unsafe.Pointer // 8-byte shared word
	Backoff  uint64         // passed through; meaning is accelerator-defined
	Identity uint8
}

// Validate checks that every address is present.
func (r Registration) Validate() error {
	switch {
	case r.Sender == nil:
		return fmt.Errorf("%w: nil sender", ErrInvalid)
	case r.Receiver == nil:
		return fmt.Errorf("%w: nil receiver", ErrInvalid)
	case r.Aux == nil:
		return fmt.Errorf("%w: nil aux word", ErrInvalid)
	}
	return nil
}

func (r Registration) String() string {
	return fmt.Sprintf("id=%d sender=%s receiver=%s aux=%s backoff=%d",
		r.Identity,
		utils.Hex(uint64(uintptr(r.Sender))),
		utils.Hex(uint64(uintptr(r.Receiver))),
		utils.Hex(uint64(uintptr(r.Aux))),
		r.Backoff)
}

// Accelerator registers and unregisters channels.  Unregister receives the
// same record that was registered.
type Accelerator interface {
	Register(reg Registration) error
	Unregister(reg Registration) error
}

// StatusError carries a non-success status returned by the accelerator.
type StatusError struct {
	Op     string // "register" or "unregister"
	Status int
	Err    error // underlying cause, e.g. a unix.Errno
}

func (e *StatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("accel: %s failed with status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("accel: %s failed with status %d", e.Op, e.Status)
}

func (e *StatusError) Unwrap() error { return e.Err }
