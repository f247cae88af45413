//go:build linux

package accel

import (
	"errors"

	"golang.org/x/sys/unix"

	"cohort/constants"
)

// Syscall reaches the accelerator through a pair of privileged system calls.
// The registration is per process: the kernel side keys it by caller, so
// Unregister passes no arguments.
type Syscall struct {
	RegisterNr   uintptr
	UnregisterNr uintptr
}

// DefaultSyscall uses the reference kernel's syscall numbers.
func DefaultSyscall() Syscall {
	return Syscall{RegisterNr: constants.SysRegister, UnregisterNr: constants.SysUnregister}
}

func (s Syscall) Register(reg Registration) error {
	if err := reg.Validate(); err != nil {
		return err
	}
	_, _, errno := unix.Syscall6(s.RegisterNr,
		uintptr(reg.Sender),
		uintptr(reg.Receiver),
		uintptr(reg.Aux),
		uintptr(reg.Backoff),
		0, 0)
	return status("register", errno)
}

func (s Syscall) Unregister(Registration) error {
	_, _, errno := unix.Syscall(s.UnregisterNr, 0, 0, 0)
	return status("unregister", errno)
}

// status maps a kernel return to the accelerator's negative status code.
func status(op string, errno unix.Errno) error {
	if errno == 0 {
		return nil
	}
	if errno == unix.ENOSYS {
		return &StatusError{Op: op, Status: -int(errno), Err: errors.Join(ErrUnsupported, errno)}
	}
	return &StatusError{Op: op, Status: -int(errno), Err: errno}
}
