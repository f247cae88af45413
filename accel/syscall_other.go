//go:build !linux

package accel

import "cohort/constants"

// Syscall is only implemented on linux.
type Syscall struct {
	RegisterNr   uintptr
	UnregisterNr uintptr
}

func DefaultSyscall() Syscall {
	return Syscall{RegisterNr: constants.SysRegister, UnregisterNr: constants.SysUnregister}
}

func (Syscall) Register(Registration) error {
	return &StatusError{Op: "register", Status: -1, Err: ErrUnsupported}
}

func (Syscall) Unregister(Registration) error {
	return &StatusError{Op: "unregister", Status: -1, Err: ErrUnsupported}
}
