// Package acceltest provides an accelerator double that records calls and
// fails on demand.
package acceltest

import (
	"sync"

	"cohort/accel"
)

// Recorder implements accel.Accelerator without touching the rings.
type Recorder struct {
	// RegisterErr, if set, is returned by every Register.
	RegisterErr error
	// UnregisterErr is returned by the first UnregisterFailures calls to
	// Unregister; a negative count fails forever.
	UnregisterErr      error
	UnregisterFailures int

	mu           sync.Mutex
	registered   []accel.Registration
	unregistered []accel.Registration
	attempts     int
}

func (r *Recorder) Register(reg accel.Registration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.RegisterErr != nil {
		return r.RegisterErr
	}
	r.registered = append(r.registered, reg)
	return nil
}

func (r *Recorder) Unregister(reg accel.Registration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts++
	if r.UnregisterErr != nil && (r.UnregisterFailures < 0 || r.attempts <= r.UnregisterFailures) {
		return r.UnregisterErr
	}
	r.unregistered = append(r.unregistered, reg)
	return nil
}

// Registered returns successful registrations in call order.
func (r *Recorder) Registered() []accel.Registration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]accel.Registration(nil), r.registered...)
}

// Unregistered returns successful unregistrations in call order.
func (r *Recorder) Unregistered() []accel.Registration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]accel.Registration(nil), r.unregistered...)
}

// Attempts counts every Unregister call, failed or not.
func (r *Recorder) Attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts
}

// Balanced reports whether every successful Register was matched by exactly
// one successful Unregister.
func (r *Recorder) Balanced() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.registered) == len(r.unregistered)
}
