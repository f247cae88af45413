// loopback.go
//
// In-process accelerator emulator.  For every registered channel it runs
// one worker that plays the hardware side: it parses both control blocks,
// drains the sender ring, runs each element through an optional transform,
// pushes the result into the receiver ring and publishes a running element
// count into the aux word.
//
// Spin policy follows the pinned-consumer pattern:
//   • Dedicated OS thread, optionally pinned to one core.
//   • Tight spin while the worker moved something within HotWindow.
//   • Once cold, yield the thread every Backoff consecutive misses; the
//     registration's threshold is used exactly as a device would.
//   • Exits only when its Flags are shut down; done is closed exactly once.

package loopback

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"cohort/accel"
	"cohort/constants"
	"cohort/control"
	"cohort/debug"
	"cohort/ring"
)

var (
	// ErrIdentityBusy reports a second registration under a live identity.
	ErrIdentityBusy = errors.New("loopback: identity already registered")
	// ErrLayout reports sender and receiver rings with different slot sizes.
	ErrLayout = errors.New("loopback: sender and receiver element sizes differ")
	// ErrStopTimeout reports a worker that did not exit in time.
	ErrStopTimeout = errors.New("loopback: worker did not stop")
)

// Transform rewrites one element.  dst and src have the ring's element size
// and do not overlap.
type Transform func(dst, src []byte)

// Accelerator emulates the device side of any number of channels, one
// worker each.  Safe for concurrent use.
type Accelerator struct {
	core        int
	transform   Transform
	hotWindow   time.Duration
	stopTimeout time.Duration

	mu      sync.Mutex
	workers map[uint8]*worker
}

// Option configures an Accelerator.
type Option func(*Accelerator)

// WithCore pins workers to a logical CPU.  Negative means unpinned.
func WithCore(core int) Option { return func(a *Accelerator) { a.core = core } }

// WithTransform installs a per-element transform.  The default copies.
func WithTransform(fn Transform) Option { return func(a *Accelerator) { a.transform = fn } }

// WithHotWindow sets how long a worker keeps tight-spinning after moving an
// element.  Zero keeps it hot for good once it has moved anything.
func WithHotWindow(d time.Duration) Option { return func(a *Accelerator) { a.hotWindow = d } }

// WithStopTimeout bounds how long Unregister waits for the worker to exit.
func WithStopTimeout(d time.Duration) Option { return func(a *Accelerator) { a.stopTimeout = d } }

// New returns an emulator with no registered channels.
func New(opts ...Option) *Accelerator {
	a := &Accelerator{
		core:        -1,
		hotWindow:   constants.LoopbackHotWindow,
		stopTimeout: constants.LoopbackStopTimeout,
		workers:     make(map[uint8]*worker),
	}
	for _, o := range opts {
		o(a)
	}
	if a.transform == nil {
		a.transform = func(dst, src []byte) { copy(dst, src) }
	}
	return a
}

// Register opens both rings from their control blocks and starts a worker.
func (a *Accelerator) Register(reg accel.Registration) error {
	if err := reg.Validate(); err != nil {
		return err
	}
	tx, err := ring.Open(reg.Sender)
	if err != nil {
		return fmt.Errorf("loopback: sender: %w", err)
	}
	rx, err := ring.Open(reg.Receiver)
	if err != nil {
		return fmt.Errorf("loopback: receiver: %w", err)
	}
	if tx.ElemSize() != rx.ElemSize() {
		return fmt.Errorf("%w: %d vs %d", ErrLayout, tx.ElemSize(), rx.ElemSize())
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.workers[reg.Identity]; ok {
		return fmt.Errorf("%w: %d", ErrIdentityBusy, reg.Identity)
	}
	w := &worker{
		tx:        tx,
		rx:        rx,
		aux:       (*uint64)(reg.Aux),
		backoff:   reg.Backoff,
		transform: a.transform,
		flags:     control.NewFlags(a.hotWindow),
		done:      make(chan struct{}),
	}
	a.workers[reg.Identity] = w
	w.start(a.core)
	debug.DropMessage("LOOPBACK", "worker started: "+reg.String())
	return nil
}

// Unregister stops and joins the identity's worker.  After it returns nil
// the worker no longer touches the region.
func (a *Accelerator) Unregister(reg accel.Registration) error {
	a.mu.Lock()
	w, ok := a.workers[reg.Identity]
	a.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: identity %d", accel.ErrNotRegistered, reg.Identity)
	}

	w.flags.Shutdown()
	select {
	case <-w.done:
	case <-time.After(a.stopTimeout):
		return fmt.Errorf("%w after %s", ErrStopTimeout, a.stopTimeout)
	}

	a.mu.Lock()
	delete(a.workers, reg.Identity)
	a.mu.Unlock()
	debug.DropMessage("LOOPBACK", fmt.Sprintf("worker stopped: id=%d moved=%d", reg.Identity, w.moved.Load()))
	return nil
}

// Moved returns how many elements the identity's worker has delivered.
func (a *Accelerator) Moved(identity uint8) (uint64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	w, ok := a.workers[identity]
	if !ok {
		return 0, false
	}
	return w.moved.Load(), true
}

// Active is the number of running workers.
func (a *Accelerator) Active() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.workers)
}

type worker struct {
	tx, rx    *ring.View
	aux       *uint64
	backoff   uint64
	transform Transform
	flags     *control.Flags
	moved     atomic.Uint64
	done      chan struct{}
}

func (w *worker) start(core int) {
	go func() {
		// ── thread & affinity ─────────────────────────────
		runtime.LockOSThread()
		if core >= 0 {
			if err := setAffinity(core); err != nil {
				debug.DropError("LOOPBACK affinity", err)
			}
		}
		defer func() {
			runtime.UnlockOSThread()
			close(w.done)
		}()
		w.loop()
	}()
}

func (w *worker) loop() {
	in := make([]byte, w.tx.ElemSize())
	out := make([]byte, w.rx.ElemSize())
	pending := false
	var miss uint64

	for {
		if !pending && w.tx.TryPopBytes(in) {
			w.transform(out, in)
			pending = true
		}
		// a full receiver holds the element until the host drains it
		if pending && w.rx.TryPushBytes(out) {
			pending = false
			atomic.StoreUint64(w.aux, w.moved.Add(1))
			w.flags.SignalActivity()
			miss = 0
			continue
		}

		if w.flags.Stopped() {
			return
		}

		// ---------- choose spin mode ------------------
		w.flags.PollCooldown()
		if w.flags.Hot() {
			continue
		}
		if miss++; miss >= w.backoff {
			miss = 0
			runtime.Gosched()
		}
	}
}
