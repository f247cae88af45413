// Package channel binds two rings and a shared aux word to an accelerator.
//
// Layout of the single pinned region handed over at registration:
//
//	offset 0                 aux word (own 128-byte line)
//	offset 128               sender ring   (host → accelerator)
//	offset 128 + ring size   receiver ring (accelerator → host)
//
// A Channel is registered exactly once at construction and unregistered
// exactly once by Close.  The host side follows SPSC discipline: one
// goroutine may push while another pops, never two on the same direction.
package channel

import (
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"unsafe"

	"cohort/accel"
	"cohort/constants"
	"cohort/mem"
	"cohort/ring"
	"cohort/utils"
)

var (
	// ErrRegistrationFailed wraps the accelerator's register status.
	ErrRegistrationFailed = errors.New("channel: registration failed")
	// ErrUnregisterFailed wraps the final unregister status.  The region
	// has been leaked.
	ErrUnregisterFailed = errors.New("channel: unregister failed, region leaked")
)

// Channel is a registered pair of rings.  Do not copy.
type Channel[T any] struct {
	_ noCopy

	tx      *ring.Ring[T]
	rx      *ring.Ring[T]
	aux     *uint64
	stats   *counters
	b       *binding
	cleanup runtime.Cleanup
}

// Register allocates the shared region, formats both rings and the aux word
// in it, and registers the addresses with acc.  On any failure nothing stays
// registered and the region is released.
func Register[T any](acc accel.Accelerator, capacity int, opts ...Option) (*Channel[T], error) {
	o := defaults()
	for _, fn := range opts {
		fn(&o)
	}
	l, err := ring.LayoutOf[T](capacity)
	if err != nil {
		return nil, err
	}
	size, ok := utils.MulSize(l.Size, 2)
	if ok {
		size, ok = utils.AddSize(size, constants.AuxCellSize)
	}
	if !ok {
		return nil, fmt.Errorf("%w: two rings of %d bytes", ring.ErrSizeOverflow, l.Size)
	}

	a := o.alloc
	if a == nil {
		a = mem.Default()
		if o.locked {
			a = mem.Locked()
		}
	}
	region, err := a.Alloc(size, constants.Align)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ring.ErrAlloc, err)
	}

	b := region.Bytes()
	tx, err := ring.Init[T](b[constants.AuxCellSize:constants.AuxCellSize+l.Size], capacity)
	if err != nil {
		_ = region.Free()
		return nil, err
	}
	rx, err := ring.Init[T](b[constants.AuxCellSize+l.Size:], capacity)
	if err != nil {
		_ = region.Free()
		return nil, err
	}
	aux := (*uint64)(region.Ptr())
	atomic.StoreUint64(aux, o.aux)

	bind := &binding{
		acc:    acc,
		region: region,
		ledger: o.ledger,
		reg: accel.Registration{
			Sender:   tx.Control(),
			Receiver: rx.Control(),
			Aux:      unsafe.Pointer(aux),
			Backoff:  o.backoff,
			Identity: o.identity,
		},
		retries:    o.retries,
		retryDelay: o.retryDelay,
	}
	if err := bind.register(l, fmt.Sprintf("%T", acc)); err != nil {
		_ = region.Free()
		return nil, err
	}

	c := &Channel[T]{tx: tx, rx: rx, aux: aux, b: bind}
	if o.stats {
		c.stats = new(counters)
	}
	c.cleanup = runtime.AddCleanup(c, (*binding).collected, bind)
	return c, nil
}

// MustRegister is Register that panics on failure.
func MustRegister[T any](acc accel.Accelerator, capacity int, opts ...Option) *Channel[T] {
	c, err := Register[T](acc, capacity, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// With registers a channel, runs fn and closes the channel on every exit
// path, panics included.  The close error is joined with fn's.
func With[T any](acc accel.Accelerator, capacity int, fn func(*Channel[T]) error, opts ...Option) (err error) {
	c, err := Register[T](acc, capacity, opts...)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, c.Close())
	}()
	return fn(c)
}

// Push spins until v is in the sender ring.
func (c *Channel[T]) Push(v T) {
	c.tx.Push(v)
	if c.stats != nil {
		c.stats.pushes.Add(1)
	}
}

// TryPush enqueues v unless the sender ring is full.
func (c *Channel[T]) TryPush(v T) bool {
	ok := c.tx.TryPush(v)
	if c.stats != nil {
		if ok {
			c.stats.pushes.Add(1)
		} else {
			c.stats.fullPushes.Add(1)
		}
	}
	return ok
}

// Pop spins until the receiver ring yields a value.
func (c *Channel[T]) Pop() T {
	v := c.rx.Pop()
	if c.stats != nil {
		c.stats.pops.Add(1)
	}
	return v
}

// TryPop dequeues from the receiver ring if it is not empty.
func (c *Channel[T]) TryPop() (T, bool) {
	v, ok := c.rx.TryPop()
	if c.stats != nil {
		if ok {
			c.stats.pops.Add(1)
		} else {
			c.stats.emptyPops.Add(1)
		}
	}
	return v, ok
}

// LoadAux reads the shared aux word.
func (c *Channel[T]) LoadAux() uint64 { return atomic.LoadUint64(c.aux) }

// StoreAux writes the shared aux word.
func (c *Channel[T]) StoreAux(v uint64) { atomic.StoreUint64(c.aux, v) }

// Addresses returns the record handed to the accelerator.
func (c *Channel[T]) Addresses() accel.Registration { return c.b.reg }

// Identity is the registration's identity tag.
func (c *Channel[T]) Identity() uint8 { return c.b.reg.Identity }

// Cap is the usable capacity of each direction.
func (c *Channel[T]) Cap() int { return c.tx.Cap() }

// Registered reports whether Close has not run yet.
func (c *Channel[T]) Registered() bool { return c.b.state.Load() == stateRegistered }

// Close unregisters from the accelerator and releases the region.  If
// unregistration keeps failing the region is leaked on purpose and the
// error wraps ErrUnregisterFailed.  Later calls return nil.
func (c *Channel[T]) Close() error {
	if c.b == nil {
		return nil
	}
	c.cleanup.Stop()
	err := c.b.teardown("close")
	_ = c.tx.Close()
	_ = c.rx.Close()
	return err
}

// noCopy makes go vet's copylocks check flag copies of a Channel.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
