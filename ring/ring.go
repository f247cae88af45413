// ring.go
//
// Bounded single-producer/single-consumer ring over raw, 128-byte aligned
// memory whose far side may be a hardware agent.  One slot is kept as a
// sentinel so full and empty are pure functions of head and tail:
//
//	empty ⇔ head == tail
//	full  ⇔ (tail+1) mod slots == head
//
// The producer owns tail, the consumer owns head; each reads the other's
// cursor through load() and publishes its own through store(), after the
// slot bytes are written.  No lock protects the region.
//
// ⚠️ Footgun-grade: exactly one producer and one consumer.  A second writer
// on either side corrupts the ring silently.

package ring

import (
	"fmt"
	"unsafe"

	"cohort/constants"
	"cohort/mem"
	"cohort/utils"
)

// Ring is a fixed-capacity SPSC queue of plain values.  Capacity never
// changes after construction because the peer has already seen the layout.
type Ring[T any] struct {
	cb     *ControlBlock  // shared header
	buf    unsafe.Pointer // slot 0
	elem   uintptr        // unsafe.Sizeof(T)
	slots  uint64         // capacity + 1
	region *mem.Region    // nil when formatted into caller memory
}

// New allocates a ring with capacity usable slots from mem.Default().
func New[T any](capacity int) (*Ring[T], error) {
	return NewWith[T](mem.Default(), capacity)
}

// NewWith allocates the control block and data slots from a as one region.
// Any failure leaves nothing allocated.
func NewWith[T any](a mem.Allocator, capacity int) (*Ring[T], error) {
	l, err := LayoutOf[T](capacity)
	if err != nil {
		return nil, err
	}
	region, err := a.Alloc(l.Size, constants.Align)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAlloc, err)
	}
	r, err := format[T](region.Bytes(), l)
	if err != nil {
		_ = region.Free()
		return nil, err
	}
	r.region = region
	return r, nil
}

// MustNew is New that panics on failure.  There is no degraded mode for a
// ring that could not be allocated.
func MustNew[T any](capacity int) *Ring[T] {
	r, err := New[T](capacity)
	if err != nil {
		panic(err)
	}
	return r
}

// Init formats a ring into b, which must be 128-byte aligned and at least
// Size[T](capacity) bytes.  The caller keeps ownership of b and must keep it
// alive and in place for the ring's lifetime.
func Init[T any](b []byte, capacity int) (*Ring[T], error) {
	l, err := LayoutOf[T](capacity)
	if err != nil {
		return nil, err
	}
	return format[T](b, l)
}

func format[T any](b []byte, l Layout) (*Ring[T], error) {
	if uintptr(len(b)) < l.Size {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrShort, len(b), l.Size)
	}
	base := unsafe.Pointer(&b[0])
	if !utils.Aligned(base, constants.Align) {
		return nil, fmt.Errorf("%w: %p", ErrMisaligned, base)
	}

	cb := (*ControlBlock)(base)
	buf := unsafe.Add(base, l.DataOffset)
	cb.Buffer = uint64(uintptr(buf))
	cb.ElemSize = uint32(l.ElemSize)
	cb.Capacity = uint32(l.Capacity)
	store(&cb.Head, 0)
	store(&cb.Tail, 0)

	return &Ring[T]{
		cb:    cb,
		buf:   buf,
		elem:  l.ElemSize,
		slots: uint64(l.Slots),
	}, nil
}

// slot returns the address of slot i.
func (r *Ring[T]) slot(i uint64) *T {
	return (*T)(unsafe.Add(r.buf, uintptr(i)*r.elem))
}

// next advances a cursor by one slot with wrap-around.
func (r *Ring[T]) next(i uint64) uint64 {
	if i++; i == r.slots {
		return 0
	}
	return i
}

// TryPush enqueues v, returning false if the ring is full.  A rejected push
// leaves the ring untouched.
func (r *Ring[T]) TryPush(v T) bool {
	t := load(&r.cb.Tail)
	n := r.next(t)
	if n == load(&r.cb.Head) {
		return false
	}
	*r.slot(t) = v
	store(&r.cb.Tail, n)
	return true
}

// Push spins until v is enqueued.  It never yields; callers that need a
// deadline loop on TryPush themselves.
func (r *Ring[T]) Push(v T) {
	for !r.TryPush(v) {
	}
}

// TryPop dequeues the oldest value, or returns ok=false if the ring is empty.
func (r *Ring[T]) TryPop() (v T, ok bool) {
	h := load(&r.cb.Head)
	if h == load(&r.cb.Tail) {
		return v, false
	}
	v = *r.slot(h)
	store(&r.cb.Head, r.next(h))
	return v, true
}

// Pop spins until a value is available and returns it.
func (r *Ring[T]) Pop() T {
	for {
		if v, ok := r.TryPop(); ok {
			return v
		}
	}
}

// IsEmpty is a snapshot; the producer may publish right after it returns.
func (r *Ring[T]) IsEmpty() bool {
	return load(&r.cb.Head) == load(&r.cb.Tail)
}

// IsFull is a snapshot; the consumer may free a slot right after it returns.
func (r *Ring[T]) IsFull() bool {
	return r.next(load(&r.cb.Tail)) == load(&r.cb.Head)
}

// Len is a snapshot of the number of live elements.
func (r *Ring[T]) Len() int {
	h, t := load(&r.cb.Head), load(&r.cb.Tail)
	return int((t + r.slots - h) % r.slots)
}

// Cap is the number of usable slots.
func (r *Ring[T]) Cap() int { return int(r.slots - 1) }

// ElemSize is the byte size of one slot.
func (r *Ring[T]) ElemSize() uintptr { return r.elem }

// Control returns the address of the control block handed to peers.
func (r *Ring[T]) Control() unsafe.Pointer { return unsafe.Pointer(r.cb) }

// Buffer returns the address of slot 0.
func (r *Ring[T]) Buffer() unsafe.Pointer { return r.buf }

// Close releases memory the ring allocated itself, using the region's
// recorded size and alignment.  Rings formatted with Init only drop their
// references.  The ring must not be used afterwards.
func (r *Ring[T]) Close() error {
	if r.cb == nil {
		return nil
	}
	r.cb, r.buf = nil, nil
	if r.region == nil {
		return nil
	}
	err := r.region.Free()
	r.region = nil
	return err
}
