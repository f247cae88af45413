// Package mem allocates the address-stable, aligned regions that back ring
// buffers and channel control words.
//
// A Region never moves for its lifetime: mmap'd regions live outside the Go
// heap, heap regions rely on Go's non-moving collector and keep their backing
// array reachable through the Region itself.
package mem

import (
	"errors"
	"sync"
	"unsafe"
)

var (
	// ErrAlloc reports that the allocator could not satisfy a request.
	ErrAlloc = errors.New("mem: allocation failed")
	// ErrAlignment reports an alignment that is not a power of two or that
	// the allocator cannot guarantee.
	ErrAlignment = errors.New("mem: unsupported alignment")
	// ErrSize reports a zero or unrepresentable size.
	ErrSize = errors.New("mem: invalid size")
)

// Allocator hands out aligned regions and takes them back.
type Allocator interface {
	Alloc(size, align uintptr) (*Region, error)
	Free(r *Region) error
}

// Region is an aligned block of memory of exactly the requested size.
// Methods are not safe for concurrent Free.
type Region struct {
	buf     []byte // exact requested size
	backing []byte // whole mapping or allocation
	align   uintptr
	locked  bool
	freed   bool
	alloc   Allocator
}

// Bytes returns the usable bytes. Nil after Free.
func (r *Region) Bytes() []byte { return r.buf }

// Ptr returns the address of the first usable byte.
func (r *Region) Ptr() unsafe.Pointer {
	if len(r.buf) == 0 {
		return nil
	}
	return unsafe.Pointer(&r.buf[0])
}

// Len is the requested size in bytes.
func (r *Region) Len() int { return len(r.buf) }

// Align is the alignment the region was allocated with.
func (r *Region) Align() uintptr { return r.align }

// Locked reports whether the pages are mlock'ed.
func (r *Region) Locked() bool { return r.locked }

// Freed reports whether Free already ran.
func (r *Region) Freed() bool { return r.freed }

// Free returns the region to the allocator that produced it. Repeated calls
// are no-ops.
func (r *Region) Free() error {
	if r == nil || r.freed {
		return nil
	}
	return r.alloc.Free(r)
}

var leaked struct {
	sync.Mutex
	regions []*Region
	bytes   int
}

// Leak parks r for the rest of the process. Used when a peer may still be
// writing into the region and it can therefore never be handed back.
func Leak(r *Region) {
	if r == nil || r.freed {
		return
	}
	leaked.Lock()
	leaked.regions = append(leaked.regions, r)
	leaked.bytes += len(r.backing)
	leaked.Unlock()
}

// LeakedBytes is the total size of regions parked by Leak.
func LeakedBytes() int {
	leaked.Lock()
	defer leaked.Unlock()
	return leaked.bytes
}
