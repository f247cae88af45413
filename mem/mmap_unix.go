//go:build unix

package mem

import (
	"fmt"
	"math"

	"cohort/utils"

	"golang.org/x/sys/unix"
)

// Mmap maps anonymous private memory for each region. Mappings are page
// aligned, zero filled and live outside the Go heap.
type Mmap struct {
	// Lock mlock()s the pages so they stay resident while a peer holds
	// their addresses.
	Lock bool
	// DontFork keeps the pages out of forked children (MADV_DONTFORK where
	// supported), so a fork never turns them copy-on-write under the peer.
	DontFork bool
}

// Alloc maps at least size bytes. align must be a power of two no larger
// than the page size.
func (m Mmap) Alloc(size, align uintptr) (*Region, error) {
	if size == 0 {
		return nil, ErrSize
	}
	if !utils.IsPow2(align) {
		return nil, fmt.Errorf("%w: %d", ErrAlignment, align)
	}
	page := uintptr(unix.Getpagesize())
	if align > page {
		return nil, fmt.Errorf("%w: %d exceeds page size %d", ErrAlignment, align, page)
	}
	n, ok := utils.AlignUp(size, page)
	if !ok || uint64(n) > math.MaxInt {
		return nil, fmt.Errorf("%w: %d bytes", ErrSize, size)
	}

	b, err := unix.Mmap(-1, 0, int(n), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("%w: mmap %d bytes: %w", ErrAlloc, n, err)
	}
	r := &Region{
		buf:     b[:size:size],
		backing: b,
		align:   align,
		alloc:   m,
	}
	if m.DontFork {
		if err := dontFork(b); err != nil {
			_ = unix.Munmap(b)
			return nil, fmt.Errorf("%w: madvise: %w", ErrAlloc, err)
		}
	}
	if m.Lock {
		if err := unix.Mlock(b); err != nil {
			_ = unix.Munmap(b)
			return nil, fmt.Errorf("%w: mlock %d bytes: %w", ErrAlloc, n, err)
		}
		r.locked = true
	}
	return r, nil
}

// Free unlocks and unmaps the whole mapping created by Alloc.
func (m Mmap) Free(r *Region) error {
	if r.locked {
		_ = unix.Munlock(r.backing)
		r.locked = false
	}
	if err := unix.Munmap(r.backing); err != nil {
		return fmt.Errorf("mem: munmap: %w", err)
	}
	r.buf, r.backing = nil, nil
	r.freed = true
	return nil
}

// PageSize is the granularity Mmap rounds to.
func PageSize() int {
	return unix.Getpagesize()
}

// Default returns the allocator used when callers do not choose one.
func Default() Allocator {
	return Mmap{DontFork: true}
}

// Locked returns an allocator whose regions are mlock'ed for their lifetime.
func Locked() Allocator {
	return Mmap{Lock: true, DontFork: true}
}
