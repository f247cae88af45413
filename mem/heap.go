package mem

import (
	"fmt"
	"unsafe"

	"cohort/utils"
)

// Heap carves aligned regions out of ordinary Go byte slices. Suitable for
// in-process peers and platforms without mmap; the region stays put because
// the Go collector does not move heap objects.
type Heap struct{}

// Alloc over-allocates by align-1 bytes and offsets into the slice.
func (h Heap) Alloc(size, align uintptr) (r *Region, err error) {
	if size == 0 {
		return nil, ErrSize
	}
	if !utils.IsPow2(align) {
		return nil, fmt.Errorf("%w: %d", ErrAlignment, align)
	}
	total, ok := utils.AddSize(size, align-1)
	if !ok || uint64(total) > maxSlice {
		return nil, fmt.Errorf("%w: %d bytes", ErrSize, size)
	}

	defer func() {
		if p := recover(); p != nil {
			r, err = nil, fmt.Errorf("%w: %v", ErrAlloc, p)
		}
	}()
	b := make([]byte, total)

	base := uintptr(unsafe.Pointer(&b[0]))
	aligned, _ := utils.AlignUp(base, align)
	off := aligned - base
	return &Region{
		buf:     b[off : off+size : off+size],
		backing: b,
		align:   align,
		alloc:   h,
	}, nil
}

// Free drops the region's references; the collector reclaims the memory.
func (h Heap) Free(r *Region) error {
	r.buf, r.backing = nil, nil
	r.freed = true
	return nil
}

// maxSlice keeps make() away from its own length panic on 64-bit targets.
const maxSlice = 1 << 47
