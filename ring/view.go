// view.go
//
// Untyped peer view of a ring, built from nothing but a control block
// address, the same information the accelerator receives at registration.
// It reads buffer/element size/capacity out of the header exactly as the
// hardware parses them, and moves opaque element-sized byte strings.
//
// The data buffer must live in the same region as the control block (Init
// and New both place it directly after the header).

package ring

import (
	"fmt"
	"unsafe"

	"cohort/constants"
	"cohort/utils"
)

// View drives one end of a ring without knowing its element type.  Like
// Ring it must be used by at most one producer and one consumer.
type View struct {
	cb    *ControlBlock
	buf   unsafe.Pointer
	elem  uintptr
	slots uint64
}

// Open validates the control block at cb and returns a view over it.
func Open(cb unsafe.Pointer) (*View, error) {
	if cb == nil {
		return nil, fmt.Errorf("%w: nil address", ErrControlBlock)
	}
	if !utils.Aligned(cb, constants.Align) {
		return nil, fmt.Errorf("%w: control block %p", ErrMisaligned, cb)
	}
	c := (*ControlBlock)(cb)
	if c.ElemSize == 0 || c.Capacity == 0 {
		return nil, fmt.Errorf("%w: elem size %d, capacity %d", ErrControlBlock, c.ElemSize, c.Capacity)
	}
	off := c.Buffer - uint64(uintptr(cb))
	if c.Buffer < uint64(uintptr(cb)) || off < constants.ControlBlockSize {
		return nil, fmt.Errorf("%w: buffer %s overlaps header %p", ErrControlBlock, utils.Hex(c.Buffer), cb)
	}
	buf := unsafe.Add(cb, uintptr(off))
	if !utils.Aligned(buf, constants.Align) {
		return nil, fmt.Errorf("%w: buffer %p", ErrMisaligned, buf)
	}
	return &View{
		cb:    c,
		buf:   buf,
		elem:  uintptr(c.ElemSize),
		slots: uint64(c.Capacity) + 1,
	}, nil
}

func (v *View) slot(i uint64) []byte {
	return unsafe.Slice((*byte)(unsafe.Add(v.buf, uintptr(i)*v.elem)), v.elem)
}

func (v *View) next(i uint64) uint64 {
	if i++; i == v.slots {
		return 0
	}
	return i
}

// TryPushBytes copies p into the tail slot and publishes it.  p must be
// exactly ElemSize bytes.
func (v *View) TryPushBytes(p []byte) bool {
	if uintptr(len(p)) != v.elem {
		panic("ring: TryPushBytes with wrong element size")
	}
	t := load(&v.cb.Tail)
	n := v.next(t)
	if n == load(&v.cb.Head) {
		return false
	}
	copy(v.slot(t), p)
	store(&v.cb.Tail, n)
	return true
}

// TryPopBytes copies the head slot into p and releases it.  p must be
// exactly ElemSize bytes.
func (v *View) TryPopBytes(p []byte) bool {
	if uintptr(len(p)) != v.elem {
		panic("ring: TryPopBytes with wrong element size")
	}
	h := load(&v.cb.Head)
	if h == load(&v.cb.Tail) {
		return false
	}
	copy(p, v.slot(h))
	store(&v.cb.Head, v.next(h))
	return true
}

// Len is a snapshot of the number of live elements.
func (v *View) Len() int {
	h, t := load(&v.cb.Head), load(&v.cb.Tail)
	return int((t + v.slots - h) % v.slots)
}

// ElemSize is the slot size recorded in the control block.
func (v *View) ElemSize() int { return int(v.elem) }

// Cap is the usable capacity recorded in the control block.
func (v *View) Cap() int { return int(v.slots - 1) }
