// layout.go
//
// Binary control block shared with the accelerator and the size arithmetic
// for a ring region:
//
//	offset   0  buffer address (8) | element size (4) | capacity (4)
//	offset 128  head  (consumer cursor, own line)
//	offset 256  tail  (producer cursor, own line)
//	offset 384  data slots, capacity+1 of them, padded to 128
//
// The peer parses these bytes directly, so the struct below must not grow
// implicit padding between the packed metadata fields.

package ring

import (
	"errors"
	"fmt"
	"math"
	"unsafe"

	"cohort/constants"
	"cohort/utils"
)

var (
	// ErrCapacity reports a capacity that is not positive or does not fit
	// the 32-bit capacity field.
	ErrCapacity = errors.New("ring: invalid capacity")
	// ErrSizeOverflow reports a region size that wraps the address space.
	ErrSizeOverflow = errors.New("ring: size computation overflows")
	// ErrAlloc reports that backing memory could not be obtained.
	ErrAlloc = errors.New("ring: allocation failed")
	// ErrMisaligned reports memory not on a constants.Align boundary.
	ErrMisaligned = errors.New("ring: memory not 128-byte aligned")
	// ErrShort reports a caller-provided region smaller than the layout.
	ErrShort = errors.New("ring: region too small")
	// ErrControlBlock reports a control block a peer cannot use.
	ErrControlBlock = errors.New("ring: invalid control block")
)

// ControlBlock is the accelerator-visible header of one ring.
type ControlBlock struct {
	Buffer   uint64 // address of slot 0
	ElemSize uint32 // bytes per slot
	Capacity uint32 // usable slots, sentinel excluded
	_        [constants.Align - 16]byte

	Head uint64 // written by the consumer only
	_    [constants.Align - 8]byte

	Tail uint64 // written by the producer only
	_    [constants.Align - 8]byte
}

// Compile-time guard: the control block is exactly three lines.
var (
	_ [constants.ControlBlockSize - unsafe.Sizeof(ControlBlock{})]byte
	_ [unsafe.Sizeof(ControlBlock{}) - constants.ControlBlockSize]byte
)

// Layout describes where everything lives inside a ring region.
type Layout struct {
	ElemSize   uintptr // bytes per slot
	Capacity   int     // usable slots
	Slots      uintptr // Capacity + 1
	DataOffset uintptr // offset of slot 0 from the control block
	DataSize   uintptr // slot bytes rounded up to constants.Align
	Size       uintptr // total bytes: control block + data
}

// LayoutOf computes the region layout of a ring of T with capacity usable
// slots. T must satisfy CheckElement.
func LayoutOf[T any](capacity int) (Layout, error) {
	if err := CheckElement[T](); err != nil {
		return Layout{}, err
	}
	var zero T
	return layoutFor(unsafe.Sizeof(zero), capacity)
}

// Size is LayoutOf(...).Size.
func Size[T any](capacity int) (uintptr, error) {
	l, err := LayoutOf[T](capacity)
	return l.Size, err
}

// LayoutFor is LayoutOf for an element size known only at run time.
func LayoutFor(elemSize uintptr, capacity int) (Layout, error) {
	if elemSize == 0 || uint64(elemSize) > math.MaxUint32 {
		return Layout{}, fmt.Errorf("%w: %d-byte element", ErrElementType, elemSize)
	}
	return layoutFor(elemSize, capacity)
}

func layoutFor(elem uintptr, capacity int) (Layout, error) {
	if capacity <= 0 {
		return Layout{}, fmt.Errorf("%w: %d", ErrCapacity, capacity)
	}
	slots, ok := utils.AddSize(uintptr(capacity), 1)
	if !ok {
		return Layout{}, fmt.Errorf("%w: %d slots", ErrSizeOverflow, capacity)
	}
	data, ok := utils.MulSize(slots, elem)
	if !ok {
		return Layout{}, fmt.Errorf("%w: %d slots of %d bytes", ErrSizeOverflow, slots, elem)
	}
	data, ok = utils.AlignUp(data, constants.Align)
	if !ok {
		return Layout{}, fmt.Errorf("%w: %d data bytes", ErrSizeOverflow, data)
	}
	total, ok := utils.AddSize(constants.ControlBlockSize, data)
	if !ok {
		return Layout{}, fmt.Errorf("%w: %d data bytes", ErrSizeOverflow, data)
	}
	if uint64(capacity) > constants.MaxCapacity {
		return Layout{}, fmt.Errorf("%w: %d exceeds %d", ErrCapacity, capacity, uint64(constants.MaxCapacity))
	}
	return Layout{
		ElemSize:   elem,
		Capacity:   capacity,
		Slots:      slots,
		DataOffset: constants.ControlBlockSize,
		DataSize:   data,
		Size:       total,
	}, nil
}
