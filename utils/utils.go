package utils

import (
	"math/bits"
	"unsafe"
)

///////////////////////////////////////////////////////////////////////////////
// Alignment Arithmetic — Overflow-Checked
///////////////////////////////////////////////////////////////////////////////

// IsPow2 reports whether x is a non-zero power of two.
//
//go:nosplit
//go:inline
func IsPow2(x uintptr) bool {
	return x != 0 && x&(x-1) == 0
}

// AlignUp rounds n up to the next multiple of align (a power of two).
// ok is false if the result does not fit in a uintptr.
//
//go:nosplit
//go:inline
func AlignUp(n, align uintptr) (uintptr, bool) {
	sum, carry := bits.Add64(uint64(n), uint64(align-1), 0)
	if carry != 0 || sum > uint64(^uintptr(0)) {
		return 0, false
	}
	return uintptr(sum) &^ (align - 1), true
}

// MulSize returns a*b, or ok=false when the product overflows a uintptr.
//
//go:nosplit
//go:inline
func MulSize(a, b uintptr) (uintptr, bool) {
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	if hi != 0 || lo > uint64(^uintptr(0)) {
		return 0, false
	}
	return uintptr(lo), true
}

// AddSize returns a+b, or ok=false on overflow.
//
//go:nosplit
//go:inline
func AddSize(a, b uintptr) (uintptr, bool) {
	sum, carry := bits.Add64(uint64(a), uint64(b), 0)
	if carry != 0 || sum > uint64(^uintptr(0)) {
		return 0, false
	}
	return uintptr(sum), true
}

// Aligned reports whether p sits on an align-byte boundary.
//
//go:nosplit
//go:inline
func Aligned(p unsafe.Pointer, align uintptr) bool {
	return uintptr(p)&(align-1) == 0
}

///////////////////////////////////////////////////////////////////////////////
// Formatting — Cold Path Only
///////////////////////////////////////////////////////////////////////////////

// Hex renders an address as 0x-prefixed lowercase hex without fmt.
func Hex(v uint64) string {
	const digits = "0123456789abcdef"
	var buf [18]byte
	i := len(buf)
	for {
		i--
		buf[i] = digits[v&0xf]
		v >>= 4
		if v == 0 {
			break
		}
	}
	i--
	buf[i] = 'x'
	i--
	buf[i] = '0'
	return string(buf[i:])
}
