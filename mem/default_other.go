//go:build !unix

package mem

import "os"

// PageSize is the granularity of the platform allocator.
func PageSize() int {
	return os.Getpagesize()
}

// Default returns the allocator used when callers do not choose one.
func Default() Allocator {
	return Heap{}
}

// Locked falls back to Heap; pages cannot be pinned here.
func Locked() Allocator {
	return Heap{}
}
