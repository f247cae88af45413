//go:build linux

package mem

import "golang.org/x/sys/unix"

func dontFork(b []byte) error {
	return unix.Madvise(b, unix.MADV_DONTFORK)
}
