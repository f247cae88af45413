//go:build unix && !linux

package mem

// dontFork is a no-op where MADV_DONTFORK does not exist.
func dontFork(b []byte) error { return nil }
